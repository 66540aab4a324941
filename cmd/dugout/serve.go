package main

import (
	"github.com/spf13/cobra"

	"github.com/dugoutai/dugout/config"
	srv "github.com/dugoutai/dugout/internal/server"
)

func serveCMD() *cobra.Command {
	var cfgPath string

	var serve = &cobra.Command{
		Use:   "serve",
		Short: "Start the chat API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			return srv.Run(*cfg)
		},
	}
	serve.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return serve
}
