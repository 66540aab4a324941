package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dugoutai/dugout/config"
	"github.com/dugoutai/dugout/internal/media"
)

func indexCMD() *cobra.Command {
	var cfgPath string

	var index = &cobra.Command{
		Use:   "index",
		Short: "Build the home run media index",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cfg.Media.HomerunsCSV == "" {
				return fmt.Errorf("media not configured (media.homeruns_csv)")
			}
			idx, err := media.BuildIndex(cfg.Media.IndexPath, cfg.Media.HomerunsCSV)
			if err != nil {
				return err
			}
			defer idx.Close()
			fmt.Printf("indexed %d home run clips\n", idx.Count())
			return nil
		},
	}
	index.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return index
}
