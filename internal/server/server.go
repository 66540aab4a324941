// Package server exposes the agent over HTTP: the chat endpoint plus
// health and metrics. All dependency wiring happens here.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dugoutai/dugout/config"
	"github.com/dugoutai/dugout/internal/agent"
	"github.com/dugoutai/dugout/internal/catalog"
	"github.com/dugoutai/dugout/internal/executor"
	"github.com/dugoutai/dugout/internal/extract"
	"github.com/dugoutai/dugout/internal/intent"
	"github.com/dugoutai/dugout/internal/llm"
	"github.com/dugoutai/dugout/internal/lookup"
	"github.com/dugoutai/dugout/internal/media"
	"github.com/dugoutai/dugout/internal/planner"
	"github.com/dugoutai/dugout/internal/respond"
	"github.com/dugoutai/dugout/internal/sandbox"
	"github.com/dugoutai/dugout/internal/session"
	"github.com/dugoutai/dugout/internal/store"
	"github.com/dugoutai/dugout/internal/telemetry"
	"github.com/dugoutai/dugout/internal/translate"
)

// Run wires the pipeline and serves it until the listener fails.
func Run(cfg config.Config) error {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())

	baseLogger := log.New(log.Writer(), "[HTTP] ", log.LstdFlags)
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		if he, ok := err.(*echo.HTTPError); ok {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		baseLogger.Printf("%d %s %s from %s: %v", code, req.Method, req.URL.Path, c.RealIP(), err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]interface{}{"error": msg})
		}
	}
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type"},
		AllowCredentials: true,
	}))

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	ag, lookups, archive, cleanup, err := buildAgent(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	api := e.Group("/api")
	api.POST("/chat", func(c echo.Context) error {
		var req agent.Request
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
		}
		if strings.TrimSpace(req.Message) == "" {
			return echo.NewHTTPError(http.StatusBadRequest, "message is required")
		}
		reply := ag.ProcessMessage(c.Request().Context(), req)
		return c.JSON(http.StatusOK, reply)
	})

	if archive != nil {
		api.GET("/history/:user", func(c echo.Context) error {
			limit, _ := strconv.Atoi(c.QueryParam("limit"))
			exchanges, err := archive.RecentForUser(c.Request().Context(), c.Param("user"), limit)
			if err != nil {
				return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
			}
			if exchanges == nil {
				exchanges = []store.Exchange{}
			}
			return c.JSON(http.StatusOK, exchanges)
		})
	}

	// Fixed per-entity data workflows, no plan synthesis involved.
	api.GET("/entity/:kind/:name", func(c echo.Context) error {
		kind := c.Param("kind")
		if kind != lookup.KindPlayer && kind != lookup.KindTeam {
			return echo.NewHTTPError(http.StatusBadRequest, "kind must be player or team")
		}
		data, err := lookups.RunWorkflow(c.Request().Context(), kind, c.Param("name"))
		if err != nil {
			return echo.NewHTTPError(http.StatusNotFound, err.Error())
		}
		return c.JSON(http.StatusOK, data)
	})

	return e.Start(cfg.Server.Address)
}

// buildAgent constructs the pipeline from config. The returned cleanup
// closes any owned connections. The archive is nil when Postgres is
// disabled.
func buildAgent(ctx context.Context, cfg config.Config) (*agent.Agent, *lookup.Service, *store.Archive, func(), error) {
	closers := []func(){}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	tel := telemetry.NewTelemetry(cfg.Telemetry)

	provider, err := llm.NewProvider(cfg.LLM)
	if err != nil {
		return nil, nil, nil, cleanup, fmt.Errorf("creating completion provider: %w", err)
	}
	client := llm.NewClient(provider, cfg.LLM, tel)
	attempts, initial, cap := client.RetryBudget()
	log.New(log.Writer(), "[SERVER] ", log.LstdFlags).Printf(
		"completion retry budget: %d attempts per model, backoff %s up to %s", attempts, initial, cap)

	cat, err := catalog.Load(cfg.Catalog.FunctionsFile, cfg.Catalog.EndpointsFile)
	if err != nil {
		return nil, nil, nil, cleanup, fmt.Errorf("loading catalog: %w", err)
	}

	runner, err := sandbox.NewRunner(cfg.Sandbox, tel)
	if err != nil {
		return nil, nil, nil, cleanup, fmt.Errorf("creating sandbox runner: %w", err)
	}

	engine := extract.NewEngine(client, runner)
	exec := executor.New(cat, client, runner, engine, tel)

	var index *media.Index
	if cfg.Media.HomerunsCSV != "" {
		index, err = media.OpenIndex(cfg.Media.IndexPath, cfg.Media.HomerunsCSV)
		if err != nil {
			return nil, nil, nil, cleanup, fmt.Errorf("opening media index: %w", err)
		}
		closers = append(closers, func() { index.Close() })
	}

	var history session.History
	if cfg.Storage.Redis.Enabled {
		redisHistory, err := session.NewRedisHistory(cfg.Storage.Redis)
		if err != nil {
			return nil, nil, nil, cleanup, fmt.Errorf("connecting history store: %w", err)
		}
		closers = append(closers, func() { redisHistory.Close() })
		history = redisHistory
	} else {
		history = session.NewMemoryHistory(cfg.Storage.Redis.HistoryTTL, cfg.Storage.Redis.HistoryMax)
	}

	var archive *store.Archive
	if cfg.Storage.Postgres.Enabled {
		archive, err = store.New(ctx, cfg.Storage.Postgres)
		if err != nil {
			return nil, nil, nil, cleanup, fmt.Errorf("connecting archive: %w", err)
		}
		closers = append(closers, func() { archive.Close() })
	}

	lookups := lookup.NewService(exec, cfg.Lookup)

	ag := agent.New(
		intent.NewClassifier(client, ""),
		planner.NewSynthesizer(cat, client, ""),
		exec,
		respond.NewComposer(client, ""),
		media.NewResolver(client, index, cfg.Media.MaxResults),
		media.NewChartResolver(client, cfg.Catalog.ChartDocsFile),
		translate.NewTranslator(client),
		history,
		archive,
		tel,
	)
	return ag, lookups, archive, cleanup, nil
}
