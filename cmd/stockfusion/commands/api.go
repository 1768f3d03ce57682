package commands

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wonny/stockfusion/internal/api"
	"github.com/wonny/stockfusion/internal/api/handlers"
	"github.com/wonny/stockfusion/internal/enrichment"
	"github.com/wonny/stockfusion/internal/scheduler"
	"github.com/wonny/stockfusion/internal/scheduler/jobs"
	"github.com/wonny/stockfusion/pkg/logger"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "API 서버 시작",
	Long: `REST API 서버를 시작합니다.

Endpoints:
  GET  /health
  GET  /metrics
  POST /api/screener/filter
  GET  /api/screener/presets[/{name}]
  GET  /api/screener/fields[/{field}/stats]
  GET  /api/screener/stats
  GET  /api/stocks/search?q=
  GET  /api/stocks/{symbol}[/fusion]
  POST /api/enrich
  GET  /ws/enrichment

Example:
  go run ./cmd/stockfusion api
  go run ./cmd/stockfusion api --port 8089 --with-scheduler`,
	RunE: runAPIServer,
}

var (
	apiPort          string
	apiWithScheduler bool
)

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API 서버 포트 (default: PORT)")
	apiCmd.Flags().BoolVar(&apiWithScheduler, "with-scheduler", false, "run scheduled jobs in the API process")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var hub *handlers.ProgressHub
	a, err := newApp(ctx, appOptions{
		progress: func(log *logger.Logger) enrichment.ProgressSink {
			hub = handlers.NewProgressHub(log)
			return hub
		},
	})
	if err != nil {
		return err
	}
	defer a.close()

	if apiPort != "" {
		a.cfg.Port = apiPort
	}

	var metricsHandler http.Handler
	if a.metrics != nil {
		metricsHandler = a.metrics.Handler()
	}

	router := api.NewRouter(api.Handlers{
		Screener: handlers.NewScreenerHandler(a.engine, a.log),
		Stock:    handlers.NewStockHandler(a.repo, a.fusion, a.index, a.log),
		Enrich:   handlers.NewEnrichHandler(ctx, a.enricher, a.log),
		Progress: hub,
		Metrics:  metricsHandler,
	}, a.log)
	server := api.New(a.cfg, a.log, router)

	if apiWithScheduler {
		sched := scheduler.New(a.log)
		if err := jobs.RegisterAll(sched, a.enricher, a.stocks, a.cfg, a.log); err != nil {
			return fmt.Errorf("register jobs: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	out := cmd.OutOrStdout()
	printSuccess(out, "Server running on http://localhost:%s (storage=%s)", a.cfg.Port, a.cfg.Storage)
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	a.log.Info("Server stopped")
	return nil
}
