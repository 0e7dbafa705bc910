package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"proxygen/internal/api"
	"proxygen/internal/logger"
	"proxygen/internal/metrics"
	"proxygen/internal/scheduler"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves generated configs at /api/v2/profiles and accepts profile updates.
When schedule.refresh is set, registered profiles are also refreshed on that cron schedule.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := loadApp()
		if err != nil {
			logger.Log.Fatalf("%v", err)
		}
		defer app.Close()
		cfg := app.Config

		if cfg.Server.APIKey == "" {
			logger.Log.Fatal("server.api_key (or PROXYGEN_API_KEY) must be set")
		}
		if listenAddr != "" {
			cfg.Server.Listen = listenAddr
		}
		if !verbose {
			gin.SetMode(gin.ReleaseMode)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// 1. Template hot reload
		if cfg.Storage.WatchRules {
			go func() {
				if err := app.Templates.Watch(ctx); err != nil {
					logger.Log.Errorf("Template watcher stopped: %v", err)
				}
			}()
		}

		// 2. Scheduled refresh
		sched := scheduler.New(cfg.Schedule.Refresh, func(ctx context.Context) {
			results, err := app.Profiles.UpdateAll(ctx, nil, cfg.Fetch.Concurrency, nil)
			if err != nil {
				logger.Log.Warnf("Scheduled refresh: %v", err)
			}
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			logger.Log.Infof("Scheduled refresh: %d profiles, %d failed", len(results), failed)
		})
		if err := sched.Start(ctx); err != nil {
			logger.Log.Fatalf("%v", err)
		}

		// 3. API
		var m *metrics.Collector
		if cfg.Server.Metrics {
			m = app.Metrics
		}
		srv := api.NewServer(app.Profiles, cfg.Server.APIKey, m)
		if err := srv.Run(ctx, cfg.Server.Listen); err != nil {
			logger.Log.Errorf("Server error: %v", err)
		}
		sched.Stop()
	},
}

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides server.listen)")
	rootCmd.AddCommand(serveCmd)
}
