package main

import (
	"fmt"
	"os"

	"proxygen/internal/bootstrap"
	"proxygen/internal/config"
	"proxygen/internal/logger"

	"github.com/spf13/cobra"
)

var cfgFile string
var verbose bool
var logFile string

var rootCmd = &cobra.Command{
	Use:   "proxygen",
	Short: "Clash config generator for proxy subscriptions",
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Sync()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadApp reads the config, initializes logging from it and wires the app.
func loadApp() (*bootstrap.App, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		logger.Init(verbose, logFile, logger.Rotation{})
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	path := cfg.Log.File
	if logFile != "" {
		path = logFile
	}
	logger.Init(verbose, path, logger.Rotation{
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})

	return bootstrap.New(cfg)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to a rotating file instead of stdout")
}
