package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"proxygen/internal/logger"

	"github.com/spf13/cobra"
)

var olderThan string

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove profiles that have not been refreshed recently",
	Long: `Deletes registry entries and stored profile files whose last successful refresh
is older than --older-than. Profiles that never refreshed are aged from registration.
Durations accept Go syntax (72h) or days (30d).`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Parse Argument
		age, err := parseAge(olderThan)
		if err != nil {
			logger.Log.Fatalf("Invalid --older-than: %v", err)
		}

		// 2. Load App
		app, err := loadApp()
		if err != nil {
			logger.Log.Fatalf("%v", err)
		}
		defer app.Close()

		// 3. Prune
		removed, err := app.Profiles.Prune(age)
		if err != nil {
			logger.Log.Errorf("Pruning failed: %v", err)
			return
		}
		for _, name := range removed {
			logger.Log.Infof("🗑️  Removed profile '%s'", name)
		}
		logger.Log.Infof("✅ Pruned %d profiles.", len(removed))
	},
}

func parseAge(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("invalid day count %q", s)
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

func init() {
	pruneCmd.Flags().StringVar(&olderThan, "older-than", "30d", "Age after which a profile is removed")
	rootCmd.AddCommand(pruneCmd)
}
