package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"proxygen/internal/apperr"
	"proxygen/internal/config"
	"proxygen/internal/db"
	"proxygen/internal/logger"
	"proxygen/internal/service"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var updateURL string
var updateConcurrency int

var updateCmd = &cobra.Command{
	Use:   "update [profile_names...]",
	Short: "Fetch subscriptions and store their proxies",
	Long: `Refreshes every registered profile, or only the named ones.
Use --url with a single profile name to register (or re-point) it at a subscription URL.
The new URL is kept only if the fetch succeeds.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := loadApp()
		if err != nil {
			logger.Log.Fatalf("%v", err)
		}
		defer app.Close()

		if updateURL != "" && len(args) != 1 {
			logger.Log.Fatal("--url requires exactly one profile name")
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		// 1. A single profile pointed at an explicit URL
		if updateURL != "" {
			n, err := app.Profiles.Update(ctx, args[0], updateURL)
			if err != nil {
				logger.Log.Errorf("❌ %s: %v", args[0], err)
			} else {
				logger.Log.Infof("✅ %s: %d proxies", args[0], n)
			}
			app.Metrics.PrintReport(os.Stdout)
			return
		}

		// 2. Resolve targets
		names, err := selectProfiles(app.Config, app.Registry, args)
		if err != nil {
			logger.Log.Fatalf("%v", err)
		}
		if len(names) == 0 {
			logger.Log.Warn("No profiles registered. Add some under 'profiles' in config.yaml or use --url.")
			return
		}

		concurrency := app.Config.Fetch.Concurrency
		if updateConcurrency > 0 {
			concurrency = updateConcurrency
		}

		// 3. Refresh in parallel
		bar := progressbar.NewOptions(len(names),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(15),
			progressbar.OptionSetDescription("[cyan]Refreshing...[reset]"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)

		results, err := app.Profiles.UpdateAll(ctx, names, concurrency, func(service.Result) {
			bar.Add(1)
		})
		bar.Finish()
		if err != nil {
			logger.Log.Warnf("%v", err)
		}

		for _, r := range results {
			if r.Err != nil {
				logger.Log.Errorf("❌ %s: %v", r.Name, r.Err)
			} else if r.Name != "" {
				logger.Log.Infof("✅ %s: %d proxies", r.Name, r.Proxies)
			}
		}
		app.Metrics.PrintReport(os.Stdout)
	},
}

// selectProfiles returns the profiles to refresh. With no names that is
// every registered profile. Named profiles must be declared in config or
// already registered.
func selectProfiles(cfg *config.Config, reg *db.Registry, names []string) ([]string, error) {
	if len(names) == 0 {
		profiles, err := reg.List()
		if err != nil {
			return nil, err
		}
		all := make([]string, 0, len(profiles))
		for _, p := range profiles {
			all = append(all, p.Name)
		}
		return all, nil
	}

	scoped := *cfg
	scoped.FilterProfiles(names)
	declared := make(map[string]bool, len(scoped.Profiles))
	for _, p := range scoped.Profiles {
		declared[p.Name] = true
	}

	var unknown []string
	for _, name := range names {
		if declared[name] {
			continue
		}
		if _, err := reg.Get(name); err != nil {
			if !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return nil, fmt.Errorf("unknown profiles %v: declare them in config.yaml or register them with --url", unknown)
	}
	return names, nil
}

func init() {
	updateCmd.Flags().StringVar(&updateURL, "url", "", "Subscription URL for the named profile")
	updateCmd.Flags().IntVarP(&updateConcurrency, "concurrency", "c", 0, "Parallel fetches (overrides fetch.concurrency)")
	rootCmd.AddCommand(updateCmd)
}
