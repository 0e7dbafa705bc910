package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"proxygen/internal/logger"
	"proxygen/internal/model"
	"proxygen/internal/subinfo"

	"github.com/spf13/cobra"
)

const historyLimit = 10

var statusCmd = &cobra.Command{
	Use:   "status [profile_name]",
	Short: "Show registered profiles and storage statistics",
	Long: `Displays a dashboard of the profile registry, including proxy counts, last refresh, traffic metadata and file sizes.
With a profile name, shows that profile's source and its recent refresh attempts.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		// 1. Load Config & DB
		app, err := loadApp()
		if err != nil {
			logger.Log.Fatalf("%v", err)
		}
		defer app.Close()
		cfg := app.Config

		if len(args) == 1 {
			p, err := app.Registry.Get(args[0])
			if err != nil {
				logger.Log.Fatalf("%v", err)
			}
			history, err := app.Registry.History(p, historyLimit)
			if err != nil {
				logger.Log.Fatalf("Error reading history: %v", err)
			}
			printProfileDetail(os.Stdout, p, history, app.Store.Size(p.Name))
			return
		}

		// 2. Gather Stats
		profiles, err := app.Registry.List()
		if err != nil {
			logger.Log.Fatalf("Error reading registry: %v", err)
		}

		dbSize := getFileSize(cfg.Database.Path)
		walSize := getFileSize(cfg.Database.Path + "-wal")

		var totalProxies int
		var profileBytes int64
		for _, p := range profiles {
			totalProxies += p.ProxyCount
			profileBytes += app.Store.Size(p.Name)
		}

		snap := app.Templates.Snapshot()

		// 3. Print Dashboard
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)

		fmt.Println("\n📊 \033[1mPROXYGEN STATUS DASHBOARD\033[0m")
		fmt.Println("────────────────────────────────────────")

		// System Section
		fmt.Fprintln(w, "\033[1;36m[ SYSTEM ]\033[0m\t")
		fmt.Fprintf(w, "  Database Path:\t%s\n", cfg.Database.Path)
		fmt.Fprintf(w, "  DB Size:\t%s\n", formatBytes(dbSize))
		if walSize > 0 {
			fmt.Fprintf(w, "  WAL Size:\t%s (pending checkpoint)\n", formatBytes(walSize))
		}
		fmt.Fprintf(w, "  Profile Dir:\t%s (%s)\n", cfg.Storage.ProfileDir, formatBytes(profileBytes))
		fmt.Fprintf(w, "  Rules Dir:\t%s\n", cfg.Storage.RulesDir)
		fmt.Fprintf(w, "  Templates:\t%d groups, %d rules, %d rule providers\n",
			len(snap.Groups), len(snap.Rules.Rules), len(snap.Rules.Providers))
		fmt.Fprintf(w, "  Total Proxies:\t%d\n", totalProxies)
		fmt.Fprintln(w, "\t")

		// Profile Section
		fmt.Fprintln(w, "\033[1;36m[ PROFILES ]\033[0m\t")
		if len(profiles) == 0 {
			fmt.Fprintln(w, "  (No profiles registered)")
		}
		for _, p := range profiles {
			state := "\033[32mok\033[0m"
			if p.LastError != "" {
				state = "\033[31mfailing\033[0m"
			}
			fmt.Fprintf(w, "  %s:\t%d proxies\t%s\t%s\n", p.Name, p.ProxyCount, formatAge(p.RefreshedAt), state)
			if p.UserInfo != "" {
				if u, err := subinfo.ParseHeader(p.UserInfo); err == nil {
					fmt.Fprintf(w, "    \t%s\t\t\n", subinfo.Label(u))
				}
			}
			if p.LastError != "" {
				fmt.Fprintf(w, "    \t\033[2m%s\033[0m\t\t\n", p.LastError)
			}
		}

		w.Flush()
		fmt.Println("")
	},
}

// printProfileDetail renders one profile and its refresh history, newest first.
func printProfileDetail(out io.Writer, p *model.Profile, history []model.UpdateRecord, size int64) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(out, "\n📄 \033[1mPROFILE %s\033[0m\n", p.Name)
	fmt.Fprintln(out, "────────────────────────────────────────")

	fmt.Fprintf(w, "  Source:\t%s (%s)\n", p.URL, p.Collector)
	fmt.Fprintf(w, "  Proxies:\t%d\n", p.ProxyCount)
	fmt.Fprintf(w, "  Stored:\t%s\n", formatBytes(size))
	fmt.Fprintf(w, "  Refreshed:\t%s\n", formatAge(p.RefreshedAt))
	if p.UserInfo != "" {
		if u, err := subinfo.ParseHeader(p.UserInfo); err == nil {
			fmt.Fprintf(w, "  Traffic:\t%s\n", subinfo.Label(u))
		}
	}
	if p.LastError != "" {
		fmt.Fprintf(w, "  Last Error:\t\033[31m%s\033[0m\n", p.LastError)
	}
	fmt.Fprintln(w, "\t")

	fmt.Fprintln(w, "\033[1;36m[ RECENT REFRESHES ]\033[0m\t")
	if len(history) == 0 {
		fmt.Fprintln(w, "  (No refresh attempts yet)")
	}
	for _, r := range history {
		outcome := fmt.Sprintf("\033[32m%d proxies\033[0m", r.ProxyCount)
		if !r.Success {
			outcome = "\033[31m" + r.Error + "\033[0m"
		}
		fmt.Fprintf(w, "  %s\t%v\t%s\n",
			r.CreatedAt.Local().Format("2006-01-02 15:04:05"), r.Duration.Round(time.Millisecond), outcome)
	}

	w.Flush()
	fmt.Fprintln(out, "")
}

// Helpers

func getFileSize(path string) int64 {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Size()
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatAge(t *time.Time) string {
	if t == nil {
		return "never refreshed"
	}
	age := time.Since(*t)
	switch {
	case age < time.Minute:
		return "just now"
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(age.Hours()/24))
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
