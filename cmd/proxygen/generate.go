package main

import (
	"context"
	"strconv"

	"proxygen/internal/config"
	"proxygen/internal/logger"
	"proxygen/internal/publishers"

	"github.com/spf13/cobra"
)

var generateOverride string
var generateParams map[string]string

var generateCmd = &cobra.Command{
	Use:   "generate [publisher_names...]",
	Short: "Generate configs and hand them to publishers",
	Long: `Runs all publishers defined in config, or only the named ones. Each publisher
generates a config from its profiles (all registered profiles when none are listed).
Without any configured publisher the config for all profiles is printed to stdout.
Use --param to override publisher params.`,
	Run: func(cmd *cobra.Command, args []string) {
		app, err := loadApp()
		if err != nil {
			logger.Log.Fatalf("%v", err)
		}
		defer app.Close()
		cfg := app.Config

		// 1. Filter Publishers based on args
		if len(args) > 0 {
			cfg.FilterPublishers(args)
			if len(cfg.Publishers) == 0 {
				logger.Log.Warn("No publishers matched.")
				return
			}
		}
		if len(cfg.Publishers) == 0 {
			cfg.Publishers = []config.PublisherConfig{{Name: "stdout", Type: "stdout"}}
		}

		// 2. Apply CLI Params Overrides
		for i := range cfg.Publishers {
			if cfg.Publishers[i].Params == nil {
				cfg.Publishers[i].Params = make(map[string]interface{})
			}
			for k, v := range generateParams {
				if intVal, err := strconv.Atoi(v); err == nil {
					cfg.Publishers[i].Params[k] = intVal
				} else if boolVal, err := strconv.ParseBool(v); err == nil {
					cfg.Publishers[i].Params[k] = boolVal
				} else {
					cfg.Publishers[i].Params[k] = v
				}
			}
		}

		ctx := context.Background()
		for _, pubCfg := range cfg.Publishers {
			logger.Log.Infof("📨 Running Publisher: %s (%s)...", pubCfg.Name, pubCfg.Type)

			plugin, err := publishers.Get(pubCfg.Type)
			if err != nil {
				logger.Log.Warnf("Plugin not found: %v", err)
				continue
			}

			// 3. Resolve profiles
			names := pubCfg.Profiles
			if len(names) == 0 {
				registered, err := app.Registry.List()
				if err != nil {
					logger.Log.Errorf("Error reading registry: %v", err)
					continue
				}
				for _, p := range registered {
					if p.RefreshedAt != nil {
						names = append(names, p.Name)
					}
				}
			}
			if len(names) == 0 {
				logger.Log.Warn("No refreshed profiles to publish. Run 'proxygen update' first.")
				continue
			}

			override := pubCfg.Override
			if generateOverride != "" {
				override = generateOverride
			}

			// 4. Generate and publish
			doc, info, err := app.Profiles.Generate(ctx, names, override)
			if err != nil {
				logger.Log.Errorf("Generate failed: %v", err)
				continue
			}

			pubCfg.Params["_timeout"] = cfg.Fetch.Timeout
			if cfg.Fetch.ProxyURL != "" {
				pubCfg.Params["_proxy_url"] = cfg.Fetch.ProxyURL
			}

			out := &publishers.Output{Name: names[0], Profiles: names, Document: doc, Info: info}
			if err := plugin.Publish(ctx, out, pubCfg.Params); err != nil {
				logger.Log.Errorf("Publish failed: %v", err)
			} else {
				logger.Log.Info("✅ Published successfully.")
			}
		}
	},
}

func init() {
	generateCmd.Flags().StringVarP(&generateOverride, "override", "o", "", "Override file in the rules dir (e.g. dns.yaml)")
	generateCmd.Flags().StringToStringVarP(&generateParams, "param", "p", nil, "Override publisher params (e.g. -p path=out/{name}.yaml)")
	rootCmd.AddCommand(generateCmd)
}
