package bootstrap

import (
	"fmt"

	"proxygen/internal/config"
	"proxygen/internal/db"
	"proxygen/internal/logger"
	"proxygen/internal/metrics"
	"proxygen/internal/service"
	"proxygen/internal/store"

	"gorm.io/gorm"
)

// App holds everything a command needs, wired from one Config.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Registry  *db.Registry
	Store     *store.ProfileStore
	Rules     *store.RulesRepo
	Templates *store.TemplateCache
	Metrics   *metrics.Collector
	Profiles  *service.Profiles
}

// New opens the stores and the registry and seeds the registry with the
// profiles declared in cfg.
func New(cfg *config.Config) (*App, error) {
	// 1. Storage
	profiles, err := store.NewProfileStore(cfg.Storage.ProfileDir)
	if err != nil {
		return nil, err
	}
	rules, err := store.NewRulesRepo(cfg.Storage.RulesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to create rules dir: %w", err)
	}

	// 2. Registry
	database, err := db.Open(cfg.Database.Path)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        database,
		Registry:  db.NewRegistry(database),
		Store:     profiles,
		Rules:     rules,
		Templates: store.NewTemplateCache(rules),
		Metrics:   metrics.New(nil),
	}

	// 3. Service
	app.Profiles = service.New(service.Options{
		Store:     app.Store,
		Rules:     app.Rules,
		Templates: app.Templates,
		Registry:  app.Registry,
		Metrics:   app.Metrics,
		Fetch:     cfg.Fetch,
	})
	if err := app.Profiles.Seed(cfg.Profiles); err != nil {
		app.Close()
		return nil, fmt.Errorf("invalid profile config: %w", err)
	}

	logger.Log.Debugf("Profiles: %s | Rules: %s | DB: %s",
		cfg.Storage.ProfileDir, cfg.Storage.RulesDir, cfg.Database.Path)
	return app, nil
}

func (a *App) Close() {
	db.Close(a.DB)
}
