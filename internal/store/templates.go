package store

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"proxygen/internal/engine"
	"proxygen/internal/logger"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// Snapshot is an immutable view of the rules dir: group template, rule
// template and the provider files the rules reference.
type Snapshot struct {
	Groups    []yaml.Node
	Rules     engine.RuleTemplate
	LoadedAt  time.Time
	providers map[string][]string
}

// ProviderLines serves provider files from the snapshot.
func (s *Snapshot) ProviderLines(path string) []string {
	return s.providers[path]
}

// TemplateCache hands out snapshots. Without Watch every call reads the
// rules dir afresh; while watching, a snapshot is reused until a file changes.
type TemplateCache struct {
	repo     *RulesRepo
	current  atomic.Pointer[Snapshot]
	watching atomic.Bool
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
}

func NewTemplateCache(repo *RulesRepo) *TemplateCache {
	return &TemplateCache{repo: repo, debounce: 200 * time.Millisecond}
}

// Snapshot returns the current template snapshot.
func (c *TemplateCache) Snapshot() *Snapshot {
	if !c.watching.Load() {
		return c.load()
	}
	if s := c.current.Load(); s != nil {
		return s
	}
	return c.Reload()
}

// Reload rebuilds the snapshot from disk and publishes it.
func (c *TemplateCache) Reload() *Snapshot {
	s := c.load()
	c.current.Store(s)
	return s
}

func (c *TemplateCache) load() *Snapshot {
	s := &Snapshot{
		Groups:    c.repo.LoadGroups(),
		Rules:     c.repo.LoadRules(),
		LoadedAt:  time.Now(),
		providers: make(map[string][]string),
	}
	for name, node := range s.Rules.Providers {
		node := node
		spec, err := engine.ParseRuleProvider(&node)
		if err != nil || spec.Path == "" {
			continue
		}
		if _, ok := s.providers[spec.Path]; ok {
			continue
		}
		s.providers[spec.Path] = c.repo.ProviderLines(spec.Path)
		logger.Log.Debugf("Loaded rule provider '%s' (%d lines)", name, len(s.providers[spec.Path]))
	}
	return s
}

// Watch reloads the snapshot whenever something under the rules dir changes.
// It blocks until ctx is cancelled.
func (c *TemplateCache) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer w.Close()

	if err := c.addTree(w, c.repo.Dir()); err != nil {
		return fmt.Errorf("failed to watch rules dir: %w", err)
	}

	c.Reload()
	c.watching.Store(true)
	defer c.watching.Store(false)

	logger.Log.Infof("👀 Watching rules dir: %s", c.repo.Dir())

	for {
		select {
		case <-ctx.Done():
			c.stopTimer()
			return nil

		case event, ok := <-w.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}
			if event.Op&fsnotify.Create != 0 {
				// New subdirectories need their own watch.
				_ = c.addTree(w, event.Name)
			}
			logger.Log.Debugf("Rules dir event: %s %s", event.Op, event.Name)
			c.scheduleReload()

		case err, ok := <-w.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			logger.Log.Errorf("Rules watcher error: %v", err)
		}
	}
}

func (c *TemplateCache) addTree(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (c *TemplateCache) scheduleReload() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
	c.timer = time.AfterFunc(c.debounce, func() {
		s := c.Reload()
		logger.Log.Infof("🔄 Templates reloaded (%d groups, %d rules)", len(s.Groups), len(s.Rules.Rules))
	})
}

func (c *TemplateCache) stopTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.timer != nil {
		c.timer.Stop()
	}
}
