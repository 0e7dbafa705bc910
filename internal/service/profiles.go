package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"proxygen/internal/apperr"
	"proxygen/internal/collectors"
	"proxygen/internal/config"
	"proxygen/internal/db"
	"proxygen/internal/engine"
	"proxygen/internal/logger"
	"proxygen/internal/metrics"
	"proxygen/internal/store"
	"proxygen/internal/subinfo"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const defaultCollector = "http"

const invalidFormat = "Invalid subscription format. URL must return a Clash YAML configuration."

// Options wires a Profiles service. Codec defaults to subinfo.NameCodec.
type Options struct {
	Store     *store.ProfileStore
	Rules     *store.RulesRepo
	Templates *store.TemplateCache
	Registry  *db.Registry
	Metrics   *metrics.Collector
	Codec     subinfo.Codec
	Fetch     config.FetchConfig
}

// Profiles generates configs from stored profiles and refreshes profiles
// from their subscription sources.
type Profiles struct {
	store     *store.ProfileStore
	rules     *store.RulesRepo
	templates *store.TemplateCache
	registry  *db.Registry
	metrics   *metrics.Collector
	codec     subinfo.Codec
	fetch     config.FetchConfig

	mu      sync.RWMutex
	sources map[string]config.ProfileConfig

	locks sync.Map // profile name -> *sync.Mutex
}

func New(opts Options) *Profiles {
	codec := opts.Codec
	if codec == nil {
		codec = subinfo.NameCodec{}
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	return &Profiles{
		store:     opts.Store,
		rules:     opts.Rules,
		templates: opts.Templates,
		registry:  opts.Registry,
		metrics:   m,
		codec:     codec,
		fetch:     opts.Fetch,
		sources:   make(map[string]config.ProfileConfig),
	}
}

// Seed registers the profiles declared in config so UpdateAll can refresh them.
func (s *Profiles) Seed(profiles []config.ProfileConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range profiles {
		if err := store.ValidateName(p.Name); err != nil {
			return err
		}
		if _, err := s.registry.Ensure(p.Name, p.URL, p.Collector); err != nil {
			return err
		}
		s.sources[p.Name] = p
	}
	return nil
}

// Generate builds a Clash config from the named profiles, in order, and
// returns the subscription metadata recovered from their proxy names.
func (s *Profiles) Generate(ctx context.Context, names []string, override string) (*engine.Document, subinfo.Info, error) {
	if len(names) == 0 {
		return nil, subinfo.Info{}, apperr.New(apperr.KindInvalid, "at least one profile name is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, subinfo.Info{}, err
	}

	start := time.Now()
	logger.Log.Infof("Generating profiles: %v (Override: %s)", names, override)

	// 1. Load and concatenate proxies
	var all []engine.Proxy
	for _, name := range names {
		p, err := s.store.Load(name)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				logger.Log.Warnf("Profile '%s' not found", name)
			} else {
				logger.Log.Errorf("Error loading profile '%s': %v", name, err)
			}
			s.metrics.RecordGeneration(engine.Stats{}, 0, err)
			return nil, subinfo.Info{}, err
		}
		all = append(all, p.Proxies...)
	}

	// 2. Metadata from every proxy name
	info := s.codec.Extract(all)
	logger.Log.Debugf("Subscription info for %v: %+v", names, info)

	// 3. Override
	var overrideDoc *engine.Document
	if override != "" {
		overrideDoc = s.rules.LoadOverride(override)
		if overrideDoc == nil {
			logger.Log.Warnf("Override file '%s' provided but content is empty or file missing.", override)
		}
	}

	// 4. Synthesize against one frozen template snapshot
	snap := s.templates.Snapshot()
	doc, stats := engine.Generate(engine.Input{
		Proxies:        all,
		GroupTemplates: snap.Groups,
		Rules:          snap.Rules,
		Override:       overrideDoc,
	}, snap)

	took := time.Since(start)
	s.metrics.RecordGeneration(stats, took, nil)
	logger.Log.Infof("✅ Generated config: %d proxies, %d/%d groups, %d rules (%v)",
		stats.Proxies, stats.Groups, stats.GroupTemplates, stats.Rules, took.Round(time.Millisecond))

	return doc, info, nil
}

// Update fetches the subscription at url (or the registered source when url
// is empty) and stores its proxies under name. It returns the stored count.
func (s *Profiles) Update(ctx context.Context, name, url string) (int, error) {
	if err := store.ValidateName(name); err != nil {
		return 0, err
	}

	lock := s.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	source := s.source(name)
	if url != "" {
		source.URL = url
	}

	// A new url is only recorded once it has produced a stored profile
	reg, err := s.registry.Get(name)
	if errors.Is(err, apperr.ErrNotFound) {
		reg, err = s.registry.Ensure(name, url, source.Collector)
	}
	if err != nil {
		return 0, apperr.Wrap(err, apperr.KindIO, "profile registry unavailable")
	}
	if source.URL == "" {
		source.URL = reg.URL
	}
	if source.Collector == "" {
		source.Collector = reg.Collector
	}
	if source.Collector == "" {
		source.Collector = defaultCollector
	}
	if source.URL == "" && collectors.String(source.Params, "path") == "" {
		return 0, apperr.Newf(apperr.KindInvalid, "profile '%s' has no subscription url", name)
	}

	start := time.Now()
	count, userInfo, err := s.refresh(ctx, name, source)
	took := time.Since(start)

	s.metrics.RecordFetch(name, took, count, err)
	if err != nil {
		if recErr := s.registry.RecordFailure(reg, err, took); recErr != nil {
			logger.Log.Errorf("Failed to record refresh failure for '%s': %v", name, recErr)
		}
		return 0, err
	}
	if url != "" && url != reg.URL {
		if recErr := s.registry.SetURL(reg, url); recErr != nil {
			logger.Log.Errorf("Failed to store new url for '%s': %v", name, recErr)
		}
		s.mu.Lock()
		if src, ok := s.sources[name]; ok {
			src.URL = url
			s.sources[name] = src
		}
		s.mu.Unlock()
	}
	if recErr := s.registry.RecordSuccess(reg, count, userInfo, took); recErr != nil {
		logger.Log.Errorf("Failed to record refresh for '%s': %v", name, recErr)
	}
	return count, nil
}

func (s *Profiles) refresh(ctx context.Context, name string, source config.ProfileConfig) (int, string, error) {
	logger.Log.Infof("Fetching profile '%s' from %s", name, source.URL)

	// 1. Fetch
	c, err := collectors.Get(source.Collector)
	if err != nil {
		return 0, "", apperr.Wrap(err, apperr.KindInvalid, "unknown collector")
	}
	sub, err := c.Collect(ctx, s.collectParams(source))
	if err != nil {
		logger.Log.Errorf("Error fetching profile '%s': %v", name, err)
		return 0, "", err
	}

	// 2. Validate
	proxies, err := ParseSubscription(sub.Body)
	if err != nil {
		logger.Log.Errorf("Profile content invalid for '%s': %v", name, err)
		return 0, "", err
	}

	// 3. Metadata node
	if sub.UserInfo != "" {
		logger.Log.Infof("Found subscription info header: %s", sub.UserInfo)
		var ok bool
		if proxies, ok = s.codec.Inject(proxies, sub.UserInfo); !ok {
			logger.Log.Warnf("Failed to parse subscription header '%s'", sub.UserInfo)
		}
	}

	// 4. Persist
	if err := s.store.Save(name, &store.Profile{Proxies: proxies}); err != nil {
		logger.Log.Errorf("Error saving profile '%s': %v", name, err)
		return 0, "", err
	}

	logger.Log.Infof("Profile '%s' updated with %d proxies", name, len(proxies))
	return len(proxies), sub.UserInfo, nil
}

func (s *Profiles) collectParams(source config.ProfileConfig) map[string]interface{} {
	params := make(map[string]interface{}, len(source.Params)+5)
	for k, v := range source.Params {
		params[k] = v
	}
	params["url"] = source.URL
	params["_timeout"] = s.fetch.Timeout
	params["_user_agent"] = s.fetch.UserAgent
	params["_proxy_url"] = s.fetch.ProxyURL
	params["_insecure"] = s.fetch.InsecureSkipVerify
	return params
}

func (s *Profiles) source(name string) config.ProfileConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if src, ok := s.sources[name]; ok {
		return src
	}
	return config.ProfileConfig{Name: name}
}

func (s *Profiles) lockFor(name string) *sync.Mutex {
	l, _ := s.locks.LoadOrStore(name, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// Result is the outcome of refreshing one profile in a batch.
type Result struct {
	Name    string
	Proxies int
	Err     error
}

// UpdateAll refreshes the named profiles, or every registered profile when
// names is empty, at most concurrency at a time. Individual failures are
// reported through onDone and in the returned results; only a cancelled
// context or an unreadable registry is an error.
func (s *Profiles) UpdateAll(ctx context.Context, names []string, concurrency int, onDone func(Result)) ([]Result, error) {
	if len(names) == 0 {
		profiles, err := s.registry.List()
		if err != nil {
			return nil, err
		}
		for _, p := range profiles {
			names = append(names, p.Name)
		}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	results := make([]Result, len(names))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for i, name := range names {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = Result{Name: name, Err: err}
				return err
			}
			n, err := s.Update(gctx, name, "")
			results[i] = Result{Name: name, Proxies: n, Err: err}
			if onDone != nil {
				onDone(results[i])
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, fmt.Errorf("refresh interrupted: %w", err)
	}
	return results, nil
}

// Prune drops profiles that have not been refreshed since olderThan ago,
// both from the registry and from disk.
func (s *Profiles) Prune(olderThan time.Duration) ([]string, error) {
	stale, err := s.registry.Stale(time.Now().Add(-olderThan))
	if err != nil {
		return nil, err
	}

	var removed []string
	for i := range stale {
		p := &stale[i]
		lock := s.lockFor(p.Name)
		lock.Lock()
		err := s.store.Delete(p.Name)
		if err == nil {
			err = s.registry.Delete(p)
		}
		lock.Unlock()

		if err != nil {
			logger.Log.Errorf("Failed to prune profile '%s': %v", p.Name, err)
			continue
		}
		removed = append(removed, p.Name)
	}
	return removed, nil
}

// ParseSubscription validates a Clash YAML subscription body and returns its
// proxies. Non-mapping entries in the proxies list are dropped.
func ParseSubscription(body []byte) ([]engine.Proxy, error) {
	var raw interface{}
	parseErr := yaml.Unmarshal(body, &raw)

	doc, ok := raw.(map[string]interface{})
	if parseErr != nil || !ok {
		msg := invalidFormat
		if _, isStr := raw.(string); parseErr != nil || raw == nil || isStr {
			msg += " Detected non-YAML content (possibly Base64). Please use a conversion service (Subconverter) to get a '&flag=clash' URL."
		}
		return nil, apperr.Wrap(parseErr, apperr.KindInvalid, msg)
	}

	if _, present := doc["proxies"]; !present {
		return nil, apperr.New(apperr.KindInvalid, invalidFormat)
	}

	// Second pass keeps each proxy as parsed so field order survives
	var list struct {
		Proxies yaml.Node `yaml:"proxies"`
	}
	if err := yaml.Unmarshal(body, &list); err != nil {
		return nil, apperr.Wrap(err, apperr.KindInvalid, invalidFormat)
	}

	seq := &list.Proxies
	if seq.Kind == yaml.AliasNode && seq.Alias != nil {
		seq = seq.Alias
	}
	var proxies []engine.Proxy
	if seq.Kind == yaml.SequenceNode {
		proxies = make([]engine.Proxy, 0, len(seq.Content))
		for _, item := range seq.Content {
			if p, ok := engine.ParseProxy(item); ok {
				proxies = append(proxies, p)
			}
		}
	}
	if len(proxies) == 0 {
		return nil, apperr.New(apperr.KindNotFound, "No proxies found in remote URL")
	}
	return proxies, nil
}
