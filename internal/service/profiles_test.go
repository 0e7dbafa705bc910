package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"proxygen/internal/apperr"
	_ "proxygen/internal/collectors/file"
	_ "proxygen/internal/collectors/http"
	"proxygen/internal/config"
	"proxygen/internal/db"
	"proxygen/internal/engine"
	"proxygen/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const groupsYAML = `
proxy-groups:
  - name: PROXY
    type: select
    proxies: [Auto]
  - name: Auto
    type: url-test
    filter: "HK|JP"
    url: http://www.gstatic.com/generate_204
    interval: 300
  - name: US
    type: select
    filter: "US"
    removable: true
`

const rulesYAML = `
rules:
  - DOMAIN-SUFFIX,google.com,PROXY
  - DOMAIN-SUFFIX,netflix.com,US
  - MATCH,PROXY
`

const subscriptionYAML = `
port: 7890
proxies:
  - {name: HK 01, type: ss, server: hk.example, port: 443, cipher: aes-128-gcm, password: x}
  - {name: JP 01, type: trojan, server: jp.example, port: 443, password: y}
  - not-a-mapping
`

type fixture struct {
	svc      *Profiles
	store    *store.ProfileStore
	registry *db.Registry
	rulesDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()

	profiles, err := store.NewProfileStore(filepath.Join(root, "profiles"))
	require.NoError(t, err)
	rules, err := store.NewRulesRepo(filepath.Join(root, "rules"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "rules", store.GroupsFileName), []byte(groupsYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "rules", store.RulesFileName), []byte(rulesYAML), 0o644))

	database, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(database) })
	registry := db.NewRegistry(database)

	svc := New(Options{
		Store:     profiles,
		Rules:     rules,
		Templates: store.NewTemplateCache(rules),
		Registry:  registry,
		Fetch:     config.Default().Fetch,
	})
	return &fixture{svc: svc, store: profiles, registry: registry, rulesDir: filepath.Join(root, "rules")}
}

func subscriptionServer(t *testing.T, body, userInfo string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if userInfo != "" {
			w.Header().Set("subscription-userinfo", userInfo)
		}
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUpdateThenGenerate(t *testing.T) {
	f := newFixture(t)
	srv := subscriptionServer(t, subscriptionYAML, "upload=100;download=924;total=1073741824;expire=1767484800")
	ctx := context.Background()

	n, err := f.svc.Update(ctx, "home", srv.URL)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stored, err := f.store.Load("home")
	require.NoError(t, err)
	assert.Equal(t, "Traffic: 0.00 GB / 1.00 GB | Expire: 2026-01-04", stored.Proxies[0].Name())

	reg, err := f.registry.Get("home")
	require.NoError(t, err)
	assert.Equal(t, srv.URL, reg.URL)
	assert.Equal(t, 3, reg.ProxyCount)

	doc, info, err := f.svc.Generate(ctx, []string{"home"}, "")
	require.NoError(t, err)
	assert.True(t, info.Complete())
	assert.Equal(t, "1073741824", info.Total)
	assert.Equal(t, "1767484800", info.Expire)

	raw, ok := doc.Get("proxy-groups")
	require.True(t, ok)
	groups := raw.([]engine.Group)
	require.Len(t, groups, 2)
	assert.Equal(t, "PROXY", groups[0].Name)
	assert.Equal(t, []string{"Auto", "Traffic: 0.00 GB / 1.00 GB | Expire: 2026-01-04"}, groups[0].Proxies)
	assert.Equal(t, []string{"HK 01", "JP 01"}, groups[1].Proxies)

	rules, _ := doc.Get("rules")
	assert.Equal(t, []string{"DOMAIN-SUFFIX,google.com,PROXY", "MATCH,PROXY"}, rules)
}

func TestGenerateConcatenatesProfilesAndAppliesOverride(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save("a", &store.Profile{Proxies: []engine.Proxy{engine.NewProxy("name", "HK 01", "type", "ss")}}))
	require.NoError(t, f.store.Save("b", &store.Profile{Proxies: []engine.Proxy{engine.NewProxy("name", "JP 01", "type", "ss")}}))
	require.NoError(t, os.WriteFile(filepath.Join(f.rulesDir, "global.yaml"), []byte("mode: Global\n"), 0o644))

	doc, info, err := f.svc.Generate(context.Background(), []string{"b", "a"}, "global")
	require.NoError(t, err)
	assert.False(t, info.Complete())

	proxies, _ := doc.Get("proxies")
	assert.Equal(t, []string{"JP 01", "HK 01"}, engine.ProxyNames(proxies.([]engine.Proxy)))
	mode, _ := doc.Get("mode")
	assert.Equal(t, "Global", mode)

	// A missing override is not an error.
	_, _, err = f.svc.Generate(context.Background(), []string{"a"}, "nope")
	assert.NoError(t, err)
}

func TestGenerateErrors(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.svc.Generate(context.Background(), nil, "")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, _, err = f.svc.Generate(context.Background(), []string{"ghost"}, "")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = f.svc.Generate(ctx, []string{"ghost"}, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestUpdateRejectsBadContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	b64 := subscriptionServer(t, "dm1lc3M6Ly9leGFtcGxl", "")
	_, err := f.svc.Update(ctx, "b64", b64.URL)
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, apperr.HTTPStatus(err))
	assert.Contains(t, err.Error(), "Subconverter")

	reg, err := f.registry.Get("b64")
	require.NoError(t, err)
	assert.Contains(t, reg.LastError, "Invalid subscription format")

	empty := subscriptionServer(t, "proxies: []\n", "")
	_, err = f.svc.Update(ctx, "empty", empty.URL)
	assert.Equal(t, http.StatusNotFound, apperr.HTTPStatus(err))

	_, err = f.svc.Update(ctx, "../escape", empty.URL)
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = f.svc.Update(ctx, "nourl", "")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestUpdateKeepsPreviousProfileOnFailure(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.Save("home", &store.Profile{Proxies: []engine.Proxy{engine.NewProxy("name", "old")}}))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := f.svc.Update(context.Background(), "home", srv.URL)
	assert.Equal(t, http.StatusServiceUnavailable, apperr.HTTPStatus(err))

	p, err := f.store.Load("home")
	require.NoError(t, err)
	assert.Equal(t, "old", p.Proxies[0].Name())
}

func TestUpdateFailureKeepsRegisteredURL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	good := subscriptionServer(t, subscriptionYAML, "")

	_, err := f.registry.Ensure("home", good.URL, "http")
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, "home", "ftp://typo")
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	reg, err := f.registry.Get("home")
	require.NoError(t, err)
	assert.Equal(t, good.URL, reg.URL)
	assert.NotEmpty(t, reg.LastError)

	// The registered source still refreshes
	n, err := f.svc.Update(ctx, "home", "")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// A working url replaces the old one
	moved := subscriptionServer(t, subscriptionYAML, "")
	_, err = f.svc.Update(ctx, "home", moved.URL)
	require.NoError(t, err)
	reg, err = f.registry.Get("home")
	require.NoError(t, err)
	assert.Equal(t, moved.URL, reg.URL)
}

func TestUpdateAllUsesSeededSources(t *testing.T) {
	f := newFixture(t)
	good := subscriptionServer(t, subscriptionYAML, "")

	localPath := filepath.Join(t.TempDir(), "local.yaml")
	require.NoError(t, os.WriteFile(localPath, []byte(subscriptionYAML), 0o644))

	require.NoError(t, f.svc.Seed([]config.ProfileConfig{
		{Name: "remote", URL: good.URL, Collector: "http"},
		{Name: "local", Collector: "file", Params: map[string]interface{}{
			"path":     localPath,
			"userinfo": "upload=0; download=0; total=1073741824; expire=0",
		}},
		{Name: "broken", URL: "http://127.0.0.1:1/unreachable", Collector: "http"},
	}))

	var done atomic.Int32
	results, err := f.svc.UpdateAll(context.Background(), nil, 2, func(Result) { done.Add(1) })
	require.NoError(t, err)
	assert.Equal(t, int32(3), done.Load())

	byName := map[string]Result{}
	for _, r := range results {
		byName[r.Name] = r
	}
	assert.NoError(t, byName["remote"].Err)
	assert.Equal(t, 2, byName["remote"].Proxies)
	assert.NoError(t, byName["local"].Err)
	assert.Equal(t, 3, byName["local"].Proxies)
	assert.Error(t, byName["broken"].Err)

	results, err = f.svc.UpdateAll(context.Background(), []string{"remote"}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "remote", results[0].Name)
	assert.NoError(t, results[0].Err)
}

func TestSeedRejectsBadNames(t *testing.T) {
	f := newFixture(t)
	err := f.svc.Seed([]config.ProfileConfig{{Name: "a/b", URL: "http://x"}})
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
}

func TestPrune(t *testing.T) {
	f := newFixture(t)
	srv := subscriptionServer(t, subscriptionYAML, "")
	_, err := f.svc.Update(context.Background(), "home", srv.URL)
	require.NoError(t, err)

	removed, err := f.svc.Prune(time.Hour)
	require.NoError(t, err)
	assert.Empty(t, removed)

	removed, err = f.svc.Prune(-time.Hour)
	require.NoError(t, err)
	assert.Equal(t, []string{"home"}, removed)

	_, err = f.store.Load("home")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestParseSubscription(t *testing.T) {
	proxies, err := ParseSubscription([]byte(subscriptionYAML))
	require.NoError(t, err)
	assert.Equal(t, []string{"HK 01", "JP 01"}, engine.ProxyNames(proxies))

	_, err = ParseSubscription([]byte("rules: []\n"))
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))
	assert.False(t, strings.Contains(err.Error(), "Base64"))

	_, err = ParseSubscription([]byte("- a\n- b\n"))
	assert.Equal(t, apperr.KindInvalid, apperr.KindOf(err))

	_, err = ParseSubscription(nil)
	assert.Contains(t, err.Error(), "Base64")

	_, err = ParseSubscription([]byte("proxies:\n"))
	assert.Equal(t, apperr.KindNotFound, apperr.KindOf(err))
}

func TestUpdateKeepsUpstreamFieldOrder(t *testing.T) {
	f := newFixture(t)
	srv := subscriptionServer(t, `
proxies:
  - name: HK 01
    type: vmess
    server: hk.example
    port: 443
    uuid: a3f1
    alterId: 0
`, "")

	_, err := f.svc.Update(context.Background(), "home", srv.URL)
	require.NoError(t, err)

	stored, err := f.store.Load("home")
	require.NoError(t, err)
	require.Len(t, stored.Proxies, 1)
	assert.Equal(t, []string{"name", "type", "server", "port", "uuid", "alterId"}, stored.Proxies[0].Keys())

	doc, _, err := f.svc.Generate(context.Background(), []string{"home"}, "")
	require.NoError(t, err)
	out, err := yaml.Marshal(doc)
	require.NoError(t, err)
	text := string(out)
	last := -1
	for _, field := range []string{"name: HK 01", "type: vmess", "server: hk.example", "port: 443", "uuid: a3f1", "alterId: 0"} {
		at := strings.Index(text, field)
		require.Greater(t, at, last, "field %q out of order in:\n%s", field, text)
		last = at
	}
}
