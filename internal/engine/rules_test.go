package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func ruleTemplate(t *testing.T, src string) RuleTemplate {
	t.Helper()
	var tmpl RuleTemplate
	require.NoError(t, yaml.Unmarshal([]byte(src), &tmpl))
	return tmpl
}

// mapSource serves provider files from memory.
func mapSource(files map[string][]string) ProviderSource {
	return ProviderSourceFunc(func(path string) []string {
		return files[path]
	})
}

func TestExpandProvider(t *testing.T) {
	src := mapSource(map[string][]string{
		"providers/ads.list": {"DOMAIN,example.com", "DOMAIN,example.org,no-resolve"},
		"providers/ip.list":  {"IP-CIDR, 10.0.0.0/8 , No-Resolve", " DOMAIN-SUFFIX , lan "},
	})

	t.Run("binds target before no-resolve", func(t *testing.T) {
		got := ExpandProvider(RuleProviderSpec{Type: "file", Path: "providers/ads.list"}, "PROXY", src)
		assert.Equal(t, []string{"DOMAIN,example.com,PROXY", "DOMAIN,example.org,PROXY,no-resolve"}, got)
	})

	t.Run("trims fields and normalizes flag", func(t *testing.T) {
		got := ExpandProvider(RuleProviderSpec{Type: "file", Path: "providers/ip.list"}, "DIRECT", src)
		assert.Equal(t, []string{"IP-CIDR,10.0.0.0/8,DIRECT,no-resolve", "DOMAIN-SUFFIX,lan,DIRECT"}, got)
	})

	t.Run("empty path", func(t *testing.T) {
		assert.Empty(t, ExpandProvider(RuleProviderSpec{Type: "file"}, "PROXY", src))
	})

	t.Run("missing file", func(t *testing.T) {
		assert.Empty(t, ExpandProvider(RuleProviderSpec{Type: "file", Path: "nope"}, "PROXY", src))
	})
}

func TestSynthesizeRules(t *testing.T) {
	valid := NewTargetSet([]string{"node-1"}, []Group{{Name: "PROXY"}, {Name: "Streaming"}})
	src := mapSource(map[string][]string{
		"./providers/ads.list": {"DOMAIN,ads.example.com", "DOMAIN-KEYWORD,tracker,no-resolve"},
	})

	tmpl := ruleTemplate(t, `
rule-providers:
  ads:
    type: file
    path: ./providers/ads.list
  broken:
    type: file
rules:
  - DOMAIN-SUFFIX,google.com,PROXY
  - RULE-SET,ads,REJECT
  - DOMAIN,netflix.com,Gone
  - RULE-SET,ads,Gone
  - RULE-SET,broken,PROXY
  - RULE-SET,unknown,PROXY
  - RULE-SET,ads
  - ""
  - "   "
  - 42
  - ~
  - [DOMAIN, x, PROXY]
  - GEOIP,CN
  - DOMAIN,short.example,
  - IP-CIDR,1.1.1.1/32,node-1,no-resolve
  - MATCH,Nowhere
  - MATCH
  - MATCH,Streaming
`)

	got := SynthesizeRules(tmpl, valid, src)
	assert.Equal(t, []string{
		"DOMAIN-SUFFIX,google.com,PROXY",
		"DOMAIN,ads.example.com,REJECT",
		"DOMAIN-KEYWORD,tracker,REJECT,no-resolve",
		"GEOIP,CN",
		"DOMAIN,short.example,",
		"IP-CIDR,1.1.1.1/32,node-1,no-resolve",
		"MATCH",
		"MATCH,Streaming",
	}, got)
}

func TestSynthesizeRulesKeepsOriginalText(t *testing.T) {
	valid := NewTargetSet(nil, []Group{{Name: "PROXY"}})
	tmpl := ruleTemplate(t, `
rules:
  - "DOMAIN, spaced.example , PROXY"
`)

	got := SynthesizeRules(tmpl, valid, nil)
	assert.Equal(t, []string{"DOMAIN, spaced.example , PROXY"}, got)
}

func TestSynthesizeRulesEmptyTemplate(t *testing.T) {
	got := SynthesizeRules(RuleTemplate{}, NewTargetSet(nil, nil), nil)
	assert.Empty(t, got)
}

func TestParseRuleProvider(t *testing.T) {
	var providers map[string]yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`
good: {type: http, path: ./a.list}
empty-path: {type: file, path: ""}
no-type: {path: ./b.list}
scalar: nope
`), &providers))

	got := DecodeProviders(providers)
	assert.Len(t, got, 2)
	assert.Equal(t, RuleProviderSpec{Type: "http", Path: "./a.list"}, got["good"])
	assert.Equal(t, "", got["empty-path"].Path)
}
