package engine

import (
	"proxygen/internal/logger"

	"gopkg.in/yaml.v3"
)

// Document defaults, emitted ahead of the synthesized sections.
const (
	DefaultMixedPort          = 7890
	DefaultAllowLAN           = false
	DefaultMode               = "Rule"
	DefaultLogLevel           = "info"
	DefaultExternalController = ":9090"
)

// Assemble builds the final document. When overrides is non-empty, each of
// its top-level keys replaces the assembled one wholesale.
func Assemble(proxies []Proxy, groups []Group, rules []string, overrides *Document) *Document {
	if proxies == nil {
		proxies = []Proxy{}
	}
	if groups == nil {
		groups = []Group{}
	}
	if rules == nil {
		rules = []string{}
	}

	doc := NewDocument()
	doc.Set("mixed-port", DefaultMixedPort)
	doc.Set("allow-lan", DefaultAllowLAN)
	doc.Set("mode", DefaultMode)
	doc.Set("log-level", DefaultLogLevel)
	doc.Set("external-controller", DefaultExternalController)
	doc.Set("proxies", proxies)
	doc.Set("proxy-groups", groups)
	doc.Set("rules", rules)

	if overrides != nil && overrides.Len() > 0 {
		logger.Log.Infof("Applying override configuration (keys: %v)", overrides.Keys())
		doc.Merge(overrides)
	}
	return doc
}

// Input is one frozen snapshot of everything a generation needs.
type Input struct {
	Proxies        []Proxy
	GroupTemplates []yaml.Node
	Rules          RuleTemplate
	Override       *Document
}

// Stats summarizes what pruning did to the templates.
type Stats struct {
	Proxies        int
	GroupTemplates int
	Groups         int
	RuleTemplates  int
	Rules          int
}

// Generate runs groups → rules → assembly. It is pure apart from reading
// provider files through src, and is safe to call concurrently.
func Generate(in Input, src ProviderSource) (*Document, Stats) {
	names := ProxyNames(in.Proxies)

	// 1. Groups
	templates := DecodeGroupTemplates(in.GroupTemplates)
	groups := SynthesizeGroups(templates, names)

	// 2. Rules against the surviving groups
	valid := NewTargetSet(names, groups)
	rules := SynthesizeRules(in.Rules, valid, src)

	// 3. Assemble
	doc := Assemble(in.Proxies, groups, rules, in.Override)

	return doc, Stats{
		Proxies:        len(in.Proxies),
		GroupTemplates: len(in.GroupTemplates),
		Groups:         len(groups),
		RuleTemplates:  len(in.Rules.Rules),
		Rules:          len(rules),
	}
}
