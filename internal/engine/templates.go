package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"proxygen/internal/logger"

	"gopkg.in/yaml.v3"
)

// GroupsFile is the layout of proxy-groups.yaml.
type GroupsFile struct {
	ProxyGroups []yaml.Node `yaml:"proxy-groups"`
}

// RuleTemplate is the layout of rules.yaml. Entries stay raw so one bad
// item never poisons the whole file.
type RuleTemplate struct {
	Providers map[string]yaml.Node `yaml:"rule-providers"`
	Rules     []yaml.Node          `yaml:"rules"`
}

// RuleProviderSpec points at a line-oriented rule list in the rules dir.
type RuleProviderSpec struct {
	Type string
	Path string
}

type groupTemplateFields struct {
	Name      *string  `yaml:"name"`
	Type      *string  `yaml:"type"`
	Proxies   []string `yaml:"proxies"`
	Filter    *string  `yaml:"filter"`
	Removable *bool    `yaml:"removable"`
	URL       *string  `yaml:"url"`
	Interval  *laxInt  `yaml:"interval"`
	Tolerance *laxInt  `yaml:"tolerance"`
}

// laxInt accepts an integer written as a number, a whole float or a numeric
// string, so `interval: "300"` reads as 300.
type laxInt int

func (n *laxInt) UnmarshalYAML(node *yaml.Node) error {
	var v interface{}
	if err := node.Decode(&v); err != nil {
		return err
	}
	switch x := v.(type) {
	case int:
		*n = laxInt(x)
		return nil
	case float64:
		if x == math.Trunc(x) {
			*n = laxInt(x)
			return nil
		}
	case string:
		if i, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			*n = laxInt(i)
			return nil
		}
	}
	return fmt.Errorf("line %d: %q is not an integer", node.Line, node.Value)
}

func (n *laxInt) ptr() *int {
	if n == nil {
		return nil
	}
	i := int(*n)
	return &i
}

// ParseGroupTemplate validates one raw proxy-group entry.
func ParseGroupTemplate(node *yaml.Node) (GroupTemplate, error) {
	if node.Kind != yaml.MappingNode {
		return GroupTemplate{}, fmt.Errorf("line %d: proxy group must be a mapping", node.Line)
	}

	var f groupTemplateFields
	if err := node.Decode(&f); err != nil {
		return GroupTemplate{}, fmt.Errorf("line %d: %w", node.Line, err)
	}
	if f.Name == nil || *f.Name == "" {
		return GroupTemplate{}, fmt.Errorf("line %d: field 'name' is required", node.Line)
	}
	if f.Type == nil || *f.Type == "" {
		return GroupTemplate{}, fmt.Errorf("line %d: group '%s': field 'type' is required", node.Line, *f.Name)
	}

	t := GroupTemplate{
		Name:      *f.Name,
		Type:      *f.Type,
		Proxies:   f.Proxies,
		Interval:  f.Interval.ptr(),
		Tolerance: f.Tolerance.ptr(),
	}
	if f.Filter != nil {
		t.Filter = *f.Filter
	}
	if f.Removable != nil {
		t.Removable = *f.Removable
	}
	if f.URL != nil {
		t.URL = *f.URL
	}
	return t, nil
}

// DecodeGroupTemplates validates every entry, dropping invalid ones with a warning.
func DecodeGroupTemplates(nodes []yaml.Node) []GroupTemplate {
	templates := make([]GroupTemplate, 0, len(nodes))
	for i := range nodes {
		t, err := ParseGroupTemplate(&nodes[i])
		if err != nil {
			logger.Log.Warnf("Invalid proxy group configuration: %v", err)
			continue
		}
		templates = append(templates, t)
	}
	return templates
}

type providerFields struct {
	Type *string `yaml:"type"`
	Path *string `yaml:"path"`
}

// ParseRuleProvider validates one rule-provider entry. Both fields must be present.
func ParseRuleProvider(node *yaml.Node) (RuleProviderSpec, error) {
	if node.Kind != yaml.MappingNode {
		return RuleProviderSpec{}, fmt.Errorf("rule provider must be a mapping")
	}
	var f providerFields
	if err := node.Decode(&f); err != nil {
		return RuleProviderSpec{}, err
	}
	if f.Type == nil {
		return RuleProviderSpec{}, fmt.Errorf("field 'type' is required")
	}
	if f.Path == nil {
		return RuleProviderSpec{}, fmt.Errorf("field 'path' is required")
	}
	return RuleProviderSpec{Type: *f.Type, Path: *f.Path}, nil
}

// DecodeProviders validates every rule provider, dropping invalid ones with a warning.
func DecodeProviders(nodes map[string]yaml.Node) map[string]RuleProviderSpec {
	providers := make(map[string]RuleProviderSpec, len(nodes))
	for name, node := range nodes {
		node := node
		spec, err := ParseRuleProvider(&node)
		if err != nil {
			logger.Log.Warnf("Invalid RuleProvider '%s': %v", name, err)
			continue
		}
		providers[name] = spec
	}
	return providers
}
