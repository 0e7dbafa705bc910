package engine

import (
	"strings"

	"proxygen/internal/logger"

	"gopkg.in/yaml.v3"
)

// SynthesizeRules validates and expands the rule template against the valid
// targets. Rules with a dangling target are skipped with a warning.
func SynthesizeRules(tmpl RuleTemplate, valid TargetSet, src ProviderSource) []string {
	providers := DecodeProviders(tmpl.Providers)
	rules := make([]string, 0, len(tmpl.Rules))

	for i := range tmpl.Rules {
		rule, ok := ruleString(&tmpl.Rules[i])
		if !ok || strings.TrimSpace(rule) == "" {
			continue
		}

		parts := splitFields(rule)
		kind := parts[0]

		if kind == RuleSetKind {
			if len(parts) < 3 {
				logger.Log.Warnf("Invalid RULE-SET format: %s", rule)
				continue
			}
			providerName, target := parts[1], parts[2]

			if !valid.Has(target) {
				logger.Log.Warnf("RULE-SET target '%s' invalid. Skipping.", target)
				continue
			}
			spec, ok := providers[providerName]
			if !ok {
				logger.Log.Warnf("Provider '%s' not found or invalid.", providerName)
				continue
			}

			rules = append(rules, ExpandProvider(spec, target, src)...)
			continue
		}

		target := ruleTarget(parts)
		if target == "" {
			// No checkable target: MATCH without one, or a short rule.
			rules = append(rules, rule)
			continue
		}
		if !valid.Has(target) {
			logger.Log.Warnf("Rule target '%s' invalid or missing. Skipping rule: %s", target, rule)
			continue
		}
		rules = append(rules, rule)
	}

	return rules
}

// ruleTarget returns the routing target of a non RULE-SET rule, or "" when
// the rule does not carry one.
func ruleTarget(parts []string) string {
	if parts[0] == CatchAllKind {
		if len(parts) >= 2 {
			return parts[1]
		}
		return ""
	}
	// TODO: short rules such as "GEOIP,CN" pass unchecked; decide whether to reject them.
	if len(parts) >= 3 {
		return parts[2]
	}
	return ""
}

// ruleString accepts only string scalars; anything else is silently skipped.
func ruleString(node *yaml.Node) (string, bool) {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" {
		return "", false
	}
	return node.Value, true
}
