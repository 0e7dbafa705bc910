package engine

import (
	"strings"
)

const noResolve = "no-resolve"

// ProviderSource supplies the lines of a rule-provider file, with comments
// and blank lines already removed. A missing file yields no lines.
type ProviderSource interface {
	ProviderLines(path string) []string
}

// ProviderSourceFunc adapts a function to ProviderSource.
type ProviderSourceFunc func(path string) []string

func (f ProviderSourceFunc) ProviderLines(path string) []string {
	return f(path)
}

// ExpandProvider binds every line of the provider file to target, keeping a
// trailing no-resolve flag after the target.
func ExpandProvider(spec RuleProviderSpec, target string, src ProviderSource) []string {
	if spec.Path == "" || src == nil {
		return nil
	}

	lines := src.ProviderLines(spec.Path)
	expanded := make([]string, 0, len(lines))
	for _, line := range lines {
		parts := splitFields(line)

		suffix := ""
		if strings.EqualFold(parts[len(parts)-1], noResolve) {
			parts = parts[:len(parts)-1]
			suffix = "," + noResolve
		}

		expanded = append(expanded, strings.Join(parts, ",")+","+target+suffix)
	}
	return expanded
}

// splitFields splits a rule on commas and trims each field. It always
// returns at least one field.
func splitFields(s string) []string {
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
