package engine

import (
	"strings"
	"time"

	"proxygen/internal/logger"

	"github.com/dlclark/regexp2"
)

// filterTimeout bounds a single backtracking regex match.
const filterTimeout = 500 * time.Millisecond

// groupSet keeps groups keyed by name in first-insertion order.
// Re-inserting a name replaces the group but keeps its position.
type groupSet struct {
	order  []string
	byName map[string]*Group
}

func newGroupSet() *groupSet {
	return &groupSet{byName: make(map[string]*Group)}
}

func (s *groupSet) put(g *Group) {
	if _, ok := s.byName[g.Name]; !ok {
		s.order = append(s.order, g.Name)
	}
	s.byName[g.Name] = g
}

func (s *groupSet) get(name string) (*Group, bool) {
	g, ok := s.byName[name]
	return g, ok
}

func (s *groupSet) remove(name string) bool {
	if _, ok := s.byName[name]; !ok {
		return false
	}
	delete(s.byName, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

func (s *groupSet) list() []Group {
	out := make([]Group, 0, len(s.order))
	for _, n := range s.order {
		out = append(out, *s.byName[n])
	}
	return out
}

// compileFilter compiles a group filter case-insensitively. Patterns follow
// Perl/Python syntax, so lookarounds like ^(?!.*Expire) are accepted.
func compileFilter(expr string) (*regexp2.Regexp, error) {
	re, err := regexp2.Compile(pythonGroups(expr), regexp2.IgnoreCase)
	if err != nil {
		return nil, err
	}
	re.MatchTimeout = filterTimeout
	return re, nil
}

// pythonGroups rewrites Python named groups (?P<n>...) and backreferences
// (?P=n) into the (?<n>...) and \k<n> forms regexp2 parses. Escaped text is
// left alone.
func pythonGroups(expr string) string {
	if !strings.Contains(expr, "(?P") {
		return expr
	}
	var b strings.Builder
	for i := 0; i < len(expr); {
		switch {
		case expr[i] == '\\' && i+1 < len(expr):
			b.WriteString(expr[i : i+2])
			i += 2
		case strings.HasPrefix(expr[i:], "(?P<"):
			b.WriteString("(?<")
			i += 4
		case strings.HasPrefix(expr[i:], "(?P="):
			end := strings.IndexByte(expr[i:], ')')
			if end < 0 {
				b.WriteString(expr[i:])
				i = len(expr)
				continue
			}
			b.WriteString(`\k<` + expr[i+4:i+end] + `>`)
			i += end + 1
		default:
			b.WriteByte(expr[i])
			i++
		}
	}
	return b.String()
}

// SynthesizeGroups resolves templates against the ordered proxy names and
// returns the pruned groups in template order. Bad input degrades to
// warnings; it never fails.
func SynthesizeGroups(templates []GroupTemplate, proxyNames []string) []Group {
	known := make(map[string]bool, len(proxyNames))
	for _, n := range proxyNames {
		known[n] = true
	}

	active := newGroupSet()
	used := make(map[string]bool)

	for _, t := range templates {
		g := &Group{
			Name:      t.Name,
			Type:      t.Type,
			Proxies:   append([]string(nil), t.Proxies...),
			URL:       t.URL,
			Interval:  t.Interval,
			Tolerance: t.Tolerance,
			Removable: t.Removable,
		}

		// 1. Expand filter
		if t.Filter != "" {
			re, err := compileFilter(t.Filter)
			if err != nil {
				logger.Log.Warnf("Invalid regex '%s' in group '%s': %v", t.Filter, t.Name, err)
			} else {
				for _, n := range proxyNames {
					ok, err := re.MatchString(n)
					if err != nil {
						logger.Log.Warnf("Regex '%s' in group '%s' aborted on '%s': %v", t.Filter, t.Name, n, err)
						continue
					}
					if ok {
						g.Proxies = append(g.Proxies, n)
						used[n] = true
					}
				}
			}
		}

		// 2. Track explicit proxies
		for _, p := range g.Proxies {
			if known[p] {
				used[p] = true
			}
		}

		g.Proxies = dedupe(g.Proxies)
		active.put(g)
	}

	// 3. Route unclassified proxies
	var unclassified []string
	for _, n := range proxyNames {
		if !used[n] {
			unclassified = append(unclassified, n)
		}
	}
	if len(unclassified) > 0 {
		if g, ok := active.get(UnclassifiedGroup); ok {
			logger.Log.Infof("Adding %d unclassified proxies to %s group.", len(unclassified), UnclassifiedGroup)
			g.Proxies = dedupe(append(g.Proxies, unclassified...))
		} else {
			logger.Log.Warnf("Found %d unclassified proxies but '%s' group does not exist.", len(unclassified), UnclassifiedGroup)
		}
	}

	// 4. Prune to a fixed point
	pruneGroups(active, proxyNames)

	return active.list()
}
