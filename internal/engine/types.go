package engine

// Built-in routing targets that are always valid.
const (
	SinkDirect   = "DIRECT"
	SinkReject   = "REJECT"
	SinkNoHydra  = "NO-HYDRA"
	CatchAllKind = "MATCH"
	RuleSetKind  = "RULE-SET"

	// UnclassifiedGroup receives every proxy no other group claimed.
	UnclassifiedGroup = "PROXY"
)

var builtinSinks = []string{SinkDirect, SinkReject, SinkNoHydra}

// GroupTemplate is a validated proxy-group template entry.
type GroupTemplate struct {
	Name      string
	Type      string
	Proxies   []string
	Filter    string
	Removable bool
	URL       string
	Interval  *int
	Tolerance *int
}

// Group is a synthesized proxy group as emitted in the document.
type Group struct {
	Name      string   `yaml:"name"`
	Type      string   `yaml:"type"`
	Proxies   []string `yaml:"proxies"`
	URL       string   `yaml:"url,omitempty"`
	Interval  *int     `yaml:"interval,omitempty"`
	Tolerance *int     `yaml:"tolerance,omitempty"`

	// Removable groups are deleted rather than filtered when a reference dangles.
	Removable bool `yaml:"-"`
}

// TargetSet is the set of names a group entry or rule may point at.
type TargetSet map[string]struct{}

func (s TargetSet) Has(name string) bool {
	_, ok := s[name]
	return ok
}

// NewTargetSet builds proxies ∪ sinks ∪ group names.
func NewTargetSet(proxyNames []string, groups []Group) TargetSet {
	set := make(TargetSet, len(proxyNames)+len(groups)+len(builtinSinks))
	for _, n := range builtinSinks {
		set[n] = struct{}{}
	}
	for _, n := range proxyNames {
		set[n] = struct{}{}
	}
	for _, g := range groups {
		set[g.Name] = struct{}{}
	}
	return set
}

func dedupe(names []string) []string {
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		out = append(out, n)
	}
	return out
}
