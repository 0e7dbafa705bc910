package engine

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Proxy is an opaque proxy node. Only "name" is interpreted. The mapping is
// kept as parsed so upstream key order and scalar styles survive a round trip.
type Proxy struct {
	node *yaml.Node
}

// NewProxy builds a proxy from alternating keys and values, in that order.
// Non-string keys are skipped.
func NewProxy(kv ...interface{}) Proxy {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		val := &yaml.Node{}
		if err := val.Encode(kv[i+1]); err != nil {
			val = &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: key}, val)
	}
	return Proxy{node: node}
}

func (p Proxy) lookup(key string) *yaml.Node {
	if p.node == nil {
		return nil
	}
	for i := 0; i+1 < len(p.node.Content); i += 2 {
		if p.node.Content[i].Value == key {
			return p.node.Content[i+1]
		}
	}
	return nil
}

// Name returns the node name, or "" when missing or not a string.
func (p Proxy) Name() string {
	name, _ := p.name()
	return name
}

func (p Proxy) name() (string, bool) {
	v := p.lookup("name")
	if v == nil || v.Kind != yaml.ScalarNode || v.ShortTag() != "!!str" {
		return "", false
	}
	return v.Value, true
}

// Get decodes the value stored under key.
func (p Proxy) Get(key string) (interface{}, bool) {
	v := p.lookup(key)
	if v == nil {
		return nil, false
	}
	var out interface{}
	if err := v.Decode(&out); err != nil {
		return nil, false
	}
	return out, true
}

// Keys returns the field names in their stored order.
func (p Proxy) Keys() []string {
	if p.node == nil {
		return nil
	}
	keys := make([]string, 0, len(p.node.Content)/2)
	for i := 0; i+1 < len(p.node.Content); i += 2 {
		keys = append(keys, p.node.Content[i].Value)
	}
	return keys
}

func (p Proxy) MarshalYAML() (interface{}, error) {
	if p.node == nil {
		return map[string]interface{}{}, nil
	}
	return p.node, nil
}

func (p *Proxy) UnmarshalYAML(node *yaml.Node) error {
	n := detach(node)
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: proxy must be a mapping", node.Line)
	}
	p.node = n
	return nil
}

// ParseProxy accepts one raw proxies-list entry. Entries that are not
// mappings are rejected.
func ParseProxy(node *yaml.Node) (Proxy, bool) {
	var p Proxy
	if err := p.UnmarshalYAML(node); err != nil {
		return Proxy{}, false
	}
	return p, true
}

// detach copies n with aliases resolved and anchors and comments dropped, so
// the node can be emitted on its own.
func detach(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	c := *n
	c.Anchor = ""
	c.HeadComment, c.LineComment, c.FootComment = "", "", ""
	if len(n.Content) > 0 {
		c.Content = make([]*yaml.Node, len(n.Content))
		for i, child := range n.Content {
			c.Content[i] = detach(child)
		}
	}
	return &c
}

// ProxyNames returns the names of all named proxies in order.
func ProxyNames(proxies []Proxy) []string {
	names := make([]string, 0, len(proxies))
	for _, p := range proxies {
		if name, ok := p.name(); ok {
			names = append(names, name)
		}
	}
	return names
}
