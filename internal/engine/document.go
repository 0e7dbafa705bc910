package engine

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is a top-level config mapping that remembers key order.
// The zero value is an empty document.
type Document struct {
	keys   []string
	values map[string]interface{}
}

func NewDocument() *Document {
	return &Document{values: make(map[string]interface{})}
}

// Set stores v under key. New keys go to the end; existing keys keep their slot.
func (d *Document) Set(key string, v interface{}) {
	if d.values == nil {
		d.values = make(map[string]interface{})
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = v
}

func (d *Document) Get(key string) (interface{}, bool) {
	v, ok := d.values[key]
	return v, ok
}

func (d *Document) Keys() []string {
	return append([]string(nil), d.keys...)
}

func (d *Document) Len() int {
	return len(d.keys)
}

// Merge replaces each top-level key of d with the one from o, wholesale.
// Nested values are never merged and lists are never concatenated.
func (d *Document) Merge(o *Document) {
	if o == nil {
		return
	}
	for _, k := range o.keys {
		d.Set(k, o.values[k])
	}
}

func (d *Document) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, k := range d.keys {
		key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}
		val := &yaml.Node{}
		if err := val.Encode(d.values[k]); err != nil {
			return nil, fmt.Errorf("encode %q: %w", k, err)
		}
		node.Content = append(node.Content, key, val)
	}
	return node, nil
}

func (d *Document) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.DocumentNode && len(node.Content) > 0 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: document must be a mapping", node.Line)
	}

	d.keys = nil
	d.values = make(map[string]interface{}, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var key string
		if err := node.Content[i].Decode(&key); err != nil {
			return fmt.Errorf("line %d: %w", node.Content[i].Line, err)
		}
		var v interface{}
		if err := node.Content[i+1].Decode(&v); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
		d.Set(key, v)
	}
	return nil
}
