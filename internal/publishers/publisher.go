package publishers

import (
	"context"
	"fmt"

	"proxygen/internal/engine"
	"proxygen/internal/subinfo"
)

// Output is one generated config ready to be published.
type Output struct {
	Name     string // First profile name, used for file names and messages
	Profiles []string
	Document *engine.Document
	Info     subinfo.Info
}

type Publisher interface {
	Publish(ctx context.Context, out *Output, config map[string]interface{}) error
}

type Factory func() Publisher

var registry = make(map[string]Factory)

func Register(name string, factory Factory) {
	registry[name] = factory
}

func Get(name string) (Publisher, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("publisher plugin '%s' not found", name)
	}
	return factory(), nil
}
