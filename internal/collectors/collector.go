package collectors

import (
	"context"
	"fmt"
	"time"
)

// Subscription is the raw body of a fetched subscription plus the
// subscription-userinfo header that came with it, if any.
type Subscription struct {
	Body     []byte
	UserInfo string
}

// Collector fetches a subscription. Keys prefixed with "_" in params are
// injected by the caller (timeouts, proxy, user agent); the rest come from
// the profile's config entry.
type Collector interface {
	Collect(ctx context.Context, params map[string]interface{}) (*Subscription, error)
}

type Factory func() Collector

var registry = make(map[string]Factory)

func Register(name string, factory Factory) {
	registry[name] = factory
}

func Get(name string) (Collector, error) {
	factory, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("collector plugin '%s' not found", name)
	}
	return factory(), nil
}

// String reads a string param, returning "" when absent or mistyped.
func String(params map[string]interface{}, key string) string {
	s, _ := params[key].(string)
	return s
}

// Bool reads a bool param.
func Bool(params map[string]interface{}, key string) bool {
	b, _ := params[key].(bool)
	return b
}

// Duration reads a time.Duration param, falling back to def.
func Duration(params map[string]interface{}, key string, def time.Duration) time.Duration {
	switch v := params[key].(type) {
	case time.Duration:
		if v > 0 {
			return v
		}
	case string:
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	}
	return def
}
