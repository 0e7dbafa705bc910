// Package subinfo carries subscription quota and expiry through proxy names.
//
// Clash profiles have no field for subscription metadata, so on ingest the
// subscription-userinfo header is rendered into the name of a placeholder
// proxy, and on every generation the names are scanned to recover it.
package subinfo

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"proxygen/internal/engine"
	"proxygen/internal/logger"
)

const (
	gib = 1 << 30
	mib = 1 << 20

	dateLayout = "2006-01-02"
)

// Usage is a parsed subscription-userinfo header.
type Usage struct {
	Upload   int64
	Download int64
	Total    int64
	Expire   int64 // Unix seconds, 0 when the plan never expires
}

// Info is the metadata recovered from proxy names. Fields are decimal
// strings; "" means not seen.
type Info struct {
	Upload   string
	Download string
	Total    string
	Expire   string
}

// Complete reports whether enough is known to emit a header.
func (i Info) Complete() bool {
	return i.Upload != "" && i.Expire != ""
}

// Header renders the subscription-userinfo header value.
func (i Info) Header() string {
	expire := i.Expire
	if expire == "" {
		expire = "0"
	}
	return fmt.Sprintf("upload=%s; download=%s; total=%s; expire=%s", i.Upload, i.Download, i.Total, expire)
}

// overlay copies every field set in o over i.
func (i Info) overlay(o Info) Info {
	if o.Upload != "" {
		i.Upload = o.Upload
	}
	if o.Download != "" {
		i.Download = o.Download
	}
	if o.Total != "" {
		i.Total = o.Total
	}
	if o.Expire != "" {
		i.Expire = o.Expire
	}
	return i
}

// ParseHeader parses "upload=1; download=2; total=3; expire=4".
// Parts without '=' are ignored; a non-integer value is an error.
func ParseHeader(header string) (Usage, error) {
	var u Usage
	for _, part := range strings.Split(header, ";") {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return Usage{}, fmt.Errorf("field %q: %w", strings.TrimSpace(k), err)
		}
		switch strings.TrimSpace(k) {
		case "upload":
			u.Upload = n
		case "download":
			u.Download = n
		case "total":
			u.Total = n
		case "expire":
			u.Expire = n
		}
	}
	return u, nil
}

// Label renders the human-readable name of the placeholder node.
func Label(u Usage) string {
	used := float64(u.Upload+u.Download) / gib
	total := float64(u.Total) / gib

	label := fmt.Sprintf("Traffic: %.2f GB / %.2f GB", used, total)
	if u.Expire != 0 {
		label += " | Expire: " + time.Unix(u.Expire, 0).UTC().Format(dateLayout)
	}
	return label
}

// Node wraps the label in a non-functional shadowsocks node.
func Node(u Usage) engine.Proxy {
	return engine.NewProxy(
		"name", Label(u),
		"type", "ss",
		"server", "127.0.0.1",
		"port", 1234,
		"cipher", "aes-128-gcm",
		"password", "dummy",
	)
}

var metadataKeywords = []string{"Traffic", "流量", "Expire", "到期"}

// IsMetadataNode reports whether p looks like a placeholder node.
func IsMetadataNode(p engine.Proxy) bool {
	name := p.Name()
	for _, kw := range metadataKeywords {
		if strings.Contains(name, kw) {
			return true
		}
	}
	return false
}

// Inject replaces any previous placeholder with one built from header and
// puts it first. An unparseable header leaves proxies untouched.
func Inject(proxies []engine.Proxy, header string) ([]engine.Proxy, bool) {
	u, err := ParseHeader(header)
	if err != nil {
		logger.Log.Warnf("Failed to parse subscription header '%s': %v", header, err)
		return proxies, false
	}

	out := make([]engine.Proxy, 0, len(proxies)+1)
	out = append(out, Node(u))
	for _, p := range proxies {
		if IsMetadataNode(p) {
			continue
		}
		out = append(out, p)
	}
	return out, true
}
