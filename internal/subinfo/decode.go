package subinfo

import (
	"strconv"
	"strings"
	"time"

	"proxygen/internal/engine"
	"proxygen/internal/logger"

	"github.com/dlclark/regexp2"
)

var (
	trafficPattern = regexp2.MustCompile(
		`(?:Traffic|流量).*?([0-9]+(?:\.[0-9]+)?)\s*(GB|G|MB|M).*?([0-9]+(?:\.[0-9]+)?)\s*(GB|G|MB|M)`,
		regexp2.IgnoreCase)
	expirePattern = regexp2.MustCompile(
		`(?:Expire|到期|过期).*?([0-9]{4}-[0-9]{2}-[0-9]{2})`,
		regexp2.IgnoreCase)
)

func toBytes(val, unit string) int64 {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0
	}
	mult := float64(mib)
	if strings.Contains(strings.ToUpper(unit), "G") {
		mult = gib
	}
	return int64(f * mult)
}

// Decode extracts whatever metadata one proxy name carries. Traffic sets
// upload to "0": used traffic is a single figure once folded into a label.
func Decode(name string) Info {
	var info Info

	if m, _ := trafficPattern.FindStringMatch(name); m != nil {
		g := m.Groups()
		info.Upload = "0"
		info.Download = strconv.FormatInt(toBytes(g[1].String(), g[2].String()), 10)
		info.Total = strconv.FormatInt(toBytes(g[3].String(), g[4].String()), 10)
	}

	if m, _ := expirePattern.FindStringMatch(name); m != nil {
		date := m.GroupByNumber(1).String()
		t, err := time.ParseInLocation(dateLayout, date, time.UTC)
		if err != nil {
			logger.Log.Warnf("Invalid expire date format in proxy name: %s", name)
		} else {
			info.Expire = strconv.FormatInt(t.Unix(), 10)
		}
	}

	return info
}

// Fold decodes names in order. A later match overwrites an earlier one for
// the same field.
func Fold(names []string) Info {
	var acc Info
	for _, name := range names {
		acc = acc.overlay(Decode(name))
	}
	return acc
}

// Codec is the narrow seam between the profile service and the name-based
// metadata protocol.
type Codec interface {
	Inject(proxies []engine.Proxy, header string) ([]engine.Proxy, bool)
	Extract(proxies []engine.Proxy) Info
}

// NameCodec stores metadata in the name of a placeholder proxy.
type NameCodec struct{}

func (NameCodec) Inject(proxies []engine.Proxy, header string) ([]engine.Proxy, bool) {
	return Inject(proxies, header)
}

func (NameCodec) Extract(proxies []engine.Proxy) Info {
	names := make([]string, 0, len(proxies))
	for _, p := range proxies {
		names = append(names, p.Name())
	}
	return Fold(names)
}
