package http

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"proxygen/internal/apperr"
	"proxygen/internal/collectors"
	"proxygen/internal/logger"

	"golang.org/x/net/proxy"
	"resty.dev/v3"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "Clash.Meta/1.18.1 Proxygen/0.1.0"
	userInfoHeader   = "Subscription-Userinfo"
)

type URLCollector struct{}

func (c *URLCollector) Collect(ctx context.Context, config map[string]interface{}) (*collectors.Subscription, error) {
	// 1. Get URL
	targetURL := collectors.String(config, "url")
	if targetURL == "" {
		return nil, apperr.New(apperr.KindInvalid, "missing 'url' in collector config")
	}
	if u, err := url.Parse(targetURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, apperr.Newf(apperr.KindInvalid, "invalid subscription url '%s'", targetURL)
	}

	// 2. Setup Client
	transport, err := newTransport(config)
	if err != nil {
		return nil, err
	}
	client := resty.NewWithClient(&http.Client{
		Transport: transport,
		Timeout:   collectors.Duration(config, "_timeout", defaultTimeout),
	})
	defer client.Close()

	ua := collectors.String(config, "_user_agent")
	if ua == "" {
		ua = defaultUserAgent
	}

	// 3. Fetch
	logger.Log.Debugf("Fetching URL: %s", targetURL)
	res, err := client.R().
		SetContext(ctx).
		SetHeader("User-Agent", ua).
		SetHeader("Accept", "application/x-yaml, text/yaml, text/plain").
		Get(targetURL)
	if err != nil {
		return nil, apperr.Upstream(http.StatusBadGateway, "network error fetching profile", err)
	}

	if !res.IsSuccess() {
		return nil, apperr.Upstream(res.StatusCode(),
			fmt.Sprintf("remote server error: %s", res.Status()), nil)
	}

	return &collectors.Subscription{
		Body:     res.Bytes(),
		UserInfo: res.Header().Get(userInfoHeader),
	}, nil
}

// newTransport builds the transport for the injected _proxy_url and
// _insecure params. http(s) proxies go through the standard proxy hook,
// anything else (socks5) through an x/net/proxy dialer.
func newTransport(config map[string]interface{}) (*http.Transport, error) {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if collectors.Bool(config, "_insecure") {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	proxyStr := collectors.String(config, "_proxy_url")
	if proxyStr == "" {
		return transport, nil
	}

	u, err := url.Parse(proxyStr)
	if err != nil {
		return nil, apperr.Wrap(err, apperr.KindInvalid, "invalid fetch proxy url")
	}

	switch u.Scheme {
	case "http", "https":
		transport.Proxy = http.ProxyURL(u)
	default:
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return nil, apperr.Wrap(err, apperr.KindInvalid, "unsupported fetch proxy url")
		}
		transport.Proxy = nil
		transport.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
			if cd, ok := d.(proxy.ContextDialer); ok {
				return cd.DialContext(ctx, network, addr)
			}
			return d.Dial(network, addr)
		}
	}
	logger.Log.Debugf("HTTP Collector using proxy: %s", proxyStr)
	return transport, nil
}

func init() {
	collectors.Register("http", func() collectors.Collector {
		return &URLCollector{}
	})
}
