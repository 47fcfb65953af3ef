package egress

import (
	"fmt"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Direct is the empty egress path: requests leave without a proxy.
const Direct = ""

// Selector picks one egress path per account per cycle.
type Selector struct {
	// Intn returns a value in [0, n). Defaults to math/rand.
	Intn func(n int) int
}

// Select returns Direct for an empty list, otherwise one entry chosen
// uniformly at random.
func (s Selector) Select(paths []string) string {
	if len(paths) == 0 {
		return Direct
	}
	intn := s.Intn
	if intn == nil {
		intn = rand.Intn
	}
	return paths[intn(len(paths))]
}

// Select uses the default random source.
func Select(paths []string) string {
	return Selector{}.Select(paths)
}

var supportedSchemes = map[string]bool{"http": true, "https": true, "socks5": true}

// ParseProxy accepts http, https and socks5 URIs. A value without a scheme
// (host:port, user:pass@host:port) is treated as http.
func ParseProxy(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("empty proxy")
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid proxy %q: %w", redact(raw), err)
	}
	if !supportedSchemes[strings.ToLower(u.Scheme)] {
		return nil, fmt.Errorf("unsupported proxy scheme %q", u.Scheme)
	}
	if u.Host == "" || u.Port() == "" {
		return nil, fmt.Errorf("proxy %q must include host and port", redact(raw))
	}
	return u, nil
}

// Label returns a log-safe form of the egress path.
func Label(proxy string) string {
	if proxy == Direct {
		return "direct"
	}
	u, err := ParseProxy(proxy)
	if err != nil {
		return "invalid"
	}
	return u.Scheme + "://" + u.Host
}

func redact(raw string) string {
	at := strings.LastIndex(raw, "@")
	if at < 0 {
		return raw
	}
	scheme := ""
	if i := strings.Index(raw, "://"); i >= 0 && i < at {
		scheme = raw[:i+3]
	}
	return scheme + "***@" + raw[at+1:]
}

// NewHTTPClient builds a client routed through proxy, or direct when proxy is
// empty. timeout bounds every request at the transport so abandoned calls do
// not linger.
func NewHTTPClient(proxy string, timeout time.Duration) (*http.Client, error) {
	transport := &http.Transport{
		Proxy: nil,
		DialContext: (&net.Dialer{
			Timeout:   30 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          20,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: time.Second,
	}
	if proxy != Direct {
		u, err := ParseProxy(proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Transport: transport, Timeout: timeout}, nil
}
