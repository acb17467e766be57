// Package proxypool discovers, verifies, scores and rotates upstream proxies.
package proxypool

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/mimic/internal/network"
)

var (
	// ErrSourceUnavailable marks a discovery source that could not be fetched or parsed.
	ErrSourceUnavailable = errors.New("proxy source unavailable")
	// ErrVerificationFailure marks a failed probe through a proxy.
	ErrVerificationFailure = errors.New("proxy verification failed")
	// ErrNoProxyAvailable is returned by Select when no record qualifies.
	ErrNoProxyAvailable = errors.New("no proxy available")
)

// Protocol is the upstream proxy protocol.
type Protocol string

const (
	ProtocolHTTP   Protocol = "http"
	ProtocolHTTPS  Protocol = "https"
	ProtocolSOCKS5 Protocol = "socks5"
)

// ParseProtocol normalizes a protocol string; empty input means HTTP.
func ParseProtocol(s string) (Protocol, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "http":
		return ProtocolHTTP, true
	case "https":
		return ProtocolHTTPS, true
	case "socks5", "socks5h", "socks":
		return ProtocolSOCKS5, true
	}
	return "", false
}

// Anonymity is the verified anonymity class of a proxy.
type Anonymity string

const (
	AnonymityHigh        Anonymity = "high"
	AnonymityTransparent Anonymity = "transparent"
	AnonymityUnknown     Anonymity = "unknown"
)

// Selection thresholds.
const (
	MaxFailCount = 3
	MaxLatency   = 2 * time.Second
	topN         = 5
)

// Record is a single proxy and its running verification statistics.
type Record struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	Protocol     Protocol      `json:"protocol"`
	Country      string        `json:"country,omitempty"`
	Anonymity    Anonymity     `json:"anonymity"`
	Latency      time.Duration `json:"latency"`
	LastChecked  time.Time     `json:"lastChecked"`
	FailCount    int           `json:"failCount"`
	SuccessCount int           `json:"successCount"`
	Source       string        `json:"source"`
}

// Key identifies a record within the pool.
func (r Record) Key() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// URL returns the proxy URL suitable for an HTTP transport or a browser flag.
func (r Record) URL() (*url.URL, error) {
	return network.ProxyURL(string(r.Protocol), r.Host, r.Port)
}

// Address renders the record as "protocol://host:port".
func (r Record) Address() string {
	u, err := r.URL()
	if err != nil {
		return ""
	}
	return u.String()
}

// Eligible reports whether the record may be handed out by Select.
func (r Record) Eligible() bool {
	return r.FailCount < MaxFailCount && r.Latency < MaxLatency && r.Anonymity == AnonymityHigh
}

// parseHostPort parses "host:port" or "scheme://host:port" into a record.
func parseHostPort(s string, fallback Protocol) (Record, bool) {
	s = strings.TrimSpace(s)
	proto := fallback
	if i := strings.Index(s, "://"); i >= 0 {
		p, ok := ParseProtocol(s[:i])
		if !ok {
			return Record{}, false
		}
		proto, s = p, s[i+3:]
	}
	host, portStr, err := net.SplitHostPort(s)
	if err != nil || host == "" {
		return Record{}, false
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return Record{}, false
	}
	return Record{Host: host, Port: port, Protocol: proto, Anonymity: AnonymityUnknown}, true
}
