package proxypool

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/xkilldash9x/mimic/internal/network"
)

// ProbeResult is what a successful probe observed.
type ProbeResult struct {
	EchoedIP string
	Latency  time.Duration
}

// Prober checks a single proxy against an IP-echo endpoint.
type Prober interface {
	Probe(ctx context.Context, rec Record) (ProbeResult, error)
}

// HTTPProber sends one GET through the proxy to EchoURL.
type HTTPProber struct {
	EchoURL string
	Timeout time.Duration
}

// Probe issues the request through rec and extracts the IP the echo service saw.
func (p *HTTPProber) Probe(ctx context.Context, rec Record) (ProbeResult, error) {
	proxyURL, err := rec.URL()
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %v", ErrVerificationFailure, err)
	}

	cfg := network.NewDefaultClientConfig()
	cfg.ProxyURL = proxyURL
	cfg.RequestTimeout = p.Timeout
	cfg.DisableKeepAlives = true
	cfg.ForceHTTP2 = false
	cfg.IgnoreTLSErrors = true
	client := network.NewClient(cfg)
	defer client.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.EchoURL, nil)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %v", ErrVerificationFailure, err)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: %v", ErrVerificationFailure, err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return ProbeResult{}, fmt.Errorf("%w: echo returned status %d", ErrVerificationFailure, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return ProbeResult{}, fmt.Errorf("%w: reading echo: %v", ErrVerificationFailure, err)
	}

	ip := parseEcho(body)
	if ip == "" {
		return ProbeResult{}, fmt.Errorf("%w: echo body carried no address", ErrVerificationFailure)
	}
	return ProbeResult{EchoedIP: ip, Latency: latency}, nil
}

// parseEcho accepts {"ip": ...}, httpbin's {"origin": ...} or a bare address.
func parseEcho(body []byte) string {
	var payload struct {
		IP     string `json:"ip"`
		Origin string `json:"origin"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.IP != "" {
			return strings.TrimSpace(payload.IP)
		}
		// httpbin lists every hop; the first one is the client.
		first, _, _ := strings.Cut(payload.Origin, ",")
		return strings.TrimSpace(first)
	}
	candidate := strings.TrimSpace(string(body))
	if net.ParseIP(candidate) != nil {
		return candidate
	}
	return ""
}
