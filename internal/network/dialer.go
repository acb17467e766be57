// File: internal/network/dialer.go
package network

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"golang.org/x/net/proxy"
)

// DialerConfig holds configuration for the low-level TCP dialer.
type DialerConfig struct {
	Timeout   time.Duration
	KeepAlive time.Duration
	// NoDelay controls TCP_NODELAY.
	NoDelay  bool
	Resolver *net.Resolver
	// SOCKSProxy, when set, routes every connection through a SOCKS5 server.
	// HTTP(S) proxies are handled by the transport's CONNECT support instead.
	SOCKSProxy *url.URL
}

// NewDialerConfig returns dialer defaults tuned for short-lived probe connections.
func NewDialerConfig() *DialerConfig {
	return &DialerConfig{
		Timeout:   DefaultDialTimeout,
		KeepAlive: DefaultKeepAliveInterval,
		NoDelay:   true,
		Resolver:  net.DefaultResolver,
	}
}

// Clone returns a copy that can be modified without affecting the original.
func (c *DialerConfig) Clone() *DialerConfig {
	if c == nil {
		return NewDialerConfig()
	}
	clone := *c
	if c.SOCKSProxy != nil {
		u := *c.SOCKSProxy
		clone.SOCKSProxy = &u
	}
	return &clone
}

// DialTCPContext establishes a TCP connection, through the SOCKS5 proxy if one is configured.
// Suitable for http.Transport.DialContext.
func DialTCPContext(ctx context.Context, network, address string, config *DialerConfig) (net.Conn, error) {
	if config == nil {
		config = NewDialerConfig()
	}
	if config.SOCKSProxy != nil {
		return dialViaSOCKS5(ctx, network, address, config)
	}
	return dialDirect(ctx, network, address, config)
}

func dialDirect(ctx context.Context, network, address string, config *DialerConfig) (net.Conn, error) {
	dialer := &net.Dialer{
		Timeout:       config.Timeout,
		KeepAlive:     config.KeepAlive,
		FallbackDelay: 300 * time.Millisecond,
		Resolver:      config.Resolver,
	}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("tcp dial failed: %w", err)
	}
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(config.NoDelay); err != nil {
			_ = tcpConn.Close()
			return nil, fmt.Errorf("failed to set TCP NoDelay: %w", err)
		}
	}
	return conn, nil
}

// dialViaSOCKS5 performs the SOCKS5 handshake on top of a direct connection to the proxy.
func dialViaSOCKS5(ctx context.Context, network, address string, config *DialerConfig) (net.Conn, error) {
	var auth *proxy.Auth
	if u := config.SOCKSProxy.User; u != nil {
		password, _ := u.Password()
		auth = &proxy.Auth{User: u.Username(), Password: password}
	}

	forward := directDialer{config: config}
	socks, err := proxy.SOCKS5("tcp", config.SOCKSProxy.Host, auth, forward)
	if err != nil {
		return nil, fmt.Errorf("failed to build socks5 dialer for %s: %w", config.SOCKSProxy.Host, err)
	}
	contextDialer, ok := socks.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer does not support contexts")
	}
	conn, err := contextDialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("socks5 dial via %s failed: %w", config.SOCKSProxy.Host, err)
	}
	return conn, nil
}

// directDialer adapts dialDirect to proxy.Dialer and proxy.ContextDialer.
type directDialer struct {
	config *DialerConfig
}

func (d directDialer) Dial(network, address string) (net.Conn, error) {
	return dialDirect(context.Background(), network, address, d.config)
}

func (d directDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	return dialDirect(ctx, network, address, d.config)
}
