// Package pool keeps TLS connections grouped by the full network identity
// they were dialed with. Two connections share a pool entry only when the
// target authority, the proxy hop, the local bind and the browser profile
// all match; reusing a connection across any of those boundaries would leak
// one identity's traffic through another's path.
package pool

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// ProxyDescriptor identifies an upstream proxy hop, credentials included.
// The zero value means a direct connection.
type ProxyDescriptor struct {
	Scheme   string // "http", "https", "socks5" or "socks5h"
	Host     string
	Port     string
	Username string
	Password string
}

// ParseProxy parses a proxy URL into a descriptor. Missing ports get the
// scheme's conventional default.
func ParseProxy(raw string) (ProxyDescriptor, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return ProxyDescriptor{}, fmt.Errorf("parse proxy %q: %w", raw, err)
	}
	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "http", "https", "socks5", "socks5h":
	case "":
		return ProxyDescriptor{}, fmt.Errorf("proxy %q: missing scheme", raw)
	default:
		return ProxyDescriptor{}, fmt.Errorf("proxy %q: unsupported scheme %q", raw, scheme)
	}
	host := u.Hostname()
	if host == "" {
		return ProxyDescriptor{}, fmt.Errorf("proxy %q: missing host", raw)
	}
	port := u.Port()
	if port == "" {
		switch scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		default:
			port = "1080"
		}
	}
	d := ProxyDescriptor{Scheme: scheme, Host: host, Port: port}
	if u.User != nil {
		d.Username = u.User.Username()
		d.Password, _ = u.User.Password()
	}
	return d, nil
}

// IsZero reports whether the descriptor denotes a direct connection.
func (d ProxyDescriptor) IsZero() bool { return d == ProxyDescriptor{} }

// Addr returns the host:port dial target of the proxy.
func (d ProxyDescriptor) Addr() string { return net.JoinHostPort(d.Host, d.Port) }

// IsSOCKS reports whether the proxy speaks SOCKS5 rather than HTTP CONNECT.
func (d ProxyDescriptor) IsSOCKS() bool {
	return d.Scheme == "socks5" || d.Scheme == "socks5h"
}

func (d ProxyDescriptor) String() string {
	if d.IsZero() {
		return "direct"
	}
	if d.Username != "" {
		return d.Scheme + "://" + d.Username + "@" + d.Addr()
	}
	return d.Scheme + "://" + d.Addr()
}

// IdentityKey is the unit of connection pooling. It is comparable, so it
// can key a map directly; two keys are poolable together iff they are equal.
type IdentityKey struct {
	// Authority is the host:port the connection terminates at.
	Authority string
	// Proxy is the upstream hop, zero for direct.
	Proxy ProxyDescriptor
	// LocalPath is the source IP or interface name the connection is
	// bound to, empty for the OS default route.
	LocalPath string
	// Profile is the impersonation profile identifier the connection's
	// handshake was shaped with.
	Profile string
}

func (k IdentityKey) String() string {
	local := k.LocalPath
	if local == "" {
		local = "default"
	}
	return k.Authority + "|" + k.Proxy.String() + "|" + local + "|" + k.Profile
}
