package guise

import (
	"crypto/x509"
	"time"

	"github.com/guiseproj/guise/pool"
)

// Option configures a Client at construction time.
type Option func(*clientConfig)

type clientConfig struct {
	timeout            time.Duration
	proxy              string
	localPath          string
	maxIdlePerKey      int
	maxDialsPerKey     int
	maxConns           int
	idleTimeout        time.Duration
	connectTimeout     time.Duration
	insecureSkipVerify bool
	rootCAs            *x509.CertPool
}

// WithTimeout sets the default per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.timeout = d }
}

// WithConnectTimeout bounds connection establishment.
func WithConnectTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.connectTimeout = d }
}

// WithProxy routes all requests through an HTTP, HTTPS or SOCKS5 proxy URL.
// Credentials go in the URL userinfo.
func WithProxy(proxyURL string) Option {
	return func(c *clientConfig) { c.proxy = proxyURL }
}

// WithBindAddress binds outgoing connections to a local source IP.
func WithBindAddress(ip string) Option {
	return func(c *clientConfig) { c.localPath = ip }
}

// WithInterface binds outgoing connections to a named network interface.
func WithInterface(name string) Option {
	return func(c *clientConfig) { c.localPath = name }
}

// WithMaxIdlePerKey caps idle pooled connections per identity.
func WithMaxIdlePerKey(n int) Option {
	return func(c *clientConfig) { c.maxIdlePerKey = n }
}

// WithMaxDialsPerKey caps concurrent dials per identity.
func WithMaxDialsPerKey(n int) Option {
	return func(c *clientConfig) { c.maxDialsPerKey = n }
}

// WithMaxConns caps live connections across the whole client.
func WithMaxConns(n int) Option {
	return func(c *clientConfig) { c.maxConns = n }
}

// WithIdleTimeout sets how long an unused connection may sit in the pool.
func WithIdleTimeout(d time.Duration) Option {
	return func(c *clientConfig) { c.idleTimeout = d }
}

// WithInsecureSkipVerify disables server certificate verification.
func WithInsecureSkipVerify() Option {
	return func(c *clientConfig) { c.insecureSkipVerify = true }
}

// WithRootCAs replaces the trust anchors used to verify servers.
func WithRootCAs(pool *x509.CertPool) Option {
	return func(c *clientConfig) { c.rootCAs = pool }
}

func (c *clientConfig) poolConfig() pool.Config {
	return pool.Config{
		MaxIdlePerKey:  c.maxIdlePerKey,
		MaxDialsPerKey: c.maxDialsPerKey,
		MaxTotal:       c.maxConns,
		IdleTimeout:    c.idleTimeout,
	}
}
