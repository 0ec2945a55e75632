package pool

import (
	"net"
	"sync"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Conn is a pooled connection. The dialer fills in the transport fields;
// the pool owns the lifecycle. While lent out by Acquire the holder has
// exclusive use until Release or Discard.
type Conn struct {
	Key IdentityKey

	// Raw is the underlying network connection (post-proxy if proxied).
	Raw net.Conn
	// TLS is the handshaken uTLS connection over Raw.
	TLS *tls.UConn
	// H2 is the HTTP/2 client connection, nil when ALPN chose http/1.1.
	H2 *http2.ClientConn
	// ALPN is the negotiated application protocol.
	ALPN string

	createdAt time.Time
	mu        sync.Mutex
	lastUsed  time.Time
	inFlight  int
	broken    bool
	closed    bool
}

// NewConn stamps creation and last-used times on a dialed connection.
func NewConn(key IdentityKey, raw net.Conn, tlsConn *tls.UConn, alpn string) *Conn {
	now := time.Now()
	return &Conn{
		Key:       key,
		Raw:       raw,
		TLS:       tlsConn,
		ALPN:      alpn,
		createdAt: now,
		lastUsed:  now,
	}
}

// MarkBroken flags the connection so it is discarded instead of pooled.
func (c *Conn) MarkBroken() {
	c.mu.Lock()
	c.broken = true
	c.mu.Unlock()
}

// Broken reports whether the connection has been flagged unusable.
func (c *Conn) Broken() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.broken
}

// IsHealthy reports whether the connection can carry another request.
func (c *Conn) IsHealthy() bool {
	c.mu.Lock()
	if c.closed || c.broken {
		c.mu.Unlock()
		return false
	}
	h2 := c.H2
	c.mu.Unlock()
	if h2 != nil {
		return h2.CanTakeNewRequest()
	}
	return true
}

// CreatedAt returns when the connection was dialed.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// IdleSince returns the last time the connection was used.
func (c *Conn) IdleSince() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUsed
}

// InFlight reports how many requests currently hold the connection.
func (c *Conn) InFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Conn) beginUse() {
	c.mu.Lock()
	c.inFlight++
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

func (c *Conn) endUse() {
	c.mu.Lock()
	if c.inFlight > 0 {
		c.inFlight--
	}
	c.lastUsed = time.Now()
	c.mu.Unlock()
}

// Close tears down the transport. Safe to call more than once.
func (c *Conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	h2 := c.H2
	c.mu.Unlock()

	if h2 != nil {
		h2.Close()
	}
	if c.TLS != nil {
		return c.TLS.Close()
	}
	if c.Raw != nil {
		return c.Raw.Close()
	}
	return nil
}
