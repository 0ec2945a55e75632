// Package dns resolves target hosts with a TTL-honoring cache. Records are
// fetched with real A/AAAA queries so the cache expiry follows what the
// authoritative zone published, instead of a guessed fixed lifetime.
package dns

import (
	"context"
	"net"
	"sync"
	"time"

	mdns "github.com/miekg/dns"
)

const (
	// minTTL stops a zero-TTL record from hammering the resolver.
	minTTL = 30 * time.Second
	// maxTTL bounds how long a record can pin a stale address.
	maxTTL = 30 * time.Minute
	// fallbackTTL is used when the system resolver answered and no
	// record TTL is available.
	fallbackTTL = 5 * time.Minute
)

type entry struct {
	ips       []net.IP
	expiresAt time.Time
}

// lookupFunc fetches addresses and the smallest record TTL for a host.
type lookupFunc func(ctx context.Context, host string) ([]net.IP, time.Duration, error)

// Cache is a TTL-aware resolver cache. Safe for concurrent use.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*entry

	lookup  lookupFunc
	client  *mdns.Client
	servers []string
}

// NewCache builds a cache backed by the system's configured nameservers,
// falling back to the net resolver when direct queries fail.
func NewCache() *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		client:  &mdns.Client{Timeout: 5 * time.Second},
		servers: systemServers(),
	}
	c.lookup = c.queryAll
	return c
}

// systemServers reads the resolv.conf nameserver list. Public resolvers
// back it up when the file is missing or empty.
func systemServers() []string {
	var servers []string
	if conf, err := mdns.ClientConfigFromFile("/etc/resolv.conf"); err == nil {
		for _, s := range conf.Servers {
			servers = append(servers, net.JoinHostPort(s, conf.Port))
		}
	}
	if len(servers) == 0 {
		servers = []string{"1.1.1.1:53", "8.8.8.8:53"}
	}
	return servers
}

// Resolve returns the addresses for host, from cache when fresh. A literal
// IP resolves to itself. When every upstream fails, a stale cached answer
// is preferred over the failure.
func (c *Cache) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}

	c.mu.RLock()
	e, ok := c.entries[host]
	c.mu.RUnlock()
	if ok && time.Now().Before(e.expiresAt) {
		return e.ips, nil
	}

	ips, ttl, err := c.lookup(ctx, host)
	if err != nil {
		if ok {
			return e.ips, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[host] = &entry{ips: ips, expiresAt: time.Now().Add(clampTTL(ttl))}
	c.mu.Unlock()
	return ips, nil
}

func clampTTL(ttl time.Duration) time.Duration {
	if ttl < minTTL {
		return minTTL
	}
	if ttl > maxTTL {
		return maxTTL
	}
	return ttl
}

// queryAll asks for AAAA and A records directly and keeps the smallest TTL
// seen. When no nameserver answers, the system resolver is the last resort.
func (c *Cache) queryAll(ctx context.Context, host string) ([]net.IP, time.Duration, error) {
	var (
		ips []net.IP
		ttl = maxTTL
	)
	fqdn := mdns.Fqdn(host)
	for _, qtype := range []uint16{mdns.TypeAAAA, mdns.TypeA} {
		msg := new(mdns.Msg)
		msg.SetQuestion(fqdn, qtype)
		msg.RecursionDesired = true

		var resp *mdns.Msg
		var err error
		for _, server := range c.servers {
			resp, _, err = c.client.ExchangeContext(ctx, msg, server)
			if err == nil && resp != nil {
				break
			}
		}
		if err != nil || resp == nil {
			continue
		}
		for _, rr := range resp.Answer {
			switch r := rr.(type) {
			case *mdns.AAAA:
				ips = append(ips, r.AAAA)
				ttl = min(ttl, time.Duration(r.Hdr.Ttl)*time.Second)
			case *mdns.A:
				ips = append(ips, r.A)
				ttl = min(ttl, time.Duration(r.Hdr.Ttl)*time.Second)
			}
		}
	}
	if len(ips) > 0 {
		return ips, ttl, nil
	}

	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, 0, err
	}
	if len(addrs) == 0 {
		return nil, 0, &net.DNSError{Err: "no addresses found", Name: host}
	}
	ips = make([]net.IP, len(addrs))
	for i, a := range addrs {
		ips[i] = a.IP
	}
	return ips, fallbackTTL, nil
}

// ResolveOne returns a single address, preferring IPv6 like current
// browsers do.
func (c *Cache) ResolveOne(ctx context.Context, host string) (net.IP, error) {
	ips, err := c.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no addresses found", Name: host}
	}
	for _, ip := range ips {
		if ip.To4() == nil {
			return ip, nil
		}
	}
	return ips[0], nil
}

// ResolveAllSorted returns every address interleaved IPv6-first per the
// Happy Eyeballs ordering (RFC 8305).
func (c *Cache) ResolveAllSorted(ctx context.Context, host string) ([]net.IP, error) {
	ips, err := c.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	if len(ips) == 0 {
		return nil, &net.DNSError{Err: "no addresses found", Name: host}
	}

	var v4, v6 []net.IP
	for _, ip := range ips {
		if ip.To4() != nil {
			v4 = append(v4, ip)
		} else {
			v6 = append(v6, ip)
		}
	}
	out := make([]net.IP, 0, len(ips))
	for i := 0; i < len(v6) || i < len(v4); i++ {
		if i < len(v6) {
			out = append(out, v6[i])
		}
		if i < len(v4) {
			out = append(out, v4[i])
		}
	}
	return out, nil
}

// Invalidate drops a host from the cache.
func (c *Cache) Invalidate(host string) {
	c.mu.Lock()
	delete(c.entries, host)
	c.mu.Unlock()
}

// Clear drops every cached answer.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
}

// Cleanup removes expired entries.
func (c *Cache) Cleanup() {
	now := time.Now()
	c.mu.Lock()
	for host, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, host)
		}
	}
	c.mu.Unlock()
}

// StartCleanup sweeps expired entries until ctx is done.
func (c *Cache) StartCleanup(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}
