package dns

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"
)

func fakeCache(lookup lookupFunc) *Cache {
	c := &Cache{entries: make(map[string]*entry)}
	c.lookup = lookup
	return c
}

func TestResolveCachesWithinTTL(t *testing.T) {
	calls := 0
	c := fakeCache(func(ctx context.Context, host string) ([]net.IP, time.Duration, error) {
		calls++
		return []net.IP{net.ParseIP("192.0.2.1")}, time.Hour, nil
	})

	for i := 0; i < 3; i++ {
		ips, err := c.Resolve(context.Background(), "example.test")
		if err != nil {
			t.Fatalf("Resolve: %v", err)
		}
		if len(ips) != 1 || !ips[0].Equal(net.ParseIP("192.0.2.1")) {
			t.Fatalf("ips = %v", ips)
		}
	}
	if calls != 1 {
		t.Fatalf("lookup ran %d times, want 1", calls)
	}
}

func TestResolveExpiryTriggersRelookup(t *testing.T) {
	calls := 0
	c := fakeCache(func(ctx context.Context, host string) ([]net.IP, time.Duration, error) {
		calls++
		return []net.IP{net.ParseIP("192.0.2.1")}, 0, nil
	})

	if _, err := c.Resolve(context.Background(), "example.test"); err != nil {
		t.Fatal(err)
	}
	// Force the entry past its deadline.
	c.mu.Lock()
	c.entries["example.test"].expiresAt = time.Now().Add(-time.Second)
	c.mu.Unlock()

	if _, err := c.Resolve(context.Background(), "example.test"); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("lookup ran %d times, want 2", calls)
	}
}

func TestResolveServesStaleOnFailure(t *testing.T) {
	calls := 0
	c := fakeCache(func(ctx context.Context, host string) ([]net.IP, time.Duration, error) {
		calls++
		if calls == 1 {
			return []net.IP{net.ParseIP("192.0.2.7")}, time.Minute, nil
		}
		return nil, 0, errors.New("servfail")
	})

	if _, err := c.Resolve(context.Background(), "example.test"); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	c.entries["example.test"].expiresAt = time.Now().Add(-time.Second)
	c.mu.Unlock()

	ips, err := c.Resolve(context.Background(), "example.test")
	if err != nil {
		t.Fatalf("stale answer not served: %v", err)
	}
	if !ips[0].Equal(net.ParseIP("192.0.2.7")) {
		t.Fatalf("ips = %v", ips)
	}
}

func TestResolveLiteralIP(t *testing.T) {
	c := fakeCache(func(ctx context.Context, host string) ([]net.IP, time.Duration, error) {
		t.Fatal("lookup must not run for a literal IP")
		return nil, 0, nil
	})
	ips, err := c.Resolve(context.Background(), "2001:db8::1")
	if err != nil {
		t.Fatal(err)
	}
	if len(ips) != 1 || !ips[0].Equal(net.ParseIP("2001:db8::1")) {
		t.Fatalf("ips = %v", ips)
	}
}

func TestResolveOnePrefersIPv6(t *testing.T) {
	c := fakeCache(func(ctx context.Context, host string) ([]net.IP, time.Duration, error) {
		return []net.IP{
			net.ParseIP("192.0.2.1"),
			net.ParseIP("2001:db8::1"),
		}, time.Minute, nil
	})
	ip, err := c.ResolveOne(context.Background(), "example.test")
	if err != nil {
		t.Fatal(err)
	}
	if ip.To4() != nil {
		t.Fatalf("got %v, want the IPv6 address", ip)
	}
}

func TestResolveAllSortedInterleaves(t *testing.T) {
	c := fakeCache(func(ctx context.Context, host string) ([]net.IP, time.Duration, error) {
		return []net.IP{
			net.ParseIP("192.0.2.1"),
			net.ParseIP("192.0.2.2"),
			net.ParseIP("2001:db8::1"),
			net.ParseIP("2001:db8::2"),
		}, time.Minute, nil
	})
	ips, err := c.ResolveAllSorted(context.Background(), "example.test")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"2001:db8::1", "192.0.2.1", "2001:db8::2", "192.0.2.2"}
	if len(ips) != len(want) {
		t.Fatalf("got %d addresses, want %d", len(ips), len(want))
	}
	for i, w := range want {
		if !ips[i].Equal(net.ParseIP(w)) {
			t.Fatalf("position %d = %v, want %s (full %v)", i, ips[i], w, ips)
		}
	}
}

func TestClampTTL(t *testing.T) {
	tests := []struct {
		in, want time.Duration
	}{
		{0, minTTL},
		{time.Second, minTTL},
		{5 * time.Minute, 5 * time.Minute},
		{2 * time.Hour, maxTTL},
	}
	for _, tt := range tests {
		if got := clampTTL(tt.in); got != tt.want {
			t.Errorf("clampTTL(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestInvalidateAndCleanup(t *testing.T) {
	calls := 0
	c := fakeCache(func(ctx context.Context, host string) ([]net.IP, time.Duration, error) {
		calls++
		return []net.IP{net.ParseIP("192.0.2.1")}, time.Minute, nil
	})

	c.Resolve(context.Background(), "a.test")
	c.Resolve(context.Background(), "b.test")
	c.Invalidate("a.test")
	c.Resolve(context.Background(), "a.test")
	if calls != 3 {
		t.Fatalf("lookup ran %d times, want 3 after invalidation", calls)
	}

	c.mu.Lock()
	c.entries["b.test"].expiresAt = time.Now().Add(-time.Second)
	c.mu.Unlock()
	c.Cleanup()
	c.mu.RLock()
	_, ok := c.entries["b.test"]
	c.mu.RUnlock()
	if ok {
		t.Fatal("expired entry survived Cleanup")
	}
}
