package pool

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	// ErrPoolClosed is returned after Shutdown.
	ErrPoolClosed = errors.New("pool: closed")
	// ErrPoolExhausted is returned when the wait budget for a connection
	// elapses before one becomes available.
	ErrPoolExhausted = errors.New("pool: exhausted")
	// ErrConnectionBroken marks a failure detected mid-use; the connection
	// is discarded and never rejoins the idle set.
	ErrConnectionBroken = errors.New("pool: connection broken")
)

// DialFunc establishes a new connection for an identity. The pool calls it
// outside its locks.
type DialFunc func(ctx context.Context, key IdentityKey) (*Conn, error)

// Config bounds the pool. Zero fields take the defaults below.
type Config struct {
	// MaxIdlePerKey caps parked connections per identity (default 6).
	MaxIdlePerKey int
	// MaxDialsPerKey caps concurrent dials per identity (default 3).
	MaxDialsPerKey int
	// MaxTotal caps live connections across all identities, 0 = unbounded.
	MaxTotal int
	// IdleTimeout evicts connections idle longer than this (default 90s).
	IdleTimeout time.Duration
	// MaxConnAge retires connections older than this, 0 = never.
	MaxConnAge time.Duration
	// SweepInterval spaces the background eviction sweeps (default 30s).
	SweepInterval time.Duration
}

const (
	defaultMaxIdlePerKey  = 6
	defaultMaxDialsPerKey = 3
	defaultIdleTimeout    = 90 * time.Second
	defaultSweepInterval  = 30 * time.Second
)

func (c Config) withDefaults() Config {
	if c.MaxIdlePerKey <= 0 {
		c.MaxIdlePerKey = defaultMaxIdlePerKey
	}
	if c.MaxDialsPerKey <= 0 {
		c.MaxDialsPerKey = defaultMaxDialsPerKey
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultSweepInterval
	}
	return c
}

// waiter is an acquirer parked until a connection or a dial slot frees up.
// A nil send means "retry": a slot opened but no connection exists yet.
type waiter struct {
	ch chan *Conn
}

type keyPool struct {
	mu      sync.Mutex
	idle    []*Conn // LIFO: most recently released first
	dialing int
	waiters []*waiter // FIFO
	live    int
}

// Pool lends connections keyed by full network identity.
type Pool struct {
	cfg  Config
	dial DialFunc

	mu     sync.Mutex
	keys   map[IdentityKey]*keyPool
	total  int
	closed bool
	stop   chan struct{}
	done   chan struct{}
}

// New builds a pool around dial. The background eviction sweep starts
// immediately; Shutdown stops it.
func New(cfg Config, dial DialFunc) *Pool {
	p := &Pool{
		cfg:  cfg.withDefaults(),
		dial: dial,
		keys: make(map[IdentityKey]*keyPool),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	go p.sweepLoop()
	return p
}

func (p *Pool) keyPoolFor(key IdentityKey) (*keyPool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, ErrPoolClosed
	}
	kp := p.keys[key]
	if kp == nil {
		kp = &keyPool{}
		p.keys[key] = kp
	}
	return kp, nil
}

// Acquire returns a connection for key, dialing one when no idle connection
// exists and the per-key dial cap allows it. When the cap is reached the
// caller queues FIFO behind earlier acquirers; context cancellation removes
// it from the queue with no other effect. A deadline elapsing while queued
// yields ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context, key IdentityKey) (*Conn, error) {
	for {
		kp, err := p.keyPoolFor(key)
		if err != nil {
			return nil, err
		}

		kp.mu.Lock()
		for len(kp.idle) > 0 {
			conn := kp.idle[len(kp.idle)-1]
			kp.idle = kp.idle[:len(kp.idle)-1]
			if p.stale(conn) || !conn.IsHealthy() {
				kp.live--
				kp.mu.Unlock()
				p.dropTotal()
				conn.Close()
				kp.mu.Lock()
				continue
			}
			kp.mu.Unlock()
			conn.beginUse()
			return conn, nil
		}

		if kp.dialing < p.cfg.MaxDialsPerKey && p.reserveTotal() {
			kp.dialing++
			kp.mu.Unlock()
			return p.dialOne(ctx, key, kp)
		}

		w := &waiter{ch: make(chan *Conn, 1)}
		kp.waiters = append(kp.waiters, w)
		kp.mu.Unlock()

		select {
		case conn := <-w.ch:
			if conn == nil {
				continue // a slot freed; retry from the top
			}
			conn.beginUse()
			return conn, nil
		case <-ctx.Done():
			kp.mu.Lock()
			for i, q := range kp.waiters {
				if q == w {
					kp.waiters = append(kp.waiters[:i], kp.waiters[i+1:]...)
					break
				}
			}
			kp.mu.Unlock()
			// A release may have raced the cancellation; don't strand it.
			select {
			case conn := <-w.ch:
				if conn != nil {
					p.Release(conn)
				}
			default:
			}
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrPoolExhausted
			}
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) dialOne(ctx context.Context, key IdentityKey, kp *keyPool) (*Conn, error) {
	conn, err := p.dial(ctx, key)

	kp.mu.Lock()
	kp.dialing--
	if err != nil {
		// The slot this dial held is free again; let a waiter retry.
		p.wakeOne(kp, nil)
		kp.mu.Unlock()
		p.dropTotal()
		return nil, err
	}
	kp.live++
	kp.mu.Unlock()
	conn.beginUse()
	return conn, nil
}

// reserveTotal claims a live-connection slot against MaxTotal.
func (p *Pool) reserveTotal() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg.MaxTotal > 0 && p.total >= p.cfg.MaxTotal {
		return false
	}
	p.total++
	return true
}

func (p *Pool) dropTotal() {
	p.mu.Lock()
	p.total--
	p.mu.Unlock()
}

// wakeOne hands conn (or a retry signal when nil) to the oldest waiter.
// Caller holds kp.mu. Reports whether a waiter took it.
func (p *Pool) wakeOne(kp *keyPool, conn *Conn) bool {
	for len(kp.waiters) > 0 {
		w := kp.waiters[0]
		kp.waiters = kp.waiters[1:]
		select {
		case w.ch <- conn:
			return true
		default:
			// Waiter is being cancelled; skip it.
		}
	}
	return false
}

// Release returns a connection to the pool. Healthy connections go to the
// oldest waiter first, then to the idle set when under the per-key cap;
// anything else is closed. Broken connections never rejoin the idle set.
func (p *Pool) Release(conn *Conn) {
	if conn == nil {
		return
	}
	p.mu.Lock()
	closed := p.closed
	kp := p.keys[conn.Key]
	p.mu.Unlock()

	// Only the age limit applies here: lastUsed was stamped at acquire, so
	// a request that simply outlived the idle timeout has not been idle.
	if closed || kp == nil || p.expired(conn) || !conn.IsHealthy() {
		p.Discard(conn)
		return
	}

	conn.endUse()
	kp.mu.Lock()
	if p.wakeOne(kp, conn) {
		kp.mu.Unlock()
		return
	}
	if len(kp.idle) < p.cfg.MaxIdlePerKey {
		kp.idle = append(kp.idle, conn)
		kp.mu.Unlock()
		return
	}
	kp.live--
	kp.mu.Unlock()
	p.dropTotal()
	conn.Close()
}

// Discard closes a connection and frees its slot, waking a queued acquirer
// so it can dial a replacement.
func (p *Pool) Discard(conn *Conn) {
	if conn == nil {
		return
	}
	conn.endUse()
	conn.Close()

	p.mu.Lock()
	kp := p.keys[conn.Key]
	p.mu.Unlock()
	if kp != nil {
		kp.mu.Lock()
		kp.live--
		p.wakeOne(kp, nil)
		kp.mu.Unlock()
	}
	p.dropTotal()
}

func (p *Pool) stale(conn *Conn) bool {
	if time.Since(conn.IdleSince()) > p.cfg.IdleTimeout {
		return true
	}
	return p.expired(conn)
}

func (p *Pool) expired(conn *Conn) bool {
	return p.cfg.MaxConnAge > 0 && time.Since(conn.CreatedAt()) > p.cfg.MaxConnAge
}

// EvictIdle closes idle connections whose last use is older than the cutoff.
// Best effort: it never fails and never touches lent-out connections.
func (p *Pool) EvictIdle(olderThan time.Time) {
	p.mu.Lock()
	kps := make([]*keyPool, 0, len(p.keys))
	for _, kp := range p.keys {
		kps = append(kps, kp)
	}
	p.mu.Unlock()

	for _, kp := range kps {
		var evicted []*Conn
		kp.mu.Lock()
		kept := kp.idle[:0]
		for _, conn := range kp.idle {
			if conn.IdleSince().Before(olderThan) {
				evicted = append(evicted, conn)
				kp.live--
			} else {
				kept = append(kept, conn)
			}
		}
		kp.idle = kept
		kp.mu.Unlock()

		for _, conn := range evicted {
			p.dropTotal()
			conn.Close()
		}
	}
}

func (p *Pool) sweepLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.EvictIdle(time.Now().Add(-p.cfg.IdleTimeout))
		case <-p.stop:
			return
		}
	}
}

// Stats reports live and idle connection counts per identity.
func (p *Pool) Stats() map[IdentityKey]struct{ Live, Idle int } {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[IdentityKey]struct{ Live, Idle int }, len(p.keys))
	for key, kp := range p.keys {
		kp.mu.Lock()
		out[key] = struct{ Live, Idle int }{kp.live, len(kp.idle)}
		kp.mu.Unlock()
	}
	return out
}

// Shutdown closes all idle connections, fails queued acquirers and blocks
// further use of the pool.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.stop)
	kps := p.keys
	p.keys = map[IdentityKey]*keyPool{}
	p.mu.Unlock()
	<-p.done

	for _, kp := range kps {
		kp.mu.Lock()
		idle := kp.idle
		kp.idle = nil
		waiters := kp.waiters
		kp.waiters = nil
		kp.mu.Unlock()

		for _, conn := range idle {
			conn.Close()
		}
		for _, w := range waiters {
			close(w.ch)
		}
	}
}
