// Package dialer turns an identity key into a live, fingerprint-shaped
// connection: resolve, optional proxy hop, optional local bind, uTLS
// handshake from the profile's recipe, ALPN check, and HTTP/2 setup with
// the profile's preface when h2 is negotiated.
package dialer

import (
	"bufio"
	"context"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
	xproxy "golang.org/x/net/proxy"

	"github.com/guiseproj/guise/dns"
	"github.com/guiseproj/guise/h2preface"
	"github.com/guiseproj/guise/keylog"
	"github.com/guiseproj/guise/pool"
	"github.com/guiseproj/guise/profile"
	"github.com/guiseproj/guise/tlshello"
)

const defaultConnectTimeout = 30 * time.Second

type sessionKey struct {
	host    string
	profile string
}

// Dialer establishes connections for the pool. Safe for concurrent use.
type Dialer struct {
	// Registry resolves profile identifiers; Default() when nil.
	Registry *profile.Registry
	// DNS caches target lookups; a fresh cache when nil.
	DNS *dns.Cache
	// ConnectTimeout bounds the TCP connect (default 30s).
	ConnectTimeout time.Duration
	// InsecureSkipVerify disables certificate verification.
	InsecureSkipVerify bool
	// RootCAs overrides the trust anchors used to verify the server.
	RootCAs *x509.CertPool

	mu       sync.Mutex
	sessions map[sessionKey]tls.ClientSessionCache
	h2       http2.Transport
}

// New builds a dialer over the given registry and resolver cache.
func New(reg *profile.Registry, cache *dns.Cache) *Dialer {
	if reg == nil {
		reg = profile.Default()
	}
	if cache == nil {
		cache = dns.NewCache()
	}
	return &Dialer{
		Registry:       reg,
		DNS:            cache,
		ConnectTimeout: defaultConnectTimeout,
		sessions:       make(map[sessionKey]tls.ClientSessionCache),
	}
}

// Dial opens a connection shaped by key's profile. The returned connection
// carries an HTTP/2 client conn when ALPN negotiated h2, otherwise the bare
// TLS conn for HTTP/1.1 use.
func (d *Dialer) Dial(ctx context.Context, key pool.IdentityKey) (*pool.Conn, error) {
	prof, err := d.Registry.Lookup(key.Profile)
	if err != nil {
		return nil, err
	}
	host, port, err := net.SplitHostPort(key.Authority)
	if err != nil {
		host = key.Authority
		port = "443"
	}

	raw, err := d.dialRaw(ctx, key, host, port)
	if err != nil {
		return nil, err
	}
	if tc, ok := raw.(*net.TCPConn); ok {
		tc.SetKeepAlive(true)
		tc.SetKeepAlivePeriod(30 * time.Second)
	}

	cache := d.sessionCache(host, key.Profile)
	resumable := hasSession(cache, host)

	recipe, err := tlshello.Build(prof, host, resumable)
	if err != nil {
		raw.Close()
		return nil, err
	}

	cfg := &tls.Config{
		ServerName:         recipe.ServerName,
		MinVersion:         recipe.MinVersion,
		MaxVersion:         recipe.MaxVersion,
		InsecureSkipVerify: d.InsecureSkipVerify,
		RootCAs:            d.RootCAs,
		ClientSessionCache: cache,
		KeyLogWriter:       keylog.Writer(),
	}
	uconn := tls.UClient(raw, cfg, tls.HelloCustom)
	if err := uconn.ApplyPreset(&recipe.Spec); err != nil {
		raw.Close()
		return nil, dialErr(StageTLSHandshake, key.Authority, err)
	}
	if err := uconn.HandshakeContext(ctx); err != nil {
		raw.Close()
		return nil, dialErr(StageTLSHandshake, key.Authority, err)
	}

	alpn := uconn.ConnectionState().NegotiatedProtocol
	if !alpnAccepted(prof.TLS.ALPN, alpn) {
		uconn.Close()
		return nil, dialErr(StageALPNMismatch, key.Authority,
			fmt.Errorf("server chose %q, profile offers %v", alpn, prof.TLS.ALPN))
	}

	conn := pool.NewConn(key, raw, uconn, alpn)
	if alpn == "h2" {
		shaped := h2preface.NewConn(uconn, prof)
		h2c, err := d.h2.NewClientConn(shaped)
		if err != nil {
			uconn.Close()
			return nil, dialErr(StageH2Preface, key.Authority, err)
		}
		conn.H2 = h2c
	}
	return conn, nil
}

// dialRaw opens the TCP path: direct with DNS and optional local bind, or
// through the key's proxy. Name resolution is the proxy's job when one is
// configured (socks5h/CONNECT semantics), so the hostname is passed through.
func (d *Dialer) dialRaw(ctx context.Context, key pool.IdentityKey, host, port string) (net.Conn, error) {
	base, err := d.baseDialer(key.LocalPath)
	if err != nil {
		return nil, dialErr(StageResolve, key.Authority, err)
	}

	if key.Proxy.IsZero() {
		ips, err := d.DNS.ResolveAllSorted(ctx, host)
		if err != nil {
			return nil, dialErr(StageResolve, key.Authority, err)
		}
		var lastErr error
		for _, ip := range ips {
			conn, err := base.DialContext(ctx, "tcp", net.JoinHostPort(ip.String(), port))
			if err == nil {
				return conn, nil
			}
			lastErr = err
		}
		return nil, dialErr(StageResolve, key.Authority, lastErr)
	}

	if key.Proxy.IsSOCKS() {
		return d.dialSOCKS(ctx, base, key)
	}
	return d.dialConnect(ctx, base, key)
}

// baseDialer binds the local socket when the identity asks for a specific
// source address or interface.
func (d *Dialer) baseDialer(localPath string) (*net.Dialer, error) {
	nd := &net.Dialer{Timeout: d.ConnectTimeout, KeepAlive: 30 * time.Second}
	if localPath == "" {
		return nd, nil
	}
	ip := net.ParseIP(localPath)
	if ip == nil {
		var err error
		ip, err = interfaceAddr(localPath)
		if err != nil {
			return nil, err
		}
	}
	nd.LocalAddr = &net.TCPAddr{IP: ip}
	return nd, nil
}

// interfaceAddr picks the first global unicast address of a named interface.
func interfaceAddr(name string) (net.IP, error) {
	ifc, err := net.InterfaceByName(name)
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", name, err)
	}
	addrs, err := ifc.Addrs()
	if err != nil {
		return nil, fmt.Errorf("interface %q: %w", name, err)
	}
	for _, a := range addrs {
		ipn, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		if ipn.IP.IsGlobalUnicast() {
			return ipn.IP, nil
		}
	}
	return nil, fmt.Errorf("interface %q: no usable address", name)
}

func (d *Dialer) dialSOCKS(ctx context.Context, base *net.Dialer, key pool.IdentityKey) (net.Conn, error) {
	var auth *xproxy.Auth
	if key.Proxy.Username != "" {
		auth = &xproxy.Auth{User: key.Proxy.Username, Password: key.Proxy.Password}
	}
	sd, err := xproxy.SOCKS5("tcp", key.Proxy.Addr(), auth, base)
	if err != nil {
		return nil, dialErr(StageProxyConnect, key.Authority, err)
	}
	var conn net.Conn
	if cd, ok := sd.(xproxy.ContextDialer); ok {
		conn, err = cd.DialContext(ctx, "tcp", key.Authority)
	} else {
		conn, err = sd.Dial("tcp", key.Authority)
	}
	if err != nil {
		return nil, dialErr(StageProxyConnect, key.Authority, err)
	}
	return conn, nil
}

// dialConnect tunnels through an HTTP proxy with a CONNECT request,
// attaching Basic credentials when the descriptor carries them.
func (d *Dialer) dialConnect(ctx context.Context, base *net.Dialer, key pool.IdentityKey) (net.Conn, error) {
	conn, err := base.DialContext(ctx, "tcp", key.Proxy.Addr())
	if err != nil {
		return nil, dialErr(StageProxyConnect, key.Authority, err)
	}

	req := fmt.Sprintf("CONNECT %s HTTP/1.1\r\nHost: %s\r\n", key.Authority, key.Authority)
	if key.Proxy.Username != "" {
		cred := base64.StdEncoding.EncodeToString(
			[]byte(key.Proxy.Username + ":" + key.Proxy.Password))
		req += "Proxy-Authorization: Basic " + cred + "\r\n"
	}
	req += "\r\n"

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
		defer conn.SetDeadline(time.Time{})
	}
	if _, err := conn.Write([]byte(req)); err != nil {
		conn.Close()
		return nil, dialErr(StageProxyConnect, key.Authority, err)
	}
	resp, err := http.ReadResponse(bufio.NewReader(conn), nil)
	if err != nil {
		conn.Close()
		return nil, dialErr(StageProxyConnect, key.Authority, err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		conn.Close()
		return nil, dialErr(StageProxyConnect, key.Authority,
			fmt.Errorf("proxy returned %s", resp.Status))
	}
	return conn, nil
}

// sessionCache returns the resumption cache for a (host, profile) pair.
// Caches are never shared across profiles: a ticket obtained under one
// fingerprint must not resume a session under another.
func (d *Dialer) sessionCache(host, profileID string) tls.ClientSessionCache {
	k := sessionKey{host: host, profile: profileID}
	d.mu.Lock()
	defer d.mu.Unlock()
	c, ok := d.sessions[k]
	if !ok {
		c = tls.NewLRUClientSessionCache(8)
		d.sessions[k] = c
	}
	return c
}

func hasSession(cache tls.ClientSessionCache, host string) bool {
	cs, ok := cache.Get(host)
	if !ok || cs == nil {
		return false
	}
	// Get consumes nothing in the LRU cache, but put it back anyway so
	// behavior does not depend on the cache implementation.
	cache.Put(host, cs)
	return true
}

func alpnAccepted(offered []string, negotiated string) bool {
	if len(offered) == 0 {
		return true
	}
	if negotiated == "" {
		// No ALPN answer: HTTP/1.1 over TLS is the implied protocol, legal
		// only when the profile offers it.
		for _, p := range offered {
			if p == "http/1.1" {
				return true
			}
		}
		return false
	}
	for _, p := range offered {
		if p == negotiated {
			return true
		}
	}
	return false
}
