package dialer

import "fmt"

// Stage identifies where in connection establishment a dial failed, so
// callers can tell retryable network trouble from fingerprint or
// configuration problems.
type Stage string

const (
	// StageResolve covers name resolution and reaching the target over TCP.
	StageResolve Stage = "resolve"
	// StageProxyConnect covers the proxy's own handshake (CONNECT, SOCKS5).
	StageProxyConnect Stage = "proxy-connect"
	// StageTLSHandshake covers the impersonated TLS handshake.
	StageTLSHandshake Stage = "tls-handshake"
	// StageALPNMismatch means the handshake succeeded but the server chose
	// a protocol the profile does not speak.
	StageALPNMismatch Stage = "alpn-mismatch"
	// StageH2Preface covers HTTP/2 connection setup after ALPN chose h2.
	StageH2Preface Stage = "h2-preface"
)

// DialError reports a failed connection attempt with the stage it died in.
type DialError struct {
	Stage     Stage
	Authority string
	Err       error
}

func (e *DialError) Error() string {
	return fmt.Sprintf("dial %s: %s: %v", e.Authority, e.Stage, e.Err)
}

func (e *DialError) Unwrap() error { return e.Err }

func dialErr(stage Stage, authority string, err error) *DialError {
	return &DialError{Stage: stage, Authority: authority, Err: err}
}
