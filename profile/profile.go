// Package profile defines the impersonation profile data model and the
// process-wide registry of browser profiles.
//
// A profile is pure data: the ordered TLS extension layout, the ordered
// HTTP/2 SETTINGS, and the default header set of one browser version.
// Adding a browser is a registry entry, never a new code path — the
// builders in tlshello and h2preface consume profiles as-is.
package profile

import (
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// ExtensionID identifies a TLS extension in a profile's declared wire order.
type ExtensionID uint16

// TLS extension identifiers (IANA numbers).
const (
	ExtServerName              ExtensionID = 0
	ExtStatusRequest           ExtensionID = 5
	ExtSupportedGroups         ExtensionID = 10
	ExtECPointFormats          ExtensionID = 11
	ExtSignatureAlgorithms     ExtensionID = 13
	ExtALPN                    ExtensionID = 16
	ExtSCT                     ExtensionID = 18
	ExtPadding                 ExtensionID = 21
	ExtExtendedMasterSecret    ExtensionID = 23
	ExtCompressCertificate     ExtensionID = 27
	ExtRecordSizeLimit         ExtensionID = 28
	ExtDelegatedCredentials    ExtensionID = 34
	ExtSessionTicket           ExtensionID = 35
	ExtPreSharedKey            ExtensionID = 41
	ExtSupportedVersions       ExtensionID = 43
	ExtPSKModes                ExtensionID = 45
	ExtSignatureAlgorithmsCert ExtensionID = 50
	ExtKeyShare                ExtensionID = 51
	ExtALPS                    ExtensionID = 17513
	ExtECH                     ExtensionID = 65037
	ExtRenegotiationInfo       ExtensionID = 65281

	// ExtGREASE marks a GREASE insertion point. The concrete reserved value
	// is synthesized at build time and varies per connection; the position
	// is fixed by the profile.
	ExtGREASE ExtensionID = 0x0a0a
)

// TLSProfile describes the exact ClientHello layout of one browser version.
// The Extensions slice is the wire order; reordering it is a correctness
// bug, not a style choice.
type TLSProfile struct {
	MinVersion uint16
	MaxVersion uint16

	// CipherSuites in wire order. May contain tls.GREASE_PLACEHOLDER.
	CipherSuites       []uint16
	CompressionMethods []uint8

	// Extensions in wire order. ExtGREASE entries mark GREASE positions;
	// ExtPreSharedKey marks where the PSK extension goes when a session
	// is available for resumption (omitted entirely otherwise).
	Extensions []ExtensionID

	// Per-extension parameters.
	Curves                  []tls.CurveID // may contain GREASE_PLACEHOLDER
	PointFormats            []uint8
	SignatureAlgorithms     []tls.SignatureScheme
	SignatureAlgorithmsCert []tls.SignatureScheme
	DelegatedCredentials    []tls.SignatureScheme
	ALPN                    []string
	ALPS                    []string
	SupportedVersions       []uint16      // may contain GREASE_PLACEHOLDER
	KeyShareGroups          []tls.CurveID // may contain GREASE_PLACEHOLDER
	PSKModes                []uint8
	CertCompression         []tls.CertCompressionAlgo
	RecordSizeLimit         uint16
}

// HTTP2Setting is one (identifier, value) pair of the SETTINGS frame.
type HTTP2Setting struct {
	ID  http2.SettingID
	Val uint32
}

// Priority describes the HTTP/2 priority data a browser attaches to its
// request HEADERS frames.
type Priority struct {
	StreamDep uint32
	Exclusive bool
	Weight    uint8 // wire weight, i.e. the value minus one
}

// HTTP2Profile describes the connection preface and per-stream framing of
// one browser version. Settings are emitted in declared order; parameters
// the profile omits are never sent with a default value, since omission vs
// explicit-default is itself observable.
type HTTP2Profile struct {
	Settings []HTTP2Setting

	// ConnectionFlow is the increment of the WINDOW_UPDATE frame sent right
	// after SETTINGS. Zero means no connection-level update is sent.
	ConnectionFlow uint32

	// PseudoHeaderOrder is the emission order of :method, :authority,
	// :scheme and :path. Fixed at connection open for the connection's
	// lifetime.
	PseudoHeaderOrder []string

	// HeaderPriority, when non-nil, is attached to every request HEADERS
	// frame via the PRIORITY flag.
	HeaderPriority *Priority
}

// Header is a default header with its browser casing.
type Header struct {
	Name  string
	Value string
}

// HeaderProfile carries the browser's default header list in emission
// order. The builders do not interpret it; the client layer sends it as-is.
type HeaderProfile struct {
	UserAgent string
	Defaults  []Header

	// Order lists lowercase header names in the browser's emission order.
	// Headers not listed are appended after the ordered ones.
	Order []string
}

// ImpersonationProfile is the full fingerprint of one browser version.
// Profiles are immutable after registration and safe for concurrent use.
type ImpersonationProfile struct {
	ID     string
	TLS    TLSProfile
	HTTP2  HTTP2Profile
	Header HeaderProfile
}

// Pseudo-header names used in PseudoHeaderOrder.
const (
	PseudoMethod    = ":method"
	PseudoAuthority = ":authority"
	PseudoScheme    = ":scheme"
	PseudoPath      = ":path"
)
