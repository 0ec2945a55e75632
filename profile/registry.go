package profile

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	tls "github.com/refraction-networking/utls"
)

// ErrUnknownProfile is returned by Lookup for an unregistered profile ID.
var ErrUnknownProfile = errors.New("unknown impersonation profile")

// InvalidProfileError reports a profile rejected at registration.
type InvalidProfileError struct {
	ID     string
	Reason string
}

func (e *InvalidProfileError) Error() string {
	return fmt.Sprintf("invalid profile %q: %s", e.ID, e.Reason)
}

// Registry is an immutable-after-construction table of impersonation
// profiles. Build it once at startup and share it by reference; it needs
// no locking after the last Register call.
type Registry struct {
	profiles map[string]*ImpersonationProfile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{profiles: make(map[string]*ImpersonationProfile)}
}

// Register validates p and adds it to the registry. Validation is strict:
// a profile that would produce a malformed or non-reproducible ClientHello
// is rejected here, before any request ever uses it. Nothing is registered
// on failure.
func (r *Registry) Register(p *ImpersonationProfile) error {
	if err := validate(p); err != nil {
		return err
	}
	if _, dup := r.profiles[p.ID]; dup {
		return &InvalidProfileError{ID: p.ID, Reason: "duplicate ID"}
	}
	r.profiles[p.ID] = p
	return nil
}

// Lookup returns the profile registered under id.
func (r *Registry) Lookup(id string) (*ImpersonationProfile, error) {
	p, ok := r.profiles[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProfile, id)
	}
	return p, nil
}

// IDs returns the registered profile IDs, sorted.
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.profiles))
	for id := range r.profiles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func validate(p *ImpersonationProfile) error {
	fail := func(reason string) error {
		return &InvalidProfileError{ID: p.ID, Reason: reason}
	}

	if p.ID == "" {
		return fail("empty ID")
	}
	if len(p.TLS.CipherSuites) == 0 {
		return fail("empty cipher suite list")
	}
	if len(p.TLS.Extensions) == 0 {
		return fail("empty extension list")
	}
	if len(p.TLS.Curves) == 0 {
		return fail("empty elliptic curve list")
	}
	if p.TLS.MinVersion == 0 || p.TLS.MaxVersion == 0 || p.TLS.MinVersion > p.TLS.MaxVersion {
		return fail("bad TLS version range")
	}
	if len(p.TLS.ALPN) == 0 {
		return fail("empty ALPN list")
	}

	// GREASE slots in value lists must hold the placeholder so the engine
	// substitutes a fresh value per connection; a pinned reserved value
	// would itself become a static signature.
	for _, cs := range p.TLS.CipherSuites {
		if isGREASE(cs) && cs != tls.GREASE_PLACEHOLDER {
			return fail(fmt.Sprintf("pinned GREASE cipher suite %#04x", cs))
		}
	}
	for _, cu := range p.TLS.Curves {
		if isGREASE(uint16(cu)) && uint16(cu) != tls.GREASE_PLACEHOLDER {
			return fail(fmt.Sprintf("pinned GREASE curve %#04x", uint16(cu)))
		}
	}
	for _, v := range p.TLS.SupportedVersions {
		if isGREASE(v) && v != tls.GREASE_PLACEHOLDER {
			return fail(fmt.Sprintf("pinned GREASE version %#04x", v))
		}
	}
	for _, g := range p.TLS.KeyShareGroups {
		if isGREASE(uint16(g)) && uint16(g) != tls.GREASE_PLACEHOLDER {
			return fail(fmt.Sprintf("pinned GREASE key share %#04x", uint16(g)))
		}
	}

	// Real extensions may appear at most once; only GREASE repeats.
	seen := make(map[ExtensionID]bool, len(p.TLS.Extensions))
	for _, id := range p.TLS.Extensions {
		if id == ExtGREASE {
			continue
		}
		if isGREASE(uint16(id)) {
			return fail(fmt.Sprintf("pinned GREASE extension %#04x", uint16(id)))
		}
		if seen[id] {
			return fail(fmt.Sprintf("duplicate extension %d", id))
		}
		seen[id] = true
	}
	if !seen[ExtServerName] {
		return fail("missing server_name extension")
	}

	for _, s := range p.HTTP2.Settings {
		if s.ID == 0 {
			return fail("settings entry with zero identifier")
		}
	}
	dupSet := make(map[uint16]bool, len(p.HTTP2.Settings))
	for _, s := range p.HTTP2.Settings {
		if dupSet[uint16(s.ID)] {
			return fail(fmt.Sprintf("duplicate settings identifier %d", s.ID))
		}
		dupSet[uint16(s.ID)] = true
	}

	for _, name := range p.HTTP2.PseudoHeaderOrder {
		switch name {
		case PseudoMethod, PseudoAuthority, PseudoScheme, PseudoPath:
		default:
			return fail(fmt.Sprintf("unknown pseudo-header %q", name))
		}
	}
	if n := len(p.HTTP2.PseudoHeaderOrder); n != 0 && n != 4 {
		return fail("pseudo-header order must list all four pseudo-headers")
	}

	return nil
}

// isGREASE reports whether v is a TLS GREASE value (RFC 8701).
func isGREASE(v uint16) bool {
	return v&0x0f0f == 0x0a0a
}

var (
	defaultOnce     sync.Once
	defaultRegistry *Registry
)

// Default returns the process-wide registry holding the built-in profiles.
// It is constructed on first use and read-only thereafter. Built-in
// profiles are hand-authored data; a validation failure here is a
// programming error and panics at startup rather than at request time.
func Default() *Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
		for _, p := range builtins() {
			if err := defaultRegistry.Register(p); err != nil {
				panic(err)
			}
		}
	})
	return defaultRegistry
}

func builtins() []*ImpersonationProfile {
	return []*ImpersonationProfile{
		Chrome131(),
		Chrome133(),
		Firefox133(),
		Safari18(),
	}
}
