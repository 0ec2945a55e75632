package tlshello

import (
	"errors"
	"testing"

	tls "github.com/refraction-networking/utls"

	"github.com/guiseproj/guise/profile"
)

func testProfile() *profile.ImpersonationProfile {
	return &profile.ImpersonationProfile{
		ID: "browserx",
		TLS: profile.TLSProfile{
			MinVersion:         tls.VersionTLS12,
			MaxVersion:         tls.VersionTLS13,
			CipherSuites:       []uint16{tls.TLS_AES_128_GCM_SHA256, tls.TLS_AES_256_GCM_SHA384},
			CompressionMethods: []uint8{0x00},
			Extensions: []profile.ExtensionID{
				profile.ExtServerName,
				profile.ExtGREASE,
				profile.ExtSupportedVersions,
				profile.ExtKeyShare,
				profile.ExtPreSharedKey,
			},
			Curves:            []tls.CurveID{tls.X25519},
			ALPN:              []string{"h2"},
			SupportedVersions: []uint16{tls.VersionTLS13, tls.VersionTLS12},
			KeyShareGroups:    []tls.CurveID{tls.X25519},
		},
	}
}

func TestBuildExtensionOrder(t *testing.T) {
	p := testProfile()

	r, err := Build(p, "example.test", false)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// PSK absent without a session: four identifiers remain.
	if len(r.ExtensionIDs) != 4 {
		t.Fatalf("got %d extensions, want 4: %v", len(r.ExtensionIDs), r.ExtensionIDs)
	}
	if r.ExtensionIDs[0] != 0 {
		t.Errorf("position 0 = %d, want server_name (0)", r.ExtensionIDs[0])
	}
	if !IsGREASE(r.ExtensionIDs[1]) {
		t.Errorf("position 1 = %#04x, want a reserved GREASE value", r.ExtensionIDs[1])
	}
	if r.ExtensionIDs[2] != 43 {
		t.Errorf("position 2 = %d, want supported_versions (43)", r.ExtensionIDs[2])
	}
	if r.ExtensionIDs[3] != 51 {
		t.Errorf("position 3 = %d, want key_share (51)", r.ExtensionIDs[3])
	}

	if r.ServerName != "example.test" {
		t.Errorf("ServerName = %q, want example.test", r.ServerName)
	}
}

// The identifier sequence must be invariant across repeated builds; only
// the GREASE value at its fixed position may differ.
func TestBuildSequenceInvariant(t *testing.T) {
	p := testProfile()

	var prev []uint16
	for i := 0; i < 50; i++ {
		r, err := Build(p, "example.test", false)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		ids := make([]uint16, len(r.ExtensionIDs))
		copy(ids, r.ExtensionIDs)
		// Normalize the GREASE slot before comparing sequences.
		if !IsGREASE(ids[1]) {
			t.Fatalf("run %d: position 1 = %#04x, not GREASE", i, ids[1])
		}
		ids[1] = 0x0a0a
		if prev != nil {
			for j := range ids {
				if ids[j] != prev[j] {
					t.Fatalf("run %d: sequence %v differs from %v", i, ids, prev)
				}
			}
		}
		prev = ids
	}
}

func TestGREASEValueVaries(t *testing.T) {
	p := testProfile()

	seen := make(map[uint16]bool)
	for i := 0; i < 200; i++ {
		r, err := Build(p, "example.test", false)
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		v := r.ExtensionIDs[1]
		if !IsGREASE(v) {
			t.Fatalf("synthesized value %#04x outside the reserved set", v)
		}
		seen[v] = true
	}
	if len(seen) < 2 {
		t.Errorf("GREASE value never varied across 200 builds: %v", seen)
	}
}

func TestBuildPSKPresence(t *testing.T) {
	p := testProfile()

	withSession, err := Build(p, "example.test", true)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	last := withSession.ExtensionIDs[len(withSession.ExtensionIDs)-1]
	if last != 41 {
		t.Fatalf("with session: last extension = %d, want pre_shared_key (41)", last)
	}

	withoutSession, err := Build(p, "example.test", false)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for _, id := range withoutSession.ExtensionIDs {
		if id == 41 {
			t.Fatal("pre_shared_key present without a cached session")
		}
	}
	if len(withoutSession.ExtensionIDs) != len(withSession.ExtensionIDs)-1 {
		t.Errorf("omission should shrink the sequence by one, got %d vs %d",
			len(withoutSession.ExtensionIDs), len(withSession.ExtensionIDs))
	}
}

func TestBuildUnsupportedVersion(t *testing.T) {
	tests := []struct {
		name     string
		min, max uint16
	}{
		{"above TLS 1.3", tls.VersionTLS12, 0x0305},
		{"below TLS 1.0", 0x0300, tls.VersionTLS12},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProfile()
			p.TLS.MinVersion = tt.min
			p.TLS.MaxVersion = tt.max

			_, err := Build(p, "example.test", false)
			if !errors.Is(err, ErrUnsupportedTLSVersion) {
				t.Fatalf("Build error = %v, want ErrUnsupportedTLSVersion", err)
			}
		})
	}
}

func TestBuildBuiltinProfiles(t *testing.T) {
	for _, id := range profile.Default().IDs() {
		t.Run(id, func(t *testing.T) {
			p, err := profile.Default().Lookup(id)
			if err != nil {
				t.Fatalf("Lookup failed: %v", err)
			}
			r, err := Build(p, "example.test", false)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			if len(r.Spec.Extensions) != len(r.ExtensionIDs) {
				t.Fatalf("spec has %d extensions, identifier list has %d",
					len(r.Spec.Extensions), len(r.ExtensionIDs))
			}
			// SNI must always carry the literal target host.
			var sni *tls.SNIExtension
			for _, e := range r.Spec.Extensions {
				if s, ok := e.(*tls.SNIExtension); ok {
					sni = s
				}
			}
			if sni == nil || sni.ServerName != "example.test" {
				t.Errorf("SNI extension missing or wrong: %+v", sni)
			}
		})
	}
}
