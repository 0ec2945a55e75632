// Package tlshello turns an impersonation profile into the ordered
// ClientHello recipe the uTLS engine is driven with.
//
// The builder never constructs TLS messages itself: it produces a
// utls.ClientHelloSpec whose extension sequence reproduces the profile's
// declared order exactly. GREASE positions get a fresh reserved value per
// recipe, and the pre_shared_key extension is present only when a cached
// session makes resumption possible — presence vs. absence is part of the
// fingerprint.
package tlshello

import (
	"errors"
	"fmt"

	tls "github.com/refraction-networking/utls"

	"github.com/guiseproj/guise/profile"
)

// ErrUnsupportedTLSVersion is returned when a profile requests a protocol
// version the underlying TLS engine cannot negotiate. It fires at build
// time, before any network I/O.
var ErrUnsupportedTLSVersion = errors.New("unsupported TLS version")

// Recipe is the construction plan handed to the TLS engine before the
// handshake starts.
type Recipe struct {
	// Spec is applied to the uTLS connection via ApplyPreset.
	Spec tls.ClientHelloSpec

	// ServerName is the literal target host, sent as SNI.
	ServerName string

	// MinVersion and MaxVersion bound negotiation.
	MinVersion uint16
	MaxVersion uint16

	// ExtensionIDs is the identifier sequence of Spec.Extensions, with
	// synthesized GREASE values in place. Exposed for verification; the
	// identifier sequence is invariant across builds of the same profile.
	ExtensionIDs []uint16
}

// Build produces the recipe for one connection under profile p to host.
// resumable says whether a session ticket/PSK is cached for (host, p); it
// controls whether the pre_shared_key extension appears at its declared
// position or is omitted entirely.
func Build(p *profile.ImpersonationProfile, host string, resumable bool) (*Recipe, error) {
	if p.TLS.MinVersion < tls.VersionTLS10 || p.TLS.MaxVersion > tls.VersionTLS13 {
		return nil, fmt.Errorf("%w: profile %s wants %#04x-%#04x", ErrUnsupportedTLSVersion,
			p.ID, p.TLS.MinVersion, p.TLS.MaxVersion)
	}

	grease := rollGREASE()

	var (
		exts []tls.TLSExtension
		ids  []uint16
	)
	for _, id := range p.TLS.Extensions {
		if id == profile.ExtPreSharedKey && !resumable {
			continue
		}
		exts = append(exts, extensionFor(id, p, host, grease))
		if id == profile.ExtGREASE {
			ids = append(ids, grease)
		} else {
			ids = append(ids, uint16(id))
		}
	}

	spec := tls.ClientHelloSpec{
		TLSVersMin:         p.TLS.MinVersion,
		TLSVersMax:         p.TLS.MaxVersion,
		CipherSuites:       append([]uint16(nil), p.TLS.CipherSuites...),
		CompressionMethods: append([]uint8(nil), p.TLS.CompressionMethods...),
		Extensions:         exts,
	}

	return &Recipe{
		Spec:         spec,
		ServerName:   host,
		MinVersion:   p.TLS.MinVersion,
		MaxVersion:   p.TLS.MaxVersion,
		ExtensionIDs: ids,
	}, nil
}

// extensionFor maps a profile extension identifier to the uTLS extension
// carrying that profile's parameters.
func extensionFor(id profile.ExtensionID, p *profile.ImpersonationProfile, host string, grease uint16) tls.TLSExtension {
	switch id {
	case profile.ExtGREASE:
		return &tls.UtlsGREASEExtension{Value: grease}

	case profile.ExtServerName:
		return &tls.SNIExtension{ServerName: host}

	case profile.ExtStatusRequest:
		return &tls.StatusRequestExtension{}

	case profile.ExtSupportedGroups:
		return &tls.SupportedCurvesExtension{Curves: append([]tls.CurveID(nil), p.TLS.Curves...)}

	case profile.ExtECPointFormats:
		return &tls.SupportedPointsExtension{SupportedPoints: p.TLS.PointFormats}

	case profile.ExtSignatureAlgorithms:
		return &tls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: p.TLS.SignatureAlgorithms}

	case profile.ExtALPN:
		return &tls.ALPNExtension{AlpnProtocols: append([]string(nil), p.TLS.ALPN...)}

	case profile.ExtSCT:
		return &tls.SCTExtension{}

	case profile.ExtPadding:
		return &tls.UtlsPaddingExtension{GetPaddingLen: tls.BoringPaddingStyle}

	case profile.ExtExtendedMasterSecret:
		return &tls.UtlsExtendedMasterSecretExtension{}

	case profile.ExtCompressCertificate:
		return &tls.UtlsCompressCertExtension{Algorithms: p.TLS.CertCompression}

	case profile.ExtRecordSizeLimit:
		return &tls.FakeRecordSizeLimitExtension{Limit: p.TLS.RecordSizeLimit}

	case profile.ExtDelegatedCredentials:
		return &tls.DelegatedCredentialsExtension{SupportedSignatureAlgorithms: p.TLS.DelegatedCredentials}

	case profile.ExtSessionTicket:
		return &tls.SessionTicketExtension{}

	case profile.ExtPreSharedKey:
		// Binder data is filled in by the engine during the handshake.
		return &tls.UtlsPreSharedKeyExtension{}

	case profile.ExtSupportedVersions:
		return &tls.SupportedVersionsExtension{Versions: append([]uint16(nil), p.TLS.SupportedVersions...)}

	case profile.ExtPSKModes:
		return &tls.PSKKeyExchangeModesExtension{Modes: p.TLS.PSKModes}

	case profile.ExtSignatureAlgorithmsCert:
		return &tls.SignatureAlgorithmsCertExtension{SupportedSignatureAlgorithms: p.TLS.SignatureAlgorithmsCert}

	case profile.ExtKeyShare:
		shares := make([]tls.KeyShare, 0, len(p.TLS.KeyShareGroups))
		for _, g := range p.TLS.KeyShareGroups {
			if IsGREASE(uint16(g)) {
				// Browsers send a one-byte placeholder share for GREASE.
				shares = append(shares, tls.KeyShare{Group: tls.CurveID(grease), Data: []byte{0}})
				continue
			}
			shares = append(shares, tls.KeyShare{Group: g})
		}
		return &tls.KeyShareExtension{KeyShares: shares}

	case profile.ExtALPS:
		return &tls.ApplicationSettingsExtension{SupportedProtocols: append([]string(nil), p.TLS.ALPS...)}

	case profile.ExtECH:
		return tls.BoringGREASEECH()

	case profile.ExtRenegotiationInfo:
		return &tls.RenegotiationInfoExtension{Renegotiation: tls.RenegotiateOnceAsClient}

	default:
		return &tls.GenericExtension{Id: uint16(id)}
	}
}
