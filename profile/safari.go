package profile

import (
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Safari18 is Safari 18 on macOS. Safari keeps a long legacy cipher tail,
// orders pseudo-headers m,s,p,a and sends a small SETTINGS frame.
func Safari18() *ImpersonationProfile {
	return &ImpersonationProfile{
		ID: "safari-18",
		TLS: TLSProfile{
			MinVersion: tls.VersionTLS10,
			MaxVersion: tls.VersionTLS13,
			CipherSuites: []uint16{
				tls.GREASE_PLACEHOLDER,
				tls.TLS_AES_128_GCM_SHA256,
				tls.TLS_AES_256_GCM_SHA384,
				tls.TLS_CHACHA20_POLY1305_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
				tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
				tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
				tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_RSA_WITH_AES_256_CBC_SHA,
				tls.TLS_RSA_WITH_AES_128_CBC_SHA,
			},
			CompressionMethods: []uint8{0x00},
			Extensions: []ExtensionID{
				ExtGREASE,
				ExtServerName,
				ExtExtendedMasterSecret,
				ExtRenegotiationInfo,
				ExtSupportedGroups,
				ExtECPointFormats,
				ExtALPN,
				ExtStatusRequest,
				ExtSignatureAlgorithms,
				ExtSCT,
				ExtKeyShare,
				ExtPSKModes,
				ExtSupportedVersions,
				ExtCompressCertificate,
				ExtGREASE,
				ExtPadding,
				ExtPreSharedKey,
			},
			Curves: []tls.CurveID{
				tls.GREASE_PLACEHOLDER,
				tls.X25519,
				tls.CurveP256,
				tls.CurveP384,
				tls.CurveP521,
			},
			PointFormats: []uint8{0x00},
			SignatureAlgorithms: []tls.SignatureScheme{
				tls.ECDSAWithP256AndSHA256,
				tls.PSSWithSHA256,
				tls.PKCS1WithSHA256,
				tls.ECDSAWithP384AndSHA384,
				tls.ECDSAWithSHA1,
				tls.PSSWithSHA384,
				tls.PKCS1WithSHA384,
				tls.PSSWithSHA512,
				tls.PKCS1WithSHA512,
				tls.PKCS1WithSHA1,
			},
			ALPN: []string{"h2", "http/1.1"},
			SupportedVersions: []uint16{
				tls.GREASE_PLACEHOLDER,
				tls.VersionTLS13,
				tls.VersionTLS12,
				tls.VersionTLS11,
				tls.VersionTLS10,
			},
			KeyShareGroups: []tls.CurveID{
				tls.GREASE_PLACEHOLDER,
				tls.X25519,
			},
			PSKModes:        []uint8{tls.PskModeDHE},
			CertCompression: []tls.CertCompressionAlgo{tls.CertCompressionZlib},
		},
		HTTP2: HTTP2Profile{
			Settings: []HTTP2Setting{
				{ID: http2.SettingInitialWindowSize, Val: 4194304},
				{ID: http2.SettingMaxConcurrentStreams, Val: 100},
			},
			ConnectionFlow: 10485760,
			PseudoHeaderOrder: []string{
				PseudoMethod, PseudoScheme, PseudoPath, PseudoAuthority,
			},
			HeaderPriority: &Priority{StreamDep: 0, Exclusive: false, Weight: 254},
		},
		Header: HeaderProfile{
			UserAgent: "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/18.0 Safari/605.1.15",
			Defaults: []Header{
				{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"},
				{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
				{Name: "Accept-Encoding", Value: "gzip, deflate, br"},
				{Name: "Sec-Fetch-Dest", Value: "document"},
				{Name: "Sec-Fetch-Mode", Value: "navigate"},
				{Name: "Sec-Fetch-Site", Value: "none"},
			},
			Order: []string{
				"accept", "sec-fetch-site", "accept-encoding",
				"sec-fetch-mode", "user-agent", "accept-language",
				"sec-fetch-dest", "cookie", "referer", "priority",
			},
		},
	}
}
