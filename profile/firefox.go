package profile

import (
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// Firefox133 is Firefox 133 on Windows. Firefox uses no GREASE, pads the
// ClientHello to a fixed size, and orders pseudo-headers m,p,a,s.
func Firefox133() *ImpersonationProfile {
	return &ImpersonationProfile{
		ID: "firefox-133",
		TLS: TLSProfile{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
			CipherSuites: []uint16{
				tls.TLS_AES_128_GCM_SHA256,
				tls.TLS_CHACHA20_POLY1305_SHA256,
				tls.TLS_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
				tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
				tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
				tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_RSA_WITH_AES_128_CBC_SHA,
				tls.TLS_RSA_WITH_AES_256_CBC_SHA,
			},
			CompressionMethods: []uint8{0x00},
			Extensions: []ExtensionID{
				ExtServerName,
				ExtExtendedMasterSecret,
				ExtRenegotiationInfo,
				ExtSupportedGroups,
				ExtECPointFormats,
				ExtSessionTicket,
				ExtALPN,
				ExtStatusRequest,
				ExtDelegatedCredentials,
				ExtKeyShare,
				ExtSupportedVersions,
				ExtSignatureAlgorithms,
				ExtPSKModes,
				ExtRecordSizeLimit,
				ExtPadding,
				ExtPreSharedKey,
			},
			Curves: []tls.CurveID{
				tls.X25519,
				tls.CurveP256,
				tls.CurveP384,
				tls.CurveP521,
				256, // ffdhe2048
				257, // ffdhe3072
			},
			PointFormats: []uint8{0x00},
			SignatureAlgorithms: []tls.SignatureScheme{
				tls.ECDSAWithP256AndSHA256,
				tls.ECDSAWithP384AndSHA384,
				tls.ECDSAWithP521AndSHA512,
				tls.PSSWithSHA256,
				tls.PSSWithSHA384,
				tls.PSSWithSHA512,
				tls.PKCS1WithSHA256,
				tls.PKCS1WithSHA384,
				tls.PKCS1WithSHA512,
				tls.ECDSAWithSHA1,
				tls.PKCS1WithSHA1,
			},
			DelegatedCredentials: []tls.SignatureScheme{
				tls.ECDSAWithP256AndSHA256,
				tls.ECDSAWithP384AndSHA384,
				tls.ECDSAWithP521AndSHA512,
				tls.ECDSAWithSHA1,
			},
			ALPN: []string{"h2", "http/1.1"},
			SupportedVersions: []uint16{
				tls.VersionTLS13,
				tls.VersionTLS12,
			},
			KeyShareGroups: []tls.CurveID{
				tls.X25519,
				tls.CurveP256,
			},
			PSKModes:        []uint8{tls.PskModeDHE},
			RecordSizeLimit: 0x4001,
		},
		HTTP2: HTTP2Profile{
			Settings: []HTTP2Setting{
				{ID: http2.SettingHeaderTableSize, Val: 65536},
				{ID: http2.SettingInitialWindowSize, Val: 131072},
				{ID: http2.SettingMaxFrameSize, Val: 16384},
			},
			ConnectionFlow: 12517377,
			PseudoHeaderOrder: []string{
				PseudoMethod, PseudoPath, PseudoAuthority, PseudoScheme,
			},
			HeaderPriority: &Priority{StreamDep: 13, Exclusive: false, Weight: 41},
		},
		Header: HeaderProfile{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:133.0) Gecko/20100101 Firefox/133.0",
			Defaults: []Header{
				{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"},
				{Name: "Accept-Language", Value: "en-US,en;q=0.5"},
				{Name: "Accept-Encoding", Value: "gzip, deflate, br, zstd"},
				{Name: "Upgrade-Insecure-Requests", Value: "1"},
				{Name: "Sec-Fetch-Dest", Value: "document"},
				{Name: "Sec-Fetch-Mode", Value: "navigate"},
				{Name: "Sec-Fetch-Site", Value: "none"},
				{Name: "Sec-Fetch-User", Value: "?1"},
				{Name: "Priority", Value: "u=0, i"},
			},
			Order: []string{
				"user-agent", "accept", "accept-language", "accept-encoding",
				"referer", "cookie", "upgrade-insecure-requests",
				"sec-fetch-dest", "sec-fetch-mode", "sec-fetch-site",
				"sec-fetch-user", "priority",
			},
		},
	}
}
