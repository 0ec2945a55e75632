package profile

import (
	tls "github.com/refraction-networking/utls"
	"golang.org/x/net/http2"
)

// chromeBase returns the layout shared by recent Chrome releases. Chrome
// shuffles its extension order per browser launch; a profile pins one
// captured permutation so the fingerprint is reproducible. GREASE sits at
// the first and last extension position and in the cipher, curve, version
// and key-share lists.
func chromeBase(id, version string) *ImpersonationProfile {
	return &ImpersonationProfile{
		ID: id,
		TLS: TLSProfile{
			MinVersion: tls.VersionTLS12,
			MaxVersion: tls.VersionTLS13,
			CipherSuites: []uint16{
				tls.GREASE_PLACEHOLDER,
				tls.TLS_AES_128_GCM_SHA256,
				tls.TLS_AES_256_GCM_SHA384,
				tls.TLS_CHACHA20_POLY1305_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
				tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
				tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
				tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
				tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
				tls.TLS_RSA_WITH_AES_128_CBC_SHA,
				tls.TLS_RSA_WITH_AES_256_CBC_SHA,
			},
			CompressionMethods: []uint8{0x00},
			Extensions: []ExtensionID{
				ExtGREASE,
				ExtServerName,
				ExtExtendedMasterSecret,
				ExtRenegotiationInfo,
				ExtSupportedGroups,
				ExtECPointFormats,
				ExtSessionTicket,
				ExtALPN,
				ExtStatusRequest,
				ExtSignatureAlgorithms,
				ExtSCT,
				ExtKeyShare,
				ExtPSKModes,
				ExtSupportedVersions,
				ExtCompressCertificate,
				ExtALPS,
				ExtECH,
				ExtGREASE,
				ExtPreSharedKey,
			},
			Curves: []tls.CurveID{
				tls.GREASE_PLACEHOLDER,
				tls.X25519MLKEM768,
				tls.X25519,
				tls.CurveP256,
				tls.CurveP384,
			},
			PointFormats: []uint8{0x00},
			SignatureAlgorithms: []tls.SignatureScheme{
				tls.ECDSAWithP256AndSHA256,
				tls.PSSWithSHA256,
				tls.PKCS1WithSHA256,
				tls.ECDSAWithP384AndSHA384,
				tls.PSSWithSHA384,
				tls.PKCS1WithSHA384,
				tls.PSSWithSHA512,
				tls.PKCS1WithSHA512,
			},
			ALPN: []string{"h2", "http/1.1"},
			ALPS: []string{"h2"},
			SupportedVersions: []uint16{
				tls.GREASE_PLACEHOLDER,
				tls.VersionTLS13,
				tls.VersionTLS12,
			},
			KeyShareGroups: []tls.CurveID{
				tls.GREASE_PLACEHOLDER,
				tls.X25519MLKEM768,
				tls.X25519,
			},
			PSKModes:        []uint8{tls.PskModeDHE},
			CertCompression: []tls.CertCompressionAlgo{tls.CertCompressionBrotli},
		},
		HTTP2: HTTP2Profile{
			// Chrome omits MAX_CONCURRENT_STREAMS and MAX_FRAME_SIZE;
			// sending them at defaults is itself a tell.
			Settings: []HTTP2Setting{
				{ID: http2.SettingHeaderTableSize, Val: 65536},
				{ID: http2.SettingEnablePush, Val: 0},
				{ID: http2.SettingInitialWindowSize, Val: 6291456},
				{ID: http2.SettingMaxHeaderListSize, Val: 262144},
			},
			ConnectionFlow: 15663105,
			PseudoHeaderOrder: []string{
				PseudoMethod, PseudoAuthority, PseudoScheme, PseudoPath,
			},
			HeaderPriority: &Priority{StreamDep: 0, Exclusive: true, Weight: 255},
		},
		Header: HeaderProfile{
			UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + version + ".0.0.0 Safari/537.36",
			Defaults: []Header{
				{Name: "sec-ch-ua", Value: `"Google Chrome";v="` + version + `", "Chromium";v="` + version + `", "Not_A Brand";v="24"`},
				{Name: "sec-ch-ua-mobile", Value: "?0"},
				{Name: "sec-ch-ua-platform", Value: `"Windows"`},
				{Name: "Upgrade-Insecure-Requests", Value: "1"},
				{Name: "Accept", Value: "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7"},
				{Name: "Sec-Fetch-Site", Value: "none"},
				{Name: "Sec-Fetch-Mode", Value: "navigate"},
				{Name: "Sec-Fetch-User", Value: "?1"},
				{Name: "Sec-Fetch-Dest", Value: "document"},
				{Name: "Accept-Encoding", Value: "gzip, deflate, br, zstd"},
				{Name: "Accept-Language", Value: "en-US,en;q=0.9"},
				{Name: "Priority", Value: "u=0, i"},
			},
			Order: []string{
				"sec-ch-ua", "sec-ch-ua-mobile", "sec-ch-ua-platform",
				"upgrade-insecure-requests", "user-agent", "accept",
				"sec-fetch-site", "sec-fetch-mode", "sec-fetch-user", "sec-fetch-dest",
				"accept-encoding", "accept-language", "priority",
				"cache-control", "cookie", "origin", "pragma", "referer",
			},
		},
	}
}

// Chrome131 is Chrome 131 on Windows.
func Chrome131() *ImpersonationProfile {
	return chromeBase("chrome-131", "131")
}

// Chrome133 is Chrome 133 on Windows.
func Chrome133() *ImpersonationProfile {
	return chromeBase("chrome-133", "133")
}
