package tlshello

import (
	"math/rand/v2"
)

// greaseValues are the sixteen reserved GREASE values from RFC 8701.
// Browsers draw from this set at random; a client that always emits the
// same value turns GREASE itself into a static signature.
var greaseValues = [16]uint16{
	0x0a0a, 0x1a1a, 0x2a2a, 0x3a3a,
	0x4a4a, 0x5a5a, 0x6a6a, 0x7a7a,
	0x8a8a, 0x9a9a, 0xaaaa, 0xbaba,
	0xcaca, 0xdada, 0xeaea, 0xfafa,
}

// rollGREASE returns a random reserved GREASE value. Values are rolled
// once per built recipe, so every connection carries fresh GREASE while
// all extensions within one ClientHello agree, matching browser behavior.
func rollGREASE() uint16 {
	return greaseValues[rand.IntN(len(greaseValues))]
}

// IsGREASE reports whether v is a reserved GREASE value.
func IsGREASE(v uint16) bool {
	return v&0x0f0f == 0x0a0a
}
