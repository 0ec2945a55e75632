package h2preface

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/http2/hpack"

	"github.com/guiseproj/guise/profile"
)

// maxWriteFrame bounds emitted frame payloads to the protocol's default
// SETTINGS_MAX_FRAME_SIZE; larger header blocks continue in CONTINUATION
// frames.
const maxWriteFrame = 16384

// Conn wraps the TLS connection handed to the HTTP/2 transport and rewrites
// the frames it emits: the first SETTINGS frame is replaced with the
// profile's ordered parameters, the first WINDOW_UPDATE with the profile's
// connection flow increment, and each header block is re-encoded with the
// profile's pseudo-header and header field order. Frames are buffered until
// a full frame is available, so partial writes from the transport never
// produce a torn frame on the wire.
//
// The transport keeps one HPACK encoder per connection whose dynamic table
// accumulates across requests, so the wrapper keeps one decoder with the
// mirrored table and one encoder feeding the peer's. A header block that
// fails to decode is a connection error: passing it through would
// desynchronize the peer's table from the re-encoded stream.
type Conn struct {
	net.Conn
	preface Preface

	mu            sync.Mutex
	buf           bytes.Buffer
	wrotePreface  bool
	wroteSettings bool
	wroteWindow   bool

	// pendStreamID is non-zero while a header block awaits its
	// CONTINUATION frames.
	pendStreamID  uint32
	pendEndStream bool
	pendBlock     []byte

	dec    *hpack.Decoder
	enc    *hpack.Encoder
	encBuf bytes.Buffer
}

// NewConn wraps conn so frames written through it carry p's HTTP/2 shape.
func NewConn(conn net.Conn, p *profile.ImpersonationProfile) *Conn {
	c := &Conn{Conn: conn, preface: Build(p)}
	c.dec = hpack.NewDecoder(65536, nil)
	c.enc = hpack.NewEncoder(&c.encBuf)
	return c
}

func (c *Conn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	originalLen := len(p)

	for c.buf.Len() > 0 {
		data := c.buf.Bytes()

		if !c.wrotePreface {
			if len(data) < len(ClientPreface) {
				break
			}
			if !bytes.Equal(data[:len(ClientPreface)], ClientPreface) {
				// Not an HTTP/2 stream after all; stop rewriting.
				c.wrotePreface = true
				c.wroteSettings = true
				c.wroteWindow = true
				continue
			}
			if _, err := c.Conn.Write(ClientPreface); err != nil {
				return 0, err
			}
			c.buf.Next(len(ClientPreface))
			c.wrotePreface = true
			continue
		}

		if len(data) < frameHeaderLen {
			break
		}
		length := (uint32(data[0]) << 16) | (uint32(data[1]) << 8) | uint32(data[2])
		frameSize := frameHeaderLen + int(length)
		if len(data) < frameSize {
			break
		}

		out := data[:frameSize]
		switch data[3] {
		case frameTypeSettings:
			if !c.wroteSettings && data[4]&0x1 == 0 {
				out = c.preface.Settings
				c.wroteSettings = true
			}
		case frameTypeWindowUpdate:
			if !c.wroteWindow && streamIDOf(data) == 0 {
				if c.preface.WindowUpdate != nil {
					out = c.preface.WindowUpdate
				}
				c.wroteWindow = true
			}
		case frameTypeHeaders:
			if id := streamIDOf(data); id > 0 {
				frag := headerBlockOf(data[:frameSize])
				if data[4]&flagEndHeaders != 0 {
					rewritten, err := c.rewriteBlock(id, data[4]&flagEndStream != 0, frag)
					if err != nil {
						return 0, err
					}
					out = rewritten
				} else {
					// Block continues in CONTINUATION frames; hold it back.
					c.pendStreamID = id
					c.pendEndStream = data[4]&flagEndStream != 0
					c.pendBlock = append(c.pendBlock[:0], frag...)
					out = nil
				}
			}
		case frameTypeContinuation:
			if id := streamIDOf(data); c.pendStreamID != 0 && id == c.pendStreamID {
				c.pendBlock = append(c.pendBlock, data[frameHeaderLen:frameSize]...)
				if data[4]&flagEndHeaders == 0 {
					out = nil
					break
				}
				rewritten, err := c.rewriteBlock(id, c.pendEndStream, c.pendBlock)
				c.pendStreamID = 0
				c.pendBlock = c.pendBlock[:0]
				if err != nil {
					return 0, err
				}
				out = rewritten
			}
		}

		if out != nil {
			if _, err := c.Conn.Write(out); err != nil {
				return 0, err
			}
		}
		c.buf.Next(frameSize)
	}

	return originalLen, nil
}

func streamIDOf(frame []byte) uint32 {
	return binary.BigEndian.Uint32(frame[5:9]) & 0x7FFFFFFF
}

// headerBlockOf extracts the HPACK fragment of a HEADERS frame, skipping
// any pad length and priority fields per the frame's flags.
func headerBlockOf(frame []byte) []byte {
	flags := frame[4]
	start := frameHeaderLen
	padLen := 0
	if flags&flagPadded != 0 {
		padLen = int(frame[start])
		start++
	}
	if flags&flagPriority != 0 {
		start += 5
	}
	block := frame[start:]
	if padLen > 0 && padLen < len(block) {
		block = block[:len(block)-padLen]
	}
	return block
}

// rewriteBlock decodes a complete header block against the connection's
// mirrored HPACK table and re-encodes it with pseudo-headers in the
// profile's order, followed by the regular fields sorted per the profile's
// header order. Fields the profile does not mention keep their relative
// order after the ordered ones; repeated names (the transport splits the
// Cookie header into one field per cookie) all survive in order. When the
// profile declares a header priority, the PRIORITY flag is set and the
// priority block prepended.
func (c *Conn) rewriteBlock(streamID uint32, endStream bool, block []byte) ([]byte, error) {
	fields, err := c.dec.DecodeFull(block)
	if err != nil {
		return nil, fmt.Errorf("h2preface: decode header block: %w", err)
	}

	var pseudo, plain []hpack.HeaderField
	for _, f := range fields {
		if len(f.Name) > 0 && f.Name[0] == ':' {
			pseudo = append(pseudo, f)
		} else {
			plain = append(plain, f)
		}
	}

	c.encBuf.Reset()
	wrotePseudo := make([]bool, len(pseudo))
	for _, name := range c.preface.PseudoHeaderOrder {
		for i, f := range pseudo {
			if !wrotePseudo[i] && f.Name == name {
				c.enc.WriteField(f)
				wrotePseudo[i] = true
			}
		}
	}
	// Pseudo-headers outside the declared order keep their original slot.
	for i, f := range pseudo {
		if !wrotePseudo[i] {
			c.enc.WriteField(f)
		}
	}

	wrote := make([]bool, len(plain))
	for _, name := range c.preface.HeaderOrder {
		for i, f := range plain {
			if !wrote[i] && f.Name == name {
				c.enc.WriteField(f)
				wrote[i] = true
			}
		}
	}
	for i, f := range plain {
		if !wrote[i] {
			c.enc.WriteField(f)
		}
	}

	return c.frameHeaders(streamID, endStream, c.encBuf.Bytes()), nil
}

// frameHeaders frames a re-encoded block as HEADERS, continuing in
// CONTINUATION frames when it exceeds the frame size limit.
func (c *Conn) frameHeaders(streamID uint32, endStream bool, block []byte) []byte {
	var prio []byte
	var flags byte
	if endStream {
		flags |= flagEndStream
	}
	if hp := c.preface.Priority; hp != nil {
		prio = priorityBytes(hp)
		flags |= flagPriority
	}

	first := block
	var rest []byte
	if limit := maxWriteFrame - len(prio); len(first) > limit {
		first, rest = block[:limit], block[limit:]
	}
	if len(rest) == 0 {
		flags |= flagEndHeaders
	}

	out := appendFrame(nil, frameTypeHeaders, flags, streamID, prio, first)
	for len(rest) > 0 {
		frag := rest
		if len(frag) > maxWriteFrame {
			frag = rest[:maxWriteFrame]
		}
		rest = rest[len(frag):]
		var cf byte
		if len(rest) == 0 {
			cf = flagEndHeaders
		}
		out = appendFrame(out, frameTypeContinuation, cf, streamID, nil, frag)
	}
	return out
}

func appendFrame(dst []byte, typ, flags byte, streamID uint32, parts ...[]byte) []byte {
	payloadLen := 0
	for _, p := range parts {
		payloadLen += len(p)
	}
	dst = append(dst,
		byte(payloadLen>>16), byte(payloadLen>>8), byte(payloadLen),
		typ, flags,
		byte(streamID>>24)&0x7f, byte(streamID>>16), byte(streamID>>8), byte(streamID))
	for _, p := range parts {
		dst = append(dst, p...)
	}
	return dst
}
