// Package h2preface shapes the client-side HTTP/2 connection preamble so
// that the SETTINGS order, the connection-level WINDOW_UPDATE increment and
// the request header layout match a browser profile. The standard transport
// emits these in its own fixed shape; everything here exists to replace that
// shape on the wire without touching the transport itself.
package h2preface

import (
	"encoding/binary"

	"github.com/guiseproj/guise/profile"
)

const frameHeaderLen = 9

const (
	frameTypeHeaders      = 0x1
	frameTypeSettings     = 0x4
	frameTypeWindowUpdate = 0x8
	frameTypeContinuation = 0x9
)

const (
	flagEndStream  = 0x1
	flagEndHeaders = 0x4
	flagPadded     = 0x8
	flagPriority   = 0x20
)

// ClientPreface is the fixed connection preamble every HTTP/2 client sends
// before its first frame.
var ClientPreface = []byte("PRI * HTTP/2.0\r\n\r\nSM\r\n\r\n")

// Preface is the profile's HTTP/2 connection opening, computed once per
// connection and fixed for its lifetime.
type Preface struct {
	// Settings is the encoded SETTINGS frame in the profile's order.
	Settings []byte
	// WindowUpdate is the encoded connection-level WINDOW_UPDATE, nil when
	// the profile sends none.
	WindowUpdate []byte
	// PseudoHeaderOrder is the emission order for request pseudo-headers.
	PseudoHeaderOrder []string
	// HeaderOrder lists lowercase header names in emission order.
	HeaderOrder []string
	// Priority, when non-nil, is attached to request HEADERS frames.
	Priority *profile.Priority
}

// Build computes the connection preamble for a profile.
func Build(p *profile.ImpersonationProfile) Preface {
	pf := Preface{
		Settings:          SettingsFrame(p.HTTP2.Settings),
		PseudoHeaderOrder: p.HTTP2.PseudoHeaderOrder,
		HeaderOrder:       p.Header.Order,
		Priority:          p.HTTP2.HeaderPriority,
	}
	if p.HTTP2.ConnectionFlow > 0 {
		pf.WindowUpdate = WindowUpdateFrame(p.HTTP2.ConnectionFlow)
	}
	return pf
}

// SettingsFrame encodes the profile's SETTINGS parameters in declaration
// order. Parameters absent from the list are not written at all; servers
// that fingerprint clients observe the omission, so no defaults are filled
// in on the sender's behalf.
func SettingsFrame(settings []profile.HTTP2Setting) []byte {
	payloadLen := 6 * len(settings)
	frame := make([]byte, frameHeaderLen+payloadLen)
	frame[0] = byte(payloadLen >> 16)
	frame[1] = byte(payloadLen >> 8)
	frame[2] = byte(payloadLen)
	frame[3] = frameTypeSettings

	off := frameHeaderLen
	for _, s := range settings {
		binary.BigEndian.PutUint16(frame[off:], uint16(s.ID))
		binary.BigEndian.PutUint32(frame[off+2:], s.Val)
		off += 6
	}
	return frame
}

// WindowUpdateFrame encodes a connection-level WINDOW_UPDATE carrying the
// profile's flow-control increment. The reserved high bit is masked off.
func WindowUpdateFrame(increment uint32) []byte {
	frame := make([]byte, frameHeaderLen+4)
	frame[2] = 4
	frame[3] = frameTypeWindowUpdate
	binary.BigEndian.PutUint32(frame[frameHeaderLen:], increment&0x7FFFFFFF)
	return frame
}

// priorityBytes encodes the 5-byte priority block of a HEADERS frame.
// Priority.Weight already holds the wire byte (declared weight minus one).
func priorityBytes(p *profile.Priority) []byte {
	b := make([]byte, 5)
	dep := p.StreamDep & 0x7FFFFFFF
	if p.Exclusive {
		dep |= 0x80000000
	}
	binary.BigEndian.PutUint32(b[:4], dep)
	b[4] = p.Weight
	return b
}
