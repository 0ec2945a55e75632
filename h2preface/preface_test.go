package h2preface

import (
	"bytes"
	"encoding/binary"
	"net"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"

	"github.com/guiseproj/guise/profile"
)

func TestSettingsFrameOrder(t *testing.T) {
	frame := SettingsFrame([]profile.HTTP2Setting{
		{ID: http2.SettingHeaderTableSize, Val: 100},
		{ID: http2.SettingMaxConcurrentStreams, Val: 0},
	})

	want := []byte{
		0x00, 0x00, 0x0c, // length 12
		0x04,                   // SETTINGS
		0x00,                   // flags
		0x00, 0x00, 0x00, 0x00, // stream 0
		0x00, 0x01, 0x00, 0x00, 0x00, 0x64, // HEADER_TABLE_SIZE = 100
		0x00, 0x03, 0x00, 0x00, 0x00, 0x00, // MAX_CONCURRENT_STREAMS = 0
	}
	if !bytes.Equal(frame, want) {
		t.Fatalf("frame = %x, want %x", frame, want)
	}
}

// A parameter absent from the profile must be absent from the frame, not
// sent with its protocol default.
func TestSettingsFrameOmission(t *testing.T) {
	frame := SettingsFrame([]profile.HTTP2Setting{
		{ID: http2.SettingInitialWindowSize, Val: 6291456},
	})
	if len(frame) != frameHeaderLen+6 {
		t.Fatalf("frame length = %d, want %d", len(frame), frameHeaderLen+6)
	}
	for off := frameHeaderLen; off < len(frame); off += 6 {
		id := binary.BigEndian.Uint16(frame[off:])
		if id != uint16(http2.SettingInitialWindowSize) {
			t.Fatalf("unexpected setting %d in frame", id)
		}
	}
}

func TestSettingsFrameEmpty(t *testing.T) {
	frame := SettingsFrame(nil)
	if len(frame) != frameHeaderLen {
		t.Fatalf("empty settings frame length = %d, want bare header", len(frame))
	}
}

func TestWindowUpdateFrame(t *testing.T) {
	frame := WindowUpdateFrame(15663105)
	if frame[3] != frameTypeWindowUpdate {
		t.Fatalf("frame type = %#x", frame[3])
	}
	if got := binary.BigEndian.Uint32(frame[frameHeaderLen:]); got != 15663105 {
		t.Fatalf("increment = %d, want 15663105", got)
	}

	// Reserved bit must be masked.
	frame = WindowUpdateFrame(0xFFFFFFFF)
	if got := binary.BigEndian.Uint32(frame[frameHeaderLen:]); got != 0x7FFFFFFF {
		t.Fatalf("increment = %#x, want high bit cleared", got)
	}
}

func TestBuildPreface(t *testing.T) {
	p := testH2Profile()
	pf := Build(p)
	if !bytes.Equal(pf.Settings, SettingsFrame(p.HTTP2.Settings)) {
		t.Fatalf("settings frame mismatch")
	}
	if !bytes.Equal(pf.WindowUpdate, WindowUpdateFrame(p.HTTP2.ConnectionFlow)) {
		t.Fatalf("window update frame mismatch")
	}
	if pf.Priority == nil || pf.Priority.Weight != 255 {
		t.Fatalf("priority = %+v, want weight 255", pf.Priority)
	}

	p.HTTP2.ConnectionFlow = 0
	if pf = Build(p); pf.WindowUpdate != nil {
		t.Fatalf("window update = %v, want nil when flow is zero", pf.WindowUpdate)
	}
}

// sinkConn collects everything written through the wrapper.
type sinkConn struct {
	out bytes.Buffer
}

func (s *sinkConn) Write(p []byte) (int, error)      { return s.out.Write(p) }
func (s *sinkConn) Read(p []byte) (int, error)       { return 0, nil }
func (s *sinkConn) Close() error                     { return nil }
func (s *sinkConn) LocalAddr() net.Addr              { return nil }
func (s *sinkConn) RemoteAddr() net.Addr             { return nil }
func (s *sinkConn) SetDeadline(time.Time) error      { return nil }
func (s *sinkConn) SetReadDeadline(time.Time) error  { return nil }
func (s *sinkConn) SetWriteDeadline(time.Time) error { return nil }

func testH2Profile() *profile.ImpersonationProfile {
	return &profile.ImpersonationProfile{
		ID: "test",
		HTTP2: profile.HTTP2Profile{
			Settings: []profile.HTTP2Setting{
				{ID: http2.SettingHeaderTableSize, Val: 100},
				{ID: http2.SettingMaxConcurrentStreams, Val: 0},
			},
			ConnectionFlow: 15663105,
			PseudoHeaderOrder: []string{
				profile.PseudoMethod, profile.PseudoAuthority,
				profile.PseudoScheme, profile.PseudoPath,
			},
			HeaderPriority: &profile.Priority{StreamDep: 0, Exclusive: true, Weight: 255},
		},
		Header: profile.HeaderProfile{
			Order: []string{"user-agent", "accept", "accept-encoding"},
		},
	}
}

func TestConnReplacesPreamble(t *testing.T) {
	sink := &sinkConn{}
	c := NewConn(sink, testH2Profile())

	if _, err := c.Write(ClientPreface); err != nil {
		t.Fatalf("preface write failed: %v", err)
	}
	fr := http2.NewFramer(c, nil)
	if err := fr.WriteSettings(
		http2.Setting{ID: http2.SettingEnablePush, Val: 0},
		http2.Setting{ID: http2.SettingInitialWindowSize, Val: 4194304},
	); err != nil {
		t.Fatalf("WriteSettings failed: %v", err)
	}
	if err := fr.WriteWindowUpdate(0, 1073741824); err != nil {
		t.Fatalf("WriteWindowUpdate failed: %v", err)
	}

	out := sink.out.Bytes()
	if !bytes.HasPrefix(out, ClientPreface) {
		t.Fatal("preface not passed through")
	}

	rd := http2.NewFramer(nil, bytes.NewReader(out[len(ClientPreface):]))
	f, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("reading first frame: %v", err)
	}
	sf, ok := f.(*http2.SettingsFrame)
	if !ok {
		t.Fatalf("first frame is %T, want SETTINGS", f)
	}
	var got []http2.Setting
	sf.ForeachSetting(func(s http2.Setting) error {
		got = append(got, s)
		return nil
	})
	if len(got) != 2 ||
		got[0].ID != http2.SettingHeaderTableSize || got[0].Val != 100 ||
		got[1].ID != http2.SettingMaxConcurrentStreams || got[1].Val != 0 {
		t.Fatalf("rewritten settings = %v", got)
	}

	f, err = rd.ReadFrame()
	if err != nil {
		t.Fatalf("reading second frame: %v", err)
	}
	wu, ok := f.(*http2.WindowUpdateFrame)
	if !ok {
		t.Fatalf("second frame is %T, want WINDOW_UPDATE", f)
	}
	if wu.Increment != 15663105 {
		t.Fatalf("increment = %d, want profile flow value", wu.Increment)
	}
}

func TestConnRewritesHeaders(t *testing.T) {
	sink := &sinkConn{}
	c := NewConn(sink, testH2Profile())

	if _, err := c.Write(ClientPreface); err != nil {
		t.Fatal(err)
	}
	fr := http2.NewFramer(c, nil)
	if err := fr.WriteSettings(); err != nil {
		t.Fatal(err)
	}
	if err := fr.WriteWindowUpdate(0, 1); err != nil {
		t.Fatal(err)
	}

	// Transport emits pseudo-headers in its own order and regular headers
	// alphabetically; both must come out in the profile's order.
	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	for _, f := range []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.test"},
		{Name: "accept", Value: "*/*"},
		{Name: "x-custom", Value: "1"},
		{Name: "user-agent", Value: "test-agent"},
	} {
		enc.WriteField(f)
	}
	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: hb.Bytes(),
		EndHeaders:    true,
		EndStream:     true,
	}); err != nil {
		t.Fatal(err)
	}

	rd := http2.NewFramer(nil, bytes.NewReader(sink.out.Bytes()[len(ClientPreface):]))
	rd.ReadFrame() // SETTINGS
	rd.ReadFrame() // WINDOW_UPDATE
	f, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("reading HEADERS: %v", err)
	}
	hf, ok := f.(*http2.HeadersFrame)
	if !ok {
		t.Fatalf("third frame is %T, want HEADERS", f)
	}
	if !hf.HasPriority() {
		t.Fatal("PRIORITY flag not set despite declared header priority")
	}
	if !hf.Priority.Exclusive || hf.Priority.StreamDep != 0 || hf.Priority.Weight != 255 {
		t.Fatalf("priority = %+v", hf.Priority)
	}

	dec := hpack.NewDecoder(65536, nil)
	fields, err := dec.DecodeFull(hf.HeaderBlockFragment())
	if err != nil {
		t.Fatalf("decoding rewritten block: %v", err)
	}
	var names []string
	for _, hfield := range fields {
		names = append(names, hfield.Name)
	}
	want := []string{":method", ":authority", ":scheme", ":path", "user-agent", "accept", "x-custom"}
	if len(names) != len(want) {
		t.Fatalf("fields = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("field %d = %q, want %q (full order %v)", i, names[i], want[i], names)
		}
	}
}

// Extended CONNECT carries :protocol, which no profile order lists; it must
// survive the rewrite after the ordered pseudo-headers.
func TestConnKeepsUnlistedPseudoHeaders(t *testing.T) {
	sink := &sinkConn{}
	c := NewConn(sink, testH2Profile())

	if _, err := c.Write(ClientPreface); err != nil {
		t.Fatal(err)
	}
	fr := http2.NewFramer(c, nil)
	if err := fr.WriteSettings(); err != nil {
		t.Fatal(err)
	}
	if err := fr.WriteWindowUpdate(0, 1); err != nil {
		t.Fatal(err)
	}

	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	for _, f := range []hpack.HeaderField{
		{Name: ":method", Value: "CONNECT"},
		{Name: ":protocol", Value: "websocket"},
		{Name: ":scheme", Value: "https"},
		{Name: ":path", Value: "/chat"},
		{Name: ":authority", Value: "example.test"},
		{Name: "origin", Value: "https://example.test"},
	} {
		enc.WriteField(f)
	}
	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: hb.Bytes(),
		EndHeaders:    true,
	}); err != nil {
		t.Fatal(err)
	}

	rd := http2.NewFramer(nil, bytes.NewReader(sink.out.Bytes()[len(ClientPreface):]))
	rd.ReadFrame() // SETTINGS
	rd.ReadFrame() // WINDOW_UPDATE
	f, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("reading HEADERS: %v", err)
	}
	hf, ok := f.(*http2.HeadersFrame)
	if !ok {
		t.Fatalf("third frame is %T, want HEADERS", f)
	}

	dec := hpack.NewDecoder(65536, nil)
	fields, err := dec.DecodeFull(hf.HeaderBlockFragment())
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, hfield := range fields {
		names = append(names, hfield.Name)
	}
	want := []string{":method", ":authority", ":scheme", ":path", ":protocol", "origin"}
	if len(names) != len(want) {
		t.Fatalf("fields = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("field %d = %q, want %q (full order %v)", i, names[i], want[i], names)
		}
	}
}

// The transport keeps one HPACK encoder per connection, so the second
// request's block arrives full of dynamic-table references. The rewrite
// must stay synchronized with that table across requests on a reused
// connection.
func TestConnRewritesReusedConnection(t *testing.T) {
	sink := &sinkConn{}
	c := NewConn(sink, testH2Profile())

	if _, err := c.Write(ClientPreface); err != nil {
		t.Fatal(err)
	}
	fr := http2.NewFramer(c, nil)
	if err := fr.WriteSettings(); err != nil {
		t.Fatal(err)
	}
	if err := fr.WriteWindowUpdate(0, 1); err != nil {
		t.Fatal(err)
	}

	// One encoder for the connection's lifetime, as the transport keeps.
	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	writeRequest := func(streamID uint32, path string) {
		hb.Reset()
		for _, f := range []hpack.HeaderField{
			{Name: ":method", Value: "GET"},
			{Name: ":path", Value: path},
			{Name: ":scheme", Value: "https"},
			{Name: ":authority", Value: "example.test"},
			{Name: "accept", Value: "*/*"},
			{Name: "user-agent", Value: "test-agent"},
		} {
			enc.WriteField(f)
		}
		if err := fr.WriteHeaders(http2.HeadersFrameParam{
			StreamID:      streamID,
			BlockFragment: hb.Bytes(),
			EndHeaders:    true,
			EndStream:     true,
		}); err != nil {
			t.Fatal(err)
		}
	}
	writeRequest(1, "/first")
	writeRequest(3, "/second")

	// A server-side decoder whose table likewise persists per connection.
	rd := http2.NewFramer(nil, bytes.NewReader(sink.out.Bytes()[len(ClientPreface):]))
	rd.ReadMetaHeaders = hpack.NewDecoder(65536, nil)
	rd.ReadFrame() // SETTINGS
	rd.ReadFrame() // WINDOW_UPDATE

	wantNames := []string{":method", ":authority", ":scheme", ":path", "user-agent", "accept"}
	for _, want := range []struct {
		stream uint32
		path   string
	}{{1, "/first"}, {3, "/second"}} {
		f, err := rd.ReadFrame()
		if err != nil {
			t.Fatalf("stream %d: reading HEADERS: %v", want.stream, err)
		}
		mh, ok := f.(*http2.MetaHeadersFrame)
		if !ok {
			t.Fatalf("stream %d: frame is %T, want MetaHeadersFrame", want.stream, f)
		}
		if mh.StreamID != want.stream {
			t.Fatalf("stream ID = %d, want %d", mh.StreamID, want.stream)
		}
		var names []string
		fields := make(map[string]string, len(mh.Fields))
		for _, hf := range mh.Fields {
			names = append(names, hf.Name)
			fields[hf.Name] = hf.Value
		}
		for i, name := range wantNames {
			if i >= len(names) || names[i] != name {
				t.Fatalf("stream %d: field order = %v, want %v", want.stream, names, wantNames)
			}
		}
		if fields[":path"] != want.path {
			t.Fatalf("stream %d: :path = %q, want %q", want.stream, fields[":path"], want.path)
		}
		if fields[":authority"] != "example.test" {
			t.Fatalf("stream %d: :authority = %q", want.stream, fields[":authority"])
		}
	}
}

// The transport splits the Cookie header into one field per cookie; every
// repetition must survive the rewrite in order.
func TestConnKeepsRepeatedCookieFields(t *testing.T) {
	sink := &sinkConn{}
	c := NewConn(sink, testH2Profile())

	if _, err := c.Write(ClientPreface); err != nil {
		t.Fatal(err)
	}
	fr := http2.NewFramer(c, nil)
	if err := fr.WriteSettings(); err != nil {
		t.Fatal(err)
	}
	if err := fr.WriteWindowUpdate(0, 1); err != nil {
		t.Fatal(err)
	}

	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	for _, f := range []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.test"},
		{Name: "cookie", Value: "a=1"},
		{Name: "cookie", Value: "b=2"},
		{Name: "cookie", Value: "c=3"},
		{Name: "user-agent", Value: "test-agent"},
	} {
		enc.WriteField(f)
	}
	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: hb.Bytes(),
		EndHeaders:    true,
		EndStream:     true,
	}); err != nil {
		t.Fatal(err)
	}

	rd := http2.NewFramer(nil, bytes.NewReader(sink.out.Bytes()[len(ClientPreface):]))
	rd.ReadMetaHeaders = hpack.NewDecoder(65536, nil)
	rd.ReadFrame() // SETTINGS
	rd.ReadFrame() // WINDOW_UPDATE
	f, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("reading HEADERS: %v", err)
	}
	mh, ok := f.(*http2.MetaHeadersFrame)
	if !ok {
		t.Fatalf("frame is %T, want MetaHeadersFrame", f)
	}

	var cookies []string
	for _, hf := range mh.Fields {
		if hf.Name == "cookie" {
			cookies = append(cookies, hf.Value)
		}
	}
	want := []string{"a=1", "b=2", "c=3"}
	if len(cookies) != len(want) {
		t.Fatalf("cookie fields = %v, want %v", cookies, want)
	}
	for i := range want {
		if cookies[i] != want[i] {
			t.Fatalf("cookie %d = %q, want %q", i, cookies[i], want[i])
		}
	}
}

// A header block larger than the frame size continues in CONTINUATION
// frames; the rewrite must buffer the whole block and re-split its output.
func TestConnRewritesContinuedHeaderBlock(t *testing.T) {
	sink := &sinkConn{}
	c := NewConn(sink, testH2Profile())

	if _, err := c.Write(ClientPreface); err != nil {
		t.Fatal(err)
	}
	fr := http2.NewFramer(c, nil)
	if err := fr.WriteSettings(); err != nil {
		t.Fatal(err)
	}
	if err := fr.WriteWindowUpdate(0, 1); err != nil {
		t.Fatal(err)
	}

	big := strings.Repeat("0123456789abcdef", 2000) // 32000 bytes
	var hb bytes.Buffer
	enc := hpack.NewEncoder(&hb)
	for _, f := range []hpack.HeaderField{
		{Name: ":method", Value: "GET"},
		{Name: ":path", Value: "/"},
		{Name: ":scheme", Value: "https"},
		{Name: ":authority", Value: "example.test"},
		{Name: "cookie", Value: big},
		{Name: "user-agent", Value: "test-agent"},
	} {
		enc.WriteField(f)
	}
	block := hb.Bytes()
	if len(block) <= maxWriteFrame {
		t.Fatalf("test block only %d bytes, does not exercise splitting", len(block))
	}
	if err := fr.WriteHeaders(http2.HeadersFrameParam{
		StreamID:      1,
		BlockFragment: block[:maxWriteFrame],
		EndHeaders:    false,
		EndStream:     true,
	}); err != nil {
		t.Fatal(err)
	}
	if err := fr.WriteContinuation(1, true, block[maxWriteFrame:]); err != nil {
		t.Fatal(err)
	}

	rd := http2.NewFramer(nil, bytes.NewReader(sink.out.Bytes()[len(ClientPreface):]))
	rd.ReadMetaHeaders = hpack.NewDecoder(65536, nil)
	rd.ReadFrame() // SETTINGS
	rd.ReadFrame() // WINDOW_UPDATE
	f, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("reading HEADERS: %v", err)
	}
	mh, ok := f.(*http2.MetaHeadersFrame)
	if !ok {
		t.Fatalf("frame is %T, want MetaHeadersFrame", f)
	}
	if !mh.StreamEnded() {
		t.Fatal("END_STREAM lost across the continued block")
	}

	var names []string
	var cookie string
	for _, hf := range mh.Fields {
		names = append(names, hf.Name)
		if hf.Name == "cookie" {
			cookie = hf.Value
		}
	}
	wantOrder := []string{":method", ":authority", ":scheme", ":path", "user-agent", "cookie"}
	for i, name := range wantOrder {
		if i >= len(names) || names[i] != name {
			t.Fatalf("field order = %v, want %v", names, wantOrder)
		}
	}
	if cookie != big {
		t.Fatalf("cookie value truncated: %d bytes, want %d", len(cookie), len(big))
	}
}

func TestConnPartialWrites(t *testing.T) {
	sink := &sinkConn{}
	c := NewConn(sink, testH2Profile())

	var raw bytes.Buffer
	raw.Write(ClientPreface)
	fr := http2.NewFramer(&raw, nil)
	fr.WriteSettings(http2.Setting{ID: http2.SettingEnablePush, Val: 0})
	fr.WriteWindowUpdate(0, 7)

	// Feed the stream one byte at a time; no torn frames may reach the sink.
	for _, b := range raw.Bytes() {
		if _, err := c.Write([]byte{b}); err != nil {
			t.Fatalf("byte write failed: %v", err)
		}
	}

	rd := http2.NewFramer(nil, bytes.NewReader(sink.out.Bytes()[len(ClientPreface):]))
	f, err := rd.ReadFrame()
	if err != nil {
		t.Fatalf("first frame unreadable: %v", err)
	}
	if _, ok := f.(*http2.SettingsFrame); !ok {
		t.Fatalf("first frame is %T", f)
	}
	f, err = rd.ReadFrame()
	if err != nil {
		t.Fatalf("second frame unreadable: %v", err)
	}
	wu, ok := f.(*http2.WindowUpdateFrame)
	if !ok {
		t.Fatalf("second frame is %T", f)
	}
	if wu.Increment != 15663105 {
		t.Fatalf("increment = %d", wu.Increment)
	}
}
