package guise

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"net/textproto"
	"time"

	"github.com/guiseproj/guise/pool"
	"github.com/guiseproj/guise/profile"
)

// doHTTP1 runs one request over a connection whose ALPN landed on http/1.1,
// writing the request by hand so header order and casing stay under the
// profile's control instead of net/http's.
func doHTTP1(conn *pool.Conn, req *http.Request, prof *profile.ImpersonationProfile) (*http.Response, error) {
	w := conn.TLS
	if deadline, ok := req.Context().Deadline(); ok {
		w.SetDeadline(deadline)
		defer w.SetDeadline(time.Time{})
	}

	bw := bufio.NewWriter(w)
	if err := writeHTTP1Request(bw, req, prof); err != nil {
		return nil, err
	}
	if err := bw.Flush(); err != nil {
		return nil, err
	}

	resp, err := http.ReadResponse(bufio.NewReader(w), req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func writeHTTP1Request(bw *bufio.Writer, req *http.Request, prof *profile.ImpersonationProfile) error {
	uri := req.URL.RequestURI()
	if uri == "" {
		uri = "/"
	}
	fmt.Fprintf(bw, "%s %s HTTP/1.1\r\n", req.Method, uri)

	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	fmt.Fprintf(bw, "Host: %s\r\n", host)

	written := map[string]bool{"Host": true}
	writeField := func(canon string) {
		vals, ok := req.Header[canon]
		if !ok || written[canon] {
			return
		}
		for _, v := range vals {
			fmt.Fprintf(bw, "%s: %s\r\n", canon, v)
		}
		written[canon] = true
	}

	// Profile order first, everything else after in map order.
	for _, name := range prof.Header.Order {
		writeField(textproto.CanonicalMIMEHeaderKey(name))
	}
	for name := range req.Header {
		writeField(name)
	}

	if req.ContentLength > 0 {
		fmt.Fprintf(bw, "Content-Length: %d\r\n", req.ContentLength)
	} else if req.Body != nil {
		fmt.Fprintf(bw, "Content-Length: 0\r\n")
	}
	bw.WriteString("\r\n")

	if req.Body != nil {
		defer req.Body.Close()
		if _, err := io.Copy(bw, req.Body); err != nil {
			return err
		}
	}
	return nil
}
