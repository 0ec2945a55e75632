// Package keylog wires TLS session secrets to an NSS key log file so tools
// like Wireshark can decrypt captured traffic. The SSLKEYLOGFILE environment
// variable enables it process-wide; Writer is handed to the TLS config's
// KeyLogWriter by the dialer when set.
package keylog

import (
	"io"
	"os"
	"sync"
)

var (
	mu    sync.RWMutex
	w     io.Writer
	owned bool // whether this package opened w and must close it
)

func init() {
	if path := os.Getenv("SSLKEYLOGFILE"); path != "" {
		// Best effort: key logging is a debug aid, not a hard dependency.
		if f, err := openAppend(path); err == nil {
			w = f
			owned = true
		}
	}
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
}

// Writer returns the active key log destination, nil when disabled.
func Writer() io.Writer {
	mu.RLock()
	defer mu.RUnlock()
	return w
}

// SetFile directs key logging to path, replacing any prior destination.
// An empty path disables logging.
func SetFile(path string) error {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	if path == "" {
		return nil
	}
	f, err := openAppend(path)
	if err != nil {
		return err
	}
	w = f
	owned = true
	return nil
}

// SetWriter directs key logging to an arbitrary writer. Nil disables it.
func SetWriter(dst io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	closeLocked()
	w = dst
}

// Close releases the active destination if this package opened it.
func Close() error {
	mu.Lock()
	defer mu.Unlock()
	return closeLocked()
}

func closeLocked() error {
	var err error
	if c, ok := w.(io.Closer); ok && owned {
		err = c.Close()
	}
	w = nil
	owned = false
	return err
}
