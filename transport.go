package seriallink

import (
	"bytes"
	"strings"
	"time"
)

// Transport is a line-oriented connection to a device. Implementations are
// not safe for concurrent use; the I/O worker is the only caller once the
// link is running. A transport is reusable: after Close it can be opened
// again, which is how the worker reconnects without allocating new state.
type Transport interface {
	// Open establishes the connection. Opening an already open transport
	// is undefined; the worker always closes before reopening.
	Open() error

	// ReadLine waits up to timeout for a complete line. ok is false when
	// the timeout expired without one; that is not an error. A returned
	// line has the delimiter stripped. Any non-nil error means the
	// connection is unusable and must be closed.
	ReadLine(timeout time.Duration) (line string, ok bool, err error)

	// WriteLine sends one line, appending the delimiter as the transport
	// requires.
	WriteLine(line string) error

	// Close releases the connection. It is safe to call on a transport
	// that never opened or already closed.
	Close() error
}

// PortName prefixes understood by the default transport factory.
const (
	schemeTCP     = "tcp://"
	schemeWS      = "ws://"
	schemeWSS     = "wss://"
	schemeTermios = "termios://"
)

// Timeouts for establishing and writing on network transports. Reads are
// bounded by the caller of ReadLine instead.
const (
	netDialTimeout  = 5 * time.Second
	netWriteTimeout = 5 * time.Second
)

// newTransport builds the transport selected by cfg.PortName. Names
// without a scheme prefix are treated as serial device paths.
func newTransport(cfg Config) Transport {
	switch {
	case strings.HasPrefix(cfg.PortName, schemeTCP):
		return newTCPTransport(cfg)
	case strings.HasPrefix(cfg.PortName, schemeWS), strings.HasPrefix(cfg.PortName, schemeWSS):
		return newWSTransport(cfg)
	case strings.HasPrefix(cfg.PortName, schemeTermios):
		return newTermiosTransport(cfg)
	default:
		return newSerialTransport(cfg)
	}
}

// maxPendingBytes caps the bytes buffered while waiting for a delimiter.
// A device that streams past this limit without a line break is treated as
// broken rather than allowed to grow the buffer forever.
const maxPendingBytes = 64 * 1024

// lineBuffer assembles complete lines from arbitrarily chunked reads.
// Bytes accumulate across calls until the delimiter appears.
type lineBuffer struct {
	delim []byte
	buf   []byte
}

func newLineBuffer(delimiter string) lineBuffer {
	return lineBuffer{delim: []byte(delimiter)}
}

// write appends a chunk of raw bytes.
func (b *lineBuffer) write(p []byte) error {
	if len(b.buf)+len(p) > maxPendingBytes {
		b.buf = b.buf[:0]
		return errLineTooLong
	}
	b.buf = append(b.buf, p...)
	return nil
}

// next extracts the oldest complete line, delimiter stripped.
func (b *lineBuffer) next() (string, bool) {
	idx := bytes.Index(b.buf, b.delim)
	if idx < 0 {
		return "", false
	}
	line := string(b.buf[:idx])
	rest := b.buf[idx+len(b.delim):]
	b.buf = b.buf[:copy(b.buf, rest)]
	return line, true
}

// reset discards any partially assembled line.
func (b *lineBuffer) reset() {
	b.buf = b.buf[:0]
}
