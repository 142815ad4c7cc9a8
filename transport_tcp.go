package seriallink

import (
	"errors"
	"fmt"
	"net"
	"time"
)

// tcpTransport connects to a serial device server (ser2net and friends)
// over a raw TCP socket. Read budgets map onto socket deadlines.
type tcpTransport struct {
	addr    string
	delim   string
	conn    net.Conn
	lines   lineBuffer
	readBuf []byte
}

func newTCPTransport(cfg Config) Transport {
	return &tcpTransport{
		addr:    cfg.PortName[len(schemeTCP):],
		delim:   cfg.Delimiter,
		lines:   newLineBuffer(cfg.Delimiter),
		readBuf: make([]byte, 4096),
	}
}

func (t *tcpTransport) Open() error {
	conn, err := net.DialTimeout("tcp", t.addr, netDialTimeout)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.addr, err)
	}
	t.conn = conn
	t.lines.reset()
	return nil
}

func (t *tcpTransport) ReadLine(timeout time.Duration) (string, bool, error) {
	if t.conn == nil {
		return "", false, ErrClosed
	}
	if line, ok := t.lines.next(); ok {
		return line, true, nil
	}
	if err := t.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return "", false, fmt.Errorf("set read deadline: %w", err)
	}
	n, err := t.conn.Read(t.readBuf)
	if n > 0 {
		if werr := t.lines.write(t.readBuf[:n]); werr != nil {
			return "", false, werr
		}
	}
	if err != nil {
		var nerr net.Error
		if errors.As(err, &nerr) && nerr.Timeout() {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read %s: %w", t.addr, err)
	}
	line, ok := t.lines.next()
	return line, ok, nil
}

func (t *tcpTransport) WriteLine(line string) error {
	if t.conn == nil {
		return ErrClosed
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(netWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := t.conn.Write([]byte(line + t.delim)); err != nil {
		return fmt.Errorf("write %s: %w", t.addr, err)
	}
	return nil
}

func (t *tcpTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", t.addr, err)
	}
	return nil
}
