package seriallink

import (
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// wsTransport talks to a WebSocket serial bridge. Each text message is one
// line; the delimiter never travels on the wire in either direction.
//
// gorilla/websocket treats a read deadline as fatal to the connection, so
// the timeout in ReadLine cannot be a deadline on the socket. Instead a
// pump goroutine blocks on the connection for its whole life and hands
// messages over a channel that ReadLine polls with a timer.
type wsTransport struct {
	url     string
	conn    *websocket.Conn
	lines   chan string
	readErr chan error
	done    chan struct{}
}

func newWSTransport(cfg Config) Transport {
	return &wsTransport{url: cfg.PortName}
}

func (t *wsTransport) Open() error {
	dialer := websocket.Dialer{HandshakeTimeout: netDialTimeout}
	conn, _, err := dialer.Dial(t.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", t.url, err)
	}
	t.conn = conn
	t.lines = make(chan string, 32)
	t.readErr = make(chan error, 1)
	t.done = make(chan struct{})
	go readPump(conn, t.lines, t.readErr, t.done)
	return nil
}

// readPump owns the receive side of conn until the connection dies. It
// exits on the first read error, which Close provokes deliberately, or
// when done closes while nobody is draining lines.
func readPump(conn *websocket.Conn, lines chan<- string, readErr chan<- error, done <-chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			readErr <- err
			close(lines)
			return
		}
		select {
		case lines <- strings.TrimRight(string(data), "\r\n"):
		case <-done:
			return
		}
	}
}

func (t *wsTransport) ReadLine(timeout time.Duration) (string, bool, error) {
	if t.conn == nil {
		return "", false, ErrClosed
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case line, ok := <-t.lines:
		if !ok {
			select {
			case err := <-t.readErr:
				return "", false, fmt.Errorf("read %s: %w", t.url, err)
			default:
				return "", false, ErrClosed
			}
		}
		return line, true, nil
	case <-timer.C:
		return "", false, nil
	}
}

func (t *wsTransport) WriteLine(line string) error {
	if t.conn == nil {
		return ErrClosed
	}
	if err := t.conn.SetWriteDeadline(time.Now().Add(netWriteTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
		return fmt.Errorf("write %s: %w", t.url, err)
	}
	return nil
}

func (t *wsTransport) Close() error {
	if t.conn == nil {
		return nil
	}
	close(t.done)
	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := t.conn.Close()
	t.conn = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", t.url, err)
	}
	return nil
}
