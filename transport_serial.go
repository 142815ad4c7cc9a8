package seriallink

import (
	"fmt"
	"time"

	"go.bug.st/serial"
)

// serialTransport talks to a serial port through the go.bug.st/serial
// library, which covers Linux, macOS and Windows. Read timeouts are
// delegated to the port driver so a read never outlives its budget.
type serialTransport struct {
	cfg     Config
	port    serial.Port
	timeout time.Duration
	lines   lineBuffer
	readBuf []byte
}

func newSerialTransport(cfg Config) Transport {
	return &serialTransport{
		cfg:     cfg,
		lines:   newLineBuffer(cfg.Delimiter),
		readBuf: make([]byte, 4096),
	}
}

func (t *serialTransport) Open() error {
	mode := &serial.Mode{
		BaudRate: t.cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if t.cfg.DTR || t.cfg.RTS {
		mode.InitialStatusBits = &serial.ModemOutputBits{
			DTR: t.cfg.DTR,
			RTS: t.cfg.RTS,
		}
	}
	port, err := serial.Open(t.cfg.PortName, mode)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.cfg.PortName, err)
	}
	if err := port.SetReadTimeout(t.cfg.ReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("set read timeout on %s: %w", t.cfg.PortName, err)
	}
	t.port = port
	t.timeout = t.cfg.ReadTimeout
	t.lines.reset()
	return nil
}

func (t *serialTransport) ReadLine(timeout time.Duration) (string, bool, error) {
	if t.port == nil {
		return "", false, ErrClosed
	}
	if line, ok := t.lines.next(); ok {
		return line, true, nil
	}
	if timeout != t.timeout {
		if err := t.port.SetReadTimeout(timeout); err != nil {
			return "", false, fmt.Errorf("set read timeout: %w", err)
		}
		t.timeout = timeout
	}
	// A timed-out read reports zero bytes and no error.
	n, err := t.port.Read(t.readBuf)
	if err != nil {
		return "", false, fmt.Errorf("read: %w", err)
	}
	if n == 0 {
		return "", false, nil
	}
	if err := t.lines.write(t.readBuf[:n]); err != nil {
		return "", false, err
	}
	line, ok := t.lines.next()
	return line, ok, nil
}

func (t *serialTransport) WriteLine(line string) error {
	if t.port == nil {
		return ErrClosed
	}
	if _, err := t.port.Write([]byte(line + t.cfg.Delimiter)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

func (t *serialTransport) Close() error {
	if t.port == nil {
		return nil
	}
	err := t.port.Close()
	t.port = nil
	if err != nil {
		return fmt.Errorf("close: %w", err)
	}
	return nil
}
