//go:build linux

package seriallink

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// termiosTransport drives a Linux serial port directly through termios,
// bypassing any portability layer. It configures the port for raw,
// low-latency operation (VMIN=1, VTIME=0) and waits for data with poll so
// every read honors the caller's timeout.
type termiosTransport struct {
	cfg     Config
	device  string
	fd      int
	file    *os.File
	lines   lineBuffer
	readBuf []byte
}

func newTermiosTransport(cfg Config) Transport {
	return &termiosTransport{
		cfg:     cfg,
		device:  cfg.PortName[len(schemeTermios):],
		fd:      -1,
		lines:   newLineBuffer(cfg.Delimiter),
		readBuf: make([]byte, 4096),
	}
}

func (t *termiosTransport) Open() error {
	fd, err := syscall.Open(t.device, syscall.O_RDWR|syscall.O_NOCTTY|syscall.O_NONBLOCK, 0666)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.device, err)
	}

	termios, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		syscall.Close(fd)
		return fmt.Errorf("get termios: %w", err)
	}

	// Raw mode
	termios.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	termios.Oflag &^= unix.OPOST
	termios.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	termios.Cflag &^= unix.CSIZE | unix.PARENB
	termios.Cflag |= unix.CS8

	// Baud rate
	baud := baudToUnix(t.cfg.BaudRate)
	termios.Cflag &^= unix.CBAUD
	termios.Cflag |= baud

	// VMIN=1, VTIME=0: deliver bytes as soon as they arrive, let poll do
	// the waiting.
	termios.Cc[unix.VMIN] = 1
	termios.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, termios); err != nil {
		syscall.Close(fd)
		return fmt.Errorf("set termios: %w", err)
	}

	// Turn back into blocking mode now that config is done
	syscall.SetNonblock(fd, false)

	// Assert the requested control lines. Not every tty has modem lines,
	// a pty for one, so failures here do not fail the open.
	if t.cfg.DTR {
		_ = unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, unix.TIOCM_DTR)
	}
	if t.cfg.RTS {
		_ = unix.IoctlSetPointerInt(fd, unix.TIOCMBIS, unix.TIOCM_RTS)
	}

	t.fd = fd
	t.file = os.NewFile(uintptr(fd), t.device)
	t.lines.reset()
	return nil
}

func (t *termiosTransport) ReadLine(timeout time.Duration) (string, bool, error) {
	if t.fd < 0 {
		return "", false, ErrClosed
	}
	if line, ok := t.lines.next(); ok {
		return line, true, nil
	}

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	pfd := []unix.PollFd{
		{Fd: int32(t.fd), Events: unix.POLLIN},
	}
	n, err := unix.Poll(pfd, ms)
	if err != nil {
		if err == unix.EINTR {
			return "", false, nil
		}
		return "", false, fmt.Errorf("poll %s: %w", t.device, err)
	}
	if n == 0 {
		return "", false, nil
	}

	// Read regardless of which event fired; a hangup or error condition
	// surfaces as a read error.
	rn, err := t.file.Read(t.readBuf)
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", t.device, err)
	}
	if err := t.lines.write(t.readBuf[:rn]); err != nil {
		return "", false, err
	}
	line, ok := t.lines.next()
	return line, ok, nil
}

func (t *termiosTransport) WriteLine(line string) error {
	if t.fd < 0 {
		return ErrClosed
	}
	if _, err := t.file.WriteString(line + t.cfg.Delimiter); err != nil {
		return fmt.Errorf("write %s: %w", t.device, err)
	}
	return nil
}

func (t *termiosTransport) Close() error {
	if t.fd < 0 {
		return nil
	}
	err := t.file.Close()
	t.fd = -1
	t.file = nil
	if err != nil {
		return fmt.Errorf("close %s: %w", t.device, err)
	}
	return nil
}

func baudToUnix(baud int) uint32 {
	switch baud {
	case 1200:
		return unix.B1200
	case 2400:
		return unix.B2400
	case 4800:
		return unix.B4800
	case 9600:
		return unix.B9600
	case 19200:
		return unix.B19200
	case 38400:
		return unix.B38400
	case 57600:
		return unix.B57600
	case 115200:
		return unix.B115200
	case 230400:
		return unix.B230400
	case 460800:
		return unix.B460800
	case 921600:
		return unix.B921600
	default:
		return unix.B115200 // fallback
	}
}
