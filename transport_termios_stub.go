//go:build !linux

package seriallink

import (
	"errors"
	"time"
)

var errTermiosUnsupported = errors.New("seriallink: termios transport is only available on linux")

// termiosStub stands in for the termios transport on platforms without
// Linux termios. Every operation fails; use the default serial transport
// instead.
type termiosStub struct{}

func newTermiosTransport(Config) Transport { return termiosStub{} }

func (termiosStub) Open() error { return errTermiosUnsupported }

func (termiosStub) ReadLine(time.Duration) (string, bool, error) {
	return "", false, errTermiosUnsupported
}

func (termiosStub) WriteLine(string) error { return errTermiosUnsupported }

func (termiosStub) Close() error { return nil }
