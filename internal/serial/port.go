package serial

import (
	"errors"
	"time"
)

// Port abstracts a serial transport for testability; cmd/canresolve's serial
// drift source reads frames through this interface.
type Port interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// ErrNoDriver is returned by Open: this build carries the cannelloni framing
// and drift-comparison logic but no concrete tty driver (see DESIGN.md for
// why). A real deployment supplies a Port constructed some other way (e.g.
// over a driver library) and never calls Open.
var ErrNoDriver = errors.New("serial: no tty driver wired in this build")

func Open(name string, baud int, readTimeout time.Duration) (Port, error) {
	return nil, ErrNoDriver
}
