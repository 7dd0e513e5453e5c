// Package stream adapts host byte streams to the one-byte-at-a-time reads and
// whole-reply writes the bridge framer works with.
package stream

import (
	"io"
	"net"

	"github.com/pkg/errors"
)

// ByteReader performs a bounded read of at most one byte. ok is false when no
// byte is currently available; that is not an error.
type ByteReader interface {
	TryReadByte() (c byte, ok bool, err error)
}

// Writer pushes a complete reply as one logical write.
type Writer interface {
	WriteAll(p []byte) error
}

// maxZeroWrites bounds how often a writer may report no progress without an
// error before WriteAll gives up.
const maxZeroWrites = 16

type writer struct {
	w io.Writer
}

// NewWriter returns a Writer that retries partial writes on w.
func NewWriter(w io.Writer) Writer {
	return &writer{w: w}
}

func (w *writer) WriteAll(p []byte) error {
	zero := 0
	for len(p) > 0 {
		n, err := w.w.Write(p)
		if err != nil {
			return errors.Wrap(err, "can't write host stream")
		}
		if n == 0 {
			zero++
			if zero > maxZeroWrites {
				return errors.Wrap(io.ErrShortWrite, "can't write host stream")
			}
			continue
		}
		zero = 0
		p = p[n:]
	}
	return nil
}

// isIdle reports whether a read error only means "nothing arrived before the
// deadline".
func isIdle(err error) bool {
	ne, ok := errors.Cause(err).(net.Error)
	return ok && ne.Timeout()
}
