package stream

import (
	"io"

	"github.com/pkg/errors"
)

// Poller adapts a pollable reader, one whose Read returns (0, nil) or a
// timeout error when no data is pending, such as a serial port opened with a
// zero minimum read size or a connection with a read deadline.
type Poller struct {
	r io.Reader
	b [1]byte
}

// NewPoller returns a ByteReader over r.
func NewPoller(r io.Reader) *Poller {
	return &Poller{r: r}
}

func (p *Poller) TryReadByte() (byte, bool, error) {
	n, err := p.r.Read(p.b[:])
	if n == 1 {
		// an error arriving with the byte will show up again on the next read
		return p.b[0], true, nil
	}

	switch {
	case err == nil:
		return 0, false, nil
	case isIdle(err):
		return 0, false, nil
	//callers depend on detecting io.EOF, don't wrap it.
	case err == io.EOF:
		return 0, false, err
	default:
		return 0, false, errors.Wrap(err, "can't read host stream")
	}
}
