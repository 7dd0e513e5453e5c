package host

import (
	"context"
	"io"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/rigado/hcibridge/stream"
)

// DefaultBaud is used for host serial ports. USB CDC ports ignore it.
const DefaultBaud = 115200

const reopenDelay = time.Second

type serialEndpoint struct {
	opts   serial.OpenOptions
	opened bool
}

// NewSerial returns an endpoint that (re)opens the serial port at path for
// every session, e.g. a USB gadget port that disappears when the cable is
// pulled.
func NewSerial(path string, baud uint) Endpoint {
	if baud == 0 {
		baud = DefaultBaud
	}
	return &serialEndpoint{
		opts: serial.OpenOptions{
			PortName:              path,
			BaudRate:              baud,
			DataBits:              8,
			StopBits:              1,
			ParityMode:            serial.PARITY_NONE,
			MinimumReadSize:       0,
			InterCharacterTimeout: 100,
		},
	}
}

func (e *serialEndpoint) Accept(ctx context.Context) (*Session, error) {
	if e.opened {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(reopenDelay):
		}
	}

	sp, err := serial.Open(e.opts)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %v", e.opts.PortName)
	}
	e.opened = true
	logger.Infof("opened host port %v", e.opts.PortName)

	p := newPollPort(sp)
	return newSession(e.String(), stream.NewPoller(p), stream.NewWriter(sp), sp), nil
}

func (e *serialEndpoint) Close() error {
	return nil
}

func (e *serialEndpoint) String() string {
	return "serial:" + e.opts.PortName
}

// pollPort maps the EOF a VMIN=0 port reports on an inter-character timeout
// to an empty read. A port that hung up reports EOF without waiting; after
// hangupReads such reads in a row the EOF is passed on and the session ends.
type pollPort struct {
	r   io.Reader
	now func() time.Time

	fast int
}

const (
	// reads returning sooner than this did not wait for the timeout
	hangupThreshold = 50 * time.Millisecond
	hangupReads     = 20
)

func newPollPort(r io.Reader) *pollPort {
	return &pollPort{r: r, now: time.Now}
}

func (p *pollPort) Read(b []byte) (int, error) {
	start := p.now()
	n, err := p.r.Read(b)
	if n != 0 || err != io.EOF {
		p.fast = 0
		return n, err
	}

	if p.now().Sub(start) >= hangupThreshold {
		p.fast = 0
		return 0, nil
	}
	p.fast++
	if p.fast >= hangupReads {
		logger.Warnf("host port hung up")
		return 0, io.EOF
	}
	return 0, nil
}
