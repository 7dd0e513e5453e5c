// Package radio connects the bridge to a Bluetooth controller. A Link turns a
// packet oriented controller transport into the synchronous exchange the
// framer dispatches to.
package radio

import (
	"encoding/binary"
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
	"github.com/rigado/hcibridge/stream"
)

const (
	rxQueueSize = 64

	// DefaultCommandTimeout bounds the wait for a command's completion event.
	DefaultCommandTimeout = 3 * time.Second

	evtCommandComplete = 0x0e
	evtCommandStatus   = 0x0f
)

var (
	// ErrNoResponse is returned when the controller does not complete a command in time.
	ErrNoResponse = errors.New("no response to command")
	// ErrClosed is returned once the link or its transport is closed.
	ErrClosed = errors.New("radio link closed")
)

var logger = hcibridge.PackageLogger("radio")

// Link exchanges packets with a controller over rwc. Reads happen on a
// background goroutine; Exchange and Drain must be called from one goroutine.
type Link struct {
	rwc io.ReadWriteCloser
	w   stream.Writer

	rx   chan []byte
	held []byte
	err  error

	cmdTimeout time.Duration

	done      chan struct{}
	closeOnce sync.Once
}

// A LinkOption configures a Link.
type LinkOption func(*Link)

// WithCommandTimeout overrides DefaultCommandTimeout.
func WithCommandTimeout(d time.Duration) LinkOption {
	return func(l *Link) {
		if d > 0 {
			l.cmdTimeout = d
		}
	}
}

// NewLink starts reading controller packets from rwc. rwc may report a read
// timeout as (0, nil).
func NewLink(rwc io.ReadWriteCloser, opts ...LinkOption) *Link {
	l := &Link{
		rwc:        rwc,
		w:          stream.NewWriter(rwc),
		rx:         make(chan []byte, rxQueueSize),
		cmdTimeout: DefaultCommandTimeout,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	go l.rxLoop()

	return l
}

// Exchange writes cmd to the controller and collects the reply into rsp. A
// BT_CMD waits for its Command Complete or Command Status event; any other
// packet only collects what the controller has already sent. Every packet
// received meanwhile is part of the reply, in arrival order.
func (l *Link) Exchange(cmd, rsp []byte) (int, error) {
	if len(cmd) == 0 {
		return 0, nil
	}
	if !l.isOpen() {
		return 0, ErrClosed
	}

	var op uint16
	wait := hcibridge.Kind(cmd[0]) == hcibridge.KindCommand && len(cmd) >= 3
	if wait {
		op = binary.LittleEndian.Uint16(cmd[1:3])
	}

	// cmd and rsp may alias; the write completes before rsp is touched
	if err := l.w.WriteAll(cmd); err != nil {
		return 0, errors.Wrap(err, "can't write to controller")
	}

	n, matched := l.takeHeld(rsp, op, wait)
	switch {
	case matched:
		return n, nil
	case !wait:
		return l.collect(rsp, n)
	}

	timeout := time.NewTimer(l.cmdTimeout)
	defer timeout.Stop()

	for {
		select {
		case p, ok := <-l.rx:
			if !ok {
				return n, l.readErr()
			}
			var fits bool
			if n, fits = l.put(rsp, n, p); !fits {
				return n, nil
			}
			if completes(p, op) {
				return n, nil
			}

		case <-timeout.C:
			return n, errors.Wrapf(ErrNoResponse, "opcode 0x%04x", op)

		case <-l.done:
			return n, ErrClosed
		}
	}
}

// Drain collects controller packets that arrived without a request.
func (l *Link) Drain(rsp []byte) (int, error) {
	n, _ := l.takeHeld(rsp, 0, false)
	return l.collect(rsp, n)
}

// collect appends every packet already queued, stopping at the first one that
// doesn't fit.
func (l *Link) collect(rsp []byte, n int) (int, error) {
	for {
		select {
		case p, ok := <-l.rx:
			if !ok {
				if n > 0 {
					return n, nil
				}
				return 0, l.readErr()
			}
			var fits bool
			if n, fits = l.put(rsp, n, p); !fits {
				return n, nil
			}
		default:
			return n, nil
		}
	}
}

// takeHeld starts the reply with the packet left over from the previous call.
func (l *Link) takeHeld(rsp []byte, op uint16, wait bool) (n int, matched bool) {
	if l.held == nil {
		return 0, false
	}
	p := l.held
	l.held = nil

	n, _ = l.put(rsp, 0, p)
	return n, wait && n > 0 && completes(p, op)
}

// put copies p into rsp at n. When it doesn't fit, p is held for the next
// call and fits is false. A packet larger than rsp can never be delivered and
// is dropped.
func (l *Link) put(rsp []byte, n int, p []byte) (int, bool) {
	switch {
	case len(p) > len(rsp):
		logger.Warnf("dropping %d byte %v packet, larger than the %d byte buffer", len(p), hcibridge.Kind(p[0]), len(rsp))
		return n, true
	case n+len(p) > len(rsp):
		l.held = p
		return n, false
	}
	return n + copy(rsp[n:], p), true
}

// completes reports whether p finishes the command with opcode op.
func completes(p []byte, op uint16) bool {
	if len(p) < 3 || hcibridge.Kind(p[0]) != hcibridge.KindEvent {
		return false
	}
	switch p[1] {
	case evtCommandComplete:
		return len(p) >= 6 && binary.LittleEndian.Uint16(p[4:6]) == op
	case evtCommandStatus:
		return len(p) >= 7 && binary.LittleEndian.Uint16(p[5:7]) == op
	}
	return false
}

func (l *Link) rxLoop() {
	defer close(l.rx)

	f := newFrame(func(p []byte) {
		select {
		case l.rx <- p:
		case <-l.done:
		}
	})

	b := make([]byte, 4096)
	for {
		n, err := l.rwc.Read(b)

		switch {
		case n == 0 && err == nil:
			// read timeout
			if !l.isOpen() {
				return
			}
			continue

		case err != nil:
			if n > 0 {
				f.Assemble(b[:n])
			}
			l.err = err
			return

		default:
			f.Assemble(b[:n])
		}

		if !l.isOpen() {
			return
		}
	}
}

func (l *Link) readErr() error {
	switch {
	case l.err == nil, !l.isOpen():
		return ErrClosed
	case errors.Cause(l.err) == io.EOF:
		return errors.Wrap(ErrClosed, "controller closed the transport")
	default:
		return errors.Wrap(l.err, "can't read from controller")
	}
}

func (l *Link) isOpen() bool {
	select {
	case <-l.done:
		return false
	default:
		return true
	}
}

// Close stops the link and closes the transport.
func (l *Link) Close() error {
	var err error
	l.closeOnce.Do(func() {
		close(l.done)
		err = errors.Wrap(l.rwc.Close(), "can't close controller transport")
	})
	return err
}
