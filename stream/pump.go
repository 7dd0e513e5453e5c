package stream

import (
	"io"
	"sync"

	"github.com/pkg/errors"
)

const pumpQueueSize = 64

// Pump adapts a blocking reader. A background goroutine reads chunks into a
// queue and TryReadByte hands them out without blocking.
type Pump struct {
	r   io.Reader
	rx  chan []byte
	cur []byte
	err error

	done      chan struct{}
	closeOnce sync.Once
}

// NewPump starts reading from r. The goroutine exits when r returns an error
// or after Close once the pending Read returns.
func NewPump(r io.Reader) *Pump {
	p := &Pump{
		r:    r,
		rx:   make(chan []byte, pumpQueueSize),
		done: make(chan struct{}),
	}

	go p.rxLoop()

	return p
}

func (p *Pump) rxLoop() {
	defer close(p.rx)

	tmp := make([]byte, 512)
	for {
		n, err := p.r.Read(tmp)
		if n > 0 {
			b := make([]byte, n)
			copy(b, tmp[:n])
			select {
			case p.rx <- b:
			case <-p.done:
				return
			}
		}

		switch {
		case err == nil, isIdle(err):
			select {
			case <-p.done:
				return
			default:
			}
		default:
			p.err = err
			return
		}
	}
}

func (p *Pump) TryReadByte() (byte, bool, error) {
	if len(p.cur) == 0 {
		select {
		case b, ok := <-p.rx:
			if !ok {
				return 0, false, p.closedErr()
			}
			p.cur = b
		default:
			return 0, false, nil
		}
	}

	c := p.cur[0]
	p.cur = p.cur[1:]
	return c, true, nil
}

func (p *Pump) closedErr() error {
	switch p.err {
	case nil, io.EOF:
		return io.EOF
	default:
		return errors.Wrap(p.err, "can't read host stream")
	}
}

// Close stops the pump. It does not close the underlying reader.
func (p *Pump) Close() error {
	p.closeOnce.Do(func() {
		close(p.done)
	})
	return nil
}
