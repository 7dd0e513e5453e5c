package radio

import (
	"fmt"
	"time"

	"github.com/rigado/hcibridge"
)

const (
	headerOffsetDataLength = 2
	eventHeaderLength      = 3
	aclHeaderLength        = 5

	fragmentTimeout = 500 * time.Millisecond
)

// frame reassembles controller to host packets from arbitrarily split reads.
type frame struct {
	b       []byte
	timeout time.Time
	out     func([]byte)
	kind    hcibridge.Kind
	now     func() time.Time
}

func newFrame(out func([]byte)) *frame {
	return &frame{
		b:   make([]byte, 0, 256),
		out: out,
		now: time.Now,
	}
}

func (f *frame) Assemble(b []byte) {
	switch {
	case len(b) == 0:
		// nothing to look at
		return

	case !f.timeout.IsZero() && f.now().After(f.timeout):
		//timed out
		if len(f.b) != 0 {
			logger.Warnf("discarding stale partial %v packet [% x]", f.kind, f.b)
		}
		f.reset()

	default:
		// ok
	}

	if len(f.b) == 0 {
		err := f.waitStart(b)
		if err != nil {
			return
		}
	} else {
		// the deadline is per fragment, not per packet
		f.b = append(f.b, b...)
		f.timeout = f.now().Add(fragmentTimeout)
	}

	rf, err := f.frame()
	if err != nil {
		return
	}
	out := make([]byte, len(rf))
	copy(out, rf)
	f.out(out)

	// shift
	if len(f.b) > len(rf) {
		rem := make([]byte, len(f.b[len(rf):]))
		copy(rem, f.b[len(rf):])
		f.reset()
		f.Assemble(rem)
	} else {
		f.reset()
	}
}

func (f *frame) reset() {
	f.b = f.b[:0]
	f.timeout = time.Time{}
}

func (f *frame) waitStart(b []byte) error {
	// find the start byte
	var i int
	var v byte
	var ok bool
	for i, v = range b {
		switch k := hcibridge.Kind(v); k {
		case hcibridge.KindEvent, hcibridge.KindACLData, hcibridge.KindVendorRsp, hcibridge.KindVendorEvt:
			f.kind = k
		default:
			continue
		}

		ok = true
		f.timeout = f.now().Add(fragmentTimeout)
		break
	}

	if !ok {
		logger.Debugf("no packet start in [% x]", b)
		return fmt.Errorf("couldnt find start byte")
	}
	if i != 0 {
		logger.Debugf("skipped %d bytes before packet start", i)
	}

	f.b = append(f.b, b[i:]...)
	return nil
}

func (f *frame) dataLength() (int, error) {
	switch f.kind {
	case hcibridge.KindACLData:
		return f.aclLength()
	case hcibridge.KindEvent, hcibridge.KindVendorRsp, hcibridge.KindVendorEvt:
		return f.eventLength()
	default:
		return 0, fmt.Errorf("invalid packet kind %v", f.kind)
	}
}

func (f *frame) eventLength() (int, error) {
	if len(f.b) < eventHeaderLength {
		return 0, fmt.Errorf("not enough bytes")
	}

	return int(f.b[headerOffsetDataLength]) + eventHeaderLength, nil
}

func (f *frame) aclLength() (int, error) {
	if len(f.b) < aclHeaderLength {
		return 0, fmt.Errorf("not enough bytes")
	}

	l := int(f.b[3]) | (int(f.b[4]) << 8)
	return l + aclHeaderLength, nil
}

func (f *frame) frame() ([]byte, error) {
	tl, err := f.dataLength()
	if err != nil {
		return nil, err
	}

	if len(f.b) < tl {
		return nil, fmt.Errorf("not enough bytes")
	}
	return f.b[:tl], nil
}
