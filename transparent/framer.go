package transparent

import (
	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
)

// DefaultMaxPacketSize is the size of the staging buffer, kind byte included.
const DefaultMaxPacketSize = 1024

// Bounds for OptMaxPacketSize. The upper bound holds the largest ACL packet:
// kind, 2 bytes handle, 2 bytes length and a 65535 byte payload.
const (
	MinMaxPacketSize = 5
	MaxMaxPacketSize = 65540
)

// ErrPacketTooLarge is returned when a packet does not fit the staging buffer.
var ErrPacketTooLarge = errors.New("packet exceeds buffer")

type state int

const (
	stateIdle state = iota
	stateNeedHeader
	stateInPayload
)

func (s state) String() string {
	switch s {
	case stateIdle:
		return "IDLE"
	case stateNeedHeader:
		return "NEED_HEADER"
	case stateInPayload:
		return "IN_PAYLOAD"
	default:
		return "INVALID"
	}
}

// framer accumulates one on-the-wire packet, kind byte first, in buf.
type framer struct {
	buf       []byte
	rx        int
	remaining int
	state     state
	kind      hcibridge.Kind
	vendor    hcibridge.VendorFraming
}

func newFramer(size int, vendor hcibridge.VendorFraming) *framer {
	return &framer{
		buf:    make([]byte, size),
		vendor: vendor,
	}
}

func (f *framer) accepts(c byte) bool {
	switch hcibridge.Kind(c) {
	case hcibridge.KindCommand, hcibridge.KindACLData, hcibridge.KindEvent, hcibridge.KindLocalCmd:
		return true
	case hcibridge.KindVendorRsp, hcibridge.KindVendorEvt:
		return f.vendor == hcibridge.VendorEventShape
	default:
		return false
	}
}

// feed advances the state machine by one octet. accepted is false when the
// byte was dropped in IDLE. On ErrPacketTooLarge the packet is torn down and
// the framer is back in IDLE.
func (f *framer) feed(c byte) (accepted bool, err error) {
	switch f.state {
	case stateIdle:
		if !f.accepts(c) {
			return false, nil
		}
		f.kind = hcibridge.Kind(c)
		f.buf[0] = c
		f.rx = 1
		f.remaining = 0
		f.state = stateNeedHeader

	case stateNeedHeader:
		if err := f.append(c); err != nil {
			return true, err
		}
		f.header(c)

	case stateInPayload:
		if f.remaining == 0 {
			return true, errors.New("framer: byte fed to a complete packet")
		}
		if err := f.append(c); err != nil {
			return true, err
		}
		f.remaining--
	}

	return true, nil
}

// header evaluates the length field once the byte at rx-1 has been appended.
func (f *framer) header(c byte) {
	switch {
	case f.kind == hcibridge.KindCommand && f.rx == 4,
		f.kind == hcibridge.KindLocalCmd && f.rx == 4,
		f.kind == hcibridge.KindEvent && f.rx == 3,
		f.kind.IsVendor() && f.rx == 3:
		f.remaining = int(c)
		f.state = stateInPayload

	case f.kind == hcibridge.KindACLData && f.rx == 4:
		// LSB; the MSB follows
		f.remaining = int(c)

	case f.kind == hcibridge.KindACLData && f.rx == 5:
		f.remaining += int(c) << 8
		f.state = stateInPayload
	}
}

func (f *framer) append(c byte) error {
	if f.rx >= len(f.buf) {
		kind, rx := f.kind, f.rx
		f.reset()
		return errors.Wrapf(ErrPacketTooLarge, "%v packet longer than %d bytes (%d received)", kind, len(f.buf), rx)
	}
	f.buf[f.rx] = c
	f.rx++
	return nil
}

func (f *framer) complete() bool {
	return f.state == stateInPayload && f.remaining == 0
}

func (f *framer) packet() []byte {
	return f.buf[:f.rx]
}

func (f *framer) reset() {
	f.rx = 0
	f.remaining = 0
	f.state = stateIdle
}
