package transparent

import (
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
)

// SetHeartbeat sets the activity callback.
func (b *Bridge) SetHeartbeat(h hcibridge.Heartbeat) error {
	b.heartbeat = h
	return nil
}

// SetVendorFraming selects the framing of vendor kinds. It applies to the next
// packet.
func (b *Bridge) SetVendorFraming(v hcibridge.VendorFraming) error {
	switch v {
	case hcibridge.VendorReject, hcibridge.VendorEventShape:
	default:
		return errors.Errorf("unknown vendor framing %v", v)
	}
	b.vendor = v
	if b.f != nil {
		b.f.vendor = v
	}
	return nil
}

// SetMaxPacketSize sizes the staging buffer. Changing it on a running bridge
// discards any partially received packet.
func (b *Bridge) SetMaxPacketSize(n int) error {
	if n < MinMaxPacketSize || n > MaxMaxPacketSize {
		return errors.Errorf("invalid max packet size %d; must be within [%d, %d]", n, MinMaxPacketSize, MaxMaxPacketSize)
	}
	b.maxPacket = n
	if b.f != nil {
		b.f = newFramer(n, b.vendor)
	}
	return nil
}

// SetIdleYield sets the sleep between unproductive ticks.
func (b *Bridge) SetIdleYield(d time.Duration) error {
	if d <= 0 {
		return errors.Errorf("invalid idle yield %v", d)
	}
	b.idleYield = d
	return nil
}

// SetErrorHandler sets the callback that receives framing errors such as
// ErrPacketTooLarge.
func (b *Bridge) SetErrorHandler(handler func(error)) error {
	b.errorHandler = handler
	return nil
}

// SetStopOnOverflow makes framing errors terminate Run.
func (b *Bridge) SetStopOnOverflow(stop bool) error {
	b.stopOnOverflow = stop
	return nil
}

// SetRadioEvents sets the source of unsolicited controller packets.
func (b *Bridge) SetRadioEvents(d hcibridge.Drainer) error {
	b.events = d
	return nil
}

// SetLogger overrides the package logger.
func (b *Bridge) SetLogger(l hcibridge.Logger) error {
	if l == nil {
		return errors.New("nil logger")
	}
	b.log = l
	return nil
}
