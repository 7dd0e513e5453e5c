// Package transparent implements the HCI transparent-mode bridge: a byte-fed
// framer that assembles host packets and routes each one to the radio
// transport or to the local command handler, streaming replies back verbatim.
package transparent

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
	"github.com/rigado/hcibridge/stream"
)

// DefaultIdleYield is how long Run sleeps after a tick that made no progress.
const DefaultIdleYield = time.Millisecond

var logger = hcibridge.PackageLogger("transparent")

// Bridge owns one framer and the two host streams. It is not safe for
// concurrent use; Stats is the only method that may be called from another
// goroutine.
type Bridge struct {
	in  stream.ByteReader
	out stream.Writer

	local hcibridge.Exchanger
	radio hcibridge.Exchanger

	f *framer

	heartbeat      hcibridge.Heartbeat
	vendor         hcibridge.VendorFraming
	maxPacket      int
	idleYield      time.Duration
	errorHandler   func(error)
	stopOnOverflow bool
	events         hcibridge.Drainer
	log            hcibridge.Logger

	stats counters
}

// New returns a bridge reading packets from in and writing replies to out.
// LOCAL_CMD packets go to local, everything else to radio.
func New(in stream.ByteReader, out stream.Writer, local, radio hcibridge.Exchanger, opts ...hcibridge.Option) (*Bridge, error) {
	switch {
	case in == nil, out == nil:
		return nil, errors.New("bridge needs both host streams")
	case local == nil:
		return nil, errors.New("bridge needs a local command handler")
	case radio == nil:
		return nil, errors.New("bridge needs a radio transport")
	}

	b := &Bridge{
		in:        in,
		out:       out,
		local:     local,
		radio:     radio,
		maxPacket: DefaultMaxPacketSize,
		idleYield: DefaultIdleYield,
		log:       logger,
	}
	if err := b.Option(opts...); err != nil {
		return nil, errors.Wrap(err, "can't set options")
	}
	b.f = newFramer(b.maxPacket, b.vendor)

	return b, nil
}

// Option sets the options specified.
func (b *Bridge) Option(opts ...hcibridge.Option) error {
	for _, opt := range opts {
		if err := opt(b); err != nil {
			return err
		}
	}
	return nil
}

// Tick runs one iteration: it dispatches a complete packet, or else tries to
// consume one input byte. progress reports whether either happened.
func (b *Bridge) Tick() (progress bool, err error) {
	if b.f.complete() {
		return true, b.dispatch()
	}

	c, ok, err := b.in.TryReadByte()
	if err != nil {
		return false, err
	}
	if !ok {
		return b.drainRadio()
	}
	b.stats.bytesIn.Add(1)

	accepted, err := b.f.feed(c)
	if !accepted {
		b.stats.bytesDropped.Add(1)
		b.log.Debugf("dropped 0x%02x while idle", c)
		return true, nil
	}
	b.beat(true)

	if err != nil {
		return true, b.overflow(err)
	}
	return true, nil
}

// Run calls Tick until ctx is done or a tick fails. Any partially received
// packet from an earlier run is discarded first.
func (b *Bridge) Run(ctx context.Context) error {
	b.f.reset()

	idle := time.NewTimer(b.idleYield)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		progress, err := b.Tick()
		if err != nil {
			return err
		}
		if progress {
			continue
		}

		if !idle.Stop() {
			select {
			case <-idle.C:
			default:
			}
		}
		idle.Reset(b.idleYield)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-idle.C:
		}
	}
}

// Idle reports whether no packet is partially received or pending dispatch.
func (b *Bridge) Idle() bool {
	return b.f.state == stateIdle
}

// Stats returns a snapshot of the traffic counters.
func (b *Bridge) Stats() Stats {
	return b.stats.snapshot()
}

func (b *Bridge) dispatch() error {
	defer b.f.reset()

	pkt := b.f.packet()
	kind := b.f.kind

	dst := b.radio
	if kind == hcibridge.KindLocalCmd {
		dst = b.local
		b.stats.localPackets.Add(1)
	} else {
		b.stats.radioPackets.Add(1)
	}

	b.log.Debugf("dispatch %v [% x]", kind, pkt)
	n, err := dst.Exchange(pkt, b.f.buf)
	if err != nil {
		return errors.Wrapf(err, "%v exchange failed", kind)
	}

	return b.reply(n, true)
}

// reply writes buf[:n] to the host. The falling heartbeat edge only follows
// replies to host packets.
func (b *Bridge) reply(n int, beat bool) error {
	switch {
	case n < 0 || n > len(b.f.buf):
		return errors.Errorf("invalid reply length %d", n)
	case n == 0:
		return nil
	}

	if err := b.out.WriteAll(b.f.buf[:n]); err != nil {
		return err
	}
	b.stats.bytesOut.Add(uint64(n))

	if beat {
		b.stats.replies.Add(1)
		b.beat(false)
	}
	return nil
}

func (b *Bridge) drainRadio() (bool, error) {
	if b.events == nil || b.f.state != stateIdle {
		return false, nil
	}

	n, err := b.events.Drain(b.f.buf)
	if err != nil {
		return false, errors.Wrap(err, "can't drain radio events")
	}
	if n == 0 {
		return false, nil
	}

	b.stats.unsolicitedIn.Add(1)
	return true, b.reply(n, false)
}

func (b *Bridge) overflow(err error) error {
	b.stats.overflows.Add(1)
	b.log.Warnf("framing error, packet discarded: %v", err)

	if b.errorHandler != nil {
		b.errorHandler(err)
	}
	if b.stopOnOverflow {
		return err
	}
	return nil
}

func (b *Bridge) beat(active bool) {
	if b.heartbeat != nil {
		b.heartbeat(active)
	}
}
