package transparent

import (
	"encoding/binary"
	"sync/atomic"
)

// Stats is a snapshot of a bridge's traffic counters.
type Stats struct {
	BytesIn       uint64
	BytesDropped  uint64
	LocalPackets  uint64
	RadioPackets  uint64
	Replies       uint64
	BytesOut      uint64
	Overflows     uint64
	UnsolicitedIn uint64
}

// MarshalBinary encodes the counters as consecutive little-endian uint64s in
// field order.
func (s Stats) MarshalBinary() ([]byte, error) {
	vv := []uint64{
		s.BytesIn,
		s.BytesDropped,
		s.LocalPackets,
		s.RadioPackets,
		s.Replies,
		s.BytesOut,
		s.Overflows,
		s.UnsolicitedIn,
	}

	b := make([]byte, 8*len(vv))
	for i, v := range vv {
		binary.LittleEndian.PutUint64(b[8*i:], v)
	}
	return b, nil
}

type counters struct {
	bytesIn       atomic.Uint64
	bytesDropped  atomic.Uint64
	localPackets  atomic.Uint64
	radioPackets  atomic.Uint64
	replies       atomic.Uint64
	bytesOut      atomic.Uint64
	overflows     atomic.Uint64
	unsolicitedIn atomic.Uint64
}

func (c *counters) snapshot() Stats {
	return Stats{
		BytesIn:       c.bytesIn.Load(),
		BytesDropped:  c.bytesDropped.Load(),
		LocalPackets:  c.localPackets.Load(),
		RadioPackets:  c.radioPackets.Load(),
		Replies:       c.replies.Load(),
		BytesOut:      c.bytesOut.Load(),
		Overflows:     c.overflows.Load(),
		UnsolicitedIn: c.unsolicitedIn.Load(),
	}
}
