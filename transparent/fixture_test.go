package transparent

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/rigado/hcibridge"
)

const idle = -1

// script is a host stream: bytes in order, with idle marking a read that
// finds nothing pending.
type script struct {
	items []int
	pos   int
	err   error
}

func bytesScript(b ...byte) *script {
	s := &script{}
	for _, c := range b {
		s.items = append(s.items, int(c))
	}
	return s
}

func (s *script) TryReadByte() (byte, bool, error) {
	if s.pos >= len(s.items) {
		if s.err != nil {
			return 0, false, s.err
		}
		return 0, false, nil
	}
	v := s.items[s.pos]
	s.pos++
	if v == idle {
		return 0, false, nil
	}
	return byte(v), true, nil
}

func (s *script) done() bool {
	return s.pos >= len(s.items)
}

type recorder struct {
	writes [][]byte
	events *[]string
}

func (r *recorder) WriteAll(p []byte) error {
	b := make([]byte, len(p))
	copy(b, p)
	r.writes = append(r.writes, b)
	if r.events != nil {
		*r.events = append(*r.events, fmt.Sprintf("write % x", p))
	}
	return nil
}

// fixed replies with rsp regardless of input and records every command.
type fixed struct {
	rsp  []byte
	cmds [][]byte
}

func (f *fixed) Exchange(cmd, rsp []byte) (int, error) {
	c := make([]byte, len(cmd))
	copy(c, cmd)
	f.cmds = append(f.cmds, c)
	return copy(rsp, f.rsp), nil
}

// inPlace answers by rewriting the command where it lies: the kind byte is
// incremented and the payload bytes are inverted, so the reply depends on
// reading the command through the aliased buffer.
type inPlace struct {
	calls int
}

func (p *inPlace) Exchange(cmd, rsp []byte) (int, error) {
	p.calls++
	if &cmd[0] != &rsp[0] {
		return 0, fmt.Errorf("command and response are expected to share storage")
	}
	n := len(cmd)
	rsp[0] = cmd[0] + 1
	for i := 1; i < n; i++ {
		rsp[i] = ^cmd[i]
	}
	return n, nil
}

type beats struct {
	on, off int
	events  *[]string
}

func (h *beats) fn(active bool) {
	if active {
		h.on++
	} else {
		h.off++
	}
	if h.events != nil {
		*h.events = append(*h.events, fmt.Sprintf("beat %v", active))
	}
}

func newTestBridge(t *testing.T, src *script, local, radio hcibridge.Exchanger, opts ...hcibridge.Option) (*Bridge, *recorder) {
	t.Helper()
	out := &recorder{}
	b, err := New(src, out, local, radio, opts...)
	if err != nil {
		t.Fatalf("can't create bridge: %v", err)
	}
	return b, out
}

// drive ticks until the script is exhausted and a tick makes no progress.
func drive(t *testing.T, b *Bridge, src *script) {
	t.Helper()
	for i := 0; i < 1<<20; i++ {
		progress, err := b.Tick()
		if err != nil {
			t.Fatalf("tick failed: %v", err)
		}
		if !progress && src.done() {
			return
		}
	}
	t.Fatalf("bridge did not settle")
}

func expectWrites(t *testing.T, out *recorder, want ...[]byte) {
	t.Helper()
	if len(out.writes) != len(want) {
		t.Fatalf("got %d writes %x, expected %d %x", len(out.writes), out.writes, len(want), want)
	}
	for i := range want {
		if !bytes.Equal(out.writes[i], want[i]) {
			t.Fatalf("write %d: got % x, expected % x", i, out.writes[i], want[i])
		}
	}
}
