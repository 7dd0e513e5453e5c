// Package local serves LOCAL_CMD (0x20) packets: vendor commands a monitoring
// tool sends to the bridge itself rather than to the radio.
package local

import (
	"encoding"
	"encoding/binary"
	"sync"

	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
)

// Local command layout: kind, opcode (LE), parameter length, parameters.
// Replies use the command complete shape: kind 0x21, event code 0x0e,
// parameter length, command credits, opcode (LE), return parameters.
const (
	cmdHeaderLen = 4
	rspHeaderLen = 6

	evtCommandComplete = 0x0e
	maxReturnParams    = 255 - 3
)

// Status codes placed in the first return parameter byte.
const (
	StatusSuccess        byte = 0x00
	StatusUnknownCommand byte = 0x01
	StatusInvalidParams  byte = 0x12
)

// ErrMalformed is returned for a packet that is not a well formed local command.
var ErrMalformed = errors.New("malformed local command")

var logger = hcibridge.PackageLogger("local")

// HandlerFunc serves one opcode. params is a private copy of the command
// parameters; the returned bytes are the return parameters, status first.
type HandlerFunc func(params []byte) ([]byte, error)

// Mux dispatches local commands by opcode. Unregistered opcodes get no reply.
type Mux struct {
	mu sync.RWMutex
	h  map[uint16]HandlerFunc
}

func NewMux() *Mux {
	return &Mux{h: map[uint16]HandlerFunc{}}
}

// Handle registers h for op and returns the handler it replaces, if any. A nil
// h removes the registration.
func (m *Mux) Handle(op uint16, h HandlerFunc) HandlerFunc {
	m.mu.Lock()
	defer m.mu.Unlock()

	old := m.h[op]
	if h == nil {
		delete(m.h, op)
	} else {
		m.h[op] = h
	}
	return old
}

func (m *Mux) handler(op uint16) HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.h[op]
}

// Exchange implements hcibridge.Exchanger. The reply is built in rsp, which
// may alias cmd.
func (m *Mux) Exchange(cmd, rsp []byte) (int, error) {
	if len(cmd) < cmdHeaderLen || hcibridge.Kind(cmd[0]) != hcibridge.KindLocalCmd {
		return 0, errors.Wrapf(ErrMalformed, "[% x]", cmd)
	}
	op := binary.LittleEndian.Uint16(cmd[1:3])
	if plen := int(cmd[3]); len(cmd) != cmdHeaderLen+plen {
		return 0, errors.Wrapf(ErrMalformed, "opcode %v: length field %d, %d parameter bytes", opcodeString(op), plen, len(cmd)-cmdHeaderLen)
	}

	h := m.handler(op)
	if h == nil {
		logger.Debugf("no handler for local opcode %v", opcodeString(op))
		return 0, nil
	}

	params := make([]byte, len(cmd)-cmdHeaderLen)
	copy(params, cmd[cmdHeaderLen:])

	ret, err := h(params)
	if err != nil {
		return 0, errors.Wrapf(err, "local opcode %v", opcodeString(op))
	}
	if len(ret) > maxReturnParams || rspHeaderLen+len(ret) > len(rsp) {
		return 0, errors.Errorf("local opcode %v: %d return bytes don't fit a reply", opcodeString(op), len(ret))
	}

	rsp[0] = byte(hcibridge.KindLocalRsp)
	rsp[1] = evtCommandComplete
	rsp[2] = byte(3 + len(ret))
	rsp[3] = 1
	binary.LittleEndian.PutUint16(rsp[4:6], op)
	copy(rsp[rspHeaderLen:], ret)

	return rspHeaderLen + len(ret), nil
}

// Stub answers nothing, like the placeholder local command handler firmware
// ships with.
var Stub hcibridge.Exchanger = hcibridge.ExchangeFunc(func(cmd, rsp []byte) (int, error) {
	return 0, nil
})

// Info returns a handler that answers with a fixed identification string.
func Info(s string) HandlerFunc {
	return func(params []byte) ([]byte, error) {
		return append([]byte{StatusSuccess}, s...), nil
	}
}

// Marshaled returns a handler that answers with the binary encoding of
// whatever src produces at the time of the call.
func Marshaled(src func() encoding.BinaryMarshaler) HandlerFunc {
	return func(params []byte) ([]byte, error) {
		if len(params) != 0 {
			return []byte{StatusInvalidParams}, nil
		}
		b, err := src().MarshalBinary()
		if err != nil {
			return nil, err
		}
		return append([]byte{StatusSuccess}, b...), nil
	}
}
