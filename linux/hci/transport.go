// Package hci opens the controller side of the bridge: a local HCI user
// channel, an H4 UART or an H4 TCP socket.
package hci

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/hcibridge/linux/hci/h4"
	"github.com/rigado/hcibridge/linux/hci/socket"
)

type transportHci struct {
	id int
}

type transportH4Socket struct {
	addr    string
	timeout time.Duration
}

type transportH4Uart struct {
	path string
	baud uint
}

// Transport describes how to reach a controller. The zero value means no
// controller.
type Transport struct {
	hci      *transportHci
	h4uart   *transportH4Uart
	h4socket *transportH4Socket
}

// TransportHCISocket selects the HCI user channel of device id; -1 picks the
// first available one.
func TransportHCISocket(id int) Transport {
	return Transport{hci: &transportHci{id}}
}

// TransportH4Uart selects an H4 controller on a serial port. A zero baud
// keeps the default.
func TransportH4Uart(path string, baud uint) Transport {
	return Transport{h4uart: &transportH4Uart{path, baud}}
}

// TransportH4Socket selects an H4 controller behind a TCP address.
func TransportH4Socket(addr string, timeout time.Duration) Transport {
	return Transport{h4socket: &transportH4Socket{addr, timeout}}
}

// ParseTransport reads "hci:<id>", "uart:<path>[@<baud>]", "tcp:<host:port>"
// or "none".
func ParseTransport(s string) (Transport, error) {
	scheme, rest := s, ""
	if i := strings.Index(s, ":"); i >= 0 {
		scheme, rest = s[:i], s[i+1:]
	}

	switch scheme {
	case "none", "":
		return Transport{}, nil

	case "hci":
		id := -1
		if rest != "" {
			v, err := strconv.Atoi(strings.TrimPrefix(rest, "hci"))
			if err != nil {
				return Transport{}, errors.Wrapf(err, "invalid hci device %q", rest)
			}
			id = v
		}
		return TransportHCISocket(id), nil

	case "uart":
		path, baud := rest, uint(0)
		if i := strings.LastIndex(rest, "@"); i >= 0 {
			v, err := strconv.ParseUint(rest[i+1:], 10, 32)
			if err != nil {
				return Transport{}, errors.Wrapf(err, "invalid baud rate in %q", rest)
			}
			path, baud = rest[:i], uint(v)
		}
		if path == "" {
			return Transport{}, errors.Errorf("missing serial port in %q", s)
		}
		return TransportH4Uart(path, baud), nil

	case "tcp":
		if rest == "" {
			return Transport{}, errors.Errorf("missing address in %q", s)
		}
		return TransportH4Socket(rest, 0), nil

	default:
		return Transport{}, errors.Errorf("unknown controller transport %q", s)
	}
}

// None reports whether t selects no controller.
func (t Transport) None() bool {
	return t.hci == nil && t.h4uart == nil && t.h4socket == nil
}

func (t Transport) String() string {
	switch {
	case t.hci != nil:
		return "hci:" + strconv.Itoa(t.hci.id)
	case t.h4uart != nil:
		if t.h4uart.baud != 0 {
			return "uart:" + t.h4uart.path + "@" + strconv.FormatUint(uint64(t.h4uart.baud), 10)
		}
		return "uart:" + t.h4uart.path
	case t.h4socket != nil:
		return "tcp:" + t.h4socket.addr
	default:
		return "none"
	}
}

// Open connects to the controller.
func (t Transport) Open() (io.ReadWriteCloser, error) {
	switch {
	case t.hci != nil:
		s, err := socket.NewSocket(t.hci.id)
		if err != nil {
			return nil, err
		}
		return s, nil

	case t.h4socket != nil:
		return h4.NewSocket(t.h4socket.addr, t.h4socket.timeout)

	case t.h4uart != nil:
		so := h4.DefaultSerialOptions()
		so.PortName = t.h4uart.path
		if t.h4uart.baud != 0 {
			so.BaudRate = t.h4uart.baud
		}
		return h4.NewSerial(so)

	default:
		return nil, errors.New("no valid transport found")
	}
}
