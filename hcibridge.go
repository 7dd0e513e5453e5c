// Package hcibridge holds the types shared by the transparent HCI bridge: packet
// kinds, the dependency interfaces the framer dispatches to, options and logging.
package hcibridge

// Exchanger processes one framed packet and writes its reply into rsp,
// returning the reply length. 0 means no reply. cmd and rsp may share the same
// underlying storage, so implementations must read what they need from cmd
// before writing to rsp.
type Exchanger interface {
	Exchange(cmd, rsp []byte) (int, error)
}

// The ExchangeFunc type is an adapter to allow the use of ordinary functions as
// local handlers or radio transports.
type ExchangeFunc func(cmd, rsp []byte) (int, error)

// Exchange calls f(cmd, rsp).
func (f ExchangeFunc) Exchange(cmd, rsp []byte) (int, error) {
	return f(cmd, rsp)
}

// Drainer hands out controller traffic that arrived without a matching request.
type Drainer interface {
	Drain(rsp []byte) (int, error)
}

// Heartbeat is called with true when an input byte has been consumed and with
// false when a reply has been written.
type Heartbeat func(active bool)
