package hcibridge

import "time"

// BridgeOption is an interface which the bridge should implement to allow using configuration options
type BridgeOption interface {
	SetHeartbeat(Heartbeat) error
	SetVendorFraming(VendorFraming) error
	SetMaxPacketSize(int) error
	SetIdleYield(time.Duration) error
	SetErrorHandler(handler func(error)) error
	SetStopOnOverflow(bool) error
	SetRadioEvents(Drainer) error
	SetLogger(Logger) error
}

// An Option is a configuration function, which configures the bridge.
type Option func(BridgeOption) error

// OptHeartbeat sets the activity callback, e.g. an LED.
func OptHeartbeat(h Heartbeat) Option {
	return func(opt BridgeOption) error {
		return opt.SetHeartbeat(h)
	}
}

// OptVendorFraming selects how vendor kinds 0x11 and 0x12 are framed.
func OptVendorFraming(v VendorFraming) Option {
	return func(opt BridgeOption) error {
		return opt.SetVendorFraming(v)
	}
}

// OptMaxPacketSize overrides the default 1024 octet packet buffer.
func OptMaxPacketSize(n int) Option {
	return func(opt BridgeOption) error {
		return opt.SetMaxPacketSize(n)
	}
}

// OptIdleYield sets how long the run loop sleeps after an unproductive tick.
func OptIdleYield(d time.Duration) Option {
	return func(opt BridgeOption) error {
		return opt.SetIdleYield(d)
	}
}

// OptErrorHandler sets error handler
func OptErrorHandler(handler func(error)) Option {
	return func(opt BridgeOption) error {
		return opt.SetErrorHandler(handler)
	}
}

// OptStopOnOverflow makes an oversized packet terminate the run loop.
func OptStopOnOverflow(stop bool) Option {
	return func(opt BridgeOption) error {
		return opt.SetStopOnOverflow(stop)
	}
}

// OptRadioEvents forwards unsolicited controller packets while the framer is idle.
func OptRadioEvents(d Drainer) Option {
	return func(opt BridgeOption) error {
		return opt.SetRadioEvents(d)
	}
}

// OptLogger overrides the package logger for a single bridge.
func OptLogger(l Logger) Option {
	return func(opt BridgeOption) error {
		return opt.SetLogger(l)
	}
}
