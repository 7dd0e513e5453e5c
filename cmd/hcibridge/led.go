package main

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"
)

// LEDDir holds the sysfs LED class devices.
var LEDDir = "/sys/class/leds"

// LED drives a sysfs LED from the bridge heartbeat: on while a host packet is
// in flight, off once its reply went out.
type LED struct {
	mu  sync.Mutex
	f   *os.File
	on  bool
	set bool
}

// OpenLED opens the brightness attribute of the named LED.
func OpenLED(name string) (*LED, error) {
	fn := filepath.Join(LEDDir, name, "brightness")
	f, err := os.OpenFile(fn, os.O_WRONLY, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open led %v", name)
	}
	return &LED{f: f}, nil
}

// Heartbeat has the hcibridge.Heartbeat signature. Only edges reach sysfs.
func (l *LED) Heartbeat(active bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.set && l.on == active {
		return
	}
	v := []byte("0")
	if active {
		v = []byte("1")
	}
	if _, err := l.f.WriteAt(v, 0); err != nil {
		logger.Debugf("led write failed: %v", err)
		return
	}
	l.on, l.set = active, true
}

// Close turns the LED off and releases it.
func (l *LED) Close() error {
	l.Heartbeat(false)
	return l.f.Close()
}
