package h4

import (
	"io"
	"sync"
	"time"

	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
)

var logger = hcibridge.PackageLogger("h4")

// flushWindow is how long NewSerial lets a controller answer the reset it
// sends before discarding whatever arrived.
const flushWindow = 250 * time.Millisecond

var resetCommand = []byte{0x01, 0x03, 0x0c, 0x00}

// DefaultSerialOptions returns the options of an H4 UART controller: 8N1 at
// 115200 baud with hardware flow control.
func DefaultSerialOptions() serial.OpenOptions {
	return serial.OpenOptions{
		BaudRate:          115200,
		DataBits:          8,
		StopBits:          1,
		ParityMode:        serial.PARITY_NONE,
		RTSCTSFlowControl: true,
	}
}

type uart struct {
	sp  io.ReadWriteCloser
	rmu sync.Mutex
	wmu sync.Mutex

	done chan struct{}
	cmu  sync.Mutex
}

// NewSerial opens an H4 controller on a serial port. Reads are pollable: they
// return (0, nil) when nothing arrived within the inter-character timeout.
// The controller is reset and any stale output discarded first.
func NewSerial(opts serial.OpenOptions) (io.ReadWriteCloser, error) {
	// force these
	opts.MinimumReadSize = 0
	opts.InterCharacterTimeout = 100

	logger.Infof("opening %v at %d baud", opts.PortName, opts.BaudRate)
	sp, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %v", opts.PortName)
	}

	u := &uart{sp: sp, done: make(chan struct{})}
	if err := u.flush(); err != nil {
		sp.Close()
		return nil, err
	}

	return u, nil
}

func (u *uart) flush() error {
	if _, err := u.sp.Write(resetCommand); err != nil {
		return errors.Wrap(err, "can't reset controller")
	}

	b := make([]byte, 2048)
	discarded := 0
	until := time.Now().Add(flushWindow)
	for time.Now().Before(until) {
		n, err := u.Read(b)
		if err != nil {
			return errors.Wrap(err, "can't flush controller")
		}
		discarded += n
	}
	logger.Debugf("flushed %d bytes", discarded)
	return nil
}

func (u *uart) Read(p []byte) (int, error) {
	if !u.isOpen() {
		return 0, io.EOF
	}

	u.rmu.Lock()
	defer u.rmu.Unlock()

	n, err := u.sp.Read(p)
	// a port opened with VMIN=0 reports an inter-character timeout as EOF
	if n == 0 && err == io.EOF && u.isOpen() {
		return 0, nil
	}
	return n, errors.Wrap(err, "can't read h4 uart")
}

func (u *uart) Write(p []byte) (int, error) {
	if !u.isOpen() {
		return 0, io.EOF
	}

	u.wmu.Lock()
	defer u.wmu.Unlock()
	n, err := u.sp.Write(p)
	return n, errors.Wrap(err, "can't write h4 uart")
}

func (u *uart) Close() error {
	u.cmu.Lock()
	defer u.cmu.Unlock()

	select {
	case <-u.done:
		return nil

	default:
		close(u.done)
		logger.Info("closing h4 uart")
		err := u.sp.Close()

		return errors.Wrap(err, "can't close h4 uart")
	}
}

func (u *uart) isOpen() bool {
	select {
	case <-u.done:
		return false
	default:
		return true
	}
}
