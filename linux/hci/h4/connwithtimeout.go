package h4

import (
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
)

// DefaultSocketTimeout bounds each read and write on an H4 TCP socket.
const DefaultSocketTimeout = 100 * time.Millisecond

type connWithTimeout struct {
	c       net.Conn
	timeout time.Duration
}

// NewSocket dials an H4 controller exposed over TCP, e.g. by a serial server.
// Reads that hit the timeout return (0, nil).
func NewSocket(addr string, timeout time.Duration) (io.ReadWriteCloser, error) {
	if timeout <= 0 {
		timeout = DefaultSocketTimeout
	}

	logger.Infof("dialing %v", addr)
	c, err := net.DialTimeout("tcp", addr, time.Second*5)
	if err != nil {
		return nil, errors.Wrapf(err, "can't dial %v", addr)
	}

	return &connWithTimeout{c: c, timeout: timeout}, nil
}

func (cwt *connWithTimeout) Read(b []byte) (int, error) {
	// with deadline
	cwt.c.SetReadDeadline(time.Now().Add(cwt.timeout))
	n, err := cwt.c.Read(b)
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return n, nil
	}
	return n, err
}

func (cwt *connWithTimeout) Write(b []byte) (int, error) {
	// with deadline
	cwt.c.SetWriteDeadline(time.Now().Add(cwt.timeout))
	return cwt.c.Write(b)
}

func (cwt *connWithTimeout) Close() error {
	return cwt.c.Close()
}
