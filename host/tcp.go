package host

import (
	"context"
	"net"

	"github.com/pkg/errors"
	"github.com/rigado/hcibridge/stream"
)

type tcpEndpoint struct {
	ln net.Listener
}

// ListenTCP serves host sessions over raw TCP connections, one at a time.
func ListenTCP(addr string) (Endpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "can't listen on %v", addr)
	}
	logger.Infof("listening for hosts on tcp %v", ln.Addr())
	return &tcpEndpoint{ln: ln}, nil
}

func (e *tcpEndpoint) Accept(ctx context.Context) (*Session, error) {
	type result struct {
		c   net.Conn
		err error
	}
	ch := make(chan result, 1)
	go func() {
		c, err := e.ln.Accept()
		ch <- result{c, err}
	}()

	select {
	case <-ctx.Done():
		// unblocks the pending Accept
		e.ln.Close()
		return nil, ctx.Err()
	case r := <-ch:
		if r.err != nil {
			return nil, errors.Wrap(r.err, "can't accept host")
		}
		logger.Infof("host connected from %v", r.c.RemoteAddr())
		pump := stream.NewPump(r.c)
		return newSession("tcp:"+r.c.RemoteAddr().String(), pump, stream.NewWriter(r.c), pump, r.c), nil
	}
}

func (e *tcpEndpoint) Close() error {
	return e.ln.Close()
}

func (e *tcpEndpoint) String() string {
	return "tcp:" + e.ln.Addr().String()
}
