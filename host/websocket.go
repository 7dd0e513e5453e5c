package host

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rigado/hcibridge/stream"
)

// Subprotocol must be offered by websocket hosts.
const Subprotocol = "hci"

type wsEndpoint struct {
	up    websocket.Upgrader
	conns chan *wsConn
	errs  chan error
	srv   *http.Server
	addr  string

	mu   sync.Mutex
	busy bool
}

// ListenWebsocket serves host sessions over websocket binary messages. A
// second client is refused while a session is active.
func ListenWebsocket(addr string) (Endpoint, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.Wrapf(err, "can't listen on %v", addr)
	}

	e := newWebsocketEndpoint()
	e.addr = ln.Addr().String()
	e.srv = &http.Server{Handler: e}
	go func() {
		if err := e.srv.Serve(ln); err != nil && err != http.ErrServerClosed {
			e.errs <- err
		}
	}()
	logger.Infof("listening for hosts on ws://%v", e.addr)

	return e, nil
}

func newWebsocketEndpoint() *wsEndpoint {
	return &wsEndpoint{
		up: websocket.Upgrader{
			Subprotocols: []string{Subprotocol},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		conns: make(chan *wsConn),
		errs:  make(chan error, 1),
	}
}

func (e *wsEndpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if protos := websocket.Subprotocols(r); len(protos) == 0 || protos[0] != Subprotocol {
		http.Error(w, "websocket client not supported. sub protocol must be '"+Subprotocol+"'", http.StatusNotAcceptable)
		return
	}

	e.mu.Lock()
	if e.busy {
		e.mu.Unlock()
		http.Error(w, "bridge already has a host", http.StatusConflict)
		return
	}
	e.busy = true
	e.mu.Unlock()

	conn, err := e.up.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		e.release()
		logger.Warnf("unsuccessful websocket negotiation: %v", err)
		return
	}

	select {
	case e.conns <- &wsConn{Conn: conn}:
	case <-r.Context().Done():
		conn.Close()
		e.release()
	}
}

func (e *wsEndpoint) release() {
	e.mu.Lock()
	e.busy = false
	e.mu.Unlock()
}

func (e *wsEndpoint) Accept(ctx context.Context) (*Session, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case err := <-e.errs:
		return nil, errors.Wrap(err, "websocket endpoint failed")
	case c := <-e.conns:
		logger.Infof("host connected from %v", c.RemoteAddr())
		pump := stream.NewPump(c)
		return newSession("ws:"+c.RemoteAddr().String(), pump, stream.NewWriter(c), pump, c, releaser{e}), nil
	}
}

func (e *wsEndpoint) Close() error {
	if e.srv == nil {
		return nil
	}
	return e.srv.Close()
}

func (e *wsEndpoint) String() string {
	return "ws:" + e.addr
}

type releaser struct {
	e *wsEndpoint
}

func (r releaser) Close() error {
	r.e.release()
	return nil
}

// wsConn presents a websocket as a byte stream: every write is one binary
// message, reads run across message boundaries.
type wsConn struct {
	*websocket.Conn
	r io.Reader
}

func (c *wsConn) Write(p []byte) (int, error) {
	err := c.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Read(p []byte) (int, error) {
	for {
		if c.r == nil {
			var err error
			var mt int
			if mt, c.r, err = c.NextReader(); err != nil {
				return 0, err
			}
			if mt != websocket.BinaryMessage {
				return 0, errors.New("not binary message")
			}
		}
		n, err := c.r.Read(p)
		if err == io.EOF {
			c.r = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}
