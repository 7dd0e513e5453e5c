// Package host provides the PC facing side of the bridge: the byte streams a
// monitoring tool talks HCI over. Endpoints hand out one session at a time.
package host

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
	"github.com/rigado/hcibridge/stream"
)

var logger = hcibridge.PackageLogger("host")

// Session is one connected host.
type Session struct {
	In  stream.ByteReader
	Out stream.Writer

	name    string
	closers []io.Closer
}

func newSession(name string, in stream.ByteReader, out stream.Writer, closers ...io.Closer) *Session {
	return &Session{In: in, Out: out, name: name, closers: closers}
}

func (s *Session) String() string {
	return s.name
}

// Close releases the session's streams. The first error wins.
func (s *Session) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Endpoint accepts host sessions. Accept blocks until a host is available or
// ctx is done; a session must be closed before the next Accept.
type Endpoint interface {
	Accept(ctx context.Context) (*Session, error)
	Close() error
	String() string
}

// Parse reads "serial:<path>", "stdio", "tcp:<addr>" or "ws:<addr>". baud only
// applies to serial endpoints; 0 keeps the default.
func Parse(endpoint string, baud uint) (Endpoint, error) {
	scheme, rest := endpoint, ""
	if i := strings.Index(endpoint, ":"); i >= 0 {
		scheme, rest = endpoint[:i], endpoint[i+1:]
	}

	switch scheme {
	case "serial":
		if rest == "" {
			return nil, errors.Errorf("missing serial port in %q", endpoint)
		}
		return NewSerial(rest, baud), nil
	case "stdio":
		return NewStdio(), nil
	case "tcp":
		return ListenTCP(rest)
	case "ws":
		return ListenWebsocket(rest)
	default:
		return nil, errors.Errorf("unknown host endpoint %q", endpoint)
	}
}
