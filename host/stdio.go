package host

import (
	"context"
	"io"
	"os"

	"github.com/rigado/hcibridge/stream"
)

type stdioEndpoint struct {
	in   io.Reader
	out  io.Writer
	used bool
}

// NewStdio serves a single session over the process's stdin and stdout.
func NewStdio() Endpoint {
	return &stdioEndpoint{in: os.Stdin, out: os.Stdout}
}

func (e *stdioEndpoint) Accept(ctx context.Context) (*Session, error) {
	if e.used {
		return nil, io.EOF
	}
	e.used = true

	pump := stream.NewPump(e.in)
	return newSession(e.String(), pump, stream.NewWriter(e.out), pump), nil
}

func (e *stdioEndpoint) Close() error {
	return nil
}

func (e *stdioEndpoint) String() string {
	return "stdio"
}
