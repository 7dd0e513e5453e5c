package host

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rigado/hcibridge/stream"
)

func readN(t *testing.T, in stream.ByteReader, n int) []byte {
	t.Helper()
	var got []byte
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < n {
		c, ok, err := in.TryReadByte()
		if err != nil {
			t.Fatalf("read failed after %x: %v", got, err)
		}
		if !ok {
			if time.Now().After(deadline) {
				t.Fatalf("timed out after %x", got)
			}
			time.Sleep(time.Millisecond)
			continue
		}
		got = append(got, c)
	}
	return got
}

func TestParse(t *testing.T) {
	for _, bad := range []string{"", "serial:", "usb:/dev/x", "tcp:bogus-address"} {
		if e, err := Parse(bad, 0); err == nil {
			e.Close()
			t.Fatalf("Parse(%q) should fail", bad)
		}
	}

	e, err := Parse("serial:/dev/ttyGS0", 0)
	if err != nil {
		t.Fatalf("Parse serial: %v", err)
	}
	if e.String() != "serial:/dev/ttyGS0" {
		t.Fatalf("unexpected endpoint %v", e)
	}

	e, err = Parse("stdio", 0)
	if err != nil || e.String() != "stdio" {
		t.Fatalf("Parse stdio: %v %v", e, err)
	}
}

func TestTCPSession(t *testing.T) {
	e, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer e.Close()
	addr := strings.TrimPrefix(e.String(), "tcp:")

	go func() {
		c, err := net.Dial("tcp", addr)
		if err != nil {
			return
		}
		c.Write([]byte{0x20, 0x01, 0xfc, 0x00})
		buf := make([]byte, 3)
		n, _ := c.Read(buf)
		c.Write(buf[:n])
		c.Close()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := e.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer s.Close()

	if got := readN(t, s.In, 4); string(got) != string([]byte{0x20, 0x01, 0xfc, 0x00}) {
		t.Fatalf("got %x", got)
	}
	if err := s.Out.WriteAll([]byte{1, 2, 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := readN(t, s.In, 3); string(got) != string([]byte{1, 2, 3}) {
		t.Fatalf("echo got %x", got)
	}
}

func TestTCPAcceptCancel(t *testing.T) {
	e, err := ListenTCP("127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Accept(ctx); err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func dialWS(url string, protos ...string) (*websocket.Conn, *http.Response, error) {
	d := websocket.Dialer{Subprotocols: protos, HandshakeTimeout: 2 * time.Second}
	return d.Dial(url, nil)
}

func TestWebsocketSession(t *testing.T) {
	e := newWebsocketEndpoint()
	srv := httptest.NewServer(e)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	type dialed struct {
		c   *websocket.Conn
		err error
	}
	ch := make(chan dialed, 1)
	go func() {
		c, _, err := dialWS(url, Subprotocol)
		ch <- dialed{c, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s, err := e.Accept(ctx)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	d := <-ch
	if d.err != nil {
		t.Fatalf("dial: %v", d.err)
	}
	c := d.c
	defer c.Close()

	// a packet split across messages is one byte stream
	c.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x03})
	c.WriteMessage(websocket.BinaryMessage, []byte{0x0c, 0x00})
	if got := readN(t, s.In, 4); string(got) != string([]byte{0x01, 0x03, 0x0c, 0x00}) {
		t.Fatalf("got %x", got)
	}

	if err := s.Out.WriteAll([]byte{0x04, 0x0e, 0x00}); err != nil {
		t.Fatalf("write: %v", err)
	}
	mt, b, err := c.ReadMessage()
	if err != nil || mt != websocket.BinaryMessage || string(b) != string([]byte{0x04, 0x0e, 0x00}) {
		t.Fatalf("unexpected message %v %x %v", mt, b, err)
	}

	// busy while the session is open
	if _, resp, err := dialWS(url, Subprotocol); err == nil {
		t.Fatalf("second host should be refused")
	} else if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %v", resp)
	}

	s.Close()
	e.mu.Lock()
	busy := e.busy
	e.mu.Unlock()
	if busy {
		t.Fatalf("endpoint still busy after session close")
	}
}

func TestWebsocketSubprotocolRequired(t *testing.T) {
	e := newWebsocketEndpoint()
	srv := httptest.NewServer(e)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := dialWS(url)
	if err == nil {
		t.Fatalf("dial without subprotocol should fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotAcceptable {
		t.Fatalf("expected 406, got %v", resp)
	}
}

func TestStdioSingleSession(t *testing.T) {
	e := &stdioEndpoint{in: strings.NewReader("\x20"), out: &strings.Builder{}}
	s, err := e.Accept(context.Background())
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	defer s.Close()
	if got := readN(t, s.In, 1); got[0] != 0x20 {
		t.Fatalf("got %x", got)
	}
	if _, err := e.Accept(context.Background()); err == nil {
		t.Fatalf("second stdio session should fail")
	}
}

// eofReader always reports (0, io.EOF) and advances the clock by step.
type eofReader struct {
	clock *time.Time
	step  time.Duration
}

func (r *eofReader) Read([]byte) (int, error) {
	*r.clock = r.clock.Add(r.step)
	return 0, io.EOF
}

func TestPollPortHangup(t *testing.T) {
	tests := []struct {
		name   string
		step   time.Duration
		hungUp bool
	}{
		{"inter-character timeout", 100 * time.Millisecond, false},
		{"port hung up", time.Millisecond, true},
	}

	for _, tt := range tests {
		clock := time.Unix(0, 0)
		p := newPollPort(&eofReader{clock: &clock, step: tt.step})
		p.now = func() time.Time { return clock }

		var err error
		for i := 0; i < 2*hangupReads && err == nil; i++ {
			var n int
			n, err = p.Read(make([]byte, 1))
			if n != 0 {
				t.Fatalf("%s: read %d bytes", tt.name, n)
			}
		}

		if got := err == io.EOF; got != tt.hungUp {
			t.Fatalf("%s: got %v, hung up expected %v", tt.name, err, tt.hungUp)
		}
	}
}
