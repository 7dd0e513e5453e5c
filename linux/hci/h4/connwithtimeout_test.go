package h4

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestSocketReadTimeoutIsIdle(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := ln.Accept()
		if err != nil {
			close(accepted)
			return
		}
		accepted <- c
	}()

	s, err := NewSocket(ln.Addr().String(), 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ctrl := <-accepted
	if ctrl == nil {
		t.Fatal("accept failed")
	}
	defer ctrl.Close()

	b := make([]byte, 16)
	n, err := s.Read(b)
	if n != 0 || err != nil {
		t.Fatalf("expected (0, nil) on timeout, got (%d, %v)", n, err)
	}

	if _, err := s.Write(resetCommand); err != nil {
		t.Fatal(err)
	}
	got := make([]byte, 4)
	ctrl.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := ctrl.Read(got); err != nil || !bytes.Equal(got, resetCommand) {
		t.Fatalf("controller read % x, %v", got, err)
	}

	evt := []byte{0x04, 0x0e, 0x04, 0x01, 0x03, 0x0c, 0x00}
	ctrl.Write(evt)

	deadline := time.Now().Add(time.Second)
	var rx []byte
	for len(rx) < len(evt) && time.Now().Before(deadline) {
		n, err := s.Read(b)
		if err != nil {
			t.Fatal(err)
		}
		rx = append(rx, b[:n]...)
	}
	if !bytes.Equal(rx, evt) {
		t.Fatalf("got % x, expected % x", rx, evt)
	}
}
