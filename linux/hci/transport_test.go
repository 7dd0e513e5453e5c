package hci

import "testing"

func TestParseTransport(t *testing.T) {
	tests := []struct {
		in   string
		want string
		bad  bool
	}{
		{in: "none", want: "none"},
		{in: "", want: "none"},
		{in: "hci", want: "hci:-1"},
		{in: "hci:1", want: "hci:1"},
		{in: "hci:hci0", want: "hci:0"},
		{in: "uart:/dev/ttyACM0", want: "uart:/dev/ttyACM0"},
		{in: "uart:/dev/ttyACM0@921600", want: "uart:/dev/ttyACM0@921600"},
		{in: "tcp:10.0.0.2:4000", want: "tcp:10.0.0.2:4000"},
		{in: "hci:x", bad: true},
		{in: "uart:", bad: true},
		{in: "uart:/dev/tty@fast", bad: true},
		{in: "tcp:", bad: true},
		{in: "usb:1", bad: true},
	}

	for _, tt := range tests {
		tr, err := ParseTransport(tt.in)
		if tt.bad {
			if err == nil {
				t.Fatalf("%q: expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("%q: %v", tt.in, err)
		}
		if tr.String() != tt.want {
			t.Fatalf("%q: got %q, expected %q", tt.in, tr.String(), tt.want)
		}
	}
}

func TestOpenNone(t *testing.T) {
	tr, _ := ParseTransport("none")
	if !tr.None() {
		t.Fatalf("expected no controller")
	}
	if _, err := tr.Open(); err == nil {
		t.Fatalf("expected error opening no transport")
	}
}
