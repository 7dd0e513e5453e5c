// Package config holds the program level settings of the bridge, read from a
// JSON file and overridden from the command line.
package config

import (
	"io/ioutil"
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
	"github.com/rigado/hcibridge/host"
	"github.com/rigado/hcibridge/linux/hci"
	"github.com/rigado/hcibridge/radio"
	"github.com/rigado/hcibridge/transparent"
)

// ErrInvalid is the cause of every validation failure.
var ErrInvalid = errors.New("invalid config")

type Host struct {
	Endpoint string `json:"endpoint"`
	Baud     uint   `json:"baud,omitempty"`
}

type Radio struct {
	Transport        string `json:"transport"`
	Baud             uint   `json:"baud,omitempty"`
	CommandTimeoutMs int    `json:"command_timeout_ms,omitempty"`
}

type Framing struct {
	Vendor    string `json:"vendor,omitempty"`
	MaxPacket int    `json:"max_packet,omitempty"`
}

type Log struct {
	Level string `json:"level,omitempty"`
	File  string `json:"file,omitempty"`
}

// Config is the whole program configuration.
type Config struct {
	Host        Host    `json:"host"`
	Radio       Radio   `json:"radio"`
	Framing     Framing `json:"framing"`
	IdleYieldMs int     `json:"idle_yield_ms,omitempty"`
	LED         string  `json:"led,omitempty"`
	Log         Log     `json:"log"`
}

// Default returns a config bridging the first USB gadget serial port to the
// first HCI device.
func Default() Config {
	return Config{
		Host:  Host{Endpoint: "serial:/dev/ttyGS0", Baud: host.DefaultBaud},
		Radio: Radio{Transport: "hci", CommandTimeoutMs: int(radio.DefaultCommandTimeout / time.Millisecond)},
		Framing: Framing{
			Vendor:    hcibridge.VendorReject.String(),
			MaxPacket: transparent.DefaultMaxPacketSize,
		},
		IdleYieldMs: int(transparent.DefaultIdleYield / time.Millisecond),
		Log:         Log{Level: "info"},
	}
}

// LoadFromFile reads filename over the defaults. Fields missing from the file
// keep their default value.
func LoadFromFile(filename string) (Config, error) {
	c := Default()

	in, err := ioutil.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return c, errors.Wrapf(err, "config file %v not found", filename)
		}
		return c, errors.Wrapf(err, "can't read %v", filename)
	}

	if err := jsoniter.Unmarshal(in, &c); err != nil {
		return c, errors.Wrapf(err, "can't decode %v", filename)
	}

	return c, c.Validate()
}

// Save writes c to filename.
func (c Config) Save(filename string) error {
	out, err := jsoniter.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return ioutil.WriteFile(filename, out, 0644)
}

func invalid(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalid, format, args...)
}

// Validate checks every field. The returned error's cause is ErrInvalid.
func (c Config) Validate() error {
	if c.Host.Endpoint == "" {
		return invalid("missing host endpoint")
	}
	switch scheme := strings.SplitN(c.Host.Endpoint, ":", 2)[0]; scheme {
	case "serial", "stdio", "tcp", "ws":
	default:
		return invalid("unknown host endpoint %q", c.Host.Endpoint)
	}

	if _, err := c.Transport(); err != nil {
		return invalid("%v", err)
	}
	if c.Radio.CommandTimeoutMs <= 0 {
		return invalid("radio command timeout must be positive, got %d", c.Radio.CommandTimeoutMs)
	}

	if _, err := hcibridge.ParseVendorFraming(c.Framing.Vendor); err != nil {
		return invalid("%v", err)
	}
	if n := c.Framing.MaxPacket; n < transparent.MinMaxPacketSize || n > transparent.MaxMaxPacketSize {
		return invalid("max packet %d outside [%d, %d]", n, transparent.MinMaxPacketSize, transparent.MaxMaxPacketSize)
	}
	if c.IdleYieldMs <= 0 {
		return invalid("idle yield must be positive, got %d", c.IdleYieldMs)
	}
	if strings.ContainsAny(c.LED, "/\x00") || c.LED == "." || c.LED == ".." {
		return invalid("bad led name %q", c.LED)
	}

	return nil
}

// Transport resolves the radio transport. A uart transport without an
// explicit rate picks up Radio.Baud.
func (c Config) Transport() (hci.Transport, error) {
	s := c.Radio.Transport
	if strings.HasPrefix(s, "uart:") && !strings.Contains(s, "@") && c.Radio.Baud != 0 {
		s += "@" + strconv.FormatUint(uint64(c.Radio.Baud), 10)
	}
	return hci.ParseTransport(s)
}

// CommandTimeout is the radio command timeout.
func (c Config) CommandTimeout() time.Duration {
	return time.Duration(c.Radio.CommandTimeoutMs) * time.Millisecond
}

// Options translates the framing settings into bridge options.
func (c Config) Options() ([]hcibridge.Option, error) {
	v, err := hcibridge.ParseVendorFraming(c.Framing.Vendor)
	if err != nil {
		return nil, invalid("%v", err)
	}
	return []hcibridge.Option{
		hcibridge.OptVendorFraming(v),
		hcibridge.OptMaxPacketSize(c.Framing.MaxPacket),
		hcibridge.OptIdleYield(time.Duration(c.IdleYieldMs) * time.Millisecond),
	}, nil
}
