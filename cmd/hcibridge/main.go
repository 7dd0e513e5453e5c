package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
	"github.com/rigado/hcibridge/config"
	"github.com/urfave/cli"
)

var version = "dev"

var logger = hcibridge.PackageLogger("main")

func main() {
	app := cli.NewApp()
	app.Name = "hcibridge"
	app.Usage = "pass HCI traffic between a host port and a Bluetooth controller"
	app.Version = version
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config, c",
			Usage: "path of config file",
		},
		cli.StringFlag{
			Name:  "host",
			Usage: "host endpoint: serial:<path>, stdio, tcp:<addr> or ws:<addr>",
		},
		cli.UintFlag{
			Name:  "baud",
			Usage: "host serial baud rate",
		},
		cli.StringFlag{
			Name:  "radio",
			Usage: "controller transport: hci[:<id>], uart:<path>[@<baud>], tcp:<addr> or none",
		},
		cli.UintFlag{
			Name:  "radio-baud",
			Usage: "controller uart baud rate",
		},
		cli.IntFlag{
			Name:  "command-timeout",
			Usage: "controller command timeout in ms",
		},
		cli.StringFlag{
			Name:  "vendor-framing",
			Usage: "framing of vendor packets 0x11/0x12: reject or event",
		},
		cli.IntFlag{
			Name:  "max-packet",
			Usage: "largest host packet in octets",
		},
		cli.IntFlag{
			Name:  "idle-yield",
			Usage: "sleep after an idle poll in ms",
		},
		cli.StringFlag{
			Name:  "led",
			Usage: "name of the sysfs LED blinked on traffic",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "trace, debug, info, warn or error",
		},
		cli.StringFlag{
			Name:  "log-file",
			Usage: "append logs to this file instead of stderr",
		},
		cli.StringFlag{
			Name:  "service",
			Usage: fmt.Sprintf("control the system service: %q", service.ControlAction),
		},
	}
	app.Action = run

	if err := app.Run(os.Args); err != nil {
		logger.Error(err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Log); err != nil {
		return err
	}

	prg := &program{cfg: cfg}
	svcConfig := service.Config{
		Name:        "hcibridge",
		DisplayName: "HCI bridge",
		Description: "Bridges HCI between a host port and a Bluetooth controller.",
		Arguments:   serviceArgs(c),
	}

	s, err := service.New(prg, &svcConfig)
	if err != nil {
		return errors.Wrap(err, "can't create service")
	}

	if action := c.String("service"); action != "" {
		if err := service.Control(s, action); err != nil {
			return errors.Wrapf(err, "valid actions: %q", service.ControlAction)
		}
		return nil
	}

	return s.Run()
}

// loadConfig reads the config file named on the command line, or config.json
// next to the executable, then applies flag overrides.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Default()

	fn := c.String("config")
	if fn == "" {
		if dir, err := execDir(); err == nil && fileExists(filepath.Join(dir, "config.json")) {
			fn = filepath.Join(dir, "config.json")
		}
	}
	if fn != "" {
		var err error
		if cfg, err = config.LoadFromFile(fn); err != nil {
			return cfg, err
		}
		logger.Infof("using config file %v", fn)
	}

	if c.IsSet("host") {
		cfg.Host.Endpoint = c.String("host")
	}
	if c.IsSet("baud") {
		cfg.Host.Baud = c.Uint("baud")
	}
	if c.IsSet("radio") {
		cfg.Radio.Transport = c.String("radio")
	}
	if c.IsSet("radio-baud") {
		cfg.Radio.Baud = c.Uint("radio-baud")
	}
	if c.IsSet("command-timeout") {
		cfg.Radio.CommandTimeoutMs = c.Int("command-timeout")
	}
	if c.IsSet("vendor-framing") {
		cfg.Framing.Vendor = c.String("vendor-framing")
	}
	if c.IsSet("max-packet") {
		cfg.Framing.MaxPacket = c.Int("max-packet")
	}
	if c.IsSet("idle-yield") {
		cfg.IdleYieldMs = c.Int("idle-yield")
	}
	if c.IsSet("led") {
		cfg.LED = c.String("led")
	}
	if c.IsSet("log-level") {
		cfg.Log.Level = c.String("log-level")
	}
	if c.IsSet("log-file") {
		cfg.Log.File = c.String("log-file")
	}

	return cfg, cfg.Validate()
}

func setupLogging(l config.Log) error {
	if l.Level != "" {
		if err := hcibridge.SetLogLevel(l.Level); err != nil {
			return err
		}
	}

	fn := l.File
	if fn == "" && !service.Interactive() {
		dir, err := execDir()
		if err != nil {
			return err
		}
		fn = filepath.Join(dir, "hcibridge.log")
	}
	if fn == "" {
		return nil
	}

	f, err := os.OpenFile(fn, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return errors.Wrapf(err, "can't open log file %v", fn)
	}
	hcibridge.SetLogOutput(f)
	return nil
}

// serviceArgs are the arguments an installed service starts with.
func serviceArgs(c *cli.Context) []string {
	var args []string
	if fn := c.String("config"); fn != "" {
		if abs, err := filepath.Abs(fn); err == nil {
			fn = abs
		}
		args = append(args, "--config", fn)
	}
	return args
}

func execDir() (string, error) {
	p, err := os.Executable()
	if err != nil {
		return "", err
	}
	dir, _ := filepath.Split(p)
	return dir, nil
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
