package main

import (
	"context"
	"encoding"
	"io"
	"os"
	"time"

	"github.com/kardianos/service"
	"github.com/pkg/errors"
	"github.com/rigado/hcibridge"
	"github.com/rigado/hcibridge/config"
	"github.com/rigado/hcibridge/host"
	"github.com/rigado/hcibridge/local"
	"github.com/rigado/hcibridge/radio"
	"github.com/rigado/hcibridge/transparent"
)

const stopTimeout = 5 * time.Second

// program runs the bridge under kardianos/service. In interactive mode the
// service library turns SIGINT and SIGTERM into Stop.
type program struct {
	cfg config.Config

	cancel context.CancelFunc
	done   chan error
}

func (p *program) Start(s service.Service) error {
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan error, 1)

	go func() {
		err := p.serve(ctx)
		p.done <- err
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Errorf("bridge stopped: %v", err)
			os.Exit(1)
		}
		logger.Info("host closed, exiting")
		os.Exit(0)
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.cancel()
	select {
	case <-p.done:
	case <-time.After(stopTimeout):
		logger.Warn("bridge did not stop in time")
	}
	return nil
}

// serve accepts host sessions one after another, each with a fresh bridge in
// front of the same controller. It returns when the host endpoint is
// exhausted or a dependency fails.
func (p *program) serve(ctx context.Context) error {
	ep, err := host.Parse(p.cfg.Host.Endpoint, p.cfg.Host.Baud)
	if err != nil {
		return err
	}
	defer ep.Close()

	rad, err := p.openRadio()
	if err != nil {
		return err
	}
	defer rad.Close()

	var hb hcibridge.Heartbeat
	if p.cfg.LED != "" {
		led, err := OpenLED(p.cfg.LED)
		if err != nil {
			return err
		}
		defer led.Close()
		hb = led.Heartbeat
	}

	for {
		s, err := ep.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Cause(err) == io.EOF {
				return nil
			}
			return err
		}

		logger.Infof("host session %v started", s)
		depErr, err := p.session(ctx, s, rad, hb)
		s.Close()

		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case depErr != nil:
			return err
		}
		logger.Infof("host session %v ended: %v", s, err)
	}
}

// session runs one bridge until the host goes away. depErr is set when the
// bridge stopped because the controller or the local handler failed.
func (p *program) session(ctx context.Context, s *host.Session, rad *radioDep, hb hcibridge.Heartbeat) (depErr, err error) {
	opts, err := p.cfg.Options()
	if err != nil {
		return err, err
	}

	g := &depGuard{}
	mux := local.NewMux()
	mux.Handle(local.OpcodeBridgeInfo, local.Info("hcibridge "+version))

	opts = append(opts,
		hcibridge.OptHeartbeat(hb),
		hcibridge.OptErrorHandler(func(err error) {
			logger.Warnf("host %v: %v", s, err)
		}),
	)
	if rad.events != nil {
		opts = append(opts, hcibridge.OptRadioEvents(g.drainer(rad.events)))
	}

	b, err := transparent.New(s.In, s.Out, g.exchanger(mux), g.exchanger(rad.ex), opts...)
	if err != nil {
		return err, err
	}
	mux.Handle(local.OpcodeBridgeStats, local.Marshaled(func() encoding.BinaryMarshaler {
		return b.Stats()
	}))

	err = b.Run(ctx)
	return g.err, err
}

// radioDep is the controller shared by every session.
type radioDep struct {
	ex     hcibridge.Exchanger
	events hcibridge.Drainer
	close  func() error
}

func (r *radioDep) Close() error {
	if r.close == nil {
		return nil
	}
	return r.close()
}

func (p *program) openRadio() (*radioDep, error) {
	tr, err := p.cfg.Transport()
	if err != nil {
		return nil, err
	}

	if tr.None() {
		logger.Warn("no controller configured, radio packets are discarded")
		return &radioDep{
			ex: hcibridge.ExchangeFunc(func(cmd, rsp []byte) (int, error) {
				logger.Debugf("discarding radio packet [% x]", cmd)
				return 0, nil
			}),
		}, nil
	}

	rwc, err := tr.Open()
	if err != nil {
		return nil, errors.Wrapf(err, "can't open controller %v", tr)
	}
	logger.Infof("opened controller %v", tr)

	l := radio.NewLink(rwc, radio.WithCommandTimeout(p.cfg.CommandTimeout()))
	return &radioDep{ex: l, events: l, close: l.Close}, nil
}

// depGuard remembers the first error an exchanger or drainer returned, so a
// failed controller can be told apart from a host that went away.
type depGuard struct {
	err error
}

func (g *depGuard) record(err error) error {
	if err != nil && g.err == nil {
		g.err = err
	}
	return err
}

func (g *depGuard) exchanger(x hcibridge.Exchanger) hcibridge.Exchanger {
	return hcibridge.ExchangeFunc(func(cmd, rsp []byte) (int, error) {
		n, err := x.Exchange(cmd, rsp)
		return n, g.record(err)
	})
}

func (g *depGuard) drainer(d hcibridge.Drainer) hcibridge.Drainer {
	return drainFunc(func(rsp []byte) (int, error) {
		n, err := d.Drain(rsp)
		return n, g.record(err)
	})
}

type drainFunc func(rsp []byte) (int, error)

func (f drainFunc) Drain(rsp []byte) (int, error) {
	return f(rsp)
}
