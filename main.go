package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/YasiruR/didcomm-engine/cli"
	"github.com/YasiruR/didcomm-engine/domain/container"
	"github.com/YasiruR/didcomm-engine/prober"
	"github.com/YasiruR/didcomm-engine/pubsub"
	"github.com/YasiruR/didcomm-engine/reqrep/mock"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "agent failed - %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := cli.ParseArgs(os.Args[1:])
	if err != nil {
		return err
	}

	c, err := initContainer(cfg)
	if err != nil {
		return err
	}

	prb, err := prober.NewProber(c)
	if err != nil {
		return errors.Join(err, c.Stop())
	}
	c.Prober = prb

	errs := make(chan error, 1)
	go func() {
		if err := c.Server.Start(); err != nil {
			errs <- err
		}
	}()

	if cfg.MockPort != 0 {
		ctl := mock.Start(cfg.MockPort, prb, c.Stop, c.Log)
		c.OnStop(ctl.Close)
	}

	if cfg.Interactive {
		var events cli.Subscriber
		if n, ok := c.Notifier.(*pubsub.Notifier); ok {
			events = n
		}
		go cli.Init(c, prb, events)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sig:
		return c.Stop()
	case err = <-errs:
		return errors.Join(fmt.Errorf(`transport failed - %v`, err), c.Stop())
	case <-c.Done():
		return nil
	}
}
