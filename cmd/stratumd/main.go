// Package main runs a stand-alone Stratum engine daemon.
//
// The daemon hosts the persistence layer selected by the environment and
// serves appends until it receives a SIGTERM or SIGINT. Consumers are
// registered by applications that embed the engine; the daemon itself hosts
// none.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/stratumhq/stratum"
	"github.com/stratumhq/stratum/bus"
)

// newContext returns a cancelable context that is canceled when the process
// receives a SIGTERM or SIGINT.
func newContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case <-sig:
			cancel()
		}
	}()

	return ctx, cancel
}

func main() {
	ctx, cancel := newContext()
	defer cancel()

	if err := run(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Println(err)
			os.Exit(1)
		}
	}
}

func run(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := cfg.provider(ctx)
	if err != nil {
		return err
	}

	logger := &logging.StandardLogger{
		Target:       log.New(os.Stderr, "", 0),
		CaptureDebug: cfg.Debug,
	}

	e := stratum.New(
		p,
		stratum.WithLogger(logger),
		stratum.WithDeadLetterHook(func(dl bus.DeadLetter) {
			logging.Log(
				logger,
				"dead letter: %s on %s after %d attempt(s) (%s)",
				dl.Envelope.EventID,
				dl.Subject,
				dl.Attempts,
				dl.Reason,
			)
		}),
	)

	return e.Run(ctx)
}
