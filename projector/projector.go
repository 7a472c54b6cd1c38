// Package projector provides the idempotent consumer runtime: it pulls
// events from the bus and turns at-least-once delivery into effectively-once
// application, by committing each handler's side effects in the same
// transaction as a per-(consumer, event, tenant) dedup marker.
package projector

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	"github.com/stratumhq/stratum/bus"
	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/internal/mlog"
	"github.com/stratumhq/stratum/persistence"
	"github.com/stratumhq/stratum/semaphore"
	"github.com/stratumhq/stratum/tenantctx"
)

// Projector runs registered consumers against the bus.
type Projector struct {
	// Bus is the bus that events are consumed from.
	Bus *bus.Bus

	// DataStore provides the dedup-marker repository and the transactions
	// that handlers enlist in.
	DataStore persistence.DataStore

	// Logger is the target for log messages about handled events. If it is
	// nil, logging.DefaultLogger is used.
	Logger logging.Logger

	// Semaphore limits the number of events that are handled in parallel
	// across all of the projector's consumers. The zero-value imposes no
	// limit.
	Semaphore semaphore.Semaphore

	// BackoffStrategy determines the redelivery delay after a transient
	// failure. If it is nil, bus.DefaultBackoffStrategy is used.
	BackoffStrategy backoff.Strategy
}

// Run subscribes a consumer and handles its deliveries until ctx is
// canceled.
//
// The registration is validated eagerly: a nil handler or a malformed
// configuration is reported before any event is consumed.
func (p *Projector) Run(ctx context.Context, cfg bus.ConsumerConfig, h Handler) error {
	if h == nil {
		return fmt.Errorf("consumer %s has no handler", cfg.Name)
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	sub, err := p.Bus.Subscribe(ctx, cfg)
	if err != nil {
		return err
	}
	defer sub.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-sub.Deliveries():
			if !ok {
				return nil
			}

			if err := p.Semaphore.Acquire(ctx); err != nil {
				return err
			}

			wg.Add(1)
			go func() {
				defer wg.Done()
				defer p.Semaphore.Release()

				p.process(ctx, cfg.Name, d, h)
			}()
		}
	}
}

// process applies one delivery and resolves it per the resulting
// disposition.
func (p *Projector) process(
	ctx context.Context,
	name string,
	d *bus.Delivery,
	h Handler,
) {
	disp, cause := p.apply(ctx, name, d.Envelope, h)

	var delay time.Duration

	switch disp {
	case Applied:
		mlog.LogAck(p.logger(), name, d.Envelope)
	case AlreadyProcessed:
		mlog.LogSkip(p.logger(), name, d.Envelope)
	case TransientFailure:
		delay = p.strategy()(cause, d.Attempt)
		mlog.LogNack(p.logger(), name, d.Envelope, cause, delay)
	}

	resolve(d, disp, delay)
}

// apply makes a single attempt at applying env for the named consumer.
//
// It returns the disposition of the attempt and, for failures, the causal
// error.
func (p *Projector) apply(
	ctx context.Context,
	name string,
	env *envelope.Envelope,
	h Handler,
) (Disposition, error) {
	if err := env.Validate(); err != nil {
		// A malformed envelope can never become valid. Redelivering it
		// would fail identically every time.
		return PoisonPill, err
	}

	// Restore the producer's ambient scope so that the handler, and any
	// I/O it performs, runs under the event's tenant, user and correlation
	// identity.
	ctx = tenantctx.WithScope(ctx, env.Scope())

	processed, err := p.DataStore.IsProcessed(ctx, name, env.EventID, env.TenantID)
	if err != nil {
		return TransientFailure, err
	}
	if processed {
		return AlreadyProcessed, nil
	}

	tx, err := p.DataStore.Begin(ctx)
	if err != nil {
		return TransientFailure, err
	}
	defer tx.Rollback()

	if err := h(ctx, tx, env); err != nil {
		if IsFatal(err) {
			return PoisonPill, err
		}

		return TransientFailure, err
	}

	err = tx.MarkProcessed(ctx, persistence.ProcessedEvent{
		ConsumerName: name,
		EventID:      env.EventID,
		TenantID:     env.TenantID,
		ProcessedAt:  time.Now().UTC(),
	})
	if err == nil {
		err = tx.Commit()
	}

	if err != nil {
		var already persistence.AlreadyProcessedError
		if errors.As(err, &already) {
			// This attempt lost a race against a concurrent delivery of
			// the same event. Only acknowledge if the winner's marker
			// actually committed.
			return p.recheck(ctx, name, env, err)
		}

		return TransientFailure, err
	}

	return Applied, nil
}

// recheck distinguishes a marker conflict caused by a committed winner from
// one whose winner subsequently rolled back.
func (p *Projector) recheck(
	ctx context.Context,
	name string,
	env *envelope.Envelope,
	cause error,
) (Disposition, error) {
	processed, err := p.DataStore.IsProcessed(ctx, name, env.EventID, env.TenantID)
	if err != nil {
		return TransientFailure, err
	}

	if processed {
		return AlreadyProcessed, nil
	}

	return TransientFailure, cause
}

func (p *Projector) strategy() backoff.Strategy {
	if p.BackoffStrategy != nil {
		return p.BackoffStrategy
	}

	return bus.DefaultBackoffStrategy
}

func (p *Projector) logger() logging.Logger {
	if p.Logger != nil {
		return p.Logger
	}

	return logging.DefaultLogger
}
