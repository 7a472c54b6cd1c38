// Package bus provides an embedded, subject-partitioned message bus with
// durable-consumer semantics: at-least-once delivery, explicit ack/nack/term
// acknowledgment, bounded redelivery and replay of historical events from
// the event store.
package bus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger"
	"github.com/dogmatiq/linger/backoff"
	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/internal/mlog"
	"github.com/stratumhq/stratum/persistence"
)

// DefaultBackoffStrategy is the strategy used to delay redelivery of
// nacked events when no other strategy is configured.
var DefaultBackoffStrategy backoff.Strategy = backoff.WithTransforms(
	backoff.Exponential(100*time.Millisecond),
	linger.FullJitter,
	linger.Limiter(0, 10*time.Second),
)

// Bus is an embedded message bus.
//
// Events are published to tenant-scoped subjects and delivered to named
// durable consumers. Delivery is at-least-once; consumers resolve each
// delivery with exactly one of ack, nack or term.
type Bus struct {
	// DataStore is the event store used to replay history for consumers
	// whose delivery policy starts in the past. It may be nil if no such
	// consumer subscribes.
	DataStore persistence.DataStore

	// Logger is the target for log messages about the flow of events. If
	// it is nil, logging.DefaultLogger is used.
	Logger logging.Logger

	// BackoffStrategy determines the redelivery delay after a nack that
	// does not specify one. If it is nil, DefaultBackoffStrategy is used.
	BackoffStrategy backoff.Strategy

	// OnDeadLetter, if non-nil, is invoked whenever an event is terminated
	// or exhausts its delivery attempts.
	OnDeadLetter func(DeadLetter)

	m      sync.Mutex
	subs   []*subscription
	counts Counts
}

// Counts is a snapshot of the bus's delivery counters.
type Counts struct {
	// Delivered is the total number of delivery attempts made.
	Delivered uint64

	// Acked is the number of events resolved as processed.
	Acked uint64

	// Nacked is the number of delivery attempts resolved as transient
	// failures.
	Nacked uint64

	// Terminated is the number of events dead-lettered via Term().
	Terminated uint64

	// Exhausted is the number of events dead-lettered by reaching their
	// MaxDeliver limit.
	Exhausted uint64
}

// Counts returns a snapshot of the bus's delivery counters.
func (b *Bus) Counts() Counts {
	b.m.Lock()
	defer b.m.Unlock()

	return b.counts
}

// Publish delivers env to every live consumer whose subject pattern matches
// subject.
//
// The subject's tenant token must agree with the envelope's tenant.
func (b *Bus) Publish(ctx context.Context, subject string, env *envelope.Envelope) error {
	if err := env.Validate(); err != nil {
		return err
	}

	if t := SubjectTenant(subject); t != env.TenantID {
		return fmt.Errorf(
			"cannot publish event %s on subject %#v: envelope belongs to tenant %#v",
			env.EventID,
			subject,
			env.TenantID,
		)
	}

	mlog.LogProduce(b.logger(), env)

	b.m.Lock()
	defer b.m.Unlock()

	for _, s := range b.subs {
		if s.live && MatchSubject(s.cfg.Subject, subject) {
			s.enqueue(&message{
				sub:     s,
				env:     env,
				subject: subject,
			})
		}
	}

	return nil
}

// Subscribe registers a named durable consumer and begins delivering events
// to it per its delivery policy.
//
// ctx bounds the initial replay of historical events, not the lifetime of
// the subscription; use Subscription.Close() to stop delivery.
func (b *Bus) Subscribe(ctx context.Context, cfg ConsumerConfig) (*Subscription, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.AckWait == 0 {
		cfg.AckWait = DefaultAckWait
	}

	from, replay := cfg.Policy.replayFrom()
	if replay && b.DataStore == nil {
		return nil, fmt.Errorf(
			"consumer %s has a delivery policy that replays history, but the bus has no data store",
			cfg.Name,
		)
	}

	s := newSubscription(b, cfg)

	b.m.Lock()
	b.subs = append(b.subs, s)
	if !replay {
		s.live = true
	}
	b.m.Unlock()

	go s.run()

	if replay {
		go s.replay(ctx, from)
	}

	return &Subscription{s}, nil
}

// unsubscribe removes s from the set of consumers receiving published
// events.
func (b *Bus) unsubscribe(s *subscription) {
	b.m.Lock()
	defer b.m.Unlock()

	for i, x := range b.subs {
		if x == s {
			b.subs = append(b.subs[:i], b.subs[i+1:]...)
			return
		}
	}
}

// counted mutates the bus's delivery counters under lock.
func (b *Bus) counted(fn func(*Counts)) {
	b.m.Lock()
	fn(&b.counts)
	b.m.Unlock()
}

func (b *Bus) logger() logging.Logger {
	if b.Logger != nil {
		return b.Logger
	}

	return logging.DefaultLogger
}
