package bus

import (
	"context"
	"fmt"
	"sync"

	"github.com/dogmatiq/dodeca/logging"
	"github.com/dogmatiq/linger/backoff"
	"github.com/stratumhq/stratum/internal/mlog"
)

// replayBatchSize is the number of events fetched from the event store per
// round-trip while a consumer is replaying history.
const replayBatchSize = 100

// Subscription is a handle to a named durable consumer's event feed.
type Subscription struct {
	s *subscription
}

// Deliveries returns the channel on which the consumer receives events.
//
// The channel is closed when the subscription is closed.
func (s *Subscription) Deliveries() <-chan *Delivery {
	return s.s.deliveries
}

// Close stops delivery to the consumer.
func (s *Subscription) Close() error {
	s.s.close()
	return nil
}

// subscription is the bus-internal state of a durable consumer.
type subscription struct {
	bus     *Bus
	cfg     ConsumerConfig
	backoff backoff.Strategy

	queueM sync.Mutex
	queue  []*message
	wake   chan struct{}

	deliveries chan *Delivery
	done       chan struct{}
	closeOnce  sync.Once

	// live indicates that the consumer receives events as they are
	// published. It is false while the consumer is replaying history. It
	// is guarded by the bus mutex.
	live bool
}

func newSubscription(b *Bus, cfg ConsumerConfig) *subscription {
	strategy := b.BackoffStrategy
	if strategy == nil {
		strategy = DefaultBackoffStrategy
	}

	return &subscription{
		bus:        b,
		cfg:        cfg,
		backoff:    strategy,
		wake:       make(chan struct{}, 1),
		deliveries: make(chan *Delivery),
		done:       make(chan struct{}),
	}
}

// run moves queued messages onto the delivery channel until the
// subscription is closed.
func (s *subscription) run() {
	defer close(s.deliveries)

	for {
		msg, ok := s.pop()
		if !ok {
			return
		}

		d, ok := msg.deliver()
		if !ok {
			// The message was resolved while it sat in the queue.
			continue
		}

		mlog.LogConsume(s.bus.logger(), s.cfg.Name, msg.env, d.Attempt-1)

		select {
		case s.deliveries <- d:
		case <-s.done:
			return
		}
	}
}

// pop removes the next message from the queue, blocking until one is
// available or the subscription is closed.
func (s *subscription) pop() (*message, bool) {
	for {
		s.queueM.Lock()
		if len(s.queue) > 0 {
			msg := s.queue[0]
			s.queue = s.queue[1:]
			s.queueM.Unlock()
			return msg, true
		}
		s.queueM.Unlock()

		select {
		case <-s.wake:
		case <-s.done:
			return nil, false
		}
	}
}

// enqueue adds a message to the queue.
func (s *subscription) enqueue(msg *message) {
	s.queueM.Lock()
	s.queue = append(s.queue, msg)
	s.queueM.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// replay feeds the consumer historical events from the event store,
// starting at the given global sequence, then marks the subscription live.
func (s *subscription) replay(ctx context.Context, from uint64) {
	ctr := backoff.Counter{
		Strategy: s.backoff,
	}

	for {
		select {
		case <-s.done:
			return
		default:
		}

		events, err := s.bus.DataStore.ReadGlobal(ctx, from, replayBatchSize)
		if err != nil {
			logging.Log(
				s.bus.logger(),
				"consumer %s: unable to replay events: %s",
				s.cfg.Name,
				err,
			)

			if err := ctr.Sleep(ctx, err); err != nil {
				return
			}

			continue
		}

		ctr.Reset()

		if len(events) == 0 {
			// Flip to live under the bus mutex after one final read, so
			// that no event published in the meantime is missed.
			s.bus.m.Lock()
			events, err = s.bus.DataStore.ReadGlobal(ctx, from, replayBatchSize)
			if err == nil && len(events) == 0 {
				s.live = true
				s.bus.m.Unlock()
				return
			}
			s.bus.m.Unlock()

			if err != nil {
				continue
			}
		}

		for _, ev := range events {
			subject := Subject(ev.TenantID(), ev.AggregateType)

			if MatchSubject(s.cfg.Subject, subject) {
				s.enqueue(&message{
					sub:     s,
					env:     ev.Envelope,
					subject: subject,
				})
			}

			from = ev.GlobalSequence + 1
		}
	}
}

// deadLetter surfaces a message that will never be delivered again.
func (s *subscription) deadLetter(msg *message, attempts uint, reason Reason) {
	s.bus.counted(func(c *Counts) {
		switch reason {
		case ReasonExhausted:
			c.Exhausted++
		default:
			c.Terminated++
		}
	})

	mlog.LogTerminate(
		s.bus.logger(),
		s.cfg.Name,
		msg.env,
		fmt.Errorf("dead-lettered after %d attempt(s): %s", attempts, reason),
	)

	if fn := s.bus.OnDeadLetter; fn != nil {
		fn(DeadLetter{
			Consumer: s.cfg.Name,
			Subject:  msg.subject,
			Envelope: msg.env,
			Attempts: attempts,
			Reason:   reason,
		})
	}
}

func (s *subscription) close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s)
		close(s.done)
	})
}
