package bus

import (
	"sync"
	"time"

	"github.com/stratumhq/stratum/envelope"
)

// Delivery is a single attempt at delivering an event to a consumer.
//
// Exactly one of Ack(), Nack(), NackDelay() or Term() resolves the
// delivery; subsequent calls to any of them are no-ops.
type Delivery struct {
	// Envelope is the event being delivered.
	Envelope *envelope.Envelope

	// Subject is the subject the event was published on.
	Subject string

	// Attempt is the 1-based count of delivery attempts for this event,
	// including this one.
	Attempt uint

	msg *message
}

// Ack marks the event as fully processed. It will not be redelivered.
func (d *Delivery) Ack() {
	d.msg.ack()
}

// Nack marks this delivery attempt as failed due to a transient condition.
//
// The event is redelivered after a backoff delay, unless its delivery
// count has reached the consumer's MaxDeliver limit, in which case it is
// dead-lettered as exhausted.
func (d *Delivery) Nack() {
	d.msg.nack(d.msg.sub.backoff(nil, d.Attempt))
}

// NackDelay behaves as Nack(), but redelivers after the given delay.
func (d *Delivery) NackDelay(delay time.Duration) {
	d.msg.nack(delay)
}

// Term marks the event as permanently unprocessable. It is not redelivered,
// and is surfaced on the dead-letter path.
func (d *Delivery) Term() {
	d.msg.term()
}

// messageState is the delivery state of a tracked message.
type messageState int

const (
	// stateQueued means the message is waiting to be (re)delivered.
	stateQueued messageState = iota

	// stateDelivered means a delivery attempt is outstanding.
	stateDelivered

	// stateAcked means the message was processed. It is terminal.
	stateAcked

	// stateTerminated means the message was dead-lettered, either
	// explicitly or by exhausting its delivery attempts. It is terminal.
	stateTerminated
)

// message tracks the delivery state of one event for one consumer.
type message struct {
	sub     *subscription
	env     *envelope.Envelope
	subject string

	m        sync.Mutex
	state    messageState
	attempts uint
	timer    *time.Timer
}

// deliver produces the next delivery attempt for the message.
//
// It returns false if the message has already been resolved.
func (msg *message) deliver() (*Delivery, bool) {
	msg.m.Lock()
	defer msg.m.Unlock()

	if msg.state != stateQueued {
		return nil, false
	}

	msg.state = stateDelivered
	msg.attempts++

	attempt := msg.attempts

	msg.sub.bus.counted(func(c *Counts) {
		c.Delivered++
	})

	if w := msg.sub.cfg.AckWait; w > 0 {
		msg.timer = time.AfterFunc(w, func() {
			msg.expire(attempt)
		})
	}

	return &Delivery{
		Envelope: msg.env,
		Subject:  msg.subject,
		Attempt:  attempt,
		msg:      msg,
	}, true
}

// expire handles expiry of the ack-wait timer for a specific attempt.
func (msg *message) expire(attempt uint) {
	msg.m.Lock()

	if msg.state != stateDelivered || msg.attempts != attempt {
		msg.m.Unlock()
		return
	}

	msg.retryLocked(0)
}

// ack resolves the message as processed.
func (msg *message) ack() {
	msg.m.Lock()
	defer msg.m.Unlock()

	if msg.state == stateAcked || msg.state == stateTerminated {
		return
	}

	msg.stopTimer()
	msg.state = stateAcked

	msg.sub.bus.counted(func(c *Counts) {
		c.Acked++
	})
}

// nack resolves the current delivery attempt as a transient failure.
func (msg *message) nack(delay time.Duration) {
	msg.m.Lock()

	if msg.state != stateDelivered {
		msg.m.Unlock()
		return
	}

	msg.sub.bus.counted(func(c *Counts) {
		c.Nacked++
	})

	msg.retryLocked(delay)
}

// retryLocked schedules redelivery, or dead-letters the message if its
// delivery attempts are exhausted. The message mutex is held on entry and
// released before returning.
func (msg *message) retryLocked(delay time.Duration) {
	msg.stopTimer()

	max := msg.sub.cfg.MaxDeliver
	if max > 0 && msg.attempts >= max {
		msg.state = stateTerminated
		attempts := msg.attempts
		msg.m.Unlock()

		msg.sub.deadLetter(msg, attempts, ReasonExhausted)
		return
	}

	msg.state = stateQueued
	msg.m.Unlock()

	if delay <= 0 {
		msg.sub.enqueue(msg)
		return
	}

	time.AfterFunc(delay, func() {
		msg.sub.enqueue(msg)
	})
}

// term resolves the message as permanently unprocessable.
func (msg *message) term() {
	msg.m.Lock()

	if msg.state == stateAcked || msg.state == stateTerminated {
		msg.m.Unlock()
		return
	}

	msg.stopTimer()
	msg.state = stateTerminated
	attempts := msg.attempts
	msg.m.Unlock()

	msg.sub.deadLetter(msg, attempts, ReasonTerminated)
}

func (msg *message) stopTimer() {
	if msg.timer != nil {
		msg.timer.Stop()
		msg.timer = nil
	}
}
