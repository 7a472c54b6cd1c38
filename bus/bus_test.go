package bus_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
	. "github.com/stratumhq/stratum/bus"
	"github.com/stratumhq/stratum/cursor"
	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/fixtures"
	"github.com/stratumhq/stratum/persistence"
	"github.com/stratumhq/stratum/persistence/memorypersistence"
)

var _ = Describe("type Bus", func() {
	var (
		ctx    context.Context
		cancel func()
		b      *Bus
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		b = &Bus{}
	})

	AfterEach(func() {
		cancel()
	})

	publish := func(env *envelope.Envelope) {
		err := b.Publish(ctx, Subject(env.TenantID, "account"), env)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	}

	receive := func(sub *Subscription) *Delivery {
		var d *Delivery
		gomega.Eventually(sub.Deliveries()).Should(gomega.Receive(&d))
		return d
	}

	Describe("func Publish()", func() {
		It("delivers the event to a matching consumer", func() {
			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.<tenant>.>",
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id>", "account.opened"))

			d := receive(sub)
			gomega.Expect(d.Envelope.EventID).To(gomega.Equal("<id>"))
			gomega.Expect(d.Attempt).To(gomega.BeEquivalentTo(1))
			d.Ack()
		})

		It("does not deliver events from other tenants", func() {
			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.<tenant-a>.>",
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id-1>", "account.opened", fixtures.WithTenant("<tenant-b>")))
			publish(fixtures.NewEnvelope("<id-2>", "account.opened", fixtures.WithTenant("<tenant-a>")))

			d := receive(sub)
			gomega.Expect(d.Envelope.EventID).To(gomega.Equal("<id-2>"))
			d.Ack()

			gomega.Consistently(sub.Deliveries()).ShouldNot(gomega.Receive())
		})

		It("rejects a subject that disagrees with the envelope's tenant", func() {
			err := b.Publish(
				ctx,
				Subject("<other-tenant>", "account"),
				fixtures.NewEnvelope("<id>", "account.opened"),
			)
			gomega.Expect(err).Should(gomega.HaveOccurred())
		})
	})

	Describe("acknowledgment", func() {
		It("does not redeliver an acked event", func() {
			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
				AckWait: 20 * time.Millisecond,
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id>", "account.opened"))
			receive(sub).Ack()

			gomega.Consistently(sub.Deliveries(), "100ms").ShouldNot(gomega.Receive())
			gomega.Expect(b.Counts().Acked).To(gomega.BeEquivalentTo(1))
		})

		It("treats a second resolution as a no-op", func() {
			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id>", "account.opened"))

			d := receive(sub)
			d.Ack()
			d.Ack()
			d.Nack()
			d.Term()

			c := b.Counts()
			gomega.Expect(c.Acked).To(gomega.BeEquivalentTo(1))
			gomega.Expect(c.Nacked).To(gomega.BeEquivalentTo(0))
			gomega.Expect(c.Terminated).To(gomega.BeEquivalentTo(0))
		})

		It("redelivers a nacked event with an incremented attempt count", func() {
			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id>", "account.opened"))

			receive(sub).NackDelay(time.Millisecond)

			d := receive(sub)
			gomega.Expect(d.Attempt).To(gomega.BeEquivalentTo(2))
			d.Ack()
		})

		It("redelivers an event whose ack-wait expires", func() {
			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
				AckWait: 10 * time.Millisecond,
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id>", "account.opened"))

			// Don't resolve the first attempt at all.
			gomega.Expect(receive(sub).Attempt).To(gomega.BeEquivalentTo(1))

			d := receive(sub)
			gomega.Expect(d.Attempt).To(gomega.BeEquivalentTo(2))
			d.Ack()
		})
	})

	Describe("dead-lettering", func() {
		It("stops redelivering after MaxDeliver attempts", func() {
			var dead []DeadLetter
			b.OnDeadLetter = func(dl DeadLetter) {
				dead = append(dead, dl)
			}

			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:       "<consumer>",
				Subject:    "events.>",
				MaxDeliver: 3,
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id>", "account.opened"))

			for i := 1; i <= 3; i++ {
				d := receive(sub)
				gomega.Expect(d.Attempt).To(gomega.BeEquivalentTo(i))
				d.NackDelay(time.Millisecond)
			}

			gomega.Consistently(sub.Deliveries(), "100ms").ShouldNot(gomega.Receive())

			gomega.Expect(dead).To(gomega.HaveLen(1))
			gomega.Expect(dead[0].Reason).To(gomega.Equal(ReasonExhausted))
			gomega.Expect(dead[0].Attempts).To(gomega.BeEquivalentTo(3))
			gomega.Expect(b.Counts().Exhausted).To(gomega.BeEquivalentTo(1))
		})

		It("never redelivers a terminated event, and reports it distinctly", func() {
			var dead []DeadLetter
			b.OnDeadLetter = func(dl DeadLetter) {
				dead = append(dead, dl)
			}

			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
				AckWait: 10 * time.Millisecond,
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id>", "account.opened"))

			receive(sub).Term()

			gomega.Consistently(sub.Deliveries(), "100ms").ShouldNot(gomega.Receive())

			gomega.Expect(dead).To(gomega.HaveLen(1))
			gomega.Expect(dead[0].Reason).To(gomega.Equal(ReasonTerminated))

			c := b.Counts()
			gomega.Expect(c.Terminated).To(gomega.BeEquivalentTo(1))
			gomega.Expect(c.Exhausted).To(gomega.BeEquivalentTo(0))
		})
	})

	Describe("delivery policies", func() {
		var ds persistence.DataStore

		BeforeEach(func() {
			var err error
			ds, err = (&memorypersistence.Provider{}).Open(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			b.DataStore = ds
		})

		AfterEach(func() {
			ds.Close()
		})

		appendEvents := func(expected int64, ids ...string) []uint64 {
			req := persistence.AppendRequest{
				TenantID:      "<tenant>",
				AggregateID:   "<aggregate>",
				AggregateType: "account",
				Expected:      expected,
			}

			for _, id := range ids {
				req.Envelopes = append(
					req.Envelopes,
					fixtures.NewEnvelope(id, "account.opened"),
				)
			}

			globals, err := ds.AppendEvents(ctx, req)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			return globals
		}

		It("replays the entire history under DeliverAll", func() {
			appendEvents(persistence.NoStream, "<id-1>", "<id-2>")

			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
				Policy:  DeliverAll(),
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			gomega.Expect(receive(sub).Envelope.EventID).To(gomega.Equal("<id-1>"))
			gomega.Expect(receive(sub).Envelope.EventID).To(gomega.Equal("<id-2>"))
		})

		It("resumes from a tracking cursor under DeliverFrom", func() {
			globals := appendEvents(persistence.NoStream, "<id-1>", "<id-2>", "<id-3>")

			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
				Policy:  DeliverFrom(cursor.At(globals[0])),
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			gomega.Expect(receive(sub).Envelope.EventID).To(gomega.Equal("<id-2>"))
			gomega.Expect(receive(sub).Envelope.EventID).To(gomega.Equal("<id-3>"))
		})

		It("delivers only new events under DeliverNew", func() {
			appendEvents(persistence.NoStream, "<id-1>")

			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
				Policy:  DeliverNew(),
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			publish(fixtures.NewEnvelope("<id-2>", "account.opened"))

			gomega.Expect(receive(sub).Envelope.EventID).To(gomega.Equal("<id-2>"))
			gomega.Consistently(sub.Deliveries()).ShouldNot(gomega.Receive())
		})

		It("receives events published after the replay completes", func() {
			appendEvents(persistence.NoStream, "<id-1>")

			sub, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
				Policy:  DeliverAll(),
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer sub.Close()

			gomega.Expect(receive(sub).Envelope.EventID).To(gomega.Equal("<id-1>"))

			// Wait for the subscription to go live before publishing.
			gomega.Eventually(func() bool {
				err := b.Publish(
					ctx,
					Subject("<tenant>", "account"),
					fixtures.NewEnvelope("<id-2>", "account.opened"),
				)
				gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

				select {
				case d := <-sub.Deliveries():
					gomega.Expect(d.Envelope.EventID).To(gomega.Equal("<id-2>"))
					d.Ack()
					return true
				case <-time.After(20 * time.Millisecond):
					return false
				}
			}).Should(gomega.BeTrue())
		})

		It("requires a data store for policies that replay", func() {
			b.DataStore = nil

			_, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
				Policy:  DeliverAll(),
			})
			gomega.Expect(err).Should(gomega.HaveOccurred())
		})
	})

	Describe("func Subscribe()", func() {
		It("rejects a malformed configuration", func() {
			_, err := b.Subscribe(ctx, ConsumerConfig{
				Name:    "",
				Subject: "events.>",
			})
			gomega.Expect(err).Should(gomega.HaveOccurred())

			_, err = b.Subscribe(ctx, ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>.account",
			})
			gomega.Expect(err).Should(gomega.HaveOccurred())
		})
	})
})
