package projector_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dogmatiq/dodeca/logging"
	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
	"github.com/stratumhq/stratum/bus"
	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/fixtures"
	"github.com/stratumhq/stratum/persistence"
	"github.com/stratumhq/stratum/persistence/memorypersistence"
	. "github.com/stratumhq/stratum/projector"
	"github.com/stratumhq/stratum/semaphore"
	"github.com/stratumhq/stratum/tenantctx"
)

var _ = Describe("type Projector", func() {
	var (
		ctx    context.Context
		cancel func()
		ds     persistence.DataStore
		b      *bus.Bus
		p      *Projector

		runDone chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)

		var err error
		ds, err = (&memorypersistence.Provider{}).Open(ctx)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		b = &bus.Bus{DataStore: ds}

		p = &Projector{
			Bus:       b,
			DataStore: ds,
		}

		runDone = nil
	})

	AfterEach(func() {
		cancel()

		if runDone != nil {
			gomega.Eventually(runDone).Should(gomega.Receive())
		}

		ds.Close()
	})

	run := func(cfg bus.ConsumerConfig, h Handler) {
		runDone = make(chan error, 1)
		go func() {
			runDone <- p.Run(ctx, cfg, h)
		}()
	}

	publish := func(env *envelope.Envelope) {
		err := b.Publish(ctx, bus.Subject(env.TenantID, "account"), env)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	}

	markProcessed := func(consumer, eventID, tenantID string) {
		tx, err := ds.Begin(ctx)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		defer tx.Rollback()

		err = tx.MarkProcessed(ctx, persistence.ProcessedEvent{
			ConsumerName: consumer,
			EventID:      eventID,
			TenantID:     tenantID,
			ProcessedAt:  time.Now(),
		})
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		gomega.Expect(tx.Commit()).ShouldNot(gomega.HaveOccurred())
	}

	It("applies an event and records its dedup marker atomically", func() {
		applied := make(chan *envelope.Envelope, 1)

		run(
			bus.ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			},
			func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
				applied <- env
				return nil
			},
		)

		publish(fixtures.NewEnvelope("<id>", "account.opened"))

		var env *envelope.Envelope
		gomega.Eventually(applied).Should(gomega.Receive(&env))
		gomega.Expect(env.EventID).To(gomega.Equal("<id>"))

		gomega.Eventually(func() bool {
			ok, err := ds.IsProcessed(ctx, "<consumer>", "<id>", "<tenant>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			return ok
		}).Should(gomega.BeTrue())

		gomega.Eventually(func() uint64 {
			return b.Counts().Acked
		}).Should(gomega.BeEquivalentTo(1))
	})

	It("logs the acknowledgment with the consumer and event identity", func() {
		logger := &logging.BufferedLogger{}
		p.Logger = logger

		run(
			bus.ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			},
			func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
				return nil
			},
		)

		publish(fixtures.NewEnvelope("<id>", "account.opened"))

		gomega.Eventually(func() []logging.BufferedLogMessage {
			return logger.Messages()
		}).Should(gomega.ContainElement(
			logging.BufferedLogMessage{
				Message: "= <id>  ∵ <cause>  ⋲ <correlation>  ◈ <tenant>  ▼ ✓  <consumer> ● account.opened ● applied",
			},
		))
	})

	It("acknowledges without invoking the handler when the event was already processed", func() {
		markProcessed("<consumer>", "<id>", "<tenant>")

		invoked := false

		run(
			bus.ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			},
			func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
				invoked = true
				return nil
			},
		)

		publish(fixtures.NewEnvelope("<id>", "account.opened"))

		gomega.Eventually(func() uint64 {
			return b.Counts().Acked
		}).Should(gomega.BeEquivalentTo(1))

		gomega.Expect(invoked).To(gomega.BeFalse())
	})

	It("applies the handler's side effect exactly once despite redelivery", func() {
		var (
			m     sync.Mutex
			count int
		)

		// Serialize the workers so that each redelivery observes the
		// outcome of the previous attempt.
		p.Semaphore = semaphore.New(1)

		run(
			bus.ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			},
			func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
				m.Lock()
				count++
				m.Unlock()
				return nil
			},
		)

		env := fixtures.NewEnvelope("<id>", "account.opened")
		publish(env)
		publish(env)
		publish(env)

		gomega.Eventually(func() uint64 {
			return b.Counts().Acked
		}).Should(gomega.BeEquivalentTo(3))

		m.Lock()
		defer m.Unlock()
		gomega.Expect(count).To(gomega.Equal(1))
	})

	It("redelivers after a transient handler failure", func() {
		var (
			m        sync.Mutex
			attempts int
		)

		p.BackoffStrategy = func(error, uint) time.Duration {
			return time.Millisecond
		}

		run(
			bus.ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			},
			func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
				m.Lock()
				defer m.Unlock()

				attempts++
				if attempts == 1 {
					return errors.New("<transient>")
				}

				return nil
			},
		)

		publish(fixtures.NewEnvelope("<id>", "account.opened"))

		gomega.Eventually(func() uint64 {
			return b.Counts().Acked
		}).Should(gomega.BeEquivalentTo(1))

		gomega.Expect(b.Counts().Nacked).To(gomega.BeEquivalentTo(1))

		m.Lock()
		defer m.Unlock()
		gomega.Expect(attempts).To(gomega.Equal(2))
	})

	It("terminates an event whose handler fails fatally, without redelivery", func() {
		var (
			dead []bus.DeadLetter
			m    sync.Mutex
		)

		b.OnDeadLetter = func(dl bus.DeadLetter) {
			m.Lock()
			dead = append(dead, dl)
			m.Unlock()
		}

		invocations := 0

		run(
			bus.ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			},
			func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
				m.Lock()
				invocations++
				m.Unlock()
				return Fatal(errors.New("<unrecoverable>"))
			},
		)

		publish(fixtures.NewEnvelope("<id>", "account.opened"))

		gomega.Eventually(func() uint64 {
			return b.Counts().Terminated
		}).Should(gomega.BeEquivalentTo(1))

		m.Lock()
		gomega.Expect(dead).To(gomega.HaveLen(1))
		gomega.Expect(dead[0].Reason).To(gomega.Equal(bus.ReasonTerminated))
		m.Unlock()

		gomega.Consistently(func() int {
			m.Lock()
			defer m.Unlock()
			return invocations
		}).Should(gomega.Equal(1))

		ok, err := ds.IsProcessed(ctx, "<consumer>", "<id>", "<tenant>")
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	It("restores the producer's scope in the handler's context", func() {
		scopes := make(chan tenantctx.Scope, 2)

		p.Semaphore = semaphore.New(2)

		run(
			bus.ConsumerConfig{
				Name:    "<consumer>",
				Subject: "events.>",
			},
			func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
				s, ok := tenantctx.FromContext(ctx)
				gomega.Expect(ok).To(gomega.BeTrue())
				scopes <- s
				return nil
			},
		)

		publish(fixtures.NewEnvelope("<id-1>", "account.opened", fixtures.WithTenant("<tenant-a>")))
		publish(fixtures.NewEnvelope("<id-2>", "account.opened", fixtures.WithTenant("<tenant-b>")))

		seen := map[string]bool{}
		for i := 0; i < 2; i++ {
			var s tenantctx.Scope
			gomega.Eventually(scopes).Should(gomega.Receive(&s))
			gomega.Expect(s.CorrelationID).To(gomega.Equal("<correlation>"))
			seen[s.TenantID] = true
		}

		gomega.Expect(seen).To(gomega.Equal(map[string]bool{
			"<tenant-a>": true,
			"<tenant-b>": true,
		}))
	})

	Describe("marker-insert races", func() {
		race := func(markerCommitted bool) {
			stub := &fixtures.DataStoreStub{DataStore: ds}

			checked := make(chan bool, 10)

			stub.BeginFunc = func(ctx context.Context) (persistence.Transaction, error) {
				tx, err := ds.Begin(ctx)
				if err != nil {
					return nil, err
				}

				return &fixtures.TransactionStub{
					Transaction: tx,
					MarkProcessedFunc: func(ctx context.Context, m persistence.ProcessedEvent) error {
						return persistence.AlreadyProcessedError{
							ConsumerName: m.ConsumerName,
							EventID:      m.EventID,
							TenantID:     m.TenantID,
						}
					},
				}, nil
			}

			first := true
			stub.IsProcessedFunc = func(ctx context.Context, consumerName, eventID, tenantID string) (bool, error) {
				// The pre-handler dedup check sees no marker; the
				// post-conflict recheck reports the winner's outcome.
				if first {
					first = false
					return false, nil
				}

				checked <- true
				return markerCommitted, nil
			}

			p.DataStore = stub
			p.BackoffStrategy = func(error, uint) time.Duration {
				return time.Hour
			}

			run(
				bus.ConsumerConfig{
					Name:    "<consumer>",
					Subject: "events.>",
				},
				func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
					return nil
				},
			)

			publish(fixtures.NewEnvelope("<id>", "account.opened"))

			gomega.Eventually(checked).Should(gomega.Receive())
		}

		It("acknowledges when the conflicting marker was committed by the winner", func() {
			race(true)

			gomega.Eventually(func() uint64 {
				return b.Counts().Acked
			}).Should(gomega.BeEquivalentTo(1))
		})

		It("requests redelivery when the winner rolled back", func() {
			race(false)

			gomega.Eventually(func() uint64 {
				return b.Counts().Nacked
			}).Should(gomega.BeEquivalentTo(1))

			gomega.Expect(b.Counts().Acked).To(gomega.BeEquivalentTo(0))
		})
	})

	Describe("func Run()", func() {
		It("rejects a nil handler", func() {
			err := p.Run(
				ctx,
				bus.ConsumerConfig{
					Name:    "<consumer>",
					Subject: "events.>",
				},
				nil,
			)
			gomega.Expect(err).Should(gomega.HaveOccurred())
		})

		It("rejects a malformed configuration", func() {
			err := p.Run(
				ctx,
				bus.ConsumerConfig{
					Name:    "",
					Subject: "events.>",
				},
				func(context.Context, persistence.Transaction, *envelope.Envelope) error {
					return nil
				},
			)
			gomega.Expect(err).Should(gomega.HaveOccurred())
		})
	})
})
