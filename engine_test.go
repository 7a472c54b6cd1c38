package stratum_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
	. "github.com/stratumhq/stratum"
	"github.com/stratumhq/stratum/bus"
	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/persistence"
	"github.com/stratumhq/stratum/persistence/memorypersistence"
	"github.com/stratumhq/stratum/tenantctx"
)

var _ = Describe("type Engine", func() {
	var (
		ctx    context.Context
		cancel func()
	)

	BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
	})

	AfterEach(func() {
		cancel()
	})

	scoped := func(tenantID string) context.Context {
		return tenantctx.WithScope(ctx, tenantctx.Scope{
			TenantID:      tenantID,
			UserID:        "<user>",
			CorrelationID: "<correlation>",
		})
	}

	Describe("func AppendEvents()", func() {
		It("appends and then delivers the events to a registered consumer", func() {
			applied := make(chan *envelope.Envelope, 2)

			e := New(
				&memorypersistence.Provider{},
				WithConsumer(
					bus.ConsumerConfig{
						Name:    "<consumer>",
						Subject: "events.<tenant>.account",
						// Replay so the appends need not race the
						// subscription becoming live.
						Policy: bus.DeliverAll(),
					},
					func(ctx context.Context, tx persistence.Transaction, env *envelope.Envelope) error {
						applied <- env
						return nil
					},
				),
			)

			runDone := make(chan error, 1)
			go func() {
				runDone <- e.Run(ctx)
			}()
			defer func() {
				cancel()
				gomega.Eventually(runDone).Should(gomega.Receive())
			}()

			globals, err := e.AppendEvents(
				scoped("<tenant>"),
				"account",
				"<aggregate>",
				persistence.NoStream,
				Event{Type: "account.opened", Payload: []byte("<payload-1>")},
				Event{Type: "account.credited", Payload: []byte("<payload-2>")},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(globals).To(gomega.HaveLen(2))

			var env *envelope.Envelope
			gomega.Eventually(applied).Should(gomega.Receive(&env))
			gomega.Expect(env.EventType).To(gomega.Equal("account.opened"))
			gomega.Expect(env.TenantID).To(gomega.Equal("<tenant>"))
			gomega.Expect(env.CorrelationID()).To(gomega.Equal("<correlation>"))
			gomega.Expect(env.UserID()).To(gomega.Equal("<user>"))

			gomega.Eventually(applied).Should(gomega.Receive(&env))
			gomega.Expect(env.EventType).To(gomega.Equal("account.credited"))
		})

		It("surfaces a version conflict as a ConflictError", func() {
			e := New(&memorypersistence.Provider{})
			defer e.Close()

			_, err := e.AppendEvents(
				scoped("<tenant>"),
				"account",
				"<aggregate>",
				persistence.NoStream,
				Event{Type: "account.opened"},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			_, err = e.AppendEvents(
				scoped("<tenant>"),
				"account",
				"<aggregate>",
				persistence.NoStream,
				Event{Type: "account.opened"},
			)

			var conflict persistence.ConflictError
			gomega.Expect(errors.As(err, &conflict)).To(gomega.BeTrue())
			gomega.Expect(conflict.Actual).To(gomega.BeEquivalentTo(0))
		})

		It("refuses to append without an ambient tenant scope", func() {
			e := New(&memorypersistence.Provider{})
			defer e.Close()

			_, err := e.AppendEvents(
				ctx,
				"account",
				"<aggregate>",
				persistence.NoStream,
				Event{Type: "account.opened"},
			)
			gomega.Expect(err).Should(gomega.HaveOccurred())
		})

		It("isolates tenants that use the same aggregate ID", func() {
			e := New(&memorypersistence.Provider{})
			defer e.Close()

			_, err := e.AppendEvents(
				scoped("<tenant-a>"),
				"account",
				"<aggregate>",
				persistence.NoStream,
				Event{Type: "account.opened"},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			_, err = e.AppendEvents(
				scoped("<tenant-b>"),
				"account",
				"<aggregate>",
				persistence.NoStream,
				Event{Type: "account.opened"},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ds, err := e.DataStore(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			v, err := ds.CurrentVersion(ctx, "<tenant-a>", "<aggregate>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(v).To(gomega.BeEquivalentTo(0))
		})
	})

	Describe("func Close()", func() {
		It("causes subsequent appends to report a closed engine", func() {
			e := New(&memorypersistence.Provider{})

			_, err := e.AppendEvents(
				scoped("<tenant>"),
				"account",
				"<aggregate>",
				persistence.NoStream,
				Event{Type: "account.opened"},
			)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			gomega.Expect(e.Close()).ShouldNot(gomega.HaveOccurred())

			_, err = e.AppendEvents(
				scoped("<tenant>"),
				"account",
				"<aggregate>",
				0,
				Event{Type: "account.credited"},
			)
			gomega.Expect(errors.Is(err, persistence.ErrDataStoreClosed)).To(gomega.BeTrue())
		})

		It("does not disturb appends that are in flight during shutdown", func() {
			e := New(&memorypersistence.Provider{})

			done := make(chan struct{})
			go func() {
				defer GinkgoRecover()
				defer close(done)

				for i := 0; ; i++ {
					_, err := e.AppendEvents(
						scoped("<tenant>"),
						"account",
						fmt.Sprintf("<aggregate-%d>", i),
						persistence.NoStream,
						Event{Type: "account.opened"},
					)
					if err != nil {
						gomega.Expect(errors.Is(err, persistence.ErrDataStoreClosed)).To(gomega.BeTrue())
						return
					}
				}
			}()

			gomega.Expect(e.Close()).ShouldNot(gomega.HaveOccurred())
			gomega.Eventually(done).Should(gomega.BeClosed())
		})
	})

	Describe("func New()", func() {
		It("panics when a consumer is registered without a handler", func() {
			gomega.Expect(func() {
				WithConsumer(
					bus.ConsumerConfig{
						Name:    "<consumer>",
						Subject: "events.>",
					},
					nil,
				)
			}).To(gomega.Panic())
		})

		It("panics when two consumers share a name", func() {
			h := func(context.Context, persistence.Transaction, *envelope.Envelope) error {
				return nil
			}

			gomega.Expect(func() {
				New(
					&memorypersistence.Provider{},
					WithConsumer(bus.ConsumerConfig{Name: "<consumer>", Subject: "events.>"}, h),
					WithConsumer(bus.ConsumerConfig{Name: "<consumer>", Subject: "events.>"}, h),
				)
			}).To(gomega.Panic())
		})
	})
})
