// Package providertest declares generic behavioral tests that every
// persistence provider must pass.
package providertest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/fixtures"
	"github.com/stratumhq/stratum/persistence"
)

// Out is a container for values provided by the provider-specific "before"
// function to the test-suite.
type Out struct {
	// Provider is the provider under test.
	Provider persistence.Provider
}

// DefaultTestTimeout is the default timeout for each test.
const DefaultTestTimeout = 10 * time.Second

// Declare declares generic behavioral tests for a specific persistence
// provider.
func Declare(
	before func(context.Context) Out,
	after func(),
) {
	var (
		ctx    context.Context
		cancel func()
		ds     persistence.DataStore
	)

	ginkgo.BeforeEach(func() {
		ctx, cancel = context.WithTimeout(context.Background(), DefaultTestTimeout)

		out := before(ctx)

		var err error
		ds, err = out.Provider.Open(ctx)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
	})

	ginkgo.AfterEach(func() {
		if ds != nil {
			ds.Close()
		}

		if after != nil {
			after()
		}

		cancel()
	})

	appendEvents := func(tenantID, aggregateID string, expected int64, ids ...string) []uint64 {
		req := persistence.AppendRequest{
			TenantID:      tenantID,
			AggregateID:   aggregateID,
			AggregateType: "account",
			Expected:      expected,
		}

		for _, id := range ids {
			req.Envelopes = append(
				req.Envelopes,
				fixtures.NewEnvelope(id, "account.opened", fixtures.WithTenant(tenantID)),
			)
		}

		globals, err := ds.AppendEvents(ctx, req)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

		return globals
	}

	readStream := func(tenantID, aggregateID string, fromSeq uint64) []persistence.Event {
		res, err := ds.ReadStream(ctx, tenantID, aggregateID, fromSeq)
		gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		defer res.Close()

		var events []persistence.Event
		for {
			ev, ok, err := res.Next(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			if !ok {
				return events
			}
			events = append(events, ev)
		}
	}

	ginkgo.Describe("func AppendEvents()", func() {
		ginkgo.It("appends the first events with contiguous sequence numbers starting at zero", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>", "<id-2>")

			events := readStream("<tenant>", "<aggregate>", 0)
			gomega.Expect(events).To(gomega.HaveLen(2))
			gomega.Expect(events[0].SequenceNumber).To(gomega.BeEquivalentTo(0))
			gomega.Expect(events[1].SequenceNumber).To(gomega.BeEquivalentTo(1))
			gomega.Expect(events[0].ID()).To(gomega.Equal("<id-1>"))
			gomega.Expect(events[1].ID()).To(gomega.Equal("<id-2>"))
		})

		ginkgo.It("assigns monotonically increasing global sequences", func() {
			g1 := appendEvents("<tenant>", "<aggregate-1>", persistence.NoStream, "<id-1>")
			g2 := appendEvents("<tenant>", "<aggregate-2>", persistence.NoStream, "<id-2>", "<id-3>")

			gomega.Expect(g1).To(gomega.HaveLen(1))
			gomega.Expect(g2).To(gomega.HaveLen(2))
			gomega.Expect(g2[0]).To(gomega.BeNumerically(">", g1[0]))
			gomega.Expect(g2[1]).To(gomega.BeNumerically(">", g2[0]))
		})

		ginkgo.It("continues an existing stream without gaps", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>")
			appendEvents("<tenant>", "<aggregate>", 0, "<id-2>")
			appendEvents("<tenant>", "<aggregate>", 1, "<id-3>", "<id-4>")

			events := readStream("<tenant>", "<aggregate>", 0)
			gomega.Expect(events).To(gomega.HaveLen(4))
			for i, ev := range events {
				gomega.Expect(ev.SequenceNumber).To(gomega.BeEquivalentTo(i))
			}
		})

		ginkgo.It("returns a conflict when the expected version is stale", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>")
			appendEvents("<tenant>", "<aggregate>", 0, "<id-2>")

			_, err := ds.AppendEvents(ctx, persistence.AppendRequest{
				TenantID:      "<tenant>",
				AggregateID:   "<aggregate>",
				AggregateType: "account",
				Expected:      0,
				Envelopes: []*envelope.Envelope{
					fixtures.NewEnvelope("<id-3>", "account.opened"),
				},
			})

			var conflict persistence.ConflictError
			gomega.Expect(errors.As(err, &conflict)).To(gomega.BeTrue(), err.Error())
			gomega.Expect(conflict.Expected).To(gomega.BeEquivalentTo(0))
			gomega.Expect(conflict.Actual).To(gomega.BeEquivalentTo(1))
		})

		ginkgo.It("returns a conflict when the stream unexpectedly exists", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>")

			_, err := ds.AppendEvents(ctx, persistence.AppendRequest{
				TenantID:      "<tenant>",
				AggregateID:   "<aggregate>",
				AggregateType: "account",
				Expected:      persistence.NoStream,
				Envelopes: []*envelope.Envelope{
					fixtures.NewEnvelope("<id-2>", "account.opened"),
				},
			})

			var conflict persistence.ConflictError
			gomega.Expect(errors.As(err, &conflict)).To(gomega.BeTrue())
		})

		ginkgo.It("returns a conflict when the stream unexpectedly does not exist", func() {
			_, err := ds.AppendEvents(ctx, persistence.AppendRequest{
				TenantID:      "<tenant>",
				AggregateID:   "<aggregate>",
				AggregateType: "account",
				Expected:      3,
				Envelopes: []*envelope.Envelope{
					fixtures.NewEnvelope("<id-1>", "account.opened"),
				},
			})

			var conflict persistence.ConflictError
			gomega.Expect(errors.As(err, &conflict)).To(gomega.BeTrue())
			gomega.Expect(conflict.Actual).To(gomega.Equal(persistence.NoStream))
		})

		ginkgo.It("rejects a malformed batch", func() {
			_, err := ds.AppendEvents(ctx, persistence.AppendRequest{
				TenantID:      "<tenant>",
				AggregateID:   "<aggregate>",
				AggregateType: "account",
				Expected:      persistence.NoStream,
				Envelopes: []*envelope.Envelope{
					fixtures.NewEnvelope("<id-1>", "account.opened", fixtures.WithTenant("<other-tenant>")),
				},
			})

			var batch persistence.BatchError
			gomega.Expect(errors.As(err, &batch)).To(gomega.BeTrue())
		})

		ginkgo.It("allows exactly one of two concurrent writers to win", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>")

			var (
				wg      sync.WaitGroup
				start   = make(chan struct{})
				results = make(chan error, 2)
			)

			for i := 0; i < 2; i++ {
				id := []string{"<id-2>", "<id-3>"}[i]

				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start

					_, err := ds.AppendEvents(ctx, persistence.AppendRequest{
						TenantID:      "<tenant>",
						AggregateID:   "<aggregate>",
						AggregateType: "account",
						Expected:      0,
						Envelopes: []*envelope.Envelope{
							fixtures.NewEnvelope(id, "account.opened"),
						},
					})
					results <- err
				}()
			}

			close(start)
			wg.Wait()
			close(results)

			var conflicts, successes int
			for err := range results {
				if err == nil {
					successes++
					continue
				}

				var conflict persistence.ConflictError
				gomega.Expect(errors.As(err, &conflict)).To(gomega.BeTrue(), err.Error())
				conflicts++
			}

			gomega.Expect(successes).To(gomega.Equal(1))
			gomega.Expect(conflicts).To(gomega.Equal(1))

			events := readStream("<tenant>", "<aggregate>", 0)
			gomega.Expect(events).To(gomega.HaveLen(2))
			gomega.Expect(events[1].SequenceNumber).To(gomega.BeEquivalentTo(1))
		})

		ginkgo.It("isolates streams with the same aggregate ID under different tenants", func() {
			appendEvents("<tenant-a>", "<aggregate>", persistence.NoStream, "<id-1>")
			appendEvents("<tenant-b>", "<aggregate>", persistence.NoStream, "<id-2>")

			a := readStream("<tenant-a>", "<aggregate>", 0)
			b := readStream("<tenant-b>", "<aggregate>", 0)

			gomega.Expect(a).To(gomega.HaveLen(1))
			gomega.Expect(b).To(gomega.HaveLen(1))
			gomega.Expect(a[0].ID()).To(gomega.Equal("<id-1>"))
			gomega.Expect(b[0].ID()).To(gomega.Equal("<id-2>"))
		})
	})

	ginkgo.Describe("func ReadStream()", func() {
		ginkgo.It("returns an empty result for an unknown aggregate", func() {
			events := readStream("<tenant>", "<unknown>", 0)
			gomega.Expect(events).To(gomega.BeEmpty())
		})

		ginkgo.It("starts at the requested sequence number", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>", "<id-2>", "<id-3>")

			events := readStream("<tenant>", "<aggregate>", 1)
			gomega.Expect(events).To(gomega.HaveLen(2))
			gomega.Expect(events[0].SequenceNumber).To(gomega.BeEquivalentTo(1))
		})

		ginkgo.It("preserves the event envelope", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>")

			events := readStream("<tenant>", "<aggregate>", 0)
			gomega.Expect(events).To(gomega.HaveLen(1))

			env := events[0].Envelope
			gomega.Expect(env.EventID).To(gomega.Equal("<id-1>"))
			gomega.Expect(env.EventType).To(gomega.Equal("account.opened"))
			gomega.Expect(env.TenantID).To(gomega.Equal("<tenant>"))
			gomega.Expect(env.Payload).To(gomega.Equal([]byte("<payload>")))
			gomega.Expect(env.CorrelationID()).To(gomega.Equal("<correlation>"))
		})
	})

	ginkgo.Describe("func ReadFromGlobal()", func() {
		ginkgo.It("returns only the tenant's events, in global order", func() {
			appendEvents("<tenant-a>", "<aggregate-1>", persistence.NoStream, "<id-1>")
			appendEvents("<tenant-b>", "<aggregate-2>", persistence.NoStream, "<id-2>")
			appendEvents("<tenant-a>", "<aggregate-3>", persistence.NoStream, "<id-3>")

			events, err := ds.ReadFromGlobal(ctx, "<tenant-a>", 0, 10)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			gomega.Expect(events).To(gomega.HaveLen(2))
			gomega.Expect(events[0].ID()).To(gomega.Equal("<id-1>"))
			gomega.Expect(events[1].ID()).To(gomega.Equal("<id-3>"))
			gomega.Expect(events[0].GlobalSequence).To(gomega.BeNumerically("<", events[1].GlobalSequence))
		})

		ginkgo.It("honors the limit and resume position", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>", "<id-2>", "<id-3>")

			page, err := ds.ReadFromGlobal(ctx, "<tenant>", 0, 2)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(page).To(gomega.HaveLen(2))

			rest, err := ds.ReadFromGlobal(ctx, "<tenant>", page[1].GlobalSequence+1, 2)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(rest).To(gomega.HaveLen(1))
			gomega.Expect(rest[0].ID()).To(gomega.Equal("<id-3>"))
		})
	})

	ginkgo.Describe("func ReadGlobal()", func() {
		ginkgo.It("returns events across tenants in global order", func() {
			appendEvents("<tenant-a>", "<aggregate-1>", persistence.NoStream, "<id-1>")
			appendEvents("<tenant-b>", "<aggregate-2>", persistence.NoStream, "<id-2>")

			events, err := ds.ReadGlobal(ctx, 0, 10)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			gomega.Expect(events).To(gomega.HaveLen(2))
			gomega.Expect(events[0].ID()).To(gomega.Equal("<id-1>"))
			gomega.Expect(events[1].ID()).To(gomega.Equal("<id-2>"))
		})
	})

	ginkgo.Describe("func CurrentVersion()", func() {
		ginkgo.It("returns NoStream for an unknown aggregate", func() {
			v, err := ds.CurrentVersion(ctx, "<tenant>", "<unknown>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(v).To(gomega.Equal(persistence.NoStream))
		})

		ginkgo.It("returns the highest sequence number", func() {
			appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>", "<id-2>")

			v, err := ds.CurrentVersion(ctx, "<tenant>", "<aggregate>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(v).To(gomega.BeEquivalentTo(1))
		})
	})

	ginkgo.Describe("func MaxGlobalSequence()", func() {
		ginkgo.It("returns zero for a tenant with no events", func() {
			max, err := ds.MaxGlobalSequence(ctx, "<tenant>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(max).To(gomega.BeZero())
		})

		ginkgo.It("returns the tenant's highest global sequence", func() {
			g := appendEvents("<tenant>", "<aggregate>", persistence.NoStream, "<id-1>", "<id-2>")

			max, err := ds.MaxGlobalSequence(ctx, "<tenant>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(max).To(gomega.Equal(g[1]))
		})
	})

	ginkgo.Describe("func SaveSnapshot() and LoadSnapshot()", func() {
		snapshot := persistence.Snapshot{
			TenantID:           "<tenant>",
			AggregateID:        "<aggregate>",
			LastSequenceNumber: 3,
			Payload:            []byte("<state>"),
			Version:            "1",
			CreatedAt:          time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		ginkgo.It("round-trips a snapshot", func() {
			err := ds.SaveSnapshot(ctx, "<tenant>", "<aggregate>", snapshot)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			s, ok, err := ds.LoadSnapshot(ctx, "<tenant>", "<aggregate>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(s).To(gomega.Equal(snapshot))
		})

		ginkgo.It("replaces an existing snapshot", func() {
			err := ds.SaveSnapshot(ctx, "<tenant>", "<aggregate>", snapshot)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			next := snapshot
			next.LastSequenceNumber = 7
			next.Payload = []byte("<newer-state>")

			err = ds.SaveSnapshot(ctx, "<tenant>", "<aggregate>", next)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			s, ok, err := ds.LoadSnapshot(ctx, "<tenant>", "<aggregate>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(s.LastSequenceNumber).To(gomega.BeEquivalentTo(7))
		})

		ginkgo.It("reports the absence of a snapshot", func() {
			_, ok, err := ds.LoadSnapshot(ctx, "<tenant>", "<unknown>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("rejects a snapshot saved under a mismatched scope", func() {
			err := ds.SaveSnapshot(ctx, "<other-tenant>", "<aggregate>", snapshot)

			var mismatch persistence.SnapshotMismatchError
			gomega.Expect(errors.As(err, &mismatch)).To(gomega.BeTrue())
		})

		ginkgo.It("deletes a snapshot", func() {
			err := ds.SaveSnapshot(ctx, "<tenant>", "<aggregate>", snapshot)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = ds.DeleteSnapshot(ctx, "<tenant>", "<aggregate>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			_, ok, err := ds.LoadSnapshot(ctx, "<tenant>", "<aggregate>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("func MarkProcessed() and IsProcessed()", func() {
		marker := persistence.ProcessedEvent{
			ConsumerName: "<consumer>",
			EventID:      "<event>",
			TenantID:     "<tenant>",
			ProcessedAt:  time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}

		ginkgo.It("records a marker when the transaction commits", func() {
			tx, err := ds.Begin(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer tx.Rollback()

			err = tx.MarkProcessed(ctx, marker)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = tx.Commit()
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ok, err := ds.IsProcessed(ctx, "<consumer>", "<event>", "<tenant>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeTrue())
		})

		ginkgo.It("does not record a marker when the transaction rolls back", func() {
			tx, err := ds.Begin(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = tx.MarkProcessed(ctx, marker)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			err = tx.Rollback()
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ok, err := ds.IsProcessed(ctx, "<consumer>", "<event>", "<tenant>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("scopes markers by consumer and tenant", func() {
			tx, err := ds.Begin(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer tx.Rollback()

			gomega.Expect(tx.MarkProcessed(ctx, marker)).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(tx.Commit()).ShouldNot(gomega.HaveOccurred())

			ok, err := ds.IsProcessed(ctx, "<other-consumer>", "<event>", "<tenant>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())

			ok, err = ds.IsProcessed(ctx, "<consumer>", "<event>", "<other-tenant>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(ok).To(gomega.BeFalse())
		})

		ginkgo.It("refuses to record the same marker twice", func() {
			tx, err := ds.Begin(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(tx.MarkProcessed(ctx, marker)).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(tx.Commit()).ShouldNot(gomega.HaveOccurred())

			tx, err = ds.Begin(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer tx.Rollback()

			err = tx.MarkProcessed(ctx, marker)
			if err == nil {
				err = tx.Commit()
			}

			var already persistence.AlreadyProcessedError
			gomega.Expect(errors.As(err, &already)).To(gomega.BeTrue())
			gomega.Expect(already.ConsumerName).To(gomega.Equal("<consumer>"))
		})
	})
}
