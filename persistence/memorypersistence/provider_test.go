package memorypersistence_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
	"github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/fixtures"
	"github.com/stratumhq/stratum/internal/testing/providertest"
	"github.com/stratumhq/stratum/persistence"
	"github.com/stratumhq/stratum/persistence/memorypersistence"
)

var _ = Describe("type Provider", func() {
	providertest.Declare(
		func(ctx context.Context) providertest.Out {
			return providertest.Out{
				Provider: &memorypersistence.Provider{},
			}
		},
		nil,
	)

	Describe("func Open()", func() {
		It("returns an independent data store on each call", func() {
			ctx := context.Background()
			p := &memorypersistence.Provider{}

			ds1, err := p.Open(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer ds1.Close()

			ds2, err := p.Open(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer ds2.Close()

			_, err = ds1.AppendEvents(ctx, persistence.AppendRequest{
				TenantID:      "<tenant>",
				AggregateID:   "<aggregate>",
				AggregateType: "account",
				Expected:      persistence.NoStream,
				Envelopes: []*envelope.Envelope{
					fixtures.NewEnvelope("<id>", "account.opened"),
				},
			})
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			v, err := ds2.CurrentVersion(ctx, "<tenant>", "<aggregate>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			gomega.Expect(v).To(gomega.Equal(persistence.NoStream))
		})

		It("does not close the other stores when one is closed", func() {
			ctx := context.Background()
			p := &memorypersistence.Provider{}

			ds1, err := p.Open(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())

			ds2, err := p.Open(ctx)
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
			defer ds2.Close()

			gomega.Expect(ds1.Close()).ShouldNot(gomega.HaveOccurred())

			_, err = ds2.CurrentVersion(ctx, "<tenant>", "<aggregate>")
			gomega.Expect(err).ShouldNot(gomega.HaveOccurred())
		})
	})
})
