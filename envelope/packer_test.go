package envelope_test

import (
	"context"
	"strconv"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/stratumhq/stratum/envelope"
	"github.com/stratumhq/stratum/tenantctx"
)

var _ = Describe("type Packer", func() {
	var (
		ctx    context.Context
		packer *Packer
	)

	BeforeEach(func() {
		ctx = tenantctx.WithScope(
			context.Background(),
			tenantctx.Scope{
				TenantID:      "<tenant>",
				UserID:        "<user>",
				CorrelationID: "<correlation>",
			},
		)

		seq := 0
		packer = &Packer{
			GenerateID: func() string {
				seq++
				return strconv.Itoa(seq)
			},
			Now: func() time.Time {
				return time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
			},
		}
	})

	Describe("func Pack()", func() {
		It("captures the ambient scope", func() {
			env := packer.Pack(ctx, "account.opened", []byte("<payload>"))

			Expect(env.TenantID).To(Equal("<tenant>"))
			Expect(env.UserID()).To(Equal("<user>"))
			Expect(env.CorrelationID()).To(Equal("<correlation>"))
		})

		It("uses the event's own ID for correlation if the scope has none", func() {
			ctx := tenantctx.WithScope(
				context.Background(),
				tenantctx.Scope{TenantID: "<tenant>"},
			)

			env := packer.Pack(ctx, "account.opened", nil)

			Expect(env.CorrelationID()).To(Equal(env.EventID))
			Expect(env.CausationID()).To(Equal(env.EventID))
		})

		It("produces a valid envelope", func() {
			env := packer.Pack(ctx, "account.opened", []byte("<payload>"))

			Expect(env.Validate()).ShouldNot(HaveOccurred())
			Expect(env.CreatedAt).To(Equal(time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)))
		})

		It("panics if no scope has been established", func() {
			Expect(func() {
				packer.Pack(context.Background(), "account.opened", nil)
			}).To(Panic())
		})

		It("panics if the event type is empty", func() {
			Expect(func() {
				packer.Pack(ctx, "", nil)
			}).To(Panic())
		})
	})

	Describe("func PackChild()", func() {
		It("inherits the cause's correlation ID and tenant", func() {
			cause := packer.Pack(ctx, "account.opened", nil)
			child := packer.PackChild(cause, "account.credited", nil)

			Expect(child.TenantID).To(Equal(cause.TenantID))
			Expect(child.CorrelationID()).To(Equal(cause.CorrelationID()))
			Expect(child.CausationID()).To(Equal(cause.EventID))
			Expect(child.EventID).NotTo(Equal(cause.EventID))
		})
	})
})
