package tenantctx_test

import (
	"context"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/stratumhq/stratum/tenantctx"
)

var _ = Describe("func WithScope()", func() {
	It("establishes the ambient scope", func() {
		ctx := WithScope(
			context.Background(),
			Scope{
				TenantID:      "<tenant>",
				UserID:        "<user>",
				CorrelationID: "<correlation>",
			},
		)

		s, ok := FromContext(ctx)
		Expect(ok).To(BeTrue())
		Expect(s).To(Equal(Scope{
			TenantID:      "<tenant>",
			UserID:        "<user>",
			CorrelationID: "<correlation>",
		}))
	})

	It("panics if the tenant ID is empty", func() {
		Expect(func() {
			WithScope(context.Background(), Scope{})
		}).To(Panic())
	})
})

var _ = Describe("func FromContext()", func() {
	It("returns false if no scope has been established", func() {
		_, ok := FromContext(context.Background())
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("func Validate()", func() {
	It("accepts a caller tenant that matches the ambient tenant", func() {
		ctx := WithScope(context.Background(), Scope{TenantID: "<tenant>"})

		err := Validate(ctx, "<tenant>")
		Expect(err).ShouldNot(HaveOccurred())
	})

	It("accepts an absent ambient scope", func() {
		err := Validate(context.Background(), "<tenant>")
		Expect(err).ShouldNot(HaveOccurred())
	})

	It("accepts an absent caller tenant", func() {
		ctx := WithScope(context.Background(), Scope{TenantID: "<tenant>"})

		err := Validate(ctx, "")
		Expect(err).ShouldNot(HaveOccurred())
	})

	It("rejects a caller tenant that disagrees with the ambient tenant", func() {
		ctx := WithScope(context.Background(), Scope{TenantID: "<tenant-a>"})

		err := Validate(ctx, "<tenant-b>")
		Expect(err).To(Equal(MismatchError{
			Ambient: "<tenant-a>",
			Caller:  "<tenant-b>",
		}))
	})
})

var _ = Describe("func Go()", func() {
	It("captures the scope at submission time", func() {
		ctx := WithScope(context.Background(), Scope{TenantID: "<tenant>"})

		scopes := make(chan Scope, 1)

		Go(ctx, func(ctx context.Context) {
			s, _ := FromContext(ctx)
			scopes <- s
		})

		Eventually(scopes).Should(Receive(Equal(Scope{TenantID: "<tenant>"})))
	})

	It("detaches the scope from the submitting context's cancelation", func() {
		ctx, cancel := context.WithCancel(context.Background())
		ctx = WithScope(ctx, Scope{TenantID: "<tenant>"})
		cancel()

		errs := make(chan error, 1)

		Go(ctx, func(ctx context.Context) {
			errs <- ctx.Err()
		})

		Eventually(errs).Should(Receive(BeNil()))
	})
})
