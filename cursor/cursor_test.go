package cursor_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/stratumhq/stratum/cursor"
)

var _ = Describe("type Cursor", func() {
	Describe("func Initial()", func() {
		It("returns a cursor that has observed nothing", func() {
			c := Initial()

			Expect(c.IsInitial()).To(BeTrue())
			Expect(c.Next()).To(BeEquivalentTo(1))
		})
	})

	Describe("func Head()", func() {
		It("returns a cursor positioned at the end of the sequence", func() {
			c := Head(42)

			Expect(c.Seq()).To(BeEquivalentTo(42))
			Expect(c.Next()).To(BeEquivalentTo(43))
		})
	})

	Describe("func Covers()", func() {
		It("returns true when the cursors are equal", func() {
			Expect(At(10).Covers(At(10))).To(BeTrue())
		})

		It("returns true when the cursor is ahead", func() {
			Expect(At(11).Covers(At(10))).To(BeTrue())
		})

		It("returns false when the cursor is behind", func() {
			Expect(At(9).Covers(At(10))).To(BeFalse())
		})
	})

	Describe("func AdvanceTo()", func() {
		It("returns a cursor at the new position", func() {
			c := At(5).AdvanceTo(8)

			Expect(c.Seq()).To(BeEquivalentTo(8))
		})

		It("panics if the new position is not ahead", func() {
			Expect(func() {
				At(5).AdvanceTo(5)
			}).To(Panic())
		})
	})

	Describe("func UpperBound()", func() {
		It("returns the cursor that is furthest ahead", func() {
			Expect(UpperBound(At(3), At(7))).To(Equal(At(7)))
			Expect(UpperBound(At(7), At(3))).To(Equal(At(7)))
		})
	})

	Describe("func LowerBound()", func() {
		It("returns the cursor that is furthest behind", func() {
			Expect(LowerBound(At(3), At(7))).To(Equal(At(3)))
			Expect(LowerBound(At(7), At(3))).To(Equal(At(3)))
		})
	})
})
