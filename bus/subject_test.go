package bus_test

import (
	. "github.com/onsi/ginkgo"
	"github.com/onsi/gomega"
	. "github.com/stratumhq/stratum/bus"
)

var _ = Describe("func Subject()", func() {
	It("builds a tenant-scoped subject", func() {
		gomega.Expect(
			Subject("<tenant>", "account"),
		).To(gomega.Equal("events.<tenant>.account"))
	})
})

var _ = Describe("func SubjectTenant()", func() {
	It("extracts the tenant token", func() {
		gomega.Expect(
			SubjectTenant("events.<tenant>.account"),
		).To(gomega.Equal("<tenant>"))
	})

	It("returns an empty string for non-canonical subjects", func() {
		gomega.Expect(SubjectTenant("other.<tenant>")).To(gomega.Equal(""))
	})
})

var _ = Describe("func MatchSubject()", func() {
	entries := []struct {
		pattern string
		subject string
		matches bool
	}{
		{"events.t1.account", "events.t1.account", true},
		{"events.t1.account", "events.t1.order", false},
		{"events.*.account", "events.t1.account", true},
		{"events.*.account", "events.t1.order", false},
		{"events.t1.*", "events.t1.account", true},
		{"events.t1.*", "events.t2.account", false},
		{"events.>", "events.t1.account", true},
		{"events.>", "events", false},
		{"events.t1.>", "events.t1.account", true},
		{"events.t1.account", "events.t1.account.extra", false},
		{"*.*.*", "events.t1.account", true},
	}

	It("matches tokens, with * and > wildcards", func() {
		for _, e := range entries {
			gomega.Expect(
				MatchSubject(e.pattern, e.subject),
			).To(
				gomega.Equal(e.matches),
				"pattern %s vs subject %s", e.pattern, e.subject,
			)
		}
	})
})
