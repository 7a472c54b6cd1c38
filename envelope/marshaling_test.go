package envelope_test

import (
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	. "github.com/stratumhq/stratum/envelope"
)

var _ = Describe("func Marshal() and Unmarshal()", func() {
	var env *Envelope

	BeforeEach(func() {
		env = &Envelope{
			EventID:   "<id>",
			EventType: "account.opened",
			TenantID:  "<tenant>",
			CreatedAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
			Payload:   []byte("<payload>"),
			Metadata: map[string]string{
				CorrelationIDKey: "<correlation>",
				CausationIDKey:   "<cause>",
				UserIDKey:        "<user>",
			},
		}
	})

	It("round-trips an envelope", func() {
		data, err := Marshal(env)
		Expect(err).ShouldNot(HaveOccurred())

		out, err := Unmarshal(data)
		Expect(err).ShouldNot(HaveOccurred())
		Expect(out).To(Equal(env))
	})

	It("refuses to marshal an invalid envelope", func() {
		env.TenantID = ""

		_, err := Marshal(env)
		Expect(err).Should(HaveOccurred())
	})

	It("fails to unmarshal malformed data", func() {
		_, err := Unmarshal([]byte("<not json>"))
		Expect(err).Should(HaveOccurred())
	})

	It("fails to unmarshal an envelope with an invalid timestamp", func() {
		_, err := Unmarshal([]byte(`{"event_id":"<id>","event_type":"t","tenant_id":"<tenant>","timestamp":"<invalid>"}`))
		Expect(err).Should(HaveOccurred())
	})

	It("fails to unmarshal an incomplete envelope", func() {
		_, err := Unmarshal([]byte(`{"event_id":"<id>","timestamp":"2000-01-01T00:00:00Z"}`))
		Expect(err).Should(HaveOccurred())
	})
})

var _ = Describe("type Envelope", func() {
	Describe("func Scope()", func() {
		It("exposes the propagated operation context", func() {
			env := &Envelope{
				EventID:   "<id>",
				EventType: "account.opened",
				TenantID:  "<tenant>",
				CreatedAt: time.Now(),
				Metadata: map[string]string{
					CorrelationIDKey: "<correlation>",
					UserIDKey:        "<user>",
				},
			}

			s := env.Scope()
			Expect(s.TenantID).To(Equal("<tenant>"))
			Expect(s.UserID).To(Equal("<user>"))
			Expect(s.CorrelationID).To(Equal("<correlation>"))
		})
	})
})
