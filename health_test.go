package vault_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	vault "github.com/JohnPlummer/jp-go-vault"
)

var _ = Describe("HealthStatus", func() {
	It("marshals with snake_case keys", func() {
		health := vault.HealthStatus{
			Healthy:              false,
			Status:               "open",
			Requests:             5,
			TotalSuccesses:       1,
			TotalFailures:        4,
			ConsecutiveFailures:  3,
			ConsecutiveSuccesses: 0,
		}

		data, err := json.Marshal(health)
		Expect(err).To(BeNil())
		Expect(data).To(MatchJSON(`{
			"healthy": false,
			"status": "open",
			"requests": 5,
			"total_successes": 1,
			"total_failures": 4,
			"consecutive_failures": 3,
			"consecutive_successes": 0
		}`))
	})

	It("round-trips through JSON", func() {
		var health vault.HealthStatus
		Expect(json.Unmarshal([]byte(`{"healthy":true,"status":"half-open","requests":2}`), &health)).To(Succeed())

		Expect(health.Healthy).To(BeTrue())
		Expect(health.Status).To(Equal("half-open"))
		Expect(health.Requests).To(Equal(uint32(2)))
	})
})
