package vault_test

import (
	"context"
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	vault "github.com/JohnPlummer/jp-go-vault"
)

var _ = Describe("Metrics", func() {
	var registry *prometheus.Registry

	BeforeEach(func() {
		registry = prometheus.NewRegistry()
	})

	It("counts attempts by status and retries by method", func() {
		api := newMockAPI(
			mockResponse{status: http.StatusServiceUnavailable},
			mockResponse{status: http.StatusOK, body: "{}"},
		)
		defer api.Close()

		client := newTestClient(api.URL, vault.WithBackoffMaxTries(1), vault.WithMetrics(registry))
		Expect(client.SendRequest(context.Background(), mustRequest(http.MethodGet, "variables"))).To(Succeed())

		expected := `
# HELP vault_client_attempts_total Attempts sent to the Vault API by method and status code (0 for network failures).
# TYPE vault_client_attempts_total counter
vault_client_attempts_total{code="200",method="GET"} 1
vault_client_attempts_total{code="503",method="GET"} 1
# HELP vault_client_retries_total Attempts that were retries of a failed attempt.
# TYPE vault_client_retries_total counter
vault_client_retries_total{method="GET"} 1
`
		Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected),
			"vault_client_attempts_total", "vault_client_retries_total")).To(Succeed())

		count, err := testutil.GatherAndCount(registry, "vault_client_attempt_duration_seconds")
		Expect(err).NotTo(HaveOccurred())
		Expect(count).To(Equal(1))
	})

	It("records network failures under code 0", func() {
		transport := roundTripFunc(func(r *http.Request) (*http.Response, error) {
			return nil, context.DeadlineExceeded
		})
		client := newTestClient("http://vault.test", vault.WithTransport(transport), vault.WithMetrics(registry))
		Expect(client.SendRequest(context.Background(), mustRequest(http.MethodPost, "variables"))).NotTo(Succeed())

		expected := `
# HELP vault_client_attempts_total Attempts sent to the Vault API by method and status code (0 for network failures).
# TYPE vault_client_attempts_total counter
vault_client_attempts_total{code="0",method="POST"} 1
`
		Expect(testutil.GatherAndCompare(registry, strings.NewReader(expected), "vault_client_attempts_total")).To(Succeed())
	})

	It("lets several clients share a registry", func() {
		_, err := vault.NewClient("https://vault.keboola.com", testToken, vault.WithMetrics(registry))
		Expect(err).NotTo(HaveOccurred())
		_, err = vault.NewClient("https://vault.keboola.com", testToken, vault.WithMetrics(registry))
		Expect(err).NotTo(HaveOccurred())
	})
})
