package vault_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	vault "github.com/JohnPlummer/jp-go-vault"
)

var _ = Describe("Rate limiting", func() {
	It("spaces attempts to the configured rate", func() {
		api := newMockAPI(mockResponse{status: http.StatusOK, body: "{}"})
		defer api.Close()

		client := newTestClient(api.URL, vault.WithRateLimit(20, 1))

		start := time.Now()
		for i := 0; i < 3; i++ {
			Expect(client.SendRequest(context.Background(), mustRequest(http.MethodGet, "variables"))).To(Succeed())
		}
		Expect(time.Since(start)).To(BeNumerically(">=", 80*time.Millisecond))
		Expect(api.requestCount()).To(Equal(3))
	})

	It("applies to retries too", func() {
		api := newMockAPI(
			mockResponse{status: http.StatusServiceUnavailable},
			mockResponse{status: http.StatusOK, body: "{}"},
		)
		defer api.Close()

		client := newTestClient(api.URL, vault.WithBackoffMaxTries(1), vault.WithRateLimit(10, 1))

		start := time.Now()
		Expect(client.SendRequest(context.Background(), mustRequest(http.MethodGet, "variables"))).To(Succeed())
		Expect(time.Since(start)).To(BeNumerically(">=", 80*time.Millisecond))
	})

	It("fails without an attempt when the caller cannot wait long enough", func() {
		api := newMockAPI(mockResponse{status: http.StatusOK, body: "{}"})
		defer api.Close()

		client := newTestClient(api.URL, vault.WithBackoffMaxTries(3), vault.WithRateLimit(0.5, 1))
		Expect(client.SendRequest(context.Background(), mustRequest(http.MethodGet, "variables"))).To(Succeed())

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()

		err := client.SendRequest(ctx, mustRequest(http.MethodGet, "variables"))

		var clientErr *vault.ClientError
		Expect(errors.As(err, &clientErr)).To(BeTrue())
		Expect(clientErr.Code).To(Equal(0))

		var netErr *vault.NetworkError
		Expect(errors.As(err, &netErr)).To(BeTrue())
		Expect(netErr.Canceled).To(BeTrue())
		Expect(api.requestCount()).To(Equal(1))
	})
})
