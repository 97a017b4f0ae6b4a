package vault_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	vault "github.com/JohnPlummer/jp-go-vault"
)

var _ = Describe("RetryDecider", func() {
	var (
		logs *bytes.Buffer
		cfg  *vault.Configuration
	)

	BeforeEach(func() {
		logs = &bytes.Buffer{}
		cfg = &vault.Configuration{
			BackoffMaxTries: 3,
			InitialDelay:    time.Millisecond,
			MaxDelay:        3 * time.Millisecond,
			Logger:          slog.New(slog.NewTextHandler(logs, nil)),
		}
	})

	failure := func(attempt int, err error) vault.AttemptFailure {
		return vault.AttemptFailure{
			Attempt: attempt,
			Err:     err,
			URL:     "https://vault.keboola.com/variables",
			Elapsed: time.Duration(attempt) * time.Millisecond,
		}
	}

	It("allows BackoffMaxTries+1 attempts", func() {
		Expect(vault.NewRetryDecider(cfg).MaxAttempts()).To(Equal(4))
	})

	It("doubles the delay up to the cap", func() {
		decider := vault.NewRetryDecider(cfg)
		unavailable := statusError(http.StatusServiceUnavailable, "")

		var delays []time.Duration
		for attempt := 1; attempt <= 3; attempt++ {
			decision := decider.ShouldRetry(failure(attempt, unavailable))
			Expect(decision.Retry).To(BeTrue())
			delays = append(delays, decision.Delay)
		}
		Expect(delays).To(Equal([]time.Duration{time.Millisecond, 2 * time.Millisecond, 3 * time.Millisecond}))
	})

	It("gives up once the last attempt has failed", func() {
		decision := vault.NewRetryDecider(cfg).ShouldRetry(failure(4, statusError(http.StatusServiceUnavailable, "")))
		Expect(decision.Retry).To(BeFalse())
		Expect(decision.Reason).To(Equal("max attempts reached"))
	})

	It("never retries when BackoffMaxTries is 0", func() {
		cfg.BackoffMaxTries = 0
		decision := vault.NewRetryDecider(cfg).ShouldRetry(failure(1, statusError(http.StatusServiceUnavailable, "")))
		Expect(decision.Retry).To(BeFalse())
	})

	DescribeTable("follows the error classifier",
		func(err error, expected bool) {
			Expect(vault.NewRetryDecider(cfg).ShouldRetry(failure(1, err)).Retry).To(Equal(expected))
		},
		Entry("server error", statusError(http.StatusInternalServerError, ""), true),
		Entry("rate limited", statusError(http.StatusTooManyRequests, ""), true),
		Entry("not found", statusError(http.StatusNotFound, ""), false),
		Entry("unauthorized", statusError(http.StatusUnauthorized, ""), false),
		Entry("connection refused", &vault.NetworkError{Err: errors.New("connection refused")}, true),
		Entry("caller canceled", &vault.NetworkError{Err: context.Canceled, Canceled: true}, false),
	)

	It("uses a custom classifier", func() {
		cfg.ErrorClassifier = &vault.HTTPStatusClassifier{RetryableStatuses: []int{http.StatusConflict}}
		decider := vault.NewRetryDecider(cfg)

		Expect(decider.ShouldRetry(failure(1, statusError(http.StatusConflict, ""))).Retry).To(BeTrue())
		Expect(decider.ShouldRetry(failure(2, statusError(http.StatusServiceUnavailable, ""))).Retry).To(BeFalse())
	})

	It("logs a warning for each retry", func() {
		decision := vault.NewRetryDecider(cfg).ShouldRetry(failure(1, statusError(http.StatusBadGateway, "")))
		Expect(decision.Retry).To(BeTrue())

		Expect(logs.String()).To(ContainSubstring("level=WARN"))
		Expect(logs.String()).To(ContainSubstring("retrying vault api request"))
		Expect(logs.String()).To(ContainSubstring("attempt=1"))
		Expect(logs.String()).To(ContainSubstring("max_attempts=4"))
		Expect(logs.String()).To(ContainSubstring("url=https://vault.keboola.com/variables"))
	})

	It("does not log when it gives up", func() {
		vault.NewRetryDecider(cfg).ShouldRetry(failure(1, statusError(http.StatusNotFound, "")))
		Expect(logs.String()).To(BeEmpty())
	})

	It("keeps jittered delays within bounds", func() {
		cfg.InitialDelay = 100 * time.Millisecond
		cfg.MaxDelay = time.Second
		cfg.Jitter = 10 * time.Millisecond
		decider := vault.NewRetryDecider(cfg)

		decision := decider.ShouldRetry(failure(1, statusError(http.StatusServiceUnavailable, "")))
		Expect(decision.Delay).To(BeNumerically("~", 100*time.Millisecond, 10*time.Millisecond))
	})
})
