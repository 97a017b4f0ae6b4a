package vault_test

import (
	"errors"
	"net/http"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	vault "github.com/JohnPlummer/jp-go-vault"
)

var _ = Describe("Request", func() {
	It("defaults to GET and reads the body", func() {
		req, err := vault.NewRequest("", "variables", strings.NewReader("payload"))
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Method).To(Equal(http.MethodGet))
		Expect(req.Path).To(Equal("variables"))
		Expect(string(req.Body)).To(Equal("payload"))
		Expect(req.Header).NotTo(BeNil())
	})

	It("reports an unreadable body", func() {
		_, err := vault.NewRequest(http.MethodPost, "variables", iotest.ErrReader(errors.New("broken pipe")))
		Expect(err).To(MatchError(ContainSubstring("broken pipe")))
	})

	It("encodes JSON bodies", func() {
		req, err := vault.NewJSONRequest(http.MethodPost, "variables", map[string]string{"key": "A"})
		Expect(err).NotTo(HaveOccurred())
		Expect(req.Header.Get("Content-Type")).To(Equal("application/json"))
		Expect(req.Body).To(MatchJSON(`{"key":"A"}`))
	})

	It("rejects values that cannot be encoded", func() {
		_, err := vault.NewJSONRequest(http.MethodPost, "variables", make(chan int))
		Expect(err).To(HaveOccurred())
	})

	It("clones deeply", func() {
		req, err := vault.NewRequest(http.MethodPost, "variables", strings.NewReader("abc"))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("X-Test", "1")

		clone := req.Clone()
		clone.Header.Set("X-Test", "2")
		clone.Body[0] = 'z'

		Expect(req.Header.Get("X-Test")).To(Equal("1"))
		Expect(string(req.Body)).To(Equal("abc"))
	})

	It("leaves the original untouched in WithHeader", func() {
		req, err := vault.NewRequest(http.MethodGet, "variables", nil)
		Expect(err).NotTo(HaveOccurred())

		withHeader := req.WithHeader("X-Test", "1")
		Expect(withHeader.Header.Get("X-Test")).To(Equal("1"))
		Expect(req.Header.Get("X-Test")).To(BeEmpty())
	})
})

var _ = Describe("StorageAPITokenAuthenticator", func() {
	It("sets the token header idempotently", func() {
		auth := vault.NewStorageAPITokenAuthenticator("secret")
		req, err := vault.NewRequest(http.MethodGet, "variables", nil)
		Expect(err).NotTo(HaveOccurred())

		once := auth.Authenticate(req)
		twice := auth.Authenticate(once)

		Expect(once.Header.Values(vault.StorageAPITokenHeader)).To(Equal([]string{"secret"}))
		Expect(twice).To(Equal(once))
		Expect(req.Header.Get(vault.StorageAPITokenHeader)).To(BeEmpty())
	})
})
