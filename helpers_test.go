package vault_test

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	vault "github.com/JohnPlummer/jp-go-vault"
)

const testToken = "test-token"

// testVariable is a minimal ResponseModel.
type testVariable struct {
	Key   string
	Value string
}

func (v *testVariable) FromResponseData(data map[string]any) error {
	key, ok := data["key"].(string)
	if !ok {
		return errors.New("missing key")
	}
	value, ok := data["value"].(string)
	if !ok {
		return errors.New("missing value")
	}
	v.Key, v.Value = key, value
	return nil
}

// panickyModel panics instead of returning an error.
type panickyModel struct{}

func (p *panickyModel) FromResponseData(data map[string]any) error {
	panic(fmt.Sprintf("unexpected data: %v", data))
}

type recordedRequest struct {
	Method string
	Path   string
	Header http.Header
	Body   string
}

// mockAPI is an httptest server answering with a scripted sequence of responses.
// Once the script runs out, the last response is repeated.
type mockAPI struct {
	*httptest.Server

	mu        sync.Mutex
	responses []mockResponse
	requests  []recordedRequest
}

type mockResponse struct {
	status int
	body   string
}

func newMockAPI(responses ...mockResponse) *mockAPI {
	m := &mockAPI{responses: responses}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handle))
	return m
}

func (m *mockAPI) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	m.requests = append(m.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	idx := len(m.requests) - 1
	if idx >= len(m.responses) {
		idx = len(m.responses) - 1
	}
	resp := m.responses[idx]
	m.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	_, _ = io.WriteString(w, resp.body)
}

func (m *mockAPI) requestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func (m *mockAPI) recorded() []recordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]recordedRequest(nil), m.requests...)
}

// roundTripFunc fakes the network below the client.
type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestClient builds a client with millisecond backoff and no jitter.
func newTestClient(baseURL string, opts ...vault.Option) *vault.Client {
	defaults := []vault.Option{
		vault.WithLogger(quietLogger()),
		vault.WithBackoff(time.Millisecond, 5*time.Millisecond),
		vault.WithJitter(0),
	}
	client, err := vault.NewClient(baseURL, testToken, append(defaults, opts...)...)
	if err != nil {
		panic(err)
	}
	return client
}

func mustRequest(method, path string) *vault.Request {
	req, err := vault.NewRequest(method, path, nil)
	if err != nil {
		panic(err)
	}
	return req
}
