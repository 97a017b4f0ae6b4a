package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
)

// Transport executes one request and returns the raw response.
// Every pipeline stage is a Transport wrapping the next one.
type Transport interface {
	// Execute performs a request and returns a response or error.
	// The context should be used to control timeouts and cancellation.
	Execute(ctx context.Context, req *Request) (*RawResponse, error)
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context, req *Request) (*RawResponse, error)

// Execute calls f(ctx, req).
func (f TransportFunc) Execute(ctx context.Context, req *Request) (*RawResponse, error) {
	return f(ctx, req)
}

// Stage wraps a Transport with additional behavior.
type Stage func(next Transport) Transport

// chain composes stages around base. The first stage is the outermost.
func chain(base Transport, stages ...Stage) Transport {
	t := base
	for i := len(stages) - 1; i >= 0; i-- {
		t = stages[i](t)
	}
	return t
}

type callIDKey struct{}

// withCallID tags ctx with a fresh id shared by every attempt of one call.
func withCallID(ctx context.Context) context.Context {
	return context.WithValue(ctx, callIDKey{}, uuid.NewString())
}

func callIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

// httpSender is the raw send primitive: one HTTP round trip with per-attempt timeouts.
type httpSender struct {
	client    *http.Client
	baseURL   *url.URL
	userAgent string
}

func newHTTPSender(baseURL *url.URL, userAgent string, rt http.RoundTripper) *httpSender {
	if rt == nil {
		rt = newDefaultTransport()
	}
	return &httpSender{
		client: &http.Client{
			Transport: rt,
			Timeout:   RequestTimeout,
		},
		baseURL:   baseURL,
		userAgent: userAgent,
	}
}

func newDefaultTransport() *http.Transport {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = (&net.Dialer{
		Timeout:   ConnectTimeout,
		KeepAlive: 30 * time.Second,
	}).DialContext
	transport.TLSHandshakeTimeout = ConnectTimeout
	return transport
}

// resolve returns the absolute URL of path relative to the base URL.
func (s *httpSender) resolve(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("invalid request path %q: %w", path, err)
	}
	return s.baseURL.ResolveReference(ref).String(), nil
}

// Execute implements Transport. Any status code is a successful round trip;
// only failures to get a response are errors, and those are always *NetworkError.
func (s *httpSender) Execute(ctx context.Context, req *Request) (*RawResponse, error) {
	target, err := s.resolve(req.Path)
	if err != nil {
		return nil, &NetworkError{Err: err, Method: req.Method, URL: req.Path}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, body)
	if err != nil {
		return nil, &NetworkError{Err: err, Method: req.Method, URL: target}
	}
	httpReq.Header = req.Header.Clone()
	if httpReq.Header == nil {
		httpReq.Header = make(http.Header)
	}
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", s.userAgent)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		return nil, newNetworkError(ctx, err, req.Method, target)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, newNetworkError(ctx, fmt.Errorf("read response body: %w", err), req.Method, target)
	}

	return &RawResponse{
		StatusCode: httpResp.StatusCode,
		Status:     httpResp.Status,
		Proto:      httpResp.Proto,
		Header:     httpResp.Header,
		Body:       data,
		Method:     req.Method,
		URL:        target,
	}, nil
}

// newNetworkError wraps err, marking it canceled when the caller's context has ended.
// A per-attempt timeout leaves ctx alive and stays retryable.
func newNetworkError(ctx context.Context, err error, method, target string) *NetworkError {
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		return netErr
	}
	return &NetworkError{
		Err:      err,
		Method:   method,
		URL:      target,
		Canceled: ctx.Err() != nil,
	}
}
