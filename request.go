package vault

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Request is an outgoing call to the Vault API.
// Path is resolved against the client's base URL. A Request is never mutated once built;
// pipeline stages work on clones.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// NewRequest builds a Request, reading body fully so it can be resent on retry.
func NewRequest(method, path string, body io.Reader) (*Request, error) {
	if method == "" {
		method = http.MethodGet
	}

	var data []byte
	if body != nil {
		b, err := io.ReadAll(body)
		if err != nil {
			return nil, fmt.Errorf("read request body: %w", err)
		}
		data = b
	}

	return &Request{
		Method: method,
		Path:   path,
		Header: make(http.Header),
		Body:   data,
	}, nil
}

// NewJSONRequest builds a Request with v encoded as the JSON body.
//
// Example:
//
//	req, err := vault.NewJSONRequest(http.MethodPost, "variables", map[string]any{
//	    "key":   "DB_PASSWORD",
//	    "value": "secret",
//	})
func NewJSONRequest(method, path string, v any) (*Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request body: %w", err)
	}

	req, err := NewRequest(method, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// Clone returns a deep copy of the request.
func (r *Request) Clone() *Request {
	clone := &Request{
		Method: r.Method,
		Path:   r.Path,
		Header: r.Header.Clone(),
	}
	if clone.Header == nil {
		clone.Header = make(http.Header)
	}
	if r.Body != nil {
		clone.Body = append([]byte(nil), r.Body...)
	}
	return clone
}

// WithHeader returns a clone of the request with key set to value.
func (r *Request) WithHeader(key, value string) *Request {
	clone := r.Clone()
	clone.Header.Set(key, value)
	return clone
}

// RawResponse is the outcome of a single attempt that reached the server.
type RawResponse struct {
	StatusCode int
	Status     string
	Proto      string
	Header     http.Header
	Body       []byte

	// Method and URL identify the request that produced the response.
	Method string
	URL    string
}

// IsSuccess reports whether the status code is 2xx.
func (r *RawResponse) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}
