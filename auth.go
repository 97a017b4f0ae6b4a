package vault

import "context"

// StorageAPITokenHeader carries the Storage API token on every request.
const StorageAPITokenHeader = "X-StorageApi-Token"

// Authenticator stamps credentials on an outgoing request.
type Authenticator interface {
	Authenticate(req *Request) *Request
}

// StorageAPITokenAuthenticator authenticates with a Keboola Storage API token.
type StorageAPITokenAuthenticator struct {
	token string
}

// NewStorageAPITokenAuthenticator creates an authenticator for token.
func NewStorageAPITokenAuthenticator(token string) *StorageAPITokenAuthenticator {
	return &StorageAPITokenAuthenticator{token: token}
}

// Authenticate returns a copy of req with the token header set. Applying it twice
// yields the same request.
func (a *StorageAPITokenAuthenticator) Authenticate(req *Request) *Request {
	return req.WithHeader(StorageAPITokenHeader, a.token)
}

// authStage runs the authenticator once per call, before the retry loop, so every
// attempt sends the same stamped request.
func authStage(auth Authenticator) Stage {
	return func(next Transport) Transport {
		return TransportFunc(func(ctx context.Context, req *Request) (*RawResponse, error) {
			return next.Execute(ctx, auth.Authenticate(req))
		})
	}
}
