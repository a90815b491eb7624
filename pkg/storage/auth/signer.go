package auth

import (
	"net/http"
	"time"
)

// Signer turns a draft request into an authenticated one. The two modes
// are interchangeable at the call site: operations the layer sends
// itself use header mode, presign uses query mode with an explicit
// expiry and skips the send.
type Signer interface {
	// SignHeader mutates the request headers in place.
	SignHeader(req *http.Request, cred *Credential) error

	// SignQuery embeds the authorization and its expiry in the query
	// string, producing a request valid on its own for the given
	// duration.
	SignQuery(req *http.Request, cred *Credential, expire time.Duration) error
}
