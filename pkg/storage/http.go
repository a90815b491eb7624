package storage

import (
	"io"
	"net"
	"net/http"
	"time"
)

// NewHTTPClient returns the tuned client raw-HTTP backends share:
// bounded dial and TLS handshake times, pooled keep-alive connections,
// no overall request timeout (reads can stream for a long time; callers
// bound operations with their context).
func NewHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   10 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

// ClassifyStatus maps an HTTP status code to the canonical error kind.
// Backends with richer error payloads refine this mapping themselves.
func ClassifyStatus(code int) Kind {
	switch code {
	case http.StatusNotFound:
		return KindNotFound
	case http.StatusForbidden, http.StatusUnauthorized:
		return KindPermissionDenied
	default:
		return KindUnexpected
	}
}

// maxErrorBody bounds how much of a failure response is captured for
// diagnostics.
const maxErrorBody = 4 * 1024

// ErrorFromResponse normalizes a failure response into a typed error,
// preserving status and a bounded slice of the body as context. The
// response body is consumed.
func ErrorFromResponse(resp *http.Response) *Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	return Errorf(ClassifyStatus(resp.StatusCode), "service returned %s", resp.Status).
		WithContext("status", resp.Status).
		WithContext("body", string(body))
}
