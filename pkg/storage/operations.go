package storage

import (
	"net/http"
	"time"
)

// OpStat holds stat parameters. Empty today; kept as a struct so
// backends gain options without breaking the Accessor signature.
type OpStat struct{}

// OpRead holds read parameters.
type OpRead struct {
	// Range selects the bytes to read. The zero value reads the whole
	// object.
	Range ByteRange
}

// OpWrite holds write parameters. They bind to the Writer returned by
// Accessor.Write and apply to the whole logical upload.
type OpWrite struct {
	// Append selects the append strategy on backends that support it.
	// The object becomes visible incrementally instead of at close.
	Append bool

	ContentType        string
	CacheControl       string
	ContentDisposition string
}

// OpList holds list parameters.
type OpList struct {
	// Delimiter collapses entries sharing a prefix up to the delimiter
	// into one synthetic directory entry. Empty lists everything under
	// the path recursively.
	Delimiter string

	// Limit caps the total number of entries the pager yields, across
	// page boundaries. Zero means unlimited.
	Limit int
}

// PresignOperation names the operation a presigned request performs.
type PresignOperation int

const (
	PresignStat PresignOperation = iota
	PresignRead
	PresignWrite
)

func (op PresignOperation) String() string {
	switch op {
	case PresignStat:
		return "stat"
	case PresignRead:
		return "read"
	case PresignWrite:
		return "write"
	default:
		return "unknown"
	}
}

// OpPresign holds presign parameters.
type OpPresign struct {
	Operation PresignOperation

	// Expire bounds how long the signed request stays valid. It is
	// embedded in the signed query string.
	Expire time.Duration
}

// PresignedRequest is a self-contained, time-bounded request the caller
// can send with any HTTP client. Its validity is independent of the
// accessor's own credential lifetime. It carries no body.
type PresignedRequest struct {
	Method string
	URL    string
	Header http.Header
}
