package storage

import "fmt"

// ByteRange selects a byte window of an object, mirroring HTTP Range
// semantics. The zero value selects the whole object.
//
// Offset -1 with a positive Length is a suffix range: the last Length
// bytes. Not every service that accepts ranges can express suffix form;
// backends must check their capability and reject it as Unsupported
// rather than sending a request the service will misinterpret.
type ByteRange struct {
	// Offset is the starting byte, or -1 for a suffix range.
	Offset int64
	// Length is the number of bytes, or 0 for "to the end".
	Length int64
}

// NewByteRange selects Length bytes starting at Offset.
func NewByteRange(offset, length int64) ByteRange {
	return ByteRange{Offset: offset, Length: length}
}

// SuffixRange selects the trailing length bytes of the object.
func SuffixRange(length int64) ByteRange {
	return ByteRange{Offset: -1, Length: length}
}

// IsFull reports whether the range selects the whole object.
func (r ByteRange) IsFull() bool {
	return r.Offset <= 0 && r.Length == 0 && !r.IsSuffix()
}

// IsSuffix reports whether this is a suffix range.
func (r ByteRange) IsSuffix() bool {
	return r.Offset < 0 && r.Length > 0
}

// Header renders the Range request header value.
func (r ByteRange) Header() string {
	switch {
	case r.IsSuffix():
		return fmt.Sprintf("bytes=-%d", r.Length)
	case r.Length > 0:
		return fmt.Sprintf("bytes=%d-%d", r.Offset, r.Offset+r.Length-1)
	default:
		return fmt.Sprintf("bytes=%d-", r.Offset)
	}
}

// ContentRangeHeader renders the Content-Range header for a chunk
// upload: the inclusive window [offset, offset+size-1] of the final
// object, with unknown total.
func ContentRangeHeader(offset, size int64) string {
	return fmt.Sprintf("bytes %d-%d/*", offset, offset+size-1)
}
