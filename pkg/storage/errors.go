package storage

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Kind is the closed set of canonical error categories every backend
// failure is collapsed into.
type Kind int

const (
	// KindUnexpected is any transport or protocol failure with no more
	// precise meaning. The underlying cause is always wrapped.
	KindUnexpected Kind = iota

	// KindConfigInvalid means bad builder input. It is raised at
	// construction time, before any network call.
	KindConfigInvalid

	// KindNotFound means the object does not exist.
	KindNotFound

	// KindPermissionDenied means the service rejected the caller's
	// credentials for this operation.
	KindPermissionDenied

	// KindUnsupported means the operation cannot be expressed by this
	// backend's capability set.
	KindUnsupported
)

func (k Kind) String() string {
	switch k {
	case KindConfigInvalid:
		return "ConfigInvalid"
	case KindNotFound:
		return "NotFound"
	case KindPermissionDenied:
		return "PermissionDenied"
	case KindUnsupported:
		return "Unsupported"
	default:
		return "Unexpected"
	}
}

// Error is the typed error all accessor operations return. It carries
// the canonical kind plus the operation and service it came from, any
// structured context attached along the way, and the original cause.
type Error struct {
	Kind    Kind
	Op      string
	Service string
	Message string
	Context map[string]string
	Err     error
}

// NewError starts an error of the given kind. Callers enrich it with
// WithOperation / WithService / WithContext as it propagates.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Errorf is NewError with a formatted message.
func Errorf(kind Kind, format string, args ...interface{}) *Error {
	return NewError(kind, fmt.Sprintf(format, args...))
}

// WithOperation records the accessor operation, e.g. "stat". The first
// caller to set it wins; deeper frames don't overwrite it.
func (e *Error) WithOperation(op string) *Error {
	if e.Op == "" {
		e.Op = op
	}
	return e
}

// WithService records the backend scheme, e.g. "cos".
func (e *Error) WithService(service string) *Error {
	if e.Service == "" {
		e.Service = service
	}
	return e
}

// WithContext attaches a structured key/value for diagnostics.
func (e *Error) WithContext(key, value string) *Error {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

// WithCause wraps the underlying error.
func (e *Error) WithCause(err error) *Error {
	e.Err = err
	return e
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Op != "" {
		b.WriteString(" at ")
		b.WriteString(e.Op)
	}
	if e.Service != "" {
		b.WriteString(" (service ")
		b.WriteString(e.Service)
		b.WriteString(")")
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" {")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%s", k, e.Context[k])
		}
		b.WriteString("}")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind extracts the canonical kind from any error. Errors that did
// not come from this layer are Unexpected.
func ErrorKind(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindUnexpected
}

// IsNotFound reports whether err is a NotFound from this layer.
func IsNotFound(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindNotFound
}

// IsUnsupported reports whether err is an Unsupported from this layer.
func IsUnsupported(err error) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == KindUnsupported
}
