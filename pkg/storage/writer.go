package storage

import (
	"bytes"
	"context"
)

// Writer is the single write surface returned by Accessor.Write. It is
// owned exclusively by the caller that requested it: one logical
// upload, driven from one goroutine, finished with exactly one Close.
//
// Close is the terminal call. For the multipart strategy it is the only
// point at which the object becomes visible; for the append strategy
// visibility already happened per Write and Close is bookkeeping. After
// Close (or after any failed call) the writer is dead; abandoning a
// writer without Close leaves whatever chunks were already sent on the
// remote side and triggers no implicit cleanup here.
type Writer interface {
	Write(ctx context.Context, p []byte) error
	Close(ctx context.Context) error
}

// Part identifies one acknowledged multipart chunk.
type Part struct {
	PartNumber int
	ETag       string
}

// MultipartUploader is the raw primitive set a multipart-capable
// backend exposes to the generic writer. Implementations translate
// these to their native reserve/upload/commit protocol.
type MultipartUploader interface {
	// PutOnce uploads the whole object in one shot. The writer uses it
	// when the total payload never reached the multipart threshold,
	// including the empty write.
	PutOnce(ctx context.Context, body []byte) error

	// InitiateMultipart reserves an upload session and returns its
	// opaque id.
	InitiateMultipart(ctx context.Context) (string, error)

	// UploadPart sends one chunk. partNumber is 1-based and strictly
	// increasing; offset is the chunk's position in the final object,
	// for protocols that address parts by byte range instead.
	UploadPart(ctx context.Context, uploadID string, partNumber int, offset int64, body []byte) (Part, error)

	// CompleteMultipart commits the session with every acknowledged
	// part and the total object size. Sent exactly once, only after all
	// parts are acknowledged.
	CompleteMultipart(ctx context.Context, uploadID string, parts []Part, size int64) error
}

// MultipartWriter drives a MultipartUploader behind the Writer
// interface. Incoming bytes are buffered until the backend's declared
// minimum part size, then flushed as parts no larger than the declared
// maximum; the final part may be smaller. Parts go out one at a time,
// in order. If any call fails the writer sticks to that error and will
// never commit a partial set: the abandoned session is left to the
// backend or a higher retry layer.
type MultipartWriter struct {
	u       MultipartUploader
	minSize int64
	maxSize int64

	uploadID string
	buf      bytes.Buffer
	offset   int64
	parts    []Part

	closed bool
	failed error
}

// defaultPartSize applies when a backend declares multipart support
// without a minimum part size.
const defaultPartSize = 8 * 1024 * 1024

// NewMultipartWriter builds a writer honoring the part-size bounds the
// capability declares.
func NewMultipartWriter(u MultipartUploader, cap Capability) *MultipartWriter {
	min := cap.WriteMultiMinSize
	if min <= 0 {
		min = defaultPartSize
	}
	return &MultipartWriter{u: u, minSize: min, maxSize: cap.WriteMultiMaxSize}
}

func (w *MultipartWriter) Write(ctx context.Context, p []byte) error {
	if err := w.usable(); err != nil {
		return err
	}
	w.buf.Write(p)
	for int64(w.buf.Len()) >= w.minSize {
		n := int64(w.buf.Len())
		if w.maxSize > 0 && n > w.maxSize {
			n = w.maxSize
		}
		if err := w.flushPart(ctx, int(n)); err != nil {
			return err
		}
	}
	return nil
}

func (w *MultipartWriter) Close(ctx context.Context) error {
	if err := w.usable(); err != nil {
		return err
	}
	w.closed = true

	// Nothing ever reached the part threshold: upload in one shot.
	// This also covers the empty write, which must still produce a
	// zero-length object.
	if w.uploadID == "" {
		if err := w.u.PutOnce(ctx, w.buf.Bytes()); err != nil {
			w.failed = err
			return err
		}
		return nil
	}

	if w.buf.Len() > 0 {
		if err := w.flushPart(ctx, w.buf.Len()); err != nil {
			return err
		}
	}
	if err := w.u.CompleteMultipart(ctx, w.uploadID, w.parts, w.offset); err != nil {
		w.failed = err
		return err
	}
	return nil
}

func (w *MultipartWriter) usable() error {
	if w.failed != nil {
		return w.failed
	}
	if w.closed {
		return NewError(KindUnexpected, "writer is already closed")
	}
	return nil
}

func (w *MultipartWriter) flushPart(ctx context.Context, n int) error {
	if w.uploadID == "" {
		id, err := w.u.InitiateMultipart(ctx)
		if err != nil {
			w.failed = err
			return err
		}
		w.uploadID = id
	}

	// buf.Next returns a view invalidated by the next buffer write, and
	// the uploader may retain the slice for the duration of the call.
	body := make([]byte, n)
	copy(body, w.buf.Next(n))

	part, err := w.u.UploadPart(ctx, w.uploadID, len(w.parts)+1, w.offset, body)
	if err != nil {
		w.failed = err
		return err
	}
	w.parts = append(w.parts, part)
	w.offset += int64(n)
	return nil
}

// Appender is the raw primitive an append-capable backend exposes. Each
// call extends the object by exactly the bytes sent, starting at
// offset, and returns the next write position. Appends are ordered; the
// object is readable incrementally after each one.
type Appender interface {
	Append(ctx context.Context, offset int64, body []byte) (int64, error)
}

// AppendWriter drives an Appender behind the Writer interface. Close is
// a no-op except for the empty write, which still creates a zero-length
// object.
type AppendWriter struct {
	a      Appender
	offset int64
	wrote  bool
	closed bool
	failed error
}

// NewAppendWriter builds a writer over the backend's append primitive.
func NewAppendWriter(a Appender) *AppendWriter {
	return &AppendWriter{a: a}
}

func (w *AppendWriter) Write(ctx context.Context, p []byte) error {
	if w.failed != nil {
		return w.failed
	}
	if w.closed {
		return NewError(KindUnexpected, "writer is already closed")
	}
	next, err := w.a.Append(ctx, w.offset, p)
	if err != nil {
		w.failed = err
		return err
	}
	w.offset = next
	w.wrote = true
	return nil
}

func (w *AppendWriter) Close(ctx context.Context) error {
	if w.failed != nil {
		return w.failed
	}
	if w.closed {
		return NewError(KindUnexpected, "writer is already closed")
	}
	w.closed = true
	if !w.wrote {
		if _, err := w.a.Append(ctx, 0, nil); err != nil {
			w.failed = err
			return err
		}
	}
	return nil
}
