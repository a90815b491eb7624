package cos

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
	"github.com/cjj2010/incubator-opendal/pkg/storage/auth"
)

// core owns the wire-level plumbing: URL construction, signing and
// sending. Accessor methods and the writer primitives all funnel
// through it.
type core struct {
	bucket   string
	root     string
	endpoint string

	client *http.Client
	loader auth.Loader
	signer auth.Signer
}

// objectURL builds the full URL of a caller-relative path.
func (c *core) objectURL(path string) string {
	return c.endpoint + "/" + storage.PercentEncodePath(storage.BuildAbsPath(c.root, path))
}

// newRequest builds an unsigned request for an object. rawQuery is
// attached verbatim.
func (c *core) newRequest(ctx context.Context, method, path, rawQuery string, body io.Reader) (*http.Request, error) {
	u := c.objectURL(path)
	if rawQuery != "" {
		u += "?" + rawQuery
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, storage.NewError(storage.KindUnexpected, "building request failed").WithCause(err)
	}
	return req, nil
}

// sign resolves a credential and applies it in header mode. Requests go
// out unsigned when no credential source yields anything, so public
// buckets keep working.
func (c *core) sign(ctx context.Context, req *http.Request) error {
	cred, err := c.loader.Load(ctx)
	if err != nil {
		return err
	}
	if !cred.Valid() {
		return nil
	}
	return c.signer.SignHeader(req, cred)
}

func (c *core) signQuery(ctx context.Context, req *http.Request, expire time.Duration) error {
	cred, err := c.loader.Load(ctx)
	if err != nil {
		return err
	}
	if !cred.Valid() {
		return storage.NewError(storage.KindPermissionDenied, "no credential available to presign").
			WithService(scheme)
	}
	return c.signer.SignQuery(req, cred, expire)
}

func (c *core) send(ctx context.Context, req *http.Request) (*http.Response, error) {
	if err := c.sign(ctx, req); err != nil {
		return nil, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, storage.NewError(storage.KindUnexpected, "sending request failed").
			WithContext("url", req.URL.Redacted()).WithCause(err)
	}
	return resp, nil
}

func (c *core) headObject(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodHead, path, "", nil)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req)
}

func (c *core) getObject(ctx context.Context, path string, r storage.ByteRange) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodGet, path, "", nil)
	if err != nil {
		return nil, err
	}
	if !r.IsFull() {
		req.Header.Set("Range", r.Header())
	}
	return c.send(ctx, req)
}

func (c *core) putObject(ctx context.Context, path string, args storage.OpWrite, body []byte) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPut, path, "", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(body))
	applyWriteHeaders(req, args)
	return c.send(ctx, req)
}

func (c *core) deleteObject(ctx context.Context, path string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodDelete, path, "", nil)
	if err != nil {
		return nil, err
	}
	return c.send(ctx, req)
}

func (c *core) copyObject(ctx context.Context, from, to string) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPut, to, "", nil)
	if err != nil {
		return nil, err
	}
	source := c.bucket + "/" + storage.PercentEncodePath(storage.BuildAbsPath(c.root, from))
	req.Header.Set("x-cos-copy-source", source)
	return c.send(ctx, req)
}

// appendObject extends an object at the given offset and returns the
// next append position reported by the service.
func (c *core) appendObject(ctx context.Context, path string, args storage.OpWrite, offset int64, body []byte) (*http.Response, error) {
	q := url.Values{}
	q.Set("append", "")
	q.Set("position", strconv.FormatInt(offset, 10))
	req, err := c.newRequest(ctx, http.MethodPost, path, q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(body))
	applyWriteHeaders(req, args)
	return c.send(ctx, req)
}

func (c *core) initiateMultipart(ctx context.Context, path string, args storage.OpWrite) (*http.Response, error) {
	req, err := c.newRequest(ctx, http.MethodPost, path, "uploads", nil)
	if err != nil {
		return nil, err
	}
	applyWriteHeaders(req, args)
	return c.send(ctx, req)
}

func (c *core) uploadPart(ctx context.Context, path, uploadID string, partNumber int, body []byte) (*http.Response, error) {
	q := url.Values{}
	q.Set("partNumber", strconv.Itoa(partNumber))
	q.Set("uploadId", uploadID)
	req, err := c.newRequest(ctx, http.MethodPut, path, q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(body))
	return c.send(ctx, req)
}

func (c *core) completeMultipart(ctx context.Context, path, uploadID string, body []byte) (*http.Response, error) {
	q := url.Values{}
	q.Set("uploadId", uploadID)
	req, err := c.newRequest(ctx, http.MethodPost, path, q.Encode(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/xml")
	return c.send(ctx, req)
}

// listObjects fetches one page of the bucket listing. prefix is the
// absolute key prefix, marker the start-after cursor.
func (c *core) listObjects(ctx context.Context, prefix, delimiter, marker string) (*http.Response, error) {
	q := url.Values{}
	if prefix != "" {
		q.Set("prefix", prefix)
	}
	if delimiter != "" {
		q.Set("delimiter", delimiter)
	}
	if marker != "" {
		q.Set("marker", marker)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"/?"+q.Encode(), nil)
	if err != nil {
		return nil, storage.NewError(storage.KindUnexpected, "building request failed").WithCause(err)
	}
	return c.send(ctx, req)
}

func applyWriteHeaders(req *http.Request, args storage.OpWrite) {
	if args.ContentType != "" {
		req.Header.Set("Content-Type", args.ContentType)
	}
	if args.CacheControl != "" {
		req.Header.Set("Cache-Control", args.CacheControl)
	}
	if args.ContentDisposition != "" {
		req.Header.Set("Content-Disposition", args.ContentDisposition)
	}
}

// metadataFromHeaders builds object metadata from stat response
// headers.
func metadataFromHeaders(h http.Header) storage.Metadata {
	meta := storage.Metadata{
		Mode:        storage.ModeFile,
		ContentType: h.Get("Content-Type"),
		ETag:        h.Get("ETag"),
	}
	if v := h.Get("Content-Length"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			meta.ContentLength = n
		}
	}
	if v := h.Get("Last-Modified"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			meta.LastModified = t
		}
	}
	return meta
}

// drain discards and closes a response body so the connection can be
// reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	resp.Body.Close()
}

const maxDrain = 64 * 1024
