package cos

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strconv"

	"github.com/cjj2010/incubator-opendal/internal/metrics"
	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

// uploader implements storage.MultipartUploader over the native
// reserve/upload/commit protocol.
type uploader struct {
	core *core
	path string
	args storage.OpWrite
}

type initiateResult struct {
	XMLName  xml.Name `xml:"InitiateMultipartUploadResult"`
	UploadID string   `xml:"UploadId"`
}

type completeRequest struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []completePart `xml:"Part"`
}

type completePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

func (u *uploader) PutOnce(ctx context.Context, body []byte) error {
	resp, err := u.core.putObject(ctx, u.path, u.args, body)
	if err != nil {
		return opError(err, "write")
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return opError(parseError(resp), "write")
	}
	drain(resp)
	metrics.RecordBytesWritten(scheme, int64(len(body)))
	return nil
}

func (u *uploader) InitiateMultipart(ctx context.Context) (string, error) {
	resp, err := u.core.initiateMultipart(ctx, u.path, u.args)
	if err != nil {
		return "", opError(err, "write")
	}
	if resp.StatusCode != http.StatusOK {
		return "", opError(parseError(resp), "write")
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return "", opError(storage.NewError(storage.KindUnexpected, "reading initiate response failed").WithCause(err), "write")
	}
	var result initiateResult
	if err := xml.Unmarshal(body, &result); err != nil {
		return "", opError(storage.NewError(storage.KindUnexpected, "decoding initiate response failed").WithCause(err), "write")
	}
	if result.UploadID == "" {
		return "", opError(storage.NewError(storage.KindUnexpected, "initiate response carries no upload id"), "write")
	}
	return result.UploadID, nil
}

func (u *uploader) UploadPart(ctx context.Context, uploadID string, partNumber int, _ int64, body []byte) (storage.Part, error) {
	resp, err := u.core.uploadPart(ctx, u.path, uploadID, partNumber, body)
	if err != nil {
		return storage.Part{}, opError(err, "write")
	}
	if resp.StatusCode != http.StatusOK {
		return storage.Part{}, opError(parseError(resp), "write")
	}

	etag := resp.Header.Get("ETag")
	drain(resp)
	if etag == "" {
		return storage.Part{}, opError(storage.Errorf(storage.KindUnexpected, "part %d response carries no etag", partNumber), "write")
	}
	metrics.RecordBytesWritten(scheme, int64(len(body)))
	return storage.Part{PartNumber: partNumber, ETag: etag}, nil
}

func (u *uploader) CompleteMultipart(ctx context.Context, uploadID string, parts []storage.Part, _ int64) error {
	payload := completeRequest{Parts: make([]completePart, len(parts))}
	for i, p := range parts {
		payload.Parts[i] = completePart{PartNumber: p.PartNumber, ETag: p.ETag}
	}
	body, err := xml.Marshal(payload)
	if err != nil {
		return opError(storage.NewError(storage.KindUnexpected, "encoding complete request failed").WithCause(err), "write")
	}

	resp, err := u.core.completeMultipart(ctx, u.path, uploadID, body)
	if err != nil {
		return opError(err, "write")
	}
	if resp.StatusCode != http.StatusOK {
		return opError(parseError(resp), "write")
	}
	drain(resp)
	return nil
}

// appender implements storage.Appender over the native append API. The
// service reports the next write position after each call.
type appender struct {
	core *core
	path string
	args storage.OpWrite
}

func (a *appender) Append(ctx context.Context, offset int64, body []byte) (int64, error) {
	resp, err := a.core.appendObject(ctx, a.path, a.args, offset, body)
	if err != nil {
		return 0, opError(err, "write")
	}
	if resp.StatusCode != http.StatusOK {
		return 0, opError(parseError(resp), "write")
	}

	next := offset + int64(len(body))
	if v := resp.Header.Get("x-cos-next-append-position"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			next = n
		}
	}
	drain(resp)
	metrics.RecordBytesWritten(scheme, int64(len(body)))
	return next, nil
}
