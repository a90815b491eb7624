package ghac

import (
	"context"
	"strconv"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

// uploader implements storage.MultipartUploader over the
// reserve/upload/commit protocol. Chunks are addressed by byte offset,
// so part numbers only order the bookkeeping.
type uploader struct {
	b    *Backend
	path string
}

func (u *uploader) PutOnce(ctx context.Context, body []byte) error {
	cacheID, err := u.initiate(ctx)
	if err != nil {
		return err
	}
	if len(body) > 0 {
		if err := u.b.upload(ctx, cacheID, 0, body); err != nil {
			return opError(err, "write")
		}
	}
	if err := u.b.commit(ctx, cacheID, int64(len(body))); err != nil {
		return opError(err, "write")
	}
	return nil
}

func (u *uploader) InitiateMultipart(ctx context.Context) (string, error) {
	cacheID, err := u.initiate(ctx)
	if err != nil {
		return "", err
	}
	return formatCacheID(cacheID), nil
}

func (u *uploader) UploadPart(ctx context.Context, uploadID string, partNumber int, offset int64, body []byte) (storage.Part, error) {
	cacheID, err := parseCacheID(uploadID)
	if err != nil {
		return storage.Part{}, opError(err, "write")
	}
	if err := u.b.upload(ctx, cacheID, offset, body); err != nil {
		return storage.Part{}, opError(err, "write")
	}
	return storage.Part{PartNumber: partNumber}, nil
}

func (u *uploader) CompleteMultipart(ctx context.Context, uploadID string, _ []storage.Part, size int64) error {
	cacheID, err := parseCacheID(uploadID)
	if err != nil {
		return opError(err, "write")
	}
	if err := u.b.commit(ctx, cacheID, size); err != nil {
		return opError(err, "write")
	}
	return nil
}

func (u *uploader) initiate(ctx context.Context) (int64, error) {
	cacheID, conflict, err := u.b.reserve(ctx, u.path)
	if err != nil {
		return 0, opError(err, "write")
	}
	if conflict {
		// Committed entries are immutable; the key must be deleted
		// before it can be written again.
		return 0, storage.Errorf(storage.KindUnexpected, "cache entry %q is already reserved", u.path).
			WithOperation("write").WithService(scheme)
	}
	return cacheID, nil
}

func formatCacheID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func parseCacheID(uploadID string) (int64, error) {
	id, err := strconv.ParseInt(uploadID, 10, 64)
	if err != nil {
		return 0, storage.Errorf(storage.KindUnexpected, "upload id %q is not a cache id", uploadID).WithCause(err)
	}
	return id, nil
}
