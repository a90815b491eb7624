package memory

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

type upload struct {
	key  string
	args storage.OpWrite

	mu    sync.Mutex
	parts map[int][]byte
}

// uploader implements storage.MultipartUploader against the in-memory
// object table. Abandoned sessions stay in the table until process
// exit, mirroring how a remote service keeps uncommitted uploads.
type uploader struct {
	b    *Backend
	key  string
	args storage.OpWrite
}

func (u *uploader) PutOnce(ctx context.Context, body []byte) error {
	data := make([]byte, len(body))
	copy(data, body)
	u.b.store(u.key, data, u.args)
	return nil
}

func (u *uploader) InitiateMultipart(ctx context.Context) (string, error) {
	id := uuid.NewString()
	u.b.mu.Lock()
	u.b.uploads[id] = &upload{key: u.key, args: u.args, parts: make(map[int][]byte)}
	u.b.mu.Unlock()
	return id, nil
}

func (u *uploader) UploadPart(ctx context.Context, uploadID string, partNumber int, _ int64, body []byte) (storage.Part, error) {
	u.b.mu.RLock()
	up, ok := u.b.uploads[uploadID]
	u.b.mu.RUnlock()
	if !ok {
		return storage.Part{}, storage.Errorf(storage.KindNotFound, "upload %q does not exist", uploadID).
			WithOperation("write").WithService(scheme)
	}

	data := make([]byte, len(body))
	copy(data, body)
	up.mu.Lock()
	up.parts[partNumber] = data
	up.mu.Unlock()

	sum := md5.Sum(data)
	return storage.Part{PartNumber: partNumber, ETag: `"` + hex.EncodeToString(sum[:]) + `"`}, nil
}

func (u *uploader) CompleteMultipart(ctx context.Context, uploadID string, parts []storage.Part, size int64) error {
	u.b.mu.Lock()
	up, ok := u.b.uploads[uploadID]
	delete(u.b.uploads, uploadID)
	u.b.mu.Unlock()
	if !ok {
		return storage.Errorf(storage.KindNotFound, "upload %q does not exist", uploadID).
			WithOperation("write").WithService(scheme)
	}

	up.mu.Lock()
	defer up.mu.Unlock()

	sorted := make([]storage.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	var data []byte
	for _, p := range sorted {
		body, ok := up.parts[p.PartNumber]
		if !ok {
			return storage.Errorf(storage.KindUnexpected, "part %d was never uploaded", p.PartNumber).
				WithOperation("write").WithService(scheme)
		}
		data = append(data, body...)
	}
	if int64(len(data)) != size {
		return storage.Errorf(storage.KindUnexpected, "committed size %d does not match uploaded %d", size, len(data)).
			WithOperation("write").WithService(scheme)
	}
	u.b.store(up.key, data, up.args)
	return nil
}

// appender implements storage.Appender. Each append extends the object
// in place; readers see the growth immediately.
type appender struct {
	b    *Backend
	key  string
	args storage.OpWrite
}

func (a *appender) Append(ctx context.Context, offset int64, body []byte) (int64, error) {
	a.b.mu.Lock()
	defer a.b.mu.Unlock()

	o, ok := a.b.objects[a.key]
	var data []byte
	if ok {
		data = o.data
	}
	if int64(len(data)) != offset {
		return 0, storage.Errorf(storage.KindUnexpected, "append offset %d does not match object size %d", offset, len(data)).
			WithOperation("write").WithService(scheme)
	}
	data = append(data, body...)

	// store() re-locks; update in place instead.
	sum := md5.Sum(data)
	contentType := a.args.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	a.b.objects[a.key] = &object{
		data: data,
		meta: storage.Metadata{
			Mode:          storage.ModeFile,
			ContentLength: int64(len(data)),
			ContentType:   contentType,
			ETag:          `"` + hex.EncodeToString(sum[:]) + `"`,
		},
	}
	return int64(len(data)), nil
}
