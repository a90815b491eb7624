// Package memory implements an in-process accessor. It supports every
// capability except presign, which makes it the reference backend for
// tests and a useful scratch target for local pipelines.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cjj2010/incubator-opendal/internal/logging"
	"github.com/cjj2010/incubator-opendal/internal/metrics"
	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

const scheme = "memory"

// defaultPageSize is the natural page size of the list API.
const defaultPageSize = 200

func init() {
	storage.Register(scheme, func(opts storage.Options) (storage.Accessor, error) {
		cfg := Config{Root: opts["root"]}
		if v := opts["page_size"]; v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				return nil, storage.Errorf(storage.KindConfigInvalid, "page_size %q is not a positive integer", v).
					WithService(scheme)
			}
			cfg.PageSize = n
		}
		return New(cfg)
	})
}

// Config holds memory backend configuration.
type Config struct {
	Root string

	// PageSize is the number of entries per list page. Defaults to 200.
	PageSize int
}

type object struct {
	data []byte
	meta storage.Metadata
}

// Backend is an in-memory accessor. Safe for concurrent use.
type Backend struct {
	root     string
	pageSize int

	mu      sync.RWMutex
	objects map[string]*object
	uploads map[string]*upload
}

// New builds a memory backend.
func New(cfg Config) (*Backend, error) {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	b := &Backend{
		root:     storage.NormalizeRoot(cfg.Root),
		pageSize: pageSize,
		objects:  make(map[string]*object),
		uploads:  make(map[string]*upload),
	}
	logging.Debug("memory backend built", zap.String("root", b.root))
	return b, nil
}

func (b *Backend) Info() storage.Info {
	return storage.Info{
		Scheme: scheme,
		Name:   "memory",
		Root:   b.root,
		Capability: storage.Capability{
			Stat:                true,
			Read:                true,
			ReadWithRange:       true,
			ReadWithSuffixRange: true,
			Write:               true,
			WriteCanEmpty:       true,
			WriteCanAppend:      true,
			WriteCanMulti:       true,
			CreateDir:           true,
			Delete:              true,
			Copy:                true,
			List:                true,
			ListWithDelimiter:   true,
		},
	}
}

func (b *Backend) Stat(ctx context.Context, path string, _ storage.OpStat) (storage.Metadata, error) {
	if storage.IsRootPath(path) {
		return storage.NewDirMetadata(), nil
	}

	key := storage.BuildAbsPath(b.root, path)
	b.mu.RLock()
	o, ok := b.objects[key]
	b.mu.RUnlock()

	if ok {
		return o.meta, nil
	}
	if storage.IsDirPath(path) {
		return storage.NewDirMetadata(), nil
	}
	return storage.Metadata{}, storage.Errorf(storage.KindNotFound, "object %q does not exist", path).
		WithOperation("stat").WithService(scheme)
}

func (b *Backend) Read(ctx context.Context, path string, args storage.OpRead) (*storage.ReadResult, error) {
	key := storage.BuildAbsPath(b.root, path)
	b.mu.RLock()
	o, ok := b.objects[key]
	b.mu.RUnlock()

	if !ok {
		return nil, storage.Errorf(storage.KindNotFound, "object %q does not exist", path).
			WithOperation("read").WithService(scheme)
	}

	data := sliceRange(o.data, args.Range)
	metrics.RecordBytesRead(scheme, int64(len(data)))
	return &storage.ReadResult{
		Size: int64(len(data)),
		Body: io.NopCloser(bytes.NewReader(data)),
	}, nil
}

// sliceRange applies a byte range, degrading fully out-of-range
// requests to an empty result.
func sliceRange(data []byte, r storage.ByteRange) []byte {
	size := int64(len(data))
	switch {
	case r.IsFull():
		return data
	case r.IsSuffix():
		n := r.Length
		if n > size {
			n = size
		}
		return data[size-n:]
	default:
		if r.Offset >= size {
			return nil
		}
		end := size
		if r.Length > 0 && r.Offset+r.Length < size {
			end = r.Offset + r.Length
		}
		return data[r.Offset:end]
	}
}

func (b *Backend) Write(ctx context.Context, path string, args storage.OpWrite) (storage.Writer, error) {
	key := storage.BuildAbsPath(b.root, path)
	if args.Append {
		return storage.NewAppendWriter(&appender{b: b, key: key, args: args}), nil
	}
	return storage.NewMultipartWriter(&uploader{b: b, key: key, args: args}, b.Info().Capability), nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	key := storage.BuildAbsPath(b.root, path)
	b.mu.Lock()
	delete(b.objects, key)
	b.mu.Unlock()
	return nil
}

func (b *Backend) Copy(ctx context.Context, from, to string) error {
	src := storage.BuildAbsPath(b.root, from)
	dst := storage.BuildAbsPath(b.root, to)

	b.mu.Lock()
	defer b.mu.Unlock()
	o, ok := b.objects[src]
	if !ok {
		return storage.Errorf(storage.KindNotFound, "object %q does not exist", from).
			WithOperation("copy").WithService(scheme)
	}
	data := make([]byte, len(o.data))
	copy(data, o.data)
	meta := o.meta
	meta.LastModified = time.Now()
	b.objects[dst] = &object{data: data, meta: meta}
	return nil
}

func (b *Backend) CreateDir(ctx context.Context, path string) error {
	if storage.IsRootPath(path) {
		return nil
	}
	key := storage.BuildAbsPath(b.root, path)
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}
	b.mu.Lock()
	if _, exists := b.objects[key]; !exists {
		b.objects[key] = &object{meta: storage.NewDirMetadata()}
	}
	b.mu.Unlock()
	return nil
}

func (b *Backend) List(ctx context.Context, path string, args storage.OpList) (storage.Pager, error) {
	prefix := storage.BuildAbsPath(b.root, path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	fetch := func(ctx context.Context, token string) ([]storage.Entry, string, error) {
		return b.listPage(prefix, args.Delimiter, token)
	}
	return storage.NewTokenPager(fetch, args.Limit), nil
}

// listPage scans keys after the start-after token in lexicographic
// order, collapsing common prefixes when a delimiter is set. The token
// is the last key (or collapsed prefix) of the previous page.
func (b *Backend) listPage(prefix, delimiter, token string) ([]storage.Entry, string, error) {
	b.mu.RLock()
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) && k != prefix {
			keys = append(keys, k)
		}
	}
	b.mu.RUnlock()
	sort.Strings(keys)

	rootLen := len(b.root) - 1 // abs keys carry the root without its leading "/"

	var entries []storage.Entry
	seenPrefix := make(map[string]bool)
	last := ""
	for _, k := range keys {
		name := k
		if delimiter != "" {
			rest := k[len(prefix):]
			if i := strings.Index(rest, delimiter); i >= 0 {
				name = prefix + rest[:i+len(delimiter)]
				if seenPrefix[name] {
					continue
				}
				seenPrefix[name] = true
			}
		}
		if name <= token {
			continue
		}

		rel := name[rootLen:]
		rel = strings.TrimPrefix(rel, "/")
		var meta storage.Metadata
		if strings.HasSuffix(name, "/") {
			meta = storage.NewDirMetadata()
		} else {
			b.mu.RLock()
			if o, ok := b.objects[name]; ok {
				meta = o.meta
			}
			b.mu.RUnlock()
		}
		entries = append(entries, storage.Entry{Path: rel, Metadata: meta})
		last = name
		if len(entries) == b.pageSize {
			return entries, last, nil
		}
	}
	return entries, "", nil
}

func (b *Backend) Presign(ctx context.Context, path string, args storage.OpPresign) (*storage.PresignedRequest, error) {
	return nil, storage.NewError(storage.KindUnsupported, "memory backend cannot presign requests").
		WithOperation("presign").WithService(scheme)
}

func (b *Backend) store(key string, data []byte, args storage.OpWrite) {
	sum := md5.Sum(data)
	contentType := args.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	b.mu.Lock()
	b.objects[key] = &object{
		data: data,
		meta: storage.Metadata{
			Mode:          storage.ModeFile,
			ContentLength: int64(len(data)),
			ContentType:   contentType,
			ETag:          `"` + hex.EncodeToString(sum[:]) + `"`,
			LastModified:  time.Now(),
		},
	}
	b.mu.Unlock()
	metrics.RecordBytesWritten(scheme, int64(len(data)))
}
