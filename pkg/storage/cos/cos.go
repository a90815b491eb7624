// Package cos implements an accessor for COS-style object stores over
// raw HTTP. Requests are signed with the HMAC-SHA1 query-string scheme,
// either into headers for calls the layer sends itself or into the URL
// for presigned requests.
package cos

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cjj2010/incubator-opendal/internal/logging"
	"github.com/cjj2010/incubator-opendal/internal/metrics"
	"github.com/cjj2010/incubator-opendal/pkg/storage"
	"github.com/cjj2010/incubator-opendal/pkg/storage/auth"
)

const scheme = "cos"

// Part size bounds of the multipart API.
const (
	multiMinSize = 1024 * 1024
	multiMaxSize = 5 * 1024 * 1024 * 1024
)

// Environment variables consulted when no explicit secrets are set.
const (
	envSecretID      = "TENCENTCLOUD_SECRET_ID"
	envSecretKey     = "TENCENTCLOUD_SECRET_KEY"
	envSecurityToken = "TENCENTCLOUD_SECURITY_TOKEN"
)

func init() {
	storage.Register(scheme, func(opts storage.Options) (storage.Accessor, error) {
		return New(Config{
			Root:      opts["root"],
			Bucket:    opts["bucket"],
			Endpoint:  opts["endpoint"],
			SecretID:  opts["secret_id"],
			SecretKey: opts["secret_key"],
		})
	})
}

// Config holds COS backend configuration. Bucket and Endpoint are
// required; explicit secrets win over the environment.
type Config struct {
	Root     string
	Bucket   string
	Endpoint string

	SecretID  string
	SecretKey string

	// DisableConfigLoad skips the environment credential source.
	DisableConfigLoad bool

	// Client overrides the shared HTTP client. Mainly for tests.
	Client *http.Client
}

// Backend is a COS accessor.
type Backend struct {
	core *core
}

// New validates the configuration and builds a COS backend. No network
// call is made here.
func New(cfg Config) (*Backend, error) {
	root := storage.NormalizeRoot(cfg.Root)

	if cfg.Bucket == "" {
		return nil, storage.NewError(storage.KindConfigInvalid, "bucket is not set").
			WithService(scheme)
	}
	if cfg.Endpoint == "" {
		return nil, storage.NewError(storage.KindConfigInvalid, "endpoint is not set").
			WithService(scheme)
	}

	u, err := url.Parse(cfg.Endpoint)
	if err != nil || u.Host == "" {
		return nil, storage.Errorf(storage.KindConfigInvalid, "endpoint %q is invalid", cfg.Endpoint).
			WithService(scheme).WithCause(err)
	}
	if u.Scheme == "" {
		u.Scheme = "https"
	}
	// The endpoint must not carry the bucket; trim it when it does.
	host := strings.TrimPrefix(u.Host, cfg.Bucket+".")
	endpoint := u.Scheme + "://" + cfg.Bucket + "." + host

	loaders := auth.ChainLoader{
		auth.NewStaticLoader(auth.Credential{
			AccessKeyID:     cfg.SecretID,
			SecretAccessKey: cfg.SecretKey,
		}),
	}
	if !cfg.DisableConfigLoad {
		loaders = append(loaders, &auth.EnvLoader{
			IDVar:     envSecretID,
			SecretVar: envSecretKey,
			TokenVar:  envSecurityToken,
		})
	}

	client := cfg.Client
	if client == nil {
		client = storage.NewHTTPClient()
	}

	logging.Debug("cos backend built",
		zap.String("root", root),
		zap.String("bucket", cfg.Bucket),
		zap.String("endpoint", endpoint))

	return &Backend{
		core: &core{
			bucket:   cfg.Bucket,
			root:     root,
			endpoint: endpoint,
			client:   client,
			loader:   auth.NewCachedLoader(scheme, loaders),
			signer:   NewSigner(),
		},
	}, nil
}

func (b *Backend) Info() storage.Info {
	return storage.Info{
		Scheme: scheme,
		Name:   b.core.bucket,
		Root:   b.core.root,
		Capability: storage.Capability{
			Stat:                true,
			Read:                true,
			ReadWithRange:       true,
			ReadWithSuffixRange: true,
			Write:               true,
			WriteCanEmpty:       true,
			WriteCanAppend:      true,
			WriteCanMulti:       true,
			WriteMultiMinSize:   multiMinSize,
			WriteMultiMaxSize:   multiMaxSize,
			CreateDir:           true,
			Delete:              true,
			Copy:                true,
			List:                true,
			ListWithDelimiter:   true,
			Presign:             true,
			PresignStat:         true,
			PresignRead:         true,
			PresignWrite:        true,
		},
	}
}

func (b *Backend) Stat(ctx context.Context, path string, _ storage.OpStat) (storage.Metadata, error) {
	// The root always exists; answer without touching the network.
	if storage.IsRootPath(path) {
		return storage.NewDirMetadata(), nil
	}

	start := time.Now()
	resp, err := b.core.headObject(ctx, path)
	if err != nil {
		metrics.RecordOperation(scheme, "stat", time.Since(start), false)
		return storage.Metadata{}, opError(err, "stat")
	}

	switch resp.StatusCode {
	case http.StatusOK:
		drain(resp)
		metrics.RecordOperation(scheme, "stat", time.Since(start), true)
		return metadataFromHeaders(resp.Header), nil
	case http.StatusNotFound:
		// An absent key under the directory convention still stats as a
		// directory; flat stores have no marker objects for most dirs.
		if storage.IsDirPath(path) {
			drain(resp)
			metrics.RecordOperation(scheme, "stat", time.Since(start), true)
			return storage.NewDirMetadata(), nil
		}
	}
	metrics.RecordOperation(scheme, "stat", time.Since(start), false)
	return storage.Metadata{}, opError(parseError(resp), "stat")
}

func (b *Backend) Read(ctx context.Context, path string, args storage.OpRead) (*storage.ReadResult, error) {
	start := time.Now()
	resp, err := b.core.getObject(ctx, path, args.Range)
	if err != nil {
		metrics.RecordOperation(scheme, "read", time.Since(start), false)
		return nil, opError(err, "read")
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusPartialContent:
		metrics.RecordOperation(scheme, "read", time.Since(start), true)
		if resp.ContentLength > 0 {
			metrics.RecordBytesRead(scheme, resp.ContentLength)
		}
		return &storage.ReadResult{Size: resp.ContentLength, Body: resp.Body}, nil
	case http.StatusRequestedRangeNotSatisfiable:
		// Range beyond the object is an empty read, not a failure.
		drain(resp)
		metrics.RecordOperation(scheme, "read", time.Since(start), true)
		return &storage.ReadResult{Size: 0, Body: http.NoBody}, nil
	}
	metrics.RecordOperation(scheme, "read", time.Since(start), false)
	return nil, opError(parseError(resp), "read")
}

func (b *Backend) Write(ctx context.Context, path string, args storage.OpWrite) (storage.Writer, error) {
	if args.Append {
		return storage.NewAppendWriter(&appender{core: b.core, path: path, args: args}), nil
	}
	return storage.NewMultipartWriter(&uploader{core: b.core, path: path, args: args}, b.Info().Capability), nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	start := time.Now()
	resp, err := b.core.deleteObject(ctx, path)
	if err != nil {
		metrics.RecordOperation(scheme, "delete", time.Since(start), false)
		return opError(err, "delete")
	}

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusAccepted, http.StatusNotFound:
		// Deleting what is already gone succeeds.
		drain(resp)
		metrics.RecordOperation(scheme, "delete", time.Since(start), true)
		return nil
	}
	metrics.RecordOperation(scheme, "delete", time.Since(start), false)
	return opError(parseError(resp), "delete")
}

func (b *Backend) Copy(ctx context.Context, from, to string) error {
	start := time.Now()
	resp, err := b.core.copyObject(ctx, from, to)
	if err != nil {
		metrics.RecordOperation(scheme, "copy", time.Since(start), false)
		return opError(err, "copy")
	}

	if resp.StatusCode == http.StatusOK {
		drain(resp)
		metrics.RecordOperation(scheme, "copy", time.Since(start), true)
		return nil
	}
	metrics.RecordOperation(scheme, "copy", time.Since(start), false)
	return opError(parseError(resp), "copy")
}

func (b *Backend) CreateDir(ctx context.Context, path string) error {
	if storage.IsRootPath(path) {
		return nil
	}

	start := time.Now()
	resp, err := b.core.putObject(ctx, ensureDirPath(path), storage.OpWrite{}, nil)
	if err != nil {
		metrics.RecordOperation(scheme, "create_dir", time.Since(start), false)
		return opError(err, "create_dir")
	}

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusConflict:
		// Conflict means the marker already exists, which is success.
		drain(resp)
		metrics.RecordOperation(scheme, "create_dir", time.Since(start), true)
		return nil
	}
	metrics.RecordOperation(scheme, "create_dir", time.Since(start), false)
	return opError(parseError(resp), "create_dir")
}

func (b *Backend) List(ctx context.Context, path string, args storage.OpList) (storage.Pager, error) {
	prefix := storage.BuildAbsPath(b.core.root, path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	fetch := func(ctx context.Context, token string) ([]storage.Entry, string, error) {
		return b.core.listPage(ctx, prefix, args.Delimiter, token)
	}
	return storage.NewTokenPager(fetch, args.Limit), nil
}

func (b *Backend) Presign(ctx context.Context, path string, args storage.OpPresign) (*storage.PresignedRequest, error) {
	var (
		req *http.Request
		err error
	)
	switch args.Operation {
	case storage.PresignStat:
		req, err = b.core.newRequest(ctx, http.MethodHead, path, "", nil)
	case storage.PresignRead:
		req, err = b.core.newRequest(ctx, http.MethodGet, path, "", nil)
	case storage.PresignWrite:
		req, err = b.core.newRequest(ctx, http.MethodPut, path, "", nil)
	default:
		return nil, storage.Errorf(storage.KindUnsupported, "operation %q cannot be presigned", args.Operation).
			WithOperation("presign").WithService(scheme)
	}
	if err != nil {
		return nil, opError(err, "presign")
	}

	if err := b.core.signQuery(ctx, req, args.Expire); err != nil {
		return nil, opError(err, "presign")
	}

	return &storage.PresignedRequest{
		Method: req.Method,
		URL:    req.URL.String(),
		Header: req.Header,
	}, nil
}

func ensureDirPath(path string) string {
	if strings.HasSuffix(path, "/") {
		return path
	}
	return path + "/"
}

func opError(err error, op string) error {
	var se *storage.Error
	if e, ok := err.(*storage.Error); ok {
		se = e
	} else {
		se = storage.NewError(storage.KindUnexpected, "request failed").WithCause(err)
	}
	return se.WithOperation(op).WithService(scheme)
}
