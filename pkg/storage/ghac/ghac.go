// Package ghac implements an accessor for GitHub-Actions-cache-style
// services. Objects are cache entries addressed by key: reads resolve
// the key to a pre-authorized archive location first, writes go through
// the reserve/upload/commit protocol with byte-range chunks.
package ghac

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cjj2010/incubator-opendal/internal/logging"
	"github.com/cjj2010/incubator-opendal/internal/metrics"
	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

const scheme = "ghac"

const (
	// cacheURLBase is the API prefix under the cache endpoint.
	cacheURLBase = "_apis/artifactcache"
	// acceptHeader pins the cache API version.
	acceptHeader = "application/json;api-version=6.0-preview.1"
	// apiVersion pins the repository API used for delete.
	apiVersion = "2022-11-28"

	defaultVersion = "opendal"
	defaultAPIURL  = "https://api.github.com"
)

// Environment provided by the runner. Explicit config wins over these.
const (
	envCacheURL     = "ACTIONS_CACHE_URL"
	envRuntimeToken = "ACTIONS_RUNTIME_TOKEN"
	envAPIURL       = "GITHUB_API_URL"
	envAPIToken     = "GITHUB_TOKEN"
	envRepository   = "GITHUB_REPOSITORY"
)

func init() {
	storage.Register(scheme, func(opts storage.Options) (storage.Accessor, error) {
		return New(Config{
			Root:         opts["root"],
			Version:      opts["version"],
			Endpoint:     opts["endpoint"],
			RuntimeToken: opts["runtime_token"],
		})
	})
}

// Config holds ghac backend configuration. Endpoint and RuntimeToken
// fall back to the runner environment and are required; the delete
// surface needs the repository API token and repository name, which
// come from the environment only.
type Config struct {
	Root string

	// Version namespaces cache keys. Entries written under one version
	// are invisible to others.
	Version string

	Endpoint     string
	RuntimeToken string

	// Client overrides the shared HTTP client. Mainly for tests.
	Client *http.Client
}

// Backend is a ghac accessor.
type Backend struct {
	root    string
	version string

	cacheURL     string
	runtimeToken string

	apiURL   string
	apiToken string
	repo     string

	client *http.Client
}

func valueOrEnv(explicit, envVar string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}
	return "", storage.Errorf(storage.KindConfigInvalid, "%s not found, maybe not in github action environment?", envVar).
		WithService(scheme)
}

// New validates the configuration and builds a ghac backend.
func New(cfg Config) (*Backend, error) {
	root := storage.NormalizeRoot(cfg.Root)

	cacheURL, err := valueOrEnv(cfg.Endpoint, envCacheURL)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(cacheURL, "/") {
		cacheURL += "/"
	}
	runtimeToken, err := valueOrEnv(cfg.RuntimeToken, envRuntimeToken)
	if err != nil {
		return nil, err
	}

	version := cfg.Version
	if version == "" {
		version = defaultVersion
	}
	apiURL := os.Getenv(envAPIURL)
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	client := cfg.Client
	if client == nil {
		client = storage.NewHTTPClient()
	}

	logging.Debug("ghac backend built",
		zap.String("root", root),
		zap.String("version", version))

	return &Backend{
		root:         root,
		version:      version,
		cacheURL:     cacheURL,
		runtimeToken: runtimeToken,
		apiURL:       apiURL,
		apiToken:     os.Getenv(envAPIToken),
		repo:         os.Getenv(envRepository),
		client:       client,
	}, nil
}

func (b *Backend) Info() storage.Info {
	return storage.Info{
		Scheme: scheme,
		Name:   b.version,
		Root:   b.root,
		Capability: storage.Capability{
			Stat:          true,
			Read:          true,
			ReadWithRange: true,
			Write:         true,
			WriteCanEmpty: true,
			WriteCanMulti: true,
			// Chunks carry explicit byte ranges, so any part size works.
			WriteMultiMinSize: 1,
			CreateDir:         true,
			Delete:            true,
		},
	}
}

func (b *Backend) Stat(ctx context.Context, path string, _ storage.OpStat) (storage.Metadata, error) {
	if storage.IsRootPath(path) {
		return storage.NewDirMetadata(), nil
	}

	start := time.Now()
	location, err := b.queryLocation(ctx, path)
	if err != nil {
		if storage.IsNotFound(err) && storage.IsDirPath(path) {
			metrics.RecordOperation(scheme, "stat", time.Since(start), true)
			return storage.NewDirMetadata(), nil
		}
		metrics.RecordOperation(scheme, "stat", time.Since(start), false)
		return storage.Metadata{}, opError(err, "stat")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, location, nil)
	if err != nil {
		return storage.Metadata{}, opError(err, "stat")
	}
	resp, err := b.client.Do(req)
	if err != nil {
		metrics.RecordOperation(scheme, "stat", time.Since(start), false)
		return storage.Metadata{}, opError(err, "stat")
	}
	if resp.StatusCode != http.StatusOK {
		metrics.RecordOperation(scheme, "stat", time.Since(start), false)
		return storage.Metadata{}, opError(storage.ErrorFromResponse(resp), "stat")
	}
	drain(resp)
	metrics.RecordOperation(scheme, "stat", time.Since(start), true)
	return metadataFromHeaders(resp.Header), nil
}

func (b *Backend) Read(ctx context.Context, path string, args storage.OpRead) (*storage.ReadResult, error) {
	// The archive store behind the cache cannot express suffix ranges.
	if args.Range.IsSuffix() {
		return nil, storage.NewError(storage.KindUnsupported, "suffix range reads are not supported").
			WithOperation("read").WithService(scheme)
	}

	start := time.Now()
	location, err := b.queryLocation(ctx, path)
	if err != nil {
		metrics.RecordOperation(scheme, "read", time.Since(start), false)
		return nil, opError(err, "read")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, opError(err, "read")
	}
	if !args.Range.IsFull() {
		req.Header.Set("Range", args.Range.Header())
	}
	resp, err := b.client.Do(req)
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
		drain(resp)
		metrics.RecordOperation(scheme, "read", time.Since(start), true)
		return &storage.ReadResult{Size: 0, Body: http.NoBody}, nil
	}
	metrics.RecordOperation(scheme, "read", time.Since(start), false)
	return nil, opError(storage.ErrorFromResponse(resp), "read")
}

func (b *Backend) Write(ctx context.Context, path string, args storage.OpWrite) (storage.Writer, error) {
	if args.Append {
		return nil, storage.NewError(storage.KindUnsupported, "append writes are not supported").
			WithOperation("write").WithService(scheme)
	}
	return storage.NewMultipartWriter(&uploader{b: b, path: path}, b.Info().Capability), nil
}

// Delete removes a cache entry through the repository API. It needs the
// workflow token, which is distinct from the runtime token every other
// operation uses.
func (b *Backend) Delete(ctx context.Context, path string) error {
	if b.apiToken == "" {
		return storage.NewError(storage.KindPermissionDenied, "github token is not configured, delete is permission denied").
			WithOperation("delete").WithService(scheme)
	}

	key := storage.BuildAbsPath(b.root, path)
	u := fmt.Sprintf("%s/repos/%s/actions/caches?key=%s", b.apiURL, b.repo, storage.PercentEncodePath(key))
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return opError(err, "delete")
	}
	req.Header.Set("Authorization", "Bearer "+b.apiToken)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		metrics.RecordOperation(scheme, "delete", time.Since(start), false)
		return opError(err, "delete")
	}

	// Deleting what is already gone succeeds.
	if resp.StatusCode/100 == 2 || resp.StatusCode == http.StatusNotFound {
		drain(resp)
		metrics.RecordOperation(scheme, "delete", time.Since(start), true)
		return nil
	}
	metrics.RecordOperation(scheme, "delete", time.Since(start), false)
	return opError(storage.ErrorFromResponse(resp), "delete")
}

func (b *Backend) Copy(ctx context.Context, from, to string) error {
	return storage.NewError(storage.KindUnsupported, "copy is not supported").
		WithOperation("copy").WithService(scheme)
}

// CreateDir marks a path as present. Directory-suffixed paths need no
// entry at all; bare paths get a one-byte placeholder, treating a
// reserve conflict as already created.
func (b *Backend) CreateDir(ctx context.Context, path string) error {
	if storage.IsDirPath(path) {
		return nil
	}

	start := time.Now()
	cacheID, conflict, err := b.reserve(ctx, path)
	if err != nil {
		metrics.RecordOperation(scheme, "create_dir", time.Since(start), false)
		return opError(err, "create_dir")
	}
	if conflict {
		// The entry already exists, which is what we wanted.
		metrics.RecordOperation(scheme, "create_dir", time.Since(start), true)
		return nil
	}

	if err := b.upload(ctx, cacheID, 0, []byte{0}); err != nil {
		metrics.RecordOperation(scheme, "create_dir", time.Since(start), false)
		return opError(err, "create_dir")
	}
	if err := b.commit(ctx, cacheID, 1); err != nil {
		metrics.RecordOperation(scheme, "create_dir", time.Since(start), false)
		return opError(err, "create_dir")
	}
	metrics.RecordOperation(scheme, "create_dir", time.Since(start), true)
	return nil
}

func (b *Backend) List(ctx context.Context, path string, args storage.OpList) (storage.Pager, error) {
	return nil, storage.NewError(storage.KindUnsupported, "list is not supported").
		WithOperation("list").WithService(scheme)
}

func (b *Backend) Presign(ctx context.Context, path string, args storage.OpPresign) (*storage.PresignedRequest, error) {
	return nil, storage.NewError(storage.KindUnsupported, "presign is not supported").
		WithOperation("presign").WithService(scheme)
}

type queryResponse struct {
	ArchiveLocation string `json:"archiveLocation"`
}

type reserveRequest struct {
	Key     string `json:"key"`
	Version string `json:"version"`
}

type reserveResponse struct {
	CacheID int64 `json:"cacheId"`
}

type commitRequest struct {
	Size int64 `json:"size"`
}

// queryLocation resolves a path to its pre-authorized archive URL. A
// cache miss is NotFound.
func (b *Backend) queryLocation(ctx context.Context, path string) (string, error) {
	key := storage.BuildAbsPath(b.root, path)
	u := fmt.Sprintf("%s%s/cache?keys=%s&version=%s", b.cacheURL, cacheURLBase, storage.PercentEncodePath(key), b.version)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	b.setCacheHeaders(req)

	resp, err := b.client.Do(req)
	if err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var payload queryResponse
		err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return "", storage.NewError(storage.KindUnexpected, "decoding query response failed").WithCause(err)
		}
		if payload.ArchiveLocation == "" {
			return "", storage.NewError(storage.KindUnexpected, "query response carries no archive location")
		}
		return payload.ArchiveLocation, nil
	case http.StatusNoContent:
		drain(resp)
		return "", storage.Errorf(storage.KindNotFound, "cache entry %q does not exist", path)
	}
	return "", storage.ErrorFromResponse(resp)
}

// reserve opens an upload session for a key and returns the cache id.
// conflict reports that the key already has a committed or in-flight
// entry.
func (b *Backend) reserve(ctx context.Context, path string) (cacheID int64, conflict bool, err error) {
	key := storage.BuildAbsPath(b.root, path)
	body, err := json.Marshal(reserveRequest{Key: key, Version: b.version})
	if err != nil {
		return 0, false, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.cacheURL+cacheURLBase+"/caches", bytes.NewReader(body))
	if err != nil {
		return 0, false, err
	}
	b.setCacheHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return 0, false, err
	}

	switch {
	case resp.StatusCode/100 == 2:
		var payload reserveResponse
		err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&payload)
		resp.Body.Close()
		if err != nil {
			return 0, false, storage.NewError(storage.KindUnexpected, "decoding reserve response failed").WithCause(err)
		}
		return payload.CacheID, false, nil
	case resp.StatusCode == http.StatusConflict:
		drain(resp)
		return 0, true, nil
	}
	return 0, false, storage.ErrorFromResponse(resp)
}

// upload sends one chunk of the session at the given offset.
func (b *Backend) upload(ctx context.Context, cacheID, offset int64, body []byte) error {
	u := fmt.Sprintf("%s%s/caches/%d", b.cacheURL, cacheURLBase, cacheID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	b.setCacheHeaders(req)
	req.ContentLength = int64(len(body))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.Header.Set("Content-Range", storage.ContentRangeHeader(offset, int64(len(body))))

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return storage.ErrorFromResponse(resp)
	}
	drain(resp)
	metrics.RecordBytesWritten(scheme, int64(len(body)))
	return nil
}

// commit finishes the session; the entry becomes readable only now.
func (b *Backend) commit(ctx context.Context, cacheID, size int64) error {
	body, err := json.Marshal(commitRequest{Size: size})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s%s/caches/%d", b.cacheURL, cacheURLBase, cacheID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	b.setCacheHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	if resp.StatusCode/100 != 2 {
		return storage.ErrorFromResponse(resp)
	}
	drain(resp)
	return nil
}

func (b *Backend) setCacheHeaders(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+b.runtimeToken)
	req.Header.Set("Accept", acceptHeader)
}

func metadataFromHeaders(h http.Header) storage.Metadata {
	meta := storage.Metadata{
		Mode:        storage.ModeFile,
		ContentType: h.Get("Content-Type"),
		ETag:        h.Get("ETag"),
	}
	if v := h.Get("Content-Length"); v != "" {
		fmt.Sscanf(v, "%d", &meta.ContentLength)
	}
	if v := h.Get("Last-Modified"); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			meta.LastModified = t
		}
	}
	return meta
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
	resp.Body.Close()
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
