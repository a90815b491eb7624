// Package s3 implements an accessor for S3-compatible object stores on
// top of the AWS SDK. The SDK owns transport and request signing;
// presigned requests come from its presign client with an explicit
// expiry.
package s3

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/cjj2010/incubator-opendal/internal/logging"
	"github.com/cjj2010/incubator-opendal/internal/metrics"
	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

const scheme = "s3"

// Part size bounds of the multipart API.
const (
	multiMinSize = 5 * 1024 * 1024
	multiMaxSize = 5 * 1024 * 1024 * 1024
)

func init() {
	storage.Register(scheme, func(opts storage.Options) (storage.Accessor, error) {
		return New(context.Background(), Config{
			Root:            opts["root"],
			Bucket:          opts["bucket"],
			Region:          opts["region"],
			Endpoint:        opts["endpoint"],
			AccessKeyID:     opts["access_key_id"],
			SecretAccessKey: opts["secret_access_key"],
			SecurityToken:   opts["security_token"],
		})
	})
}

// Config holds S3 backend configuration. Bucket is required. With no
// explicit keys the SDK's default chain applies: environment, shared
// config, then instance metadata.
type Config struct {
	Root   string
	Bucket string
	Region string

	// Endpoint points at an S3-compatible service. Empty means AWS.
	Endpoint string

	AccessKeyID     string
	SecretAccessKey string
	SecurityToken   string
}

// api is the slice of the SDK client the backend calls. Tests fake it.
type api interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, in *s3.CopyObjectInput, opts ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
}

// presignAPI is the slice of the SDK presign client the backend calls.
type presignAPI interface {
	PresignHeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Backend is an S3 accessor.
type Backend struct {
	root   string
	bucket string

	client  api
	presign presignAPI
}

// New validates the configuration, resolves the SDK credential chain
// and builds an S3 backend.
func New(ctx context.Context, cfg Config) (*Backend, error) {
	root := storage.NormalizeRoot(cfg.Root)

	if cfg.Bucket == "" {
		return nil, storage.NewError(storage.KindConfigInvalid, "bucket is not set").
			WithService(scheme)
	}

	loadOpts := []func(*config.LoadOptions) error{}
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	// Explicit keys win over the SDK's default chain.
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SecurityToken),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, storage.NewError(storage.KindConfigInvalid, "loading aws config failed").
			WithService(scheme).WithCause(err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	logging.Debug("s3 backend built",
		zap.String("root", root),
		zap.String("bucket", cfg.Bucket),
		zap.String("endpoint", cfg.Endpoint))

	return &Backend{
		root:    root,
		bucket:  cfg.Bucket,
		client:  client,
		presign: s3.NewPresignClient(client),
	}, nil
}

func (b *Backend) Info() storage.Info {
	return storage.Info{
		Scheme: scheme,
		Name:   b.bucket,
		Root:   b.root,
		Capability: storage.Capability{
			Stat:                true,
			Read:                true,
			ReadWithRange:       true,
			ReadWithSuffixRange: true,
			Write:               true,
			WriteCanEmpty:       true,
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

func (b *Backend) key(path string) string {
	return storage.BuildAbsPath(b.root, path)
}

func (b *Backend) Stat(ctx context.Context, path string, _ storage.OpStat) (storage.Metadata, error) {
	if storage.IsRootPath(path) {
		return storage.NewDirMetadata(), nil
	}

	start := time.Now()
	out, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		se := normalize(err)
		if se.Kind == storage.KindNotFound && storage.IsDirPath(path) {
			metrics.RecordOperation(scheme, "stat", time.Since(start), true)
			return storage.NewDirMetadata(), nil
		}
		metrics.RecordOperation(scheme, "stat", time.Since(start), false)
		return storage.Metadata{}, se.WithOperation("stat").WithService(scheme)
	}
	metrics.RecordOperation(scheme, "stat", time.Since(start), true)

	meta := storage.Metadata{
		Mode:          storage.ModeFile,
		ContentLength: aws.ToInt64(out.ContentLength),
		ContentType:   aws.ToString(out.ContentType),
		ETag:          aws.ToString(out.ETag),
	}
	if out.LastModified != nil {
		meta.LastModified = *out.LastModified
	}
	return meta, nil
}

func (b *Backend) Read(ctx context.Context, path string, args storage.OpRead) (*storage.ReadResult, error) {
	in := &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	}
	if !args.Range.IsFull() {
		in.Range = aws.String(args.Range.Header())
	}

	start := time.Now()
	out, err := b.client.GetObject(ctx, in)
	if err != nil {
		se := normalize(err)
		// A range past the end of the object is an empty read.
		if isInvalidRange(err) {
			metrics.RecordOperation(scheme, "read", time.Since(start), true)
			return &storage.ReadResult{Size: 0, Body: http.NoBody}, nil
		}
		metrics.RecordOperation(scheme, "read", time.Since(start), false)
		return nil, se.WithOperation("read").WithService(scheme)
	}
	metrics.RecordOperation(scheme, "read", time.Since(start), true)

	size := aws.ToInt64(out.ContentLength)
	if size > 0 {
		metrics.RecordBytesRead(scheme, size)
	}
	return &storage.ReadResult{Size: size, Body: out.Body}, nil
}

func (b *Backend) Write(ctx context.Context, path string, args storage.OpWrite) (storage.Writer, error) {
	if args.Append {
		return nil, storage.NewError(storage.KindUnsupported, "append writes are not supported").
			WithOperation("write").WithService(scheme)
	}
	return storage.NewMultipartWriter(&uploader{b: b, key: b.key(path), args: args}, b.Info().Capability), nil
}

func (b *Backend) Delete(ctx context.Context, path string) error {
	start := time.Now()
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(path)),
	})
	if err != nil {
		se := normalize(err)
		// Deleting what is already gone succeeds.
		if se.Kind == storage.KindNotFound {
			metrics.RecordOperation(scheme, "delete", time.Since(start), true)
			return nil
		}
		metrics.RecordOperation(scheme, "delete", time.Since(start), false)
		return se.WithOperation("delete").WithService(scheme)
	}
	metrics.RecordOperation(scheme, "delete", time.Since(start), true)
	return nil
}

func (b *Backend) Copy(ctx context.Context, from, to string) error {
	start := time.Now()
	_, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(b.key(to)),
		CopySource: aws.String(b.bucket + "/" + storage.PercentEncodePath(b.key(from))),
	})
	if err != nil {
		metrics.RecordOperation(scheme, "copy", time.Since(start), false)
		return normalize(err).WithOperation("copy").WithService(scheme)
	}
	metrics.RecordOperation(scheme, "copy", time.Since(start), true)
	return nil
}

func (b *Backend) CreateDir(ctx context.Context, path string) error {
	if storage.IsRootPath(path) {
		return nil
	}
	key := b.key(path)
	if !strings.HasSuffix(key, "/") {
		key += "/"
	}

	start := time.Now()
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           aws.String(key),
		ContentLength: aws.Int64(0),
	})
	if err != nil {
		metrics.RecordOperation(scheme, "create_dir", time.Since(start), false)
		return normalize(err).WithOperation("create_dir").WithService(scheme)
	}
	metrics.RecordOperation(scheme, "create_dir", time.Since(start), true)
	return nil
}

func (b *Backend) List(ctx context.Context, path string, args storage.OpList) (storage.Pager, error) {
	prefix := b.key(path)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	fetch := func(ctx context.Context, token string) ([]storage.Entry, string, error) {
		return b.listPage(ctx, prefix, args.Delimiter, token)
	}
	return storage.NewTokenPager(fetch, args.Limit), nil
}

// listPage fetches one ListObjectsV2 page and maps keys back to
// root-relative entry paths.
func (b *Backend) listPage(ctx context.Context, prefix, delimiter, token string) ([]storage.Entry, string, error) {
	in := &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(prefix),
	}
	if delimiter != "" {
		in.Delimiter = aws.String(delimiter)
	}
	if token != "" {
		in.ContinuationToken = aws.String(token)
	}

	out, err := b.client.ListObjectsV2(ctx, in)
	if err != nil {
		return nil, "", normalize(err).WithOperation("list").WithService(scheme)
	}

	rootPrefix := strings.TrimPrefix(b.root, "/")
	entries := make([]storage.Entry, 0, len(out.Contents)+len(out.CommonPrefixes))
	for _, o := range out.Contents {
		key := aws.ToString(o.Key)
		if key == prefix {
			continue
		}
		meta := storage.Metadata{
			Mode:          storage.ModeFile,
			ContentLength: aws.ToInt64(o.Size),
			ETag:          aws.ToString(o.ETag),
		}
		if strings.HasSuffix(key, "/") {
			meta = storage.NewDirMetadata()
		}
		if o.LastModified != nil {
			meta.LastModified = *o.LastModified
		}
		entries = append(entries, storage.Entry{
			Path:     strings.TrimPrefix(key, rootPrefix),
			Metadata: meta,
		})
	}
	for _, p := range out.CommonPrefixes {
		entries = append(entries, storage.Entry{
			Path:     strings.TrimPrefix(aws.ToString(p.Prefix), rootPrefix),
			Metadata: storage.NewDirMetadata(),
		})
	}

	next := ""
	if aws.ToBool(out.IsTruncated) {
		next = aws.ToString(out.NextContinuationToken)
	}
	return entries, next, nil
}

func (b *Backend) Presign(ctx context.Context, path string, args storage.OpPresign) (*storage.PresignedRequest, error) {
	key := b.key(path)
	expire := func(o *s3.PresignOptions) {
		if args.Expire > 0 {
			o.Expires = args.Expire
		}
	}

	var (
		signed *v4.PresignedHTTPRequest
		err    error
	)
	switch args.Operation {
	case storage.PresignStat:
		signed, err = b.presign.PresignHeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(b.bucket), Key: aws.String(key),
		}, expire)
	case storage.PresignRead:
		signed, err = b.presign.PresignGetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(b.bucket), Key: aws.String(key),
		}, expire)
	case storage.PresignWrite:
		signed, err = b.presign.PresignPutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(b.bucket), Key: aws.String(key),
		}, expire)
	default:
		return nil, storage.Errorf(storage.KindUnsupported, "operation %q cannot be presigned", args.Operation).
			WithOperation("presign").WithService(scheme)
	}
	if err != nil {
		return nil, normalize(err).WithOperation("presign").WithService(scheme)
	}

	return &storage.PresignedRequest{
		Method: signed.Method,
		URL:    signed.URL,
		Header: signed.SignedHeader,
	}, nil
}

// normalize collapses an SDK error into the canonical taxonomy.
func normalize(err error) *storage.Error {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return storage.NewError(storage.KindNotFound, "object does not exist").WithCause(err)
	}

	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NoSuchKey", "NotFound", "NoSuchBucket", "NoSuchUpload":
			return storage.NewError(storage.KindNotFound, "object does not exist").WithCause(err)
		case "AccessDenied", "InvalidAccessKeyId", "SignatureDoesNotMatch", "ExpiredToken":
			return storage.NewError(storage.KindPermissionDenied, "service rejected the credentials").WithCause(err)
		}
		return storage.Errorf(storage.KindUnexpected, "service returned %s", ae.ErrorCode()).WithCause(err)
	}
	return storage.NewError(storage.KindUnexpected, "request failed").WithCause(err)
}

func isInvalidRange(err error) bool {
	var ae smithy.APIError
	return errors.As(err, &ae) && ae.ErrorCode() == "InvalidRange"
}
