package s3

import (
	"bytes"
	"context"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/cjj2010/incubator-opendal/internal/metrics"
	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

// uploader implements storage.MultipartUploader over the SDK multipart
// calls.
type uploader struct {
	b    *Backend
	key  string
	args storage.OpWrite
}

func (u *uploader) input() (bucket, key *string) {
	return aws.String(u.b.bucket), aws.String(u.key)
}

func (u *uploader) PutOnce(ctx context.Context, body []byte) error {
	bucket, key := u.input()
	in := &s3.PutObjectInput{
		Bucket:        bucket,
		Key:           key,
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	}
	if u.args.ContentType != "" {
		in.ContentType = aws.String(u.args.ContentType)
	}
	if u.args.CacheControl != "" {
		in.CacheControl = aws.String(u.args.CacheControl)
	}
	if u.args.ContentDisposition != "" {
		in.ContentDisposition = aws.String(u.args.ContentDisposition)
	}

	if _, err := u.b.client.PutObject(ctx, in); err != nil {
		return normalize(err).WithOperation("write").WithService(scheme)
	}
	metrics.RecordBytesWritten(scheme, int64(len(body)))
	return nil
}

func (u *uploader) InitiateMultipart(ctx context.Context) (string, error) {
	bucket, key := u.input()
	in := &s3.CreateMultipartUploadInput{Bucket: bucket, Key: key}
	if u.args.ContentType != "" {
		in.ContentType = aws.String(u.args.ContentType)
	}

	out, err := u.b.client.CreateMultipartUpload(ctx, in)
	if err != nil {
		return "", normalize(err).WithOperation("write").WithService(scheme)
	}
	id := aws.ToString(out.UploadId)
	if id == "" {
		return "", storage.NewError(storage.KindUnexpected, "create response carries no upload id").
			WithOperation("write").WithService(scheme)
	}
	return id, nil
}

func (u *uploader) UploadPart(ctx context.Context, uploadID string, partNumber int, _ int64, body []byte) (storage.Part, error) {
	bucket, key := u.input()
	out, err := u.b.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        bucket,
		Key:           key,
		UploadId:      aws.String(uploadID),
		PartNumber:    aws.Int32(int32(partNumber)),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return storage.Part{}, normalize(err).WithOperation("write").WithService(scheme)
	}
	metrics.RecordBytesWritten(scheme, int64(len(body)))
	return storage.Part{PartNumber: partNumber, ETag: aws.ToString(out.ETag)}, nil
}

func (u *uploader) CompleteMultipart(ctx context.Context, uploadID string, parts []storage.Part, _ int64) error {
	sorted := make([]storage.Part, len(parts))
	copy(sorted, parts)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].PartNumber < sorted[j].PartNumber })

	completed := make([]types.CompletedPart, len(sorted))
	for i, p := range sorted {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(int32(p.PartNumber)),
			ETag:       aws.String(p.ETag),
		}
	}

	bucket, key := u.input()
	_, err := u.b.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          bucket,
		Key:             key,
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return normalize(err).WithOperation("write").WithService(scheme)
	}
	return nil
}
