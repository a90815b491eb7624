package s3

import (
	"context"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

// fakeAPI records calls and returns canned responses.
type fakeAPI struct {
	headFn   func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	getFn    func(*s3.GetObjectInput) (*s3.GetObjectOutput, error)
	listFn   func(*s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error)
	deleteFn func(*s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error)

	puts      []*s3.PutObjectInput
	creates   []*s3.CreateMultipartUploadInput
	parts     []*s3.UploadPartInput
	completes []*s3.CompleteMultipartUploadInput
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return f.headFn(in)
}

func (f *fakeAPI) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return f.getFn(in)
}

func (f *fakeAPI) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts = append(f.puts, in)
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	if f.deleteFn != nil {
		return f.deleteFn(in)
	}
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) CopyObject(_ context.Context, in *s3.CopyObjectInput, _ ...func(*s3.Options)) (*s3.CopyObjectOutput, error) {
	return &s3.CopyObjectOutput{}, nil
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	return f.listFn(in)
}

func (f *fakeAPI) CreateMultipartUpload(_ context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	f.creates = append(f.creates, in)
	return &s3.CreateMultipartUploadOutput{UploadId: aws.String("upload-1")}, nil
}

func (f *fakeAPI) UploadPart(_ context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	f.parts = append(f.parts, in)
	return &s3.UploadPartOutput{ETag: aws.String("etag")}, nil
}

func (f *fakeAPI) CompleteMultipartUpload(_ context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	f.completes = append(f.completes, in)
	return &s3.CompleteMultipartUploadOutput{}, nil
}

type fakePresign struct{}

func (fakePresign) PresignHeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{Method: http.MethodHead, URL: "https://signed.example.com/head"}, nil
}

func (fakePresign) PresignGetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{Method: http.MethodGet, URL: "https://signed.example.com/get"}, nil
}

func (fakePresign) PresignPutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return &v4.PresignedHTTPRequest{Method: http.MethodPut, URL: "https://signed.example.com/put"}, nil
}

func testBackend(f *fakeAPI) *Backend {
	return &Backend{root: "/data/", bucket: "bkt", client: f, presign: fakePresign{}}
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	if storage.ErrorKind(err) != storage.KindConfigInvalid {
		t.Fatalf("err = %v, want ConfigInvalid", err)
	}
}

func TestStat(t *testing.T) {
	now := time.Now()
	f := &fakeAPI{headFn: func(in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		if aws.ToString(in.Key) == "data/file.txt" {
			return &s3.HeadObjectOutput{
				ContentLength: aws.Int64(42),
				ContentType:   aws.String("text/plain"),
				ETag:          aws.String(`"abc"`),
				LastModified:  &now,
			}, nil
		}
		return nil, &types.NotFound{}
	}}
	b := testBackend(f)
	ctx := context.Background()

	meta, err := b.Stat(ctx, "file.txt", storage.OpStat{})
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.ContentLength != 42 || meta.ContentType != "text/plain" {
		t.Errorf("meta = %+v", meta)
	}

	if _, err := b.Stat(ctx, "missing.txt", storage.OpStat{}); !storage.IsNotFound(err) {
		t.Errorf("err = %v, want NotFound", err)
	}

	meta, err = b.Stat(ctx, "missing/", storage.OpStat{})
	if err != nil {
		t.Fatalf("Stat(missing/): %v", err)
	}
	if !meta.Mode.IsDir() {
		t.Errorf("mode = %v, want dir", meta.Mode)
	}

	// Root stat needs no call at all.
	f.headFn = func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		t.Error("unexpected HeadObject for root")
		return nil, &types.NotFound{}
	}
	if meta, err := b.Stat(ctx, "/", storage.OpStat{}); err != nil || !meta.Mode.IsDir() {
		t.Errorf("root stat = %+v, %v", meta, err)
	}
}

func TestReadPassesRangeAndDegradesOverrun(t *testing.T) {
	var gotRange string
	f := &fakeAPI{getFn: func(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
		gotRange = aws.ToString(in.Range)
		if gotRange == "bytes=100-" {
			return nil, &smithy.GenericAPIError{Code: "InvalidRange"}
		}
		return &s3.GetObjectOutput{
			Body:          io.NopCloser(strings.NewReader("234")),
			ContentLength: aws.Int64(3),
		}, nil
	}}
	b := testBackend(f)
	ctx := context.Background()

	res, err := b.Read(ctx, "r.bin", storage.OpRead{Range: storage.NewByteRange(2, 3)})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if gotRange != "bytes=2-4" {
		t.Errorf("range = %q", gotRange)
	}
	data, _ := io.ReadAll(res.Body)
	if string(data) != "234" {
		t.Errorf("read = %q", data)
	}

	res, err = b.Read(ctx, "r.bin", storage.OpRead{Range: storage.NewByteRange(100, 0)})
	if err != nil {
		t.Fatalf("overrun Read: %v", err)
	}
	if res.Size != 0 {
		t.Errorf("overrun size = %d", res.Size)
	}
}

func TestSmallWriteUsesPutObject(t *testing.T) {
	f := &fakeAPI{}
	b := testBackend(f)
	ctx := context.Background()

	w, err := b.Write(ctx, "small.txt", storage.OpWrite{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(ctx, []byte("tiny")); err != nil {
		t.Fatalf("writer.Write: %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(f.puts) != 1 || len(f.creates) != 0 {
		t.Fatalf("puts = %d creates = %d", len(f.puts), len(f.creates))
	}
	if aws.ToString(f.puts[0].Key) != "data/small.txt" {
		t.Errorf("key = %q", aws.ToString(f.puts[0].Key))
	}
	if aws.ToString(f.puts[0].ContentType) != "text/plain" {
		t.Errorf("content type = %q", aws.ToString(f.puts[0].ContentType))
	}
}

func TestLargeWriteUsesMultipart(t *testing.T) {
	const mib = 1024 * 1024
	f := &fakeAPI{}
	b := testBackend(f)
	ctx := context.Background()

	w, err := b.Write(ctx, "big.bin", storage.OpWrite{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	// 5 MiB reaches the part threshold, the tail flushes on close.
	if err := w.Write(ctx, make([]byte, 5*mib)); err != nil {
		t.Fatalf("writer.Write: %v", err)
	}
	if err := w.Write(ctx, make([]byte, 2*mib)); err != nil {
		t.Fatalf("writer.Write: %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(f.creates) != 1 || len(f.completes) != 1 {
		t.Fatalf("creates = %d completes = %d", len(f.creates), len(f.completes))
	}
	if len(f.parts) != 2 {
		t.Fatalf("parts = %d", len(f.parts))
	}
	if aws.ToInt32(f.parts[0].PartNumber) != 1 || aws.ToInt64(f.parts[0].ContentLength) != 5*mib {
		t.Errorf("part 1 = %+v", f.parts[0])
	}
	if aws.ToInt32(f.parts[1].PartNumber) != 2 || aws.ToInt64(f.parts[1].ContentLength) != 2*mib {
		t.Errorf("part 2 = %+v", f.parts[1])
	}
	completed := f.completes[0].MultipartUpload.Parts
	if len(completed) != 2 || aws.ToInt32(completed[0].PartNumber) != 1 {
		t.Errorf("completed parts = %+v", completed)
	}
}

func TestAppendUnsupported(t *testing.T) {
	b := testBackend(&fakeAPI{})
	_, err := b.Write(context.Background(), "x", storage.OpWrite{Append: true})
	if !storage.IsUnsupported(err) {
		t.Fatalf("err = %v, want Unsupported", err)
	}
}

func TestDeleteAbsentSucceeds(t *testing.T) {
	f := &fakeAPI{deleteFn: func(*s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
		return nil, &types.NoSuchKey{}
	}}
	b := testBackend(f)

	if err := b.Delete(context.Background(), "absent.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestListPagerFollowsContinuationTokens(t *testing.T) {
	f := &fakeAPI{listFn: func(in *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
		if aws.ToString(in.Prefix) != "data/logs/" {
			return nil, &smithy.GenericAPIError{Code: "NoSuchBucket"}
		}
		if in.ContinuationToken == nil {
			return &s3.ListObjectsV2Output{
				IsTruncated:           aws.Bool(true),
				NextContinuationToken: aws.String("t2"),
				Contents: []types.Object{
					{Key: aws.String("data/logs/a.log"), Size: aws.Int64(10)},
				},
				CommonPrefixes: []types.CommonPrefix{
					{Prefix: aws.String("data/logs/archive/")},
				},
			}, nil
		}
		return &s3.ListObjectsV2Output{
			Contents: []types.Object{
				{Key: aws.String("data/logs/b.log"), Size: aws.Int64(20)},
			},
		}, nil
	}}
	b := testBackend(f)
	ctx := context.Background()

	pager, err := b.List(ctx, "logs/", storage.OpList{Delimiter: "/"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	all, err := storage.ListAll(ctx, pager)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}

	want := []string{"logs/a.log", "logs/archive/", "logs/b.log"}
	if len(all) != len(want) {
		t.Fatalf("entries = %+v", all)
	}
	for i := range want {
		if all[i].Path != want[i] {
			t.Errorf("entry %d = %q, want %q", i, all[i].Path, want[i])
		}
	}
}

func TestPresign(t *testing.T) {
	b := testBackend(&fakeAPI{})
	ctx := context.Background()

	signed, err := b.Presign(ctx, "file.txt", storage.OpPresign{Operation: storage.PresignRead, Expire: time.Hour})
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	if signed.Method != http.MethodGet || signed.URL != "https://signed.example.com/get" {
		t.Errorf("signed = %+v", signed)
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		err  error
		want storage.Kind
	}{
		{&types.NoSuchKey{}, storage.KindNotFound},
		{&types.NotFound{}, storage.KindNotFound},
		{&smithy.GenericAPIError{Code: "NoSuchUpload"}, storage.KindNotFound},
		{&smithy.GenericAPIError{Code: "AccessDenied"}, storage.KindPermissionDenied},
		{&smithy.GenericAPIError{Code: "SignatureDoesNotMatch"}, storage.KindPermissionDenied},
		{&smithy.GenericAPIError{Code: "SlowDown"}, storage.KindUnexpected},
		{io.ErrUnexpectedEOF, storage.KindUnexpected},
	}
	for _, c := range cases {
		if got := normalize(c.err).Kind; got != c.want {
			t.Errorf("normalize(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
