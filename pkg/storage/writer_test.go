package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mib = 1024 * 1024

// fakeUploader records the multipart protocol calls the writer issues.
type fakeUploader struct {
	putOnce   [][]byte
	initiated int
	parts     []fakePart
	committed []fakeCommit

	failPart int // 1-based part number to fail, 0 for never
}

type fakePart struct {
	uploadID   string
	partNumber int
	offset     int64
	size       int64
}

type fakeCommit struct {
	uploadID string
	parts    []Part
	size     int64
}

func (f *fakeUploader) PutOnce(_ context.Context, body []byte) error {
	b := make([]byte, len(body))
	copy(b, body)
	f.putOnce = append(f.putOnce, b)
	return nil
}

func (f *fakeUploader) InitiateMultipart(context.Context) (string, error) {
	f.initiated++
	return "upload-1", nil
}

func (f *fakeUploader) UploadPart(_ context.Context, uploadID string, partNumber int, offset int64, body []byte) (Part, error) {
	if f.failPart == partNumber {
		return Part{}, NewError(KindUnexpected, "injected part failure")
	}
	f.parts = append(f.parts, fakePart{uploadID: uploadID, partNumber: partNumber, offset: offset, size: int64(len(body))})
	return Part{PartNumber: partNumber, ETag: "etag"}, nil
}

func (f *fakeUploader) CompleteMultipart(_ context.Context, uploadID string, parts []Part, size int64) error {
	f.committed = append(f.committed, fakeCommit{uploadID: uploadID, parts: parts, size: size})
	return nil
}

func multiCap(min, max int64) Capability {
	return Capability{WriteCanMulti: true, WriteMultiMinSize: min, WriteMultiMaxSize: max}
}

func TestMultipartWriterChunkedUpload(t *testing.T) {
	ctx := context.Background()
	u := &fakeUploader{}
	w := NewMultipartWriter(u, multiCap(mib, 5*1024*mib))

	// 2.5 MiB in three chunks, final one below the part minimum.
	require.NoError(t, w.Write(ctx, make([]byte, mib)))
	require.NoError(t, w.Write(ctx, make([]byte, mib)))
	require.NoError(t, w.Write(ctx, make([]byte, 512*1024)))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, 1, u.initiated)
	require.Len(t, u.parts, 3)
	assert.Equal(t, fakePart{"upload-1", 1, 0, mib}, u.parts[0])
	assert.Equal(t, fakePart{"upload-1", 2, mib, mib}, u.parts[1])
	assert.Equal(t, fakePart{"upload-1", 3, 2 * mib, 512 * 1024}, u.parts[2])

	require.Len(t, u.committed, 1)
	assert.Equal(t, int64(2*1024*1024+512*1024), u.committed[0].size)
	assert.Len(t, u.committed[0].parts, 3)
	assert.Empty(t, u.putOnce)
}

func TestMultipartWriterSmallWriteUsesPutOnce(t *testing.T) {
	ctx := context.Background()
	u := &fakeUploader{}
	w := NewMultipartWriter(u, multiCap(mib, 0))

	require.NoError(t, w.Write(ctx, []byte("hello")))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, 0, u.initiated)
	require.Len(t, u.putOnce, 1)
	assert.Equal(t, []byte("hello"), u.putOnce[0])
	assert.Empty(t, u.committed)
}

func TestMultipartWriterEmptyWrite(t *testing.T) {
	ctx := context.Background()
	u := &fakeUploader{}
	w := NewMultipartWriter(u, multiCap(mib, 0))

	require.NoError(t, w.Close(ctx))

	require.Len(t, u.putOnce, 1)
	assert.Empty(t, u.putOnce[0])
}

func TestMultipartWriterSplitsOversizedBuffer(t *testing.T) {
	ctx := context.Background()
	u := &fakeUploader{}
	w := NewMultipartWriter(u, multiCap(mib, 2*mib))

	// One 5 MiB write must come out as parts no larger than the max.
	require.NoError(t, w.Write(ctx, make([]byte, 5*mib)))
	require.NoError(t, w.Close(ctx))

	require.Len(t, u.parts, 3)
	assert.Equal(t, int64(2*mib), u.parts[0].size)
	assert.Equal(t, int64(2*mib), u.parts[1].size)
	assert.Equal(t, int64(mib), u.parts[2].size)
	require.Len(t, u.committed, 1)
	assert.Equal(t, int64(5*mib), u.committed[0].size)
}

func TestMultipartWriterPartFailureBlocksCommit(t *testing.T) {
	ctx := context.Background()
	u := &fakeUploader{failPart: 2}
	w := NewMultipartWriter(u, multiCap(mib, 0))

	require.NoError(t, w.Write(ctx, make([]byte, mib)))
	err := w.Write(ctx, make([]byte, mib))
	require.Error(t, err)

	// The writer sticks to the original failure and never commits.
	assert.Same(t, err, w.Write(ctx, []byte("more")))
	assert.Same(t, err, w.Close(ctx))
	assert.Empty(t, u.committed)
}

func TestMultipartWriterRejectsUseAfterClose(t *testing.T) {
	ctx := context.Background()
	u := &fakeUploader{}
	w := NewMultipartWriter(u, multiCap(mib, 0))

	require.NoError(t, w.Close(ctx))
	assert.Error(t, w.Write(ctx, []byte("late")))
	assert.Error(t, w.Close(ctx))
}

// fakeAppender records append calls.
type fakeAppender struct {
	calls []int64 // offsets
	size  int64
	fail  bool
}

func (f *fakeAppender) Append(_ context.Context, offset int64, body []byte) (int64, error) {
	if f.fail {
		return 0, NewError(KindUnexpected, "injected append failure")
	}
	f.calls = append(f.calls, offset)
	f.size = offset + int64(len(body))
	return f.size, nil
}

func TestAppendWriterOrderedOffsets(t *testing.T) {
	ctx := context.Background()
	a := &fakeAppender{}
	w := NewAppendWriter(a)

	require.NoError(t, w.Write(ctx, []byte("abc")))
	require.NoError(t, w.Write(ctx, []byte("defg")))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []int64{0, 3}, a.calls)
	assert.Equal(t, int64(7), a.size)
}

func TestAppendWriterEmptyWriteCreatesObject(t *testing.T) {
	ctx := context.Background()
	a := &fakeAppender{}
	w := NewAppendWriter(a)

	require.NoError(t, w.Close(ctx))

	// Close with no writes still issues one zero-length append.
	assert.Equal(t, []int64{0}, a.calls)
	assert.Equal(t, int64(0), a.size)
}

func TestAppendWriterSticksToFailure(t *testing.T) {
	ctx := context.Background()
	a := &fakeAppender{fail: true}
	w := NewAppendWriter(a)

	err := w.Write(ctx, []byte("abc"))
	require.Error(t, err)
	assert.Same(t, err, w.Close(ctx))
}
