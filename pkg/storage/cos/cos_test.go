package cos

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
	"github.com/cjj2010/incubator-opendal/pkg/storage/auth"
)

func testBackend(t *testing.T, ts *httptest.Server) *Backend {
	t.Helper()
	b, err := New(Config{
		Root:              "/data/",
		Bucket:            "bkt",
		Endpoint:          ts.URL,
		SecretID:          "ak",
		SecretKey:         "sk",
		DisableConfigLoad: true,
		Client:            ts.Client(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// Virtual-host addressing does not resolve against a test server.
	b.core.endpoint = ts.URL
	return b
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{Endpoint: "https://cos.example.com"})
	if storage.ErrorKind(err) != storage.KindConfigInvalid {
		t.Fatalf("missing bucket err = %v, want ConfigInvalid", err)
	}
	_, err = New(Config{Bucket: "bkt"})
	if storage.ErrorKind(err) != storage.KindConfigInvalid {
		t.Fatalf("missing endpoint err = %v, want ConfigInvalid", err)
	}
}

func TestNewTrimsBucketFromEndpoint(t *testing.T) {
	b, err := New(Config{Bucket: "bkt", Endpoint: "https://bkt.cos.example.com", DisableConfigLoad: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.core.endpoint != "https://bkt.cos.example.com" {
		t.Errorf("endpoint = %q", b.core.endpoint)
	}

	b, err = New(Config{Bucket: "bkt", Endpoint: "https://cos.example.com", DisableConfigLoad: true})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if b.core.endpoint != "https://bkt.cos.example.com" {
		t.Errorf("endpoint = %q", b.core.endpoint)
	}
}

func TestStat(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("method = %s", r.Method)
		}
		switch r.URL.Path {
		case "/data/file.txt":
			w.Header().Set("Content-Type", "text/plain")
			w.Header().Set("Content-Length", "42")
			w.Header().Set("ETag", `"abc"`)
			w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
			w.WriteHeader(http.StatusOK)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer ts.Close()
	b := testBackend(t, ts)
	ctx := context.Background()

	meta, err := b.Stat(ctx, "file.txt", storage.OpStat{})
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if meta.ContentLength != 42 || meta.ContentType != "text/plain" || meta.ETag != `"abc"` {
		t.Errorf("meta = %+v", meta)
	}
	if meta.LastModified.IsZero() {
		t.Error("LastModified not parsed")
	}

	if _, err := b.Stat(ctx, "absent.txt", storage.OpStat{}); !storage.IsNotFound(err) {
		t.Errorf("absent file err = %v, want NotFound", err)
	}

	// Absent keys under the directory convention stat as directories.
	meta, err = b.Stat(ctx, "absent/", storage.OpStat{})
	if err != nil {
		t.Fatalf("Stat(absent/): %v", err)
	}
	if !meta.Mode.IsDir() {
		t.Errorf("mode = %v, want dir", meta.Mode)
	}
}

func TestStatRootNeedsNoNetwork(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request %s %s", r.Method, r.URL)
	}))
	defer ts.Close()
	b := testBackend(t, ts)

	meta, err := b.Stat(context.Background(), "/", storage.OpStat{})
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if !meta.Mode.IsDir() {
		t.Errorf("mode = %v, want dir", meta.Mode)
	}
}

func TestReadRangeAndOverrun(t *testing.T) {
	content := []byte("0123456789")
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("Range") {
		case "":
			w.Write(content)
		case "bytes=2-4":
			w.WriteHeader(http.StatusPartialContent)
			w.Write(content[2:5])
		case "bytes=-3":
			w.WriteHeader(http.StatusPartialContent)
			w.Write(content[7:])
		default:
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		}
	}))
	defer ts.Close()
	b := testBackend(t, ts)
	ctx := context.Background()

	read := func(r storage.ByteRange) string {
		res, err := b.Read(ctx, "r.bin", storage.OpRead{Range: r})
		if err != nil {
			t.Fatalf("Read(%v): %v", r, err)
		}
		data, _ := io.ReadAll(res.Body)
		res.Body.Close()
		return string(data)
	}

	if got := read(storage.ByteRange{}); got != "0123456789" {
		t.Errorf("full read = %q", got)
	}
	if got := read(storage.NewByteRange(2, 3)); got != "234" {
		t.Errorf("bounded read = %q", got)
	}
	if got := read(storage.SuffixRange(3)); got != "789" {
		t.Errorf("suffix read = %q", got)
	}
	// A range past the end degrades to an empty read.
	if got := read(storage.NewByteRange(100, 1)); got != "" {
		t.Errorf("overrun read = %q", got)
	}
}

func TestDeleteAbsentSucceeds(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()
	b := testBackend(t, ts)

	if err := b.Delete(context.Background(), "absent.txt"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
}

func TestCreateDirTreatsConflictAsSuccess(t *testing.T) {
	var gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.ContentLength != 0 {
			t.Errorf("ContentLength = %d, want 0", r.ContentLength)
		}
		w.WriteHeader(http.StatusConflict)
	}))
	defer ts.Close()
	b := testBackend(t, ts)

	if err := b.CreateDir(context.Background(), "nested/dir"); err != nil {
		t.Fatalf("CreateDir: %v", err)
	}
	if gotPath != "/data/nested/dir/" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestCopySendsSourceHeader(t *testing.T) {
	var gotSource, gotPath string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSource = r.Header.Get("x-cos-copy-source")
		gotPath = r.URL.Path
		w.Write([]byte("<CopyObjectResult></CopyObjectResult>"))
	}))
	defer ts.Close()
	b := testBackend(t, ts)

	if err := b.Copy(context.Background(), "a.txt", "b.txt"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if gotSource != "bkt/data/a.txt" {
		t.Errorf("copy source = %q", gotSource)
	}
	if gotPath != "/data/b.txt" {
		t.Errorf("path = %q", gotPath)
	}
}

func TestSmallWriteUsesSinglePut(t *testing.T) {
	var requests []string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path+"?"+r.URL.RawQuery)
		io.Copy(io.Discard, r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	b := testBackend(t, ts)
	ctx := context.Background()

	w, err := b.Write(ctx, "small.txt", storage.OpWrite{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(ctx, []byte("tiny")); err != nil {
		t.Fatalf("writer.Write: %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(requests) != 1 || !strings.HasPrefix(requests[0], "PUT /data/small.txt") {
		t.Errorf("requests = %v, want one plain PUT", requests)
	}
}

func TestMultipartWriteProtocol(t *testing.T) {
	const mib = 1024 * 1024

	type partReq struct {
		number string
		size   int64
	}
	var (
		initiated bool
		parts     []partReq
		completed bool
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case r.Method == http.MethodPost && q.Has("uploads"):
			initiated = true
			fmt.Fprint(w, `<InitiateMultipartUploadResult><UploadId>upload-1</UploadId></InitiateMultipartUploadResult>`)
		case r.Method == http.MethodPut && q.Get("uploadId") == "upload-1":
			n, _ := io.Copy(io.Discard, r.Body)
			parts = append(parts, partReq{number: q.Get("partNumber"), size: n})
			w.Header().Set("ETag", fmt.Sprintf("%q", "etag-"+q.Get("partNumber")))
			w.WriteHeader(http.StatusOK)
		case r.Method == http.MethodPost && q.Get("uploadId") == "upload-1":
			body, _ := io.ReadAll(r.Body)
			if !strings.Contains(string(body), "<PartNumber>3</PartNumber>") {
				t.Errorf("complete request misses part 3: %s", body)
			}
			completed = true
			fmt.Fprint(w, `<CompleteMultipartUploadResult></CompleteMultipartUploadResult>`)
		default:
			t.Errorf("unexpected request %s %s", r.Method, r.URL)
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
	defer ts.Close()
	b := testBackend(t, ts)
	ctx := context.Background()

	w, err := b.Write(ctx, "big.bin", storage.OpWrite{})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	chunk := func(n int) []byte { return make([]byte, n) }
	for _, n := range []int{mib, mib, mib / 2} {
		if err := w.Write(ctx, chunk(n)); err != nil {
			t.Fatalf("writer.Write: %v", err)
		}
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !initiated || !completed {
		t.Fatalf("initiated = %v completed = %v", initiated, completed)
	}
	want := []partReq{{"1", mib}, {"2", mib}, {"3", mib / 2}}
	if len(parts) != len(want) {
		t.Fatalf("parts = %+v", parts)
	}
	for i, p := range parts {
		if p != want[i] {
			t.Errorf("part %d = %+v, want %+v", i+1, p, want[i])
		}
	}
}

func TestAppendWriteTracksPosition(t *testing.T) {
	var positions []string
	offset := int64(0)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if !q.Has("append") {
			t.Errorf("missing append marker in %s", r.URL)
		}
		positions = append(positions, q.Get("position"))
		n, _ := io.Copy(io.Discard, r.Body)
		offset += n
		w.Header().Set("x-cos-next-append-position", fmt.Sprint(offset))
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()
	b := testBackend(t, ts)
	ctx := context.Background()

	w, err := b.Write(ctx, "log.txt", storage.OpWrite{Append: true})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Write(ctx, []byte("hello")); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	if err := w.Write(ctx, []byte("world")); err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if err := w.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if len(positions) != 2 || positions[0] != "0" || positions[1] != "5" {
		t.Errorf("positions = %v", positions)
	}
}

func TestListPagerAcrossPages(t *testing.T) {
	page := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("prefix") != "data/logs/" {
			t.Errorf("prefix = %q", q.Get("prefix"))
		}
		page++
		switch page {
		case 1:
			if q.Get("marker") != "" {
				t.Errorf("first page marker = %q", q.Get("marker"))
			}
			fmt.Fprint(w, `<ListBucketResult>
<IsTruncated>true</IsTruncated>
<NextMarker>data/logs/b.log</NextMarker>
<Contents><Key>data/logs/a.log</Key><Size>10</Size><ETag>"e1"</ETag></Contents>
<Contents><Key>data/logs/b.log</Key><Size>20</Size><ETag>"e2"</ETag></Contents>
<CommonPrefixes><Prefix>data/logs/archive/</Prefix></CommonPrefixes>
</ListBucketResult>`)
		case 2:
			if q.Get("marker") != "data/logs/b.log" {
				t.Errorf("second page marker = %q", q.Get("marker"))
			}
			fmt.Fprint(w, `<ListBucketResult>
<IsTruncated>false</IsTruncated>
<Contents><Key>data/logs/c.log</Key><Size>30</Size><ETag>"e3"</ETag></Contents>
</ListBucketResult>`)
		default:
			t.Errorf("unexpected page %d", page)
		}
	}))
	defer ts.Close()
	b := testBackend(t, ts)
	ctx := context.Background()

	pager, err := b.List(ctx, "logs/", storage.OpList{Delimiter: "/"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	all, err := storage.ListAll(ctx, pager)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}

	paths := make([]string, len(all))
	for i, e := range all {
		paths[i] = e.Path
	}
	want := []string{"logs/a.log", "logs/b.log", "logs/archive/", "logs/c.log"}
	if len(paths) != len(want) {
		t.Fatalf("paths = %v", paths)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
	if !all[2].Metadata.Mode.IsDir() {
		t.Errorf("archive entry mode = %v, want dir", all[2].Metadata.Mode)
	}
}

func TestPresignEmbedsSignatureInQuery(t *testing.T) {
	b, err := New(Config{
		Root:              "/data/",
		Bucket:            "bkt",
		Endpoint:          "https://cos.example.com",
		SecretID:          "ak",
		SecretKey:         "sk",
		DisableConfigLoad: true,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	signed, err := b.Presign(context.Background(), "file.txt", storage.OpPresign{
		Operation: storage.PresignRead,
		Expire:    time.Hour,
	})
	if err != nil {
		t.Fatalf("Presign: %v", err)
	}
	if signed.Method != http.MethodGet {
		t.Errorf("method = %q", signed.Method)
	}

	u, err := url.Parse(signed.URL)
	if err != nil {
		t.Fatalf("URL: %v", err)
	}
	q := u.Query()
	if q.Get("q-sign-algorithm") != "sha1" || q.Get("q-ak") != "ak" {
		t.Errorf("query = %v", q)
	}
	if len(q.Get("q-signature")) != 40 {
		t.Errorf("signature = %q", q.Get("q-signature"))
	}
}

func TestSignerIsDeterministic(t *testing.T) {
	fixed := time.Unix(1700000000, 0)
	cred := &auth.Credential{AccessKeyID: "ak", SecretAccessKey: "sk"}

	sign := func(secret string) string {
		s := &signer{now: func() time.Time { return fixed }}
		req, _ := http.NewRequest(http.MethodGet, "https://bkt.cos.example.com/data/file.txt", nil)
		c := *cred
		c.SecretAccessKey = secret
		if err := s.SignHeader(req, &c); err != nil {
			t.Fatalf("SignHeader: %v", err)
		}
		return req.Header.Get("Authorization")
	}

	first, second := sign("sk"), sign("sk")
	if first != second {
		t.Errorf("signing is not deterministic:\n%s\n%s", first, second)
	}
	if !strings.Contains(first, "q-sign-time=1700000000;1700003600") {
		t.Errorf("auth = %q", first)
	}
	if sign("other-secret") == first {
		t.Error("signature does not depend on the secret")
	}
}

func TestSignerAddsSecurityToken(t *testing.T) {
	s := NewSigner()
	req, _ := http.NewRequest(http.MethodGet, "https://bkt.cos.example.com/x", nil)
	cred := &auth.Credential{AccessKeyID: "ak", SecretAccessKey: "sk", SecurityToken: "tok"}
	if err := s.SignHeader(req, cred); err != nil {
		t.Fatalf("SignHeader: %v", err)
	}
	if req.Header.Get("x-cos-security-token") != "tok" {
		t.Error("security token header missing")
	}
}
