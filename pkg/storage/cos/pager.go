package cos

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

// listResult is the XML page of the bucket listing.
type listResult struct {
	XMLName        xml.Name     `xml:"ListBucketResult"`
	IsTruncated    bool         `xml:"IsTruncated"`
	NextMarker     string       `xml:"NextMarker"`
	Contents       []listObject `xml:"Contents"`
	CommonPrefixes []struct {
		Prefix string `xml:"Prefix"`
	} `xml:"CommonPrefixes"`
}

type listObject struct {
	Key          string `xml:"Key"`
	Size         int64  `xml:"Size"`
	ETag         string `xml:"ETag"`
	LastModified string `xml:"LastModified"`
}

// listPage fetches one page and maps keys back to root-relative entry
// paths. Collapsed common prefixes become synthetic directory entries,
// in the order the service reports them.
func (c *core) listPage(ctx context.Context, prefix, delimiter, marker string) ([]storage.Entry, string, error) {
	resp, err := c.listObjects(ctx, prefix, delimiter, marker)
	if err != nil {
		return nil, "", opError(err, "list")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, "", opError(parseError(resp), "list")
	}

	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, "", opError(storage.NewError(storage.KindUnexpected, "reading list response failed").WithCause(err), "list")
	}

	var page listResult
	if err := xml.Unmarshal(body, &page); err != nil {
		return nil, "", opError(storage.NewError(storage.KindUnexpected, "decoding list response failed").WithCause(err), "list")
	}

	rootPrefix := strings.TrimPrefix(c.root, "/")
	entries := make([]storage.Entry, 0, len(page.Contents)+len(page.CommonPrefixes))
	for _, o := range page.Contents {
		// The prefix marker itself shows up in its own listing.
		if o.Key == prefix {
			continue
		}
		meta := storage.Metadata{
			Mode:          storage.ModeFile,
			ContentLength: o.Size,
			ETag:          o.ETag,
		}
		if strings.HasSuffix(o.Key, "/") {
			meta = storage.NewDirMetadata()
		}
		if o.LastModified != "" {
			if t, err := time.Parse(time.RFC3339, o.LastModified); err == nil {
				meta.LastModified = t
			}
		}
		entries = append(entries, storage.Entry{
			Path:     strings.TrimPrefix(o.Key, rootPrefix),
			Metadata: meta,
		})
	}
	for _, p := range page.CommonPrefixes {
		entries = append(entries, storage.Entry{
			Path:     strings.TrimPrefix(p.Prefix, rootPrefix),
			Metadata: storage.NewDirMetadata(),
		})
	}

	next := ""
	if page.IsTruncated {
		next = page.NextMarker
	}
	return entries, next, nil
}
