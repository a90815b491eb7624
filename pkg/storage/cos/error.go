package cos

import (
	"encoding/xml"
	"io"
	"net/http"

	"github.com/cjj2010/incubator-opendal/pkg/storage"
)

// errorResponse is the XML failure payload.
type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	RequestID string   `xml:"RequestId"`
}

// parseError normalizes a failure response into the canonical taxonomy,
// refining the status-based kind with the service error code when one
// is present. The response body is consumed.
func parseError(resp *http.Response) *storage.Error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	resp.Body.Close()

	kind := storage.ClassifyStatus(resp.StatusCode)
	var payload errorResponse
	if err := xml.Unmarshal(body, &payload); err == nil {
		switch payload.Code {
		case "NoSuchKey", "NoSuchBucket", "NoSuchUpload":
			kind = storage.KindNotFound
		case "AccessDenied", "SignatureDoesNotMatch", "InvalidAccessKeyId":
			kind = storage.KindPermissionDenied
		}
	}

	e := storage.Errorf(kind, "service returned %s", resp.Status).
		WithContext("status", resp.Status)
	if payload.Code != "" {
		e = e.WithContext("code", payload.Code).
			WithContext("message", payload.Message)
	} else if len(body) > 0 {
		e = e.WithContext("body", string(body))
	}
	if payload.RequestID != "" {
		e = e.WithContext("request_id", payload.RequestID)
	}
	return e
}
