package cos

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cjj2010/incubator-opendal/pkg/storage/auth"
)

// headerSignExpiry bounds how long a header-mode signature is accepted.
// The request is sent immediately, so a short window is enough.
const headerSignExpiry = time.Hour

// signer implements the HMAC-SHA1 q-sign-algorithm scheme. Header mode
// writes the authorization string into the Authorization header; query
// mode spreads the same fields over the query string so the request is
// valid on its own.
type signer struct {
	now func() time.Time
}

// NewSigner returns the request signer for this scheme.
func NewSigner() auth.Signer {
	return &signer{now: time.Now}
}

func (s *signer) SignHeader(req *http.Request, cred *auth.Credential) error {
	fields := s.build(req, cred, headerSignExpiry)
	req.Header.Set("Authorization", fields.encode())
	if cred.SecurityToken != "" {
		req.Header.Set("x-cos-security-token", cred.SecurityToken)
	}
	return nil
}

func (s *signer) SignQuery(req *http.Request, cred *auth.Credential, expire time.Duration) error {
	if expire <= 0 {
		expire = headerSignExpiry
	}
	fields := s.build(req, cred, expire)

	q := req.URL.Query()
	for _, kv := range fields {
		q.Set(kv.key, kv.value)
	}
	if cred.SecurityToken != "" {
		q.Set("x-cos-security-token", cred.SecurityToken)
	}
	req.URL.RawQuery = q.Encode()
	return nil
}

type field struct{ key, value string }

type authFields []field

func (f authFields) encode() string {
	parts := make([]string, len(f))
	for i, kv := range f {
		parts[i] = kv.key + "=" + kv.value
	}
	return strings.Join(parts, "&")
}

// build derives the signature over the canonical request form. The
// validity window is [now, now+expire], encoded as the key time.
func (s *signer) build(req *http.Request, cred *auth.Credential, expire time.Duration) authFields {
	start := s.now().Unix()
	keyTime := fmt.Sprintf("%d;%d", start, start+int64(expire/time.Second))
	signKey := hmacSHA1(cred.SecretAccessKey, keyTime)

	paramList, paramString := canonicalize(req.URL.Query())
	headerList, headerString := canonicalize(signedHeaders(req))

	httpString := strings.ToLower(req.Method) + "\n" +
		req.URL.Path + "\n" +
		paramString + "\n" +
		headerString + "\n"

	sum := sha1.Sum([]byte(httpString))
	stringToSign := "sha1\n" + keyTime + "\n" + hex.EncodeToString(sum[:]) + "\n"
	signature := hmacSHA1(signKey, stringToSign)

	return authFields{
		{"q-sign-algorithm", "sha1"},
		{"q-ak", cred.AccessKeyID},
		{"q-sign-time", keyTime},
		{"q-key-time", keyTime},
		{"q-header-list", headerList},
		{"q-url-param-list", paramList},
		{"q-signature", signature},
	}
}

// signedHeaders picks the headers covered by the signature: the host is
// always covered, content headers are when present.
func signedHeaders(req *http.Request) url.Values {
	host := req.Host
	if host == "" {
		host = req.URL.Host
	}
	h := url.Values{"host": {host}}
	for _, name := range []string{"Content-Type", "Content-Disposition", "Cache-Control"} {
		if v := req.Header.Get(name); v != "" {
			h.Set(strings.ToLower(name), v)
		}
	}
	return h
}

// canonicalize lowercases and sorts the keys, returning the ";"-joined
// key list and the "k=v"-joined encoded pairs.
func canonicalize(values url.Values) (list string, pairs string) {
	lowered := make(map[string]string, len(values))
	keys := make([]string, 0, len(values))
	for k, vs := range values {
		lk := strings.ToLower(k)
		keys = append(keys, lk)
		if len(vs) > 0 {
			lowered[lk] = vs[0]
		}
	}
	sort.Strings(keys)

	encoded := make([]string, len(keys))
	for i, k := range keys {
		encoded[i] = url.QueryEscape(k) + "=" + url.QueryEscape(lowered[k])
	}
	return strings.Join(keys, ";"), strings.Join(encoded, "&")
}

func hmacSHA1(key, data string) string {
	mac := hmac.New(sha1.New, []byte(key))
	mac.Write([]byte(data))
	return hex.EncodeToString(mac.Sum(nil))
}
