package storage

import (
	"net/url"
	"strings"
)

// NormalizeRoot turns any configured root into the canonical form: it
// always starts and ends with "/". An empty root becomes "/".
func NormalizeRoot(root string) string {
	if root == "" {
		return "/"
	}
	if !strings.HasPrefix(root, "/") {
		root = "/" + root
	}
	if !strings.HasSuffix(root, "/") {
		root += "/"
	}
	return root
}

// BuildAbsPath joins a normalized root and a caller-supplied relative
// path into the wire path, without a leading "/". The result is what a
// flat object store uses as the key.
//
//	BuildAbsPath("/data/", "a/b.txt") == "data/a/b.txt"
//	BuildAbsPath("/", "/") == ""
func BuildAbsPath(root, path string) string {
	p := strings.TrimPrefix(root, "/") + strings.TrimPrefix(path, "/")
	return strings.TrimPrefix(p, "/")
}

// IsRootPath reports whether a caller-supplied path addresses the
// accessor root itself.
func IsRootPath(path string) bool {
	return path == "" || path == "/"
}

// IsDirPath reports whether a caller-supplied path uses the directory
// convention (trailing separator). The root counts as a directory.
func IsDirPath(path string) bool {
	return IsRootPath(path) || strings.HasSuffix(path, "/")
}

// PercentEncodePath encodes each path segment for use in a URL while
// keeping the "/" separators literal.
func PercentEncodePath(path string) string {
	if path == "" {
		return ""
	}
	segs := strings.Split(path, "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.Join(segs, "/")
}
