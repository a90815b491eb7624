package storage

import "time"

// EntryMode distinguishes files from directories in stat and list
// results.
type EntryMode int

const (
	ModeUnknown EntryMode = iota
	ModeFile
	ModeDir
)

func (m EntryMode) IsFile() bool { return m == ModeFile }
func (m EntryMode) IsDir() bool  { return m == ModeDir }

func (m EntryMode) String() string {
	switch m {
	case ModeFile:
		return "file"
	case ModeDir:
		return "dir"
	default:
		return "unknown"
	}
}

// Metadata describes one object. It is built fresh from each response
// and never cached by this layer. Directory metadata may be synthesized
// locally when the backend has no directory concept.
type Metadata struct {
	Mode          EntryMode
	ContentLength int64
	ContentType   string
	ETag          string
	LastModified  time.Time
}

// NewDirMetadata returns metadata for a synthetic directory entry.
func NewDirMetadata() Metadata {
	return Metadata{Mode: ModeDir}
}

// Entry is one listing result. Path is relative to the accessor root;
// directory entries end with "/".
type Entry struct {
	Path     string
	Metadata Metadata
}
