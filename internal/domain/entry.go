package domain

import "time"

// StorageKind tells where the bytes of an entry live.
type StorageKind string

const (
	// StorageFilepath entries are backed by a local file.
	StorageFilepath StorageKind = "filepath"
	// StorageURL entries point to a remote location.
	StorageURL StorageKind = "url"
)

// Entry represents one catalog item.
type Entry struct {
	ID        string
	Name      string
	Kind      StorageKind
	Source    string // absolute path or URL, depending on Kind
	FileType  string
	Size      int64
	CreatedBy string
	CreatedAt time.Time
}

// IsLocal reports whether the entry is backed by a local file and may
// therefore be served or hashed.
func (e *Entry) IsLocal() bool {
	return e.Kind == StorageFilepath
}

// AuthorizedPath is the result of a successful path validation. Path is the
// canonical, symlink-free location that must be used for any file access.
type AuthorizedPath struct {
	Path    string
	Root    string
	Size    int64
	ModTime time.Time
}

// StoredFile describes a file written by an ingestion.
type StoredFile struct {
	Path     string
	Name     string // sanitized base name without extension
	FileType string
	Size     int64
	ModTime  time.Time
	Digests  Digests
}
