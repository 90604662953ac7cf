package domain

import (
	"errors"
	"io/fs"
	"time"
)

// JobState is the lifecycle state of a digest computation.
type JobState string

const (
	JobAbsent     JobState = "absent"
	JobProcessing JobState = "processing"
	JobReady      JobState = "ready"
	JobFailed     JobState = "failed"
)

// IsTerminal reports whether no further transition can happen.
func (s JobState) IsTerminal() bool {
	return s == JobReady || s == JobFailed
}

// ErrorCode is the sanitized reason a job failed. It is safe to return to
// callers and never contains paths or OS error text.
type ErrorCode string

const (
	CodeFileMissing      ErrorCode = "file_missing"
	CodePermissionDenied ErrorCode = "permission_denied"
	CodePathRevoked      ErrorCode = "path_revoked"
	CodeNotRegularFile   ErrorCode = "not_regular_file"
	CodeIOError          ErrorCode = "io_error"
)

// Digests holds the content fingerprints of a file, hex encoded.
type Digests struct {
	MD5    string `json:"md5"`
	SHA256 string `json:"sha256"`
}

// Complete reports whether both digests are present. A half-filled value is
// never a valid result.
func (d Digests) Complete() bool {
	return d.MD5 != "" && d.SHA256 != ""
}

// CacheEntry is the durable record of the last successful computation.
// SourcePath, Size and ModTime describe the file the digests belong to and
// are used to detect stale entries.
type CacheEntry struct {
	Digests    Digests
	ComputedAt time.Time
	SourcePath string
	Size       int64
	ModTime    time.Time
}

// Matches reports whether the cache entry was computed for the given
// authorized file. Entries written without a fingerprint match any file.
func (c CacheEntry) Matches(p AuthorizedPath) bool {
	if c.SourcePath == "" {
		return true
	}
	return c.SourcePath == p.Path &&
		c.Size == p.Size &&
		c.ModTime.Equal(p.ModTime)
}

// HashJob is one digest computation attempt for an entry.
type HashJob struct {
	ID         string
	EntryID    string
	SourcePath string
	Size       int64
	ModTime    time.Time
	State      JobState
	Digests    Digests
	ErrorCode  ErrorCode
	StartedAt  time.Time
	FinishedAt time.Time
}

// JobStatus is the caller-facing view of the digest state of an entry.
type JobStatus struct {
	EntryID    string
	JobID      string
	State      JobState
	Digests    Digests
	ErrorCode  ErrorCode
	StartedAt  time.Time
	ComputedAt time.Time
	Joined     bool
	// Previous holds the last cached digests while a recompute runs or
	// after it failed.
	Previous Digests
}

// ClassifyIOError maps a file access error to a sanitized code.
func ClassifyIOError(err error) ErrorCode {
	switch {
	case errors.Is(err, ErrPathDenied):
		return CodePathRevoked
	case errors.Is(err, ErrNotRegularFile):
		return CodeNotRegularFile
	case errors.Is(err, fs.ErrNotExist):
		return CodeFileMissing
	case errors.Is(err, fs.ErrPermission):
		return CodePermissionDenied
	default:
		return CodeIOError
	}
}
