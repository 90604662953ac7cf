package domain

import "errors"

// Domain errors represent business-level errors that can occur in the system.
// Raw OS errors are translated into these before leaving the usecase layer.
var (
	// Path errors
	ErrPathDenied = errors.New("path denied")

	// Catalog errors
	ErrNotFound      = errors.New("not found")
	ErrNotHashable   = errors.New("entry is not backed by a local file")
	ErrEntryExists   = errors.New("entry already exists")
	ErrInvalidUpload = errors.New("invalid upload")

	// Hashing errors
	ErrJobFailed  = errors.New("digest computation failed")
	ErrQueueFull  = errors.New("hash queue is full")
	ErrJobRunning = errors.New("digest computation in progress")

	// ErrNotRegularFile is returned when a validated path no longer names a
	// regular file at read time.
	ErrNotRegularFile = errors.New("not a regular file")

	// Ingestion errors
	ErrWriteFailure = errors.New("failed to write file")
	ErrTooLarge     = errors.New("upload exceeds maximum size")

	// Config errors
	ErrInvalidConfig = errors.New("invalid configuration")
)
