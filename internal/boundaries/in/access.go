package in

import (
	"context"
	"io"

	"github.com/spf13/afero"

	"github.com/bnema/catalogd/internal/domain"
)

// IngestRequest is an upload handed to the gateway.
type IngestRequest struct {
	Root      string // root selector, empty for the upload root
	Filename  string
	Name      string // optional display name
	CreatedBy string
	Content   io.Reader
}

// Download is an opened, authorized file or a redirect for URL entries.
type Download struct {
	Entry       *domain.Entry
	File        afero.File
	RedirectURL string
}

// AccessService is the only entry point of the core for outer adapters.
type AccessService interface {
	// ServeFile opens the authorized source path of an entry for reading.
	ServeFile(ctx context.Context, entryID, sourcePath string) (afero.File, error)

	// IngestFile stores content under the selected root.
	IngestFile(ctx context.Context, root, filename string, content io.Reader) (*domain.StoredFile, error)

	// RequestHash re-validates sourcePath and asks the coordinator for digests.
	RequestHash(ctx context.Context, entryID, sourcePath string, force bool) (domain.JobStatus, error)

	// PollHash reports the digest state of an entry.
	PollHash(ctx context.Context, entryID string) (domain.JobStatus, error)

	// DownloadEntry resolves an entry through the catalog and opens it.
	DownloadEntry(ctx context.Context, entryID string) (*Download, error)

	// RequestEntryHash resolves an entry through the catalog and requests digests.
	RequestEntryHash(ctx context.Context, entryID string, force bool) (domain.JobStatus, error)

	// PollEntryHash checks that the entry exists and reports its digest state.
	PollEntryHash(ctx context.Context, entryID string) (domain.JobStatus, error)

	// ForgetEntryHash drops the job record and cached digests of an entry.
	ForgetEntryHash(ctx context.Context, entryID string) error

	// IngestUpload writes an upload and registers it in the catalog.
	IngestUpload(ctx context.Context, req IngestRequest) (*domain.Entry, error)

	// ListEntries returns the catalog ordered by creation time.
	ListEntries(ctx context.Context) ([]*domain.Entry, error)

	// DeleteEntry removes an entry from the catalog together with its job
	// record and cached digests. The file itself is left in place.
	DeleteEntry(ctx context.Context, entryID string) error
}
