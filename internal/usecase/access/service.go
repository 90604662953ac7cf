// Package access implements the entry access gateway: the only path from the
// outer adapters to files on disk.
package access

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bnema/zerowrap"
	"github.com/microcosm-cc/bluemonday"
	"github.com/spf13/afero"

	"github.com/bnema/catalogd/internal/boundaries/in"
	"github.com/bnema/catalogd/internal/boundaries/out"
	"github.com/bnema/catalogd/internal/domain"
	"github.com/bnema/catalogd/pkg/digest"
	"github.com/bnema/catalogd/pkg/validation"
)

// Ensure Service implements in.AccessService.
var _ in.AccessService = (*Service)(nil)

const (
	defaultCreateAttempts = 3
	maxDisplayNameRunes   = 200
)

// Config holds the ingestion limits.
type Config struct {
	// MaxUploadSize caps a single upload in bytes. Zero means unlimited.
	MaxUploadSize int64
	// BufferSize is the copy buffer used while writing uploads.
	BufferSize int
	// CreateAttempts bounds how often a destination is re-resolved when
	// another writer claims the same name first.
	CreateAttempts int
}

// Service implements the AccessService interface.
type Service struct {
	validator   in.PathValidator
	coordinator in.HashCoordinator
	entries     out.EntryStore
	cache       out.DigestCache
	fs          afero.Fs
	policy      *bluemonday.Policy
	cfg         Config
	now         func() time.Time
}

// NewService creates a new access gateway.
func NewService(
	cfg Config,
	validator in.PathValidator,
	coordinator in.HashCoordinator,
	entries out.EntryStore,
	cache out.DigestCache,
	fs afero.Fs,
) *Service {
	if cfg.CreateAttempts <= 0 {
		cfg.CreateAttempts = defaultCreateAttempts
	}
	return &Service{
		validator:   validator,
		coordinator: coordinator,
		entries:     entries,
		cache:       cache,
		fs:          fs,
		policy:      bluemonday.StrictPolicy(),
		cfg:         cfg,
		now:         time.Now,
	}
}

// ServeFile opens the authorized source path of an entry for reading.
func (s *Service) ServeFile(ctx context.Context, entryID, sourcePath string) (afero.File, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  "ServeFile",
		zerowrap.FieldEntityID: entryID,
	})
	log := zerowrap.FromCtx(ctx)

	authorized, err := s.validator.ResolveForRead(ctx, sourcePath)
	if err != nil {
		return nil, domain.ErrPathDenied
	}

	file, err := s.fs.Open(authorized.Path)
	if err != nil {
		log.Warn().Err(err).Str(zerowrap.FieldPath, authorized.Path).Msg("failed to open authorized file")
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrPathDenied
	}

	info, err := file.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = file.Close()
		log.Warn().Str(zerowrap.FieldPath, authorized.Path).Msg("opened handle is not a regular file")
		return nil, domain.ErrPathDenied
	}

	log.Debug().Int64(zerowrap.FieldSize, info.Size()).Msg("serving file")
	return file, nil
}

// IngestFile stores content under the selected root. The destination handle
// is always closed and a partial file is removed on any failure.
func (s *Service) IngestFile(ctx context.Context, root, filename string, content io.Reader) (*domain.StoredFile, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "IngestFile",
		"root":                root,
	})
	log := zerowrap.FromCtx(ctx)

	if content == nil {
		return nil, domain.ErrInvalidUpload
	}

	rootPath, err := s.validator.RootPath(root)
	if err != nil {
		log.Warn().Msg("unknown upload root selector")
		return nil, domain.ErrPathDenied
	}

	dest, file, err := s.create(ctx, rootPath, filename)
	if err != nil {
		return nil, err
	}

	written, hasher, err := s.write(file, content)
	if err != nil {
		s.discard(ctx, dest.Path)
		if errors.Is(err, domain.ErrTooLarge) {
			log.Warn().Int64("limit", s.cfg.MaxUploadSize).Msg("upload exceeds maximum size")
			return nil, domain.ErrTooLarge
		}
		log.Error().Err(err).Str(zerowrap.FieldPath, dest.Path).Msg("failed to write upload")
		return nil, domain.ErrWriteFailure
	}

	// The file only counts once it resolves as a readable regular file of
	// the expected size.
	stored, err := s.validator.ResolveForRead(ctx, dest.Path)
	if err != nil || stored.Size != written {
		s.discard(ctx, dest.Path)
		log.Error().Int64(zerowrap.FieldSize, written).Msg("written file failed verification")
		return nil, domain.ErrWriteFailure
	}

	base := filepath.Base(stored.Path)
	ext := strings.TrimPrefix(filepath.Ext(base), ".")

	log.Info().
		Str(zerowrap.FieldPath, stored.Path).
		Int64(zerowrap.FieldSize, written).
		Msg("file ingested")

	return &domain.StoredFile{
		Path:     stored.Path,
		Name:     strings.TrimSuffix(base, filepath.Ext(base)),
		FileType: ext,
		Size:     written,
		ModTime:  stored.ModTime,
		Digests:  domain.Digests{MD5: hasher.MD5(), SHA256: hasher.SHA256()},
	}, nil
}

// create resolves a free destination and opens it exclusively. A name taken
// between resolution and creation is resolved again.
func (s *Service) create(ctx context.Context, rootPath, filename string) (domain.AuthorizedPath, afero.File, error) {
	log := zerowrap.FromCtx(ctx)

	for attempt := 0; attempt < s.cfg.CreateAttempts; attempt++ {
		dest, err := s.validator.ResolveForWrite(ctx, filename, rootPath)
		if err != nil {
			return domain.AuthorizedPath{}, nil, domain.ErrPathDenied
		}

		file, err := s.fs.OpenFile(dest.Path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
		if err == nil {
			return dest, file, nil
		}
		if errors.Is(err, fs.ErrExist) {
			log.Debug().Str(zerowrap.FieldPath, dest.Path).Msg("destination claimed concurrently, retrying")
			continue
		}

		log.Error().Err(err).Str(zerowrap.FieldPath, dest.Path).Msg("failed to create destination")
		return domain.AuthorizedPath{}, nil, domain.ErrWriteFailure
	}

	return domain.AuthorizedPath{}, nil, domain.ErrWriteFailure
}

// write copies content into file while hashing it and closes file on every
// path.
func (s *Service) write(file afero.File, content io.Reader) (n int64, h *digest.Hasher, err error) {
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close file: %w", cerr)
		}
	}()

	src := content
	if s.cfg.MaxUploadSize > 0 {
		src = io.LimitReader(content, s.cfg.MaxUploadSize+1)
	}

	h = digest.New()
	n, err = digest.Copy(io.MultiWriter(file, h), src, s.cfg.BufferSize)
	if err != nil {
		return n, nil, err
	}
	if s.cfg.MaxUploadSize > 0 && n > s.cfg.MaxUploadSize {
		return n, nil, domain.ErrTooLarge
	}
	if err := file.Sync(); err != nil {
		return n, nil, fmt.Errorf("failed to sync file: %w", err)
	}
	return n, h, nil
}

func (s *Service) discard(ctx context.Context, path string) {
	if err := s.fs.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log := zerowrap.FromCtx(ctx)
		log.Error().Err(err).Str(zerowrap.FieldPath, path).Msg("failed to remove partial file")
	}
}

// RequestHash re-validates sourcePath and asks the coordinator for digests.
func (s *Service) RequestHash(ctx context.Context, entryID, sourcePath string, force bool) (domain.JobStatus, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  "RequestHash",
		zerowrap.FieldEntityID: entryID,
	})

	if err := validation.ValidateEntryID(entryID); err != nil {
		return domain.JobStatus{}, domain.ErrNotFound
	}

	authorized, err := s.validator.ResolveForRead(ctx, sourcePath)
	if err != nil {
		return domain.JobStatus{}, domain.ErrPathDenied
	}

	return s.coordinator.RequestDigests(ctx, entryID, authorized, force)
}

// PollHash reports the digest state of an entry.
func (s *Service) PollHash(ctx context.Context, entryID string) (domain.JobStatus, error) {
	if err := validation.ValidateEntryID(entryID); err != nil {
		return domain.JobStatus{}, domain.ErrNotFound
	}
	return s.coordinator.PollStatus(ctx, entryID)
}

// DownloadEntry resolves an entry through the catalog and opens it. URL
// entries come back as a redirect.
func (s *Service) DownloadEntry(ctx context.Context, entryID string) (*in.Download, error) {
	entry, err := s.lookup(ctx, "DownloadEntry", entryID)
	if err != nil {
		return nil, err
	}

	if !entry.IsLocal() {
		return &in.Download{Entry: entry, RedirectURL: entry.Source}, nil
	}

	file, err := s.ServeFile(ctx, entry.ID, entry.Source)
	if err != nil {
		return nil, err
	}
	return &in.Download{Entry: entry, File: file}, nil
}

// RequestEntryHash resolves an entry through the catalog and requests digests.
func (s *Service) RequestEntryHash(ctx context.Context, entryID string, force bool) (domain.JobStatus, error) {
	entry, err := s.lookup(ctx, "RequestEntryHash", entryID)
	if err != nil {
		return domain.JobStatus{}, err
	}
	if !entry.IsLocal() {
		return domain.JobStatus{}, domain.ErrNotHashable
	}
	return s.RequestHash(ctx, entry.ID, entry.Source, force)
}

// PollEntryHash checks that the entry exists and reports its digest state.
func (s *Service) PollEntryHash(ctx context.Context, entryID string) (domain.JobStatus, error) {
	entry, err := s.lookup(ctx, "PollEntryHash", entryID)
	if err != nil {
		return domain.JobStatus{}, err
	}
	if !entry.IsLocal() {
		return domain.JobStatus{}, domain.ErrNotHashable
	}
	return s.PollHash(ctx, entry.ID)
}

// ForgetEntryHash drops the job record and cached digests of an entry.
func (s *Service) ForgetEntryHash(ctx context.Context, entryID string) error {
	entry, err := s.lookup(ctx, "ForgetEntryHash", entryID)
	if err != nil {
		return err
	}
	return s.coordinator.Forget(ctx, entry.ID)
}

// IngestUpload writes an upload, registers it in the catalog and seeds the
// digest cache with the digests computed while writing.
func (s *Service) IngestUpload(ctx context.Context, req in.IngestRequest) (*domain.Entry, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "IngestUpload",
		"created_by":          req.CreatedBy,
	})
	log := zerowrap.FromCtx(ctx)

	stored, err := s.IngestFile(ctx, req.Root, req.Filename, req.Content)
	if err != nil {
		return nil, err
	}

	entry := &domain.Entry{
		Name:      s.displayName(req.Name, stored.Name),
		Kind:      domain.StorageFilepath,
		Source:    stored.Path,
		FileType:  stored.FileType,
		Size:      stored.Size,
		CreatedBy: req.CreatedBy,
		CreatedAt: s.now(),
	}

	id, err := s.entries.AddEntry(ctx, entry)
	if err != nil {
		s.discard(ctx, stored.Path)
		return nil, log.WrapErr(err, "failed to register entry")
	}
	entry.ID = id

	err = s.cache.Store(ctx, id, domain.CacheEntry{
		Digests:    stored.Digests,
		ComputedAt: s.now(),
		SourcePath: stored.Path,
		Size:       stored.Size,
		ModTime:    stored.ModTime,
	})
	if err != nil {
		// The digests can be recomputed on demand.
		log.Warn().Err(err).Msg("failed to seed digest cache")
	}

	log.Info().Str(zerowrap.FieldEntityID, id).Msg("upload registered")
	return entry, nil
}

// ListEntries returns the catalog ordered by creation time.
func (s *Service) ListEntries(ctx context.Context) ([]*domain.Entry, error) {
	entries, err := s.entries.ListEntries(ctx)
	if err != nil {
		return nil, zerowrap.FromCtx(ctx).WrapErr(err, "failed to list entries")
	}
	return entries, nil
}

// DeleteEntry drops the job record and cached digests, then removes the
// entry. It refuses while a digest computation for the entry is running.
func (s *Service) DeleteEntry(ctx context.Context, entryID string) error {
	entry, err := s.lookup(ctx, "DeleteEntry", entryID)
	if err != nil {
		return err
	}
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  "DeleteEntry",
		zerowrap.FieldEntityID: entry.ID,
	})
	log := zerowrap.FromCtx(ctx)

	if err := s.coordinator.Forget(ctx, entry.ID); err != nil {
		return err
	}

	err = s.entries.DeleteEntry(ctx, entry.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrNotFound
	}
	if err != nil {
		return log.WrapErr(err, "failed to delete entry")
	}

	log.Info().Msg("entry deleted")
	return nil
}

func (s *Service) lookup(ctx context.Context, op, entryID string) (*domain.Entry, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:    "usecase",
		zerowrap.FieldUseCase:  op,
		zerowrap.FieldEntityID: entryID,
	})

	if err := validation.ValidateEntryID(entryID); err != nil {
		return nil, domain.ErrNotFound
	}

	entry, err := s.entries.GetEntry(ctx, entryID)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, zerowrap.FromCtx(ctx).WrapErr(err, "failed to load entry")
	}
	return entry, nil
}

// displayName strips markup from a client supplied name and falls back to
// the stored file name.
func (s *Service) displayName(name, fallback string) string {
	name = html.UnescapeString(s.policy.Sanitize(name))
	name = strings.Join(strings.Fields(name), " ")
	if name == "" {
		return fallback
	}
	if utf8.RuneCountInString(name) > maxDisplayNameRunes {
		name = string([]rune(name)[:maxDisplayNameRunes])
	}
	return name
}
