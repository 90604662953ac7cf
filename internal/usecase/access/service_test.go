package access

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/bnema/zerowrap"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/bnema/catalogd/internal/adapters/out/digester"
	"github.com/bnema/catalogd/internal/adapters/out/memory"
	"github.com/bnema/catalogd/internal/boundaries/in"
	"github.com/bnema/catalogd/internal/boundaries/out"
	"github.com/bnema/catalogd/internal/boundaries/out/mocks"
	"github.com/bnema/catalogd/internal/domain"
	"github.com/bnema/catalogd/internal/usecase/hashjob"
	"github.com/bnema/catalogd/internal/usecase/pathguard"
)

const (
	helloMD5    = "5eb63bbbe01eeed093cb22bb8f5acdc3"
	helloSHA256 = "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
)

func testContext() context.Context {
	return zerowrap.WithCtx(context.Background(), zerowrap.Default())
}

func realDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	return dir
}

type fixture struct {
	upload  string
	library string
	outside string
	store   *memory.Store
	svc     *Service
}

type fixtureOption func(*fixtureSettings)

type fixtureSettings struct {
	cfg     Config
	fs      afero.Fs
	entries out.EntryStore
}

func withConfig(cfg Config) fixtureOption {
	return func(s *fixtureSettings) { s.cfg = cfg }
}

func withFs(fs afero.Fs) fixtureOption {
	return func(s *fixtureSettings) { s.fs = fs }
}

func withEntries(e out.EntryStore) fixtureOption {
	return func(s *fixtureSettings) { s.entries = e }
}

func newFixture(t *testing.T, opts ...fixtureOption) fixture {
	t.Helper()
	f := fixture{
		upload:  realDir(t),
		library: realDir(t),
		outside: realDir(t),
		store:   memory.New(),
	}

	settings := fixtureSettings{fs: afero.NewOsFs(), entries: f.store}
	for _, opt := range opts {
		opt(&settings)
	}

	validator, err := pathguard.NewValidator(pathguard.Config{
		UploadRoot: f.upload,
		ScanRoots:  []pathguard.Root{{Name: "library", Path: f.library}},
		Extensions: []string{"nsp", "nsz", "xci"},
	})
	require.NoError(t, err)

	log := zerowrap.Default()
	coordinator := hashjob.NewCoordinator(
		hashjob.Config{Workers: 2, QueueDepth: 8},
		validator,
		f.store,
		digester.NewComputer(afero.NewOsFs(), 0, log),
		nil,
		log,
	)
	coordinator.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = coordinator.Stop(ctx)
	})

	f.svc = NewService(settings.cfg, validator, coordinator, settings.entries, f.store, settings.fs)
	return f
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func readAll(t *testing.T, f afero.File) string {
	t.Helper()
	defer f.Close()
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	return string(data)
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestIngestUpload_ServeRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := testContext()

	entry, err := f.svc.IngestUpload(ctx, in.IngestRequest{
		Filename:  "../../etc/passwd.nsp",
		Name:      "My Game",
		CreatedBy: "alice",
		Content:   strings.NewReader("hello world"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.upload, "passwd.nsp"), entry.Source)
	assert.Equal(t, "My Game", entry.Name)
	assert.Equal(t, "nsp", entry.FileType)
	assert.Equal(t, int64(11), entry.Size)
	assert.Equal(t, domain.StorageFilepath, entry.Kind)

	dl, err := f.svc.DownloadEntry(ctx, entry.ID)
	require.NoError(t, err)
	assert.Empty(t, dl.RedirectURL)
	assert.Equal(t, "hello world", readAll(t, dl.File))

	// Digests computed while writing are served without a job.
	status, err := f.svc.PollEntryHash(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobReady, status.State)
	assert.Equal(t, helloMD5, status.Digests.MD5)
	assert.Equal(t, helloSHA256, status.Digests.SHA256)

	status, err = f.svc.RequestEntryHash(ctx, entry.ID, false)
	require.NoError(t, err)
	assert.Equal(t, domain.JobReady, status.State)
	assert.Empty(t, status.JobID)
}

func TestIngestFile_CollisionGetsSuffix(t *testing.T) {
	f := newFixture(t)
	ctx := testContext()

	first, err := f.svc.IngestFile(ctx, "", "game.nsp", strings.NewReader("one"))
	require.NoError(t, err)
	second, err := f.svc.IngestFile(ctx, "", "game.nsp", strings.NewReader("two"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(f.upload, "game.nsp"), first.Path)
	assert.Equal(t, filepath.Join(f.upload, "game_1.nsp"), second.Path)
	assert.Equal(t, "game_1", second.Name)
}

func TestIngestFile_ScanRootSelector(t *testing.T) {
	f := newFixture(t)

	stored, err := f.svc.IngestFile(testContext(), "library", "dlc.XCI", strings.NewReader("dlc"))

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(f.library, "dlc.xci"), stored.Path)
	assert.Equal(t, "xci", stored.FileType)
	assert.False(t, stored.ModTime.IsZero())
}

func TestIngestFile_Denied(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name     string
		root     string
		filename string
	}{
		{"unknown root", "elsewhere", "game.nsp"},
		{"extension not allowed", "", "script.sh"},
		{"name sanitizes to nothing", "", "../.."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.IngestFile(testContext(), tt.root, tt.filename, strings.NewReader("x"))
			assert.ErrorIs(t, err, domain.ErrPathDenied)
		})
	}
	assert.Empty(t, dirNames(t, f.upload))
}

func TestIngestFile_NilContent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.IngestFile(testContext(), "", "game.nsp", nil)

	assert.ErrorIs(t, err, domain.ErrInvalidUpload)
}

func TestIngestFile_TooLargeRemovesPartialFile(t *testing.T) {
	f := newFixture(t, withConfig(Config{MaxUploadSize: 4}))

	_, err := f.svc.IngestFile(testContext(), "", "game.nsp", strings.NewReader("0123456789"))

	assert.ErrorIs(t, err, domain.ErrTooLarge)
	assert.Empty(t, dirNames(t, f.upload))
}

func TestIngestFile_ExactlyMaxSize(t *testing.T) {
	f := newFixture(t, withConfig(Config{MaxUploadSize: 4}))

	stored, err := f.svc.IngestFile(testContext(), "", "game.nsp", strings.NewReader("0123"))

	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Size)
}

func TestIngestFile_ReadErrorRemovesPartialFile(t *testing.T) {
	f := newFixture(t)
	content := io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("connection reset")))

	_, err := f.svc.IngestFile(testContext(), "", "game.nsp", content)

	assert.ErrorIs(t, err, domain.ErrWriteFailure)
	assert.NotContains(t, err.Error(), "connection reset")
	assert.Empty(t, dirNames(t, f.upload))
}

func TestIngestFile_ReadOnlyFilesystem(t *testing.T) {
	f := newFixture(t, withFs(afero.NewReadOnlyFs(afero.NewOsFs())))

	_, err := f.svc.IngestFile(testContext(), "", "game.nsp", strings.NewReader("data"))

	assert.ErrorIs(t, err, domain.ErrWriteFailure)
	assert.Empty(t, dirNames(t, f.upload))
}

func TestIngestUpload_CatalogFailureRemovesFile(t *testing.T) {
	entries := &mocks.MockEntryStore{}
	entries.On("AddEntry", mock.Anything, mock.Anything).Return("", errors.New("disk full"))
	f := newFixture(t, withEntries(entries))

	_, err := f.svc.IngestUpload(testContext(), in.IngestRequest{
		Filename: "game.nsp",
		Content:  strings.NewReader("data"),
	})

	assert.Error(t, err)
	assert.Empty(t, dirNames(t, f.upload))
	entries.AssertExpectations(t)
}

func TestIngestUpload_DisplayName(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"markup stripped", "<b>Zelda</b> & <script>alert(1)</script>Link", "Zelda & Link"},
		{"whitespace collapsed", "  Super   Game  ", "Super Game"},
		{"empty falls back to file name", "", "game"},
		{"markup only falls back", "<img src=x>", "game"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry, err := f.svc.IngestUpload(testContext(), in.IngestRequest{
				Filename: "game.nsp",
				Name:     tt.input,
				Content:  strings.NewReader("x"),
			})
			require.NoError(t, err)
			want := tt.want
			if want == "game" {
				want = strings.TrimSuffix(filepath.Base(entry.Source), ".nsp")
			}
			assert.Equal(t, want, entry.Name)
		})
	}
}

func TestServeFile_OutOfRootDenied(t *testing.T) {
	f := newFixture(t)
	secret := filepath.Join(f.outside, "passwd.nsp")
	writeFile(t, secret, "root:x:0:0")

	_, err := f.svc.ServeFile(testContext(), "42", secret)
	assert.ErrorIs(t, err, domain.ErrPathDenied)

	_, err = f.svc.ServeFile(testContext(), "42", f.upload+"/../"+filepath.Base(f.outside)+"/passwd.nsp")
	assert.ErrorIs(t, err, domain.ErrPathDenied)
}

func TestDownloadEntry(t *testing.T) {
	f := newFixture(t)
	ctx := testContext()
	outside := filepath.Join(f.outside, "game.nsp")
	writeFile(t, outside, "secret")

	remoteID, err := f.store.AddEntry(ctx, &domain.Entry{Name: "Remote", Kind: domain.StorageURL, Source: "https://cdn.example.com/game.nsp"})
	require.NoError(t, err)
	outsideID, err := f.store.AddEntry(ctx, &domain.Entry{Name: "Outside", Kind: domain.StorageFilepath, Source: outside})
	require.NoError(t, err)

	dl, err := f.svc.DownloadEntry(ctx, remoteID)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/game.nsp", dl.RedirectURL)
	assert.Nil(t, dl.File)

	_, err = f.svc.DownloadEntry(ctx, outsideID)
	assert.ErrorIs(t, err, domain.ErrPathDenied)

	_, err = f.svc.DownloadEntry(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.svc.DownloadEntry(ctx, "../etc")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRequestEntryHash_ComputesInBackground(t *testing.T) {
	f := newFixture(t)
	ctx := testContext()
	path := filepath.Join(f.library, "game.nsp")
	writeFile(t, path, "hello world")

	id, err := f.store.AddEntry(ctx, &domain.Entry{Name: "Game", Kind: domain.StorageFilepath, Source: path})
	require.NoError(t, err)

	status, err := f.svc.RequestEntryHash(ctx, id, false)
	require.NoError(t, err)
	assert.Contains(t, []domain.JobState{domain.JobProcessing, domain.JobReady}, status.State)

	require.Eventually(t, func() bool {
		s, err := f.svc.PollEntryHash(ctx, id)
		return err == nil && s.State == domain.JobReady
	}, 5*time.Second, 10*time.Millisecond)

	final, err := f.svc.PollEntryHash(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, helloMD5, final.Digests.MD5)
	assert.Equal(t, helloSHA256, final.Digests.SHA256)
}

func TestRequestEntryHash_URLEntryNotHashable(t *testing.T) {
	f := newFixture(t)
	ctx := testContext()
	id, err := f.store.AddEntry(ctx, &domain.Entry{Name: "Remote", Kind: domain.StorageURL, Source: "https://cdn.example.com/a.nsp"})
	require.NoError(t, err)

	_, err = f.svc.RequestEntryHash(ctx, id, false)
	assert.ErrorIs(t, err, domain.ErrNotHashable)

	_, err = f.svc.PollEntryHash(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotHashable)
}

func TestRequestHash_Denied(t *testing.T) {
	f := newFixture(t)
	secret := filepath.Join(f.outside, "passwd.nsp")
	writeFile(t, secret, "x")

	_, err := f.svc.RequestHash(testContext(), "42", secret, false)
	assert.ErrorIs(t, err, domain.ErrPathDenied)

	_, err = f.svc.RequestHash(testContext(), "bad/id", filepath.Join(f.upload, "game.nsp"), false)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	status, err := f.svc.PollHash(testContext(), "42")
	require.NoError(t, err)
	assert.Equal(t, domain.JobAbsent, status.State)
}

func TestForgetEntryHash(t *testing.T) {
	f := newFixture(t)
	ctx := testContext()

	entry, err := f.svc.IngestUpload(ctx, in.IngestRequest{Filename: "game.nsp", Content: strings.NewReader("hello world")})
	require.NoError(t, err)

	require.NoError(t, f.svc.ForgetEntryHash(ctx, entry.ID))

	status, err := f.svc.PollEntryHash(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobAbsent, status.State)

	assert.ErrorIs(t, f.svc.ForgetEntryHash(ctx, "missing"), domain.ErrNotFound)
}

func TestListAndDeleteEntry(t *testing.T) {
	f := newFixture(t)
	ctx := testContext()

	first, err := f.svc.IngestUpload(ctx, in.IngestRequest{Filename: "first.nsp", Content: strings.NewReader("one")})
	require.NoError(t, err)
	second, err := f.svc.IngestUpload(ctx, in.IngestRequest{Filename: "second.xci", Content: strings.NewReader("two")})
	require.NoError(t, err)

	listed, err := f.svc.ListEntries(ctx)
	require.NoError(t, err)
	ids := make([]string, 0, len(listed))
	for _, e := range listed {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{first.ID, second.ID}, ids)

	require.NoError(t, f.svc.DeleteEntry(ctx, first.ID))

	_, err = f.svc.PollEntryHash(ctx, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, cached, err := f.store.Lookup(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, cached)
	// Only the catalog record goes; the file stays on disk.
	assert.FileExists(t, first.Source)

	listed, err = f.svc.ListEntries(ctx)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, second.ID, listed[0].ID)

	assert.ErrorIs(t, f.svc.DeleteEntry(ctx, first.ID), domain.ErrNotFound)
	assert.ErrorIs(t, f.svc.DeleteEntry(ctx, "bad/id"), domain.ErrNotFound)
}

// busyCoordinator reports a computation in progress for every entry.
type busyCoordinator struct {
	in.HashCoordinator
}

func (busyCoordinator) Forget(context.Context, string) error {
	return domain.ErrJobRunning
}

func TestDeleteEntry_RefusedWhileHashing(t *testing.T) {
	upload := realDir(t)
	validator, err := pathguard.NewValidator(pathguard.Config{UploadRoot: upload, Extensions: []string{"nsp"}})
	require.NoError(t, err)
	store := memory.New()
	svc := NewService(Config{}, validator, busyCoordinator{}, store, store, afero.NewOsFs())
	ctx := testContext()

	id, err := store.AddEntry(ctx, &domain.Entry{Name: "Game", Kind: domain.StorageFilepath, Source: filepath.Join(upload, "game.nsp")})
	require.NoError(t, err)

	assert.ErrorIs(t, svc.DeleteEntry(ctx, id), domain.ErrJobRunning)

	entry, err := store.GetEntry(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, entry.ID)
}

func TestListEntries_StoreError(t *testing.T) {
	entries := &mocks.MockEntryStore{}
	entries.On("ListEntries", mock.Anything).Return(nil, errors.New("db down"))
	f := newFixture(t, withEntries(entries))

	_, err := f.svc.ListEntries(testContext())

	assert.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}
