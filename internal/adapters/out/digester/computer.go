// Package digester implements the digest computer on top of an afero filesystem.
package digester

import (
	"context"
	"fmt"
	"io"

	"github.com/bnema/zerowrap"
	"github.com/spf13/afero"

	"github.com/bnema/catalogd/internal/boundaries/out"
	"github.com/bnema/catalogd/internal/domain"
	"github.com/bnema/catalogd/pkg/digest"
)

// Ensure Computer implements out.DigestComputer.
var _ out.DigestComputer = (*Computer)(nil)

// Computer streams a file once through MD5 and SHA-256.
type Computer struct {
	fs         afero.Fs
	bufferSize int
	log        zerowrap.Logger
}

// NewComputer creates a digest computer reading through fs.
func NewComputer(fs afero.Fs, bufferSize int, log zerowrap.Logger) *Computer {
	return &Computer{
		fs:         fs,
		bufferSize: bufferSize,
		log:        log,
	}
}

// Compute hashes the file at path. Reading stops early when ctx is done.
func (c *Computer) Compute(ctx context.Context, path string) (domain.Digests, error) {
	file, err := c.fs.Open(path)
	if err != nil {
		return domain.Digests{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	// The path may have been swapped for a directory or FIFO since it was
	// authorized.
	info, err := file.Stat()
	if err != nil {
		return domain.Digests{}, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return domain.Digests{}, domain.ErrNotRegularFile
	}

	h := digest.New()
	n, err := digest.Copy(h, &ctxReader{ctx: ctx, r: file}, c.bufferSize)
	if err != nil {
		return domain.Digests{}, err
	}

	c.log.Debug().
		Str(zerowrap.FieldLayer, "adapter").
		Str(zerowrap.FieldAdapter, "digester").
		Str(zerowrap.FieldPath, path).
		Int64(zerowrap.FieldSize, n).
		Msg("file digested")

	return domain.Digests{MD5: h.MD5(), SHA256: h.SHA256()}, nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r *ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
