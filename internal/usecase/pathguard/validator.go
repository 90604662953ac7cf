// Package pathguard implements the path authorization use case. Every file
// the service reads or writes is resolved here first.
package pathguard

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bnema/zerowrap"

	"github.com/bnema/catalogd/internal/boundaries/in"
	"github.com/bnema/catalogd/internal/domain"
	"github.com/bnema/catalogd/pkg/validation"
)

// Ensure Validator implements in.PathValidator.
var _ in.PathValidator = (*Validator)(nil)

// DefaultMaxCollisions bounds the "_N" suffix search of ResolveForWrite.
const DefaultMaxCollisions = 1000

// Root is a named allowed directory.
type Root struct {
	Name string
	Path string
}

// Config lists the directories files may live in.
type Config struct {
	UploadRoot    string
	ScanRoots     []Root
	Extensions    []string
	MaxCollisions int
}

// Validator authorizes paths against a fixed set of roots. It is immutable
// after construction and safe for concurrent use without locking.
type Validator struct {
	upload        Root
	scan          []Root
	extensions    map[string]struct{}
	maxCollisions int
}

// NewValidator canonicalizes the configured roots. Every root must be an
// existing absolute directory.
func NewValidator(cfg Config) (*Validator, error) {
	upload, err := canonicalRoot(Root{Name: "upload", Path: cfg.UploadRoot})
	if err != nil {
		return nil, err
	}

	v := &Validator{
		upload:        upload,
		extensions:    make(map[string]struct{}, len(cfg.Extensions)),
		maxCollisions: cfg.MaxCollisions,
	}
	if v.maxCollisions <= 0 {
		v.maxCollisions = DefaultMaxCollisions
	}

	seen := map[string]bool{upload.Name: true}
	for _, r := range cfg.ScanRoots {
		if r.Name == "" || seen[r.Name] {
			return nil, fmt.Errorf("%w: scan root name %q is empty or duplicated", domain.ErrInvalidConfig, r.Name)
		}
		seen[r.Name] = true

		root, err := canonicalRoot(r)
		if err != nil {
			return nil, err
		}
		v.scan = append(v.scan, root)
	}

	for _, ext := range cfg.Extensions {
		ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
		if ext != "" {
			v.extensions[ext] = struct{}{}
		}
	}
	if len(v.extensions) == 0 {
		return nil, fmt.Errorf("%w: no allowed file extensions", domain.ErrInvalidConfig)
	}

	return v, nil
}

func canonicalRoot(r Root) (Root, error) {
	if r.Path == "" || !filepath.IsAbs(r.Path) {
		return Root{}, fmt.Errorf("%w: root %q must be an absolute path", domain.ErrInvalidConfig, r.Name)
	}

	resolved, err := filepath.EvalSymlinks(filepath.Clean(r.Path))
	if err != nil {
		return Root{}, fmt.Errorf("%w: root %q: %v", domain.ErrInvalidConfig, r.Name, err)
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return Root{}, fmt.Errorf("%w: root %q: %v", domain.ErrInvalidConfig, r.Name, err)
	}
	if !info.IsDir() {
		return Root{}, fmt.Errorf("%w: root %q is not a directory", domain.ErrInvalidConfig, r.Name)
	}

	return Root{Name: r.Name, Path: resolved}, nil
}

// UploadRoot returns the canonical upload root.
func (v *Validator) UploadRoot() string {
	return v.upload.Path
}

// Roots returns every allowed root, upload root first.
func (v *Validator) Roots() []Root {
	roots := make([]Root, 0, len(v.scan)+1)
	roots = append(roots, v.upload)
	return append(roots, v.scan...)
}

// RootPath maps a root selector to its canonical directory. The empty
// selector and "upload" select the upload root.
func (v *Validator) RootPath(selector string) (string, error) {
	if selector == "" || selector == v.upload.Name {
		return v.upload.Path, nil
	}
	for _, r := range v.scan {
		if r.Name == selector {
			return r.Path, nil
		}
	}
	return "", domain.ErrPathDenied
}

// AllowsExtension reports whether ext (without dot) is on the allow-list.
func (v *Validator) AllowsExtension(ext string) bool {
	_, ok := v.extensions[strings.ToLower(ext)]
	return ok
}

// ResolveForRead canonicalizes candidate and checks it is a regular file
// strictly inside an allowed root.
func (v *Validator) ResolveForRead(ctx context.Context, candidate string) (domain.AuthorizedPath, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "ResolveForRead",
	})

	if candidate == "" || strings.ContainsRune(candidate, 0) {
		return deny(ctx, candidate, "empty or malformed path")
	}
	if !filepath.IsAbs(candidate) {
		return deny(ctx, candidate, "path is not absolute")
	}
	if validation.HasParentSegment(candidate) {
		return deny(ctx, candidate, "path contains parent directory segment")
	}

	canonical, err := filepath.EvalSymlinks(filepath.Clean(candidate))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return deny(ctx, candidate, "path does not exist or symlink is broken")
		}
		return deny(ctx, candidate, "cannot resolve path: "+err.Error())
	}

	root, ok := v.containingRoot(canonical)
	if !ok {
		return deny(ctx, candidate, "resolved path is outside allowed roots")
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return deny(ctx, candidate, "cannot stat resolved path: "+err.Error())
	}
	if !info.Mode().IsRegular() {
		return deny(ctx, candidate, "resolved path is not a regular file")
	}

	return domain.AuthorizedPath{
		Path:    canonical,
		Root:    root.Path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// ResolveForWrite sanitizes filename, checks its extension and returns the
// first free destination inside root, appending "_N" on collisions.
func (v *Validator) ResolveForWrite(ctx context.Context, filename, root string) (domain.AuthorizedPath, error) {
	ctx = zerowrap.CtxWithFields(ctx, map[string]any{
		zerowrap.FieldLayer:   "usecase",
		zerowrap.FieldUseCase: "ResolveForWrite",
		"root":                root,
	})

	rootPath, ok := v.matchRoot(root)
	if !ok {
		return deny(ctx, filename, "target is not a configured root")
	}

	base, ext, err := validation.SanitizeFilename(filename)
	if err != nil {
		return deny(ctx, filename, err.Error())
	}
	if !v.AllowsExtension(ext) {
		return deny(ctx, filename, "extension ."+ext+" is not allowed")
	}

	for i := 0; i < v.maxCollisions; i++ {
		name := base + "." + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d.%s", base, i, ext)
		}

		dest := filepath.Join(rootPath, name)
		if filepath.Dir(dest) != rootPath || !validation.WithinRoot(rootPath, dest) {
			return deny(ctx, filename, "sanitized path escapes root")
		}

		_, err := os.Lstat(dest)
		if errors.Is(err, fs.ErrNotExist) {
			return domain.AuthorizedPath{Path: dest, Root: rootPath}, nil
		}
		if err != nil {
			return deny(ctx, filename, "cannot stat destination: "+err.Error())
		}
	}

	return deny(ctx, filename, "too many files with the same name")
}

func (v *Validator) containingRoot(canonical string) (Root, bool) {
	for _, r := range v.Roots() {
		if validation.WithinRoot(r.Path, canonical) {
			return r, true
		}
	}
	return Root{}, false
}

// matchRoot accepts a root either by its configured canonical path or by a
// path that canonicalizes to it.
func (v *Validator) matchRoot(root string) (string, bool) {
	if root == "" || !filepath.IsAbs(root) {
		return "", false
	}

	resolved, err := filepath.EvalSymlinks(filepath.Clean(root))
	if err != nil {
		return "", false
	}
	for _, r := range v.Roots() {
		if r.Path == resolved {
			return r.Path, true
		}
	}
	return "", false
}

func deny(ctx context.Context, candidate, reason string) (domain.AuthorizedPath, error) {
	log := zerowrap.FromCtx(ctx)
	log.Warn().
		Str(zerowrap.FieldPath, candidate).
		Str("reason", reason).
		Msg("path denied")
	return domain.AuthorizedPath{}, domain.ErrPathDenied
}
