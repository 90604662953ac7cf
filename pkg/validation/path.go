// Package validation provides input validation functions for security-critical operations.
// These functions implement defense-in-depth against path traversal and injection attacks.
package validation

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Entry identifiers are opaque keys: letters, digits, '-' and '_'.
var entryIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]{0,63}$`)

// MaxBaseNameLength caps the sanitized file name, extension excluded.
const MaxBaseNameLength = 200

// reservedChars are removed from client supplied file names.
const reservedChars = `/\:*?"<>|`

// ValidateEntryID validates a catalog entry identifier.
func ValidateEntryID(id string) error {
	if id == "" {
		return fmt.Errorf("entry id cannot be empty")
	}
	if !entryIDRegex.MatchString(id) {
		return fmt.Errorf("invalid entry id format")
	}
	return nil
}

// SanitizeFilename treats a client supplied file name as an opaque label and
// returns a safe base name and lower-cased extension (without the dot).
// Directory components, parent sequences, reserved and control characters
// are dropped. An error is returned when nothing usable remains.
func SanitizeFilename(name string) (base, ext string, err error) {
	if !utf8.ValidString(name) {
		return "", "", fmt.Errorf("file name is not valid UTF-8")
	}

	// Keep only the last component, whatever the client's separator was.
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}

	name = strings.Map(func(r rune) rune {
		if strings.ContainsRune(reservedChars, r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)

	for strings.Contains(name, "..") {
		name = strings.ReplaceAll(name, "..", ".")
	}

	rawExt := filepath.Ext(name)
	if rawExt == "" || rawExt == name {
		return "", "", fmt.Errorf("file name has no extension")
	}
	ext = strings.ToLower(strings.TrimPrefix(rawExt, "."))
	if strings.TrimSpace(ext) != ext || ext == "" {
		return "", "", fmt.Errorf("invalid extension")
	}

	base = strings.Trim(strings.TrimSuffix(name, rawExt), ". ")
	if base == "" {
		return "", "", fmt.Errorf("file name is empty after sanitization")
	}

	if len(base) > MaxBaseNameLength {
		base = truncateUTF8(base, MaxBaseNameLength)
		base = strings.TrimRight(base, ". ")
	}

	return base, ext, nil
}

// HasParentSegment reports whether any component of path is "..".
func HasParentSegment(path string) bool {
	for _, part := range strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == filepath.Separator
	}) {
		if part == ".." {
			return true
		}
	}
	return false
}

// WithinRoot reports whether path lies strictly inside root. Both arguments
// must already be canonical; the comparison is done component-wise so that
// "/data/up" does not contain "/data/uploads".
func WithinRoot(root, path string) bool {
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(path)

	rel, err := filepath.Rel(cleanRoot, cleanPath)
	if err != nil {
		return false
	}
	if rel == "." || rel == ".." || filepath.IsAbs(rel) {
		return false
	}
	return !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
