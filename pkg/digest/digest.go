// Package digest computes the content fingerprints of a stream in one pass.
package digest

import (
	"crypto/md5" //nolint:gosec // MD5 is published as a checksum, not used for security.
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sync"
)

// DefaultBufferSize is the read buffer used when hashing files.
const DefaultBufferSize = 1 << 20 // 1MB

var bufferPool = sync.Pool{
	New: func() interface{} {
		buffer := make([]byte, DefaultBufferSize)
		return &buffer
	},
}

// Hasher feeds every written byte to MD5 and SHA-256 at once.
type Hasher struct {
	md5    hash.Hash
	sha256 hash.Hash
	w      io.Writer
	n      int64
}

// New returns an empty Hasher.
func New() *Hasher {
	h := &Hasher{
		md5:    md5.New(), //nolint:gosec
		sha256: sha256.New(),
	}
	h.w = io.MultiWriter(h.md5, h.sha256)
	return h
}

// Write implements io.Writer. It never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	n, err := h.w.Write(p)
	h.n += int64(n)
	return n, err
}

// Size returns the number of bytes hashed so far.
func (h *Hasher) Size() int64 {
	return h.n
}

// MD5 returns the hex encoded MD5 of the data written so far.
func (h *Hasher) MD5() string {
	return hex.EncodeToString(h.md5.Sum(nil))
}

// SHA256 returns the hex encoded SHA-256 of the data written so far.
func (h *Hasher) SHA256() string {
	return hex.EncodeToString(h.sha256.Sum(nil))
}

// Copy copies src to dst with a pooled buffer. A bufSize of zero or one
// equal to DefaultBufferSize uses the pool.
func Copy(dst io.Writer, src io.Reader, bufSize int) (int64, error) {
	var buffer []byte
	if bufSize <= 0 || bufSize == DefaultBufferSize {
		bufPtr := bufferPool.Get().(*[]byte)
		defer bufferPool.Put(bufPtr)
		buffer = *bufPtr
	} else {
		buffer = make([]byte, bufSize)
	}

	n, err := io.CopyBuffer(dst, onlyReader{src}, buffer)
	if err != nil {
		return n, fmt.Errorf("failed to copy content: %w", err)
	}
	return n, nil
}

// onlyReader hides WriterTo/ReaderFrom so CopyBuffer really uses the buffer.
type onlyReader struct {
	io.Reader
}
