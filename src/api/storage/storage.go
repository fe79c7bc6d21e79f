// Package storage keeps uploaded files addressed by the hash of their content.
package storage

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrNotFound   = errors.New("file not found")
	ErrTooLarge   = errors.New("file too large")
	ErrInvalidCID = errors.New("invalid content id")
)

const cidPrefix = "b2-"

// Object describes a stored file.
type Object struct {
	CID         string    `json:"cid"`
	Name        string    `json:"name"`
	ContentType string    `json:"contentType"`
	Size        int64     `json:"size"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Store is implemented by every backend. Put is idempotent: storing the same
// bytes twice returns the first object.
type Store interface {
	Put(ctx context.Context, name, contentType string, r io.Reader) (Object, error)
	Open(ctx context.Context, cid string) (io.ReadCloser, Object, error)
	Stat(ctx context.Context, cid string) (Object, error)
	Backend() string
}

// ValidCID reports whether cid has the form b2-<64 lowercase hex>.
func ValidCID(cid string) bool {
	if !strings.HasPrefix(cid, cidPrefix) {
		return false
	}
	h := cid[len(cidPrefix):]
	if len(h) != 2*blake2b.Size256 {
		return false
	}
	for _, c := range h {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}

// ComputeCID hashes b the same way Put does.
func ComputeCID(b []byte) string {
	sum := blake2b.Sum256(b)
	return cidPrefix + hex.EncodeToString(sum[:])
}

// spooled is an upload buffered to a temp file so the CID is known before
// the bytes reach a backend.
type spooled struct {
	f    *os.File
	size int64
	cid  string
}

func spool(r io.Reader, dir string, limit int64) (*spooled, error) {
	h, err := blake2b.New256(nil)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	sp := &spooled{f: f}

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(io.MultiWriter(f, h), src)
	if err != nil {
		sp.Close()
		return nil, fmt.Errorf("buffer upload: %w", err)
	}
	if limit > 0 && n > limit {
		sp.Close()
		return nil, ErrTooLarge
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		sp.Close()
		return nil, err
	}
	sp.size = n
	sp.cid = cidPrefix + hex.EncodeToString(h.Sum(nil))
	return sp, nil
}

func (s *spooled) Close() {
	_ = s.f.Close()
	_ = os.Remove(s.f.Name())
}

func newObject(cid, name, contentType string, size int64) Object {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return Object{
		CID:         cid,
		Name:        cleanName(name),
		ContentType: contentType,
		Size:        size,
		CreatedAt:   time.Now().UTC(),
	}
}

func cleanName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return "file"
	}
	return name
}
