package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

const (
	diskSubdir    = "ipfs"
	sidecarSuffix = ".json"
)

// DiskStore keeps blobs under <dir>/ipfs/<cid> with a JSON sidecar holding
// the metadata.
type DiskStore struct {
	root    string
	maxSize int64
	mu      sync.Mutex
}

func NewDiskStore(dir string, maxSize int64) (*DiskStore, error) {
	root := filepath.Join(dir, diskSubdir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &DiskStore{root: root, maxSize: maxSize}, nil
}

func (d *DiskStore) Backend() string { return "disk" }

func (d *DiskStore) blobPath(cid string) string    { return filepath.Join(d.root, cid) }
func (d *DiskStore) sidecarPath(cid string) string { return filepath.Join(d.root, cid+sidecarSuffix) }

func (d *DiskStore) Put(_ context.Context, name, contentType string, r io.Reader) (Object, error) {
	sp, err := spool(r, d.root, d.maxSize)
	if err != nil {
		return Object{}, err
	}
	defer sp.Close()

	d.mu.Lock()
	defer d.mu.Unlock()

	if obj, err := d.readSidecar(sp.cid); err == nil {
		return obj, nil
	}

	if err := sp.f.Close(); err != nil {
		return Object{}, err
	}
	if err := os.Rename(sp.f.Name(), d.blobPath(sp.cid)); err != nil {
		return Object{}, fmt.Errorf("store blob: %w", err)
	}

	obj := newObject(sp.cid, name, contentType, sp.size)
	if err := d.writeSidecar(obj); err != nil {
		return Object{}, err
	}
	return obj, nil
}

func (d *DiskStore) Open(_ context.Context, cid string) (io.ReadCloser, Object, error) {
	obj, err := d.stat(cid)
	if err != nil {
		return nil, Object{}, err
	}
	f, err := os.Open(d.blobPath(cid))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, err
	}
	return f, obj, nil
}

func (d *DiskStore) Stat(_ context.Context, cid string) (Object, error) {
	return d.stat(cid)
}

func (d *DiskStore) stat(cid string) (Object, error) {
	if !ValidCID(cid) {
		return Object{}, ErrInvalidCID
	}
	return d.readSidecar(cid)
}

func (d *DiskStore) readSidecar(cid string) (Object, error) {
	data, err := os.ReadFile(d.sidecarPath(cid))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("read metadata: %w", err)
	}
	var obj Object
	if err := json.Unmarshal(data, &obj); err != nil {
		return Object{}, fmt.Errorf("parse metadata: %w", err)
	}
	return obj, nil
}

func (d *DiskStore) writeSidecar(obj Object) error {
	data, err := json.MarshalIndent(obj, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	tmp := d.sidecarPath(obj.CID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	return os.Rename(tmp, d.sidecarPath(obj.CID))
}
