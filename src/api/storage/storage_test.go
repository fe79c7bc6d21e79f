package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stake-plus/escrow-market/src/api/config"
)

func TestDiskRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewDiskStore(dir, 1<<20)
	require.NoError(t, err)

	payload := make([]byte, 64<<10)
	_, err = rand.Read(payload)
	require.NoError(t, err)

	obj, err := s.Put(ctx, "../../etc/report.pdf", "application/pdf", bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, ComputeCID(payload), obj.CID)
	assert.True(t, ValidCID(obj.CID))
	assert.Equal(t, "report.pdf", obj.Name)
	assert.Equal(t, int64(len(payload)), obj.Size)

	rc, meta, err := s.Open(ctx, obj.CID)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(payload, got))
	assert.Equal(t, "application/pdf", meta.ContentType)

	_, err = os.Stat(filepath.Join(dir, "ipfs", obj.CID+".json"))
	assert.NoError(t, err)
}

func TestDiskPutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir(), 0)
	require.NoError(t, err)

	first, err := s.Put(ctx, "a.txt", "text/plain", strings.NewReader("same bytes"))
	require.NoError(t, err)
	second, err := s.Put(ctx, "b.txt", "", strings.NewReader("same bytes"))
	require.NoError(t, err)

	assert.Equal(t, first, second)

	entries, err := os.ReadDir(s.root)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "blob and sidecar only")
}

func TestDiskRejectsOversizedUpload(t *testing.T) {
	s, err := NewDiskStore(t.TempDir(), 8)
	require.NoError(t, err)

	_, err = s.Put(context.Background(), "big", "", strings.NewReader("123456789"))
	assert.ErrorIs(t, err, ErrTooLarge)

	entries, err := os.ReadDir(s.root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestDiskLookupErrors(t *testing.T) {
	ctx := context.Background()
	s, err := NewDiskStore(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = s.Stat(ctx, "../secret")
	assert.ErrorIs(t, err, ErrInvalidCID)

	_, _, err = s.Open(ctx, ComputeCID([]byte("never stored")))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestValidCID(t *testing.T) {
	good := ComputeCID([]byte("x"))
	assert.True(t, ValidCID(good))
	assert.False(t, ValidCID(strings.ToUpper(good)))
	assert.False(t, ValidCID(good[:len(good)-1]))
	assert.False(t, ValidCID("Qm"+good[3:]))
}

func TestFromConfigDisk(t *testing.T) {
	s, closeFn, err := FromConfig(context.Background(), config.StorageConfig{Backend: "disk", UploadDir: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, "disk", s.Backend())
	assert.NoError(t, closeFn(context.Background()))

	_, _, err = FromConfig(context.Background(), config.StorageConfig{Backend: "tape"})
	assert.ErrorContains(t, err, "unknown storage backend")
}
