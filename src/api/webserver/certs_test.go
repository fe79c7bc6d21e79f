package webserver

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writePair writes a self-signed pair for name and stamps both files with
// mtime so reloads do not depend on filesystem timestamp resolution.
func writePair(t *testing.T, dir, name string, mtime time.Time) (string, string) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: name},
		DNSNames:     []string{name},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(90 * 24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "tls.crt")
	keyFile := filepath.Join(dir, "tls.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	require.NoError(t, os.Chtimes(certFile, mtime, mtime))
	require.NoError(t, os.Chtimes(keyFile, mtime, mtime))
	return certFile, keyFile
}

func servedName(t *testing.T, cfg *tls.Config) string {
	t.Helper()
	pair, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	require.NotNil(t, pair)
	leaf, err := x509.ParseCertificate(pair.Certificate[0])
	require.NoError(t, err)
	return leaf.Subject.CommonName
}

func TestCertReloaderPicksUpRenewal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	certFile, keyFile := writePair(t, dir, "first.example", base)

	r, err := NewCertReloader(ctx, certFile, keyFile, time.Hour)
	require.NoError(t, err)
	cfg := r.TLSConfig()
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.Equal(t, "first.example", servedName(t, cfg))
	assert.True(t, r.NotAfter().After(time.Now()))

	changed, err := r.Check(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	writePair(t, dir, "second.example", base.Add(time.Minute))
	changed, err = r.Check(ctx)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "second.example", servedName(t, cfg))

	// a half-written renewal keeps the previous pair in service
	require.NoError(t, os.WriteFile(certFile, []byte("not a certificate"), 0o600))
	later := base.Add(2 * time.Minute)
	require.NoError(t, os.Chtimes(certFile, later, later))
	_, err = r.Check(ctx)
	assert.Error(t, err)
	assert.Equal(t, "second.example", servedName(t, cfg))
}

func TestCertReloaderWatchesFiles(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	dir := t.TempDir()
	base := time.Now().Add(-time.Hour)
	certFile, keyFile := writePair(t, dir, "before.example", base)

	r, err := NewCertReloader(ctx, certFile, keyFile, 10*time.Millisecond)
	require.NoError(t, err)
	cfg := r.TLSConfig()

	writePair(t, dir, "after.example", base.Add(time.Minute))
	assert.Eventually(t, func() bool {
		pair, err := cfg.GetCertificate(&tls.ClientHelloInfo{})
		if err != nil {
			return false
		}
		leaf, err := x509.ParseCertificate(pair.Certificate[0])
		return err == nil && leaf.Subject.CommonName == "after.example"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCertReloaderNeedsReadableFiles(t *testing.T) {
	dir := t.TempDir()
	_, err := NewCertReloader(context.Background(), filepath.Join(dir, "missing.crt"), filepath.Join(dir, "missing.key"), 0)
	assert.Error(t, err)

	certFile, keyFile := writePair(t, dir, "ok.example", time.Now())
	require.NoError(t, os.WriteFile(keyFile, []byte("garbage"), 0o600))
	_, err = NewCertReloader(context.Background(), certFile, keyFile, 0)
	assert.Error(t, err)
}
