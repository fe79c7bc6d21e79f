package webserver

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/stake-plus/escrow-market/src/logging"
)

const (
	defaultCertCheck = 5 * time.Minute
	expiryWarning    = 14 * 24 * time.Hour
)

// CertReloader serves the API's key pair and swaps it in place when the
// files on disk are renewed. A renewal that fails to parse keeps the
// previous pair in service.
type CertReloader struct {
	certFile string
	keyFile  string

	mu       sync.RWMutex
	pair     *tls.Certificate
	notAfter time.Time
	stamp    fileStamp
}

// fileStamp identifies one version of the key pair on disk.
type fileStamp struct {
	cert, key time.Time
}

// NewCertReloader loads the pair and, until ctx is done, checks the files
// every interval (five minutes when interval is zero).
func NewCertReloader(ctx context.Context, certFile, keyFile string, interval time.Duration) (*CertReloader, error) {
	r := &CertReloader{certFile: certFile, keyFile: keyFile}
	stamp, err := r.stat()
	if err != nil {
		return nil, err
	}
	if err := r.load(ctx, stamp); err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = defaultCertCheck
	}
	go r.watch(ctx, interval)
	return r, nil
}

func (r *CertReloader) stat() (fileStamp, error) {
	ci, err := os.Stat(r.certFile)
	if err != nil {
		return fileStamp{}, err
	}
	ki, err := os.Stat(r.keyFile)
	if err != nil {
		return fileStamp{}, err
	}
	return fileStamp{cert: ci.ModTime(), key: ki.ModTime()}, nil
}

func (r *CertReloader) load(ctx context.Context, stamp fileStamp) error {
	pair, err := tls.LoadX509KeyPair(r.certFile, r.keyFile)
	if err != nil {
		return fmt.Errorf("loading key pair: %w", err)
	}
	leaf := pair.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
			return fmt.Errorf("parsing certificate: %w", err)
		}
	}

	r.mu.Lock()
	r.pair = &pair
	r.notAfter = leaf.NotAfter
	r.stamp = stamp
	r.mu.Unlock()

	logging.Info(ctx, "TLS certificate loaded", "cert", r.certFile, "subject", leaf.Subject.String(),
		"not_after", leaf.NotAfter)
	if left := time.Until(leaf.NotAfter); left < expiryWarning {
		logging.Warn(ctx, "TLS certificate expires soon", "cert", r.certFile, "remaining", left.Round(time.Hour))
	}
	return nil
}

// Check reloads the pair when either file changed since the last load and
// reports whether a new pair is now being served.
func (r *CertReloader) Check(ctx context.Context) (bool, error) {
	stamp, err := r.stat()
	if err != nil {
		return false, err
	}
	r.mu.RLock()
	current := r.stamp
	r.mu.RUnlock()
	if !stamp.cert.After(current.cert) && !stamp.key.After(current.key) {
		return false, nil
	}
	if err := r.load(ctx, stamp); err != nil {
		return false, err
	}
	return true, nil
}

func (r *CertReloader) watch(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := r.Check(ctx); err != nil {
			logging.Error(ctx, "TLS certificate reload failed, keeping the current pair", "error", err)
		}
	}
}

// NotAfter is the expiry of the pair in service.
func (r *CertReloader) NotAfter() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.notAfter
}

func (r *CertReloader) certificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pair, nil
}

// TLSConfig serves whatever pair is current at handshake time.
func (r *CertReloader) TLSConfig() *tls.Config {
	return &tls.Config{
		GetCertificate: r.certificate,
		MinVersion:     tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}
