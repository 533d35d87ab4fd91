package server

import (
	"crypto/tls"
	"errors"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

var errNoCertificate = errors.New("no TLS certificate loaded")

// certReloader serves the current key pair and swaps it whenever the files
// on disk change, so rotated certificates apply without a restart.
type certReloader struct {
	mu       sync.RWMutex
	cert     *tls.Certificate
	certPath string
	keyPath  string
}

func newCertReloader(certPath, keyPath string) (*certReloader, error) {
	r := &certReloader{certPath: certPath, keyPath: keyPath}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *certReloader) reload() error {
	cert, err := tls.LoadX509KeyPair(r.certPath, r.keyPath)
	if err != nil {
		return err
	}

	r.mu.Lock()
	r.cert = &cert
	r.mu.Unlock()
	return nil
}

func (r *certReloader) GetCertificate(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.cert == nil {
		return nil, errNoCertificate
	}
	return r.cert, nil
}

func (r *certReloader) TLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion:     tls.VersionTLS12,
		GetCertificate: r.GetCertificate,
	}
}

// watch blocks until the watcher closes. A failed reload keeps the previous
// certificate.
func (r *certReloader) watch() {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		zap.L().Error("failed to create certificate watcher", zap.Error(err))
		return
	}
	defer watcher.Close()

	for _, path := range []string{r.certPath, r.keyPath} {
		if err := watcher.Add(path); err != nil {
			zap.L().Error("failed to watch certificate file", zap.String("path", path), zap.Error(err))
		}
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if err := r.reload(); err != nil {
				zap.L().Error("failed to reload TLS certificate", zap.Error(err))
				continue
			}
			zap.L().Info("TLS certificate reloaded", zap.String("path", event.Name))
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			zap.L().Error("certificate watcher error", zap.Error(err))
		}
	}
}
