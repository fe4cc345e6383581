package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/ruteri/scone-policy-sessions/interfaces"
)

// StorageBackendFactory creates storage backends from location URIs.
type StorageBackendFactory struct {
	log     *slog.Logger
	workDir string
}

// NewStorageBackendFactory creates a factory. Relative file:// locations are
// resolved against workDir.
func NewStorageBackendFactory(log *slog.Logger, workDir string) *StorageBackendFactory {
	return &StorageBackendFactory{log: log, workDir: workDir}
}

// StorageBackendFor creates a storage backend from a location URI.
//
// Supported schemes:
//
//   - file://  local directory (file://archive, file:///abs/path)
//   - s3://    s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=..&endpoint=..&path_style=true
//   - ipfs://  ipfs://host:port/?timeout=30s
func (sf *StorageBackendFactory) StorageBackendFor(uri string) (interfaces.StorageBackend, error) {
	loc, err := interfaces.NewStorageBackendLocation(uri)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "file":
		return sf.createFileBackend(loc)
	case "s3":
		return sf.createS3Backend(loc)
	case "ipfs":
		return sf.createIPFSBackend(loc)
	default:
		return nil, fmt.Errorf("%w: unsupported backend scheme: %s", interfaces.ErrInvalidLocationURI, loc.Scheme)
	}
}

// CreateMultiBackend creates a backend writing to every location. Locations
// that cannot be configured are skipped with a warning.
func (sf *StorageBackendFactory) CreateMultiBackend(uris []string) (interfaces.StorageBackend, error) {
	backends := make([]interfaces.StorageBackend, 0, len(uris))

	for _, uri := range uris {
		backend, err := sf.StorageBackendFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create storage backend",
				"err", err,
				slog.String("location", uri))
			continue
		}
		backends = append(backends, backend)
	}

	if len(backends) == 0 {
		return nil, fmt.Errorf("no valid storage backends created")
	}

	return NewMultiStorageBackend(backends, sf.log), nil
}

func (sf *StorageBackendFactory) createFileBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	path := loc.Path
	if loc.Host != "" {
		path = loc.Host + "/" + strings.TrimPrefix(path, "/")
	}
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI: %s", interfaces.ErrInvalidLocationURI, loc)
	}
	if !filepath.IsAbs(path) && sf.workDir != "" {
		path = filepath.Join(sf.workDir, path)
	}

	sf.log.Debug("Creating file backend", slog.String("path", path))
	return NewFileBackend(path, sf.log)
}

func (sf *StorageBackendFactory) createS3Backend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	cfg := S3Config{
		Bucket:    loc.Host,
		Prefix:    strings.TrimPrefix(loc.Path, "/"),
		Region:    loc.Param("region"),
		Endpoint:  loc.Param("endpoint"),
		PathStyle: loc.Flag("path_style"),
	}
	if key, secret, ok := loc.Credentials(); ok {
		cfg.AccessKey, cfg.SecretKey = key, secret
		sf.log.Debug("Using embedded S3 credentials")
	}

	sf.log.Debug("Creating S3 backend", slog.String("bucket", cfg.Bucket))
	return NewS3Backend(cfg, sf.log)
}

func (sf *StorageBackendFactory) createIPFSBackend(loc interfaces.StorageBackendLocation) (interfaces.StorageBackend, error) {
	host, port, found := strings.Cut(loc.Host, ":")
	if !found || port == "" {
		port = "5001"
	}

	timeout := 30 * time.Second
	if raw := loc.Param("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid IPFS timeout %q", interfaces.ErrInvalidLocationURI, raw)
		}
		timeout = d
	}

	sf.log.Debug("Creating IPFS backend", slog.String("host", host), slog.String("port", port))
	return NewIPFSBackend(host, port, timeout, sf.log)
}
