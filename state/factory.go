package state

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/ruteri/scone-policy-sessions/interfaces"
)

// DefaultURI is the state location used when none is configured.
const DefaultURI = "file://" + DefaultFile

// NewStore creates a state store from a location URI:
//
//	file://state.js                      relative to workDir
//	file:///var/lib/scone/state.js       absolute
//	vault://host:8200/secret/scone/otp   KV v2 mount "secret", path "scone/otp"
//	vault://host:8200/secret/otp?tls=false
//
// A URI without a scheme is a file path.
func NewStore(uri, workDir string, defaults interfaces.StateDefaults, log *slog.Logger) (interfaces.StateStore, error) {
	if !strings.Contains(uri, "://") {
		return NewFileStore(resolvePath(uri, workDir), defaults, log), nil
	}

	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, fmt.Errorf("invalid state location %q: %w", uri, err)
	}

	switch parsed.Scheme {
	case "file":
		path := parsed.Host + parsed.Path
		if path == "" {
			return nil, fmt.Errorf("invalid state location %q: missing path", uri)
		}
		return NewFileStore(resolvePath(path, workDir), defaults, log), nil

	case "vault":
		if parsed.Host == "" {
			return nil, fmt.Errorf("invalid state location %q: missing host", uri)
		}
		mount, path, ok := strings.Cut(strings.Trim(parsed.Path, "/"), "/")
		if !ok {
			return nil, fmt.Errorf("invalid state location %q: expected vault://host/mount/path", uri)
		}
		scheme := "https"
		if v := parsed.Query().Get("tls"); v == "false" || v == "0" {
			scheme = "http"
		}
		return NewVaultStore(scheme+"://"+parsed.Host, mount, path, parsed.Query().Get("token"), defaults, log)

	default:
		return nil, fmt.Errorf("unsupported state location scheme %q", parsed.Scheme)
	}
}

func resolvePath(path, workDir string) string {
	if filepath.IsAbs(path) || workDir == "" {
		return path
	}
	return filepath.Join(workDir, path)
}
