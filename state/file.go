package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/ruteri/scone-policy-sessions/interfaces"
)

// DefaultFile is the state file name inside the working directory.
const DefaultFile = "state.js"

var _ interfaces.StateStore = (*FileStore)(nil)

// FileStore keeps the record as indented JSON in a local file.
type FileStore struct {
	path     string
	defaults interfaces.StateDefaults
	log      *slog.Logger
}

func NewFileStore(path string, defaults interfaces.StateDefaults, log *slog.Logger) *FileStore {
	return &FileStore{path: path, defaults: defaults, log: log}
}

func (s *FileStore) Load(ctx context.Context) (interfaces.PolicyState, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.log.Info("No state file, initializing state", slog.String("path", s.path))
		return s.defaults()
	}
	if err != nil {
		return interfaces.PolicyState{}, fmt.Errorf("reading state %s: %w", s.path, err)
	}
	return decodeState(data, s.path)
}

// Save writes the record to a temporary file in the same directory and
// renames it over the previous one.
func (s *FileStore) Save(ctx context.Context, state interfaces.PolicyState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	// the record holds the OTP secret
	if err := writeFileAtomic(s.path, data, 0600); err != nil {
		return fmt.Errorf("writing state %s: %w", s.path, err)
	}
	s.log.Debug("Written state", slog.String("path", s.path))
	return nil
}

func (s *FileStore) LocationURI() string {
	return "file://" + s.path
}

func encodeState(state interfaces.PolicyState) ([]byte, error) {
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}
	return data, nil
}

func decodeState(data []byte, location string) (interfaces.PolicyState, error) {
	var state interfaces.PolicyState
	if err := json.Unmarshal(data, &state); err != nil {
		return interfaces.PolicyState{}, fmt.Errorf("%w: %s: %v", interfaces.ErrCorruptState, location, err)
	}
	return state, nil
}

func writeFileAtomic(path string, content []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Chmod(mode); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	cleanup = false
	return nil
}
