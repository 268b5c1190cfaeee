package state

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrStateCorruption is returned by Load when the sidecar cannot be turned
// into a valid DownloadState.
var ErrStateCorruption = errors.New("state file is corrupt")

const sidecarSuffix = ".state"

// SidecarPath returns the hidden state file that sits beside outputPath.
func SidecarPath(outputPath string) string {
	dir := filepath.Dir(outputPath)
	return filepath.Join(dir, "."+filepath.Base(outputPath)+sidecarSuffix)
}

// Store persists a DownloadState in the sidecar file of one output path.
type Store struct {
	path string
}

func NewStore(outputPath string) *Store {
	return &Store{path: SidecarPath(outputPath)}
}

func (s *Store) Path() string {
	return s.path
}

func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Save writes the state to a temporary file next to the sidecar and renames
// it into place, so readers only ever see a complete document.
func (s *Store) Save(st *DownloadState) error {
	data, err := json.MarshalIndent(st, "", "    ")
	if err != nil {
		return fmt.Errorf("error encoding state: %w", err)
	}
	tmpPath := fmt.Sprintf("%s.%s.tmp", s.path, uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return fmt.Errorf("error creating temp state file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("error writing temp state file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("error syncing temp state file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("error closing temp state file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("error renaming state file: %w", err)
	}
	return nil
}

// Load reads and validates the sidecar. Any parse or validation failure is
// reported as ErrStateCorruption; a missing file is returned as is.
func (s *Store) Load() (*DownloadState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("error reading state file: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var st DownloadState
	if err := dec.Decode(&st); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStateCorruption, s.path, err)
	}
	if err := st.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStateCorruption, s.path, err)
	}
	return &st, nil
}

// Delete removes the sidecar. A missing sidecar is not an error.
func (s *Store) Delete() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("error removing state file: %w", err)
	}
	return nil
}
