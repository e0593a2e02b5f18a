package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// ManifestFile is the file name FileRecorder writes inside its directory.
const ManifestFile = "last_run.json"

// FileRecorder keeps the manifest as a JSON file. Writes go to a temp file
// that is renamed over the old one, so readers never see a partial entry.
type FileRecorder struct {
	mu   sync.Mutex
	path string
}

// NewFileRecorder returns a recorder writing to dir/last_run.json. The
// directory is created on first write.
func NewFileRecorder(dir string) *FileRecorder {
	return &FileRecorder{path: filepath.Join(dir, ManifestFile)}
}

// Path is the manifest location.
func (r *FileRecorder) Path() string { return r.path }

func (r *FileRecorder) Record(_ context.Context, e Entry) error {
	data, err := json.MarshalIndent(e, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := filepath.Dir(r.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating manifest directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".last_run-*.json")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), r.path); err != nil {
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}

func (r *FileRecorder) Last(_ context.Context) (Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return Entry{}, ErrNoEntry
	}
	if err != nil {
		return Entry{}, fmt.Errorf("reading manifest: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decoding manifest: %w", err)
	}
	return e, nil
}
