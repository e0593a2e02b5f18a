package toolkit

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"aca-sandbox/internal/audit"
)

// DefaultReadLines is how many lines Read returns when none are requested.
const DefaultReadLines = 20

var errOutsideDir = errors.New("path is outside the sandbox directory")

// Read returns the first lines of a file inside the sandbox directory.
// Relative paths are resolved against that directory.
func (s *Service) Read(ctx context.Context, path string, lines int) string {
	if lines < 1 {
		lines = s.settings.ReadLines
	}

	out, err := s.readHead(path, lines)
	if err != nil {
		s.record(ctx, audit.ModeRead, path, audit.StatusFailed)
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return "File not found: " + path
		case errors.Is(err, errOutsideDir):
			return fmt.Sprintf("Error: %s: %v", path, err)
		default:
			return fmt.Sprintf("Error reading file: %v", err)
		}
	}
	s.record(ctx, audit.ModeRead, path, audit.StatusOK)
	return out
}

func (s *Service) readHead(path string, lines int) (string, error) {
	full, err := s.resolve(path)
	if err != nil {
		return "", err
	}

	f, err := os.Open(full) // #nosec G304 -- confined to the sandbox directory by resolve
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%s is a directory", path)
	}

	var b strings.Builder
	r := bufio.NewReader(f)
	for i := 0; i < lines; i++ {
		line, err := r.ReadString('\n')
		b.WriteString(line)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return strings.ToValidUTF8(b.String(), ""), nil
}

// resolve maps path into the sandbox directory, following symlinks so a
// link cannot point the read elsewhere.
func (s *Service) resolve(path string) (string, error) {
	root, err := filepath.Abs(s.settings.Dir)
	if err != nil {
		return "", err
	}
	if r, err := filepath.EvalSymlinks(root); err == nil {
		root = r
	}

	full := path
	if !filepath.IsAbs(full) {
		full = filepath.Join(root, full)
	}
	full = filepath.Clean(full)
	if r, err := filepath.EvalSymlinks(full); err == nil {
		full = r
	}

	rel, err := filepath.Rel(root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errOutsideDir
	}
	return full, nil
}
