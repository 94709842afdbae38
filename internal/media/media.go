// Package media stores photo files on disk and serves them back.
// Files live under a single root keyed by doll id; names carry a
// timestamp and a random suffix so uploads never collide.
package media

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"dolltrack/internal/inventory"
)

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
	".gif":  {},
}

// Store saves and resolves photo files under Root.
type Store struct {
	Root string
}

func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create photos dir: %w", err)
	}
	return &Store{Root: root}, nil
}

// ValidateExtension rejects filenames whose extension is not an
// accepted image type.
func ValidateExtension(filename string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := allowedExtensions[ext]; !ok {
		return "", fmt.Errorf("%w: file type %q not allowed", inventory.ErrValidation, ext)
	}
	return ext, nil
}

// Save writes an uploaded photo and returns its relative path, of the
// form "<dollID>/<timestamp>_<random>.<ext>". The relative path is what
// gets stored and later served under /media/.
func (s *Store) Save(dollID int64, filename string, r io.Reader) (string, error) {
	ext, err := ValidateExtension(filename)
	if err != nil {
		return "", err
	}
	rel := fmt.Sprintf("%d/%s_%s%s",
		dollID,
		time.Now().UTC().Format("20060102T150405"),
		uuid.NewString()[:8],
		ext,
	)
	abs := filepath.Join(s.Root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return "", fmt.Errorf("create doll dir: %w", err)
	}
	f, err := os.Create(abs)
	if err != nil {
		return "", fmt.Errorf("create photo file: %w", err)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		os.Remove(abs)
		return "", fmt.Errorf("write photo file: %w", err)
	}
	return rel, nil
}

// Resolve maps a request path to an absolute file path under Root.
// Anything that escapes the root after cleaning is rejected.
func (s *Store) Resolve(rel string) (string, error) {
	cleaned := path.Clean("/" + strings.ReplaceAll(rel, "\\", "/"))
	if cleaned == "/" {
		return "", fmt.Errorf("%w: photo", inventory.ErrNotFound)
	}
	abs := filepath.Join(s.Root, filepath.FromSlash(cleaned))

	rootAbs, err := filepath.Abs(s.Root)
	if err != nil {
		return "", err
	}
	fileAbs, err := filepath.Abs(abs)
	if err != nil {
		return "", err
	}
	if fileAbs != rootAbs && !strings.HasPrefix(fileAbs, rootAbs+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: photo", inventory.ErrNotFound)
	}
	info, err := os.Stat(fileAbs)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: photo", inventory.ErrNotFound)
	}
	return fileAbs, nil
}

// Remove deletes a stored photo file. Missing files are not an error;
// the database row is the source of truth.
func (s *Store) Remove(rel string) error {
	abs, err := s.Resolve(rel)
	if err != nil {
		return nil
	}
	return os.Remove(abs)
}
