// Package storage keeps uploaded files on local disk, partitioned by tenant.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("file exceeds upload limit")

// allowedExt lists the proposal formats we accept.
var allowedExt = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".odt":  true,
	".txt":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
}

// Local stores files under <root>/<tenantID>/<category>/.
type Local struct {
	root     string
	maxBytes int64
}

// NewLocal creates a disk store rooted at root.
func NewLocal(root string, maxBytes int64) (*Local, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve upload dir: %w", err)
	}
	if err := os.MkdirAll(abs, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create upload dir: %w", err)
	}
	return &Local{root: abs, maxBytes: maxBytes}, nil
}

// AllowedExtension reports whether filename has an accepted extension.
func AllowedExtension(filename string) bool {
	return allowedExt[strings.ToLower(filepath.Ext(filename))]
}

// Save writes r to a new file and returns its path. The original filename
// only contributes its extension.
func (l *Local) Save(ctx context.Context, tenantID, category, filename string, r io.Reader) (string, error) {
	if _, err := uuid.Parse(tenantID); err != nil {
		return "", fmt.Errorf("invalid tenant id %q", tenantID)
	}

	dir := filepath.Join(l.root, tenantID, category)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	path := filepath.Join(dir, uuid.New().String()+strings.ToLower(filepath.Ext(filename)))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}

	// Read one byte past the limit to detect oversized uploads
	n, copyErr := io.Copy(f, io.LimitReader(r, l.maxBytes+1))
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		os.Remove(path)
		return "", fmt.Errorf("failed to write file: %w", copyErr)
	case closeErr != nil:
		os.Remove(path)
		return "", fmt.Errorf("failed to close file: %w", closeErr)
	case l.maxBytes > 0 && n > l.maxBytes:
		os.Remove(path)
		return "", ErrTooLarge
	}

	if err := ctx.Err(); err != nil {
		os.Remove(path)
		return "", err
	}
	return path, nil
}

// Remove deletes a stored file. Paths outside the root are refused.
func (l *Local) Remove(path string) error {
	if !l.Contains(path) {
		return fmt.Errorf("refusing to remove %q outside upload dir", path)
	}
	return os.Remove(path)
}

// Contains reports whether path lies inside the store.
func (l *Local) Contains(path string) bool {
	rel, err := filepath.Rel(l.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
