package attach

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Storage writes accepted attachments below Root, one directory per class.
type Storage struct {
	Root string
	Now  func() time.Time
}

func (s Storage) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// StorageName derives a collision-resistant file name from the owning log,
// the current time and a random component, keeping the original extension.
func StorageName(logID string, at time.Time, originalName string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(originalName)))
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%d-%s%s", logID, at.UnixNano(), random, ext)
}

// Store writes data for logID and returns the stored path. The containment
// directory is created on first use. Content is written to a temporary file
// and renamed so readers never observe a partial file.
func (s Storage) Store(ctx context.Context, logID string, class Class, data []byte, contentType, originalName string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if strings.TrimSpace(logID) == "" {
		return "", fmt.Errorf("store attachment: log id required")
	}
	dir := filepath.Join(s.Root, string(class)+"s")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("store attachment: ensure dir: %w", err)
	}
	target := filepath.Join(dir, StorageName(logID, s.now(), originalName))
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("store attachment: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("store attachment: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("store attachment: close: %w", err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("store attachment: rename: %w", err)
	}
	return target, nil
}

// Remove deletes a previously stored file. Missing files are not an error.
func (s Storage) Remove(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
