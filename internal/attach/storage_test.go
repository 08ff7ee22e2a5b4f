package attach_test

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"sitelog/internal/attach"
)

func TestStorageNameShape(t *testing.T) {
	at := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	name := attach.StorageName("log-1", at, "Site Photo.JPG")
	re := regexp.MustCompile(`^log-1-\d+-[0-9a-f]{8}\.jpg$`)
	if !re.MatchString(name) {
		t.Fatalf("unexpected storage name %q", name)
	}
	if other := attach.StorageName("log-1", at, "Site Photo.JPG"); other == name {
		t.Fatalf("expected random component to differ")
	}
}

func TestStorageCreatesDirectoryLazily(t *testing.T) {
	root := filepath.Join(t.TempDir(), "uploads")
	s := attach.Storage{Root: root}
	path, err := s.Store(context.Background(), "log-1", attach.ClassDocument, []byte("%PDF-1.4"), "application/pdf", "receipt.pdf")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	if filepath.Dir(path) != filepath.Join(root, "documents") {
		t.Fatalf("unexpected directory for %s", path)
	}
	if !strings.HasSuffix(path, ".pdf") {
		t.Fatalf("expected extension preserved: %s", path)
	}
	data, err := os.ReadFile(path)
	if err != nil || string(data) != "%PDF-1.4" {
		t.Fatalf("read stored file: %v %q", err, data)
	}
	entries, err := os.ReadDir(filepath.Join(root, "documents"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected only the stored file, got %d entries (%v)", len(entries), err)
	}
	if err := s.Remove(path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := s.Remove(path); err != nil {
		t.Fatalf("remove missing should be nil: %v", err)
	}
}
