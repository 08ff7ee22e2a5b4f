package attach_test

import (
	"errors"
	"testing"

	"sitelog/internal/attach"
	"sitelog/internal/config"
)

func TestGatePhotoRules(t *testing.T) {
	g := attach.NewGate(config.Default())
	if err := g.Validate(attach.ClassPhoto, attach.FileMeta{OriginalName: "site.jpg", ContentType: "image/jpeg", Size: 1024}); err != nil {
		t.Fatalf("expected jpeg accepted: %v", err)
	}
	if err := g.Validate(attach.ClassPhoto, attach.FileMeta{OriginalName: "site.heic", ContentType: "IMAGE/HEIC; q=1", Size: 10}); err != nil {
		t.Fatalf("expected any image type accepted: %v", err)
	}
	if err := g.Validate(attach.ClassPhoto, attach.FileMeta{OriginalName: "exact.png", ContentType: "image/png", Size: config.DefaultPhotoMaxBytes}); err != nil {
		t.Fatalf("expected file at limit accepted: %v", err)
	}
	err := g.Validate(attach.ClassPhoto, attach.FileMeta{OriginalName: "big.png", ContentType: "image/png", Size: config.DefaultPhotoMaxBytes + 1})
	var rejected *attach.RejectedError
	if !errors.As(err, &rejected) {
		t.Fatalf("expected oversize photo rejected, got %v", err)
	}
	if err := g.Validate(attach.ClassPhoto, attach.FileMeta{OriginalName: "notes.pdf", ContentType: "application/pdf", Size: 10}); err == nil {
		t.Fatalf("expected pdf rejected as photo")
	}
}

func TestGateDocumentRules(t *testing.T) {
	g := attach.NewGate(config.Default())
	accepted := []string{
		"application/pdf",
		"application/msword",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
		"application/vnd.ms-excel",
		"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		"image/jpeg",
		"image/png",
		"image/gif",
	}
	for _, ct := range accepted {
		if err := g.Validate(attach.ClassDocument, attach.FileMeta{OriginalName: "doc", ContentType: ct, Size: 100}); err != nil {
			t.Fatalf("expected %s accepted: %v", ct, err)
		}
	}
	for _, ct := range []string{"application/zip", "image/webp", "text/plain", ""} {
		err := g.Validate(attach.ClassDocument, attach.FileMeta{OriginalName: "archive.zip", ContentType: ct, Size: 100})
		var rejected *attach.RejectedError
		if !errors.As(err, &rejected) {
			t.Fatalf("expected %q rejected, got %v", ct, err)
		}
		if rejected.Class != attach.ClassDocument {
			t.Fatalf("unexpected class %q", rejected.Class)
		}
	}
	if err := g.Validate(attach.ClassDocument, attach.FileMeta{OriginalName: "big.pdf", ContentType: "application/pdf", Size: config.DefaultDocumentMaxBytes + 1}); err == nil {
		t.Fatalf("expected oversize document rejected")
	}
}

func TestGateConfiguredLimits(t *testing.T) {
	cfg := config.Default()
	cfg.Attachments.PhotoMaxBytes = 10
	g := attach.NewGate(cfg)
	if err := g.Validate(attach.ClassPhoto, attach.FileMeta{ContentType: "image/png", Size: 11}); err == nil {
		t.Fatalf("expected configured photo limit enforced")
	}
	if g.DocumentMaxBytes != config.DefaultDocumentMaxBytes {
		t.Fatalf("expected default document limit, got %d", g.DocumentMaxBytes)
	}
}
