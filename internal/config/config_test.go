package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()
	if cfg.Server.BasePath != "/v0" || cfg.Server.Addr == "" {
		t.Fatalf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Attachments.PhotoMaxBytes != DefaultPhotoMaxBytes || cfg.Attachments.DocumentMaxBytes != DefaultDocumentMaxBytes {
		t.Fatalf("unexpected attachment limits: %+v", cfg.Attachments)
	}
	if cfg.Storage.Dir != "" {
		t.Fatalf("storage dir should default to empty, got %q", cfg.Storage.Dir)
	}
	if _, err := FromYAML([]byte(GenerateDefault())); err != nil {
		t.Fatalf("generated default does not parse: %v", err)
	}
}

func TestFromYAMLKeepsDefaultsForMissingKeys(t *testing.T) {
	cfg, err := FromYAML([]byte(`
attachments:
  photo_max_bytes: 1024
notifications:
  webhooks:
    - url: https://hooks.example.test/sitelog
      events: [log.approved]
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Attachments.PhotoMaxBytes != 1024 {
		t.Fatalf("override lost: %d", cfg.Attachments.PhotoMaxBytes)
	}
	if cfg.Attachments.DocumentMaxBytes != DefaultDocumentMaxBytes {
		t.Fatalf("default lost: %d", cfg.Attachments.DocumentMaxBytes)
	}
	if len(cfg.Notifications.Webhooks) != 1 || cfg.Notifications.QueueSize != 256 {
		t.Fatalf("unexpected notifications: %+v", cfg.Notifications)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"base_path":          "server:\n  base_path: v0\n",
		"photo_max_bytes":    "attachments:\n  photo_max_bytes: 0\n",
		"document_max_bytes": "attachments:\n  document_max_bytes: -1\n",
		"log.format":         "log:\n  format: xml\n",
		"timezone":           "report:\n  timezone: Mars/Olympus\n",
		"queue_size":         "notifications:\n  queue_size: -1\n",
		"url is required":    "notifications:\n  webhooks:\n    - events: [log.approved]\n",
	}
	for want, yml := range cases {
		_, err := FromYAML([]byte(yml))
		if err == nil || !strings.Contains(err.Error(), want) {
			t.Fatalf("%s: expected error mentioning %q, got %v", strings.TrimSpace(yml), want, err)
		}
	}
}

func TestLoadFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.BasePath != "/v0" {
		t.Fatalf("expected defaults, got %+v", cfg.Server)
	}
	path := filepath.Join(dir, "sitelog.yml")
	if err := os.WriteFile(path, []byte("server:\n  addr: 0.0.0.0:9000\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if cfg, err = Load(dir); err != nil || cfg.Server.Addr != "0.0.0.0:9000" {
		t.Fatalf("expected file config, got %+v err=%v", cfg, err)
	}
	if _, err := FromFile(filepath.Join(dir, "missing.yml")); err == nil {
		t.Fatalf("expected error for missing explicit file")
	}
}
