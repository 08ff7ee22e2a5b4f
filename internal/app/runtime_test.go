package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"

	"sitelog/internal/config"
	"sitelog/internal/domain"
	"sitelog/internal/engine"
)

func TestResolveStorageDir(t *testing.T) {
	cfg := config.Default()
	ResolveStorageDir("/srv/site", cfg)
	if cfg.Storage.Dir != filepath.Join("/srv/site", ".sitelog", "uploads") {
		t.Fatalf("unexpected default storage dir %s", cfg.Storage.Dir)
	}
	cfg.Storage.Dir = "files"
	ResolveStorageDir("/srv/site", cfg)
	if cfg.Storage.Dir != filepath.Join("/srv/site", "files") {
		t.Fatalf("unexpected relative storage dir %s", cfg.Storage.Dir)
	}
	cfg.Storage.Dir = "/var/lib/sitelog"
	ResolveStorageDir("/srv/site", cfg)
	if cfg.Storage.Dir != "/var/lib/sitelog" {
		t.Fatalf("absolute dir should be kept, got %s", cfg.Storage.Dir)
	}
}

func TestOpenWiresNotifications(t *testing.T) {
	workspace := t.TempDir()
	yml := "attachments:\n  photo_max_bytes: 1048576\n"
	if err := os.WriteFile(config.Path(workspace), []byte(yml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	ctx := context.Background()
	rt, err := Open(ctx, workspace, Options{Logger: zap.NewNop()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer rt.DB.Close()
	if rt.Config.Attachments.PhotoMaxBytes != 1<<20 || rt.Engine.Gate.PhotoMaxBytes != 1<<20 {
		t.Fatalf("expected workspace config to load, got %d", rt.Config.Attachments.PhotoMaxBytes)
	}
	if !strings.HasPrefix(rt.Config.Storage.Dir, workspace) {
		t.Fatalf("storage dir %s should live in the workspace", rt.Config.Storage.Dir)
	}

	if _, err := rt.Actor(ctx, "nobody"); err == nil || !strings.Contains(err.Error(), "unknown user") {
		t.Fatalf("expected unknown user error, got %v", err)
	}

	r := rt.Engine.Repo
	const stamp = "2024-01-01T00:00:00Z"
	r.InsertUser(ctx, domain.User{ID: "tl-1", Name: "Tess", Role: domain.RoleTeamLeader, CreatedAt: stamp})
	r.InsertProject(ctx, domain.Project{ID: "proj-1", Name: "Harbor Tower", CreatedAt: stamp})
	opts := engine.LogCreateOptions{
		Date:            "2024-03-01",
		StartTime:       "2024-03-01T07:00:00Z",
		EndTime:         "2024-03-01T15:00:00Z",
		WorkDescription: "Formwork",
		ProjectID:       "proj-1",
	}
	if _, err := rt.Engine.Create(ctx, opts, "tl-1"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := rt.Engine.Create(ctx, opts, "tl-1"); err == nil {
		t.Fatalf("expected duplicate")
	}

	rt.Notifier.Close()
	items, err := r.ListNotifications(ctx, "tl-1", 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(items) != 1 || items[0].Type != "log.duplicate_attempt" {
		t.Fatalf("expected one duplicate notification, got %+v", items)
	}
}
