package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"sitelog/internal/config"
	"sitelog/internal/db"
	"sitelog/internal/domain"
	"sitelog/internal/migrate"
	"sitelog/internal/notify"
	"sitelog/internal/repo"
)

const stamp = "2024-03-01T08:00:00Z"

func newRepo(t *testing.T) repo.Repo {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	if err := r.InsertUser(ctx, domain.User{ID: "tl-1", Name: "Tess Leader", Role: domain.RoleTeamLeader, CreatedAt: stamp}); err != nil {
		t.Fatal(err)
	}
	if err := r.InsertProject(ctx, domain.Project{ID: "proj-1", Name: "Harbor Tower", CreatedAt: stamp}); err != nil {
		t.Fatal(err)
	}
	return r
}

func seedLog(t *testing.T, r repo.Repo) {
	t.Helper()
	ctx := context.Background()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer tx.Rollback()
	err = r.InsertLog(ctx, tx, domain.Log{
		ID: "log-1", Date: "2024-03-01", StartTime: stamp, EndTime: stamp, WorkDescription: "Pour slab",
		TeamLeaderID: "tl-1", ProjectID: "proj-1", Status: domain.StatusApproved, CreatedAt: stamp, UpdatedAt: stamp,
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestDispatcherWritesInbox(t *testing.T) {
	r := newRepo(t)
	seedLog(t, r)
	d := notify.NewDispatcher(r, zap.NewNop(), config.Default())
	d.Start()
	d.NotifyDuplicateAttempt("tl-1", "2024-03-01", "proj-1")
	d.NotifyLogApproved("log-1")
	d.Close()

	items, err := r.ListNotifications(context.Background(), "tl-1", 10)
	if err != nil {
		t.Fatalf("list notifications: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(items))
	}
	types := map[string]domain.Notification{}
	for _, n := range items {
		types[n.Type] = n
	}
	approved, ok := types[notify.TypeLogApproved]
	if !ok || approved.RelatedLogID == nil || *approved.RelatedLogID != "log-1" {
		t.Fatalf("expected approval notification tied to log-1: %+v", approved)
	}
	dup, ok := types[notify.TypeDuplicateAttempt]
	if !ok || dup.RelatedLogID != nil {
		t.Fatalf("expected duplicate notification without related log: %+v", dup)
	}
}

func TestDispatcherSurvivesMissingLog(t *testing.T) {
	r := newRepo(t)
	d := notify.NewDispatcher(r, zap.NewNop(), config.Default())
	d.Start()
	d.NotifyLogApproved("missing")
	d.Close()
	// enqueue after close is dropped, not a panic
	d.NotifyLogApproved("missing")
}

func TestDispatcherPostsWebhook(t *testing.T) {
	r := newRepo(t)
	var (
		mu       sync.Mutex
		received []map[string]any
		headers  []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(req.Body).Decode(&body)
		mu.Lock()
		received = append(received, body)
		headers = append(headers, req.Header.Get("X-Sitelog-Event"))
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.Default()
	cfg.Notifications.Webhooks = []config.WebhookConfig{
		{URL: srv.URL, Events: []string{notify.TypeDuplicateAttempt}, Secret: "s3cret"},
	}
	d := notify.NewDispatcher(r, zap.NewNop(), cfg)
	d.Now = func() time.Time { return time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC) }
	d.Start()
	d.NotifyDuplicateAttempt("tl-1", "2024-03-01", "proj-1")
	d.NotifyLogApproved("missing")
	d.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(received) != 1 {
		t.Fatalf("expected one webhook delivery, got %d", len(received))
	}
	if headers[0] != notify.TypeDuplicateAttempt {
		t.Fatalf("unexpected event header %q", headers[0])
	}
	if received[0]["user_id"] != "tl-1" || received[0]["created_at"] != "2024-03-01T09:00:00Z" {
		t.Fatalf("unexpected payload %+v", received[0])
	}
}
