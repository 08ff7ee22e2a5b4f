// Package notify delivers lifecycle notifications off the request path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitelog/internal/config"
	"sitelog/internal/domain"
)

const (
	TypeDuplicateAttempt = "log.duplicate_attempt"
	TypeLogApproved      = "log.approved"

	defaultQueueSize      = 256
	defaultWebhookTimeout = 5 * time.Second
	deliveryTimeout       = 10 * time.Second
)

// Store is the persistence the dispatcher needs: an inbox to write to and
// enough of the directory to phrase messages.
type Store interface {
	InsertNotification(ctx context.Context, n domain.Notification) error
	GetLog(ctx context.Context, id string) (domain.Log, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
}

type job struct {
	kind      string
	userID    string
	date      string
	projectID string
	logID     string
}

// Dispatcher queues notifications and processes them on a single worker.
// Enqueueing never blocks; a full queue drops the notification with a warning.
type Dispatcher struct {
	store    Store
	logger   *zap.Logger
	webhooks []config.WebhookConfig
	client   *http.Client
	Now      func() time.Time

	mu     sync.Mutex
	closed bool
	queue  chan job
	wg     sync.WaitGroup
}

func NewDispatcher(store Store, logger *zap.Logger, cfg *config.Config) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	size := defaultQueueSize
	var hooks []config.WebhookConfig
	if cfg != nil {
		if cfg.Notifications.QueueSize > 0 {
			size = cfg.Notifications.QueueSize
		}
		hooks = cfg.Notifications.Webhooks
	}
	return &Dispatcher{
		store:    store,
		logger:   logger.Named("notify"),
		webhooks: hooks,
		client:   &http.Client{Timeout: defaultWebhookTimeout},
		queue:    make(chan job, size),
	}
}

// Start launches the worker. Call Close to drain and stop it.
func (d *Dispatcher) Start() {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for j := range d.queue {
			d.handle(j)
		}
	}()
}

// Close stops accepting notifications and waits for queued ones to finish.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) NotifyDuplicateAttempt(userID, date, projectID string) {
	d.enqueue(job{kind: TypeDuplicateAttempt, userID: userID, date: date, projectID: projectID})
}

func (d *Dispatcher) NotifyLogApproved(logID string) {
	d.enqueue(job{kind: TypeLogApproved, logID: logID})
}

func (d *Dispatcher) enqueue(j job) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, notification dropped", zap.String("type", j.kind))
		return
	}
	select {
	case d.queue <- j:
	default:
		d.logger.Warn("notification queue full, notification dropped", zap.String("type", j.kind))
	}
}

func (d *Dispatcher) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Dispatcher) handle(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()
	n, err := d.build(ctx, j)
	if err != nil {
		d.logger.Error("build notification", zap.String("type", j.kind), zap.Error(err))
		return
	}
	if err := d.store.InsertNotification(ctx, n); err != nil {
		d.logger.Error("store notification", zap.String("type", j.kind), zap.String("user_id", n.UserID), zap.Error(err))
	}
	for _, hook := range d.webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if !newEventFilter(hook.Events).match(n.Type) {
			continue
		}
		if err := d.post(ctx, hook, n); err != nil {
			d.logger.Warn("webhook delivery failed", zap.String("url", hook.URL), zap.String("type", n.Type), zap.Error(err))
		}
	}
}

func (d *Dispatcher) build(ctx context.Context, j job) (domain.Notification, error) {
	n := domain.Notification{
		ID:        uuid.NewString(),
		Type:      j.kind,
		CreatedAt: d.now().UTC().Format(time.RFC3339),
	}
	switch j.kind {
	case TypeDuplicateAttempt:
		n.UserID = j.userID
		n.Title = "Duplicate daily log"
		n.Content = fmt.Sprintf("A daily log for %s on %s already exists. Edit the existing log instead of creating a new one.",
			d.projectLabel(ctx, j.projectID), j.date)
	case TypeLogApproved:
		l, err := d.store.GetLog(ctx, j.logID)
		if err != nil {
			return n, fmt.Errorf("load log %s: %w", j.logID, err)
		}
		logID := l.ID
		n.UserID = l.TeamLeaderID
		n.RelatedLogID = &logID
		n.Title = "Daily log approved"
		n.Content = fmt.Sprintf("Your daily log for %s on %s has been approved.", d.projectLabel(ctx, l.ProjectID), l.Date)
	default:
		return n, fmt.Errorf("unknown notification type %q", j.kind)
	}
	return n, nil
}

func (d *Dispatcher) projectLabel(ctx context.Context, projectID string) string {
	p, err := d.store.GetProject(ctx, projectID)
	if err != nil || p.Name == "" {
		return "project " + projectID
	}
	return p.Name
}

type webhookPayload struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	UserID       string  `json:"user_id"`
	Title        string  `json:"title"`
	Content      string  `json:"content"`
	RelatedLogID *string `json:"related_log_id,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

func (d *Dispatcher) post(ctx context.Context, hook config.WebhookConfig, n domain.Notification) error {
	data, err := json.Marshal(webhookPayload{
		ID:           n.ID,
		Type:         n.Type,
		UserID:       n.UserID,
		Title:        n.Title,
		Content:      n.Content,
		RelatedLogID: n.RelatedLogID,
		CreatedAt:    n.CreatedAt,
	})
	if err != nil {
		return err
	}
	client := d.client
	if hook.TimeoutSeconds > 0 {
		client = &http.Client{Timeout: time.Duration(hook.TimeoutSeconds) * time.Second}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sitelog-Event", n.Type)
	req.Header.Set("X-Sitelog-Delivery", n.ID)
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Sitelog-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		if key := strings.TrimSpace(evt); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
