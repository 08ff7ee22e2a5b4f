package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sitelog/internal/attach"
	"sitelog/internal/config"
	"sitelog/internal/domain"
	"sitelog/internal/engine/auth"
	"sitelog/internal/events"
	"sitelog/internal/repo"
)

// Directory resolves ids to the users, projects and employees they name.
type Directory interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	GetProject(ctx context.Context, id string) (domain.Project, error)
	GetEmployee(ctx context.Context, id string) (domain.Employee, error)
}

// Notifier receives lifecycle notifications. Calls must not block.
type Notifier interface {
	NotifyDuplicateAttempt(userID, date, projectID string)
	NotifyLogApproved(logID string)
}

// FileStore keeps attachment bytes.
type FileStore interface {
	Store(ctx context.Context, logID string, class attach.Class, data []byte, contentType, originalName string) (string, error)
	Remove(path string) error
}

type nopNotifier struct{}

func (nopNotifier) NotifyDuplicateAttempt(string, string, string) {}
func (nopNotifier) NotifyLogApproved(string)                      {}

type Actor = auth.Actor

// LogFilter narrows List. Empty fields are ignored.
type LogFilter = repo.LogFilters

type Engine struct {
	DB        *sql.DB
	Repo      repo.Repo
	Directory Directory
	Events    events.Writer
	Notifier  Notifier
	Gate      attach.Gate
	Files     FileStore
	Config    *config.Config
	Logger    *zap.Logger
	Now       func() time.Time

	// beforeWrite runs between the duplicate pre-check and the write
	// transaction. Tests use it to race a competing writer.
	beforeWrite func(ctx context.Context)
}

// New wires an engine over db. Attachments are stored below cfg.Storage.Dir;
// callers resolve that directory before calling New.
func New(db *sql.DB, cfg *config.Config) Engine {
	if cfg == nil {
		cfg = config.Default()
	}
	r := repo.Repo{DB: db}
	return Engine{
		DB:        db,
		Repo:      r,
		Directory: r,
		Events:    events.Writer{},
		Notifier:  nopNotifier{},
		Gate:      attach.NewGate(cfg),
		Files:     attach.Storage{Root: cfg.Storage.Dir},
		Config:    cfg,
		Logger:    zap.NewNop(),
		Now:       time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) logger() *zap.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return zap.NewNop()
}

func (e Engine) notifier() Notifier {
	if e.Notifier != nil {
		return e.Notifier
	}
	return nopNotifier{}
}

func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// LogCreateOptions are the client-supplied fields of a new log. The owner is
// never part of the input.
type LogCreateOptions struct {
	Date              string
	StartTime         string
	EndTime           string
	WorkDescription   string
	Weather           *string
	IssuesEncountered *string
	NextSteps         *string
	ProjectID         string
	Employees         []string
	MaterialsUsed     []domain.Material
}

// Create stores a new draft log owned by requesterID.
func (e Engine) Create(ctx context.Context, opts LogCreateOptions, requesterID string) (domain.Log, error) {
	now := e.stamp()
	l := domain.Log{
		ID:                uuid.NewString(),
		Date:              opts.Date,
		StartTime:         opts.StartTime,
		EndTime:           opts.EndTime,
		WorkDescription:   opts.WorkDescription,
		Weather:           opts.Weather,
		IssuesEncountered: opts.IssuesEncountered,
		NextSteps:         opts.NextSteps,
		TeamLeaderID:      requesterID,
		ProjectID:         opts.ProjectID,
		Employees:         opts.Employees,
		MaterialsUsed:     opts.MaterialsUsed,
		Photos:            []domain.Photo{},
		Documents:         []domain.Document{},
		Status:            domain.StatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := normalizeLog(&l); err != nil {
		return domain.Log{}, err
	}
	if _, err := e.Directory.GetUser(ctx, requesterID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.Log{}, &ValidationError{Fields: map[string]string{"team_leader_id": "requester is not a known user"}}
		}
		return domain.Log{}, err
	}
	if err := e.requireProject(ctx, l.ProjectID); err != nil {
		return domain.Log{}, err
	}
	if err := e.rejectDuplicate(ctx, l, requesterID); err != nil {
		return domain.Log{}, err
	}
	if e.beforeWrite != nil {
		e.beforeWrite(ctx)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Log{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertLog(ctx, tx, l); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			tx.Rollback()
			return domain.Log{}, e.duplicateFromIndex(ctx, l, requesterID)
		}
		return domain.Log{}, err
	}
	if err := e.events().Append(ctx, tx, events.LogCreated, "log", l.ID, requesterID, events.EventPayload{
		"date": l.Date, "project_id": l.ProjectID, "status": l.Status,
	}); err != nil {
		return domain.Log{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Log{}, err
	}
	return l, nil
}

// LogUpdateOptions carries only the fields a client supplied. A nil pointer
// means "not provided". The optional text fields also carry a Set flag so an
// explicit null (Set with a nil value) clears the stored text.
type LogUpdateOptions struct {
	ID                   string
	Date                 *string
	StartTime            *string
	EndTime              *string
	WorkDescription      *string
	ProjectID            *string
	Weather              *string
	WeatherSet           bool
	IssuesEncountered    *string
	IssuesEncounteredSet bool
	NextSteps            *string
	NextStepsSet         bool
	Employees            *[]string
	MaterialsUsed        *[]domain.Material
}

func (o LogUpdateOptions) apply(l *domain.Log) {
	if o.Date != nil {
		l.Date = *o.Date
	}
	if o.StartTime != nil {
		l.StartTime = *o.StartTime
	}
	if o.EndTime != nil {
		l.EndTime = *o.EndTime
	}
	if o.WorkDescription != nil {
		l.WorkDescription = *o.WorkDescription
	}
	if o.ProjectID != nil {
		l.ProjectID = *o.ProjectID
	}
	if o.WeatherSet || o.Weather != nil {
		l.Weather = o.Weather
	}
	if o.IssuesEncounteredSet || o.IssuesEncountered != nil {
		l.IssuesEncountered = o.IssuesEncountered
	}
	if o.NextStepsSet || o.NextSteps != nil {
		l.NextSteps = o.NextSteps
	}
	if o.Employees != nil {
		l.Employees = *o.Employees
	}
	if o.MaterialsUsed != nil {
		l.MaterialsUsed = *o.MaterialsUsed
	}
}

// Update merges the supplied fields into the log. Only the owner may update,
// and approved logs are immutable.
func (e Engine) Update(ctx context.Context, opts LogUpdateOptions, requesterID string) (domain.Log, error) {
	current, err := e.loadLog(ctx, opts.ID)
	if err != nil {
		return domain.Log{}, err
	}
	if err := checkEditable(current, requesterID); err != nil {
		return domain.Log{}, err
	}
	merged := current
	opts.apply(&merged)
	if err := normalizeLog(&merged); err != nil {
		return domain.Log{}, err
	}
	if merged.ProjectID != current.ProjectID {
		if err := e.requireProject(ctx, merged.ProjectID); err != nil {
			return domain.Log{}, err
		}
	}
	if merged.Date != current.Date || merged.ProjectID != current.ProjectID {
		if err := e.rejectDuplicate(ctx, merged, requesterID); err != nil {
			return domain.Log{}, err
		}
	}
	if e.beforeWrite != nil {
		e.beforeWrite(ctx)
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Log{}, err
	}
	defer tx.Rollback()

	// re-read under the write transaction; the log may have moved on since
	fresh, err := e.Repo.GetLogTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.Log{}, wrapNotFound(err, opts.ID)
	}
	if err := checkEditable(fresh, requesterID); err != nil {
		return domain.Log{}, err
	}
	merged = fresh
	opts.apply(&merged)
	if err := normalizeLog(&merged); err != nil {
		return domain.Log{}, err
	}
	merged.UpdatedAt = e.stamp()
	if err := e.Repo.UpdateLog(ctx, tx, merged); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			tx.Rollback()
			return domain.Log{}, e.duplicateFromIndex(ctx, merged, requesterID)
		}
		return domain.Log{}, wrapNotFound(err, opts.ID)
	}
	if err := e.events().Append(ctx, tx, events.LogUpdated, "log", merged.ID, requesterID, events.EventPayload{
		"fields": opts.fieldNames(),
	}); err != nil {
		return domain.Log{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Log{}, err
	}
	return merged, nil
}

func (o LogUpdateOptions) fieldNames() []string {
	var fields []string
	add := func(ok bool, name string) {
		if ok {
			fields = append(fields, name)
		}
	}
	add(o.Date != nil, "date")
	add(o.StartTime != nil, "start_time")
	add(o.EndTime != nil, "end_time")
	add(o.WorkDescription != nil, "work_description")
	add(o.ProjectID != nil, "project_id")
	add(o.WeatherSet || o.Weather != nil, "weather")
	add(o.IssuesEncounteredSet || o.IssuesEncountered != nil, "issues_encountered")
	add(o.NextStepsSet || o.NextSteps != nil, "next_steps")
	add(o.Employees != nil, "employees")
	add(o.MaterialsUsed != nil, "materials_used")
	return fields
}

// checkEditable rejects approved logs before looking at ownership, so an
// approved log reports a conflict to every requester.
func checkEditable(l domain.Log, requesterID string) error {
	if l.Status == domain.StatusApproved {
		return &ConflictError{Status: l.Status, Message: "Approved logs cannot be modified"}
	}
	if l.TeamLeaderID != requesterID {
		return &ForbiddenError{Reason: "only the owning team leader can modify this log"}
	}
	return nil
}

// Submit moves a draft log to submitted. Only the owner may submit.
func (e Engine) Submit(ctx context.Context, logID, requesterID string) (domain.Log, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Log{}, err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetLogTx(ctx, tx, logID)
	if err != nil {
		return domain.Log{}, wrapNotFound(err, logID)
	}
	if l.TeamLeaderID != requesterID {
		return domain.Log{}, &ForbiddenError{Reason: "only the owning team leader can submit this log"}
	}
	if l.Status != domain.StatusDraft {
		return domain.Log{}, &ConflictError{Status: l.Status, Message: "Log is already " + l.Status}
	}
	l.Status = domain.StatusSubmitted
	l.UpdatedAt = e.stamp()
	if err := e.Repo.SetLogStatus(ctx, tx, l); err != nil {
		return domain.Log{}, wrapNotFound(err, logID)
	}
	if err := e.events().Append(ctx, tx, events.LogSubmitted, "log", l.ID, requesterID, events.EventPayload{
		"from": domain.StatusDraft, "to": l.Status,
	}); err != nil {
		return domain.Log{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Log{}, err
	}
	return l, nil
}

// Approve stamps a submitted log as approved by approverID. The caller is
// responsible for checking that the approver holds the approve permission.
func (e Engine) Approve(ctx context.Context, logID, approverID string) (domain.Log, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Log{}, err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetLogTx(ctx, tx, logID)
	if err != nil {
		return domain.Log{}, wrapNotFound(err, logID)
	}
	switch l.Status {
	case domain.StatusSubmitted:
	case domain.StatusApproved:
		return domain.Log{}, &ConflictError{Status: l.Status, Message: "Log is already approved"}
	default:
		return domain.Log{}, &ConflictError{Status: l.Status, Message: fmt.Sprintf("Log must be submitted before approval (current status: %s)", l.Status)}
	}
	now := e.stamp()
	approver := approverID
	l.Status = domain.StatusApproved
	l.ApprovedBy = &approver
	l.ApprovedAt = &now
	l.UpdatedAt = now
	if err := e.Repo.SetLogStatus(ctx, tx, l); err != nil {
		return domain.Log{}, wrapNotFound(err, logID)
	}
	if err := e.events().Append(ctx, tx, events.LogApproved, "log", l.ID, approverID, events.EventPayload{
		"from": domain.StatusSubmitted, "to": l.Status, "team_leader_id": l.TeamLeaderID,
	}); err != nil {
		return domain.Log{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Log{}, err
	}
	e.notifier().NotifyLogApproved(l.ID)
	return l, nil
}

// Remove deletes a log. Owners may delete until approval; managers may
// delete in any status.
func (e Engine) Remove(ctx context.Context, logID, requesterID string, requesterIsManager bool) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	l, err := e.Repo.GetLogTx(ctx, tx, logID)
	if err != nil {
		return wrapNotFound(err, logID)
	}
	if l.TeamLeaderID != requesterID && !requesterIsManager {
		return &ForbiddenError{Reason: "only the owning team leader or a manager can delete this log"}
	}
	if l.Status == domain.StatusApproved && !requesterIsManager {
		return &ConflictError{Status: l.Status, Message: "Approved logs can only be deleted by a manager"}
	}
	if err := e.Repo.DeleteLog(ctx, tx, logID); err != nil {
		return wrapNotFound(err, logID)
	}
	if err := e.events().Append(ctx, tx, events.LogDeleted, "log", logID, requesterID, events.EventPayload{
		"status": l.Status, "date": l.Date, "project_id": l.ProjectID,
	}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	e.removeFiles(l)
	return nil
}

func (e Engine) removeFiles(l domain.Log) {
	if e.Files == nil {
		return
	}
	for _, p := range l.Photos {
		if err := e.Files.Remove(p.Path); err != nil {
			e.logger().Warn("remove photo file", zap.String("log_id", l.ID), zap.String("path", p.Path), zap.Error(err))
		}
	}
	for _, d := range l.Documents {
		if err := e.Files.Remove(d.Path); err != nil {
			e.logger().Warn("remove document file", zap.String("log_id", l.ID), zap.String("path", d.Path), zap.Error(err))
		}
	}
}

// Get returns a log visible to actor: managers see every log, team leaders
// only their own.
func (e Engine) Get(ctx context.Context, logID string, actor Actor) (domain.Log, error) {
	l, err := e.loadLog(ctx, logID)
	if err != nil {
		return domain.Log{}, err
	}
	if !actor.Has(auth.PermLogReadAll) && l.TeamLeaderID != actor.ID {
		return domain.Log{}, &ForbiddenError{Reason: "log belongs to another team leader"}
	}
	return l, nil
}

// AuthorizeFilter pins the team-leader filter to the actor for callers that
// may not read every log, whatever value was supplied.
func AuthorizeFilter(f LogFilter, actor Actor) LogFilter {
	if !actor.Has(auth.PermLogReadAll) {
		f.TeamLeaderID = actor.ID
	}
	return f
}

// List returns the logs matching f that actor may see, newest date first.
func (e Engine) List(ctx context.Context, f LogFilter, actor Actor) ([]domain.Log, error) {
	f = AuthorizeFilter(f, actor)
	if err := validateFilter(f); err != nil {
		return nil, err
	}
	logs, err := e.Repo.ListLogs(ctx, f)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []domain.Log{}
	}
	return logs, nil
}

// CheckDuplicate reports the id of the log occupying (date, team leader, project), if any.
func (e Engine) CheckDuplicate(ctx context.Context, date, teamLeaderID, projectID string) (string, bool, error) {
	id, err := e.Repo.FindLogIDByKey(ctx, date, teamLeaderID, projectID)
	if errors.Is(err, repo.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (e Engine) rejectDuplicate(ctx context.Context, l domain.Log, requesterID string) error {
	existing, found, err := e.CheckDuplicate(ctx, l.Date, l.TeamLeaderID, l.ProjectID)
	if err != nil {
		return err
	}
	if !found || existing == l.ID {
		return nil
	}
	return e.duplicate(ctx, existing, l, requesterID)
}

// duplicateFromIndex builds the duplicate error after the unique index
// rejected a write. It must run after the failed transaction is released.
func (e Engine) duplicateFromIndex(ctx context.Context, l domain.Log, requesterID string) error {
	existing, err := e.Repo.FindLogIDByKey(ctx, l.Date, l.TeamLeaderID, l.ProjectID)
	if err != nil {
		e.logger().Warn("lookup log behind unique violation", zap.String("date", l.Date), zap.String("project_id", l.ProjectID), zap.Error(err))
	}
	return e.duplicate(ctx, existing, l, requesterID)
}

func (e Engine) duplicate(ctx context.Context, existingID string, l domain.Log, requesterID string) error {
	e.notifier().NotifyDuplicateAttempt(requesterID, l.Date, l.ProjectID)
	e.recordDuplicate(ctx, existingID, l, requesterID)
	return &DuplicateError{ExistingLogID: existingID, Date: l.Date, ProjectID: l.ProjectID}
}

// recordDuplicate audits a blocked write in its own transaction. Failures are
// logged only.
func (e Engine) recordDuplicate(ctx context.Context, existingID string, l domain.Log, requesterID string) {
	err := func() error {
		tx, err := e.DB.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()
		if err := e.events().Append(ctx, tx, events.LogDuplicateBlocked, "log", existingID, requesterID, events.EventPayload{
			"date": l.Date, "project_id": l.ProjectID,
		}); err != nil {
			return err
		}
		return tx.Commit()
	}()
	if err != nil {
		e.logger().Warn("record duplicate attempt", zap.String("existing_log_id", existingID), zap.Error(err))
	}
}

func (e Engine) requireProject(ctx context.Context, projectID string) error {
	if _, err := e.Directory.GetProject(ctx, projectID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return &ValidationError{Fields: map[string]string{"project_id": "project not found"}}
		}
		return err
	}
	return nil
}

func (e Engine) loadLog(ctx context.Context, logID string) (domain.Log, error) {
	l, err := e.Repo.GetLog(ctx, logID)
	if err != nil {
		return domain.Log{}, wrapNotFound(err, logID)
	}
	return l, nil
}

func wrapNotFound(err error, logID string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return &NotFoundError{Entity: "log", ID: logID}
	}
	return err
}
