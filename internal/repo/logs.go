package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"sitelog/internal/domain"
)

const logColumns = `id,date,start_time,end_time,work_description,weather,issues_encountered,next_steps,team_leader_id,project_id,status,approved_by,approved_at,created_at,updated_at`

// LogFilters narrows ListLogs. Empty fields are ignored; date bounds are inclusive.
type LogFilters struct {
	StartDate    string
	EndDate      string
	ProjectID    string
	Status       string
	TeamLeaderID string
	SearchTerm   string
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLog(row rowScanner) (domain.Log, error) {
	var l domain.Log
	var weather, issues, next, approvedBy, approvedAt sql.NullString
	err := row.Scan(&l.ID, &l.Date, &l.StartTime, &l.EndTime, &l.WorkDescription, &weather, &issues, &next,
		&l.TeamLeaderID, &l.ProjectID, &l.Status, &approvedBy, &approvedAt, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return l, err
	}
	l.Weather = stringPtr(weather)
	l.IssuesEncountered = stringPtr(issues)
	l.NextSteps = stringPtr(next)
	l.ApprovedBy = stringPtr(approvedBy)
	l.ApprovedAt = stringPtr(approvedAt)
	return l, nil
}

func (r Repo) InsertLog(ctx context.Context, tx *sql.Tx, l domain.Log) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO logs(`+logColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.Date, l.StartTime, l.EndTime, l.WorkDescription,
		nullableStringPtr(l.Weather), nullableStringPtr(l.IssuesEncountered), nullableStringPtr(l.NextSteps),
		l.TeamLeaderID, l.ProjectID, l.Status, nullableStringPtr(l.ApprovedBy), nullableStringPtr(l.ApprovedAt),
		l.CreatedAt, l.UpdatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert log: %w", err)
	}
	if err := replaceEmployees(ctx, tx, l.ID, l.Employees); err != nil {
		return err
	}
	return replaceMaterials(ctx, tx, l.ID, l.MaterialsUsed)
}

// UpdateLog rewrites the mutable scalars and replaces the employee and material lists.
func (r Repo) UpdateLog(ctx context.Context, tx *sql.Tx, l domain.Log) error {
	res, err := tx.ExecContext(ctx, `UPDATE logs SET date=?, start_time=?, end_time=?, work_description=?, weather=?, issues_encountered=?, next_steps=?, project_id=?, updated_at=? WHERE id=?`,
		l.Date, l.StartTime, l.EndTime, l.WorkDescription,
		nullableStringPtr(l.Weather), nullableStringPtr(l.IssuesEncountered), nullableStringPtr(l.NextSteps),
		l.ProjectID, l.UpdatedAt, l.ID)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("update log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if err := replaceEmployees(ctx, tx, l.ID, l.Employees); err != nil {
		return err
	}
	return replaceMaterials(ctx, tx, l.ID, l.MaterialsUsed)
}

// SetLogStatus writes only the lifecycle columns.
func (r Repo) SetLogStatus(ctx context.Context, tx *sql.Tx, l domain.Log) error {
	res, err := tx.ExecContext(ctx, `UPDATE logs SET status=?, approved_by=?, approved_at=?, updated_at=? WHERE id=?`,
		l.Status, nullableStringPtr(l.ApprovedBy), nullableStringPtr(l.ApprovedAt), l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("set log status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteLog(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `DELETE FROM logs WHERE id=?`, id)
	if err != nil {
		return fmt.Errorf("delete log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) GetLog(ctx context.Context, id string) (domain.Log, error) {
	return getLog(ctx, r.DB, id)
}

func (r Repo) GetLogTx(ctx context.Context, tx *sql.Tx, id string) (domain.Log, error) {
	return getLog(ctx, tx, id)
}

func getLog(ctx context.Context, q querier, id string) (domain.Log, error) {
	l, err := scanLog(q.QueryRowContext(ctx, `SELECT `+logColumns+` FROM logs WHERE id=?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Log{}, ErrNotFound
	}
	if err != nil {
		return domain.Log{}, err
	}
	if err := loadChildren(ctx, q, &l); err != nil {
		return domain.Log{}, err
	}
	return l, nil
}

// FindLogIDByKey looks up the log occupying (date, team leader, project).
func (r Repo) FindLogIDByKey(ctx context.Context, date, teamLeaderID, projectID string) (string, error) {
	return findLogIDByKey(ctx, r.DB, date, teamLeaderID, projectID)
}

func findLogIDByKey(ctx context.Context, q querier, date, teamLeaderID, projectID string) (string, error) {
	var id string
	err := q.QueryRowContext(ctx, `SELECT id FROM logs WHERE date=? AND team_leader_id=? AND project_id=?`, date, teamLeaderID, projectID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return id, err
}

func (r Repo) ListLogs(ctx context.Context, f LogFilters) ([]domain.Log, error) {
	clauses := []string{"1=1"}
	var args []any
	if f.StartDate != "" {
		clauses = append(clauses, "date >= ?")
		args = append(args, f.StartDate)
	}
	if f.EndDate != "" {
		clauses = append(clauses, "date <= ?")
		args = append(args, f.EndDate)
	}
	if f.ProjectID != "" {
		clauses = append(clauses, "project_id = ?")
		args = append(args, f.ProjectID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, f.Status)
	}
	if f.TeamLeaderID != "" {
		clauses = append(clauses, "team_leader_id = ?")
		args = append(args, f.TeamLeaderID)
	}
	if f.SearchTerm != "" {
		clauses = append(clauses, `LOWER(work_description) LIKE ? ESCAPE '\'`)
		args = append(args, "%"+escapeLike(strings.ToLower(f.SearchTerm))+"%")
	}
	query := `SELECT ` + logColumns + ` FROM logs WHERE ` + strings.Join(clauses, " AND ") + ` ORDER BY date DESC, created_at DESC, id DESC`
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var res []domain.Log
	for rows.Next() {
		l, err := scanLog(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		res = append(res, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// rows must be released before the child queries reuse the connection
	rows.Close()
	for i := range res {
		if err := loadChildren(ctx, r.DB, &res[i]); err != nil {
			return nil, err
		}
	}
	return res, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func (r Repo) AppendPhoto(ctx context.Context, tx *sql.Tx, logID string, p domain.Photo) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO log_photos(log_id,path,original_name,description,uploaded_at) VALUES (?,?,?,?,?)`,
		logID, p.Path, p.OriginalName, nullableStringPtr(p.Description), p.UploadedAt)
	if err != nil {
		return fmt.Errorf("append photo: %w", err)
	}
	return nil
}

func (r Repo) AppendDocument(ctx context.Context, tx *sql.Tx, logID string, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO log_documents(log_id,path,original_name,type,uploaded_at) VALUES (?,?,?,?,?)`,
		logID, d.Path, d.OriginalName, d.Type, d.UploadedAt)
	if err != nil {
		return fmt.Errorf("append document: %w", err)
	}
	return nil
}

func replaceEmployees(ctx context.Context, tx *sql.Tx, logID string, employees []string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM log_employees WHERE log_id=?`, logID); err != nil {
		return fmt.Errorf("clear employees: %w", err)
	}
	for i, id := range employees {
		if _, err := tx.ExecContext(ctx, `INSERT INTO log_employees(log_id,position,employee_id) VALUES (?,?,?)`, logID, i, id); err != nil {
			return fmt.Errorf("insert employee: %w", err)
		}
	}
	return nil
}

func replaceMaterials(ctx context.Context, tx *sql.Tx, logID string, materials []domain.Material) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM log_materials WHERE log_id=?`, logID); err != nil {
		return fmt.Errorf("clear materials: %w", err)
	}
	for i, m := range materials {
		if _, err := tx.ExecContext(ctx, `INSERT INTO log_materials(log_id,position,name,quantity,unit,notes) VALUES (?,?,?,?,?,?)`,
			logID, i, m.Name, m.Quantity, m.Unit, nullableStringPtr(m.Notes)); err != nil {
			return fmt.Errorf("insert material: %w", err)
		}
	}
	return nil
}

func loadChildren(ctx context.Context, q querier, l *domain.Log) error {
	var err error
	if l.Employees, err = loadEmployees(ctx, q, l.ID); err != nil {
		return err
	}
	if l.MaterialsUsed, err = loadMaterials(ctx, q, l.ID); err != nil {
		return err
	}
	if l.Photos, err = loadPhotos(ctx, q, l.ID); err != nil {
		return err
	}
	if l.Documents, err = loadDocuments(ctx, q, l.ID); err != nil {
		return err
	}
	return nil
}

func loadEmployees(ctx context.Context, q querier, logID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT employee_id FROM log_employees WHERE log_id=? ORDER BY position`, logID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		res = append(res, id)
	}
	return res, rows.Err()
}

func loadMaterials(ctx context.Context, q querier, logID string) ([]domain.Material, error) {
	rows, err := q.QueryContext(ctx, `SELECT name,quantity,unit,notes FROM log_materials WHERE log_id=? ORDER BY position`, logID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Material{}
	for rows.Next() {
		var m domain.Material
		var notes sql.NullString
		if err := rows.Scan(&m.Name, &m.Quantity, &m.Unit, &notes); err != nil {
			return nil, err
		}
		m.Notes = stringPtr(notes)
		res = append(res, m)
	}
	return res, rows.Err()
}

func loadPhotos(ctx context.Context, q querier, logID string) ([]domain.Photo, error) {
	rows, err := q.QueryContext(ctx, `SELECT path,original_name,description,uploaded_at FROM log_photos WHERE log_id=? ORDER BY id`, logID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Photo{}
	for rows.Next() {
		var p domain.Photo
		var desc sql.NullString
		if err := rows.Scan(&p.Path, &p.OriginalName, &desc, &p.UploadedAt); err != nil {
			return nil, err
		}
		p.Description = stringPtr(desc)
		res = append(res, p)
	}
	return res, rows.Err()
}

func loadDocuments(ctx context.Context, q querier, logID string) ([]domain.Document, error) {
	rows, err := q.QueryContext(ctx, `SELECT path,original_name,type,uploaded_at FROM log_documents WHERE log_id=? ORDER BY id`, logID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := []domain.Document{}
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.Path, &d.OriginalName, &d.Type, &d.UploadedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}
