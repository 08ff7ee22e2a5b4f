package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"sitelog/internal/domain"
	"sitelog/internal/repo"
	"sitelog/internal/report"
)

// Resolve loads the directory records a report of l needs. The team leader,
// the project and, for approved logs, the approver must resolve; employees
// that no longer resolve are left out.
func (e Engine) Resolve(ctx context.Context, l domain.Log) (report.Resolved, error) {
	res := report.Resolved{Log: l, Employees: []domain.Employee{}}
	var err error
	if res.TeamLeader, err = e.Directory.GetUser(ctx, l.TeamLeaderID); err != nil {
		return report.Resolved{}, relationError(err, "user", l.TeamLeaderID)
	}
	if res.Project, err = e.Directory.GetProject(ctx, l.ProjectID); err != nil {
		return report.Resolved{}, relationError(err, "project", l.ProjectID)
	}
	for _, id := range l.Employees {
		emp, err := e.Directory.GetEmployee(ctx, id)
		if errors.Is(err, repo.ErrNotFound) {
			continue
		}
		if err != nil {
			return report.Resolved{}, err
		}
		res.Employees = append(res.Employees, emp)
	}
	if l.Status == domain.StatusApproved && l.ApprovedBy != nil {
		approver, err := e.Directory.GetUser(ctx, *l.ApprovedBy)
		if err != nil {
			return report.Resolved{}, relationError(err, "user", *l.ApprovedBy)
		}
		res.Approver = &approver
	}
	return res, nil
}

func relationError(err error, entity, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return &NotFoundError{Entity: entity, ID: id}
	}
	return err
}

func (e Engine) location() *time.Location {
	if e.Config == nil {
		return time.UTC
	}
	loc, err := e.Config.Report.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}

// RenderReport renders the PDF report of a log visible to actor.
func (e Engine) RenderReport(ctx context.Context, logID string, actor Actor) ([]byte, string, error) {
	l, err := e.Get(ctx, logID, actor)
	if err != nil {
		return nil, "", err
	}
	resolved, err := e.Resolve(ctx, l)
	if err != nil {
		return nil, "", err
	}
	now := e.now()
	out, err := report.PDF{CreationDate: now}.Render(report.Build(resolved, now.In(e.location())))
	if err != nil {
		return nil, "", err
	}
	return out, reportFilename(l), nil
}

func reportFilename(l domain.Log) string {
	short := l.ID
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("daily-log-%s-%s.pdf", l.Date, short)
}

// ExportRegister writes the logs List would return as an xlsx workbook.
func (e Engine) ExportRegister(ctx context.Context, f LogFilter, actor Actor) (*bytes.Buffer, string, error) {
	logs, err := e.List(ctx, f, actor)
	if err != nil {
		return nil, "", err
	}
	users := map[string]string{}
	projects := map[string]string{}
	userName := func(id string) string {
		if name, ok := users[id]; ok {
			return name
		}
		name := id
		if u, err := e.Directory.GetUser(ctx, id); err == nil {
			name = u.Name
		}
		users[id] = name
		return name
	}
	projectName := func(id string) string {
		if name, ok := projects[id]; ok {
			return name
		}
		name := id
		if p, err := e.Directory.GetProject(ctx, id); err == nil {
			name = p.Name
		}
		projects[id] = name
		return name
	}

	rows := make([]report.RegisterRow, 0, len(logs))
	for _, l := range logs {
		row := report.RegisterRow{
			Date:            l.Date,
			ProjectName:     projectName(l.ProjectID),
			TeamLeaderName:  userName(l.TeamLeaderID),
			Status:          l.Status,
			StartTime:       l.StartTime,
			EndTime:         l.EndTime,
			Employees:       len(l.Employees),
			Materials:       len(l.MaterialsUsed),
			Photos:          len(l.Photos),
			Documents:       len(l.Documents),
			WorkDescription: l.WorkDescription,
		}
		if l.ApprovedBy != nil {
			row.ApprovedBy = userName(*l.ApprovedBy)
		}
		rows = append(rows, row)
	}
	buf, err := report.Register(rows, e.location())
	if err != nil {
		return nil, "", err
	}
	return buf, fmt.Sprintf("daily-logs-%s.xlsx", e.now().In(e.location()).Format("20060102")), nil
}
