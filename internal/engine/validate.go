package engine

import (
	"fmt"
	"math"
	"strings"
	"time"

	"sitelog/internal/domain"
)

// normalizeLog trims and checks the client-controlled fields of l in place.
// Every problem is reported, keyed by field name.
func normalizeLog(l *domain.Log) error {
	verr := &ValidationError{}

	l.Date = strings.TrimSpace(l.Date)
	if l.Date == "" {
		verr.add("date", "required")
	} else if _, err := time.Parse(time.DateOnly, l.Date); err != nil {
		verr.add("date", "must be a YYYY-MM-DD date")
	}
	l.StartTime = normalizeTimestamp(verr, "start_time", l.StartTime)
	l.EndTime = normalizeTimestamp(verr, "end_time", l.EndTime)

	if strings.TrimSpace(l.WorkDescription) == "" {
		verr.add("work_description", "required")
	}
	l.ProjectID = strings.TrimSpace(l.ProjectID)
	if l.ProjectID == "" {
		verr.add("project_id", "required")
	}
	if strings.TrimSpace(l.TeamLeaderID) == "" {
		verr.add("team_leader_id", "required")
	}

	l.Weather = optionalText(l.Weather)
	l.IssuesEncountered = optionalText(l.IssuesEncountered)
	l.NextSteps = optionalText(l.NextSteps)

	l.Employees = uniqueEmployees(verr, l.Employees)
	l.MaterialsUsed = checkMaterials(verr, l.MaterialsUsed)
	if l.Photos == nil {
		l.Photos = []domain.Photo{}
	}
	if l.Documents == nil {
		l.Documents = []domain.Document{}
	}
	return verr.orNil()
}

func normalizeTimestamp(verr *ValidationError, field, v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		verr.add(field, "required")
		return v
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		verr.add(field, "must be an RFC 3339 timestamp")
		return v
	}
	return t.UTC().Format(time.RFC3339)
}

func optionalText(v *string) *string {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil
	}
	return v
}

// uniqueEmployees drops repeated ids, keeping the first occurrence.
func uniqueEmployees(verr *ValidationError, ids []string) []string {
	seen := make(map[string]bool, len(ids))
	res := make([]string, 0, len(ids))
	for i, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			verr.add(fmt.Sprintf("employees[%d]", i), "must not be empty")
			continue
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		res = append(res, id)
	}
	return res
}

func checkMaterials(verr *ValidationError, materials []domain.Material) []domain.Material {
	res := make([]domain.Material, 0, len(materials))
	for i, m := range materials {
		prefix := fmt.Sprintf("materials_used[%d].", i)
		m.Name = strings.TrimSpace(m.Name)
		m.Unit = strings.TrimSpace(m.Unit)
		if m.Name == "" {
			verr.add(prefix+"name", "required")
		}
		if m.Unit == "" {
			verr.add(prefix+"unit", "required")
		}
		if math.IsNaN(m.Quantity) || math.IsInf(m.Quantity, 0) || m.Quantity < 0 {
			verr.add(prefix+"quantity", "must be a number >= 0")
		}
		m.Notes = optionalText(m.Notes)
		res = append(res, m)
	}
	return res
}

func validateFilter(f LogFilter) error {
	verr := &ValidationError{}
	if f.StartDate != "" {
		if _, err := time.Parse(time.DateOnly, f.StartDate); err != nil {
			verr.add("startDate", "must be a YYYY-MM-DD date")
		}
	}
	if f.EndDate != "" {
		if _, err := time.Parse(time.DateOnly, f.EndDate); err != nil {
			verr.add("endDate", "must be a YYYY-MM-DD date")
		}
	}
	if f.Status != "" && !domain.ValidStatus(f.Status) {
		verr.add("status", "must be one of draft, submitted, approved")
	}
	return verr.orNil()
}
