package server

import (
	"strconv"

	"sitelog/internal/domain"
	"sitelog/internal/engine"
)

// Request payloads

// MaterialRequest leaves quantity as a pointer so a missing value can be
// reported per field instead of silently becoming zero.
type MaterialRequest struct {
	Name     string   `json:"name,omitempty"`
	Quantity *float64 `json:"quantity,omitempty"`
	Unit     string   `json:"unit,omitempty"`
	Notes    *string  `json:"notes,omitempty"`
}

type CreateLogRequest struct {
	Date              string            `json:"date,omitempty" example:"2024-03-01"`
	StartTime         string            `json:"start_time,omitempty" example:"2024-03-01T07:00:00Z"`
	EndTime           string            `json:"end_time,omitempty" example:"2024-03-01T16:00:00Z"`
	WorkDescription   string            `json:"work_description,omitempty"`
	Weather           *string           `json:"weather,omitempty"`
	IssuesEncountered *string           `json:"issues_encountered,omitempty"`
	NextSteps         *string           `json:"next_steps,omitempty"`
	ProjectID         string            `json:"project_id,omitempty"`
	Employees         []string          `json:"employees,omitempty"`
	MaterialsUsed     []MaterialRequest `json:"materials_used,omitempty"`
}

// UpdateLogRequest fields are all optional. Presence and explicit nulls are
// read from the raw body, not from these values alone.
type UpdateLogRequest struct {
	Date              *string            `json:"date,omitempty"`
	StartTime         *string            `json:"start_time,omitempty"`
	EndTime           *string            `json:"end_time,omitempty"`
	WorkDescription   *string            `json:"work_description,omitempty"`
	ProjectID         *string            `json:"project_id,omitempty"`
	Weather           *string            `json:"weather,omitempty" nullable:"true"`
	IssuesEncountered *string            `json:"issues_encountered,omitempty" nullable:"true"`
	NextSteps         *string            `json:"next_steps,omitempty" nullable:"true"`
	Employees         *[]string          `json:"employees,omitempty" nullable:"true"`
	MaterialsUsed     *[]MaterialRequest `json:"materials_used,omitempty" nullable:"true"`
}

// Response payloads

type LogListResponse struct {
	Items []domain.Log `json:"items"`
}

type DuplicateCheckResponse struct {
	Exists        bool   `json:"exists"`
	ExistingLogID string `json:"existing_log_id,omitempty"`
}

type NotificationListResponse struct {
	Items []domain.Notification `json:"items"`
}

type WhoAmIResponse struct {
	UserID      string   `json:"user_id"`
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Source      string   `json:"source"`
	Permissions []string `json:"permissions"`
}

func (r CreateLogRequest) options() (engine.LogCreateOptions, error) {
	materials, err := mapMaterials(r.MaterialsUsed)
	if err != nil {
		return engine.LogCreateOptions{}, err
	}
	return engine.LogCreateOptions{
		Date:              r.Date,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		WorkDescription:   r.WorkDescription,
		Weather:           r.Weather,
		IssuesEncountered: r.IssuesEncountered,
		NextSteps:         r.NextSteps,
		ProjectID:         r.ProjectID,
		Employees:         r.Employees,
		MaterialsUsed:     materials,
	}, nil
}

func mapMaterials(in []MaterialRequest) ([]domain.Material, error) {
	out := make([]domain.Material, 0, len(in))
	verr := &engine.ValidationError{}
	for i, m := range in {
		if m.Quantity == nil {
			if verr.Fields == nil {
				verr.Fields = map[string]string{}
			}
			verr.Fields[materialField(i, "quantity")] = "is required"
			continue
		}
		out = append(out, domain.Material{Name: m.Name, Quantity: *m.Quantity, Unit: m.Unit, Notes: m.Notes})
	}
	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return out, nil
}

func materialField(i int, name string) string {
	return "materials_used[" + strconv.Itoa(i) + "]." + name
}

func nonNilSlice(items []string) []string {
	if items == nil {
		return []string{}
	}
	return items
}
