package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"sitelog/internal/domain"
	"sitelog/internal/engine"
	"sitelog/internal/engine/auth"
)

type logPath struct {
	ID string `path:"id"`
}

// logQuery is shared by the list and register endpoints.
type logQuery struct {
	StartDate  string `query:"startDate" doc:"inclusive lower bound, YYYY-MM-DD"`
	EndDate    string `query:"endDate" doc:"inclusive upper bound, YYYY-MM-DD"`
	Project    string `query:"project"`
	Status     string `query:"status"`
	TeamLeader string `query:"teamLeader" doc:"ignored for callers who may only read their own logs"`
	SearchTerm string `query:"searchTerm" doc:"case-insensitive match on the work description"`
}

func (q logQuery) filter() engine.LogFilter {
	return engine.LogFilter{
		StartDate:    q.StartDate,
		EndDate:      q.EndDate,
		ProjectID:    q.Project,
		Status:       q.Status,
		TeamLeaderID: q.TeamLeader,
		SearchTerm:   q.SearchTerm,
	}
}

type logOutput struct {
	Body domain.Log `json:"body"`
}

func registerLogs(api huma.API, d deps) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-log",
		Method:        http.MethodPost,
		Path:          "/logs",
		Summary:       "Create a draft log owned by the caller",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateLogRequest `json:"body"`
	}) (*logOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts, err := input.Body.options()
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		l, err := d.engine.Create(ctx, opts, principal.User.ID)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &logOutput{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-logs",
		Method:      http.MethodGet,
		Path:        "/logs",
		Summary:     "List logs visible to the caller, newest date first",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *logQuery) (*struct {
		Body LogListResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := d.engine.List(ctx, input.filter(), principal.Actor())
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &struct {
			Body LogListResponse `json:"body"`
		}{Body: LogListResponse{Items: items}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "check-duplicate-log",
		Method:      http.MethodGet,
		Path:        "/logs/duplicate-check",
		Summary:     "Report whether a log already exists for a date and project",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Date       string `query:"date" required:"true"`
		ProjectID  string `query:"project_id" required:"true"`
		TeamLeader string `query:"teamLeader" doc:"managers only; defaults to the caller"`
	}) (*struct {
		Body DuplicateCheckResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		teamLeader := principal.User.ID
		if input.TeamLeader != "" && principal.Actor().Has(auth.PermLogReadAll) {
			teamLeader = input.TeamLeader
		}
		id, found, err := d.engine.CheckDuplicate(ctx, input.Date, teamLeader, input.ProjectID)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &struct {
			Body DuplicateCheckResponse `json:"body"`
		}{Body: DuplicateCheckResponse{Exists: found, ExistingLogID: id}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-log",
		Method:      http.MethodGet,
		Path:        "/logs/{id}",
		Summary:     "Get a log",
		Errors:      []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *logPath) (*logOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := d.engine.Get(ctx, input.ID, principal.Actor())
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &logOutput{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-log",
		Method:      http.MethodPatch,
		Path:        "/logs/{id}",
		Summary:     "Update the supplied fields of a log",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *struct {
		ID   string           `path:"id"`
		Body UpdateLogRequest `json:"body"`
	}) (*logOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts, err := updateOptions(ctx, input.ID, input.Body)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		l, err := d.engine.Update(ctx, opts, principal.User.ID)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &logOutput{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-log",
		Method:      http.MethodPost,
		Path:        "/logs/{id}/submit",
		Summary:     "Submit a draft log for approval",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *logPath) (*logOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		l, err := d.engine.Submit(ctx, input.ID, principal.User.ID)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &logOutput{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-log",
		Method:      http.MethodPost,
		Path:        "/logs/{id}/approve",
		Summary:     "Approve a submitted log",
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *logPath) (*logOutput, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := auth.Require(principal.Actor(), auth.PermLogApprove); err != nil {
			return nil, d.handleError(ctx, err)
		}
		l, err := d.engine.Approve(ctx, input.ID, principal.User.ID)
		if err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &logOutput{Body: l}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-log",
		Method:        http.MethodDelete,
		Path:          "/logs/{id}",
		Summary:       "Delete a log",
		DefaultStatus: http.StatusNoContent,
		Errors: []int{
			http.StatusUnauthorized,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
		},
	}, func(ctx context.Context, input *logPath) (*struct{}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		actor := principal.Actor()
		if err := d.engine.Remove(ctx, input.ID, actor.ID, actor.Has(auth.PermLogDeleteAny)); err != nil {
			return nil, d.handleError(ctx, err)
		}
		return &struct{}{}, nil
	})
}

// updateOptions turns a PATCH body into update options. The raw body decides
// which fields were supplied; an explicit null clears optional text and
// empties the employee and material lists.
func updateOptions(ctx context.Context, id string, body UpdateLogRequest) (engine.LogUpdateOptions, error) {
	raw := rawBodyMap(ctx)
	opts := engine.LogUpdateOptions{
		ID:              id,
		Date:            body.Date,
		StartTime:       body.StartTime,
		EndTime:         body.EndTime,
		WorkDescription: body.WorkDescription,
		ProjectID:       body.ProjectID,
	}
	if _, ok := raw["weather"]; ok {
		opts.WeatherSet = true
		opts.Weather = body.Weather
	}
	if _, ok := raw["issues_encountered"]; ok {
		opts.IssuesEncounteredSet = true
		opts.IssuesEncountered = body.IssuesEncountered
	}
	if _, ok := raw["next_steps"]; ok {
		opts.NextStepsSet = true
		opts.NextSteps = body.NextSteps
	}
	if v, ok := raw["employees"]; ok {
		employees := []string{}
		if !isNullRaw(v) && body.Employees != nil {
			employees = *body.Employees
		}
		opts.Employees = &employees
	}
	if v, ok := raw["materials_used"]; ok {
		materials := []domain.Material{}
		if !isNullRaw(v) && body.MaterialsUsed != nil {
			mapped, err := mapMaterials(*body.MaterialsUsed)
			if err != nil {
				return engine.LogUpdateOptions{}, err
			}
			materials = mapped
		}
		opts.MaterialsUsed = &materials
	}
	return opts, nil
}
