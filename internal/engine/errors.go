package engine

import (
	"fmt"
	"sort"
	"strings"

	"sitelog/internal/repo"
)

// ValidationError lists every offending field with a message.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, msg string) {
	if e.Fields == nil {
		e.Fields = map[string]string{}
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = msg
	}
}

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// DuplicateError means another log already occupies (date, team leader, project).
type DuplicateError struct {
	ExistingLogID string
	Date          string
	ProjectID     string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("a log for project %s on %s already exists (%s)", e.ProjectID, e.Date, e.ExistingLogID)
}

type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return repo.ErrNotFound }

type ForbiddenError struct {
	Reason string
}

func (e *ForbiddenError) Error() string {
	return "forbidden: " + e.Reason
}

// ConflictError rejects an operation that is not valid from the log's current status.
type ConflictError struct {
	Status  string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}
