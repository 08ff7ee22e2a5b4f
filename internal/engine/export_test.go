package engine

import "context"

// WithBeforeWrite returns a copy of e that calls fn after the duplicate
// pre-check has passed and before the write transaction opens.
func WithBeforeWrite(e Engine, fn func(ctx context.Context)) Engine {
	e.beforeWrite = fn
	return e
}
