// Package jobs is the BatchJobOrchestrator: it persists batch jobs, returns
// to the caller at once and drains the items in the background through a
// worker registered for the job's type.
package jobs

import (
	"context"
	"errors"

	"github.com/jackzampolin/temario/internal/types"
)

// ErrUnknownType is returned for a job type with no registered worker.
var ErrUnknownType = errors.New("unknown job type")

// Task is one item handed to a Worker.
type Task struct {
	JobID   string
	Type    string
	Item    types.BatchItem
	Context map[string]any
}

// Worker processes the items of one job type.
//
// Process must be idempotent per item: after a restart an item whose result
// was not recorded is processed again. The returned payload is stored as the
// item's result. An error marks the item failed; it does not fail the job.
type Worker interface {
	Type() string
	Process(ctx context.Context, task Task) (payload string, err error)
}

// WorkerFunc adapts a function to a Worker.
type WorkerFunc struct {
	Name string
	Fn   func(ctx context.Context, task Task) (string, error)
}

func (w WorkerFunc) Type() string { return w.Name }

func (w WorkerFunc) Process(ctx context.Context, task Task) (string, error) {
	return w.Fn(ctx, task)
}

// ContextString reads a string value from a job context map.
func ContextString(ctx map[string]any, key string) string {
	if ctx == nil {
		return ""
	}
	s, _ := ctx[key].(string)
	return s
}
