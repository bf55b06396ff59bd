// Package text_generate is the batch worker that sends each item's prompt
// to an LLM and stores the completion as the item's payload.
package text_generate

import (
	"context"
	"log/slog"
	"strings"

	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/jobs"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/providers"
)

// JobType is the job type handled by Worker.
const JobType = "text_generate"

// LLMProviders looks up a text generator and its credential pool.
type LLMProviders interface {
	LLM(name string) (providers.Generator, *keypool.Pool, error)
}

// Config configures a Worker.
type Config struct {
	Providers LLMProviders
	Provider  string // "" = registry default
	Rotator   *keypool.Rotator
	Logger    *slog.Logger
}

// Worker runs one completion per item.
//
// Job context keys: "provider", "model", "system" (strings) and "json"
// (bool) apply to every item of the job.
type Worker struct {
	cfg Config
}

// New creates a Worker.
func New(cfg Config) *Worker {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Rotator == nil {
		cfg.Rotator = keypool.NewRotator(keypool.Config{Logger: cfg.Logger})
	}
	return &Worker{cfg: cfg}
}

func (w *Worker) Type() string { return JobType }

// Process implements jobs.Worker.
func (w *Worker) Process(ctx context.Context, task jobs.Task) (string, error) {
	const op = "text_generate"

	prompt := strings.TrimSpace(task.Item.Prompt)
	if prompt == "" {
		return "", fault.New(fault.InvalidInput, op, "item %s has no prompt", task.Item.ID)
	}

	name := jobs.ContextString(task.Context, "provider")
	if name == "" {
		name = w.cfg.Provider
	}
	gen, pool, err := w.cfg.Providers.LLM(name)
	if err != nil {
		return "", fault.Wrap(fault.InvalidInput, op, err)
	}

	asJSON, _ := task.Context["json"].(bool)
	req := providers.GenerateRequest{
		System: jobs.ContextString(task.Context, "system"),
		Prompt: prompt,
		Model:  jobs.ContextString(task.Context, "model"),
		JSON:   asJSON,
	}
	return keypool.Call(ctx, w.cfg.Rotator, pool, func(ctx context.Context, cred keypool.Credential) (string, error) {
		return gen.Generate(ctx, req, cred)
	})
}
