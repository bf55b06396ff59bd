package text_generate

import (
	"context"
	"testing"

	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/jobs"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/providers"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/testutil"
	"github.com/jackzampolin/temario/internal/types"
)

func newWorker(t *testing.T, gen *providers.MockGenerator, keys ...string) *Worker {
	t.Helper()
	logger := testutil.Logger()
	reg := providers.NewRegistry(logger)
	pool, err := keypool.NewPool("mock", keys)
	if err != nil {
		t.Fatal(err)
	}
	reg.RegisterLLM("mock", gen, pool)
	return New(Config{Providers: reg, Logger: logger})
}

func TestProcess(t *testing.T) {
	gen := &providers.MockGenerator{Response: "Resumo do tema."}
	w := newWorker(t, gen, "k1")

	out, err := w.Process(context.Background(), jobs.Task{
		Item:    types.BatchItem{ID: "a", Prompt: "Resuma o tema Posse."},
		Context: map[string]any{"system": "Seja breve.", "model": "gpt-4o-mini", "json": true},
	})
	if err != nil {
		t.Fatal(err)
	}
	if out != "Resumo do tema." {
		t.Errorf("payload = %q", out)
	}
	req := gen.Requests()[0]
	if req.System != "Seja breve." || req.Model != "gpt-4o-mini" || !req.JSON || req.Prompt != "Resuma o tema Posse." {
		t.Errorf("request = %+v", req)
	}
}

func TestProcess_Rotation(t *testing.T) {
	gen := &providers.MockGenerator{
		GenerateFunc: func(ctx context.Context, req providers.GenerateRequest, cred keypool.Credential) (string, error) {
			if cred.Key == "k1" {
				return "", &providers.APIError{Provider: "mock", StatusCode: 503}
			}
			return "X", nil
		},
	}
	w := newWorker(t, gen, "k1", "k2")

	out, err := w.Process(context.Background(), jobs.Task{Item: types.BatchItem{ID: "a", Prompt: "p"}})
	if err != nil || out != "X" {
		t.Fatalf("Process() = %q, %v", out, err)
	}
	if n := len(gen.Calls()); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestProcess_EmptyPrompt(t *testing.T) {
	w := newWorker(t, &providers.MockGenerator{}, "k1")
	_, err := w.Process(context.Background(), jobs.Task{Item: types.BatchItem{ID: "a"}})
	if !fault.Is(err, fault.InvalidInput) {
		t.Errorf("error = %v, want invalid_input", err)
	}
}

func TestWorker_WithOrchestrator(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	gen := &providers.MockGenerator{
		GenerateFunc: func(ctx context.Context, req providers.GenerateRequest, cred keypool.Credential) (string, error) {
			return "out: " + req.Prompt, nil
		},
	}
	o := jobs.New(jobs.Config{Jobs: mem, Logger: testutil.Logger()})
	o.Register(newWorker(t, gen, "k1"))

	id, err := o.CreateJob(ctx, jobs.CreateRequest{
		Type:  JobType,
		Items: []types.BatchItem{{ID: "1", Prompt: "a"}, {ID: "2", Prompt: ""}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := o.Process(ctx, id); err != nil {
		t.Fatal(err)
	}
	job, _ := o.Get(ctx, id)
	if job.Status != types.BatchCompleted || job.CompletedItems != 2 {
		t.Fatalf("job = %s %d/2", job.Status, job.CompletedItems)
	}
	for _, r := range job.Results {
		switch r.ItemID {
		case "1":
			if !r.Success || r.Payload != "out: a" {
				t.Errorf("result = %+v", r)
			}
		case "2":
			if r.Success || r.Error == "" {
				t.Errorf("empty prompt result = %+v", r)
			}
		}
	}
}
