package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/types"
)

const (
	DefaultConcurrency = 4
	DefaultPause       = 1500 * time.Millisecond
	DefaultQueueSize   = 100
	DefaultConsumers   = 2
)

// Config configures an Orchestrator.
type Config struct {
	Jobs store.Jobs
	// Concurrency is the number of items processed at once within a job.
	Concurrency int
	// Pause is the wait between two batches of one job.
	Pause time.Duration
	// ItemBackoff repeats an item while its worker reports that every
	// credential was rate limited.
	ItemBackoff keypool.Backoff
	QueueSize   int
	// Consumers is the number of jobs processed at once.
	Consumers int
	Logger    *slog.Logger
}

// Orchestrator creates, runs and reports batch jobs.
type Orchestrator struct {
	cfg    Config
	logger *slog.Logger
	queue  chan string
	done   chan struct{}

	mu       sync.RWMutex
	workers  map[string]Worker
	inflight map[string]bool
}

// New creates an Orchestrator. Call Run to start processing.
func New(cfg Config) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.Pause < 0 {
		cfg.Pause = 0
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Consumers <= 0 {
		cfg.Consumers = DefaultConsumers
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		logger:   cfg.Logger.With("component", "jobs"),
		queue:    make(chan string, cfg.QueueSize),
		done:     make(chan struct{}),
		workers:  make(map[string]Worker),
		inflight: make(map[string]bool),
	}
}

// Register adds a worker for its job type, replacing any previous one.
func (o *Orchestrator) Register(w Worker) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.workers[w.Type()] = w
	o.logger.Info("worker registered", "type", w.Type())
}

// Types returns the registered job types, sorted.
func (o *Orchestrator) Types() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]string, 0, len(o.workers))
	for t := range o.workers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func (o *Orchestrator) worker(jobType string) (Worker, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	w, ok := o.workers[jobType]
	return w, ok
}

// CreateRequest is the job-trigger payload.
type CreateRequest struct {
	Type    string            `json:"type"`
	Items   []types.BatchItem `json:"items"`
	Context map[string]any    `json:"context,omitempty"`
}

// CreateJob validates and persists a pending job, queues it and returns its
// id without waiting for any item. Items without an id get one.
func (o *Orchestrator) CreateJob(ctx context.Context, req CreateRequest) (string, error) {
	const op = "jobs.create"

	if _, ok := o.worker(req.Type); !ok {
		return "", &fault.Error{Kind: fault.InvalidInput, Op: op, Err: fmt.Errorf("%w: %q", ErrUnknownType, req.Type)}
	}
	if len(req.Items) == 0 {
		return "", fault.New(fault.InvalidInput, op, "job has no items")
	}

	items := make([]types.BatchItem, len(req.Items))
	seen := make(map[string]bool, len(req.Items))
	for i, it := range req.Items {
		it.ID = strings.TrimSpace(it.ID)
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if seen[it.ID] {
			return "", fault.New(fault.InvalidInput, op, "duplicate item id %q", it.ID)
		}
		seen[it.ID] = true
		items[i] = it
	}

	job := &types.BatchJob{
		Type:       req.Type,
		Status:     types.BatchPending,
		TotalItems: len(items),
		Items:      items,
		Context:    req.Context,
		CreatedAt:  time.Now().UTC(),
	}
	id, err := o.cfg.Jobs.CreateJob(ctx, job)
	if err != nil {
		return "", fault.Wrap(fault.Persistence, op, err)
	}

	o.logger.Info("job created", "job_id", id, "type", req.Type, "items", len(items))
	o.enqueue(id)
	return id, nil
}

func (o *Orchestrator) enqueue(id string) {
	select {
	case o.queue <- id:
	default:
		o.logger.Warn("job queue full, waiting for a slot", "job_id", id)
		go func() {
			select {
			case o.queue <- id:
			case <-o.done:
			}
		}()
	}
}

// Run resumes jobs left pending or running by a previous process, then
// processes queued jobs until ctx is cancelled. Interrupted jobs stay
// running and are picked up by the next Run.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer close(o.done)

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.Consumers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-o.queue:
					if err := o.Process(ctx, id); err != nil && ctx.Err() == nil {
						o.logger.Error("job failed", "job_id", id, "error", err)
					}
				}
			}
		}()
	}

	if n, err := o.Resume(ctx); err != nil {
		o.logger.Error("failed to resume jobs", "error", err)
	} else if n > 0 {
		o.logger.Info("resumed jobs", "count", n)
	}

	o.logger.Info("job orchestrator started", "consumers", o.cfg.Consumers, "concurrency", o.cfg.Concurrency)
	wg.Wait()
	o.logger.Info("job orchestrator stopped")
	return nil
}

// Resume queues every pending or running job and returns how many it found.
func (o *Orchestrator) Resume(ctx context.Context) (int, error) {
	n := 0
	for _, status := range []types.BatchStatus{types.BatchRunning, types.BatchPending} {
		list, err := o.cfg.Jobs.ListJobs(ctx, status)
		if err != nil {
			return n, fmt.Errorf("list %s jobs: %w", status, err)
		}
		for _, j := range list {
			o.enqueue(j.ID)
			n++
		}
	}
	return n, nil
}

func (o *Orchestrator) claim(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.inflight[id] {
		return false
	}
	o.inflight[id] = true
	return true
}

func (o *Orchestrator) release(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.inflight, id)
}

// Process runs one job to the end: remaining items in batches of
// Concurrency with Pause between batches, each result recorded as soon as
// it is known. The job completes once every item has a result. It fails
// only when the job record itself cannot be written. A job already being
// processed, or finished, is left alone.
func (o *Orchestrator) Process(ctx context.Context, id string) error {
	const op = "jobs.process"
	if !o.claim(id) {
		return nil
	}
	defer o.release(id)

	job, err := o.cfg.Jobs.GetJob(ctx, id)
	if err != nil {
		return storeErr(op, err)
	}
	if job.Status.Terminal() {
		return nil
	}
	log := o.logger.With("job_id", id, "type", job.Type)

	w, ok := o.worker(job.Type)
	if !ok {
		err := fmt.Errorf("%w: %q", ErrUnknownType, job.Type)
		o.finish(ctx, log, id, types.BatchFailed, err.Error())
		return err
	}

	if job.Status == types.BatchPending {
		if err := o.cfg.Jobs.SetJobStatus(ctx, id, types.BatchRunning, ""); err != nil {
			return fault.Wrap(fault.Persistence, op, err)
		}
	}

	pending := job.Pending()
	log.Info("job running", "total", job.TotalItems, "remaining", len(pending))

	for start := 0; start < len(pending); start += o.cfg.Concurrency {
		if start > 0 && o.cfg.Pause > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(o.cfg.Pause):
			}
		}
		end := min(start+o.cfg.Concurrency, len(pending))

		if err := o.runBatch(ctx, log, w, job, pending[start:end]); err != nil {
			if ctx.Err() != nil {
				log.Info("job interrupted", "error", ctx.Err())
				return ctx.Err()
			}
			o.finish(ctx, log, id, types.BatchFailed, err.Error())
			return err
		}
	}

	progress, err := o.cfg.Jobs.GetProgress(ctx, id)
	if err != nil {
		return fault.Wrap(fault.Persistence, op, err)
	}
	if progress.CompletedItems < progress.TotalItems {
		err := fmt.Errorf("%d of %d items have no result", progress.TotalItems-progress.CompletedItems, progress.TotalItems)
		o.finish(ctx, log, id, types.BatchFailed, err.Error())
		return fault.Wrap(fault.Persistence, op, err)
	}
	o.finish(ctx, log, id, types.BatchCompleted, "")
	return nil
}

// runBatch processes items concurrently. Only a failure to record a result
// is returned; item failures are results.
func (o *Orchestrator) runBatch(ctx context.Context, log *slog.Logger, w Worker, job *types.BatchJob, items []types.BatchItem) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, item := range items {
		g.Go(func() error {
			task := Task{JobID: job.ID, Type: job.Type, Item: item, Context: job.Context}
			payload, err := keypool.Retry(gctx, o.cfg.ItemBackoff, func(ctx context.Context) (string, error) {
				return w.Process(ctx, task)
			})
			if gctx.Err() != nil {
				// Not recorded: the item runs again on resume.
				return gctx.Err()
			}

			res := types.BatchResult{ItemID: item.ID, Success: err == nil, Payload: payload, CompletedAt: time.Now().UTC()}
			if err != nil {
				res.Payload = ""
				res.Error = err.Error()
				log.Warn("item failed", "item_id", item.ID, "kind", fault.KindOf(err), "error", err)
			} else {
				log.Debug("item done", "item_id", item.ID)
			}

			completed, rerr := o.cfg.Jobs.RecordResult(gctx, job.ID, res)
			if rerr != nil {
				return fault.Wrap(fault.Persistence, "jobs.record", rerr)
			}
			log.Debug("job progress", "completed", completed, "total", job.TotalItems)
			return nil
		})
	}
	return g.Wait()
}

func (o *Orchestrator) finish(ctx context.Context, log *slog.Logger, id string, status types.BatchStatus, msg string) {
	if err := o.cfg.Jobs.SetJobStatus(context.WithoutCancel(ctx), id, status, msg); err != nil {
		log.Error("failed to set job status", "status", status, "error", err)
		return
	}
	if status == types.BatchFailed {
		log.Error("job failed", "error", msg)
		return
	}
	log.Info("job finished", "status", status)
}

// GetStatus returns the pollable progress of a job.
func (o *Orchestrator) GetStatus(ctx context.Context, id string) (*types.BatchProgress, error) {
	p, err := o.cfg.Jobs.GetProgress(ctx, id)
	if err != nil {
		return nil, storeErr("jobs.status", err)
	}
	return p, nil
}

// Get returns a job with its items and results.
func (o *Orchestrator) Get(ctx context.Context, id string) (*types.BatchJob, error) {
	j, err := o.cfg.Jobs.GetJob(ctx, id)
	if err != nil {
		return nil, storeErr("jobs.get", err)
	}
	return j, nil
}

// List returns jobs, optionally filtered by status.
func (o *Orchestrator) List(ctx context.Context, status types.BatchStatus) ([]*types.BatchJob, error) {
	list, err := o.cfg.Jobs.ListJobs(ctx, status)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, "jobs.list", err)
	}
	return list, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fault.Wrap(fault.NotFound, op, err)
	}
	return fault.Wrap(fault.Persistence, op, err)
}
