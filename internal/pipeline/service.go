// Package pipeline wires the stages (extraction, analysis, commit) and the
// batch orchestrator into one Service used by the HTTP endpoints.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/jackzampolin/temario/internal/areastatus"
	"github.com/jackzampolin/temario/internal/blob"
	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/ingest"
	"github.com/jackzampolin/temario/internal/jobs"
	"github.com/jackzampolin/temario/internal/jobs/cover_image"
	"github.com/jackzampolin/temario/internal/jobs/text_generate"
	"github.com/jackzampolin/temario/internal/keypool"
	"github.com/jackzampolin/temario/internal/pages"
	"github.com/jackzampolin/temario/internal/providers"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/structure"
	"github.com/jackzampolin/temario/internal/types"
)

// Settings are the tunables read from the pipeline and batch config sections.
// Zero values fall back to each component's default.
type Settings struct {
	OCRProvider   string
	LLMProvider   string
	ImageProvider string
	Model         string

	MinPageChars     int
	MaxDownloadMB    int
	OCRMode          ingest.Mode
	AnalyzerMaxPages int
	AnalyzerMaxChars int
	RepairAttempts   int
	RepairOverlaps   bool

	// ProviderBackoff repeats a stage's provider call after every key was
	// rate limited.
	ProviderBackoff keypool.Backoff

	Concurrency int
	Pause       time.Duration
	ItemBackoff keypool.Backoff
	QueueSize   int
	Consumers   int

	TempDir string
}

// Config configures a Service.
type Config struct {
	Store     store.Store
	Providers *providers.Registry
	Rotator   *keypool.Rotator
	Fetcher   blob.Fetcher
	Storage   blob.Storage
	Settings  Settings
	// CountPages overrides the PDF page counter.
	CountPages ingest.PageCounter
	Logger     *slog.Logger
}

// Service is the entry point for every pipeline operation.
type Service struct {
	store     store.Store
	status    *areastatus.Machine
	pages     *pages.Store
	gateway   *ingest.Gateway
	analyzer  *structure.Analyzer
	committer *structure.Committer
	jobs      *jobs.Orchestrator
	settings  Settings
	logger    *slog.Logger
}

// New builds every stage over one store and registers the batch workers.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rot := cfg.Rotator
	if rot == nil {
		rot = keypool.NewRotator(keypool.Config{Logger: logger})
	}
	s := cfg.Settings

	status := areastatus.New(cfg.Store, logger)
	ps := pages.New(pages.Config{Pages: cfg.Store, MinChars: s.MinPageChars, Logger: logger})

	orch := jobs.New(jobs.Config{
		Jobs:        cfg.Store,
		Concurrency: s.Concurrency,
		Pause:       s.Pause,
		ItemBackoff: s.ItemBackoff,
		QueueSize:   s.QueueSize,
		Consumers:   s.Consumers,
		Logger:      logger,
	})
	orch.Register(cover_image.New(cover_image.Config{
		Providers: cfg.Providers,
		Provider:  s.ImageProvider,
		Rotator:   rot,
		Storage:   cfg.Storage,
		Areas:     cfg.Store,
		Topics:    cfg.Store,
		Logger:    logger,
	}))
	orch.Register(text_generate.New(text_generate.Config{
		Providers: cfg.Providers,
		Provider:  s.LLMProvider,
		Rotator:   rot,
		Logger:    logger,
	}))

	return &Service{
		store:  cfg.Store,
		status: status,
		pages:  ps,
		gateway: ingest.New(ingest.Config{
			Areas:         cfg.Store,
			Status:        status,
			Pages:         ps,
			Fetcher:       cfg.Fetcher,
			Providers:     cfg.Providers,
			Rotator:       rot,
			Backoff:       s.ProviderBackoff,
			OCRProvider:   s.OCRProvider,
			Mode:          s.OCRMode,
			MaxDownloadMB: s.MaxDownloadMB,
			TempDir:       s.TempDir,
			CountPages:    cfg.CountPages,
			Logger:        logger,
		}),
		analyzer: structure.NewAnalyzer(structure.AnalyzerConfig{
			Areas:          cfg.Store,
			Status:         status,
			Pages:          ps,
			Providers:      cfg.Providers,
			Rotator:        rot,
			Backoff:        s.ProviderBackoff,
			LLMProvider:    s.LLMProvider,
			Model:          s.Model,
			MaxPages:       s.AnalyzerMaxPages,
			MaxChars:       s.AnalyzerMaxChars,
			RepairAttempts: s.RepairAttempts,
			Logger:         logger,
		}),
		committer: structure.NewCommitter(structure.CommitterConfig{
			Areas:          cfg.Store,
			Topics:         cfg.Store,
			Status:         status,
			Pages:          ps,
			RepairOverlaps: s.RepairOverlaps,
			Logger:         logger,
		}),
		jobs:     orch,
		settings: s,
		logger:   logger.With("component", "pipeline"),
	}
}

// Jobs returns the batch orchestrator. Its Run loop is owned by the caller.
func (s *Service) Jobs() *jobs.Orchestrator {
	return s.jobs
}

// Settings returns the settings the stages were built with.
func (s *Service) Settings() Settings {
	return s.settings
}

// Ingest runs extraction for one document.
func (s *Service) Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error) {
	return s.gateway.Ingest(ctx, req)
}

// Analyze proposes a theme list for an area. Nothing is committed.
func (s *Service) Analyze(ctx context.Context, req structure.AnalyzeRequest) (*structure.Analysis, error) {
	return s.analyzer.Analyze(ctx, req)
}

// Commit replaces the area's topics with themes.
func (s *Service) Commit(ctx context.Context, areaID string, themes []types.Theme) (*structure.CommitResult, error) {
	return s.committer.Commit(ctx, areaID, themes)
}

// AreaReport is an area plus what can run next.
type AreaReport struct {
	*types.ContentArea
	StoredPages int      `json:"stored_pages"`
	Topics      int      `json:"topics"`
	NextStages  []string `json:"next_stages"`
}

// GetArea returns the area with its stored page count and allowed stages.
func (s *Service) GetArea(ctx context.Context, id string) (*AreaReport, error) {
	const op = "pipeline.area"
	a, err := s.store.GetArea(ctx, id)
	if err != nil {
		return nil, storeErr(op, err)
	}
	n, err := s.pages.CountPages(ctx, id)
	if err != nil {
		return nil, err
	}
	topics, err := s.ListTopics(ctx, id)
	if err != nil {
		return nil, err
	}
	return &AreaReport{ContentArea: a, StoredPages: n, Topics: len(topics), NextStages: NextStages(a, n)}, nil
}

// NextStages lists the stages an area can enter now.
func NextStages(a *types.ContentArea, storedPages int) []string {
	out := []string{}
	if areastatus.CanIngest(a) {
		out = append(out, "ingest")
	}
	if areastatus.CanAnalyze(a) && storedPages > 0 {
		out = append(out, "analyze")
	}
	if areastatus.CanCommit(a) {
		out = append(out, "commit")
	}
	return out
}

// ListAreas returns every area.
func (s *Service) ListAreas(ctx context.Context) ([]*types.ContentArea, error) {
	areas, err := s.store.ListAreas(ctx)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, "pipeline.areas", err)
	}
	return areas, nil
}

// GetPages returns stored pages in r.
func (s *Service) GetPages(ctx context.Context, areaID string, r types.PageRange) ([]types.Page, error) {
	if r.Start > 0 && r.End > 0 && r.End < r.Start {
		return nil, fault.New(fault.InvalidInput, "pipeline.pages", "end %d is before start %d", r.End, r.Start)
	}
	a, err := s.store.GetArea(ctx, areaID)
	if err != nil {
		return nil, storeErr("pipeline.pages", err)
	}
	return s.pages.GetPages(ctx, areaID, r.Clamp(a.TotalPages))
}

// ListTopics returns the committed topics of an area. Staged or superseded
// versions are never returned.
func (s *Service) ListTopics(ctx context.Context, areaID string) ([]types.Topic, error) {
	const op = "pipeline.topics"
	a, err := s.store.GetArea(ctx, areaID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if a.StructureVersion == "" {
		return []types.Topic{}, nil
	}
	topics, err := s.store.ListTopics(ctx, areaID, a.StructureVersion)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, op, err)
	}
	return topics, nil
}

// ListTopicPages returns the page copies of a committed topic.
func (s *Service) ListTopicPages(ctx context.Context, topicID string) ([]types.TopicPage, error) {
	const op = "pipeline.topic_pages"
	t, err := s.store.GetTopic(ctx, topicID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	a, err := s.store.GetArea(ctx, t.AreaID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if t.StructureVersion != a.StructureVersion {
		return nil, fault.New(fault.NotFound, op, "topic %s is not part of the committed structure", topicID)
	}
	tp, err := s.store.ListTopicPages(ctx, topicID)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, op, err)
	}
	return tp, nil
}

// CoverRequest asks for covers of an area's committed topics.
type CoverRequest struct {
	AreaID   string `json:"area_id"`
	Provider string `json:"provider,omitempty"`
	// AreaDefault also generates the area's default cover.
	AreaDefault bool `json:"area_default,omitempty"`
}

// CoverJob is the job created by RequestCovers.
type CoverJob struct {
	JobID string `json:"job_id"`
	Items int    `json:"items"`
}

// RequestCovers creates a cover_image job for every committed topic that has
// no cover yet.
func (s *Service) RequestCovers(ctx context.Context, req CoverRequest) (*CoverJob, error) {
	const op = "pipeline.covers"
	a, err := s.store.GetArea(ctx, req.AreaID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if a.Status != types.AreaReady {
		return nil, fault.New(fault.InvalidState, op, "area %s is %s; covers need a committed structure", a.ID, a.Status)
	}
	topics, err := s.ListTopics(ctx, a.ID)
	if err != nil {
		return nil, err
	}

	items := cover_image.TopicItems(a.ID, topics)
	if req.AreaDefault {
		items = append(items, types.BatchItem{
			ID:        "area",
			Prompt:    cover_image.Prompt("", types.Topic{Title: a.ID}),
			TargetKey: cover_image.TargetArea + ":" + a.ID,
		})
	}
	if len(items) == 0 {
		return nil, fault.New(fault.InvalidInput, op, "every topic of area %s already has a cover", a.ID)
	}

	jobCtx := map[string]any{"area_id": a.ID}
	if p := strings.TrimSpace(req.Provider); p != "" {
		jobCtx["provider"] = p
	}
	id, err := s.jobs.CreateJob(ctx, jobs.CreateRequest{Type: cover_image.JobType, Items: items, Context: jobCtx})
	if err != nil {
		return nil, err
	}
	s.logger.Info("cover job created", "area_id", a.ID, "job_id", id, "items", len(items))
	return &CoverJob{JobID: id, Items: len(items)}, nil
}

func storeErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fault.Wrap(fault.NotFound, op, err)
	}
	return fault.Wrap(fault.Persistence, op, err)
}
