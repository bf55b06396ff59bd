package structure

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackzampolin/temario/internal/areastatus"
	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/pages"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/types"
)

// CommitterConfig configures a Committer.
type CommitterConfig struct {
	Areas  store.Areas
	Topics store.Topics
	Status *areastatus.Machine
	Pages  *pages.Store
	// RepairOverlaps moves the start of a theme that begins inside the
	// previous one to the page after it, instead of rejecting the set.
	RepairOverlaps bool
	Logger         *slog.Logger
}

// Committer replaces an area's topic set. Readers see either the previous
// committed set or the new one, never a mix or an empty set.
type Committer struct {
	cfg    CommitterConfig
	logger *slog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewCommitter creates a Committer.
func NewCommitter(cfg CommitterConfig) *Committer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Committer{
		cfg:    cfg,
		logger: cfg.Logger.With("component", "committer"),
		locks:  make(map[string]*sync.Mutex),
	}
}

// CommitResult summarizes a commit.
type CommitResult struct {
	AreaID           string        `json:"area_id"`
	TopicsCreated    int           `json:"topics_created"`
	CoversReused     int           `json:"covers_reused"`
	CoversDefaulted  int           `json:"covers_defaulted"`
	CoversMissing    int           `json:"covers_missing"`
	PagesLinked      int           `json:"pages_linked"`
	EmptyTopics      int           `json:"empty_topics"`
	RepairedRanges   int           `json:"repaired_ranges,omitempty"`
	StructureVersion string        `json:"structure_version"`
	Duration         time.Duration `json:"duration"`
}

func (c *Committer) areaLock(id string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[id]
	if !ok {
		l = &sync.Mutex{}
		c.locks[id] = l
	}
	return l
}

// Commit validates themes and swaps them in as the area's topic set.
//
// New topics and their page copies are written under a fresh structure
// version that readers ignore. The area then flips to that version and to
// ready in one write, after which other versions are deleted. A failure
// before the flip removes the staged version and moves the area to error.
func (c *Committer) Commit(ctx context.Context, areaID string, themes []types.Theme) (*CommitResult, error) {
	const op = "commit"
	start := time.Now()

	if strings.TrimSpace(areaID) == "" {
		return nil, fault.New(fault.InvalidInput, op, "area id is required")
	}
	log := c.logger.With("area_id", areaID)

	lock := c.areaLock(areaID)
	lock.Lock()
	defer lock.Unlock()

	area, err := c.cfg.Areas.GetArea(ctx, areaID)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if !areastatus.CanCommit(area) {
		return nil, fault.New(fault.InvalidState, op, "area %s is %s; analyze it first", area.ID, area.Status)
	}

	themes, repaired, err := ValidateRanges(themes, area.TotalPages, c.cfg.RepairOverlaps)
	if err != nil {
		return nil, err
	}
	if repaired > 0 {
		log.Warn("repaired overlapping theme ranges", "count", repaired)
	}

	if _, err := c.cfg.Status.Transition(ctx, areaID, types.AreaFormatting, types.AreaUpdate{}); err != nil {
		return nil, err
	}
	log.Info("commit started", "themes", len(themes))

	res, err := c.commit(ctx, log, area, themes)
	if err != nil {
		failCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if res != nil && res.StructureVersion != "" {
			if derr := c.cfg.Topics.DeleteTopicVersion(failCtx, areaID, res.StructureVersion); derr != nil {
				log.Error("failed to discard staged topics", "version", res.StructureVersion, "error", derr)
			}
		}
		if ferr := c.cfg.Status.Fail(failCtx, areaID, types.AreaFormatting, err); ferr != nil {
			log.Error("failed to record commit failure", "error", ferr)
		}
		return nil, err
	}
	res.RepairedRanges = repaired
	res.Duration = time.Since(start)

	c.collect(ctx, log, areaID, res.StructureVersion)

	log.Info("commit finished",
		"version", res.StructureVersion, "topics", res.TopicsCreated, "pages_linked", res.PagesLinked,
		"covers_reused", res.CoversReused, "covers_defaulted", res.CoversDefaulted, "duration", res.Duration)
	return res, nil
}

// commit stages the new version and flips the area to it. On error the
// returned result, if any, carries the staged version to discard.
func (c *Committer) commit(ctx context.Context, log *slog.Logger, area *types.ContentArea, themes []types.Theme) (*CommitResult, error) {
	const op = "commit"

	prev, err := c.cfg.Topics.ListTopics(ctx, area.ID, area.StructureVersion)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, op+".topics", err)
	}
	covers := BuildCoverIndex(prev)

	version := NewVersion()
	res := &CommitResult{AreaID: area.ID}

	topics := make([]types.Topic, len(themes))
	for i, th := range themes {
		ref, src := ResolveCover(covers, th.Title, area.DefaultCoverRef)
		switch src {
		case CoverReused:
			res.CoversReused++
		case CoverDefaulted:
			res.CoversDefaulted++
		default:
			res.CoversMissing++
		}
		topics[i] = types.Topic{
			AreaID:           area.ID,
			Order:            i + 1,
			Title:            strings.TrimSpace(th.Title),
			PageStart:        th.PageStart,
			PageEnd:          th.PageEnd,
			Subtopics:        th.Subtopics,
			CoverRef:         ref,
			Status:           types.TopicEmpty,
			StructureVersion: version,
		}
	}

	// Page copies are computed before anything is written so topic status
	// is stored once.
	all, err := c.cfg.Pages.GetPages(ctx, area.ID, types.AllPages.Clamp(area.TotalPages))
	if err != nil {
		return nil, err
	}
	linked := make([][]types.Page, len(topics))
	for i := range topics {
		r := topics[i].Range()
		for _, p := range all {
			if r.Contains(p.PageNumber) && strings.TrimSpace(p.Text) != "" {
				linked[i] = append(linked[i], p)
			}
		}
		if len(linked[i]) > 0 {
			topics[i].Status = types.TopicReady
		} else {
			res.EmptyTopics++
			log.Warn("topic has no stored pages", "title", topics[i].Title, "start", topics[i].PageStart, "end", topics[i].PageEnd)
		}
	}

	res.StructureVersion = version
	created, err := c.cfg.Topics.CreateTopics(ctx, topics)
	if err != nil {
		return res, fault.Wrap(fault.Persistence, op+".create", err)
	}
	res.TopicsCreated = len(created)

	var copies []types.TopicPage
	for i, t := range created {
		for _, p := range linked[i] {
			copies = append(copies, types.TopicPage{
				TopicID:    t.ID,
				AreaID:     area.ID,
				PageNumber: p.PageNumber,
				Text:       p.Text,
			})
		}
	}
	if len(copies) > 0 {
		if err := c.cfg.Topics.UpsertTopicPages(ctx, copies); err != nil {
			return res, fault.Wrap(fault.Persistence, op+".pages", err)
		}
	}
	res.PagesLinked = len(copies)

	total := len(created)
	if _, err := c.cfg.Status.Transition(ctx, area.ID, types.AreaReady, types.AreaUpdate{
		StructureVersion: &version,
		TotalThemes:      &total,
	}); err != nil {
		return res, err
	}
	return res, nil
}

// collect deletes every topic version except keep. Failures only leave
// invisible rows behind and are logged.
func (c *Committer) collect(ctx context.Context, log *slog.Logger, areaID, keep string) {
	versions, err := c.cfg.Topics.ListTopicVersions(ctx, areaID)
	if err != nil {
		log.Warn("failed to list topic versions", "error", err)
		return
	}
	for _, v := range versions {
		if v == keep {
			continue
		}
		if err := c.cfg.Topics.DeleteTopicVersion(ctx, areaID, v); err != nil {
			log.Warn("failed to delete old topic version", "version", v, "error", err)
			continue
		}
		log.Debug("deleted old topic version", "version", v)
	}
}

// NewVersion returns a structure version id. Versions sort by creation time.
func NewVersion() string {
	return fmt.Sprintf("%020d", time.Now().UnixNano())
}

// ValidateRanges checks that themes have 1 ≤ start ≤ end, are ordered and do
// not overlap, and end within totalPages when it is known. With repair set,
// a theme that starts inside the previous one is moved to start on the page
// after it when that leaves a non-empty range. It returns the themes to
// commit and the number of ranges repaired.
func ValidateRanges(themes []types.Theme, totalPages int, repair bool) ([]types.Theme, int, error) {
	const op = "commit.validate"
	if len(themes) == 0 {
		return nil, 0, fault.New(fault.InvalidInput, op, "no themes to commit")
	}

	out := make([]types.Theme, len(themes))
	copy(out, themes)
	repaired := 0
	for i := range out {
		t := &out[i]
		if strings.TrimSpace(t.Title) == "" {
			return nil, 0, fault.New(fault.InvalidInput, op, "theme %d has no title", i+1)
		}
		if t.PageStart < 1 || t.PageEnd < t.PageStart {
			return nil, 0, fault.New(fault.InvalidInput, op, "theme %d (%q) has invalid range %d-%d", i+1, t.Title, t.PageStart, t.PageEnd)
		}
		if totalPages > 0 && t.PageEnd > totalPages {
			return nil, 0, fault.New(fault.InvalidInput, op, "theme %d (%q) ends at page %d, document has %d", i+1, t.Title, t.PageEnd, totalPages)
		}
		if i == 0 {
			continue
		}
		prev := out[i-1]
		if t.PageStart > prev.PageEnd {
			continue
		}
		if repair && t.PageStart >= prev.PageStart && prev.PageEnd+1 <= t.PageEnd {
			t.PageStart = prev.PageEnd + 1
			repaired++
			continue
		}
		return nil, 0, fault.New(fault.InvalidInput, op, "theme %d (%q) range %d-%d overlaps or precedes theme %d (%q) range %d-%d",
			i+1, t.Title, t.PageStart, t.PageEnd, i, prev.Title, prev.PageStart, prev.PageEnd)
	}
	return out, repaired, nil
}
