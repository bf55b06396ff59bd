// Package pages is the PageStore: idempotent (area, page) → text storage
// with a noise filter in front of the store.
package pages

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/jackzampolin/temario/internal/fault"
	"github.com/jackzampolin/temario/internal/store"
	"github.com/jackzampolin/temario/internal/types"
)

// DefaultMinChars is the shortest trimmed text kept as a page.
const DefaultMinChars = 20

// WriteStats summarizes one ReplacePages call.
type WriteStats struct {
	Received   int `json:"received"`
	Written    int `json:"written"`
	Noise      int `json:"noise"`      // dropped as too short
	Duplicates int `json:"duplicates"` // same page number repeated in the input
	Pruned     int `json:"pruned"`     // left over from an earlier document
}

// Config configures a Store.
type Config struct {
	Pages    store.Pages
	MinChars int // 0 = DefaultMinChars; negative disables the filter
	Logger   *slog.Logger
}

// Store filters and persists pages.
type Store struct {
	pages    store.Pages
	minChars int
	logger   *slog.Logger
}

// New creates a page Store.
func New(cfg Config) *Store {
	if cfg.MinChars == 0 {
		cfg.MinChars = DefaultMinChars
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Store{pages: cfg.Pages, minChars: cfg.MinChars, logger: cfg.Logger}
}

// MinChars returns the noise threshold in use.
func (s *Store) MinChars() int {
	return s.minChars
}

// ReplacePages upserts pages for areaID. Nothing is deleted: a page missing
// from in keeps its stored text, and repeated calls with the same input
// converge on the same rows. Pages whose trimmed text is
// shorter than MinChars are dropped; for repeated page numbers the last
// occurrence wins.
func (s *Store) ReplacePages(ctx context.Context, areaID string, in []types.Page) (WriteStats, error) {
	stats, _, err := s.write(ctx, areaID, in)
	return stats, err
}

// Supersede stores in as the complete page set of areaID: it writes pages
// like ReplacePages and then removes every stored page that this call did
// not write. Removal runs only after the new rows are in place, and is
// skipped when nothing survived the noise filter.
func (s *Store) Supersede(ctx context.Context, areaID string, in []types.Page) (WriteStats, error) {
	stats, written, err := s.write(ctx, areaID, in)
	if err != nil || len(written) == 0 {
		return stats, err
	}
	n, err := s.pages.PrunePages(ctx, areaID, written)
	if err != nil {
		return stats, fault.Wrap(fault.Persistence, "pages.prune", err)
	}
	if n > 0 {
		s.logger.Info("removed superseded pages", "area_id", areaID, "pages", n)
	}
	stats.Pruned = n
	return stats, nil
}

func (s *Store) write(ctx context.Context, areaID string, in []types.Page) (WriteStats, []int, error) {
	stats := WriteStats{Received: len(in)}

	byNum := make(map[int]types.Page, len(in))
	for _, p := range in {
		if p.PageNumber < 1 {
			return stats, nil, fault.New(fault.InvalidInput, "pages.replace", "page number %d out of range", p.PageNumber)
		}
		if s.isNoise(p.Text) {
			stats.Noise++
			s.logger.Debug("dropping noise page", "area_id", areaID, "page", p.PageNumber, "chars", utf8.RuneCountInString(strings.TrimSpace(p.Text)))
			continue
		}
		if _, seen := byNum[p.PageNumber]; seen {
			stats.Duplicates++
		}
		p.AreaID = areaID
		byNum[p.PageNumber] = p
	}

	out := make([]types.Page, 0, len(byNum))
	nums := make([]int, 0, len(byNum))
	for n, p := range byNum {
		out = append(out, p)
		nums = append(nums, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	sort.Ints(nums)

	if len(out) > 0 {
		if err := s.pages.UpsertPages(ctx, out); err != nil {
			return stats, nil, fault.Wrap(fault.Persistence, "pages.replace", err)
		}
	}
	stats.Written = len(out)
	return stats, nums, nil
}

// GetPages returns the pages of areaID inside r (inclusive) ordered by page
// number. An area without pages yields an empty slice.
func (s *Store) GetPages(ctx context.Context, areaID string, r types.PageRange) ([]types.Page, error) {
	if r.Start > 0 && r.End > 0 && r.End < r.Start {
		return []types.Page{}, nil
	}
	pages, err := s.pages.ListPages(ctx, areaID, r)
	if err != nil {
		return nil, fault.Wrap(fault.Persistence, "pages.get", err)
	}
	if pages == nil {
		pages = []types.Page{}
	}
	return pages, nil
}

// CountPages returns how many pages are stored for areaID.
func (s *Store) CountPages(ctx context.Context, areaID string) (int, error) {
	n, err := s.pages.CountPages(ctx, areaID)
	if err != nil {
		return 0, fault.Wrap(fault.Persistence, "pages.count", err)
	}
	return n, nil
}

func (s *Store) isNoise(text string) bool {
	if s.minChars < 0 {
		return false
	}
	return utf8.RuneCountInString(strings.TrimSpace(text)) < s.minChars
}
