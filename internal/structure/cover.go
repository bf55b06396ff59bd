package structure

import (
	"sort"

	"github.com/jackzampolin/temario/internal/types"
)

// BuildCoverIndex maps the folded title of every topic that has a cover to
// that cover. When two topics fold to the same title the one with the lower
// order wins.
func BuildCoverIndex(topics []types.Topic) map[string]string {
	sorted := make([]types.Topic, len(topics))
	copy(sorted, topics)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })

	index := make(map[string]string, len(sorted))
	for _, t := range sorted {
		if t.CoverRef == "" {
			continue
		}
		key := FoldTitle(t.Title)
		if _, taken := index[key]; !taken {
			index[key] = t.CoverRef
		}
	}
	return index
}

// CoverSource says where a committed topic's cover came from.
type CoverSource int

const (
	CoverMissing CoverSource = iota
	CoverReused
	CoverDefaulted
)

// ResolveCover picks the cover for a new topic title: the previous cover of
// a topic with the same folded title, else the area default, else none.
func ResolveCover(index map[string]string, title, defaultCover string) (string, CoverSource) {
	if ref, ok := index[FoldTitle(title)]; ok {
		return ref, CoverReused
	}
	if defaultCover != "" {
		return defaultCover, CoverDefaulted
	}
	return "", CoverMissing
}
