package structure

import (
	"regexp"
	"strings"

	"github.com/jackzampolin/temario/internal/types"
)

// Canonical Roman numerals I..XXXIX.
const roman = `(?:X{1,3}(?:IX|IV|V?I{0,3})|IX|IV|V?I{1,3}|V)`

const (
	number  = `\d{1,2}`
	joiner  = `(?:\s*[,/&]\s*|\s+(?:e|E|and)\s+)`
	sep     = `[-–—:]`
	itemUC  = `(?:` + roman + `|` + number + `)`
	itemAny = `(?:(?i:` + roman + `)|` + number + `)`
	listUC  = itemUC + `(?:` + joiner + itemUC + `)*`
	listAny = itemAny + `(?:` + joiner + itemAny + `)*`
)

// titleSuffixes are applied in order, each at most once.
var titleSuffixes = []*regexp.Regexp{
	// "Posse - Parte II", "Posse: parte 1 e 2"
	regexp.MustCompile(`\s*` + sep + `\s*(?i:parte)\s+` + listAny + `\s*$`),
	// "Posse Parte II", "Parte 3"
	regexp.MustCompile(`(?:^|\s+)(?i:parte)\s+` + listAny + `\s*$`),
	// "Posse II", "Posse - I e II", "Posse 1/2"
	regexp.MustCompile(`(?:\s*` + sep + `)?\s+` + listUC + `\s*$`),
}

// NormalizeTitle strips split-section decorations from a title so that
// the parts of one theme compare equal. A title that would become empty
// is returned unchanged.
func NormalizeTitle(title string) string {
	orig := strings.TrimSpace(title)
	out := orig
	for _, re := range titleSuffixes {
		out = re.ReplaceAllString(out, "")
	}
	out = strings.TrimRight(strings.TrimSpace(out), " -–—:,")
	if out == "" {
		return orig
	}
	return out
}

// Normalize merges the split parts of themes. Themes are walked in the
// order they were emitted; strictly consecutive entries whose normalized
// titles fold to the same key become one theme spanning the union of their
// page ranges, with subtopics concatenated in member order. Orders are
// renumbered from 1.
func Normalize(themes []types.Theme) []types.Theme {
	out := make([]types.Theme, 0, len(themes))
	lastKey := ""
	for _, th := range themes {
		title := NormalizeTitle(th.Title)
		key := FoldTitle(title)

		if len(out) > 0 && key == lastKey {
			g := &out[len(out)-1]
			if th.PageStart > 0 && (g.PageStart == 0 || th.PageStart < g.PageStart) {
				g.PageStart = th.PageStart
			}
			if th.PageEnd > g.PageEnd {
				g.PageEnd = th.PageEnd
			}
			g.Subtopics = append(g.Subtopics, th.Subtopics...)
			continue
		}

		var subs []string
		if len(th.Subtopics) > 0 {
			subs = append(subs, th.Subtopics...)
		}
		out = append(out, types.Theme{
			Order:     len(out) + 1,
			Title:     title,
			PageStart: th.PageStart,
			PageEnd:   th.PageEnd,
			Subtopics: subs,
		})
		lastKey = key
	}
	return out
}
