package structure

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldTitle returns the comparison key of a title: lower-case, diacritics
// stripped, trimmed, inner whitespace collapsed. "  Direito  PENAL " and
// "direito penal" fold to the same key, as do "Ação" and "acao".
func FoldTitle(s string) string {
	// A chain holds state and is not safe for concurrent use.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.Join(strings.Fields(strings.ToLower(out)), " ")
}
