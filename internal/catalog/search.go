package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldSearch lowercases a string and strips diacritics so "Émile" and
// "emile" compare equal. Folded copies of titles and author names are stored
// alongside the originals and searched with the folded query.
func foldSearch(s string) string {
	chain := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(chain, s)
	if err != nil {
		folded = s
	}
	return strings.ToLower(strings.TrimSpace(folded))
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern folds a query and escapes LIKE metacharacters for substring
// matching.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(foldSearch(s)) + "%"
}
