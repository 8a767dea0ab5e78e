// Package sortkey derives the ordering key stored alongside a movie title.
package sortkey

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Articles1 is the leading-article set of the first generation that stores
// sortable titles (English and Spanish).
var Articles1 = []string{
	"a", "an", "the",
	"el", "la", "los", "las", "un", "una", "unos", "unas",
}

// Articles2 extends Articles1 with French, Italian, German and Portuguese
// articles. Titles starting with one of the added words sort differently
// once a store moves to a generation using this set.
var Articles2 = append(append([]string(nil), Articles1...),
	"le", "les", "l'", "une", "des",
	"il", "lo", "gli", "i", "uno",
	"der", "die", "das", "ein", "eine",
	"o", "os", "as", "um", "uma",
)

// Deriver computes sortable keys for one article set. The zero value strips
// nothing.
type Deriver struct {
	articles map[string]struct{}
}

// New returns a Deriver that strips any of the given leading articles.
// Articles are matched after lowercasing.
func New(articles ...string) Deriver {
	d := Deriver{articles: make(map[string]struct{}, len(articles))}
	for _, a := range articles {
		d.articles[lower(a)] = struct{}{}
	}
	return d
}

var latest = New(Articles2...)

// Derive computes the sortable key of title with the latest article set.
func Derive(title string) string {
	return latest.Derive(title)
}

// Derive lowercases title and drops its first word when that word is a
// leading article. Words are separated by single spaces; the remainder is
// rejoined unchanged.
func (d Deriver) Derive(title string) string {
	lowered := lower(title)
	words := strings.Split(lowered, " ")
	if _, ok := d.articles[words[0]]; ok {
		return strings.Join(words[1:], " ")
	}
	return lowered
}

// IsArticle reports whether word is in the deriver's article set.
func (d Deriver) IsArticle(word string) bool {
	_, ok := d.articles[lower(word)]
	return ok
}

func lower(s string) string {
	// cases.Caser is stateful, so one per call.
	return cases.Lower(language.Und).String(s)
}
