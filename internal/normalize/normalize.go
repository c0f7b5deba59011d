// Package normalize implements the jurisdiction distinguishability rules used
// to decide whether two business names are "the same" for availability
// purposes. The same canonicalization runs at ingestion time and at query
// time so stored and searched keys are always comparable.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// entitySuffixes lists strippable entity-type suffixes as token sequences,
// longest first so multi-word expansions win over their abbreviations.
// Matching is anchored to the end of the name; a suffix word mid-name is
// never stripped.
var entitySuffixes = [][]string{
	{"limited", "liability", "company"},
	{"l", "l", "l", "p"},
	{"l", "l", "c"},
	{"l", "l", "p"},
	{"l", "p"},
	{"p", "a"},
	{"p", "l"},
	{"incorporated"},
	{"corporation"},
	{"company"},
	{"limited"},
	{"pllc"},
	{"lllp"},
	{"llc"},
	{"llp"},
	{"inc"},
	{"corp"},
	{"ltd"},
	{"co"},
	{"lp"},
	{"gp"},
	{"pa"},
	{"pl"},
}

// articles are removed wherever they appear as whole tokens.
var articles = map[string]bool{"the": true, "a": true, "an": true}

// foldAccents strips combining diacritical marks; feeds occasionally carry
// accented names and the registry compares their folded forms.
var foldAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var titleCaser = cases.Title(language.AmericanEnglish)

// Normalize converts a raw business name into its canonical comparison key.
//
// The rules run in a fixed order: accent folding, lowercasing, punctuation
// stripping (ampersand survives as its own token), article removal,
// "and" -> "&", then trailing entity-suffix stripping alternating with a
// trailing possessive/plural fold until neither applies. The alternation
// matters: folding "corps" to "corp" exposes a strippable suffix, and the key
// must be a fixpoint so normalize(normalize(n)) == normalize(n). The
// possessive/plural step is a suffix heuristic, not morphological analysis;
// irregular plurals are deliberately not folded.
func Normalize(name string) string {
	folded, _, err := transform.String(foldAccents, name)
	if err != nil {
		folded = name
	}

	tokens := tokenize(folded)
	tokens = dropArticles(tokens)
	tokens = foldConjunction(tokens)
	for {
		tokens = stripSuffixes(tokens)
		var changed bool
		tokens, changed = stripPossessive(tokens)
		if !changed {
			break
		}
	}

	return strings.Join(tokens, " ")
}

// Distinguishable reports whether two names are different enough to coexist
// in the registry. Two names conflict exactly when they normalize identically.
func Distinguishable(a, b string) bool {
	return Normalize(a) != Normalize(b)
}

// DisplayBase returns a human-presentable phrase derived from the normalized
// form of a name, suitable as the stem of suggested alternatives.
func DisplayBase(name string) string {
	n := Normalize(name)
	if n == "" {
		return ""
	}
	return titleCaser.String(n)
}

// tokenize lowercases the name and splits it into tokens, replacing every
// punctuation or symbol rune except '&' with a token boundary. '&' becomes a
// standalone token so "A&B", "A & B", and "A and B" all converge.
func tokenize(name string) []string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r == '&':
			b.WriteString(" & ")
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteRune(' ')
		}
	}
	return strings.Fields(b.String())
}

func dropArticles(tokens []string) []string {
	out := tokens[:0]
	for _, t := range tokens {
		if !articles[t] {
			out = append(out, t)
		}
	}
	return out
}

func foldConjunction(tokens []string) []string {
	for i, t := range tokens {
		if t == "and" {
			tokens[i] = "&"
		}
	}
	return tokens
}

// stripSuffixes removes trailing entity-suffix phrases. Stripping repeats
// until no suffix remains so stacked suffixes ("Smith Company LLC") reduce
// fully and normalization stays idempotent.
func stripSuffixes(tokens []string) []string {
	for {
		stripped := false
		for _, suffix := range entitySuffixes {
			if hasTrailing(tokens, suffix) {
				tokens = tokens[:len(tokens)-len(suffix)]
				stripped = true
				break
			}
		}
		if !stripped || len(tokens) == 0 {
			return tokens
		}
	}
}

func hasTrailing(tokens, suffix []string) bool {
	if len(tokens) < len(suffix) {
		return false
	}
	offset := len(tokens) - len(suffix)
	for i, s := range suffix {
		if tokens[offset+i] != s {
			return false
		}
	}
	return true
}

// stripPossessive folds a trailing possessive/plural marker and reports
// whether anything changed, so the caller can re-run suffix stripping on the
// word the fold exposed ("corps" -> "corp"). After punctuation stripping,
// "Smith's" arrives as ["smith" "s"] and "Smiths" as ["smiths"]; both reduce
// to "smith". Words ending in a double "s" are left alone.
func stripPossessive(tokens []string) ([]string, bool) {
	if len(tokens) == 0 {
		return tokens, false
	}
	changed := false
	last := tokens[len(tokens)-1]
	if last == "s" && len(tokens) > 1 {
		tokens = tokens[:len(tokens)-1]
		last = tokens[len(tokens)-1]
		changed = true
	}
	if len(last) > 1 && strings.HasSuffix(last, "s") && !strings.HasSuffix(last, "ss") && !isNumeric(last) {
		tokens[len(tokens)-1] = last[:len(last)-1]
		changed = true
	}
	return tokens, changed
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return len(s) > 0
}
