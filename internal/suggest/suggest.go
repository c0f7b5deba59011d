// Package suggest produces alternative-name candidates for a name that is
// already taken. Candidates are advisory: they are not re-checked for
// availability.
package suggest

import (
	"fmt"
	"strings"

	"github.com/sells-group/registry-cli/internal/normalize"
)

// genericQualifiers are appended in fixed order; determinism matters so the
// same taken name always yields the same list.
var genericQualifiers = []string{"Group", "Solutions", "Services", "Enterprises"}

var hintQualifiers = map[string][]string{
	"llc":  {"Ventures", "Holdings"},
	"corp": {"Corporation", "International"},
}

// Generate returns up to max alternative names for takenName. hint is a
// free-form entity-type hint ("LLC", "INC", ...); jurisdiction is used as
// the first qualifier; year is the current calendar year.
func Generate(takenName, hint, jurisdiction string, year, max int) []string {
	base := normalize.DisplayBase(takenName)
	if base == "" || max <= 0 {
		return nil
	}

	out := make([]string, 0, max)
	add := func(s string) {
		if len(out) < max {
			out = append(out, s)
		}
	}

	if jurisdiction != "" {
		add(fmt.Sprintf("%s %s", base, jurisdiction))
	}
	for _, q := range genericQualifiers {
		add(fmt.Sprintf("%s %s", base, q))
	}
	add(fmt.Sprintf("%s %d", base, year))
	for _, q := range hintQualifiers[hintKey(hint)] {
		add(fmt.Sprintf("%s %s", base, q))
	}
	return out
}

// hintKey folds the free-form hint onto a qualifier set key.
func hintKey(hint string) string {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch {
	case strings.Contains(h, "llc"), strings.Contains(h, "limited liability"):
		return "llc"
	case strings.Contains(h, "corp"), strings.Contains(h, "inc"):
		return "corp"
	default:
		return ""
	}
}
