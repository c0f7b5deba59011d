// Package availability resolves whether a proposed business name can be
// registered, given the ingested entity corpus.
package availability

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/registry-cli/internal/normalize"
	"github.com/sells-group/registry-cli/internal/registry"
	"github.com/sells-group/registry-cli/internal/suggest"
)

// nameHeld is the status eligibility table: true means a record with this
// status blocks the name. An inactive record with no hold releases the name
// for reuse; anything unrecognized blocks, so a vocabulary gap can never
// report a false "available".
var nameHeld = map[registry.Status]bool{
	registry.StatusActive:       true,
	registry.StatusInactiveHeld: true,
	registry.StatusInactive:     false,
}

func statusHoldsName(s registry.Status) bool {
	held, ok := nameHeld[s]
	if !ok {
		return true
	}
	return held
}

// Conflict is one corpus record that blocks the searched name.
type Conflict struct {
	DocumentNumber string            `json:"document_number"`
	LegalName      string            `json:"legal_name"`
	Status         registry.Status   `json:"status"`
	Category       registry.Category `json:"category"`
	EntityType     string            `json:"entity_type"`
	FilingDate     *time.Time        `json:"filing_date,omitempty"`
}

// Verdict is the result of one availability check.
type Verdict struct {
	SearchedName   string     `json:"searched_name"`
	NormalizedName string     `json:"normalized_name"`
	Available      bool       `json:"available"`
	Conflicts      []Conflict `json:"conflicts"`
	Suggestions    []string   `json:"suggestions,omitempty"`
}

// Options bounds the candidate fetch and the suggestion list.
type Options struct {
	Jurisdiction   string // qualifier for suggestions, e.g. "FL"
	PerCategoryCap int    // default 20
	MergedCap      int    // default 50
	MaxSuggestions int    // default 5
}

// Checker answers availability checks against a Store. It is stateless per
// call and safe for concurrent use.
type Checker struct {
	store registry.Store
	opts  Options
}

// NewChecker creates a Checker over the given store.
func NewChecker(store registry.Store, opts Options) *Checker {
	if opts.PerCategoryCap <= 0 {
		opts.PerCategoryCap = 20
	}
	if opts.MergedCap <= 0 {
		opts.MergedCap = 50
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = 5
	}
	return &Checker{store: store, opts: opts}
}

// Check resolves the availability of name. hint is a free-form entity-type
// hint ("LLC", "CORP", ...) that only steers suggestion wording. A store
// failure is returned as an error, never as an "available" verdict.
func (ch *Checker) Check(ctx context.Context, name, hint string) (*Verdict, error) {
	normalized := normalize.Normalize(name)

	log := zap.L().With(zap.String("component", "availability"))

	// Substring search over-fetches candidates per category; the
	// distinguishability filter below does the exact comparison.
	candidates := make([][]registry.EntityRecord, len(registry.Categories))
	g, gctx := errgroup.WithContext(ctx)
	for i, cat := range registry.Categories {
		g.Go(func() error {
			recs, err := ch.store.SearchNormalized(gctx, cat, normalized, ch.opts.PerCategoryCap)
			if err != nil {
				return eris.Wrapf(err, "availability: search %s", cat)
			}
			candidates[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]registry.EntityRecord, 0, ch.opts.MergedCap)
	for _, recs := range candidates {
		merged = append(merged, recs...)
	}

	// Most recent filing first; records with no date sort last.
	sort.SliceStable(merged, func(i, j int) bool {
		di, dj := merged[i].FilingDate, merged[j].FilingDate
		switch {
		case di == nil:
			return false
		case dj == nil:
			return true
		default:
			return di.After(*dj)
		}
	})
	if len(merged) > ch.opts.MergedCap {
		merged = merged[:ch.opts.MergedCap]
	}

	var conflicts []Conflict
	for _, rec := range merged {
		if normalize.Distinguishable(name, rec.LegalName) {
			continue
		}
		if !statusHoldsName(rec.Status) {
			continue
		}
		conflicts = append(conflicts, Conflict{
			DocumentNumber: rec.DocumentNumber,
			LegalName:      rec.LegalName,
			Status:         rec.Status,
			Category:       rec.Category,
			EntityType:     rec.EntityType,
			FilingDate:     rec.FilingDate,
		})
	}

	v := &Verdict{
		SearchedName:   name,
		NormalizedName: normalized,
		Available:      len(conflicts) == 0,
		Conflicts:      conflicts,
	}
	if !v.Available {
		v.Suggestions = suggest.Generate(name, hint, ch.opts.Jurisdiction, time.Now().Year(), ch.opts.MaxSuggestions)
	}

	log.Debug("availability resolved",
		zap.String("normalized", normalized),
		zap.Bool("available", v.Available),
		zap.Int("candidates", len(merged)),
		zap.Int("conflicts", len(conflicts)),
	)
	return v, nil
}
