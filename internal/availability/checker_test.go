package availability

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/registry-cli/internal/normalize"
	"github.com/sells-group/registry-cli/internal/registry"
)

func newStore(t *testing.T) registry.Store {
	t.Helper()
	store, err := registry.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func seed(t *testing.T, store registry.Store, cat registry.Category, docNum, legalName string, status registry.Status, filed *time.Time) {
	t.Helper()
	_, err := store.UpsertEntity(context.Background(), &registry.EntityRecord{
		DocumentNumber: docNum,
		LegalName:      legalName,
		NormalizedName: normalize.Normalize(legalName),
		Status:         status,
		Category:       cat,
		FilingType:     "DOMLLC",
		EntityType:     "Domestic Limited Liability Company",
		FilingDate:     filed,
	})
	require.NoError(t, err)
}

func date(s string) *time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &d
}

func TestCheck_ExactDuplicateActive(t *testing.T) {
	store := newStore(t)
	seed(t, store, registry.CategoryCorporate, "L20000000001", "Sunrise Consulting LLC", registry.StatusActive, date("2020-03-15"))

	ch := NewChecker(store, Options{Jurisdiction: "FL"})
	v, err := ch.Check(context.Background(), "Sunrise Consulting LLC", "LLC")
	require.NoError(t, err)

	assert.False(t, v.Available)
	require.Len(t, v.Conflicts, 1)
	assert.Equal(t, "L20000000001", v.Conflicts[0].DocumentNumber)
	assert.NotEmpty(t, v.Suggestions)
}

func TestCheck_HeldInactiveStillBlocks(t *testing.T) {
	store := newStore(t)
	seed(t, store, registry.CategoryCorporate, "L20000000001", "Sunrise Consulting LLC", registry.StatusInactiveHeld, date("2020-03-15"))

	ch := NewChecker(store, Options{})
	v, err := ch.Check(context.Background(), "Sunrise Consulting LLC", "LLC")
	require.NoError(t, err)
	assert.False(t, v.Available)
}

func TestCheck_EligibilityMonotonicity(t *testing.T) {
	store := newStore(t)
	seed(t, store, registry.CategoryCorporate, "L20000000001", "Sunrise Consulting LLC", registry.StatusActive, date("2020-03-15"))

	ch := NewChecker(store, Options{})
	v, err := ch.Check(context.Background(), "Sunrise Consulting LLC", "LLC")
	require.NoError(t, err)
	assert.False(t, v.Available)

	// Dropping the hold releases the name.
	seed(t, store, registry.CategoryCorporate, "L20000000001", "Sunrise Consulting LLC", registry.StatusInactive, date("2020-03-15"))
	v, err = ch.Check(context.Background(), "Sunrise Consulting LLC", "LLC")
	require.NoError(t, err)
	assert.True(t, v.Available)
	assert.Empty(t, v.Conflicts)
	assert.Empty(t, v.Suggestions)
}

func TestCheck_NormalizationEquivalentsConflict(t *testing.T) {
	store := newStore(t)
	seed(t, store, registry.CategoryCorporate, "P98000000111", "Smith & Jones", registry.StatusActive, nil)

	ch := NewChecker(store, Options{})
	v, err := ch.Check(context.Background(), "The Smith and Jones Co", "CORP")
	require.NoError(t, err)
	assert.False(t, v.Available)
	require.Len(t, v.Conflicts, 1)
	assert.Equal(t, "Smith & Jones", v.Conflicts[0].LegalName)
}

func TestCheck_DistinguishableSubstringMatchIsNotConflict(t *testing.T) {
	store := newStore(t)
	// Substring search finds it; the exact filter rejects it.
	seed(t, store, registry.CategoryCorporate, "L19000000002", "Sunrise Consulting Partners LLC", registry.StatusActive, date("2019-01-01"))

	ch := NewChecker(store, Options{})
	v, err := ch.Check(context.Background(), "Sunrise Consulting LLC", "LLC")
	require.NoError(t, err)
	assert.True(t, v.Available)
	assert.Empty(t, v.Conflicts)
}

func TestCheck_ConflictsAcrossCategories(t *testing.T) {
	store := newStore(t)
	seed(t, store, registry.CategoryFictitious, "G12000000003", "Sunrise Consulting", registry.StatusActive, date("2012-06-01"))
	seed(t, store, registry.CategoryPartnership, "GP0000000004", "Sunrise Consulting GP", registry.StatusActive, date("2023-06-01"))

	ch := NewChecker(store, Options{})
	v, err := ch.Check(context.Background(), "Sunrise Consulting, LLC", "LLC")
	require.NoError(t, err)
	assert.False(t, v.Available)
	require.Len(t, v.Conflicts, 2)

	// Most recent filing first.
	assert.Equal(t, "GP0000000004", v.Conflicts[0].DocumentNumber)
	assert.Equal(t, registry.CategoryPartnership, v.Conflicts[0].Category)
	assert.Equal(t, "G12000000003", v.Conflicts[1].DocumentNumber)
}

func TestCheck_MissingDatesSortLast(t *testing.T) {
	store := newStore(t)
	seed(t, store, registry.CategoryCorporate, "L1", "Palm Grove LLC", registry.StatusActive, nil)
	seed(t, store, registry.CategoryFictitious, "G1", "Palm Grove", registry.StatusActive, date("2015-05-05"))

	ch := NewChecker(store, Options{})
	v, err := ch.Check(context.Background(), "Palm Grove", "LLC")
	require.NoError(t, err)
	require.Len(t, v.Conflicts, 2)
	assert.Equal(t, "G1", v.Conflicts[0].DocumentNumber)
	assert.Equal(t, "L1", v.Conflicts[1].DocumentNumber)
}

func TestCheck_EmptyNormalizedNeverConflicts(t *testing.T) {
	store := newStore(t)
	seed(t, store, registry.CategoryCorporate, "L1", "Sunrise Consulting LLC", registry.StatusActive, nil)

	ch := NewChecker(store, Options{})
	v, err := ch.Check(context.Background(), "The", "LLC")
	require.NoError(t, err)
	assert.Equal(t, "", v.NormalizedName)
	assert.True(t, v.Available)
}

type brokenStore struct {
	registry.Store
}

func (b *brokenStore) SearchNormalized(ctx context.Context, cat registry.Category, substr string, limit int) ([]registry.EntityRecord, error) {
	return nil, eris.New("connection refused")
}

func TestCheck_QueryFailureIsAnError(t *testing.T) {
	ch := NewChecker(&brokenStore{Store: newStore(t)}, Options{})
	v, err := ch.Check(context.Background(), "Sunrise Consulting LLC", "LLC")
	assert.Error(t, err)
	assert.Nil(t, v)
}

func TestCheck_PerCategoryCap(t *testing.T) {
	store := newStore(t)
	for i := 0; i < 6; i++ {
		seed(t, store, registry.CategoryCorporate,
			string(rune('A'+i))+"100", "Palm Grove LLC", registry.StatusActive, date("2020-01-02"))
	}

	ch := NewChecker(store, Options{PerCategoryCap: 3, MergedCap: 50})
	v, err := ch.Check(context.Background(), "Palm Grove LLC", "LLC")
	require.NoError(t, err)
	assert.False(t, v.Available)
	assert.Len(t, v.Conflicts, 3)
}
