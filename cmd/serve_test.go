package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/registry-cli/internal/availability"
	"github.com/sells-group/registry-cli/internal/normalize"
	"github.com/sells-group/registry-cli/internal/registry"
)

func testRouter(t *testing.T, perSecond float64, burst int) http.Handler {
	t.Helper()
	st, err := registry.NewSQLite(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	require.NoError(t, st.Migrate(context.Background()))

	_, err = st.UpsertEntity(context.Background(), &registry.EntityRecord{
		DocumentNumber: "L20000000001",
		LegalName:      "Sunrise Consulting LLC",
		NormalizedName: normalize.Normalize("Sunrise Consulting LLC"),
		Status:         registry.StatusActive,
		Category:       registry.CategoryCorporate,
	})
	require.NoError(t, err)

	checker := availability.NewChecker(st, availability.Options{Jurisdiction: "FL"})
	return newRouter(checker, perSecond, burst)
}

func TestServeHealth(t *testing.T) {
	r := testRouter(t, 50, 100)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeAvailability(t *testing.T) {
	r := testRouter(t, 50, 100)

	body := `{"name":"Sunrise Consulting LLC","type":"LLC"}`
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/availability", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)

	var verdict availability.Verdict
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &verdict))
	assert.False(t, verdict.Available)
	require.Len(t, verdict.Conflicts, 1)
	assert.Equal(t, "L20000000001", verdict.Conflicts[0].DocumentNumber)
	assert.NotEmpty(t, verdict.Suggestions)
}

func TestServeAvailability_BadRequest(t *testing.T) {
	r := testRouter(t, 50, 100)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/availability", strings.NewReader(`{`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/availability", strings.NewReader(`{"type":"LLC"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeRateLimit(t *testing.T) {
	// Burst of 2; the third immediate request trips the limiter.
	r := testRouter(t, 1, 2)

	var last int
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
		last = rec.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
