package registry

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-cli/internal/db"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const entityColumns = `document_number, legal_name, normalized_name, status, filing_type, entity_type,
	principal_address, mailing_address, registered_agent, filing_date, last_updated`

var entityColumnList = []string{
	"document_number", "legal_name", "normalized_name", "status", "filing_type", "entity_type",
	"principal_address", "mailing_address", "registered_agent", "filing_date", "last_updated",
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, maxConns, minConns int32) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	if maxConns <= 0 {
		maxConns = 10
	}
	if minConns <= 0 {
		minConns = 2
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}

	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Migrate applies all pending SQL migrations in lexicographic order under an
// advisory lock so overlapping deploys cannot race.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	log := zap.L().With(zap.String("component", "registry.migrate"))

	if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_lock(7301986)"); err != nil {
		return eris.Wrap(err, "registry: acquire migration advisory lock")
	}
	defer func() {
		if _, err := s.pool.Exec(ctx, "SELECT pg_advisory_unlock(7301986)"); err != nil {
			log.Warn("registry: failed to release migration advisory lock", zap.Error(err))
		}
	}()

	if err := s.ensureMigrationTable(ctx); err != nil {
		return err
	}

	entries, err := fs.ReadDir(migrationFS, "migrations")
	if err != nil {
		return eris.Wrap(err, "registry: read migration dir")
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	applied, err := s.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		name := entry.Name()
		if applied[name] {
			continue
		}

		data, err := migrationFS.ReadFile("migrations/" + name)
		if err != nil {
			return eris.Wrapf(err, "registry: read migration %s", name)
		}

		log.Info("applying migration", zap.String("file", name))

		if _, err := s.pool.Exec(ctx, string(data)); err != nil {
			return eris.Wrapf(err, "registry: apply migration %s", name)
		}
		if _, err := s.pool.Exec(ctx,
			"INSERT INTO registry.schema_migrations (filename, applied_at) VALUES ($1, now())",
			name,
		); err != nil {
			return eris.Wrapf(err, "registry: record migration %s", name)
		}
	}

	return nil
}

func (s *PostgresStore) ensureMigrationTable(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS registry"); err != nil {
		return eris.Wrap(err, "registry: create schema")
	}
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS registry.schema_migrations (
			filename   TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return eris.Wrap(err, "registry: create schema_migrations")
}

func (s *PostgresStore) appliedMigrations(ctx context.Context) (map[string]bool, error) {
	rows, err := s.pool.Query(ctx, "SELECT filename FROM registry.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "registry: query applied migrations")
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, eris.Wrap(err, "registry: scan migration row")
		}
		applied[name] = true
	}
	return applied, rows.Err()
}

// UpsertEntity inserts or overwrites one record. The xmax system column
// distinguishes a fresh insert from a conflict update.
func (s *PostgresStore) UpsertEntity(ctx context.Context, rec *EntityRecord) (bool, error) {
	sql := fmt.Sprintf(`
		INSERT INTO registry.%s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, now())
		ON CONFLICT (document_number) DO UPDATE SET
			legal_name = EXCLUDED.legal_name,
			normalized_name = EXCLUDED.normalized_name,
			status = EXCLUDED.status,
			filing_type = EXCLUDED.filing_type,
			entity_type = EXCLUDED.entity_type,
			principal_address = EXCLUDED.principal_address,
			mailing_address = EXCLUDED.mailing_address,
			registered_agent = EXCLUDED.registered_agent,
			filing_date = EXCLUDED.filing_date,
			last_updated = now()
		RETURNING (xmax = 0)`,
		rec.Category.Table(), entityColumns)

	var inserted bool
	err := s.pool.QueryRow(ctx, sql,
		rec.DocumentNumber, rec.LegalName, rec.NormalizedName, string(rec.Status),
		rec.FilingType, rec.EntityType, rec.PrincipalAddress, rec.MailingAddress,
		rec.RegisteredAgent, rec.FilingDate,
	).Scan(&inserted)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: upsert entity %s", rec.DocumentNumber)
	}
	return inserted, nil
}

// UpsertBatch upserts a batch via COPY into a temp table. Existing document
// numbers are counted first so added/updated accounting stays exact.
func (s *PostgresStore) UpsertBatch(ctx context.Context, cat Category, recs []EntityRecord) (int64, int64, error) {
	if len(recs) == 0 {
		return 0, 0, nil
	}

	docNums := make([]string, len(recs))
	for i, r := range recs {
		docNums[i] = r.DocumentNumber
	}

	existing, err := s.existingDocNums(ctx, cat, docNums)
	if err != nil {
		return 0, 0, err
	}

	now := time.Now().UTC()
	rows := make([][]any, len(recs))
	for i, r := range recs {
		rows[i] = []any{
			r.DocumentNumber, r.LegalName, r.NormalizedName, string(r.Status),
			r.FilingType, r.EntityType, r.PrincipalAddress, r.MailingAddress,
			r.RegisteredAgent, r.FilingDate, now,
		}
	}

	affected, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "registry." + cat.Table(),
		Columns:      entityColumnList,
		ConflictKeys: []string{"document_number"},
	}, rows)
	if err != nil {
		return 0, 0, err
	}

	updated := int64(len(existing))
	added := affected - updated
	if added < 0 {
		added = 0
	}
	return added, updated, nil
}

func (s *PostgresStore) existingDocNums(ctx context.Context, cat Category, docNums []string) (map[string]bool, error) {
	sql := fmt.Sprintf(
		"SELECT document_number FROM registry.%s WHERE document_number = ANY($1)",
		cat.Table())

	rows, err := s.pool.Query(ctx, sql, docNums)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query existing keys in %s", cat.Table())
	}
	defer rows.Close()

	existing := make(map[string]bool)
	for rows.Next() {
		var dn string
		if err := rows.Scan(&dn); err != nil {
			return nil, eris.Wrap(err, "postgres: scan existing key")
		}
		existing[dn] = true
	}
	return existing, rows.Err()
}

// SearchNormalized performs a capped substring search over normalized names.
// Normalized keys never contain LIKE metacharacters, so substr is embedded
// without escaping.
func (s *PostgresStore) SearchNormalized(ctx context.Context, cat Category, substr string, limit int) ([]EntityRecord, error) {
	sql := fmt.Sprintf(`
		SELECT %s
		FROM registry.%s
		WHERE normalized_name LIKE '%%' || $1 || '%%'
		ORDER BY filing_date DESC NULLS LAST
		LIMIT $2`,
		entityColumns, cat.Table())

	rows, err := s.pool.Query(ctx, sql, substr, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: search %s", cat.Table())
	}
	defer rows.Close()

	var recs []EntityRecord
	for rows.Next() {
		rec, err := scanEntity(rows, cat)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

func scanEntity(row pgx.Row, cat Category) (*EntityRecord, error) {
	var rec EntityRecord
	var status string
	if err := row.Scan(
		&rec.DocumentNumber, &rec.LegalName, &rec.NormalizedName, &status,
		&rec.FilingType, &rec.EntityType, &rec.PrincipalAddress, &rec.MailingAddress,
		&rec.RegisteredAgent, &rec.FilingDate, &rec.LastUpdated,
	); err != nil {
		return nil, eris.Wrap(err, "postgres: scan entity row")
	}
	rec.Status = Status(status)
	rec.Category = cat
	return &rec, nil
}

// CreateSyncRun persists a new run in its initial in_progress state.
func (s *PostgresStore) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO registry.sync_runs (id, sync_type, data_category, source_file, status, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, run.SyncType, string(run.Category), run.SourceFile, string(run.Status), run.StartedAt,
	)
	return eris.Wrapf(err, "postgres: create sync run %s", run.ID)
}

// UpdateSyncRunCounters persists a counter snapshot for an in-flight run.
func (s *PostgresStore) UpdateSyncRunCounters(ctx context.Context, id uuid.UUID, c RunCounters) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE registry.sync_runs
		SET records_processed = $1, records_added = $2, records_updated = $3, error_count = $4
		WHERE id = $5`,
		c.Processed, c.Added, c.Updated, c.Errors, id,
	)
	return eris.Wrapf(err, "postgres: update sync run %s", id)
}

// FinishSyncRun transitions a run to a terminal status.
func (s *PostgresStore) FinishSyncRun(ctx context.Context, id uuid.UUID, status RunStatus, errMsg string, c RunCounters) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE registry.sync_runs
		SET status = $1, error_message = NULLIF($2, ''), completed_at = now(),
		    records_processed = $3, records_added = $4, records_updated = $5, error_count = $6
		WHERE id = $7 AND completed_at IS NULL`,
		string(status), errMsg, c.Processed, c.Added, c.Updated, c.Errors, id,
	)
	return eris.Wrapf(err, "postgres: finish sync run %s", id)
}

// ListSyncRuns returns the most recent runs, newest first.
func (s *PostgresStore) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, sync_type, data_category, source_file, status,
		       records_processed, records_added, records_updated, error_count,
		       error_message, started_at, completed_at
		FROM registry.sync_runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list sync runs")
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		var category, status string
		var errMsg *string
		if err := rows.Scan(
			&r.ID, &r.SyncType, &category, &r.SourceFile, &status,
			&r.RecordsProcessed, &r.RecordsAdded, &r.RecordsUpdated, &r.ErrorCount,
			&errMsg, &r.StartedAt, &r.CompletedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan sync run")
		}
		r.Category = Category(category)
		r.Status = RunStatus(status)
		if errMsg != nil {
			r.ErrorMessage = *errMsg
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

var _ Store = (*PostgresStore)(nil)
