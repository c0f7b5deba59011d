package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite, for single-node
// deployments and local development without a Postgres server.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	sdb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := sdb.Exec(pragma); err != nil {
			sdb.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: sdb}, nil
}

const sqliteEntityTable = `
CREATE TABLE IF NOT EXISTS %s (
	document_number   TEXT PRIMARY KEY,
	legal_name        TEXT NOT NULL,
	normalized_name   TEXT NOT NULL,
	status            TEXT NOT NULL,
	filing_type       TEXT NOT NULL DEFAULT '',
	entity_type       TEXT NOT NULL DEFAULT '',
	principal_address TEXT NOT NULL DEFAULT '',
	mailing_address   TEXT NOT NULL DEFAULT '',
	registered_agent  TEXT NOT NULL DEFAULT '',
	filing_date       TEXT,
	last_updated      TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_%s_norm ON %s(normalized_name);
`

const sqliteSyncRuns = `
CREATE TABLE IF NOT EXISTS sync_runs (
	id                TEXT PRIMARY KEY,
	sync_type         TEXT NOT NULL DEFAULT 'full',
	data_category     TEXT NOT NULL,
	source_file       TEXT NOT NULL DEFAULT '',
	status            TEXT NOT NULL DEFAULT 'in_progress',
	records_processed INTEGER NOT NULL DEFAULT 0,
	records_added     INTEGER NOT NULL DEFAULT 0,
	records_updated   INTEGER NOT NULL DEFAULT 0,
	error_count       INTEGER NOT NULL DEFAULT 0,
	error_message     TEXT,
	started_at        TEXT NOT NULL,
	completed_at      TEXT
);
CREATE INDEX IF NOT EXISTS idx_sync_runs_started_at ON sync_runs(started_at);
`

// Migrate creates the corpus and accounting tables if missing.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	for _, cat := range Categories {
		t := cat.Table()
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(sqliteEntityTable, t, t, t)); err != nil {
			return eris.Wrapf(err, "sqlite: create %s", t)
		}
	}
	if _, err := s.db.ExecContext(ctx, sqliteSyncRuns); err != nil {
		return eris.Wrap(err, "sqlite: create sync_runs")
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertEntity inserts or overwrites one record keyed by document number.
func (s *SQLiteStore) UpsertEntity(ctx context.Context, rec *EntityRecord) (bool, error) {
	return s.upsertOne(ctx, s.db, rec)
}

// execer covers both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *SQLiteStore) upsertOne(ctx context.Context, ex execer, rec *EntityRecord) (bool, error) {
	var exists bool
	err := ex.QueryRowContext(ctx,
		fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s WHERE document_number = ?)", rec.Category.Table()),
		rec.DocumentNumber,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: check entity %s", rec.DocumentNumber)
	}

	_, err = ex.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (document_number, legal_name, normalized_name, status, filing_type, entity_type,
			principal_address, mailing_address, registered_agent, filing_date, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (document_number) DO UPDATE SET
			legal_name = excluded.legal_name,
			normalized_name = excluded.normalized_name,
			status = excluded.status,
			filing_type = excluded.filing_type,
			entity_type = excluded.entity_type,
			principal_address = excluded.principal_address,
			mailing_address = excluded.mailing_address,
			registered_agent = excluded.registered_agent,
			filing_date = excluded.filing_date,
			last_updated = excluded.last_updated`,
		rec.Category.Table()),
		rec.DocumentNumber, rec.LegalName, rec.NormalizedName, string(rec.Status),
		rec.FilingType, rec.EntityType, rec.PrincipalAddress, rec.MailingAddress,
		rec.RegisteredAgent, sqliteDate(rec.FilingDate), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: upsert entity %s", rec.DocumentNumber)
	}
	return !exists, nil
}

// UpsertBatch upserts a batch of records inside a single transaction.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, cat Category, recs []EntityRecord) (int64, int64, error) {
	if len(recs) == 0 {
		return 0, 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: begin batch tx")
	}
	defer tx.Rollback()

	var added, updated int64
	for i := range recs {
		rec := recs[i]
		rec.Category = cat
		inserted, err := s.upsertOne(ctx, tx, &rec)
		if err != nil {
			return 0, 0, err
		}
		if inserted {
			added++
		} else {
			updated++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, eris.Wrap(err, "sqlite: commit batch tx")
	}
	return added, updated, nil
}

// SearchNormalized performs a capped substring search over normalized names.
func (s *SQLiteStore) SearchNormalized(ctx context.Context, cat Category, substr string, limit int) ([]EntityRecord, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT document_number, legal_name, normalized_name, status, filing_type, entity_type,
		       principal_address, mailing_address, registered_agent, filing_date, last_updated
		FROM %s
		WHERE normalized_name LIKE '%%' || ? || '%%'
		ORDER BY filing_date IS NULL, filing_date DESC
		LIMIT ?`, cat.Table()),
		substr, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: search %s", cat.Table())
	}
	defer rows.Close()

	var recs []EntityRecord
	for rows.Next() {
		var rec EntityRecord
		var status string
		var filingDate, lastUpdated sql.NullString
		if err := rows.Scan(
			&rec.DocumentNumber, &rec.LegalName, &rec.NormalizedName, &status,
			&rec.FilingType, &rec.EntityType, &rec.PrincipalAddress, &rec.MailingAddress,
			&rec.RegisteredAgent, &filingDate, &lastUpdated,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan entity row")
		}
		rec.Status = Status(status)
		rec.Category = cat
		if filingDate.Valid {
			if d, err := time.Parse("2006-01-02", filingDate.String); err == nil {
				rec.FilingDate = &d
			}
		}
		if lastUpdated.Valid {
			if ts, err := time.Parse(time.RFC3339, lastUpdated.String); err == nil {
				rec.LastUpdated = ts
			}
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// CreateSyncRun persists a new run in its initial in_progress state.
func (s *SQLiteStore) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (id, sync_type, data_category, source_file, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID.String(), run.SyncType, string(run.Category), run.SourceFile,
		string(run.Status), run.StartedAt.UTC().Format(time.RFC3339),
	)
	return eris.Wrapf(err, "sqlite: create sync run %s", run.ID)
}

// UpdateSyncRunCounters persists a counter snapshot for an in-flight run.
func (s *SQLiteStore) UpdateSyncRunCounters(ctx context.Context, id uuid.UUID, c RunCounters) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET records_processed = ?, records_added = ?, records_updated = ?, error_count = ?
		WHERE id = ?`,
		c.Processed, c.Added, c.Updated, c.Errors, id.String(),
	)
	return eris.Wrapf(err, "sqlite: update sync run %s", id)
}

// FinishSyncRun transitions a run to a terminal status.
func (s *SQLiteStore) FinishSyncRun(ctx context.Context, id uuid.UUID, status RunStatus, errMsg string, c RunCounters) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET status = ?, error_message = NULLIF(?, ''), completed_at = ?,
		    records_processed = ?, records_added = ?, records_updated = ?, error_count = ?
		WHERE id = ? AND completed_at IS NULL`,
		string(status), errMsg, time.Now().UTC().Format(time.RFC3339),
		c.Processed, c.Added, c.Updated, c.Errors, id.String(),
	)
	return eris.Wrapf(err, "sqlite: finish sync run %s", id)
}

// ListSyncRuns returns the most recent runs, newest first.
func (s *SQLiteStore) ListSyncRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, sync_type, data_category, source_file, status,
		       records_processed, records_added, records_updated, error_count,
		       error_message, started_at, completed_at
		FROM sync_runs
		ORDER BY started_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list sync runs")
	}
	defer rows.Close()

	var runs []SyncRun
	for rows.Next() {
		var r SyncRun
		var id, category, status, startedAt string
		var errMsg, completedAt sql.NullString
		if err := rows.Scan(
			&id, &r.SyncType, &category, &r.SourceFile, &status,
			&r.RecordsProcessed, &r.RecordsAdded, &r.RecordsUpdated, &r.ErrorCount,
			&errMsg, &startedAt, &completedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan sync run")
		}
		r.ID, _ = uuid.Parse(id)
		r.Category = Category(category)
		r.Status = RunStatus(status)
		if errMsg.Valid {
			r.ErrorMessage = errMsg.String
		}
		if ts, err := time.Parse(time.RFC3339, startedAt); err == nil {
			r.StartedAt = ts
		}
		if completedAt.Valid {
			if ts, err := time.Parse(time.RFC3339, completedAt.String); err == nil {
				r.CompletedAt = &ts
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func sqliteDate(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.Format("2006-01-02")
}

var _ Store = (*SQLiteStore)(nil)
