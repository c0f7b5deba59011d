// Package ingest streams fixed-width feed files into the entity corpus,
// one accounted sync run per source file.
package ingest

import (
	"bufio"
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/registry-cli/internal/feed"
	"github.com/sells-group/registry-cli/internal/normalize"
	"github.com/sells-group/registry-cli/internal/registry"
	"github.com/sells-group/registry-cli/internal/resilience"
)

// maxLineBytes bounds the scanner's buffer. Feed records are fixed-width and
// well under this; a longer line means a corrupt file, not a bigger record.
const maxLineBytes = 1 << 20

// Options configures an Ingestor.
type Options struct {
	SyncType      string // "full" or "incremental"; accounting metadata only
	BatchSize     int    // records per bulk upsert; default 500
	ProgressEvery int    // log/persist counters every N lines; default 1000
	Retry         resilience.RetryConfig
}

// Ingestor runs ingestion over feed files into a Store.
type Ingestor struct {
	store   registry.Store
	layouts []feed.Layout
	opts    Options
}

// New creates an Ingestor over the given store and feed layouts.
func New(store registry.Store, layouts []feed.Layout, opts Options) *Ingestor {
	if opts.SyncType == "" {
		opts.SyncType = "full"
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 500
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 1000
	}
	if opts.Retry.OnRetry == nil {
		opts.Retry.OnRetry = resilience.RetryLogger("store", "upsert")
	}
	return &Ingestor{store: store, layouts: layouts, opts: opts}
}

// ProcessPath ingests a single feed file, or every matching feed file in a
// directory. Directory mode processes files sequentially in lexicographic
// order, one complete sync run per file, so a failing file does not prevent
// later files from being attempted.
func (ing *Ingestor) ProcessPath(ctx context.Context, path string) ([]registry.SyncRun, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: stat %s", path)
	}

	log := zap.L().With(zap.String("component", "ingest"))

	type job struct {
		path   string
		layout *feed.Layout
	}
	var jobs []job

	if info.IsDir() {
		for i := range ing.layouts {
			l := &ing.layouts[i]
			matches, err := filepath.Glob(filepath.Join(path, l.FilePattern))
			if err != nil {
				return nil, eris.Wrapf(err, "ingest: bad file pattern %q", l.FilePattern)
			}
			for _, m := range matches {
				jobs = append(jobs, job{path: m, layout: l})
			}
		}
		sort.Slice(jobs, func(i, j int) bool { return jobs[i].path < jobs[j].path })
		if len(jobs) == 0 {
			return nil, eris.Errorf("ingest: no feed files found in %s", path)
		}
	} else {
		l, err := ing.layoutForFile(path)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job{path: path, layout: l})
	}

	var runs []registry.SyncRun
	for _, j := range jobs {
		run, err := ing.ProcessFile(ctx, j.path, j.layout)
		if run != nil {
			runs = append(runs, *run)
		}
		if err != nil {
			if ctx.Err() != nil {
				return runs, err
			}
			log.Error("feed file failed", zap.String("file", j.path), zap.Error(err))
		}
	}
	return runs, nil
}

func (ing *Ingestor) layoutForFile(path string) (*feed.Layout, error) {
	base := filepath.Base(path)
	for i := range ing.layouts {
		ok, err := filepath.Match(ing.layouts[i].FilePattern, base)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: bad file pattern %q", ing.layouts[i].FilePattern)
		}
		if ok {
			return &ing.layouts[i], nil
		}
	}
	return nil, eris.Errorf("ingest: no layout matches file %s", base)
}

// ProcessFile streams one feed file line by line and upserts its records.
// Per-line parse failures and per-record storage failures are counted and
// absorbed; only a broken stream or broken run accounting is returned as an
// error. The returned run is always in a terminal state.
func (ing *Ingestor) ProcessFile(ctx context.Context, path string, layout *feed.Layout) (*registry.SyncRun, error) {
	log := zap.L().With(
		zap.String("component", "ingest"),
		zap.String("file", filepath.Base(path)),
		zap.String("category", string(layout.Category)),
	)

	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: open %s", path)
	}
	defer f.Close()

	run := &registry.SyncRun{
		ID:         uuid.New(),
		SyncType:   ing.opts.SyncType,
		Category:   layout.Category,
		SourceFile: filepath.Base(path),
		Status:     registry.RunInProgress,
		StartedAt:  time.Now().UTC(),
	}
	if err := ing.store.CreateSyncRun(ctx, run); err != nil {
		return nil, eris.Wrap(err, "ingest: create sync run")
	}

	log.Info("ingestion started", zap.String("run_id", run.ID.String()))

	var c registry.RunCounters
	batch := make([]registry.EntityRecord, 0, ing.opts.BatchSize)
	inBatch := make(map[string]bool, ing.opts.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		added, updated, errs := ing.flushBatch(ctx, layout.Category, batch)
		c.Added += added
		c.Updated += updated
		c.Errors += errs
		batch = batch[:0]
		clear(inBatch)
	}

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ing.finish(ctx, run, registry.RunCancelled, ctx.Err().Error(), c, log), ctx.Err()
		}

		// A blank line is the zero-length case of a too-short record; it is
		// counted like any other line so per-file accounting covers the
		// whole file.
		line := scanner.Text()
		c.Processed++

		rec, err := feed.ParseLine(line, layout)
		if err != nil {
			c.Errors++
			log.Debug("line rejected", zap.Int64("line", c.Processed), zap.Error(err))
		} else {
			// A repeated document number flushes first so upserts for the
			// same key apply in file order.
			if inBatch[rec.DocumentNumber] {
				flush()
			}
			batch = append(batch, registry.EntityRecord{
				DocumentNumber:   rec.DocumentNumber,
				LegalName:        rec.LegalName,
				NormalizedName:   normalize.Normalize(rec.LegalName),
				Status:           rec.Status,
				Category:         layout.Category,
				FilingType:       rec.FilingType,
				EntityType:       registry.EntityTypeLabel(rec.FilingType),
				PrincipalAddress: rec.PrincipalAddress,
				MailingAddress:   rec.MailingAddress,
				RegisteredAgent:  rec.RegisteredAgent,
				FilingDate:       rec.FilingDate,
			})
			inBatch[rec.DocumentNumber] = true
			if len(batch) >= ing.opts.BatchSize {
				flush()
			}
		}

		if c.Processed%int64(ing.opts.ProgressEvery) == 0 {
			log.Info("ingestion progress",
				zap.Int64("processed", c.Processed),
				zap.Int64("added", c.Added),
				zap.Int64("updated", c.Updated),
				zap.Int64("errors", c.Errors),
			)
			if err := ing.store.UpdateSyncRunCounters(ctx, run.ID, c); err != nil {
				log.Warn("failed to persist progress counters", zap.Error(err))
			}
		}
	}

	if err := scanner.Err(); err != nil {
		flush()
		wrapped := eris.Wrapf(err, "ingest: read %s", path)
		return ing.finish(ctx, run, registry.RunFailed, wrapped.Error(), c, log), wrapped
	}

	flush()
	return ing.finish(ctx, run, registry.RunCompleted, "", c, log), nil
}

// flushBatch bulk-upserts one batch with bounded retry. If the batch as a
// whole keeps failing, it falls back to per-record upserts so a single bad
// record cannot sink its neighbors.
func (ing *Ingestor) flushBatch(ctx context.Context, cat registry.Category, batch []registry.EntityRecord) (added, updated, errs int64) {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("category", string(cat)))

	err := resilience.Do(ctx, ing.opts.Retry, func(ctx context.Context) error {
		var err error
		added, updated, err = ing.store.UpsertBatch(ctx, cat, batch)
		return err
	})
	if err == nil {
		return added, updated, 0
	}

	log.Warn("batch upsert failed, retrying per record",
		zap.Int("batch_size", len(batch)), zap.Error(err))

	added, updated = 0, 0
	for i := range batch {
		inserted, err := resilience.DoVal(ctx, ing.opts.Retry, func(ctx context.Context) (bool, error) {
			return ing.store.UpsertEntity(ctx, &batch[i])
		})
		if err != nil {
			errs++
			log.Warn("record upsert failed",
				zap.String("document_number", batch[i].DocumentNumber), zap.Error(err))
			continue
		}
		if inserted {
			added++
		} else {
			updated++
		}
	}
	return added, updated, errs
}

// finish transitions the run to a terminal status. Accounting failures are
// logged but do not mask the run outcome; the in-memory run always reflects
// the terminal state.
func (ing *Ingestor) finish(ctx context.Context, run *registry.SyncRun, status registry.RunStatus, errMsg string, c registry.RunCounters, log *zap.Logger) *registry.SyncRun {
	// Use a detached context so a cancelled run still gets persisted.
	finishCtx := context.WithoutCancel(ctx)
	if err := ing.store.FinishSyncRun(finishCtx, run.ID, status, errMsg, c); err != nil {
		log.Error("failed to finalize sync run", zap.Error(err))
	}

	now := time.Now().UTC()
	run.Status = status
	run.ErrorMessage = errMsg
	run.RecordsProcessed = c.Processed
	run.RecordsAdded = c.Added
	run.RecordsUpdated = c.Updated
	run.ErrorCount = c.Errors
	run.CompletedAt = &now

	log.Info("ingestion finished",
		zap.String("run_id", run.ID.String()),
		zap.String("status", string(status)),
		zap.Int64("processed", c.Processed),
		zap.Int64("added", c.Added),
		zap.Int64("updated", c.Updated),
		zap.Int64("errors", c.Errors),
	)
	return run
}
