package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/db"
	"github.com/sells-group/court-inventory/internal/model"
)

// StaleRunMessage is written to runs reset by ResetStaleRuns.
const StaleRunMessage = "stale run reset"

const runCols = `id, started_at, completed_at, total_sources, sources_processed, new_courts_found,
	courts_updated, status, message, current_source, next_source, stage, court_type`

// Progress is a snapshot written by AdvanceRun.
type Progress struct {
	Processed int
	Total     int
	NewCourts int
	Updated   int
	Message   string
	Current   string
	Next      string
	Stage     string
}

// Final is the terminal state written by CompleteRun.
type Final struct {
	Status    model.RunStatus
	Message   string
	Processed int
	NewCourts int
	Updated   int
}

// RunFilter narrows ListRuns.
type RunFilter struct {
	Status model.RunStatus
	Limit  int
}

// RunLock is the process-wide run lock. It holds a transaction-scoped
// advisory lock on a dedicated connection until Release.
type RunLock struct {
	tx   pgx.Tx
	once sync.Once
}

// Release ends the lock transaction. It is safe to call more than once.
func (l *RunLock) Release(ctx context.Context) {
	if l == nil {
		return
	}
	l.once.Do(func() {
		if err := l.tx.Rollback(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
			zap.L().Warn("store: release run lock", zap.Error(err))
		}
	})
}

// AcquireRunLock takes the run lock without waiting. ErrRunActive means
// another process holds it.
func (s *Store) AcquireRunLock(ctx context.Context) (*RunLock, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "store: begin run lock")
	}

	var ok bool
	if err := tx.QueryRow(ctx, "SELECT pg_try_advisory_xact_lock($1)", runLockID).Scan(&ok); err != nil {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, eris.Wrap(err, "store: try run lock")
	}
	if !ok {
		_ = tx.Rollback(context.WithoutCancel(ctx))
		return nil, ErrRunActive
	}
	return &RunLock{tx: tx}, nil
}

// BeginRun inserts a new running run and returns its id. It fails with
// ErrRunActive when any run is still running.
func (s *Store) BeginRun(ctx context.Context, total int, courtType string) (string, error) {
	id := uuid.New().String()

	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", beginLockID); err != nil {
			return eris.Wrap(err, "store: lock run table")
		}

		var active int
		if err := tx.QueryRow(ctx, "SELECT count(*) FROM inventory_updates WHERE status = 'running'").Scan(&active); err != nil {
			return eris.Wrap(err, "store: count active runs")
		}
		if active > 0 {
			return ErrRunActive
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO inventory_updates (id, started_at, total_sources, status, message, court_type)
			VALUES ($1, now(), $2, $3, $4, $5)`,
			id, total, string(model.RunStatusRunning), FormatProgress(Progress{Total: total, Message: "Run started"}), courtType,
		)
		if isUniqueViolation(err) {
			return ErrRunActive
		}
		return eris.Wrap(err, "store: insert run")
	})
	if err != nil {
		if errors.Is(err, ErrRunActive) {
			return "", ErrRunActive
		}
		return "", err
	}

	s.log.Info("run started", zap.String("run_id", id), zap.Int("total_sources", total), zap.String("court_type", courtType))
	return id, nil
}

// FormatProgress renders the run message shown to operators.
func FormatProgress(p Progress) string {
	current := p.Current
	if current == "" {
		current = "Starting..."
	}
	return fmt.Sprintf("%s\nProgress: %.1f%% (%d/%d sources)\nCurrent: %s",
		p.Message, model.Percent(p.Processed, p.Total), p.Processed, p.Total, current)
}

// AdvanceRun records progress. Updates are last-write-wins; a run that is no
// longer running is left untouched.
func (s *Store) AdvanceRun(ctx context.Context, runID string, p Progress) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_updates
		SET sources_processed = $2, total_sources = $3, new_courts_found = $4, courts_updated = $5,
		    message = $6, current_source = $7, next_source = $8, stage = $9
		WHERE id = $1 AND status = 'running'`,
		runID, p.Processed, p.Total, p.NewCourts, p.Updated, FormatProgress(p), p.Current, p.Next, p.Stage,
	)
	if err != nil {
		return eris.Wrapf(err, "store: advance run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("progress for run that is not running", zap.String("run_id", runID))
		return nil
	}

	s.log.Info("run progress",
		zap.String("run_id", runID),
		zap.String("stage", p.Stage),
		zap.Float64("percent", model.Percent(p.Processed, p.Total)),
		zap.Int("processed", p.Processed),
		zap.Int("total", p.Total),
	)
	return nil
}

// CompleteRun moves a running run to a terminal status. Completing a run
// that is not running logs a warning and does nothing.
func (s *Store) CompleteRun(ctx context.Context, runID string, f Final) error {
	if !f.Status.Terminal() {
		return eris.Errorf("store: %q is not a terminal run status", f.Status)
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_updates
		SET status = $2, message = $3, sources_processed = $4, new_courts_found = $5, courts_updated = $6,
		    completed_at = now(), current_source = '', next_source = '', stage = ''
		WHERE id = $1 AND status = 'running'`,
		runID, string(f.Status), f.Message, f.Processed, f.NewCourts, f.Updated,
	)
	if err != nil {
		return eris.Wrapf(err, "store: complete run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("complete called for run that is not running", zap.String("run_id", runID), zap.String("status", string(f.Status)))
		return nil
	}

	s.log.Info("run finished",
		zap.String("run_id", runID),
		zap.String("status", string(f.Status)),
		zap.Int("new_courts", f.NewCourts),
		zap.Int("updated_courts", f.Updated),
	)
	return nil
}

// ResetStaleRuns marks every running run as errored. Call it only while
// holding the run lock, when no live process can own a running row.
func (s *Store) ResetStaleRuns(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE inventory_updates
		SET status = 'error', message = $1, completed_at = now()
		WHERE status = 'running'`, StaleRunMessage)
	if err != nil {
		return 0, eris.Wrap(err, "store: reset stale runs")
	}
	if n := tag.RowsAffected(); n > 0 {
		s.log.Warn("reset stale runs", zap.Int64("count", n))
	}
	return tag.RowsAffected(), nil
}

func scanRun(row pgx.Row) (*model.InventoryRun, error) {
	var r model.InventoryRun
	var status string
	err := row.Scan(&r.ID, &r.StartedAt, &r.CompletedAt, &r.TotalSources, &r.SourcesProcessed, &r.NewCourtsFound,
		&r.CourtsUpdated, &status, &r.Message, &r.CurrentSource, &r.NextSource, &r.Stage, &r.CourtType)
	r.Status = model.RunStatus(status)
	return &r, err
}

// GetRun returns the run with id.
func (s *Store) GetRun(ctx context.Context, runID string) (*model.InventoryRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, "SELECT "+runCols+" FROM inventory_updates WHERE id = $1", runID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "store: get run %s", runID)
	}
	return r, nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (*model.InventoryRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx, "SELECT "+runCols+" FROM inventory_updates ORDER BY started_at DESC LIMIT 1"))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrap(ErrNotFound, "no runs recorded")
	}
	if err != nil {
		return nil, eris.Wrap(err, "store: latest run")
	}
	return r, nil
}

// ListRuns returns runs, newest first.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]model.InventoryRun, error) {
	query := "SELECT " + runCols + " FROM inventory_updates WHERE true"
	args := []any{}
	argIdx := 1
	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, string(f.Status))
		argIdx++
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: list runs")
	}
	defer rows.Close()

	var runs []model.InventoryRun
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "store: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "store: iterate runs")
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
