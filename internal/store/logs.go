package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/court-inventory/internal/model"
)

// AppendLog adds an audit line to a run.
func (s *Store) AppendLog(ctx context.Context, runID string, level model.LogLevel, msg string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_logs (run_id, timestamp, level, message) VALUES ($1, now(), $2, $3)`,
		runID, string(level), msg,
	)
	return eris.Wrapf(err, "store: append log to run %s", runID)
}

// ListLogs returns the last limit lines of a run in chronological order.
func (s *Store) ListLogs(ctx context.Context, runID string, limit int) ([]model.RunLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, run_id, timestamp, level, message FROM (
			SELECT id, run_id, timestamp, level, message FROM run_logs
			WHERE run_id = $1 ORDER BY id DESC LIMIT $2
		) recent ORDER BY id`, runID, limit)
	if err != nil {
		return nil, eris.Wrapf(err, "store: list logs of run %s", runID)
	}
	defer rows.Close()

	var out []model.RunLogEntry
	for rows.Next() {
		var e model.RunLogEntry
		var level string
		if err := rows.Scan(&e.ID, &e.RunID, &e.Timestamp, &level, &e.Message); err != nil {
			return nil, eris.Wrap(err, "store: scan log entry")
		}
		e.Level = model.LogLevel(level)
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "store: iterate log entries")
}
