package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/court-inventory/internal/model"
)

// ModelUsage is the per-model slice of a UsageSummary.
type ModelUsage struct {
	Model   string  `json:"model"`
	Calls   int     `json:"calls"`
	Tokens  int64   `json:"tokens"`
	CostUSD float64 `json:"cost_usd"`
}

// UsageSummary aggregates API usage since a point in time.
type UsageSummary struct {
	Since       time.Time        `json:"since"`
	Calls       int              `json:"calls"`
	Successful  int              `json:"successful"`
	SuccessRate float64          `json:"success_rate"`
	Tokens      int64            `json:"tokens"`
	CostUSD     float64          `json:"cost_usd"`
	LastCall    *time.Time       `json:"last_call,omitempty"`
	ByModel     []ModelUsage     `json:"by_model"`
	Recent      []model.APIUsage `json:"recent"`
}

const recentUsageLimit = 10

// RecordUsage appends a usage row. tokens_used is derived from input and
// output tokens.
func (s *Store) RecordUsage(ctx context.Context, u model.APIUsage) error {
	var runID *string
	if u.RunID != "" {
		runID = &u.RunID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_usage (timestamp, endpoint, model, input_tokens, output_tokens, tokens_used,
		                       cost_usd, success, error_message, run_id)
		VALUES (now(), $1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		u.Endpoint, u.Model, u.InputTokens, u.OutputTokens, u.TokensUsed(), u.CostUSD, u.Success, u.ErrorMessage, runID,
	)
	return eris.Wrap(err, "store: record usage")
}

// UsageSummary returns totals, a per-model breakdown and the most recent
// calls since since.
func (s *Store) UsageSummary(ctx context.Context, since time.Time) (*UsageSummary, error) {
	sum := &UsageSummary{Since: since}

	err := s.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE success), COALESCE(sum(tokens_used), 0),
		       COALESCE(sum(cost_usd), 0), max(timestamp)
		FROM api_usage WHERE timestamp >= $1`, since,
	).Scan(&sum.Calls, &sum.Successful, &sum.Tokens, &sum.CostUSD, &sum.LastCall)
	if err != nil {
		return nil, eris.Wrap(err, "store: usage totals")
	}
	if sum.Calls > 0 {
		sum.SuccessRate = float64(sum.Successful) / float64(sum.Calls)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT model, count(*), COALESCE(sum(tokens_used), 0), COALESCE(sum(cost_usd), 0)
		FROM api_usage WHERE timestamp >= $1
		GROUP BY model ORDER BY 4 DESC, model`, since)
	if err != nil {
		return nil, eris.Wrap(err, "store: usage by model")
	}
	for rows.Next() {
		var m ModelUsage
		if err := rows.Scan(&m.Model, &m.Calls, &m.Tokens, &m.CostUSD); err != nil {
			rows.Close()
			return nil, eris.Wrap(err, "store: scan model usage")
		}
		sum.ByModel = append(sum.ByModel, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "store: iterate model usage")
	}

	rows, err = s.pool.Query(ctx, `
		SELECT id, timestamp, endpoint, model, input_tokens, output_tokens, cost_usd, success,
		       error_message, COALESCE(run_id, '')
		FROM api_usage WHERE timestamp >= $1
		ORDER BY timestamp DESC, id DESC LIMIT $2`, since, recentUsageLimit)
	if err != nil {
		return nil, eris.Wrap(err, "store: recent usage")
	}
	defer rows.Close()
	for rows.Next() {
		var u model.APIUsage
		if err := rows.Scan(&u.ID, &u.Timestamp, &u.Endpoint, &u.Model, &u.InputTokens, &u.OutputTokens,
			&u.CostUSD, &u.Success, &u.ErrorMessage, &u.RunID); err != nil {
			return nil, eris.Wrap(err, "store: scan usage")
		}
		sum.Recent = append(sum.Recent, u)
	}
	return sum, eris.Wrap(rows.Err(), "store: iterate usage")
}

// RunOutcomes counts runs started since since by status.
func (s *Store) RunOutcomes(ctx context.Context, since time.Time) (map[model.RunStatus]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, count(*) FROM inventory_updates WHERE started_at >= $1 GROUP BY status`, since)
	if err != nil {
		return nil, eris.Wrap(err, "store: run outcomes")
	}
	defer rows.Close()

	out := map[model.RunStatus]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, eris.Wrap(err, "store: scan run outcome")
		}
		out[model.RunStatus(status)] = n
	}
	return out, eris.Wrap(rows.Err(), "store: iterate run outcomes")
}
