package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/court-inventory/internal/model"
)

func TestRecordUsage(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO api_usage").
		WithArgs("messages/extract", "claude-haiku-4-5", int64(1200), int64(300), int64(1500), 0.0027, true, "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordUsage(context.Background(), model.APIUsage{
		Endpoint: "messages/extract", Model: "claude-haiku-4-5",
		InputTokens: 1200, OutputTokens: 300, CostUSD: 0.0027, Success: true, RunID: "run-1",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUsageSummary(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	last := since.Add(2 * time.Hour)

	mock.ExpectQuery(`FILTER \(WHERE success\)`).
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"count", "ok", "tokens", "cost", "last"}).
			AddRow(4, 3, int64(6000), 0.012, &last))
	mock.ExpectQuery("GROUP BY model").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"model", "count", "tokens", "cost"}).
			AddRow("claude-haiku-4-5", 4, int64(6000), 0.012))
	mock.ExpectQuery(`ORDER BY timestamp DESC, id DESC LIMIT \$2`).
		WithArgs(since, recentUsageLimit).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "timestamp", "endpoint", "model", "input_tokens", "output_tokens", "cost_usd", "success",
			"error_message", "run_id",
		}).AddRow(int64(9), last, "messages/verify", "claude-haiku-4-5", int64(800), int64(100), 0.0013, false,
			"overloaded", "run-1"))

	sum, err := s.UsageSummary(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 4, sum.Calls)
	assert.InDelta(t, 0.75, sum.SuccessRate, 0.0001)
	require.NotNil(t, sum.LastCall)
	require.Len(t, sum.ByModel, 1)
	require.Len(t, sum.Recent, 1)
	assert.Equal(t, "overloaded", sum.Recent[0].ErrorMessage)
	assert.Equal(t, int64(900), sum.Recent[0].TokensUsed())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunOutcomes(t *testing.T) {
	s, mock := newMockStore(t)
	since := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM inventory_updates WHERE started_at").
		WithArgs(since).
		WillReturnRows(pgxmock.NewRows([]string{"status", "count"}).AddRow("completed", 5).AddRow("error", 1))

	out, err := s.RunOutcomes(context.Background(), since)
	require.NoError(t, err)
	assert.Equal(t, 5, out[model.RunStatusCompleted])
	assert.Equal(t, 1, out[model.RunStatusError])
}

func TestLogs(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec("INSERT INTO run_logs").
		WithArgs("run-1", "WARNING", "fetch failed: dns").
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	ts := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FROM run_logs WHERE run_id = \$1 ORDER BY id DESC LIMIT \$2`).
		WithArgs("run-1", 100).
		WillReturnRows(pgxmock.NewRows([]string{"id", "run_id", "timestamp", "level", "message"}).
			AddRow(int64(1), "run-1", ts, "INFO", "run started").
			AddRow(int64(2), "run-1", ts, "WARNING", "fetch failed: dns"))

	require.NoError(t, s.AppendLog(context.Background(), "run-1", model.LogWarning, "fetch failed: dns"))
	entries, err := s.ListLogs(context.Background(), "run-1", 0)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, model.LogWarning, entries[1].Level)
	assert.NoError(t, mock.ExpectationsWereMet())
}
