package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/court-inventory/internal/discovery"
	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/pipeline"
	"github.com/sells-group/court-inventory/internal/store"
)

func TestFormatRunsList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	done := now.Add(-58 * time.Minute)
	runs := []model.InventoryRun{
		{
			ID:               "abc12345-6789-0000-0000-000000000000",
			StartedAt:        now.Add(-1 * time.Hour),
			CompletedAt:      &done,
			TotalSources:     12,
			SourcesProcessed: 12,
			NewCourtsFound:   3,
			CourtsUpdated:    9,
			Status:           model.RunStatusCompleted,
		},
		{
			ID:               "def12345-6789-0000-0000-000000000000",
			StartedAt:        now.Add(-5 * time.Minute),
			TotalSources:     4,
			SourcesProcessed: 1,
			Status:           model.RunStatusRunning,
			CourtType:        "District Courts",
		},
	}

	var buf bytes.Buffer
	formatRunsList(&buf, runs, now)

	output := buf.String()
	assert.Contains(t, output, "PROGRESS")
	assert.Contains(t, output, "abc12345")
	assert.NotContains(t, output, "abc12345-6789")
	assert.Contains(t, output, "completed")
	assert.Contains(t, output, "12/12")
	assert.Contains(t, output, "2m0s")
	assert.Contains(t, output, "running")
	assert.Contains(t, output, "District Courts")
	assert.Contains(t, output, "5m0s")
	assert.Contains(t, output, "all")
}

func TestFormatRunDetail(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 30, 0, 0, time.UTC)
	run := model.InventoryRun{
		ID:               "run-1",
		StartedAt:        now.Add(-10 * time.Minute),
		TotalSources:     4,
		SourcesProcessed: 1,
		Status:           model.RunStatusRunning,
		Message:          "Processing California",
		CurrentSource:    "https://courts.ca.gov",
		NextSource:       "https://www.nycourts.gov",
		Stage:            "extract",
	}

	var buf bytes.Buffer
	formatRunDetail(&buf, run, now)

	output := buf.String()
	assert.Contains(t, output, "1/4 (25.0%)")
	assert.Contains(t, output, "extract")
	assert.Contains(t, output, "https://courts.ca.gov")
	assert.Contains(t, output, "https://www.nycourts.gov")
	assert.Contains(t, output, "Processing California")
	assert.Contains(t, output, "10m0s")
	assert.NotContains(t, output, "Completed:")
}

func TestFormatRunLogs(t *testing.T) {
	ts := time.Date(2026, 6, 15, 10, 30, 5, 0, time.UTC)
	var buf bytes.Buffer
	formatRunLogs(&buf, []model.RunLogEntry{
		{Timestamp: ts, Level: model.LogWarning, Message: "Fetch failed for https://x.example.gov: dns"},
	})
	assert.Equal(t, "2026-06-15 10:30:05 [WARNING] Fetch failed for https://x.example.gov: dns\n", buf.String())
}

func TestTruncateID(t *testing.T) {
	assert.Equal(t, "abc12345", truncateID("abc12345-6789"))
	assert.Equal(t, "short", truncateID("short"))
}

func TestFormatUsage(t *testing.T) {
	last := time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)
	s := &store.UsageSummary{
		Since:       time.Date(2026, 6, 14, 10, 0, 0, 0, time.UTC),
		Calls:       20,
		Successful:  19,
		SuccessRate: 0.95,
		Tokens:      48000,
		CostUSD:     0.0712,
		LastCall:    &last,
		ByModel:     []store.ModelUsage{{Model: "claude-haiku-4-5-20251001", Calls: 20, Tokens: 48000, CostUSD: 0.0712}},
		Recent: []model.APIUsage{
			{Timestamp: last, Endpoint: "verify", Model: "claude-haiku-4-5-20251001", InputTokens: 1000, OutputTokens: 200, CostUSD: 0.002, Success: true},
		},
	}

	var buf bytes.Buffer
	formatUsage(&buf, s)

	output := buf.String()
	assert.Contains(t, output, "19 (95.0%)")
	assert.Contains(t, output, "$0.0712")
	assert.Contains(t, output, "claude-haiku-4-5-20251001")
	assert.Contains(t, output, "verify")
	assert.Contains(t, output, "1200")
}

func TestFormatUsage_Empty(t *testing.T) {
	var buf bytes.Buffer
	formatUsage(&buf, &store.UsageSummary{})

	output := buf.String()
	assert.Contains(t, output, "Calls:")
	assert.NotContains(t, output, "MODEL")
	assert.NotContains(t, output, "ENDPOINT")
}

func TestFormatSourcesList(t *testing.T) {
	now := time.Date(2026, 6, 15, 10, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Hour)
	sources := []model.CourtSource{
		{ID: 1, JurisdictionName: "California", JurisdictionType: model.JurisdictionState, URL: "https://courts.ca.gov", IsActive: true},
		{ID: 2, JurisdictionName: "Texas", JurisdictionType: model.JurisdictionState, URL: "https://www.txcourts.gov", IsActive: true, LastChecked: &recent, UpdateFrequency: 24 * time.Hour},
	}

	var buf bytes.Buffer
	formatSourcesList(&buf, sources, now)

	output := buf.String()
	assert.Contains(t, output, "never")
	assert.Contains(t, output, "2026-06-15 09:00")
	assert.Contains(t, output, "yes")
	assert.Contains(t, output, "no")
}

func TestFormatSourceOutcomes(t *testing.T) {
	var buf bytes.Buffer
	formatSourceOutcomes(&buf, []discovery.SourceOutcome{
		{URL: "https://courts.ca.gov/find", SourceType: "directory", Status: discovery.SourceRegistered},
		{URL: "https://example.com", SourceType: "directory", Status: discovery.SourceNotCourt},
	})
	output := buf.String()
	assert.Contains(t, output, "registered")
	assert.Contains(t, output, "not_court_domain")
}

func TestFormatCourtsList(t *testing.T) {
	lat, lon := 38.58, -121.49
	courts := []model.Court{
		{ID: 7, Name: "Example District Court", Type: "District Courts", JurisdictionName: "California", Status: model.CourtOpen, Lat: &lat, Lon: &lon},
		{ID: 8, Name: "Example Probate Court", JurisdictionName: "Texas", Status: model.CourtLimited, MaintenanceNotice: "E-filing offline"},
	}

	var buf bytes.Buffer
	formatCourtsList(&buf, courts)

	output := buf.String()
	assert.Contains(t, output, "Example District Court")
	assert.Contains(t, output, "true")
	assert.Contains(t, output, "Limited Operations *")
}

func TestFormatRunResult(t *testing.T) {
	var buf bytes.Buffer
	formatRunResult(&buf, &pipeline.Result{RunID: "run-9", Processed: 3, Sources: 4, NewCourts: 2, Updated: 5, Accepted: 7})

	output := buf.String()
	assert.Contains(t, output, "run-9")
	assert.Contains(t, output, "3/4")
	assert.Contains(t, output, "New courts:")
}

func TestFormatDiscoveryStats(t *testing.T) {
	var buf bytes.Buffer
	formatDiscoveryStats(&buf, discoveryStats{Jurisdictions: 52, Registered: 40, Existing: 3, Rejected: 9, Suggested: 52})
	assert.Contains(t, buf.String(), "Registered:")
	assert.Contains(t, buf.String(), "40")
}
