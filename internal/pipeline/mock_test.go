package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/discovery"
	"github.com/sells-group/court-inventory/internal/fetcher"
	"github.com/sells-group/court-inventory/internal/hierarchy"
	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/registry"
	"github.com/sells-group/court-inventory/internal/store"
	"github.com/sells-group/court-inventory/pkg/anthropic"
	"github.com/sells-group/court-inventory/pkg/geocode"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

// --- Store Fake ---

type storedCourt struct {
	model.VerifiedCourt
	JurisdictionID int64
}

type fakeStore struct {
	mu sync.Mutex

	lockErr  error
	beginErr error

	resetCalls int
	runs       map[string]*model.InventoryRun
	runOrder   []string
	progress   []store.Progress
	logs       []model.RunLogEntry
	courts     map[string]*storedCourt
	upsertErr  error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		runs:   make(map[string]*model.InventoryRun),
		courts: make(map[string]*storedCourt),
	}
}

func (f *fakeStore) AcquireRunLock(context.Context) (*store.RunLock, error) {
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	// A nil lock releases as a no-op.
	return nil, nil
}

func (f *fakeStore) ResetStaleRuns(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	var n int64
	for _, r := range f.runs {
		if r.Status == model.RunStatusRunning {
			r.Status, r.Message = model.RunStatusError, store.StaleRunMessage
			n++
		}
	}
	return n, nil
}

func (f *fakeStore) BeginRun(_ context.Context, total int, courtType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.beginErr != nil {
		return "", f.beginErr
	}
	for _, r := range f.runs {
		if r.Status == model.RunStatusRunning {
			return "", store.ErrRunActive
		}
	}
	id := fmt.Sprintf("run-%d", len(f.runOrder)+1)
	f.runs[id] = &model.InventoryRun{ID: id, TotalSources: total, Status: model.RunStatusRunning, CourtType: courtType}
	f.runOrder = append(f.runOrder, id)
	return id, nil
}

func (f *fakeStore) AdvanceRun(_ context.Context, runID string, p store.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progress = append(f.progress, p)
	r := f.runs[runID]
	if r == nil || r.Status != model.RunStatusRunning {
		return nil
	}
	r.SourcesProcessed, r.TotalSources = p.Processed, p.Total
	r.NewCourtsFound, r.CourtsUpdated = p.NewCourts, p.Updated
	r.CurrentSource, r.NextSource, r.Stage = p.Current, p.Next, p.Stage
	r.Message = store.FormatProgress(p)
	return nil
}

func (f *fakeStore) CompleteRun(_ context.Context, runID string, fin store.Final) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.runs[runID]
	if r == nil || r.Status != model.RunStatusRunning {
		return nil
	}
	r.Status, r.Message = fin.Status, fin.Message
	r.SourcesProcessed, r.NewCourtsFound, r.CourtsUpdated = fin.Processed, fin.NewCourts, fin.Updated
	return nil
}

func (f *fakeStore) AppendLog(_ context.Context, runID string, level model.LogLevel, msg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, model.RunLogEntry{RunID: runID, Level: level, Message: msg})
	return nil
}

func (f *fakeStore) UpsertCourt(_ context.Context, c model.VerifiedCourt, jurisdictionID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return false, f.upsertErr
	}
	key := fmt.Sprintf("%s|%d", c.Name, jurisdictionID)
	_, exists := f.courts[key]
	f.courts[key] = &storedCourt{VerifiedCourt: c, JurisdictionID: jurisdictionID}
	return !exists, nil
}

func (f *fakeStore) run(id string) model.InventoryRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.runs[id]
}

func (f *fakeStore) courtList() []storedCourt {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storedCourt
	for _, c := range f.courts {
		out = append(out, *c)
	}
	return out
}

func (f *fakeStore) logText() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var b strings.Builder
	for _, l := range f.logs {
		b.WriteString(string(l.Level) + " " + l.Message + "\n")
	}
	return b.String()
}

// --- Source Queue Fake ---

type fakeSources struct {
	due     []registry.DueSource
	checked map[int64]bool
}

func (f *fakeSources) Due(context.Context, model.JurisdictionType) ([]registry.DueSource, error) {
	return f.due, nil
}

func (f *fakeSources) MarkChecked(_ context.Context, sourceID int64, changed bool) error {
	if f.checked == nil {
		f.checked = make(map[int64]bool)
	}
	f.checked[sourceID] = changed
	return nil
}

// --- Resolver Fake ---

type fakeResolver struct {
	jurisdictions []model.Jurisdiction
	types         []model.CourtType
}

func (f *fakeResolver) Resolve(_ context.Context, name, _ string, scope model.Jurisdiction) (model.Jurisdiction, error) {
	if strings.TrimSpace(name) == "" {
		return scope, nil
	}
	for _, j := range f.jurisdictions {
		if hierarchy.FoldName(j.Name) == hierarchy.FoldName(name) {
			return j, nil
		}
	}
	return model.Jurisdiction{}, hierarchy.ErrUnknownJurisdiction
}

func (f *fakeResolver) Taxonomy(context.Context) (*hierarchy.Taxonomy, error) {
	return hierarchy.NewTaxonomy(f.types), nil
}

// --- Discoverer Fake ---

type panickingEngine struct{}

func (panickingEngine) SetCourtTypes([]string) {}

func (panickingEngine) Extract(context.Context, string, string, []fetcher.Link) ([]model.CourtCandidate, error) {
	panic("parser exploded")
}

func (panickingEngine) VerifyAll(context.Context, []model.CourtCandidate) []discovery.Decision {
	return nil
}

// --- Geocoder Fake ---

type fakeGeocoder struct {
	calls []geocode.AddressInput
}

func (f *fakeGeocoder) Geocode(_ context.Context, addr geocode.AddressInput) (*geocode.Result, error) {
	f.calls = append(f.calls, addr)
	return &geocode.Result{Latitude: 39.78, Longitude: -89.65, Matched: true}, nil
}

func (f *fakeGeocoder) BatchGeocode(context.Context, []geocode.AddressInput) ([]geocode.Result, error) {
	return nil, nil
}

// --- Anthropic Mock ---

type mockAnthropicClient struct {
	mock.Mock
}

func (m *mockAnthropicClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*anthropic.MessageResponse), args.Error(1)
}

func textResponse(text string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 500, OutputTokens: 100},
	}
}

func userContains(fragment string) any {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		return len(req.Messages) > 0 && strings.Contains(req.Messages[0].Content, fragment)
	})
}
