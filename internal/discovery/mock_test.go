package discovery

import (
	"context"
	"strings"
	"sync"

	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/fetcher"
	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/pkg/anthropic"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

const testModel = "claude-haiku-4-5-20251001"

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
		Model:   testModel,
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
		Usage:   anthropic.TokenUsage{InputTokens: 1000, OutputTokens: 200},
	}
}

// userContains matches requests whose user turn contains every fragment.
func userContains(fragments ...string) any {
	return mock.MatchedBy(func(req anthropic.MessageRequest) bool {
		if len(req.Messages) == 0 {
			return false
		}
		for _, f := range fragments {
			if !strings.Contains(req.Messages[0].Content, f) {
				return false
			}
		}
		return true
	})
}

// --- Usage Mock ---

type mockUsage struct {
	mu   sync.Mutex
	rows []model.APIUsage
	err  error
}

func (m *mockUsage) RecordUsage(_ context.Context, u model.APIUsage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows = append(m.rows, u)
	return m.err
}

func (m *mockUsage) recorded() []model.APIUsage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.APIUsage(nil), m.rows...)
}

// --- Prober / Registrar Mocks ---

type mockProber struct {
	results map[string]fetcher.Result
}

func (m *mockProber) Probe(_ context.Context, rawURL string) fetcher.Result {
	if r, ok := m.results[rawURL]; ok {
		return r
	}
	return fetcher.Result{URL: rawURL, FinalURL: rawURL, StatusCode: 200}
}

type registerCall struct {
	JurisdictionID int64
	URL            string
	SourceType     string
}

type mockRegistrar struct {
	calls   []registerCall
	created bool
	errs    map[string]error
}

func (m *mockRegistrar) RegisterTyped(_ context.Context, jurisdictionID int64, rawURL, sourceType string) (bool, error) {
	m.calls = append(m.calls, registerCall{jurisdictionID, rawURL, sourceType})
	if err := m.errs[rawURL]; err != nil {
		return false, err
	}
	return m.created, nil
}

func newTestEngine(client anthropic.Client, usage UsageRecorder, mutate ...func(*Config)) *Engine {
	cfg := Config{
		Model:      testModel,
		ChunkSize:  1000,
		Threshold:  0.7,
		CourtTypes: []string{"Supreme Court", "District Courts", "County Probate Courts"},
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	return NewEngine(client, cfg, nil, usage)
}
