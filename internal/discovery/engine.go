// Package discovery turns court directory pages into verified court records
// with a language model: extraction of candidate courts, verification against
// the court-type taxonomy, and discovery of new directory sources.
package discovery

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/court-inventory/internal/config"
	"github.com/sells-group/court-inventory/internal/cost"
	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/resilience"
	"github.com/sells-group/court-inventory/pkg/anthropic"
)

// Endpoints recorded in the usage ledger.
const (
	EndpointExtract = "extract"
	EndpointVerify  = "verify"
	EndpointSources = "sources"
)

// DefaultThreshold is the confidence a verification must exceed.
const DefaultThreshold = 0.7

// minCallDelay is the floor on spacing between model calls.
const minCallDelay = time.Second

// UsageRecorder persists one usage ledger row per model call.
type UsageRecorder interface {
	RecordUsage(ctx context.Context, u model.APIUsage) error
}

// Config tunes the Engine.
type Config struct {
	Model             string
	MaxTokens         int64
	ChunkSize         int
	Threshold         float64
	CallDelay         time.Duration
	VerifyConcurrency int
	BreakerThreshold  int
	BreakerReset      time.Duration
	// CourtTypes is the taxonomy offered to the verification prompt.
	CourtTypes []string
}

// ConfigFrom maps application config onto an Engine config. The call delay
// never drops below one second.
func ConfigFrom(cfg *config.Config) Config {
	delay := time.Duration(cfg.Pipeline.CallDelayMs) * time.Millisecond
	if delay < minCallDelay {
		delay = minCallDelay
	}
	return Config{
		Model:             cfg.Anthropic.Model,
		MaxTokens:         cfg.Anthropic.MaxTokens,
		ChunkSize:         cfg.Pipeline.ChunkSize,
		Threshold:         cfg.Pipeline.ConfidenceThreshold,
		CallDelay:         delay,
		VerifyConcurrency: cfg.Pipeline.VerifyConcurrency,
		BreakerThreshold:  cfg.Pipeline.BreakerThreshold,
		BreakerReset:      time.Duration(cfg.Pipeline.BreakerResetSecs) * time.Second,
	}
}

// Engine runs the model-backed stages. One Engine is shared by a whole run so
// its limiter paces every call.
type Engine struct {
	client  anthropic.Client
	cfg     Config
	costs   *cost.Calculator
	usage   UsageRecorder
	limiter *rate.Limiter
	breaker *resilience.Breaker
	log     *zap.Logger
}

// NewEngine creates an Engine. usage and costs may be nil. A zero CallDelay
// disables pacing.
func NewEngine(client anthropic.Client, cfg Config, costs *cost.Calculator, usage UsageRecorder) *Engine {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = DefaultThreshold
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	if cfg.VerifyConcurrency <= 0 {
		cfg.VerifyConcurrency = 1
	}
	if costs == nil {
		costs = cost.NewCalculator(nil)
	}

	limit := rate.Inf
	if cfg.CallDelay > 0 {
		limit = rate.Every(cfg.CallDelay)
	}

	log := zap.L().With(zap.String("component", "discovery"))
	breaker := resilience.NewBreaker(cfg.BreakerThreshold, cfg.BreakerReset, func(from, to resilience.BreakerState) {
		log.Warn("model breaker state change",
			zap.Stringer("from", from),
			zap.Stringer("to", to),
		)
	})

	return &Engine{
		client:  client,
		cfg:     cfg,
		costs:   costs,
		usage:   usage,
		limiter: rate.NewLimiter(limit, 1),
		breaker: breaker,
		log:     log,
	}
}

// SetCourtTypes replaces the taxonomy offered to verification.
func (e *Engine) SetCourtTypes(names []string) {
	e.cfg.CourtTypes = names
}

type runIDKey struct{}

// WithRunID tags usage rows recorded under ctx with runID.
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey{}, runID)
}

func runIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// call sends one paced, breaker-guarded message and records its usage.
func (e *Engine) call(ctx context.Context, endpoint, system, user string) (string, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return "", eris.Wrap(err, "discovery: wait for call slot")
	}

	var resp *anthropic.MessageResponse
	err := e.breaker.Call(ctx, func(ctx context.Context) error {
		var callErr error
		resp, callErr = e.client.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     e.cfg.Model,
			MaxTokens: e.cfg.MaxTokens,
			System:    anthropic.CachedSystem(system),
			Messages:  []anthropic.Message{{Role: "user", Content: user}},
		})
		return callErr
	})

	e.record(ctx, endpoint, resp, err)
	if err != nil {
		return "", eris.Wrapf(err, "discovery: %s call", endpoint)
	}
	return resp.Text(), nil
}

func (e *Engine) record(ctx context.Context, endpoint string, resp *anthropic.MessageResponse, callErr error) {
	if e.usage == nil {
		return
	}
	u := model.APIUsage{
		Timestamp: time.Now().UTC(),
		Endpoint:  endpoint,
		Model:     e.cfg.Model,
		Success:   callErr == nil,
		RunID:     runIDFrom(ctx),
	}
	if resp != nil {
		if resp.Model != "" {
			u.Model = resp.Model
		}
		u.InputTokens = resp.Usage.InputTokens + resp.Usage.CacheCreationInputTokens + resp.Usage.CacheReadInputTokens
		u.OutputTokens = resp.Usage.OutputTokens
		u.CostUSD = e.costs.Claude(u.Model, resp.Usage)
	}
	if callErr != nil {
		u.ErrorMessage = callErr.Error()
	}

	// A cancelled run context must not lose the ledger row.
	if err := e.usage.RecordUsage(context.WithoutCancel(ctx), u); err != nil {
		e.log.Warn("record api usage failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
	}
}
