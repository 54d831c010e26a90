// Package pipeline runs inventory updates: every due source is fetched,
// extracted, verified and persisted, with progress tracked on a run record.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/config"
	"github.com/sells-group/court-inventory/internal/discovery"
	"github.com/sells-group/court-inventory/internal/fetcher"
	"github.com/sells-group/court-inventory/internal/hierarchy"
	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/registry"
	"github.com/sells-group/court-inventory/internal/store"
	"github.com/sells-group/court-inventory/pkg/geocode"
)

// DefaultSourceTimeout is the wall-clock budget for one source.
const DefaultSourceTimeout = 180 * time.Second

// RunStore tracks runs and persists courts.
type RunStore interface {
	AcquireRunLock(ctx context.Context) (*store.RunLock, error)
	ResetStaleRuns(ctx context.Context) (int64, error)
	BeginRun(ctx context.Context, total int, courtType string) (string, error)
	AdvanceRun(ctx context.Context, runID string, p store.Progress) error
	CompleteRun(ctx context.Context, runID string, f store.Final) error
	AppendLog(ctx context.Context, runID string, level model.LogLevel, msg string) error
	UpsertCourt(ctx context.Context, c model.VerifiedCourt, jurisdictionID int64) (bool, error)
}

// SourceQueue yields due sources and records checks.
type SourceQueue interface {
	Due(ctx context.Context, jt model.JurisdictionType) ([]registry.DueSource, error)
	MarkChecked(ctx context.Context, sourceID int64, changed bool) error
}

// Fetcher retrieves page content.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) fetcher.Result
}

// Discoverer extracts and verifies court candidates.
type Discoverer interface {
	SetCourtTypes(names []string)
	Extract(ctx context.Context, text, sourceURL string, links []fetcher.Link) ([]model.CourtCandidate, error)
	VerifyAll(ctx context.Context, candidates []model.CourtCandidate) []discovery.Decision
}

// Resolver maps jurisdiction names and court-type labels onto the hierarchy.
type Resolver interface {
	Resolve(ctx context.Context, name, typ string, scope model.Jurisdiction) (model.Jurisdiction, error)
	Taxonomy(ctx context.Context) (*hierarchy.Taxonomy, error)
}

// Deps are the Runner's collaborators. Geocoder is optional.
type Deps struct {
	Store    RunStore
	Sources  SourceQueue
	Fetcher  Fetcher
	Engine   Discoverer
	Resolver Resolver
	Geocoder geocode.Client
}

// Config tunes a Runner.
type Config struct {
	SourceTimeout time.Duration
	Geocode       bool
}

// ConfigFrom maps application config onto a Runner config.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		SourceTimeout: time.Duration(cfg.Pipeline.SourceTimeoutSecs) * time.Second,
		Geocode:       cfg.Pipeline.Geocode,
	}
}

// Options select what a run covers.
type Options struct {
	// CourtType limits persistence to courts of this taxonomy type.
	CourtType string
	// JurisdictionType limits the run to sources of this jurisdiction type.
	JurisdictionType model.JurisdictionType
	// Limit caps the number of sources processed. Zero means no cap.
	Limit int
}

// Result summarizes a finished run.
type Result struct {
	RunID         string
	Processed     int
	Sources       int
	FailedSources int
	Candidates    int
	Accepted      int
	Rejected      int
	Skipped       int
	NewCourts     int
	Updated       int
}

// Runner executes inventory runs.
type Runner struct {
	deps Deps
	cfg  Config
	log  *zap.Logger
}

// New creates a Runner.
func New(deps Deps, cfg Config) *Runner {
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = DefaultSourceTimeout
	}
	return &Runner{
		deps: deps,
		cfg:  cfg,
		log:  zap.L().With(zap.String("component", "pipeline")),
	}
}

// Run processes every due source once. It returns store.ErrRunActive when
// another run holds the lock or is still running. Once the run record exists
// it always ends completed or error.
func (r *Runner) Run(ctx context.Context, opts Options) (res *Result, err error) {
	lock, err := r.deps.Store.AcquireRunLock(ctx)
	if err != nil {
		return nil, err
	}
	defer lock.Release(ctx)

	n, err := r.deps.Store.ResetStaleRuns(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: reset stale runs")
	}
	if n > 0 {
		r.log.Warn("reset stale runs", zap.Int64("count", n))
	}

	tax, err := r.deps.Resolver.Taxonomy(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load taxonomy")
	}
	if opts.CourtType != "" {
		ct, ok := tax.Match(opts.CourtType)
		if !ok {
			return nil, eris.Errorf("pipeline: unknown court type %q", opts.CourtType)
		}
		opts.CourtType = ct.Name
	}
	r.deps.Engine.SetCourtTypes(tax.Names())

	sources, err := r.deps.Sources.Due(ctx, opts.JurisdictionType)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list due sources")
	}
	if opts.Limit > 0 && len(sources) > opts.Limit {
		sources = sources[:opts.Limit]
	}

	runID, err := r.deps.Store.BeginRun(ctx, len(sources), opts.CourtType)
	if err != nil {
		return nil, err
	}
	res = &Result{RunID: runID, Sources: len(sources)}
	ctx = discovery.WithRunID(ctx, runID)
	log := r.log.With(zap.String("run_id", runID))

	defer func() {
		if p := recover(); p != nil {
			err = eris.Errorf("pipeline: run panicked: %v", p)
			log.Error("run panicked", zap.Any("panic", p))
		}
		if err != nil {
			r.fail(ctx, runID, res, err)
		}
	}()

	log.Info("run processing sources",
		zap.Int("sources", len(sources)),
		zap.String("court_type", opts.CourtType),
	)

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			return res, eris.Wrap(err, "pipeline: run interrupted")
		}

		p := store.Progress{
			Processed: i,
			Total:     len(sources),
			NewCourts: res.NewCourts,
			Updated:   res.Updated,
			Message:   fmt.Sprintf("Processing %s", src.JurisdictionName),
			Current:   src.URL,
			Stage:     stageFetch,
		}
		if i+1 < len(sources) {
			p.Next = sources[i+1].URL
		}

		st := r.processSource(ctx, runID, src, tax, opts, p)
		res.add(st)
	}

	msg := fmt.Sprintf("Processed %d sources, found %d new courts, updated %d existing courts",
		len(sources), res.NewCourts, res.Updated)
	if err := r.deps.Store.CompleteRun(ctx, runID, store.Final{
		Status:    model.RunStatusCompleted,
		Message:   msg,
		Processed: len(sources),
		NewCourts: res.NewCourts,
		Updated:   res.Updated,
	}); err != nil {
		return res, eris.Wrap(err, "pipeline: complete run")
	}

	log.Info("run completed",
		zap.Int("sources", res.Sources),
		zap.Int("failed_sources", res.FailedSources),
		zap.Int("new_courts", res.NewCourts),
		zap.Int("updated", res.Updated),
	)
	return res, nil
}

// fail marks the run as error. It runs on a context detached from ctx so an
// interrupted run still gets a terminal record.
func (r *Runner) fail(ctx context.Context, runID string, res *Result, cause error) {
	ctx = context.WithoutCancel(ctx)
	msg := fmt.Sprintf("Run failed: %v", cause)
	r.appendLog(ctx, runID, model.LogError, msg)
	if err := r.deps.Store.CompleteRun(ctx, runID, store.Final{
		Status:    model.RunStatusError,
		Message:   msg,
		Processed: res.Processed,
		NewCourts: res.NewCourts,
		Updated:   res.Updated,
	}); err != nil {
		r.log.Error("mark run failed", zap.String("run_id", runID), zap.Error(err))
	}
}

// appendLog writes a run log line. Log lines outlive the source budget.
func (r *Runner) appendLog(ctx context.Context, runID string, level model.LogLevel, msg string) {
	if err := r.deps.Store.AppendLog(context.WithoutCancel(ctx), runID, level, msg); err != nil {
		r.log.Warn("append run log", zap.String("run_id", runID), zap.Error(err))
	}
}
