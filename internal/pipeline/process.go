package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/discovery"
	"github.com/sells-group/court-inventory/internal/hierarchy"
	"github.com/sells-group/court-inventory/internal/model"
	"github.com/sells-group/court-inventory/internal/registry"
	"github.com/sells-group/court-inventory/internal/store"
	"github.com/sells-group/court-inventory/pkg/geocode"
)

// Stages reported on the run record.
const (
	stageFetch   = "fetch"
	stageExtract = "extract"
	stageVerify  = "verify"
	stageUpsert  = "upsert"
)

// ReasonUnknownJurisdiction rejects a court naming a jurisdiction outside
// the hierarchy.
const ReasonUnknownJurisdiction discovery.Reason = "unknown_jurisdiction"

// sourceStats counts the outcome of one source.
type sourceStats struct {
	failed     bool
	candidates int
	accepted   int
	rejected   int
	skipped    int
	created    int
	updated    int
}

func (res *Result) add(s sourceStats) {
	res.Processed++
	if s.failed {
		res.FailedSources++
	}
	res.Candidates += s.candidates
	res.Accepted += s.accepted
	res.Rejected += s.rejected
	res.Skipped += s.skipped
	res.NewCourts += s.created
	res.Updated += s.updated
}

// processSource runs one source through fetch, extract, verify and upsert
// under its own time budget. Failures are logged and counted; they never
// abort the run.
func (r *Runner) processSource(ctx context.Context, runID string, src registry.DueSource, tax *hierarchy.Taxonomy, opts Options, p store.Progress) sourceStats {
	var st sourceStats
	log := r.log.With(
		zap.String("run_id", runID),
		zap.Int64("source_id", src.SourceID),
		zap.String("url", src.URL),
	)

	sctx, cancel := context.WithTimeout(ctx, r.cfg.SourceTimeout)
	defer cancel()

	advance := func(stage string) {
		snap := p
		snap.Stage = stage
		snap.NewCourts += st.created
		snap.Updated += st.updated
		if err := r.deps.Store.AdvanceRun(ctx, runID, snap); err != nil {
			log.Warn("advance run", zap.Error(err))
		}
	}

	// Polled sources are stamped whatever the outcome.
	defer func() {
		if err := r.deps.Sources.MarkChecked(ctx, src.SourceID, st.created+st.updated > 0); err != nil {
			log.Warn("mark source checked", zap.Error(err))
		}
	}()

	advance(stageFetch)
	r.appendLog(ctx, runID, model.LogInfo, fmt.Sprintf("Processing source %s (%s)", src.URL, src.JurisdictionName))

	page := r.deps.Fetcher.Fetch(sctx, src.URL)
	if !page.OK() {
		st.failed = true
		log.Warn("fetch failed", zap.String("reason", string(page.Failure)), zap.Error(page.Err))
		r.appendLog(ctx, runID, model.LogWarning, fmt.Sprintf("Fetch failed for %s: %s", src.URL, page.Failure))
		return st
	}

	advance(stageExtract)
	pageURL := page.FinalURL
	if pageURL == "" {
		pageURL = src.URL
	}
	candidates, err := r.deps.Engine.Extract(sctx, page.Text, pageURL, page.Links)
	if err != nil {
		st.failed = true
		log.Error("extract failed", zap.Error(err))
		r.appendLog(ctx, runID, model.LogError, fmt.Sprintf("Extraction failed for %s: %v", src.URL, err))
		return st
	}
	st.candidates = len(candidates)
	r.appendLog(ctx, runID, model.LogInfo, fmt.Sprintf("Extracted %d candidate courts from %s", len(candidates), src.URL))

	if len(candidates) > 0 {
		advance(stageVerify)
		decisions := r.deps.Engine.VerifyAll(sctx, candidates)

		advance(stageUpsert)
		for _, d := range decisions {
			r.persist(sctx, runID, src, tax, opts, d, &st, log)
		}
	}

	r.appendLog(ctx, runID, model.LogInfo, fmt.Sprintf(
		"Source %s: %d accepted, %d rejected, %d skipped; %d new courts, %d updated",
		src.URL, st.accepted, st.rejected, st.skipped, st.created, st.updated))
	return st
}

// persist applies one accepted or rejected decision.
func (r *Runner) persist(ctx context.Context, runID string, src registry.DueSource, tax *hierarchy.Taxonomy, opts Options, d discovery.Decision, st *sourceStats, log *zap.Logger) {
	name := d.Candidate.Name
	if !d.Accepted {
		st.rejected++
		log.Info("candidate rejected", zap.String("court", name), zap.String("reason", string(d.Reason)))
		r.appendLog(ctx, runID, model.LogInfo, fmt.Sprintf("Rejected %s: %s", name, d.Reason))
		return
	}

	vc, matched := d.Court(tax)
	if !matched {
		log.Info("court type not in taxonomy", zap.String("court", name), zap.String("type", vc.Type))
	}
	if opts.CourtType != "" && !strings.EqualFold(vc.Type, opts.CourtType) {
		st.skipped++
		r.appendLog(ctx, runID, model.LogInfo, fmt.Sprintf("Skipped %s: type %q is not %q", name, vc.Type, opts.CourtType))
		return
	}

	jur, err := r.deps.Resolver.Resolve(ctx, d.Candidate.Jurisdiction, d.Candidate.JurisdictionType, src.Jurisdiction())
	if err != nil {
		st.rejected++
		reason := string(discovery.ReasonError)
		if errors.Is(err, hierarchy.ErrUnknownJurisdiction) {
			reason = string(ReasonUnknownJurisdiction)
		}
		log.Warn("candidate jurisdiction not resolved",
			zap.String("court", name),
			zap.String("jurisdiction", d.Candidate.Jurisdiction),
			zap.String("reason", reason),
			zap.Error(err),
		)
		r.appendLog(ctx, runID, model.LogWarning, fmt.Sprintf("Rejected %s: %s %q", name, reason, d.Candidate.Jurisdiction))
		return
	}
	st.accepted++

	r.locate(ctx, &vc, log)

	created, err := r.deps.Store.UpsertCourt(ctx, vc, jur.ID)
	if err != nil {
		log.Error("upsert court failed", zap.String("court", name), zap.Error(err))
		r.appendLog(ctx, runID, model.LogError, fmt.Sprintf("Failed to save %s: %v", name, err))
		return
	}
	if created {
		st.created++
		r.appendLog(ctx, runID, model.LogInfo, fmt.Sprintf("Added new court: %s (%s)", vc.Name, jur.Name))
	} else {
		st.updated++
		r.appendLog(ctx, runID, model.LogInfo, fmt.Sprintf("Updated court: %s (%s)", vc.Name, jur.Name))
	}
}

// locate fills coordinates from the geocoder when the court has an address
// but no location. Geocoding failures leave the court unlocated.
func (r *Runner) locate(ctx context.Context, vc *model.VerifiedCourt, log *zap.Logger) {
	if !r.cfg.Geocode || r.deps.Geocoder == nil || vc.Address == "" || (vc.Lat != nil && vc.Lon != nil) {
		return
	}
	res, err := r.deps.Geocoder.Geocode(ctx, geocode.ParseOneLine("", vc.Address))
	if err != nil {
		log.Warn("geocode court failed", zap.String("court", vc.Name), zap.Error(err))
		return
	}
	if !res.Matched {
		return
	}
	lat, lon := res.Latitude, res.Longitude
	vc.Lat, vc.Lon = &lat, &lon
}
