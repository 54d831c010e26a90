package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/fetcher"
	"github.com/sells-group/court-inventory/internal/model"
)

// Prober checks that a URL answers.
type Prober interface {
	Probe(ctx context.Context, rawURL string) fetcher.Result
}

// Registrar adds a source to the registry, reporting whether it was new.
type Registrar interface {
	RegisterTyped(ctx context.Context, jurisdictionID int64, rawURL, sourceType string) (bool, error)
}

// SourceStatus is the outcome for one suggested source URL.
type SourceStatus string

const (
	SourceRegistered  SourceStatus = "registered"
	SourceExisting    SourceStatus = "existing"
	SourceInvalid     SourceStatus = "invalid_url"
	SourceNotCourt    SourceStatus = "not_court_domain"
	SourceUnreachable SourceStatus = "unreachable"
	SourceError       SourceStatus = "error"
)

// SourceOutcome reports what happened to one suggested URL.
type SourceOutcome struct {
	URL        string
	SourceType string
	Status     SourceStatus
	Detail     string
}

// courtDomainMarkers are host fragments that identify court websites.
var courtDomainMarkers = []string{".courts.", ".uscourts.", ".court.", "supremecourt", "judiciary", "judicial"}

// IsCourtDomain reports whether host looks like an official court site:
// it carries a court marker or is a .gov host.
func IsCourtDomain(host string) bool {
	h := "." + strings.ToLower(strings.TrimSuffix(host, ".")) + "."
	for _, m := range courtDomainMarkers {
		if strings.Contains(h, m) {
			return true
		}
	}
	return strings.HasSuffix(h, ".gov.")
}

// SourceFinder asks the model for court directory pages of a jurisdiction
// and registers the ones that check out.
type SourceFinder struct {
	engine   *Engine
	prober   Prober
	registry Registrar
}

// NewSourceFinder creates a SourceFinder.
func NewSourceFinder(engine *Engine, prober Prober, registry Registrar) *SourceFinder {
	return &SourceFinder{engine: engine, prober: prober, registry: registry}
}

// DiscoverSources suggests, filters, probes and registers directory sources
// for j. Rejected suggestions are reported, not returned as errors.
func (f *SourceFinder) DiscoverSources(ctx context.Context, j model.Jurisdiction) ([]SourceOutcome, error) {
	log := f.engine.log.With(zap.String("jurisdiction", j.Name))

	raw, err := f.engine.call(ctx, EndpointSources, sourcesSystemPrompt, sourcesUserPrompt(j))
	if err != nil {
		return nil, err
	}
	suggested, err := parseSources(raw)
	if err != nil {
		return nil, eris.Wrapf(err, "discovery: sources for %s", j.Name)
	}

	seen := make(map[string]bool)
	var out []SourceOutcome
	for _, s := range suggested {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "discovery: discover sources")
		}

		norm, err := fetcher.NormalizeURL(s.URL)
		if err != nil {
			out = append(out, SourceOutcome{URL: s.URL, SourceType: s.SourceType, Status: SourceInvalid, Detail: err.Error()})
			continue
		}
		if seen[norm] {
			continue
		}
		seen[norm] = true

		o := SourceOutcome{URL: norm, SourceType: s.SourceType}
		u, _ := url.Parse(norm)
		if !IsCourtDomain(u.Hostname()) {
			o.Status = SourceNotCourt
			out = append(out, o)
			continue
		}

		if res := f.prober.Probe(ctx, norm); !res.OK() {
			o.Status, o.Detail = SourceUnreachable, string(res.Failure)
			out = append(out, o)
			continue
		}

		created, err := f.registry.RegisterTyped(ctx, j.ID, norm, s.SourceType)
		if err != nil {
			log.Warn("register source failed", zap.String("url", norm), zap.Error(err))
			o.Status, o.Detail = SourceError, err.Error()
			out = append(out, o)
			continue
		}
		o.Status = SourceExisting
		if created {
			o.Status = SourceRegistered
		}
		out = append(out, o)
	}

	log.Info("source discovery finished",
		zap.Int("suggested", len(suggested)),
		zap.Int("registered", CountStatus(out, SourceRegistered)),
	)
	return out, nil
}

type suggestedSource struct {
	URL        string
	SourceType string
}

func parseSources(raw string) ([]suggestedSource, error) {
	tree, err := UnwrapPayload(raw)
	if err != nil {
		return nil, err
	}

	var items []any
	switch v := tree.(type) {
	case []any:
		items = v
	case map[string]any:
		if _, ok := v["url"]; !ok {
			return nil, eris.New("discovery: reply has no sources")
		}
		items = []any{v}
	}

	var out []suggestedSource
	for _, it := range items {
		var s suggestedSource
		switch v := it.(type) {
		case string:
			s.URL = str(v)
		case map[string]any:
			s.URL = str(v["url"])
			s.SourceType = strings.ToLower(str(v["source_type"]))
		}
		if s.URL == "" {
			continue
		}
		if s.SourceType == "" {
			s.SourceType = "directory"
		}
		out = append(out, s)
	}
	return out, nil
}

// CountStatus counts outcomes with the given status.
func CountStatus(outcomes []SourceOutcome, status SourceStatus) int {
	n := 0
	for _, o := range outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}
