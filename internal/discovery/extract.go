package discovery

import (
	"context"
	"net/url"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/fetcher"
	"github.com/sells-group/court-inventory/internal/hierarchy"
	"github.com/sells-group/court-inventory/internal/model"
)

// ErrExtractFailed is returned when no chunk of a page could be extracted.
var ErrExtractFailed = eris.New("discovery: extraction failed for every chunk")

// Extract proposes court candidates from page text. Each chunk is extracted
// independently; a chunk whose call fails or whose reply is malformed adds
// nothing. Candidates repeated across chunks are collapsed. Missing URLs are
// recovered from page links labelled with the court name.
func (e *Engine) Extract(ctx context.Context, text, sourceURL string, links []fetcher.Link) ([]model.CourtCandidate, error) {
	chunks := Chunk(text, e.cfg.ChunkSize)
	if len(chunks) == 0 {
		return nil, nil
	}

	base, _ := url.Parse(sourceURL)
	byLabel := linkIndex(links)
	seen := make(map[string]bool)

	var (
		out     []model.CourtCandidate
		failed  int
		lastErr error
	)
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return out, eris.Wrap(err, "discovery: extract")
		}

		raw, err := e.call(ctx, EndpointExtract, extractSystemPrompt, extractUserPrompt(sourceURL, chunk))
		if err != nil {
			failed++
			lastErr = err
			e.log.Warn("extract chunk failed",
				zap.String("source", sourceURL),
				zap.Int("chunk", i),
				zap.Error(err),
			)
			continue
		}

		found, err := parseCandidates(raw)
		if err != nil {
			failed++
			lastErr = err
			e.log.Warn("extract chunk returned malformed payload",
				zap.String("source", sourceURL),
				zap.Int("chunk", i),
				zap.Error(err),
			)
			continue
		}

		for _, c := range found {
			key := hierarchy.FoldName(c.Name) + "\x00" + hierarchy.FoldName(c.Jurisdiction)
			if seen[key] {
				continue
			}
			seen[key] = true
			c.URL = resolveCourtURL(c, base, byLabel)
			out = append(out, c)
		}
	}

	if failed == len(chunks) {
		return nil, eris.Wrapf(ErrExtractFailed, "%s: %v", sourceURL, lastErr)
	}

	e.log.Debug("extracted candidates",
		zap.String("source", sourceURL),
		zap.Int("chunks", len(chunks)),
		zap.Int("candidates", len(out)),
	)
	return out, nil
}

// parseCandidates accepts {"courts": [...]}, a bare array, or a single court
// object.
func parseCandidates(raw string) ([]model.CourtCandidate, error) {
	tree, err := UnwrapPayload(raw)
	if err != nil {
		return nil, err
	}

	var items []any
	switch v := tree.(type) {
	case []any:
		items = v
	case map[string]any:
		if courts, ok := v["courts"]; ok {
			if courts != nil {
				list, ok := courts.([]any)
				if !ok {
					return nil, eris.New("discovery: courts is not a list")
				}
				items = list
			}
		} else if _, ok := v["name"]; ok {
			items = []any{v}
		} else {
			return nil, eris.New("discovery: reply has no courts")
		}
	}

	var out []model.CourtCandidate
	for _, it := range items {
		m, ok := it.(map[string]any)
		if !ok {
			continue
		}
		c := model.CourtCandidate{
			Name:             str(m["name"]),
			Type:             str(m["type"]),
			Jurisdiction:     str(m["jurisdiction"]),
			JurisdictionType: strings.ToLower(str(m["jurisdiction_type"])),
			Address:          str(m["address"]),
			URL:              str(m["url"]),
			Status:           str(m["status"]),
			ContactInfo:      parseContact(m["contact_info"]),
			Divisions:        strList(m["divisions"]),
			Services:         strList(m["services"]),
		}
		if c.Name == "" {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func parseContact(v any) *model.ContactInfo {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	ci := &model.ContactInfo{
		Phone: str(m["phone"]),
		Email: str(m["email"]),
		Hours: str(m["hours"]),
	}
	if ci.IsZero() {
		return nil
	}
	return ci
}

func linkIndex(links []fetcher.Link) map[string]string {
	idx := make(map[string]string, len(links))
	for _, l := range links {
		key := hierarchy.FoldName(l.Text)
		if key == "" {
			continue
		}
		// First link with a given label wins.
		if _, ok := idx[key]; !ok {
			idx[key] = l.Href
		}
	}
	return idx
}

// resolveCourtURL returns the candidate's URL made absolute, falling back to
// a page link whose label matches the court name.
func resolveCourtURL(c model.CourtCandidate, base *url.URL, byLabel map[string]string) string {
	raw := c.URL
	if raw == "" {
		raw = byLabel[hierarchy.FoldName(c.Name)]
	}
	if raw == "" {
		return ""
	}
	ref, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if base != nil && !ref.IsAbs() {
		ref = base.ResolveReference(ref)
	}
	if ref.Scheme != "http" && ref.Scheme != "https" {
		return ""
	}
	return ref.String()
}
