package discovery

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/court-inventory/internal/hierarchy"
	"github.com/sells-group/court-inventory/internal/model"
)

// Reason explains a verification outcome.
type Reason string

const (
	ReasonAccepted      Reason = "accepted"
	ReasonUnverified    Reason = "unverified"
	ReasonLowConfidence Reason = "low_confidence"
	ReasonError         Reason = "verify_error"
)

// Decision is the verification outcome for one candidate.
type Decision struct {
	Candidate    model.CourtCandidate
	Verification model.Verification
	Accepted     bool
	Reason       Reason
	Err          error
}

// Accept reports whether v passes: verified and confidence strictly above
// threshold.
func Accept(v model.Verification, threshold float64) (bool, Reason) {
	if !v.Verified {
		return false, ReasonUnverified
	}
	if v.Confidence <= threshold {
		return false, ReasonLowConfidence
	}
	return true, ReasonAccepted
}

// Verify asks the model to confirm and classify one candidate.
func (e *Engine) Verify(ctx context.Context, c model.CourtCandidate) (Decision, error) {
	d := Decision{Candidate: c}

	payload, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		d.Reason, d.Err = ReasonError, eris.Wrap(err, "discovery: marshal candidate")
		return d, d.Err
	}

	raw, err := e.call(ctx, EndpointVerify, verifySystemPrompt(e.cfg.CourtTypes), verifyUserPrompt(payload))
	if err != nil {
		d.Reason, d.Err = ReasonError, err
		return d, err
	}

	v, err := parseVerification(raw)
	if err != nil {
		d.Reason, d.Err = ReasonError, err
		return d, err
	}

	d.Verification = v
	d.Accepted, d.Reason = Accept(v, e.cfg.Threshold)
	return d, nil
}

// VerifyAll verifies candidates with bounded parallelism and returns the
// decisions in candidate order. A failed verification drops only its own
// candidate; its Decision carries the error.
func (e *Engine) VerifyAll(ctx context.Context, candidates []model.CourtCandidate) []Decision {
	out := make([]Decision, len(candidates))

	var g errgroup.Group
	g.SetLimit(e.cfg.VerifyConcurrency)
	for i, c := range candidates {
		g.Go(func() error {
			d, err := e.Verify(ctx, c)
			if err != nil {
				e.log.Warn("verify candidate failed",
					zap.String("court", c.Name),
					zap.Error(err),
				)
			}
			out[i] = d
			return nil
		})
	}
	_ = g.Wait()

	return out
}

func parseVerification(raw string) (model.Verification, error) {
	tree, err := UnwrapPayload(raw)
	if err != nil {
		return model.Verification{}, err
	}
	m, ok := tree.(map[string]any)
	if !ok {
		if list, isList := tree.([]any); isList && len(list) > 0 {
			m, ok = list[0].(map[string]any)
		}
	}
	if !ok {
		return model.Verification{}, eris.New("discovery: verification is not an object")
	}
	if _, has := m["verified"]; !has {
		if _, has := m["confidence"]; !has {
			return model.Verification{}, eris.New("discovery: verification has no verdict")
		}
	}

	conf, _ := toFloat64(m["confidence"])
	// Some replies use a 0-100 scale.
	if conf > 1 && conf <= 100 {
		conf /= 100
	}
	if conf < 0 || conf > 1 {
		return model.Verification{}, eris.Errorf("discovery: confidence %v out of range", m["confidence"])
	}

	return model.Verification{
		Verified:          toBool(m["verified"]),
		Confidence:        conf,
		CourtType:         str(m["court_type"]),
		Status:            str(m["status"]),
		Address:           str(m["address"]),
		ContactInfo:       parseContact(m["contact_info"]),
		MaintenanceNotice: str(m["maintenance_notice"]),
		MaintenanceStart:  parseDate(str(m["maintenance_start"])),
		MaintenanceEnd:    parseDate(str(m["maintenance_end"])),
		AdditionalInfo:    str(m["additional_info"]),
	}, nil
}

// parseDate reads YYYY-MM-DD or RFC3339, returning nil for anything else.
func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// Court builds the record to persist for an accepted decision. The type is
// the canonical taxonomy label when the verified (or extracted) label matches
// one; otherwise the label is kept as free text and matched is false.
func (d Decision) Court(tax *hierarchy.Taxonomy) (vc model.VerifiedCourt, matched bool) {
	c, v := d.Candidate, d.Verification

	vc = model.VerifiedCourt{
		Name:              strings.TrimSpace(c.Name),
		URL:               c.URL,
		Address:           firstNonEmpty(v.Address, c.Address),
		ContactInfo:       v.ContactInfo,
		MaintenanceNotice: v.MaintenanceNotice,
		MaintenanceStart:  v.MaintenanceStart,
		MaintenanceEnd:    v.MaintenanceEnd,
		Confidence:        v.Confidence,
	}
	if vc.ContactInfo.IsZero() {
		vc.ContactInfo = c.ContactInfo
	}

	vc.Status = model.CourtOpen
	for _, label := range []string{v.Status, c.Status} {
		if s, ok := model.ParseCourtStatus(label); ok {
			vc.Status = s
			break
		}
	}

	for _, label := range []string{v.CourtType, c.Type} {
		if ct, ok := tax.Match(label); ok {
			id := ct.ID
			vc.Type, vc.CourtTypeID = ct.Name, &id
			return vc, true
		}
	}
	vc.Type = firstNonEmpty(v.CourtType, c.Type)
	return vc, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
