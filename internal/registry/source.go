// Package registry tracks the court directory URLs polled by the pipeline
// and decides which of them are due for a re-check.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/db"
	"github.com/sells-group/court-inventory/internal/fetcher"
	"github.com/sells-group/court-inventory/internal/model"
)

// ErrNotFound is returned when a source id does not exist.
var ErrNotFound = eris.New("registry: source not found")

// DueSource is a source selected for processing, joined with its
// jurisdiction.
type DueSource struct {
	SourceID         int64
	JurisdictionID   int64
	URL              string
	JurisdictionName string
	JurisdictionType model.JurisdictionType
	LastChecked      *time.Time
	UpdateFrequency  time.Duration
}

// Jurisdiction returns the source's jurisdiction as a model value.
func (d DueSource) Jurisdiction() model.Jurisdiction {
	return model.Jurisdiction{ID: d.JurisdictionID, Name: d.JurisdictionName, Type: d.JurisdictionType}
}

// Filter narrows List.
type Filter struct {
	JurisdictionType model.JurisdictionType
	JurisdictionID   int64
	ActiveOnly       bool
	Limit            int
}

// Registry persists court sources.
type Registry struct {
	pool db.Pool
	log  *zap.Logger
}

// New creates a Registry over pool.
func New(pool db.Pool) *Registry {
	return &Registry{pool: pool, log: zap.L().With(zap.String("component", "registry"))}
}

// IsDue reports whether a source last checked at lastChecked should be
// processed at now. A source never checked is always due.
func IsDue(now time.Time, lastChecked *time.Time, frequency time.Duration) bool {
	if lastChecked == nil {
		return true
	}
	if frequency <= 0 {
		frequency = model.DefaultUpdateFrequency
	}
	return lastChecked.Before(now.Add(-frequency))
}

// Register adds a web source for jurisdictionID. See RegisterTyped.
func (r *Registry) Register(ctx context.Context, jurisdictionID int64, rawURL string) (bool, error) {
	return r.RegisterTyped(ctx, jurisdictionID, rawURL, "web")
}

// RegisterTyped normalizes rawURL and upserts it keyed on (jurisdiction,
// url). An existing inactive source is reactivated. created reports whether
// a new row was inserted.
func (r *Registry) RegisterTyped(ctx context.Context, jurisdictionID int64, rawURL, sourceType string) (bool, error) {
	u, err := fetcher.NormalizeURL(rawURL)
	if err != nil {
		return false, err
	}
	if sourceType == "" {
		sourceType = "web"
	}

	var created bool
	err = r.pool.QueryRow(ctx, `
		INSERT INTO court_sources (jurisdiction_id, source_url, source_type, update_frequency_secs)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (jurisdiction_id, source_url) DO UPDATE SET is_active = true
		RETURNING (xmax = 0)`,
		jurisdictionID, u, sourceType, int(model.DefaultUpdateFrequency.Seconds()),
	).Scan(&created)
	if err != nil {
		return false, eris.Wrapf(err, "registry: register %s", u)
	}

	r.log.Debug("source registered",
		zap.Int64("jurisdiction_id", jurisdictionID),
		zap.String("url", u),
		zap.Bool("created", created),
	)
	return created, nil
}

// Due returns active sources whose last check is older than their update
// frequency, ordered by jurisdiction name then source id. jt restricts the
// result to one jurisdiction type when non-empty.
func (r *Registry) Due(ctx context.Context, jt model.JurisdictionType) ([]DueSource, error) {
	query := `
		SELECT s.id, s.jurisdiction_id, s.source_url, j.name, j.type, s.last_checked, s.update_frequency_secs
		FROM court_sources s
		JOIN jurisdictions j ON j.id = s.jurisdiction_id
		WHERE s.is_active
		  AND (s.last_checked IS NULL OR s.last_checked < now() - make_interval(secs => s.update_frequency_secs))`
	var args []any
	if jt != "" {
		query += ` AND j.type = $1`
		args = append(args, string(jt))
	}
	query += ` ORDER BY j.name, s.id`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "registry: query due sources")
	}
	defer rows.Close()

	var out []DueSource
	for rows.Next() {
		var d DueSource
		var typ string
		var freqSecs int
		if err := rows.Scan(&d.SourceID, &d.JurisdictionID, &d.URL, &d.JurisdictionName, &typ, &d.LastChecked, &freqSecs); err != nil {
			return nil, eris.Wrap(err, "registry: scan due source")
		}
		d.JurisdictionType = model.JurisdictionType(typ)
		d.UpdateFrequency = time.Duration(freqSecs) * time.Second
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "registry: iterate due sources")
}

// CountDue returns how many active sources are overdue.
func (r *Registry) CountDue(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM court_sources
		WHERE is_active
		  AND (last_checked IS NULL OR last_checked < now() - make_interval(secs => update_frequency_secs))`,
	).Scan(&n)
	return n, eris.Wrap(err, "registry: count due sources")
}

// MarkChecked stamps last_checked, and last_updated too when the check
// changed any court.
func (r *Registry) MarkChecked(ctx context.Context, sourceID int64, changed bool) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE court_sources
		SET last_checked = now(),
		    last_updated = CASE WHEN $2 THEN now() ELSE last_updated END
		WHERE id = $1`, sourceID, changed)
	if err != nil {
		return eris.Wrapf(err, "registry: mark source %d checked", sourceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %d", sourceID)
	}
	return nil
}

// Deactivate stops a source from being selected by Due.
func (r *Registry) Deactivate(ctx context.Context, sourceID int64) error {
	tag, err := r.pool.Exec(ctx, `UPDATE court_sources SET is_active = false WHERE id = $1`, sourceID)
	if err != nil {
		return eris.Wrapf(err, "registry: deactivate source %d", sourceID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "id %d", sourceID)
	}
	r.log.Info("source deactivated", zap.Int64("source_id", sourceID))
	return nil
}

// List returns sources joined with their jurisdiction.
func (r *Registry) List(ctx context.Context, f Filter) ([]model.CourtSource, error) {
	query := `
		SELECT s.id, s.jurisdiction_id, j.name, j.type, s.source_url, s.source_type, s.is_active,
		       s.last_checked, s.last_updated, s.update_frequency_secs
		FROM court_sources s
		JOIN jurisdictions j ON j.id = s.jurisdiction_id
		WHERE true`
	var args []any
	argIdx := 1
	if f.JurisdictionType != "" {
		query += fmt.Sprintf(` AND j.type = $%d`, argIdx)
		args = append(args, string(f.JurisdictionType))
		argIdx++
	}
	if f.JurisdictionID > 0 {
		query += fmt.Sprintf(` AND s.jurisdiction_id = $%d`, argIdx)
		args = append(args, f.JurisdictionID)
		argIdx++
	}
	if f.ActiveOnly {
		query += ` AND s.is_active`
	}
	query += ` ORDER BY j.name, s.id`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, f.Limit)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "registry: list sources")
	}
	return pgx.CollectRows(rows, scanSource)
}

func scanSource(row pgx.CollectableRow) (model.CourtSource, error) {
	var s model.CourtSource
	var typ string
	var freqSecs int
	err := row.Scan(&s.ID, &s.JurisdictionID, &s.JurisdictionName, &typ, &s.URL, &s.SourceType, &s.IsActive,
		&s.LastChecked, &s.LastUpdated, &freqSecs)
	if err != nil {
		return s, eris.Wrap(err, "registry: scan source")
	}
	s.JurisdictionType = model.JurisdictionType(typ)
	s.UpdateFrequency = time.Duration(freqSecs) * time.Second
	return s, nil
}
