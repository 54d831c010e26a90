package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/db"
	"github.com/sells-group/court-inventory/internal/model"
)

// CourtFilter narrows court queries. Empty fields match everything.
type CourtFilter struct {
	Query          string
	Statuses       []model.CourtStatus
	Types          []string
	JurisdictionID int64
	Limit          int
	Offset         int
}

// CourtCounts aggregates courts by status and by type.
type CourtCounts struct {
	Total    int            `json:"total"`
	ByStatus map[string]int `json:"by_status"`
	ByType   map[string]int `json:"by_type"`
}

const upsertCourtSQL = `
	INSERT INTO courts (name, type, court_type_id, url, jurisdiction_id, status, lat, lon, address,
	                    contact_info, maintenance_notice, maintenance_start, maintenance_end, last_updated)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, now())
	ON CONFLICT (name, jurisdiction_id) DO UPDATE SET
		type = EXCLUDED.type,
		court_type_id = EXCLUDED.court_type_id,
		status = EXCLUDED.status,
		url = COALESCE(NULLIF(EXCLUDED.url, ''), courts.url),
		address = COALESCE(NULLIF(EXCLUDED.address, ''), courts.address),
		lat = COALESCE(EXCLUDED.lat, courts.lat),
		lon = COALESCE(EXCLUDED.lon, courts.lon),
		contact_info = COALESCE(EXCLUDED.contact_info, courts.contact_info),
		maintenance_notice = EXCLUDED.maintenance_notice,
		maintenance_start = EXCLUDED.maintenance_start,
		maintenance_end = EXCLUDED.maintenance_end,
		last_updated = now()
	RETURNING (xmax = 0)`

// UpsertCourt inserts or updates the court identified by (name,
// jurisdictionID). Only mutable fields change on conflict; an empty url or
// address and missing coordinates keep the stored values. created reports
// whether a new row was inserted.
func (s *Store) UpsertCourt(ctx context.Context, c model.VerifiedCourt, jurisdictionID int64) (bool, error) {
	name := strings.TrimSpace(c.Name)
	if name == "" {
		return false, eris.New("store: court name is required")
	}
	if _, ok := model.ParseCourtStatus(string(c.Status)); !ok {
		return false, eris.Errorf("store: invalid court status %q", c.Status)
	}

	var contact []byte
	if !c.ContactInfo.IsZero() {
		var err error
		if contact, err = json.Marshal(c.ContactInfo); err != nil {
			return false, eris.Wrap(err, "store: marshal contact info")
		}
	}

	var created bool
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, upsertCourtSQL,
			name, c.Type, c.CourtTypeID, c.URL, jurisdictionID, string(c.Status), c.Lat, c.Lon, c.Address,
			contact, c.MaintenanceNotice, c.MaintenanceStart, c.MaintenanceEnd,
		).Scan(&created)
	})
	if err != nil {
		return false, eris.Wrapf(err, "store: upsert court %q", name)
	}

	s.log.Debug("court upserted",
		zap.String("name", name),
		zap.Int64("jurisdiction_id", jurisdictionID),
		zap.Bool("created", created),
	)
	return created, nil
}

// SetCourtLocation stores geocoded coordinates for a court.
func (s *Store) SetCourtLocation(ctx context.Context, courtID int64, lat, lon float64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE courts SET lat = $2, lon = $3 WHERE id = $1`, courtID, lat, lon)
	if err != nil {
		return eris.Wrapf(err, "store: set location of court %d", courtID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "court %d", courtID)
	}
	return nil
}

const courtSelect = `
	SELECT c.id, c.name, c.type, c.court_type_id, c.url, c.jurisdiction_id, j.name, c.status,
	       c.lat, c.lon, c.address, c.contact_info, c.maintenance_notice, c.maintenance_start,
	       c.maintenance_end, c.last_updated
	FROM courts c
	JOIN jurisdictions j ON j.id = c.jurisdiction_id
	WHERE true`

func buildCourtQuery(f CourtFilter, extra string) (string, []any) {
	query := courtSelect
	args := []any{}
	argIdx := 1

	if q := strings.TrimSpace(f.Query); q != "" {
		query += fmt.Sprintf(" AND (c.name ILIKE $%d OR c.address ILIKE $%d OR j.name ILIKE $%d)", argIdx, argIdx, argIdx)
		args = append(args, "%"+q+"%")
		argIdx++
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		query += fmt.Sprintf(" AND c.status = ANY($%d)", argIdx)
		args = append(args, statuses)
		argIdx++
	}
	if len(f.Types) > 0 {
		query += fmt.Sprintf(" AND c.type = ANY($%d)", argIdx)
		args = append(args, f.Types)
		argIdx++
	}
	if f.JurisdictionID > 0 {
		query += fmt.Sprintf(" AND c.jurisdiction_id = $%d", argIdx)
		args = append(args, f.JurisdictionID)
		argIdx++
	}
	query += extra
	query += " ORDER BY c.name, c.id"

	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, f.Limit)
		argIdx++
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, f.Offset)
	}
	return query, args
}

// SearchCourts returns courts matching f, ordered by name.
func (s *Store) SearchCourts(ctx context.Context, f CourtFilter) ([]model.Court, error) {
	query, args := buildCourtQuery(f, "")
	return s.queryCourts(ctx, query, args)
}

// CourtPoints returns courts matching f that have coordinates.
func (s *Store) CourtPoints(ctx context.Context, f CourtFilter) ([]model.Court, error) {
	query, args := buildCourtQuery(f, " AND c.lat IS NOT NULL AND c.lon IS NOT NULL")
	return s.queryCourts(ctx, query, args)
}

// CourtsMissingLocation returns courts with an address but no coordinates.
func (s *Store) CourtsMissingLocation(ctx context.Context, limit int) ([]model.Court, error) {
	query, args := buildCourtQuery(CourtFilter{Limit: limit}, " AND c.address <> '' AND (c.lat IS NULL OR c.lon IS NULL)")
	return s.queryCourts(ctx, query, args)
}

func (s *Store) queryCourts(ctx context.Context, query string, args []any) ([]model.Court, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "store: query courts")
	}
	defer rows.Close()

	var courts []model.Court
	for rows.Next() {
		var c model.Court
		var status string
		var contact []byte
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.CourtTypeID, &c.URL, &c.JurisdictionID, &c.JurisdictionName,
			&status, &c.Lat, &c.Lon, &c.Address, &contact, &c.MaintenanceNotice, &c.MaintenanceStart,
			&c.MaintenanceEnd, &c.LastUpdated); err != nil {
			return nil, eris.Wrap(err, "store: scan court")
		}
		c.Status = model.CourtStatus(status)
		if len(contact) > 0 {
			c.ContactInfo = &model.ContactInfo{}
			if err := json.Unmarshal(contact, c.ContactInfo); err != nil {
				return nil, eris.Wrapf(err, "store: decode contact info of court %d", c.ID)
			}
		}
		courts = append(courts, c)
	}
	return courts, eris.Wrap(rows.Err(), "store: iterate courts")
}

// CourtCounts returns totals by status and by type.
func (s *Store) CourtCounts(ctx context.Context) (*CourtCounts, error) {
	counts := &CourtCounts{ByStatus: map[string]int{}, ByType: map[string]int{}}

	byStatus, err := s.groupCount(ctx, "SELECT status, count(*) FROM courts GROUP BY status")
	if err != nil {
		return nil, err
	}
	for k, n := range byStatus {
		counts.ByStatus[k] = n
		counts.Total += n
	}

	byType, err := s.groupCount(ctx, "SELECT type, count(*) FROM courts GROUP BY type")
	if err != nil {
		return nil, err
	}
	for k, n := range byType {
		if k == "" {
			k = "Unclassified"
		}
		counts.ByType[k] += n
	}
	return counts, nil
}

func (s *Store) groupCount(ctx context.Context, query string) (map[string]int, error) {
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "store: count courts")
	}
	defer rows.Close()

	out := map[string]int{}
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return nil, eris.Wrap(err, "store: scan court count")
		}
		out[key] = n
	}
	return out, eris.Wrap(rows.Err(), "store: iterate court counts")
}
