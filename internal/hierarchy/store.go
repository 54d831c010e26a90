// Package hierarchy persists the jurisdiction tree and the court-type
// taxonomy, resolves free-text jurisdiction names against them, and seeds
// both from an embedded dataset.
package hierarchy

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/db"
	"github.com/sells-group/court-inventory/internal/model"
)

var (
	// ErrNotFound is returned when a jurisdiction id does not exist.
	ErrNotFound = eris.New("hierarchy: jurisdiction not found")
	// ErrUnknownJurisdiction is returned by Resolve for a name that matches
	// no jurisdiction.
	ErrUnknownJurisdiction = eris.New("hierarchy: unknown jurisdiction")
)

const jurisdictionCols = "id, name, type, parent_id"

// Store reads and writes jurisdictions and court types.
type Store struct {
	pool db.Pool
	log  *zap.Logger
}

// NewStore creates a Store over pool.
func NewStore(pool db.Pool) *Store {
	return &Store{pool: pool, log: zap.L().With(zap.String("component", "hierarchy"))}
}

func scanJurisdiction(row pgx.Row) (model.Jurisdiction, error) {
	var j model.Jurisdiction
	var typ string
	err := row.Scan(&j.ID, &j.Name, &typ, &j.ParentID)
	j.Type = model.JurisdictionType(typ)
	return j, err
}

func collectJurisdictions(rows pgx.Rows) ([]model.Jurisdiction, error) {
	defer rows.Close()
	var out []model.Jurisdiction
	for rows.Next() {
		j, err := scanJurisdiction(rows)
		if err != nil {
			return nil, eris.Wrap(err, "hierarchy: scan jurisdiction")
		}
		out = append(out, j)
	}
	return out, eris.Wrap(rows.Err(), "hierarchy: iterate jurisdictions")
}

// Get returns the jurisdiction with id.
func (s *Store) Get(ctx context.Context, id int64) (model.Jurisdiction, error) {
	j, err := scanJurisdiction(s.pool.QueryRow(ctx,
		"SELECT "+jurisdictionCols+" FROM jurisdictions WHERE id = $1", id))
	if eris.Is(err, pgx.ErrNoRows) {
		return model.Jurisdiction{}, eris.Wrapf(ErrNotFound, "id %d", id)
	}
	if err != nil {
		return model.Jurisdiction{}, eris.Wrapf(err, "hierarchy: get jurisdiction %d", id)
	}
	return j, nil
}

// List returns jurisdictions ordered by name, optionally of a single type.
func (s *Store) List(ctx context.Context, typ model.JurisdictionType) ([]model.Jurisdiction, error) {
	var rows pgx.Rows
	var err error
	if typ == "" {
		rows, err = s.pool.Query(ctx, "SELECT "+jurisdictionCols+" FROM jurisdictions ORDER BY name, id")
	} else {
		rows, err = s.pool.Query(ctx, "SELECT "+jurisdictionCols+" FROM jurisdictions WHERE type = $1 ORDER BY name, id", string(typ))
	}
	if err != nil {
		return nil, eris.Wrap(err, "hierarchy: list jurisdictions")
	}
	return collectJurisdictions(rows)
}

// Children returns the direct children of parentID.
func (s *Store) Children(ctx context.Context, parentID int64) ([]model.Jurisdiction, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT "+jurisdictionCols+" FROM jurisdictions WHERE parent_id = $1 ORDER BY name, id", parentID)
	if err != nil {
		return nil, eris.Wrap(err, "hierarchy: list children")
	}
	return collectJurisdictions(rows)
}

// Ancestors returns id's chain from the node itself up to the root.
func (s *Store) Ancestors(ctx context.Context, id int64) ([]model.Jurisdiction, error) {
	rows, err := s.pool.Query(ctx, `
		WITH RECURSIVE chain AS (
			SELECT id, name, type, parent_id, 0 AS depth FROM jurisdictions WHERE id = $1
			UNION ALL
			SELECT j.id, j.name, j.type, j.parent_id, c.depth + 1
			FROM jurisdictions j JOIN chain c ON j.id = c.parent_id
			WHERE c.depth < 16
		)
		SELECT id, name, type, parent_id FROM chain ORDER BY depth`, id)
	if err != nil {
		return nil, eris.Wrap(err, "hierarchy: load ancestors")
	}
	return collectJurisdictions(rows)
}

// FindByName returns jurisdictions whose name matches case-insensitively,
// optionally restricted to a type.
func (s *Store) FindByName(ctx context.Context, name string, typ model.JurisdictionType) ([]model.Jurisdiction, error) {
	name = strings.Join(strings.Fields(name), " ")
	var rows pgx.Rows
	var err error
	if typ == "" {
		rows, err = s.pool.Query(ctx,
			"SELECT "+jurisdictionCols+" FROM jurisdictions WHERE lower(name) = lower($1) ORDER BY id", name)
	} else {
		rows, err = s.pool.Query(ctx,
			"SELECT "+jurisdictionCols+" FROM jurisdictions WHERE lower(name) = lower($1) AND type = $2 ORDER BY id", name, string(typ))
	}
	if err != nil {
		return nil, eris.Wrap(err, "hierarchy: find jurisdiction")
	}
	return collectJurisdictions(rows)
}

// Resolve maps a free-text jurisdiction onto a stored node. An empty name
// resolves to scope (the jurisdiction of the source being processed). A
// county name is also tried with a " County" suffix. When several nodes share
// the name, the one inside scope's chain wins, so "Orange County" found on a
// California page resolves to the California county.
func (s *Store) Resolve(ctx context.Context, name, typ string, scope model.Jurisdiction) (model.Jurisdiction, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return scope, nil
	}

	jt, _ := model.ParseJurisdictionType(typ)
	matches, err := s.FindByName(ctx, name, jt)
	if err != nil {
		return model.Jurisdiction{}, err
	}
	if len(matches) == 0 && (jt == "" || jt == model.JurisdictionCounty) && !strings.HasSuffix(strings.ToLower(name), " county") {
		matches, err = s.FindByName(ctx, name+" County", model.JurisdictionCounty)
		if err != nil {
			return model.Jurisdiction{}, err
		}
	}

	switch len(matches) {
	case 0:
		return model.Jurisdiction{}, eris.Wrapf(ErrUnknownJurisdiction, "%q", name)
	case 1:
		return matches[0], nil
	}

	chain, err := s.Ancestors(ctx, scope.ID)
	if err != nil {
		return model.Jurisdiction{}, err
	}
	if best, ok := pickInScope(matches, chain); ok {
		return best, nil
	}
	s.log.Warn("ambiguous jurisdiction name, using first match",
		zap.String("name", name),
		zap.Int("matches", len(matches)),
		zap.Int64("scope_id", scope.ID),
	)
	return matches[0], nil
}

// pickInScope prefers a match that is a node of chain, then one whose parent
// is a node of chain.
func pickInScope(matches, chain []model.Jurisdiction) (model.Jurisdiction, bool) {
	inChain := make(map[int64]bool, len(chain))
	for _, c := range chain {
		inChain[c.ID] = true
	}
	for _, m := range matches {
		if inChain[m.ID] {
			return m, true
		}
	}
	for _, m := range matches {
		if m.ParentID != nil && inChain[*m.ParentID] {
			return m, true
		}
	}
	return model.Jurisdiction{}, false
}

// Upsert inserts a jurisdiction under parentID (nil for the root) after
// checking parent-type consistency, returning its id. Re-running with the
// same (name, type, parent) returns the existing id.
func (s *Store) Upsert(ctx context.Context, q db.Querier, name string, typ model.JurisdictionType, parentID *int64) (int64, error) {
	var parent *model.Jurisdiction
	if parentID != nil {
		p, err := scanJurisdiction(q.QueryRow(ctx,
			"SELECT "+jurisdictionCols+" FROM jurisdictions WHERE id = $1", *parentID))
		if eris.Is(err, pgx.ErrNoRows) {
			return 0, eris.Wrapf(ErrNotFound, "parent %d of %q", *parentID, name)
		}
		if err != nil {
			return 0, eris.Wrap(err, "hierarchy: load parent")
		}
		parent = &p
	}
	if err := ValidateParent(typ, parent); err != nil {
		return 0, err
	}

	return insertJurisdiction(ctx, q, name, typ, parentID)
}

func insertJurisdiction(ctx context.Context, q db.Querier, name string, typ model.JurisdictionType, parentID *int64) (int64, error) {
	var id int64
	err := q.QueryRow(ctx, `
		INSERT INTO jurisdictions (name, type, parent_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (name, type, parent_id) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`, name, string(typ), parentID).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "hierarchy: upsert jurisdiction %q", name)
	}
	return id, nil
}

// Validate loads every jurisdiction and checks the whole tree.
func (s *Store) Validate(ctx context.Context) error {
	all, err := s.List(ctx, "")
	if err != nil {
		return err
	}
	return ValidateTree(all)
}

// CourtTypes returns the taxonomy ordered by level then name.
func (s *Store) CourtTypes(ctx context.Context) ([]model.CourtType, error) {
	rows, err := s.pool.Query(ctx,
		"SELECT id, name, level, description, parent_id FROM court_types ORDER BY level, name")
	if err != nil {
		return nil, eris.Wrap(err, "hierarchy: list court types")
	}
	defer rows.Close()

	var out []model.CourtType
	for rows.Next() {
		var ct model.CourtType
		if err := rows.Scan(&ct.ID, &ct.Name, &ct.Level, &ct.Description, &ct.ParentID); err != nil {
			return nil, eris.Wrap(err, "hierarchy: scan court type")
		}
		out = append(out, ct)
	}
	return out, eris.Wrap(rows.Err(), "hierarchy: iterate court types")
}

// Taxonomy loads the court types into a matcher.
func (s *Store) Taxonomy(ctx context.Context) (*Taxonomy, error) {
	types, err := s.CourtTypes(ctx)
	if err != nil {
		return nil, err
	}
	return NewTaxonomy(types), nil
}
