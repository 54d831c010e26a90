package hierarchy

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/court-inventory/internal/db"
	"github.com/sells-group/court-inventory/internal/model"
)

//go:embed seed.yaml
var defaultSeed []byte

// PathSep separates jurisdiction names in a seed path, e.g.
// "United States/California".
const PathSep = "/"

// Seed is the baseline reference dataset.
type Seed struct {
	CourtTypes    []SeedCourtType    `yaml:"court_types"`
	Jurisdictions []SeedJurisdiction `yaml:"jurisdictions"`
	Sources       []SeedSource       `yaml:"sources"`
	Courts        []SeedCourt        `yaml:"courts"`
	CountyCourts  []SeedCountyCourt  `yaml:"county_courts"`
}

// SeedCountyCourt is a court created in every county of the tree. The court
// is named "<county> <suffix>" and addressed "<address>, <county>, <state>".
type SeedCountyCourt struct {
	Suffix  string `yaml:"suffix"`
	Type    string `yaml:"type"`
	Address string `yaml:"address"`
}

// SeedCourtType is a taxonomy node; Parent names another node.
type SeedCourtType struct {
	Name        string `yaml:"name"`
	Level       int    `yaml:"level"`
	Description string `yaml:"description"`
	Parent      string `yaml:"parent"`
}

// SeedJurisdiction is a jurisdiction and its subtree.
type SeedJurisdiction struct {
	Name     string             `yaml:"name"`
	Type     string             `yaml:"type"`
	Children []SeedJurisdiction `yaml:"children"`
}

// SeedSource is a directory URL attached to a jurisdiction path.
type SeedSource struct {
	Jurisdiction string `yaml:"jurisdiction"`
	URL          string `yaml:"url"`
	SourceType   string `yaml:"source_type"`
}

// SeedCourt is a court known ahead of any discovery run.
type SeedCourt struct {
	Name         string   `yaml:"name"`
	Type         string   `yaml:"type"`
	Jurisdiction string   `yaml:"jurisdiction"`
	URL          string   `yaml:"url"`
	Status       string   `yaml:"status"`
	Address      string   `yaml:"address"`
	Lat          *float64 `yaml:"lat"`
	Lon          *float64 `yaml:"lon"`
}

// SeedResult counts rows written by Apply.
type SeedResult struct {
	CourtTypes    int64
	Jurisdictions int64
	Sources       int64
	Courts        int64
}

// DefaultSeed parses the embedded dataset.
func DefaultSeed() (*Seed, error) {
	return ParseSeed(defaultSeed)
}

// ParseSeed decodes and validates a seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, eris.Wrap(err, "hierarchy: parse seed")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Paths flattens the jurisdiction tree into path → node, assigning synthetic
// ids in depth-first order.
func (s *Seed) Paths() (map[string]model.Jurisdiction, []string) {
	nodes := make(map[string]model.Jurisdiction)
	var order []string
	var next int64
	var walk func(prefix string, parentID *int64, js []SeedJurisdiction)
	walk = func(prefix string, parentID *int64, js []SeedJurisdiction) {
		for _, j := range js {
			next++
			id := next
			path := j.Name
			if prefix != "" {
				path = prefix + PathSep + j.Name
			}
			jt, _ := model.ParseJurisdictionType(j.Type)
			if !jt.Valid() {
				jt = model.JurisdictionType(j.Type)
			}
			nodes[path] = model.Jurisdiction{ID: id, Name: j.Name, Type: jt, ParentID: parentID}
			order = append(order, path)
			walk(path, &id, j.Children)
		}
	}
	walk("", nil, s.Jurisdictions)
	return nodes, order
}

// AllCourts returns the listed courts followed by the per-county courts
// generated from CountyCourts, in tree order.
func (s *Seed) AllCourts() []SeedCourt {
	out := append([]SeedCourt(nil), s.Courts...)
	if len(s.CountyCourts) == 0 {
		return out
	}
	nodes, order := s.Paths()
	for _, path := range order {
		n := nodes[path]
		if n.Type != model.JurisdictionCounty {
			continue
		}
		state := ""
		if i := strings.LastIndex(path, PathSep); i >= 0 {
			state = nodes[path[:i]].Name
		}
		for _, cc := range s.CountyCourts {
			out = append(out, SeedCourt{
				Name:         n.Name + " " + cc.Suffix,
				Type:         cc.Type,
				Jurisdiction: path,
				Status:       string(model.CourtOpen),
				Address:      fmt.Sprintf("%s, %s, %s", cc.Address, n.Name, state),
			})
		}
	}
	return out
}

// Validate checks the dataset before anything is written: the jurisdiction
// tree is well formed, court-type parents exist, and every source and court
// references a known jurisdiction path.
func (s *Seed) Validate() error {
	nodes, order := s.Paths()
	list := make([]model.Jurisdiction, 0, len(order))
	for _, p := range order {
		list = append(list, nodes[p])
	}
	if err := ValidateTree(list); err != nil {
		return err
	}

	var problems []string
	types := make(map[string]bool, len(s.CourtTypes))
	for _, ct := range s.CourtTypes {
		if ct.Name == "" {
			problems = append(problems, "court type with empty name")
		}
		if types[ct.Name] {
			problems = append(problems, fmt.Sprintf("duplicate court type %q", ct.Name))
		}
		types[ct.Name] = true
	}
	for _, ct := range s.CourtTypes {
		if ct.Parent != "" && !types[ct.Parent] {
			problems = append(problems, fmt.Sprintf("court type %q references unknown parent %q", ct.Name, ct.Parent))
		}
	}
	for _, src := range s.Sources {
		if _, ok := nodes[src.Jurisdiction]; !ok {
			problems = append(problems, fmt.Sprintf("source %s references unknown jurisdiction %q", src.URL, src.Jurisdiction))
		}
		if src.URL == "" {
			problems = append(problems, fmt.Sprintf("source for %q has no url", src.Jurisdiction))
		}
	}
	for _, cc := range s.CountyCourts {
		if cc.Suffix == "" {
			problems = append(problems, "county court with empty suffix")
		}
	}
	for _, c := range s.Courts {
		if _, ok := nodes[c.Jurisdiction]; !ok {
			problems = append(problems, fmt.Sprintf("court %q references unknown jurisdiction %q", c.Name, c.Jurisdiction))
		}
		if c.Status != "" {
			if _, ok := model.ParseCourtStatus(c.Status); !ok {
				problems = append(problems, fmt.Sprintf("court %q has invalid status %q", c.Name, c.Status))
			}
		}
	}
	if len(problems) > 0 {
		return eris.Errorf("hierarchy: invalid seed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Seeder writes a Seed to the database.
type Seeder struct {
	pool  db.Pool
	store *Store
	log   *zap.Logger
}

// NewSeeder creates a Seeder over pool.
func NewSeeder(pool db.Pool) *Seeder {
	return &Seeder{
		pool:  pool,
		store: NewStore(pool),
		log:   zap.L().With(zap.String("component", "seeder")),
	}
}

// Apply upserts court types, then the jurisdiction tree, then sources and
// courts. Existing rows are matched by their natural keys, so applying the
// same seed twice leaves ids unchanged. Sources and courts that already exist
// are left alone so operator deactivations and pipeline updates survive.
func (sd *Seeder) Apply(ctx context.Context, s *Seed) (*SeedResult, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	res := &SeedResult{}

	n, err := sd.applyCourtTypes(ctx, s.CourtTypes)
	if err != nil {
		return nil, err
	}
	res.CourtTypes = n

	ids, err := sd.applyJurisdictions(ctx, s)
	if err != nil {
		return nil, err
	}
	res.Jurisdictions = int64(len(ids))

	if res.Sources, err = sd.applySources(ctx, s.Sources, ids); err != nil {
		return nil, err
	}
	if res.Courts, err = sd.applyCourts(ctx, s.AllCourts(), ids); err != nil {
		return nil, err
	}

	sd.log.Info("seed applied",
		zap.Int64("court_types", res.CourtTypes),
		zap.Int64("jurisdictions", res.Jurisdictions),
		zap.Int64("sources", res.Sources),
		zap.Int64("courts", res.Courts),
	)
	return res, nil
}

func (sd *Seeder) applyCourtTypes(ctx context.Context, types []SeedCourtType) (int64, error) {
	if len(types) == 0 {
		return 0, nil
	}
	rows := make([][]any, 0, len(types))
	var children, parents []string
	for _, ct := range types {
		rows = append(rows, []any{ct.Name, ct.Level, ct.Description})
		if ct.Parent != "" {
			children = append(children, ct.Name)
			parents = append(parents, ct.Parent)
		}
	}

	n, err := db.BulkUpsert(ctx, sd.pool, db.UpsertConfig{
		Table:        "court_types",
		Columns:      []string{"name", "level", "description"},
		ConflictKeys: []string{"name"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "hierarchy: seed court types")
	}

	if len(children) > 0 {
		_, err = sd.pool.Exec(ctx, `
			UPDATE court_types c SET parent_id = p.id
			FROM unnest($1::text[], $2::text[]) AS v(child, parent)
			JOIN court_types p ON p.name = v.parent
			WHERE c.name = v.child`, children, parents)
		if err != nil {
			return 0, eris.Wrap(err, "hierarchy: link court type parents")
		}
	}
	return n, nil
}

func (sd *Seeder) applyJurisdictions(ctx context.Context, s *Seed) (map[string]int64, error) {
	nodes, order := s.Paths()
	ids := make(map[string]int64, len(order))
	err := db.WithTx(ctx, sd.pool, func(tx pgx.Tx) error {
		for _, path := range order {
			n := nodes[path]
			var parentID *int64
			if i := strings.LastIndex(path, PathSep); i >= 0 {
				pid := ids[path[:i]]
				parentID = &pid
			}
			id, err := insertJurisdiction(ctx, tx, n.Name, n.Type, parentID)
			if err != nil {
				return err
			}
			ids[path] = id
		}
		return nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "hierarchy: seed jurisdictions")
	}
	return ids, nil
}

func (sd *Seeder) applySources(ctx context.Context, sources []SeedSource, ids map[string]int64) (int64, error) {
	rows := make([][]any, 0, len(sources))
	for _, src := range sources {
		st := src.SourceType
		if st == "" {
			st = "web"
		}
		rows = append(rows, []any{ids[src.Jurisdiction], src.URL, st, int(model.DefaultUpdateFrequency.Seconds())})
	}
	n, err := db.BulkUpsert(ctx, sd.pool, db.UpsertConfig{
		Table:        "court_sources",
		Columns:      []string{"jurisdiction_id", "source_url", "source_type", "update_frequency_secs"},
		ConflictKeys: []string{"jurisdiction_id", "source_url"},
		DoNothing:    true,
	}, rows)
	return n, eris.Wrap(err, "hierarchy: seed sources")
}

func (sd *Seeder) applyCourts(ctx context.Context, courts []SeedCourt, ids map[string]int64) (int64, error) {
	if len(courts) == 0 {
		return 0, nil
	}
	tax, err := sd.store.Taxonomy(ctx)
	if err != nil {
		return 0, err
	}

	rows := make([][]any, 0, len(courts))
	for _, c := range courts {
		status := model.CourtOpen
		if parsed, ok := model.ParseCourtStatus(c.Status); ok {
			status = parsed
		}
		typ := c.Type
		var typeID *int64
		if ct, ok := tax.Match(c.Type); ok {
			typ = ct.Name
			id := ct.ID
			typeID = &id
		}
		rows = append(rows, []any{c.Name, typ, typeID, c.URL, ids[c.Jurisdiction], string(status), c.Address, c.Lat, c.Lon})
	}
	n, err := db.BulkUpsert(ctx, sd.pool, db.UpsertConfig{
		Table:        "courts",
		Columns:      []string{"name", "type", "court_type_id", "url", "jurisdiction_id", "status", "address", "lat", "lon"},
		ConflictKeys: []string{"name", "jurisdiction_id"},
		DoNothing:    true,
	}, rows)
	return n, eris.Wrap(err, "hierarchy: seed courts")
}
