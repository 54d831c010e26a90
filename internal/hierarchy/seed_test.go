package hierarchy

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSeed(t *testing.T) {
	s, err := DefaultSeed()
	require.NoError(t, err)

	assert.Len(t, s.CourtTypes, 21)
	require.Len(t, s.Jurisdictions, 1)
	assert.Equal(t, "United States", s.Jurisdictions[0].Name)
	assert.Len(t, s.Jurisdictions[0].Children, 51)
	assert.Len(t, s.Sources, 6)
	assert.Len(t, s.Courts, 28)
	assert.Len(t, s.CountyCourts, 3)

	nodes, order := s.Paths()
	assert.Len(t, order, 1+51+30)
	assert.Contains(t, nodes, "United States/California/Orange County")
	assert.Contains(t, nodes, "United States/Florida/Orange County")
	assert.NotEqual(t,
		nodes["United States/California/Orange County"].ParentID,
		nodes["United States/Florida/Orange County"].ParentID)
}

func TestDefaultSeed_FederalAndCountyCourts(t *testing.T) {
	s, err := DefaultSeed()
	require.NoError(t, err)

	byType := make(map[string]int)
	byName := make(map[string]SeedCourt)
	for _, c := range s.AllCourts() {
		byType[c.Type]++
		byName[c.Name+"|"+c.Jurisdiction] = c
	}
	assert.Equal(t, 1, byType["Supreme Court"])
	assert.Equal(t, 13, byType["Courts of Appeals"])
	assert.Equal(t, 9, byType["District Courts"])
	assert.Equal(t, 5, byType["Bankruptcy Courts"])
	assert.Equal(t, 30, byType["County Superior Courts"])
	assert.Equal(t, 30, byType["County Family Courts"])
	assert.Equal(t, 30, byType["County Criminal Courts"])
	assert.Len(t, s.AllCourts(), 28+90)

	la, ok := byName["Los Angeles County Family Court|United States/California/Los Angeles County"]
	require.True(t, ok)
	assert.Equal(t, "Family Court Division, Los Angeles County, California", la.Address)
	assert.Equal(t, "Open", la.Status)

	_, ok = byName["Orange County Criminal Court|United States/Florida/Orange County"]
	assert.True(t, ok)
	_, ok = byName["U.S. Bankruptcy Court for the District of Delaware|United States"]
	assert.True(t, ok)
}

func TestSeed_AllCourtsWithoutTemplates(t *testing.T) {
	s, err := ParseSeed([]byte(smallSeed))
	require.NoError(t, err)
	assert.Equal(t, s.Courts, s.AllCourts())
}

func TestParseSeed_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "bad yaml",
			doc:  "court_types: [",
			want: "parse seed",
		},
		{
			name: "county under federal",
			doc: `
jurisdictions:
  - name: United States
    type: federal
    children:
      - name: Cook County
        type: county
`,
			want: "cannot have federal parent",
		},
		{
			name: "unknown court type parent",
			doc: `
court_types:
  - name: District Courts
    level: 3
    parent: Appeals
`,
			want: "unknown parent",
		},
		{
			name: "source with unknown jurisdiction",
			doc: `
jurisdictions:
  - name: United States
    type: federal
sources:
  - jurisdiction: United States/Ohio
    url: https://www.supremecourt.ohio.gov
`,
			want: "unknown jurisdiction",
		},
		{
			name: "court with bad status",
			doc: `
jurisdictions:
  - name: United States
    type: federal
courts:
  - name: Tax Court
    jurisdiction: United States
    status: Adjourned
`,
			want: "invalid status",
		},
		{
			name: "county court without suffix",
			doc: `
county_courts:
  - type: County Family Courts
`,
			want: "empty suffix",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSeed([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

const smallSeed = `
court_types:
  - name: Supreme Court
    level: 1
    description: Highest court in the federal judiciary
  - name: Courts of Appeals
    level: 2
    description: Federal appellate courts
    parent: Supreme Court
jurisdictions:
  - name: United States
    type: federal
    children:
      - name: California
        type: state
sources:
  - jurisdiction: United States/California
    url: https://www.courts.ca.gov
courts:
  - name: U.S. Court of Appeals for the Ninth Circuit
    type: Courts of Appeals
    jurisdiction: United States
    url: https://www.ca9.uscourts.gov
    lat: 37.7749
    lon: -122.4194
`

func TestSeeder_Apply(t *testing.T) {
	s, err := ParseSeed([]byte(smallSeed))
	require.NoError(t, err)

	mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_court_types"}, []string{"name", "level", "description"}).WillReturnResult(2)
	mock.ExpectExec(`INSERT INTO "court_types"`).WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()
	mock.ExpectExec("UPDATE court_types c SET parent_id").
		WithArgs([]string{"Courts of Appeals"}, []string{"Supreme Court"}).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO jurisdictions").
		WithArgs("United States", "federal", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO jurisdictions").
		WithArgs("California", "state", ptr(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(6)))
	mock.ExpectCommit()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_court_sources"},
		[]string{"jurisdiction_id", "source_url", "source_type", "update_frequency_secs"}).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "court_sources" .* DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	mock.ExpectQuery("FROM court_types ORDER BY level").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "level", "description", "parent_id"}).
			AddRow(int64(1), "Supreme Court", 1, "", nil).
			AddRow(int64(2), "Courts of Appeals", 2, "", ptr(1)))
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_courts"},
		[]string{"name", "type", "court_type_id", "url", "jurisdiction_id", "status", "address", "lat", "lon"}).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "courts" .* DO NOTHING`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	res, err := NewSeeder(mock).Apply(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.CourtTypes)
	assert.Equal(t, int64(2), res.Jurisdictions)
	assert.Equal(t, int64(1), res.Sources)
	assert.Equal(t, int64(1), res.Courts)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSeeder_ApplyRollsBackJurisdictionsOnError(t *testing.T) {
	s, err := ParseSeed([]byte(`
jurisdictions:
  - name: United States
    type: federal
    children:
      - name: Texas
        type: state
`))
	require.NoError(t, err)

	mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO jurisdictions").
		WithArgs("United States", "federal", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("INSERT INTO jurisdictions").
		WithArgs("Texas", "state", ptr(1)).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err = NewSeeder(mock).Apply(context.Background(), s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "seed jurisdictions")
	assert.NoError(t, mock.ExpectationsWereMet())
}
