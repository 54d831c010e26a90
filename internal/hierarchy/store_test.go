package hierarchy

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/court-inventory/internal/model"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

var jurisdictionColumns = []string{"id", "name", "type", "parent_id"}

const (
	findByNameSQL = `FROM jurisdictions WHERE lower\(name\) = lower\(\$1\)`
	ancestorsSQL  = "WITH RECURSIVE chain"
)

func newMock(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return mock
}

func TestStore_Get(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM jurisdictions WHERE id = \$1`).
		WithArgs(int64(2)).
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).AddRow(int64(2), "California", "state", ptr(1)))

	j, err := NewStore(mock).Get(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, "California", j.Name)
	assert.Equal(t, model.JurisdictionState, j.Type)
	require.NotNil(t, j.ParentID)
	assert.Equal(t, int64(1), *j.ParentID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GetNotFound(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM jurisdictions WHERE id = \$1`).
		WithArgs(int64(404)).
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns))

	_, err := NewStore(mock).Get(context.Background(), 404)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestStore_Ancestors(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(ancestorsSQL).
		WithArgs(int64(4)).
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).
			AddRow(int64(4), "Orange County", "county", ptr(2)).
			AddRow(int64(2), "California", "state", ptr(1)).
			AddRow(int64(1), "United States", "federal", nil))

	chain, err := NewStore(mock).Ancestors(context.Background(), 4)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, "United States", chain[2].Name)
	assert.Nil(t, chain[2].ParentID)
}

func TestResolve_EmptyNameUsesScope(t *testing.T) {
	mock := newMock(t)
	scope := model.Jurisdiction{ID: 2, Name: "California", Type: model.JurisdictionState}

	j, err := NewStore(mock).Resolve(context.Background(), "  ", "", scope)
	require.NoError(t, err)
	assert.Equal(t, scope, j)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_SingleMatch(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(findByNameSQL).
		WithArgs("Texas", "state").
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).AddRow(int64(3), "Texas", "state", ptr(1)))

	j, err := NewStore(mock).Resolve(context.Background(), "Texas", "State", model.Jurisdiction{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(3), j.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_CountySuffix(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(findByNameSQL).
		WithArgs("Cook", "county").
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns))
	mock.ExpectQuery(findByNameSQL).
		WithArgs("Cook County", "county").
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).AddRow(int64(40), "Cook County", "county", ptr(14)))

	j, err := NewStore(mock).Resolve(context.Background(), "Cook", "county", model.Jurisdiction{ID: 14})
	require.NoError(t, err)
	assert.Equal(t, "Cook County", j.Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_AmbiguousPrefersScope(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(findByNameSQL).
		WithArgs("Orange County").
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).
			AddRow(int64(70), "Orange County", "county", ptr(5)).
			AddRow(int64(80), "Orange County", "county", ptr(10)))
	mock.ExpectQuery(ancestorsSQL).
		WithArgs(int64(10)).
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).
			AddRow(int64(10), "Florida", "state", ptr(1)).
			AddRow(int64(1), "United States", "federal", nil))

	scope := model.Jurisdiction{ID: 10, Name: "Florida", Type: model.JurisdictionState, ParentID: ptr(1)}
	j, err := NewStore(mock).Resolve(context.Background(), "Orange County", "", scope)
	require.NoError(t, err)
	assert.Equal(t, int64(80), j.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolve_AmbiguousOutsideScopeTakesFirst(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(findByNameSQL).
		WithArgs("Orange County").
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).
			AddRow(int64(70), "Orange County", "county", ptr(5)).
			AddRow(int64(80), "Orange County", "county", ptr(10)))
	mock.ExpectQuery(ancestorsSQL).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).
			AddRow(int64(1), "United States", "federal", nil))

	j, err := NewStore(mock).Resolve(context.Background(), "Orange County", "", model.Jurisdiction{ID: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(70), j.ID)
}

func TestResolve_Unknown(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(findByNameSQL).
		WithArgs("Atlantis", "state").
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns))

	_, err := NewStore(mock).Resolve(context.Background(), "Atlantis", "state", model.Jurisdiction{ID: 1})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownJurisdiction))
	assert.Contains(t, err.Error(), "Atlantis")
}

func TestStore_UpsertValidatesParent(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM jurisdictions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).AddRow(int64(1), "United States", "federal", nil))

	_, err := NewStore(mock).Upsert(context.Background(), mock, "Cook County", model.JurisdictionCounty, ptr(1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot have federal parent")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertInserts(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery(`FROM jurisdictions WHERE id = \$1`).
		WithArgs(int64(1)).
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).AddRow(int64(1), "United States", "federal", nil))
	mock.ExpectQuery("INSERT INTO jurisdictions").
		WithArgs("Ohio", "state", ptr(1)).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(36)))

	id, err := NewStore(mock).Upsert(context.Background(), mock, "Ohio", model.JurisdictionState, ptr(1))
	require.NoError(t, err)
	assert.Equal(t, int64(36), id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_Validate(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM jurisdictions ORDER BY name").
		WillReturnRows(pgxmock.NewRows(jurisdictionColumns).
			AddRow(int64(1), "United States", "federal", nil).
			AddRow(int64(2), "Cook County", "county", ptr(1)))

	err := NewStore(mock).Validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid tree")
}

func TestStore_Taxonomy(t *testing.T) {
	mock := newMock(t)
	mock.ExpectQuery("FROM court_types ORDER BY level").
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "level", "description", "parent_id"}).
			AddRow(int64(1), "Supreme Court", 1, "Highest court", nil).
			AddRow(int64(3), "District Courts", 3, "Federal trial courts", ptr(2)))

	tax, err := NewStore(mock).Taxonomy(context.Background())
	require.NoError(t, err)
	ct, ok := tax.Match("District Court")
	require.True(t, ok)
	assert.Equal(t, int64(3), ct.ID)
}
