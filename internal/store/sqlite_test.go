package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexrisk/internal/dataset"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_Contract(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Seed(context.Background(), loadTestFixtures(t)))
	storeContract(t, st)
}

func TestSQLite_MigrateIdempotent(t *testing.T) {
	st := newTestSQLiteStore(t)
	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, st.Ping(context.Background()))
}

func TestSQLite_SeedTwice(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	fx := loadTestFixtures(t)

	require.NoError(t, st.Seed(ctx, fx))
	require.NoError(t, st.Seed(ctx, fx))

	got, err := st.ListDatasets(ctx, "cotton", dataset.KindHarvest)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSQLite_SeedRejectsDuplicateYear(t *testing.T) {
	st := newTestSQLiteStore(t)
	fx := &Fixtures{Datasets: []dataset.GridDataset{
		{ID: "a", OwnerID: "o", Kind: dataset.KindHarvest, Table: "t", Column: "c", Year: 2020},
		{ID: "b", OwnerID: "o", Kind: dataset.KindHarvest, Table: "t", Column: "d", Year: 2020},
	}}
	assert.Error(t, st.Seed(context.Background(), fx))
}

func TestSQLite_ReseedUnderNewID(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	first := &Fixtures{Datasets: []dataset.GridDataset{
		{ID: "a", OwnerID: "o", Kind: dataset.KindHarvest, Table: "t", Column: "c", Resolution: 6, Year: 2020},
	}}
	second := &Fixtures{Datasets: []dataset.GridDataset{
		{ID: "a2", OwnerID: "o", Kind: dataset.KindHarvest, Table: "t", Column: "d", Resolution: 6, Year: 2020},
	}}
	require.NoError(t, st.Seed(ctx, first))
	require.NoError(t, st.Seed(ctx, second))

	got, err := st.ListDatasets(ctx, "o", dataset.KindHarvest)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a2", got[0].ID)
	assert.Equal(t, "d", got[0].Column)
}

func TestSQLite_ListDatasetsOrderedByYear(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	require.NoError(t, st.Seed(ctx, loadTestFixtures(t)))

	got, err := st.ListDatasets(ctx, "cotton", dataset.KindHarvest)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2010, got[0].Year)
	assert.Equal(t, "h3_grid_spam", got[1].Table)
	assert.Equal(t, "cotton_h_2020", got[1].Column)
	assert.Equal(t, dataset.KindHarvest, got[1].Kind)
}
