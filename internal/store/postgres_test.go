package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/hierarchy"
	"github.com/sells-group/hexrisk/internal/indicator"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

func TestPostgresStore_ListDatasets(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, owner_id, kind, table_name, column_name, resolution, year FROM datasets WHERE owner_id = \$1 AND kind = \$2`).
		WithArgs("cotton", "harvest").
		WillReturnRows(pgxmock.NewRows([]string{"id", "owner_id", "kind", "table_name", "column_name", "resolution", "year"}).
			AddRow("spam-2010", "cotton", "harvest", "h3_grid_spam", "cotton_h_2010", 6, 2010).
			AddRow("spam-2020", "cotton", "harvest", "h3_grid_spam", "cotton_h_2020", 6, 2020))

	got, err := s.ListDatasets(context.Background(), "cotton", dataset.KindHarvest)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, dataset.GridDataset{
		ID: "spam-2020", OwnerID: "cotton", Kind: dataset.KindHarvest,
		Table: "h3_grid_spam", Column: "cotton_h_2020", Resolution: 6, Year: 2020,
	}, got[1])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListDatasets_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM datasets`).
		WithArgs("cotton", "producer").
		WillReturnError(errors.New("connection reset"))

	_, err := s.ListDatasets(context.Background(), "cotton", dataset.KindProducer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "list datasets cotton/producer")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT id, code, name, unit, calculus_factor, depends_on FROM indicators WHERE id = \$1`).
		WithArgs("ind-bio").
		WillReturnRows(pgxmock.NewRows([]string{"id", "code", "name", "unit", "calculus_factor", "depends_on"}).
			AddRow("ind-bio", "biodiversity-loss", "Biodiversity loss", "PDF/year", 2.0, []string{"deforestation"}))

	ind, err := s.Get(context.Background(), "ind-bio")
	require.NoError(t, err)
	assert.Equal(t, &indicator.Indicator{
		ID: "ind-bio", Code: "biodiversity-loss", Name: "Biodiversity loss",
		Unit: "PDF/year", CalculusFactor: 2, DependsOn: []string{"deforestation"},
	}, ind)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetByCode_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM indicators WHERE code = \$1`).
		WithArgs("carbon-emissions").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetByCode(context.Background(), indicator.CodeCarbonEmissions)
	assert.ErrorIs(t, err, indicator.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Expand(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`WITH RECURSIVE tree AS \(\s+SELECT id FROM "materials" WHERE id = ANY\(\$1\)`).
		WithArgs([]string{"cotton", "ghost"}).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("cotton").AddRow("cotton-lint"))

	got, err := s.Expand(context.Background(), hierarchy.Materials, []string{"cotton", "ghost"})
	require.NoError(t, err)
	assert.Equal(t, []string{"cotton", "cotton-lint", "ghost"}, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Expand_UnknownEntity(t *testing.T) {
	s, _ := newMockPostgresStore(t)
	_, err := s.Expand(context.Background(), "plants; --", []string{"x"})
	assert.Error(t, err)
}

func TestPostgresStore_Join(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	plan := compose.NewPlan(
		indicator.Binding{Slot: indicator.SlotIndicator, Dataset: dataset.GridDataset{ID: "def", Table: "h3_grid_def", Column: "hansen_loss", Resolution: 6}},
		indicator.Binding{Slot: indicator.SlotHarvest, Dataset: dataset.GridDataset{ID: "harv", Table: "h3_grid_spam", Column: "cotton_h", Resolution: 6}},
	)

	mock.ExpectQuery(`FROM "h3_grid_def" t0\s+JOIN "h3_grid_spam" t1 ON t1."h3index" = t0."h3index"`).
		WillReturnRows(pgxmock.NewRows([]string{"h3index", "v0", "v1"}).
			AddRow("cell-a", 2.0, 10.0).
			AddRow("cell-c", 1.5, 4.0))

	rows, err := s.Join(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []compose.Row{
		{Cell: "cell-a", Values: map[indicator.Slot]float64{indicator.SlotIndicator: 2, indicator.SlotHarvest: 10}},
		{Cell: "cell-c", Values: map[indicator.Slot]float64{indicator.SlotIndicator: 1.5, indicator.SlotHarvest: 4}},
	}, rows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Join_Error(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	plan := compose.NewPlan(
		indicator.Binding{Slot: indicator.SlotIndicator, Dataset: dataset.GridDataset{ID: "def", Table: "h3_grid_def", Column: "hansen_loss", Resolution: 6}},
	)
	mock.ExpectQuery(`FROM "h3_grid_def"`).WillReturnError(errors.New(`relation "h3_grid_def" does not exist`))

	_, err := s.Join(context.Background(), plan)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: join")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SumByLocation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	plan := compose.ImpactPlan{
		Dataset: dataset.GridDataset{ID: "wf", Table: "h3_grid_wf", Column: "wf_total", Resolution: 6},
		Filter:  compose.LocationFilter{MaterialIDs: []string{"cotton"}},
	}
	mock.ExpectQuery(`FROM sourcing_locations sl`).
		WithArgs([]string{"cotton"}).
		WillReturnRows(pgxmock.NewRows([]string{"h3index", "value"}).
			AddRow("cell-a", 1.0).
			AddRow("cell-b", 4.0))

	cells, err := s.SumByLocation(context.Background(), plan)
	require.NoError(t, err)
	assert.Equal(t, []hexgrid.CellValue{{Cell: "cell-a", Value: 1}, {Cell: "cell-b", Value: 4}}, cells)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS datasets`).WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Ping(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`SELECT 1`).WillReturnError(errors.New("down"))

	err := s.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: ping")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SeedLocations(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	fx := &Fixtures{Locations: []compose.Location{
		{ID: "l1", MaterialID: "cotton", LocationType: "unknown", Cells: []string{"a", "b"}},
	}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_sourcing_locations"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_sourcing_locations"},
		[]string{"id", "material_id", "admin_region_id", "t1_supplier_id", "producer_id", "location_type", "scenario_id"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "sourcing_locations"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()
	mock.ExpectExec(`DELETE FROM sourcing_location_cells WHERE location_id = ANY\(\$1\)`).
		WithArgs([]string{"l1"}).
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"sourcing_location_cells"}, []string{"location_id", "h3index"}).WillReturnResult(2)

	require.NoError(t, s.Seed(context.Background(), fx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SeedDatasetsMergeOnOwnerKindYear(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	fx := &Fixtures{Datasets: []dataset.GridDataset{
		{ID: "def-v2", OwnerID: "def", Kind: dataset.KindIndicator, Table: "h3_grid_def", Column: "hansen_loss", Resolution: 6, Year: 2020},
	}}

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE "_tmp_upsert_datasets"`).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_datasets"},
		[]string{"id", "owner_id", "kind", "table_name", "column_name", "resolution", "year"}).
		WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "datasets" .* ON CONFLICT \("owner_id", "kind", "year"\) DO UPDATE SET "id" = EXCLUDED."id", "table_name" = EXCLUDED."table_name", "column_name" = EXCLUDED."column_name", "resolution" = EXCLUDED."resolution"$`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, s.Seed(context.Background(), fx))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGridTableSQL(t *testing.T) {
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "grids"."h3_grid_def" ("h3index" TEXT PRIMARY KEY, "a" DOUBLE PRECISION, "b" DOUBLE PRECISION)`,
		gridTableSQL("grids.h3_grid_def", []string{"a", "b"}, "DOUBLE PRECISION"))
}
