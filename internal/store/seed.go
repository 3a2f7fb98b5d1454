package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/db"
	"github.com/sells-group/hexrisk/internal/hierarchy"
)

// Seed loads fx into Postgres. Datasets are upserted by owner, kind and
// year, other reference rows by id; the cells of every seeded location are
// replaced.
func (s *PostgresStore) Seed(ctx context.Context, fx *Fixtures) error {
	if err := fx.Validate(); err != nil {
		return err
	}

	datasetRows := make([][]any, len(fx.Datasets))
	for i, d := range fx.Datasets {
		datasetRows[i] = []any{d.ID, d.OwnerID, string(d.Kind), d.Table, d.Column, d.Resolution, d.Year}
	}
	// Datasets merge on (owner_id, kind, year) so a reseed may re-key a slot.
	if err := s.upsert(ctx, datasetsTable, []string{"id", "owner_id", "kind", "table_name", "column_name", "resolution", "year"}, []string{"owner_id", "kind", "year"}, datasetRows); err != nil {
		return err
	}

	indicatorRows := make([][]any, len(fx.Indicators))
	for i, ind := range fx.Indicators {
		deps := ind.DependsOn
		if deps == nil {
			deps = []string{}
		}
		indicatorRows[i] = []any{ind.ID, ind.Code, ind.Name, ind.Unit, ind.CalculusFactor, deps}
	}
	if err := s.upsert(ctx, indicatorsTable, []string{"id", "code", "name", "unit", "calculus_factor", "depends_on"}, []string{"id"}, indicatorRows); err != nil {
		return err
	}

	for _, entity := range hierarchy.Entities() {
		nodes := fx.Hierarchy[entity]
		rows := make([][]any, len(nodes))
		for i, n := range nodes {
			rows[i] = []any{n.ID, nullable(n.ParentID)}
		}
		if err := s.upsert(ctx, string(entity), []string{"id", "parent_id"}, []string{"id"}, rows); err != nil {
			return err
		}
	}

	if err := s.seedLocations(ctx, fx); err != nil {
		return err
	}

	for _, g := range fx.Grids {
		if err := s.seedGrid(ctx, g); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) upsert(ctx context.Context, table string, columns, keys []string, rows [][]any) error {
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        table,
		Columns:      columns,
		ConflictKeys: keys,
	}, rows)
	if err != nil {
		return eris.Wrapf(err, "postgres: seed %s", table)
	}
	if n > 0 {
		zap.L().Info("postgres: seeded", zap.String("table", table), zap.Int64("rows", n))
	}
	return nil
}

func (s *PostgresStore) seedLocations(ctx context.Context, fx *Fixtures) error {
	if len(fx.Locations) == 0 {
		return nil
	}

	ids := make([]string, len(fx.Locations))
	rows := make([][]any, len(fx.Locations))
	var cells [][]any
	for i, loc := range fx.Locations {
		ids[i] = loc.ID
		rows[i] = []any{
			loc.ID, loc.MaterialID, nullable(loc.OriginID), nullable(loc.SupplierID),
			nullable(loc.ProducerID), loc.LocationType, nullable(loc.ScenarioID),
		}
		for _, c := range mergeIDs(loc.Cells, nil) {
			cells = append(cells, []any{loc.ID, c})
		}
	}
	if err := s.upsert(ctx, "sourcing_locations",
		[]string{"id", "material_id", "admin_region_id", "t1_supplier_id", "producer_id", "location_type", "scenario_id"},
		[]string{"id"}, rows); err != nil {
		return err
	}

	if _, err := s.pool.Exec(ctx, `DELETE FROM sourcing_location_cells WHERE location_id = ANY($1)`, ids); err != nil {
		return eris.Wrap(err, "postgres: clear location cells")
	}
	if _, err := db.CopyFrom(ctx, s.pool, "sourcing_location_cells", []string{"location_id", "h3index"}, cells); err != nil {
		return eris.Wrap(err, "postgres: seed location cells")
	}
	return nil
}

// gridTableSQL renders the DDL of a grid table with the given value columns.
func gridTableSQL(table string, columns []string, valueType string) string {
	defs := []string{pgx.Identifier{"h3index"}.Sanitize() + " TEXT PRIMARY KEY"}
	for _, c := range columns {
		defs = append(defs, pgx.Identifier{c}.Sanitize()+" "+valueType)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize(), strings.Join(defs, ", "))
}

func (s *PostgresStore) seedGrid(ctx context.Context, g Grid) error {
	columns := g.ColumnNames()
	if _, err := s.pool.Exec(ctx, gridTableSQL(g.Table, columns, "DOUBLE PRECISION")); err != nil {
		return eris.Wrapf(err, "postgres: create grid %s", g.Table)
	}
	return s.upsert(ctx, g.Table, append([]string{"h3index"}, columns...), []string{"h3index"}, g.Rows())
}
