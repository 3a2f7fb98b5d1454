package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/hierarchy"
	"github.com/sells-group/hexrisk/internal/indicator"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS datasets (
	id          TEXT PRIMARY KEY,
	owner_id    TEXT NOT NULL,
	kind        TEXT NOT NULL CHECK (kind IN ('producer', 'harvest', 'indicator')),
	table_name  TEXT NOT NULL,
	column_name TEXT NOT NULL,
	resolution  INTEGER NOT NULL DEFAULT 6,
	year        INTEGER NOT NULL,
	UNIQUE (owner_id, kind, year)
);

CREATE TABLE IF NOT EXISTS indicators (
	id              TEXT PRIMARY KEY,
	code            TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	unit            TEXT NOT NULL DEFAULT '',
	calculus_factor REAL NOT NULL DEFAULT 0,
	depends_on      TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS materials (
	id        TEXT PRIMARY KEY,
	parent_id TEXT
);

CREATE TABLE IF NOT EXISTS admin_regions (
	id        TEXT PRIMARY KEY,
	parent_id TEXT
);

CREATE TABLE IF NOT EXISTS suppliers (
	id        TEXT PRIMARY KEY,
	parent_id TEXT
);

CREATE TABLE IF NOT EXISTS sourcing_locations (
	id              TEXT PRIMARY KEY,
	material_id     TEXT NOT NULL,
	admin_region_id TEXT,
	t1_supplier_id  TEXT,
	producer_id     TEXT,
	location_type   TEXT NOT NULL DEFAULT 'unknown',
	scenario_id     TEXT
);

CREATE TABLE IF NOT EXISTS sourcing_location_cells (
	location_id TEXT NOT NULL REFERENCES sourcing_locations(id) ON DELETE CASCADE,
	h3index     TEXT NOT NULL,
	PRIMARY KEY (location_id, h3index)
);

CREATE INDEX IF NOT EXISTS idx_datasets_owner_kind ON datasets(owner_id, kind);
CREATE INDEX IF NOT EXISTS idx_materials_parent ON materials(parent_id);
CREATE INDEX IF NOT EXISTS idx_admin_regions_parent ON admin_regions(parent_id);
CREATE INDEX IF NOT EXISTS idx_suppliers_parent ON suppliers(parent_id);
CREATE INDEX IF NOT EXISTS idx_sourcing_location_cells_h3 ON sourcing_location_cells(h3index);
`

// Migrate creates the reference schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

// Ping checks the database handle.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ListDatasets implements dataset.Lookup.
func (s *SQLiteStore) ListDatasets(ctx context.Context, ownerID string, kind dataset.Kind) ([]dataset.GridDataset, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+listDatasetsColumns+` FROM datasets WHERE owner_id = ? AND kind = ? ORDER BY year`,
		ownerID, string(kind),
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list datasets %s/%s", ownerID, kind)
	}
	defer rows.Close()

	var out []dataset.GridDataset
	for rows.Next() {
		var d dataset.GridDataset
		var k string
		if err := rows.Scan(&d.ID, &d.OwnerID, &k, &d.Table, &d.Column, &d.Resolution, &d.Year); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan dataset")
		}
		d.Kind = dataset.Kind(k)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate datasets")
}

// Get implements indicator.Catalog.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*indicator.Indicator, error) {
	return s.getIndicator(ctx, "id", id)
}

// GetByCode implements indicator.Catalog.
func (s *SQLiteStore) GetByCode(ctx context.Context, code indicator.Code) (*indicator.Indicator, error) {
	return s.getIndicator(ctx, "code", string(code))
}

func (s *SQLiteStore) getIndicator(ctx context.Context, column, arg string) (*indicator.Indicator, error) {
	var ind indicator.Indicator
	var deps string
	err := s.db.QueryRowContext(ctx,
		`SELECT `+indicatorColumns+` FROM indicators WHERE `+column+` = ?`, arg,
	).Scan(&ind.ID, &ind.Code, &ind.Name, &ind.Unit, &ind.CalculusFactor, &deps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, indicator.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get indicator %s", arg)
	}
	if err := json.Unmarshal([]byte(deps), &ind.DependsOn); err != nil {
		return nil, eris.Wrapf(err, "sqlite: decode depends_on of %s", ind.ID)
	}
	return &ind, nil
}

// Expand implements hierarchy.Expander with a recursive CTE.
func (s *SQLiteStore) Expand(ctx context.Context, entity hierarchy.Entity, ids []string) ([]string, error) {
	if !entity.Valid() {
		return nil, eris.Errorf("sqlite: unknown hierarchy %q", entity)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	table := pgx.Identifier{string(entity)}.Sanitize()
	query := fmt.Sprintf(`WITH RECURSIVE tree(id) AS (
	SELECT id FROM %[1]s WHERE id IN (%[2]s)
	UNION
	SELECT c.id FROM %[1]s c JOIN tree t ON c.parent_id = t.id
)
SELECT id FROM tree`, table, placeholders(len(ids)))

	rows, err := s.db.QueryContext(ctx, query, stringArgs(ids)...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: expand %s", entity)
	}
	defer rows.Close()

	var expanded []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", entity)
		}
		expanded = append(expanded, id)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrapf(err, "sqlite: iterate %s", entity)
	}
	return mergeIDs(ids, expanded), nil
}

// Join implements compose.Executor.
func (s *SQLiteStore) Join(ctx context.Context, plan compose.Plan) ([]compose.Row, error) {
	query, err := plan.JoinSQL()
	if err != nil {
		return nil, err
	}
	bindings := plan.Bindings()

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: join")
	}
	defer rows.Close()

	var out []compose.Row
	values := make([]float64, len(bindings))
	for rows.Next() {
		var cell string
		dest := make([]any, 0, len(bindings)+1)
		dest = append(dest, &cell)
		for i := range values {
			dest = append(dest, &values[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan join row")
		}
		row := compose.Row{Cell: cell, Values: make(map[indicator.Slot]float64, len(bindings))}
		for i, b := range bindings {
			row.Values[b.Slot] = values[i]
		}
		out = append(out, row)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate join")
}

// SumByLocation implements compose.ImpactExecutor.
func (s *SQLiteStore) SumByLocation(ctx context.Context, plan compose.ImpactPlan) ([]hexgrid.CellValue, error) {
	query, args, err := plan.ImpactSQL(compose.SQLite)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: sum by location")
	}
	defer rows.Close()

	var out []hexgrid.CellValue
	for rows.Next() {
		var cv hexgrid.CellValue
		if err := rows.Scan(&cv.Cell, &cv.Value); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan impact row")
		}
		out = append(out, cv)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate impact")
}

// Seed loads fx in one transaction. Rows with an existing key are replaced.
func (s *SQLiteStore) Seed(ctx context.Context, fx *Fixtures) error {
	if err := fx.Validate(); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin seed")
	}
	defer tx.Rollback() //nolint:errcheck

	exec := func(query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return eris.Wrapf(err, "sqlite: seed: %s", strings.SplitN(query, "(", 2)[0])
		}
		return nil
	}

	for _, d := range fx.Datasets {
		if err := exec(`INSERT OR REPLACE INTO datasets (`+listDatasetsColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			d.ID, d.OwnerID, string(d.Kind), d.Table, d.Column, d.Resolution, d.Year); err != nil {
			return err
		}
	}
	for _, ind := range fx.Indicators {
		deps := ind.DependsOn
		if deps == nil {
			deps = []string{}
		}
		depsJSON, err := json.Marshal(deps)
		if err != nil {
			return eris.Wrap(err, "sqlite: encode depends_on")
		}
		if err := exec(`INSERT OR REPLACE INTO indicators (`+indicatorColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			ind.ID, ind.Code, ind.Name, ind.Unit, ind.CalculusFactor, string(depsJSON)); err != nil {
			return err
		}
	}
	for _, entity := range hierarchy.Entities() {
		for _, n := range fx.Hierarchy[entity] {
			if err := exec(`INSERT OR REPLACE INTO `+string(entity)+` (id, parent_id) VALUES (?, ?)`,
				n.ID, nullable(n.ParentID)); err != nil {
				return err
			}
		}
	}
	for _, loc := range fx.Locations {
		if err := exec(`INSERT OR REPLACE INTO sourcing_locations (id, material_id, admin_region_id, t1_supplier_id, producer_id, location_type, scenario_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			loc.ID, loc.MaterialID, nullable(loc.OriginID), nullable(loc.SupplierID),
			nullable(loc.ProducerID), loc.LocationType, nullable(loc.ScenarioID)); err != nil {
			return err
		}
		if err := exec(`DELETE FROM sourcing_location_cells WHERE location_id = ?`, loc.ID); err != nil {
			return err
		}
		for _, c := range loc.Cells {
			if err := exec(`INSERT OR IGNORE INTO sourcing_location_cells (location_id, h3index) VALUES (?, ?)`, loc.ID, c); err != nil {
				return err
			}
		}
	}
	for _, g := range fx.Grids {
		if err := seedSQLiteGrid(exec, g); err != nil {
			return err
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit seed")
}

func seedSQLiteGrid(exec func(string, ...any) error, g Grid) error {
	columns := g.ColumnNames()
	if err := exec(gridTableSQL(g.Table, columns, "REAL")); err != nil {
		return err
	}

	quoted := []string{pgx.Identifier{"h3index"}.Sanitize()}
	var set []string
	for _, c := range columns {
		q := pgx.Identifier{c}.Sanitize()
		quoted = append(quoted, q)
		set = append(set, fmt.Sprintf("%s = excluded.%s", q, q))
	}
	insert := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgx.Identifier(strings.SplitN(g.Table, ".", 2)).Sanitize(),
		strings.Join(quoted, ", "), placeholders(len(quoted)))
	if len(set) > 0 {
		insert += " ON CONFLICT (h3index) DO UPDATE SET " + strings.Join(set, ", ")
	} else {
		insert += " ON CONFLICT (h3index) DO NOTHING"
	}

	for _, row := range g.Rows() {
		if err := exec(insert, row...); err != nil {
			return err
		}
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringArgs(ids []string) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
