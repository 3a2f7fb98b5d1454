package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/db"
	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/hierarchy"
	"github.com/sells-group/hexrisk/internal/indicator"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists the registry and catalog queries prepared on
// each new connection; every map request runs them. They are prepared under
// their SQL text so plain Query calls hit the prepared statement.
var preparedStatements = map[string]string{
	"list_datasets":         `SELECT ` + listDatasetsColumns + ` FROM datasets WHERE owner_id = $1 AND kind = $2 ORDER BY year`,
	"get_indicator":         `SELECT ` + indicatorColumns + ` FROM indicators WHERE id = $1`,
	"get_indicator_by_code": `SELECT ` + indicatorColumns + ` FROM indicators WHERE code = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, sql, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
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
	calculus_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
	depends_on      TEXT[] NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS materials (
	id        TEXT PRIMARY KEY,
	parent_id TEXT REFERENCES materials(id)
);

CREATE TABLE IF NOT EXISTS admin_regions (
	id        TEXT PRIMARY KEY,
	parent_id TEXT REFERENCES admin_regions(id)
);

CREATE TABLE IF NOT EXISTS suppliers (
	id        TEXT PRIMARY KEY,
	parent_id TEXT REFERENCES suppliers(id)
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
CREATE INDEX IF NOT EXISTS idx_sourcing_locations_material ON sourcing_locations(material_id);
CREATE INDEX IF NOT EXISTS idx_sourcing_location_cells_h3 ON sourcing_location_cells(h3index);
`

// Ping checks connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

// Migrate creates the reference schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// ListDatasets implements dataset.Lookup.
func (s *PostgresStore) ListDatasets(ctx context.Context, ownerID string, kind dataset.Kind) ([]dataset.GridDataset, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["list_datasets"], ownerID, string(kind))
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list datasets %s/%s", ownerID, kind)
	}
	defer rows.Close()

	var out []dataset.GridDataset
	for rows.Next() {
		var d dataset.GridDataset
		var k string
		if err := rows.Scan(&d.ID, &d.OwnerID, &k, &d.Table, &d.Column, &d.Resolution, &d.Year); err != nil {
			return nil, eris.Wrap(err, "postgres: scan dataset")
		}
		d.Kind = dataset.Kind(k)
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate datasets")
}

// Get implements indicator.Catalog.
func (s *PostgresStore) Get(ctx context.Context, id string) (*indicator.Indicator, error) {
	return s.getIndicator(ctx, preparedStatements["get_indicator"], id)
}

// GetByCode implements indicator.Catalog.
func (s *PostgresStore) GetByCode(ctx context.Context, code indicator.Code) (*indicator.Indicator, error) {
	return s.getIndicator(ctx, preparedStatements["get_indicator_by_code"], string(code))
}

func (s *PostgresStore) getIndicator(ctx context.Context, query, arg string) (*indicator.Indicator, error) {
	var ind indicator.Indicator
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&ind.ID, &ind.Code, &ind.Name, &ind.Unit, &ind.CalculusFactor, &ind.DependsOn,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, indicator.ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get indicator %s", arg)
	}
	return &ind, nil
}

// expandSQL walks parent links down from the seed ids. The table name comes
// from a validated hierarchy.Entity.
const expandSQL = `WITH RECURSIVE tree AS (
	SELECT id FROM %[1]s WHERE id = ANY($1)
	UNION
	SELECT c.id FROM %[1]s c JOIN tree t ON c.parent_id = t.id
)
SELECT id FROM tree`

// Expand implements hierarchy.Expander with a recursive CTE.
func (s *PostgresStore) Expand(ctx context.Context, entity hierarchy.Entity, ids []string) ([]string, error) {
	if !entity.Valid() {
		return nil, eris.Errorf("postgres: unknown hierarchy %q", entity)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := s.pool.Query(ctx, fmt.Sprintf(expandSQL, pgx.Identifier{string(entity)}.Sanitize()), ids)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: expand %s", entity)
	}
	expanded, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: scan %s", entity)
	}
	return mergeIDs(ids, expanded), nil
}

// Join implements compose.Executor.
func (s *PostgresStore) Join(ctx context.Context, plan compose.Plan) ([]compose.Row, error) {
	query, err := plan.JoinSQL()
	if err != nil {
		return nil, err
	}
	bindings := plan.Bindings()

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: join")
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
			return nil, eris.Wrap(err, "postgres: scan join row")
		}
		row := compose.Row{Cell: cell, Values: make(map[indicator.Slot]float64, len(bindings))}
		for i, b := range bindings {
			row.Values[b.Slot] = values[i]
		}
		out = append(out, row)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate join")
}

// SumByLocation implements compose.ImpactExecutor.
func (s *PostgresStore) SumByLocation(ctx context.Context, plan compose.ImpactPlan) ([]hexgrid.CellValue, error) {
	query, args, err := plan.ImpactSQL(compose.Postgres)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: sum by location")
	}
	defer rows.Close()

	var out []hexgrid.CellValue
	for rows.Next() {
		var cv hexgrid.CellValue
		if err := rows.Scan(&cv.Cell, &cv.Value); err != nil {
			return nil, eris.Wrap(err, "postgres: scan impact row")
		}
		out = append(out, cv)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate impact")
}
