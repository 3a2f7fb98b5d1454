package compose

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect selects placeholder and list syntax for generated SQL.
type Dialect int

// Supported dialects.
const (
	Postgres Dialect = iota
	SQLite
)

// sqlArgs accumulates positional arguments for a query.
type sqlArgs struct {
	dialect Dialect
	args    []any
}

func (a *sqlArgs) add(v any) string {
	a.args = append(a.args, v)
	if a.dialect == SQLite {
		return "?"
	}
	return fmt.Sprintf("$%d", len(a.args))
}

// in renders "expr IN list" for the dialect.
func (a *sqlArgs) in(expr string, values []string) string {
	if a.dialect == Postgres {
		return fmt.Sprintf("%s = ANY(%s)", expr, a.add(values))
	}
	ph := make([]string, len(values))
	for i, v := range values {
		ph[i] = a.add(v)
	}
	return fmt.Sprintf("%s IN (%s)", expr, strings.Join(ph, ", "))
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	parts := strings.SplitN(table, ".", 2)
	return pgx.Identifier(parts).Sanitize()
}

func quote(ident string) string {
	return pgx.Identifier{ident}.Sanitize()
}

// JoinSQL renders plan as an inner join returning the cell id followed by
// one value column per binding, in Bindings order. Identifiers are validated
// and quoted; the query takes no arguments.
func (p Plan) JoinSQL() (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	bindings := p.Bindings()
	cell := quote(CellColumn)

	selects := []string{fmt.Sprintf("CAST(t0.%s AS TEXT) AS %s", cell, cell)}
	var from strings.Builder
	var where []string
	for i, b := range bindings {
		alias := fmt.Sprintf("t%d", i)
		col := fmt.Sprintf("%s.%s", alias, quote(b.Dataset.Column))
		selects = append(selects, fmt.Sprintf("CAST(%s AS DOUBLE PRECISION) AS v%d", col, i))
		if i == 0 {
			fmt.Fprintf(&from, "FROM %s %s", sanitizeTable(b.Dataset.Table), alias)
		} else {
			fmt.Fprintf(&from, "\nJOIN %s %s ON %s.%s = t0.%s",
				sanitizeTable(b.Dataset.Table), alias, alias, cell, cell)
		}
		where = append(where, fmt.Sprintf("%s IS NOT NULL AND %s <> 0", col, col))
	}

	return fmt.Sprintf("SELECT %s\n%s\nWHERE %s",
		strings.Join(selects, ", "), from.String(), strings.Join(where, "\n  AND ")), nil
}

// Sourcing-location tables read by impact queries.
const (
	locationsTable     = "sourcing_locations"
	locationCellsTable = "sourcing_location_cells"
)

// ImpactSQL renders plan as a per-cell sum of the dataset value over the
// cells of qualifying sourcing locations.
func (p ImpactPlan) ImpactSQL(d Dialect) (string, []any, error) {
	if err := ValidateTable(p.Dataset.Table); err != nil {
		return "", nil, err
	}
	if err := ValidateIdent(p.Dataset.Column); err != nil {
		return "", nil, err
	}

	cell := quote(CellColumn)
	val := "d." + quote(p.Dataset.Column)
	args := &sqlArgs{dialect: d}

	where := []string{fmt.Sprintf("%s IS NOT NULL AND %s <> 0", val, val)}
	f := p.Filter
	if len(f.MaterialIDs) > 0 {
		where = append(where, args.in("sl.material_id", f.MaterialIDs))
	}
	if len(f.OriginIDs) > 0 {
		where = append(where, args.in("sl.admin_region_id", f.OriginIDs))
	}
	if len(f.SupplierIDs) > 0 {
		where = append(where, fmt.Sprintf("(%s OR %s)",
			args.in("sl.t1_supplier_id", f.SupplierIDs),
			args.in("sl.producer_id", f.SupplierIDs)))
	}
	if len(f.LocationTypes) > 0 {
		where = append(where, args.in("sl.location_type", f.LocationTypes))
	}
	if f.ScenarioID != "" {
		where = append(where, fmt.Sprintf("(sl.scenario_id IS NULL OR sl.scenario_id = %s)", args.add(f.ScenarioID)))
	} else {
		where = append(where, "sl.scenario_id IS NULL")
	}

	sql := fmt.Sprintf(`SELECT CAST(d.%s AS TEXT) AS %s, SUM(CAST(%s AS DOUBLE PRECISION)) AS value
FROM %s sl
JOIN %s slc ON slc.location_id = sl.id
JOIN %s d ON d.%s = slc.%s
WHERE %s
GROUP BY d.%s`,
		cell, cell, val,
		locationsTable,
		locationCellsTable,
		sanitizeTable(p.Dataset.Table), cell, cell,
		strings.Join(where, "\n  AND "),
		cell,
	)
	return sql, args.args, nil
}
