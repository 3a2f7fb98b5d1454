// Package store provides the storage backends of the map engine: the
// dataset registry lookup, indicator catalog, hierarchy expansion and the
// join and impact executors, over Postgres, SQLite or in-memory fixtures.
package store

import (
	"context"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hierarchy"
	"github.com/sells-group/hexrisk/internal/indicator"
)

// Store is everything the engine reads, plus lifecycle.
type Store interface {
	dataset.Lookup
	indicator.Catalog
	hierarchy.Expander
	compose.Executor
	compose.ImpactExecutor

	// Seed loads fixtures into the backend, replacing rows with the same key.
	Seed(ctx context.Context, fx *Fixtures) error

	// Lifecycle
	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

var (
	_ Store = (*PostgresStore)(nil)
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*MemoryStore)(nil)
)

// Reference table names.
const (
	datasetsTable   = "datasets"
	indicatorsTable = "indicators"
)

const listDatasetsColumns = `id, owner_id, kind, table_name, column_name, resolution, year`

const indicatorColumns = `id, code, name, unit, calculus_factor, depends_on`

// nullable maps an empty string to SQL NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// mergeIDs unions ids into expanded, sorted and deduplicated. Ids missing
// from the hierarchy table still filter as themselves.
func mergeIDs(ids, expanded []string) []string {
	seen := make(map[string]bool, len(ids)+len(expanded))
	out := make([]string, 0, len(ids)+len(expanded))
	for _, list := range [][]string{ids, expanded} {
		for _, id := range list {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	sortStrings(out)
	return out
}
