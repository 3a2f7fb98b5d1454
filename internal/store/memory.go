package store

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/hierarchy"
	"github.com/sells-group/hexrisk/internal/indicator"
)

// MemoryStore serves Fixtures from process memory. It backs local runs and
// tests; Seed swaps the whole data set atomically.
type MemoryStore struct {
	mu      sync.RWMutex
	fx      *Fixtures
	tree    *hierarchy.Tree
	columns map[string]map[string]float64 // "table.column" -> cell -> value
	exec    *compose.MemoryExecutor
}

// NewMemory creates a MemoryStore holding fx. A nil fx yields an empty store.
func NewMemory(fx *Fixtures) (*MemoryStore, error) {
	s := &MemoryStore{}
	s.exec = compose.NewMemoryExecutor(s)
	if fx == nil {
		fx = &Fixtures{}
	}
	if err := s.Seed(context.Background(), fx); err != nil {
		return nil, err
	}
	return s, nil
}

// Seed replaces the store contents with fx.
func (s *MemoryStore) Seed(_ context.Context, fx *Fixtures) error {
	if err := fx.Validate(); err != nil {
		return err
	}
	tree, err := hierarchy.NewTree(fx.Hierarchy)
	if err != nil {
		return eris.Wrap(err, "memory: build hierarchy")
	}
	columns := make(map[string]map[string]float64)
	for _, g := range fx.Grids {
		for name, values := range g.Columns {
			columns[g.Table+"."+name] = values
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.fx = fx
	s.tree = tree
	s.columns = columns
	return nil
}

// ListDatasets implements dataset.Lookup.
func (s *MemoryStore) ListDatasets(_ context.Context, ownerID string, kind dataset.Kind) ([]dataset.GridDataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []dataset.GridDataset
	for _, d := range s.fx.Datasets {
		if d.OwnerID == ownerID && d.Kind == kind {
			out = append(out, d)
		}
	}
	return out, nil
}

// Get implements indicator.Catalog.
func (s *MemoryStore) Get(_ context.Context, id string) (*indicator.Indicator, error) {
	return s.findIndicator(func(ind indicator.Indicator) bool { return ind.ID == id })
}

// GetByCode implements indicator.Catalog.
func (s *MemoryStore) GetByCode(_ context.Context, code indicator.Code) (*indicator.Indicator, error) {
	return s.findIndicator(func(ind indicator.Indicator) bool { return ind.Code == string(code) })
}

func (s *MemoryStore) findIndicator(match func(indicator.Indicator) bool) (*indicator.Indicator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, ind := range s.fx.Indicators {
		if match(ind) {
			out := ind
			out.DependsOn = append([]string(nil), ind.DependsOn...)
			return &out, nil
		}
	}
	return nil, indicator.ErrNotFound
}

// Expand implements hierarchy.Expander.
func (s *MemoryStore) Expand(ctx context.Context, entity hierarchy.Entity, ids []string) ([]string, error) {
	s.mu.RLock()
	tree := s.tree
	s.mu.RUnlock()
	return tree.Expand(ctx, entity, ids)
}

// Column implements compose.Source. A column no grid declares is an error,
// as a missing table would be in SQL.
func (s *MemoryStore) Column(_ context.Context, table, column string) (map[string]float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	values, ok := s.columns[table+"."+column]
	if !ok {
		return nil, eris.Errorf("memory: no grid column %s.%s", table, column)
	}
	return values, nil
}

// Locations implements compose.Source.
func (s *MemoryStore) Locations(context.Context) ([]compose.Location, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fx.Locations, nil
}

// Join implements compose.Executor.
func (s *MemoryStore) Join(ctx context.Context, plan compose.Plan) ([]compose.Row, error) {
	return s.exec.Join(ctx, plan)
}

// SumByLocation implements compose.ImpactExecutor.
func (s *MemoryStore) SumByLocation(ctx context.Context, plan compose.ImpactPlan) ([]hexgrid.CellValue, error) {
	return s.exec.SumByLocation(ctx, plan)
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error { return nil }

// Migrate is a no-op; the memory store has no schema.
func (s *MemoryStore) Migrate(context.Context) error { return nil }

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }
