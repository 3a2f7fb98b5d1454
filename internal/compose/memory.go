package compose

import (
	"context"
	"sort"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/indicator"
)

// Source serves grid columns and sourcing locations held in process.
type Source interface {
	// Column returns the cell values of table.column; a missing cell is
	// absent from the map.
	Column(ctx context.Context, table, column string) (map[string]float64, error)
	Locations(ctx context.Context) ([]Location, error)
}

// MemoryExecutor evaluates plans in process over a Source.
type MemoryExecutor struct {
	src Source
}

// NewMemoryExecutor creates a MemoryExecutor reading from src.
func NewMemoryExecutor(src Source) *MemoryExecutor {
	return &MemoryExecutor{src: src}
}

// Join implements Executor.
func (e *MemoryExecutor) Join(ctx context.Context, plan Plan) ([]Row, error) {
	bindings := plan.Bindings()
	columns := make([]map[string]float64, len(bindings))
	for i, b := range bindings {
		col, err := e.src.Column(ctx, b.Dataset.Table, b.Dataset.Column)
		if err != nil {
			return nil, eris.Wrapf(err, "compose: read %s.%s", b.Dataset.Table, b.Dataset.Column)
		}
		columns[i] = col
	}

	var rows []Row
	for cell := range columns[0] {
		values := make(map[indicator.Slot]float64, len(bindings))
		keep := true
		for i, b := range bindings {
			v, ok := columns[i][cell]
			if !ok || v == 0 {
				keep = false
				break
			}
			values[b.Slot] = v
		}
		if keep {
			rows = append(rows, Row{Cell: cell, Values: values})
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Cell < rows[j].Cell })
	return rows, nil
}

// SumByLocation implements ImpactExecutor.
func (e *MemoryExecutor) SumByLocation(ctx context.Context, plan ImpactPlan) ([]hexgrid.CellValue, error) {
	col, err := e.src.Column(ctx, plan.Dataset.Table, plan.Dataset.Column)
	if err != nil {
		return nil, eris.Wrapf(err, "compose: read %s.%s", plan.Dataset.Table, plan.Dataset.Column)
	}
	locations, err := e.src.Locations(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "compose: read sourcing locations")
	}

	sums := make(map[string]float64)
	for _, loc := range locations {
		if !plan.Filter.Matches(loc) {
			continue
		}
		seen := make(map[string]struct{}, len(loc.Cells))
		for _, cell := range loc.Cells {
			if _, dup := seen[cell]; dup {
				continue
			}
			seen[cell] = struct{}{}
			if v, ok := col[cell]; ok && v != 0 {
				sums[cell] += v
			}
		}
	}

	out := make([]hexgrid.CellValue, 0, len(sums))
	for cell, v := range sums {
		out = append(out, hexgrid.CellValue{Cell: cell, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Cell < out[j].Cell })
	return out, nil
}
