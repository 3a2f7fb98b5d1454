package compose

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/indicator"
	"github.com/sells-group/hexrisk/internal/maperr"
)

// Row is one joined native cell with a value per bound slot.
type Row struct {
	Cell   string
	Values map[indicator.Slot]float64
}

// Executor runs a Plan against storage and returns the rows that satisfy
// AND-presence.
type Executor interface {
	Join(ctx context.Context, plan Plan) ([]Row, error)
}

// Formula turns the joined values of one cell into the map value.
type Formula func(in indicator.Inputs) float64

// Compose runs plan on exec and evaluates formula for every surviving cell.
// Rows with a missing or zero slot are dropped here too, so the result does
// not depend on how strictly the executor filters. Cells whose formula
// evaluates to zero carry no value and are dropped as well.
func Compose(ctx context.Context, exec Executor, plan Plan, formula Formula) ([]hexgrid.CellValue, error) {
	if err := plan.Validate(); err != nil {
		return nil, maperr.NewStorageExecution("validate join plan", err)
	}

	rows, err := exec.Join(ctx, plan)
	if err != nil {
		zap.L().Error("compose: join failed",
			zap.String("main_dataset", plan.Main.Dataset.ID),
			zap.String("main_table", plan.Main.Dataset.Table),
			zap.Strings("joined_datasets", datasetIDs(plan.Joins)),
			zap.Error(err),
		)
		return nil, maperr.NewStorageExecution("join datasets", err)
	}

	bindings := plan.Bindings()
	out := make([]hexgrid.CellValue, 0, len(rows))
	for _, r := range rows {
		if !present(r, bindings) {
			continue
		}
		v := formula(indicator.InputsFrom(r.Values))
		if v == 0 {
			continue
		}
		out = append(out, hexgrid.CellValue{Cell: r.Cell, Value: v})
	}
	return out, nil
}

func present(r Row, bindings []indicator.Binding) bool {
	for _, b := range bindings {
		if v, ok := r.Values[b.Slot]; !ok || v == 0 {
			return false
		}
	}
	return true
}

func datasetIDs(bindings []indicator.Binding) []string {
	ids := make([]string, len(bindings))
	for i, b := range bindings {
		ids[i] = b.Dataset.ID
	}
	return ids
}
