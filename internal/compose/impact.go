package compose

import (
	"context"
	"slices"

	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/maperr"
)

// Location is a sourcing location and the native cells of its georegion.
type Location struct {
	ID           string   `json:"id" yaml:"id"`
	MaterialID   string   `json:"material_id" yaml:"material_id"`
	OriginID     string   `json:"origin_id" yaml:"origin_id"`
	SupplierID   string   `json:"supplier_id,omitempty" yaml:"supplier_id"`
	ProducerID   string   `json:"producer_id,omitempty" yaml:"producer_id"`
	LocationType string   `json:"location_type" yaml:"location_type"`
	ScenarioID   string   `json:"scenario_id,omitempty" yaml:"scenario_id"`
	Cells        []string `json:"cells" yaml:"cells"`
	// Geometry is an optional WKT point or polygon; fixture loading adds
	// the native cells it covers to Cells.
	Geometry string `json:"geometry,omitempty" yaml:"geometry"`
}

// LocationFilter restricts which sourcing locations contribute to an impact
// map. Id sets are already expanded to include descendants; an empty set
// does not restrict.
type LocationFilter struct {
	MaterialIDs   []string
	OriginIDs     []string
	SupplierIDs   []string
	LocationTypes []string
	ScenarioID    string
}

// Matches reports whether loc passes the filter. Locations belonging to a
// scenario only match when that scenario is requested.
func (f LocationFilter) Matches(loc Location) bool {
	if len(f.MaterialIDs) > 0 && !slices.Contains(f.MaterialIDs, loc.MaterialID) {
		return false
	}
	if len(f.OriginIDs) > 0 && !slices.Contains(f.OriginIDs, loc.OriginID) {
		return false
	}
	if len(f.SupplierIDs) > 0 &&
		!slices.Contains(f.SupplierIDs, loc.SupplierID) &&
		!slices.Contains(f.SupplierIDs, loc.ProducerID) {
		return false
	}
	if len(f.LocationTypes) > 0 && !slices.Contains(f.LocationTypes, loc.LocationType) {
		return false
	}
	if loc.ScenarioID != "" && loc.ScenarioID != f.ScenarioID {
		return false
	}
	return true
}

// ImpactPlan sums one dataset over the cells of qualifying locations.
type ImpactPlan struct {
	Dataset dataset.GridDataset
	Filter  LocationFilter
}

// ImpactExecutor runs an ImpactPlan against storage.
type ImpactExecutor interface {
	SumByLocation(ctx context.Context, plan ImpactPlan) ([]hexgrid.CellValue, error)
}

// SumByLocation runs plan on exec, wraps failures as storage errors and
// drops cells whose sum is zero.
func SumByLocation(ctx context.Context, exec ImpactExecutor, plan ImpactPlan) ([]hexgrid.CellValue, error) {
	if err := ValidateTable(plan.Dataset.Table); err != nil {
		return nil, maperr.NewStorageExecution("validate impact plan", err)
	}
	if err := ValidateIdent(plan.Dataset.Column); err != nil {
		return nil, maperr.NewStorageExecution("validate impact plan", err)
	}

	cells, err := exec.SumByLocation(ctx, plan)
	if err != nil {
		zap.L().Error("compose: impact aggregation failed",
			zap.String("dataset", plan.Dataset.ID),
			zap.String("table", plan.Dataset.Table),
			zap.Int("materials", len(plan.Filter.MaterialIDs)),
			zap.Int("origins", len(plan.Filter.OriginIDs)),
			zap.Int("suppliers", len(plan.Filter.SupplierIDs)),
			zap.String("scenario_id", plan.Filter.ScenarioID),
			zap.Error(err),
		)
		return nil, maperr.NewStorageExecution("sum by location", err)
	}

	out := cells[:0:0]
	for _, c := range cells {
		if c.Value != 0 {
			out = append(out, c)
		}
	}
	return out, nil
}
