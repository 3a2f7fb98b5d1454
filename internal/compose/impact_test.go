package compose

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/maperr"
)

func TestLocationFilter_Matches(t *testing.T) {
	loc := Location{ID: "l1", MaterialID: "cotton", OriginID: "br", SupplierID: "s1", ProducerID: "p1", LocationType: "aggregation-point"}

	tests := []struct {
		name   string
		filter LocationFilter
		want   bool
	}{
		{"empty filter", LocationFilter{}, true},
		{"material match", LocationFilter{MaterialIDs: []string{"soy", "cotton"}}, true},
		{"material miss", LocationFilter{MaterialIDs: []string{"soy"}}, false},
		{"origin miss", LocationFilter{OriginIDs: []string{"ar"}}, false},
		{"supplier via t1", LocationFilter{SupplierIDs: []string{"s1"}}, true},
		{"supplier via producer", LocationFilter{SupplierIDs: []string{"p1"}}, true},
		{"supplier miss", LocationFilter{SupplierIDs: []string{"s9"}}, false},
		{"location type miss", LocationFilter{LocationTypes: []string{"unknown"}}, false},
		{"scenario requested, actual data included", LocationFilter{ScenarioID: "sc1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(loc))
		})
	}

	scenarioLoc := loc
	scenarioLoc.ScenarioID = "sc1"
	assert.False(t, LocationFilter{}.Matches(scenarioLoc))
	assert.True(t, LocationFilter{ScenarioID: "sc1"}.Matches(scenarioLoc))
	assert.False(t, LocationFilter{ScenarioID: "sc2"}.Matches(scenarioLoc))
}

func TestMemoryExecutor_SumByLocation(t *testing.T) {
	src := &mapSource{
		columns: map[string]map[string]float64{
			"h3_grid_wf.wf_total": {"A": 1, "B": 2, "C": 0},
		},
		locations: []Location{
			{ID: "l1", MaterialID: "cotton", Cells: []string{"A", "B"}},
			{ID: "l2", MaterialID: "cotton", Cells: []string{"B", "C", "D"}},
			{ID: "l3", MaterialID: "soy", Cells: []string{"A"}},
		},
	}
	plan := ImpactPlan{
		Dataset: dataset.GridDataset{ID: "wu", Table: "h3_grid_wf", Column: "wf_total", Resolution: 6},
		Filter:  LocationFilter{MaterialIDs: []string{"cotton"}},
	}

	cells, err := SumByLocation(context.Background(), NewMemoryExecutor(src), plan)
	require.NoError(t, err)
	assert.Equal(t, []hexgrid.CellValue{{Cell: "A", Value: 1}, {Cell: "B", Value: 4}}, cells)
}

func TestMemoryExecutor_SumByLocationCountsCellOncePerLocation(t *testing.T) {
	src := &mapSource{
		columns: map[string]map[string]float64{
			"h3_grid_wf.wf_total": {"A": 1, "B": 2},
		},
		locations: []Location{
			{ID: "l1", MaterialID: "cotton", Cells: []string{"A", "B", "A", "A"}},
			{ID: "l2", MaterialID: "cotton", Cells: []string{"A"}},
		},
	}
	plan := ImpactPlan{
		Dataset: dataset.GridDataset{ID: "wu", Table: "h3_grid_wf", Column: "wf_total", Resolution: 6},
		Filter:  LocationFilter{MaterialIDs: []string{"cotton"}},
	}

	cells, err := SumByLocation(context.Background(), NewMemoryExecutor(src), plan)
	require.NoError(t, err)
	assert.Equal(t, []hexgrid.CellValue{{Cell: "A", Value: 2}, {Cell: "B", Value: 2}}, cells)
}

type failingImpact struct{}

func (failingImpact) SumByLocation(context.Context, ImpactPlan) ([]hexgrid.CellValue, error) {
	return nil, errors.New("relation does not exist")
}

func TestSumByLocation_Failure(t *testing.T) {
	plan := ImpactPlan{Dataset: dataset.GridDataset{ID: "wu", Table: "h3_grid_wf", Column: "wf_total"}}

	_, err := SumByLocation(context.Background(), failingImpact{}, plan)
	var se *maperr.StorageExecutionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "sum by location", se.Op)
}

func TestSumByLocation_InvalidPlan(t *testing.T) {
	plan := ImpactPlan{Dataset: dataset.GridDataset{ID: "wu", Table: "h3 grid", Column: "wf_total"}}

	_, err := SumByLocation(context.Background(), failingImpact{}, plan)
	var se *maperr.StorageExecutionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "validate impact plan", se.Op)
}
