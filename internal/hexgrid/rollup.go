package hexgrid

import (
	"sort"

	"github.com/rotisserie/eris"
)

// Rollup aggregates cells at resolution from into their ancestors at
// resolution to by summation. Requesting the source resolution returns the
// input unchanged. Output is sorted by cell id.
func Rollup(cells []CellValue, from, to int) ([]CellValue, error) {
	if !ValidResolution(to, from) {
		return nil, eris.Errorf("hexgrid: cannot roll resolution %d up to %d", from, to)
	}
	if to == from {
		return cells, nil
	}

	sums := make(map[string]float64, len(cells)/4+1)
	for _, cv := range cells {
		parent, err := Parent(cv.Cell, to)
		if err != nil {
			return nil, eris.Wrapf(err, "hexgrid: rollup cell %s", cv.Cell)
		}
		sums[parent] += cv.Value
	}

	out := make([]CellValue, 0, len(sums))
	for cell, v := range sums {
		out = append(out, CellValue{Cell: cell, Value: v})
	}
	sortCells(out)
	return out, nil
}

// Values returns the values of cells in order.
func Values(cells []CellValue) []float64 {
	vs := make([]float64, len(cells))
	for i, cv := range cells {
		vs[i] = cv.Value
	}
	return vs
}

func sortCells(cells []CellValue) {
	sort.Slice(cells, func(i, j int) bool { return cells[i].Cell < cells[j].Cell })
}
