// Package hexgrid holds the H3 cell helpers used to move values between
// grid resolutions.
package hexgrid

import (
	"github.com/rotisserie/eris"
	"github.com/uber/h3-go/v4"
)

// Grid resolution bounds served by the map endpoints.
const (
	MinResolution    = 1
	NativeResolution = 6
)

// CellValue is the value of one grid cell. A cell missing from a map means
// "no data", never zero.
type CellValue struct {
	Cell  string  `json:"h"`
	Value float64 `json:"v"`
}

// ParseCell parses a hexadecimal H3 index.
func ParseCell(s string) (h3.Cell, error) {
	c := h3.Cell(h3.IndexFromString(s))
	if !c.IsValid() {
		return 0, eris.Errorf("hexgrid: invalid cell %q", s)
	}
	return c, nil
}

// Parent returns the ancestor of cell at resolution res. A cell already at
// res is returned unchanged.
func Parent(cell string, res int) (string, error) {
	c, err := ParseCell(cell)
	if err != nil {
		return "", err
	}
	cur := c.Resolution()
	if res > cur {
		return "", eris.Errorf("hexgrid: resolution %d is finer than cell resolution %d", res, cur)
	}
	if res == cur {
		return c.String(), nil
	}
	return c.Parent(res).String(), nil
}

// CellAt returns the cell containing lat/lng at resolution res.
func CellAt(lat, lng float64, res int) string {
	return h3.LatLngToCell(h3.NewLatLng(lat, lng), res).String()
}

// ValidResolution reports whether res is a resolution the engine can
// produce from native-resolution datasets.
func ValidResolution(res, native int) bool {
	return res >= MinResolution && res <= native
}
