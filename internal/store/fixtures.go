package store

import (
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/hierarchy"
	"github.com/sells-group/hexrisk/internal/indicator"
)

// Fixtures is the YAML document the memory backend serves and the seed
// command loads into SQL backends.
type Fixtures struct {
	Datasets   []dataset.GridDataset                  `yaml:"datasets"`
	Indicators []indicator.Indicator                  `yaml:"indicators"`
	Hierarchy  map[hierarchy.Entity][]hierarchy.Node `yaml:"hierarchy"`
	Locations  []compose.Location                     `yaml:"locations"`
	Grids      []Grid                                 `yaml:"grids"`
}

// Grid holds the values of one grid table: column name to cell to value.
type Grid struct {
	Table   string                        `yaml:"table"`
	Columns map[string]map[string]float64 `yaml:"columns"`
}

// ColumnNames returns the grid's value columns, sorted.
func (g Grid) ColumnNames() []string {
	names := make([]string, 0, len(g.Columns))
	for name := range g.Columns {
		names = append(names, name)
	}
	sortStrings(names)
	return names
}

// Rows returns one row per cell: the cell id followed by the value of each
// column in ColumnNames order, nil where the column has no value.
func (g Grid) Rows() [][]any {
	names := g.ColumnNames()
	cells := make(map[string]bool)
	for _, col := range g.Columns {
		for cell := range col {
			cells[cell] = true
		}
	}
	ids := make([]string, 0, len(cells))
	for cell := range cells {
		ids = append(ids, cell)
	}
	sortStrings(ids)

	rows := make([][]any, 0, len(ids))
	for _, cell := range ids {
		row := make([]any, 0, len(names)+1)
		row = append(row, cell)
		for _, name := range names {
			if v, ok := g.Columns[name][cell]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// LoadFixtures reads and validates a fixture file.
func LoadFixtures(path string) (*Fixtures, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "store: read fixtures %s", path)
	}
	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, eris.Wrapf(err, "store: parse fixtures %s", path)
	}
	if err := fx.Validate(); err != nil {
		return nil, err
	}
	if err := fx.ResolveGeometries(hexgrid.NativeResolution); err != nil {
		return nil, err
	}
	return &fx, nil
}

// ResolveGeometries adds the cells covered by each location's WKT geometry
// to its cell list. Every cell list comes out sorted and free of duplicates.
func (fx *Fixtures) ResolveGeometries(res int) error {
	for i := range fx.Locations {
		loc := &fx.Locations[i]
		var cells []string
		if loc.Geometry != "" {
			var err error
			if cells, err = hexgrid.CellsForWKT(loc.Geometry, res); err != nil {
				return eris.Wrapf(err, "store: location %s", loc.ID)
			}
		}
		loc.Cells = mergeIDs(loc.Cells, cells)
	}
	return nil
}

// Validate checks identifiers, kinds and (owner, kind, year) uniqueness.
func (fx *Fixtures) Validate() error {
	type key struct {
		owner string
		kind  dataset.Kind
		year  int
	}
	seen := make(map[key]string, len(fx.Datasets))
	for _, d := range fx.Datasets {
		if d.ID == "" || d.OwnerID == "" {
			return eris.Errorf("store: dataset %q: id and owner_id are required", d.ID)
		}
		if _, err := dataset.ParseKind(string(d.Kind)); err != nil {
			return eris.Wrapf(err, "store: dataset %s", d.ID)
		}
		if err := compose.ValidateTable(d.Table); err != nil {
			return eris.Wrapf(err, "store: dataset %s", d.ID)
		}
		if err := compose.ValidateIdent(d.Column); err != nil {
			return eris.Wrapf(err, "store: dataset %s", d.ID)
		}
		k := key{d.OwnerID, d.Kind, d.Year}
		if other, ok := seen[k]; ok {
			return eris.Errorf("store: datasets %s and %s share owner %s, kind %s, year %d",
				other, d.ID, d.OwnerID, d.Kind, d.Year)
		}
		seen[k] = d.ID
	}
	for _, ind := range fx.Indicators {
		if _, err := indicator.ParseCode(ind.Code); err != nil {
			return eris.Wrapf(err, "store: indicator %s", ind.ID)
		}
	}
	for entity := range fx.Hierarchy {
		if !entity.Valid() {
			return eris.Errorf("store: unknown hierarchy %q", entity)
		}
	}
	for _, g := range fx.Grids {
		if err := compose.ValidateTable(g.Table); err != nil {
			return eris.Wrap(err, "store: grid")
		}
		for _, name := range g.ColumnNames() {
			if err := compose.ValidateIdent(name); err != nil {
				return eris.Wrapf(err, "store: grid %s", g.Table)
			}
		}
	}
	return nil
}

func sortStrings(s []string) {
	sort.Strings(s)
}
