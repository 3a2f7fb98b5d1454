package hexgrid

import (
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/wkt"
	"github.com/uber/h3-go/v4"
)

// CellsForWKT returns the cells at res covering a WKT geometry with x as
// longitude and y as latitude. Points map to their containing cell;
// polygons to the cells whose centres fall inside them, or the cell of the
// ring centroid when the polygon is smaller than a cell. Output is sorted
// and deduplicated.
func CellsForWKT(s string, res int) ([]string, error) {
	g, err := wkt.Unmarshal(s)
	if err != nil {
		return nil, eris.Wrap(err, "hexgrid: parse geometry")
	}

	set := make(map[h3.Cell]struct{})
	switch t := g.(type) {
	case *geom.Point:
		set[pointCell(t.Coords(), res)] = struct{}{}
	case *geom.MultiPoint:
		for i := 0; i < t.NumPoints(); i++ {
			set[pointCell(t.Point(i).Coords(), res)] = struct{}{}
		}
	case *geom.Polygon:
		addPolygon(set, t, res)
	case *geom.MultiPolygon:
		for i := 0; i < t.NumPolygons(); i++ {
			addPolygon(set, t.Polygon(i), res)
		}
	default:
		return nil, eris.Errorf("hexgrid: unsupported geometry %T", g)
	}

	out := make([]string, 0, len(set))
	for c := range set {
		out = append(out, c.String())
	}
	sort.Strings(out)
	return out, nil
}

func pointCell(c geom.Coord, res int) h3.Cell {
	return h3.LatLngToCell(h3.NewLatLng(c.Y(), c.X()), res)
}

func addPolygon(set map[h3.Cell]struct{}, p *geom.Polygon, res int) {
	if p.NumLinearRings() == 0 {
		return
	}
	outer := p.LinearRing(0).Coords()
	poly := h3.GeoPolygon{GeoLoop: loop(outer)}
	for i := 1; i < p.NumLinearRings(); i++ {
		poly.Holes = append(poly.Holes, loop(p.LinearRing(i).Coords()))
	}

	cells := h3.PolygonToCells(poly, res)
	if len(cells) == 0 && len(outer) > 0 {
		set[pointCell(centroid(outer), res)] = struct{}{}
		return
	}
	for _, c := range cells {
		set[c] = struct{}{}
	}
}

func loop(coords []geom.Coord) h3.GeoLoop {
	l := make(h3.GeoLoop, 0, len(coords))
	for _, c := range coords {
		l = append(l, h3.NewLatLng(c.Y(), c.X()))
	}
	return l
}

// centroid averages ring vertices, skipping the closing vertex.
func centroid(coords []geom.Coord) geom.Coord {
	n := len(coords)
	if n > 1 && coords[0].Equal(geom.XY, coords[n-1]) {
		n--
	}
	var x, y float64
	for _, c := range coords[:n] {
		x += c.X()
		y += c.Y()
	}
	return geom.Coord{x / float64(n), y / float64(n)}
}
