// Package dataset resolves grid datasets (references to external cell/value
// tables) for an owning entity, dataset kind and year.
package dataset

import "github.com/rotisserie/eris"

// Kind identifies what a grid dataset measures.
type Kind string

// Dataset kinds.
const (
	KindProducer  Kind = "producer"
	KindHarvest   Kind = "harvest"
	KindIndicator Kind = "indicator"
)

// Kinds lists every dataset kind.
func Kinds() []Kind {
	return []Kind{KindProducer, KindHarvest, KindIndicator}
}

// ParseKind validates s as a dataset kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if string(k) == s {
			return k, nil
		}
	}
	return "", eris.Errorf("dataset: unknown kind %q", s)
}

// GridDataset points at an external table of cell/value pairs. Table and
// Column are opaque physical locators supplied by the registry backend and
// must be treated as untrusted when building queries.
type GridDataset struct {
	ID         string `json:"id" yaml:"id"`
	OwnerID    string `json:"owner_id" yaml:"owner_id"`
	Kind       Kind   `json:"kind" yaml:"kind"`
	Table      string `json:"table" yaml:"table"`
	Column     string `json:"column" yaml:"column"`
	Resolution int    `json:"resolution" yaml:"resolution"`
	Year       int    `json:"year" yaml:"year"`
}
