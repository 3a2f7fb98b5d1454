// Package hierarchy expands material, admin-region and supplier ids to
// themselves plus all of their descendants.
package hierarchy

import (
	"context"
	"slices"

	"github.com/rotisserie/eris"
)

// Entity names a hierarchical reference table.
type Entity string

// Hierarchical entities that impact maps filter on.
const (
	Materials    Entity = "materials"
	AdminRegions Entity = "admin_regions"
	Suppliers    Entity = "suppliers"
)

// Entities lists every hierarchical entity.
func Entities() []Entity {
	return []Entity{Materials, AdminRegions, Suppliers}
}

// Valid reports whether e is a known entity.
func (e Entity) Valid() bool {
	return slices.Contains(Entities(), e)
}

// Expander expands ids to their descendant closure. The result contains the
// input ids, is deduplicated and sorted. Unknown ids are kept as-is.
type Expander interface {
	Expand(ctx context.Context, entity Entity, ids []string) ([]string, error)
}

// Node is one row of a hierarchy table.
type Node struct {
	ID       string `json:"id" yaml:"id"`
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id"`
}

// Tree is an in-memory Expander built from parent links.
type Tree struct {
	children map[Entity]map[string][]string
}

// NewTree indexes nodes per entity.
func NewTree(nodes map[Entity][]Node) (*Tree, error) {
	t := &Tree{children: make(map[Entity]map[string][]string, len(nodes))}
	for entity, list := range nodes {
		if !entity.Valid() {
			return nil, eris.Errorf("hierarchy: unknown entity %q", entity)
		}
		kids := make(map[string][]string)
		for _, n := range list {
			if n.ParentID != "" {
				kids[n.ParentID] = append(kids[n.ParentID], n.ID)
			}
		}
		t.children[entity] = kids
	}
	return t, nil
}

// Expand implements Expander with a breadth-first walk. Cycles are cut by
// the visited set.
func (t *Tree) Expand(_ context.Context, entity Entity, ids []string) ([]string, error) {
	if !entity.Valid() {
		return nil, eris.Errorf("hierarchy: unknown entity %q", entity)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	kids := t.children[entity]
	seen := make(map[string]bool, len(ids))
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, kids[id]...)
	}

	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}
