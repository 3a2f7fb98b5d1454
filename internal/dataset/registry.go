package dataset

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/maperr"
	"github.com/sells-group/hexrisk/internal/metrics"
)

// Lookup lists the datasets registered for an owner and kind, across all
// years. Backends live in internal/store.
type Lookup interface {
	ListDatasets(ctx context.Context, ownerID string, kind Kind) ([]GridDataset, error)
}

// Resolver resolves a single dataset for an owner, kind and year.
type Resolver interface {
	Resolve(ctx context.Context, ownerID string, kind Kind, year int) (*GridDataset, error)
}

// Registry implements Resolver with nearest-year fallback over a Lookup.
type Registry struct {
	lookup Lookup
}

// NewRegistry creates a Registry backed by lookup.
func NewRegistry(lookup Lookup) *Registry {
	return &Registry{lookup: lookup}
}

// Resolve returns the dataset for the exact year if one exists, otherwise
// the dataset whose year is closest to year. When two years are equally
// close the more recent one wins. Returns *maperr.NotFoundDatasetError when
// the owner has no dataset of kind at all.
func (r *Registry) Resolve(ctx context.Context, ownerID string, kind Kind, year int) (*GridDataset, error) {
	candidates, err := r.lookup.ListDatasets(ctx, ownerID, kind)
	if err != nil {
		return nil, maperr.NewStorageExecution("registry lookup", err)
	}
	if len(candidates) == 0 {
		return nil, maperr.NewNotFoundDataset(ownerID, string(kind), year)
	}

	best := NearestYear(candidates, year)
	if best.Year != year {
		metrics.YearFallbacks.WithLabelValues(string(kind)).Inc()
		zap.L().Debug("dataset: year fallback",
			zap.String("owner_id", ownerID),
			zap.String("kind", string(kind)),
			zap.Int("requested_year", year),
			zap.Int("used_year", best.Year),
		)
	}
	return &best, nil
}

// NearestYear picks the candidate closest to year. Ties on distance go to
// the more recent year; duplicate years (which the registry forbids) are
// broken by ID so the choice stays deterministic. candidates must be
// non-empty.
func NearestYear(candidates []GridDataset, year int) GridDataset {
	sorted := make([]GridDataset, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		di, dj := yearDistance(sorted[i].Year, year), yearDistance(sorted[j].Year, year)
		if di != dj {
			return di < dj
		}
		if sorted[i].Year != sorted[j].Year {
			return sorted[i].Year > sorted[j].Year
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted[0]
}

func yearDistance(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
