package indicator

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/maperr"
)

// Binding ties a resolved dataset to the formula slot it feeds.
type Binding struct {
	Slot    Slot                `json:"slot"`
	Dataset dataset.GridDataset `json:"dataset"`
}

// Resolved holds the dependent datasets of a request, in declaration order.
type Resolved struct {
	Materials    []Binding
	Dependencies []Binding
}

// All returns material bindings followed by dependency bindings.
func (r *Resolved) All() []Binding {
	out := make([]Binding, 0, len(r.Materials)+len(r.Dependencies))
	out = append(out, r.Materials...)
	return append(out, r.Dependencies...)
}

// Requirements returns the indicator dependencies to validate: the
// strategy's own, followed by any extra codes declared in metadata.
func Requirements(s Strategy, declared []string) ([]Code, error) {
	seen := make(map[Code]bool)
	var out []Code
	for _, c := range s.Dependencies() {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	for _, raw := range declared {
		c, err := ParseCode(raw)
		if err != nil {
			return nil, err
		}
		if c == s.Code() || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// Validate resolves every dataset s needs in two ordered passes: first the
// material kinds for materialID, then the indicator dependencies. The first
// missing item in declaration order is reported as
// *maperr.DependencyMissingError; nothing is returned for partial success.
func Validate(
	ctx context.Context,
	resolver dataset.Resolver,
	catalog Catalog,
	s Strategy,
	declared []string,
	materialID string,
	year int,
) (*Resolved, error) {
	deps, err := Requirements(s, declared)
	if err != nil {
		return nil, err
	}

	materials, err := resolveAll(ctx, len(s.Materials()), func(ctx context.Context, i int) (*Binding, error) {
		kind := s.Materials()[i]
		ds, err := resolver.Resolve(ctx, materialID, kind, year)
		if err != nil {
			return nil, err
		}
		return &Binding{Slot: MaterialSlot(kind), Dataset: *ds}, nil
	}, func(i int, cause error) error {
		return maperr.NewMissingMaterial(string(s.Materials()[i]), cause)
	})
	if err != nil {
		return nil, err
	}

	dependencies, err := resolveAll(ctx, len(deps), func(ctx context.Context, i int) (*Binding, error) {
		ind, err := catalog.GetByCode(ctx, deps[i])
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, maperr.NewNotFoundDataset(string(deps[i]), string(dataset.KindIndicator), year)
			}
			return nil, maperr.NewStorageExecution("indicator catalog", eris.Wrapf(err, "indicator: get %s", deps[i]))
		}
		ds, err := resolver.Resolve(ctx, ind.ID, dataset.KindIndicator, year)
		if err != nil {
			return nil, err
		}
		return &Binding{Slot: DependencySlot(deps[i]), Dataset: *ds}, nil
	}, func(i int, cause error) error {
		return maperr.NewMissingIndicator(string(deps[i]), cause)
	})
	if err != nil {
		return nil, err
	}

	return &Resolved{Materials: materials, Dependencies: dependencies}, nil
}

// resolveAll runs fn for indexes 0..n-1 concurrently. Not-found results are
// collected per index and the lowest index is reported through missing, so
// the error does not depend on scheduling. Any other error aborts the group
// and is returned unchanged.
func resolveAll(
	ctx context.Context,
	n int,
	fn func(ctx context.Context, i int) (*Binding, error),
	missing func(i int, cause error) error,
) ([]Binding, error) {
	results := make([]*Binding, n)
	notFound := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			b, err := fn(gctx, i)
			if err != nil {
				if maperr.IsNotFound(err) {
					notFound[i] = err
					return nil
				}
				return err
			}
			results[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Binding, 0, n)
	for i := 0; i < n; i++ {
		if notFound[i] != nil {
			return nil, missing(i, notFound[i])
		}
		out = append(out, *results[i])
	}
	return out, nil
}
