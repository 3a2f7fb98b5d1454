package indicator

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/maperr"
)

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) Get(ctx context.Context, id string) (*Indicator, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Indicator), args.Error(1)
}

func (m *mockCatalog) GetByCode(ctx context.Context, code Code) (*Indicator, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Indicator), args.Error(1)
}

// mapResolver resolves exact (owner, kind) pairs regardless of year.
type mapResolver struct {
	datasets map[string]dataset.GridDataset
	err      error
}

func newMapResolver(ds ...dataset.GridDataset) *mapResolver {
	r := &mapResolver{datasets: make(map[string]dataset.GridDataset)}
	for _, d := range ds {
		r.datasets[d.OwnerID+"/"+string(d.Kind)] = d
	}
	return r
}

func (r *mapResolver) Resolve(_ context.Context, ownerID string, kind dataset.Kind, year int) (*dataset.GridDataset, error) {
	if r.err != nil {
		return nil, r.err
	}
	d, ok := r.datasets[ownerID+"/"+string(kind)]
	if !ok {
		return nil, maperr.NewNotFoundDataset(ownerID, string(kind), year)
	}
	return &d, nil
}
