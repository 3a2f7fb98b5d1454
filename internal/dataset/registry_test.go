package dataset

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexrisk/internal/maperr"
)

type fakeLookup struct {
	mu    sync.Mutex
	data  map[string][]GridDataset
	err   error
	calls atomic.Int64
}

func newFakeLookup(ds ...GridDataset) *fakeLookup {
	f := &fakeLookup{data: make(map[string][]GridDataset)}
	for _, d := range ds {
		key := cacheKey(d.OwnerID, d.Kind)
		f.data[key] = append(f.data[key], d)
	}
	return f
}

func (f *fakeLookup) ListDatasets(_ context.Context, ownerID string, kind Kind) ([]GridDataset, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.data[cacheKey(ownerID, kind)], nil
}

func harvest(id string, year int) GridDataset {
	return GridDataset{ID: id, OwnerID: "cotton", Kind: KindHarvest, Table: "h3_grid_cotton", Column: "harvest_" + id, Resolution: 6, Year: year}
}

func TestResolve_ExactYear(t *testing.T) {
	reg := NewRegistry(newFakeLookup(harvest("a", 2010), harvest("b", 2015), harvest("c", 2020)))

	ds, err := reg.Resolve(context.Background(), "cotton", KindHarvest, 2015)
	require.NoError(t, err)
	assert.Equal(t, "b", ds.ID)
	assert.Equal(t, 2015, ds.Year)
}

func TestResolve_NearestYear(t *testing.T) {
	reg := NewRegistry(newFakeLookup(harvest("a", 2010), harvest("c", 2020)))

	ds, err := reg.Resolve(context.Background(), "cotton", KindHarvest, 2012)
	require.NoError(t, err)
	assert.Equal(t, 2010, ds.Year)

	ds, err = reg.Resolve(context.Background(), "cotton", KindHarvest, 2031)
	require.NoError(t, err)
	assert.Equal(t, 2020, ds.Year)
}

func TestResolve_TieBreakPrefersMoreRecentYear(t *testing.T) {
	reg := NewRegistry(newFakeLookup(harvest("old", 2010), harvest("new", 2020)))

	ds, err := reg.Resolve(context.Background(), "cotton", KindHarvest, 2015)
	require.NoError(t, err)
	assert.Equal(t, "new", ds.ID)
	assert.Equal(t, 2020, ds.Year)

	// Order of candidates does not matter.
	reg = NewRegistry(newFakeLookup(harvest("new", 2020), harvest("old", 2010)))
	ds, err = reg.Resolve(context.Background(), "cotton", KindHarvest, 2015)
	require.NoError(t, err)
	assert.Equal(t, "new", ds.ID)
}

func TestResolve_NotFound(t *testing.T) {
	reg := NewRegistry(newFakeLookup(harvest("a", 2010)))

	_, err := reg.Resolve(context.Background(), "cotton", KindProducer, 2010)
	require.Error(t, err)
	var nf *maperr.NotFoundDatasetError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "producer", nf.Kind)
	assert.Equal(t, "cotton", nf.OwnerID)
}

func TestResolve_LookupError(t *testing.T) {
	f := newFakeLookup()
	f.err = errors.New("connection refused")
	reg := NewRegistry(f)

	_, err := reg.Resolve(context.Background(), "cotton", KindHarvest, 2010)
	var se *maperr.StorageExecutionError
	require.True(t, errors.As(err, &se))
}

func TestResolve_Idempotent(t *testing.T) {
	reg := NewRegistry(newFakeLookup(harvest("a", 2008), harvest("b", 2012), harvest("c", 2016)))

	first, err := reg.Resolve(context.Background(), "cotton", KindHarvest, 2014)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := reg.Resolve(context.Background(), "cotton", KindHarvest, 2014)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNearestYear_DuplicateYearDeterministic(t *testing.T) {
	got := NearestYear([]GridDataset{harvest("z", 2015), harvest("a", 2015)}, 2015)
	assert.Equal(t, "a", got.ID)
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("harvest")
	require.NoError(t, err)
	assert.Equal(t, KindHarvest, k)

	_, err = ParseKind("yield")
	assert.Error(t, err)
}
