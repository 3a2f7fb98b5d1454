// Package engine runs the map pipeline: resolve datasets, validate
// indicator dependencies, compose the join, roll up to the requested
// resolution and classify the result into quantile breaks.
package engine

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hexgrid"
	"github.com/sells-group/hexrisk/internal/hierarchy"
	"github.com/sells-group/hexrisk/internal/indicator"
	"github.com/sells-group/hexrisk/internal/maperr"
	"github.com/sells-group/hexrisk/internal/metrics"
	"github.com/sells-group/hexrisk/internal/quantile"
)

// Map kinds, used as metric labels.
const (
	KindRisk   = "risk"
	KindImpact = "impact"
)

// Config wires an Engine to its collaborators.
type Config struct {
	Resolver       dataset.Resolver
	Catalog        indicator.Catalog
	Expander       hierarchy.Expander
	Executor       compose.Executor
	ImpactExecutor compose.ImpactExecutor

	// UnitArea is the area of one native cell, read by the
	// biodiversity-loss formula.
	UnitArea float64
	// NativeResolution defaults to hexgrid.NativeResolution.
	NativeResolution int
}

// Engine computes aggregated maps. It holds no mutable state and is safe
// for concurrent use.
type Engine struct {
	cfg Config
}

// New validates cfg and builds an Engine.
func New(cfg Config) (*Engine, error) {
	switch {
	case cfg.Resolver == nil:
		return nil, eris.New("engine: resolver is required")
	case cfg.Catalog == nil:
		return nil, eris.New("engine: indicator catalog is required")
	case cfg.Expander == nil:
		return nil, eris.New("engine: hierarchy expander is required")
	case cfg.Executor == nil:
		return nil, eris.New("engine: join executor is required")
	case cfg.ImpactExecutor == nil:
		return nil, eris.New("engine: impact executor is required")
	}
	if cfg.NativeResolution == 0 {
		cfg.NativeResolution = hexgrid.NativeResolution
	}
	if cfg.NativeResolution < hexgrid.MinResolution {
		return nil, eris.Errorf("engine: invalid native resolution %d", cfg.NativeResolution)
	}
	if cfg.UnitArea <= 0 {
		return nil, eris.Errorf("engine: unit area must be positive, got %f", cfg.UnitArea)
	}
	return &Engine{cfg: cfg}, nil
}

// MaterialDataYear discloses the dataset years used for one material after
// year fallback. A nil year means the material has no dataset of that kind.
type MaterialDataYear struct {
	MaterialID   string `json:"materialId"`
	HarvestYear  *int   `json:"harvestYear"`
	ProducerYear *int   `json:"producerYear"`
}

// Metadata describes an AggregatedMap.
type Metadata struct {
	Unit               string             `json:"unit"`
	QuantileBreaks     [7]*float64        `json:"quantiles"`
	IndicatorDataYear  int                `json:"indicatorDataYear"`
	MaterialsDataYears []MaterialDataYear `json:"materialsH3DataYears"`
}

// AggregatedMap is a computed map at the requested resolution. It is never
// persisted.
type AggregatedMap struct {
	Resolution int                 `json:"-"`
	Data       []hexgrid.CellValue `json:"data"`
	Metadata   Metadata            `json:"metadata"`
}

// loadIndicator fetches indicator metadata. An unknown id is reported as a
// missing indicator dataset.
func (e *Engine) loadIndicator(ctx context.Context, id string, year int) (*indicator.Indicator, error) {
	ind, err := e.cfg.Catalog.Get(ctx, id)
	if errors.Is(err, indicator.ErrNotFound) {
		return nil, maperr.NewNotFoundDataset(id, string(dataset.KindIndicator), year)
	}
	if err != nil {
		return nil, maperr.NewStorageExecution("indicator catalog", eris.Wrapf(err, "engine: get indicator %s", id))
	}
	return ind, nil
}

// finish rolls native cells up to resolution and assembles the map.
func (e *Engine) finish(kind string, native []hexgrid.CellValue, resolution int, meta Metadata) (*AggregatedMap, error) {
	start := time.Now()
	cells, err := hexgrid.Rollup(native, e.cfg.NativeResolution, resolution)
	if err != nil {
		return nil, maperr.NewStorageExecution("rollup", err)
	}
	observe("rollup", start)

	start = time.Now()
	meta.QuantileBreaks = quantile.Breaks(hexgrid.Values(cells))
	observe("quantile", start)

	if cells == nil {
		cells = []hexgrid.CellValue{}
	}
	metrics.MapCells.WithLabelValues(kind).Observe(float64(len(cells)))
	zap.L().Debug("engine: map assembled",
		zap.String("kind", kind),
		zap.Int("resolution", resolution),
		zap.Int("cells", len(cells)),
		zap.Float64s("quantiles", quantile.Values(meta.QuantileBreaks)),
	)
	return &AggregatedMap{Resolution: resolution, Data: cells, Metadata: meta}, nil
}

// materialYears resolves the harvest and producer years of each material
// concurrently. Missing datasets yield nil years; other failures abort.
func (e *Engine) materialYears(ctx context.Context, materialIDs []string, year int) ([]MaterialDataYear, error) {
	out := make([]MaterialDataYear, len(materialIDs))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range materialIDs {
		out[i].MaterialID = id
		g.Go(func() error {
			y, err := e.optionalYear(gctx, id, dataset.KindHarvest, year)
			out[i].HarvestYear = y
			return err
		})
		g.Go(func() error {
			y, err := e.optionalYear(gctx, id, dataset.KindProducer, year)
			out[i].ProducerYear = y
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Engine) optionalYear(ctx context.Context, ownerID string, kind dataset.Kind, year int) (*int, error) {
	ds, err := e.cfg.Resolver.Resolve(ctx, ownerID, kind, year)
	if maperr.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	y := ds.Year
	return &y, nil
}

func observe(stage string, start time.Time) {
	metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
}

// record counts a finished request.
func record(kind string, err error) {
	outcome := metrics.OutcomeOK
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.MapRequests.WithLabelValues(kind, outcome).Inc()
}
