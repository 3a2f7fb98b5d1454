package engine

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/hierarchy"
	"github.com/sells-group/hexrisk/internal/maperr"
)

// ImpactMap sums the indicator dataset over the cells of every sourcing
// location matching the request filters, then rolls up and classifies.
// Material, origin and supplier filters include all descendants.
func (e *Engine) ImpactMap(ctx context.Context, req ImpactMapRequest) (m *AggregatedMap, err error) {
	defer func() { record(KindImpact, err) }()

	if err := checkRequest(req, req.Resolution, e.cfg.NativeResolution); err != nil {
		return nil, err
	}

	start := time.Now()
	ind, err := e.loadIndicator(ctx, req.IndicatorID, req.Year)
	if err != nil {
		return nil, err
	}
	main, err := e.cfg.Resolver.Resolve(ctx, ind.ID, dataset.KindIndicator, req.Year)
	if err != nil {
		return nil, err
	}
	observe("resolve", start)

	start = time.Now()
	filter, err := e.expandFilter(ctx, req)
	if err != nil {
		return nil, err
	}
	observe("expand", start)

	start = time.Now()
	native, err := compose.SumByLocation(ctx, e.cfg.ImpactExecutor, compose.ImpactPlan{Dataset: *main, Filter: filter})
	if err != nil {
		return nil, err
	}
	observe("compose", start)

	years, err := e.materialYears(ctx, req.MaterialIDs, req.Year)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("engine: impact map composed",
		zap.String("indicator_id", ind.ID),
		zap.Int("year", req.Year),
		zap.Int("indicator_year", main.Year),
		zap.Int("materials", len(filter.MaterialIDs)),
		zap.Int("origins", len(filter.OriginIDs)),
		zap.Int("suppliers", len(filter.SupplierIDs)),
		zap.Int("native_cells", len(native)),
	)

	return e.finish(KindImpact, native, req.Resolution, Metadata{
		Unit:               ind.Unit,
		IndicatorDataYear:  main.Year,
		MaterialsDataYears: years,
	})
}

// expandFilter expands the three hierarchical id sets concurrently.
func (e *Engine) expandFilter(ctx context.Context, req ImpactMapRequest) (compose.LocationFilter, error) {
	filter := compose.LocationFilter{
		LocationTypes: req.LocationTypes,
		ScenarioID:    req.ScenarioID,
	}

	g, gctx := errgroup.WithContext(ctx)
	expand := func(entity hierarchy.Entity, ids []string, dst *[]string) {
		if len(ids) == 0 {
			return
		}
		g.Go(func() error {
			out, err := e.cfg.Expander.Expand(gctx, entity, ids)
			if err != nil {
				return eris.Wrapf(err, "engine: expand %s", entity)
			}
			*dst = out
			return nil
		})
	}
	expand(hierarchy.Materials, req.MaterialIDs, &filter.MaterialIDs)
	expand(hierarchy.AdminRegions, req.OriginIDs, &filter.OriginIDs)
	expand(hierarchy.Suppliers, req.SupplierIDs, &filter.SupplierIDs)

	if err := g.Wait(); err != nil {
		return compose.LocationFilter{}, maperr.NewStorageExecution("expand hierarchy", err)
	}
	return filter, nil
}
