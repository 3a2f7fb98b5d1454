package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/compose"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/indicator"
)

// RiskMap computes the indicator map for one material: resolve the
// indicator dataset, validate the strategy's dependencies, join every
// dataset with AND-presence, evaluate the formula per native cell, roll up
// and classify. Any failure aborts the whole map.
func (e *Engine) RiskMap(ctx context.Context, req RiskMapRequest) (m *AggregatedMap, err error) {
	defer func() { record(KindRisk, err) }()

	if err := checkRequest(req, req.Resolution, e.cfg.NativeResolution); err != nil {
		return nil, err
	}

	start := time.Now()
	ind, err := e.loadIndicator(ctx, req.IndicatorID, req.Year)
	if err != nil {
		return nil, err
	}
	code, err := indicator.ParseCode(ind.Code)
	if err != nil {
		zap.L().Error("engine: indicator has no formula",
			zap.String("indicator_id", ind.ID),
			zap.String("code", ind.Code),
		)
		return nil, err
	}
	strategy, err := indicator.StrategyFor(code)
	if err != nil {
		return nil, err
	}

	main, err := e.cfg.Resolver.Resolve(ctx, ind.ID, dataset.KindIndicator, req.Year)
	if err != nil {
		return nil, err
	}
	observe("resolve", start)

	start = time.Now()
	resolved, err := indicator.Validate(ctx, e.cfg.Resolver, e.cfg.Catalog, strategy, ind.DependsOn, req.MaterialID, req.Year)
	if err != nil {
		return nil, err
	}
	observe("validate", start)

	start = time.Now()
	plan := compose.NewPlan(indicator.Binding{Slot: indicator.SlotIndicator, Dataset: *main}, resolved.All()...)
	params := indicator.Params{CalculusFactor: ind.CalculusFactor, UnitArea: e.cfg.UnitArea}
	native, err := compose.Compose(ctx, e.cfg.Executor, plan, func(in indicator.Inputs) float64 {
		return strategy.Evaluate(in, params)
	})
	if err != nil {
		return nil, err
	}
	observe("compose", start)

	years, err := e.materialYears(ctx, []string{req.MaterialID}, req.Year)
	if err != nil {
		return nil, err
	}

	zap.L().Debug("engine: risk map composed",
		zap.String("indicator", string(code)),
		zap.String("material_id", req.MaterialID),
		zap.Int("year", req.Year),
		zap.Int("indicator_year", main.Year),
		zap.Int("native_cells", len(native)),
	)

	return e.finish(KindRisk, native, req.Resolution, Metadata{
		Unit:               ind.Unit,
		IndicatorDataYear:  main.Year,
		MaterialsDataYears: years,
	})
}
