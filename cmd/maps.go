package main

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/engine"
	"github.com/sells-group/hexrisk/internal/maperr"
)

var riskFlags struct {
	indicator  string
	material   string
	year       int
	resolution int
}

var impactFlags struct {
	indicator     string
	year          int
	resolution    int
	materials     []string
	origins       []string
	suppliers     []string
	locationTypes []string
	scenario      string
}

var riskmapCmd = &cobra.Command{
	Use:   "riskmap",
	Short: "Compute a risk map for one material and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initMapEnv(ctx, cfg, "map")
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Engine.RiskMap(ctx, engine.RiskMapRequest{
			IndicatorID: riskFlags.indicator,
			MaterialID:  riskFlags.material,
			Year:        riskFlags.year,
			Resolution:  riskFlags.resolution,
		})
		if err != nil {
			return mapFailure("riskmap", err)
		}
		return writeMap(cmd.OutOrStdout(), m)
	},
}

var impactmapCmd = &cobra.Command{
	Use:   "impactmap",
	Short: "Compute an impact map over sourcing locations and print it as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		env, err := initMapEnv(ctx, cfg, "map")
		if err != nil {
			return err
		}
		defer env.Close()

		m, err := env.Engine.ImpactMap(ctx, engine.ImpactMapRequest{
			IndicatorID:   impactFlags.indicator,
			Year:          impactFlags.year,
			Resolution:    impactFlags.resolution,
			MaterialIDs:   impactFlags.materials,
			OriginIDs:     impactFlags.origins,
			SupplierIDs:   impactFlags.suppliers,
			LocationTypes: impactFlags.locationTypes,
			ScenarioID:    strings.TrimSpace(impactFlags.scenario),
		})
		if err != nil {
			return mapFailure("impactmap", err)
		}
		return writeMap(cmd.OutOrStdout(), m)
	},
}

// mapFailure logs the full cause and returns the caller-facing message.
func mapFailure(command string, err error) error {
	zap.L().Error(command+" failed",
		zap.Int("status", maperr.HTTPStatus(err)),
		zap.Error(err),
	)
	return eris.New(maperr.PublicMessage(err))
}

func writeMap(w io.Writer, m *engine.AggregatedMap) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return eris.Wrap(err, "encode map")
	}
	return nil
}

func init() {
	rf := riskmapCmd.Flags()
	rf.StringVar(&riskFlags.indicator, "indicator", "", "indicator id")
	rf.StringVar(&riskFlags.material, "material", "", "material id")
	rf.IntVar(&riskFlags.year, "year", 0, "requested data year")
	rf.IntVar(&riskFlags.resolution, "resolution", 6, "output H3 resolution")
	_ = riskmapCmd.MarkFlagRequired("indicator")
	_ = riskmapCmd.MarkFlagRequired("material")
	_ = riskmapCmd.MarkFlagRequired("year")

	xf := impactmapCmd.Flags()
	xf.StringVar(&impactFlags.indicator, "indicator", "", "indicator id")
	xf.IntVar(&impactFlags.year, "year", 0, "requested data year")
	xf.IntVar(&impactFlags.resolution, "resolution", 6, "output H3 resolution")
	xf.StringSliceVar(&impactFlags.materials, "materials", nil, "material ids (descendants included)")
	xf.StringSliceVar(&impactFlags.origins, "origins", nil, "admin region ids (descendants included)")
	xf.StringSliceVar(&impactFlags.suppliers, "suppliers", nil, "supplier ids (descendants included)")
	xf.StringSliceVar(&impactFlags.locationTypes, "location-types", nil, "sourcing location types")
	xf.StringVar(&impactFlags.scenario, "scenario", "", "scenario id")
	_ = impactmapCmd.MarkFlagRequired("indicator")
	_ = impactmapCmd.MarkFlagRequired("year")

	rootCmd.AddCommand(riskmapCmd, impactmapCmd)
}
