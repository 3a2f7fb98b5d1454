package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/store"
)

var migrateFixtures string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the reference schema and optionally seed fixtures",
	Long:  "Creates the datasets, indicators, hierarchy and sourcing location tables. With --fixtures, loads a YAML fixture file and upserts its rows and grid tables.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}
		zap.L().Info("schema migrated", zap.String("driver", cfg.Store.Driver))

		if migrateFixtures == "" {
			return nil
		}

		fx, err := store.LoadFixtures(migrateFixtures)
		if err != nil {
			return err
		}
		if err := st.Seed(ctx, fx); err != nil {
			return eris.Wrap(err, "seed fixtures")
		}

		zap.L().Info("fixtures seeded",
			zap.String("path", migrateFixtures),
			zap.Int("datasets", len(fx.Datasets)),
			zap.Int("indicators", len(fx.Indicators)),
			zap.Int("locations", len(fx.Locations)),
			zap.Int("grids", len(fx.Grids)),
		)
		return nil
	},
}

func init() {
	migrateCmd.Flags().StringVar(&migrateFixtures, "fixtures", "", "YAML fixture file to seed after migrating")
	rootCmd.AddCommand(migrateCmd)
}
