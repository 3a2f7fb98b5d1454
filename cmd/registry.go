package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/dataset"
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect the grid dataset registry",
}

var registryFlags struct {
	owner string
	kind  string
}

var registryDatasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the datasets registered for an owner and kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		kind, err := dataset.ParseKind(registryFlags.kind)
		if err != nil {
			return err
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ds, err := st.ListDatasets(ctx, registryFlags.owner, kind)
		if err != nil {
			return eris.Wrap(err, "registry datasets")
		}

		if len(ds) == 0 {
			zap.L().Info("no datasets registered",
				zap.String("owner", registryFlags.owner),
				zap.String("kind", string(kind)),
			)
			return nil
		}

		formatDatasets(cmd.OutOrStdout(), ds)
		return nil
	},
}

func init() {
	f := registryDatasetsCmd.Flags()
	f.StringVar(&registryFlags.owner, "owner", "", "owning material or indicator id")
	f.StringVar(&registryFlags.kind, "kind", "", "dataset kind (harvest, producer, indicator)")
	_ = registryDatasetsCmd.MarkFlagRequired("owner")
	_ = registryDatasetsCmd.MarkFlagRequired("kind")

	registryCmd.AddCommand(registryDatasetsCmd)
	rootCmd.AddCommand(registryCmd)
}

// formatDatasets writes a tabular representation of datasets to out.
func formatDatasets(out io.Writer, ds []dataset.GridDataset) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tYEAR\tTABLE\tCOLUMN\tRES")
	_, _ = fmt.Fprintln(w, "--\t----\t-----\t------\t---")
	for _, d := range ds {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%d\n", d.ID, d.Year, d.Table, d.Column, d.Resolution)
	}
	_ = w.Flush()
}
