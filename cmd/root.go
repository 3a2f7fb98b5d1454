package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sells-group/hexrisk/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:          "hexrisk",
	Short:        "H3 indicator map engine",
	Long:         "Resolves grid datasets, evaluates indicator formulas over the H3 grid, and serves risk and impact maps with quantile legends.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return eris.Wrap(err, "load config")
		}
		applyLogFlags(cmd.Flags(), &c.Log)
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return eris.Wrap(err, "init logger")
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "override log.format (json, console)")
}

// applyLogFlags lets explicitly set logging flags win over file and env.
func applyLogFlags(flags *pflag.FlagSet, lc *config.LogConfig) {
	if flags.Changed("log-level") {
		lc.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-format") {
		lc.Format, _ = flags.GetString("log-format")
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
