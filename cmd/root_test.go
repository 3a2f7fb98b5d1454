package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexrisk/internal/config"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	for _, name := range []string{"serve", "riskmap", "impactmap", "migrate", "registry"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "hexrisk", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestApplyLogFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.AddFlagSet(rootCmd.PersistentFlags())
	lc := config.LogConfig{Level: "info", Format: "json"}

	applyLogFlags(fs, &lc)
	assert.Equal(t, config.LogConfig{Level: "info", Format: "json"}, lc)

	fs = pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("log-level", "", "")
	fs.String("log-format", "", "")
	require.NoError(t, fs.Parse([]string{"--log-level", "debug"}))
	applyLogFlags(fs, &lc)
	assert.Equal(t, "debug", lc.Level)
	assert.Equal(t, "json", lc.Format)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestRiskmapCommand_Flags(t *testing.T) {
	for _, name := range []string{"indicator", "material", "year", "resolution"} {
		assert.NotNil(t, riskmapCmd.Flags().Lookup(name), "riskmap should have --%s flag", name)
	}
	assert.Equal(t, "6", riskmapCmd.Flags().Lookup("resolution").DefValue)
}

func TestImpactmapCommand_Flags(t *testing.T) {
	for _, name := range []string{"indicator", "year", "resolution", "materials", "origins", "suppliers", "location-types", "scenario"} {
		assert.NotNil(t, impactmapCmd.Flags().Lookup(name), "impactmap should have --%s flag", name)
	}
}

func TestRegistryCommand_HasDatasets(t *testing.T) {
	var found bool
	for _, c := range registryCmd.Commands() {
		if c.Name() == "datasets" {
			found = true
		}
	}
	assert.True(t, found)
	assert.NotNil(t, registryDatasetsCmd.Flags().Lookup("owner"))
	assert.NotNil(t, registryDatasetsCmd.Flags().Lookup("kind"))
}

func TestMigrateCommand_Flags(t *testing.T) {
	assert.NotNil(t, migrateCmd.Flags().Lookup("fixtures"))
}
