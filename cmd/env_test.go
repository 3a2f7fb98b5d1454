package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hexrisk/internal/config"
	"github.com/sells-group/hexrisk/internal/dataset"
	"github.com/sells-group/hexrisk/internal/engine"
	"github.com/sells-group/hexrisk/internal/maperr"
	"github.com/sells-group/hexrisk/internal/store"
)

const fixturePath = "../internal/store/testdata/fixtures.yaml"

func memoryConfig() *config.Config {
	return &config.Config{
		Store:    config.StoreConfig{Driver: config.DriverMemory, FixturePath: fixturePath},
		Registry: config.RegistryConfig{CacheSize: 16, CacheTTLSecs: 60},
		Engine:   config.EngineConfig{UnitArea: 3612.9, NativeResolution: 6},
		Server:   config.ServerConfig{Port: 8080, MaxRPS: 0, CORSOrigins: []string{"*"}},
		Log:      config.LogConfig{Level: "info", Format: "json"},
	}
}

func TestInitStore_Memory(t *testing.T) {
	st, err := initStore(context.Background(), memoryConfig())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	ds, err := st.ListDatasets(context.Background(), "cotton", dataset.KindHarvest)
	require.NoError(t, err)
	assert.Len(t, ds, 2)
}

func TestInitStore_MemoryMissingFile(t *testing.T) {
	c := memoryConfig()
	c.Store.FixturePath = filepath.Join(t.TempDir(), "missing.yaml")

	_, err := initStore(context.Background(), c)
	assert.Error(t, err)
}

func TestInitStore_SQLite(t *testing.T) {
	c := memoryConfig()
	c.Store.Driver = config.DriverSQLite
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "hexrisk.db")

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	require.NoError(t, st.Migrate(context.Background()))
	assert.NoError(t, st.Ping(context.Background()))
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	c := memoryConfig()
	c.Store.Driver = "oracle"

	_, err := initStore(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestInitMapEnv_InvalidConfig(t *testing.T) {
	c := memoryConfig()
	c.Engine.UnitArea = 0

	_, err := initMapEnv(context.Background(), c, "map")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.unit_area")
}

func TestInitMapEnv_RiskMap(t *testing.T) {
	env, err := initMapEnv(context.Background(), memoryConfig(), "map")
	require.NoError(t, err)
	defer env.Close()

	m, err := env.Engine.RiskMap(context.Background(), engine.RiskMapRequest{
		IndicatorID: "ind-def",
		MaterialID:  "cotton",
		Year:        2020,
		Resolution:  6,
	})
	require.NoError(t, err)
	require.Len(t, m.Data, 1)
	assert.Equal(t, "cell-a", m.Data[0].Cell)
	assert.InDelta(t, 20.0, m.Data[0].Value, 1e-9)

	var buf bytes.Buffer
	require.NoError(t, writeMap(&buf, m))
	var decoded map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Contains(t, decoded, "data")
	assert.Contains(t, decoded, "metadata")

	stats := env.Cache.Stats()
	assert.Positive(t, stats.Misses)
}

func TestInitMapEnv_ImpactMap(t *testing.T) {
	env, err := initMapEnv(context.Background(), memoryConfig(), "map")
	require.NoError(t, err)
	defer env.Close()

	m, err := env.Engine.ImpactMap(context.Background(), engine.ImpactMapRequest{
		IndicatorID: "ind-wu",
		Year:        2020,
		Resolution:  6,
		MaterialIDs: []string{"cotton"},
	})
	require.NoError(t, err)

	got := make(map[string]float64, len(m.Data))
	for _, cv := range m.Data {
		got[cv.Cell] = cv.Value
	}
	assert.Len(t, got, 3)
	assert.InDelta(t, 4.0, got["cell-b"], 1e-9)
	assert.Equal(t, 2005, m.Metadata.IndicatorDataYear)
}

func TestMapFailure_PublicMessage(t *testing.T) {
	err := mapFailure("riskmap", maperr.NewStorageExecution("join", errors.New("relation missing")))
	require.Error(t, err)
	assert.Equal(t, "map could not be generated", err.Error())

	err = mapFailure("riskmap", maperr.NewNotFoundDataset("ind-def", "indicator", 2020))
	assert.Contains(t, err.Error(), "ind-def")
}

func TestFormatDatasets(t *testing.T) {
	var buf bytes.Buffer
	formatDatasets(&buf, []dataset.GridDataset{
		{ID: "spam-cotton-2020", Year: 2020, Table: "h3_grid_spam", Column: "cotton_h_2020", Resolution: 6},
	})
	out := buf.String()
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "spam-cotton-2020")
	assert.Contains(t, out, "h3_grid_spam")
}

func TestBuildRouter_Health(t *testing.T) {
	env, err := initMapEnv(context.Background(), memoryConfig(), "serve")
	require.NoError(t, err)
	defer env.Close()

	r := buildRouter(env, memoryConfig().Server)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "application/json")

	var body map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestBuildRouter_RiskMap(t *testing.T) {
	env, err := initMapEnv(context.Background(), memoryConfig(), "serve")
	require.NoError(t, err)
	defer env.Close()

	r := buildRouter(env, memoryConfig().Server)

	req := httptest.NewRequest(http.MethodGet, "/h3/map/risk?indicatorId=ind-def&materialId=cotton&year=2020&resolution=6", nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var m engine.AggregatedMap
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	assert.Len(t, m.Data, 1)
}

func TestMigrate_SeedsSQLite(t *testing.T) {
	c := memoryConfig()
	c.Store.Driver = config.DriverSQLite
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "hexrisk.db")

	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	fx, err := store.LoadFixtures(fixturePath)
	require.NoError(t, err)
	require.NoError(t, st.Seed(context.Background(), fx))

	ds, err := st.ListDatasets(context.Background(), "ind-wu", dataset.KindIndicator)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, 2005, ds[0].Year)
}
