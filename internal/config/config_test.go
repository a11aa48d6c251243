package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TrevorS/dipdeck"
	"github.com/TrevorS/dipdeck/dip"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	if err != nil {
		t.Fatalf("failed to parse default config: %v", err)
	}

	if cfg.Data.Path != "data.csv" {
		t.Errorf("expected data path 'data.csv', got %q", cfg.Data.Path)
	}
	if cfg.Data.LabelColumn != -1 {
		t.Errorf("expected no label column, got %d", cfg.Data.LabelColumn)
	}
	if cfg.Clustering.InitialClusters != 35 {
		t.Errorf("expected 35 initial clusters, got %d", cfg.Clustering.InitialClusters)
	}
	if cfg.Clustering.PValue != "table" {
		t.Errorf("expected p-value strategy 'table', got %q", cfg.Clustering.PValue)
	}
	if cfg.Model.Embedding != 5 {
		t.Errorf("expected embedding size 5, got %d", cfg.Model.Embedding)
	}
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
clustering:
  initial_clusters: 10
  pvalue: bootstrap
model:
  hidden: [16]
`)
	cfg, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, 10, cfg.Clustering.InitialClusters)
	assert.Equal(t, "bootstrap", cfg.Clustering.PValue)
	assert.Equal(t, []int{16}, cfg.Model.Hidden)
	// Defaults should still be set for unspecified fields
	assert.Equal(t, 0.9, cfg.Clustering.MergeThreshold)
	assert.Equal(t, 50, cfg.Clustering.ClusteringEpochs)
	assert.Equal(t, "kmeans", cfg.Clustering.InitialClusterer)
	assert.Equal(t, 5, cfg.Model.Embedding)
}

func TestParseInvalidYAML(t *testing.T) {
	_, err := parse([]byte("clustering: [unclosed"))
	assert.Error(t, err)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "dipdeck.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Clustering.BatchSize)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestResolveConfigPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "explicit.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o644))

	got, err := ResolveConfigPath(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)

	_, err = ResolveConfigPath(filepath.Join(dir, "nope.yaml"))
	assert.Error(t, err)
}

func TestGetStorePath(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, filepath.Join(DataDir(), "runs.db"), cfg.GetStorePath())

	cfg.Store.Path = "/custom/runs.db"
	assert.Equal(t, "/custom/runs.db", cfg.GetStorePath())
}

func TestLogLevel(t *testing.T) {
	cfg := &Config{Logging: Logging{Level: "DEBUG"}}
	level, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, zerolog.DebugLevel, level)

	cfg.Logging.Level = "loud"
	_, err = cfg.LogLevel()
	assert.Error(t, err)
}

func TestNetwork(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err)

	net := cfg.Network(12)
	assert.Equal(t, []int{12, 64, 32, 5}, net.Layers)
	assert.Equal(t, "relu", string(net.Activation))
}

func TestToDipdeck(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err)

	dc, err := cfg.ToDipdeck()
	require.NoError(t, err)
	assert.Equal(t, 35, dc.InitialClusters)
	assert.Equal(t, dip.StrategyTable, dc.Strategy)
	assert.Equal(t, 100, dc.PretrainEpochs)
	assert.IsType(t, &dipdeck.KMeans{}, dc.InitialClusterer)

	cfg.Clustering.InitialClusterer = "gmm"
	dc, err = cfg.ToDipdeck()
	require.NoError(t, err)
	assert.IsType(t, &dipdeck.GaussianMixture{}, dc.InitialClusterer)

	cfg.Clustering.InitialClusterer = "dbscan"
	dc, err = cfg.ToDipdeck()
	require.NoError(t, err)
	db, ok := dc.InitialClusterer.(*dipdeck.DBSCAN)
	require.True(t, ok)
	assert.Equal(t, 0.5, db.Eps)
	assert.Equal(t, dipdeck.IndexAuto, db.Index)
	assert.Equal(t, 0, dc.InitialClusters)

	cfg.Clustering.DBSCANIndex = "ball_tree"
	dc, err = cfg.ToDipdeck()
	require.NoError(t, err)
	assert.Equal(t, dipdeck.IndexBallTree, dc.InitialClusterer.(*dipdeck.DBSCAN).Index)

	cfg.Clustering.DBSCANIndex = "cover_tree"
	_, err = cfg.ToDipdeck()
	assert.Error(t, err)
	cfg.Clustering.DBSCANIndex = "auto"

	cfg.Clustering.InitialClusterer = "spectral"
	_, err = cfg.ToDipdeck()
	assert.Error(t, err)

	cfg.Clustering.InitialClusterer = "kmeans"
	cfg.Clustering.PValue = "exact"
	_, err = cfg.ToDipdeck()
	assert.Error(t, err)
}
