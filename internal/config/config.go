package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/TrevorS/dipdeck"
	"github.com/TrevorS/dipdeck/autoencoder"
	"github.com/TrevorS/dipdeck/dip"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Data       Data       `yaml:"data"`
	Model      Model      `yaml:"model"`
	Clustering Clustering `yaml:"clustering"`
	Store      Store      `yaml:"store"`
	Logging    Logging    `yaml:"logging"`
	Metrics    Metrics    `yaml:"metrics"`
}

type Data struct {
	Path        string `yaml:"path"`
	Header      bool   `yaml:"header"`
	LabelColumn int    `yaml:"label_column"`
}

type Model struct {
	Hidden     []int  `yaml:"hidden"`
	Embedding  int    `yaml:"embedding"`
	Activation string `yaml:"activation"`
}

type Clustering struct {
	InitialClusterer       string  `yaml:"initial_clusterer"`
	InitialClusters        int     `yaml:"initial_clusters"`
	DBSCANEps              float64 `yaml:"dbscan_eps"`
	DBSCANMinPoints        int     `yaml:"dbscan_min_points"`
	DBSCANIndex            string  `yaml:"dbscan_index"`
	MergeThreshold         float64 `yaml:"merge_threshold"`
	ClusterLossWeight      float64 `yaml:"cluster_loss_weight"`
	MaxClusters            int     `yaml:"max_clusters"`
	MinClusters            int     `yaml:"min_clusters"`
	BatchSize              int     `yaml:"batch_size"`
	PretrainEpochs         int     `yaml:"pretrain_epochs"`
	PretrainLearningRate   float64 `yaml:"pretrain_learning_rate"`
	ClusteringEpochs       int     `yaml:"clustering_epochs"`
	ClusteringLearningRate float64 `yaml:"clustering_learning_rate"`
	SizeDiffFactor         float64 `yaml:"size_diff_factor"`
	PValue                 string  `yaml:"pvalue"`
	Boots                  int     `yaml:"boots"`
	Workers                int     `yaml:"workers"`
	Seed                   uint64  `yaml:"seed"`
}

type Store struct {
	Path string `yaml:"path"`
}

type Logging struct {
	Level string `yaml:"level"`
}

type Metrics struct {
	Addr string `yaml:"addr"`
}

// ConfigDir returns the XDG config directory for dipdeck.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "dipdeck")
}

// DataDir returns the XDG data directory for dipdeck.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "dipdeck")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/dipdeck/config.yaml > ./dipdeck.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "dipdeck.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./dipdeck.yaml\n\nRun 'dipdeck init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	defaults := dipdeck.DefaultConfig()
	cfg := &Config{
		Data: Data{Header: true, LabelColumn: -1},
		Model: Model{
			Hidden:     []int{64, 32},
			Embedding:  5,
			Activation: string(autoencoder.ReLU),
		},
		Clustering: Clustering{
			InitialClusterer:       "kmeans",
			InitialClusters:        defaults.InitialClusters,
			DBSCANEps:              0.5,
			DBSCANMinPoints:        5,
			DBSCANIndex:            "auto",
			MergeThreshold:         defaults.MergeThreshold,
			ClusterLossWeight:      defaults.ClusterLossWeight,
			MinClusters:            defaults.MinClusters,
			BatchSize:              defaults.BatchSize,
			PretrainEpochs:         100,
			PretrainLearningRate:   defaults.PretrainLearningRate,
			ClusteringEpochs:       defaults.ClusteringEpochs,
			ClusteringLearningRate: defaults.ClusteringLearningRate,
			SizeDiffFactor:         defaults.SizeDiffFactor,
			PValue:                 string(defaults.Strategy),
			Boots:                  defaults.Boots,
		},
		Logging: Logging{Level: "info"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// GetStorePath returns the effective run store path from config or the XDG
// default.
func (c *Config) GetStorePath() string {
	if c.Store.Path != "" {
		return c.Store.Path
	}
	return filepath.Join(DataDir(), "runs.db")
}

// LogLevel parses the configured logging level.
func (c *Config) LogLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Logging.Level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid logging level %q: %w", c.Logging.Level, err)
	}
	return level, nil
}

// Network returns the autoencoder layout for samples with the given number
// of features.
func (c *Config) Network(features int) autoencoder.Config {
	layers := append([]int{features}, c.Model.Hidden...)
	layers = append(layers, c.Model.Embedding)
	return autoencoder.Config{Layers: layers, Activation: autoencoder.Activation(c.Model.Activation)}
}

// ToDipdeck converts the clustering section into a dipdeck.Config. The
// loaders, logger and metrics are left for the caller.
func (c *Config) ToDipdeck() (dipdeck.Config, error) {
	cl := c.Clustering
	cfg := dipdeck.Config{
		InitialClusters:        cl.InitialClusters,
		MergeThreshold:         cl.MergeThreshold,
		ClusterLossWeight:      cl.ClusterLossWeight,
		MaxClusters:            cl.MaxClusters,
		MinClusters:            cl.MinClusters,
		BatchSize:              cl.BatchSize,
		PretrainEpochs:         cl.PretrainEpochs,
		PretrainLearningRate:   cl.PretrainLearningRate,
		ClusteringEpochs:       cl.ClusteringEpochs,
		ClusteringLearningRate: cl.ClusteringLearningRate,
		SizeDiffFactor:         cl.SizeDiffFactor,
		Strategy:               dip.Strategy(cl.PValue),
		Boots:                  cl.Boots,
		Workers:                cl.Workers,
		Seed:                   cl.Seed,
	}

	switch strings.ToLower(cl.InitialClusterer) {
	case "kmeans", "":
		cfg.InitialClusterer = &dipdeck.KMeans{}
	case "gmm":
		cfg.InitialClusterer = &dipdeck.GaussianMixture{}
	case "dbscan":
		kind := dipdeck.IndexKind(strings.ToLower(cl.DBSCANIndex))
		if kind == "auto" {
			kind = dipdeck.IndexAuto
		}
		switch kind {
		case dipdeck.IndexAuto, dipdeck.IndexKDTree, dipdeck.IndexBallTree:
		default:
			return dipdeck.Config{}, fmt.Errorf("unknown dbscan index %q (want auto, kd_tree or ball_tree)", cl.DBSCANIndex)
		}
		cfg.InitialClusterer = &dipdeck.DBSCAN{Eps: cl.DBSCANEps, MinPoints: cl.DBSCANMinPoints, Index: kind}
		// The count comes from the data.
		cfg.InitialClusters = 0
	default:
		return dipdeck.Config{}, fmt.Errorf("unknown initial clusterer %q (want kmeans, gmm or dbscan)", cl.InitialClusterer)
	}

	if !cfg.Strategy.Valid() {
		return dipdeck.Config{}, fmt.Errorf("unknown p-value strategy %q", cl.PValue)
	}
	return cfg, nil
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
