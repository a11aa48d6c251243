package dipdeck

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"runtime"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"

	"github.com/TrevorS/dipdeck/dip"
)

// ErrInvalidConfig is wrapped by every configuration error returned by Fit.
var ErrInvalidConfig = errors.New("dipdeck: invalid config")

// Config controls a DipDECK run.
// Start with [DefaultConfig] and override the fields you need.
type Config struct {
	// InitialClusters is the cluster count requested from the initial
	// clusterer. It may be 0 only when the clusterer determines the count
	// itself. Default: 35.
	InitialClusters int

	// MergeThreshold is the dip p-value at or above which two clusters are
	// merged. Must be in [0, 1]. Default: 0.9.
	MergeThreshold float64

	// ClusterLossWeight scales the cluster loss against the reconstruction
	// loss. Default: 1.
	ClusterLossWeight float64

	// MaxClusters forces merges or removals while the cluster count exceeds
	// it at the end of an epoch budget. 0 means unlimited. Default: 0.
	MaxClusters int

	// MinClusters stops merging once reached. Must be >= 1. Default: 1.
	MinClusters int

	// BatchSize is the number of samples per optimizer step. Default: 256.
	BatchSize int

	// PretrainEpochs is the number of reconstruction-only epochs run before
	// the initial clustering. 0 skips pretraining. Default: 0.
	PretrainEpochs int

	// PretrainLearningRate is the optimizer learning rate during
	// pretraining. Default: 1e-3.
	PretrainLearningRate float64

	// ClusteringEpochs is the epoch budget, reset after every merge.
	// Default: 50.
	ClusteringEpochs int

	// ClusteringLearningRate is the optimizer learning rate during the
	// clustering phase. Default: 1e-4.
	ClusteringLearningRate float64

	// SizeDiffFactor bounds the size ratio of two clusters before the dip
	// test is repeated on a trimmed sample of the larger one. Must be >= 1.
	// Default: 2.
	SizeDiffFactor float64

	// Strategy selects the dip p-value computation. Default: dip.StrategyTable.
	Strategy dip.Strategy

	// Boots is the number of bootstrap draws for dip.StrategyBootstrap.
	// Default: 1000.
	Boots int

	// AugmentationInvariance trains the cluster loss on augmented views as
	// well. Requires Augment or a TrainLoader yielding augmented batches.
	AugmentationInvariance bool

	// Augment produces augmented samples for the default training loader.
	Augment Augmenter

	// TrainLoader and EvalLoader replace the default in-memory loaders.
	// When EvalLoader is set, the dataset is rebuilt from its pass.
	TrainLoader Loader
	EvalLoader  Loader

	// InitialClusterer seeds the clustering after pretraining.
	// Default: KMeans.
	InitialClusterer InitialClusterer

	// Workers controls the number of goroutines used for the dip matrix and
	// nearest-center assignment. 0 means use runtime.NumCPU().
	Workers int

	// Seed initializes the random source when Rand is nil.
	Seed uint64

	// Rand is the single random source of the run: shuffling, initial
	// clustering and bootstrap p-values all draw from it.
	Rand *rand.Rand

	// Logger receives training progress. Default: disabled.
	Logger *zerolog.Logger

	// Metrics, when set, is updated as training progresses.
	Metrics *Metrics
}

// DefaultConfig returns a Config with the defaults of the DipDECK method.
func DefaultConfig() Config {
	return Config{
		InitialClusters:        35,
		MergeThreshold:         0.9,
		ClusterLossWeight:      1,
		MinClusters:            1,
		BatchSize:              256,
		PretrainLearningRate:   1e-3,
		ClusteringEpochs:       50,
		ClusteringLearningRate: 1e-4,
		SizeDiffFactor:         2,
		Strategy:               dip.StrategyTable,
		Boots:                  1000,
	}
}

// applyDefaults fills in zero-valued config fields with their defaults.
func applyDefaults(cfg *Config) {
	if cfg.BatchSize == 0 {
		cfg.BatchSize = 256
	}
	if cfg.PretrainLearningRate == 0 {
		cfg.PretrainLearningRate = 1e-3
	}
	if cfg.ClusteringEpochs == 0 {
		cfg.ClusteringEpochs = 50
	}
	if cfg.ClusteringLearningRate == 0 {
		cfg.ClusteringLearningRate = 1e-4
	}
	if cfg.SizeDiffFactor == 0 {
		cfg.SizeDiffFactor = 2
	}
	if cfg.Strategy == "" {
		cfg.Strategy = dip.StrategyTable
	}
	if cfg.Boots == 0 {
		cfg.Boots = 1000
	}
	if cfg.InitialClusterer == nil {
		cfg.InitialClusterer = &KMeans{}
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15))
	}
	if cfg.Logger == nil {
		nop := zerolog.Nop()
		cfg.Logger = &nop
	}
}

// validateConfig checks that cfg fields are valid and returns a descriptive
// error wrapping ErrInvalidConfig if not.
func validateConfig(cfg *Config) error {
	if cfg.MinClusters <= 0 {
		return fmt.Errorf("%w: MinClusters must be > 0, got %d", ErrInvalidConfig, cfg.MinClusters)
	}
	if cfg.MaxClusters != 0 && cfg.MaxClusters < cfg.MinClusters {
		return fmt.Errorf("%w: MaxClusters (%d) can not be smaller than MinClusters (%d)", ErrInvalidConfig, cfg.MaxClusters, cfg.MinClusters)
	}
	if cfg.MaxClusters < 0 {
		return fmt.Errorf("%w: MaxClusters must be >= 0, got %d", ErrInvalidConfig, cfg.MaxClusters)
	}
	if cfg.InitialClusters < 0 {
		return fmt.Errorf("%w: InitialClusters must be >= 0, got %d", ErrInvalidConfig, cfg.InitialClusters)
	}
	if cfg.InitialClusters > 0 && cfg.InitialClusters < cfg.MinClusters {
		return fmt.Errorf("%w: InitialClusters (%d) can not be smaller than MinClusters (%d)", ErrInvalidConfig, cfg.InitialClusters, cfg.MinClusters)
	}
	if cfg.MergeThreshold < 0 || cfg.MergeThreshold > 1 {
		return fmt.Errorf("%w: MergeThreshold must be between 0 and 1, got %f", ErrInvalidConfig, cfg.MergeThreshold)
	}
	if cfg.ClusterLossWeight < 0 {
		return fmt.Errorf("%w: ClusterLossWeight must be >= 0, got %f", ErrInvalidConfig, cfg.ClusterLossWeight)
	}
	if cfg.BatchSize < 1 {
		return fmt.Errorf("%w: BatchSize must be >= 1, got %d", ErrInvalidConfig, cfg.BatchSize)
	}
	if cfg.PretrainEpochs < 0 || cfg.ClusteringEpochs < 0 {
		return fmt.Errorf("%w: epoch counts must be >= 0", ErrInvalidConfig)
	}
	if cfg.PretrainLearningRate <= 0 || cfg.ClusteringLearningRate <= 0 {
		return fmt.Errorf("%w: learning rates must be > 0", ErrInvalidConfig)
	}
	if cfg.SizeDiffFactor < 1 {
		return fmt.Errorf("%w: SizeDiffFactor must be >= 1, got %f", ErrInvalidConfig, cfg.SizeDiffFactor)
	}
	if !cfg.Strategy.Valid() {
		return fmt.Errorf("%w: invalid Strategy %q", ErrInvalidConfig, cfg.Strategy)
	}
	if cfg.Strategy == dip.StrategyBootstrap && cfg.Boots < 1 {
		return fmt.Errorf("%w: Boots must be >= 1, got %d", ErrInvalidConfig, cfg.Boots)
	}
	if cfg.AugmentationInvariance && cfg.TrainLoader == nil && cfg.Augment == nil {
		return fmt.Errorf("%w: AugmentationInvariance needs Augment or a TrainLoader with augmented batches", ErrInvalidConfig)
	}
	if cfg.Workers < 0 {
		return fmt.Errorf("%w: Workers must be >= 0, got %d", ErrInvalidConfig, cfg.Workers)
	}
	return nil
}

// dipOptions derives the dip matrix options of a run.
func (cfg *Config) dipOptions() DipOptions {
	return DipOptions{
		Strategy:       cfg.Strategy,
		Boots:          cfg.Boots,
		SizeDiffFactor: cfg.SizeDiffFactor,
		MinSampleSize:  DefaultMinSampleSize,
		Workers:        cfg.Workers,
	}
}

// Result contains the output of a DipDECK run.
type Result struct {
	// Labels assigns each sample to a cluster in [0, NClusters).
	Labels []int

	// NClusters is the final number of clusters.
	NClusters int

	// Centers holds one original-space representative sample per cluster.
	Centers *mat.Dense

	// Representatives are the dataset indices of the rows of Centers.
	Representatives []int

	// EmbeddedCenters are the representatives in embedding space.
	EmbeddedCenters *mat.Dense

	// DipMatrix holds the final pairwise dip p-values.
	DipMatrix *mat.SymDense

	// Network is the trained embedding network.
	Network Network

	// Initial is the clustering that seeded the run.
	Initial InitialClustering

	// Merges records every merge, forced merge and removal in order.
	Merges []MergeEvent

	// Epochs is the total number of clustering epochs run.
	Epochs int
}

// Predict assigns new samples to the cluster of their nearest embedded
// center.
func (r *Result) Predict(x *mat.Dense) []int {
	return AssignNearestParallel(r.Network.Encode(x), r.EmbeddedCenters, runtime.NumCPU())
}

// Reconstruct passes samples through the trained network.
func (r *Result) Reconstruct(x *mat.Dense) *mat.Dense {
	return r.Network.Decode(r.Network.Encode(x))
}

// Fit runs DipDECK on the rows of x. x may be nil when cfg.EvalLoader is
// set. Errors from the network or the initial clusterer are returned
// wrapped.
func Fit(x *mat.Dense, net Network, cfg Config) (*Result, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	if net == nil {
		return nil, errors.New("dipdeck: network must not be nil")
	}

	trainLoader, evalLoader := cfg.TrainLoader, cfg.EvalLoader
	if evalLoader != nil {
		rebuilt, err := collectPass(evalLoader)
		if err != nil {
			return nil, err
		}
		x = rebuilt
	}
	if x == nil || x.IsEmpty() {
		return nil, errors.New("dipdeck: no data")
	}
	n, _ := x.Dims()
	if trainLoader == nil {
		trainLoader = NewLoader(x, cfg.BatchSize, true, cfg.Rand, cfg.Augment)
	}
	if evalLoader == nil {
		evalLoader = NewLoader(x, cfg.BatchSize, false, nil, nil)
	}

	log := cfg.Logger.With().Str("component", "dipdeck").Logger()

	if err := pretrain(net, trainLoader, cfg, log); err != nil {
		return nil, err
	}

	embedded, recon, err := encodeBatchwise(evalLoader, net, n)
	if err != nil {
		return nil, err
	}
	log.Debug().Float64("reconstruction", recon).Msg("pretrained embedding")

	initial, err := RunInitialClustering(embedded, cfg.InitialClusterer, cfg.InitialClusters, cfg.Rand)
	if err != nil {
		return nil, err
	}
	if initial.NClusters < cfg.MinClusters {
		return nil, fmt.Errorf("%w: initial clustering found %d clusters, fewer than MinClusters (%d)",
			ErrInvalidConfig, initial.NClusters, cfg.MinClusters)
	}
	log.Info().Int("clusters", initial.NClusters).Msg("initial clustering")

	state, err := NewClusterState(x, embedded, initial.Labels, initial.Centers, cfg.dipOptions(), cfg.Rand)
	if err != nil {
		return nil, err
	}

	loop := &trainingLoop{
		cfg:   cfg,
		net:   net,
		opt:   net.NewOptimizer(cfg.ClusteringLearningRate),
		state: state,
		train: trainLoader,
		eval:  evalLoader,
		n:     n,
		log:   log,
	}
	if err := loop.run(); err != nil {
		return nil, err
	}

	return &Result{
		Labels:          append([]int(nil), state.Labels...),
		NClusters:       state.NClusters,
		Centers:         mat.DenseCopyOf(state.Centers),
		Representatives: append([]int(nil), state.Representatives...),
		EmbeddedCenters: mat.DenseCopyOf(state.EmbeddedCenters),
		DipMatrix:       state.DipMatrix,
		Network:         net,
		Initial:         initial,
		Merges:          loop.merges,
		Epochs:          loop.epochs,
	}, nil
}

// pretrain runs reconstruction-only epochs.
func pretrain(net Network, loader Loader, cfg Config, log zerolog.Logger) error {
	if cfg.PretrainEpochs == 0 {
		return nil
	}
	opt := net.NewOptimizer(cfg.PretrainLearningRate)
	for epoch := 0; epoch < cfg.PretrainEpochs; epoch++ {
		batches, err := loader.Batches()
		if err != nil {
			return fmt.Errorf("dipdeck: pretraining: %w", err)
		}
		var total float64
		for _, b := range batches {
			loss, err := opt.Step(TrainingStep{Views: []*mat.Dense{b.Data}}, nil)
			if err != nil {
				return fmt.Errorf("dipdeck: pretraining step: %w", err)
			}
			total += loss.Reconstruction
		}
		if len(batches) > 0 {
			log.Debug().Int("epoch", epoch).Float64("reconstruction", total/float64(len(batches))).Msg("pretrain epoch")
		}
	}
	return nil
}
