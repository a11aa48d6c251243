package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/TrevorS/dipdeck"
	"github.com/TrevorS/dipdeck/autoencoder"
	"github.com/TrevorS/dipdeck/internal/dataset"
	"github.com/TrevorS/dipdeck/internal/store"
)

var (
	dataPath    string
	outputPath  string
	metricsAddr string
	noSave      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Cluster a CSV dataset and store the result",
	RunE: func(cmd *cobra.Command, args []string) error {
		if dataPath != "" {
			cfg.Data.Path = dataPath
		}
		if metricsAddr != "" {
			cfg.Metrics.Addr = metricsAddr
		}

		ds, err := dataset.LoadCSV(cfg.Data.Path, cfg.Data.Header, cfg.Data.LabelColumn)
		if err != nil {
			return fmt.Errorf("loading data: %w", err)
		}
		n, features := ds.X.Dims()
		log.Info().Str("path", cfg.Data.Path).Int("samples", n).Int("features", features).Msg("data loaded")

		dc, err := cfg.ToDipdeck()
		if err != nil {
			return err
		}
		logger := log.Logger
		dc.Logger = &logger

		if cfg.Metrics.Addr != "" {
			dc.Metrics = dipdeck.NewMetrics("dipdeck")
			stop, err := serveMetrics(cfg.Metrics.Addr, dc.Metrics)
			if err != nil {
				return err
			}
			defer stop()
		}

		rng := rand.New(rand.NewPCG(cfg.Clustering.Seed, cfg.Clustering.Seed+1))
		net, err := autoencoder.New(cfg.Network(features), rng)
		if err != nil {
			return err
		}
		dc.Rand = rng

		start := time.Now()
		res, err := dipdeck.Fit(ds.X, net, dc)
		if err != nil {
			return err
		}

		run := store.NewRun(res, cfg.Data.Path)
		if run.Config, err = json.Marshal(cfg.Clustering); err != nil {
			return err
		}
		fmt.Printf("Clusters: %d (from %d initial)\n", res.NClusters, res.Initial.NClusters)
		fmt.Printf("Epochs:   %d\n", res.Epochs)
		fmt.Printf("Merges:   %d\n", len(res.Merges))
		fmt.Printf("Took:     %s\n", time.Since(start).Round(time.Millisecond))
		if ds.Labels != nil {
			purity, err := dataset.Purity(res.Labels, ds.Labels)
			if err != nil {
				return err
			}
			run.Purity = &purity
			fmt.Printf("Purity:   %.4f\n", purity)
		}

		if outputPath != "" {
			f, err := os.Create(outputPath)
			if err != nil {
				return fmt.Errorf("creating output: %w", err)
			}
			if err := dataset.WriteLabels(f, res.Labels); err != nil {
				f.Close()
				return fmt.Errorf("writing labels: %w", err)
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Printf("Labels:   %s\n", outputPath)
		}

		if noSave {
			return nil
		}
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()
		id, err := db.SaveRun(run)
		if err != nil {
			return fmt.Errorf("saving run: %w", err)
		}
		fmt.Printf("Run:      %s\n", id)
		return nil
	},
}

// serveMetrics exposes m on addr until the returned function is called.
func serveMetrics(addr string, m *dipdeck.Metrics) (func(), error) {
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server failed")
		}
	}()
	log.Info().Str("addr", addr).Msg("serving metrics")

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}

var (
	genCenters int
	genDims    int
	genSize    int
	genSigma   float64
	genSpread  float64
	genSeed    uint64
)

var generateCmd = &cobra.Command{
	Use:   "generate <output.csv>",
	Short: "Write a synthetic Gaussian blob dataset with a label column",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rng := rand.New(rand.NewPCG(genSeed, genSeed+1))
		centers := dataset.RandomCenters(genCenters, genDims, genSpread, rng)
		ds, err := dataset.Blobs(centers, genSize, genSigma, rng)
		if err != nil {
			return err
		}

		f, err := os.Create(args[0])
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		if err := dataset.WriteCSV(f, ds.X, ds.Columns, ds.Labels); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return err
		}
		n, _ := ds.X.Dims()
		fmt.Printf("Wrote %d samples in %d blobs to %s (label column %d)\n", n, genCenters, args[0], genDims)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVarP(&dataPath, "data", "d", "", "CSV file to cluster (overrides data.path)")
	runCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write index,label CSV here")
	runCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "Do not store the run")

	generateCmd.Flags().IntVar(&genCenters, "centers", 5, "Number of blobs")
	generateCmd.Flags().IntVar(&genDims, "dims", 10, "Number of features")
	generateCmd.Flags().IntVar(&genSize, "size", 200, "Samples per blob")
	generateCmd.Flags().Float64Var(&genSigma, "sigma", 1, "Standard deviation of every blob")
	generateCmd.Flags().Float64Var(&genSpread, "spread", 10, "Centers are drawn from [-spread, spread] per feature")
	generateCmd.Flags().Uint64Var(&genSeed, "seed", 0, "Random seed")
}
