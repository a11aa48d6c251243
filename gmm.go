package dipdeck

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// GaussianMixture fits a mixture of axis-aligned Gaussians by EM, seeded
// with a single k-means run. Samples are labeled with their most likely
// component and the component means are returned as centers.
type GaussianMixture struct {
	Components int
	MaxIter    int     // default 100
	Tolerance  float64 // on the mean log-likelihood, default 1e-3
	RegCovar   float64 // added to every variance, default 1e-6

	Weights       []float64
	Means         *mat.Dense
	Variances     *mat.Dense
	LogLikelihood float64
}

var _ ComponentCountClusterer = (*GaussianMixture)(nil)

// SetComponentCount implements ComponentCountClusterer.
func (g *GaussianMixture) SetComponentCount(k int) { g.Components = k }

// Fit runs EM on the rows of data.
func (g *GaussianMixture) Fit(data *mat.Dense, rng *rand.Rand) (InitialClustering, error) {
	if rng == nil {
		return InitialClustering{}, errors.New("dipdeck: gaussian mixture needs a random source")
	}
	n, dims := data.Dims()
	k := g.Components
	if k < 1 || k > n {
		return InitialClustering{}, fmt.Errorf("dipdeck: gaussian mixture needs 1 <= Components <= %d, got %d", n, k)
	}
	maxIter := g.MaxIter
	if maxIter < 1 {
		maxIter = 100
	}
	tol := g.Tolerance
	if tol == 0 {
		tol = 1e-3
	}
	reg := g.RegCovar
	if reg == 0 {
		reg = 1e-6
	}

	seed := &KMeans{K: k, NInit: 1}
	init, err := seed.Fit(data, rng)
	if err != nil {
		return InitialClustering{}, err
	}
	resp := mat.NewDense(n, k, nil)
	for i, l := range init.Labels {
		resp.Set(i, l, 1)
	}

	rows := denseRows(data)
	g.Means = mat.NewDense(k, dims, nil)
	g.Variances = mat.NewDense(k, dims, nil)
	g.Weights = make([]float64, k)
	g.maximize(rows, resp, reg)

	logProb := make([]float64, k)
	prev := math.Inf(-1)
	for iter := 0; iter < maxIter; iter++ {
		var ll float64
		for i, x := range rows {
			for c := 0; c < k; c++ {
				logProb[c] = math.Log(g.Weights[c]) + g.componentLogProb(c, x)
			}
			norm := floats.LogSumExp(logProb)
			ll += norm
			for c := 0; c < k; c++ {
				resp.Set(i, c, math.Exp(logProb[c]-norm))
			}
		}
		ll /= float64(n)
		g.LogLikelihood = ll
		g.maximize(rows, resp, reg)
		if math.Abs(ll-prev) < tol {
			break
		}
		prev = ll
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = floats.MaxIdx(resp.RawRowView(i))
	}
	return InitialClustering{Labels: labels, Centers: mat.DenseCopyOf(g.Means), NClusters: k, Clusterer: g}, nil
}

// maximize updates weights, means and variances from the responsibilities.
func (g *GaussianMixture) maximize(rows [][]float64, resp *mat.Dense, reg float64) {
	n := float64(len(rows))
	k, dims := g.Means.Dims()
	for c := 0; c < k; c++ {
		var nk float64
		mean := g.Means.RawRowView(c)
		variance := g.Variances.RawRowView(c)
		for d := range mean {
			mean[d], variance[d] = 0, 0
		}
		for i, x := range rows {
			r := resp.At(i, c)
			nk += r
			floats.AddScaled(mean, r, x)
		}
		nk = max(nk, 10*math.SmallestNonzeroFloat64)
		floats.Scale(1/nk, mean)
		for i, x := range rows {
			r := resp.At(i, c)
			for d := 0; d < dims; d++ {
				diff := x[d] - mean[d]
				variance[d] += r * diff * diff
			}
		}
		for d := range variance {
			variance[d] = variance[d]/nk + reg
		}
		g.Weights[c] = nk / n
	}
}

func (g *GaussianMixture) componentLogProb(c int, x []float64) float64 {
	mean, variance := g.Means.RawRowView(c), g.Variances.RawRowView(c)
	var lp float64
	for d, v := range x {
		lp += distuv.Normal{Mu: mean[d], Sigma: math.Sqrt(variance[d])}.LogProb(v)
	}
	return lp
}
