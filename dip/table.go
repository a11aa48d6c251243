package dip

import (
	"math"
	"math/rand/v2"
	"runtime"
	"slices"
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// Sample sizes and cumulative probabilities of the critical value table.
var (
	tableSizes = []int{4, 5, 6, 7, 8, 9, 10, 15, 20, 30, 50, 100, 200, 500, 1000, 2000}
	tableProbs = []float64{
		0, 0.01, 0.02, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9,
		0.95, 0.98, 0.99, 0.995, 0.998, 0.999, 1,
	}
)

const (
	tableReps = 2000
	tableSeed = 0x5eed_d1b7
)

// criticalTable holds, per sample size, quantiles of sqrt(n)*dip for uniform
// samples and the logistic fit logit(prob) = alpha + beta*sqrt(n)*dip.
type criticalTable struct {
	sizes  []float64
	scaled [][]float64
	alpha  []float64
	beta   []float64
}

var (
	tableOnce sync.Once
	table     *criticalTable
)

// criticalValues returns the lazily simulated table. The simulation is seeded
// with a fixed value, so every process sees identical critical values.
func criticalValues() *criticalTable {
	tableOnce.Do(func() {
		table = simulateTable(tableSizes, tableProbs, tableReps, tableSeed)
	})
	return table
}

func simulateTable(sizes []int, probs []float64, reps int, seed uint64) *criticalTable {
	t := &criticalTable{
		sizes:  make([]float64, len(sizes)),
		scaled: make([][]float64, len(sizes)),
		alpha:  make([]float64, len(sizes)),
		beta:   make([]float64, len(sizes)),
	}

	var wg sync.WaitGroup
	sem := make(chan struct{}, runtime.NumCPU())
	for r, n := range sizes {
		t.sizes[r] = float64(n)
		wg.Go(func() {
			sem <- struct{}{}
			defer func() { <-sem }()
			rng := rand.New(rand.NewPCG(seed, uint64(n)))
			dips := make([]float64, reps)
			sample := make([]float64, n)
			for i := range dips {
				for j := range sample {
					sample[j] = rng.Float64()
				}
				sort.Float64s(sample)
				dips[i] = math.Sqrt(float64(n)) * StatisticSorted(sample)
			}
			slices.Sort(dips)

			row := make([]float64, len(probs))
			for k, p := range probs {
				row[k] = stat.Quantile(p, stat.Empirical, dips, nil)
			}
			t.scaled[r] = row
			t.alpha[r], t.beta[r] = fitLogistic(row, probs)
		})
	}
	wg.Wait()
	return t
}

// fitLogistic regresses logit(prob) on the scaled critical values, skipping
// the 0 and 1 endpoints.
func fitLogistic(scaled, probs []float64) (alpha, beta float64) {
	var xs, ys []float64
	for k, p := range probs {
		if p <= 0 || p >= 1 {
			continue
		}
		xs = append(xs, scaled[k])
		ys = append(ys, math.Log(p/(1-p)))
	}
	return stat.LinearRegression(xs, ys, nil, false)
}

// rowWeights locates n between two table rows and returns their indices and
// the interpolation fraction towards the upper row, clamped to [0, 1].
func (t *criticalTable) rowWeights(n int) (i0, i1 int, frac float64) {
	fn := float64(n)
	i1 = sort.SearchFloat64s(t.sizes, fn)
	if i1 == 0 {
		return 0, 0, 0
	}
	if i1 == len(t.sizes) {
		last := len(t.sizes) - 1
		return last, last, 0
	}
	i0 = i1 - 1
	frac = (fn - t.sizes[i0]) / (t.sizes[i1] - t.sizes[i0])
	return i0, i1, frac
}

func tablePValue(dip float64, n int) float64 {
	t := criticalValues()
	i0, i1, frac := t.rowWeights(n)
	row := make([]float64, len(tableProbs))
	for k := range row {
		y0, y1 := t.scaled[i0][k], t.scaled[i1][k]
		row[k] = y0 + frac*(y1-y0)
	}
	// Interpolated rows can lose monotonicity only through rounding.
	for k := 1; k < len(row); k++ {
		row[k] = max(row[k], row[k-1])
	}
	sd := math.Sqrt(float64(n)) * dip
	return clamp01(1 - interp(sd, row, tableProbs))
}

func functionPValue(dip float64, n int) float64 {
	if dip == 0 {
		return 1
	}
	t := criticalValues()
	i0, i1, frac := t.rowWeights(n)
	alpha := t.alpha[i0] + frac*(t.alpha[i1]-t.alpha[i0])
	beta := t.beta[i0] + frac*(t.beta[i1]-t.beta[i0])
	sd := math.Sqrt(float64(n)) * dip
	return clamp01(1 - 1/(1+math.Exp(-(alpha+beta*sd))))
}

func clamp01(v float64) float64 {
	return math.Min(1, math.Max(0, v))
}
