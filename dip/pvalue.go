package dip

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
)

// Strategy selects how a dip statistic is converted into a p-value.
type Strategy string

const (
	// StrategyTable interpolates a table of critical values of sqrt(n)*dip
	// under the uniform null distribution.
	StrategyTable Strategy = "table"
	// StrategyFunction evaluates a logistic curve in sqrt(n)*dip fitted to
	// the critical value table.
	StrategyFunction Strategy = "function"
	// StrategyBootstrap compares against dips of uniform samples of the same
	// size drawn from the supplied random source.
	StrategyBootstrap Strategy = "bootstrap"
)

// Valid reports whether s names a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyTable, StrategyFunction, StrategyBootstrap:
		return true
	}
	return false
}

// PValue converts the dip statistic of a sample of size n into a p-value in
// [0, 1]. boots and rng are only used by StrategyBootstrap.
func PValue(dip float64, n int, strategy Strategy, boots int, rng *rand.Rand) (float64, error) {
	if dip < 0 || math.IsNaN(dip) {
		return 0, fmt.Errorf("dip: invalid dip value %v", dip)
	}
	switch strategy {
	case StrategyTable:
		return tablePValue(dip, n), nil
	case StrategyFunction:
		return functionPValue(dip, n), nil
	case StrategyBootstrap:
		if boots < 1 {
			return 0, fmt.Errorf("dip: bootstrap needs at least one draw, got %d", boots)
		}
		if rng == nil {
			return 0, fmt.Errorf("dip: bootstrap needs a random source")
		}
		return bootstrapPValue(dip, n, boots, rng), nil
	default:
		return 0, fmt.Errorf("dip: unknown p-value strategy %q", strategy)
	}
}

// Test computes the dip of values and its p-value in one call.
func Test(values []float64, strategy Strategy, boots int, rng *rand.Rand) (dip, p float64, err error) {
	dip = Statistic(values)
	p, err = PValue(dip, len(values), strategy, boots, rng)
	return dip, p, err
}

// bootstrapPValue is the fraction of uniform samples whose dip is at least dip.
func bootstrapPValue(dip float64, n, boots int, rng *rand.Rand) float64 {
	sample := make([]float64, n)
	hits := 0
	for b := 0; b < boots; b++ {
		for i := range sample {
			sample[i] = rng.Float64()
		}
		sort.Float64s(sample)
		if StatisticSorted(sample) >= dip {
			hits++
		}
	}
	return float64(hits) / float64(boots)
}

// interp is piecewise linear interpolation of (xp, fp) at x, clamped to the
// end values outside [xp[0], xp[len-1]]. xp must be non-decreasing.
func interp(x float64, xp, fp []float64) float64 {
	last := len(xp) - 1
	if x <= xp[0] {
		return fp[0]
	}
	if x >= xp[last] {
		return fp[last]
	}
	i := sort.SearchFloat64s(xp, x)
	x0, x1 := xp[i-1], xp[i]
	if x1 == x0 {
		return fp[i]
	}
	return fp[i-1] + (fp[i]-fp[i-1])*(x-x0)/(x1-x0)
}
