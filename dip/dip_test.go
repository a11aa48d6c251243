package dip

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat/distuv"
)

func normalSample(n int, mu, sigma float64, seed uint64) []float64 {
	dist := distuv.Normal{Mu: mu, Sigma: sigma, Src: rand.NewPCG(seed, seed+1)}
	out := make([]float64, n)
	for i := range out {
		out[i] = dist.Rand()
	}
	return out
}

func bimodalSample(n int, gap float64, seed uint64) []float64 {
	left := normalSample(n/2, 0, 0.1, seed)
	right := normalSample(n-n/2, gap, 0.1, seed+7)
	return append(left, right...)
}

func TestStatistic_Degenerate(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
	}{
		{"empty", nil},
		{"single point", []float64{3}},
		{"identical points", []float64{2, 2, 2, 2, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, 0.0, Statistic(tt.values))
		})
	}
}

func TestStatistic_DoesNotModifyInput(t *testing.T) {
	values := []float64{5, 1, 4, 2, 3}
	Statistic(values)
	assert.Equal(t, []float64{5, 1, 4, 2, 3}, values)
}

func TestStatistic_Bounds(t *testing.T) {
	for seed := uint64(1); seed <= 20; seed++ {
		d := Statistic(normalSample(100, 0, 1, seed))
		assert.GreaterOrEqual(t, d, 0.0)
		assert.LessOrEqual(t, d, 0.25)
	}
}

func TestStatistic_TwoTightModesApproachQuarter(t *testing.T) {
	d := Statistic(bimodalSample(200, 10, 3))
	assert.InDelta(t, 0.25, d, 0.03)
}

func TestStatistic_UnimodalSmallerThanBimodal(t *testing.T) {
	uni := Statistic(normalSample(300, 0, 1, 11))
	bi := Statistic(bimodalSample(300, 5, 11))
	assert.Less(t, uni, bi)
	assert.Less(t, uni, 0.05)
}

func TestStatistic_OrderInvariant(t *testing.T) {
	values := normalSample(150, 0, 1, 5)
	reversed := make([]float64, len(values))
	for i, v := range values {
		reversed[len(values)-1-i] = v
	}
	assert.Equal(t, Statistic(values), Statistic(reversed))
}

func TestPValue_Strategies(t *testing.T) {
	bimodal := bimodalSample(200, 4, 21)

	for _, s := range []Strategy{StrategyTable, StrategyFunction, StrategyBootstrap} {
		t.Run(string(s), func(t *testing.T) {
			rng := rand.New(rand.NewPCG(1, 2))

			_, pBimodal, err := Test(bimodal, s, 200, rng)
			require.NoError(t, err)
			assert.Less(t, pBimodal, 0.01)

			// Single normal samples land anywhere in [0, 1]; their median
			// sits well above one half.
			ps := make([]float64, 0, 9)
			for seed := uint64(100); seed < 109; seed++ {
				_, p, err := Test(normalSample(1000, 0, 1, seed), s, 200, rng)
				require.NoError(t, err)
				assert.Greater(t, p, pBimodal, "seed %d", seed)
				ps = append(ps, p)
			}
			sort.Float64s(ps)
			assert.Greater(t, ps[len(ps)/2], 0.5)
		})
	}
}

func TestPValue_ZeroDipIsOne(t *testing.T) {
	for _, s := range []Strategy{StrategyTable, StrategyFunction, StrategyBootstrap} {
		p, err := PValue(0, 10, s, 50, rand.New(rand.NewPCG(3, 4)))
		require.NoError(t, err)
		assert.Equal(t, 1.0, p, "strategy %s", s)
	}
}

func TestPValue_Monotone(t *testing.T) {
	for _, s := range []Strategy{StrategyTable, StrategyFunction} {
		prev := 1.0
		for _, d := range []float64{0.01, 0.02, 0.03, 0.05, 0.08, 0.12} {
			p, err := PValue(d, 100, s, 0, nil)
			require.NoError(t, err)
			assert.LessOrEqual(t, p, prev, "strategy %s dip %v", s, d)
			assert.GreaterOrEqual(t, p, 0.0)
			prev = p
		}
	}
}

func TestPValue_BootstrapDeterministic(t *testing.T) {
	d := Statistic(normalSample(80, 0, 1, 9))
	p1, err := PValue(d, 80, StrategyBootstrap, 300, rand.New(rand.NewPCG(42, 42)))
	require.NoError(t, err)
	p2, err := PValue(d, 80, StrategyBootstrap, 300, rand.New(rand.NewPCG(42, 42)))
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
}

func TestPValue_Errors(t *testing.T) {
	_, err := PValue(0.1, 10, Strategy("nope"), 0, nil)
	assert.Error(t, err)

	_, err = PValue(-0.1, 10, StrategyTable, 0, nil)
	assert.Error(t, err)

	_, err = PValue(0.1, 10, StrategyBootstrap, 0, rand.New(rand.NewPCG(1, 1)))
	assert.Error(t, err)

	_, err = PValue(0.1, 10, StrategyBootstrap, 10, nil)
	assert.Error(t, err)
}

func TestStrategyValid(t *testing.T) {
	assert.True(t, StrategyTable.Valid())
	assert.True(t, StrategyFunction.Valid())
	assert.True(t, StrategyBootstrap.Valid())
	assert.False(t, Strategy("").Valid())
}

func TestCriticalTable_RowsNonDecreasing(t *testing.T) {
	tbl := criticalValues()
	require.Len(t, tbl.scaled, len(tableSizes))
	for r, row := range tbl.scaled {
		for k := 1; k < len(row); k++ {
			assert.GreaterOrEqual(t, row[k], row[k-1], "row %d col %d", r, k)
		}
		assert.Greater(t, tbl.beta[r], 0.0, "logit(prob) grows with the critical value")
	}
}

func TestSimulateTable_DeterministicAndComplete(t *testing.T) {
	sizes := []int{5, 20, 100}
	a := simulateTable(sizes, tableProbs, 200, 7)
	b := simulateTable(sizes, tableProbs, 200, 7)

	assert.Equal(t, a.scaled, b.scaled)
	assert.Equal(t, a.alpha, b.alpha)
	for r, row := range a.scaled {
		require.Len(t, row, len(tableProbs), "row %d filled", r)
		assert.Equal(t, float64(sizes[r]), a.sizes[r])
		assert.Greater(t, row[len(row)-1], 0.0)
	}
}

func TestInterp(t *testing.T) {
	xp := []float64{0, 1, 1, 2}
	fp := []float64{0, 0.5, 0.6, 1}
	assert.Equal(t, 0.0, interp(-1, xp, fp))
	assert.Equal(t, 1.0, interp(3, xp, fp))
	assert.InDelta(t, 0.25, interp(0.5, xp, fp), 1e-12)
	assert.InDelta(t, 0.8, interp(1.5, xp, fp), 1e-12)
}
