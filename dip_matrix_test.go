package dipdeck

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/TrevorS/dipdeck/dip"
)

func dipMatrixFor(t *testing.T, x *mat.Dense, labels []int, k int, opts DipOptions, seed uint64) *mat.SymDense {
	t.Helper()
	centers, _ := ClusterMeansParallel(x, labels, k, 1)
	m, err := ComputeDipMatrix(x, centers, labels, k, opts, testRand(seed))
	require.NoError(t, err)
	return m
}

func TestComputeDipMatrix_SymmetricZeroDiagonal(t *testing.T) {
	x, truth := blobs([][]float64{{0, 0}, {8, 0}, {0, 8}, {3, 3}}, 40, 1.5, 5)
	for _, s := range []dip.Strategy{dip.StrategyTable, dip.StrategyFunction, dip.StrategyBootstrap} {
		t.Run(string(s), func(t *testing.T) {
			opts := testDipOptions()
			opts.Strategy = s
			m := dipMatrixFor(t, x, truth, 4, opts, 1)
			for i := 0; i < 4; i++ {
				assert.Equal(t, 0.0, m.At(i, i))
				for j := 0; j < 4; j++ {
					assert.Equal(t, m.At(i, j), m.At(j, i))
					assert.GreaterOrEqual(t, m.At(i, j), 0.0)
					assert.LessOrEqual(t, m.At(i, j), 1.0)
				}
			}
		})
	}
}

func TestComputeDipMatrix_SeparatedBlobs(t *testing.T) {
	x, truth := blobs([][]float64{{0, 0}, {20, 0}}, 100, 1, 42)
	m := dipMatrixFor(t, x, truth, 2, testDipOptions(), 1)
	assert.Less(t, m.At(0, 1), 0.05)
}

func TestComputeDipMatrix_OverlappingBlobs(t *testing.T) {
	x, truth := blobs([][]float64{{0, 0}, {0.5, 0}}, 500, 1, 42)
	m := dipMatrixFor(t, x, truth, 2, testDipOptions(), 1)
	assert.Greater(t, m.At(0, 1), 0.9)
}

func TestComputeDipMatrix_CorrectionNeverRaisesPValue(t *testing.T) {
	// A large blob next to a small one triggers the size-imbalance
	// correction.
	big, _ := blobs([][]float64{{0, 0}}, 400, 1, 3)
	small, _ := blobs([][]float64{{2.5, 0}}, 30, 0.7, 4)
	x := mat.NewDense(430, 2, nil)
	x.Stack(big, small)
	labels := make([]int, 430)
	for i := 400; i < 430; i++ {
		labels[i] = 1
	}

	for _, s := range []dip.Strategy{dip.StrategyTable, dip.StrategyFunction} {
		plain := testDipOptions()
		plain.Strategy = s
		plain.SizeDiffFactor = 1e9
		corrected := plain
		corrected.SizeDiffFactor = 2

		uncorrected := dipMatrixFor(t, x, labels, 2, plain, 1).At(0, 1)
		got := dipMatrixFor(t, x, labels, 2, corrected, 1).At(0, 1)
		assert.LessOrEqual(t, got, uncorrected, "strategy %s", s)
	}
}

func TestComputeDipMatrix_BootstrapIndependentOfWorkers(t *testing.T) {
	x, truth := blobs([][]float64{{0, 0}, {3, 0}, {0, 3}}, 40, 1, 9)
	opts := testDipOptions()
	opts.Strategy = dip.StrategyBootstrap
	opts.Boots = 200

	opts.Workers = 1
	serial := dipMatrixFor(t, x, truth, 3, opts, 77)
	opts.Workers = 8
	parallel := dipMatrixFor(t, x, truth, 3, opts, 77)
	assert.True(t, mat.Equal(serial, parallel))
}

func TestComputeDipMatrix_DegeneratePairs(t *testing.T) {
	// Cluster 1 is a single sample and cluster 2 is empty: both yield a
	// zero dip and p-value 1 against cluster 0's duplicated points.
	x := mat.NewDense(4, 1, []float64{1, 1, 1, 5})
	labels := []int{0, 0, 0, 1}
	centers := mat.NewDense(3, 1, []float64{1, 5, 9})
	m, err := ComputeDipMatrix(x, centers, labels, 3, testDipOptions(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.At(1, 2))
	assert.Equal(t, 1.0, m.At(0, 2))
}

func TestComputeDipMatrix_Errors(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{0, 1})
	centers := mat.NewDense(2, 1, []float64{0, 1})

	_, err := ComputeDipMatrix(x, centers, []int{0, 1}, 0, testDipOptions(), nil)
	assert.Error(t, err)

	_, err = ComputeDipMatrix(x, centers, []int{0, 1}, 3, testDipOptions(), nil)
	assert.Error(t, err)

	opts := testDipOptions()
	opts.Strategy = dip.StrategyBootstrap
	_, err = ComputeDipMatrix(x, centers, []int{0, 1}, 2, opts, nil)
	assert.Error(t, err)
}

func TestNearestMembers(t *testing.T) {
	embedded := mat.NewDense(8, 1, []float64{0, 1, 2, 3, 4, 5, 6, 7})
	members := []int{7, 6, 5, 4, 3, 2}
	opts := DipOptions{SizeDiffFactor: 2, MinSampleSize: 0}

	got := nearestMembers(embedded, members, []float64{0}, 1, opts)
	assert.Equal(t, []int{2, 3}, got)

	// The floor raises the sample to MinSampleSize-smaller, capped by the
	// members available.
	opts.MinSampleSize = 5
	got = nearestMembers(embedded, members, []float64{0}, 1, opts)
	assert.Equal(t, []int{2, 3, 4, 5}, got)

	opts.MinSampleSize = 50
	got = nearestMembers(embedded, members, []float64{0}, 1, opts)
	assert.Len(t, got, len(members))
}
