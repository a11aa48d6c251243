package dipdeck

import (
	"errors"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

var threeBlobCenters = [][]float64{{0, 0}, {20, 0}, {0, 20}}

func TestKMeans_Blobs(t *testing.T) {
	x, truth := blobs(threeBlobCenters, 100, 1, 1)
	km := &KMeans{K: 3}
	res, err := km.Fit(x, testRand(2))
	require.NoError(t, err)

	assert.Equal(t, 3, res.NClusters)
	assert.Equal(t, 1.0, majorityPurity(res.Labels, truth))
	assert.Greater(t, km.Inertia, 0.0)

	rows, cols := res.Centers.Dims()
	assert.Equal(t, 3, rows)
	assert.Equal(t, 2, cols)
}

func TestKMeans_Errors(t *testing.T) {
	x, _ := blobs(threeBlobCenters, 2, 1, 1)

	_, err := (&KMeans{K: 0}).Fit(x, testRand(1))
	assert.Error(t, err)
	_, err = (&KMeans{K: 7}).Fit(x, testRand(1))
	assert.Error(t, err)
	_, err = (&KMeans{K: 2}).Fit(x, nil)
	assert.Error(t, err)
}

func TestKMeans_Deterministic(t *testing.T) {
	x, _ := blobs(threeBlobCenters, 50, 3, 4)
	a, err := (&KMeans{K: 5}).Fit(x, testRand(9))
	require.NoError(t, err)
	b, err := (&KMeans{K: 5}).Fit(x, testRand(9))
	require.NoError(t, err)
	assert.Equal(t, a.Labels, b.Labels)
}

func TestGaussianMixture_Blobs(t *testing.T) {
	x, truth := blobs(threeBlobCenters, 100, 1, 3)
	gmm := &GaussianMixture{Components: 3}
	res, err := gmm.Fit(x, testRand(5))
	require.NoError(t, err)

	assert.Equal(t, 3, res.NClusters)
	assert.Equal(t, 1.0, majorityPurity(res.Labels, truth))
	assert.InDelta(t, 1.0, gmm.Weights[0]+gmm.Weights[1]+gmm.Weights[2], 1e-9)
	for c := 0; c < 3; c++ {
		for d := 0; d < 2; d++ {
			// Unit-variance blobs.
			assert.InDelta(t, 1.0, gmm.Variances.At(c, d), 0.4)
		}
	}
}

func TestDBSCAN_FindsBlobsAndNoise(t *testing.T) {
	x, truth := blobs(threeBlobCenters[:2], 100, 0.3, 6)
	data := mat.NewDense(201, 2, nil)
	data.Slice(0, 200, 0, 2).(*mat.Dense).Copy(x)
	data.SetRow(200, []float64{10, 50})

	res, err := (&DBSCAN{Eps: 1.5, MinPoints: 5}).Fit(data, nil)
	require.NoError(t, err)

	assert.Equal(t, 2, res.NClusters)
	assert.Equal(t, -1, res.Labels[200])
	assert.Equal(t, 1.0, majorityPurity(res.Labels[:200], truth))
	assert.Nil(t, res.Centers)
}

func TestDBSCAN_Errors(t *testing.T) {
	x := mat.NewDense(3, 1, []float64{0, 1, 2})
	_, err := (&DBSCAN{}).Fit(x, nil)
	assert.Error(t, err)
	_, err = (&DBSCAN{Eps: 1, MinPoints: -1}).Fit(x, nil)
	assert.Error(t, err)
}

// fixedClusterer returns a canned clustering and records the count it was
// configured with.
type fixedClusterer struct {
	res InitialClustering
	err error
	k   int
}

func (f *fixedClusterer) SetClusterCount(k int) { f.k = k }

func (f *fixedClusterer) Fit(*mat.Dense, *rand.Rand) (InitialClustering, error) {
	return f.res, f.err
}

type selfDetermining struct {
	res InitialClustering
}

func (*selfDetermining) DeterminesClusterCount() {}

func (s *selfDetermining) Fit(*mat.Dense, *rand.Rand) (InitialClustering, error) {
	return s.res, nil
}

type noCapability struct{}

func (noCapability) Fit(*mat.Dense, *rand.Rand) (InitialClustering, error) {
	return InitialClustering{}, nil
}

func TestRunInitialClustering_Dispatch(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{0, 1})

	c := &fixedClusterer{res: InitialClustering{Labels: []int{0, 1}}}
	_, err := RunInitialClustering(x, c, 2, testRand(1))
	require.NoError(t, err)
	assert.Equal(t, 2, c.k)

	_, err = RunInitialClustering(x, c, 0, testRand(1))
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	s := &selfDetermining{res: InitialClustering{Labels: []int{0, 0}}}
	res, err := RunInitialClustering(x, s, 0, testRand(1))
	require.NoError(t, err)
	assert.Equal(t, 1, res.NClusters)

	_, err = RunInitialClustering(x, noCapability{}, 2, testRand(1))
	assert.True(t, errors.Is(err, ErrInvalidConfig))

	gmm := &GaussianMixture{}
	_, err = RunInitialClustering(x, gmm, 2, testRand(1))
	require.NoError(t, err)
	assert.Equal(t, 2, gmm.Components)
}

func TestRunInitialClustering_CompactsAndMapsNoise(t *testing.T) {
	x := mat.NewDense(6, 1, []float64{0, 1, 10, 11, 4, 9})
	s := &selfDetermining{res: InitialClustering{Labels: []int{3, 3, 7, 7, -1, -1}}}

	res, err := RunInitialClustering(x, s, 0, testRand(1))
	require.NoError(t, err)

	assert.Equal(t, 2, res.NClusters)
	// Means 0.5 and 10.5; 4 is nearer to the first, 9 to the second.
	assert.Equal(t, []int{0, 0, 1, 1, 0, 1}, res.Labels)
	assert.InDelta(t, 0.5, res.Centers.At(0, 0), floatTol)
	assert.InDelta(t, 10.5, res.Centers.At(1, 0), floatTol)
}

func TestRunInitialClustering_ReordersGivenCenters(t *testing.T) {
	x := mat.NewDense(4, 1, []float64{0, 1, 10, 11})
	centers := mat.NewDense(3, 1, []float64{100, 0.5, 10.5})
	c := &fixedClusterer{res: InitialClustering{Labels: []int{1, 1, 2, 2}, Centers: centers}}

	res, err := RunInitialClustering(x, c, 3, testRand(1))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 1, 1}, res.Labels)
	assert.Equal(t, []float64{0.5, 10.5}, res.Centers.RawMatrix().Data)
}

func TestRunInitialClustering_Errors(t *testing.T) {
	x := mat.NewDense(2, 1, []float64{0, 1})
	tests := []struct {
		name string
		res  InitialClustering
		err  error
	}{
		{"clusterer error", InitialClustering{}, errors.New("boom")},
		{"wrong label count", InitialClustering{Labels: []int{0}}, nil},
		{"all noise", InitialClustering{Labels: []int{-1, -1}}, nil},
		{"too few centers", InitialClustering{Labels: []int{0, 3}, Centers: mat.NewDense(2, 1, nil)}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &fixedClusterer{res: tt.res, err: tt.err}
			_, err := RunInitialClustering(x, c, 2, testRand(1))
			assert.Error(t, err)
		})
	}
}
