package dataset

import (
	"bytes"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestReadCSV(t *testing.T) {
	in := "a, b, class\n1, 2, cat\n3, 4, dog\n5, 6, cat\n"
	ds, err := ReadCSV(strings.NewReader(in), true, 2)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b"}, ds.Columns)
	assert.Equal(t, []int{0, 1, 0}, ds.Labels)
	assert.Equal(t, []string{"cat", "dog"}, ds.Classes)
	assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, ds.X.RawMatrix().Data)
}

func TestReadCSV_NoHeaderNoLabels(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader("1,2,3\n4,5,6\n"), false, -1)
	require.NoError(t, err)

	r, c := ds.X.Dims()
	assert.Equal(t, 2, r)
	assert.Equal(t, 3, c)
	assert.Nil(t, ds.Labels)
	assert.Equal(t, []string{"x0", "x1", "x2"}, ds.Columns)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		label int
	}{
		{"empty", "", -1},
		{"header only", "a,b\n", -1},
		{"non numeric", "a,b\n1,x\n", -1},
		{"label out of range", "a,b\n1,2\n", 5},
		{"only labels", "class\ncat\n", 0},
		{"ragged", "a,b\n1,2\n3\n", -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.in), true, tt.label)
			assert.Error(t, err)
		})
	}
}

func TestWriteAndLoadCSV(t *testing.T) {
	x := mat.NewDense(2, 2, []float64{0.5, -1, 1e-3, 42})
	path := filepath.Join(t.TempDir(), "data.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, WriteCSV(f, x, []string{"u", "v"}, []int{3, 7}))
	require.NoError(t, f.Close())

	ds, err := LoadCSV(path, true, 2)
	require.NoError(t, err)
	assert.True(t, mat.Equal(x, ds.X))
	assert.Equal(t, []string{"3", "7"}, ds.Classes)
	assert.Equal(t, []string{"u", "v"}, ds.Columns)

	_, err = LoadCSV(filepath.Join(t.TempDir(), "missing.csv"), true, -1)
	assert.Error(t, err)

	assert.Error(t, WriteCSV(&bytes.Buffer{}, x, nil, []int{1}))
}

func TestWriteLabels(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLabels(&buf, []int{2, 0}))
	assert.Equal(t, "index,label\n0,2\n1,0\n", buf.String())
}

func TestBlobs(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	ds, err := Blobs([][]float64{{0, 0}, {10, -10}}, 500, 2, rng)
	require.NoError(t, err)

	r, c := ds.X.Dims()
	assert.Equal(t, 1000, r)
	assert.Equal(t, 2, c)
	assert.Equal(t, 1, ds.Labels[500])

	second := ds.X.Slice(500, 1000, 0, 2).(*mat.Dense)
	assert.InDelta(t, 10, stat.Mean(mat.Col(nil, 0, second), nil), 0.3)
	assert.InDelta(t, -10, stat.Mean(mat.Col(nil, 1, second), nil), 0.3)
	assert.InDelta(t, 2, stat.StdDev(mat.Col(nil, 0, second), nil), 0.2)
}

func TestBlobs_Errors(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	_, err := Blobs(nil, 10, 1, rng)
	assert.Error(t, err)
	_, err = Blobs([][]float64{{0}}, 10, 0, rng)
	assert.Error(t, err)
	_, err = Blobs([][]float64{{0}, {1, 2}}, 10, 1, rng)
	assert.Error(t, err)
	_, err = Blobs([][]float64{{0}}, 10, 1, nil)
	assert.Error(t, err)
}

func TestRandomCenters(t *testing.T) {
	centers := RandomCenters(4, 3, 5, rand.New(rand.NewPCG(3, 4)))
	require.Len(t, centers, 4)
	for _, c := range centers {
		require.Len(t, c, 3)
		for _, v := range c {
			assert.True(t, v >= -5 && v <= 5)
		}
	}
}

func TestPurity(t *testing.T) {
	p, err := Purity([]int{0, 0, 1, 1, 1}, []int{5, 5, 7, 7, 5})
	require.NoError(t, err)
	// Class 5 mostly in cluster 0 (2 of 3), class 7 in cluster 1 (2 of 2).
	assert.InDelta(t, 0.8, p, 1e-12)

	_, err = Purity([]int{0}, nil)
	assert.Error(t, err)
	_, err = Purity(nil, nil)
	assert.Error(t, err)
}
