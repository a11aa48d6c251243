package dipdeck

import (
	"testing"

	"gonum.org/v1/gonum/mat"
)

// --- Spatial indexes ---

func benchNearest(b *testing.B, kind IndexKind, n, dims int) {
	b.Helper()
	data := randomPoints(n, dims, 42)
	queries := randomPoints(100, dims, 43)
	idx, err := NewSpatialIndex(data, n, dims, nil, kind)
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for q := 0; q < 100; q++ {
			idx.Nearest(queries[q*dims : (q+1)*dims])
		}
	}
}

func BenchmarkNearest_KDTree_5d(b *testing.B)     { benchNearest(b, IndexKDTree, 5000, 5) }
func BenchmarkNearest_BallTree_5d(b *testing.B)   { benchNearest(b, IndexBallTree, 5000, 5) }
func BenchmarkNearest_KDTree_100d(b *testing.B)   { benchNearest(b, IndexKDTree, 5000, 100) }
func BenchmarkNearest_BallTree_100d(b *testing.B) { benchNearest(b, IndexBallTree, 5000, 100) }

// --- Dip matrix ---

func benchDipMatrix(b *testing.B, k, size int) {
	b.Helper()
	centers := make([][]float64, k)
	for c := range centers {
		centers[c] = []float64{float64(c) * 4, float64(c%2) * 4}
	}
	x, labels := blobs(centers, size, 1, 42)
	means, _ := ClusterMeansParallel(x, labels, k, 1)
	opts := testDipOptions()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := ComputeDipMatrix(x, means, labels, k, opts, testRand(1)); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkDipMatrix_5x200(b *testing.B)  { benchDipMatrix(b, 5, 200) }
func BenchmarkDipMatrix_20x100(b *testing.B) { benchDipMatrix(b, 20, 100) }

// --- Nearest-center assignment ---

func benchAssign(b *testing.B, n, k, workers int) {
	b.Helper()
	points := mat.NewDense(n, 5, randomPoints(n, 5, 42))
	centers := mat.NewDense(k, 5, randomPoints(k, 5, 43))
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		AssignNearestParallel(points, centers, workers)
	}
}

func BenchmarkAssignNearest_10k_1(b *testing.B) { benchAssign(b, 10000, 30, 1) }
func BenchmarkAssignNearest_10k_4(b *testing.B) { benchAssign(b, 10000, 30, 4) }
