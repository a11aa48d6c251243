package dipdeck

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// KMeans is Lloyd's k-means with k-means++ seeding. The best of NInit runs
// by inertia is kept.
type KMeans struct {
	K         int     // Number of clusters
	NInit     int     // Restarts, default 10
	MaxIter   int     // Maximum Lloyd iterations, default 300
	Tolerance float64 // Convergence tolerance on inertia, default 1e-4

	Inertia float64
}

var _ ClusterCountClusterer = (*KMeans)(nil)

// SetClusterCount implements ClusterCountClusterer.
func (km *KMeans) SetClusterCount(k int) { km.K = k }

// Fit clusters the rows of data.
func (km *KMeans) Fit(data *mat.Dense, rng *rand.Rand) (InitialClustering, error) {
	if rng == nil {
		return InitialClustering{}, errors.New("dipdeck: k-means needs a random source")
	}
	n, _ := data.Dims()
	if km.K < 1 || km.K > n {
		return InitialClustering{}, fmt.Errorf("dipdeck: k-means needs 1 <= K <= %d, got %d", n, km.K)
	}
	nInit := km.NInit
	if nInit < 1 {
		nInit = 10
	}

	rows := denseRows(data)
	var (
		bestLabels  []int
		bestCenters [][]float64
	)
	km.Inertia = math.Inf(1)
	for run := 0; run < nInit; run++ {
		labels, centers, inertia := km.lloyd(rows, kMeansPlusPlus(rows, km.K, rng))
		if inertia < km.Inertia {
			km.Inertia, bestLabels, bestCenters = inertia, labels, centers
		}
	}

	_, dims := data.Dims()
	out := mat.NewDense(km.K, dims, nil)
	for c, center := range bestCenters {
		out.SetRow(c, center)
	}
	return InitialClustering{Labels: bestLabels, Centers: out, NClusters: km.K, Clusterer: km}, nil
}

func (km *KMeans) lloyd(rows, centers [][]float64) ([]int, [][]float64, float64) {
	maxIter := km.MaxIter
	if maxIter < 1 {
		maxIter = 300
	}
	tol := km.Tolerance
	if tol == 0 {
		tol = 1e-4
	}

	k, dims := len(centers), len(rows[0])
	labels := make([]int, len(rows))
	var inertia, prev float64
	for iter := 0; iter < maxIter; iter++ {
		inertia = 0
		for i, p := range rows {
			best, bestDist := 0, math.Inf(1)
			for c, center := range centers {
				if d := squaredEuclidean(p, center); d < bestDist {
					best, bestDist = c, d
				}
			}
			labels[i] = best
			inertia += bestDist
		}
		if iter > 0 && math.Abs(prev-inertia) < tol {
			break
		}
		prev = inertia

		counts := make([]int, k)
		next := make([][]float64, k)
		for c := range next {
			next[c] = make([]float64, dims)
		}
		for i, l := range labels {
			counts[l]++
			floats.Add(next[l], rows[i])
		}
		for c := range next {
			if counts[c] == 0 {
				copy(next[c], centers[c])
				continue
			}
			floats.Scale(1/float64(counts[c]), next[c])
		}
		centers = next
	}
	return labels, centers, inertia
}

// kMeansPlusPlus picks k initial centers by D² sampling.
func kMeansPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centers := make([][]float64, 0, k)
	centers = append(centers, append([]float64(nil), rows[rng.IntN(n)]...))

	dist := make([]float64, n)
	for i, p := range rows {
		dist[i] = squaredEuclidean(p, centers[0])
	}
	for len(centers) < k {
		total := floats.Sum(dist)
		next := rng.IntN(n)
		if total > 0 {
			target := rng.Float64() * total
			for i, d := range dist {
				target -= d
				if target <= 0 {
					next = i
					break
				}
			}
		}
		centers = append(centers, append([]float64(nil), rows[next]...))
		for i, p := range rows {
			dist[i] = min(dist[i], squaredEuclidean(p, centers[len(centers)-1]))
		}
	}
	return centers
}

// denseRows returns row views of m.
func denseRows(m *mat.Dense) [][]float64 {
	n, _ := m.Dims()
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = m.RawRowView(i)
	}
	return rows
}
