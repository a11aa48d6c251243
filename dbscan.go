package dipdeck

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

// DBSCAN is density-based clustering that determines the number of
// clusters itself. Points that are neither core points nor within Eps of
// one are labeled -1 (noise). Neighborhoods come from a spatial index and
// core points are joined with a union-find.
type DBSCAN struct {
	Eps       float64
	MinPoints int // including the point itself, default 5
	Metric    DistanceMetric
	Index     IndexKind
}

var _ SelfDeterminingClusterer = (*DBSCAN)(nil)

// DeterminesClusterCount implements SelfDeterminingClusterer.
func (*DBSCAN) DeterminesClusterCount() {}

// Fit clusters the rows of data. rng is unused.
func (db *DBSCAN) Fit(data *mat.Dense, _ *rand.Rand) (InitialClustering, error) {
	if db.Eps <= 0 {
		return InitialClustering{}, fmt.Errorf("dipdeck: DBSCAN Eps must be > 0, got %f", db.Eps)
	}
	minPts := db.MinPoints
	if minPts == 0 {
		minPts = 5
	}
	if minPts < 1 {
		return InitialClustering{}, fmt.Errorf("dipdeck: DBSCAN MinPoints must be >= 1, got %d", minPts)
	}
	if data.IsEmpty() {
		return InitialClustering{}, errors.New("dipdeck: DBSCAN needs data")
	}

	n, dims := data.Dims()
	tree, err := NewSpatialIndex(flatten(data), n, dims, db.Metric, db.Index)
	if err != nil {
		return InitialClustering{}, err
	}

	neighbors := make([][]int, n)
	core := make([]bool, n)
	for i := 0; i < n; i++ {
		neighbors[i] = tree.QueryRadius(data.RawRowView(i), db.Eps)
		core[i] = len(neighbors[i]) >= minPts
	}

	uf := NewUnionFind(n)
	for i := 0; i < n; i++ {
		if !core[i] {
			continue
		}
		for _, j := range neighbors[i] {
			if core[j] {
				uf.Union(i, j)
			}
		}
	}

	// Border points join the cluster of their first core neighbor.
	attached := make([]int, n)
	for i := range attached {
		attached[i] = -1
		if core[i] {
			attached[i] = i
			continue
		}
		for _, j := range neighbors[i] {
			if core[j] {
				attached[i] = j
				break
			}
		}
	}

	roots, k := uf.Components(func(i int) bool { return core[i] })
	labels := make([]int, n)
	for i, a := range attached {
		labels[i] = -1
		if a >= 0 {
			labels[i] = roots[a]
		}
	}
	return InitialClustering{Labels: labels, NClusters: k, Clusterer: db}, nil
}
