package dipdeck

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// InitialClustering is the output of an initial clusterer. Negative labels
// mark noise. Centers may be nil, in which case RunInitialClustering derives
// them as per-cluster means.
type InitialClustering struct {
	Labels    []int
	Centers   *mat.Dense
	NClusters int
	// Clusterer is the fitted clusterer.
	Clusterer InitialClusterer
}

// InitialClusterer clusters embedded data once to seed DipDECK. Every
// implementation must also implement exactly one of
// ClusterCountClusterer, ComponentCountClusterer or
// SelfDeterminingClusterer.
type InitialClusterer interface {
	Fit(data *mat.Dense, rng *rand.Rand) (InitialClustering, error)
}

// ClusterCountClusterer takes an explicit cluster count (k-means style).
type ClusterCountClusterer interface {
	InitialClusterer
	SetClusterCount(k int)
}

// ComponentCountClusterer takes a mixture component count.
type ComponentCountClusterer interface {
	InitialClusterer
	SetComponentCount(k int)
}

// SelfDeterminingClusterer infers the cluster count itself (density based).
type SelfDeterminingClusterer interface {
	InitialClusterer
	DeterminesClusterCount()
}

// RunInitialClustering configures c with the requested cluster count
// according to its capability, fits it on data and normalizes the result:
// labels are compacted to [0, NClusters), centers are derived from the
// non-noise members when c returns none, and noise samples are assigned to
// their nearest center.
func RunInitialClustering(data *mat.Dense, c InitialClusterer, k int, rng *rand.Rand) (InitialClustering, error) {
	switch v := c.(type) {
	case ClusterCountClusterer:
		if k < 1 {
			return InitialClustering{}, fmt.Errorf("%w: %T needs InitialClusters >= 1, got %d", ErrInvalidConfig, c, k)
		}
		v.SetClusterCount(k)
	case ComponentCountClusterer:
		if k < 1 {
			return InitialClustering{}, fmt.Errorf("%w: %T needs InitialClusters >= 1, got %d", ErrInvalidConfig, c, k)
		}
		v.SetComponentCount(k)
	case SelfDeterminingClusterer:
	default:
		return InitialClustering{}, fmt.Errorf("%w: initial clusterer %T declares no cluster count capability", ErrInvalidConfig, c)
	}

	res, err := c.Fit(data, rng)
	if err != nil {
		return InitialClustering{}, fmt.Errorf("dipdeck: initial clustering: %w", err)
	}
	n, _ := data.Dims()
	if len(res.Labels) != n {
		return InitialClustering{}, fmt.Errorf("dipdeck: initial clustering returned %d labels for %d samples", len(res.Labels), n)
	}

	// Compact the non-negative ids in ascending order.
	seen := make(map[int]bool)
	var ids []int
	for _, l := range res.Labels {
		if l >= 0 && !seen[l] {
			seen[l] = true
			ids = append(ids, l)
		}
	}
	if len(ids) == 0 {
		return InitialClustering{}, fmt.Errorf("dipdeck: initial clustering found no clusters")
	}
	sort.Ints(ids)
	remap := make(map[int]int, len(ids))
	for i, id := range ids {
		remap[id] = i
	}
	labels := make([]int, n)
	for i, l := range res.Labels {
		labels[i] = -1
		if l >= 0 {
			labels[i] = remap[l]
		}
	}
	k = len(ids)

	var centers *mat.Dense
	if res.Centers != nil {
		rows, dims := res.Centers.Dims()
		if ids[len(ids)-1] >= rows {
			return InitialClustering{}, fmt.Errorf("dipdeck: initial clustering returned %d centers but label %d", rows, ids[len(ids)-1])
		}
		centers = mat.NewDense(k, dims, nil)
		for i, id := range ids {
			centers.SetRow(i, res.Centers.RawRowView(id))
		}
	} else {
		centers, _ = ClusterMeansParallel(data, labels, k, 1)
	}

	for i, l := range labels {
		if l >= 0 {
			continue
		}
		row := data.RawRowView(i)
		best, bestDist := 0, math.Inf(1)
		for c := 0; c < k; c++ {
			if d := squaredEuclidean(row, centers.RawRowView(c)); d < bestDist {
				best, bestDist = c, d
			}
		}
		labels[i] = best
	}

	return InitialClustering{Labels: labels, Centers: centers, NClusters: k, Clusterer: c}, nil
}
