package dipdeck

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// MergeKind tells how a cluster disappeared.
type MergeKind string

const (
	// MergeNatural is a merge of a pair whose dip p-value reached the threshold.
	MergeNatural MergeKind = "merge"
	// MergeForced is a merge of the highest-dip pair to respect MaxClusters.
	MergeForced MergeKind = "force_merge"
	// MergeRemoval dissolves a tiny cluster to respect MaxClusters.
	MergeRemoval MergeKind = "remove"
)

// MergeEvent records one reduction of the cluster count.
type MergeEvent struct {
	Kind MergeKind `json:"kind"`
	// Epoch is the number of clustering epochs run before the event.
	Epoch int `json:"epoch"`
	// A and B are the ids of the merged pair before the event. B is -1 for
	// a removal.
	A int `json:"a"`
	B int `json:"b"`
	// PValue is the dip p-value of the pair, 0 for a removal.
	PValue float64 `json:"p_value"`
	// Size is the combined member count of the affected clusters.
	Size int `json:"size"`
	// NClusters is the cluster count after the event.
	NClusters int `json:"n_clusters"`
}

// RelabelForMerge maps a cluster id from before merging a and b to its id
// among nAfter clusters afterwards. The merged pair becomes nAfter-1, ids
// below both are kept, ids between them shift down by one and ids above
// both shift down by two.
func RelabelForMerge(label, a, b, nAfter int) int {
	lo, hi := min(a, b), max(a, b)
	switch {
	case label == lo || label == hi:
		return nAfter - 1
	case label < lo:
		return label
	case label > hi:
		return label - 2
	default:
		return label - 1
	}
}

// Merge joins clusters a and b into a new cluster with the highest id. Its
// center is the sample nearest to the member-weighted mean of the two
// embedded centers. The dip matrix is recomputed.
func (s *ClusterState) Merge(a, b int) error {
	if a == b || a < 0 || b < 0 || a >= s.NClusters || b >= s.NClusters {
		return fmt.Errorf("dipdeck: invalid merge pair (%d, %d) among %d clusters", a, b, s.NClusters)
	}
	lo, hi := min(a, b), max(a, b)
	sizes := s.Sizes()
	nLo, nHi := float64(sizes[lo]), float64(sizes[hi])

	nAfter := s.NClusters - 1
	for i, l := range s.Labels {
		s.Labels[i] = RelabelForMerge(l, lo, hi, nAfter)
	}

	_, dims := s.EmbeddedCenters.Dims()
	optimal := make([]float64, dims)
	cLo, cHi := s.EmbeddedCenters.RawRowView(lo), s.EmbeddedCenters.RawRowView(hi)
	for d := range optimal {
		if nLo+nHi > 0 {
			optimal[d] = (cLo[d]*nLo + cHi[d]*nHi) / (nLo + nHi)
		} else {
			optimal[d] = (cLo[d] + cHi[d]) / 2
		}
	}
	merged, _ := s.index.Nearest(optimal)

	reps := make([]int, 0, nAfter)
	for c, idx := range s.Representatives {
		if c != lo && c != hi {
			reps = append(reps, idx)
		}
	}
	reps = append(reps, merged)

	s.NClusters = nAfter
	s.setRepresentatives(reps)
	return s.refreshDips()
}

// RemoveCluster dissolves cluster c. Its members move to the nearest other
// embedded center, ids above c shift down by one, all centers are moved to
// the samples nearest to the new cluster means and the dip matrix is
// recomputed.
func (s *ClusterState) RemoveCluster(c int) error {
	if c < 0 || c >= s.NClusters {
		return fmt.Errorf("dipdeck: invalid cluster %d among %d clusters", c, s.NClusters)
	}
	if s.NClusters < 2 {
		return fmt.Errorf("dipdeck: can not remove the last cluster")
	}

	for i, l := range s.Labels {
		if l != c {
			continue
		}
		row := s.embedded.RawRowView(i)
		best, bestDist := -1, math.Inf(1)
		for k := 0; k < s.NClusters; k++ {
			if k == c {
				continue
			}
			if d := squaredEuclidean(row, s.EmbeddedCenters.RawRowView(k)); d < bestDist {
				best, bestDist = k, d
			}
		}
		s.Labels[i] = best
	}
	for i, l := range s.Labels {
		if l > c {
			s.Labels[i] = l - 1
		}
	}

	previous := make([]int, 0, s.NClusters-1)
	for k, idx := range s.Representatives {
		if k != c {
			previous = append(previous, idx)
		}
	}
	s.NClusters--
	s.recenter(previous)
	return s.refreshDips()
}

// dipCostMatrix returns (dips + I) with every row divided by its sum.
func dipCostMatrix(dips mat.Symmetric) *mat.Dense {
	k := dips.SymmetricDim()
	costs := mat.NewDense(k, k, nil)
	for i := 0; i < k; i++ {
		var sum float64
		for j := 0; j < k; j++ {
			v := dips.At(i, j)
			if i == j {
				v++
			}
			costs.Set(i, j, v)
			sum += v
		}
		row := costs.RawRowView(i)
		for j := range row {
			row[j] /= sum
		}
	}
	return costs
}
