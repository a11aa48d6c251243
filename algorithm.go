package dipdeck

import "fmt"

// IndexKind selects the spatial index behind nearest-sample lookups.
type IndexKind string

const (
	IndexAuto     IndexKind = ""
	IndexKDTree   IndexKind = "kd_tree"
	IndexBallTree IndexKind = "ball_tree"
)

// kdTreeMaxDims is the dimensionality above which IndexAuto switches from
// the KD-tree to the ball tree.
const kdTreeMaxDims = 60

// KDTreeValidMetric reports whether the metric supports KD-tree bounds.
// KD-trees require metrics that decompose along coordinate axes.
func KDTreeValidMetric(m DistanceMetric) bool {
	switch m.(type) {
	case EuclideanMetric, ManhattanMetric, ChebyshevMetric:
		return true
	default:
		return false
	}
}

// BallTreeValidMetric reports whether the metric supports ball tree bounds.
// Ball trees work with any metric that satisfies the triangle inequality,
// which custom metrics are assumed to do.
func BallTreeValidMetric(m DistanceMetric) bool {
	return m != nil
}

// NewSpatialIndex builds the index of the given kind over flat row-major
// data. IndexAuto picks the KD-tree up to 60 dimensions and the ball tree
// above. A nil metric means Euclidean.
func NewSpatialIndex(data []float64, n, dims int, metric DistanceMetric, kind IndexKind) (SpatialIndex, error) {
	if metric == nil {
		metric = EuclideanMetric{}
	}

	if kind == IndexAuto {
		kind = IndexBallTree
		if KDTreeValidMetric(metric) && dims <= kdTreeMaxDims {
			kind = IndexKDTree
		}
	}

	switch kind {
	case IndexKDTree:
		if !KDTreeValidMetric(metric) {
			return nil, fmt.Errorf("dipdeck: metric %T is not supported by the KD-tree", metric)
		}
		return NewKDTree(data, n, dims, metric, defaultLeafSize), nil
	case IndexBallTree:
		if !BallTreeValidMetric(metric) {
			return nil, fmt.Errorf("dipdeck: metric %T is not supported by the ball tree", metric)
		}
		return NewBallTree(data, n, dims, metric, defaultLeafSize), nil
	}
	return nil, fmt.Errorf("dipdeck: unknown spatial index %q", kind)
}

// mustSpatialIndex builds a Euclidean index, which is always supported.
func mustSpatialIndex(data []float64, n, dims int) SpatialIndex {
	idx, err := NewSpatialIndex(data, n, dims, EuclideanMetric{}, IndexAuto)
	if err != nil {
		panic(err)
	}
	return idx
}
