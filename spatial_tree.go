package dipdeck

// NodeData describes a single node in a spatial tree.
type NodeData struct {
	IdxStart, IdxEnd int
	IsLeaf           bool
}

// SpatialIndex is the read interface of the spatial trees used wherever the
// clustering needs nearest-sample lookups in embedding space.
type SpatialIndex interface {
	// Nearest returns the index of the indexed point closest to query and
	// its distance. Ties resolve to the lowest index.
	Nearest(query []float64) (int, float64)

	// QueryKNN finds the k nearest neighbors for each row in queryData.
	// queryData is flat row-major with queryRows rows.
	// Returns per-query neighbor indices and distances (both sorted by distance).
	QueryKNN(queryData []float64, queryRows, k int) (indices [][]int, distances [][]float64)

	// QueryRadius returns the indices of all points within radius of query.
	QueryRadius(query []float64, radius float64) []int

	// NumPoints returns the number of points in the index.
	NumPoints() int
}

var _ SpatialIndex = (*KDTree)(nil)
