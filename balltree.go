package dipdeck

import (
	"container/heap"
	"math"
	"sort"
)

// BallTree is a ball tree spatial index. Each node stores the centroid of
// its points and the radius of the smallest centroid-centered ball holding
// them, which bounds query distances for any metric satisfying the triangle
// inequality. It is preferred over the KD-tree for high-dimensional
// embeddings.
//
// The tree is stored as a complete binary tree in array form:
//   - node i has children at 2*i+1 and 2*i+2
type BallTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int
	dims     int
	leafSize int
	metric   DistanceMetric
	idxArray []int // permutation: tree-order position → original index
	nodes    []NodeData
	radii    []float64
	// centroids[node*dims .. (node+1)*dims) = centroid of node
	centroids []float64
}

var _ SpatialIndex = (*BallTree)(nil)

// NewBallTree builds a ball tree from flat row-major data with n points
// of dimensionality dims. leafSize controls the max points per leaf node.
func NewBallTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) *BallTree {
	if leafSize < 1 {
		leafSize = 1
	}
	if metric == nil {
		metric = EuclideanMetric{}
	}

	dataCopy := make([]float64, n*dims)
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	maxNodes := kdMaxNodes(n, leafSize) // same shape as the KD-tree
	t := &BallTree{
		data:      dataCopy,
		n:         n,
		dims:      dims,
		leafSize:  leafSize,
		metric:    metric,
		idxArray:  idxArray,
		nodes:     make([]NodeData, maxNodes),
		radii:     make([]float64, maxNodes),
		centroids: make([]float64, maxNodes*dims),
	}
	if n > 0 {
		t.buildNode(0, 0, n)
	}
	return t
}

// buildNode recursively builds the ball tree for points in idxArray[start:end].
func (t *BallTree) buildNode(nodeID, start, end int) {
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, NodeData{})
		t.radii = append(t.radii, 0)
		t.centroids = append(t.centroids, make([]float64, t.dims)...)
	}

	t.computeCentroid(nodeID, start, end)

	// Radius: max distance from centroid to any point in this node.
	centroid := t.centroid(nodeID)
	var radius float64
	for i := start; i < end; i++ {
		radius = max(radius, t.metric.Distance(centroid, t.point(t.idxArray[i])))
	}
	t.radii[nodeID] = radius

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true}
		return
	}

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end}
	t.sortByDim(start, end, t.findSpreadDim(start, end))
	mid := start + count/2

	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

// computeCentroid computes the mean of points idxArray[start:end].
func (t *BallTree) computeCentroid(nodeID, start, end int) {
	c := t.centroid(nodeID)
	for d := range c {
		c[d] = 0
	}
	for i := start; i < end; i++ {
		for d, v := range t.point(t.idxArray[i]) {
			c[d] += v
		}
	}
	count := float64(end - start)
	for d := range c {
		c[d] /= count
	}
}

// findSpreadDim returns the dimension with the greatest spread among
// points in idxArray[start:end].
func (t *BallTree) findSpreadDim(start, end int) int {
	bestDim := 0
	bestSpread := -1.0
	for d := 0; d < t.dims; d++ {
		lo, hi := math.Inf(1), math.Inf(-1)
		for i := start; i < end; i++ {
			v := t.data[t.idxArray[i]*t.dims+d]
			lo, hi = min(lo, v), max(hi, v)
		}
		if hi-lo > bestSpread {
			bestSpread = hi - lo
			bestDim = d
		}
	}
	return bestDim
}

// sortByDim sorts idxArray[start:end] by the given dimension, ties by index.
func (t *BallTree) sortByDim(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims, data := t.dims, t.data
	sort.Slice(sub, func(i, j int) bool {
		a, b := data[sub[i]*dims+dim], data[sub[j]*dims+dim]
		if a != b {
			return a < b
		}
		return sub[i] < sub[j]
	})
}

func (t *BallTree) point(idx int) []float64 {
	return t.data[idx*t.dims : (idx+1)*t.dims]
}

func (t *BallTree) centroid(node int) []float64 {
	return t.centroids[node*t.dims : (node+1)*t.dims]
}

// minDist is a lower bound on the distance from query to any point in node.
func (t *BallTree) minDist(node int, query []float64) float64 {
	return max(0, t.metric.Distance(query, t.centroid(node))-t.radii[node])
}

// NumPoints returns the number of indexed points.
func (t *BallTree) NumPoints() int { return t.n }

// Nearest returns the index of the indexed point closest to query and its
// distance, -1 for an empty tree.
func (t *BallTree) Nearest(query []float64) (int, float64) {
	if t.n == 0 {
		return -1, math.Inf(1)
	}
	idx, dist := t.QueryKNN(query, 1, 1)
	return idx[0][0], dist[0][0]
}

// QueryKNN finds the k nearest neighbors for each row in queryData.
func (t *BallTree) QueryKNN(queryData []float64, queryRows, k int) ([][]int, [][]float64) {
	k = min(k, t.n)
	indices := make([][]int, queryRows)
	distances := make([][]float64, queryRows)

	for q := 0; q < queryRows; q++ {
		query := queryData[q*t.dims : (q+1)*t.dims]
		h := &knnHeap{}
		if k > 0 {
			t.knnSearch(0, query, k, h)
		}

		nResults := h.Len()
		idx := make([]int, nResults)
		dist := make([]float64, nResults)
		for i := nResults - 1; i >= 0; i-- {
			item := heap.Pop(h).(knnItem)
			idx[i] = item.index
			dist[i] = item.dist
		}
		indices[q] = idx
		distances[q] = dist
	}
	return indices, distances
}

func (t *BallTree) knnSearch(nodeID int, query []float64, k int, h *knnHeap) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.IdxStart == node.IdxEnd {
		return
	}

	if node.IsLeaf {
		for i := node.IdxStart; i < node.IdxEnd; i++ {
			ptIdx := t.idxArray[i]
			item := knnItem{index: ptIdx, dist: t.metric.Distance(query, t.point(ptIdx))}
			if h.Len() < k {
				heap.Push(h, item)
			} else if item.closer((*h)[0]) {
				(*h)[0] = item
				heap.Fix(h, 0)
			}
		}
		return
	}

	left, right := 2*nodeID+1, 2*nodeID+2
	leftDist, rightDist := t.minDist(left, query), t.minDist(right, query)

	nearChild, farChild := left, right
	farDist := rightDist
	if rightDist < leftDist {
		nearChild, farChild = right, left
		farDist = leftDist
	}

	t.knnSearch(nearChild, query, k, h)

	if h.Len() < k || farDist <= (*h)[0].dist {
		t.knnSearch(farChild, query, k, h)
	}
}

// QueryRadius returns the indices of all points within radius of query
// (inclusive), sorted ascending.
func (t *BallTree) QueryRadius(query []float64, radius float64) []int {
	var out []int
	if t.n > 0 {
		t.radiusSearch(0, query, radius, t.metric.DistToRdist(radius), &out)
	}
	sort.Ints(out)
	return out
}

func (t *BallTree) radiusSearch(nodeID int, query []float64, radius, rdist float64, out *[]int) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.IdxStart == node.IdxEnd || t.minDist(nodeID, query) > radius {
		return
	}
	if node.IsLeaf {
		for i := node.IdxStart; i < node.IdxEnd; i++ {
			ptIdx := t.idxArray[i]
			if t.metric.ReducedDistance(query, t.point(ptIdx)) <= rdist {
				*out = append(*out, ptIdx)
			}
		}
		return
	}
	t.radiusSearch(2*nodeID+1, query, radius, rdist, out)
	t.radiusSearch(2*nodeID+2, query, radius, rdist, out)
}
