package dipdeck

import (
	"container/heap"
	"math"
	"sort"
)

// KDTree is a KD-tree spatial index used for snapping computed centers to
// real samples, trimming oversized clusters and DBSCAN neighborhoods.
// Points are stored in a flat row-major array and reordered internally via
// an index permutation array.
//
// The tree is stored as a complete binary tree in array form:
//   - node i has children at 2*i+1 and 2*i+2
//   - node bounds are stored as min/max per dimension per node
type KDTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int
	dims     int
	leafSize int
	metric   DistanceMetric
	idxArray []int // permutation: tree-order position → original index
	nodes    []NodeData
	// nodeBoundsMin[node*dims + j] = min value of feature j in node
	nodeBoundsMin []float64
	// nodeBoundsMax[node*dims + j] = max value of feature j in node
	nodeBoundsMax []float64
}

const defaultLeafSize = 40

// NewKDTree builds a KD-tree from flat row-major data with n points of
// dimensionality dims. leafSize controls the max points per leaf node.
func NewKDTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) *KDTree {
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

	maxNodes := kdMaxNodes(n, leafSize)
	t := &KDTree{
		data:          dataCopy,
		n:             n,
		dims:          dims,
		leafSize:      leafSize,
		metric:        metric,
		idxArray:      idxArray,
		nodes:         make([]NodeData, maxNodes),
		nodeBoundsMin: make([]float64, maxNodes*dims),
		nodeBoundsMax: make([]float64, maxNodes*dims),
	}
	if n > 0 {
		t.buildNode(0, 0, n)
	}
	return t
}

// kdMaxNodes returns an upper bound on the number of nodes needed for a
// binary tree with n points and the given leaf size.
func kdMaxNodes(n, leafSize int) int {
	if n == 0 {
		return 1
	}
	leaves := (n + leafSize - 1) / leafSize
	depth := 0
	for v := 1; v < leaves; v *= 2 {
		depth++
	}
	return (1 << (depth + 1)) - 1 + 2
}

// buildNode recursively builds the tree for points in idxArray[start:end].
func (t *KDTree) buildNode(nodeID, start, end int) {
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, NodeData{})
		t.nodeBoundsMin = append(t.nodeBoundsMin, make([]float64, t.dims)...)
		t.nodeBoundsMax = append(t.nodeBoundsMax, make([]float64, t.dims)...)
	}

	t.computeNodeBounds(nodeID, start, end)

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true}
		return
	}

	// Split on the dimension with greatest spread, at the median.
	splitDim := 0
	maxSpread := -1.0
	for d := 0; d < t.dims; d++ {
		spread := t.nodeBoundsMax[nodeID*t.dims+d] - t.nodeBoundsMin[nodeID*t.dims+d]
		if spread > maxSpread {
			maxSpread = spread
			splitDim = d
		}
	}
	t.sortByDimension(start, end, splitDim)
	mid := start + count/2

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end}
	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

func (t *KDTree) computeNodeBounds(nodeID, start, end int) {
	base := nodeID * t.dims
	for d := 0; d < t.dims; d++ {
		t.nodeBoundsMin[base+d] = math.Inf(1)
		t.nodeBoundsMax[base+d] = math.Inf(-1)
	}
	for i := start; i < end; i++ {
		pt := t.point(t.idxArray[i])
		for d, v := range pt {
			t.nodeBoundsMin[base+d] = min(t.nodeBoundsMin[base+d], v)
			t.nodeBoundsMax[base+d] = max(t.nodeBoundsMax[base+d], v)
		}
	}
}

// sortByDimension sorts idxArray[start:end] by the given dimension, breaking
// ties by original index so the layout is deterministic.
func (t *KDTree) sortByDimension(start, end, dim int) {
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

func (t *KDTree) point(idx int) []float64 {
	return t.data[idx*t.dims : (idx+1)*t.dims]
}

// NumPoints returns the number of indexed points.
func (t *KDTree) NumPoints() int { return t.n }

// Nearest returns the index of the indexed point closest to query and its
// distance. Among equidistant points the lowest index wins. It returns -1
// for an empty tree.
func (t *KDTree) Nearest(query []float64) (int, float64) {
	if t.n == 0 {
		return -1, math.Inf(1)
	}
	idx, dist := t.QueryKNN(query, 1, 1)
	return idx[0][0], dist[0][0]
}

// QueryKNN finds the k nearest neighbors for each row in queryData.
// Results are sorted by ascending distance, ties by ascending index.
func (t *KDTree) QueryKNN(queryData []float64, queryRows, k int) ([][]int, [][]float64) {
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

// knnSearch performs a single-tree KNN traversal using a max-heap of size k.
func (t *KDTree) knnSearch(nodeID int, query []float64, k int, h *knnHeap) {
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
	leftRdist := t.minRdistPoint(left, query)
	rightRdist := t.minRdistPoint(right, query)

	nearChild, farChild := left, right
	farRdist := rightRdist
	if rightRdist < leftRdist {
		nearChild, farChild = right, left
		farRdist = leftRdist
	}

	t.knnSearch(nearChild, query, k, h)

	// Equal bounds are still visited so index tie-breaking stays exact.
	if h.Len() < k || t.metric.DistToRdist((*h)[0].dist) >= farRdist {
		t.knnSearch(farChild, query, k, h)
	}
}

// QueryRadius returns the indices of all points within radius of query
// (inclusive), sorted ascending.
func (t *KDTree) QueryRadius(query []float64, radius float64) []int {
	var out []int
	if t.n > 0 {
		t.radiusSearch(0, query, t.metric.DistToRdist(radius), &out)
	}
	sort.Ints(out)
	return out
}

func (t *KDTree) radiusSearch(nodeID int, query []float64, rdist float64, out *[]int) {
	if nodeID >= len(t.nodes) {
		return
	}
	node := t.nodes[nodeID]
	if node.IdxStart == node.IdxEnd || t.minRdistPoint(nodeID, query) > rdist {
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
	t.radiusSearch(2*nodeID+1, query, rdist, out)
	t.radiusSearch(2*nodeID+2, query, rdist, out)
}

// minRdistPoint returns a lower bound in reduced-distance space on the
// distance between a point and any point in the given node.
func (t *KDTree) minRdistPoint(node int, point []float64) float64 {
	if node >= len(t.nodes) {
		return math.Inf(1)
	}
	base := node * t.dims
	var rdist float64
	for j := 0; j < t.dims; j++ {
		lo := t.nodeBoundsMin[base+j]
		hi := t.nodeBoundsMax[base+j]
		var d float64
		if point[j] < lo {
			d = lo - point[j]
		} else if point[j] > hi {
			d = point[j] - hi
		}
		switch t.metric.(type) {
		case ChebyshevMetric:
			rdist = max(rdist, d)
		case ManhattanMetric:
			rdist += d
		default:
			rdist += d * d
		}
	}
	return rdist
}

// --- max-heap for KNN queries ---

type knnItem struct {
	index int
	dist  float64
}

// closer orders by distance, then by index.
func (a knnItem) closer(b knnItem) bool {
	if a.dist != b.dist {
		return a.dist < b.dist
	}
	return a.index < b.index
}

// knnHeap is a max-heap of knnItem (farthest on top) used as a bounded
// priority queue for KNN queries.
type knnHeap []knnItem

func (h knnHeap) Len() int           { return len(h) }
func (h knnHeap) Less(i, j int) bool { return h[j].closer(h[i]) } // max-heap
func (h knnHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *knnHeap) Push(x any)        { *h = append(*h, x.(knnItem)) }
func (h *knnHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
