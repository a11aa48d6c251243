package dipdeck

// UnionFind implements a disjoint-set data structure with path compression
// and union by size. DBSCAN uses it to join core points into clusters.
type UnionFind struct {
	parent []int
	size   []int
}

// NewUnionFind creates a UnionFind with n singleton sets.
func NewUnionFind(n int) *UnionFind {
	parent := make([]int, n)
	size := make([]int, n)
	for i := range parent {
		parent[i] = -1 // -1 means "is a root"
		size[i] = 1
	}
	return &UnionFind{parent: parent, size: size}
}

// Find returns the root of the set containing x, with path compression.
func (uf *UnionFind) Find(x int) int {
	root := x
	for uf.parent[root] != -1 {
		root = uf.parent[root]
	}
	for uf.parent[x] != -1 {
		x, uf.parent[x] = uf.parent[x], root
	}
	return root
}

// Union merges the sets containing x and y by attaching the smaller tree
// under the larger. Returns the new root.
func (uf *UnionFind) Union(x, y int) int {
	rootX := uf.Find(x)
	rootY := uf.Find(y)
	if rootX == rootY {
		return rootX
	}
	if uf.size[rootX] < uf.size[rootY] {
		rootX, rootY = rootY, rootX
	}
	uf.parent[rootY] = rootX
	uf.size[rootX] += uf.size[rootY]
	return rootX
}

// Size returns the number of elements in the set containing x.
func (uf *UnionFind) Size(x int) int {
	return uf.size[uf.Find(x)]
}

// Components labels the elements selected by keep with compact set ids in
// order of first appearance. Elements not kept get -1.
func (uf *UnionFind) Components(keep func(int) bool) ([]int, int) {
	labels := make([]int, len(uf.parent))
	ids := make(map[int]int)
	for i := range labels {
		if keep != nil && !keep(i) {
			labels[i] = -1
			continue
		}
		root := uf.Find(i)
		id, ok := ids[root]
		if !ok {
			id = len(ids)
			ids[root] = id
		}
		labels[i] = id
	}
	return labels, len(ids)
}
