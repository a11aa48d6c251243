package dipdeck

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestUnionFind(t *testing.T) {
	uf := NewUnionFind(6)
	for i := 0; i < 6; i++ {
		assert.Equal(t, i, uf.Find(i))
		assert.Equal(t, 1, uf.Size(i))
	}

	uf.Union(0, 1)
	uf.Union(2, 3)
	uf.Union(1, 3)
	assert.Equal(t, uf.Find(0), uf.Find(2))
	assert.Equal(t, 4, uf.Size(3))
	assert.NotEqual(t, uf.Find(0), uf.Find(4))

	root := uf.Find(0)
	assert.Equal(t, root, uf.Union(0, 3), "union within a set returns its root")
}

func TestUnionFind_Components(t *testing.T) {
	uf := NewUnionFind(6)
	uf.Union(4, 5)
	uf.Union(1, 2)

	labels, k := uf.Components(nil)
	assert.Equal(t, []int{0, 1, 1, 2, 3, 3}, labels)
	assert.Equal(t, 4, k)

	labels, k = uf.Components(func(i int) bool { return i != 0 && i != 3 })
	assert.Equal(t, []int{-1, 0, 0, -1, 1, 1}, labels)
	assert.Equal(t, 2, k)
}
