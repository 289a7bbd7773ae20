package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func ptr(v int64) *int64 { return &v }

// 1 Vasıta
// ├── 2 Otomobil
// │   ├── 4 BMW
// │   └── 5 Fiat
// └── 3 Motosiklet
// 6 Emlak
// └── 7 Konut
func sampleNodes() []Node {
	return []Node{
		{ID: 1},
		{ID: 2, ParentID: ptr(1)},
		{ID: 3, ParentID: ptr(1)},
		{ID: 5, ParentID: ptr(2)},
		{ID: 4, ParentID: ptr(2)},
		{ID: 6},
		{ID: 7, ParentID: ptr(6)},
	}
}

func TestDescendantsBreadthFirst(t *testing.T) {
	tree := BuildTree(sampleNodes())
	assert.Equal(t, []int64{1, 2, 3, 4, 5}, tree.Descendants(1))
	assert.Equal(t, []int64{2, 4, 5}, tree.Descendants(2))
	assert.Equal(t, []int64{4}, tree.Descendants(4))
}

func TestDescendantsUnknownRoot(t *testing.T) {
	tree := BuildTree(sampleNodes())
	assert.Equal(t, []int64{99}, tree.Descendants(99))
}

func TestDescendantsSurvivesCycle(t *testing.T) {
	tree := BuildTree([]Node{
		{ID: 1, ParentID: ptr(3)},
		{ID: 2, ParentID: ptr(1)},
		{ID: 3, ParentID: ptr(2)},
	})
	got := tree.Descendants(1)
	assert.Equal(t, []int64{1, 2, 3}, got)
	assert.Equal(t, []int64{3, 1, 2}, tree.Ancestors(2))
	assert.Empty(t, tree.Roots())
}

func TestAncestors(t *testing.T) {
	tree := BuildTree(sampleNodes())
	assert.Equal(t, []int64{1, 2, 4}, tree.Ancestors(4))
	assert.Equal(t, []int64{6}, tree.Ancestors(6))
	assert.Nil(t, tree.Ancestors(42))
}

func TestRootsAndChildren(t *testing.T) {
	nodes := append(sampleNodes(), Node{ID: 8, ParentID: ptr(100)})
	tree := BuildTree(nodes)
	assert.Equal(t, []int64{1, 6, 8}, tree.Roots())
	assert.Equal(t, []int64{4, 5}, tree.Children(2))
	assert.Empty(t, tree.Children(4))
	assert.Equal(t, 8, tree.Len())
}
