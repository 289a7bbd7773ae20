// Package catalog resolves the category hierarchy: descendant expansion for
// search filters and ancestor paths for breadcrumbs.
package catalog

import (
	"sort"

	"github.com/odvcencio/ilanhub/internal/models"
)

type Node struct {
	ID       int64
	ParentID *int64
}

// NodesFromCategories projects categories onto tree nodes.
func NodesFromCategories(cats []models.Category) []Node {
	nodes := make([]Node, 0, len(cats))
	for _, c := range cats {
		nodes = append(nodes, Node{ID: c.ID, ParentID: c.ParentID})
	}
	return nodes
}

// Tree is an immutable adjacency view of the category hierarchy.
type Tree struct {
	children map[int64][]int64
	parent   map[int64]int64
	known    map[int64]bool
}

func BuildTree(nodes []Node) *Tree {
	t := &Tree{
		children: make(map[int64][]int64),
		parent:   make(map[int64]int64),
		known:    make(map[int64]bool, len(nodes)),
	}
	for _, n := range nodes {
		t.known[n.ID] = true
		if n.ParentID == nil || *n.ParentID == n.ID {
			continue
		}
		t.parent[n.ID] = *n.ParentID
		t.children[*n.ParentID] = append(t.children[*n.ParentID], n.ID)
	}
	for id := range t.children {
		kids := t.children[id]
		sort.Slice(kids, func(i, j int) bool { return kids[i] < kids[j] })
	}
	return t
}

func (t *Tree) Len() int { return len(t.known) }

func (t *Tree) Has(id int64) bool { return t.known[id] }

// Descendants returns root followed by every category below it in
// breadth-first order. Each id appears once even if the stored data contains
// a cycle. An unknown root yields just the root.
func (t *Tree) Descendants(root int64) []int64 {
	out := []int64{root}
	visited := map[int64]bool{root: true}
	queue := []int64{root}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, child := range t.children[id] {
			if visited[child] {
				continue
			}
			visited[child] = true
			out = append(out, child)
			queue = append(queue, child)
		}
	}
	return out
}

// Ancestors returns the path from the top-level category down to id,
// inclusive. It returns nil for an unknown id.
func (t *Tree) Ancestors(id int64) []int64 {
	if !t.known[id] {
		return nil
	}
	path := []int64{id}
	seen := map[int64]bool{id: true}
	cur := id
	for {
		p, ok := t.parent[cur]
		if !ok || seen[p] || !t.known[p] {
			break
		}
		seen[p] = true
		path = append(path, p)
		cur = p
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// Children returns the direct children of id sorted by id.
func (t *Tree) Children(id int64) []int64 {
	kids := t.children[id]
	out := make([]int64, len(kids))
	copy(out, kids)
	return out
}

// Roots returns categories with no parent, or whose parent is missing,
// sorted by id.
func (t *Tree) Roots() []int64 {
	var out []int64
	for id := range t.known {
		p, ok := t.parent[id]
		if !ok || !t.known[p] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
