// Package graph is the typed directed multigraph over item ids: ancestry
// and descent relations accumulate here during the build, and post-ingest
// queries (ancestors, descendants, cognates) traverse it on demand.
//
// Items live in the arena (internal/item); the graph holds only dense-id
// edge lists, so endpoint equality during cycle detection is an integer
// compare.
package graph

import (
	"math"
	"sort"

	"etygraph/internal/item"
	"etygraph/internal/lang"
)

// Edge is one labeled relation. Child descends from Parent; Order
// distinguishes the parents of a compositional set (0-based,
// left-to-right as they appear in the source template).
type Edge struct {
	Child  item.ID
	Parent item.ID
	Mode   Mode
	Order  uint8
}

// Filter restricts traversals. A nil Langs set allows every language;
// MaxDistance < 0 disables the relatedness cutoff (distances measured
// from From).
type Filter struct {
	Langs       map[lang.ID]bool
	MaxDistance int
	From        lang.ID
}

// Unfiltered matches every node.
var Unfiltered = Filter{MaxDistance: -1}

func (f Filter) admits(l lang.ID, langs *lang.Registry) bool {
	if f.Langs != nil && !f.Langs[l] {
		return false
	}
	if f.MaxDistance >= 0 {
		d := langs.Distance(f.From, l)
		if d == lang.Unrelated || d > f.MaxDistance {
			return false
		}
	}
	return true
}

// DAG is the result of a traversal: the sub-DAG reachable from Root, with
// nodes in discovery order.
type DAG struct {
	Root  item.ID
	Nodes []item.ID
	Edges []Edge
}

// Graph accumulates edges during the build and answers traversals after.
// Single-writer during the build; frozen at serialize time.
type Graph struct {
	items     *item.Store
	langs     *lang.Registry
	parents   map[item.ID][]Edge // keyed by child
	children  map[item.ID][]Edge // keyed by parent
	edgeCount int
}

func New(items *item.Store, langs *lang.Registry) *Graph {
	return &Graph{
		items:    items,
		langs:    langs,
		parents:  make(map[item.ID][]Edge),
		children: make(map[item.ID][]Edge),
	}
}

func (g *Graph) EdgeCount() int {
	return g.edgeCount
}

// HasParents reports whether the child already carries any outgoing
// relation. Builders use it to keep one relation source per item.
func (g *Graph) HasParents(child item.ID) bool {
	return len(g.parents[child]) > 0
}

// ParentEdges returns the edges from child to its parents, in insertion
// order (which is order-index order within a compositional set).
func (g *Graph) ParentEdges(child item.ID) []Edge {
	return g.parents[child]
}

// ChildEdges returns the edges whose parent is id.
func (g *Graph) ChildEdges(parent item.ID) []Edge {
	return g.children[parent]
}

// AddEdge appends one edge. Callers must have cleared WouldCycle first;
// edges are append-only until serialization.
func (g *Graph) AddEdge(child, parent item.ID, mode Mode, order uint8) {
	e := Edge{Child: child, Parent: parent, Mode: mode, Order: order}
	g.parents[child] = append(g.parents[child], e)
	g.children[parent] = append(g.children[parent], e)
	g.edgeCount++
}

// WouldCycle reports whether inserting child -> parent would close a
// directed cycle: true when child is already reachable from parent along
// parent links, or when the edge is a self-loop.
func (g *Graph) WouldCycle(child, parent item.ID) bool {
	if child == parent {
		return true
	}
	stack := []item.ID{parent}
	seen := map[item.ID]bool{parent: true}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, e := range g.parents[cur] {
			if e.Parent == child {
				return true
			}
			if !seen[e.Parent] {
				seen[e.Parent] = true
				stack = append(stack, e.Parent)
			}
		}
	}
	return false
}

// Ancestors returns the sub-DAG of everything id descends from, filtered.
// Filtered-out nodes cut the traversal: ancestry beyond them is not
// explored.
func (g *Graph) Ancestors(id item.ID, f Filter) *DAG {
	return g.traverse(id, f, g.parents, func(e Edge) item.ID { return e.Parent })
}

// Descendants returns the sub-DAG of everything descending from id.
func (g *Graph) Descendants(id item.ID, f Filter) *DAG {
	return g.traverse(id, f, g.children, func(e Edge) item.ID { return e.Child })
}

func (g *Graph) traverse(root item.ID, f Filter, edges map[item.ID][]Edge, next func(Edge) item.ID) *DAG {
	dag := &DAG{Root: root}
	seen := map[item.ID]bool{root: true}
	queue := []item.ID{root}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		dag.Nodes = append(dag.Nodes, cur)
		for _, e := range edges[cur] {
			n := next(e)
			if !f.admits(g.items.Get(n).Lang, g.langs) {
				continue
			}
			dag.Edges = append(dag.Edges, e)
			if !seen[n] {
				seen[n] = true
				queue = append(queue, n)
			}
		}
	}
	return dag
}

// Progenitors returns the ancestry roots of id: every reachable ancestor
// with no parents of its own. An item with no parents has none.
func (g *Graph) Progenitors(id item.ID) []item.ID {
	if !g.HasParents(id) {
		return nil
	}
	var roots []item.ID
	seen := map[item.ID]bool{id: true}
	stack := []item.ID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		parents := g.parents[cur]
		if len(parents) == 0 && cur != id {
			roots = append(roots, cur)
			continue
		}
		for _, e := range parents {
			if !seen[e.Parent] {
				seen[e.Parent] = true
				stack = append(stack, e.Parent)
			}
		}
	}
	sort.Slice(roots, func(i, j int) bool { return roots[i] < roots[j] })
	return roots
}

// Cognates returns the progenitors of id and every item descending from
// them (id's own ancestors included) whose language is in descLangs (all
// languages when nil), sorted by ascending relatedness distance from
// distLang, then id. The item itself is excluded; an item with no parents
// has no cognates.
func (g *Graph) Cognates(id item.ID, distLang lang.ID, descLangs map[lang.ID]bool) []item.ID {
	var out []item.ID
	seen := map[item.ID]bool{id: true}
	for _, root := range g.Progenitors(id) {
		dag := g.Descendants(root, Unfiltered)
		for _, n := range dag.Nodes {
			if seen[n] {
				continue
			}
			seen[n] = true
			l := g.items.Get(n).Lang
			if descLangs != nil && !descLangs[l] {
				continue
			}
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		di := g.langs.Distance(distLang, g.items.Get(out[i]).Lang)
		dj := g.langs.Distance(distLang, g.items.Get(out[j]).Lang)
		if di == lang.Unrelated {
			di = math.MaxInt
		}
		if dj == lang.Unrelated {
			dj = math.MaxInt
		}
		if di != dj {
			return di < dj
		}
		return out[i] < out[j]
	})
	return out
}
