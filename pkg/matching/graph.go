package matching

import(
	"fmt"
	"sort"
	"strings"
)

// DisjointSets is union-find with union by rank; Size is only valid at
// a set's representative.
type DisjointSets struct {
	parent []int
	rank   []int
	Size   []int
}

func NewDisjointSets(n int) *DisjointSets {
	ds := &DisjointSets{parent: make([]int, n), rank: make([]int, n), Size: make([]int, n)}
	for i:=0; i<n; i++ {
		ds.parent[i], ds.Size[i] = i, 1
	}
	return ds
}

func (ds *DisjointSets)Find(i int) int {
	for ds.parent[i] != i {
		ds.parent[i] = ds.parent[ds.parent[i]]
		i = ds.parent[i]
	}
	return i
}

// Merge joins two sets given their representatives, and returns the new
// representative.
func (ds *DisjointSets)Merge(a, b int) int {
	if ds.rank[a] < ds.rank[b] {
		a, b = b, a
	}
	ds.parent[b] = a
	ds.Size[a] += ds.Size[b]
	if ds.rank[a] == ds.rank[b] {
		ds.rank[a]++
	}
	return a
}

// LeaveBiggestComponent finds the largest set of images connected by
// pairs of at least the given confidence. It returns the (sorted)
// original indices of that set, and the match table re-indexed to it.
func LeaveBiggestComponent(t Table, threshold float64) ([]int, Table) {
	ds := NewDisjointSets(t.N)
	for i:=0; i<t.N; i++ {
		for j:=0; j<t.N; j++ {
			if t.Get(i, j).Confidence < threshold {
				continue
			}
			a, b := ds.Find(i), ds.Find(j)
			if a != b {
				ds.Merge(a, b)
			}
		}
	}

	maxComp, maxSize := 0, 0
	for i:=0; i<t.N; i++ {
		if r := ds.Find(i); ds.Size[r] > maxSize {
			maxComp, maxSize = r, ds.Size[r]
		}
	}

	keep := []int{}
	for i:=0; i<t.N; i++ {
		if ds.Find(i) == maxComp {
			keep = append(keep, i)
		}
	}

	out := NewTable(len(keep))
	for a, i := range keep {
		for b, j := range keep {
			mi := t.Get(i, j)
			mi.Src, mi.Dst = a, b
			out.Pairs[a*out.N + b] = mi
		}
	}
	return keep, out
}

type Edge struct {
	From, To int
	Weight   float64
}

// Graph is an undirected graph held as directed edges in both directions.
type Graph struct {
	N   int
	adj [][]Edge
}

func NewGraph(n int) *Graph {
	return &Graph{N: n, adj: make([][]Edge, n)}
}

func (g *Graph)AddEdge(from, to int, w float64) {
	g.adj[from] = append(g.adj[from], Edge{from, to, w})
}

func (g *Graph)Edges(v int) []Edge { return g.adj[v] }

// WalkBreadthFirst calls visit for each tree edge, in breadth first
// order from the given node; it returns the number of nodes reached.
func (g *Graph)WalkBreadthFirst(from int, visit func(Edge)) int {
	seen := make([]bool, g.N)
	seen[from] = true
	queue := []int{from}
	n := 1
	for len(queue) > 0 {
		v := queue[0]
		queue = queue[1:]
		for _, e := range g.adj[v] {
			if seen[e.To] {
				continue
			}
			seen[e.To] = true
			n++
			visit(e)
			queue = append(queue, e.To)
		}
	}
	return n
}

// MaxSpanningTree builds the spanning tree that keeps the pairs with the
// most inliers, and returns it with its centre nodes: those whose
// furthest leaf is nearest.
func MaxSpanningTree(t Table) (*Graph, []int) {
	edges := []Edge{}
	for i:=0; i<t.N; i++ {
		for j:=0; j<t.N; j++ {
			if mi := t.Get(i, j); i != j && mi.H != nil {
				edges = append(edges, Edge{i, j, float64(mi.NumInliers)})
			}
		}
	}
	sort.SliceStable(edges, func(a, b int) bool {
		if edges[a].Weight != edges[b].Weight {
			return edges[a].Weight > edges[b].Weight
		}
		if edges[a].From != edges[b].From {
			return edges[a].From < edges[b].From
		}
		return edges[a].To < edges[b].To
	})

	tree := NewGraph(t.N)
	ds := NewDisjointSets(t.N)
	for _, e := range edges {
		a, b := ds.Find(e.From), ds.Find(e.To)
		if a != b {
			ds.Merge(a, b)
			tree.AddEdge(e.From, e.To, e.Weight)
			tree.AddEdge(e.To, e.From, e.Weight)
		}
	}

	leaves := []int{}
	for v:=0; v<t.N; v++ {
		if len(tree.adj[v]) == 1 {
			leaves = append(leaves, v)
		}
	}
	if len(leaves) == 0 {
		return tree, []int{0}
	}

	maxDists := make([]int, t.N)
	for _, leaf := range leaves {
		dists := make([]int, t.N)
		for i := range dists {
			dists[i] = -1
		}
		dists[leaf] = 0
		tree.WalkBreadthFirst(leaf, func(e Edge) {
			dists[e.To] = dists[e.From] + 1
		})
		for v, d := range dists {
			if d > maxDists[v] {
				maxDists[v] = d
			}
		}
	}

	minMax := -1
	for v:=0; v<t.N; v++ {
		if minMax < 0 || maxDists[v] < minMax {
			minMax = maxDists[v]
		}
	}
	centers := []int{}
	for v:=0; v<t.N; v++ {
		if maxDists[v] == minMax {
			centers = append(centers, v)
		}
	}
	return tree, centers
}

// GraphDOT renders the pairs above the confidence threshold as a
// Graphviz graph; images with no such pair appear as lone nodes.
func GraphDOT(names []string, t Table, threshold float64) string {
	var sb strings.Builder
	sb.WriteString("graph matches_graph{\n")

	ds := NewDisjointSets(t.N)
	for i:=0; i<t.N; i++ {
		for j:=i+1; j<t.N; j++ {
			mi := t.Get(i, j)
			if mi.Confidence < threshold {
				continue
			}
			if a, b := ds.Find(i), ds.Find(j); a != b {
				ds.Merge(a, b)
			}
			fmt.Fprintf(&sb, "\"%s\" -- \"%s\"[label=\"Nm=%d, Ni=%d, C=%g\"];\n",
				names[i], names[j], len(mi.Matches), mi.NumInliers, mi.Confidence)
		}
	}
	for i:=0; i<t.N; i++ {
		if ds.Size[ds.Find(i)] == 1 {
			fmt.Fprintf(&sb, "\"%s\";\n", names[i])
		}
	}

	sb.WriteString("}")
	return sb.String()
}
