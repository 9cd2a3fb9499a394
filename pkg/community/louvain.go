// Package community implements the clustering math behind community detection:
// a weighted undirected graph, one Louvain local-moving pass, modularity, and
// aggregation of a partition into the graph of the next layer.
//
// Node order is insertion order and every loop walks nodes and candidate
// communities in a fixed order, so the same graph always yields the same
// partition.
package community

import (
	"slices"
)

const maxSweeps = 100

// Graph is a weighted undirected graph with string node ids.
type Graph struct {
	ids   []string
	index map[string]int
	adj   []map[int]float64
	total float64
}

func NewGraph() *Graph {
	return &Graph{index: make(map[string]int)}
}

// AddNode registers id and returns its index. Adding an existing id is a no-op.
func (g *Graph) AddNode(id string) int {
	if i, ok := g.index[id]; ok {
		return i
	}
	i := len(g.ids)
	g.ids = append(g.ids, id)
	g.index[id] = i
	g.adj = append(g.adj, make(map[int]float64))
	return i
}

// AddEdge adds w to the edge between a and b, creating both nodes if needed.
// a == b adds a self-loop. A non-positive weight still registers the nodes
// but adds no edge.
func (g *Graph) AddEdge(a, b string, w float64) {
	i, j := g.AddNode(a), g.AddNode(b)
	if w <= 0 {
		return
	}
	if i == j {
		g.adj[i][i] += 2 * w
	} else {
		g.adj[i][j] += w
		g.adj[j][i] += w
	}
	g.total += w
}

func (g *Graph) Nodes() []string { return slices.Clone(g.ids) }

func (g *Graph) Len() int { return len(g.ids) }

// TotalWeight is the sum of all edge weights, self-loops included once.
func (g *Graph) TotalWeight() float64 { return g.total }

type arc struct {
	to int
	w  float64
}

func (g *Graph) arcs() [][]arc {
	out := make([][]arc, len(g.ids))
	for i, nbrs := range g.adj {
		list := make([]arc, 0, len(nbrs))
		for j, w := range nbrs {
			list = append(list, arc{to: j, w: w})
		}
		slices.SortFunc(list, func(a, b arc) int { return a.to - b.to })
		out[i] = list
	}
	return out
}

// Partition assigns a community label to every node index. Labels are
// contiguous from 0 in order of first appearance.
type Partition []int

// LocalMoving runs one Louvain phase: nodes are moved greedily to the
// neighbouring community with the highest modularity gain until a full sweep
// moves nothing.
func LocalMoving(g *Graph, resolution float64) Partition {
	n := len(g.ids)
	comm := make([]int, n)
	for i := range comm {
		comm[i] = i
	}
	if g.total == 0 {
		return relabel(comm)
	}
	if resolution <= 0 {
		resolution = 1
	}

	arcs := g.arcs()
	m2 := 2 * g.total
	k := make([]float64, n)
	tot := make([]float64, n)
	for i := range n {
		for _, a := range arcs[i] {
			k[i] += a.w
		}
		tot[i] = k[i]
	}

	weights := make(map[int]float64)
	for range maxSweeps {
		moved := false
		for i := range n {
			ci := comm[i]
			clear(weights)
			for _, a := range arcs[i] {
				if a.to != i {
					weights[comm[a.to]] += a.w
				}
			}
			tot[ci] -= k[i]

			best := ci
			bestGain := weights[ci] - resolution*tot[ci]*k[i]/m2
			candidates := make([]int, 0, len(weights))
			for c := range weights {
				candidates = append(candidates, c)
			}
			slices.Sort(candidates)
			for _, c := range candidates {
				if c == ci {
					continue
				}
				gain := weights[c] - resolution*tot[c]*k[i]/m2
				if gain > bestGain+1e-12 {
					best, bestGain = c, gain
				}
			}

			tot[best] += k[i]
			comm[i] = best
			if best != ci {
				moved = true
			}
		}
		if !moved {
			break
		}
	}
	return relabel(comm)
}

func relabel(comm []int) Partition {
	mapping := make(map[int]int)
	out := make(Partition, len(comm))
	for i, c := range comm {
		label, ok := mapping[c]
		if !ok {
			label = len(mapping)
			mapping[c] = label
		}
		out[i] = label
	}
	return out
}

// Modularity scores part on g:
//
//	Q = sum_c [ in_c/2m - resolution*(tot_c/2m)^2 ]
//
// where in_c counts the weight of edges inside c from both ends. A graph
// without edges has modularity 0.
func Modularity(g *Graph, part Partition, resolution float64) float64 {
	if g.total == 0 || len(part) != len(g.ids) {
		return 0
	}
	if resolution <= 0 {
		resolution = 1
	}
	groups := 0
	for _, c := range part {
		groups = max(groups, c+1)
	}
	in := make([]float64, groups)
	tot := make([]float64, groups)
	for i, list := range g.arcs() {
		for _, a := range list {
			if part[i] == part[a.to] {
				in[part[i]] += a.w
			}
			tot[part[i]] += a.w
		}
	}
	m2 := 2 * g.total
	q := 0.0
	for c := range groups {
		q += in[c]/m2 - resolution*(tot[c]/m2)*(tot[c]/m2)
	}
	return q
}

// Groups returns the node ids of every community, ordered by label.
func Groups(g *Graph, part Partition) [][]string {
	groups := 0
	for _, c := range part {
		groups = max(groups, c+1)
	}
	out := make([][]string, groups)
	for i, c := range part {
		out[c] = append(out[c], g.ids[i])
	}
	return out
}

// Aggregate collapses g by label: every node id maps to the group named by
// label(id). Edges inside a group become self-loops, so the modularity of the
// singleton partition of the result equals the modularity of the grouping on g.
// Nodes for which label returns "" are dropped.
func Aggregate(g *Graph, label func(id string) string) *Graph {
	out := NewGraph()
	for _, id := range g.ids {
		if l := label(id); l != "" {
			out.AddNode(l)
		}
	}
	for i, nbrs := range g.arcs() {
		li := label(g.ids[i])
		if li == "" {
			continue
		}
		for _, a := range nbrs {
			if a.to < i {
				continue
			}
			lj := label(g.ids[a.to])
			if lj == "" {
				continue
			}
			w := a.w
			if a.to == i {
				w /= 2
			}
			out.AddEdge(li, lj, w)
		}
	}
	return out
}

// Result is the outcome of one clustering pass.
type Result struct {
	Groups     [][]string
	Modularity float64
}

// Cluster runs LocalMoving on g and scores the partition it found.
func Cluster(g *Graph, resolution float64) Result {
	part := LocalMoving(g, resolution)
	return Result{
		Groups:     Groups(g, part),
		Modularity: Modularity(g, part, resolution),
	}
}
