package query

import "sort"

// NodeKind distinguishes the synthetic start/end nodes from term nodes.
type NodeKind int

const (
	NodeStart NodeKind = iota
	NodeEnd
	NodeTerm
)

// GraphNode is one node of the query graph (spec §4.4.1).
type GraphNode struct {
	ID       int
	Kind     NodeKind
	Term     *QueryTerm // nil for Start/End
	StartPos int        // inclusive source-token position range
	EndPos   int        // inclusive
}

// Graph is the query graph: term nodes are connected when their source
// position ranges are contiguous, so every start->end path covers the
// whole query exactly once (spec §4.4.1). Phrase groups and n-grams span
// more than one source position, so the graph branches around them and
// rejoins at the position immediately after the span.
type Graph struct {
	Nodes []GraphNode
	// Edges maps a node id to the ids of nodes reachable directly from it.
	Edges map[int][]int
}

func (g *Graph) addNode(n GraphNode) int {
	n.ID = len(g.Nodes)
	g.Nodes = append(g.Nodes, n)
	return n.ID
}

func (g *Graph) link(from, to int) {
	g.Edges[from] = append(g.Edges[from], to)
}

// BuildGraph arranges terms produced by BuildTerms into the query graph.
func BuildGraph(terms []QueryTerm) *Graph {
	g := &Graph{Edges: map[int][]int{}}
	startID := g.addNode(GraphNode{Kind: NodeStart, StartPos: -1, EndPos: -1})

	maxEnd := -1
	termIDs := make([]int, 0, len(terms))
	for _, t := range terms {
		span := t.Span
		if span <= 0 {
			span = 1
		}
		tCopy := t
		id := g.addNode(GraphNode{Kind: NodeTerm, Term: &tCopy, StartPos: t.Position, EndPos: t.Position + span - 1})
		termIDs = append(termIDs, id)
		if g.Nodes[id].EndPos > maxEnd {
			maxEnd = g.Nodes[id].EndPos
		}
	}

	endID := g.addNode(GraphNode{Kind: NodeEnd, StartPos: maxEnd + 1, EndPos: maxEnd + 1})

	if maxEnd < 0 {
		g.link(startID, endID)
		return g
	}

	sort.Slice(termIDs, func(i, j int) bool { return g.Nodes[termIDs[i]].StartPos < g.Nodes[termIDs[j]].StartPos })

	for _, id := range termIDs {
		n := g.Nodes[id]
		if n.StartPos == 0 {
			g.link(startID, id)
		}
		if n.EndPos == maxEnd {
			g.link(id, endID)
		}
		for _, other := range termIDs {
			if g.Nodes[other].StartPos == n.EndPos+1 {
				g.link(id, other)
			}
		}
	}

	return g
}

// TermNodes returns every term-kind node in source-position order.
func (g *Graph) TermNodes() []GraphNode {
	out := make([]GraphNode, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.Kind == NodeTerm {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartPos < out[j].StartPos })
	return out
}
