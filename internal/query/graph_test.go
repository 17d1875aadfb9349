package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildGraphEmptyQueryLinksStartToEnd(t *testing.T) {
	g := BuildGraph(nil)
	require.Len(t, g.Nodes, 2)
	start, end := g.Nodes[0], g.Nodes[1]
	assert.Equal(t, NodeStart, start.Kind)
	assert.Equal(t, NodeEnd, end.Kind)
	assert.Contains(t, g.Edges[start.ID], end.ID)
}

func TestBuildGraphSingleWordLinksStartToEndThroughTerm(t *testing.T) {
	lex, err := NewLexicon(nil)
	require.NoError(t, err)
	terms := BuildTerms("fox", testQuerySettings(), lex)

	g := BuildGraph(terms)
	termNodes := g.TermNodes()
	require.Len(t, termNodes, 1)

	termID := termNodes[0].ID
	startID := g.Nodes[0].ID
	endID := g.Nodes[len(g.Nodes)-1].ID

	assert.Contains(t, g.Edges[startID], termID)
	assert.Contains(t, g.Edges[termID], endID)
}

func TestBuildGraphMultiWordQueryChainsPositions(t *testing.T) {
	lex, err := NewLexicon(nil)
	require.NoError(t, err)
	terms := BuildTerms("quick brown fox", testQuerySettings(), lex)

	g := BuildGraph(terms)
	termNodes := g.TermNodes()
	assert.GreaterOrEqual(t, len(termNodes), 3)

	for _, n := range termNodes {
		if n.StartPos == 0 {
			assert.Contains(t, g.Edges[g.Nodes[0].ID], n.ID)
		}
	}
}
