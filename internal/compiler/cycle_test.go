package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalyzeCycles_Empty(t *testing.T) {
	assert.Empty(t, AnalyzeCycles(nil))
	assert.Empty(t, AnalyzeCycles(map[string][]string{}))
}

func TestAnalyzeCycles_DAG(t *testing.T) {
	graph := map[string][]string{
		"S!C1": {"S!A1", "S!B1"},
		"S!B1": {"S!A1"},
		"S!A1": nil,
	}
	assert.Empty(t, AnalyzeCycles(graph), "DAG should produce no cycles")
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	graph := map[string][]string{
		"S!A1": {"S!A1"},
	}
	cycles := AnalyzeCycles(graph)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"S!A1", "S!A1"}, cycles[0].Path)
	assert.Equal(t, "cell references itself: S!A1", cycles[0].Message)
}

func TestAnalyzeCycles_TwoNodeCycle(t *testing.T) {
	graph := map[string][]string{
		"S!A1": {"S!B1"},
		"S!B1": {"S!A1"},
	}
	cycles := AnalyzeCycles(graph)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"S!A1", "S!B1", "S!A1"}, cycles[0].Path)
	assert.Equal(t, "circular reference: S!A1 -> S!B1 -> S!A1", cycles[0].Message)
}

func TestAnalyzeCycles_ThreeNodeCycle(t *testing.T) {
	graph := map[string][]string{
		"S!A1": {"S!B1"},
		"S!B1": {"S!C1"},
		"S!C1": {"S!A1"},
	}
	cycles := AnalyzeCycles(graph)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"S!A1", "S!B1", "S!C1", "S!A1"}, cycles[0].Path)
}

func TestAnalyzeCycles_MultipleIndependentCycles(t *testing.T) {
	graph := map[string][]string{
		"S!A1": {"S!B1"},
		"S!B1": {"S!A1"},
		"S!D1": {"S!D1"},
		"S!E1": {"S!A1"}, // reads the cycle but is not part of it
	}
	cycles := AnalyzeCycles(graph)
	require.Len(t, cycles, 2)
	assert.Equal(t, "S!A1", cycles[0].Path[0])
	assert.Equal(t, "S!D1", cycles[1].Path[0])
	for _, c := range cycles {
		assert.NotContains(t, c.Path, "S!E1")
	}
}

func TestAnalyzeCycles_CrossSheet(t *testing.T) {
	graph := map[string][]string{
		"A!A1": {"B!A1"},
		"B!A1": {"A!A1", "B!Z9"},
	}
	cycles := AnalyzeCycles(graph)
	require.Len(t, cycles, 1)
	assert.Equal(t, []string{"A!A1", "B!A1", "A!A1"}, cycles[0].Path)
}

func TestAnalyzeCycles_Deterministic(t *testing.T) {
	graph := map[string][]string{
		"S!A5": {"S!A4"},
		"S!A4": {"S!A3"},
		"S!A3": {"S!A2"},
		"S!A2": {"S!A1"},
		"S!A1": {"S!A5"},
		"S!B1": {"S!B1"},
	}
	first := AnalyzeCycles(graph)
	for range 10 {
		assert.Equal(t, first, AnalyzeCycles(graph))
	}
	require.Len(t, first, 2)
	assert.Len(t, first[0].Path, 6)
	assert.Equal(t, first[0].Path[0], first[0].Path[5])
}

func TestCycle_Diagnostic(t *testing.T) {
	c := Cycle{Path: []string{"S!A1", "S!B1", "S!A1"}, Message: "circular reference: S!A1 -> S!B1 -> S!A1"}
	d := c.Diagnostic()
	assert.Equal(t, ErrReferenceCycle, d.Code)
	assert.Equal(t, "S!A1", d.Node)
	assert.Equal(t, c.Message, d.Message)
}

func TestHasSelfLoop(t *testing.T) {
	graph := map[string][]string{
		"a": {"a"},
		"b": {"c"},
	}
	assert.True(t, hasSelfLoop("a", graph))
	assert.False(t, hasSelfLoop("b", graph))
	assert.False(t, hasSelfLoop("missing", graph))
}

func TestTarjanSCC(t *testing.T) {
	graph := map[string][]string{
		"a": {"b"},
		"b": {"a"},
		"c": {"a"},
	}
	sccs := tarjanSCC(graph)
	require.Len(t, sccs, 2)
	assert.Equal(t, []string{"a", "b"}, sccs[0])
	assert.Equal(t, []string{"c"}, sccs[1])
}
