package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVertexDAGTopologicalOrder(t *testing.T) {
	// S -> Op1 -> Op2, linear chain.
	vs := []*Vertex{
		NewSourceVertex("S"),
		NewOperatorVertex("Op1", nil, false),
		NewOperatorVertex("Op2", nil, false),
	}
	edges := []IntraEdge{
		{Src: "S", Dst: "Op1"},
		{Src: "Op1", Dst: "Op2"},
	}
	dag, err := NewVertexDAG(vs, edges)
	require.NoError(t, err)

	topo := dag.TopologicalOrder()
	require.Equal(t, []string{"S", "Op1", "Op2"}, topo)

	reverse := dag.ReverseTopologicalOrder()
	require.Equal(t, []string{"Op2", "Op1", "S"}, reverse)
}

func TestVertexDAGDetectsCycle(t *testing.T) {
	vs := []*Vertex{
		NewOperatorVertex("A", nil, false),
		NewOperatorVertex("B", nil, false),
	}
	edges := []IntraEdge{
		{Src: "A", Dst: "B"},
		{Src: "B", Dst: "A"},
	}
	_, err := NewVertexDAG(vs, edges)
	require.Error(t, err)
}

func TestVertexDAGRejectsUnknownEdgeEndpoint(t *testing.T) {
	vs := []*Vertex{NewSourceVertex("S")}
	edges := []IntraEdge{{Src: "S", Dst: "ghost"}}
	_, err := NewVertexDAG(vs, edges)
	require.Error(t, err)
}

func TestVertexValidateRejectsMismatch(t *testing.T) {
	bad := &Vertex{ID: "x", Kind: VertexSource, Operator: &OperatorSpec{}}
	require.Error(t, bad.Validate())

	bad2 := &Vertex{ID: "y", Kind: VertexOperator}
	require.Error(t, bad2.Validate())
}

func TestVertexDAGBuildingTwiceYieldsIdenticalStructure(t *testing.T) {
	build := func() *VertexDAG {
		vs := []*Vertex{
			NewSourceVertex("A"),
			NewSourceVertex("B"),
			NewOperatorVertex("Op", nil, false),
		}
		edges := []IntraEdge{
			{Src: "A", Dst: "Op"},
			{Src: "B", Dst: "Op", Tag: "side"},
		}
		dag, err := NewVertexDAG(vs, edges)
		require.NoError(t, err)
		return dag
	}

	d1 := build()
	d2 := build()
	require.Equal(t, d1.TopologicalOrder(), d2.TopologicalOrder())
	require.Equal(t, d1.ReverseTopologicalOrder(), d2.ReverseTopologicalOrder())
	require.Equal(t, d1.OutgoingEdges("A"), d2.OutgoingEdges("A"))
	require.Equal(t, d1.OutgoingEdges("B"), d2.OutgoingEdges("B"))
}

func TestElementFinishmarkAndWatermark(t *testing.T) {
	require.True(t, Finishmark.IsFinishmark())

	data := NewElement(42)
	require.False(t, data.IsFinishmark())

	wm := NewWatermarkElement(Watermark{Timestamp: 100})
	got, ok := wm.IsWatermark()
	require.True(t, ok)
	require.Equal(t, int64(100), got.Timestamp)
}
