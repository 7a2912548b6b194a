package taskspec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/swarmguard/taskexecutor/internal/registry"
)

const sampleJSON = `{
  "taskId": "task-0",
  "taskIndex": 0,
  "vertices": [
    {"id": "S", "kind": "source", "readableKind": "static", "readableConfig": {"elements": ["a", "b"]}},
    {"id": "Op1", "kind": "operator", "transformKind": "identity"},
    {"id": "Agg", "kind": "operator", "transformKind": "count", "aggregateMetric": true}
  ],
  "intraEdges": [
    {"src": "S", "dst": "Op1"},
    {"src": "Op1", "dst": "Agg"}
  ],
  "incoming": [],
  "outgoing": []
}`

func TestDecodeAndBuild(t *testing.T) {
	spec, err := Decode(strings.NewReader(sampleJSON))
	require.NoError(t, err)
	require.Equal(t, "task-0", spec.TaskID)
	require.Len(t, spec.Vertices, 3)

	reg := registry.New()
	task, dag, err := Build(spec, reg)
	require.NoError(t, err)

	require.Equal(t, "task-0", task.ID)
	require.Contains(t, task.Readables, "S")
	require.Equal(t, []string{"S", "Op1", "Agg"}, dag.TopologicalOrder())
}

func TestBuildRejectsUnknownVertexKind(t *testing.T) {
	spec := &Spec{
		TaskID: "t",
		Vertices: []VertexSpec{
			{ID: "X", Kind: "bogus"},
		},
	}
	reg := registry.New()
	_, _, err := Build(spec, reg)
	require.Error(t, err)
}

func TestBuildRejectsUnknownTransformKind(t *testing.T) {
	spec := &Spec{
		TaskID: "t",
		Vertices: []VertexSpec{
			{ID: "Op", Kind: "operator", TransformKind: "does-not-exist"},
		},
	}
	reg := registry.New()
	_, _, err := Build(spec, reg)
	require.Error(t, err)
}

func TestBuildCarriesStageEdges(t *testing.T) {
	spec := &Spec{
		TaskID: "t",
		Vertices: []VertexSpec{
			{ID: "S", Kind: "source", ReadableKind: "static", ReadableConfig: map[string]any{"elements": []any{}}},
		},
		Incoming: []StageEdgeSpec{{Src: "Up", Dst: "S", BroadcastID: "bcast-1"}},
		Outgoing: []StageEdgeSpec{{Src: "S", Dst: "Down", Tag: "side"}},
	}
	reg := registry.New()
	task, _, err := Build(spec, reg)
	require.NoError(t, err)

	require.Len(t, task.Incoming, 1)
	require.Equal(t, "bcast-1", task.Incoming[0].BroadcastID)
	require.Len(t, task.Outgoing, 1)
	require.Equal(t, "side", task.Outgoing[0].Tag)
}
