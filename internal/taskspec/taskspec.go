// Package taskspec decodes a JSON task descriptor — the declarative form
// a scheduler hands this executor process — into the ir.Task and
// ir.VertexDAG the harness builder consumes (spec §4.1 input).
package taskspec

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/swarmguard/taskexecutor/internal/ir"
	"github.com/swarmguard/taskexecutor/internal/registry"
)

// VertexSpec is one vertex's JSON shape.
type VertexSpec struct {
	ID              string         `json:"id"`
	Kind            string         `json:"kind"` // "source" | "operator"
	TransformKind   string         `json:"transformKind,omitempty"`
	TransformConfig map[string]any `json:"transformConfig,omitempty"`
	AggregateMetric bool           `json:"aggregateMetric,omitempty"`
	ReadableKind    string         `json:"readableKind,omitempty"`
	ReadableConfig  map[string]any `json:"readableConfig,omitempty"`
}

// IntraEdgeSpec is an edge between two vertices within this task.
type IntraEdgeSpec struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
	Tag string `json:"tag,omitempty"`
}

// StageEdgeSpec is an edge crossing this task's boundary.
type StageEdgeSpec struct {
	Src         string `json:"src"`
	Dst         string `json:"dst"`
	BroadcastID string `json:"broadcastId,omitempty"`
	Tag         string `json:"tag,omitempty"`
}

// Spec is the full JSON task descriptor.
type Spec struct {
	TaskID     string          `json:"taskId"`
	TaskIndex  int             `json:"taskIndex"`
	Vertices   []VertexSpec    `json:"vertices"`
	IntraEdges []IntraEdgeSpec `json:"intraEdges"`
	Incoming   []StageEdgeSpec `json:"incoming"`
	Outgoing   []StageEdgeSpec `json:"outgoing"`
}

// Decode reads a Spec from r.
func Decode(r io.Reader) (*Spec, error) {
	var s Spec
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode task spec: %w", err)
	}
	return &s, nil
}

// Build turns a decoded Spec into an ir.Task and ir.VertexDAG, resolving
// transform/readable kinds through reg.
func Build(s *Spec, reg *registry.Registry) (*ir.Task, *ir.VertexDAG, error) {
	vertices := make([]*ir.Vertex, 0, len(s.Vertices))
	readables := make(map[string]ir.Readable)

	for _, vs := range s.Vertices {
		switch vs.Kind {
		case "source":
			readable, err := reg.Readable(vs.ReadableKind, vs.ReadableConfig)
			if err != nil {
				return nil, nil, fmt.Errorf("vertex %s: %w", vs.ID, err)
			}
			readables[vs.ID] = readable
			vertices = append(vertices, ir.NewSourceVertex(vs.ID))
		case "operator":
			transform, err := reg.Transform(vs.TransformKind, vs.TransformConfig)
			if err != nil {
				return nil, nil, fmt.Errorf("vertex %s: %w", vs.ID, err)
			}
			vertices = append(vertices, ir.NewOperatorVertex(vs.ID, transform, vs.AggregateMetric))
		default:
			return nil, nil, fmt.Errorf("vertex %s: unknown kind %q", vs.ID, vs.Kind)
		}
	}

	edges := make([]ir.IntraEdge, 0, len(s.IntraEdges))
	for _, es := range s.IntraEdges {
		edges = append(edges, ir.IntraEdge{Src: es.Src, Dst: es.Dst, Tag: es.Tag})
	}

	dag, err := ir.NewVertexDAG(vertices, edges)
	if err != nil {
		return nil, nil, fmt.Errorf("build vertex DAG: %w", err)
	}

	task := &ir.Task{
		ID:        s.TaskID,
		Index:     s.TaskIndex,
		Readables: readables,
		Incoming:  toStageEdges(s.Incoming),
		Outgoing:  toStageEdges(s.Outgoing),
	}
	return task, dag, nil
}

func toStageEdges(specs []StageEdgeSpec) []ir.StageEdge {
	edges := make([]ir.StageEdge, 0, len(specs))
	for _, s := range specs {
		edges = append(edges, ir.StageEdge{Src: s.Src, Dst: s.Dst, BroadcastID: s.BroadcastID, Tag: s.Tag})
	}
	return edges
}
