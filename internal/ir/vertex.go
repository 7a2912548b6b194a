// Package ir holds the immutable descriptors the task executor builds its
// harness graph from: vertices, the stage edges that cross task boundaries,
// and the DAG that orders them. Nothing in this package is mutated after
// construction; VertexHarness (internal/harness) is where per-run state
// lives.
package ir

import "fmt"

// VertexKind tags a Vertex as either a finite element source or an operator
// with a transform attached. Modeled as a tagged sum per the harness design:
// dispatch on Kind is a switch, never a type assertion chain.
type VertexKind int

const (
	// VertexSource wraps a Readable; it has no transform of its own.
	VertexSource VertexKind = iota
	// VertexOperator carries a Transform invoked on every element it sees.
	VertexOperator
)

func (k VertexKind) String() string {
	switch k {
	case VertexSource:
		return "source"
	case VertexOperator:
		return "operator"
	default:
		return "unknown"
	}
}

// Vertex is a single node in the intra-task operator DAG. Operator is nil
// for VertexSource vertices and non-nil for VertexOperator ones; Validate,
// which NewVertexDAG calls on every vertex, rejects any other combination.
type Vertex struct {
	ID       string
	Kind     VertexKind
	Operator *OperatorSpec
}

// OperatorSpec is the Operator-only payload of a Vertex: the transform to
// run and whether it is the aggregate-metric kind that triggers a DynOpt
// collector instead of a fan-out collector.
type OperatorSpec struct {
	Transform Transform
	// AggregateMetric marks this operator's output as bound for the master
	// rather than downstream consumers (spec §3: "A DynOpt collector is
	// installed iff the vertex is an Operator whose transform is an
	// aggregate-metric transform").
	AggregateMetric bool
}

// NewSourceVertex builds a Source-kind vertex.
func NewSourceVertex(id string) *Vertex {
	return &Vertex{ID: id, Kind: VertexSource}
}

// NewOperatorVertex builds an Operator-kind vertex wrapping transform.
func NewOperatorVertex(id string, transform Transform, aggregateMetric bool) *Vertex {
	return &Vertex{
		ID:   id,
		Kind: VertexOperator,
		Operator: &OperatorSpec{
			Transform:       transform,
			AggregateMetric: aggregateMetric,
		},
	}
}

// Validate checks the Source/Operator ⇔ nil-Operator invariant in isolation
// from any Readable mapping; harness construction additionally checks the
// vertex against the task's id→Readable map.
func (v *Vertex) Validate() error {
	switch v.Kind {
	case VertexSource:
		if v.Operator != nil {
			return fmt.Errorf("vertex %s: source vertex must not carry an operator spec", v.ID)
		}
	case VertexOperator:
		if v.Operator == nil {
			return fmt.Errorf("vertex %s: operator vertex requires an operator spec", v.ID)
		}
	default:
		return fmt.Errorf("vertex %s: unknown vertex kind %d", v.ID, v.Kind)
	}
	return nil
}
