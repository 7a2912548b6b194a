package ir

import "fmt"

// VertexDAG is the immutable intra-task operator graph: vertices plus the
// intra-DAG edges between them, with adjacency indexed by vertex id and a
// topological order computed once at construction.
type VertexDAG struct {
	vertices map[string]*Vertex
	edges    []IntraEdge

	// outAdj/inAdj index edges by endpoint for harness construction's
	// per-vertex classification pass.
	outAdj map[string][]IntraEdge
	inAdj  map[string][]IntraEdge

	// topo is forward topological order (sources before their consumers),
	// used for finalization per spec §4.6. reverseTopo is its mirror,
	// used for harness construction per spec §4.1.
	topo        []string
	reverseTopo []string
}

// NewVertexDAG builds a VertexDAG from vertices and the intra-task edges
// between them, computing topological order via Kahn's algorithm. It
// returns an error if any edge references an unknown vertex or the graph
// contains a cycle — both are construction-time fatal conditions.
func NewVertexDAG(vertices []*Vertex, edges []IntraEdge) (*VertexDAG, error) {
	byID := make(map[string]*Vertex, len(vertices))
	for _, v := range vertices {
		if err := v.Validate(); err != nil {
			return nil, err
		}
		if _, dup := byID[v.ID]; dup {
			return nil, fmt.Errorf("duplicate vertex id %s", v.ID)
		}
		byID[v.ID] = v
	}

	outAdj := make(map[string][]IntraEdge, len(vertices))
	inAdj := make(map[string][]IntraEdge, len(vertices))
	inDegree := make(map[string]int, len(vertices))
	for id := range byID {
		inDegree[id] = 0
	}
	for _, e := range edges {
		if _, ok := byID[e.Src]; !ok {
			return nil, fmt.Errorf("edge references unknown src vertex %s", e.Src)
		}
		if _, ok := byID[e.Dst]; !ok {
			return nil, fmt.Errorf("edge references unknown dst vertex %s", e.Dst)
		}
		outAdj[e.Src] = append(outAdj[e.Src], e)
		inAdj[e.Dst] = append(inAdj[e.Dst], e)
		inDegree[e.Dst]++
	}

	// Kahn's algorithm, visiting ready vertices in a stable order (input
	// order among vertices) so the topological order is deterministic.
	ready := make([]string, 0, len(vertices))
	for _, v := range vertices {
		if inDegree[v.ID] == 0 {
			ready = append(ready, v.ID)
		}
	}
	remaining := make(map[string]int, len(inDegree))
	for id, d := range inDegree {
		remaining[id] = d
	}

	topo := make([]string, 0, len(vertices))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		topo = append(topo, id)
		for _, e := range outAdj[id] {
			remaining[e.Dst]--
			if remaining[e.Dst] == 0 {
				ready = append(ready, e.Dst)
			}
		}
	}
	if len(topo) != len(vertices) {
		return nil, fmt.Errorf("vertex DAG has a cycle: only %d of %d vertices are orderable", len(topo), len(vertices))
	}

	reverseTopo := make([]string, len(topo))
	for i, id := range topo {
		reverseTopo[len(topo)-1-i] = id
	}

	return &VertexDAG{
		vertices:    byID,
		edges:       edges,
		outAdj:      outAdj,
		inAdj:       inAdj,
		topo:        topo,
		reverseTopo: reverseTopo,
	}, nil
}

// Vertex returns the vertex with the given id, or nil if absent.
func (d *VertexDAG) Vertex(id string) *Vertex { return d.vertices[id] }

// Vertices returns all vertex ids in forward topological order.
func (d *VertexDAG) Vertices() []string { return d.topo }

// TopologicalOrder returns vertex ids such that every vertex appears after
// all of its upstream dependencies. Used for finalization (spec §4.6).
func (d *VertexDAG) TopologicalOrder() []string { return d.topo }

// ReverseTopologicalOrder returns vertex ids such that every vertex appears
// after all of its downstream consumers. Used for harness construction
// (spec §4.1) so each vertex's children already have harnesses.
func (d *VertexDAG) ReverseTopologicalOrder() []string { return d.reverseTopo }

// OutgoingEdges returns the intra-task edges whose Src is id, in the order
// they were supplied to NewVertexDAG.
func (d *VertexDAG) OutgoingEdges(id string) []IntraEdge { return d.outAdj[id] }

// IncomingEdges returns the intra-task edges whose Dst is id.
func (d *VertexDAG) IncomingEdges(id string) []IntraEdge { return d.inAdj[id] }
