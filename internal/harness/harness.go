// Package harness builds and holds the per-vertex execution nodes (spec
// §3, §4.1): one VertexHarness per IR vertex, wired together from the
// children outward in a single reverse-topological-order pass so no
// patching pass is needed afterward.
package harness

import (
	"context"
	"fmt"

	"github.com/swarmguard/taskexecutor/internal/collector"
	"github.com/swarmguard/taskexecutor/internal/fetch"
	"github.com/swarmguard/taskexecutor/internal/ir"
	"github.com/swarmguard/taskexecutor/internal/transfer"
)

// VertexHarness is the mutable per-vertex execution node. It is created
// once during construction and thereafter mutated only by the owning
// single thread (spec §3 invariant).
type VertexHarness struct {
	Vertex    *ir.Vertex
	Collector ir.Collector
	TC        *ir.TransformContext

	mainWriters []transfer.OutputWriter
	tagWriters  map[string][]transfer.OutputWriter
}

// ExternalMainWriters returns the writers registered on this harness's
// main output.
func (h *VertexHarness) ExternalMainWriters() []transfer.OutputWriter { return h.mainWriters }

// ExternalTaggedWriters returns every writer registered under any tag.
func (h *VertexHarness) ExternalTaggedWriters() []transfer.OutputWriter {
	var all []transfer.OutputWriter
	for _, ws := range h.tagWriters {
		all = append(all, ws...)
	}
	return all
}

// Process implements ir.Processor: it runs this vertex's transform over
// element, which may itself call h.Collector.Emit and recurse further
// downstream on the same call stack (spec §4.3, §5).
func (h *VertexHarness) Process(element ir.Element) {
	if h.Vertex.Kind != ir.VertexOperator {
		return
	}
	h.Vertex.Operator.Transform.OnData(element)
}

// BroadcastRegistrar registers a reader for a broadcast-tagged incoming
// stage edge under its broadcast id, keeping it out of the non-broadcast
// fetcher list entirely (spec §3, §4.1 step 7).
type BroadcastRegistrar interface {
	RegisterReader(broadcastID string, reader transfer.InputReader)
}

// processorAdapter is the "thin adapter" spec §4.1 step 7 describes: a
// Collector whose Emit forwards directly into a downstream vertex's
// Process, so a parent-task fetcher's elements run through that vertex's
// transform exactly like an internally-fanned-out element would.
type processorAdapter struct{ target ir.Processor }

func (a processorAdapter) Emit(element ir.Element)                  { a.target.Process(element) }
func (a processorAdapter) EmitTagged(tag string, element ir.Element) {}
func (a processorAdapter) EmitWatermark(w ir.Watermark)              {}

// Result is everything BuildAll produces: harnesses indexed by vertex id,
// the same harnesses in forward topological order for finalization, and
// the full fetcher list.
type Result struct {
	ByID     map[string]*VertexHarness
	Sorted   []*VertexHarness
	Fetchers []fetch.DataFetcher
}

// BuildAll constructs one VertexHarness per vertex in dag, in reverse
// topological order, and one DataFetcher per Source vertex and
// non-broadcast incoming stage edge (spec §4.1). onHold is the callback a
// DynOpt collector invokes when its vertex emits a hand-off payload.
func BuildAll(
	ctx context.Context,
	task *ir.Task,
	dag *ir.VertexDAG,
	factory transfer.DataTransferFactory,
	broadcastReg BroadcastRegistrar,
	broadcastReader ir.BroadcastReader,
	onHold collector.OnHoldFunc,
) (*Result, error) {
	byID := make(map[string]*VertexHarness, len(dag.Vertices()))
	var fetchers []fetch.DataFetcher

	incomingByDst := make(map[string][]ir.StageEdge)
	for _, e := range task.Incoming {
		incomingByDst[e.Dst] = append(incomingByDst[e.Dst], e)
	}
	outgoingBySrc := make(map[string][]ir.StageEdge)
	for _, e := range task.Outgoing {
		outgoingBySrc[e.Src] = append(outgoingBySrc[e.Src], e)
	}

	for _, id := range dag.ReverseTopologicalOrder() {
		v := dag.Vertex(id)
		_, hasReadable := task.Readables[id]
		if hasReadable != (v.Kind == ir.VertexSource) {
			return nil, fmt.Errorf("harness build: vertex %s readable presence (%v) does not match Source kind (%v)", id, hasReadable, v.Kind == ir.VertexSource)
		}

		h := &VertexHarness{
			Vertex:     v,
			tagWriters: make(map[string][]transfer.OutputWriter),
		}

		op := collector.NewOperator(ctx)
		for _, e := range dag.OutgoingEdges(id) {
			child, ok := byID[e.Dst]
			if !ok {
				return nil, fmt.Errorf("harness build: vertex %s references child %s not yet built (DAG is not in reverse topological order)", id, e.Dst)
			}
			if e.HasTag() {
				op.AddInternalTagged(e.Tag, child)
			} else {
				op.AddInternalMain(child)
			}
		}
		for _, e := range outgoingBySrc[id] {
			w, err := factory.CreateWriter(task.ID, e.Dst, e)
			if err != nil {
				return nil, fmt.Errorf("harness build: create writer for %s->%s: %w", e.Src, e.Dst, err)
			}
			if e.HasTag() {
				op.AddExternalTagged(e.Tag, w)
				h.tagWriters[e.Tag] = append(h.tagWriters[e.Tag], w)
			} else {
				op.AddExternalMain(w)
				h.mainWriters = append(h.mainWriters, w)
			}
		}

		h.TC = &ir.TransformContext{VertexID: id, Broadcast: broadcastReader}

		if v.Kind == ir.VertexOperator && v.Operator.AggregateMetric {
			h.Collector = collector.NewDynOpt(id, h.TC, onHold)
		} else {
			h.Collector = op
		}

		if v.Kind == ir.VertexOperator {
			v.Operator.Transform.Prepare(ctx, h.TC, h.Collector)
		}

		byID[id] = h

		if v.Kind == ir.VertexSource {
			readable := task.Readables[id]
			fetchers = append(fetchers, fetch.NewSourceFetcher(id, readable, h.Collector))
		}

		broadcastEdges, nonBroadcastEdges := partitionIncoming(incomingByDst[id])
		for _, e := range broadcastEdges {
			reader, err := factory.CreateReader(task.Index, e.Src, e)
			if err != nil {
				return nil, fmt.Errorf("harness build: create broadcast reader for %s->%s: %w", e.Src, e.Dst, err)
			}
			broadcastReg.RegisterReader(e.BroadcastID, reader)
		}
		for _, e := range nonBroadcastEdges {
			reader, err := factory.CreateReader(task.Index, e.Src, e)
			if err != nil {
				return nil, fmt.Errorf("harness build: create reader for %s->%s: %w", e.Src, e.Dst, err)
			}
			adapter := processorAdapter{target: h}
			fetchers = append(fetchers, fetch.NewParentTaskFetcher(id, reader, adapter))
		}
	}

	sorted := make([]*VertexHarness, 0, len(dag.Vertices()))
	for _, id := range dag.TopologicalOrder() {
		sorted = append(sorted, byID[id])
	}

	return &Result{ByID: byID, Sorted: sorted, Fetchers: fetchers}, nil
}

func partitionIncoming(edges []ir.StageEdge) (broadcast, nonBroadcast []ir.StageEdge) {
	for _, e := range edges {
		if e.HasBroadcastID() {
			broadcast = append(broadcast, e)
		} else {
			nonBroadcast = append(nonBroadcast, e)
		}
	}
	return
}
