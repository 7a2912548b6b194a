package ir

import "context"

// Collector is the push sink a Transform uses to emit elements. The
// concrete implementations (operator fan-out, DynOpt hand-off) live in
// internal/collector; this package only needs the shape so Transform can
// depend on it without an import cycle.
type Collector interface {
	// Emit delivers element to the main (untagged) output.
	Emit(element Element)
	// EmitTagged delivers element to the named side output. Unknown tags
	// are a silent no-op (spec §4.3, §7).
	EmitTagged(tag string, element Element)
	// EmitWatermark forwards a watermark. Currently always a no-op; see
	// the Watermark type doc.
	EmitWatermark(w Watermark)
}

// BroadcastReader resolves a previously-registered broadcast variable by
// id. TransformContext exposes one so transforms can read broadcast state
// without the element stream carrying it.
type BroadcastReader interface {
	Broadcast(id string) (any, bool)
}

// TransformContext is handed to Transform.Prepare. Pending holds the
// DynOpt path's serialized-data slot: on an aggregate-metric vertex, the
// DynOpt collector stores each emitted payload here instead of passing it
// to a downstream vertex, and internal/taskexec's finalize reads it back
// out.
type TransformContext struct {
	VertexID  string
	Broadcast BroadcastReader

	pending    string
	hasPending bool
}

// SetPending stashes a serialized payload for the DynOpt hand-off. Spec
// §4.3 has a single caller write here per vertex (the aggregate-metric
// transform, by construction); a later write overwrites an earlier one.
func (c *TransformContext) SetPending(data string) {
	c.pending = data
	c.hasPending = true
}

// TakePending returns the pending payload, if any, and clears it.
func (c *TransformContext) TakePending() (string, bool) {
	if !c.hasPending {
		return "", false
	}
	data := c.pending
	c.hasPending = false
	return data, true
}

// Processor is the narrow capability an operator collector needs to hand
// an element to a downstream vertex's harness without importing
// internal/harness (which itself depends on internal/collector to build
// collectors). VertexHarness implements this by calling its Transform's
// OnData.
type Processor interface {
	Process(element Element)
}

// Transform is the user-supplied per-vertex processing logic. Prepare is
// called once at harness construction, OnData once per element, and Close
// once at finalization — in that order, with no call after Close.
type Transform interface {
	Prepare(ctx context.Context, tc *TransformContext, collector Collector)
	OnData(element Element)
	Close()
}
