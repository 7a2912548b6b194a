// Package collector implements the two OutputCollector variants (spec
// §4.3): an Operator collector that fans elements out to intra-task
// children and inter-task writers, and a DynOpt collector that diverts
// emitted payloads to the master instead.
package collector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/swarmguard/taskexecutor/internal/ir"
	"github.com/swarmguard/taskexecutor/internal/transfer"
)

// Operator is the fan-out collector. Within a single Emit/EmitTagged call,
// internal fan-out happens in registration order followed by external
// writes in registration order (spec §4.3).
type Operator struct {
	ctx context.Context

	mainInternal []ir.Processor
	mainExternal []transfer.OutputWriter
	tagInternal  map[string][]ir.Processor
	tagExternal  map[string][]transfer.OutputWriter
}

// NewOperator builds an Operator collector. ctx is used for writer calls;
// it should be the task's execution context, not per-element.
func NewOperator(ctx context.Context) *Operator {
	return &Operator{
		ctx:         ctx,
		tagInternal: make(map[string][]ir.Processor),
		tagExternal: make(map[string][]transfer.OutputWriter),
	}
}

// AddInternalMain registers a downstream intra-task vertex on the main
// output, in construction order.
func (o *Operator) AddInternalMain(p ir.Processor) { o.mainInternal = append(o.mainInternal, p) }

// AddExternalMain registers an inter-task writer on the main output.
func (o *Operator) AddExternalMain(w transfer.OutputWriter) { o.mainExternal = append(o.mainExternal, w) }

// AddInternalTagged registers a downstream intra-task vertex under tag.
func (o *Operator) AddInternalTagged(tag string, p ir.Processor) {
	o.tagInternal[tag] = append(o.tagInternal[tag], p)
}

// AddExternalTagged registers an inter-task writer under tag.
func (o *Operator) AddExternalTagged(tag string, w transfer.OutputWriter) {
	o.tagExternal[tag] = append(o.tagExternal[tag], w)
}

// Emit fans element out to the main internal and external consumers.
func (o *Operator) Emit(element ir.Element) {
	for _, p := range o.mainInternal {
		p.Process(element)
	}
	for _, w := range o.mainExternal {
		if err := w.Write(o.ctx, element); err != nil {
			slog.Error("external main writer failed", "error", err)
		}
	}
}

// EmitTagged fans element out under tag. An unknown tag is a silent no-op
// (spec §4.3, §7): the map lookups below simply range over nil slices.
func (o *Operator) EmitTagged(tag string, element ir.Element) {
	for _, p := range o.tagInternal[tag] {
		p.Process(element)
	}
	for _, w := range o.tagExternal[tag] {
		if err := w.Write(o.ctx, element); err != nil {
			slog.Error("external tagged writer failed", "tag", tag, "error", err)
		}
	}
}

// EmitWatermark is a reserved no-op extension point (spec §9): watermark
// propagation is unimplemented upstream and codified here as such rather
// than invented.
func (o *Operator) EmitWatermark(w ir.Watermark) {}

// ExternalMainWriters/ExternalTaggedWriters expose the registered writers.
// Finalization in internal/taskexec does not call these: it closes the same
// writers through VertexHarness's accessors of the same names.
func (o *Operator) ExternalMainWriters() []transfer.OutputWriter { return o.mainExternal }

// ExternalTaggedWriters returns all externally-tagged writers across every
// tag.
func (o *Operator) ExternalTaggedWriters() []transfer.OutputWriter {
	var all []transfer.OutputWriter
	for _, ws := range o.tagExternal {
		all = append(all, ws...)
	}
	return all
}

// OnHoldFunc is the narrow callback capability a DynOpt collector uses to
// tell the executor it should finish ON_HOLD rather than COMPLETE (spec
// §9: "pass this in as a small callback capability, not a full executor
// reference").
type OnHoldFunc func(vertexID string)

// DynOpt diverts emitted payloads to the master instead of fanning out.
// The payload is serialized and stashed on the vertex's TransformContext;
// internal/taskexec's finalization reads it back out and sends the
// ExecutorDataCollected control message (spec §4.3, §4.6).
type DynOpt struct {
	vertexID string
	tc       *ir.TransformContext
	onHold   OnHoldFunc
}

// NewDynOpt builds the DynOpt collector for vertexID, writing pending
// payloads into tc and invoking onHold each time a payload is emitted.
func NewDynOpt(vertexID string, tc *ir.TransformContext, onHold OnHoldFunc) *DynOpt {
	return &DynOpt{vertexID: vertexID, tc: tc, onHold: onHold}
}

// Emit serializes element.Payload and stashes it for hand-off, then
// signals hold. Per the documented last-writer-wins resolution of the
// open question in spec §9, a second Emit from this collector simply
// overwrites the previously stashed payload.
func (d *DynOpt) Emit(element ir.Element) {
	data, err := serializePayload(element.Payload)
	if err != nil {
		slog.Error("dynopt payload serialization failed", "vertex", d.vertexID, "error", err)
		return
	}
	d.tc.SetPending(data)
	if d.onHold != nil {
		d.onHold(d.vertexID)
	}
}

// EmitTagged has no meaning for a DynOpt collector; tagged side outputs
// are an Operator-only concept. Treated the same as an unknown tag: a
// silent no-op.
func (d *DynOpt) EmitTagged(tag string, element ir.Element) {}

// EmitWatermark is a no-op, matching Operator's stub.
func (d *DynOpt) EmitWatermark(w ir.Watermark) {}

func serializePayload(payload any) (string, error) {
	if s, ok := payload.(string); ok {
		return s, nil
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal dynopt payload: %w", err)
	}
	return string(b), nil
}
