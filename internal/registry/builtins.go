package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/swarmguard/taskexecutor/internal/ir"
)

// identityTransform forwards every element to its main output unchanged.
// Useful as a structural placeholder vertex (e.g. a fan-in/fan-out point
// with no processing of its own).
type identityTransform struct {
	coll ir.Collector
}

func newIdentityTransform(config map[string]any) (ir.Transform, error) {
	return &identityTransform{}, nil
}

func (t *identityTransform) Prepare(ctx context.Context, tc *ir.TransformContext, c ir.Collector) {
	t.coll = c
}
func (t *identityTransform) OnData(e ir.Element) { t.coll.Emit(e) }
func (t *identityTransform) Close()              {}

// countTransform counts the elements it observes and emits the final
// count through its collector on Close. Registered as the default
// aggregate-metric transform: pair it with AggregateMetric=true on a
// vertex to exercise the DynOpt hand-off path.
type countTransform struct {
	coll  ir.Collector
	count int64
}

func newCountTransform(config map[string]any) (ir.Transform, error) {
	return &countTransform{}, nil
}

func (t *countTransform) Prepare(ctx context.Context, tc *ir.TransformContext, c ir.Collector) {
	t.coll = c
}
func (t *countTransform) OnData(e ir.Element) { t.count++ }
func (t *countTransform) Close()              { t.coll.Emit(ir.NewElement(fmt.Sprintf("%d", t.count))) }

// staticReadable replays a fixed, config-supplied list of elements. It
// exists so a task spec can declare a self-contained source without a
// real upstream system — primarily for local testing and the reference
// wiring in cmd/taskexecutor.
type staticReadable struct {
	elems     []any
	i         int
	readStart time.Time
	readNanos int64
}

func newStaticReadable(config map[string]any) (ir.Readable, error) {
	raw, ok := config["elements"]
	if !ok {
		return nil, fmt.Errorf("static readable requires an \"elements\" config key")
	}
	elems, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("static readable \"elements\" must be a list")
	}
	return &staticReadable{elems: elems}, nil
}

func (r *staticReadable) Next() (ir.Element, error) {
	start := time.Now()
	defer func() { r.readNanos += time.Since(start).Nanoseconds() }()

	if r.i >= len(r.elems) {
		return ir.Finishmark, nil
	}
	e := r.elems[r.i]
	r.i++
	return ir.NewElement(e), nil
}

func (r *staticReadable) BoundedSourceReadTime() int64 { return r.readNanos }
