// Package fetch implements the unified pull interface over a single input
// (spec §4.2): a Source variant wrapping a Readable, and a Parent-Task
// variant wrapping an InputReader. Both report the same Result
// vocabulary so the fetch loop in internal/taskexec can treat them
// uniformly.
package fetch

import (
	"context"
	"errors"

	"github.com/swarmguard/taskexecutor/internal/ir"
	"github.com/swarmguard/taskexecutor/internal/transfer"
)

// Outcome classifies what a single FetchOne call observed.
type Outcome int

const (
	// OutcomeData means Element holds a data element ready for
	// collector.Emit.
	OutcomeData Outcome = iota
	// OutcomeFinishmark means the input has reached normal end-of-stream.
	OutcomeFinishmark
	// OutcomeWatermark means Element carries an out-of-band watermark.
	OutcomeWatermark
	// OutcomeEmpty means nothing was available right now; transient.
	OutcomeEmpty
	// OutcomeIOFailure means the underlying channel is broken; recoverable
	// at the task level (SHOULD_RETRY), fatal for this fetcher.
	OutcomeIOFailure
)

// Result is what FetchOne returns: an Outcome tag plus, for OutcomeData and
// OutcomeWatermark, the Element itself.
type Result struct {
	Outcome Outcome
	Element ir.Element
	Err     error
}

// DataFetcher is the unified pull handle the fetch loop drives. Each
// fetcher carries the collector its elements must be delivered into (spec
// §4.1 step 6/7): the loop only calls FetchOne and dispatches the Result,
// it never reaches into a fetcher's internals.
type DataFetcher interface {
	// VertexID identifies the vertex this fetcher feeds.
	VertexID() string
	// Collector is where OutcomeData/OutcomeWatermark results must be
	// delivered.
	Collector() ir.Collector
	FetchOne(ctx context.Context) Result
	Close() error
}

func classifyErr(err error) Result {
	if errors.Is(err, ir.ErrEmpty) {
		return Result{Outcome: OutcomeEmpty}
	}
	return Result{Outcome: OutcomeIOFailure, Err: err}
}

// sourceFetcher wraps a Readable for a Source vertex. It records the
// bounded-source read time reported by the Readable once Finishmark is
// observed (spec §3, §4.2).
type sourceFetcher struct {
	vertexID string
	readable ir.Readable
	coll     ir.Collector

	readTimeNanos int64
	done          bool
}

// NewSourceFetcher builds the Source variant of DataFetcher.
func NewSourceFetcher(vertexID string, readable ir.Readable, coll ir.Collector) DataFetcher {
	return &sourceFetcher{vertexID: vertexID, readable: readable, coll: coll}
}

func (f *sourceFetcher) VertexID() string     { return f.vertexID }
func (f *sourceFetcher) Collector() ir.Collector { return f.coll }

func (f *sourceFetcher) FetchOne(ctx context.Context) Result {
	elem, err := f.readable.Next()
	if err != nil {
		return classifyErr(err)
	}
	if elem.IsFinishmark() {
		f.done = true
		f.readTimeNanos = f.readable.BoundedSourceReadTime()
		return Result{Outcome: OutcomeFinishmark}
	}
	if _, ok := elem.IsWatermark(); ok {
		return Result{Outcome: OutcomeWatermark, Element: elem}
	}
	return Result{Outcome: OutcomeData, Element: elem}
}

// BoundedSourceReadTime reports cumulative Readable read time, valid once
// FetchOne has returned OutcomeFinishmark.
func (f *sourceFetcher) BoundedSourceReadTime() int64 { return f.readTimeNanos }

func (f *sourceFetcher) Close() error { return nil }

// parentTaskFetcher wraps an InputReader for a non-broadcast incoming stage
// edge. It records cumulative serialized/encoded byte counts (spec §3,
// §4.2).
type parentTaskFetcher struct {
	vertexID string
	reader   transfer.InputReader
	coll     ir.Collector
}

// NewParentTaskFetcher builds the Parent-Task variant of DataFetcher. coll
// is a thin adapter that emits into the downstream vertex's own harness
// collector (spec §4.1 step 7).
func NewParentTaskFetcher(vertexID string, reader transfer.InputReader, coll ir.Collector) DataFetcher {
	return &parentTaskFetcher{vertexID: vertexID, reader: reader, coll: coll}
}

func (f *parentTaskFetcher) VertexID() string     { return f.vertexID }
func (f *parentTaskFetcher) Collector() ir.Collector { return f.coll }

func (f *parentTaskFetcher) FetchOne(ctx context.Context) Result {
	elem, err := f.reader.Fetch(ctx)
	if err != nil {
		return classifyErr(err)
	}
	if elem.IsFinishmark() {
		return Result{Outcome: OutcomeFinishmark}
	}
	if _, ok := elem.IsWatermark(); ok {
		return Result{Outcome: OutcomeWatermark, Element: elem}
	}
	return Result{Outcome: OutcomeData, Element: elem}
}

// SerializedBytes/EncodedBytes expose the InputReader's cumulative counters
// for the metric send in execute() (spec §4.5).
func (f *parentTaskFetcher) SerializedBytes() int64 { return f.reader.SerializedBytes() }
func (f *parentTaskFetcher) EncodedBytes() int64    { return f.reader.EncodedBytes() }

func (f *parentTaskFetcher) Close() error { return f.reader.Close() }
