package ir

import "errors"

// ErrEmpty is the transient "nothing available right now" signal a
// Readable or InputReader returns from a fetch call. It is not an error in
// the fatal sense: the fetch loop reclassifies the fetcher from available
// to pending and tries again later (spec §4.2, §7).
var ErrEmpty = errors.New("ir: no element available")

// Task is a single shard of a stage: the unit this whole package and its
// siblings execute. It is supplied whole at construction and never mutated
// by the executor.
type Task struct {
	ID string

	// Index is this task's shard index within its stage, passed to
	// DataTransferFactory.CreateReader.
	Index int

	// Incoming/Outgoing are the stage edges crossing into/out of this
	// task. Incoming.Dst and Outgoing.Src both name vertices in DAG.
	Incoming []StageEdge
	Outgoing []StageEdge

	// Readables maps a Source vertex id to its element source. A vertex
	// id appears here iff the corresponding Vertex.Kind is VertexSource
	// (spec §4.1 step 1) — harness construction treats any mismatch as a
	// fatal build error.
	Readables map[string]Readable
}

// Readable is a finite, restart-free element source for a Source vertex.
type Readable interface {
	// Next returns the next Element, or Finishmark at end of input.
	Next() (Element, error)
	// BoundedSourceReadTime reports cumulative time spent in Next calls,
	// valid after Finishmark has been observed.
	BoundedSourceReadTime() int64
}
