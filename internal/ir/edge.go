package ir

// StageEdge is a data edge crossing task boundaries in the physical plan:
// the src vertex lives in this task, the dst vertex lives in a peer task
// shard (or vice versa for incoming edges). BroadcastID and Tag are mutually
// informative, not mutually exclusive in general, but the harness builder
// only consults one or the other depending on edge direction.
type StageEdge struct {
	Src string
	Dst string

	// BroadcastID is non-empty iff this is a broadcast-tagged incoming
	// edge; such edges never produce a fetcher and are instead registered
	// with the broadcast manager under this id.
	BroadcastID string

	// Tag is non-empty iff this outgoing edge is an additional (named
	// side) output rather than the main output.
	Tag string
}

// HasBroadcastID reports whether e is a broadcast edge.
func (e StageEdge) HasBroadcastID() bool { return e.BroadcastID != "" }

// HasTag reports whether e is a tagged (side) output edge.
func (e StageEdge) HasTag() bool { return e.Tag != "" }

// IntraEdge is an edge between two vertices within the same task's DAG: no
// serialization crosses a task boundary, so downstream delivery is a direct
// call into the child vertex's harness collector.
type IntraEdge struct {
	Src string
	Dst string
	Tag string
}

// HasTag reports whether e is a tagged (side) intra-task output edge.
func (e IntraEdge) HasTag() bool { return e.Tag != "" }
