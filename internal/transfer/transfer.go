// Package transfer defines the per-edge channel contracts the task executor
// consumes to move elements across task boundaries (spec §6), plus a
// concrete NATS-backed implementation (nats.go) grounded on the same
// trace-context-over-headers pattern the broadcast/control plane uses.
package transfer

import (
	"context"

	"github.com/swarmguard/taskexecutor/internal/ir"
)

// InputReader is a per-edge channel to an upstream task shard. Fetch pulls
// the next Element; after Finishmark, SerializedBytes/EncodedBytes report
// cumulative counters for the metric send in execute() (spec §4.5).
type InputReader interface {
	SrcVertex() string
	Fetch(ctx context.Context) (ir.Element, error)
	SerializedBytes() int64
	EncodedBytes() int64
	Close() error
}

// OutputWriter is a per-edge channel to a downstream task shard.
// WrittenBytes returns a value only if the underlying writer tracks it;
// finalization sums whatever values are present (spec §4.6).
type OutputWriter interface {
	Write(ctx context.Context, element ir.Element) error
	Close() error
	WrittenBytes() (uint64, bool)
}

// DataTransferFactory is the sole collaborator harness construction needs
// to turn stage edges into readers and writers (spec §4.1, §6).
type DataTransferFactory interface {
	CreateReader(taskIndex int, srcVertex string, edge ir.StageEdge) (InputReader, error)
	CreateWriter(taskID string, dstVertex string, edge ir.StageEdge) (OutputWriter, error)
}
