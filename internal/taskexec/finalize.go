package taskexec

import (
	"context"
	"fmt"

	"github.com/swarmguard/taskexecutor/internal/control"
	"github.com/swarmguard/taskexecutor/internal/ir"
)

// finalize runs every harness's finalization in forward topological order
// (spec §4.6): close the transform (which may itself emit final elements
// downstream — hence the forward order, so downstream transforms are
// still open), hand off any pending DynOpt payload, then close every
// external writer and sum written_bytes.
func (e *TaskExecutor) finalize(ctx context.Context) error {
	for _, h := range e.harnesses.Sorted {
		if h.Vertex.Kind == ir.VertexOperator {
			h.Vertex.Operator.Transform.Close()
		}

		if data, ok := h.TC.TakePending(); ok {
			if e.master != nil {
				msg := control.NewDataCollectedMessage(data)
				if err := e.master.Send(ctx, msg); err != nil {
					return fmt.Errorf("vertex %s: send dynopt hand-off: %w", h.Vertex.ID, err)
				}
			}
		}

		for _, w := range h.ExternalMainWriters() {
			if err := w.Close(); err != nil {
				return fmt.Errorf("vertex %s: close main writer: %w", h.Vertex.ID, err)
			}
			if n, ok := w.WrittenBytes(); ok {
				e.cum.writtenBytes += n
			}
		}
		for _, w := range h.ExternalTaggedWriters() {
			if err := w.Close(); err != nil {
				return fmt.Errorf("vertex %s: close tagged writer: %w", h.Vertex.ID, err)
			}
			if n, ok := w.WrittenBytes(); ok {
				e.cum.writtenBytes += n
			}
		}
	}
	return nil
}
