package taskexec

import (
	"context"
	"fmt"
	"time"

	"github.com/swarmguard/taskexecutor/internal/control"
	"github.com/swarmguard/taskexecutor/internal/fetch"
)

// visitResult is what a single FetchOne dispatch decided about a fetcher's
// fate, independent of which list (available/pending) it was visited from.
type visitResult int

const (
	visitProcessed visitResult = iota // data or watermark delivered; fetcher stays live
	visitEmpty                        // nothing ready right now; transient
	visitDone                         // Finishmark observed; fetcher closed and dropped
	visitRetry                        // io failure; caller must stop the loop
)

// fetchLoop drains e.fetchers to completion (spec §4.4). It returns
// (true, nil) on a clean finish, (false, nil) once it has reported
// SHOULD_RETRY itself (so Execute must not finalize), and (false, err) on
// an unrecoverable condition such as a cancelled/interrupted sleep (spec
// §5: "sleep interruption → unrecoverable failure").
func (e *TaskExecutor) fetchLoop(ctx context.Context) (bool, error) {
	available := append([]fetch.DataFetcher(nil), e.fetchers...)
	var pending []fetch.DataFetcher
	lastSweep := time.Time{}

	for len(available) > 0 || len(pending) > 0 {
		var stillAvailable []fetch.DataFetcher
		for _, f := range available {
			res, err := e.visitFetcher(ctx, f)
			if err != nil {
				return false, err
			}
			switch res {
			case visitRetry:
				e.stateMachine.MarkShouldRetry(control.InputReadFailure)
				return false, nil
			case visitProcessed:
				stillAvailable = append(stillAvailable, f)
			case visitEmpty:
				pending = append(pending, f)
			case visitDone:
				// dropped: not re-added to either list.
			}
		}
		available = stillAvailable

		now := time.Now()
		if lastSweep.IsZero() || now.Sub(lastSweep) >= e.pollInterval {
			var stillPending []fetch.DataFetcher
			for _, f := range pending {
				res, err := e.visitFetcher(ctx, f)
				if err != nil {
					return false, err
				}
				switch res {
				case visitRetry:
					e.stateMachine.MarkShouldRetry(control.InputReadFailure)
					return false, nil
				case visitProcessed:
					available = append(available, f)
				case visitEmpty:
					stillPending = append(stillPending, f)
				case visitDone:
					// dropped
				}
			}
			pending = stillPending
			lastSweep = now
		}

		if len(available) == 0 && len(pending) > 0 {
			select {
			case <-ctx.Done():
				return false, fmt.Errorf("fetch loop sleep interrupted: %w", ctx.Err())
			case <-time.After(e.pollInterval):
			}
		}
	}
	return true, nil
}

// visitFetcher calls FetchOne once on f and dispatches the result.
func (e *TaskExecutor) visitFetcher(ctx context.Context, f fetch.DataFetcher) (visitResult, error) {
	res := f.FetchOne(ctx)
	switch res.Outcome {
	case fetch.OutcomeFinishmark:
		e.foldTerminalCounters(f)
		_ = f.Close()
		return visitDone, nil
	case fetch.OutcomeWatermark:
		if wm, ok := res.Element.IsWatermark(); ok {
			f.Collector().EmitWatermark(wm)
		}
		return visitProcessed, nil
	case fetch.OutcomeData:
		f.Collector().Emit(res.Element)
		return visitProcessed, nil
	case fetch.OutcomeEmpty:
		return visitEmpty, nil
	case fetch.OutcomeIOFailure:
		return visitRetry, nil
	default:
		return visitEmpty, fmt.Errorf("unknown fetch outcome %v", res.Outcome)
	}
}

// foldTerminalCounters accumulates a finishing fetcher's counters into
// the executor's cumulative metrics (spec §3, §4.4).
func (e *TaskExecutor) foldTerminalCounters(f fetch.DataFetcher) {
	type sourceCounters interface{ BoundedSourceReadTime() int64 }
	type parentCounters interface {
		SerializedBytes() int64
		EncodedBytes() int64
	}
	if sc, ok := f.(sourceCounters); ok {
		e.cum.boundedSourceReadTime += sc.BoundedSourceReadTime()
	}
	if pc, ok := f.(parentCounters); ok {
		e.cum.serializedReadBytes += pc.SerializedBytes()
		e.cum.encodedReadBytes += pc.EncodedBytes()
	}
}
