// Package taskexec is the orchestrator: it runs the fetch loop, dispatches
// elements into harness collectors, finalizes transforms in topological
// order, and reports task state (spec §2, §4.4–§4.6).
package taskexec

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	pkgerrors "github.com/pkg/errors"

	"github.com/swarmguard/taskexecutor/internal/control"
	"github.com/swarmguard/taskexecutor/internal/fetch"
	"github.com/swarmguard/taskexecutor/internal/harness"
)

// DefaultPollInterval is the fetch loop's polling interval (spec §4.4).
const DefaultPollInterval = 100 * time.Millisecond

// cumulativeMetrics accumulates the primitive counters execute() sends to
// the master: the three read metrics and writtenBytes (spec §4.5).
type cumulativeMetrics struct {
	boundedSourceReadTime int64
	serializedReadBytes   int64
	encodedReadBytes      int64
	writtenBytes          uint64
}

// TaskExecutor builds harnesses, runs the fetch loop, routes elements,
// finalizes transforms, and reports state (spec §2).
type TaskExecutor struct {
	taskID string

	harnesses *harness.Result
	fetchers  []fetch.DataFetcher

	stateMachine *control.StateMachine
	metrics      *control.MetricMessageSender
	master       control.MessageSender

	pollInterval time.Duration
	logger       *slog.Logger

	isExecuted bool

	holdMu              sync.Mutex
	idOfVertexPutOnHold string

	cum cumulativeMetrics
}

// Option configures a TaskExecutor at construction.
type Option func(*TaskExecutor)

// WithPollInterval overrides DefaultPollInterval, mainly for tests.
func WithPollInterval(d time.Duration) Option {
	return func(e *TaskExecutor) { e.pollInterval = d }
}

// WithLogger overrides the default slog.Default() logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *TaskExecutor) { e.logger = l }
}

// New builds a TaskExecutor from an already-built harness graph. onHold
// (passed to harness.BuildAll as the DynOpt collector callback) must route
// into e.OnVertexHold for ON_HOLD reporting to work; cmd/taskexecutor does
// this with a closure over an executor variable assigned after BuildAll.
func New(
	taskID string,
	h *harness.Result,
	stateMachine *control.StateMachine,
	metrics *control.MetricMessageSender,
	master control.MessageSender,
	opts ...Option,
) *TaskExecutor {
	e := &TaskExecutor{
		taskID:       taskID,
		harnesses:    h,
		fetchers:     append([]fetch.DataFetcher(nil), h.Fetchers...),
		stateMachine: stateMachine,
		metrics:      metrics,
		master:       master,
		pollInterval: DefaultPollInterval,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// OnVertexHold is the callback capability handed to harness.BuildAll's
// onHold parameter. It records the holding vertex id; per the documented
// last-writer-wins resolution of spec §9's open question, a later call
// overwrites an earlier one and is logged as such.
func (e *TaskExecutor) OnVertexHold(vertexID string) {
	e.holdMu.Lock()
	defer e.holdMu.Unlock()
	if e.idOfVertexPutOnHold != "" && e.idOfVertexPutOnHold != vertexID {
		e.logger.Warn("multiple vertices triggered dynamic-optimization hold; last writer wins",
			"previous_vertex", e.idOfVertexPutOnHold, "new_vertex", vertexID)
	}
	e.idOfVertexPutOnHold = vertexID
}

// Execute runs the task to completion exactly once (spec §4.5). A second
// call is a programmer error and returns an error without touching state.
// Any uncaught panic is recovered, logged with a stack trace, and reported
// as FAILED.
func (e *TaskExecutor) Execute(ctx context.Context) (err error) {
	if e.isExecuted {
		return fmt.Errorf("task %s: Execute called more than once", e.taskID)
	}
	e.isExecuted = true

	defer func() {
		if r := recover(); r != nil {
			stackErr := pkgerrors.Errorf("task %s: panic in Execute: %v", e.taskID, r)
			e.logger.Error("task execution failed", "error", fmt.Sprintf("%+v", stackErr))
			e.stateMachine.MarkFailed(fmt.Sprintf("%+v", stackErr))
			err = stackErr
		}
	}()

	if err := e.stateMachine.MarkExecuting(); err != nil {
		return err
	}

	ok, loopErr := e.fetchLoop(ctx)
	if loopErr != nil {
		wrapped := pkgerrors.Wrapf(loopErr, "task %s: fetch loop failed", e.taskID)
		e.logger.Error("task execution failed", "error", fmt.Sprintf("%+v", wrapped))
		e.stateMachine.MarkFailed(fmt.Sprintf("%+v", wrapped))
		return wrapped
	}
	if !ok {
		// fetchLoop already reported SHOULD_RETRY; finalization is
		// deliberately skipped (spec §7: "skip finalization").
		return nil
	}

	e.sendReadMetrics(ctx)

	if err := e.finalize(ctx); err != nil {
		wrapped := pkgerrors.Wrapf(err, "task %s: finalize failed", e.taskID)
		e.logger.Error("task execution failed", "error", fmt.Sprintf("%+v", wrapped))
		e.stateMachine.MarkFailed(fmt.Sprintf("%+v", wrapped))
		return wrapped
	}

	e.sendWrittenBytesMetric(ctx)

	e.holdMu.Lock()
	held := e.idOfVertexPutOnHold
	e.holdMu.Unlock()
	if held != "" {
		e.stateMachine.MarkOnHold(held)
	} else {
		e.stateMachine.MarkComplete()
	}
	return nil
}

func (e *TaskExecutor) sendReadMetrics(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	_ = e.metrics.Send(ctx, "boundedSourceReadTime", e.taskID, "boundedSourceReadTime", e.cum.boundedSourceReadTime)
	_ = e.metrics.Send(ctx, "serializedReadBytes", e.taskID, "serializedReadBytes", e.cum.serializedReadBytes)
	_ = e.metrics.Send(ctx, "encodedReadBytes", e.taskID, "encodedReadBytes", e.cum.encodedReadBytes)
}

func (e *TaskExecutor) sendWrittenBytesMetric(ctx context.Context) {
	if e.metrics == nil {
		return
	}
	_ = e.metrics.Send(ctx, "writtenBytes", e.taskID, "writtenBytes", e.cum.writtenBytes)
}
