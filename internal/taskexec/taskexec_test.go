package taskexec

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/swarmguard/taskexecutor/internal/control"
	"github.com/swarmguard/taskexecutor/internal/harness"
	"github.com/swarmguard/taskexecutor/internal/ir"
	"github.com/swarmguard/taskexecutor/internal/transfer"
)

type recordingStateManager struct {
	changes []control.StateChange
}

func (m *recordingStateManager) OnTaskStateChanged(c control.StateChange) {
	m.changes = append(m.changes, c)
}

func (m *recordingStateManager) last() control.StateChange {
	return m.changes[len(m.changes)-1]
}

type stepReadable struct {
	steps []func() (ir.Element, error)
	i     int
}

func (r *stepReadable) Next() (ir.Element, error) {
	if r.i >= len(r.steps) {
		return ir.Finishmark, nil
	}
	s := r.steps[r.i]
	r.i++
	return s()
}
func (r *stepReadable) BoundedSourceReadTime() int64 { return 0 }

type doublingTransform struct {
	prepared, closed bool
	coll             ir.Collector
}

func (t *doublingTransform) Prepare(ctx context.Context, tc *ir.TransformContext, c ir.Collector) {
	t.prepared = true
	t.coll = c
}
func (t *doublingTransform) OnData(e ir.Element) {
	t.coll.Emit(ir.NewElement(e.Payload.(int) * 2))
}
func (t *doublingTransform) Close() { t.closed = true }

type appendingTransform struct {
	prepared, closed bool
	out              *[]int
}

func (t *appendingTransform) Prepare(ctx context.Context, tc *ir.TransformContext, c ir.Collector) {
	t.prepared = true
}
func (t *appendingTransform) OnData(e ir.Element) { *t.out = append(*t.out, e.Payload.(int)) }
func (t *appendingTransform) Close()              { t.closed = true }

type noopFactory struct{}

func (noopFactory) CreateReader(taskIndex int, srcVertex string, edge ir.StageEdge) (transfer.InputReader, error) {
	return nil, nil
}
func (noopFactory) CreateWriter(taskID string, dstVertex string, edge ir.StageEdge) (transfer.OutputWriter, error) {
	return nil, nil
}

type noopBroadcastRegistrar struct{}

func (noopBroadcastRegistrar) RegisterReader(broadcastID string, reader transfer.InputReader) {}

func TestScenarioLinearChainOneSource(t *testing.T) {
	var out []int
	op1 := &doublingTransform{}
	op2 := &appendingTransform{out: &out}

	vs := []*ir.Vertex{
		ir.NewSourceVertex("S"),
		ir.NewOperatorVertex("Op1", op1, false),
		ir.NewOperatorVertex("Op2", op2, false),
	}
	edges := []ir.IntraEdge{{Src: "S", Dst: "Op1"}, {Src: "Op1", Dst: "Op2"}}
	dag, err := ir.NewVertexDAG(vs, edges)
	require.NoError(t, err)

	task := &ir.Task{
		ID: "t0",
		Readables: map[string]ir.Readable{
			"S": &stepReadable{steps: []func() (ir.Element, error){
				func() (ir.Element, error) { return ir.NewElement(1), nil },
				func() (ir.Element, error) { return ir.NewElement(2), nil },
			}},
		},
	}

	res, err := harness.BuildAll(context.Background(), task, dag, noopFactory{}, noopBroadcastRegistrar{}, nil, nil)
	require.NoError(t, err)

	mgr := &recordingStateManager{}
	sm := control.NewStateMachine("t0", mgr)
	exec := New("t0", res, sm, nil, nil, WithPollInterval(10*time.Millisecond))

	err = exec.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, []int{2, 4}, out)
	require.Equal(t, control.StateComplete, mgr.last().State)
	require.True(t, op1.prepared)
	require.True(t, op1.closed)
	require.True(t, op2.prepared)
	require.True(t, op2.closed)
	require.Equal(t, uint64(0), exec.cum.writtenBytes)
}

func TestScenarioRecoverableReadFailure(t *testing.T) {
	boom := errors.New("boom")
	op1 := &doublingTransform{}

	vs := []*ir.Vertex{
		ir.NewSourceVertex("S"),
		ir.NewOperatorVertex("Op1", op1, false),
	}
	edges := []ir.IntraEdge{{Src: "S", Dst: "Op1"}}
	dag, err := ir.NewVertexDAG(vs, edges)
	require.NoError(t, err)

	task := &ir.Task{
		ID: "t0",
		Readables: map[string]ir.Readable{
			"S": &stepReadable{steps: []func() (ir.Element, error){
				func() (ir.Element, error) { return ir.NewElement(1), nil },
				func() (ir.Element, error) { return ir.NewElement(2), nil },
				func() (ir.Element, error) { return ir.Element{}, boom },
			}},
		},
	}

	res, err := harness.BuildAll(context.Background(), task, dag, noopFactory{}, noopBroadcastRegistrar{}, nil, nil)
	require.NoError(t, err)

	mgr := &recordingStateManager{}
	sm := control.NewStateMachine("t0", mgr)
	exec := New("t0", res, sm, nil, nil, WithPollInterval(10*time.Millisecond))

	err = exec.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, control.StateShouldRetry, mgr.last().State)
	require.Equal(t, control.InputReadFailure, mgr.last().FailureCause)
	require.False(t, op1.closed, "transform Close must not be called when the loop reports SHOULD_RETRY")
}

func TestScenarioDynamicOptimizationHandOff(t *testing.T) {
	sent := make(chan control.Message, 1)
	master := messageSenderFunc(func(ctx context.Context, msg control.Message) error {
		sent <- msg
		return nil
	})

	aggTransform := &emittingOnCloseTransform{payload: "P"}
	vs := []*ir.Vertex{
		ir.NewSourceVertex("S"),
		ir.NewOperatorVertex("Agg", aggTransform, true),
	}
	edges := []ir.IntraEdge{{Src: "S", Dst: "Agg"}}
	dag, err := ir.NewVertexDAG(vs, edges)
	require.NoError(t, err)

	task := &ir.Task{
		ID: "t0",
		Readables: map[string]ir.Readable{
			"S": &stepReadable{steps: []func() (ir.Element, error){
				func() (ir.Element, error) { return ir.NewElement(1), nil },
			}},
		},
	}

	var exec *TaskExecutor
	res, err := harness.BuildAll(context.Background(), task, dag, noopFactory{}, noopBroadcastRegistrar{}, nil, func(vertexID string) {
		exec.OnVertexHold(vertexID)
	})
	require.NoError(t, err)

	mgr := &recordingStateManager{}
	sm := control.NewStateMachine("t0", mgr)
	exec = New("t0", res, sm, nil, master, WithPollInterval(10*time.Millisecond))

	err = exec.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, control.StateOnHold, mgr.last().State)
	require.Equal(t, "Agg", mgr.last().VertexOnHold)

	select {
	case msg := <-sent:
		require.Equal(t, control.ExecutorDataCollected, msg.Type)
		require.Equal(t, "P", msg.Payload.Data)
		require.Equal(t, control.RuntimeMasterMessageListenerID, msg.ListenerID)
	default:
		t.Fatal("expected a control message to have been sent")
	}
}

type messageSenderFunc func(ctx context.Context, msg control.Message) error

func (f messageSenderFunc) Send(ctx context.Context, msg control.Message) error { return f(ctx, msg) }

// emittingOnCloseTransform emits its payload via the collector at Close
// time, modeling an aggregate-metric transform that only has a final
// value once its input is exhausted.
type emittingOnCloseTransform struct {
	payload string
	coll    ir.Collector
}

func (t *emittingOnCloseTransform) Prepare(ctx context.Context, tc *ir.TransformContext, c ir.Collector) {
	t.coll = c
}
func (t *emittingOnCloseTransform) OnData(e ir.Element) {}
func (t *emittingOnCloseTransform) Close()              { t.coll.Emit(ir.NewElement(t.payload)) }

func TestFetchLoopEmptyFetcherListFinishesImmediately(t *testing.T) {
	res := &harness.Result{ByID: map[string]*harness.VertexHarness{}, Sorted: nil, Fetchers: nil}
	mgr := &recordingStateManager{}
	sm := control.NewStateMachine("t0", mgr)
	exec := New("t0", res, sm, nil, nil, WithPollInterval(10*time.Millisecond))

	err := exec.Execute(context.Background())
	require.NoError(t, err)
	require.Equal(t, control.StateComplete, mgr.last().State)
}

func TestExecuteRejectsSecondCall(t *testing.T) {
	res := &harness.Result{ByID: map[string]*harness.VertexHarness{}, Sorted: nil, Fetchers: nil}
	mgr := &recordingStateManager{}
	sm := control.NewStateMachine("t0", mgr)
	exec := New("t0", res, sm, nil, nil)

	require.NoError(t, exec.Execute(context.Background()))
	require.Error(t, exec.Execute(context.Background()))
}

// stubInputReader replays a fixed element list for a named source vertex,
// then Finishmark forever.
type stubInputReader struct {
	src   string
	elems []any
	i     int
}

func (r *stubInputReader) SrcVertex() string { return r.src }
func (r *stubInputReader) Fetch(ctx context.Context) (ir.Element, error) {
	if r.i >= len(r.elems) {
		return ir.Finishmark, nil
	}
	e := r.elems[r.i]
	r.i++
	return ir.NewElement(e), nil
}
func (r *stubInputReader) SerializedBytes() int64 { return 0 }
func (r *stubInputReader) EncodedBytes() int64    { return 0 }
func (r *stubInputReader) Close() error           { return nil }

// recordingOutputWriter appends every element it is asked to write, guarded
// by a mutex since main and tagged writes may interleave across fetchers.
type recordingOutputWriter struct {
	mu       sync.Mutex
	received []any
}

func (w *recordingOutputWriter) Write(ctx context.Context, e ir.Element) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.received = append(w.received, e.Payload)
	return nil
}
func (w *recordingOutputWriter) Close() error                   { return nil }
func (w *recordingOutputWriter) WrittenBytes() (uint64, bool) { return 0, false }

// byVertexFactory hands out pre-built readers/writers keyed by the stage
// edge's source (for readers) or destination (for writers) vertex id.
type byVertexFactory struct {
	readers map[string]transfer.InputReader
	writers map[string]transfer.OutputWriter
}

func (f *byVertexFactory) CreateReader(taskIndex int, srcVertex string, edge ir.StageEdge) (transfer.InputReader, error) {
	return f.readers[srcVertex], nil
}
func (f *byVertexFactory) CreateWriter(taskID string, dstVertex string, edge ir.StageEdge) (transfer.OutputWriter, error) {
	return f.writers[dstVertex], nil
}

// tagFanoutTransform emits every element to both its main output and its
// "side" tagged output.
type tagFanoutTransform struct {
	coll ir.Collector
}

func (t *tagFanoutTransform) Prepare(ctx context.Context, tc *ir.TransformContext, c ir.Collector) {
	t.coll = c
}
func (t *tagFanoutTransform) OnData(e ir.Element) {
	t.coll.Emit(e)
	t.coll.EmitTagged("side", e)
}
func (t *tagFanoutTransform) Close() {}

// TestScenarioTwoParentTaskReadersWithTagFanout covers spec.md §8 scenario
// 2: an operator vertex fed by two non-broadcast parent-task readers,
// fanning every element out to both a main writer and a tagged writer.
func TestScenarioTwoParentTaskReadersWithTagFanout(t *testing.T) {
	op := &tagFanoutTransform{}
	vs := []*ir.Vertex{ir.NewOperatorVertex("Op", op, false)}
	dag, err := ir.NewVertexDAG(vs, nil)
	require.NoError(t, err)

	task := &ir.Task{
		ID: "t0",
		Incoming: []ir.StageEdge{
			{Src: "A", Dst: "Op"},
			{Src: "B", Dst: "Op"},
		},
		Outgoing: []ir.StageEdge{
			{Src: "Op", Dst: "W0"},
			{Src: "Op", Dst: "W1", Tag: "side"},
		},
	}

	w0 := &recordingOutputWriter{}
	w1 := &recordingOutputWriter{}
	factory := &byVertexFactory{
		readers: map[string]transfer.InputReader{
			"A": &stubInputReader{src: "A", elems: []any{"a"}},
			"B": &stubInputReader{src: "B", elems: []any{"b"}},
		},
		writers: map[string]transfer.OutputWriter{"W0": w0, "W1": w1},
	}

	res, err := harness.BuildAll(context.Background(), task, dag, factory, noopBroadcastRegistrar{}, nil, nil)
	require.NoError(t, err)
	require.Len(t, res.Fetchers, 2)

	mgr := &recordingStateManager{}
	sm := control.NewStateMachine("t0", mgr)
	exec := New("t0", res, sm, nil, nil, WithPollInterval(10*time.Millisecond))

	err = exec.Execute(context.Background())
	require.NoError(t, err)

	require.Equal(t, control.StateComplete, mgr.last().State)
	require.ElementsMatch(t, []any{"a", "b"}, w0.received)
	require.ElementsMatch(t, []any{"a", "b"}, w1.received)
}

// TestScenarioTransientEmpties covers spec.md §8 scenario 4: a source
// fetcher that returns empty on its first two calls must not be dropped,
// must wait at least one polling interval before its element is delivered,
// and the task must still reach COMPLETE.
func TestScenarioTransientEmpties(t *testing.T) {
	readable := &stepReadable{steps: []func() (ir.Element, error){
		func() (ir.Element, error) { return ir.Element{}, ir.ErrEmpty },
		func() (ir.Element, error) { return ir.Element{}, ir.ErrEmpty },
		func() (ir.Element, error) { return ir.NewElement(1), nil },
	}}

	var out []int
	op := &appendingTransform{out: &out}
	vs := []*ir.Vertex{
		ir.NewSourceVertex("S"),
		ir.NewOperatorVertex("Op1", op, false),
	}
	edges := []ir.IntraEdge{{Src: "S", Dst: "Op1"}}
	dag, err := ir.NewVertexDAG(vs, edges)
	require.NoError(t, err)

	task := &ir.Task{ID: "t0", Readables: map[string]ir.Readable{"S": readable}}

	res, err := harness.BuildAll(context.Background(), task, dag, noopFactory{}, noopBroadcastRegistrar{}, nil, nil)
	require.NoError(t, err)

	const pollInterval = 100 * time.Millisecond
	mgr := &recordingStateManager{}
	sm := control.NewStateMachine("t0", mgr)
	exec := New("t0", res, sm, nil, nil, WithPollInterval(pollInterval))

	start := time.Now()
	err = exec.Execute(context.Background())
	elapsed := time.Since(start)

	require.NoError(t, err)
	require.GreaterOrEqual(t, elapsed, pollInterval)
	require.Equal(t, []int{1}, out)
	require.Equal(t, control.StateComplete, mgr.last().State)
}
