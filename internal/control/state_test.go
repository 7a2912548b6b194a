package control

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordingStateManager struct {
	changes []StateChange
}

func (m *recordingStateManager) OnTaskStateChanged(c StateChange) {
	m.changes = append(m.changes, c)
}

func TestStateMachineRejectsDoubleExecute(t *testing.T) {
	mgr := &recordingStateManager{}
	sm := NewStateMachine("t0", mgr)
	require.NoError(t, sm.MarkExecuting())
	require.Error(t, sm.MarkExecuting())
}

func TestStateMachineCompleteTransition(t *testing.T) {
	mgr := &recordingStateManager{}
	sm := NewStateMachine("t0", mgr)
	require.NoError(t, sm.MarkExecuting())
	sm.MarkComplete()

	require.Len(t, mgr.changes, 2)
	require.Equal(t, StateExecuting, mgr.changes[0].State)
	require.Equal(t, StateComplete, mgr.changes[1].State)
	require.True(t, sm.IsTerminal())
}

func TestStateMachineOnHoldCarriesVertexID(t *testing.T) {
	mgr := &recordingStateManager{}
	sm := NewStateMachine("t0", mgr)
	require.NoError(t, sm.MarkExecuting())
	sm.MarkOnHold("v7")

	last := mgr.changes[len(mgr.changes)-1]
	require.Equal(t, StateOnHold, last.State)
	require.Equal(t, "v7", last.VertexOnHold)
}

func TestStateMachineShouldRetryCarriesCause(t *testing.T) {
	mgr := &recordingStateManager{}
	sm := NewStateMachine("t0", mgr)
	require.NoError(t, sm.MarkExecuting())
	sm.MarkShouldRetry(InputReadFailure)

	last := mgr.changes[len(mgr.changes)-1]
	require.Equal(t, StateShouldRetry, last.State)
	require.Equal(t, InputReadFailure, last.FailureCause)
}
