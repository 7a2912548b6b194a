// Package control implements the task executor's collaborators: task
// state reporting, the persistent gRPC connection to the master, the
// dynamic-optimization control message, metric sending, and the BoltDB-
// backed broadcast variable cache (spec §3, §6).
package control

import "fmt"

// TaskState is the task executor's lifecycle state (spec §6).
type TaskState int

const (
	StateExecuting TaskState = iota
	StateComplete
	StateOnHold
	StateShouldRetry
	StateFailed
)

func (s TaskState) String() string {
	switch s {
	case StateExecuting:
		return "EXECUTING"
	case StateComplete:
		return "COMPLETE"
	case StateOnHold:
		return "ON_HOLD"
	case StateShouldRetry:
		return "SHOULD_RETRY"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// FailureCause enumerates the recoverable-failure causes a SHOULD_RETRY
// transition may carry (spec §6).
type FailureCause string

// InputReadFailure is the only cause this core currently produces: an I/O
// failure surfaced by a DataFetcher mid-loop (spec §4.4, §7).
const InputReadFailure FailureCause = "INPUT_READ_FAILURE"

// StateChange is what TaskStateManager.OnTaskStateChanged receives.
type StateChange struct {
	TaskID        string
	State         TaskState
	VertexOnHold  string // set iff State == StateOnHold
	FailureCause  FailureCause // set iff State == StateShouldRetry
	FailureDetail string       // human-readable detail, e.g. a stack trace for FAILED
}

// TaskStateManager is notified of every state transition (spec §6).
type TaskStateManager interface {
	OnTaskStateChanged(change StateChange)
}

// StateMachine enforces the duplicate-execute() guard (spec §3 invariant:
// "isExecuted becomes true on the first call to execute and execute must
// reject a second call") and records whether a terminal state has been
// reported. It does not reject a second terminal transition.
type StateMachine struct {
	taskID    string
	mgr       TaskStateManager
	executed  bool
	terminal  bool
}

// NewStateMachine builds the state tracker for one task execution.
func NewStateMachine(taskID string, mgr TaskStateManager) *StateMachine {
	return &StateMachine{taskID: taskID, mgr: mgr}
}

// MarkExecuting transitions to EXECUTING. It returns an error on a second
// call, which callers must treat as a programmer-error fatal condition.
func (s *StateMachine) MarkExecuting() error {
	if s.executed {
		return fmt.Errorf("task %s: execute() called more than once", s.taskID)
	}
	s.executed = true
	s.notify(StateChange{TaskID: s.taskID, State: StateExecuting})
	return nil
}

// MarkComplete transitions to COMPLETE. Only valid once, after MarkExecuting.
func (s *StateMachine) MarkComplete() {
	s.notify(StateChange{TaskID: s.taskID, State: StateComplete})
	s.terminal = true
}

// MarkOnHold transitions to ON_HOLD(vertexID).
func (s *StateMachine) MarkOnHold(vertexID string) {
	s.notify(StateChange{TaskID: s.taskID, State: StateOnHold, VertexOnHold: vertexID})
	s.terminal = true
}

// MarkShouldRetry transitions to SHOULD_RETRY(cause).
func (s *StateMachine) MarkShouldRetry(cause FailureCause) {
	s.notify(StateChange{TaskID: s.taskID, State: StateShouldRetry, FailureCause: cause})
	s.terminal = true
}

// MarkFailed transitions to FAILED, carrying a logged stack trace/detail.
func (s *StateMachine) MarkFailed(detail string) {
	s.notify(StateChange{TaskID: s.taskID, State: StateFailed, FailureDetail: detail})
	s.terminal = true
}

// IsTerminal reports whether a terminal state has already been reported.
func (s *StateMachine) IsTerminal() bool { return s.terminal }

func (s *StateMachine) notify(change StateChange) {
	if s.mgr != nil {
		s.mgr.OnTaskStateChanged(change)
	}
}
