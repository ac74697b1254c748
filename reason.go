package glee

import "fmt"

// Reason is the closed taxonomy of why a state stopped running (§7),
// recorded alongside ExecutionStatus for states that terminated abnormally.
// Mirrors the Reason suffixes KLEE attaches to terminateStateOnError calls
// (Executor.cpp's TerminateReason), flattened into a single Go type.
type Reason string

const (
	ReasonAbort           = Reason("abort")
	ReasonAssert          = Reason("assert")
	ReasonBadVectorAccess = Reason("bad_vector_access")
	ReasonExec            = Reason("exec")
	ReasonExternal        = Reason("external")
	ReasonFree            = Reason("free")
	ReasonModel           = Reason("model")
	ReasonOverflow        = Reason("overflow")
	ReasonPtr             = Reason("ptr")
	ReasonReadOnly        = Reason("read_only")
	ReasonReportError     = Reason("report_error")
	ReasonUser            = Reason("user")
	ReasonUnhandled       = Reason("unhandled")
	ReasonReplayPath      = Reason("replay_path")
	ReasonQueryTimedOut   = Reason("query_timed_out")
)

func (r Reason) String() string { return string(r) }

// terminateState marks state as stopped with the given status and reason,
// the single chokepoint every terminateStateOn* helper below funnels
// through so Status()/Reason()/ReasonCode() always agree.
func terminateState(state *ExecutionState, status ExecutionStatus, r Reason, format string, args ...interface{}) {
	state.status = status
	state.reasonCode = r
	state.reason = fmt.Sprintf(format, args...)
}

// terminateStateOnError marks state as having failed for an ordinary
// (non-panic) error: an explicit `Assert` failure, a reported error, an
// unmodeled external call, and the like. Grounded on KLEE's
// Executor::terminateStateOnError.
func terminateStateOnError(state *ExecutionState, r Reason, format string, args ...interface{}) {
	terminateState(state, ExecutionStatusFailed, r, format, args...)
}

// terminateStateOnExecError marks state as panicked due to an engine-level
// modeling gap (an unsupported instruction, an internal invariant
// violation) rather than a bug in the program under test. Grounded on
// KLEE's Executor::terminateStateOnExecError.
func terminateStateOnExecError(state *ExecutionState, format string, args ...interface{}) {
	terminateState(state, ExecutionStatusPanicked, ReasonExec, format, args...)
}

// terminateStateOnPtrError marks state as panicked on an out-of-bounds or
// otherwise invalid pointer/array access.
func terminateStateOnPtrError(state *ExecutionState, format string, args ...interface{}) {
	terminateState(state, ExecutionStatusPanicked, ReasonPtr, format, args...)
}

// terminateStateOnUnhandledInstr marks state as failed because it reached a
// real, reachable Go construct the engine doesn't model (floating point,
// complex numbers, maps, and the like) rather than an internal invariant
// violation. Distinguishing ReasonUnhandled from ReasonExec lets a test
// suite tell "this program needs a feature glee doesn't have yet" apart
// from "the engine itself is broken".
func terminateStateOnUnhandledInstr(state *ExecutionState, format string, args ...interface{}) {
	terminateState(state, ExecutionStatusFailed, ReasonUnhandled, format, args...)
}

// terminateStateEarly marks state as exited before reaching a natural
// return, e.g. a resource limit (--max-time, --max-instructions,
// --max-memory, the stack-frame limit) was hit. Grounded on KLEE's Executor::terminateStateEarly.
func terminateStateEarly(state *ExecutionState, format string, args ...interface{}) {
	terminateState(state, ExecutionStatusExited, ReasonUser, format, args...)
}

// terminateStateOnExit marks state as having exited normally, e.g. after a
// call to os.Exit. Grounded on KLEE's Executor::terminateStateOnExit.
func terminateStateOnExit(state *ExecutionState) {
	terminateState(state, ExecutionStatusExited, "", "exit")
}
