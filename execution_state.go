package glee

import (
	"bytes"
	"errors"
	"fmt"
	"go/constant"
	"go/token"
	"log"
	"sort"
	"strconv"
	"strings"
	"unsafe"

	"github.com/benbjohnson/immutable"
	"golang.org/x/tools/go/ssa"
)

// ExecutionState representing a path under exploration.
type ExecutionState struct {
	id int

	// Executor this is executed within.
	executor *Executor

	// Execution hierarchy.
	parent   *ExecutionState
	children []*ExecutionState

	// Call stack
	stack []*StackFrame

	// Shows whether state is running, finished, or terminated by error state.
	status     ExecutionStatus
	reason     string
	reasonCode Reason

	// Heap memory address space.
	heap *immutable.SortedMap

	// Constraints collected so far during execution (§4.2/§4.3).
	cm *ConstraintManager

	// Path decisions recorded so far, consumed by --replay-path on a later
	// run (§4.6 "Record stream").
	record []PathEntry

	// Non-nil while this state is being driven by a recorded path rather
	// than by the solver chain (--replay-path).
	replay *pathReplay

	// Line coverage
	covered map[string]map[uint]struct{}

	// Cooperative goroutine scheduling (§4.7). The currently running
	// goroutine's call stack lives directly in stack/curThreadID above;
	// every other goroutine's saved stack sits parked in threads, keyed by
	// its ID, until the scheduler swaps it back in.
	threads      map[uint64]*Thread
	curThreadID  uint64
	nextThreadID uint64

	channels   map[uint64]*Channel
	nextChanID uint64

	// sendCompleted marks a goroutine ID whose blocking send was already
	// delivered by the receiver that woke it, so that goroutine's retry of
	// the (rewound) Send instruction must not attempt trySend again — see
	// executeSendInstr. Consumed (deleted) the moment it is checked.
	sendCompleted map[uint64]bool

	// depth counts this state's distance from the root along the fork
	// tree, for --max-depth (§6).
	depth int
}

// ThreadStatus is the run state of a cooperatively scheduled goroutine.
type ThreadStatus int

const (
	ThreadRunnable ThreadStatus = iota
	ThreadBlocked
)

// Thread is a suspended goroutine's saved call stack, swapped in and out
// of ExecutionState.stack by the scheduler (§4.7).
type Thread struct {
	id     uint64
	stack  []*StackFrame
	status ThreadStatus
}

// clone returns a deep copy of t, as ExecutionState.Clone needs every
// parked goroutine's stack to be independent of the original state's.
func (t *Thread) clone() *Thread {
	stack := make([]*StackFrame, len(t.stack))
	for i := range t.stack {
		stack[i] = t.stack[i].Clone()
	}
	return &Thread{id: t.id, stack: stack, status: t.status}
}

func NewExecutionState(executor *Executor, fn *ssa.Function) *ExecutionState {
	s := &ExecutionState{
		executor:     executor,
		status:       ExecutionStatusRunning,
		heap:         immutable.NewSortedMap(&uint64Comparer{}),
		cm:           NewConstraintManager(),
		threads:       make(map[uint64]*Thread),
		nextThreadID:  1, // 0 is reserved for the main goroutine
		channels:      make(map[uint64]*Channel),
		nextChanID:    1,
		sendCompleted: make(map[uint64]bool),
	}
	s.Push(fn)
	return s
}

// ID returns an autoincrementing ID assigned by the executor.
func (s *ExecutionState) ID() int { return s.id }

// Executor returns the parent executor of this state.
func (s *ExecutionState) Executor() *Executor {
	return s.executor
}

func (s *ExecutionState) Constraints() []Expr {
	return s.cm.All()
}

// ConstraintManager returns the state's constraint manager, for components
// (the solver chain, the IES-aware searchers) that need the full
// independent-element-set partition rather than just the flat list.
func (s *ExecutionState) ConstraintManager() *ConstraintManager {
	return s.cm
}

// Record returns the path decisions made so far on this state (§4.6
// "Record stream"), suitable for writing to a .path file for later replay.
func (s *ExecutionState) Record() []PathEntry {
	return s.record
}

// Clone returns a copy of the state and including deep copies of the stack
// and constraints. However, this does not clone child states.
func (s *ExecutionState) Clone() *ExecutionState {
	stack := make([]*StackFrame, len(s.stack))
	for i := range s.stack {
		stack[i] = s.stack[i].Clone()
	}

	record := make([]PathEntry, len(s.record))
	copy(record, s.record)

	var replay *pathReplay
	if s.replay != nil {
		replay = s.replay.fork()
	}

	threads := make(map[uint64]*Thread, len(s.threads))
	for id, t := range s.threads {
		threads[id] = t.clone()
	}

	channels := make(map[uint64]*Channel, len(s.channels))
	for id, ch := range s.channels {
		channels[id] = ch.clone()
	}

	sendCompleted := make(map[uint64]bool, len(s.sendCompleted))
	for id, v := range s.sendCompleted {
		sendCompleted[id] = v
	}

	return &ExecutionState{
		executor:      s.executor,
		parent:        s.parent,
		status:        s.status,
		heap:          s.heap,
		stack:         stack,
		cm:            s.cm.Clone(),
		record:        record,
		replay:        replay,
		covered:       make(map[string]map[uint]struct{}),
		threads:       threads,
		curThreadID:   s.curThreadID,
		nextThreadID:  s.nextThreadID,
		channels:      channels,
		nextChanID:    s.nextChanID,
		sendCompleted: sendCompleted,
		depth:         s.depth,
	}
}

// Status returns the current status of the state.
// See Reason() for additional information if status is in an error state.
func (s *ExecutionState) Status() ExecutionStatus {
	return s.status
}

// Reason returns additional information about the status of the state.
func (s *ExecutionState) Reason() string {
	return s.reason
}

// ReasonCode returns the closed-taxonomy reason (§7) the state terminated
// with. Zero value if the state is still running or finished cleanly.
func (s *ExecutionState) ReasonCode() Reason {
	return s.reasonCode
}

// Terminated returns true if the state completes execution of a path.
func (s *ExecutionState) Terminated() bool {
	return s.status != ExecutionStatusRunning
}

// Position returns the position of the current instruction in the current file set.
func (s *ExecutionState) Position() token.Position {
	instr := s.Instr()
	if instr == nil {
		return token.Position{}
	}
	switch instr := instr.(type) {
	case *ssa.If:
		return s.executor.prog.Fset.Position(instr.Cond.Pos())
	default:
		return s.executor.prog.Fset.Position(instr.Pos())
	}
}

// Frame returns the current stack frame.
func (s *ExecutionState) Frame() *StackFrame {
	if len(s.stack) == 0 {
		return nil
	}
	return s.stack[len(s.stack)-1]
}

// CallerFrame returns the parent of the current stack frame.
func (s *ExecutionState) CallerFrame() *StackFrame {
	if len(s.stack) <= 1 {
		return nil
	}
	return s.stack[len(s.stack)-2]
}

// Instr returns the current SSA instruction.
func (s *ExecutionState) Instr() ssa.Instruction {
	if frame := s.Frame(); frame != nil {
		return frame.Instr()
	}
	return nil
}

// Eval returns the expression or slice of expression bound to a given SSA value.
func (s *ExecutionState) Eval(value ssa.Value) Binding {
	switch value := value.(type) {
	case *ssa.Const:
		if value.Value == nil {
			size := s.executor.Sizeof(deref(value.Type())) / 8
			_, array := s.Alloc(size)
			array.zero()
			return array
		}

		switch value.Value.Kind() {
		case constant.Bool:
			return NewBoolConstantExpr(constant.BoolVal(value.Value))
		case constant.Int:
			v64, isExact := constant.Uint64Val(value.Value)
			assert(isExact, "inexact constant int")
			return NewConstantExpr(v64, s.executor.Sizeof(value.Type().Underlying()))
		case constant.String:
			str := constant.StringVal(value.Value)
			array := NewArray(0, uint(len(str)))
			for i := 0; i < len(str); i++ {
				array.storeByte(NewConstantExpr64(uint64(i)), NewConstantExpr(uint64(str[i]), 8))
			}
			return array
		case constant.Float:
			panic("glee.Executor: floating point constants are not supported")
		case constant.Complex:
			panic("glee.Executor: complex constants are not supported")
		default:
			panic(fmt.Sprintf("unexpected const: %T", value.Value))
		}
	case *ssa.Function:
		return NewConstantExpr(uint64(uintptr(unsafe.Pointer(value))), s.executor.PointerWidth())
	default:
		if f := s.Frame(); f != nil {
			return f.bindings[value]
		}
		return nil
	}
}

// MustEvalAsExpr is the same as Eval() except that it returns an Expr type.
// Panic if binding is Array or Tuple.
func (s *ExecutionState) MustEvalAsExpr(value ssa.Value) Expr {
	binding := s.Eval(value)
	if binding == nil {
		return nil
	} else if expr, ok := binding.(Expr); ok {
		return expr
	}
	panic(fmt.Sprintf("glee: binding must be an Expr: %T", binding))
}

// EvalAsConstantExpr is the same as Eval() except that it returns an ConstantExpr type.
func (s *ExecutionState) EvalAsConstantExpr(value ssa.Value) (*ConstantExpr, bool) {
	if binding := s.Eval(value); binding == nil {
		return nil, true
	} else if expr, ok := binding.(*ConstantExpr); ok {
		return expr, true
	}
	return nil, false
}

// ExtractCall returns the underlying function reference and arg bindings.
func (s *ExecutionState) ExtractCall(instr ssa.CallInstruction) (fn *ssa.Function, args []Binding) {
	common := instr.Common()

	if _, ok := common.Value.(*ssa.Builtin); !ok {
		// Handle invocation differently if it's a call mode or interface method invocation.
		if common.IsInvoke() {
			// Extract concrete type & pointer.
			iface := s.Eval(common.Value).(*Array)
			typeID := int(s.selectIntAt(iface, 0).(*ConstantExpr).Value)
			typ := s.executor.typesByID[typeID]
			if typ == nil {
				panic(fmt.Sprintf("glee.Executor: type not found: id=%d", typeID))
			}
			data := s.selectIntAt(iface, 1)

			fn = s.executor.prog.LookupMethod(typ, common.Method.Pkg(), common.Method.Name())
			args = append(args, data) // add receiver
		} else {
			addr, ok := s.EvalAsConstantExpr(common.Value)
			if !ok {
				panic(fmt.Sprintf("glee.ExecutionState: expected constant function address"))
			}
			fn = (*ssa.Function)(unsafe.Pointer(uintptr(addr.Value)))
		}
	}

	// Append expressions for arg value.
	for _, arg := range common.Args {
		args = append(args, s.Eval(arg))
	}
	return fn, args
}

// Push adds a frame to the top of the stack.
func (s *ExecutionState) Push(fn *ssa.Function) {
	f := NewStackFrame(s.Frame(), fn)

	f.locals = make([]*Array, len(fn.Locals))
	for i, instr := range fn.Locals {
		width := s.executor.Sizeof(deref(instr.Type()))
		addr, array := s.Alloc(width / 8)
		array.zero()

		f.locals[i] = array
		f.bind(instr, addr)
	}

	s.stack = append(s.stack, f)

	if limit := s.executor.MaxStackFrames; limit > 0 && len(s.stack) > limit {
		terminateStateEarly(s, "max stack frames reached: %d", limit)
	}
}

// Pop returns the current frame from the stack and unbinds the stack
// variables. When the goroutine exiting is the last frame of a non-main
// goroutine, the goroutine itself is discarded and the scheduler picks the
// next one to run (§4.7); only the main goroutine (ID 0) exiting with an
// empty stack finishes the whole state.
func (s *ExecutionState) Pop() {
	f := s.Frame()
	for _, array := range f.locals {
		s.heap = s.heap.Delete(array.ID)
	}
	s.stack[len(s.stack)-1] = nil
	s.stack = s.stack[:len(s.stack)-1]

	if len(s.stack) > 0 {
		return
	}

	if s.curThreadID == 0 {
		s.status = ExecutionStatusFinished
		return
	}

	// A non-main goroutine just ran off the end of its stack: it is done
	// and is not re-parked. Every remaining parked goroutine, including
	// main, is still present in s.threads, so "nothing runnable" here
	// really does mean every surviving goroutine is blocked.
	if err := s.scheduleNext(); err != nil {
		terminateStateOnExecError(s, "%s", err)
	}
}

// Fork returns a child copy of the given state with the additional constraint.
func (s *ExecutionState) Fork(constraint Expr) *ExecutionState {
	child := s.Clone()
	child.parent = s
	child.covered = make(map[string]map[uint]struct{})
	child.depth = s.depth + 1
	if constraint != nil {
		child.AddConstraint(constraint)
	}
	s.children = append(s.children, child)
	return child
}

// Depth returns how many forks separate s from the root state (§6
// --max-depth).
func (s *ExecutionState) Depth() int { return s.depth }

// Done returns true if state encounters a finishing instruction (return, if, etc).
func (s *ExecutionState) Done() bool {
	if s.Terminated() || s.Forked() {
		return true
	}

	instr := s.Instr()
	if instr == nil {
		return false
	}
	switch instr.(type) {
	case *ssa.If, *ssa.Return:
		return true
	default:
		return false
	}
}

// Forked returns true if state has a child state.
func (s *ExecutionState) Forked() bool {
	return len(s.children) > 0
}

// Values computes initial values for all symbolic expressions.
func (s *ExecutionState) Values() ([]*Array, [][]byte, error) {
	constraints := s.cm.All()
	arrays := FindArrays(constraints...)

	satisfiable, values, err := s.executor.Solver.ComputeInitialValues(constraints, arrays)
	if err != nil {
		return nil, nil, err
	} else if !satisfiable {
		return nil, nil, errors.New("unsatisfiable")
	}
	return arrays, values, nil
}

// AddConstraint adds a constraint to the state. Panic if expr is a constant false.
func (s *ExecutionState) AddConstraint(expr Expr) {
	s.cm.Add(expr)
}

// AddConstraint adds expr to constraints and returns the new constraint list.
// If expr is a binary AND expression then its LHS & RHS are split into
// independent constraints.
func AddConstraint(a []Expr, expr Expr) []Expr {
	if expr, ok := expr.(*BinaryExpr); ok && expr.Op == AND {
		a = AddConstraint(a, expr.LHS)
		a = AddConstraint(a, expr.RHS)
		return a
	}
	return append(a, expr)
}

// Alloc a new array on the heap.
func (s *ExecutionState) Alloc(width uint) (*ConstantExpr, *Array) {
	addr := s.nextAddr()
	array := NewArray(addr, width)
	s.heap = s.heap.Set(addr, array)
	return NewConstantExpr(addr, s.executor.PointerWidth()), array
}

// nextAddr returns the next available address on the heap.
// Ensures the address is always non-zero.
func (s *ExecutionState) nextAddr() uint64 {
	itr := s.heap.Iterator()
	itr.Last()
	if k, v := itr.Prev(); k != nil {
		return k.(uint64) + uint64(v.(*Array).Size)
	}
	return uint64(s.executor.PointerWidth())
}

func (s *ExecutionState) findAllocByAddr(addr *ConstantExpr) *Array {
	if value, _ := s.heap.Get(addr.Value); value != nil {
		return value.(*Array)
	}
	return nil
}

// Free releases the heap allocation at addr, implementing §4.5's
// deallocation rule: the caller (execFree) already returned early for a
// constant address of 0, so by the time this runs addr is known non-NULL. Freeing an
// alloca (still bound as a local in some live frame) or a global is a
// ReasonFree error rather than an unbind; everything else either succeeds
// or is an invalid/already-freed address, also ReasonFree.
func (s *ExecutionState) Free(addr *ConstantExpr) {
	switch {
	case s.isStackAddr(addr):
		terminateStateOnError(s, ReasonFree, "free of a stack-allocated (alloca) address: %d", addr.Value)
	case s.isGlobalAddr(addr):
		terminateStateOnError(s, ReasonFree, "free of a global address: %d", addr.Value)
	default:
		if array := s.findAllocByAddr(addr); array != nil {
			s.heap = s.heap.Delete(array.ID)
		} else {
			terminateStateOnError(s, ReasonFree, "free of invalid or already-freed address: %d", addr.Value)
		}
	}
}

// isStackAddr reports whether addr names a local of some frame on the
// current call stack (an alloca, in §4.5 terms).
func (s *ExecutionState) isStackAddr(addr *ConstantExpr) bool {
	for _, f := range s.stack {
		for _, array := range f.locals {
			if array.ID == addr.Value {
				return true
			}
		}
	}
	return false
}

// isGlobalAddr reports whether addr names one of the program's global
// variables.
func (s *ExecutionState) isGlobalAddr(addr *ConstantExpr) bool {
	for _, v := range s.executor.globals {
		if c, ok := v.(*ConstantExpr); ok && c.Value == addr.Value {
			return true
		}
	}
	return false
}

func (s *ExecutionState) findAllocContainingAddr(addr *ConstantExpr) (base *ConstantExpr, array *Array) {
	// Seek to the given address or the next available address.
	itr := s.heap.Iterator()
	if itr.Seek(addr.Value); itr.Done() {
		itr.Last()
	}

	// Move backwards until address range too low.
	for !itr.Done() {
		k, v := itr.Prev()
		key, value := k.(uint64), v.(*Array)

		if addr.Value >= key && addr.Value < key+uint64(value.Size) {
			return NewConstantExpr(key, s.executor.PointerWidth()), value
		} else if addr.Value > key+uint64(value.Size) {
			break // target address above allocation, exit
		}
	}
	return nil, nil
}

// Copy copies the bytes in the value array to the given address.
func (s *ExecutionState) Copy(addr *ConstantExpr, value *Array) {
	base, array := s.findAllocContainingAddr(addr)
	assert(array != nil, "copy: allocation not found: addr=%d", addr.Value)

	newArray := array.Clone()
	for i := uint64(0); i < uint64(value.Size); i++ {
		index := newAddExpr(newSubExpr(addr, base), NewConstantExpr64(i))
		newArray.storeByte(index, value.selectByte(NewConstantExpr64(i)))
	}
	s.heap = s.heap.Set(base.Value, newArray)
}

// Store updates the bytes at addr with value, replacing the state's heap
// with a new copy that holds the updated array.
func (s *ExecutionState) Store(addr *ConstantExpr, value Expr) {
	base, array := s.findAllocContainingAddr(addr)
	assert(array != nil, "store: allocation not found: addr=%d", addr.Value)
	newArray := array.Store(newSubExpr(addr, base), value, s.executor.IsLittleEndian())
	s.heap = s.heap.Set(base.Value, newArray)
}

// selectIntAt returns the i-th pointer-width expression selected from an array.
func (s *ExecutionState) selectIntAt(array *Array, i int) Expr {
	pointerWidth := s.executor.PointerWidth()
	return array.Select(NewConstantExpr32(uint64(i)*uint64(pointerWidth/8)), pointerWidth, s.executor.IsLittleEndian())
}

// storeIntAt returns a new array with the i-th pointer-width element updated.
func (s *ExecutionState) storeIntAt(array *Array, i int, value Expr) *Array {
	pointerWidth := uint64(s.executor.PointerWidth())
	return array.Store(NewConstantExpr64(uint64(i)*(pointerWidth/8)), value, s.executor.IsLittleEndian())
}

// heapBytes returns the total size, in bytes, of every live heap
// allocation, used by --max-memory (§6) to approximate process memory use.
func (s *ExecutionState) heapBytes() uint64 {
	var total uint64
	itr := s.heap.Iterator()
	for !itr.Done() {
		_, v := itr.Next()
		total += uint64(v.(*Array).Size)
	}
	return total
}

// Spawn starts a new goroutine running fn with args bound to its
// parameters, per *ssa.Go (§4.7). The new goroutine is left Runnable and
// parked in s.threads; the calling goroutine keeps running without a
// scheduling point, since nothing yet depends on the new goroutine having
// made progress.
func (s *ExecutionState) Spawn(fn *ssa.Function, args []Binding) {
	id := s.nextThreadID
	s.nextThreadID++

	frame := NewStackFrame(nil, fn)
	frame.locals = make([]*Array, len(fn.Locals))
	for i, instr := range fn.Locals {
		width := s.executor.Sizeof(deref(instr.Type())) / 8
		addr, array := s.Alloc(width)
		array.zero()
		frame.locals[i] = array
		frame.bind(instr, addr)
	}
	for i, arg := range args {
		frame.bind(fn.Params[i], arg)
	}

	s.threads[id] = &Thread{id: id, stack: []*StackFrame{frame}, status: ThreadRunnable}
}

// MakeChannel allocates a new channel of the given element width and
// buffer capacity (§4.7), returning the constant ID it is bound to.
func (s *ExecutionState) MakeChannel(capacity, width uint) *ConstantExpr {
	id := s.nextChanID
	s.nextChanID++
	s.channels[id] = NewChannel(id, capacity, width)
	return NewConstantExpr(id, s.executor.PointerWidth())
}

// channel looks up a channel by ID.
func (s *ExecutionState) channel(id uint64) *Channel {
	return s.channels[id]
}

// wake moves a parked goroutine from Blocked back to Runnable without
// rescheduling immediately; it becomes eligible the next time
// scheduleNext runs.
func (s *ExecutionState) wake(id uint64) {
	if t, ok := s.threads[id]; ok {
		t.status = ThreadRunnable
	}
}

// wakeSender is wake plus marking id's blocking send as already delivered,
// so its retry of the Send instruction completes as a no-op instead of
// queuing the value a second time.
func (s *ExecutionState) wakeSender(id uint64) {
	s.wake(id)
	s.sendCompleted[id] = true
}

// consumeSendCompleted reports and clears whether id's in-flight send was
// already delivered asynchronously, called once at the top of every retry
// of a Send instruction.
func (s *ExecutionState) consumeSendCompleted(id uint64) bool {
	if s.sendCompleted[id] {
		delete(s.sendCompleted, id)
		return true
	}
	return false
}

// parkCurrentThread suspends the running goroutine — its call stack,
// already rewound by the caller to retry the blocking instruction once
// resumed — and hands control to the next runnable goroutine. register is
// invoked with the parked goroutine's ID so the caller can add it to
// whatever wait queue it just blocked on.
func (s *ExecutionState) parkCurrentThread(register func(id uint64)) error {
	t := &Thread{id: s.curThreadID, stack: s.stack, status: ThreadBlocked}
	s.threads[t.id] = t
	register(t.id)
	s.stack = nil
	return s.scheduleNext()
}

// scheduleNext implements §4.7's scheduler: advance to the next runnable
// goroutine in deterministic (sorted thread-ID) order, wrapping past the
// highest ID back to the lowest, and record the decision (consulting
// replay first, so a recorded run replays byte-for-byte). A state with no
// runnable goroutine anywhere is a genuine deadlock, not a clean finish:
// the main goroutine (ID 0) is only ever absent from s.threads while it is
// itself the one running, so if some other goroutine is current and
// exits, main must be sitting in s.threads blocked or waiting to run —
// "nothing runnable" here can only mean every surviving goroutine,
// main included, is stuck.
func (s *ExecutionState) scheduleNext() error {
	ids := make([]uint64, 0, len(s.threads))
	for id, t := range s.threads {
		if t.status == ThreadRunnable {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if len(ids) == 0 {
		terminateState(s, ExecutionStatusFailed, ReasonAbort, "all goroutines are blocked (deadlock)")
		return nil
	}

	next := ids[0]
	for _, id := range ids {
		if id > s.curThreadID {
			next = id
			break
		}
	}

	if replay := s.replay; replay != nil {
		if entry, ok := replay.next(); ok {
			if entry.Kind != SCHEDULE {
				terminateStateOnError(s, ReasonReplayPath, "replay path exhausted or diverged at schedule point")
				return nil
			}
			if uint64(entry.Value) != next {
				log.Printf("[schedule] replay recorded thread %d, scheduler chose %d; proceeding with recorded", entry.Value, next)
				next = uint64(entry.Value)
			}
		}
	}
	s.record = append(s.record, PathEntry{Kind: SCHEDULE, Value: int(next)})

	t, ok := s.threads[next]
	if !ok {
		return fmt.Errorf("schedule: thread %d not found", next)
	}
	delete(s.threads, next)
	s.stack = t.stack
	s.curThreadID = next
	return nil
}

// Dump returns the contents of the state and frames as a string.
func (s *ExecutionState) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "EXECUTION STATE")
	fmt.Fprintln(&buf, "===============")
	fmt.Fprintf(&buf, "status=%s\n", s.status)
	fmt.Fprintf(&buf, "reason=%s (%s)\n", s.reason, s.reasonCode)
	fmt.Fprintln(&buf, "")
	for i := len(s.stack) - 1; i >= 0; i-- {
		fmt.Fprintf(&buf, "== FRAME #%d\n", i)
		fmt.Fprintln(&buf, s.stack[i].Dump())
	}
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== HEAP")
	fmt.Fprintln(&buf, s.dumpHeap())
	fmt.Fprintln(&buf, "")

	fmt.Fprintln(&buf, "== CONSTRAINTS")
	for i, expr := range s.cm.All() {
		fmt.Fprintf(&buf, "%d. %s\n", i, expr.String())
	}
	return buf.String()
}

func (s *ExecutionState) dumpHeap() string {
	var buf bytes.Buffer
	itr := s.heap.Iterator()
	for {
		k, v := itr.Next()
		if k == nil {
			return buf.String()
		}
		array := v.(*Array)
		fmt.Fprintf(&buf, "%08d %s\n", k.(uint64), array.String())
		for upd := array.Updates; upd != nil; upd = upd.Next {
			fmt.Fprintf(&buf, "  + UPD: I=%s; V=%s\n", upd.Index.String(), upd.Value.String())
		}
		fmt.Fprintln(&buf, "")
	}
}

// ExecutionStatus represents the current status of the execution state.
// The state will also include a reason if the status is not running.
type ExecutionStatus string

const (
	ExecutionStatusRunning  = ExecutionStatus("running")  // has future states
	ExecutionStatusFinished = ExecutionStatus("finished") // clean completion
	ExecutionStatusPanicked = ExecutionStatus("panicked") // panic occurred
	ExecutionStatusFailed   = ExecutionStatus("failed")   // test failed
	ExecutionStatusExited   = ExecutionStatus("exited")   // process exited
)

// StackFrame represents the state of a call into a function.
type StackFrame struct {
	fn       *ssa.Function
	caller   *StackFrame
	locals   []*Array
	bindings map[ssa.Value]Binding

	block *ssa.BasicBlock
	prev  *ssa.BasicBlock
	pc    int
}

// NewStackFrame returns a new instance of StackFrame for a given function.
func NewStackFrame(caller *StackFrame, fn *ssa.Function) *StackFrame {
	return &StackFrame{
		fn:       fn,
		caller:   caller,
		bindings: make(map[ssa.Value]Binding),
		block:    fn.Blocks[0],
		pc:       -1,
	}
}

// Instr returns the current instruction.
func (f *StackFrame) Instr() ssa.Instruction {
	if f.block == nil || f.pc < 0 || f.pc >= len(f.block.Instrs) {
		return nil
	}
	return f.block.Instrs[f.pc]
}

// NextInstr moves the current execution to the next instruction.
func (f *StackFrame) NextInstr() {
	if f.block != nil && f.pc < len(f.block.Instrs) {
		f.pc++
	}
}

// rewind moves the current instruction pointer back by one, so the next
// NextInstr call re-fetches the instruction that just ran. Used to retry a
// blocking channel operation once the goroutine that parked on it is
// rescheduled.
func (f *StackFrame) rewind() {
	f.pc--
}

// jump moves to dst from the current block.
func (f *StackFrame) jump(dst *ssa.BasicBlock) {
	f.prev, f.block, f.pc = f.block, dst, -1
}

// bind assigns the expression or slice of expressions to a given SSA value.
func (f *StackFrame) bind(value ssa.Value, b Binding) {
	f.bindings[value] = b
}

// Clone returns a copy of the stack frame.
func (f *StackFrame) Clone() *StackFrame {
	other := *f

	other.bindings = make(map[ssa.Value]Binding, len(f.bindings))
	for k := range f.bindings {
		other.bindings[k] = f.bindings[k]
	}

	other.locals = make([]*Array, len(f.locals))
	copy(other.locals, f.locals)

	return &other
}

// BoundValues returns all bound values, sorted by name.
func (f *StackFrame) BoundValues() []ssa.Value {
	a := make([]ssa.Value, 0, len(f.bindings))
	for value := range f.bindings {
		a = append(a, value)
	}

	sort.Slice(a, func(i, j int) bool {
		x, _ := strconv.Atoi(strings.TrimPrefix(a[i].Name(), "t"))
		y, _ := strconv.Atoi(strings.TrimPrefix(a[j].Name(), "t"))
		return x < y
	})

	return a
}

// Dump returns the contents of the frame as a string.
func (f *StackFrame) Dump() string {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "fn=%s\n", f.fn.String())
	for _, value := range f.BoundValues() {
		binding := f.bindings[value]
		fmt.Fprintf(&buf, "%s (%s)\n%s\n\n", value.Name(), value.Type().String(), binding)
	}
	return buf.String()
}

// Binding represents an object that can be bound to an SSA value.
// This can be an Expr, an *Array, or a Tuple.
type Binding interface {
	binding()
	String() string
}

func (*BinaryExpr) binding()       {}
func (*CastExpr) binding()         {}
func (*ConcatExpr) binding()       {}
func (*ConstantExpr) binding()     {}
func (*ExtractExpr) binding()      {}
func (*NotExpr) binding()          {}
func (*NotOptimizedExpr) binding() {}
func (*SelectExpr) binding()       {}
func (*Array) binding()            {}
func (Tuple) binding()             {}

// uint64Comparer compares two 64-bit unsigned integers. Implements immutable.Comparer.
type uint64Comparer struct{}

// Compare returns -1 if a is less than b, returns 1 if a is greater than b, and
// returns 0 if a is equal to b. Panic if a or b is not a uint64.
func (c *uint64Comparer) Compare(a, b interface{}) int {
	if i, j := a.(uint64), b.(uint64); i < j {
		return -1
	} else if i > j {
		return 1
	}
	return 0
}
