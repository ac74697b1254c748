package glee

// Channel models a Go channel's buffer and blocked waiters for the
// cooperative scheduler (§4.7). Unlike Array, a Channel is not part of the
// byte-addressable heap: MakeChan binds its instruction to a constant ID
// that indexes into ExecutionState.channels, the same way a new goroutine
// gets an opaque thread ID rather than a stack address.
type Channel struct {
	ID       uint64
	Capacity uint
	Width    uint // bit width of one element; only scalar element types are modeled

	buf []Expr // buffered values, FIFO; may exceed Capacity while a receiver is waiting

	// recvWaiters holds the IDs, in arrival order, of goroutines parked in
	// a blocking receive on this channel. sendWaiters holds the same for a
	// blocking send, along with the value each one is trying to deliver.
	recvWaiters []uint64
	sendWaiters []pendingSend

	closed bool
}

type pendingSend struct {
	threadID uint64
	value    Expr
}

// NewChannel returns a new, empty, open channel.
func NewChannel(id uint64, capacity, width uint) *Channel {
	return &Channel{ID: id, Capacity: capacity, Width: width}
}

// clone returns a deep copy of ch, as ExecutionState.Clone needs each
// fork's channels to be independent of the original state's.
func (ch *Channel) clone() *Channel {
	other := *ch
	other.buf = append([]Expr(nil), ch.buf...)
	other.recvWaiters = append([]uint64(nil), ch.recvWaiters...)
	other.sendWaiters = append([]pendingSend(nil), ch.sendWaiters...)
	return &other
}

// trySend attempts to complete a send without blocking. ok is false if the
// send must block (unbuffered or full, with nobody waiting to receive). When
// a receiver was waiting, value is queued into buf regardless of Capacity
// and wokeReceiver names the goroutine to reschedule; its own retry drains
// buf through tryRecv, so no value is ever handed off except by that one
// path (this is what keeps a send idempotent to re-execute: once delivered,
// a second call to trySend for the same logical send must never happen —
// callers rely on that, see executeSendInstr's resume flag).
func (ch *Channel) trySend(value Expr) (ok bool, wokeReceiver uint64) {
	if len(ch.recvWaiters) > 0 {
		id := ch.recvWaiters[0]
		ch.recvWaiters = ch.recvWaiters[1:]
		ch.buf = append(ch.buf, value)
		return true, id
	}
	if uint(len(ch.buf)) < ch.Capacity {
		ch.buf = append(ch.buf, value)
		return true, 0
	}
	return false, 0
}

// tryRecv attempts to complete a receive without blocking. ok is false if
// the receive must block. When ok is true, value and chanOpen describe the
// two-value <-ch form's result, and wokeSender is the ID of a goroutine
// that was parked on a blocking send and has now been unblocked (0 if
// none).
func (ch *Channel) tryRecv() (value Expr, chanOpen, ok bool, wokeSender uint64) {
	if len(ch.buf) > 0 {
		value = ch.buf[0]
		ch.buf = ch.buf[1:]
		if len(ch.sendWaiters) > 0 {
			ps := ch.sendWaiters[0]
			ch.sendWaiters = ch.sendWaiters[1:]
			ch.buf = append(ch.buf, ps.value)
			wokeSender = ps.threadID
		}
		return value, true, true, wokeSender
	}
	if len(ch.sendWaiters) > 0 {
		ps := ch.sendWaiters[0]
		ch.sendWaiters = ch.sendWaiters[1:]
		return ps.value, true, true, ps.threadID
	}
	if ch.closed {
		return NewConstantExpr(0, ch.Width), false, true, 0
	}
	return nil, false, false, 0
}

// close marks the channel closed and returns the IDs of every goroutine
// parked on it, to be rescheduled. Re-running their original instruction
// once woken sees Closed and reacts correctly on its own: a parked receive
// completes with the zero value and ok=false; a parked send panics with
// "send on closed channel", same as one that arrives after the close.
func (ch *Channel) close() (woken []uint64) {
	ch.closed = true
	woken = append(woken, ch.recvWaiters...)
	for _, ps := range ch.sendWaiters {
		woken = append(woken, ps.threadID)
	}
	ch.recvWaiters, ch.sendWaiters = nil, nil
	return woken
}
