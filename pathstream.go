package glee

// PathEntryKind identifies the kind of decision a PathEntry records. The
// set matches every place the executor makes a choice that a re-run needs
// to reproduce exactly: which way a branch went, which case an indirect
// branch or switch took, which goroutine a scheduler point picked, and any
// externally-observed data (e.g. a symbolic read resolved against a seed).
type PathEntryKind int

const (
	FORK          = PathEntryKind(iota) // *ssa.If took true (1) or false (0)
	INDIRECTBR                          // indirect branch took successor N
	SWITCH_EXPIDX                       // *ssa.Select/switch matched expression index N
	SWITCH_BBIDX                        // *ssa.Select/switch jumped to block index N
	SCHEDULE                            // scheduler picked goroutine N to run next
	DATAREC                             // externally-supplied concrete data, recorded verbatim
)

func (k PathEntryKind) String() string {
	switch k {
	case FORK:
		return "fork"
	case INDIRECTBR:
		return "indirectbr"
	case SWITCH_EXPIDX:
		return "switch_expidx"
	case SWITCH_BBIDX:
		return "switch_bbidx"
	case SCHEDULE:
		return "schedule"
	case DATAREC:
		return "datarec"
	default:
		return "unknown"
	}
}

// PathEntry is one decision along a state's execution path. Value's meaning
// is Kind-dependent: for FORK it is 0 (false) or 1 (true); for the
// INDIRECTBR/SWITCH kinds it is the chosen index; for SCHEDULE it is a
// goroutine id; for DATAREC it is an opaque recorded byte pattern encoded as
// an integer when it fits, with Bytes holding the general case.
type PathEntry struct {
	Kind  PathEntryKind
	Value int
	Bytes []byte
}

// pathReplay drives an ExecutionState down a previously recorded path
// (--replay-path, §6) instead of letting the solver chain decide which
// branches to explore. Each state being replayed owns one of these,
// threading forward through the recorded entries as the state executes;
// children created by a fork inherit a replay positioned one entry further
// along, mirroring how ExecutionState.Clone copies record.
type pathReplay struct {
	entries []PathEntry
	pos     int
}

// newPathReplay returns a replay driver over a previously recorded path.
func newPathReplay(entries []PathEntry) *pathReplay {
	return &pathReplay{entries: entries}
}

// nextFork consumes the next recorded entry as a FORK decision. ok is false
// once the recorded path is exhausted or the next entry is not a FORK;
// Executor.fork treats either case as a divergence and terminates the
// state as ExecutionStatusFailed with ReasonReplayPath.
func (r *pathReplay) nextFork() (taken bool, ok bool) {
	if r.pos >= len(r.entries) {
		return false, false
	}
	entry := r.entries[r.pos]
	if entry.Kind != FORK {
		return false, false
	}
	r.pos++
	return entry.Value != 0, true
}

// next consumes the next recorded entry regardless of kind, used by
// indirect-branch, switch, and schedule decision points. ok is false once
// the recorded path is exhausted.
func (r *pathReplay) next() (entry PathEntry, ok bool) {
	if r.pos >= len(r.entries) {
		return PathEntry{}, false
	}
	entry = r.entries[r.pos]
	r.pos++
	return entry, true
}

// remaining reports whether the replay still has unconsumed entries; a
// state that finishes with entries remaining diverged from the recorded
// path before reaching the end of it.
func (r *pathReplay) remaining() bool {
	return r.pos < len(r.entries)
}

// fork returns a replay positioned to continue from where r left off,
// handed to a child state created at this point in the path.
func (r *pathReplay) fork() *pathReplay {
	return &pathReplay{entries: r.entries, pos: r.pos}
}
