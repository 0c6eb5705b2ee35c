package core

import "sort"

// WriteOp is one entry in a write-set: a write (Value set, Deleted false)
// or a deletion (Deleted true) of the resource or code stored at Path.
type WriteOp struct {
	Path    AccessPath
	Value   []byte
	Deleted bool
}

// WriteSet is an ordered, deduplicated list of write operations — the
// result assembler's output alongside Events and GasUsed. Ordering is by
// access path string so two executions that touch the same paths produce
// byte-identical write-sets regardless of internal write order.
type WriteSet []WriteOp

func sortedWriteSet(ops []WriteOp) WriteSet {
	sort.Slice(ops, func(i, j int) bool { return ops[i].Path.String() < ops[j].Path.String() })
	return WriteSet(ops)
}

// Event is one emitted event: the module that emitted it, its structured
// payload type, and the serialized payload bytes.
type Event struct {
	Emitter ModuleID
	Type    TypeTag
	Data    []byte
}

// Status is the outcome discriminant of an execution attempt, mirroring
// the Discard/Keep/Retry split in the original transaction status model
// (see services/src/vm.rs in the reference sources): Discard means the
// write-set does not apply — the request was rejected (wrong sender,
// missing signer, malformed input) or execution failed with a non-abort
// error; an out-of-gas Discard reports the full gas budget as GasUsed,
// other Discards report no gas; Keep means the
// VM ran to normal completion or to an on-chain abort, and either way gas
// was charged and (for a normal completion) the write-set applies; Retry
// is not reachable by this single-process VM, which has no notion of a
// contended resource to retry against, but is kept as a status so callers
// written against the three-way model don't need a special case.
type Status uint8

const (
	StatusKeep Status = iota
	StatusDiscard
	StatusRetry
)

func (s Status) String() string {
	switch s {
	case StatusKeep:
		return "keep"
	case StatusDiscard:
		return "discard"
	case StatusRetry:
		return "retry"
	default:
		return "unknown"
	}
}

// ExecutionResult is the fully assembled outcome of one publish or
// execute-script request: status, gas consumed, and — only when Status is
// StatusKeep and Aborted is false — the write-set and events to commit.
type ExecutionResult struct {
	Status   Status
	GasUsed  uint64
	Aborted  bool
	AbortCode uint64
	WriteSet WriteSet
	Events   []Event
	Err      error
}
