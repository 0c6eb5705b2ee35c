package core

import "log"

// DefaultGasCost is charged for any opcode that has slipped through the
// cracks of gasTable — deliberately high so a missing price is expensive
// rather than free.
const DefaultGasCost uint64 = 1000

// gasTable maps every Op to its base gas cost. Native function costs are
// priced separately by the native registry (see native.go), not here —
// this table only covers the fixed bytecode instruction set.
var gasTable = map[Op]uint64{
	OpLdU8: 1, OpLdU64: 1, OpLdU128: 2, OpLdAddr: 2, OpLdTrue: 1, OpLdFalse: 1,
	OpPop: 1, OpMoveLoc: 1, OpCopyLoc: 2, OpStLoc: 1,
	OpCall: 20, OpCallNative: 10,
	OpPack: 10, OpUnpack: 8,
	OpBorrowGlobal: 30, OpMoveTo: 40, OpMoveFrom: 30, OpExists: 15,
	OpAdd: 2, OpSub: 2, OpEq: 2,
	OpBrTrue: 3, OpBrFalse: 3, OpBranch: 2,
	OpRet: 1, OpAbort: 1,
}

// GasCost returns the base gas cost for a single opcode. Lock-free and
// safe for concurrent use by every execution session.
func GasCost(op Op) uint64 {
	if cost, ok := gasTable[op]; ok {
		return cost
	}
	log.Printf("core: gas_table: missing cost for opcode %s, charging default", op)
	return DefaultGasCost
}

// GasMeter tracks remaining gas units against a budget and converts
// consumption into an aborting error once the budget is exhausted, the
// same role the teacher's GasMeter plays in virtual_machine.go.
type GasMeter struct {
	budget   uint64
	consumed uint64
}

// OutOfGasError is returned by Consume once the budget is exhausted.
type OutOfGasError struct {
	Budget, Attempted uint64
}

func (e *OutOfGasError) Error() string {
	return "core: out of gas"
}

func NewGasMeter(maxUnits uint64) *GasMeter { return &GasMeter{budget: maxUnits} }

// Consume debits units, returning an *OutOfGasError without mutating
// state further once the budget would be exceeded.
func (g *GasMeter) Consume(units uint64) error {
	if g.consumed+units > g.budget {
		return &OutOfGasError{Budget: g.budget, Attempted: g.consumed + units}
	}
	g.consumed += units
	return nil
}

// Used returns gas consumed so far.
func (g *GasMeter) Used() uint64 { return g.consumed }

// Remaining returns unconsumed gas in the budget.
func (g *GasMeter) Remaining() uint64 { return g.budget - g.consumed }
