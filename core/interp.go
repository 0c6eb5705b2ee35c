package core

import (
	"fmt"

	"github.com/dfinance/dvm-sub000/address"
)

// AbortError is returned by a session when an `abort` statement's code
// unwinds all the way out of execution. It is distinct from an ordinary
// Go error because it still produces a Keep status: the transaction ran,
// gas is charged, and only the write-set is discarded (§3 "Execution
// result" / "Aborted").
type AbortError struct{ Code uint64 }

func (e *AbortError) Error() string { return fmt.Sprintf("core: abort code %d", e.Code) }

// session is one publish-or-execute attempt's interpreter state: the
// write-backed view calls read and write through, the gas meter every
// instruction and native call debits, and the events accumulated along
// the way.
type session struct {
	vm     *VM
	view   *WriteCache
	gas    *GasMeter
	events []Event
}

func (s *session) callFunction(id ModuleID, fn *FunctionDecl, args []Value) ([]Value, error) {
	if fn.IsNative {
		nf, ok := s.vm.natives.Lookup(id, fn.Name)
		if !ok {
			return nil, fmt.Errorf("core: native function %s::%s not registered", id, fn.Name)
		}
		if err := s.gas.Consume(GasCost(OpCallNative)); err != nil {
			return nil, err
		}
		return nf(&NativeContext{View: s.view, Gas: s.gas}, args)
	}
	mod, err := s.vm.loadModule(id)
	if err != nil {
		return nil, err
	}
	locals := make([]Value, len(args))
	copy(locals, args)
	return s.run(fn.Code, locals, mod.ModuleHandles)
}

// run interprets one function or script body to completion: a normal
// return (OpRet) yields the return values; an abort (OpAbort) yields
// *AbortError; running off the end of Code without a Ret is not an error:
// it returns whatever values remain on the stack, which is how a script
// body or a function with no return values completes (the compiler emits
// no trailing Ret for either).
func (s *session) run(code []Instruction, locals []Value, handles []ModuleID) ([]Value, error) {
	var stack []Value
	pc := 0
	for pc < len(code) {
		in := code[pc]
		if err := s.gas.Consume(GasCost(in.Op)); err != nil {
			return nil, err
		}
		switch in.Op {
		case OpLdU8:
			stack = append(stack, U8Value(uint8(in.Imm)))
		case OpLdU64:
			stack = append(stack, U64Value(in.Imm))
		case OpLdU128:
			stack = append(stack, U128Value(in.Imm))
		case OpLdAddr:
			if in.Addr == nil {
				return nil, fmt.Errorf("core: interp: LdAddr with no address operand")
			}
			stack = append(stack, AddrValue(*in.Addr))
		case OpLdTrue:
			stack = append(stack, BoolValue(true))
		case OpLdFalse:
			stack = append(stack, BoolValue(false))
		case OpPop:
			if len(stack) == 0 {
				return nil, fmt.Errorf("core: interp: pop on empty stack")
			}
			stack = stack[:len(stack)-1]
		case OpMoveLoc, OpCopyLoc:
			idx := int(in.Imm)
			if idx >= len(locals) {
				return nil, fmt.Errorf("core: interp: local slot %d out of range", idx)
			}
			stack = append(stack, locals[idx])
		case OpStLoc:
			if len(stack) == 0 {
				return nil, fmt.Errorf("core: interp: st_loc on empty stack")
			}
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			idx := int(in.Imm)
			for len(locals) <= idx {
				locals = append(locals, Value{})
			}
			locals[idx] = v
		case OpAdd, OpSub:
			b, a, err := pop2(&stack)
			if err != nil {
				return nil, err
			}
			var n uint64
			if in.Op == OpAdd {
				n = a.Num + b.Num
			} else {
				n = a.Num - b.Num
			}
			stack = append(stack, Value{Kind: a.Kind, Num: n})
		case OpEq:
			b, a, err := pop2(&stack)
			if err != nil {
				return nil, err
			}
			stack = append(stack, BoolValue(valuesEqual(a, b)))
		case OpBrTrue:
			v, err := pop1(&stack)
			if err != nil {
				return nil, err
			}
			if v.Bool() {
				pc = int(in.Imm)
				continue
			}
		case OpBrFalse:
			v, err := pop1(&stack)
			if err != nil {
				return nil, err
			}
			if !v.Bool() {
				pc = int(in.Imm)
				continue
			}
		case OpBranch:
			pc = int(in.Imm)
			continue
		case OpCall, OpCallNative:
			mod, err := s.resolveModule(handles, in.ModuleIdx)
			if err != nil {
				return nil, err
			}
			fn, ok := mod.Function(in.Name)
			if !ok {
				return nil, fmt.Errorf("core: interp: function %s::%s not found", mod.SelfID(), in.Name)
			}
			argc := len(fn.Params)
			if len(stack) < argc {
				return nil, fmt.Errorf("core: interp: call to %s::%s: stack underflow", mod.SelfID(), in.Name)
			}
			args := append([]Value(nil), stack[len(stack)-argc:]...)
			stack = stack[:len(stack)-argc]
			rets, err := s.callFunction(mod.SelfID(), fn, args)
			if err != nil {
				return nil, err
			}
			stack = append(stack, rets...)
		case OpPack:
			if in.Type == nil {
				return nil, fmt.Errorf("core: interp: pack with no type operand")
			}
			n := int(in.Imm)
			if len(stack) < n {
				return nil, fmt.Errorf("core: interp: pack %s: stack underflow", in.Name)
			}
			fields := append([]Value(nil), stack[len(stack)-n:]...)
			stack = stack[:len(stack)-n]
			stack = append(stack, Value{Kind: TStruct, Struct: &StructValue{Type: *in.Type, Fields: fields}})
		case OpBorrowGlobal, OpMoveFrom, OpExists:
			if in.Type == nil {
				return nil, fmt.Errorf("core: interp: %s with no type operand", in.Op)
			}
			addrVal, err := pop1(&stack)
			if err != nil {
				return nil, err
			}
			raw, ok, synthetic, err := s.readGlobal(addrVal.Addr, *in.Type)
			if err != nil {
				return nil, err
			}
			decode := DecodeValue
			if synthetic {
				decode = func(data []byte, tag TypeTag) (Value, error) { return DecodeSyntheticValue(tag, data) }
			}
			switch in.Op {
			case OpExists:
				stack = append(stack, BoolValue(ok))
			case OpBorrowGlobal:
				if !ok {
					return nil, fmt.Errorf("core: interp: borrow_global<%s>(%s): resource not found", in.Type, addrVal.Addr.Hex())
				}
				v, err := decode(raw, *in.Type)
				if err != nil {
					return nil, err
				}
				stack = append(stack, v)
			case OpMoveFrom:
				if !ok {
					return nil, fmt.Errorf("core: interp: move_from<%s>(%s): resource not found", in.Type, addrVal.Addr.Hex())
				}
				if synthetic {
					return nil, fmt.Errorf("core: interp: move_from<%s>(%s): synthetic resources are read-only", in.Type, addrVal.Addr.Hex())
				}
				v, err := decode(raw, *in.Type)
				if err != nil {
					return nil, err
				}
				s.view.DeleteResource(ResourceAccessPath(addrVal.Addr, *in.Type))
				stack = append(stack, v)
			}
		case OpMoveTo:
			if in.Type == nil {
				return nil, fmt.Errorf("core: interp: move_to with no type operand")
			}
			val, signer, err := pop2(&stack)
			if err != nil {
				return nil, err
			}
			ap := ResourceAccessPath(signer.Addr, *in.Type)
			if _, exists, _ := s.view.GetResource(ap); exists {
				return nil, fmt.Errorf("core: interp: move_to<%s>(%s): resource already exists", in.Type, signer.Addr.Hex())
			}
			raw, err := EncodeValue(val)
			if err != nil {
				return nil, err
			}
			s.view.SetResource(ap, raw)
		case OpRet:
			n := int(in.Imm)
			if len(stack) < n {
				return nil, fmt.Errorf("core: interp: ret: stack underflow")
			}
			return stack[len(stack)-n:], nil
		case OpAbort:
			v, err := pop1(&stack)
			if err != nil {
				return nil, err
			}
			return nil, &AbortError{Code: v.Num}
		default:
			return nil, fmt.Errorf("core: interp: unimplemented opcode %s", in.Op)
		}
		pc++
	}
	return stack, nil
}

// readGlobal resolves a borrow_global / exists / move_from read, trying
// the synthetic resource layer first (§4.7) and falling back to the
// ordinary hashed access path when the type isn't one of the well-known
// synthetic ones. This is the single dispatch point that keeps the
// opcode handlers above from needing to know which layer served a read;
// the synthetic bool they get back tells them which wire format the raw
// bytes are in (DecodeSyntheticValue's raw little-endian/passthrough
// encoding vs. DecodeValue's self-describing RLP).
func (s *session) readGlobal(addr address.Address, tag TypeTag) (raw []byte, found, synthetic bool, err error) {
	if sv, ok := interface{}(s.view).(SyntheticResourceView); ok {
		data, handled, hfound, herr := sv.GetSyntheticResource(addr, tag)
		if herr != nil {
			return nil, false, false, fmt.Errorf("core: interp: synthetic read: %w", herr)
		}
		if handled {
			return data, hfound, true, nil
		}
	}
	data, found, err := s.view.GetResource(ResourceAccessPath(addr, tag))
	return data, found, false, err
}

func (s *session) resolveModule(handles []ModuleID, idx uint16) (*CompiledModule, error) {
	if int(idx) >= len(handles) {
		return nil, fmt.Errorf("core: interp: module handle %d out of range", idx)
	}
	return s.vm.loadModule(handles[idx])
}

func pop1(stack *[]Value) (Value, error) {
	s := *stack
	if len(s) == 0 {
		return Value{}, fmt.Errorf("core: interp: stack underflow")
	}
	v := s[len(s)-1]
	*stack = s[:len(s)-1]
	return v, nil
}

// pop2 pops the top two values, returning (top, second-from-top) — the
// natural (b, a) order for a binary op compiled as push(a); push(b); op.
func pop2(stack *[]Value) (b, a Value, err error) {
	b, err = pop1(stack)
	if err != nil {
		return
	}
	a, err = pop1(stack)
	return
}

func valuesEqual(a, b Value) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case TAddress:
		return a.Addr == b.Addr
	case TStruct:
		if len(a.Struct.Fields) != len(b.Struct.Fields) || !a.Struct.Type.Equal(b.Struct.Type) {
			return false
		}
		for i := range a.Struct.Fields {
			if !valuesEqual(a.Struct.Fields[i], b.Struct.Fields[i]) {
				return false
			}
		}
		return true
	default:
		return a.Num == b.Num
	}
}
