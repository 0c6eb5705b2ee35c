package core

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/dfinance/dvm-sub000/address"
)

// Op is a single bytecode instruction opcode. The instruction set is
// deliberately small: a stack machine with local slots, global storage
// access, and calls — enough to execute the scenarios in §8 without
// standing in for the real Move bytecode format the spec assumes fixed.
type Op uint8

const (
	OpLdU8 Op = iota
	OpLdU64
	OpLdU128
	OpLdAddr
	OpLdTrue
	OpLdFalse
	OpPop
	OpMoveLoc
	OpCopyLoc
	OpStLoc
	OpCall
	OpCallNative
	OpPack
	OpUnpack
	OpBorrowGlobal
	OpMoveTo
	OpMoveFrom
	OpExists
	OpAdd
	OpSub
	OpEq
	OpBrTrue
	OpBrFalse
	OpBranch
	OpRet
	OpAbort
)

var opNames = map[Op]string{
	OpLdU8: "LdU8", OpLdU64: "LdU64", OpLdU128: "LdU128", OpLdAddr: "LdAddr",
	OpLdTrue: "LdTrue", OpLdFalse: "LdFalse", OpPop: "Pop",
	OpMoveLoc: "MoveLoc", OpCopyLoc: "CopyLoc", OpStLoc: "StLoc",
	OpCall: "Call", OpCallNative: "CallNative", OpPack: "Pack", OpUnpack: "Unpack",
	OpBorrowGlobal: "BorrowGlobal", OpMoveTo: "MoveTo", OpMoveFrom: "MoveFrom", OpExists: "Exists",
	OpAdd: "Add", OpSub: "Sub", OpEq: "Eq",
	OpBrTrue: "BrTrue", OpBrFalse: "BrFalse", OpBranch: "Branch",
	OpRet: "Ret", OpAbort: "Abort",
}

func (o Op) String() string {
	if n, ok := opNames[o]; ok {
		return n
	}
	return fmt.Sprintf("Op(%d)", o)
}

// Instruction is one bytecode instruction. Imm carries a generic immediate
// payload (a literal value, a local-slot index, a branch target); ModuleIdx
// and Name identify the callee for OpCall/OpCallNative, and Name the struct
// for OpPack. Type, when non-nil, carries the struct type for
// OpPack/OpBorrowGlobal/OpMoveTo/OpMoveFrom/OpExists, or the single
// type-argument instantiation of a generic call.
type Instruction struct {
	Op        Op
	Imm       uint64
	Addr      *address.Address
	ModuleIdx uint16
	Name      string
	Type      *TypeTag
}

// StructKind distinguishes plain data structs from resource structs, which
// the verifier forbids copying or dropping implicitly, and native structs,
// whose layout is supplied by the runtime rather than declared fields.
type StructKind uint8

const (
	StructPlain StructKind = iota
	StructResource
	StructNative
)

// FieldDecl is one declared field of a struct.
type FieldDecl struct {
	Name string
	Type TypeTag
}

// TypeParamDecl declares a generic type parameter and whether it is
// constrained to resource types.
type TypeParamDecl struct {
	Name             string
	ResourceConstraint bool
}

// StructDecl is one struct declaration inside a compiled module.
type StructDecl struct {
	Name       string
	Kind       StructKind
	TypeParams []TypeParamDecl
	Fields     []FieldDecl
}

// Visibility controls whether a function is callable from outside its
// declaring module.
type Visibility uint8

const (
	VisPrivate Visibility = iota
	VisPublic
)

// FunctionDecl is one function declaration inside a compiled module or the
// single entrypoint of a compiled script.
type FunctionDecl struct {
	Name       string
	Visibility Visibility
	IsNative   bool
	TypeParams []TypeParamDecl
	Params     []TypeTag
	Returns    []TypeTag
	Acquires   []TypeTag
	Code       []Instruction
}

// CompiledModule is the structured, in-memory representation of a single
// compiled module unit: a self-identifying handle table, its struct and
// function declarations, and the bytecode bodies of its non-native
// functions.
type CompiledModule struct {
	// ModuleHandles lists every module this unit references; index 0 is
	// always the module's own identity ("self").
	ModuleHandles []ModuleID
	Structs       []StructDecl
	Functions     []FunctionDecl
}

// SelfID returns the module's own identity, ModuleHandles[0].
func (m *CompiledModule) SelfID() ModuleID {
	if len(m.ModuleHandles) == 0 {
		return ModuleID{}
	}
	return m.ModuleHandles[0]
}

// Function looks up a declared function by name.
func (m *CompiledModule) Function(name string) (*FunctionDecl, bool) {
	for i := range m.Functions {
		if m.Functions[i].Name == name {
			return &m.Functions[i], true
		}
	}
	return nil, false
}

// Struct looks up a declared struct by name.
func (m *CompiledModule) Struct(name string) (*StructDecl, bool) {
	for i := range m.Structs {
		if m.Structs[i].Name == name {
			return &m.Structs[i], true
		}
	}
	return nil, false
}

// ScriptParam is one formal parameter of a compiled script: either a
// &signer supplied by the runtime for each transaction sender, or a plain
// value argument decoded from the caller-supplied argument bytes.
type ScriptParam struct {
	IsSigner bool
	Type     TypeTag // zero value when IsSigner
}

// CompiledScript is the structured representation of a one-shot entrypoint:
// a handle table for the modules it calls, its formal parameters, and its
// bytecode body.
type CompiledScript struct {
	ModuleHandles []ModuleID
	TypeParams    []TypeParamDecl
	Params        []ScriptParam
	Code          []Instruction
}

// SignerArity returns the number of leading &signer parameters.
func (s *CompiledScript) SignerArity() int {
	n := 0
	for _, p := range s.Params {
		if !p.IsSigner {
			break
		}
		n++
	}
	return n
}

// rlpTypeTag mirrors TypeTag with only
// RLP-encodable shapes (RLP has no notion of a nil *T with a discriminant,
// so the recursive Elem pointer is flattened to a presence flag).
type rlpTypeTag struct {
	Kind         uint8
	HasElem      bool
	Elem         []byte // nested RLP encoding of *rlpTypeTag, empty if !HasElem
	StructAddr   address.Address
	StructModule string
	StructName   string
	TypeParams   [][]byte // nested RLP encodings of rlpTypeTag
}

func toRLPTypeTag(t TypeTag) (rlpTypeTag, error) {
	out := rlpTypeTag{Kind: uint8(t.Kind), StructAddr: t.StructAddr, StructModule: t.StructModule, StructName: t.StructName}
	if t.Kind == TVector && t.Elem != nil {
		inner, err := toRLPTypeTag(*t.Elem)
		if err != nil {
			return out, err
		}
		b, err := rlp.EncodeToBytes(inner)
		if err != nil {
			return out, err
		}
		out.HasElem = true
		out.Elem = b
	}
	for _, tp := range t.TypeParams {
		inner, err := toRLPTypeTag(tp)
		if err != nil {
			return out, err
		}
		b, err := rlp.EncodeToBytes(inner)
		if err != nil {
			return out, err
		}
		out.TypeParams = append(out.TypeParams, b)
	}
	return out, nil
}

func fromRLPTypeTag(r rlpTypeTag) (TypeTag, error) {
	t := TypeTag{Kind: TypeKind(r.Kind), StructAddr: r.StructAddr, StructModule: r.StructModule, StructName: r.StructName}
	if r.HasElem {
		var inner rlpTypeTag
		if err := rlp.DecodeBytes(r.Elem, &inner); err != nil {
			return t, err
		}
		elem, err := fromRLPTypeTag(inner)
		if err != nil {
			return t, err
		}
		t.Elem = &elem
	}
	for _, b := range r.TypeParams {
		var inner rlpTypeTag
		if err := rlp.DecodeBytes(b, &inner); err != nil {
			return t, err
		}
		tp, err := fromRLPTypeTag(inner)
		if err != nil {
			return t, err
		}
		t.TypeParams = append(t.TypeParams, tp)
	}
	return t, nil
}

type rlpInstruction struct {
	Op        uint8
	Imm       uint64
	HasAddr   bool
	Addr      address.Address
	ModuleIdx uint16
	Name      string
	HasType   bool
	Type      []byte
}

func toRLPInstruction(in Instruction) (rlpInstruction, error) {
	out := rlpInstruction{Op: uint8(in.Op), Imm: in.Imm, ModuleIdx: in.ModuleIdx, Name: in.Name}
	if in.Addr != nil {
		out.HasAddr = true
		out.Addr = *in.Addr
	}
	if in.Type != nil {
		rt, err := toRLPTypeTag(*in.Type)
		if err != nil {
			return out, err
		}
		b, err := rlp.EncodeToBytes(rt)
		if err != nil {
			return out, err
		}
		out.HasType = true
		out.Type = b
	}
	return out, nil
}

func fromRLPInstruction(r rlpInstruction) (Instruction, error) {
	in := Instruction{Op: Op(r.Op), Imm: r.Imm, ModuleIdx: r.ModuleIdx, Name: r.Name}
	if r.HasAddr {
		a := r.Addr
		in.Addr = &a
	}
	if r.HasType {
		var rt rlpTypeTag
		if err := rlp.DecodeBytes(r.Type, &rt); err != nil {
			return in, err
		}
		tt, err := fromRLPTypeTag(rt)
		if err != nil {
			return in, err
		}
		in.Type = &tt
	}
	return in, nil
}

type rlpFieldDecl struct {
	Name string
	Type []byte
}

type rlpTypeParamDecl struct {
	Name               string
	ResourceConstraint bool
}

type rlpStructDecl struct {
	Name       string
	Kind       uint8
	TypeParams []rlpTypeParamDecl
	Fields     []rlpFieldDecl
}

type rlpFunctionDecl struct {
	Name       string
	Visibility uint8
	IsNative   bool
	TypeParams []rlpTypeParamDecl
	Params     [][]byte
	Returns    [][]byte
	Acquires   [][]byte
	Code       []rlpInstruction
}

type rlpCompiledModule struct {
	ModuleHandles []rlpModuleHandle
	Structs       []rlpStructDecl
	Functions     []rlpFunctionDecl
}

type rlpModuleHandle struct {
	Addr address.Address
	Name string
}

func encodeTypeTags(ts []TypeTag) ([][]byte, error) {
	out := make([][]byte, 0, len(ts))
	for _, t := range ts {
		rt, err := toRLPTypeTag(t)
		if err != nil {
			return nil, err
		}
		b, err := rlp.EncodeToBytes(rt)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func decodeTypeTags(bs [][]byte) ([]TypeTag, error) {
	out := make([]TypeTag, 0, len(bs))
	for _, b := range bs {
		var rt rlpTypeTag
		if err := rlp.DecodeBytes(b, &rt); err != nil {
			return nil, err
		}
		t, err := fromRLPTypeTag(rt)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func toRLPTypeParams(ps []TypeParamDecl) []rlpTypeParamDecl {
	out := make([]rlpTypeParamDecl, len(ps))
	for i, p := range ps {
		out[i] = rlpTypeParamDecl{Name: p.Name, ResourceConstraint: p.ResourceConstraint}
	}
	return out
}

func fromRLPTypeParams(ps []rlpTypeParamDecl) []TypeParamDecl {
	out := make([]TypeParamDecl, len(ps))
	for i, p := range ps {
		out[i] = TypeParamDecl{Name: p.Name, ResourceConstraint: p.ResourceConstraint}
	}
	return out
}

// MarshalBinary encodes m into the canonical on-disk/on-wire module blob.
func (m *CompiledModule) MarshalBinary() ([]byte, error) {
	r := rlpCompiledModule{}
	for _, h := range m.ModuleHandles {
		r.ModuleHandles = append(r.ModuleHandles, rlpModuleHandle{Addr: h.Addr, Name: h.Name})
	}
	for _, s := range m.Structs {
		rs := rlpStructDecl{Name: s.Name, Kind: uint8(s.Kind), TypeParams: toRLPTypeParams(s.TypeParams)}
		for _, f := range s.Fields {
			tb, err := encodeTypeTags([]TypeTag{f.Type})
			if err != nil {
				return nil, err
			}
			rs.Fields = append(rs.Fields, rlpFieldDecl{Name: f.Name, Type: tb[0]})
		}
		r.Structs = append(r.Structs, rs)
	}
	for _, fn := range m.Functions {
		rf, err := toRLPFunctionDecl(fn)
		if err != nil {
			return nil, err
		}
		r.Functions = append(r.Functions, rf)
	}
	return rlp.EncodeToBytes(r)
}

func toRLPFunctionDecl(fn FunctionDecl) (rlpFunctionDecl, error) {
	params, err := encodeTypeTags(fn.Params)
	if err != nil {
		return rlpFunctionDecl{}, err
	}
	returns, err := encodeTypeTags(fn.Returns)
	if err != nil {
		return rlpFunctionDecl{}, err
	}
	acquires, err := encodeTypeTags(fn.Acquires)
	if err != nil {
		return rlpFunctionDecl{}, err
	}
	rf := rlpFunctionDecl{
		Name: fn.Name, Visibility: uint8(fn.Visibility), IsNative: fn.IsNative,
		TypeParams: toRLPTypeParams(fn.TypeParams), Params: params, Returns: returns, Acquires: acquires,
	}
	for _, in := range fn.Code {
		ri, err := toRLPInstruction(in)
		if err != nil {
			return rf, err
		}
		rf.Code = append(rf.Code, ri)
	}
	return rf, nil
}

func fromRLPFunctionDecl(rf rlpFunctionDecl) (FunctionDecl, error) {
	params, err := decodeTypeTags(rf.Params)
	if err != nil {
		return FunctionDecl{}, err
	}
	returns, err := decodeTypeTags(rf.Returns)
	if err != nil {
		return FunctionDecl{}, err
	}
	acquires, err := decodeTypeTags(rf.Acquires)
	if err != nil {
		return FunctionDecl{}, err
	}
	fn := FunctionDecl{
		Name: rf.Name, Visibility: Visibility(rf.Visibility), IsNative: rf.IsNative,
		TypeParams: fromRLPTypeParams(rf.TypeParams), Params: params, Returns: returns, Acquires: acquires,
	}
	for _, ri := range rf.Code {
		in, err := fromRLPInstruction(ri)
		if err != nil {
			return fn, err
		}
		fn.Code = append(fn.Code, in)
	}
	return fn, nil
}

// UnmarshalBinary decodes a module blob produced by MarshalBinary.
func (m *CompiledModule) UnmarshalBinary(data []byte) error {
	var r rlpCompiledModule
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return fmt.Errorf("core: decode module: %w", err)
	}
	m.ModuleHandles = nil
	for _, h := range r.ModuleHandles {
		m.ModuleHandles = append(m.ModuleHandles, ModuleID{Addr: h.Addr, Name: h.Name})
	}
	m.Structs = nil
	for _, rs := range r.Structs {
		s := StructDecl{Name: rs.Name, Kind: StructKind(rs.Kind), TypeParams: fromRLPTypeParams(rs.TypeParams)}
		for _, rfld := range rs.Fields {
			ts, err := decodeTypeTags([][]byte{rfld.Type})
			if err != nil {
				return err
			}
			s.Fields = append(s.Fields, FieldDecl{Name: rfld.Name, Type: ts[0]})
		}
		m.Structs = append(m.Structs, s)
	}
	m.Functions = nil
	for _, rf := range r.Functions {
		fn, err := fromRLPFunctionDecl(rf)
		if err != nil {
			return err
		}
		m.Functions = append(m.Functions, fn)
	}
	return nil
}

type rlpScriptParam struct {
	IsSigner bool
	Type     []byte
}

type rlpCompiledScript struct {
	ModuleHandles []rlpModuleHandle
	TypeParams    []rlpTypeParamDecl
	Params        []rlpScriptParam
	Code          []rlpInstruction
}

// MarshalBinary encodes s into the canonical on-disk/on-wire script blob.
func (s *CompiledScript) MarshalBinary() ([]byte, error) {
	r := rlpCompiledScript{TypeParams: toRLPTypeParams(s.TypeParams)}
	for _, h := range s.ModuleHandles {
		r.ModuleHandles = append(r.ModuleHandles, rlpModuleHandle{Addr: h.Addr, Name: h.Name})
	}
	for _, p := range s.Params {
		rp := rlpScriptParam{IsSigner: p.IsSigner}
		if !p.IsSigner {
			tb, err := encodeTypeTags([]TypeTag{p.Type})
			if err != nil {
				return nil, err
			}
			rp.Type = tb[0]
		}
		r.Params = append(r.Params, rp)
	}
	for _, in := range s.Code {
		ri, err := toRLPInstruction(in)
		if err != nil {
			return nil, err
		}
		r.Code = append(r.Code, ri)
	}
	return rlp.EncodeToBytes(r)
}

// UnmarshalBinary decodes a script blob produced by MarshalBinary.
func (s *CompiledScript) UnmarshalBinary(data []byte) error {
	var r rlpCompiledScript
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return fmt.Errorf("core: decode script: %w", err)
	}
	s.ModuleHandles = nil
	for _, h := range r.ModuleHandles {
		s.ModuleHandles = append(s.ModuleHandles, ModuleID{Addr: h.Addr, Name: h.Name})
	}
	s.TypeParams = fromRLPTypeParams(r.TypeParams)
	s.Params = nil
	for _, rp := range r.Params {
		p := ScriptParam{IsSigner: rp.IsSigner}
		if !rp.IsSigner {
			ts, err := decodeTypeTags([][]byte{rp.Type})
			if err != nil {
				return err
			}
			p.Type = ts[0]
		}
		s.Params = append(s.Params, p)
	}
	s.Code = nil
	for _, ri := range r.Code {
		in, err := fromRLPInstruction(ri)
		if err != nil {
			return err
		}
		s.Code = append(s.Code, in)
	}
	return nil
}

// CanonicalEqual reports whether two encoded blobs are byte-identical (it
// compares the bytes directly, without decoding), used by tests to check
// disassemble/reassemble round-trips.
func CanonicalEqual(a, b []byte) bool { return bytes.Equal(a, b) }
