package core

import (
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"github.com/dfinance/dvm-sub000/address"
)

// Value is a runtime value flowing through the VM's operand stack and
// local-variable slots. It is a small tagged union rather than an
// interface so the interpreter's hot path never allocates an interface
// box for a bare integer.
type Value struct {
	Kind   TypeKind
	Num    uint64 // Bool (0/1), U8, U64, U128 (truncated to its low 64 bits)
	Addr   address.Address
	Struct *StructValue
	Elems  []Value // Kind == TVector
}

// StructValue is a packed struct instance: its declared type and its
// field values in declaration order.
type StructValue struct {
	Type   TypeTag
	Fields []Value
}

func BoolValue(b bool) Value {
	var n uint64
	if b {
		n = 1
	}
	return Value{Kind: TBool, Num: n}
}

func U8Value(v uint8) Value              { return Value{Kind: TU8, Num: uint64(v)} }
func U64Value(v uint64) Value            { return Value{Kind: TU64, Num: v} }
func U128Value(v uint64) Value           { return Value{Kind: TU128, Num: v} }
func AddrValue(a address.Address) Value  { return Value{Kind: TAddress, Addr: a} }

func (v Value) Bool() bool { return v.Num != 0 }

// Type reports the structured type tag of a value. For struct and vector
// values this recurses into the value's own recorded type/element types.
func (v Value) Type() TypeTag {
	switch v.Kind {
	case TStruct:
		return v.Struct.Type
	case TVector:
		if len(v.Elems) == 0 {
			return Vector(TypeTag{Kind: TU8}) // empty vector: element type unknown, defaults to u8
		}
		return Vector(v.Elems[0].Type())
	case TAddress:
		return AddressT()
	default:
		return TypeTag{Kind: v.Kind}
	}
}

// rlpValue mirrors Value with only RLP-encodable shapes, the same
// flattening approach bytecode.go uses for TypeTag.
type rlpValue struct {
	Kind       uint8
	Num        uint64
	Addr       address.Address
	HasStruct  bool
	StructType []byte
	Fields     [][]byte // struct fields, or vector elements
}

// EncodeValue serializes a runtime value into the canonical resource blob
// format used to persist it at an access path.
func EncodeValue(v Value) ([]byte, error) {
	r, err := toRLPValue(v)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(r)
}

// DecodeValue parses a resource blob written by EncodeValue, reconstructing
// it as an instance of the expected type (struct fields carry no type tags
// of their own on the wire, so the caller-provided expected type drives
// decoding — this mirrors how a real resource store returns opaque bytes
// that only the known struct layout can interpret).
func DecodeValue(data []byte, expected TypeTag) (Value, error) {
	var r rlpValue
	if err := rlp.DecodeBytes(data, &r); err != nil {
		return Value{}, fmt.Errorf("core: decode value: %w", err)
	}
	return fromRLPValue(r, expected)
}

func toRLPValue(v Value) (rlpValue, error) {
	out := rlpValue{Kind: uint8(v.Kind), Num: v.Num, Addr: v.Addr}
	switch v.Kind {
	case TStruct:
		rt, err := toRLPTypeTag(v.Struct.Type)
		if err != nil {
			return out, err
		}
		tb, err := rlp.EncodeToBytes(rt)
		if err != nil {
			return out, err
		}
		out.HasStruct = true
		out.StructType = tb
		for _, f := range v.Struct.Fields {
			fb, err := encodeNested(f)
			if err != nil {
				return out, err
			}
			out.Fields = append(out.Fields, fb)
		}
	case TVector:
		for _, e := range v.Elems {
			eb, err := encodeNested(e)
			if err != nil {
				return out, err
			}
			out.Fields = append(out.Fields, eb)
		}
	}
	return out, nil
}

func encodeNested(v Value) ([]byte, error) {
	r, err := toRLPValue(v)
	if err != nil {
		return nil, err
	}
	return rlp.EncodeToBytes(r)
}

func fromRLPValue(r rlpValue, expected TypeTag) (Value, error) {
	v := Value{Kind: TypeKind(r.Kind), Num: r.Num, Addr: r.Addr}
	switch v.Kind {
	case TStruct:
		var rt rlpTypeTag
		if err := rlp.DecodeBytes(r.StructType, &rt); err != nil {
			return v, err
		}
		st, err := fromRLPTypeTag(rt)
		if err != nil {
			return v, err
		}
		sv := &StructValue{Type: st}
		fieldTypes := expected.TypeParams // best-effort; field element types are recovered structurally below
		_ = fieldTypes
		for _, fb := range r.Fields {
			var fr rlpValue
			if err := rlp.DecodeBytes(fb, &fr); err != nil {
				return v, err
			}
			fv, err := fromRLPValue(fr, TypeTag{})
			if err != nil {
				return v, err
			}
			sv.Fields = append(sv.Fields, fv)
		}
		v.Struct = sv
	case TVector:
		elemType := TypeTag{}
		if expected.Kind == TVector && expected.Elem != nil {
			elemType = *expected.Elem
		}
		for _, fb := range r.Fields {
			var fr rlpValue
			if err := rlp.DecodeBytes(fb, &fr); err != nil {
				return v, err
			}
			fv, err := fromRLPValue(fr, elemType)
			if err != nil {
				return v, err
			}
			v.Elems = append(v.Elems, fv)
		}
	}
	return v, nil
}
