// Package core implements the compilation and execution pipelines: module
// identifiers and access paths, the structured type tag system, the
// compiled-unit representation, gas accounting, the VM driver, native
// dispatch, and result assembly. It is organized as a single flat package,
// the same way the teacher lays out its VM/ledger/contract subsystem.
package core

import (
	"crypto/sha256"
	"fmt"

	"github.com/dfinance/dvm-sub000/address"
)

// ModuleID uniquely names a module system-wide.
type ModuleID struct {
	Addr address.Address
	Name string
}

func (m ModuleID) String() string { return fmt.Sprintf("%s::%s", m.Addr.Hex(), m.Name) }

// AccessPath is the universal key into the state store.
type AccessPath struct {
	Addr address.Address
	Path []byte
}

func (p AccessPath) String() string { return fmt.Sprintf("%s/%x", p.Addr.Hex(), p.Path) }

const (
	codeTag     byte = 0x00
	resourceTag byte = 0x01
)

// CodeAccessPath deterministically derives the access path that stores a
// module's bytecode.
func CodeAccessPath(id ModuleID) AccessPath {
	return AccessPath{Addr: id.Addr, Path: append([]byte{codeTag}, []byte(id.Name)...)}
}

// ResourceAccessPath derives the access path for a resource of the given
// structured type owned by owner.
func ResourceAccessPath(owner address.Address, tag TypeTag) AccessPath {
	return AccessPath{Addr: owner, Path: append([]byte{resourceTag}, tag.CanonicalHash()...)}
}

// TypeKind enumerates the structured type tag's sum-type cases.
type TypeKind uint8

const (
	TBool TypeKind = iota
	TU8
	TU64
	TU128
	TAddress
	TSigner
	TVector
	TStruct
)

func (k TypeKind) String() string {
	switch k {
	case TBool:
		return "bool"
	case TU8:
		return "u8"
	case TU64:
		return "u64"
	case TU128:
		return "u128"
	case TAddress:
		return "address"
	case TSigner:
		return "signer"
	case TVector:
		return "vector"
	case TStruct:
		return "struct"
	default:
		return "unknown"
	}
}

// TypeTag is the canonical recursive description of a value's on-chain
// type. Equality is structural (Equal), not pointer identity.
type TypeTag struct {
	Kind TypeKind

	// Elem is populated only when Kind == TVector.
	Elem *TypeTag

	// Struct* fields are populated only when Kind == TStruct.
	StructAddr   address.Address
	StructModule string
	StructName   string
	TypeParams   []TypeTag
}

func Bool() TypeTag    { return TypeTag{Kind: TBool} }
func U8() TypeTag      { return TypeTag{Kind: TU8} }
func U64() TypeTag     { return TypeTag{Kind: TU64} }
func U128() TypeTag    { return TypeTag{Kind: TU128} }
func AddressT() TypeTag { return TypeTag{Kind: TAddress} }
func Signer() TypeTag  { return TypeTag{Kind: TSigner} }

func Vector(elem TypeTag) TypeTag { return TypeTag{Kind: TVector, Elem: &elem} }

func Struct(addr address.Address, module, name string, typeParams ...TypeTag) TypeTag {
	return TypeTag{Kind: TStruct, StructAddr: addr, StructModule: module, StructName: name, TypeParams: typeParams}
}

// Equal reports whether t and o describe structurally identical types.
func (t TypeTag) Equal(o TypeTag) bool {
	if t.Kind != o.Kind {
		return false
	}
	switch t.Kind {
	case TVector:
		if t.Elem == nil || o.Elem == nil {
			return t.Elem == o.Elem
		}
		return t.Elem.Equal(*o.Elem)
	case TStruct:
		if t.StructAddr != o.StructAddr || t.StructModule != o.StructModule || t.StructName != o.StructName {
			return false
		}
		if len(t.TypeParams) != len(o.TypeParams) {
			return false
		}
		for i := range t.TypeParams {
			if !t.TypeParams[i].Equal(o.TypeParams[i]) {
				return false
			}
		}
		return true
	default:
		return true
	}
}

func (t TypeTag) String() string {
	switch t.Kind {
	case TVector:
		return "vector<" + t.Elem.String() + ">"
	case TStruct:
		s := fmt.Sprintf("%s::%s::%s", t.StructAddr.Hex(), t.StructModule, t.StructName)
		if len(t.TypeParams) == 0 {
			return s
		}
		s += "<"
		for i, tp := range t.TypeParams {
			if i > 0 {
				s += ", "
			}
			s += tp.String()
		}
		return s + ">"
	default:
		return t.Kind.String()
	}
}

// CanonicalHash is the canonical hash-prefixed encoding used to derive a
// resource access path. It must be bit-exact and deterministic for equal
// type tags — and only for equal type tags (structural, not textual).
func (t TypeTag) CanonicalHash() []byte {
	h := sha256.New()
	t.writeCanonical(h)
	sum := h.Sum(nil)
	return sum[:]
}

func (t TypeTag) writeCanonical(h interface{ Write([]byte) (int, error) }) {
	h.Write([]byte{byte(t.Kind)})
	switch t.Kind {
	case TVector:
		if t.Elem != nil {
			t.Elem.writeCanonical(h)
		}
	case TStruct:
		h.Write(t.StructAddr[:])
		h.Write([]byte(t.StructModule))
		h.Write([]byte{0})
		h.Write([]byte(t.StructName))
		h.Write([]byte{0})
		for _, tp := range t.TypeParams {
			tp.writeCanonical(h)
		}
	}
}

// WalletID identifies a native-currency balance slot.
type WalletID struct {
	Addr    address.Address
	Ticker  string
}

// Gas is the (max units, unit price) pair a caller supplies with a request.
type Gas struct {
	MaxUnits  uint64
	UnitPrice uint64
}

// MaxGasUnitsCap bounds MaxUnits to prevent overflow when multiplied by
// UnitPrice (u64::MAX / 1000, per §3).
const MaxGasUnitsCap = ^uint64(0) / 1000

// Validate rejects a gas budget whose MaxUnits exceeds the implementation
// cap.
func (g Gas) Validate() error {
	if g.MaxUnits > MaxGasUnitsCap {
		return fmt.Errorf("gas: max_units %d exceeds cap %d", g.MaxUnits, MaxGasUnitsCap)
	}
	return nil
}
