package core

import (
	"encoding/binary"
	"fmt"

	"github.com/dfinance/dvm-sub000/address"
)

// DecodeWireArgument decodes one execute-script argument from its §6 wire
// representation: primitives are little-endian of the declared width,
// address arguments are the canonical fixed-width bytes, and vector<u8>
// arguments are the raw bytes themselves. Every fixed-width kind rejects a
// mismatched length with the exact message a caller surfaces to the
// caller as status invalid-argument (§7 "Malformed input", §8 scenario 4:
// a u64 argument encoded in 4 bytes must fail with "Invalid u64 argument
// length. Expected 8 byte.").
func DecodeWireArgument(kind TypeKind, raw []byte) (Value, error) {
	switch kind {
	case TBool:
		if len(raw) != 1 {
			return Value{}, fmt.Errorf("Invalid bool argument length. Expected 1 byte.")
		}
		return BoolValue(raw[0] != 0), nil
	case TU8:
		if len(raw) != 1 {
			return Value{}, fmt.Errorf("Invalid u8 argument length. Expected 1 byte.")
		}
		return U8Value(raw[0]), nil
	case TU64:
		if len(raw) != 8 {
			return Value{}, fmt.Errorf("Invalid u64 argument length. Expected 8 byte.")
		}
		return U64Value(binary.LittleEndian.Uint64(raw)), nil
	case TU128:
		if len(raw) != 16 {
			return Value{}, fmt.Errorf("Invalid u128 argument length. Expected 16 byte.")
		}
		// Truncated to uint64, matching Value.Num's representation (value.go).
		return U128Value(binary.LittleEndian.Uint64(raw[:8])), nil
	case TAddress:
		if len(raw) != address.Size {
			return Value{}, fmt.Errorf("Invalid address argument length. Expected %d byte.", address.Size)
		}
		a, err := address.FromBytes(raw)
		if err != nil {
			return Value{}, err
		}
		return AddrValue(a), nil
	case TVector:
		elems := make([]Value, len(raw))
		for i, b := range raw {
			elems[i] = U8Value(b)
		}
		return Value{Kind: TVector, Elems: elems}, nil
	default:
		return Value{}, fmt.Errorf("core: wireargs: unsupported argument kind %s", kind)
	}
}
