package main

import (
	"encoding/hex"
	"fmt"

	"github.com/dfinance/dvm-sub000/core"
)

// argSpec is the JSON shape a caller supplies for one non-signer script
// argument: a type tag name plus the hex encoding of that argument's raw
// wire bytes (§6 "Numeric encodings": primitives little-endian of the
// declared width, address arguments the canonical fixed-width bytes,
// vector<u8> arguments the raw bytes themselves) -- the same
// representation a gRPC/HTTP transport would carry, which this CLI
// stands in for (§1 leaves the real RPC transport out of scope).
// Vectors and struct arguments beyond vector<u8> aren't accepted here --
// the compiled scripts this CLI drives (§3 "Compiled script") take only
// plain scalar, address, and vector<u8> parameters; a script needing a
// resource argument constructs it itself via move_to/pack.
type argSpec struct {
	Type string `json:"type"`
	Hex  string `json:"hex"`
}

// argKinds maps the JSON "type" string to the structured TypeKind
// DecodeWireArgument validates the wire bytes against.
var argKinds = map[string]core.TypeKind{
	"bool":       core.TBool,
	"u8":         core.TU8,
	"u64":        core.TU64,
	"u128":       core.TU128,
	"address":    core.TAddress,
	"vector<u8>": core.TVector,
}

func (a argSpec) toValue() (core.Value, error) {
	kind, ok := argKinds[a.Type]
	if !ok {
		return core.Value{}, fmt.Errorf("cmd/dvmd: unsupported argument type %q", a.Type)
	}
	raw, err := hex.DecodeString(a.Hex)
	if err != nil {
		return core.Value{}, fmt.Errorf("cmd/dvmd: argument type %q: decode hex: %w", a.Type, err)
	}
	return core.DecodeWireArgument(kind, raw)
}

func toValues(specs []argSpec) ([]core.Value, error) {
	vals := make([]core.Value, 0, len(specs))
	for i, s := range specs {
		v, err := s.toValue()
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}
