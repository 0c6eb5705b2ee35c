package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dfinance/dvm-sub000/address"
)

// doubleWasm is a hand-assembled minimal Wasm binary: it exports "memory"
// and a "_start" function that loads a u64 from offset 0, doubles it, and
// stores the result at offset 8 -- the calling convention AsNative's
// generated NativeFunc uses to exchange its argument and result.
var doubleWasm = []byte{
	0x00, 0x61, 0x73, 0x6D, // magic "\0asm"
	0x01, 0x00, 0x00, 0x00, // version 1

	// type section: one func type, () -> ()
	0x01, 0x04, 0x01, 0x60, 0x00, 0x00,

	// function section: one function, type index 0
	0x03, 0x02, 0x01, 0x00,

	// memory section: one memory, min 1 page
	0x05, 0x03, 0x01, 0x00, 0x01,

	// export section: "memory" (mem 0), "_start" (func 0)
	0x07, 0x13, 0x02,
	0x06, 'm', 'e', 'm', 'o', 'r', 'y', 0x02, 0x00,
	0x06, '_', 's', 't', 'a', 'r', 't', 0x00, 0x00,

	// code section: one body
	0x0A, 0x11, 0x01, 0x0F, 0x00,
	0x41, 0x00, // i32.const 0      (store address)
	0x41, 0x00, // i32.const 0      (load address)
	0x29, 0x03, 0x00, // i64.load align=3 offset=0
	0x42, 0x02, // i64.const 2
	0x7E,       // i64.mul
	0x37, 0x03, 0x08, // i64.store align=3 offset=8
	0x0B, // end
}

func TestWasmNativeDoublesU64Argument(t *testing.T) {
	mod, err := CompileWasmModule(doubleWasm)
	require.NoError(t, err)

	reg := NewNativeRegistry()
	heavyModule := ModuleID{Addr: address.Core, Name: "Heavy"}
	RegisterWasmNative(reg, heavyModule, "double", mod, 42)

	fn, ok := reg.Lookup(heavyModule, "double")
	require.True(t, ok)

	gas := NewGasMeter(1_000_000)
	ctx := &NativeContext{View: NewMemoryState(), Gas: gas}

	out, err := fn(ctx, []Value{U64Value(21)})
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, TU64, out[0].Kind)
	require.Equal(t, uint64(42), out[0].Num)
	require.Greater(t, gas.Used(), uint64(0))
}

func TestWasmNativeRejectsWrongArgumentKind(t *testing.T) {
	mod, err := CompileWasmModule(doubleWasm)
	require.NoError(t, err)

	native := mod.AsNative(1)
	gas := NewGasMeter(1_000_000)
	ctx := &NativeContext{View: NewMemoryState(), Gas: gas}

	_, err = native(ctx, []Value{BoolValue(true)})
	require.Error(t, err)
}
