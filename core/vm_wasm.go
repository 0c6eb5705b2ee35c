package core

import (
	"errors"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/dfinance/dvm-sub000/address"
)

// WasmModule is a compiled, reusable Wasm binary bound to a single
// host-import surface: one native function crossing into a heavier
// execution tier than the bytecode interpreter provides directly (§4.10
// "heavy" natives), the same role the teacher's HeavyVM/wasmer.Engine
// pairing plays for its own contract bytecode, generalized here from a
// contract-call entry point to a single-u64-in/u64-out native function
// body.
//
// A WasmModule is safe for concurrent use: wasmer.Module is immutable
// once compiled, and AsNative instantiates a fresh wasmer.Instance (and
// therefore fresh linear memory) on every call.
type WasmModule struct {
	engine *wasmer.Engine
	store  *wasmer.Store
	module *wasmer.Module
}

// CompileWasmModule compiles a Wasm binary once, ahead of any call. code
// must export a "memory" and a "_start" function taking no arguments and
// returning none; its input and output are exchanged through linear
// memory offsets 0 (8-byte little-endian u64 argument) and 8 (8-byte
// little-endian u64 result), the calling convention AsNative's generated
// native function uses.
func CompileWasmModule(code []byte) (*WasmModule, error) {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, fmt.Errorf("core: vm_wasm: compile module: %w", err)
	}
	return &WasmModule{engine: engine, store: store, module: mod}, nil
}

// AsNative adapts w into a NativeFunc taking exactly one u64 argument and
// returning exactly one u64 result, billing gasCost against the calling
// session's gas meter before instantiation and again for every
// host_consume_gas import call the module body makes — the same
// two-tier accounting (a flat dispatch cost plus metered host calls) the
// teacher's HeavyVM.Execute performs via hostConsumeGas.
func (w *WasmModule) AsNative(gasCost uint64) NativeFunc {
	return func(ctx *NativeContext, args []Value) ([]Value, error) {
		if len(args) != 1 || args[0].Kind != TU64 {
			return nil, fmt.Errorf("core: vm_wasm: native expects exactly one u64 argument")
		}
		if err := ctx.Gas.Consume(gasCost); err != nil {
			return nil, err
		}

		imports, hctx := registerWasmHost(w.store, ctx)
		instance, err := wasmer.NewInstance(w.module, imports)
		if err != nil {
			return nil, fmt.Errorf("core: vm_wasm: instantiate: %w", err)
		}
		defer instance.Close()

		mem, err := instance.Exports.GetMemory("memory")
		if err != nil {
			return nil, errors.New("core: vm_wasm: module exports no \"memory\"")
		}
		hctx.mem = mem
		putU64(mem.Data(), 0, args[0].Num)

		start, err := instance.Exports.GetFunction("_start")
		if err != nil {
			return nil, errors.New("core: vm_wasm: module exports no \"_start\"")
		}
		if _, err := start(); err != nil {
			return nil, fmt.Errorf("core: vm_wasm: execute: %w", err)
		}

		result := getU64(mem.Data(), 8)
		return []Value{U64Value(result)}, nil
	}
}

// RegisterWasmNative installs a compiled Wasm module as the native
// function (mod, name), the same registration shape RegisterOracle and
// RegisterWallet use for their built-in natives.
func RegisterWasmNative(reg *NativeRegistry, mod ModuleID, name string, w *WasmModule, gasCost uint64) {
	reg.Register(mod, name, w.AsNative(gasCost))
}

func putU64(mem []byte, off int, v uint64) {
	for i := 0; i < 8; i++ {
		mem[off+i] = byte(v >> (8 * i))
	}
}

func getU64(mem []byte, off int) uint64 {
	var v uint64
	for i := 0; i < 8; i++ {
		v |= uint64(mem[off+i]) << (8 * i)
	}
	return v
}

// wasmHostCtx carries the state the host-import closures below need:
// the calling native's read-only view and gas meter, plus the instance's
// linear memory, bound after instantiation (mirroring the teacher's
// hostCtx, trimmed to this module's read-only native contract — a native
// function never writes state directly, see NativeContext's doc comment).
type wasmHostCtx struct {
	mem *wasmer.Memory
	ctx *NativeContext
}

// registerWasmHost builds the "env" import namespace a compiled native
// body links against: host_consume_gas for metered internal work, and
// host_read for resource lookups against the calling session's state
// view, keyed by the core address the way the price-oracle native already
// is (§4.10). Grounded on the teacher's registerHost, trimmed to the two
// imports a read-only native needs (no host_write or host_log: a native
// function returns its result through AsNative's return-value memory
// slot, not through a state write of its own).
func registerWasmHost(store *wasmer.Store, ctx *NativeContext) (*wasmer.ImportObject, *wasmHostCtx) {
	h := &wasmHostCtx{ctx: ctx}
	imports := wasmer.NewImportObject()

	hostConsumeGas := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			units := uint64(args[0].I32())
			if err := h.ctx.Gas.Consume(units); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	hostRead := wasmer.NewFunction(
		store,
		wasmer.NewFunctionType(
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32), wasmer.ValueKind(wasmer.I32)),
			wasmer.NewValueTypes(wasmer.ValueKind(wasmer.I32)),
		),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			kPtr, kLen, dPtr := args[0].I32(), args[1].I32(), args[2].I32()
			mem := h.mem.Data()
			key := append([]byte(nil), mem[kPtr:kPtr+kLen]...)
			val, ok, err := h.ctx.View.GetResource(AccessPath{Addr: address.Core, Path: key})
			if err != nil || !ok {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			copy(mem[dPtr:], val)
			return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"host_consume_gas": hostConsumeGas,
		"host_read":        hostRead,
	})
	return imports, h
}
