package core

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/dfinance/dvm-sub000/address"
)

const storeModuleSrc = `
module 0xA1.Store {
    resource struct U64Store {
        value: u64,
    }

    public fun store_u64(account: &signer, value: u64) {
        move_to<U64Store>(account, U64Store{value: value});
    }
}
`

const storeScriptSrc = `
script {
    use 0xA1.Store;

    fun main(account: &signer, value: u64) {
        Store.store_u64(account, value);
    }
}
`

const existsScriptSrc = `
script {
    use 0xA1.Store;

    fun main(addr: address) {
        if (exists<Store.U64Store>(addr)) {
            abort 1;
        } else {
            abort 0;
        };
    }
}
`

func unlimited() *rate.Limiter { return rate.NewLimiter(rate.Inf, 1) }

// TestPipelinePublishAndExecute exercises the full compile -> publish ->
// commit -> compile -> execute -> commit chain a real caller drives: the
// compiler driver never commits anything itself (§5), so the test plays
// the caller's part with MemoryState.ApplyWriteSet between steps, the same
// way a node applies an accepted ExecutionResult to its own store.
func TestPipelinePublishAndExecute(t *testing.T) {
	ctx := context.Background()
	view := NewMemoryState()
	natives := NewNativeRegistry()
	vm, err := NewVM(view, natives, 8, nil)
	require.NoError(t, err)

	moduleAddr, err := address.ParseHex("0xA1")
	require.NoError(t, err)
	senderAddr, err := address.ParseHex("0xB2")
	require.NoError(t, err)

	modResult, err := CompileUnit(ctx, view, nil, "", storeModuleSrc, unlimited())
	require.NoError(t, err)
	require.NotNil(t, modResult.Module)
	require.Equal(t, ModuleID{Addr: moduleAddr, Name: "Store"}, modResult.Module.SelfID())

	pubResult, err := vm.Publish(moduleAddr, modResult.Module, Gas{MaxUnits: 100000, UnitPrice: 1})
	require.NoError(t, err)
	require.Equal(t, StatusKeep, pubResult.Status)
	require.NoError(t, pubResult.Err)
	require.Len(t, pubResult.WriteSet, 1)
	view.ApplyWriteSet(pubResult.WriteSet)

	blob, ok, err := view.GetCode(ModuleID{Addr: moduleAddr, Name: "Store"})
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, blob)

	scriptResult, err := CompileUnit(ctx, view, nil, "", storeScriptSrc, unlimited())
	require.NoError(t, err)
	require.NotNil(t, scriptResult.Script)
	require.Equal(t, 1, scriptResult.Script.SignerArity())

	execResult, err := vm.Execute([]address.Address{senderAddr}, scriptResult.Script, []Value{U64Value(42)}, Gas{MaxUnits: 100000, UnitPrice: 1}, 10, 1000)
	require.NoError(t, err)
	require.NoError(t, execResult.Err)
	require.Equal(t, StatusKeep, execResult.Status)
	require.False(t, execResult.Aborted)
	require.Greater(t, execResult.GasUsed, uint64(0))
	require.Len(t, execResult.WriteSet, 1)

	storeTag := Struct(moduleAddr, "Store", "U64Store")
	wantPath := ResourceAccessPath(senderAddr, storeTag)
	op := execResult.WriteSet[0]
	require.Equal(t, wantPath, op.Path)
	require.False(t, op.Deleted)

	decoded, err := DecodeValue(op.Value, storeTag)
	require.NoError(t, err)
	require.Equal(t, TStruct, decoded.Kind)
	require.Len(t, decoded.Struct.Fields, 1)
	require.Equal(t, uint64(42), decoded.Struct.Fields[0].Num)

	view.ApplyWriteSet(execResult.WriteSet)

	// A second store_u64 for the same sender must fail: move_to requires the
	// resource not already exist at that address (interp.go's OpMoveTo
	// check), surfacing as a Discard-shaped result with Err set.
	reExec, err := vm.Execute([]address.Address{senderAddr}, scriptResult.Script, []Value{U64Value(7)}, Gas{MaxUnits: 100000, UnitPrice: 1}, 10, 1000)
	require.NoError(t, err)
	require.Equal(t, StatusDiscard, reExec.Status)
	require.Error(t, reExec.Err)

	existsResult, err := CompileUnit(ctx, view, nil, "", existsScriptSrc, unlimited())
	require.NoError(t, err)

	existsExec, err := vm.Execute(nil, existsResult.Script, []Value{AddrValue(senderAddr)}, Gas{MaxUnits: 100000, UnitPrice: 1}, 10, 1000)
	require.NoError(t, err)
	require.Equal(t, StatusKeep, existsExec.Status)
	require.True(t, existsExec.Aborted)
	require.Equal(t, uint64(1), existsExec.AbortCode)

	otherAddr, err := address.ParseHex("0xC3")
	require.NoError(t, err)
	absentExec, err := vm.Execute(nil, existsResult.Script, []Value{AddrValue(otherAddr)}, Gas{MaxUnits: 100000, UnitPrice: 1}, 10, 1000)
	require.NoError(t, err)
	require.True(t, absentExec.Aborted)
	require.Equal(t, uint64(0), absentExec.AbortCode)
}

// TestPipelinePublishWrongSenderDiscarded covers §4.9's publish precondition:
// only the module's own address or the privileged core address may publish
// under it.
func TestPipelinePublishWrongSenderDiscarded(t *testing.T) {
	ctx := context.Background()
	view := NewMemoryState()
	natives := NewNativeRegistry()
	vm, err := NewVM(view, natives, 8, nil)
	require.NoError(t, err)

	modResult, err := CompileUnit(ctx, view, nil, "", storeModuleSrc, unlimited())
	require.NoError(t, err)

	impostor, err := address.ParseHex("0xFF")
	require.NoError(t, err)
	result, err := vm.Publish(impostor, modResult.Module, Gas{MaxUnits: 1000, UnitPrice: 1})
	require.NoError(t, err)
	require.Equal(t, StatusDiscard, result.Status)
	require.Error(t, result.Err)
}

// TestPipelineExecuteMissingSignerDiscarded covers the case where the
// caller supplies fewer signer addresses than the script's leading
// &signer parameters require.
func TestPipelineExecuteMissingSignerDiscarded(t *testing.T) {
	ctx := context.Background()
	view := NewMemoryState()
	natives := NewNativeRegistry()
	vm, err := NewVM(view, natives, 8, nil)
	require.NoError(t, err)

	moduleAddr, err := address.ParseHex("0xA1")
	require.NoError(t, err)
	modResult, err := CompileUnit(ctx, view, nil, "", storeModuleSrc, unlimited())
	require.NoError(t, err)
	pubResult, err := vm.Publish(moduleAddr, modResult.Module, Gas{MaxUnits: 100000, UnitPrice: 1})
	require.NoError(t, err)
	view.ApplyWriteSet(pubResult.WriteSet)

	scriptResult, err := CompileUnit(ctx, view, nil, "", storeScriptSrc, unlimited())
	require.NoError(t, err)

	result, err := vm.Execute(nil, scriptResult.Script, []Value{U64Value(1)}, Gas{MaxUnits: 1000, UnitPrice: 1}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, StatusDiscard, result.Status)
	require.Error(t, result.Err)
}
