package core

import (
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/dfinance/dvm-sub000/address"
	"github.com/dfinance/dvm-sub000/internal/metrics"
)

// MemoryWatcher reports process-wide memory pressure; the VM driver
// consults it before every operation and drops its caches when pressure
// exceeds threshold (§4.9 "Memory-pressure handling"). A nil watcher
// disables the check entirely.
type MemoryWatcher interface {
	OverThreshold() bool
}

// VM is the process-wide execution engine: one instance serializes every
// publish against every execute through a single RWMutex (§4.9) —
// publish takes the write lock (modules mutate shared state and may
// invalidate the whole cache), execute takes only the read lock, so
// concurrent script executions proceed in parallel as long as no publish
// is in flight. This mirrors the teacher's LightVM/HeavyVM split in
// virtual_machine.go, generalized from a WASM contract runtime to a
// resource-bytecode one.
type VM struct {
	mu      sync.RWMutex
	view    StateView
	cache   *lru.Cache[ModuleID, *CompiledModule]
	natives *NativeRegistry
	watcher MemoryWatcher
}

// NewVM constructs a VM reading through view, dispatching natives via
// natives, and caching up to cacheSize decoded modules. watcher may be
// nil, disabling memory-pressure cache flushes.
func NewVM(view StateView, natives *NativeRegistry, cacheSize int, watcher MemoryWatcher) (*VM, error) {
	c, err := lru.New[ModuleID, *CompiledModule](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("core: vm: new module cache: %w", err)
	}
	return &VM{view: view, cache: c, natives: natives, watcher: watcher}, nil
}

// checkMemoryPressure flushes the module cache when the configured
// watcher reports pressure over threshold, the same coarse invalidation
// the core-address publish path uses (§4.9 "Memory-pressure handling").
// Called at the top of every Publish/Execute, before the operation's own
// work, under whichever lock that operation already holds.
func (vm *VM) checkMemoryPressure() {
	if vm.watcher != nil && vm.watcher.OverThreshold() {
		vm.cache.Purge()
		metrics.Global().RecordCacheFlush()
		logrus.Warn("memory pressure over threshold: module cache flushed")
	}
}

func (vm *VM) loadModule(id ModuleID) (*CompiledModule, error) {
	if m, ok := vm.cache.Get(id); ok {
		return m, nil
	}
	blob, ok, err := vm.view.GetCode(id)
	if err != nil {
		return nil, fmt.Errorf("core: vm: load module %s: %w", id, err)
	}
	if !ok {
		return nil, fmt.Errorf("core: vm: module %s not found", id)
	}
	m := &CompiledModule{}
	if err := m.UnmarshalBinary(blob); err != nil {
		return nil, fmt.Errorf("core: vm: decode module %s: %w", id, err)
	}
	vm.cache.Add(id, m)
	return m, nil
}

// Publish installs a verified module's bytecode under its own address.
// Only the module's own address, or the privileged core address, may
// publish or replace a module at that address (§4.9); a core-address
// publish also flushes the whole module cache, since the core
// address is the one allowed to change already-cached semantics out from
// under running sessions.
func (vm *VM) Publish(sender address.Address, mod *CompiledModule, gasBudget Gas) (ExecutionResult, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.checkMemoryPressure()
	metrics.Global().RecordPublish()

	if err := gasBudget.Validate(); err != nil {
		return ExecutionResult{Status: StatusDiscard, Err: err}, nil
	}
	selfID := mod.SelfID()
	if selfID.Addr != sender && !sender.IsCore() {
		return ExecutionResult{Status: StatusDiscard, Err: fmt.Errorf("core: vm: publish: sender %s may not publish under %s", sender.Hex(), selfID.Addr.Hex())}, nil
	}
	if err := Verify(mod); err != nil {
		return ExecutionResult{Status: StatusDiscard, Err: fmt.Errorf("core: vm: publish: verify: %w", err)}, nil
	}

	if err := CheckNotDuplicate(vm.view, selfID); err != nil && !sender.IsCore() {
		return ExecutionResult{Status: StatusDiscard, Err: err}, nil
	}

	blob, err := mod.MarshalBinary()
	if err != nil {
		return ExecutionResult{Status: StatusDiscard, Err: fmt.Errorf("core: vm: publish: encode: %w", err)}, nil
	}

	gas := NewGasMeter(gasBudget.MaxUnits)
	if err := gas.Consume(uint64(len(blob))); err != nil {
		metrics.Global().RecordOutOfGas()
		return ExecutionResult{Status: StatusDiscard, GasUsed: gasBudget.MaxUnits, Err: err}, nil
	}

	wc := NewWriteCache(vm.view)
	wc.SetResource(CodeAccessPath(selfID), blob)

	// A core-address publish (re)installing an existing module id is the
	// one case CheckNotDuplicate above deliberately skips: the caller's
	// intent is replacement, not collision. Flushing the whole cache here
	// — rather than evicting just this one id — is what makes the
	// replacement observable to every function already inlined from the
	// old module in a cached caller (design note "Cache invalidation on
	// privileged publish").
	if sender.IsCore() {
		vm.cache.Purge()
		metrics.Global().RecordCacheFlush()
		logrus.WithField("module", selfID.String()).Info("core-address publish: module cache flushed")
	}

	metrics.Global().RecordGasUsed(gas.Used())
	return ExecutionResult{Status: StatusKeep, GasUsed: gas.Used(), WriteSet: wc.WriteSet()}, nil
}

// Execute runs a compiled script to completion against the current state,
// returning the assembled result without committing it — the caller
// applies the returned WriteSet to persistent storage once it accepts the
// result. senders is the ordered list of signer addresses the caller
// authorizes the script with; the script's leading &signer parameters are
// consumed from this list, one per parameter, not from args (§3 "Compiled
// script"). blockHeight and timestamp seed a fresh state-view snapshot for
// this session alone (§4.9 step 1) when the VM's base view is a
// *ChainView; a plain test StateView ignores them.
func (vm *VM) Execute(senders []address.Address, script *CompiledScript, args []Value, gasBudget Gas, blockHeight, timestamp uint64) (ExecutionResult, error) {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	vm.checkMemoryPressure()
	metrics.Global().RecordExecute()

	if err := gasBudget.Validate(); err != nil {
		return ExecutionResult{Status: StatusDiscard, Err: err}, nil
	}
	signerArity := script.SignerArity()
	if signerArity > len(senders) {
		return ExecutionResult{Status: StatusDiscard, Err: fmt.Errorf("core: vm: execute: script requires %d signer(s), got %d", signerArity, len(senders))}, nil
	}
	if len(args) != len(script.Params)-signerArity {
		return ExecutionResult{Status: StatusDiscard, Err: fmt.Errorf("core: vm: execute: expected %d arguments, got %d", len(script.Params)-signerArity, len(args))}, nil
	}

	locals := make([]Value, 0, len(script.Params))
	for i := 0; i < signerArity; i++ {
		locals = append(locals, AddrValue(senders[i]))
	}
	locals = append(locals, args...)

	view := vm.view
	if cv, ok := vm.view.(*ChainView); ok {
		view = cv.WithSnapshot(blockHeight, timestamp)
	}

	gas := NewGasMeter(gasBudget.MaxUnits)
	wc := NewWriteCache(view)
	sess := &session{vm: vm, view: wc, gas: gas}

	_, err := sess.run(script.Code, locals, script.ModuleHandles)
	if err != nil {
		if abortErr, ok := err.(*AbortError); ok {
			metrics.Global().RecordAbort()
			metrics.Global().RecordGasUsed(gas.Used())
			return ExecutionResult{Status: StatusKeep, GasUsed: gas.Used(), Aborted: true, AbortCode: abortErr.Code}, nil
		}
		if _, ok := err.(*OutOfGasError); ok {
			metrics.Global().RecordOutOfGas()
			return ExecutionResult{Status: StatusDiscard, GasUsed: gasBudget.MaxUnits, Err: err}, nil
		}
		return ExecutionResult{Status: StatusDiscard, Err: err}, nil
	}

	metrics.Global().RecordGasUsed(gas.Used())
	return ExecutionResult{Status: StatusKeep, GasUsed: gas.Used(), WriteSet: wc.WriteSet(), Events: sess.events}, nil
}
