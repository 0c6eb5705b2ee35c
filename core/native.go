package core

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"github.com/dfinance/dvm-sub000/address"
)

// NativeContext is the runtime environment a native function executes
// under: a read-only state view (natives never write state directly — any
// state change must flow back through the instruction-level MoveTo the
// calling function performs on the native's return value) and the calling
// session's gas meter, which the native must debit for its own cost.
type NativeContext struct {
	View StateView
	Gas  *GasMeter
}

// NativeFunc is a native function implementation: it receives its
// arguments already popped off the operand stack (in declared parameter
// order) and returns its declared return values in order.
type NativeFunc func(ctx *NativeContext, args []Value) ([]Value, error)

type nativeKey struct {
	Module ModuleID
	Name   string
}

// NativeRegistry is the process-wide (module id, function name) -> handler
// dispatch table. Registration is expected at process startup; lookup
// happens on every OpCallNative and must be safe for concurrent readers.
type NativeRegistry struct {
	mu    sync.RWMutex
	funcs map[nativeKey]NativeFunc
}

func NewNativeRegistry() *NativeRegistry {
	return &NativeRegistry{funcs: map[nativeKey]NativeFunc{}}
}

// Register installs fn for (mod, name), replacing any prior registration.
func (r *NativeRegistry) Register(mod ModuleID, name string, fn NativeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[nativeKey{mod, name}] = fn
}

// Lookup finds the handler for (mod, name).
func (r *NativeRegistry) Lookup(mod ModuleID, name string) (NativeFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[nativeKey{mod, name}]
	return fn, ok
}

// Price oracle native, grounded directly on
// _examples/original_source/src/vm/native/oracle.rs: a single get_price
// native keyed by a ticker-pair u64, reading an 8-byte little-endian price
// from a tagged access path under the core address. The original hashes
// the ticker pair with a Rust DefaultHasher; here xxhash (already the
// module's canonical non-cryptographic hash, used by preprocess for short
// hash literals) plays that role.
const (
	priceOracleTag  byte   = 255
	priceOracleCost uint64 = 929
)

// PriceOracleAccessPath derives the access path the oracle reads a price
// from for a given ticker-pair key.
func PriceOracleAccessPath(tickerPair uint64) AccessPath {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], tickerPair)
	h := xxhash.Sum64(buf[:])
	var hb [8]byte
	binary.LittleEndian.PutUint64(hb[:], h)
	return AccessPath{Addr: address.Core, Path: append([]byte{priceOracleTag}, hb[:]...)}
}

// PriceOracleGetPrice implements the Oracle module's get_price(u64): u64
// native: look up the price for the ticker pair and charge the fixed cost
// from the original cost table.
func PriceOracleGetPrice(ctx *NativeContext, args []Value) ([]Value, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("core: native get_price: expected 1 argument, got %d", len(args))
	}
	ap := PriceOracleAccessPath(args[0].Num)
	raw, ok, err := ctx.View.GetResource(ap)
	if err != nil {
		return nil, fmt.Errorf("core: native get_price: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("core: native get_price: price not found for ticker pair %d", args[0].Num)
	}
	if len(raw) != 8 {
		return nil, fmt.Errorf("core: native get_price: invalid price size %d, want 8", len(raw))
	}
	if err := ctx.Gas.Consume(priceOracleCost); err != nil {
		return nil, err
	}
	return []Value{U64Value(binary.LittleEndian.Uint64(raw))}, nil
}

// RegisterOracle wires PriceOracleGetPrice into reg under the given
// Oracle module id.
func RegisterOracle(reg *NativeRegistry, oracleModule ModuleID) {
	reg.Register(oracleModule, "get_price", PriceOracleGetPrice)
}

// nativeBalanceSource is implemented by a NativeContext's view when it can
// resolve a wallet id's balance through the native-balance resolver
// (§4.7). ChainView implements it; MemoryState-backed tests that don't
// care about wallet balances simply don't.
type nativeBalanceSource interface {
	NativeBalance(id WalletID) (uint64, bool, error)
}

const nativeBalanceCost uint64 = 500

// WalletBalanceOf implements the Wallet module's balance_of(address,
// ticker): u128 native: resolve the wallet id's balance through the
// native-balance resolver and push it, or abort-equivalent-error if the
// underlying view has none configured.
func WalletBalanceOf(ctx *NativeContext, args []Value) ([]Value, error) {
	if len(args) != 2 {
		return nil, fmt.Errorf("core: native balance_of: expected 2 arguments, got %d", len(args))
	}
	addrArg, tickerArg := args[0], args[1]
	if addrArg.Kind != TAddress {
		return nil, fmt.Errorf("core: native balance_of: argument 0 must be address, got %s", addrArg.Kind)
	}
	ticker, err := bytesToASCII(tickerArg)
	if err != nil {
		return nil, fmt.Errorf("core: native balance_of: %w", err)
	}
	view := ctx.View
	if wc, isCache := view.(*WriteCache); isCache {
		view = wc.base
	}
	src, ok := view.(nativeBalanceSource)
	if !ok {
		return nil, fmt.Errorf("core: native balance_of: view has no native-balance resolver configured")
	}
	bal, found, err := src.NativeBalance(WalletID{Addr: addrArg.Addr, Ticker: ticker})
	if err != nil {
		return nil, fmt.Errorf("core: native balance_of: %w", err)
	}
	if err := ctx.Gas.Consume(nativeBalanceCost); err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("core: native balance_of: no balance for wallet %s/%s", addrArg.Addr.Hex(), ticker)
	}
	return []Value{U128Value(bal)}, nil
}

// bytesToASCII decodes a vector<u8> argument as an ASCII ticker string.
func bytesToASCII(v Value) (string, error) {
	if v.Kind != TVector {
		return "", fmt.Errorf("expected vector<u8> argument, got %s", v.Kind)
	}
	b := make([]byte, len(v.Elems))
	for i, e := range v.Elems {
		if e.Kind != TU8 {
			return "", fmt.Errorf("vector element %d is not u8", i)
		}
		b[i] = byte(e.Num)
	}
	return string(b), nil
}

// RegisterWallet wires WalletBalanceOf into reg under the given Wallet
// module id.
func RegisterWallet(reg *NativeRegistry, walletModule ModuleID) {
	reg.Register(walletModule, "balance_of", WalletBalanceOf)
}
