package core

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/dfinance/dvm-sub000/address"
)

// StateView is the read-only view of chain state the VM and dependency
// loader see: code lookup by module id, and resource lookup by access
// path. A concrete implementation is usually backed by a remote data
// source (see ChainView below); tests use MemoryState directly.
type StateView interface {
	GetCode(id ModuleID) ([]byte, bool, error)
	GetResource(ap AccessPath) ([]byte, bool, error)
}

// SyntheticResourceView is implemented by a StateView that can resolve
// certain structured types directly against a synthetic layer rather than
// the opaque access-path hash (§4.7: block height, current timestamp,
// oracle price, currency info). It is a distinct interface — not folded
// into GetResource — because the synthetic dispatch needs the structured
// TypeTag the interpreter still holds at the point of a borrow_global /
// exists / move_from, before that tag is flattened into an AccessPath's
// opaque hash bytes. handled reports whether tag names a synthetic
// resource at all (a struct under one of the four well-known core module
// names below); when handled is false the caller falls back to the
// ordinary AccessPath lookup. This is the "tagged-variant dispatch on the
// structured type, not stringly-typed branching on module/name pairs in a
// single procedure" composition design note calls for.
type SyntheticResourceView interface {
	GetSyntheticResource(addr address.Address, tag TypeTag) (data []byte, handled, found bool, err error)
}

// Well-known core module names recognized by the synthetic resource
// layer. A read at the core address of one of the four module/resource
// pairs below (Block::Height, Time::Now, Oracle::Price, Currency::Info)
// never reaches the remote data source passthrough; other structs under
// these module names do.
const (
	blockModule    = "Block"
	blockHeightRes = "Height"
	timeModule     = "Time"
	timeNowRes     = "Now"
	oracleModule   = "Oracle"
	oraclePriceRes = "Price"
	currencyModule = "Currency"
	currencyInfoRes = "Info"
	// xfiTicker is the special top-level ticker name for the native
	// currency, used when an oracle/currency-info type parameter names
	// the XFI module directly rather than a cross-chain currency struct.
	xfiTicker = "XFI"
)

// ErrSyntheticArity is returned when a synthetic resource type is
// recognized by name but carries the wrong number of type parameters
// (oracle price needs exactly two, currency info exactly one) — reported
// to the caller as an internal-type error per §4.7.
type ErrSyntheticArity struct {
	Module   string
	Resource string
	Want     int
	Got      int
}

func (e *ErrSyntheticArity) Error() string {
	return fmt.Sprintf("core: stateview: %s::%s expects %d type parameter(s), got %d", e.Module, e.Resource, e.Want, e.Got)
}

// currencyTicker extracts the ticker name a currency-shaped type
// parameter names: the XFI module name itself when the type parameter is
// the bare XFI struct, otherwise the struct's declaring module name (the
// convention every non-native currency type tag follows: a zero-field
// marker struct named after its ticker, e.g. 0x1::USD::T).
func currencyTicker(t TypeTag) (string, error) {
	if t.Kind != TStruct {
		return "", fmt.Errorf("core: stateview: currency type parameter must be a struct tag, got %s", t.Kind)
	}
	if t.StructModule == xfiTicker {
		return xfiTicker, nil
	}
	return t.StructModule, nil
}

// MemoryState is a flat in-memory StateView, safe for concurrent use. It
// is both the reference StateView implementation for tests and the base
// layer of WriteCache below.
type MemoryState struct {
	mu        sync.RWMutex
	code      map[ModuleID][]byte
	resources map[string][]byte // keyed by AccessPath.String()
}

func NewMemoryState() *MemoryState {
	return &MemoryState{code: map[ModuleID][]byte{}, resources: map[string][]byte{}}
}

func (m *MemoryState) GetCode(id ModuleID) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.code[id]
	return b, ok, nil
}

func (m *MemoryState) GetResource(ap AccessPath) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.resources[ap.String()]
	return b, ok, nil
}

// PutCode installs a module's bytecode blob, as a publish would.
func (m *MemoryState) PutCode(id ModuleID, blob []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.code[id] = blob
}

// PutResource installs a resource blob at an access path, as a committed
// write-set apply would.
func (m *MemoryState) PutResource(ap AccessPath, blob []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resources[ap.String()] = blob
}

// DeleteResource removes a resource blob, as a move_from commit would.
func (m *MemoryState) DeleteResource(ap AccessPath) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.resources, ap.String())
}

// ApplyWriteSet commits a successful execution's WriteSet to m. This is
// the caller-side half of §5's "the VM core never commits writes
// autonomously": the node applies a returned WriteSet to its own
// persistent store once it accepts the result. MemoryState's version of
// that persistent store is this in-memory map, used by the harness and
// by every in-process test that chains a publish into a later execute.
func (m *MemoryState) ApplyWriteSet(ws WriteSet) {
	for _, op := range ws {
		if op.Deleted {
			m.DeleteResource(op.Path)
			continue
		}
		m.mu.Lock()
		if op.Path.Path != nil && len(op.Path.Path) > 0 && op.Path.Path[0] == codeTag {
			// Code writes (from Publish) piggyback on the resource
			// write-set entry shape (§4.9 step 5); decode the module id
			// back out of the access path so GetCode can serve it.
			name := string(op.Path.Path[1:])
			m.code[ModuleID{Addr: op.Path.Addr, Name: name}] = op.Value
			m.mu.Unlock()
			continue
		}
		m.mu.Unlock()
		m.PutResource(op.Path, op.Value)
	}
}

// Export returns copies of m's code and resource maps, keyed the same
// way GetCode/GetResource look them up. It exists for callers — the
// `dvmd` CLI in particular — that need to persist a MemoryState across
// process invocations, something the in-process test harness never
// needs since it lives for one test function's duration.
func (m *MemoryState) Export() (code map[ModuleID][]byte, resources map[string][]byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	code = make(map[ModuleID][]byte, len(m.code))
	for k, v := range m.code {
		code[k] = append([]byte(nil), v...)
	}
	resources = make(map[string][]byte, len(m.resources))
	for k, v := range m.resources {
		resources[k] = append([]byte(nil), v...)
	}
	return code, resources
}

// Import installs previously Export-ed maps into m (a caller restoring a
// persisted snapshot into a fresh MemoryState at process start). Entries
// already present under other keys are kept; an imported entry overwrites
// one with the same key.
func (m *MemoryState) Import(code map[ModuleID][]byte, resources map[string][]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range code {
		m.code[k] = v
	}
	for k, v := range resources {
		m.resources[k] = v
	}
}

// WriteCache layers an in-flight, uncommitted write set over a base
// StateView: reads first consult pending writes, then fall through to
// base. Nothing is visible to other sessions until the caller applies the
// accumulated WriteSet to the base view after a successful execution —
// this is what keeps one session's speculative writes from leaking into
// another's reads while both run under the VM's read lock (§4.9).
type WriteCache struct {
	base      StateView
	writes    map[string]writeEntry
	resources map[string]AccessPath // ap.String() -> ap, so Writes() can reconstruct paths
}

type writeEntry struct {
	deleted bool
	value   []byte
}

func NewWriteCache(base StateView) *WriteCache {
	return &WriteCache{base: base, writes: map[string]writeEntry{}, resources: map[string]AccessPath{}}
}

func (w *WriteCache) GetCode(id ModuleID) ([]byte, bool, error) { return w.base.GetCode(id) }

// GetSyntheticResource delegates to the base view's synthetic layer when
// it has one. Synthetic resources are read-only derivations (block
// height, timestamp, oracle price, currency info), so pending writes
// never shadow them — nothing in this VM writes to a synthetic resource.
func (w *WriteCache) GetSyntheticResource(addr address.Address, tag TypeTag) ([]byte, bool, bool, error) {
	if sv, ok := w.base.(SyntheticResourceView); ok {
		return sv.GetSyntheticResource(addr, tag)
	}
	return nil, false, false, nil
}

func (w *WriteCache) GetResource(ap AccessPath) ([]byte, bool, error) {
	key := ap.String()
	if e, ok := w.writes[key]; ok {
		if e.deleted {
			return nil, false, nil
		}
		return e.value, true, nil
	}
	return w.base.GetResource(ap)
}

// SetResource records a pending write, overriding any earlier pending
// write to the same path.
func (w *WriteCache) SetResource(ap AccessPath, value []byte) {
	w.writes[ap.String()] = writeEntry{value: value}
	w.resources[ap.String()] = ap
}

// DeleteResource records a pending deletion.
func (w *WriteCache) DeleteResource(ap AccessPath) {
	w.writes[ap.String()] = writeEntry{deleted: true}
	w.resources[ap.String()] = ap
}

// WriteSet materializes the accumulated pending writes as an ordered,
// deduplicated WriteSet, one entry per distinct access path, in path-string
// order — deterministic regardless of write order during execution.
func (w *WriteCache) WriteSet() WriteSet {
	ops := make([]WriteOp, 0, len(w.writes))
	for key, e := range w.writes {
		ap := w.resources[key]
		if e.deleted {
			ops = append(ops, WriteOp{Path: ap, Deleted: true})
		} else {
			ops = append(ops, WriteOp{Path: ap, Value: e.value})
		}
	}
	return sortedWriteSet(ops)
}

// DataSource is the external data-source contract the core consumes
// (§6): the five remote lookups a blockchain-like state store exposes.
// Every method's bool return distinguishes "no data" from "value", the
// third case — "bad request" — is a non-nil error, and a transport
// failure is any other error a concrete implementation wraps with
// context. ChainView wraps each such error with the lookup it came from
// and returns it; it does not retry and does not tell a bad request apart
// from a transport failure.
type DataSource interface {
	GetModule(id ModuleID) ([]byte, bool, error)
	GetResource(ap AccessPath) ([]byte, bool, error)
	GetOraclePrice(currency1, currency2 string) (uint64, bool, error)
	GetNativeBalance(addr address.Address, ticker string) (uint64, bool, error)
	GetCurrencyInfo(ticker string) ([]byte, bool, error)
}

// ChainView composes the state read surface the VM driver opens a
// session against (§4.7): a blocking passthrough to a remote DataSource
// for code and ordinary resources, layered under four synthetic resolvers
// for the well-known core resources a script may read without any
// corresponding on-chain publish — block height and current timestamp
// (captured once, at construction, so every read within the session's
// lifetime observes the same snapshot per §5 "Ordering"), oracle price,
// and currency info. Composition follows design note "State view
// composition": each layer is a distinct dispatch arm on the structured
// type, not a single procedure branching on module/name strings.
type ChainView struct {
	base        DataSource
	blockHeight uint64
	timestamp   uint64
}

// NewChainView opens a state view snapshot at the given block height and
// timestamp, as the VM driver does once per session (§4.9 step 1 of
// execute-script: "open a session with a fresh state-view carrying
// (timestamp, block)").
func NewChainView(base DataSource, blockHeight, timestamp uint64) *ChainView {
	return &ChainView{base: base, blockHeight: blockHeight, timestamp: timestamp}
}

// WithSnapshot returns a new ChainView sharing this view's DataSource but
// carrying a fresh (blockHeight, timestamp) snapshot — what the VM driver
// calls once per execute-script session (§4.9 step 1) so each session
// observes its own consistent height/time without the block/time pair
// becoming process-wide VM state.
func (c *ChainView) WithSnapshot(blockHeight, timestamp uint64) *ChainView {
	return NewChainView(c.base, blockHeight, timestamp)
}

func (c *ChainView) GetCode(id ModuleID) ([]byte, bool, error) {
	blob, ok, err := c.base.GetModule(id)
	if err != nil {
		return nil, false, fmt.Errorf("core: stateview: get module %s: %w", id, err)
	}
	return blob, ok, nil
}

func (c *ChainView) GetResource(ap AccessPath) ([]byte, bool, error) {
	blob, ok, err := c.base.GetResource(ap)
	if err != nil {
		return nil, false, fmt.Errorf("core: stateview: get resource %s: %w", ap, err)
	}
	return blob, ok, nil
}

// GetSyntheticResource implements SyntheticResourceView: a struct tag
// owned by the core address under one of the four well-known module
// names is resolved here instead of falling through to the remote
// data-source passthrough. Any other tag (including the same module
// names owned by a non-core address) is reported unhandled.
func (c *ChainView) GetSyntheticResource(addr address.Address, tag TypeTag) ([]byte, bool, bool, error) {
	if tag.Kind != TStruct || !addr.IsCore() {
		return nil, false, false, nil
	}
	switch tag.StructModule {
	case blockModule:
		if tag.StructName != blockHeightRes {
			return nil, false, false, nil
		}
		if len(tag.TypeParams) != 0 {
			return nil, true, false, &ErrSyntheticArity{Module: blockModule, Resource: blockHeightRes, Want: 0, Got: len(tag.TypeParams)}
		}
		return le8(c.blockHeight), true, true, nil

	case timeModule:
		if tag.StructName != timeNowRes {
			return nil, false, false, nil
		}
		if len(tag.TypeParams) != 0 {
			return nil, true, false, &ErrSyntheticArity{Module: timeModule, Resource: timeNowRes, Want: 0, Got: len(tag.TypeParams)}
		}
		return le8(c.timestamp), true, true, nil

	case oracleModule:
		if tag.StructName != oraclePriceRes {
			return nil, false, false, nil
		}
		if len(tag.TypeParams) != 2 {
			return nil, true, false, &ErrSyntheticArity{Module: oracleModule, Resource: oraclePriceRes, Want: 2, Got: len(tag.TypeParams)}
		}
		cur1, err := currencyTicker(tag.TypeParams[0])
		if err != nil {
			return nil, true, false, fmt.Errorf("core: stateview: oracle price: %w", err)
		}
		cur2, err := currencyTicker(tag.TypeParams[1])
		if err != nil {
			return nil, true, false, fmt.Errorf("core: stateview: oracle price: %w", err)
		}
		price, ok, err := c.base.GetOraclePrice(cur1, cur2)
		if err != nil {
			return nil, true, false, fmt.Errorf("core: stateview: oracle price %s/%s: %w", cur1, cur2, err)
		}
		if !ok {
			return nil, true, false, nil
		}
		return le8(price), true, true, nil

	case currencyModule:
		if tag.StructName != currencyInfoRes {
			return nil, false, false, nil
		}
		if len(tag.TypeParams) != 1 {
			return nil, true, false, &ErrSyntheticArity{Module: currencyModule, Resource: currencyInfoRes, Want: 1, Got: len(tag.TypeParams)}
		}
		ticker, err := currencyTicker(tag.TypeParams[0])
		if err != nil {
			return nil, true, false, fmt.Errorf("core: stateview: currency info: %w", err)
		}
		info, ok, err := c.base.GetCurrencyInfo(ticker)
		if err != nil {
			return nil, true, false, fmt.Errorf("core: stateview: currency info %s: %w", ticker, err)
		}
		return info, true, ok, nil

	default:
		return nil, false, false, nil
	}
}

// NativeBalance resolves a wallet id's balance directly (not through a
// borrow_global-shaped read): the native-balance resolver of §4.7, backing
// the `Wallet::balance_of` native function (native.go).
func (c *ChainView) NativeBalance(id WalletID) (uint64, bool, error) {
	bal, ok, err := c.base.GetNativeBalance(id.Addr, id.Ticker)
	if err != nil {
		return 0, false, fmt.Errorf("core: stateview: native balance %s/%s: %w", id.Addr.Hex(), id.Ticker, err)
	}
	return bal, ok, nil
}

func le8(v uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	return buf[:]
}

// DecodeSyntheticValue turns the raw bytes GetSyntheticResource returns for
// a handled tag back into a Value: the little-endian 8-byte encodings of
// height/timestamp/price decode to a plain u64, and the currency-info
// record decodes to a vector<u8> carrying its raw bytes — neither is the
// self-describing RLP blob EncodeValue/DecodeValue use for ordinary
// resources, since a synthetic read never goes through a move_to write in
// the first place.
func DecodeSyntheticValue(tag TypeTag, raw []byte) (Value, error) {
	switch tag.StructModule {
	case blockModule, timeModule, oracleModule:
		if len(raw) != 8 {
			return Value{}, fmt.Errorf("core: stateview: synthetic %s::%s: expected 8 bytes, got %d", tag.StructModule, tag.StructName, len(raw))
		}
		return U64Value(binary.LittleEndian.Uint64(raw)), nil
	case currencyModule:
		elems := make([]Value, len(raw))
		for i, b := range raw {
			elems[i] = U8Value(b)
		}
		return Value{Kind: TVector, Elems: elems}, nil
	default:
		return Value{}, fmt.Errorf("core: stateview: synthetic decode: unrecognized module %q", tag.StructModule)
	}
}
