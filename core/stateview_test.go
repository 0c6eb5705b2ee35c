package core

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dfinance/dvm-sub000/address"
)

// mockDataSource is an in-memory stand-in for a remote DataSource (§4.3):
// code and resources are plain maps, oracle prices and currency info are
// keyed by ticker pair / ticker, and native balances by (address, ticker).
// It never returns an error itself; tests that need the error path wrap it.
type mockDataSource struct {
	code     map[ModuleID][]byte
	resource map[string][]byte
	oracle   map[string]uint64
	currency map[string][]byte
	balance  map[string]uint64
}

func newMockDataSource() *mockDataSource {
	return &mockDataSource{
		code:     map[ModuleID][]byte{},
		resource: map[string][]byte{},
		oracle:   map[string]uint64{},
		currency: map[string][]byte{},
		balance:  map[string]uint64{},
	}
}

func (m *mockDataSource) GetModule(id ModuleID) ([]byte, bool, error) {
	b, ok := m.code[id]
	return b, ok, nil
}

func (m *mockDataSource) GetResource(ap AccessPath) ([]byte, bool, error) {
	b, ok := m.resource[ap.String()]
	return b, ok, nil
}

func (m *mockDataSource) GetOraclePrice(currency1, currency2 string) (uint64, bool, error) {
	p, ok := m.oracle[currency1+"/"+currency2]
	return p, ok, nil
}

func (m *mockDataSource) GetNativeBalance(addr address.Address, ticker string) (uint64, bool, error) {
	b, ok := m.balance[fmt.Sprintf("%s/%s", addr.Hex(), ticker)]
	return b, ok, nil
}

func (m *mockDataSource) GetCurrencyInfo(ticker string) ([]byte, bool, error) {
	b, ok := m.currency[ticker]
	return b, ok, nil
}

func (m *mockDataSource) setOraclePrice(currency1, currency2 string, price uint64) {
	m.oracle[currency1+"/"+currency2] = price
}

func (m *mockDataSource) setBalance(addr address.Address, ticker string, bal uint64) {
	m.balance[fmt.Sprintf("%s/%s", addr.Hex(), ticker)] = bal
}

func TestChainViewSyntheticBlockAndTime(t *testing.T) {
	ds := newMockDataSource()
	cv := NewChainView(ds, 100, 1_700_000_000)

	data, handled, found, err := cv.GetSyntheticResource(address.Core, Struct(address.Core, blockModule, blockHeightRes))
	require.NoError(t, err)
	require.True(t, handled)
	require.True(t, found)
	require.Equal(t, uint64(100), le8Decode(data))

	data, handled, found, err = cv.GetSyntheticResource(address.Core, Struct(address.Core, timeModule, timeNowRes))
	require.NoError(t, err)
	require.True(t, handled)
	require.True(t, found)
	require.Equal(t, uint64(1_700_000_000), le8Decode(data))
}

// TestChainViewSyntheticOraclePrice covers the oracle read scenario (§8
// scenario 2): USD/BTC priced at 12345, resolved through the synthetic
// resource layer rather than an ordinary resource lookup.
func TestChainViewSyntheticOraclePrice(t *testing.T) {
	ds := newMockDataSource()
	ds.setOraclePrice("USD", "BTC", 12345)
	cv := NewChainView(ds, 1, 1)

	tag := Struct(address.Core, oracleModule, oraclePriceRes,
		Struct(address.Core, "USD", "T"),
		Struct(address.Core, "BTC", "T"))

	data, handled, found, err := cv.GetSyntheticResource(address.Core, tag)
	require.NoError(t, err)
	require.True(t, handled)
	require.True(t, found)
	require.Equal(t, uint64(12345), le8Decode(data))
}

func TestChainViewSyntheticOraclePriceMissingIsNotFound(t *testing.T) {
	ds := newMockDataSource()
	cv := NewChainView(ds, 1, 1)

	tag := Struct(address.Core, oracleModule, oraclePriceRes,
		Struct(address.Core, "USD", "T"),
		Struct(address.Core, "BTC", "T"))

	_, handled, found, err := cv.GetSyntheticResource(address.Core, tag)
	require.NoError(t, err)
	require.True(t, handled)
	require.False(t, found)
}

func TestChainViewSyntheticOracleWrongArityErrors(t *testing.T) {
	ds := newMockDataSource()
	cv := NewChainView(ds, 1, 1)

	tag := Struct(address.Core, oracleModule, oraclePriceRes, Struct(address.Core, "USD", "T"))
	_, handled, _, err := cv.GetSyntheticResource(address.Core, tag)
	require.True(t, handled)
	require.Error(t, err)
	var arityErr *ErrSyntheticArity
	require.ErrorAs(t, err, &arityErr)
}

func TestChainViewSyntheticCurrencyInfo(t *testing.T) {
	ds := newMockDataSource()
	ds.currency["BTC"] = []byte("bitcoin-info")
	cv := NewChainView(ds, 1, 1)

	tag := Struct(address.Core, currencyModule, currencyInfoRes, Struct(address.Core, "BTC", "T"))
	data, handled, found, err := cv.GetSyntheticResource(address.Core, tag)
	require.NoError(t, err)
	require.True(t, handled)
	require.True(t, found)
	require.Equal(t, []byte("bitcoin-info"), data)
}

func TestChainViewSyntheticIgnoresNonCoreOwner(t *testing.T) {
	ds := newMockDataSource()
	cv := NewChainView(ds, 1, 1)

	other := address.Address{}
	other[0] = 0x42
	_, handled, _, err := cv.GetSyntheticResource(other, Struct(address.Core, blockModule, blockHeightRes))
	require.NoError(t, err)
	require.False(t, handled)
}

func TestChainViewNativeBalance(t *testing.T) {
	ds := newMockDataSource()
	holder := address.Address{}
	holder[0] = 0x07
	ds.setBalance(holder, xfiTicker, 999)
	cv := NewChainView(ds, 1, 1)

	bal, ok, err := cv.NativeBalance(WalletID{Addr: holder, Ticker: xfiTicker})
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(999), bal)
}

func TestChainViewCodeAndResourcePassthrough(t *testing.T) {
	ds := newMockDataSource()
	id := ModuleID{Addr: address.Core, Name: "Oracle"}
	ds.code[id] = []byte{0x01, 0x02}
	cv := NewChainView(ds, 1, 1)

	blob, ok, err := cv.GetCode(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0x01, 0x02}, blob)

	ap := ResourceAccessPath(address.Core, Struct(address.Core, "Wallet", "Balance"))
	ds.resource[ap.String()] = []byte{0xAA}
	blob, ok, err = cv.GetResource(ap)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte{0xAA}, blob)
}

// TestWriteCacheDelegatesSyntheticReadsToBase covers the VM's execute-path
// layering: a WriteCache over a ChainView still resolves synthetic reads,
// since nothing in a session ever writes to one.
func TestWriteCacheDelegatesSyntheticReadsToBase(t *testing.T) {
	ds := newMockDataSource()
	cv := NewChainView(ds, 42, 7)
	wc := NewWriteCache(cv)

	data, handled, found, err := wc.GetSyntheticResource(address.Core, Struct(address.Core, blockModule, blockHeightRes))
	require.NoError(t, err)
	require.True(t, handled)
	require.True(t, found)
	require.Equal(t, uint64(42), le8Decode(data))
}

func le8Decode(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func TestDecodeSyntheticValueDecodesU64Kinds(t *testing.T) {
	for _, mod := range []string{blockModule, timeModule, oracleModule} {
		tag := Struct(address.Core, mod, "whatever")
		v, err := DecodeSyntheticValue(tag, le8(12345))
		require.NoError(t, err)
		require.Equal(t, TU64, v.Kind)
		require.Equal(t, uint64(12345), v.Num)
	}
}

func TestDecodeSyntheticValueCurrencyInfoIsVectorU8(t *testing.T) {
	tag := Struct(address.Core, currencyModule, currencyInfoRes)
	v, err := DecodeSyntheticValue(tag, []byte("bitcoin-info"))
	require.NoError(t, err)
	require.Equal(t, TVector, v.Kind)
	require.Len(t, v.Elems, len("bitcoin-info"))
}

// TestExecuteScriptReadsOraclePriceThroughInterpreter drives the full
// OpBorrowGlobal path through session.run against a ChainView, the
// reachability gap a prior pass left uncovered: readGlobal's raw
// little-endian synthetic bytes must decode through DecodeSyntheticValue,
// not the self-describing-RLP DecodeValue ordinary resources use.
func TestExecuteScriptReadsOraclePriceThroughInterpreter(t *testing.T) {
	ds := newMockDataSource()
	ds.setOraclePrice("USD", "BTC", 12345)
	cv := NewChainView(ds, 1, 1)
	wc := NewWriteCache(cv)

	priceType := Struct(address.Core, oracleModule, oraclePriceRes,
		Struct(address.Core, "USD", "T"),
		Struct(address.Core, "BTC", "T"))

	code := []Instruction{
		{Op: OpLdAddr, Addr: &address.Core},
		{Op: OpBorrowGlobal, Type: &priceType},
		{Op: OpRet, Imm: 1},
	}

	s := &session{vm: &VM{}, view: wc, gas: NewGasMeter(1_000_000)}
	out, err := s.run(code, nil, nil)
	require.NoError(t, err)
	require.Len(t, out, 1)
	require.Equal(t, TU64, out[0].Kind)
	require.Equal(t, uint64(12345), out[0].Num)
}
