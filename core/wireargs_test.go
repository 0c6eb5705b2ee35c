package core

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dfinance/dvm-sub000/address"
)

// TestDecodeWireArgumentU64Width covers §8 scenario 4 literally: a u64
// argument whose wire encoding is 4 bytes instead of 8 must fail with the
// exact message a caller surfaces as status invalid-argument.
func TestDecodeWireArgumentU64Width(t *testing.T) {
	_, err := DecodeWireArgument(TU64, []byte{0x01, 0x02, 0x03, 0x04})
	require.EqualError(t, err, "Invalid u64 argument length. Expected 8 byte.")
}

func TestDecodeWireArgumentU64Value(t *testing.T) {
	v, err := DecodeWireArgument(TU64, []byte{0x64, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
	require.NoError(t, err)
	require.Equal(t, TU64, v.Kind)
	require.Equal(t, uint64(100), v.Num)
}

func TestDecodeWireArgumentBoolWidth(t *testing.T) {
	_, err := DecodeWireArgument(TBool, []byte{})
	require.EqualError(t, err, "Invalid bool argument length. Expected 1 byte.")
}

func TestDecodeWireArgumentU128Width(t *testing.T) {
	_, err := DecodeWireArgument(TU128, make([]byte, 8))
	require.EqualError(t, err, "Invalid u128 argument length. Expected 16 byte.")
}

func TestDecodeWireArgumentAddress(t *testing.T) {
	want, err := address.ParseHex("0xA1")
	require.NoError(t, err)
	v, err := DecodeWireArgument(TAddress, want.Bytes())
	require.NoError(t, err)
	require.Equal(t, TAddress, v.Kind)
	require.Equal(t, want, v.Addr)

	_, err = DecodeWireArgument(TAddress, want.Bytes()[:4])
	require.Error(t, err)
}

func TestDecodeWireArgumentVectorU8PassesThroughRawBytes(t *testing.T) {
	v, err := DecodeWireArgument(TVector, []byte{0xDE, 0xAD, 0xBE, 0xEF})
	require.NoError(t, err)
	require.Equal(t, TVector, v.Kind)
	require.Len(t, v.Elems, 4)
	require.Equal(t, uint64(0xDE), v.Elems[0].Num)
}
