package address

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHexRoundTrip(t *testing.T) {
	a, err := ParseHex("0xde5f86ce8ad7944f272d693cb4625a955b61015000000000"[:50])
	require.NoError(t, err)
	require.Equal(t, "0xde5f86ce8ad7944f272d693cb4625a955b61015000000000", a.Hex())
}

func TestHexShortLiteralZeroPadded(t *testing.T) {
	a, err := ParseHex("0x1")
	require.NoError(t, err)
	require.Equal(t, Address{Size - 1: 0x01}, a)
}

func TestBech32RoundTrip(t *testing.T) {
	literal := "wallet1me0cdn52672y7feddy7tgcj6j4dkzq2su745vh"
	a, err := Decode(DefaultHRP, literal)
	require.NoError(t, err)
	require.Equal(t, "0xde5f86ce8ad7944f272d693cb4625a955b61015000000000", a.Hex())

	encoded, err := Encode(DefaultHRP, a)
	require.NoError(t, err)
	require.Equal(t, literal, encoded)
}

func TestDecodeRejectsWrongHRP(t *testing.T) {
	literal := "wallet1me0cdn52672y7feddy7tgcj6j4dkzq2su745vh"
	_, err := Decode("df", literal)
	require.Error(t, err)
}

func TestDecodeRejectsBadChecksum(t *testing.T) {
	_, err := Decode(DefaultHRP, "wallet1me0cdn52672y7feddy7tgcj6j4dkzq2su745vv")
	require.Error(t, err)
}

func TestCoreAddressIsPrivileged(t *testing.T) {
	require.True(t, Core.IsCore())
	require.False(t, Zero.IsCore())
}
