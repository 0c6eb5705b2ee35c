// Package address implements the canonical fixed-width account address used
// throughout the VM core, and lossless conversion to and from the two
// literal forms source text may use: bech32-style human-readable literals
// and 0x-prefixed hex literals.
package address

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcutil/bech32"
)

// Size is the canonical address width in bytes.
const Size = 24

// Address is the opaque account identifier used as the first component of
// every module id and access path.
type Address [Size]byte

// Core is the privileged address that grants cache-flush and
// module-replacement rights on publish (§4.9). It is all-zero except for a
// single reserved trailing byte, so it can never collide with a bech32- or
// hex-decoded address produced from 20 bytes of real entropy plus
// zero-padding.
var Core = Address{Size - 1: 0x01}

// Zero is the all-zero sentinel address.
var Zero = Address{}

// IsCore reports whether a is the privileged core address.
func (a Address) IsCore() bool { return a == Core }

// Bytes returns the address as a byte slice.
func (a Address) Bytes() []byte { return a[:] }

// Hex returns the 0x-prefixed hex encoding of a, the canonical wire form
// used once a literal has been normalized.
func (a Address) Hex() string { return "0x" + hex.EncodeToString(a[:]) }

func (a Address) String() string { return a.Hex() }

// FromBytes copies b (which must be exactly Size bytes) into a new Address.
func FromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != Size {
		return a, fmt.Errorf("address: expected %d bytes, got %d", Size, len(b))
	}
	copy(a[:], b)
	return a, nil
}

// ParseHex decodes a 0x-prefixed (or bare) hex literal into an Address. It
// reads a shorter literal as a number and left-pads it with leading zero
// bytes, so the shorthand `0x0` and `0x1` account addresses used by core
// modules decode to Zero and Core.
func ParseHex(s string) (Address, error) {
	var a Address
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	if len(s)%2 != 0 {
		s = "0" + s
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return a, fmt.Errorf("address: invalid hex literal %q: %w", s, err)
	}
	if len(raw) > Size {
		return a, fmt.Errorf("address: hex literal %q exceeds %d bytes", s, Size)
	}
	copy(a[Size-len(raw):], raw)
	return a, nil
}

// DefaultHRP is the bech32 human-readable prefix accepted when none is
// configured explicitly.
const DefaultHRP = "wallet"

// Encode renders a as a bech32-style literal under the given human-readable
// prefix. Only the leading 20 bytes participate in the bech32 payload; the
// canonical trailing padding bytes are dropped, mirroring Decode's
// zero-extension on the way in.
func Encode(hrp string, a Address) (string, error) {
	payload := a[:20]
	conv, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", fmt.Errorf("address: convert bits: %w", err)
	}
	s, err := bech32.Encode(hrp, conv)
	if err != nil {
		return "", fmt.Errorf("address: bech32 encode: %w", err)
	}
	return s, nil
}

// Decode parses a bech32-style literal, verifying its checksum and 5-to-8
// bit regrouping, and zero-extends the decoded 20-byte payload to the
// canonical Size. Decode fails (rather than silently accepting) a literal
// whose human-readable prefix doesn't match hrp, or whose payload isn't
// exactly 20 bytes once regrouped.
func Decode(hrp, literal string) (Address, error) {
	var a Address
	gotHRP, data, err := bech32.Decode(literal)
	if err != nil {
		return a, fmt.Errorf("address: bech32 decode: %w", err)
	}
	if gotHRP != hrp {
		return a, fmt.Errorf("address: unexpected hrp %q, want %q", gotHRP, hrp)
	}
	raw, err := bech32.ConvertBits(data, 5, 8, false)
	if err != nil {
		return a, fmt.Errorf("address: convert bits: %w", err)
	}
	if len(raw) != 20 {
		return a, fmt.Errorf("address: decoded payload is %d bytes, want 20", len(raw))
	}
	copy(a[:], raw)
	return a, nil
}
