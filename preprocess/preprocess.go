// Package preprocess rewrites source text before it reaches the parser,
// replacing two literal forms the parser itself does not understand:
// bech32-style address literals and short hash literals of the form
// #"text". Both rewrites are purely lexical — preprocess never parses the
// surrounding expression — and both are idempotent.
package preprocess

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/dfinance/dvm-sub000/address"
)

// bech32Charset is the bech32 data alphabet. bech32Pattern matches a
// contiguous run of its characters prefixed by hrp + "1", bounded by word
// boundaries so partial matches inside a longer identifier are left alone.
var bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

func bech32Pattern(hrp string) *regexp.Regexp {
	return regexp.MustCompile(`\b` + regexp.QuoteMeta(hrp) + `1[` + bech32Charset + `]{6,}\b`)
}

// hashLiteral matches #"text" short hash literals.
var hashLiteral = regexp.MustCompile(`#"([^"]*)"`)

// Preprocessor rewrites source text for a configured bech32 human-readable
// prefix. The zero value uses address.DefaultHRP.
type Preprocessor struct {
	HRP string
}

// New returns a Preprocessor for the given human-readable prefix. An empty
// hrp falls back to address.DefaultHRP.
func New(hrp string) *Preprocessor {
	if hrp == "" {
		hrp = address.DefaultHRP
	}
	return &Preprocessor{HRP: hrp}
}

// Process rewrites both literal forms in src. Malformed bech32-looking
// literals (failed checksum, bad 5-to-8 regrouping) are left untouched —
// preprocess never reports an error, it only defers the problem to the
// parser, which will surface it as a syntax error.
func (p *Preprocessor) Process(src string) string {
	src = p.replaceBech32(src)
	src = replaceHashLiterals(src)
	return src
}

func (p *Preprocessor) replaceBech32(src string) string {
	pat := bech32Pattern(p.HRP)
	return pat.ReplaceAllStringFunc(src, func(lit string) string {
		addr, err := address.Decode(p.HRP, lit)
		if err != nil {
			return lit
		}
		return addr.Hex()
	})
}

func replaceHashLiterals(src string) string {
	return hashLiteral.ReplaceAllStringFunc(src, func(lit string) string {
		m := hashLiteral.FindStringSubmatch(lit)
		text := strings.ToLower(m[1])
		return strconv.FormatUint(StrXXHash(text), 10)
	})
}

// StrXXHash is the canonical non-cryptographic hash used for short hash
// literals: the 64-bit xxhash of the (already lowercased) text.
func StrXXHash(text string) uint64 {
	return xxhash.Sum64String(text)
}
