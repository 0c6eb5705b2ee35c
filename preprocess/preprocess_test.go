package preprocess

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReplaceHashLiteral(t *testing.T) {
	p := New("")
	src := `Oracle.get_price(#"USD") + Oracle.get_price(#"BTC") = #"USDBTC"`
	got := p.Process(src)
	want := fmt.Sprintf("Oracle.get_price(%d) + Oracle.get_price(%d) = %d",
		StrXXHash("usd"), StrXXHash("btc"), StrXXHash("usdbtc"))
	require.Equal(t, want, got)
}

func TestReplaceBech32Literal(t *testing.T) {
	p := New("wallet")
	src := "import wallet1me0cdn52672y7feddy7tgcj6j4dkzq2su745vh.Account;"
	got := p.Process(src)
	require.Equal(t, "import 0xde5f86ce8ad7944f272d693cb4625a955b61015000000000.Account;", got)
}

func TestLeaveNonBech32Untouched(t *testing.T) {
	p := New("wallet")
	src := `
		import 0x0.Account;
		import 0x0.Coin;
		main() {return;}
	`
	require.Equal(t, src, p.Process(src))
}

func TestIdempotence(t *testing.T) {
	p := New("wallet")
	src := "import wallet1me0cdn52672y7feddy7tgcj6j4dkzq2su745vh.Account; r = #\"usd\";"
	once := p.Process(src)
	twice := p.Process(once)
	require.Equal(t, once, twice)
}
