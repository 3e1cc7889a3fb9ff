package textnorm

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace only", " \t\n ", ""},
		{"collapses whitespace", "Total   Due\t:  1,234.00", "Total Due : 1,234.00"},
		{"space after glued colon", "Card Variant:Platinum", "Card Variant: Platinum"},
		{"glued to between dates", "01/01/2024to31/01/2024", "01/01/2024 to 31/01/2024"},
		{"glued to after year", "Billing Cycle: 01 Jan 2024to 31 Jan 2024", "Billing Cycle: 01 Jan 2024 to 31 Jan 2024"},
		{"leaves words containing to alone", "Customer History", "Customer History"},
		{"split characters", "C a r d Last 4 Digits: 4 3 2 1", "Card Last 4 Digits: 4321"},
		{"lone single token kept", "Amount Due: ₹ 500.00", "Amount Due: ₹ 500.00"},
		{"dedupes lines in order", "A\nB\nA\nC", "A | B | C"},
		{"pipes split parts", "HDFC Bank | Regalia || HDFC Bank", "HDFC Bank | Regalia"},
		{"split characters then glue repair", "1 t o 2 Feb", "1 to 2 Feb"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{
		"C a r d  V a r i a n t:Platinum\nC a r d  V a r i a n t:Platinum",
		"a 1to2 b",
		"x : y | z",
		"Statement Period 01/02/2024to29/02/2024 | Payment Due Date:18 Mar 2024",
		"A\nB\nA\nC",
		"| | |",
		"1 t o 2",
		"Total Balance Due ₹ 12,345.67\r\nMinimum Due ₹ 617.00",
		"a|to1",
		"2to|o",
		"1|to1\rtoa\r\rab|1ab",
		"1to\n2",
		"to1|1to",
		" | to 1 | 1to | ",
	}
	for _, in := range inputs {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeSegmentBoundaries(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"to at start of a part stays glued", "a|to1", "a | to1"},
		{"to at end of a part stays glued", "2to|o", "2to | o"},
		{"mixed separators", "1|to1\rtoa\r\rab|1ab", "1 | to1 | toa | ab | 1ab"},
		{"glue inside a part is repaired", "x|1to2|y", "x | 1 to 2 | y"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.in))
		})
	}
}

func TestNormalizeIdempotentRandom(t *testing.T) {
	alphabet := []string{"a", "b", "x", "1", "2", "t", "o", "to", "T", "O", ":", "|", "\n", "\r", " ", "\t"}
	rng := rand.New(rand.NewPCG(7, 11))
	for i := 0; i < 20000; i++ {
		var b strings.Builder
		for n := rng.IntN(25); n > 0; n-- {
			b.WriteString(alphabet[rng.IntN(len(alphabet))])
		}
		in := b.String()
		once := Normalize(in)
		if !assert.Equal(t, once, Normalize(once), "input %q", in) {
			return
		}
	}
}

func TestCollapseSingles(t *testing.T) {
	assert.Equal(t, "Card", CollapseSingles("C a r d"))
	assert.Equal(t, "x Card y", CollapseSingles("x Card y"))
	assert.Equal(t, "HDFC 1111", CollapseSingles("HDFC 1 1 1 1"))
	assert.Equal(t, "", CollapseSingles("   "))
}

func TestCleanDisplay(t *testing.T) {
	assert.Equal(t, "", CleanDisplay(""))
	assert.Equal(t, "Card Variant:Platinum", CleanDisplay("Card Variant:Platinum"))
	assert.Equal(t, "Regalia | Gold", CleanDisplay("R e g a l i a\nGold\r\nRegalia"))
	assert.Equal(t, "Amount Due 500.00", CleanDisplay("  Amount   Due   500.00 "))
}
