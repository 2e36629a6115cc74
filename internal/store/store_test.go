package store

import "testing"

func TestDirectPairIsOrderIndependent(t *testing.T) {
	a := directPair(7, 3)
	b := directPair(3, 7)
	if a[0] != 3 || a[1] != 7 {
		t.Fatalf("directPair(7,3)=%v", a)
	}
	if b[0] != a[0] || b[1] != a[1] {
		t.Fatalf("directPair is not symmetric: %v vs %v", a, b)
	}
}

func TestQuoteRegexEscapesMetacharacters(t *testing.T) {
	got := quoteRegex("a.b*c")
	if got != `a\.b\*c` {
		t.Fatalf("quoteRegex=%q", got)
	}
}
