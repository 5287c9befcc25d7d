package symbol

import "testing"

func TestParseSeparators(t *testing.T) {
	cases := map[string]Descriptor{
		"BTC/USDT": {Base: "BTC", Quote: "USDT"},
		"eth-usdc": {Base: "ETH", Quote: "USDC"},
		"bnb_busd": {Base: "BNB", Quote: "BUSD"},
	}
	for raw, want := range cases {
		got, ok := Parse(raw)
		if !ok {
			t.Fatalf("Parse(%q) failed", raw)
		}
		if got.Base != want.Base || got.Quote != want.Quote {
			t.Errorf("Parse(%q) = %+v, want base=%s quote=%s", raw, got, want.Base, want.Quote)
		}
	}
}

func TestParseSuffixMatch(t *testing.T) {
	got, ok := Parse("BTCUSDT")
	if !ok || got.Base != "BTC" || got.Quote != "USDT" {
		t.Fatalf("Parse(BTCUSDT) = %+v, ok=%v", got, ok)
	}
}

func TestRoundTripIdentity(t *testing.T) {
	d, ok := Parse("BTC/USDT")
	if !ok {
		t.Fatal("parse failed")
	}
	normalized := NormalizeBinance(d)
	again, ok := Parse(normalized)
	if !ok {
		t.Fatal("re-parse failed")
	}
	if again.Base != d.Base || again.Quote != d.Quote {
		t.Errorf("round trip mismatch: %+v vs %+v", d, again)
	}
}

func TestSmartSearchPriority(t *testing.T) {
	universe := []string{"BTCUSDT", "BTCUSDC", "ETHBTC"}
	results := SmartSearch("btc", universe, "USDT")
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0] != "BTCUSDT" {
		t.Errorf("first result = %s, want BTCUSDT (base+defaultQuote)", results[0])
	}
}

func TestSmartCompleteBareBase(t *testing.T) {
	universe := []string{"BTCUSDT", "ETHUSDT"}
	got, ok := SmartComplete("eth", universe, "USDT")
	if !ok || got != "ETHUSDT" {
		t.Errorf("SmartComplete(eth) = %s, ok=%v, want ETHUSDT", got, ok)
	}
}
