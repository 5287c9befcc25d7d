// Package symbol normalizes user- and exchange-supplied trading pair
// strings into {base, quote} descriptors and smart-completes bare bases.
package symbol

import (
	"sort"
	"strings"
)

// orderedQuotes is the greedy suffix-match list, checked in this order; the
// first quote that is a proper suffix wins, so USD is tried before TUSD and
// a pair ending in TUSD parses with quote USD.
var orderedQuotes = []string{
	"USDT", "USDC", "BUSD", "USD", "TUSD", "BTC", "ETH", "BNB", "EUR", "GBP", "JPY", "CNY",
}

var separators = []string{"/", "-", "_"}

// Descriptor is a parsed trading pair.
type Descriptor struct {
	Raw   string
	Base  string
	Quote string
}

// Parse splits raw into base/quote. It first tries the configured
// separators, then falls back to a greedy suffix match against
// orderedQuotes.
func Parse(raw string) (Descriptor, bool) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "" {
		return Descriptor{}, false
	}

	for _, sep := range separators {
		if idx := strings.Index(upper, sep); idx > 0 && idx < len(upper)-1 {
			base := upper[:idx]
			quote := upper[idx+len(sep):]
			return Descriptor{Raw: raw, Base: base, Quote: quote}, true
		}
	}

	for _, q := range orderedQuotes {
		if strings.HasSuffix(upper, q) && len(upper) > len(q) {
			base := upper[:len(upper)-len(q)]
			return Descriptor{Raw: raw, Base: base, Quote: q}, true
		}
	}

	return Descriptor{}, false
}

// NormalizeBinance renders a descriptor as a contiguous exchange symbol,
// e.g. {BTC, USDT} -> "BTCUSDT".
func NormalizeBinance(d Descriptor) string {
	return d.Base + d.Quote
}

// SmartComplete expands a bare base (e.g. "btc") to a full pair using
// defaultQuote when the input doesn't already parse as a full pair found in
// universe. universe holds exchange-format symbols (e.g. "BTCUSDT").
func SmartComplete(input string, universe []string, defaultQuote string) (string, bool) {
	results := SmartSearch(input, universe, defaultQuote)
	if len(results) == 0 {
		return "", false
	}
	return results[0], true
}

// SmartSearch returns candidate exchange-format symbols for input, most
// specific first: (i) an exact match in universe, (ii) base+defaultQuote,
// (iii) any symbol containing input.
func SmartSearch(input string, universe []string, defaultQuote string) []string {
	upper := strings.ToUpper(strings.TrimSpace(input))
	if upper == "" {
		return nil
	}

	set := make(map[string]bool, len(universe))
	for _, s := range universe {
		set[strings.ToUpper(s)] = true
	}

	var results []string
	seen := make(map[string]bool)
	add := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			results = append(results, s)
		}
	}

	if desc, ok := Parse(upper); ok {
		candidate := NormalizeBinance(desc)
		if set[candidate] {
			add(candidate)
		}
	} else if set[upper] {
		add(upper)
	}

	completed := upper + strings.ToUpper(defaultQuote)
	if set[completed] {
		add(completed)
	}

	var contains []string
	for s := range set {
		if strings.Contains(s, upper) {
			contains = append(contains, s)
		}
	}
	sort.Strings(contains)
	for _, s := range contains {
		add(s)
	}

	return results
}
