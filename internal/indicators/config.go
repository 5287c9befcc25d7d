package indicators

import (
	"fmt"
	"strconv"
	"strings"
)

// Spec is one parsed indicator request: a name plus its numeric params.
type Spec struct {
	Name   string
	Params []int
}

var knownIndicators = map[string]int{
	"ma": 1, "ema": 1, "rsi": 1, "atr": 1,
	"macd": 3, "bbands": 3, "kdj": 3,
}

// ParseConfig parses the small indicator grammar: entries separated by
// ';' or newlines, each "name=p1,p2,...". Commented (leading '#') or blank
// entries are dropped silently. Unknown names are reported via warn but
// otherwise skipped, never causing a hard error.
func ParseConfig(raw string, warn func(string)) []Spec {
	if warn == nil {
		warn = func(string) {}
	}
	var out []Spec
	raw = strings.ReplaceAll(raw, "\n", ";")
	for _, entry := range strings.Split(raw, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" || strings.HasPrefix(entry, "#") {
			continue
		}
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			warn(fmt.Sprintf("indicators: malformed entry %q", entry))
			continue
		}
		name := strings.ToLower(strings.TrimSpace(parts[0]))
		if _, ok := knownIndicators[name]; !ok {
			warn(fmt.Sprintf("indicators: unknown indicator %q", name))
			continue
		}
		var params []int
		for _, p := range strings.Split(parts[1], ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				warn(fmt.Sprintf("indicators: bad param %q for %q", p, name))
				continue
			}
			params = append(params, n)
		}
		out = append(out, Spec{Name: name, Params: params})
	}
	return out
}

// ParseEnvConfig parses the INDICATOR_<name>=p1,p2 environment form given
// as a map of key->value (as viper's AllSettings would expose).
func ParseEnvConfig(env map[string]string, warn func(string)) []Spec {
	if warn == nil {
		warn = func(string) {}
	}
	var out []Spec
	for k, v := range env {
		upper := strings.ToUpper(k)
		if !strings.HasPrefix(upper, "INDICATOR_") {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(upper, "INDICATOR_"))
		if _, ok := knownIndicators[name]; !ok {
			warn(fmt.Sprintf("indicators: unknown indicator %q", name))
			continue
		}
		var params []int
		for _, p := range strings.Split(v, ",") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			n, err := strconv.Atoi(p)
			if err != nil {
				warn(fmt.Sprintf("indicators: bad param %q for %q", p, name))
				continue
			}
			params = append(params, n)
		}
		out = append(out, Spec{Name: name, Params: params})
	}
	return out
}

func defaultParams(name string) []int {
	switch name {
	case "ma", "ema", "rsi", "atr":
		return []int{20}
	case "macd":
		return []int{12, 26, 9}
	case "bbands":
		return []int{20, 2, 2}
	case "kdj":
		return []int{9, 3, 3}
	}
	return nil
}

func withDefaults(s Spec) Spec {
	if len(s.Params) >= knownIndicators[s.Name] {
		return s
	}
	s.Params = defaultParams(s.Name)
	return s
}
