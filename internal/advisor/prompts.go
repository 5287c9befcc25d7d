package advisor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Kind is a prompt template category.
type Kind string

const (
	KindAnalysis Kind = "analysis"
	KindLearning Kind = "learning"
	KindReview   Kind = "review"
)

// Prompt is one system/user template pair plus the LLM call parameters the
// spec pins per kind.
type Prompt struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// defaultPrompts is used when prompts.json and the per-kind text files are
// both absent, so the scan loop never blocks on missing template files.
func defaultPrompts() map[Kind]Prompt {
	return map[Kind]Prompt{
		KindAnalysis: {
			System: "你是一名加密货币永续合约交易顾问。结合给出的行情和技术指标给出做多/做空/观望的建议，" +
				"并以 JSON 返回 {trend, action, confidence, reason, support, resistance, tradingStandard, warnings}。",
			User:        "交易对: {{symbol}}\n周期: {{timeframe}}\n{{marketData}}\n{{sentiment}}\n{{reviewInsights}}",
			Temperature: 0.3,
			MaxTokens:   2000,
		},
		KindLearning: {
			System: "你是一名交易复盘助手，针对给定主题总结一条可复用的交易经验，纯文本返回。",
			User:        "主题: {{topic}}\n{{context}}",
			Temperature: 0.3,
			MaxTokens:   800,
		},
		KindReview: {
			System: "你是一名交易复盘助手。评估这笔已平仓交易并以 JSON 返回 " +
				"{score, strengths, weaknesses, lessons, improvements, summary}。",
			User:        "{{tradeSummary}}",
			Temperature: 0.3,
			MaxTokens:   1200,
		},
	}
}

// LoadPrompts reads dir/prompts.json if present, else dir/<kind>/system.txt
// and dir/<kind>/user.txt for each kind, else falls back to the built-in
// defaults. In the text-file form, a kind with only one of its two files
// on disk keeps the built-in default for the missing half; in the
// prompts.json form, each kind present in the file replaces that kind's
// defaults as a whole.
func LoadPrompts(dir string) map[Kind]Prompt {
	prompts := defaultPrompts()
	if dir == "" {
		return prompts
	}

	if raw, err := os.ReadFile(filepath.Join(dir, "prompts.json")); err == nil {
		var fromFile map[Kind]Prompt
		if err := json.Unmarshal(raw, &fromFile); err == nil {
			for k, p := range fromFile {
				prompts[k] = p
			}
			return prompts
		}
	}

	for _, kind := range []Kind{KindAnalysis, KindLearning, KindReview} {
		p := prompts[kind]
		if sys, err := os.ReadFile(filepath.Join(dir, string(kind), "system.txt")); err == nil {
			p.System = string(sys)
		}
		if usr, err := os.ReadFile(filepath.Join(dir, string(kind), "user.txt")); err == nil {
			p.User = string(usr)
		}
		prompts[kind] = p
	}
	return prompts
}

// render replaces every {{key}} found in vars; placeholders with no
// matching key are left in place so templates never lose a literal
// double-brace string they didn't mean as a substitution target.
func render(tmpl string, vars map[string]string) string {
	out := tmpl
	for k, v := range vars {
		out = strings.ReplaceAll(out, fmt.Sprintf("{{%s}}", k), v)
	}
	return out
}
