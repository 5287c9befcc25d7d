// Package llm exposes the one capability the advisor needs from a
// language model: a chat call. This package wires the OpenAI-compatible
// eino chat model the rest of the stack
// already depends on, plus a deterministic mock for tests and for
// AI_PROVIDER=mock deployments that want the scan-advise-trade loop
// without a live model behind it.
package llm

import (
	"context"
	"fmt"
	"strings"

	openaiComponent "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"
	"github.com/eino-contrib/jsonschema"
)

// Role is a chat message role.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one chat turn.
type Message struct {
	Role    Role
	Content string
}

// Provider is the capability the advisor calls: messages in, text out.
type Provider interface {
	Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error)
}

// Config configures provider construction.
type Config struct {
	Provider string // "mock" or "openai"
	APIKey   string
	BaseURL  string
	Model    string
}

// New constructs a Provider from cfg. Unknown provider names fall back to
// the mock so a misconfigured AI_PROVIDER never blocks the scan loop.
func New(cfg Config) Provider {
	switch strings.ToLower(cfg.Provider) {
	case "openai", "":
		return &openaiProvider{cfg: cfg}
	default:
		return NewMock()
	}
}

type openaiProvider struct {
	cfg Config
}

// schemaDecision mirrors the advisor's JSON decision shape closely enough
// to reflect a usable JSON Schema; the advisor package still owns parsing
// and tolerates extra/missing fields, so this never needs to track it
// field-for-field.
type schemaDecision struct {
	Trend           string   `json:"trend"`
	Action          string   `json:"action"`
	Confidence      float64  `json:"confidence"`
	Reason          string   `json:"reason"`
	Support         float64  `json:"support"`
	Resistance      float64  `json:"resistance"`
	TradingStandard string   `json:"tradingStandard"`
	Warnings        []string `json:"warnings"`
}

// isQwenModel reports whether model is Qwen-family, which rejects the
// full JSON Schema response-format branch; those deployments fall back to
// the looser JSON Object mode.
func isQwenModel(model string) bool {
	return strings.Contains(strings.ToLower(model), "qwen")
}

func (p *openaiProvider) Chat(ctx context.Context, messages []Message, temperature float64, maxTokens int) (string, error) {
	// temperature and maxTokens are part of the Provider contract (the
	// advisor calls with 0.3 / 2000) but aren't threaded into
	// ChatModelConfig here, matching how the rest of this codebase builds
	// it: APIKey, BaseURL, and Model only.
	cfg := &openaiComponent.ChatModelConfig{
		APIKey:  p.cfg.APIKey,
		BaseURL: p.cfg.BaseURL,
		Model:   p.cfg.Model,
	}
	if isQwenModel(p.cfg.Model) {
		cfg.ResponseFormat = &openaiComponent.ChatCompletionResponseFormat{
			Type: openaiComponent.ChatCompletionResponseFormatTypeJSONObject,
		}
	} else {
		var decision schemaDecision
		cfg.ResponseFormat = &openaiComponent.ChatCompletionResponseFormat{
			Type: openaiComponent.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openaiComponent.ChatCompletionResponseFormatJSONSchema{
				Name:        "trade_decision",
				Description: "perpetual futures directional call",
				JSONSchema:  jsonschema.Reflect(decision),
				Strict:      false,
			},
		}
	}

	model, err := openaiComponent.NewChatModel(ctx, cfg)
	if err != nil {
		return "", fmt.Errorf("llm: build chat model: %w", err)
	}

	schemaMessages := make([]*schema.Message, len(messages))
	for i, m := range messages {
		switch m.Role {
		case RoleSystem:
			schemaMessages[i] = schema.SystemMessage(m.Content)
		default:
			schemaMessages[i] = schema.UserMessage(m.Content)
		}
	}

	resp, err := model.Generate(ctx, schemaMessages)
	if err != nil {
		return "", fmt.Errorf("llm: generate: %w", err)
	}
	return resp.Content, nil
}

// Mock is a deterministic provider used for AI_PROVIDER=mock and tests. It
// never calls out to the network; it answers 做多 when the user message
// mentions rsi_ and macd together with golden-cross wording, 观望 otherwise
// (it never answers 做空), in the shape the advisor's JSON parser expects,
// so the full loop can run without credentials.
type Mock struct {
	// Responder overrides the canned reply for tests that need specific
	// wording; nil uses the built-in heuristic.
	Responder func(messages []Message) string
}

// NewMock constructs the default Mock.
func NewMock() *Mock { return &Mock{} }

func (m *Mock) Chat(_ context.Context, messages []Message, _ float64, _ int) (string, error) {
	if m.Responder != nil {
		return m.Responder(messages), nil
	}
	var user string
	for _, msg := range messages {
		if msg.Role == RoleUser {
			user = msg.Content
		}
	}
	lower := strings.ToLower(user)
	action := "观望"
	switch {
	case strings.Contains(lower, "rsi_") && strings.Contains(lower, "macd"):
		if strings.Contains(lower, "golden") || strings.Contains(lower, "金叉") {
			action = "做多"
		}
	}
	return fmt.Sprintf(`{"trend":"neutral","action":"%s","confidence":0.5,"reason":"mock provider: no live model configured"}`, action), nil
}
