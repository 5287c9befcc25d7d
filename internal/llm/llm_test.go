package llm

import (
	"context"
	"strings"
	"testing"
)

func TestNewFallsBackToMockForUnknownProvider(t *testing.T) {
	p := New(Config{Provider: "not-a-real-provider"})
	if _, ok := p.(*Mock); !ok {
		t.Fatalf("New(unknown provider) = %T, want *Mock", p)
	}
}

func TestNewDefaultsToOpenAI(t *testing.T) {
	p := New(Config{})
	if _, ok := p.(*openaiProvider); !ok {
		t.Fatalf("New(empty provider) = %T, want *openaiProvider", p)
	}
}

func TestIsQwenModel(t *testing.T) {
	cases := map[string]bool{
		"qwen-plus":      true,
		"Qwen2.5-72B":    true,
		"gpt-4o":         false,
		"deepseek-chat":  false,
		"":               false,
	}
	for model, want := range cases {
		if got := isQwenModel(model); got != want {
			t.Errorf("isQwenModel(%q) = %v, want %v", model, got, want)
		}
	}
}

func TestMockChatUsesResponderOverride(t *testing.T) {
	m := &Mock{Responder: func(messages []Message) string { return "custom" }}
	got, err := m.Chat(context.Background(), []Message{{Role: RoleUser, Content: "anything"}}, 0.3, 2000)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if got != "custom" {
		t.Errorf("Chat = %q, want %q", got, "custom")
	}
}

func TestMockChatDefaultHeuristicObservesByDefault(t *testing.T) {
	m := NewMock()
	got, err := m.Chat(context.Background(), []Message{{Role: RoleUser, Content: "nothing relevant here"}}, 0.3, 2000)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(got, `"action":"观望"`) {
		t.Errorf("Chat = %q, want an observe action absent bullish signals", got)
	}
}

func TestMockChatDefaultHeuristicDetectsGoldenCross(t *testing.T) {
	m := NewMock()
	got, err := m.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "you are a trading advisor"},
		{Role: RoleUser, Content: "rsi_14: 55, macd golden cross just formed"},
	}, 0.3, 2000)
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if !strings.Contains(got, `"action":"做多"`) {
		t.Errorf("Chat = %q, want a long action on golden cross wording", got)
	}
}
