package config

import "testing"

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("../../test/.env.nonexistent")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if cfg.Timeframe != "1h" {
		t.Errorf("Timeframe default: got %q, want 1h", cfg.Timeframe)
	}
	if cfg.Lookback != 100 {
		t.Errorf("Lookback default: got %d, want 100", cfg.Lookback)
	}
	if !cfg.Observe() {
		t.Errorf("expected default TRADING_ENVIRONMENT to be observe")
	}
	if len(cfg.ScanTypes) != 4 {
		t.Errorf("ScanTypes default: got %v", cfg.ScanTypes)
	}
	if len(cfg.IndicatorSpecs) == 0 {
		t.Errorf("expected default indicator specs to be populated")
	}
	if cfg.StopLossStrategy != "fixed" {
		t.Errorf("StopLossStrategy default: got %q, want fixed", cfg.StopLossStrategy)
	}
	if cfg.EnableSentiment {
		t.Errorf("sentiment must be opt-in")
	}
	if cfg.LogDir != "logs" || cfg.LogRetentionHours != 3 {
		t.Errorf("log defaults: dir=%q hours=%d", cfg.LogDir, cfg.LogRetentionHours)
	}
}

func TestConfigValidateRequiresSentimentKeyWhenEnabled(t *testing.T) {
	cfg := &Config{Environment: EnvObserve, MaxConcurrentAnalysis: 3, AIProvider: "mock",
		EnableSentiment: true, SentimentAPIURL: "https://example.com"}
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected validation error for ENABLE_SENTIMENT without an api key")
	}
	cfg.SentimentAPIKey = "k"
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected valid sentiment config to pass: %v", err)
	}
}

func TestConfigValidateRejectsUnknownStopStrategy(t *testing.T) {
	cfg := &Config{Environment: EnvObserve, MaxConcurrentAnalysis: 3, AIProvider: "mock", StopLossStrategy: "martingale"}
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected validation error for unknown stop-loss strategy")
	}
}

func TestConfigValidateObserveMode(t *testing.T) {
	cfg := &Config{Environment: EnvObserve, MaxConcurrentAnalysis: 3, AIProvider: "mock"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("observe mode should validate without exchange credentials: %v", err)
	}
}

func TestConfigValidateRequiresCredentialsOutsideObserve(t *testing.T) {
	cfg := &Config{Environment: EnvMainnet, MaxConcurrentAnalysis: 3, AIProvider: "mock"}
	if err := cfg.Validate(); err == nil {
		t.Errorf("expected validation error without exchange credentials in mainnet mode")
	}
}

func TestProxyDisabledByDefault(t *testing.T) {
	cfg := &Config{}
	if got := cfg.Proxy(); got != "" {
		t.Errorf("expected empty proxy, got %q", got)
	}
}
