// Package config loads the bot's environment surface via viper, the way
// the upstream trading-ai stack always has: a .env file overlaid by
// AutomaticEnv, with defaults set before any read.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/rdone4425/trading-ai/internal/indicators"
)

// Environment selects which exchange base URL and order-placement
// behavior the bot runs under.
type Environment string

const (
	EnvObserve Environment = "observe"
	EnvTestnet Environment = "testnet"
	EnvMainnet Environment = "mainnet"
)

// Config holds every environment-driven setting for one process.
type Config struct {
	ExchangeName string
	Environment  Environment

	BinanceAPIKey    string
	BinanceAPISecret string

	Timeframe string
	Lookback  int
	KlineType string // "closed" or "open"

	CustomSymbols []string
	ScanTypes     []string
	ScanTopN      int
	DefaultQuote  string

	UseAIAnalysis          bool
	AIConfidenceThreshold  float64
	AIProvider             string
	AIAPIKey               string
	AIModel                string
	AIBackendURL           string

	EnableSentiment  bool
	SentimentAPIURL  string
	SentimentAPIKey  string

	MaxConcurrentAnalysis int

	AccountBalance  float64
	RiskPercent     float64
	RiskRewardRatio float64
	ATRMultiplier   float64
	MaxLeverage     int
	MaxLossPerTrade float64
	MaxPositionSize float64

	StopLossStrategy        string
	TrailingPercent         float64
	StopLossChangeThreshold float64

	AutoScan     bool
	WaitForClose bool

	SaveAnalysisResults bool
	AnalysisResultsDir  string
	DatabasePath        string

	EnableAutoLearning  bool
	EnableAutoReview    bool
	AutoLearningTopics  []string

	IndicatorSpecs []indicators.Spec

	UseProxy  bool
	ProxyHost string
	ProxyPort string

	DebugMode bool
	WebPort   int

	PromptsDir        string
	LogDir            string
	LogRetentionHours int
}

// LoadConfig loads configuration from pathToEnv (default ".env") plus the
// process environment; AutomaticEnv lets bare env vars override or
// substitute for a missing file entirely.
func LoadConfig(pathToEnv string) (*Config, error) {
	viper.SetConfigType("env")
	viper.AutomaticEnv()

	configPath := ".env"
	if pathToEnv != "" {
		configPath = pathToEnv
	}
	// With an explicit config file viper reports a missing file as a plain
	// path error rather than ConfigFileNotFoundError, so check existence
	// first: a missing .env just means everything comes from the
	// environment and the defaults.
	if _, err := os.Stat(configPath); err == nil {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("config: read %s: %w", configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("config: stat %s: %w", configPath, err)
	}

	setDefaults()

	cfg := &Config{
		ExchangeName: viper.GetString("EXCHANGE_NAME"),
		Environment:  Environment(viper.GetString("TRADING_ENVIRONMENT")),

		BinanceAPIKey:    viper.GetString("BINANCE_API_KEY"),
		BinanceAPISecret: viper.GetString("BINANCE_API_SECRET"),

		Timeframe: viper.GetString("TIMEFRAME"),
		Lookback:  viper.GetInt("LOOKBACK"),
		KlineType: viper.GetString("KLINE_TYPE"),

		ScanTopN:     viper.GetInt("SCAN_TOP_N"),
		DefaultQuote: viper.GetString("DEFAULT_QUOTE"),

		UseAIAnalysis:         viper.GetBool("USE_AI_ANALYSIS"),
		AIConfidenceThreshold: viper.GetFloat64("AI_CONFIDENCE_THRESHOLD"),
		AIProvider:            viper.GetString("AI_PROVIDER"),
		AIAPIKey:              viper.GetString("AI_API_KEY"),
		AIModel:               viper.GetString("AI_MODEL"),
		AIBackendURL:          viper.GetString("AI_BACKEND_URL"),

		EnableSentiment: viper.GetBool("ENABLE_SENTIMENT"),
		SentimentAPIURL: viper.GetString("SENTIMENT_API_URL"),
		SentimentAPIKey: viper.GetString("SENTIMENT_API_KEY"),

		MaxConcurrentAnalysis: viper.GetInt("MAX_CONCURRENT_ANALYSIS"),

		AccountBalance:  viper.GetFloat64("ACCOUNT_BALANCE"),
		RiskPercent:     viper.GetFloat64("RISK_PERCENT"),
		RiskRewardRatio: viper.GetFloat64("RISK_REWARD_RATIO"),
		ATRMultiplier:   viper.GetFloat64("ATR_MULTIPLIER"),
		MaxLeverage:     viper.GetInt("MAX_LEVERAGE"),
		MaxLossPerTrade: viper.GetFloat64("MAX_LOSS_PER_TRADE"),
		MaxPositionSize: viper.GetFloat64("MAX_POSITION_SIZE"),

		StopLossStrategy:        viper.GetString("STOP_LOSS_STRATEGY"),
		TrailingPercent:         viper.GetFloat64("TRAILING_PERCENT"),
		StopLossChangeThreshold: viper.GetFloat64("STOP_LOSS_CHANGE_THRESHOLD"),

		AutoScan:     viper.GetBool("AUTO_SCAN"),
		WaitForClose: viper.GetBool("WAIT_FOR_CLOSE"),

		SaveAnalysisResults: viper.GetBool("SAVE_ANALYSIS_RESULTS"),
		AnalysisResultsDir:  viper.GetString("ANALYSIS_RESULTS_DIR"),
		DatabasePath:        viper.GetString("DATABASE_PATH"),

		EnableAutoLearning: viper.GetBool("ENABLE_AUTO_LEARNING"),
		EnableAutoReview:   viper.GetBool("ENABLE_AUTO_REVIEW"),

		UseProxy:  viper.GetBool("USE_PROXY"),
		ProxyHost: viper.GetString("PROXY_HOST"),
		ProxyPort: viper.GetString("PROXY_PORT"),

		DebugMode: viper.GetBool("DEBUG_MODE"),
		WebPort:   viper.GetInt("WEB_PORT"),

		PromptsDir:        viper.GetString("PROMPTS_DIR"),
		LogDir:            viper.GetString("LOG_DIR"),
		LogRetentionHours: viper.GetInt("LOG_RETENTION_HOURS"),
	}

	cfg.CustomSymbols = splitAndTrim(viper.GetString("CUSTOM_SYMBOLS"))
	cfg.ScanTypes = splitAndTrim(viper.GetString("SCAN_TYPES"))
	cfg.AutoLearningTopics = splitAndTrim(viper.GetString("AUTO_LEARNING_TOPICS"))

	cfg.IndicatorSpecs = parseIndicatorConfig()
	if len(cfg.IndicatorSpecs) == 0 {
		cfg.IndicatorSpecs = indicators.DefaultSpecs()
	}

	return cfg, nil
}

// parseIndicatorConfig scans every INDICATOR_<name> env var via viper's
// settings snapshot and parses it with the shared grammar (§3 Indicator
// config). Unknown names are warned and skipped, never a hard error.
func parseIndicatorConfig() []indicators.Spec {
	all := viper.AllSettings()
	env := make(map[string]string, len(all))
	for k, v := range all {
		if s, ok := v.(string); ok {
			env[k] = s
		}
	}
	// AutomaticEnv only answers lookups of known keys, so env-only
	// INDICATOR_* variables never appear in AllSettings; read them here.
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(strings.ToUpper(k), "INDICATOR_") {
			env[strings.ToLower(k)] = v
		}
	}
	return indicators.ParseEnvConfig(env, func(msg string) {
		fmt.Fprintln(os.Stderr, "config: "+msg)
	})
}

func splitAndTrim(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setDefaults() {
	viper.SetDefault("EXCHANGE_NAME", "binance")
	viper.SetDefault("TRADING_ENVIRONMENT", "observe")

	viper.SetDefault("TIMEFRAME", "1h")
	viper.SetDefault("LOOKBACK", 100)
	viper.SetDefault("KLINE_TYPE", "closed")

	viper.SetDefault("SCAN_TYPES", "hot,volume,gainers,losers")
	viper.SetDefault("SCAN_TOP_N", 20)
	viper.SetDefault("DEFAULT_QUOTE", "USDT")

	viper.SetDefault("USE_AI_ANALYSIS", true)
	viper.SetDefault("AI_CONFIDENCE_THRESHOLD", 0.6)
	viper.SetDefault("AI_PROVIDER", "mock")
	viper.SetDefault("AI_BACKEND_URL", "https://api.openai.com/v1")

	viper.SetDefault("ENABLE_SENTIMENT", false)
	viper.SetDefault("SENTIMENT_API_URL", "https://service.cryptoracle.network/openapi/v2/endpoint")

	viper.SetDefault("MAX_CONCURRENT_ANALYSIS", 3)

	viper.SetDefault("ACCOUNT_BALANCE", 10000.0)
	viper.SetDefault("RISK_PERCENT", 1.0)
	viper.SetDefault("RISK_REWARD_RATIO", 2.0)
	viper.SetDefault("ATR_MULTIPLIER", 2.0)
	viper.SetDefault("MAX_LEVERAGE", 10)
	viper.SetDefault("MAX_LOSS_PER_TRADE", 0.02)
	viper.SetDefault("MAX_POSITION_SIZE", 0.3)

	viper.SetDefault("STOP_LOSS_STRATEGY", "fixed")
	viper.SetDefault("TRAILING_PERCENT", 1.0)
	viper.SetDefault("STOP_LOSS_CHANGE_THRESHOLD", 0.2)

	viper.SetDefault("AUTO_SCAN", false)
	viper.SetDefault("WAIT_FOR_CLOSE", true)

	viper.SetDefault("SAVE_ANALYSIS_RESULTS", false)
	viper.SetDefault("ANALYSIS_RESULTS_DIR", "data")
	viper.SetDefault("DATABASE_PATH", "data/ledger.db")

	viper.SetDefault("ENABLE_AUTO_LEARNING", true)
	viper.SetDefault("ENABLE_AUTO_REVIEW", true)
	viper.SetDefault("AUTO_LEARNING_TOPICS", "")

	viper.SetDefault("USE_PROXY", false)

	viper.SetDefault("DEBUG_MODE", false)
	viper.SetDefault("WEB_PORT", 8080)

	viper.SetDefault("PROMPTS_DIR", "prompts")
	viper.SetDefault("LOG_DIR", "logs")
	viper.SetDefault("LOG_RETENTION_HOURS", 3)
}

// Proxy renders the configured proxy as a URL string, or "" when disabled.
func (c *Config) Proxy() string {
	if !c.UseProxy || c.ProxyHost == "" {
		return ""
	}
	port := c.ProxyPort
	if port == "" {
		port = "8080"
	}
	return fmt.Sprintf("http://%s:%s", c.ProxyHost, port)
}

// BaseURL returns the exchange base URL for the configured environment.
func (c *Config) BaseURL() string {
	switch c.Environment {
	case EnvTestnet:
		return "https://testnet.binancefuture.com"
	default:
		return "https://fapi.binance.com"
	}
}

// Observe reports whether order placement is disabled.
func (c *Config) Observe() bool {
	return c.Environment == EnvObserve || c.Environment == ""
}

// Validate checks the settings that must hold before the bot can run in a
// non-observe environment.
func (c *Config) Validate() error {
	if !c.Observe() {
		if c.BinanceAPIKey == "" || c.BinanceAPISecret == "" {
			return fmt.Errorf("config: BINANCE_API_KEY and BINANCE_API_SECRET are required outside observe mode")
		}
	}
	if c.UseAIAnalysis && c.AIProvider != "mock" && c.AIAPIKey == "" {
		return fmt.Errorf("config: AI_API_KEY is required for AI_PROVIDER=%s", c.AIProvider)
	}
	if c.MaxConcurrentAnalysis <= 0 {
		return fmt.Errorf("config: MAX_CONCURRENT_ANALYSIS must be > 0")
	}
	switch c.StopLossStrategy {
	case "", "fixed", "breakeven", "trailing":
	default:
		return fmt.Errorf("config: unknown STOP_LOSS_STRATEGY %q", c.StopLossStrategy)
	}
	if c.EnableSentiment && (c.SentimentAPIKey == "" || c.SentimentAPIURL == "") {
		return fmt.Errorf("config: SENTIMENT_API_URL and SENTIMENT_API_KEY are required when ENABLE_SENTIMENT=true")
	}
	return nil
}
