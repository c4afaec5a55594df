package config

import (
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/ledgerloom/ledgerloom/internal/common"
	"github.com/ledgerloom/ledgerloom/internal/engine"
	"github.com/ledgerloom/ledgerloom/internal/llm"
	"github.com/ledgerloom/ledgerloom/internal/model"
)

// LoadEngineConfig builds the engine tunables from Viper, falling back to
// the standard defaults for anything unset.
func LoadEngineConfig() engine.Config {
	cfg := engine.DefaultConfig()

	if v := viper.GetFloat64("engine.threshold"); v > 0 {
		cfg.Threshold = v
	}
	if v := viper.GetFloat64("engine.consult_threshold"); v > 0 {
		cfg.ConsultThreshold = v
	}
	if v := viper.GetInt("engine.batch_workers"); v > 0 {
		cfg.BatchWorkers = v
	}
	if v := viper.GetStringMap("engine.tenant_thresholds"); len(v) > 0 {
		cfg.TenantThresholds = make(map[string]float64, len(v))
		for tenant := range v {
			cfg.TenantThresholds[tenant] = viper.GetFloat64("engine.tenant_thresholds." + tenant)
		}
	}

	weights := engine.DefaultWeights()
	if v := viper.GetFloat64("engine.weights.rule"); v > 0 {
		weights[model.SourceRule] = v
	}
	if v := viper.GetFloat64("engine.weights.similarity"); v > 0 {
		weights[model.SourceSimilarity] = v
	}
	if v := viper.GetFloat64("engine.weights.llm"); v > 0 {
		weights[model.SourceLLM] = v
	}
	cfg.Weights = weights

	return cfg
}

// BreakerSettings are the budget circuit breaker limits.
type BreakerSettings struct {
	MaxCalls int64
	MaxCents int64
	Cooldown time.Duration
}

// LoadBreakerSettings reads the budget limits. Zero limits disable a check.
func LoadBreakerSettings() BreakerSettings {
	s := BreakerSettings{
		MaxCalls: viper.GetInt64("budget.max_calls"),
		MaxCents: viper.GetInt64("budget.max_cents"),
		Cooldown: viper.GetDuration("budget.cooldown"),
	}
	if s.Cooldown == 0 {
		s.Cooldown = 15 * time.Minute
	}
	return s
}

// ColdStartRequiredN reads the consistent-label count a vendor needs before
// it is eligible for auto-posting.
func ColdStartRequiredN() int {
	if v := viper.GetInt("coldstart.required_n"); v > 0 {
		return v
	}
	return 3
}

// LoadLLMConfig builds the fallback classifier configuration. API keys come
// from the environment, never the config file.
func LoadLLMConfig() (llm.Config, error) {
	cfg := llm.Config{
		Provider:         viper.GetString("llm.provider"),
		Model:            viper.GetString("llm.model"),
		Temperature:      viper.GetFloat64("llm.temperature"),
		MaxTokens:        viper.GetInt("llm.max_tokens"),
		RateLimit:        viper.GetInt("llm.rate_limit"),
		CacheTTL:         viper.GetDuration("llm.cache_ttl"),
		RequestTimeout:   viper.GetDuration("llm.request_timeout"),
		RetryDelay:       viper.GetDuration("llm.retry_delay"),
		CostPerCallCents: viper.GetInt64("llm.cost_per_call_cents"),
	}
	if cfg.Provider == "" {
		cfg.Provider = "anthropic"
	}
	if cfg.CostPerCallCents == 0 {
		cfg.CostPerCallCents = 1
	}

	switch cfg.Provider {
	case "anthropic":
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		cfg.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.APIKey == "" {
		return cfg, common.NewUserError(
			"LLM API key not set; set ANTHROPIC_API_KEY or OPENAI_API_KEY, or disable the fallback classifier with llm.enabled=false",
			common.ErrMissingConfig)
	}
	return cfg, nil
}
