package config

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lumakit/relay/budget"
)

// DefaultConfig returns the full default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Delegation: DefaultDelegationConfig(),
		Budget:     DefaultBudgetConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Log:        DefaultLogConfig(),
	}
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

func DefaultDelegationConfig() DelegationConfig {
	return DelegationConfig{
		Timeout:    300 * time.Second,
		HistoryTTL: 10 * time.Minute,
	}
}

func DefaultBudgetConfig() BudgetConfig {
	return BudgetConfig{Preset: "standard"}
}

func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:      "localhost:6379",
		KeyPrefix: "interrupt:",
	}
}

func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:  "sqlite",
		Name:    "relay.db",
		SSLMode: "disable",
	}
}

func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// Resolve maps the budget section to concrete limits. Presets win over
// explicit fields.
func (b BudgetConfig) Resolve() (budget.ExecutionBudget, error) {
	switch b.Preset {
	case "tight":
		return budget.TightBudget(), nil
	case "standard":
		return budget.StandardBudget(), nil
	case "extended":
		return budget.ExtendedBudget(), nil
	case "":
		return budget.ExecutionBudget{
			MaxDuration:  b.MaxDuration,
			MaxToolCalls: b.MaxToolCalls,
			MaxCycles:    b.MaxCycles,
		}, nil
	default:
		return budget.ExecutionBudget{}, fmt.Errorf("unknown budget preset %q", b.Preset)
	}
}

// BuildLogger constructs a zap logger from the log section.
func (l LogConfig) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", l.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if l.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	if len(l.OutputPaths) > 0 {
		zapCfg.OutputPaths = l.OutputPaths
	}
	zapCfg.DisableCaller = !l.EnableCaller
	zapCfg.DisableStacktrace = !l.EnableStacktrace

	return zapCfg.Build()
}
