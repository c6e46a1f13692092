// Package config 提供配置加载和管理功能
package config

import (
	"time"
)

// Config 应用配置根结构
type Config struct {
	App           AppConfig           `yaml:"app" mapstructure:"app"`
	LLM           LLMConfig           `yaml:"llm" mapstructure:"llm"`
	Session       SessionConfig       `yaml:"session" mapstructure:"session"`
	Quota         QuotaConfig         `yaml:"quota" mapstructure:"quota"`
	Ledger        LedgerConfig        `yaml:"ledger" mapstructure:"ledger"`
	Observability ObservabilityConfig `yaml:"observability" mapstructure:"observability"`
}

// AppConfig 应用基础配置
type AppConfig struct {
	Name    string `yaml:"name" mapstructure:"name"`
	Version string `yaml:"version" mapstructure:"version"`
	Env     string `yaml:"env" mapstructure:"env"`
	// WriterID 标识当前写作者，用于配额与用量流水
	WriterID string `yaml:"writer_id" mapstructure:"writer_id"`
}

// LLMConfig LLM 配置
type LLMConfig struct {
	DefaultProvider string                    `yaml:"default_provider" mapstructure:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers" mapstructure:"providers"`
	// MaxAttempts 单次阶段调用的固定尝试次数（含首次）
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	// RetryDelay 两次尝试之间的固定间隔
	RetryDelay time.Duration `yaml:"retry_delay" mapstructure:"retry_delay"`
}

// ProviderConfig LLM 提供商配置
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string        `yaml:"base_url" mapstructure:"base_url"`
	Model       string        `yaml:"model" mapstructure:"model"`
	MaxTokens   int           `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64       `yaml:"temperature" mapstructure:"temperature"`
	Timeout     time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

// SessionConfig 交互式会话配置
type SessionConfig struct {
	OutputDir       string `yaml:"output_dir" mapstructure:"output_dir"`
	DefaultSegments int    `yaml:"default_segments" mapstructure:"default_segments"`
	MinSegments     int    `yaml:"min_segments" mapstructure:"min_segments"`
	MaxSegments     int    `yaml:"max_segments" mapstructure:"max_segments"`
	StreamProse     bool   `yaml:"stream_prose" mapstructure:"stream_prose"`
	// ProseMaxTokens 单个片段正文的最大输出 token，0 表示使用提供商默认值
	ProseMaxTokens int `yaml:"prose_max_tokens" mapstructure:"prose_max_tokens"`
	// PreviousContextRunes 传给下一片段的上一片段正文长度上限（按 rune 从尾部截取）
	PreviousContextRunes int `yaml:"previous_context_runes" mapstructure:"previous_context_runes"`
}

// QuotaConfig 每日 Token 配额（Redis）
type QuotaConfig struct {
	Enabled         bool        `yaml:"enabled" mapstructure:"enabled"`
	MaxTokensPerDay int64       `yaml:"max_tokens_per_day" mapstructure:"max_tokens_per_day"`
	Redis           RedisConfig `yaml:"redis" mapstructure:"redis"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Host         string        `yaml:"host" mapstructure:"host"`
	Port         int           `yaml:"port" mapstructure:"port"`
	Password     string        `yaml:"password" mapstructure:"password"`
	DB           int           `yaml:"db" mapstructure:"db"`
	PoolSize     int           `yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
}

// LedgerConfig LLM 用量流水（PostgreSQL）
type LedgerConfig struct {
	Enabled  bool           `yaml:"enabled" mapstructure:"enabled"`
	Postgres PostgresConfig `yaml:"postgres" mapstructure:"postgres"`
}

// PostgresConfig PostgreSQL 配置
type PostgresConfig struct {
	Host            string        `yaml:"host" mapstructure:"host"`
	Port            int           `yaml:"port" mapstructure:"port"`
	User            string        `yaml:"user" mapstructure:"user"`
	Password        string        `yaml:"password" mapstructure:"password"`
	Database        string        `yaml:"database" mapstructure:"database"`
	SSLMode         string        `yaml:"ssl_mode" mapstructure:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

// ObservabilityConfig 可观测性配置
type ObservabilityConfig struct {
	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
	Tracing TracingConfig `yaml:"tracing" mapstructure:"tracing"`
	Metrics MetricsConfig `yaml:"metrics" mapstructure:"metrics"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// TracingConfig 追踪配置
type TracingConfig struct {
	Enabled    bool    `yaml:"enabled" mapstructure:"enabled"`
	Endpoint   string  `yaml:"endpoint" mapstructure:"endpoint"`
	SampleRate float64 `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Port    int    `yaml:"port" mapstructure:"port"`
	Path    string `yaml:"path" mapstructure:"path"`
	// PushGatewayURL 非空时在会话结束时推送一次指标
	PushGatewayURL string `yaml:"push_gateway_url" mapstructure:"push_gateway_url"`
}
