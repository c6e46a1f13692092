// Package config 提供配置加载功能
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// DefaultDir 默认配置目录
const DefaultDir = "configs"

var envPlaceholder = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// Load 从默认目录加载配置
func Load() (*Config, error) {
	return LoadFrom(DefaultDir)
}

// LoadFrom 加载配置文件
// 按优先级加载：默认值 -> config.yaml -> config.<APP_ENV>.yaml -> 环境变量
// CLI 可能在任意目录运行，因此两个配置文件都是可选的。
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// 1. 加载默认配置
	if err := loadConfigFile(v, filepath.Join(dir, "config.yaml"), true); err != nil {
		return nil, err
	}

	// 2. 加载环境特定配置
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	envFile := filepath.Join(dir, fmt.Sprintf("config.%s.yaml", env))
	if err := loadConfigFile(v, envFile, true); err != nil {
		return nil, err
	}

	// 3. 绑定环境变量 (直接覆盖)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值 (兜底)
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// loadConfigFile 读取文件，执行环境变量替换，并加载到 viper
func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	expanded := expandEnv(string(content))

	reader := strings.NewReader(expanded)
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		// 手动标记已加载文件，后续文件走 MergeConfig
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

// expandEnv 替换字符串中的 ${VAR:default} 占位符
func expandEnv(s string) string {
	// g1: 变量名, g2: 默认值部分（含冒号）, g3: 默认值内容
	return envPlaceholder.ReplaceAllStringFunc(s, func(match string) string {
		submatch := envPlaceholder.FindStringSubmatch(match)
		key := submatch[1]
		hasDefault := submatch[2] != ""
		defVal := submatch[3]

		if val, ok := os.LookupEnv(key); ok {
			return val
		}
		if hasDefault {
			return defVal
		}
		return match // 保留原样以便识别未定义的变量
	})
}

// MustLoad 加载配置，失败时 panic
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Validate 校验跨字段约束
func (c *Config) Validate() error {
	if c.LLM.DefaultProvider == "" {
		return fmt.Errorf("llm.default_provider is required")
	}
	if _, ok := c.LLM.Providers[c.LLM.DefaultProvider]; !ok {
		return fmt.Errorf("llm.default_provider %q not found in llm.providers", c.LLM.DefaultProvider)
	}
	if c.LLM.MaxAttempts < 1 {
		return fmt.Errorf("llm.max_attempts must be >= 1")
	}
	s := c.Session
	if s.MinSegments < 1 || s.MaxSegments < s.MinSegments {
		return fmt.Errorf("session segment bounds invalid: min=%d max=%d", s.MinSegments, s.MaxSegments)
	}
	if s.DefaultSegments < s.MinSegments || s.DefaultSegments > s.MaxSegments {
		return fmt.Errorf("session.default_segments %d outside [%d, %d]", s.DefaultSegments, s.MinSegments, s.MaxSegments)
	}
	if c.Quota.Enabled && c.Quota.MaxTokensPerDay <= 0 {
		return fmt.Errorf("quota.max_tokens_per_day must be positive when quota is enabled")
	}
	return nil
}

// setDefaults 设置配置默认值
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "storyforge")
	v.SetDefault("app.version", "v0.0.0")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.writer_id", defaultWriterID())

	// LLM 默认值：OpenAI 兼容接口
	v.SetDefault("llm.default_provider", "openai")
	v.SetDefault("llm.max_attempts", 3)
	v.SetDefault("llm.retry_delay", "1s")
	v.SetDefault("llm.providers.openai.api_key", os.Getenv("OPENAI_API_KEY"))
	v.SetDefault("llm.providers.openai.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.providers.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.providers.openai.max_tokens", 4096)
	v.SetDefault("llm.providers.openai.temperature", 0.8)
	v.SetDefault("llm.providers.openai.timeout", "120s")

	// 会话默认值
	v.SetDefault("session.output_dir", "stories")
	v.SetDefault("session.default_segments", 5)
	v.SetDefault("session.min_segments", 1)
	v.SetDefault("session.max_segments", 20)
	v.SetDefault("session.stream_prose", true)
	v.SetDefault("session.prose_max_tokens", 0)
	v.SetDefault("session.previous_context_runes", 6000)

	// 配额默认值
	v.SetDefault("quota.enabled", false)
	v.SetDefault("quota.max_tokens_per_day", 500000)
	v.SetDefault("quota.redis.host", "localhost")
	v.SetDefault("quota.redis.port", 6379)
	v.SetDefault("quota.redis.db", 0)
	v.SetDefault("quota.redis.pool_size", 4)
	v.SetDefault("quota.redis.dial_timeout", "5s")
	v.SetDefault("quota.redis.read_timeout", "3s")
	v.SetDefault("quota.redis.write_timeout", "3s")

	// 用量流水默认值
	v.SetDefault("ledger.enabled", false)
	v.SetDefault("ledger.postgres.host", "localhost")
	v.SetDefault("ledger.postgres.port", 5432)
	v.SetDefault("ledger.postgres.user", "postgres")
	v.SetDefault("ledger.postgres.database", "storyforge")
	v.SetDefault("ledger.postgres.ssl_mode", "disable")
	v.SetDefault("ledger.postgres.max_open_conns", 4)
	v.SetDefault("ledger.postgres.max_idle_conns", 2)
	v.SetDefault("ledger.postgres.conn_max_lifetime", "30m")
	v.SetDefault("ledger.postgres.auto_migrate", true)

	// 可观测性默认值
	v.SetDefault("observability.logging.level", "warn")
	v.SetDefault("observability.logging.format", "text")
	v.SetDefault("observability.tracing.enabled", false)
	v.SetDefault("observability.tracing.endpoint", "localhost:4317")
	v.SetDefault("observability.tracing.sample_rate", 1.0)
	v.SetDefault("observability.metrics.enabled", false)
	v.SetDefault("observability.metrics.port", 9464)
	v.SetDefault("observability.metrics.path", "/metrics")
	v.SetDefault("observability.metrics.push_gateway_url", "")
}

func defaultWriterID() string {
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "anonymous"
}
