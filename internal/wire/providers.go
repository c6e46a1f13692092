// Package wire 组装 CLI 的依赖图。
// 可选依赖（Redis 配额、Postgres 流水、指标端点）未启用时对应 provider 返回 nil。
package wire

import (
	"context"
	"strings"

	"storyforge/internal/application/quota"
	"storyforge/internal/application/session"
	"storyforge/internal/application/story/genre"
	"storyforge/internal/config"
	"storyforge/internal/domain/repository"
	"storyforge/internal/domain/service"
	"storyforge/internal/infrastructure/persistence/postgres"
	"storyforge/internal/infrastructure/persistence/redis"
	"storyforge/internal/interfaces/http/handler"
	"storyforge/internal/interfaces/http/router"
	wfmodel "storyforge/internal/workflow/model"
	wfnode "storyforge/internal/workflow/node"
	apperrors "storyforge/pkg/errors"
	"storyforge/pkg/logger"
)

// Flags 命令行对配置的覆盖项，零值表示不覆盖
type Flags struct {
	Provider string
	Model    string
	Genre    string
	Output   string
	Segments int
	NoStream bool
}

// ApplyFlags 将命令行覆盖写回配置
func ApplyFlags(cfg *config.Config, flags Flags) error {
	if p := strings.TrimSpace(flags.Provider); p != "" {
		if _, ok := cfg.LLM.Providers[p]; !ok {
			return apperrors.ErrInvalidParam.WithDetail("unknown provider: " + p)
		}
		cfg.LLM.DefaultProvider = p
	}
	if flags.NoStream {
		cfg.Session.StreamProse = false
	}
	return nil
}

// ProvideRedisClient 配额启用时连接 Redis
func ProvideRedisClient(ctx context.Context, cfg *config.Config) (*redis.Client, func(), error) {
	if !cfg.Quota.Enabled {
		return nil, func() {}, nil
	}
	client, err := redis.NewClient(ctx, &cfg.Quota.Redis)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeCacheError, "quota store unavailable")
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn(ctx, "failed to close redis client", "error", err)
		}
	}
	return client, cleanup, nil
}

// ProvidePostgresClient 用量流水启用时连接 PostgreSQL
func ProvidePostgresClient(ctx context.Context, cfg *config.Config) (*postgres.Client, func(), error) {
	if !cfg.Ledger.Enabled {
		return nil, func() {}, nil
	}
	client, err := postgres.NewClient(ctx, &cfg.Ledger.Postgres)
	if err != nil {
		return nil, nil, apperrors.Wrap(err, apperrors.CodeDatabaseError, "usage ledger unavailable")
	}
	cleanup := func() {
		if err := client.Close(); err != nil {
			logger.Warn(ctx, "failed to close postgres client", "error", err)
		}
	}
	return client, cleanup, nil
}

// ProvideTokenCounter 客户端为 nil 时返回 nil 接口
func ProvideTokenCounter(client *redis.Client) repository.TokenCounter {
	if client == nil {
		return nil
	}
	return redis.NewTokenCounter(client)
}

// ProvideUsageLedger 客户端为 nil 时返回 nil 接口
func ProvideUsageLedger(client *postgres.Client) repository.LLMUsageEventRepository {
	if client == nil {
		return nil
	}
	return postgres.NewLLMUsageEventRepository(client)
}

// ProvideQuotaChecker 配额未启用时返回 nil，会话跳过检查
func ProvideQuotaChecker(cfg *config.Config, counter repository.TokenCounter, ledger repository.LLMUsageEventRepository, flusher service.UsageFlusher) session.QuotaChecker {
	if !cfg.Quota.Enabled {
		return nil
	}
	return quota.NewTokenQuotaChecker(counter, ledger, cfg.Quota.MaxTokensPerDay).WithFlusher(flusher)
}

func ProvideRetryPolicy(cfg *config.Config) wfnode.RetryPolicy {
	return wfnode.RetryPolicy{
		MaxAttempts: cfg.LLM.MaxAttempts,
		Delay:       cfg.LLM.RetryDelay,
	}
}

// ProvideSessionOptions 合并配置与命令行覆盖，校验体裁与片段数
func ProvideSessionOptions(cfg *config.Config, flags Flags, genres *genre.Catalogue) (session.Options, error) {
	s := cfg.Session
	opts := session.Options{
		WriterID:        cfg.App.WriterID,
		OutputPath:      strings.TrimSpace(flags.Output),
		DefaultSegments: s.DefaultSegments,
		MinSegments:     s.MinSegments,
		MaxSegments:     s.MaxSegments,
		OutputDir:       s.OutputDir,
		LLM: wfmodel.LLMParams{
			Provider: cfg.LLM.DefaultProvider,
			Model:    strings.TrimSpace(flags.Model),
		},
	}

	if g := strings.TrimSpace(flags.Genre); g != "" {
		canonical, ok := genres.Canonical(g)
		if !ok {
			return opts, apperrors.ErrInvalidParam.WithDetail("unknown genre: " + g)
		}
		opts.Genre = canonical
	}

	if flags.Segments != 0 {
		if flags.Segments < s.MinSegments || flags.Segments > s.MaxSegments {
			return opts, apperrors.ErrInvalidParam.WithDetail("segment count out of range")
		}
		opts.Segments = flags.Segments
	}

	opts.ProseLLM = opts.LLM
	if s.ProseMaxTokens > 0 {
		maxTokens := s.ProseMaxTokens
		opts.ProseLLM.MaxTokens = &maxTokens
	}
	return opts, nil
}

// ProvideRouter 指标端点未启用时返回 nil
func ProvideRouter(cfg *config.Config, rc *redis.Client, pg *postgres.Client) *router.Router {
	if !cfg.Observability.Metrics.Enabled {
		return nil
	}
	checkers := map[string]handler.HealthChecker{}
	if rc != nil {
		checkers["redis"] = rc
	}
	if pg != nil {
		checkers["postgres"] = pg
	}
	return router.New(cfg, checkers)
}
