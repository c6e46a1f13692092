package wire

import (
	"context"

	"storyforge/internal/application/quota"
	"storyforge/internal/application/session"
	"storyforge/internal/application/story/attributes"
	"storyforge/internal/application/story/genre"
	"storyforge/internal/application/story/outline"
	"storyforge/internal/application/story/prose"
	"storyforge/internal/config"
	"storyforge/internal/infrastructure/eino/callback"
	"storyforge/internal/infrastructure/llm"
	"storyforge/internal/interfaces/http/router"
)

// App 一次 CLI 运行所需的全部组件
type App struct {
	Config  *config.Config
	Session *session.Session
	// Router 指标端点未启用时为 nil
	Router *router.Router
}

// InitializeApp 按依赖顺序构建应用；返回的 cleanup 逆序释放资源
func InitializeApp(ctx context.Context, cfg *config.Config, flags Flags, prompter session.Prompter, printer session.Printer) (*App, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	if err := ApplyFlags(cfg, flags); err != nil {
		return fail(err)
	}

	rc, closeRedis, err := ProvideRedisClient(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closeRedis)

	pg, closePostgres, err := ProvidePostgresClient(ctx, cfg)
	if err != nil {
		return fail(err)
	}
	cleanups = append(cleanups, closePostgres)

	counter := ProvideTokenCounter(rc)
	ledger := ProvideUsageLedger(pg)

	// eino 全局 callbacks：指标、span 与用量记录
	callback.Init(quota.NewLLMUsageRecorder(counter, ledger))

	genres, err := genre.Load()
	if err != nil {
		return fail(err)
	}
	opts, err := ProvideSessionOptions(cfg, flags, genres)
	if err != nil {
		return fail(err)
	}

	factory := llm.NewEinoFactory(&cfg.LLM)
	retry := ProvideRetryPolicy(cfg)

	sess, err := session.New(session.Deps{
		Prompter:   prompter,
		Printer:    printer,
		Genres:     genres,
		Attributes: attributes.NewGenerator(factory, genres, retry),
		Outline:    outline.NewGenerator(factory, retry),
		Prose: prose.NewWriter(factory, prose.Options{
			Retry:                retry,
			Stream:               cfg.Session.StreamProse,
			PreviousContextRunes: cfg.Session.PreviousContextRunes,
		}),
		Quota: ProvideQuotaChecker(cfg, counter, ledger, callback.Pending()),
	}, opts)
	if err != nil {
		return fail(err)
	}

	return &App{
		Config:  cfg,
		Session: sess,
		Router:  ProvideRouter(cfg, rc, pg),
	}, cleanup, nil
}
