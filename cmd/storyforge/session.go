package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
	"golang.org/x/sync/errgroup"

	"storyforge/internal/config"
	"storyforge/internal/interfaces/http/server"
	"storyforge/internal/wire"
	"storyforge/pkg/logger"
)

// runSession 运行交互会话；指标端点启用时与会话并行服务，会话结束即关闭
func runSession(ctx context.Context, app *wire.App) error {
	g, gctx := errgroup.WithContext(ctx)
	srvCtx, stopServer := context.WithCancel(gctx)
	defer stopServer()

	if app.Router != nil {
		srv := server.New(app.Config.Observability.Metrics.Port, app.Router.Engine())
		g.Go(func() error {
			// 指标端点失败不影响写作
			if err := srv.Run(srvCtx); err != nil {
				logger.Warn(gctx, "metrics server stopped", "error", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		defer stopServer()
		res, err := app.Session.Run(gctx)
		if err != nil {
			return err
		}
		logger.Debug(gctx, "session finished", "session_id", res.SessionID, "path", res.Path)
		return nil
	})

	return g.Wait()
}

// pushMetrics 配置了 Pushgateway 时推送本次运行的指标
func pushMetrics(ctx context.Context, cfg *config.Config) {
	url := cfg.Observability.Metrics.PushGatewayURL
	if url == "" {
		return
	}
	pusher := push.New(url, cfg.App.Name).
		Gatherer(prometheus.DefaultGatherer).
		Grouping("writer", cfg.App.WriterID)
	if err := pusher.PushContext(context.WithoutCancel(ctx)); err != nil {
		logger.Warn(ctx, "failed to push metrics", "url", url, "error", err)
	}
}
