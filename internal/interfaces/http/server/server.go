// Package server 运行指标 HTTP 服务，生命周期跟随会话 context
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"storyforge/pkg/logger"
)

const shutdownTimeout = 5 * time.Second

// Server 指标 HTTP 服务
type Server struct {
	srv *http.Server
}

// New 创建服务，port 为 0 时由系统分配端口
func New(port int, handler http.Handler) *Server {
	return &Server{
		srv: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run 监听并服务，ctx 结束时优雅关闭；正常关闭返回 nil
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve 在给定 listener 上服务
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "metrics server starting", "addr", ln.Addr().String())
		errCh <- s.srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown metrics server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	logger.Info(ctx, "metrics server stopped")
	return nil
}
