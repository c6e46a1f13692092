// Package main storyforge 交互式分阶段故事生成 CLI 入口
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"storyforge/internal/config"
	"storyforge/internal/interfaces/terminal"
	"storyforge/internal/wire"
	apperrors "storyforge/pkg/errors"
	"storyforge/pkg/logger"
	"storyforge/pkg/tracer"
)

// Version 版本信息，构建时注入
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type cliOptions struct {
	configDir  string
	logLevel   string
	accessible bool
	flags      wire.Flags
}

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	opts := &cliOptions{}
	var runErr error

	cmd := newRootCommand(opts, func(ctx context.Context) error {
		runErr = run(ctx, opts)
		return nil
	})
	cmd.SetArgs(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		// 参数解析错误，cobra 已打印用法
		return 2
	}
	return apperrors.ExitCode(runErr)
}

func newRootCommand(opts *cliOptions, runFn func(ctx context.Context) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storyforge",
		Short: "Write a short story with an LLM, one reviewed stage at a time",
		Long: "storyforge turns a free-text prompt into a story in three stages: " +
			"attributes (genre, themes, characters, setting), an outline of segments, " +
			"and prose for each segment. Every stage can be accepted, regenerated or abandoned.",
		Version:       fmt.Sprintf("%s (built %s)", Version, BuildTime),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runFn(cmd.Context())
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configDir, "config-dir", config.DefaultDir, "directory holding config.yaml and config.<APP_ENV>.yaml")
	f.StringVar(&opts.flags.Provider, "provider", "", "LLM provider name from llm.providers")
	f.StringVar(&opts.flags.Model, "model", "", "override the provider's model")
	f.StringVarP(&opts.flags.Output, "output", "o", "", "output file path (skips the path question)")
	f.IntVarP(&opts.flags.Segments, "segments", "n", 0, "number of segments (skips the count question)")
	f.StringVarP(&opts.flags.Genre, "genre", "g", "", "pin a genre from the built-in list (skips the genre question)")
	f.BoolVar(&opts.flags.NoStream, "no-stream", false, "print each segment only after it is complete")
	f.StringVar(&opts.logLevel, "log-level", "", "log level: debug, info, warn, error")
	f.BoolVar(&opts.accessible, "accessible", os.Getenv("ACCESSIBLE") != "", "line-based prompts instead of interactive forms")
	return cmd
}

func run(ctx context.Context, opts *cliOptions) error {
	// 加载 .env 文件（如果存在）
	_ = godotenv.Load()

	cfg, err := config.LoadFrom(opts.configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return apperrors.Wrap(err, apperrors.CodeConfigError, "failed to load config")
	}

	level := cfg.Observability.Logging.Level
	if opts.logLevel != "" {
		level = opts.logLevel
	}
	logger.Init(level, cfg.Observability.Logging.Format)
	logger.Info(ctx, "starting storyforge",
		"version", Version,
		"env", cfg.App.Env,
		"provider", cfg.LLM.DefaultProvider,
	)

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: cfg.App.Name,
		Version:     Version,
		Environment: cfg.App.Env,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Error(ctx, "failed to init tracer", err)
		return apperrors.Wrap(err, apperrors.CodeConfigError, "failed to init tracer")
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			logger.Warn(ctx, "failed to shutdown tracer", "error", err)
		}
	}()

	printer := terminal.NewPrinter(os.Stdout)
	prompter := terminal.NewPrompter(terminal.WithAccessible(opts.accessible))

	app, cleanup, err := wire.InitializeApp(ctx, cfg, opts.flags, prompter, printer)
	if err != nil {
		printer.Failure(err)
		return err
	}
	defer cleanup()

	err = runSession(ctx, app)
	pushMetrics(ctx, cfg)
	if err != nil {
		printer.Failure(err)
	}
	return err
}
