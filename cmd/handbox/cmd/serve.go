package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mkarolys/handbox/internal/action"
	"github.com/mkarolys/handbox/internal/agent"
	"github.com/mkarolys/handbox/internal/api"
	"github.com/mkarolys/handbox/internal/config"
	"github.com/mkarolys/handbox/internal/events"
	"github.com/mkarolys/handbox/internal/llm"
	"github.com/mkarolys/handbox/internal/monitor"
	"github.com/mkarolys/handbox/internal/sandbox"
	"github.com/mkarolys/handbox/internal/session"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the handbox daemon",
	Long:  "Start the HTTP API server that accepts actions, runs them in sandboxes, and hosts conversations.",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "path to config file (default ~/.handbox/config.json)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig(serveConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()

	sandboxCfg, err := cfg.SandboxProfile()
	if err != nil {
		return fmt.Errorf("invalid sandbox configuration: %w", err)
	}

	exec := action.NewExecutor(sandboxCfg, logger)
	if err := exec.RegisterHandler(action.NewWebFetchHandler()); err != nil {
		return fmt.Errorf("failed to register web_fetch handler: %w", err)
	}

	rt, err := exec.Runtime()
	if err != nil {
		return fmt.Errorf("failed to start sandbox runtime: %w", err)
	}
	defer rt.Close()

	// Pick up sandboxes a previous daemon left behind so cleanup covers them.
	if docker, ok := rt.(*sandbox.DockerRuntime); ok {
		if adopted, err := docker.AdoptExisting(context.Background()); err != nil {
			logger.Warn("could not scan for existing sandboxes", zap.Error(err))
		} else if adopted > 0 {
			logger.Info("adopted sandboxes from a previous run", zap.Int("count", adopted))
		}
	}

	actions := action.NewServer(exec, logger)
	defer actions.Close()

	bus := events.NewBus(256)
	defer bus.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go bus.Dispatch(ctx)

	if cfg.Sandbox.Monitoring {
		mon := monitor.New(rt, bus, monitor.DefaultInterval, logger)
		go mon.Run(ctx)
	}

	idle := time.Duration(cfg.Session.IdleTimeoutMinutes) * time.Minute
	sessions := session.NewManager(cfg.Session.MaxConversations, idle, bus, logger)
	go sessions.RunJanitor(ctx)

	var client llm.Client
	if cfg.LLM.APIKey != "" {
		client = llm.NewOpenAIClient(llm.Options{
			APIKey:      cfg.LLM.APIKey,
			APIBase:     cfg.LLM.APIBase,
			Model:       cfg.LLM.Model,
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		})
		logger.Info("llm provider configured", zap.String("model", cfg.LLM.Model))
	} else {
		logger.Info("no llm api key set, agent runs in direct mode")
	}

	agentCfg := agent.DefaultConfig()
	agentCfg.SandboxTimeout = sandboxCfg.Limits.Timeout
	codeact := agent.New(exec, client, bus, agentCfg, logger)

	apiServer := api.NewServer(api.Deps{
		Actions:  actions,
		Executor: exec,
		Sessions: sessions,
		Agent:    codeact,
		Logger:   logger,
	})

	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: apiServer.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("daemon listening",
			zap.String("addr", cfg.Server.Addr()),
			zap.String("sandbox", cfg.Sandbox.Type))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown timed out", zap.Error(err))
	}

	cancel()
	actions.Close()

	if cfg.Sandbox.Cleanup {
		if err := rt.CleanupAll(shutdownCtx); err != nil {
			logger.Warn("sandbox cleanup failed", zap.Error(err))
		}
	}

	logger.Info("daemon stopped")
	return nil
}
