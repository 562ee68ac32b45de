package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/opensource-finance/underwriter/internal/api"
	"github.com/opensource-finance/underwriter/internal/bus"
	"github.com/opensource-finance/underwriter/internal/cache"
	"github.com/opensource-finance/underwriter/internal/decision"
	"github.com/opensource-finance/underwriter/internal/domain"
	"github.com/opensource-finance/underwriter/internal/repository"
	"github.com/opensource-finance/underwriter/internal/rules"
	"github.com/opensource-finance/underwriter/internal/seed"
	"github.com/opensource-finance/underwriter/internal/worker"
)

func newServeCmd(app *cli) *cobra.Command {
	var seedTenant string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, when enabled, the async worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, app.cfg, seedTenant)
		},
	}
	cmd.Flags().StringVar(&seedTenant, "seed-tenant", "", "apply the default rule pack to this tenant on startup")
	return cmd
}

// newProcessor builds the evaluation core shared by serve and evaluate.
func newProcessor(cfg domain.EngineConfig) (*rules.Evaluator, *decision.Processor, error) {
	evaluator := rules.NewEvaluator()

	derived, err := rules.NewDerivedFields(cfg.DerivedFields)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to compile derived fields: %w", err)
	}

	processor := decision.NewProcessor(evaluator, rules.NewPipeline(evaluator), decision.WithDerivedFields(derived))
	return evaluator, processor, nil
}

func serve(ctx context.Context, cfg *domain.Config, seedTenant string) error {
	slog.Info("starting underwriter",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()

	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()

	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()

	if seedTenant != "" {
		if _, err := seed.Apply(ctx, repo, seedTenant, seed.Default()); err != nil {
			return err
		}
	}

	evaluator, processor, err := newProcessor(cfg.Engine)
	if err != nil {
		return err
	}
	service := decision.NewService(repo, cacheImpl, busImpl, processor, cfg.Engine.ResultTTL)

	var asyncWorker *worker.Worker
	if cfg.Worker.Enabled {
		asyncWorker = worker.NewWorker(busImpl, service)
		if err := asyncWorker.Start(cfg.Worker); err != nil {
			slog.Error("failed to start async worker", "error", err)
			asyncWorker = nil
		}
	}

	handler, err := api.NewHandler(service, repo, cacheImpl, busImpl, evaluator, Version)
	if err != nil {
		return err
	}
	srv := api.NewServer(cfg.Server, handler)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("underwriter is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	}

	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("underwriter shutdown complete")
	return nil
}
