// Command clm runs the contract lifecycle service: the contract store,
// the fiscal rule engine and the background alert worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fiscalclm/clm/internal/api"
	"github.com/fiscalclm/clm/internal/bus"
	"github.com/fiscalclm/clm/internal/cache"
	"github.com/fiscalclm/clm/internal/config"
	"github.com/fiscalclm/clm/internal/contracts"
	"github.com/fiscalclm/clm/internal/domain"
	"github.com/fiscalclm/clm/internal/drafts"
	"github.com/fiscalclm/clm/internal/logging"
	"github.com/fiscalclm/clm/internal/metrics"
	"github.com/fiscalclm/clm/internal/repository"
	"github.com/fiscalclm/clm/internal/rules"
	"github.com/fiscalclm/clm/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	var configPath string

	cmd := &cobra.Command{
		Use:          "clm",
		Short:        "Contract lifecycle service with fiscal impact analysis",
		Version:      fmt.Sprintf("%s (commit %s, built %s)", Version, Commit, BuildDate),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return run(cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file (env: CLM_*)")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cfg *domain.Config) error {
	logger, logCloser, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()
	slog.SetDefault(logger)

	slog.Info("starting clm",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"tracing", cfg.Tracing.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		return fmt.Errorf("failed to initialize repository: %w", err)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		return fmt.Errorf("failed to initialize cache: %w", err)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		return fmt.Errorf("failed to initialize event bus: %w", err)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	var collector *metrics.Collector
	if cfg.Metrics.Enabled {
		collector = metrics.NewCollector(cfg.Metrics.Namespace, logger)
	}

	// Rule engine: builtin table plus extension rules from the pack and the store
	engine, err := rules.NewEngine(logger)
	if err != nil {
		return fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	defer engine.Close()

	var packRules []*domain.RuleConfig
	if cfg.Rules.PackFile != "" {
		pack, err := rules.LoadPack(cfg.Rules.PackFile)
		if err != nil {
			return fmt.Errorf("failed to load rule pack: %w", err)
		}
		packRules = pack.Rules
		slog.Info("rule pack loaded", "file", cfg.Rules.PackFile, "version", pack.Version, "rules", len(pack.Rules))
	}

	svc := contracts.NewService(repo, cacheImpl, busImpl, contracts.Options{
		ContractTTL: cfg.Cache.ContractTTL,
		Metrics:     collector,
		Logger:      logger,
	})
	draftSvc := drafts.NewService(repo, busImpl, drafts.Options{
		Metrics: collector,
		Logger:  logger,
	})

	srv := api.NewServer(cfg.Server, api.Dependencies{
		Repo:      repo,
		Cache:     cacheImpl,
		Bus:       busImpl,
		Engine:    engine,
		Contracts: svc,
		Drafts:    draftSvc,
		Metrics:   collector,
		PackRules: packRules,
		Version:   Version,
	})

	count, err := srv.Handler().ReloadRulesFromStore(ctx)
	if err != nil {
		return fmt.Errorf("failed to load extension rules: %w", err)
	}
	slog.Info("rule engine initialized",
		"builtin_rules", len(rules.BuiltinRules()),
		"extension_rules", count,
	)

	if cfg.Rules.ReloadInterval > 0 {
		go reloadLoop(ctx, srv.Handler(), cfg.Rules.ReloadInterval)
	}

	// Background alert worker
	var alertWorker *worker.Worker
	if cfg.Worker.Enabled {
		alertWorker = worker.NewWorker(busImpl, engine, collector, logger)
		if err := alertWorker.Start(worker.Config{TenantIDs: cfg.Worker.Tenants}); err != nil {
			slog.Error("failed to start alert worker", "error", err)
			alertWorker = nil
		} else {
			slog.Info("alert worker started", "tenants", cfg.Worker.Tenants)
		}
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("clm is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
	case err := <-errCh:
		slog.Error("server failed", "error", err)
		return err
	}

	// Stop consuming before the bus goes away
	if alertWorker != nil {
		if err := alertWorker.Stop(); err != nil {
			slog.Error("failed to stop alert worker", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.Server))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("clm shutdown complete")
	return nil
}

// reloadLoop re-reads stored rules so that changes made by other
// instances become visible without a restart.
func reloadLoop(ctx context.Context, h *api.Handler, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := h.ReloadRulesFromStore(ctx)
			if err != nil {
				slog.Warn("periodic rule reload failed", "error", err)
				continue
			}
			slog.Debug("periodic rule reload", "extension_rules", count)
		}
	}
}

func shutdownTimeout(cfg domain.ServerConfig) time.Duration {
	if cfg.ShutdownTimeout > 0 {
		return cfg.ShutdownTimeout
	}
	return 10 * time.Second
}
