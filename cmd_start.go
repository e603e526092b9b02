package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/shadowsync/internal/config"
	"github.com/tonimelisma/shadowsync/internal/localwatch"
	"github.com/tonimelisma/shadowsync/internal/shadow"
)

func newStartCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Run the shadow synchronization daemon in the foreground",
		Long: `Start runs shadowsyncd's sync engine until interrupted: it opens the
local shadow store, connects to the cloud data plane, and drains sync
requests according to the configured direction and strategy.

Sending SIGHUP to a running daemon reloads its config file and applies
direction/strategy changes without a restart.`,
		RunE: runStart,
	}
}

func runStart(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg := cc.Cfg
	logger := cc.Logger

	ctx := shutdownContext(context.Background(), logger)

	cleanupPID := func() {}

	if cfg.Daemon.PIDFile != "" {
		cleanup, err := writePIDFile(cfg.Daemon.PIDFile)
		if err != nil {
			return fmt.Errorf("starting daemon: %w", err)
		}

		cleanupPID = cleanup
	} else {
		logger.Warn("daemon.pid_file is unset; shadow set/delete cannot notify this daemon to reload")
	}

	defer cleanupPID()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	cloud, ts, err := newCloudClient(ctx, cfg, logger)
	if err != nil {
		return err
	}

	handler := buildHandler(cfg, store, cloud, logger)

	strategy, err := buildStrategy(cfg, handler, logger)
	if err != nil {
		return err
	}

	if err := handler.Start(ctx, strategy, cfg.Sync.Parallelism); err != nil {
		return fmt.Errorf("starting sync engine: %w", err)
	}

	logger.Info("shadowsyncd started",
		"direction", cfg.Sync.Direction,
		"strategy", cfg.Sync.Strategy,
		"shadows", len(cfg.Sync.Shadows),
	)

	holder := config.NewHolder(cfg, cc.Path)

	go watchReload(ctx, holder, handler, logger)

	if cfg.Store.WatchRoot != "" {
		watcher := localwatch.New(cfg.Store.WatchRoot, handler, logger)

		go func() {
			if err := watcher.Watch(ctx); err != nil {
				logger.Error("local shadow file watcher stopped", "error", err)
			}
		}()
	} else {
		logger.Warn("store.watch_root is unset; local shadow file writes will not be pushed to the cloud")
	}

	if cfg.Cloud.BaseURL != "" {
		listener := newPushListener(cfg, ts, handler, logger)

		go func() {
			if err := listener.Listen(ctx); err != nil {
				logger.Error("cloud push listener stopped", "error", err)
			}
		}()
	}

	<-ctx.Done()

	shutdownTimeout, err := time.ParseDuration(cfg.Daemon.ShutdownTimeout)
	if err != nil {
		shutdownTimeout = 5 * time.Second
	}

	logger.Info("shadowsyncd shutting down", "timeout", shutdownTimeout)

	stopped := make(chan struct{})

	go func() {
		handler.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(shutdownTimeout):
		logger.Warn("shutdown timeout elapsed, exiting with workers still draining")
	}

	return nil
}

// watchReload blocks waiting for SIGHUP, reloading cfg's config file and
// applying a changed direction or strategy to the running handler. It
// exits when ctx is done.
func watchReload(ctx context.Context, holder *config.Holder, handler *shadow.Handler, logger *slog.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-sigCh:
			reloadOnce(ctx, holder, handler, logger)
		}
	}
}

func reloadOnce(ctx context.Context, holder *config.Holder, handler *shadow.Handler, logger *slog.Logger) {
	newCfg, err := config.Load(holder.Path(), logger)
	if err != nil {
		logger.Error("config reload failed, keeping previous config", "error", err)
		return
	}

	old := holder.Config()
	holder.Update(newCfg)

	if newCfg.Sync.Direction != old.Sync.Direction {
		if err := handler.SetDirection(ctx, parseDirection(newCfg.Sync.Direction)); err != nil {
			logger.Error("applying reloaded direction failed", "error", err)
		}
	}

	if newCfg.Sync.Strategy != old.Sync.Strategy {
		strategy, err := buildStrategy(newCfg, handler, logger)
		if err != nil {
			logger.Error("building reloaded strategy failed", "error", err)
			return
		}

		if err := handler.SetStrategy(ctx, strategy); err != nil {
			logger.Error("applying reloaded strategy failed", "error", err)
		}
	}

	// SetDirection/SetStrategy above already reseed as a side effect; this
	// additional pass is what actually makes "shadow set"/"shadow delete"'s
	// "picked up on the next local reconcile pass" true — it is the only
	// thing that notices a local write a CLI command made directly against
	// the store while the daemon was running. Handler.seedGroup only
	// collapses seeds that run at the same time, and the branches above have
	// already returned, so this enqueues again: a seed request still waiting
	// in the queue for the same key absorbs it (the merge table keeps an
	// already-queued authoritative request), while one a worker has already
	// taken is followed by a second reconcile.
	if err := handler.Reseed(ctx); err != nil {
		logger.Error("reseeding after config reload failed", "error", err)
	}

	logger.Info("config reloaded", "path", holder.Path())
}
