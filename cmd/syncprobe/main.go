// syncprobe connects to a collaboration server and streams workspace
// updates to the console.
// Usage: go run ./cmd/syncprobe --config configs/syncprobe.example.yaml --workspace w1 --user probe
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/collabhq/workspace-sync/internal/config"
	"github.com/collabhq/workspace-sync/internal/connection"
	"github.com/collabhq/workspace-sync/internal/model"
	"github.com/collabhq/workspace-sync/internal/state"
	"github.com/collabhq/workspace-sync/internal/syncer"
	"github.com/collabhq/workspace-sync/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/syncprobe.example.yaml", "path to config file")
	workspace := flag.String("workspace", "", "workspace ID to join")
	user := flag.String("user", "syncprobe", "user ID to join as")
	push := flag.Bool("push", false, "push a probe update after connecting")
	verbose := flag.Bool("verbose", false, "debug-level logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))

	logger.Info("syncprobe starting", "version", version.String())

	if *workspace == "" {
		logger.Error("--workspace is required")
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to connect state database", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	mgr := connection.NewManager(logger.With("component", "connection"))
	s := syncer.New(syncer.Config{
		EndpointURL:          cfg.Server.URL,
		ReconnectInterval:    cfg.Connection.ReconnectInterval,
		MaxReconnectAttempts: cfg.Connection.MaxReconnectAttempts,
		HeartbeatInterval:    cfg.Connection.HeartbeatInterval,
	}, mgr, store, logger.With("component", "syncer"))

	if err := s.SetConflictStrategy(syncer.Strategy(cfg.Sync.ConflictStrategy)); err != nil {
		logger.Error("invalid conflict strategy", "error", err)
		os.Exit(1)
	}

	s.On(syncer.EventConnectionStateChange, func(p any) {
		if sc, ok := p.(connection.StateChange); ok {
			fmt.Printf("--- connection: %s -> %s\n", sc.From, sc.To)
		}
	})
	s.On(syncer.EventConnectionFailed, func(p any) {
		logger.Error("connection failed permanently", "attempts", p)
		cancel()
	})
	s.On(syncer.EventConflictDetected, func(p any) {
		if cd, ok := p.(syncer.ConflictDetected); ok {
			logger.Warn("conflict detected",
				"workspace", cd.WorkspaceID,
				"type", cd.Update.Type(),
			)
		}
	})

	if err := s.Connect(ctx, *workspace, *user); err != nil {
		logger.Error("initial connect failed, reconnect scheduled", "error", err)
	}
	defer s.Disconnect()

	off, err := s.OnUpdate(func(u model.Update) {
		data, _ := json.MarshalIndent(u, "", "  ")
		fmt.Printf("update type=%s source=%s\n%s\n", u.Type(), u.Source(), data)
	})
	if err != nil {
		logger.Error("subscribe failed", "error", err)
		os.Exit(1)
	}
	defer off()

	g, ctx := errgroup.WithContext(ctx)

	if *push {
		g.Go(func() error {
			// Give the connection a moment to settle
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return nil
			}
			return s.PushUpdate(*workspace, model.Update{
				"type":   "probe",
				"source": *user,
				"sentAt": time.Now().UnixMilli(),
			})
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("probe error", "error", err)
		os.Exit(1)
	}
	logger.Info("syncprobe stopped")
}

// buildStore returns the configured Postgres store, or an in-memory store
// when no state database is configured.
func buildStore(ctx context.Context, cfg *config.SyncConfig, logger *slog.Logger) (state.Store, func(), error) {
	if cfg.Database.State.Host == "" {
		logger.Info("no state database configured, using in-memory store")
		return state.NewMemoryStore(), func() {}, nil
	}

	pg, err := state.Connect(ctx, cfg.Database.State)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("state database connected",
		"host", cfg.Database.State.Host,
		"name", cfg.Database.State.Name,
	)
	return pg, pg.Close, nil
}
