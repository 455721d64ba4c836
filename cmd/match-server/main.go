package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/cheese-arena/internal/archive"
	"github.com/park285/cheese-arena/internal/auth"
	"github.com/park285/cheese-arena/internal/chat"
	"github.com/park285/cheese-arena/internal/config"
	"github.com/park285/cheese-arena/internal/coordinator"
	"github.com/park285/cheese-arena/internal/gateway"
	"github.com/park285/cheese-arena/internal/notify"
	"github.com/park285/cheese-arena/internal/obslog"
	"github.com/park285/cheese-arena/internal/registry"
	"github.com/park285/cheese-arena/internal/rules"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.Init(cfg.Log); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer obslog.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		obslog.L().Error("server_exit", zap.Error(err))
		obslog.Sync()
		log.Fatalf("server error: %v", err)
	}
}

func run(ctx context.Context, cfg *config.AppConfig) error {
	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	rdb, err := registry.Connect(cctx, cfg.RedisURL)
	cancel()
	if err != nil {
		return err
	}
	defer rdb.Close()

	reg := registry.NewRedis(rdb, registry.WithPrefix(cfg.RedisPrefix), registry.WithFinishedTTL(cfg.FinishedTTL))
	chatStore := chat.NewRedis(rdb, cfg.RedisPrefix, cfg.Chat.HistoryLimit, cfg.Chat.TTL)

	var hooks []coordinator.FinishHook
	if cfg.DatabaseURL != "" {
		repo, err := archive.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("archive init: %w", err)
		}
		defer repo.Close()
		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		hooks = append(hooks, repo.WithChat(chatStore))
		obslog.L().Info("archive_enabled")
	}
	if cfg.Webhook.URL != "" {
		wh := notify.NewWebhook(cfg.Webhook.URL,
			notify.WithTimeout(cfg.Webhook.Timeout),
			notify.WithRetry(cfg.Webhook.MaxRetries),
			notify.WithBearerToken(cfg.Webhook.Token),
		)
		go wh.Run(ctx)
		defer wh.Close()
		hooks = append(hooks, wh)
		obslog.L().Info("webhook_enabled", zap.String("url", cfg.Webhook.URL))
	}

	svc := coordinator.NewService(reg, rules.NewStandard(),
		coordinator.WithChatStore(chatStore),
		coordinator.WithIncrementPolicy(coordinator.ParseIncrementPolicy(cfg.IncrementPolicy)),
		coordinator.WithFinishHooks(hooks...),
	)

	am := auth.NewManager(cfg.JWTSecret, cfg.TokenTTL)
	conns := gateway.NewConnManager()
	limits := gateway.NewLimiterStore(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst, cfg.RateLimit.Cleanup)
	defer limits.Stop()
	ws := gateway.NewWSHandler(am, conns, gateway.NewDispatcher(svc, conns), limits, gateway.WSOptions{
		OriginPatterns: cfg.WS.AllowedOrigins,
		SendBuffer:     cfg.WS.SendBuffer,
		WriteTimeout:   cfg.WS.WriteTimeout,
		PingInterval:   cfg.WS.PingInterval,
	})
	router := gateway.NewRouter(svc, am, ws, func(ctx context.Context) error { return rdb.Ping(ctx).Err() })

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() {
		obslog.L().Info("server_listen", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	obslog.L().Info("server_shutdown")
	sctx, scancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
