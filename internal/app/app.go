// Package app はサブコマンドごとの依存関係の組み立てと起動を行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/vaultshare/internal/config"
	"github.com/hitoshi/vaultshare/internal/database"
	"github.com/hitoshi/vaultshare/internal/handler"
	"github.com/hitoshi/vaultshare/internal/logger"
	"github.com/hitoshi/vaultshare/internal/metrics"
	"github.com/hitoshi/vaultshare/internal/middleware"
	"github.com/hitoshi/vaultshare/internal/notification"
	"github.com/hitoshi/vaultshare/internal/repository"
	"github.com/hitoshi/vaultshare/internal/security"
	"github.com/hitoshi/vaultshare/internal/sharing"
	"github.com/hitoshi/vaultshare/internal/worker/audit"
	"github.com/hitoshi/vaultshare/internal/worker/cleanup"
)

// cleanupInterval は通知クリーンアップジョブの実行間隔。
const cleanupInterval = 24 * time.Hour

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップし、環境変数からConfigを読み込む。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("store_backend", cfg.StoreBackend),
		slog.String("port", cfg.ServerPort),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandAudit:
		return runAudit(ctx, cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(ctx, cfg)
	}
}

// newSharingService は設定に従って共有サービスを組み立てる。
func newSharingService(cfg *config.Config, store repository.DocumentStore, collector metrics.MetricsCollector) *sharing.Service {
	retryCfg := sharing.DefaultRetryConfig()
	retryCfg.MaxAttempts = cfg.TxMaxAttempts
	retryCfg.Delay = cfg.TxRetryDelay

	emitter := notification.NewEmitter(security.NewDisplaySanitizer(cfg.NotificationLabelMaxRunes))
	return sharing.NewService(store, emitter, collector, retryCfg)
}

// newRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを生成する。
func newRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// ストアを開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	// 1. ストア
	h, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.close()

	// 2. メトリクス
	reg, collector := newRegistry()

	// 3. ドメインサービスとハンドラーアダプタ
	sharingService := newSharingService(cfg, h.store, collector)
	sharingAdapter := handler.NewSharingServiceAdapter(sharingService)
	inboxAdapter := handler.NewInboxAdapter(notification.NewInbox(h.store))

	// 4. ルーター
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitSharing),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            slog.Default(),
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		StatusRecorder:    collector,

		HealthChecker:  h.store,
		MetricsHandler: metrics.Handler(reg),

		SharingService:      sharingAdapter,
		InviteService:       sharingAdapter,
		NotificationService: inboxAdapter,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilDone(ctx, server, "API server")
}

// serveUntilDone はctxがキャンセルされるまでserverを起動し、その後グレースフルシャットダウンする。
func serveUntilDone(ctx context.Context, server *http.Server, name string) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%s listen error: %w", name, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down " + name + "...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("%s shutdown failed: %w", name, err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 整合性監査スケジューラと、PostgreSQLの場合は通知クリーンアップジョブを起動する。
// ctxがキャンセルされるとシャットダウンする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	// 1. ストア
	h, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.close()

	// 2. メトリクス（ワーカー専用ポートで公開）
	reg, collector := newRegistry()
	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := serveUntilDone(ctx, metricsServer, "worker metrics server"); err != nil {
			slog.Error("worker metrics server failed", slog.String("error", err.Error()))
		}
	}()

	// 3. 通知クリーンアップジョブ
	if h.pruner != nil {
		cleanupJob := cleanup.NewCleanupJob(h.pruner, slog.Default(), cfg.NotificationRetentionDays)
		go cleanupJob.Start(ctx, cleanupInterval)
	} else {
		slog.Info("notification cleanup is not supported by this store backend",
			slog.String("store_backend", cfg.StoreBackend),
		)
	}

	slog.Info("worker starting",
		slog.Duration("audit_interval", cfg.AuditInterval),
		slog.Int("max_concurrent", cfg.AuditMaxConcurrent),
	)

	// 4. 整合性監査スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler := audit.NewScheduler(
		newSharingService(cfg, h.store, collector), slog.Default(), cfg.AuditMaxConcurrent,
	)
	scheduler.Start(ctx, cfg.AuditInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runAudit は整合性監査を1サイクル実行して終了する。
// 修復できなかったリソースがあった場合はエラーを返す。
func runAudit(ctx context.Context, cfg *config.Config) error {
	h, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer h.close()

	scheduler := audit.NewScheduler(
		newSharingService(cfg, h.store, metrics.Nop{}), slog.Default(), cfg.AuditMaxConcurrent,
	)
	result, err := scheduler.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("audit failed: %w", err)
	}
	if result.Failed > 0 {
		return fmt.Errorf("audit failed for %d of %d resources", result.Failed, result.Resources)
	}
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.StoreBackend != config.StoreBackendPostgres {
		return fmt.Errorf("migrate requires STORE_BACKEND=postgres, got %q", cfg.StoreBackend)
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	version, _, err := database.SchemaVersion(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	target := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(target)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
// パースできない場合は全体を伏せる。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
