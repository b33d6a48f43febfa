package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/vaultshare/internal/config"
	"github.com/hitoshi/vaultshare/internal/database"
	"github.com/hitoshi/vaultshare/internal/repository"
	"github.com/hitoshi/vaultshare/internal/worker/cleanup"
)

// connectTimeout は起動時のDB接続確認のタイムアウト。
const connectTimeout = 10 * time.Second

// storeHandle は設定に応じて開いたドキュメントストアとその後始末をまとめたもの。
type storeHandle struct {
	store repository.DocumentStore
	// pruner は古い通知の一括削除に対応するバックエンドの場合のみ設定される。
	pruner cleanup.NotificationPruner
	close  func() error
}

// openStore はSTORE_BACKENDに応じてドキュメントストアを開く。
func openStore(ctx context.Context, cfg *config.Config) (*storeHandle, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendPostgres:
		db, err := database.Connect(ctx, cfg.DatabaseURL, database.PoolConfig{
			MaxOpenConns:    cfg.DBMaxOpenConns,
			MaxIdleConns:    cfg.DBMaxIdleConns,
			ConnMaxLifetime: cfg.DBConnMaxLifetime,
		}, connectTimeout)
		if err != nil {
			return nil, err
		}
		slog.Info("database connection established",
			slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		)
		warnIfSchemaMissing(cfg.DatabaseURL)

		pg := repository.NewPostgresDocumentStore(db)
		return &storeHandle{store: pg, pruner: pg, close: db.Close}, nil

	case config.StoreBackendBolt:
		bolt, err := repository.OpenBoltDocumentStore(cfg.BoltPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open bolt store: %w", err)
		}
		slog.Info("bolt store opened", slog.String("path", cfg.BoltPath))
		return &storeHandle{store: bolt, close: bolt.Close}, nil

	case config.StoreBackendMemory:
		slog.Warn("using in-memory store; data is lost on restart")
		return &storeHandle{store: repository.NewMemoryDocumentStore(), close: func() error { return nil }}, nil

	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.StoreBackend)
	}
}

// warnIfSchemaMissing はマイグレーション未適用またはdirtyな場合に警告を出す。
func warnIfSchemaMissing(databaseURL string) {
	version, dirty, err := database.SchemaVersion(databaseURL)
	if err != nil {
		slog.Warn("failed to read schema version", slog.String("error", err.Error()))
		return
	}
	if version == 0 {
		slog.Warn("database schema is not migrated; run the migrate command")
		return
	}
	if dirty {
		slog.Warn("database schema is dirty", slog.Uint64("version", uint64(version)))
		return
	}
	slog.Info("database schema version", slog.Uint64("version", uint64(version)))
}
