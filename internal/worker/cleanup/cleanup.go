// Package cleanup は受信箱の古い通知を削除するジョブを提供する。
// 保持期間（デフォルト90日）を超過した通知を日次バッチで削除する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// NotificationPruner は古い通知の一括削除を抽象化するインターフェース。
// *repository.PostgresDocumentStore がこれを満たす。
type NotificationPruner interface {
	DeleteNotificationsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupJob は保持期間を超過した通知の自動削除ジョブ。
// 削除対象がない場合も成功するため何度実行してもよい。
type CleanupJob struct {
	pruner        NotificationPruner
	logger        *slog.Logger
	RetentionDays int // 通知の保持日数（デフォルト: 90）
	now           func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
// retentionDaysが0以下の場合は90日を使用する。
func NewCleanupJob(pruner NotificationPruner, logger *slog.Logger, retentionDays int) *CleanupJob {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &CleanupJob{
		pruner:        pruner,
		logger:        logger,
		RetentionDays: retentionDays,
		now:           time.Now,
	}
}

// Run はcreated_atがRetentionDays日前より古い通知を削除する。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := j.now()
	cutoff := start.AddDate(0, 0, -j.RetentionDays)

	deleted, err := j.pruner.DeleteNotificationsBefore(ctx, cutoff)
	if err != nil {
		j.logger.Error("通知クリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("retention_days", j.RetentionDays),
		)
		return fmt.Errorf("通知クリーンアップの実行に失敗: %w", err)
	}

	j.logger.Info("通知クリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Int("retention_days", j.RetentionDays),
		slog.Time("cutoff", cutoff),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return nil
}

// Start は起動直後に1回実行し、以降interval間隔でRunを繰り返す。
// コンテキストがキャンセルされるまでブロックする。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	if err := j.Run(ctx); err != nil && ctx.Err() != nil {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.Run(ctx)
		}
	}
}
