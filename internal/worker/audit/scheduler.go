// Package audit はリソースと招待の整合性を定期的に監査・修復するワーカーを提供する。
package audit

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/vaultshare/internal/sharing"
)

// Reconciler は整合性監査の実行インターフェース。
// *sharing.Service がこれを満たす。
type Reconciler interface {
	// ListResourceIDs は監査対象の全リソースIDを返す。
	ListResourceIDs(ctx context.Context) ([]string, error)
	// Reconcile は1件のリソースの招待を検査し、食い違いを修復する。
	Reconcile(ctx context.Context, resourceID string) (*sharing.ReconcileReport, error)
}

// CycleResult は監査サイクル1回の集計。
type CycleResult struct {
	Resources int
	Repaired  int
	Failed    int
}

// Scheduler は整合性監査のスケジューリングと並列制御を行う。
// ティッカーで全リソースIDを取得し、semaphoreパターンで最大並列数を制御しながら修復を実行する。
type Scheduler struct {
	reconciler     Reconciler
	logger         *slog.Logger
	maxConcurrency int
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値4を使用する。
func NewScheduler(reconciler Reconciler, logger *slog.Logger, maxConcurrency int) *Scheduler {
	if maxConcurrency <= 0 {
		maxConcurrency = 4
	}
	return &Scheduler{
		reconciler:     reconciler,
		logger:         logger,
		maxConcurrency: maxConcurrency,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("整合性監査スケジューラを開始しました",
		slog.Duration("interval", interval),
		slog.Int("max_concurrency", s.maxConcurrency),
	)

	// 起動直後に1回実行
	s.runLogged(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("整合性監査スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runLogged(ctx)
		}
	}
}

func (s *Scheduler) runLogged(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error("整合性監査サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// RunOnce は全リソースを1回監査する。
// 個別リソースの失敗はログに記録してサイクルを継続する。
func (s *Scheduler) RunOnce(ctx context.Context) (CycleResult, error) {
	start := time.Now()

	ids, err := s.reconciler.ListResourceIDs(ctx)
	if err != nil {
		return CycleResult{}, err
	}

	if len(ids) == 0 {
		s.logger.Info("監査対象のリソースはありません")
		return CycleResult{}, nil
	}

	var repaired, failed atomic.Int64

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		sem <- struct{}{}

		go func(resourceID string) {
			defer wg.Done()
			defer func() { <-sem }()

			report, err := s.reconciler.Reconcile(ctx, resourceID)
			if err != nil {
				failed.Add(1)
				s.logger.Error("リソースの整合性監査に失敗しました",
					slog.String("resource_id", resourceID),
					slog.String("error", err.Error()),
				)
				return
			}
			if n := report.Repaired(); n > 0 {
				repaired.Add(int64(n))
				s.logger.Warn("リソースの不整合を修復しました",
					slog.String("resource_id", resourceID),
					slog.Int("orphaned_invites", len(report.OrphanedInvites)),
					slog.Int("missing_invites", len(report.MissingInvites)),
					slog.Int("mismatched_invites", len(report.MismatchedInvites)),
					slog.Bool("resource_rewritten", report.ResourceRewritten),
				)
			}
		}(id)
	}

	wg.Wait()

	result := CycleResult{
		Resources: len(ids),
		Repaired:  int(repaired.Load()),
		Failed:    int(failed.Load()),
	}
	s.logger.Info("整合性監査サイクルが完了しました",
		slog.Int("resource_count", result.Resources),
		slog.Int("repaired", result.Repaired),
		slog.Int("failed", result.Failed),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return result, ctx.Err()
}
