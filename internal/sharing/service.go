// Package sharing はリソース共有の招待・承諾・取り消しを扱うステートマシンを提供する。
//
// 各操作は1回の楽観的トランザクションとして実行される。トランザクション本体は
// その試行で読み取ったスナップショットだけから書き込み内容と通知を導出するため、
// 競合による再試行で副作用が二重に適用されることはない。
package sharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/juju/clock"
	"github.com/juju/retry"

	"github.com/hitoshi/vaultshare/internal/metrics"
	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/notification"
	"github.com/hitoshi/vaultshare/internal/repository"
)

// 操作名（メトリクスとログのラベル）
const (
	OpSetSharing      = "set_sharing"
	OpRespondToInvite = "respond_to_invite"
	OpRevokeAccess    = "revoke_access"
	OpReconcile       = "reconcile"
)

// RetryConfig は競合時の再試行設定。
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
	MaxDelay    time.Duration
	Clock       clock.Clock
}

// DefaultRetryConfig は既定の再試行設定を返す。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 5,
		Delay:       20 * time.Millisecond,
		MaxDelay:    500 * time.Millisecond,
		Clock:       clock.WallClock,
	}
}

// Service は共有ステートマシンのサービス層。
// 操作をまたいだ可変状態は持たず、入力はすべてリクエストとして受け取る。
type Service struct {
	store   repository.DocumentStore
	emitter *notification.Emitter
	metrics metrics.MetricsCollector
	retry   RetryConfig
	now     func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// collectorがnilの場合はメトリクスを記録しない。
func NewService(
	store repository.DocumentStore,
	emitter *notification.Emitter,
	collector metrics.MetricsCollector,
	retryCfg RetryConfig,
) *Service {
	if collector == nil {
		collector = metrics.Nop{}
	}
	if retryCfg.Clock == nil {
		retryCfg.Clock = clock.WallClock
	}
	if retryCfg.MaxAttempts <= 0 {
		retryCfg.MaxAttempts = 1
	}
	if retryCfg.Delay <= 0 {
		retryCfg.Delay = time.Millisecond
	}
	return &Service{
		store:   store,
		emitter: emitter,
		metrics: collector,
		retry:   retryCfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// runTransaction はbodyを楽観的トランザクションとして実行し、競合した場合のみ再試行する。
// 再試行回数を使い切った場合はTRANSACTION_CONFLICTエラーを返す。
func (s *Service) runTransaction(ctx context.Context, op string, body repository.TxFunc) error {
	start := time.Now()

	err := retry.Call(retry.CallArgs{
		Func: func() error {
			return s.store.RunTransaction(ctx, body)
		},
		IsFatalError: func(err error) bool {
			return !errors.Is(err, repository.ErrTransactionConflict)
		},
		NotifyFunc: func(lastErr error, attempt int) {
			s.metrics.RecordTransactionRetry(op)
			slog.Debug("トランザクションが競合したため再試行します",
				slog.String("operation", op),
				slog.Int("attempt", attempt),
			)
		},
		Attempts:    s.retry.MaxAttempts,
		Delay:       s.retry.Delay,
		MaxDelay:    s.retry.MaxDelay,
		BackoffFunc: retry.DoubleDelay,
		Clock:       s.retry.Clock,
		Stop:        ctx.Done(),
	})

	switch {
	case err == nil:
	case retry.IsAttemptsExceeded(err):
		slog.Warn("トランザクションの競合が解消しませんでした",
			slog.String("operation", op),
			slog.Int("attempts", s.retry.MaxAttempts),
		)
		err = model.NewTransactionConflictError()
	case retry.IsRetryStopped(err):
		err = ctx.Err()
	}

	s.metrics.RecordOperation(op, outcomeOf(err), time.Since(start))
	return err
}

// outcomeOf はエラーをメトリクスの結果ラベルに分類する。
func outcomeOf(err error) string {
	if err == nil {
		return "ok"
	}
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case model.ErrCodeTransactionConflict:
			return "conflict"
		case model.ErrCodeResourceNotFound, model.ErrCodeInviteNotFound, model.ErrCodeGuestNotFound:
			return "not_found"
		case model.ErrCodeAlreadyResolved:
			return "already_resolved"
		default:
			return "validation"
		}
	}
	return "error"
}

// effects は1回の試行で導出された書き込みと通知。
type effects struct {
	resource      *model.Resource // nilの場合は書き込まない
	inviteSets    []*model.Invite
	inviteDeletes []string
	notifications []model.Notification
}

// apply はeffectsをトランザクションに書き込み、追記した通知数を返す。
func (s *Service) apply(ctx context.Context, tx repository.Transaction, eff *effects) (int, error) {
	if eff.resource != nil {
		if err := tx.Set(ctx, repository.ResourcePath(eff.resource.ID), eff.resource); err != nil {
			return 0, fmt.Errorf("failed to write resource: %w", err)
		}
	}
	for _, inv := range eff.inviteSets {
		if err := tx.Set(ctx, repository.InvitePath(inv.ID), inv); err != nil {
			return 0, fmt.Errorf("failed to write invite: %w", err)
		}
	}
	for _, id := range eff.inviteDeletes {
		if err := tx.Delete(ctx, repository.InvitePath(id)); err != nil {
			return 0, fmt.Errorf("failed to delete invite: %w", err)
		}
	}
	emitted := 0
	for _, n := range eff.notifications {
		ok, err := s.emitter.Emit(ctx, tx, n)
		if err != nil {
			return 0, err
		}
		if ok {
			emitted++
		}
	}
	return emitted, nil
}

// readResource はトランザクション内でリソースを読み取る。存在しない場合はnilを返す。
func readResource(ctx context.Context, tx repository.Transaction, resourceID string) (*model.Resource, error) {
	doc, err := tx.Get(ctx, repository.ResourcePath(resourceID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read resource: %w", err)
	}
	var r model.Resource
	if err := doc.Decode(&r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = doc.ID()
	}
	return &r, nil
}

// readInvite はトランザクション内で招待を読み取る。存在しない場合はnilを返す。
func readInvite(ctx context.Context, tx repository.Transaction, inviteID string) (*model.Invite, error) {
	doc, err := tx.Get(ctx, repository.InvitePath(inviteID))
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read invite: %w", err)
	}
	var inv model.Invite
	if err := doc.Decode(&inv); err != nil {
		return nil, err
	}
	if inv.ID == "" {
		inv.ID = doc.ID()
	}
	return &inv, nil
}

// readInvitesFor はリソースの全共有先に対応する招待を読み取り、guestKeyをキーにして返す。
func readInvitesFor(ctx context.Context, tx repository.Transaction, r *model.Resource) (map[string]*model.Invite, error) {
	invites := make(map[string]*model.Invite, len(r.SharedWith))
	for _, entry := range r.Guests(false) {
		inv, err := readInvite(ctx, tx, model.InviteID(r.ID, entry.Key))
		if err != nil {
			return nil, err
		}
		if inv != nil {
			invites[entry.Key] = inv
		}
	}
	return invites, nil
}
