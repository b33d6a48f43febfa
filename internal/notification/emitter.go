// Package notification は共有操作に伴う通知の生成と受信箱の読み取りを提供する。
package notification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/repository"
	"github.com/hitoshi/vaultshare/internal/security"
)

// untitledLabel はラベル未設定のリソースを通知文中で表す名称。
const untitledLabel = "無題の項目"

// Emitter は通知ドキュメントを組み立て、トランザクションに追記する。
// 状態を持たないため、トランザクションの再試行で同じ通知が重複して追記されることはない。
type Emitter struct {
	sanitizer security.TextSanitizer
}

// NewEmitter はEmitterを生成する。
func NewEmitter(sanitizer security.TextSanitizer) *Emitter {
	return &Emitter{sanitizer: sanitizer}
}

// Build は通知を組み立てる。メッセージはリソース名とメールアドレスをサニタイズして埋め込む。
func (e *Emitter) Build(kind model.NotificationType, recipientID string, resource *model.Resource, actorID, guestEmail string, at time.Time) model.Notification {
	label := e.sanitizer.Sanitize(resource.Label)
	if label == "" {
		label = untitledLabel
	}
	email := e.sanitizer.Sanitize(guestEmail)

	return model.Notification{
		RecipientID:   recipientID,
		Type:          kind,
		ResourceID:    resource.ID,
		ResourceLabel: label,
		ActorID:       actorID,
		GuestEmail:    email,
		Message:       renderMessage(kind, label, email),
		CreatedAt:     at,
	}
}

// Emit は通知を受信者の受信箱コレクションに追記する。
// 受信者IDが不明な通知（旧形式のドキュメントで承諾者IDが記録されていない場合など）は追記せずに読み飛ばす。
// 追記した場合はtrueを返す。
func (e *Emitter) Emit(ctx context.Context, tx repository.Transaction, n model.Notification) (bool, error) {
	if n.RecipientID == "" {
		slog.Warn("受信者が不明な通知をスキップしました",
			slog.String("type", string(n.Type)),
			slog.String("resource_id", n.ResourceID),
		)
		return false, nil
	}
	if _, err := tx.Append(ctx, repository.NotificationCollection(n.RecipientID), n); err != nil {
		return false, fmt.Errorf("failed to append notification: %w", err)
	}
	return true, nil
}

func renderMessage(kind model.NotificationType, label, email string) string {
	switch kind {
	case model.NotificationInviteSent:
		return fmt.Sprintf("%s さんに「%s」の共有招待を送信しました。", email, label)
	case model.NotificationInviteAccepted:
		return fmt.Sprintf("%s さんが「%s」の共有招待を承諾しました。", email, label)
	case model.NotificationInviteRejected:
		return fmt.Sprintf("%s さんが「%s」の共有招待を辞退しました。", email, label)
	case model.NotificationAccessRevoked:
		return fmt.Sprintf("「%s」へのアクセスが取り消されました。", label)
	default:
		return label
	}
}
