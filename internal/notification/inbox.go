package notification

import (
	"context"
	"fmt"
	"sort"

	"github.com/hitoshi/vaultshare/internal/model"
	"github.com/hitoshi/vaultshare/internal/repository"
)

// DefaultInboxLimit は受信箱の既定の取得件数。
const DefaultInboxLimit = 50

// Inbox はユーザーの受信箱を読み取る。
type Inbox struct {
	store repository.DocumentStore
}

// NewInbox はInboxを生成する。
func NewInbox(store repository.DocumentStore) *Inbox {
	return &Inbox{store: store}
}

// List はユーザー宛ての通知を新しい順に最大limit件返す。limitが0以下の場合は既定値を使う。
func (i *Inbox) List(ctx context.Context, userID string, limit int) ([]model.Notification, error) {
	if limit <= 0 {
		limit = DefaultInboxLimit
	}

	docs, err := i.store.QueryByField(ctx, repository.NotificationCollection(userID), "recipientId", userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query inbox: %w", err)
	}

	notifications := make([]model.Notification, 0, len(docs))
	for _, doc := range docs {
		var n model.Notification
		if err := doc.Decode(&n); err != nil {
			return nil, err
		}
		n.ID = doc.ID()
		notifications = append(notifications, n)
	}

	sort.SliceStable(notifications, func(a, b int) bool {
		return notifications[a].CreatedAt.After(notifications[b].CreatedAt)
	})
	if len(notifications) > limit {
		notifications = notifications[:limit]
	}
	return notifications, nil
}
