package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/hitoshi/vaultshare/internal/middleware"
)

// maxNotificationLimit は1回に取得できる通知の上限。
const maxNotificationLimit = 200

// NotificationServiceInterface は通知ハンドラーが必要とするサービスインターフェース。
type NotificationServiceInterface interface {
	// ListNotifications はユーザー宛ての通知を新しい順に返す。
	ListNotifications(ctx context.Context, userID string, limit int) ([]notificationResponse, error)
}

// NotificationHandler は受信箱のHTTPハンドラー。
type NotificationHandler struct {
	service NotificationServiceInterface
}

// NewNotificationHandler はNotificationHandlerを生成する。
func NewNotificationHandler(service NotificationServiceInterface) *NotificationHandler {
	return &NotificationHandler{
		service: service,
	}
}

// ListNotifications は受信箱の通知一覧を返す。
// GET /api/notifications?limit=N
func (h *NotificationHandler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeInvalidRequest(w)
			return
		}
		limit = min(n, maxNotificationLimit)
	}

	notifications, err := h.service.ListNotifications(r.Context(), p.UserID, limit)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if notifications == nil {
		notifications = []notificationResponse{}
	}

	writeJSON(w, http.StatusOK, notifications)
}
