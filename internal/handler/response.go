// Package handler は共有APIのHTTPハンドラーとルーティングを提供する。
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/vaultshare/internal/middleware"
	"github.com/hitoshi/vaultshare/internal/model"
)

// guestResponse は共有先1件のAPIレスポンス。
type guestResponse struct {
	Key         string     `json:"key"`
	Email       string     `json:"email"`
	Status      string     `json:"status"`
	GuestID     string     `json:"guest_id,omitempty"`
	InvitedAt   time.Time  `json:"invited_at"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
}

// resourceResponse はリソースの共有状態のAPIレスポンス。
type resourceResponse struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Kind          string          `json:"kind"`
	Label         string          `json:"label,omitempty"`
	Visibility    string          `json:"visibility"`
	AcceptedCount int             `json:"accepted_count"`
	Guests        []guestResponse `json:"guests"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// sharingResponse は共有設定更新のAPIレスポンス。
type sharingResponse struct {
	Resource        resourceResponse `json:"resource"`
	Added           []string         `json:"added"`
	Reinvited       []string         `json:"reinvited"`
	Revoked         []string         `json:"revoked"`
	RepairedInvites []string         `json:"repaired_invites"`
	Changed         bool             `json:"changed"`
}

// inviteResponse は招待1件のAPIレスポンス。
type inviteResponse struct {
	ID             string     `json:"id"`
	ResourceID     string     `json:"resource_id"`
	OwnerID        string     `json:"owner_id"`
	RecipientEmail string     `json:"recipient_email"`
	Status         string     `json:"status"`
	CreatedAt      time.Time  `json:"created_at"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
}

// notificationResponse は通知1件のAPIレスポンス。
type notificationResponse struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	ResourceID    string    `json:"resource_id"`
	ResourceLabel string    `json:"resource_label,omitempty"`
	ActorID       string    `json:"actor_id,omitempty"`
	GuestEmail    string    `json:"guest_email,omitempty"`
	Message       string    `json:"message"`
	CreatedAt     time.Time `json:"created_at"`
}

// writeJSON はステータスコードとJSONボディを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// principalOrUnauthorized はリクエスト元ユーザーを取得する。
// 取得できない場合は401を書き込みfalseを返す。
func principalOrUnauthorized(w http.ResponseWriter, r *http.Request) (model.Principal, bool) {
	p, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
		return model.Principal{}, false
	}
	return p, true
}

// writeInvalidRequest はリクエストボディ不正の400レスポンスを書き込む。
func writeInvalidRequest(w http.ResponseWriter) {
	middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError())
}
