package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vaultshare/internal/middleware"
	"github.com/hitoshi/vaultshare/internal/model"
)

// SharingServiceInterface はオーナー向け共有ハンドラーが必要とするサービスインターフェース。
type SharingServiceInterface interface {
	// SetSharing はリソースの共有先を指定した集合に一致させる。
	SetSharing(ctx context.Context, owner model.Principal, resourceID string, req setSharingRequest) (*sharingResponse, error)
	// ListGuests はリソースの共有先を返す。includeInactiveがfalseの場合はPENDINGとACCEPTEDのみ。
	ListGuests(ctx context.Context, owner model.Principal, resourceID string, includeInactive bool) ([]guestResponse, error)
	// RevokeAccess は共有先1件を取り消す。
	RevokeAccess(ctx context.Context, owner model.Principal, resourceID, guestEmail string) (*resourceResponse, error)
}

// SharingHandler はリソースの共有設定のHTTPハンドラー。
type SharingHandler struct {
	service SharingServiceInterface
}

// NewSharingHandler はSharingHandlerを生成する。
func NewSharingHandler(service SharingServiceInterface) *SharingHandler {
	return &SharingHandler{
		service: service,
	}
}

// setSharingRequest は共有設定更新リクエストのボディ。
// enabledを省略した場合はguest_emailsが空でなければ有効とみなす。
type setSharingRequest struct {
	Enabled     *bool    `json:"enabled"`
	GuestEmails []string `json:"guest_emails"`
	IsMemo      bool     `json:"is_memo"`
	Label       string   `json:"label"`
}

// enabled は共有を有効にするかどうかを返す。
func (r setSharingRequest) enabled() bool {
	if r.Enabled != nil {
		return *r.Enabled
	}
	return len(r.GuestEmails) > 0
}

// SetSharing はリソースの共有先を更新する。
// PUT /api/resources/{id}/sharing
func (h *SharingHandler) SetSharing(w http.ResponseWriter, r *http.Request) {
	owner, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req setSharingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequest(w)
		return
	}

	resp, err := h.service.SetSharing(r.Context(), owner, chi.URLParam(r, "id"), req)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// ListGuests はリソースの共有先一覧を返す。
// GET /api/resources/{id}/guests?all=true
func (h *SharingHandler) ListGuests(w http.ResponseWriter, r *http.Request) {
	owner, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	includeInactive := r.URL.Query().Get("all") == "true"

	guests, err := h.service.ListGuests(r.Context(), owner, chi.URLParam(r, "id"), includeInactive)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if guests == nil {
		guests = []guestResponse{}
	}

	writeJSON(w, http.StatusOK, guests)
}

// RevokeAccess は共有先1件のアクセスを取り消す。
// DELETE /api/resources/{id}/guests/{email}
func (h *SharingHandler) RevokeAccess(w http.ResponseWriter, r *http.Request) {
	owner, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil {
		writeInvalidRequest(w)
		return
	}

	resource, err := h.service.RevokeAccess(r.Context(), owner, chi.URLParam(r, "id"), email)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, resource)
}
