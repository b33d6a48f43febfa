package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vaultshare/internal/middleware"
	"github.com/hitoshi/vaultshare/internal/model"
)

// InviteServiceInterface は共有先向け招待ハンドラーが必要とするサービスインターフェース。
type InviteServiceInterface interface {
	// ListPendingInvites はリクエスト元宛ての未回答の招待を返す。
	ListPendingInvites(ctx context.Context, guest model.Principal) ([]inviteResponse, error)
	// RespondToInvite は招待を承諾または辞退する。
	RespondToInvite(ctx context.Context, guest model.Principal, inviteID string, accept bool) (*inviteResponse, error)
}

// InviteHandler は招待のHTTPハンドラー。
type InviteHandler struct {
	service InviteServiceInterface
}

// NewInviteHandler はInviteHandlerを生成する。
func NewInviteHandler(service InviteServiceInterface) *InviteHandler {
	return &InviteHandler{
		service: service,
	}
}

// respondRequest は招待回答リクエストのボディ。acceptは必須。
type respondRequest struct {
	Accept *bool `json:"accept"`
}

// ListPendingInvites は未回答の招待一覧を返す。
// GET /api/invites
func (h *InviteHandler) ListPendingInvites(w http.ResponseWriter, r *http.Request) {
	guest, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	invites, err := h.service.ListPendingInvites(r.Context(), guest)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}
	if invites == nil {
		invites = []inviteResponse{}
	}

	writeJSON(w, http.StatusOK, invites)
}

// RespondToInvite は招待に回答する。
// POST /api/invites/{id}/response
func (h *InviteHandler) RespondToInvite(w http.ResponseWriter, r *http.Request) {
	guest, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Accept == nil {
		writeInvalidRequest(w)
		return
	}

	invite, err := h.service.RespondToInvite(r.Context(), guest, chi.URLParam(r, "id"), *req.Accept)
	if err != nil {
		middleware.WriteError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, invite)
}
