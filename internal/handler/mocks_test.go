package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vaultshare/internal/middleware"
	"github.com/hitoshi/vaultshare/internal/model"
)

// --- モック定義 ---

// mockSharingService はSharingServiceInterfaceのモック実装。
type mockSharingService struct {
	setSharingFn   func(ctx context.Context, owner model.Principal, resourceID string, req setSharingRequest) (*sharingResponse, error)
	listGuestsFn   func(ctx context.Context, owner model.Principal, resourceID string, includeInactive bool) ([]guestResponse, error)
	revokeAccessFn func(ctx context.Context, owner model.Principal, resourceID, guestEmail string) (*resourceResponse, error)
}

func (m *mockSharingService) SetSharing(ctx context.Context, owner model.Principal, resourceID string, req setSharingRequest) (*sharingResponse, error) {
	if m.setSharingFn != nil {
		return m.setSharingFn(ctx, owner, resourceID, req)
	}
	return &sharingResponse{}, nil
}

func (m *mockSharingService) ListGuests(ctx context.Context, owner model.Principal, resourceID string, includeInactive bool) ([]guestResponse, error) {
	if m.listGuestsFn != nil {
		return m.listGuestsFn(ctx, owner, resourceID, includeInactive)
	}
	return nil, nil
}

func (m *mockSharingService) RevokeAccess(ctx context.Context, owner model.Principal, resourceID, guestEmail string) (*resourceResponse, error) {
	if m.revokeAccessFn != nil {
		return m.revokeAccessFn(ctx, owner, resourceID, guestEmail)
	}
	return &resourceResponse{}, nil
}

// mockInviteService はInviteServiceInterfaceのモック実装。
type mockInviteService struct {
	listPendingInvitesFn func(ctx context.Context, guest model.Principal) ([]inviteResponse, error)
	respondToInviteFn    func(ctx context.Context, guest model.Principal, inviteID string, accept bool) (*inviteResponse, error)
}

func (m *mockInviteService) ListPendingInvites(ctx context.Context, guest model.Principal) ([]inviteResponse, error) {
	if m.listPendingInvitesFn != nil {
		return m.listPendingInvitesFn(ctx, guest)
	}
	return nil, nil
}

func (m *mockInviteService) RespondToInvite(ctx context.Context, guest model.Principal, inviteID string, accept bool) (*inviteResponse, error) {
	if m.respondToInviteFn != nil {
		return m.respondToInviteFn(ctx, guest, inviteID, accept)
	}
	return &inviteResponse{}, nil
}

// mockNotificationService はNotificationServiceInterfaceのモック実装。
type mockNotificationService struct {
	listNotificationsFn func(ctx context.Context, userID string, limit int) ([]notificationResponse, error)
}

func (m *mockNotificationService) ListNotifications(ctx context.Context, userID string, limit int) ([]notificationResponse, error) {
	if m.listNotificationsFn != nil {
		return m.listNotificationsFn(ctx, userID, limit)
	}
	return nil, nil
}

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	err error
}

func (m *mockHealthChecker) Ping(ctx context.Context) error {
	return m.err
}

// --- テストヘルパー ---

var (
	testOwner = model.Principal{UserID: "user-alice", Email: "alice@example.com"}
	testGuest = model.Principal{UserID: "user-bob", Email: "bob@example.com"}
)

// withPrincipal はテスト用に認証済みユーザーをコンテキストに注入するヘルパー。
func withPrincipal(r *http.Request, p model.Principal) *http.Request {
	return r.WithContext(middleware.ContextWithPrincipal(r.Context(), p))
}

// withChiURLParams はテスト用にchiのURLパラメータを注入するヘルパー。
func withChiURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(ctx)
}

// parseAPIErrorResponse はレスポンスボディからAPIErrorレスポンスをパースするヘルパー。
func parseAPIErrorResponse(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var result map[string]string
	if err := json.NewDecoder(w.Body).Decode(&result); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return result
}
