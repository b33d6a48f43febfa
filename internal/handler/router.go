package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/vaultshare/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.HTTPStatusRecorder

	// 運用
	HealthChecker  HealthChecker
	MetricsHandler http.Handler

	// 共有
	SharingService      SharingServiceInterface
	InviteService       InviteServiceInterface
	NotificationService NotificationServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → Metrics → SecurityHeaders → CORS → Identity → RateLimit(General)
//
// PUT /api/resources/{id}/sharing にはさらにRateLimit(Sharing)を適用する。
// /health と /metrics は認証の外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.StatusRecorder != nil {
		r.Use(middleware.NewMetricsMiddleware(deps.StatusRecorder))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	sharingHandler := NewSharingHandler(deps.SharingService)
	inviteHandler := NewInviteHandler(deps.InviteService)
	notificationHandler := NewNotificationHandler(deps.NotificationService)

	// --- 認証不要のルート ---
	if deps.HealthChecker != nil {
		r.Get("/health", NewHealthHandler(deps.HealthChecker))
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Identity → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewIdentityMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// リソースの共有設定（オーナー）
		r.Route("/api/resources/{id}", func(r chi.Router) {
			r.With(deps.RateLimiter.SharingMiddleware()).Put("/sharing", sharingHandler.SetSharing)
			r.Get("/guests", sharingHandler.ListGuests)
			r.Delete("/guests/{email}", sharingHandler.RevokeAccess)
		})

		// 招待（共有先）
		r.Route("/api/invites", func(r chi.Router) {
			r.Get("/", inviteHandler.ListPendingInvites)
			r.Post("/{id}/response", inviteHandler.RespondToInvite)
		})

		// 受信箱
		r.Get("/api/notifications", notificationHandler.ListNotifications)
	})

	return r
}
