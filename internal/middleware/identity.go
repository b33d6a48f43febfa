// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/vaultshare/internal/model"
)

// 上流のIdPが付与するヘッダー。
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに認証済みユーザーを格納するためのキー。
var principalContextKey = contextKey("principal")

// NewIdentityMiddleware は上流のIdPが付与したヘッダーから認証済みユーザーを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// ユーザーIDまたはメールアドレスが欠けている場合は401 Unauthorizedを返す。
func NewIdentityMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := strings.TrimSpace(r.Header.Get(HeaderUserID))
			email := strings.TrimSpace(r.Header.Get(HeaderUserEmail))
			if userID == "" || email == "" {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthorizedError())
				return
			}

			ctx := ContextWithPrincipal(r.Context(), model.Principal{UserID: userID, Email: email})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから認証済みユーザーを取得する。
// IdentityMiddlewareを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (model.Principal, error) {
	p, ok := ctx.Value(principalContextKey).(model.Principal)
	if !ok || p.UserID == "" {
		return model.Principal{}, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
func UserIDFromContext(ctx context.Context) (string, error) {
	p, err := PrincipalFromContext(ctx)
	if err != nil {
		return "", err
	}
	return p.UserID, nil
}

// ContextWithPrincipal はコンテキストに認証済みユーザーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
