package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// TestRouterIntegration_ProtectedRoutes は
// Identity -> RateLimit のミドルウェアチェーンがchi.Routerで正しく動作することを検証する。
func TestRouterIntegration_ProtectedRoutes(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfigPerMinute(120, 1))
	defer rl.Stop()

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewSecurityHeadersMiddleware())

	// 認証不要のルート
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(NewIdentityMiddleware())
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/invites", func(w http.ResponseWriter, r *http.Request) {
			userID, _ := UserIDFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"user_id": userID})
		})

		r.With(rl.SharingMiddleware()).Put("/api/resources/{id}/sharing", func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(map[string]string{"resource_id": chi.URLParam(r, "id")})
		})
	})

	withIdentity := func(req *http.Request) *http.Request {
		req.Header.Set(HeaderUserID, "user-router-test")
		req.Header.Set(HeaderUserEmail, "router@example.com")
		return req
	}

	t.Run("GET_invites_with_identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, withIdentity(httptest.NewRequest(http.MethodGet, "/api/invites", nil)))

		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}
		var body map[string]string
		json.NewDecoder(w.Result().Body).Decode(&body)
		if body["user_id"] != "user-router-test" {
			t.Errorf("user_id = %q, want %q", body["user_id"], "user-router-test")
		}
		if w.Result().Header.Get("X-Content-Type-Options") != "nosniff" {
			t.Error("expected security headers")
		}
	})

	t.Run("GET_invites_without_identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/invites", nil))

		if w.Result().StatusCode != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
		}
	})

	t.Run("PUT_sharing_limited_separately", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, withIdentity(httptest.NewRequest(http.MethodPut, "/api/resources/r1/sharing", nil)))
		if w.Result().StatusCode != http.StatusOK {
			t.Fatalf("first: status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}
		var body map[string]string
		json.NewDecoder(w.Result().Body).Decode(&body)
		if body["resource_id"] != "r1" {
			t.Errorf("resource_id = %q, want %q", body["resource_id"], "r1")
		}

		w = httptest.NewRecorder()
		r.ServeHTTP(w, withIdentity(httptest.NewRequest(http.MethodPut, "/api/resources/r1/sharing", nil)))
		if w.Result().StatusCode != http.StatusTooManyRequests {
			t.Errorf("second: status = %d, want %d", w.Result().StatusCode, http.StatusTooManyRequests)
		}
	})

	t.Run("health_no_identity", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

		if w.Result().StatusCode != http.StatusOK {
			t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
		}
	})
}
