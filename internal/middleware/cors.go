package middleware

import (
	"net/http"
	"strings"
)

// CORSで許可するリクエストヘッダー。ID連携のヘッダーを含む。
var corsAllowedHeaders = strings.Join([]string{
	"Content-Type",
	HeaderRequestID,
	HeaderUserID,
	HeaderUserEmail,
}, ", ")

// ブラウザから参照できるレスポンスヘッダー。
var corsExposedHeaders = strings.Join([]string{HeaderRequestID, "Retry-After"}, ", ")

// NewCORSMiddleware はallowedOriginsに対するCORSミドルウェアを返す。
// allowedOriginsはカンマ区切りで複数指定でき、一致したOriginのみをそのまま返す。
// credentials送信と共存するため、ワイルドカード(*)は使用しない。
// OPTIONSプリフライトリクエストには204で応答する。
func NewCORSMiddleware(allowedOrigins string) func(next http.Handler) http.Handler {
	origins := parseOrigins(allowedOrigins)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			if origin, ok := matchOrigin(origins, r.Header.Get("Origin")); ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", corsAllowedHeaders)
				w.Header().Set("Access-Control-Expose-Headers", corsExposedHeaders)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Max-Age", "86400")
			}

			// OPTIONSプリフライトリクエストには204で応答
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func parseOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimRight(strings.TrimSpace(o), "/"); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// matchOrigin はリクエストのOriginが許可リストにあればそれを返す。
// Originヘッダーがない同一オリジンのリクエストでは先頭の許可オリジンを返す。
func matchOrigin(origins []string, requestOrigin string) (string, bool) {
	if len(origins) == 0 {
		return "", false
	}
	if requestOrigin == "" {
		return origins[0], true
	}
	for _, o := range origins {
		if o == requestOrigin {
			return o, true
		}
	}
	return "", false
}
