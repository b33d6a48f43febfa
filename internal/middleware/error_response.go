package middleware

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hitoshi/vaultshare/internal/model"
)

// conflictRetryAfterSeconds は競合エラー時に返すRetry-Afterの秒数。
const conflictRetryAfterSeconds = "1"

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// 原因カテゴリと対処方法を含む。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
// すべてのAPIエンドポイントで一貫したエラーレスポンスを提供する。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// StatusForError はAPIErrorのコードに対応するHTTPステータスを返す。
// APIError以外のエラーは500として扱う。
func StatusForError(err error) int {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		return http.StatusInternalServerError
	}

	switch apiErr.Code {
	case model.ErrCodeResourceNotFound, model.ErrCodeInviteNotFound, model.ErrCodeGuestNotFound:
		return http.StatusNotFound
	case model.ErrCodeAlreadyResolved, model.ErrCodeTransactionConflict:
		return http.StatusConflict
	case model.ErrCodeEmptyGuestSet, model.ErrCodeInvalidEmail, model.ErrCodeSelfInvite, model.ErrCodeInvalidRequest:
		return http.StatusBadRequest
	case model.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// WriteError はサービス層から返されたエラーをHTTPレスポンスに変換する。
// APIErrorはそのまま返し、それ以外はログに記録した上で内部エラーとして返す。
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		slog.Error("unhandled error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		WriteInternalServerError(w)
		return
	}

	if apiErr.Code == model.ErrCodeTransactionConflict {
		w.Header().Set("Retry-After", conflictRetryAfterSeconds)
	}
	WriteErrorResponse(w, StatusForError(apiErr), apiErr)
}
