// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, sharing, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeResourceNotFound    = "RESOURCE_NOT_FOUND"
	ErrCodeInviteNotFound      = "INVITE_NOT_FOUND"
	ErrCodeGuestNotFound       = "GUEST_NOT_FOUND"
	ErrCodeAlreadyResolved     = "INVITE_ALREADY_RESOLVED"
	ErrCodeEmptyGuestSet       = "EMPTY_GUEST_SET"
	ErrCodeTransactionConflict = "TRANSACTION_CONFLICT"
	ErrCodeInvalidEmail        = "INVALID_EMAIL"
	ErrCodeSelfInvite          = "SELF_INVITE"
	ErrCodeUnauthorized        = "UNAUTHORIZED"
	ErrCodeInvalidRequest      = "INVALID_REQUEST"
)

// HasCode はerrがAPIErrorであり、指定コードを持つかどうかを返す。
func HasCode(err error, code string) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

// NewResourceNotFoundError はリソース未検出エラーを生成する。
// 他ユーザーが所有するリソースに対しても存在を明かさないためこのエラーを返す。
func NewResourceNotFoundError(resourceID string) *APIError {
	return &APIError{
		Code:     ErrCodeResourceNotFound,
		Message:  fmt.Sprintf("指定されたリソースが見つかりません: %s", resourceID),
		Category: "sharing",
		Action:   "リソースIDを確認してください。",
	}
}

// NewInviteNotFoundError は招待未検出エラーを生成する。
func NewInviteNotFoundError(inviteID string) *APIError {
	return &APIError{
		Code:     ErrCodeInviteNotFound,
		Message:  fmt.Sprintf("指定された招待が見つかりません: %s", inviteID),
		Category: "sharing",
		Action:   "招待が取り消されていないか確認してください。",
	}
}

// NewGuestNotFoundError は共有先未検出エラーを生成する。
func NewGuestNotFoundError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeGuestNotFound,
		Message:  fmt.Sprintf("指定された共有先が見つかりません: %s", email),
		Category: "sharing",
		Action:   "共有先一覧を更新してから再度お試しください。",
	}
}

// NewAlreadyResolvedError は回答済みの招待に再度回答しようとした場合のエラーを生成する。
func NewAlreadyResolvedError(inviteID string, status GuestStatus) *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyResolved,
		Message:  fmt.Sprintf("この招待には既に回答済みです（%s）: %s", status, inviteID),
		Category: "sharing",
		Action:   "招待一覧を更新してください。",
	}
}

// NewEmptyGuestSetError は共有先を指定せずに共有を有効化しようとした場合のエラーを生成する。
func NewEmptyGuestSetError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyGuestSet,
		Message:  "共有を有効にするには共有先を1件以上指定する必要があります。",
		Category: "validation",
		Action:   "共有先のメールアドレスを入力するか、共有をオフにしてください。",
	}
}

// NewTransactionConflictError は同時更新の競合が解消しなかった場合のエラーを生成する。
func NewTransactionConflictError() *APIError {
	return &APIError{
		Code:     ErrCodeTransactionConflict,
		Message:  "他の端末からの更新と競合しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewInvalidEmailError は無効なメールアドレスのエラーを生成する。
func NewInvalidEmailError(email string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidEmail,
		Message:  fmt.Sprintf("無効なメールアドレスです: %s", email),
		Category: "validation",
		Action:   "正しい形式のメールアドレスを入力してください。",
	}
}

// NewSelfInviteError はオーナー自身のメールアドレスを共有先に指定した場合のエラーを生成する。
func NewSelfInviteError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfInvite,
		Message:  "自分自身を共有先に指定することはできません。",
		Category: "validation",
		Action:   "共有先から自分のメールアドレスを除いてください。",
	}
}

// NewUnauthorizedError は認証情報が欠けている場合のエラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインしてください。",
	}
}

// NewInvalidRequestError はリクエストボディが解析できない場合のエラーを生成する。
func NewInvalidRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}
