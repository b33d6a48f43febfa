package model

// Principal は外部IdPが認証したリクエスト元ユーザーを表す。
// 安定したユーザーIDとメールアドレスのみを保持する。
type Principal struct {
	UserID string
	Email  string
}
