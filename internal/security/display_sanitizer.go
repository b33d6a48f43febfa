// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DisplaySanitizer は利用者が入力したリソース名やメールアドレスを
// 通知メッセージに埋め込む前にプレーンテキスト化する。
// bluemondayのStrictPolicyで全てのタグを除去し、HTMLとして描画されても安全な文字列にする。
package security

import (
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// DefaultMaxDisplayRunes は表示用テキストの既定の最大文字数。
const DefaultMaxDisplayRunes = 80

// TextSanitizer は表示用テキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize はタグを除去し、空白を1つにまとめ、最大文字数で切り詰めた文字列を返す。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string
}

// displaySanitizer はTextSanitizerの実装。
type displaySanitizer struct {
	policy   *bluemonday.Policy
	maxRunes int
}

// NewDisplaySanitizer はTextSanitizerを生成する。maxRunesが0以下の場合は既定値を使う。
func NewDisplaySanitizer(maxRunes int) *displaySanitizer {
	if maxRunes <= 0 {
		maxRunes = DefaultMaxDisplayRunes
	}
	return &displaySanitizer{
		policy:   bluemonday.StrictPolicy(),
		maxRunes: maxRunes,
	}
}

// Sanitize は表示用テキストをサニタイズする。
func (s *displaySanitizer) Sanitize(raw string) string {
	text := strings.Join(strings.Fields(s.policy.Sanitize(raw)), " ")
	if utf8.RuneCountInString(text) <= s.maxRunes {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:s.maxRunes-1])) + "…"
}
