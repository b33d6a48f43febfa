// Package guestkey はメールアドレスから共有先キー（guestKey）を生成する。
//
// guestKeyはResource.SharedWithのマップキーおよびInviteのドキュメントIDの一部として使われる。
// 大文字小文字や前後の空白だけが異なるメールアドレスは同じキーになり、
// パス区切り文字（/）とInvite IDの区切り文字（_）は含まれない。
package guestkey

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// ErrInvalidEmail はメールアドレスとして解釈できない入力を表す。
var ErrInvalidEmail = errors.New("invalid email address")

const hexDigits = "0123456789ABCDEF"

// Normalize はメールアドレスをguestKeyに変換する。
// 前後の空白を除去し、NFC正規化とUnicodeケースフォールディングを行った後、
// [a-z0-9.@+-] 以外のバイトをパーセントエスケープする。エスケープは単射であるため、
// 異なるメールボックスが同じキーになることはない。
func Normalize(email string) (string, error) {
	s := strings.TrimSpace(email)
	if s == "" {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndex(s, "@")
	if at <= 0 || at == len(s)-1 {
		return "", fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}

	// cases.Caserは状態を持つため呼び出しごとに生成する
	folded := cases.Fold().String(norm.NFC.String(s))
	return escape(folded), nil
}

// Parse は入力されたメールアドレスを検証し、表示用アドレスとguestKeyを返す。
// "Name <addr@example.com>" 形式も受け付け、表示用にはアドレス部分のみを使用する。
func Parse(raw string) (display string, key string, err error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidEmail, raw)
	}
	key, err = Normalize(addr.Address)
	if err != nil {
		return "", "", err
	}
	return addr.Address, key, nil
}

// Equal は2つのメールアドレスが同じメールボックスを指すかどうかを返す。
func Equal(a, b string) bool {
	ka, errA := Normalize(a)
	kb, errB := Normalize(b)
	return errA == nil && errB == nil && ka == kb
}

func escape(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isSafe(c) {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hexDigits[c>>4])
		b.WriteByte(hexDigits[c&0x0f])
	}
	return b.String()
}

func isSafe(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z':
		return true
	case c >= '0' && c <= '9':
		return true
	case c == '.' || c == '@' || c == '+' || c == '-':
		return true
	}
	return false
}
