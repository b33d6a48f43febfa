package security

import (
	"strings"
	"testing"
	"unicode/utf8"
)

// TestDisplaySanitize はタグ除去と空白正規化を検証する。
func TestDisplaySanitize(t *testing.T) {
	sanitizer := NewDisplaySanitizer(0)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "プレーンテキストはそのまま", input: "銀行口座", want: "銀行口座"},
		{name: "scriptタグは中身ごと除去", input: `Bank<script>alert(1)</script>`, want: "Bank"},
		{name: "装飾タグは除去し文字は残す", input: "<b>Main</b> <i>card</i>", want: "Main card"},
		{name: "連続する空白は1つにまとめる", input: "  My \n\t Vault  ", want: "My Vault"},
		{name: "空文字列は空文字列", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizer.Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

// TestDisplaySanitize_EscapesAngleBrackets は山括弧がHTMLとして解釈されない形で残ることを検証する。
func TestDisplaySanitize_EscapesAngleBrackets(t *testing.T) {
	got := NewDisplaySanitizer(0).Sanitize("a < b")
	if strings.Contains(got, "<") {
		t.Errorf("Sanitize() = %q, raw angle bracket must not remain", got)
	}
}

// TestDisplaySanitize_Truncates は最大文字数で切り詰めることを検証する。
func TestDisplaySanitize_Truncates(t *testing.T) {
	sanitizer := NewDisplaySanitizer(5)

	got := sanitizer.Sanitize("あいうえおかきくけこ")
	if utf8.RuneCountInString(got) != 5 {
		t.Errorf("rune count = %d, want 5 (%q)", utf8.RuneCountInString(got), got)
	}
	if !strings.HasSuffix(got, "…") {
		t.Errorf("Sanitize() = %q, want ellipsis suffix", got)
	}
}

// TestDisplaySanitize_Idempotent は同一入力に対して同一出力を返すことを検証する。
func TestDisplaySanitize_Idempotent(t *testing.T) {
	sanitizer := NewDisplaySanitizer(0)
	input := "<p>Shared <em>card</em></p>"
	first := sanitizer.Sanitize(input)
	for i := 0; i < 5; i++ {
		if got := sanitizer.Sanitize(input); got != first {
			t.Fatalf("iteration %d: %q != %q", i, got, first)
		}
	}
}
