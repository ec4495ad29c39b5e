package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はフォームの自由記述からHTMLを取り除く。
type TextSanitizer interface {
	Sanitize(input string) string
}

type plainTextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はすべてのタグと属性を除去するTextSanitizerを生成する。
func NewTextSanitizer() TextSanitizer {
	return &plainTextSanitizer{policy: bluemonday.StrictPolicy()}
}

// Sanitize はタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
// 表示時にテンプレートでエスケープするため、文字参照は元の文字に戻して保存する。
func (s *plainTextSanitizer) Sanitize(input string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(input)))
}
