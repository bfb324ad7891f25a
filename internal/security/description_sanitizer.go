// Package security はアプリケーションのセキュリティ機能を提供する。
//
// DescriptionSanitizer はタスク説明文をサニタイズし、
// XSS攻撃などのセキュリティリスクからユーザーを保護する。
// bluemondayライブラリを使用した許可リストベースのポリシーで、
// 最小限の装飾タグのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// DescriptionSanitizer はタスク説明文のサニタイズ機能を提供する。
// 説明文の保存前に使用され、同一入力に対して常に同一出力を返す（冪等）。
type DescriptionSanitizer struct {
	policy *bluemonday.Policy
}

// NewDescriptionSanitizer はDescriptionSanitizerの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 許可タグ: br, strong, em, a
//   - script, iframe, style等は許可リストに含めないことで自動的に除去される
//   - on*イベント属性はbluemondayのデフォルトで許可されないため除去される
//   - aタグ: href属性のみ許可。target="_blank" と rel="noopener noreferrer" を自動付与
func NewDescriptionSanitizer() *DescriptionSanitizer {
	p := bluemonday.NewPolicy()

	p.AllowElements("br", "strong", "em")

	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	return &DescriptionSanitizer{policy: p}
}

// Sanitize は説明文をサニタイズして安全なテキストを返す。
func (s *DescriptionSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
