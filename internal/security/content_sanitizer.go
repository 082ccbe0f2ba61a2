// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はCMSから同期したレストラン紹介文のHTMLを無害化する。
// bluemondayの許可リストポリシーで、安全なタグと属性のみを通過させる。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はHTMLサニタイズのインターフェース。
type ContentSanitizerService interface {
	// Sanitize はHTMLを無害化して返す。
	// 許可タグ: p, br, h2, h3, a, ul, ol, li, blockquote, strong, em, img。
	// imgのsrcはhttpsのみ、aにはtarget="_blank"とrel="noopener noreferrer"を付与する。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(rawHTML string) string
}

type contentSanitizer struct {
	policy *bluemonday.Policy
}

// NewContentSanitizer はレストラン紹介文用のポリシーを構築する。
func NewContentSanitizer() *contentSanitizer {
	p := bluemonday.NewPolicy()

	// script, iframe, styleとon*属性は許可リスト外なので除去される
	p.AllowElements(
		"p", "br", "h2", "h3", "ul", "ol", "li",
		"blockquote", "strong", "em",
	)

	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	p.AllowAttrs("src", "alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &contentSanitizer{policy: p}
}

// Sanitize はHTMLを無害化して返す。
func (s *contentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
