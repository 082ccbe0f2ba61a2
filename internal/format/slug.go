package format

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Slugify はレストラン名などをURLセグメントに変換する。
// 発音区別符号を落とし、英数字以外の連続を1つのハイフンにまとめる。
func Slugify(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	pendingDash := false
	for _, r := range strings.ToLower(folded) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingDash && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingDash = false
			b.WriteRune(r)
			continue
		}
		if r == '&' {
			if b.Len() > 0 {
				b.WriteString("-and")
			} else {
				b.WriteString("and")
			}
			pendingDash = true
			continue
		}
		pendingDash = true
	}
	return b.String()
}
