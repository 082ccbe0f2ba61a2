// Package format は金額表示・手数料計算・スラッグ生成のテキストヘルパーを提供する。
package format

import (
	"fmt"
	"math"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

// symbols は表示に使う通貨記号。未登録の通貨はISOコードを前置する。
var symbols = map[string]string{
	"GBP": "£",
	"EUR": "€",
	"USD": "$",
	"JPY": "¥",
	"THB": "฿",
}

// FormatCurrency は最小通貨単位の金額を表示用文字列に変換する。
// 例: FormatCurrency(123450, "GBP") は "£1,234.50"。
func FormatCurrency(amount int64, code string) (string, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return "", fmt.Errorf("unknown currency %q: %w", code, err)
	}

	scale, _ := currency.Standard.Rounding(unit)
	value := float64(amount) / math.Pow10(scale)

	sign := ""
	if value < 0 {
		sign = "-"
		value = -value
	}

	p := message.NewPrinter(language.BritishEnglish)
	digits := p.Sprintf("%v", number.Decimal(value, number.Scale(scale)))

	if sym, ok := symbols[unit.String()]; ok {
		return sign + sym + digits, nil
	}
	return sign + unit.String() + " " + digits, nil
}

// MinorUnits は通貨の小数桁数を返す。GBPは2、JPYは0。
func MinorUnits(code string) (int, error) {
	unit, err := currency.ParseISO(code)
	if err != nil {
		return 0, fmt.Errorf("unknown currency %q: %w", code, err)
	}
	scale, _ := currency.Standard.Rounding(unit)
	return scale, nil
}
