package format

import "errors"

// ErrNegativeAmount は負の金額や料率が渡された場合のエラー。
var ErrNegativeAmount = errors.New("amount and rates must not be negative")

// Fees は注文1件分の金額内訳。すべて最小通貨単位。
type Fees struct {
	Subtotal   int64 `json:"subtotal"`
	Fee        int64 `json:"fee"`
	Total      int64 `json:"total"`
	Commission int64 `json:"commission"`
	Payout     int64 `json:"payout"`
}

// CalculateFees は小計から利用者手数料とレストランへの支払額を計算する。
// feeBpsは利用者に上乗せするプラットフォーム手数料率、commissionBpsは
// レストランの売上から差し引く手数料率（いずれもベーシスポイント）。
// 端数は四捨五入する。
func CalculateFees(subtotal int64, feeBps, commissionBps int) (Fees, error) {
	if subtotal < 0 || feeBps < 0 || commissionBps < 0 {
		return Fees{}, ErrNegativeAmount
	}

	fee := applyBps(subtotal, feeBps)
	commission := applyBps(subtotal, commissionBps)
	if commission > subtotal {
		commission = subtotal
	}

	return Fees{
		Subtotal:   subtotal,
		Fee:        fee,
		Total:      subtotal + fee,
		Commission: commission,
		Payout:     subtotal - commission,
	}, nil
}

func applyBps(amount int64, bps int) int64 {
	return (amount*int64(bps) + 5000) / 10000
}
