// Package model はドメインモデルを定義する。
package model

import "time"

// Account はIdPに登録されたアカウントを表す。
// ドキュメントIDはAccount.IDと一致する。
type Account struct {
	ID          string
	Email       string
	DisplayName string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// UserRole はユーザーの権限種別を表す。
type UserRole string

const (
	// UserRoleEater は一般利用者。
	UserRoleEater UserRole = "eater"
	// UserRoleAdmin は管理者。
	UserRoleAdmin UserRole = "admin"
	// UserRoleTest はテスト用アカウント。
	UserRoleTest UserRole = "test"
)

// UserDetails はユーザーのプロフィール情報。
type UserDetails struct {
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Email     string   `json:"email,omitempty"`
	Mobile    string   `json:"mobile,omitempty"`
	Birthday  string   `json:"birthday,omitempty"`
	Postcode  string   `json:"postcode,omitempty"`
	Address   *Address `json:"address,omitempty"`
}

// Address は住所を表す。
type Address struct {
	Line1    string `json:"line1"`
	Line2    string `json:"line2,omitempty"`
	City     string `json:"city"`
	Postcode string `json:"postcode"`
}

// PaymentDetails は決済プロバイダー側の顧客情報。
type PaymentDetails struct {
	CustomerID           string `json:"customerId"`
	DefaultPaymentMethod string `json:"defaultPaymentMethod,omitempty"`
}

// PaymentMethod は登録済みカードの概要。カード番号そのものは保持しない。
type PaymentMethod struct {
	ID       string    `json:"id"`
	Brand    string    `json:"brand"`
	Last4    string    `json:"last4"`
	ExpMonth int       `json:"expMonth"`
	ExpYear  int       `json:"expYear"`
	AddedAt  time.Time `json:"addedAt"`
}

// UserPreferences はユーザーの嗜好設定。
type UserPreferences struct {
	Dietary        []string `json:"dietary,omitempty"`
	Cuisines       []string `json:"cuisines,omitempty"`
	MarketingEmail bool     `json:"marketingEmail"`
	Currency       string   `json:"currency,omitempty"`
}

// UserMetrics はユーザーの利用実績。
// OpenOrdersは決済未完了の注文をorder IDで保持する。
type UserMetrics struct {
	TotalBookings int                     `json:"totalBookings"`
	TotalSpent    int64                   `json:"totalSpent"`
	LastBookingAt *time.Time              `json:"lastBookingAt,omitempty"`
	OpenOrders    map[string]OrderSummary `json:"openOrders,omitempty"`
}

// PasswordResetRequest はパスワードリセット要求の履歴。
type PasswordResetRequest struct {
	ID          string    `json:"id"`
	RequestedAt time.Time `json:"requestedAt"`
	IPAddress   string    `json:"ipAddress,omitempty"`
}
