package model

import "time"

// RestaurantRole はレストランアカウントの権限種別を表す。
type RestaurantRole string

const (
	// RestaurantRoleOwner はレストランのオーナー。
	RestaurantRoleOwner RestaurantRole = "restaurant"
	// RestaurantRoleAdmin は管理者。
	RestaurantRoleAdmin RestaurantRole = "admin"
)

// RestaurantDetails はCMSから同期されるレストランの基本情報。
type RestaurantDetails struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	URI         string    `json:"uri"`
	City        string    `json:"city,omitempty"`
	Cuisine     string    `json:"cuisine,omitempty"`
	Description string    `json:"description,omitempty"`
	Location    *Location `json:"location,omitempty"`
	Website     string    `json:"website,omitempty"`
	SyncedAt    time.Time `json:"syncedAt"`
}

// Location は緯度経度と住所。
type Location struct {
	Lat     float64 `json:"lat"`
	Lon     float64 `json:"lon"`
	Address string  `json:"address,omitempty"`
}

// RestaurantProfile は公開プロフィール。
type RestaurantProfile struct {
	Tagline    string   `json:"tagline,omitempty"`
	HeroImage  string   `json:"heroImage,omitempty"`
	Images     []string `json:"images,omitempty"`
	Publicized bool     `json:"publicized"`
}

// RestaurantFinancial は精算に関する設定。
// CommissionBps はプラットフォーム手数料率（ベーシスポイント）。
type RestaurantFinancial struct {
	Currency        string `json:"currency"`
	CommissionBps   int    `json:"commissionBps"`
	PayoutAccountID string `json:"payoutAccountId,omitempty"`
}

// Booking はレストラン側から見た予約。
type Booking struct {
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	Experience string    `json:"experience"`
	Heads      int       `json:"heads"`
	Total      int64     `json:"total"`
	Payout     int64     `json:"payout"`
	Currency   string    `json:"currency"`
	BookedFor  time.Time `json:"bookedFor"`
	CreatedAt  time.Time `json:"createdAt"`
}

// RestaurantEmail は通知先メールアドレスの設定。
type RestaurantEmail struct {
	Contact       string `json:"contact"`
	Bookings      string `json:"bookings,omitempty"`
	Notifications bool   `json:"notifications"`
}

// Invoice は発行済み請求書。
type Invoice struct {
	ID       string    `json:"id"`
	Amount   int64     `json:"amount"`
	Currency string    `json:"currency"`
	IssuedAt time.Time `json:"issuedAt"`
	Paid     bool      `json:"paid"`
}

// RestaurantLegal は契約情報。
type RestaurantLegal struct {
	CompanyName     string     `json:"companyName"`
	CompanyNumber   string     `json:"companyNumber,omitempty"`
	VATNumber       string     `json:"vatNumber,omitempty"`
	TermsAcceptedAt *time.Time `json:"termsAcceptedAt,omitempty"`
}

// RestaurantMetrics はレストランの実績。
type RestaurantMetrics struct {
	TotalBookings int   `json:"totalBookings"`
	TotalRevenue  int64 `json:"totalRevenue"`
	TotalPayout   int64 `json:"totalPayout"`
}

// RestaurantSettings は運用設定。
type RestaurantSettings struct {
	AcceptingBookings bool `json:"acceptingBookings"`
	MaxHeads          int  `json:"maxHeads,omitempty"`
	AutoConfirm       bool `json:"autoConfirm"`
}

// RestaurantRealtime は管理画面のオンライン状態。
type RestaurantRealtime struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen,omitempty"`
}
