package model

import "time"

// OrderStatus は注文の決済状態を表す。
type OrderStatus string

const (
	// OrderStatusPending は決済前の注文。
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid は決済済みの注文。
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusFailed は決済に失敗した注文。
	OrderStatusFailed OrderStatus = "failed"
)

// OrderSummary はユーザードキュメントに保持する注文の概要。
type OrderSummary struct {
	ID            string      `json:"id"`
	RestaurantID  string      `json:"restaurantId"`
	Experience    string      `json:"experience"`
	Heads         int         `json:"heads"`
	Subtotal      int64       `json:"subtotal"`
	Fee           int64       `json:"fee"`
	Total         int64       `json:"total"`
	Currency      string      `json:"currency"`
	Status        OrderStatus `json:"status"`
	ChargeID      string      `json:"chargeId,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`
	BookedFor     time.Time   `json:"bookedFor"`
	CreatedAt     time.Time   `json:"createdAt"`
	FollowedUpAt  *time.Time  `json:"followedUpAt,omitempty"`
}
