package horus

import (
	"errors"
	"net/url"
	"strings"
)

// Route はHorusまたは関数エンドポイントのパステンプレート。
// ":"で始まるセグメントが動的セグメントのプレースホルダー。
type Route string

const (
	// RouteSupportRestaurantReply はレストラン向けサポートチケットへの返信。
	RouteSupportRestaurantReply Route = "/support/restaurants/reply"
	// RouteSupportUserReply はユーザー向けサポートチケットへの返信。
	RouteSupportUserReply Route = "/support/users/reply"
	// RouteRestaurantBookings はレストランの予約一覧。
	RouteRestaurantBookings Route = "/restaurants/:id/bookings"
	// RouteBookingConfirm は予約の確定。
	RouteBookingConfirm Route = "/bookings/:id/confirm"

	// RouteFunctionAbandonedCart は放棄カートのフォローアップ関数。
	RouteFunctionAbandonedCart Route = "/functions/orders/abandoned-cart"
	// RouteFunctionTrack はアナリティクス転送関数。
	RouteFunctionTrack Route = "/functions/analytics/track"
)

// ErrMissingDynamicSegment は動的セグメントを持つルートに値が渡されなかった場合のエラー。
// 呼び出し側の実装誤りを示し、リクエストの送信前に返される。
var ErrMissingDynamicSegment = errors.New("route requires a dynamic segment")

// HasDynamicSegment はルートが動的セグメントを含むかを返す。
func (r Route) HasDynamicSegment() bool {
	for _, seg := range strings.Split(string(r), "/") {
		if strings.HasPrefix(seg, ":") {
			return true
		}
	}
	return false
}

// Path はプレースホルダーをsegmentで置き換えたパスを返す。
// segmentはパスエスケープされる。
func (r Route) Path(segment string) (string, error) {
	parts := strings.Split(string(r), "/")
	for i, seg := range parts {
		if !strings.HasPrefix(seg, ":") {
			continue
		}
		if segment == "" {
			return "", ErrMissingDynamicSegment
		}
		parts[i] = url.PathEscape(segment)
	}
	return strings.Join(parts, "/"), nil
}
