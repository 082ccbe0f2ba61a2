// Package document はユーザー/レストランのドキュメントに対する
// 型付きフィールドアクセスを提供する。
//
// フィールドキーは Field[K, T] の値としてこのパッケージ内でのみ定義できる。
// K はドキュメント種別、T はそのキーに保存する値の型を表し、
// 種別の異なるアクセサへのフィールド指定や値の型違いはコンパイルエラーになる。
package document

import "github.com/tastiest/functions/internal/model"

// Kind はドキュメント種別を表す。コレクション名を返す。
type Kind interface {
	Collection() string
}

// User はユーザードキュメントの種別。
type User struct{}

// Collection はコレクション名を返す。
func (User) Collection() string { return "users" }

// Restaurant はレストランドキュメントの種別。
type Restaurant struct{}

// Collection はコレクション名を返す。
func (Restaurant) Collection() string { return "restaurants" }

// Field はドキュメント種別Kの値型Tを持つトップレベルフィールドのキー。
// パッケージ外で生成できるのはゼロ値のみで、ゼロ値はErrUnknownFieldとして拒否される。
type Field[K Kind, T any] struct {
	key string
}

// Key はドキュメント上のフィールド名を返す。
func (f Field[K, T]) Key() string {
	return f.key
}

func (f Field[K, T]) String() string {
	var k K
	return k.Collection() + "." + f.key
}

func newField[K Kind, T any](key string) Field[K, T] {
	return Field[K, T]{key: key}
}

// ユーザードキュメントのフィールド
var (
	UserFieldRole                  = newField[User, model.UserRole]("role")
	UserFieldDisplayName           = newField[User, string]("displayName")
	UserFieldDetails               = newField[User, model.UserDetails]("details")
	UserFieldPaymentDetails        = newField[User, model.PaymentDetails]("paymentDetails")
	UserFieldPaymentMethods        = newField[User, map[string]model.PaymentMethod]("paymentMethods")
	UserFieldPreferences           = newField[User, model.UserPreferences]("preferences")
	UserFieldMetrics               = newField[User, model.UserMetrics]("metrics")
	UserFieldSavedArticles         = newField[User, []string]("savedArticles")
	UserFieldRestaurantsVisited    = newField[User, []string]("restaurantsVisited")
	UserFieldPasswordResetRequests = newField[User, []model.PasswordResetRequest]("passwordResetRequests")
)

// レストランドキュメントのフィールド
var (
	RestaurantFieldRole      = newField[Restaurant, model.RestaurantRole]("role")
	RestaurantFieldDetails   = newField[Restaurant, model.RestaurantDetails]("details")
	RestaurantFieldProfile   = newField[Restaurant, model.RestaurantProfile]("profile")
	RestaurantFieldFinancial = newField[Restaurant, model.RestaurantFinancial]("financial")
	RestaurantFieldBookings  = newField[Restaurant, map[string]model.Booking]("bookings")
	RestaurantFieldEmail     = newField[Restaurant, model.RestaurantEmail]("email")
	RestaurantFieldInvoices  = newField[Restaurant, []model.Invoice]("invoices")
	RestaurantFieldLegal     = newField[Restaurant, model.RestaurantLegal]("legal")
	RestaurantFieldMetrics   = newField[Restaurant, model.RestaurantMetrics]("metrics")
	RestaurantFieldSettings  = newField[Restaurant, model.RestaurantSettings]("settings")
	RestaurantFieldRealtime  = newField[Restaurant, model.RestaurantRealtime]("realtime")
)

// UserFieldKeys はユーザードキュメントの全フィールド名を返す。
func UserFieldKeys() []string {
	return []string{
		UserFieldRole.key,
		UserFieldDisplayName.key,
		UserFieldDetails.key,
		UserFieldPaymentDetails.key,
		UserFieldPaymentMethods.key,
		UserFieldPreferences.key,
		UserFieldMetrics.key,
		UserFieldSavedArticles.key,
		UserFieldRestaurantsVisited.key,
		UserFieldPasswordResetRequests.key,
	}
}

// RestaurantFieldKeys はレストランドキュメントの全フィールド名を返す。
func RestaurantFieldKeys() []string {
	return []string{
		RestaurantFieldRole.key,
		RestaurantFieldDetails.key,
		RestaurantFieldProfile.key,
		RestaurantFieldFinancial.key,
		RestaurantFieldBookings.key,
		RestaurantFieldEmail.key,
		RestaurantFieldInvoices.key,
		RestaurantFieldLegal.key,
		RestaurantFieldMetrics.key,
		RestaurantFieldSettings.key,
		RestaurantFieldRealtime.key,
	}
}
