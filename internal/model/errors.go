// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// 呼び出し元に返す原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // Category* のいずれか
	Action   string // 呼び出し元向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUnauthenticated     = "UNAUTHENTICATED"
	ErrCodeInvalidPayload      = "INVALID_PAYLOAD"
	ErrCodeUserNotFound        = "USER_NOT_FOUND"
	ErrCodeRestaurantNotFound  = "RESTAURANT_NOT_FOUND"
	ErrCodePaymentFailed       = "PAYMENT_FAILED"
	ErrCodeNoPaymentMethod     = "NO_PAYMENT_METHOD"
	ErrCodeCMSEntryNotFound    = "CMS_ENTRY_NOT_FOUND"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeDocumentWriteFailed = "DOCUMENT_WRITE_FAILED"
	ErrCodeBookingsClosed      = "BOOKINGS_CLOSED"
	ErrCodeForbidden           = "FORBIDDEN"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// エラーカテゴリ
const (
	CategoryAuth       = "auth"
	CategoryValidation = "validation"
	CategoryPayment    = "payment"
	CategoryCMS        = "cms"
	CategorySystem     = "system"
)

// NewUnauthenticatedError はトークンまたはメールアドレスからユーザーを特定できない場合のエラーを生成する。
func NewUnauthenticatedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthenticated,
		Message:  "認証情報を確認できませんでした。",
		Category: CategoryAuth,
		Action:   "ログインし直してから再度お試しください。",
	}
}

// NewInvalidPayloadError はリクエストボディが不正な場合のエラーを生成する。
func NewInvalidPayloadError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPayload,
		Message:  fmt.Sprintf("リクエストが不正です: %s", reason),
		Category: CategoryValidation,
		Action:   "リクエストの内容を確認してください。",
	}
}

// NewUserNotFoundError はユーザードキュメントが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: CategoryAuth,
		Action:   "アカウントが登録済みか確認してください。",
	}
}

// NewRestaurantNotFoundError はレストランドキュメントが見つからない場合のエラーを生成する。
func NewRestaurantNotFoundError(restaurantID string) *APIError {
	return &APIError{
		Code:     ErrCodeRestaurantNotFound,
		Message:  fmt.Sprintf("指定されたレストランが見つかりません: %s", restaurantID),
		Category: CategoryValidation,
		Action:   "レストランIDを確認してください。",
	}
}

// NewPaymentFailedError は決済プロバイダーが支払いを拒否した場合のエラーを生成する。
func NewPaymentFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodePaymentFailed,
		Message:  fmt.Sprintf("決済に失敗しました: %s", reason),
		Category: CategoryPayment,
		Action:   "別の支払い方法を登録してから再度お試しください。",
	}
}

// NewNoPaymentMethodError は支払い方法が未登録の場合のエラーを生成する。
func NewNoPaymentMethodError() *APIError {
	return &APIError{
		Code:     ErrCodeNoPaymentMethod,
		Message:  "支払い方法が登録されていません。",
		Category: CategoryPayment,
		Action:   "カードを登録してから再度お試しください。",
	}
}

// NewCMSEntryNotFoundError はCMSのエントリが見つからない場合のエラーを生成する。
func NewCMSEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeCMSEntryNotFound,
		Message:  fmt.Sprintf("CMSエントリが見つかりません: %s", entryID),
		Category: CategoryCMS,
		Action:   "エントリが公開済みか確認してください。",
	}
}

// NewUpstreamUnavailableError は外部サービスの呼び出しに失敗した場合のエラーを生成する。
func NewUpstreamUnavailableError(service string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamUnavailable,
		Message:  fmt.Sprintf("外部サービスの呼び出しに失敗しました: %s", service),
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewDocumentWriteFailedError はドキュメントの書き込みに失敗した場合のエラーを生成する。
// reasonには書き込み結果のエラーメッセージをそのまま渡す。
func NewDocumentWriteFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeDocumentWriteFailed,
		Message:  fmt.Sprintf("ドキュメントの保存に失敗しました: %s", reason),
		Category: CategorySystem,
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewBookingsClosedError はレストランが予約を受け付けていない場合のエラーを生成する。
func NewBookingsClosedError(restaurantID string) *APIError {
	return &APIError{
		Code:     ErrCodeBookingsClosed,
		Message:  fmt.Sprintf("このレストランは現在予約を受け付けていません: %s", restaurantID),
		Category: CategoryValidation,
		Action:   "別の日時またはレストランをお選びください。",
	}
}

// NewForbiddenError は他のアカウントのリソースにアクセスしようとした場合のエラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "このリソースにアクセスする権限がありません。",
		Category: CategoryAuth,
		Action:   "権限のあるアカウントでログインしてください。",
	}
}
