// Package handler はHTTPトリガーの関数（ユーザー登録、注文、CMS同期など）を提供する。
// 各ハンドラーはペイロードを検証し、呼び出し元を解決し、ドキュメントを読み書きして
// {success, error, data} 形式で応答する。失敗時は統一エラーフォーマットで応答する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/middleware"
	"github.com/tastiest/functions/internal/model"
	"github.com/tastiest/functions/internal/payments"
)

// maxBodyBytes はリクエストボディの上限。
const maxBodyBytes = 1 << 20

// functionResponse は関数の成功レスポンス。失敗時はmiddleware.ErrorResponseBodyを使う。
type functionResponse struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Data    any     `json:"data"`
}

// writeSuccess は成功レスポンスを書き込む。
func writeSuccess(w http.ResponseWriter, statusCode int, data any) {
	writeJSON(w, statusCode, functionResponse{Success: true, Data: data})
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(v)
}

// decodeJSON はリクエストボディをvにデコードする。未知のフィールドは拒否する。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return model.NewInvalidPayloadError("JSONの解析に失敗しました")
	}
	return nil
}

// handleServiceError はエラーを適切なHTTPレスポンスに変換する。
// APIError以外のエラーは詳細をログに記録し、500を返す。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	// アクセサの使い方の誤りはプログラムのバグなので500として扱う
	if errors.Is(err, document.ErrNotInitialized) || errors.Is(err, document.ErrUnknownField) {
		slog.Error("document accessor misuse", slog.String("error", err.Error()))
	} else {
		slog.Error("internal server error", slog.String("error", err.Error()))
	}
	middleware.WriteInternalServerError(w)
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case model.ErrCodeForbidden:
		return http.StatusForbidden
	case model.ErrCodeInvalidPayload:
		return http.StatusBadRequest
	case model.ErrCodeUserNotFound, model.ErrCodeRestaurantNotFound, model.ErrCodeCMSEntryNotFound:
		return http.StatusNotFound
	case model.ErrCodePaymentFailed:
		return http.StatusPaymentRequired
	case model.ErrCodeNoPaymentMethod:
		return http.StatusUnprocessableEntity
	case model.ErrCodeBookingsClosed:
		return http.StatusConflict
	case model.ErrCodeUpstreamUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// paymentError は決済プロバイダーのエラーをAPIErrorに変換する。
func paymentError(err error) *model.APIError {
	if errors.Is(err, payments.ErrChargeDeclined) {
		return model.NewPaymentFailedError(err.Error())
	}
	slog.Error("payment provider call failed", slog.String("error", err.Error()))
	return model.NewUpstreamUnavailableError("payments")
}

// writeField はフィールドを書き込み、失敗した結果をエラーに変換する。
func writeField[K document.Kind, T any](ctx context.Context, a *document.Accessor[K], f document.Field[K, T], value T) error {
	res, err := document.Set(ctx, a, f, value)
	if err != nil {
		return err
	}
	if !res.Success {
		return model.NewDocumentWriteFailedError(res.ErrorMessage())
	}
	return nil
}
