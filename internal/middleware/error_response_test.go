package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/tastiest/functions/internal/model"
)

// 失敗レスポンスが成功時と同じエンベロープに載ること
func TestWriteErrorResponse_UsesFunctionEnvelope(t *testing.T) {
	w := httptest.NewRecorder()

	WriteErrorResponse(w, http.StatusPaymentRequired, model.NewPaymentFailedError("card declined"))

	resp := w.Result()
	if resp.StatusCode != http.StatusPaymentRequired {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusPaymentRequired)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var raw map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}

	if raw["success"] != false {
		t.Errorf("success = %v, want false", raw["success"])
	}
	if v, ok := raw["data"]; !ok || v != nil {
		t.Errorf("data = %v (present=%v), want explicit null", v, ok)
	}
	if msg, _ := raw["error"].(string); msg == "" {
		t.Error("error should carry the message")
	}
	if raw["code"] != model.ErrCodePaymentFailed || raw["category"] != model.CategoryPayment {
		t.Errorf("code/category = %v/%v", raw["code"], raw["category"])
	}
}

func TestWriteErrorResponse_CacheControlOnlyForServerErrors(t *testing.T) {
	tests := []struct {
		name        string
		statusCode  int
		apiErr      *model.APIError
		wantNoStore bool
	}{
		{"unauthenticated", http.StatusUnauthorized, model.NewUnauthenticatedError(), false},
		{"not found", http.StatusNotFound, model.NewRestaurantNotFoundError("r1"), false},
		{"bad gateway", http.StatusBadGateway, model.NewUpstreamUnavailableError("horus"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteErrorResponse(w, tt.statusCode, tt.apiErr)

			if w.Code != tt.statusCode {
				t.Errorf("status = %d, want %d", w.Code, tt.statusCode)
			}
			if got := w.Header().Get("Cache-Control") == "no-store"; got != tt.wantNoStore {
				t.Errorf("no-store = %v, want %v", got, tt.wantNoStore)
			}

			var body ErrorResponseBody
			if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
				t.Fatalf("failed to decode: %v", err)
			}
			if body.Code != tt.apiErr.Code || body.Error != tt.apiErr.Message {
				t.Errorf("body = %+v", body)
			}
		})
	}
}

func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if body.Code != model.ErrCodeInternal || body.Category != model.CategorySystem {
		t.Errorf("code/category = %q/%q", body.Code, body.Category)
	}
	if body.Action == "" {
		t.Error("action should not be empty")
	}
}
