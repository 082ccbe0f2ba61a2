package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/horus"
	"github.com/tastiest/functions/internal/model"
)

func TestSupportHandler_Reply_ForwardsToHorus(t *testing.T) {
	tests := []struct {
		name      string
		call      func(h *SupportHandler) http.HandlerFunc
		wantRoute horus.Route
	}{
		{"restaurant", func(h *SupportHandler) http.HandlerFunc { return h.ReplyAsRestaurant }, horus.RouteSupportRestaurantReply},
		{"user", func(h *SupportHandler) http.HandlerFunc { return h.ReplyAsUser }, horus.RouteSupportUserReply},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rpc := &mockRPC{
				postFn: func(ctx context.Context, route horus.Route, body any) (horus.Response, error) {
					if route != tt.wantRoute {
						t.Errorf("route = %q, want %q", route, tt.wantRoute)
					}
					p, ok := body.(supportReplyPayload)
					if !ok || p.TicketID != "t1" || p.Message != "Thanks!" || p.SenderID != "u1" {
						t.Errorf("payload = %#v", body)
					}
					return horus.Response{Data: json.RawMessage(`{"ok":true}`)}, nil
				},
			}
			h := NewSupportHandler(rpc, document.NewMemoryStore())

			w := httptest.NewRecorder()
			tt.call(h)(w, asUser(jsonRequest(t, http.MethodPost, "/functions/support/reply", map[string]string{
				"ticketId": "t1", "message": "Thanks!",
			}), "u1", "a@x.com"))

			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
			}
			var data map[string]bool
			decodeEnvelope(t, w, &data)
			if !data["ok"] {
				t.Errorf("data = %v", data)
			}
		})
	}
}

func TestSupportHandler_Reply_UpstreamError(t *testing.T) {
	rpc := &mockRPC{
		postFn: func(context.Context, horus.Route, any) (horus.Response, error) {
			return horus.Response{Error: "Not Found: not found"}, nil
		},
	}
	h := NewSupportHandler(rpc, document.NewMemoryStore())

	w := httptest.NewRecorder()
	h.ReplyAsUser(w, asUser(jsonRequest(t, http.MethodPost, "/functions/support/users/reply", map[string]string{
		"ticketId": "t1", "message": "hi",
	}), "u1", "a@x.com"))

	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
}

func TestSupportHandler_Reply_Validation(t *testing.T) {
	h := NewSupportHandler(&mockRPC{}, document.NewMemoryStore())

	w := httptest.NewRecorder()
	h.ReplyAsUser(w, asUser(jsonRequest(t, http.MethodPost, "/functions/support/users/reply", map[string]string{"ticketId": "t1"}), "u1", "a@x.com"))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

// bookingsRequest はchiのURLパラメータを設定したリクエストを返す。
func bookingsRequest(t *testing.T, restaurantID, userID string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/functions/restaurants/"+restaurantID+"/bookings?from=2026-05-01", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("id", restaurantID)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	return asUser(req, userID, "a@x.com")
}

func TestSupportHandler_RestaurantBookings(t *testing.T) {
	store := document.NewMemoryStore()
	mustSet(t, document.NewUserAccessor(store, "admin1"), document.UserFieldRole, model.UserRoleAdmin)
	mustSet(t, document.NewUserAccessor(store, "eater1"), document.UserFieldRole, model.UserRoleEater)

	tests := []struct {
		name       string
		userID     string
		wantStatus int
	}{
		{"owner", "r1", http.StatusOK},
		{"admin", "admin1", http.StatusOK},
		{"other user", "eater1", http.StatusForbidden},
		{"no role", "stranger", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			rpc := &mockRPC{
				getFn: func(ctx context.Context, route horus.Route, opts horus.GetOptions) (horus.Response, error) {
					called = true
					if route != horus.RouteRestaurantBookings || opts.DynamicSegment != "r1" || opts.Query.Get("from") != "2026-05-01" {
						t.Errorf("Get(%q, %+v)", route, opts)
					}
					return horus.Response{Data: json.RawMessage(`[{"orderId":"o1"}]`)}, nil
				},
			}
			h := NewSupportHandler(rpc, store)

			w := httptest.NewRecorder()
			h.RestaurantBookings(w, bookingsRequest(t, "r1", tt.userID))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if called != (tt.wantStatus == http.StatusOK) {
				t.Errorf("rpc called = %v", called)
			}
		})
	}
}

func TestSupportHandler_RestaurantBookings_MissingSegment(t *testing.T) {
	rpc := &mockRPC{
		getFn: func(context.Context, horus.Route, horus.GetOptions) (horus.Response, error) {
			return horus.Response{}, horus.ErrMissingDynamicSegment
		},
	}
	store := document.NewMemoryStore()
	mustSet(t, document.NewUserAccessor(store, "admin1"), document.UserFieldRole, model.UserRoleAdmin)
	h := NewSupportHandler(rpc, store)

	w := httptest.NewRecorder()
	h.RestaurantBookings(w, bookingsRequest(t, "", "admin1"))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
