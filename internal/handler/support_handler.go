package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/horus"
	"github.com/tastiest/functions/internal/middleware"
	"github.com/tastiest/functions/internal/model"
)

// SupportHandler はHorusに処理を委譲する関数のHTTPハンドラー。
type SupportHandler struct {
	rpc   RPCClient
	store document.Store
}

// NewSupportHandler はSupportHandlerを生成する。
func NewSupportHandler(rpc RPCClient, store document.Store) *SupportHandler {
	return &SupportHandler{rpc: rpc, store: store}
}

type supportReplyRequest struct {
	TicketID string `json:"ticketId"`
	Message  string `json:"message"`
}

type supportReplyPayload struct {
	TicketID string `json:"ticketId"`
	Message  string `json:"message"`
	SenderID string `json:"senderId"`
}

// ReplyAsRestaurant はレストランからサポートチケットに返信する。
// POST /functions/support/restaurants/reply
func (h *SupportHandler) ReplyAsRestaurant(w http.ResponseWriter, r *http.Request) {
	h.reply(w, r, horus.RouteSupportRestaurantReply)
}

// ReplyAsUser はユーザーからサポートチケットに返信する。
// POST /functions/support/users/reply
func (h *SupportHandler) ReplyAsUser(w http.ResponseWriter, r *http.Request) {
	h.reply(w, r, horus.RouteSupportUserReply)
}

func (h *SupportHandler) reply(w http.ResponseWriter, r *http.Request, route horus.Route) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		handleServiceError(w, model.NewUnauthenticatedError())
		return
	}

	var req supportReplyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if strings.TrimSpace(req.TicketID) == "" || strings.TrimSpace(req.Message) == "" {
		handleServiceError(w, model.NewInvalidPayloadError("ticketIdとmessageは必須です"))
		return
	}

	resp, err := h.rpc.Post(r.Context(), route, supportReplyPayload{
		TicketID: req.TicketID,
		Message:  req.Message,
		SenderID: id.ID,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeRPCResponse(w, route, resp)
}

// RestaurantBookings はレストランの予約一覧をHorusから取得する。
// 本人のレストランか管理者のみ参照できる。クエリパラメータはそのまま転送する。
// GET /functions/restaurants/{id}/bookings
func (h *SupportHandler) RestaurantBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		handleServiceError(w, model.NewUnauthenticatedError())
		return
	}
	restaurantID := chi.URLParam(r, "id")

	if restaurantID != id.ID {
		user := document.NewUserAccessor(h.store, id.ID)
		role, err := document.Get(r.Context(), user, document.UserFieldRole)
		if err != nil {
			handleServiceError(w, err)
			return
		}
		if role == nil || *role != model.UserRoleAdmin {
			handleServiceError(w, model.NewForbiddenError())
			return
		}
	}

	resp, err := h.rpc.Get(r.Context(), horus.RouteRestaurantBookings, horus.GetOptions{
		Query:          r.URL.Query(),
		DynamicSegment: restaurantID,
	})
	if errors.Is(err, horus.ErrMissingDynamicSegment) {
		handleServiceError(w, model.NewInvalidPayloadError("レストランIDは必須です"))
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeRPCResponse(w, horus.RouteRestaurantBookings, resp)
}

// writeRPCResponse はHorusの結果をそのままdataとして返す。失敗は502にする。
func writeRPCResponse(w http.ResponseWriter, route horus.Route, resp horus.Response) {
	if !resp.OK() {
		slog.Warn("horus call failed",
			slog.String("route", string(route)),
			slog.String("error", resp.Error),
		)
		handleServiceError(w, model.NewUpstreamUnavailableError("horus"))
		return
	}
	var data any
	if resp.Data != nil {
		data = json.RawMessage(resp.Data)
	}
	writeSuccess(w, http.StatusOK, data)
}
