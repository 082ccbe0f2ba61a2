package handler

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/tastiest/functions/internal/analytics"
	"github.com/tastiest/functions/internal/middleware"
	"github.com/tastiest/functions/internal/model"
)

const (
	maxEventNameLength = 100
	maxEventProperties = 50
)

// AnalyticsHandler はクライアントからのイベントをアナリティクスパイプラインへ転送する。
type AnalyticsHandler struct {
	tracker  EventTracker
	resolver middleware.TokenResolver
}

// NewAnalyticsHandler はAnalyticsHandlerを生成する。
// resolverはBearerトークン付きのリクエストからユーザーIDを補完するために使う。
func NewAnalyticsHandler(tracker EventTracker, resolver middleware.TokenResolver) *AnalyticsHandler {
	return &AnalyticsHandler{tracker: tracker, resolver: resolver}
}

type trackRequest struct {
	Event       string         `json:"event"`
	AnonymousID string         `json:"anonymousId,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
}

// Track はイベントを非同期送信のキューに積み、送信を待たずに202を返す。
// 認証なしで呼び出せる。トークンが有効な場合のみuserIdを付与する。
// POST /functions/analytics/track
func (h *AnalyticsHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req trackRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}

	name := strings.TrimSpace(req.Event)
	switch {
	case name == "":
		handleServiceError(w, model.NewInvalidPayloadError("eventは必須です"))
		return
	case utf8.RuneCountInString(name) > maxEventNameLength:
		handleServiceError(w, model.NewInvalidPayloadError("eventが長すぎます"))
		return
	case len(req.Properties) > maxEventProperties:
		handleServiceError(w, model.NewInvalidPayloadError("propertiesが多すぎます"))
		return
	}

	e := analytics.Event{
		Name:        name,
		AnonymousID: req.AnonymousID,
		Properties:  req.Properties,
	}
	if token := middleware.BearerToken(r); token != "" && h.resolver != nil {
		if id := h.resolver.FromToken(r.Context(), token); id.Resolved() {
			e.UserID = id.ID
		}
	}
	if e.UserID == "" && e.AnonymousID == "" {
		handleServiceError(w, model.NewInvalidPayloadError("anonymousIdまたは有効なトークンが必要です"))
		return
	}

	if err := h.tracker.Track(e); err != nil {
		if errors.Is(err, analytics.ErrTrackerClosed) {
			handleServiceError(w, model.NewUpstreamUnavailableError("analytics"))
			return
		}
		handleServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusAccepted, nil)
}
