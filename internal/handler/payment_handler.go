package handler

import (
	"net/http"
	"strings"

	"github.com/tastiest/functions/internal/analytics"
	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/middleware"
	"github.com/tastiest/functions/internal/model"
	"github.com/tastiest/functions/internal/payments"
)

// PaymentHandler は支払い方法の登録を扱うHTTPハンドラー。
type PaymentHandler struct {
	store    document.Store
	payments payments.Processor
	tracker  EventTracker
	observer document.WriteObserver
}

// NewPaymentHandler はPaymentHandlerを生成する。
func NewPaymentHandler(store document.Store, processor payments.Processor, tracker EventTracker, observer document.WriteObserver) *PaymentHandler {
	return &PaymentHandler{
		store:    store,
		payments: processor,
		tracker:  tracker,
		observer: observer,
	}
}

// addPaymentMethodRequest はクライアントでトークン化したカードのペイロード。
type addPaymentMethodRequest struct {
	CardToken string `json:"cardToken"`
}

// AddPaymentMethod はカードを顧客に登録し、概要をユーザードキュメントに保存する。
// 顧客が未作成の場合はここで作成する。最初のカードは既定の支払い方法になる。
// POST /functions/payments/methods
func (h *PaymentHandler) AddPaymentMethod(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		handleServiceError(w, model.NewUnauthenticatedError())
		return
	}

	var req addPaymentMethodRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if strings.TrimSpace(req.CardToken) == "" {
		handleServiceError(w, model.NewInvalidPayloadError("cardTokenは必須です"))
		return
	}

	ctx := r.Context()
	a := document.NewUserAccessor(h.store, id.ID, document.WithObserver(h.observer))

	details, err := document.Get(ctx, a, document.UserFieldPaymentDetails)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if details == nil || details.CustomerID == "" {
		customerID, err := h.payments.CreateCustomer(ctx, id.Email, "Tastiest user "+id.ID)
		if err != nil {
			handleServiceError(w, paymentError(err))
			return
		}
		details = &model.PaymentDetails{CustomerID: customerID}
	}

	method, err := h.payments.AttachCard(ctx, details.CustomerID, req.CardToken)
	if err != nil {
		handleServiceError(w, paymentError(err))
		return
	}

	methods, err := document.Get(ctx, a, document.UserFieldPaymentMethods)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	all := map[string]model.PaymentMethod{}
	if methods != nil {
		all = *methods
	}
	all[method.ID] = *method
	if err := writeField(ctx, a, document.UserFieldPaymentMethods, all); err != nil {
		handleServiceError(w, err)
		return
	}

	if details.DefaultPaymentMethod == "" {
		details.DefaultPaymentMethod = method.ID
	}
	if err := writeField(ctx, a, document.UserFieldPaymentDetails, *details); err != nil {
		handleServiceError(w, err)
		return
	}

	track(h.tracker, analytics.Event{
		Name:       "Payment Method Added",
		UserID:     id.ID,
		Properties: map[string]any{"brand": method.Brand},
	})

	writeSuccess(w, http.StatusCreated, method)
}

// SyncPaymentMethods はプロバイダーに登録済みのカード一覧でユーザードキュメントを置き換える。
// 既定の支払い方法が一覧に無くなった場合は先頭のカードに切り替える。
// POST /functions/payments/methods/sync
func (h *PaymentHandler) SyncPaymentMethods(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		handleServiceError(w, model.NewUnauthenticatedError())
		return
	}

	ctx := r.Context()
	a := document.NewUserAccessor(h.store, id.ID, document.WithObserver(h.observer))

	details, err := document.Get(ctx, a, document.UserFieldPaymentDetails)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if details == nil || details.CustomerID == "" {
		handleServiceError(w, model.NewNoPaymentMethodError())
		return
	}

	cards, err := h.payments.ListCards(ctx, details.CustomerID)
	if err != nil {
		handleServiceError(w, paymentError(err))
		return
	}

	all := make(map[string]model.PaymentMethod, len(cards))
	for _, c := range cards {
		all[c.ID] = c
	}
	if err := writeField(ctx, a, document.UserFieldPaymentMethods, all); err != nil {
		handleServiceError(w, err)
		return
	}

	if _, ok := all[details.DefaultPaymentMethod]; !ok {
		details.DefaultPaymentMethod = ""
		if len(cards) > 0 {
			details.DefaultPaymentMethod = cards[0].ID
		}
		if err := writeField(ctx, a, document.UserFieldPaymentDetails, *details); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	writeSuccess(w, http.StatusOK, cards)
}
