package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tastiest/functions/internal/analytics"
	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/format"
	"github.com/tastiest/functions/internal/horus"
	"github.com/tastiest/functions/internal/mailer"
	"github.com/tastiest/functions/internal/middleware"
	"github.com/tastiest/functions/internal/model"
	"github.com/tastiest/functions/internal/payments"
)

// OrderHandlerConfig はOrderHandlerの設定。
type OrderHandlerConfig struct {
	PlatformFeeBps     int
	AbandonedCartAfter time.Duration
}

// OrderHandler は注文と決済未完了注文のフォローアップを扱うHTTPハンドラー。
type OrderHandler struct {
	store    document.Store
	payments payments.Processor
	rpc      RPCClient
	mailer   mailer.Sender
	tracker  EventTracker
	observer document.WriteObserver
	config   OrderHandlerConfig
	clock    Clock
}

// NewOrderHandler はOrderHandlerを生成する。
func NewOrderHandler(
	store document.Store,
	processor payments.Processor,
	rpc RPCClient,
	sender mailer.Sender,
	tracker EventTracker,
	observer document.WriteObserver,
	config OrderHandlerConfig,
) *OrderHandler {
	return &OrderHandler{
		store:    store,
		payments: processor,
		rpc:      rpc,
		mailer:   sender,
		tracker:  tracker,
		observer: observer,
		config:   config,
	}
}

// createOrderRequest は注文作成のペイロード。金額は通貨の最小単位。
type createOrderRequest struct {
	RestaurantID    string    `json:"restaurantId"`
	Experience      string    `json:"experience"`
	Heads           int       `json:"heads"`
	PricePerHead    int64     `json:"pricePerHead"`
	BookedFor       time.Time `json:"bookedFor"`
	PaymentMethodID string    `json:"paymentMethodId,omitempty"`
}

type orderResponse struct {
	Order        model.OrderSummary `json:"order"`
	Fees         format.Fees        `json:"fees"`
	DisplayTotal string             `json:"displayTotal,omitempty"`
}

func (req createOrderRequest) validate(now time.Time) error {
	switch {
	case strings.TrimSpace(req.RestaurantID) == "":
		return model.NewInvalidPayloadError("restaurantIdは必須です")
	case strings.TrimSpace(req.Experience) == "":
		return model.NewInvalidPayloadError("experienceは必須です")
	case req.Heads <= 0:
		return model.NewInvalidPayloadError("headsは1以上である必要があります")
	case req.PricePerHead <= 0:
		return model.NewInvalidPayloadError("pricePerHeadは1以上である必要があります")
	case !req.BookedFor.After(now):
		return model.NewInvalidPayloadError("bookedForは未来の日時である必要があります")
	}
	return nil
}

// CreateOrder は料金を計算して課金し、ユーザーとレストランのドキュメントに記録する。
// 課金前に注文をopenOrdersへ記録するため、決済に失敗した注文もフォローアップの対象になる。
// 課金後の書き込み失敗はログに残し、応答は成功とする。
// POST /functions/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		handleServiceError(w, model.NewUnauthenticatedError())
		return
	}

	var req createOrderRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	now := h.clock.now()
	if err := req.validate(now); err != nil {
		handleServiceError(w, err)
		return
	}

	ctx := r.Context()
	restaurant := document.NewRestaurantAccessor(h.store, req.RestaurantID, document.WithObserver(h.observer))

	financial, err := document.Get(ctx, restaurant, document.RestaurantFieldFinancial)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if financial == nil {
		handleServiceError(w, model.NewRestaurantNotFoundError(req.RestaurantID))
		return
	}
	settings, err := document.Get(ctx, restaurant, document.RestaurantFieldSettings)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if settings != nil {
		if !settings.AcceptingBookings {
			handleServiceError(w, model.NewBookingsClosedError(req.RestaurantID))
			return
		}
		if settings.MaxHeads > 0 && req.Heads > settings.MaxHeads {
			handleServiceError(w, model.NewInvalidPayloadError(fmt.Sprintf("headsは%d以下である必要があります", settings.MaxHeads)))
			return
		}
	}

	fees, err := format.CalculateFees(req.PricePerHead*int64(req.Heads), h.config.PlatformFeeBps, financial.CommissionBps)
	if err != nil {
		handleServiceError(w, model.NewInvalidPayloadError(err.Error()))
		return
	}

	user := document.NewUserAccessor(h.store, id.ID, document.WithObserver(h.observer))
	paymentDetails, err := document.Get(ctx, user, document.UserFieldPaymentDetails)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	cardID := req.PaymentMethodID
	if cardID == "" && paymentDetails != nil {
		cardID = paymentDetails.DefaultPaymentMethod
	}
	if paymentDetails == nil || paymentDetails.CustomerID == "" || cardID == "" {
		handleServiceError(w, model.NewNoPaymentMethodError())
		return
	}

	order := model.OrderSummary{
		ID:           uuid.NewString(),
		RestaurantID: req.RestaurantID,
		Experience:   req.Experience,
		Heads:        req.Heads,
		Subtotal:     fees.Subtotal,
		Fee:          fees.Fee,
		Total:        fees.Total,
		Currency:     financial.Currency,
		Status:       model.OrderStatusPending,
		BookedFor:    req.BookedFor,
		CreatedAt:    now,
	}

	metrics, err := document.Get(ctx, user, document.UserFieldMetrics)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if metrics == nil {
		metrics = &model.UserMetrics{}
	}
	if metrics.OpenOrders == nil {
		metrics.OpenOrders = map[string]model.OrderSummary{}
	}
	metrics.OpenOrders[order.ID] = order
	if err := writeField(ctx, user, document.UserFieldMetrics, *metrics); err != nil {
		handleServiceError(w, err)
		return
	}

	charge, err := h.payments.Charge(ctx, payments.ChargeRequest{
		CustomerID:  paymentDetails.CustomerID,
		CardID:      cardID,
		Amount:      order.Total,
		Currency:    order.Currency,
		Description: fmt.Sprintf("%s x%d", order.Experience, order.Heads),
		Metadata: map[string]any{
			"order_id":      order.ID,
			"restaurant_id": order.RestaurantID,
			"user_id":       id.ID,
		},
	})
	if err != nil {
		h.recordFailedOrder(ctx, user, metrics, order, charge, err)
		track(h.tracker, analytics.Event{
			Name:       "Payment Failed",
			UserID:     id.ID,
			Properties: map[string]any{"order_id": order.ID, "restaurant_id": order.RestaurantID},
		})
		handleServiceError(w, paymentError(err))
		return
	}

	order.Status = model.OrderStatusPaid
	order.ChargeID = charge.ID
	delete(metrics.OpenOrders, order.ID)
	metrics.TotalBookings++
	metrics.TotalSpent += order.Total
	metrics.LastBookingAt = &now
	if err := writeField(ctx, user, document.UserFieldMetrics, *metrics); err != nil {
		slog.Error("failed to record paid order on user", slog.String("order_id", order.ID), slog.String("error", err.Error()))
	}
	h.recordVisit(ctx, user, order.RestaurantID)

	booking := model.Booking{
		OrderID:    order.ID,
		UserID:     id.ID,
		Experience: order.Experience,
		Heads:      order.Heads,
		Total:      order.Total,
		Payout:     fees.Payout,
		Currency:   order.Currency,
		BookedFor:  order.BookedFor,
		CreatedAt:  now,
	}
	h.recordBooking(ctx, restaurant, booking)

	resp, err := h.rpc.PostTo(ctx, horus.RouteBookingConfirm, order.ID, booking)
	if err != nil || !resp.OK() {
		slog.Warn("booking confirmation not delivered",
			slog.String("order_id", order.ID),
			slog.Any("error", errors.Join(err, rpcError(resp))),
		)
	}

	track(h.tracker, analytics.Event{
		Name:   "Order Completed",
		UserID: id.ID,
		Properties: map[string]any{
			"order_id":      order.ID,
			"restaurant_id": order.RestaurantID,
			"total":         order.Total,
			"currency":      order.Currency,
		},
	})

	display, err := format.FormatCurrency(order.Total, order.Currency)
	if err != nil {
		slog.Warn("failed to format order total", slog.String("error", err.Error()))
	}
	writeSuccess(w, http.StatusCreated, orderResponse{Order: order, Fees: fees, DisplayTotal: display})
}

func (h *OrderHandler) recordFailedOrder(ctx context.Context, user *document.Accessor[document.User], metrics *model.UserMetrics, order model.OrderSummary, charge *payments.ChargeResult, cause error) {
	order.Status = model.OrderStatusFailed
	order.FailureReason = cause.Error()
	if charge != nil {
		order.ChargeID = charge.ID
		if charge.FailureMessage != "" {
			order.FailureReason = charge.FailureMessage
		}
	}
	metrics.OpenOrders[order.ID] = order
	if err := writeField(ctx, user, document.UserFieldMetrics, *metrics); err != nil {
		slog.Error("failed to record failed order", slog.String("order_id", order.ID), slog.String("error", err.Error()))
	}
}

func (h *OrderHandler) recordVisit(ctx context.Context, user *document.Accessor[document.User], restaurantID string) {
	visited, err := document.Get(ctx, user, document.UserFieldRestaurantsVisited)
	if err != nil {
		slog.Error("failed to read visited restaurants", slog.String("error", err.Error()))
		return
	}
	var list []string
	if visited != nil {
		list = *visited
	}
	for _, v := range list {
		if v == restaurantID {
			return
		}
	}
	if err := writeField(ctx, user, document.UserFieldRestaurantsVisited, append(list, restaurantID)); err != nil {
		slog.Error("failed to record visited restaurant", slog.String("error", err.Error()))
	}
}

func (h *OrderHandler) recordBooking(ctx context.Context, restaurant *document.Accessor[document.Restaurant], booking model.Booking) {
	bookings, err := document.Get(ctx, restaurant, document.RestaurantFieldBookings)
	if err != nil {
		slog.Error("failed to read bookings", slog.String("error", err.Error()))
		return
	}
	all := map[string]model.Booking{}
	if bookings != nil {
		all = *bookings
	}
	all[booking.OrderID] = booking
	if err := writeField(ctx, restaurant, document.RestaurantFieldBookings, all); err != nil {
		slog.Error("failed to record booking", slog.String("order_id", booking.OrderID), slog.String("error", err.Error()))
		return
	}

	metrics, err := document.Get(ctx, restaurant, document.RestaurantFieldMetrics)
	if err != nil {
		slog.Error("failed to read restaurant metrics", slog.String("error", err.Error()))
		return
	}
	if metrics == nil {
		metrics = &model.RestaurantMetrics{}
	}
	metrics.TotalBookings++
	metrics.TotalRevenue += booking.Total
	metrics.TotalPayout += booking.Payout
	if err := writeField(ctx, restaurant, document.RestaurantFieldMetrics, *metrics); err != nil {
		slog.Error("failed to update restaurant metrics", slog.String("error", err.Error()))
	}
}

// abandonedCartRequest はフォローアップ対象のユーザー。
type abandonedCartRequest struct {
	UserID string `json:"userId"`
}

type abandonedCartResponse struct {
	FollowedUp int `json:"followedUp"`
}

// FollowUpAbandonedCart は一定時間決済が完了していない注文についてメールを送る。
// 送信済みの注文にはfollowedUpAtを記録し、同じ注文に二度送らない。
// POST /functions/orders/abandoned-cart
func (h *OrderHandler) FollowUpAbandonedCart(w http.ResponseWriter, r *http.Request) {
	var req abandonedCartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		handleServiceError(w, model.NewInvalidPayloadError("userIdは必須です"))
		return
	}

	ctx := r.Context()
	user := document.NewUserAccessor(h.store, req.UserID, document.WithObserver(h.observer))

	metrics, err := document.Get(ctx, user, document.UserFieldMetrics)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	now := h.clock.now()
	due := dueOrders(metrics, now.Add(-h.config.AbandonedCartAfter))
	if len(due) == 0 {
		writeSuccess(w, http.StatusOK, abandonedCartResponse{})
		return
	}

	details, err := document.Get(ctx, user, document.UserFieldDetails)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if details == nil || details.Email == "" {
		handleServiceError(w, model.NewUserNotFoundError())
		return
	}

	if err := h.mailer.SendText(ctx, []string{details.Email}, "Your Tastiest booking is waiting", abandonedCartBody(details.FirstName, due)); err != nil {
		slog.Error("failed to send abandoned cart email",
			slog.String("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, model.NewUpstreamUnavailableError("mail"))
		return
	}

	for _, o := range due {
		o.FollowedUpAt = &now
		metrics.OpenOrders[o.ID] = o
	}
	if err := writeField(ctx, user, document.UserFieldMetrics, *metrics); err != nil {
		handleServiceError(w, err)
		return
	}

	track(h.tracker, analytics.Event{
		Name:       "Abandoned Cart Followed Up",
		UserID:     req.UserID,
		Properties: map[string]any{"orders": len(due)},
	})

	writeSuccess(w, http.StatusOK, abandonedCartResponse{FollowedUp: len(due)})
}

// dueOrders はcutoffより前に作成され、未払いかつ未フォローの注文を作成順に返す。
func dueOrders(metrics *model.UserMetrics, cutoff time.Time) []model.OrderSummary {
	if metrics == nil {
		return nil
	}
	var due []model.OrderSummary
	for _, o := range metrics.OpenOrders {
		if o.Status == model.OrderStatusPaid || o.FollowedUpAt != nil || !o.CreatedAt.Before(cutoff) {
			continue
		}
		due = append(due, o)
	}
	sort.Slice(due, func(i, j int) bool { return due[i].CreatedAt.Before(due[j].CreatedAt) })
	return due
}

func abandonedCartBody(firstName string, orders []model.OrderSummary) string {
	var b strings.Builder
	if firstName != "" {
		fmt.Fprintf(&b, "Hi %s,\n\n", firstName)
	} else {
		b.WriteString("Hi,\n\n")
	}
	b.WriteString("You started booking the following experiences but did not finish paying:\n\n")
	for _, o := range orders {
		total, err := format.FormatCurrency(o.Total, o.Currency)
		if err != nil {
			total = fmt.Sprintf("%d %s", o.Total, o.Currency)
		}
		fmt.Fprintf(&b, "- %s for %d on %s (%s)\n", o.Experience, o.Heads, o.BookedFor.Format("Mon 2 Jan 2006 15:04"), total)
	}
	b.WriteString("\nYour table is not held until payment completes. Open Tastiest to finish your booking.\n")
	return b.String()
}

func rpcError(resp horus.Response) error {
	if resp.OK() {
		return nil
	}
	return errors.New(resp.Error)
}
