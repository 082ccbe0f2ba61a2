package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tastiest/functions/internal/analytics"
	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/mailer"
	"github.com/tastiest/functions/internal/middleware"
	"github.com/tastiest/functions/internal/model"
	"github.com/tastiest/functions/internal/payments"
)

const (
	// maxResetRequestsPerHour を超えるとリセットメールを送らない。
	maxResetRequestsPerHour = 3
	// resetHistoryLimit はドキュメントに残すリセット要求の件数。
	resetHistoryLimit = 10
)

// UserHandlerConfig はUserHandlerの設定。
type UserHandlerConfig struct {
	PasswordResetURL string
	PasswordResetTTL time.Duration
}

// UserHandler はユーザーアカウントに関する関数のHTTPハンドラー。
type UserHandler struct {
	store    document.Store
	accounts AccountDirectory
	resolver document.IdentityResolver
	payments payments.Processor
	mailer   mailer.Sender
	tokens   ResetTokenIssuer
	tracker  EventTracker
	observer document.WriteObserver
	config   UserHandlerConfig
	clock    Clock
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(
	store document.Store,
	accounts AccountDirectory,
	resolver document.IdentityResolver,
	processor payments.Processor,
	sender mailer.Sender,
	tokens ResetTokenIssuer,
	tracker EventTracker,
	observer document.WriteObserver,
	config UserHandlerConfig,
) *UserHandler {
	return &UserHandler{
		store:    store,
		accounts: accounts,
		resolver: resolver,
		payments: processor,
		mailer:   sender,
		tokens:   tokens,
		tracker:  tracker,
		observer: observer,
		config:   config,
	}
}

// userCreatedRequest はIdPのアカウント作成トリガーのペイロード。
type userCreatedRequest struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
}

type userCreatedResponse struct {
	ID         string `json:"id"`
	CustomerID string `json:"customerId,omitempty"`
}

// UserCreated はアカウント作成時にユーザードキュメントを初期化する。
// 決済プロバイダーの顧客作成に失敗しても登録自体は成功させ、
// 顧客は最初のカード登録時に作成する。
// POST /functions/users/created
func (h *UserHandler) UserCreated(w http.ResponseWriter, r *http.Request) {
	var req userCreatedRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.ID == "" || !strings.Contains(req.Email, "@") {
		handleServiceError(w, model.NewInvalidPayloadError("idとemailは必須です"))
		return
	}

	ctx := r.Context()
	if err := h.accounts.Upsert(ctx, &model.Account{
		ID:          req.ID,
		Email:       req.Email,
		DisplayName: req.DisplayName,
	}); err != nil {
		handleServiceError(w, err)
		return
	}

	a := document.NewUserAccessor(h.store, req.ID, document.WithObserver(h.observer))
	if err := writeField(ctx, a, document.UserFieldRole, model.UserRoleEater); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := writeField(ctx, a, document.UserFieldDisplayName, req.DisplayName); err != nil {
		handleServiceError(w, err)
		return
	}
	if err := writeField(ctx, a, document.UserFieldDetails, model.UserDetails{Email: req.Email}); err != nil {
		handleServiceError(w, err)
		return
	}

	resp := userCreatedResponse{ID: req.ID}
	customerID, err := h.payments.CreateCustomer(ctx, req.Email, "Tastiest user "+req.ID)
	if err != nil {
		slog.Warn("payment customer creation deferred",
			slog.String("user_id", req.ID),
			slog.String("error", err.Error()),
		)
	} else {
		if err := writeField(ctx, a, document.UserFieldPaymentDetails, model.PaymentDetails{CustomerID: customerID}); err != nil {
			handleServiceError(w, err)
			return
		}
		resp.CustomerID = customerID
	}

	track(h.tracker, analytics.Event{Name: "User Signed Up", UserID: req.ID})

	writeSuccess(w, http.StatusCreated, resp)
}

// passwordResetRequest はパスワードリセット要求のペイロード。
type passwordResetRequest struct {
	Email string `json:"email"`
}

// RequestPasswordReset はリセット用リンクをメールで送る。
// アカウントの有無を推測させないため、登録されていないメールアドレスにも202を返す。
// POST /functions/users/password-reset
func (h *UserHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		handleServiceError(w, err)
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if !strings.Contains(email, "@") {
		handleServiceError(w, model.NewInvalidPayloadError("emailが不正です"))
		return
	}

	ctx := r.Context()
	a := document.NewUserAccessor(h.store, "",
		document.WithResolver(h.resolver),
		document.WithObserver(h.observer),
	)
	id := a.BindEmail(ctx, email)
	if !id.Resolved() {
		slog.Info("password reset requested for unknown email")
		writeSuccess(w, http.StatusAccepted, nil)
		return
	}

	history, err := document.Get(ctx, a, document.UserFieldPasswordResetRequests)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	now := h.clock.now()
	var requests []model.PasswordResetRequest
	if history != nil {
		requests = *history
	}
	if countSince(requests, now.Add(-time.Hour)) >= maxResetRequestsPerHour {
		slog.Warn("password reset throttled", slog.String("user_id", id.ID))
		writeSuccess(w, http.StatusAccepted, nil)
		return
	}

	requests = append(requests, model.PasswordResetRequest{
		ID:          uuid.NewString(),
		RequestedAt: now,
		IPAddress:   middleware.ClientIP(r),
	})
	if len(requests) > resetHistoryLimit {
		requests = requests[len(requests)-resetHistoryLimit:]
	}
	if err := writeField(ctx, a, document.UserFieldPasswordResetRequests, requests); err != nil {
		handleServiceError(w, err)
		return
	}

	token, err := h.tokens.Issue(id, h.config.PasswordResetTTL)
	if err != nil {
		handleServiceError(w, fmt.Errorf("failed to issue reset token: %w", err))
		return
	}
	link, err := resetLink(h.config.PasswordResetURL, token)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	body := fmt.Sprintf("We received a request to reset your Tastiest password.\n\n"+
		"Open the link below within %d minutes to choose a new one:\n%s\n\n"+
		"If you did not ask for this, you can ignore this email.\n",
		int(h.config.PasswordResetTTL.Minutes()), link)
	if err := h.mailer.SendText(ctx, []string{id.Email}, "Reset your Tastiest password", body); err != nil {
		slog.Error("failed to send password reset email",
			slog.String("user_id", id.ID),
			slog.String("error", err.Error()),
		)
		handleServiceError(w, model.NewUpstreamUnavailableError("mail"))
		return
	}

	writeSuccess(w, http.StatusAccepted, nil)
}

func countSince(requests []model.PasswordResetRequest, since time.Time) int {
	n := 0
	for _, req := range requests {
		if req.RequestedAt.After(since) {
			n++
		}
	}
	return n
}

func resetLink(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid password reset url: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// track はイベントを送信する。失敗してもリクエストは失敗させない。
func track(tracker EventTracker, e analytics.Event) {
	if tracker == nil {
		return
	}
	if err := tracker.Track(e); err != nil {
		slog.Warn("analytics event dropped",
			slog.String("event", e.Name),
			slog.String("error", err.Error()),
		)
	}
}
