package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/tastiest/functions/internal/middleware"
)

// InvocationRecorder は関数の呼び出し結果を記録する。metrics.Collectorが実装する。
type InvocationRecorder interface {
	RecordInvocation(function string, success bool, duration time.Duration)
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	Resolver          middleware.TokenResolver
	ServiceToken      string
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	StatusRecorder    middleware.StatusRecorder
	Invocations       InvocationRecorder

	// 運用
	MetricsHandler http.Handler
	HealthCheck    func(ctx context.Context) error

	// 関数
	Users     *UserHandler
	Payments  *PaymentHandler
	Orders    *OrderHandler
	CMS       *CMSHandler // nilの場合CMS同期は公開しない
	Analytics *AnalyticsHandler
	Support   *SupportHandler
}

// NewRouter は全関数のルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → CORS → SecurityHeaders
//
// その内側で、関数ごとに認証方式の異なるグループに分ける。
//   - Bearer: 利用者のトークン（注文、カード登録、サポート、予約一覧）
//   - ServiceToken: スケジューラ・DBトリガー・CMS Webhook
//   - 公開: クライアントIP単位のレート制限（パスワードリセット、アナリティクス）
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger, deps.StatusRecorder))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	r.Get("/healthz", healthHandler(deps.HealthCheck))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	fn := func(name string, h http.HandlerFunc) http.HandlerFunc {
		return instrument(deps.Invocations, name, h)
	}

	r.Route("/functions", func(r chi.Router) {
		// --- 利用者のトークンが必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewBearerAuthMiddleware(deps.Resolver))

			r.Post("/payments/methods", fn("payments.methods.add", deps.Payments.AddPaymentMethod))
			r.Post("/payments/methods/sync", fn("payments.methods.sync", deps.Payments.SyncPaymentMethods))
			r.Post("/orders", fn("orders.create", deps.Orders.CreateOrder))

			r.Post("/support/restaurants/reply", fn("support.restaurants.reply", deps.Support.ReplyAsRestaurant))
			r.Post("/support/users/reply", fn("support.users.reply", deps.Support.ReplyAsUser))
			r.Get("/restaurants/{id}/bookings", fn("restaurants.bookings", deps.Support.RestaurantBookings))
		})

		// --- 内部呼び出し ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.NewServiceTokenMiddleware(deps.ServiceToken))

			r.Post("/users/created", fn("users.created", deps.Users.UserCreated))
			r.Post("/orders/abandoned-cart", fn("orders.abandoned_cart", deps.Orders.FollowUpAbandonedCart))
			if deps.CMS != nil {
				r.Post("/cms/restaurants/sync", fn("cms.restaurants.sync", deps.CMS.SyncRestaurants))
			}
		})

		// --- 公開ルート ---
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.Middleware())

			r.Post("/users/password-reset", fn("users.password_reset", deps.Users.RequestPasswordReset))
			r.Post("/analytics/track", fn("analytics.track", deps.Analytics.Track))
		})
	})

	return r
}

func healthHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if check != nil {
			if err := check(r.Context()); err != nil {
				slog.Error("health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// instrument は関数の処理時間と結果（4xx/5xxを失敗とする）を記録する。
func instrument(rec InvocationRecorder, name string, h http.HandlerFunc) http.HandlerFunc {
	if rec == nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		iw := &invocationWriter{ResponseWriter: w, status: http.StatusOK}
		h(iw, r)
		rec.RecordInvocation(name, iw.status < http.StatusBadRequest, time.Since(start))
	}
}

type invocationWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

func (iw *invocationWriter) WriteHeader(code int) {
	if !iw.written {
		iw.status = code
		iw.written = true
	}
	iw.ResponseWriter.WriteHeader(code)
}
