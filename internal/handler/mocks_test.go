package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tastiest/functions/internal/analytics"
	"github.com/tastiest/functions/internal/cms"
	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/horus"
	"github.com/tastiest/functions/internal/identity"
	"github.com/tastiest/functions/internal/middleware"
	"github.com/tastiest/functions/internal/model"
	"github.com/tastiest/functions/internal/payments"
)

// --- モック定義 ---

type mockAccounts struct {
	upsertFn func(ctx context.Context, account *model.Account) error
	upserted []model.Account
}

func (m *mockAccounts) Upsert(ctx context.Context, account *model.Account) error {
	m.upserted = append(m.upserted, *account)
	if m.upsertFn != nil {
		return m.upsertFn(ctx, account)
	}
	return nil
}

type mockTracker struct {
	mu     sync.Mutex
	events []analytics.Event
	err    error
}

func (m *mockTracker) Track(e analytics.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, e)
	return nil
}

func (m *mockTracker) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, e := range m.events {
		names = append(names, e.Name)
	}
	return names
}

type mockProcessor struct {
	createCustomerFn func(ctx context.Context, email, description string) (string, error)
	attachCardFn     func(ctx context.Context, customerID, cardToken string) (*model.PaymentMethod, error)
	listCardsFn      func(ctx context.Context, customerID string) ([]model.PaymentMethod, error)
	chargeFn         func(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error)
}

func (m *mockProcessor) CreateCustomer(ctx context.Context, email, description string) (string, error) {
	if m.createCustomerFn != nil {
		return m.createCustomerFn(ctx, email, description)
	}
	return "cust_test", nil
}

func (m *mockProcessor) AttachCard(ctx context.Context, customerID, cardToken string) (*model.PaymentMethod, error) {
	if m.attachCardFn != nil {
		return m.attachCardFn(ctx, customerID, cardToken)
	}
	return &model.PaymentMethod{ID: "card_test", Brand: "Visa", Last4: "4242"}, nil
}

func (m *mockProcessor) ListCards(ctx context.Context, customerID string) ([]model.PaymentMethod, error) {
	if m.listCardsFn != nil {
		return m.listCardsFn(ctx, customerID)
	}
	return nil, nil
}

func (m *mockProcessor) Charge(ctx context.Context, req payments.ChargeRequest) (*payments.ChargeResult, error) {
	if m.chargeFn != nil {
		return m.chargeFn(ctx, req)
	}
	return &payments.ChargeResult{ID: "chrg_test", Status: "successful"}, nil
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

type mockSender struct {
	err  error
	sent []sentMail
}

func (m *mockSender) SendText(ctx context.Context, to []string, subject, body string) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type mockRPC struct {
	getFn    func(ctx context.Context, route horus.Route, opts horus.GetOptions) (horus.Response, error)
	postFn   func(ctx context.Context, route horus.Route, body any) (horus.Response, error)
	postToFn func(ctx context.Context, route horus.Route, segment string, body any) (horus.Response, error)
}

func (m *mockRPC) Get(ctx context.Context, route horus.Route, opts horus.GetOptions) (horus.Response, error) {
	if m.getFn != nil {
		return m.getFn(ctx, route, opts)
	}
	return horus.Response{}, nil
}

func (m *mockRPC) Post(ctx context.Context, route horus.Route, body any) (horus.Response, error) {
	if m.postFn != nil {
		return m.postFn(ctx, route, body)
	}
	return horus.Response{}, nil
}

func (m *mockRPC) PostTo(ctx context.Context, route horus.Route, segment string, body any) (horus.Response, error) {
	if m.postToFn != nil {
		return m.postToFn(ctx, route, segment, body)
	}
	return horus.Response{}, nil
}

type mockIssuer struct {
	issueFn func(id identity.Identity, ttl time.Duration) (string, error)
}

func (m *mockIssuer) Issue(id identity.Identity, ttl time.Duration) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(id, ttl)
	}
	return "reset-token", nil
}

type mockResolver struct {
	fromTokenFn func(ctx context.Context, token string) identity.Identity
	fromEmailFn func(ctx context.Context, email string) identity.Identity
}

func (m *mockResolver) FromToken(ctx context.Context, token string) identity.Identity {
	if m.fromTokenFn != nil {
		return m.fromTokenFn(ctx, token)
	}
	return identity.Unauthenticated
}

func (m *mockResolver) FromEmail(ctx context.Context, email string) identity.Identity {
	if m.fromEmailFn != nil {
		return m.fromEmailFn(ctx, email)
	}
	return identity.Unauthenticated
}

type mockSource struct {
	getFn  func(ctx context.Context, entryID string) (*cms.Restaurant, error)
	listFn func(ctx context.Context) ([]cms.Restaurant, error)
}

func (m *mockSource) GetRestaurant(ctx context.Context, entryID string) (*cms.Restaurant, error) {
	if m.getFn != nil {
		return m.getFn(ctx, entryID)
	}
	return nil, cms.ErrEntryNotFound
}

func (m *mockSource) ListRestaurants(ctx context.Context) ([]cms.Restaurant, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

// failingStore は指定したIDへの書き込みだけ失敗させるStore。
type failingStore struct {
	document.Store
	failID string
}

func (s *failingStore) Merge(ctx context.Context, collection, id, key string, value json.RawMessage) error {
	if id == s.failID {
		return errors.New("disk full")
	}
	return s.Store.Merge(ctx, collection, id, key, value)
}

// --- ヘルパー ---

var testNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() Clock {
	return func() time.Time { return testNow }
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func asUser(req *http.Request, id, email string) *http.Request {
	return req.WithContext(middleware.ContextWithIdentity(req.Context(), identity.Identity{ID: id, Email: email}))
}

// envelope はレスポンスのdataを遅延デコードするための型。
type envelope struct {
	Success bool            `json:"success"`
	Error   string          `json:"error"`
	Data    json.RawMessage `json:"data"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode response: %v\nraw: %s", err, w.Body.String())
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return env
}

func decodeErrorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body middleware.ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v\nraw: %s", err, w.Body.String())
	}
	return body.Code
}

// mustGet はフィールドを読み出す。読み出しに失敗した場合はテストを止める。
func mustGet[K document.Kind, T any](t *testing.T, a *document.Accessor[K], f document.Field[K, T]) *T {
	t.Helper()
	v, err := document.Get(context.Background(), a, f)
	if err != nil {
		t.Fatalf("Get(%s) returned error: %v", f, err)
	}
	return v
}

func mustSet[K document.Kind, T any](t *testing.T, a *document.Accessor[K], f document.Field[K, T], value T) {
	t.Helper()
	res, err := document.Set(context.Background(), a, f, value)
	if err != nil || !res.Success {
		t.Fatalf("Set(%s) = %+v, %v", f, res, err)
	}
}
