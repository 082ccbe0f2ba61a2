package document

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/tastiest/functions/internal/identity"
	"github.com/tastiest/functions/internal/model"
)

// --- モック ---

type failingStore struct {
	err error
}

func (s *failingStore) Get(ctx context.Context, collection, id, key string) (json.RawMessage, error) {
	return nil, s.err
}

func (s *failingStore) Merge(ctx context.Context, collection, id, key string, value json.RawMessage) error {
	return s.err
}

// countingStore は呼び出し回数を記録する。未束縛時にI/Oが行われないことの検証用。
type countingStore struct {
	calls int
}

func (s *countingStore) Get(ctx context.Context, collection, id, key string) (json.RawMessage, error) {
	s.calls++
	return nil, nil
}

func (s *countingStore) Merge(ctx context.Context, collection, id, key string, value json.RawMessage) error {
	s.calls++
	return nil
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

type recordingObserver struct {
	mu      sync.Mutex
	success int
	failure int
}

func (o *recordingObserver) ObserveDocumentWrite(collection string, success bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if success {
		o.success++
	} else {
		o.failure++
	}
}

// --- テスト ---

func TestSetGet_UserDetails_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewUserAccessor(NewMemoryStore(), "u1")

	want := model.UserDetails{FirstName: "Ana", Email: "ana@x.com"}
	res, err := Set(ctx, a, UserFieldDetails, want)
	if err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if !res.Success || res.Error != nil {
		t.Fatalf("Set result = %+v, want success", res)
	}
	if res.Data == nil || *res.Data != want {
		t.Errorf("Set result data = %+v, want %+v", res.Data, want)
	}

	got, err := Get(ctx, a, UserFieldDetails)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil {
		t.Fatal("Get returned nil, want value")
	}
	if !reflect.DeepEqual(*got, want) {
		t.Errorf("Get = %+v, want %+v", *got, want)
	}
}

func TestSetGet_AllUserFields_RoundTrip(t *testing.T) {
	a := NewUserAccessor(NewMemoryStore(), "u1")
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	check := func(name string, ok bool, err error) {
		t.Helper()
		if err != nil {
			t.Errorf("%s: unexpected error: %v", name, err)
		}
		if !ok {
			t.Errorf("%s: round trip mismatch", name)
		}
	}

	roundTrip(t, a, UserFieldRole, model.UserRoleEater, check)
	roundTrip(t, a, UserFieldDisplayName, "Ana", check)
	roundTrip(t, a, UserFieldPaymentDetails, model.PaymentDetails{CustomerID: "cust_1"}, check)
	roundTrip(t, a, UserFieldPaymentMethods, map[string]model.PaymentMethod{
		"card_1": {ID: "card_1", Brand: "Visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030, AddedAt: now},
	}, check)
	roundTrip(t, a, UserFieldPreferences, model.UserPreferences{Dietary: []string{"vegan"}, MarketingEmail: true}, check)
	roundTrip(t, a, UserFieldMetrics, model.UserMetrics{TotalBookings: 2, TotalSpent: 5000, LastBookingAt: &now}, check)
	roundTrip(t, a, UserFieldSavedArticles, []string{"a1", "a2"}, check)
	roundTrip(t, a, UserFieldRestaurantsVisited, []string{"r1"}, check)
	roundTrip(t, a, UserFieldPasswordResetRequests, []model.PasswordResetRequest{{ID: "p1", RequestedAt: now}}, check)
}

func roundTrip[T any](t *testing.T, a *Accessor[User], f Field[User, T], v T, check func(string, bool, error)) {
	t.Helper()
	ctx := context.Background()
	if _, err := Set(ctx, a, f, v); err != nil {
		check(f.Key(), false, err)
		return
	}
	got, err := Get(ctx, a, f)
	if err != nil || got == nil {
		check(f.Key(), false, err)
		return
	}
	check(f.Key(), reflect.DeepEqual(*got, v), nil)
}

func TestSetGet_RestaurantFields_RoundTrip(t *testing.T) {
	ctx := context.Background()
	a := NewRestaurantAccessor(NewMemoryStore(), "r1")

	financial := model.RestaurantFinancial{Currency: "GBP", CommissionBps: 1000}
	if _, err := Set(ctx, a, RestaurantFieldFinancial, financial); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	got, err := Get(ctx, a, RestaurantFieldFinancial)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil || *got != financial {
		t.Errorf("Get = %+v, want %+v", got, financial)
	}
}

func TestGet_FreshDocument_ReturnsNil(t *testing.T) {
	ctx := context.Background()
	a := NewUserAccessor(NewMemoryStore(), "fresh")

	got, err := Get(ctx, a, UserFieldMetrics)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Errorf("Get = %+v, want nil", got)
	}
}

func TestGet_AbsentFieldOnExistingDocument_ReturnsNil(t *testing.T) {
	ctx := context.Background()
	a := NewUserAccessor(NewMemoryStore(), "u1")
	if _, err := Set(ctx, a, UserFieldDisplayName, "Ana"); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got, err := Get(ctx, a, UserFieldSavedArticles)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got != nil {
		t.Errorf("Get = %+v, want nil", got)
	}
}

func TestSet_PreservesSiblingFields(t *testing.T) {
	ctx := context.Background()
	a := NewUserAccessor(NewMemoryStore(), "u1")

	details := model.UserDetails{FirstName: "Ana", Email: "ana@x.com"}
	if _, err := Set(ctx, a, UserFieldDetails, details); err != nil {
		t.Fatalf("Set details returned error: %v", err)
	}
	if _, err := Set(ctx, a, UserFieldPreferences, model.UserPreferences{MarketingEmail: true}); err != nil {
		t.Fatalf("Set preferences returned error: %v", err)
	}

	got, err := Get(ctx, a, UserFieldDetails)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got == nil || *got != details {
		t.Errorf("details = %+v, want %+v (sibling write must not overwrite)", got, details)
	}
}

func TestSet_ReplacesNestedValueWholesale(t *testing.T) {
	ctx := context.Background()
	a := NewUserAccessor(NewMemoryStore(), "u1")

	if _, err := Set(ctx, a, UserFieldDetails, model.UserDetails{FirstName: "Ana", Mobile: "0700"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	if _, err := Set(ctx, a, UserFieldDetails, model.UserDetails{FirstName: "Ana"}); err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	got, _ := Get(ctx, a, UserFieldDetails)
	if got == nil || got.Mobile != "" {
		t.Errorf("details = %+v, want mobile cleared (no deep merge)", got)
	}
}

func TestUnboundAccessor_FailsWithNotInitialized(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{}
	a := NewUserAccessor(store, "")

	if _, err := Get(ctx, a, UserFieldDetails); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Get error = %v, want ErrNotInitialized", err)
	}
	if _, err := Set(ctx, a, UserFieldDisplayName, "Ana"); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Set error = %v, want ErrNotInitialized", err)
	}
	if _, err := Set(ctx, a, UserFieldSavedArticles, nil); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("Set(nil) error = %v, want ErrNotInitialized", err)
	}
	if store.calls != 0 {
		t.Errorf("store calls = %d, want 0", store.calls)
	}
}

func TestZeroField_FailsWithUnknownField(t *testing.T) {
	ctx := context.Background()
	a := NewUserAccessor(NewMemoryStore(), "u1")

	var f Field[User, string]
	if _, err := Get(ctx, a, f); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Get error = %v, want ErrUnknownField", err)
	}
	if _, err := Set(ctx, a, f, "x"); !errors.Is(err, ErrUnknownField) {
		t.Errorf("Set error = %v, want ErrUnknownField", err)
	}
}

func TestSet_StoreFailure_ReturnsFailedResult(t *testing.T) {
	ctx := context.Background()
	obs := &recordingObserver{}
	a := NewUserAccessor(&failingStore{err: errors.New("connection refused")}, "u1", WithObserver(obs))

	res, err := Set(ctx, a, UserFieldDisplayName, "Ana")
	if err != nil {
		t.Fatalf("Set should not return error for store failure, got %v", err)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
	if res.ErrorMessage() != "connection refused" {
		t.Errorf("Error = %q, want %q", res.ErrorMessage(), "connection refused")
	}
	if res.Data != nil {
		t.Errorf("Data = %v, want nil", res.Data)
	}
	if obs.failure != 1 || obs.success != 0 {
		t.Errorf("observer = %+v, want 1 failure", obs)
	}
}

// 書き込み結果はerrorキーを常に出力する（成功時はnull、失敗時はメッセージ）。
func TestResult_JSONAlwaysCarriesErrorKey(t *testing.T) {
	ctx := context.Background()

	ok, err := Set(ctx, NewUserAccessor(NewMemoryStore(), "u1"), UserFieldDisplayName, "Ana")
	if err != nil {
		t.Fatalf("Set returned error: %v", err)
	}
	failed, err := Set(ctx, NewUserAccessor(&failingStore{err: errors.New("disk full")}, "u1"), UserFieldDisplayName, "Ana")
	if err != nil {
		t.Fatalf("Set returned error: %v", err)
	}

	tests := []struct {
		name      string
		result    Result[string]
		wantError any
		wantData  any
	}{
		{"success", ok, nil, "Ana"},
		{"failure", failed, "disk full", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.result)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			var raw map[string]any
			if err := json.Unmarshal(b, &raw); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			v, present := raw["error"]
			if !present {
				t.Fatalf("error key missing: %s", b)
			}
			if v != tt.wantError {
				t.Errorf("error = %v, want %v", v, tt.wantError)
			}
			if raw["data"] != tt.wantData {
				t.Errorf("data = %v, want %v", raw["data"], tt.wantData)
			}
		})
	}
}

func TestGet_StoreFailure_ReturnsWrappedError(t *testing.T) {
	storeErr := errors.New("timeout")
	a := NewUserAccessor(&failingStore{err: storeErr}, "u1")

	_, err := Get(context.Background(), a, UserFieldDisplayName)
	if !errors.Is(err, storeErr) {
		t.Errorf("Get error = %v, want wrapped %v", err, storeErr)
	}
}

func TestBindToken(t *testing.T) {
	ctx := context.Background()
	resolver := &mockResolver{
		fromTokenFn: func(ctx context.Context, token string) identity.Identity {
			if token == "good" {
				return identity.Identity{ID: "u1", Email: "ana@x.com"}
			}
			return identity.Unauthenticated
		},
	}

	a := NewUserAccessor(NewMemoryStore(), "", WithResolver(resolver))

	if id := a.BindToken(ctx, "bad"); id.Resolved() {
		t.Errorf("BindToken(bad) = %+v, want Unauthenticated", id)
	}
	if a.Bound() {
		t.Error("accessor should stay unbound after failed resolution")
	}

	id := a.BindToken(ctx, "good")
	if id.ID != "u1" {
		t.Errorf("BindToken(good).ID = %q, want %q", id.ID, "u1")
	}
	if a.ID() != "u1" {
		t.Errorf("ID() = %q, want %q", a.ID(), "u1")
	}
	if _, err := Set(ctx, a, UserFieldDisplayName, "Ana"); err != nil {
		t.Errorf("Set after bind returned error: %v", err)
	}
}

func TestBindEmail(t *testing.T) {
	resolver := &mockResolver{
		fromEmailFn: func(ctx context.Context, email string) identity.Identity {
			return identity.Identity{ID: "u9", Email: email}
		},
	}
	a := NewUserAccessor(NewMemoryStore(), "", WithResolver(resolver))

	id := a.BindEmail(context.Background(), "ana@x.com")
	if !id.Resolved() || a.ID() != "u9" {
		t.Errorf("BindEmail = %+v, ID() = %q, want u9", id, a.ID())
	}
}

func TestBind_WithoutResolver_ReturnsSentinel(t *testing.T) {
	a := NewUserAccessor(NewMemoryStore(), "")
	if id := a.BindToken(context.Background(), "anything"); id.Resolved() {
		t.Errorf("BindToken without resolver = %+v, want Unauthenticated", id)
	}
}

func TestSet_ConcurrentDifferentKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a := NewUserAccessor(store, "u1")
		for i := 0; i < 50; i++ {
			Set(ctx, a, UserFieldDisplayName, "Ana")
		}
	}()
	go func() {
		defer wg.Done()
		a := NewUserAccessor(store, "u1")
		for i := 0; i < 50; i++ {
			Set(ctx, a, UserFieldSavedArticles, []string{"a1"})
		}
	}()
	wg.Wait()

	a := NewUserAccessor(store, "u1")
	name, _ := Get(ctx, a, UserFieldDisplayName)
	articles, _ := Get(ctx, a, UserFieldSavedArticles)
	if name == nil || *name != "Ana" {
		t.Errorf("displayName = %v, want Ana", name)
	}
	if articles == nil || len(*articles) != 1 {
		t.Errorf("savedArticles = %v, want [a1]", articles)
	}
}

func TestRegistry_KeysAreUnique(t *testing.T) {
	for name, keys := range map[string][]string{
		"user":       UserFieldKeys(),
		"restaurant": RestaurantFieldKeys(),
	} {
		seen := make(map[string]bool)
		for _, k := range keys {
			if k == "" {
				t.Errorf("%s registry contains empty key", name)
			}
			if seen[k] {
				t.Errorf("%s registry contains duplicate key %q", name, k)
			}
			seen[k] = true
		}
	}
	if len(UserFieldKeys()) != 10 {
		t.Errorf("user field count = %d, want 10", len(UserFieldKeys()))
	}
	if len(RestaurantFieldKeys()) != 11 {
		t.Errorf("restaurant field count = %d, want 11", len(RestaurantFieldKeys()))
	}
}

func TestField_String(t *testing.T) {
	if got := UserFieldDetails.String(); got != "users.details" {
		t.Errorf("String() = %q, want %q", got, "users.details")
	}
	if got := RestaurantFieldBookings.String(); got != "restaurants.bookings" {
		t.Errorf("String() = %q, want %q", got, "restaurants.bookings")
	}
}
