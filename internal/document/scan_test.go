package document

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/tastiest/functions/internal/model"
)

func seedOpenOrders(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	open := model.UserMetrics{OpenOrders: map[string]model.OrderSummary{
		"o1": {ID: "o1", Status: model.OrderStatusPending, CreatedAt: time.Now()},
	}}
	for _, id := range []string{"u2", "u1"} {
		if res, err := Set(ctx, NewUserAccessor(store, id), UserFieldMetrics, open); err != nil || !res.Success {
			t.Fatalf("seed %s: %+v, %v", id, res, err)
		}
	}
	empty := model.UserMetrics{TotalBookings: 3, OpenOrders: map[string]model.OrderSummary{}}
	if res, err := Set(ctx, NewUserAccessor(store, "u3"), UserFieldMetrics, empty); err != nil || !res.Success {
		t.Fatalf("seed u3: %+v, %v", res, err)
	}
	if res, err := Set(ctx, NewUserAccessor(store, "u4"), UserFieldDisplayName, "Ana"); err != nil || !res.Success {
		t.Fatalf("seed u4: %+v, %v", res, err)
	}
}

func TestMemoryStore_UsersWithOpenOrders(t *testing.T) {
	store := NewMemoryStore()
	seedOpenOrders(t, store)

	ids, err := UsersWithOpenOrders(context.Background(), store)
	if err != nil {
		t.Fatalf("UsersWithOpenOrders returned error: %v", err)
	}
	if want := []string{"u1", "u2"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}

func TestMemoryStore_IDsWithEntries_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewMemoryStore().IDsWithEntries(ctx, "users", "metrics", "openOrders"); err == nil {
		t.Error("expected error for canceled context")
	}
}

func TestPostgresStore_UsersWithOpenOrders(t *testing.T) {
	store := NewPostgresStore(setupDocumentDB(t))
	seedOpenOrders(t, store)

	ids, err := UsersWithOpenOrders(context.Background(), store)
	if err != nil {
		t.Fatalf("UsersWithOpenOrders returned error: %v", err)
	}
	if want := []string{"u1", "u2"}; !reflect.DeepEqual(ids, want) {
		t.Errorf("ids = %v, want %v", ids, want)
	}
}
