package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tastiest/functions/internal/cms"
	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/model"
)

func ivy() cms.Restaurant {
	return cms.Restaurant{
		ID:          "r1",
		Name:        "The Ivy",
		City:        "London",
		Cuisine:     "British",
		Description: "<p>Classic.</p>",
		Website:     "https://the-ivy.co.uk",
		Tagline:     "Since 1917",
		HeroImage:   "https://images.example.com/ivy.jpg",
		Location:    &model.Location{Lat: 51.5, Lon: -0.12},
	}
}

func TestCMSHandler_SyncRestaurants_SingleEntry(t *testing.T) {
	store := document.NewMemoryStore()
	a := document.NewRestaurantAccessor(store, "r1")
	mustSet(t, a, document.RestaurantFieldProfile, model.RestaurantProfile{Tagline: "old", Publicized: true})

	source := &mockSource{
		getFn: func(ctx context.Context, entryID string) (*cms.Restaurant, error) {
			if entryID != "r1" {
				t.Errorf("entryID = %q", entryID)
			}
			r := ivy()
			return &r, nil
		},
		listFn: func(context.Context) ([]cms.Restaurant, error) {
			t.Error("ListRestaurants must not be called for a single entry")
			return nil, nil
		},
	}
	h := NewCMSHandler(source, store, nil)
	h.clock = fixedClock()

	w := httptest.NewRecorder()
	h.SyncRestaurants(w, jsonRequest(t, http.MethodPost, "/functions/cms/restaurants/sync", map[string]string{"entryId": "r1"}))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	var result syncResult
	if env := decodeEnvelope(t, w, &result); !env.Success {
		t.Errorf("success = false, error = %q", env.Error)
	}
	if len(result.Synced) != 1 || result.Synced[0] != "r1" {
		t.Errorf("synced = %v", result.Synced)
	}

	details := mustGet(t, a, document.RestaurantFieldDetails)
	if details.URI != "london/the-ivy" || details.Name != "The Ivy" || !details.SyncedAt.Equal(testNow) {
		t.Errorf("details = %+v", details)
	}
	profile := mustGet(t, a, document.RestaurantFieldProfile)
	if profile.Tagline != "Since 1917" || !profile.Publicized {
		t.Errorf("profile = %+v", profile)
	}
}

func TestCMSHandler_SyncRestaurants_AllWithPartialFailure(t *testing.T) {
	base := document.NewMemoryStore()
	store := &failingStore{Store: base, failID: "r2"}
	source := &mockSource{
		listFn: func(context.Context) ([]cms.Restaurant, error) {
			second := ivy()
			second.ID = "r2"
			second.Name = "Dishoom"
			return []cms.Restaurant{ivy(), second}, nil
		},
	}
	h := NewCMSHandler(source, store, nil)

	w := httptest.NewRecorder()
	h.SyncRestaurants(w, httptest.NewRequest(http.MethodPost, "/functions/cms/restaurants/sync", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	env := decodeEnvelope(t, w, nil)
	if env.Success || !strings.Contains(env.Error, "r2") || strings.Contains(env.Error, "r1") {
		t.Errorf("envelope = %+v, want failure naming only r2", env)
	}
	if len(env.Data) != 0 && string(env.Data) != "null" {
		t.Errorf("data = %s, want null alongside an error", env.Data)
	}
	if d := mustGet(t, document.NewRestaurantAccessor(base, "r1"), document.RestaurantFieldDetails); d == nil {
		t.Error("r1 should be synced")
	}
}

func TestCMSHandler_SyncRestaurants_Errors(t *testing.T) {
	tests := []struct {
		name       string
		source     *mockSource
		body       any
		wantStatus int
		wantCode   string
	}{
		{
			name:       "entry not found",
			source:     &mockSource{},
			body:       map[string]string{"entryId": "missing"},
			wantStatus: http.StatusNotFound,
			wantCode:   model.ErrCodeCMSEntryNotFound,
		},
		{
			name: "cms unavailable",
			source: &mockSource{listFn: func(context.Context) ([]cms.Restaurant, error) {
				return nil, errors.New("contentful: 503")
			}},
			body:       map[string]string{},
			wantStatus: http.StatusBadGateway,
			wantCode:   model.ErrCodeUpstreamUnavailable,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewCMSHandler(tt.source, document.NewMemoryStore(), nil)
			w := httptest.NewRecorder()
			h.SyncRestaurants(w, jsonRequest(t, http.MethodPost, "/functions/cms/restaurants/sync", tt.body))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			if code := decodeErrorCode(t, w); code != tt.wantCode {
				t.Errorf("code = %q, want %q", code, tt.wantCode)
			}
		})
	}
}

func TestRestaurantURI(t *testing.T) {
	if got := restaurantURI(cms.Restaurant{Name: "Café Rouge"}); got != "cafe-rouge" {
		t.Errorf("restaurantURI without city = %q", got)
	}
	if got := restaurantURI(cms.Restaurant{Name: "Fish & Chips", City: "Brighton"}); got != "brighton/fish-and-chips" {
		t.Errorf("restaurantURI = %q", got)
	}
}
