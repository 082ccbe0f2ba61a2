package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/tastiest/functions/internal/cms"
	"github.com/tastiest/functions/internal/document"
	"github.com/tastiest/functions/internal/format"
	"github.com/tastiest/functions/internal/model"
)

// CMSHandler はCMSからレストランドキュメントへの同期を扱うHTTPハンドラー。
type CMSHandler struct {
	source   RestaurantSource
	store    document.Store
	observer document.WriteObserver
	clock    Clock
}

// NewCMSHandler はCMSHandlerを生成する。
func NewCMSHandler(source RestaurantSource, store document.Store, observer document.WriteObserver) *CMSHandler {
	return &CMSHandler{
		source:   source,
		store:    store,
		observer: observer,
	}
}

// syncRequest はCMS Webhookのペイロード。entryIdが空の場合は全件同期する。
type syncRequest struct {
	EntryID string `json:"entryId,omitempty"`
}

type syncResult struct {
	Synced []string `json:"synced"`
	Failed []string `json:"failed,omitempty"`
}

// SyncRestaurants はCMSのレストランエントリをdetailsとprofileに書き込む。
// 一部のエントリの書き込みに失敗した場合は失敗したIDを含むDOCUMENT_WRITE_FAILEDを返す（dataはnull）。
// POST /functions/cms/restaurants/sync
func (h *CMSHandler) SyncRestaurants(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			handleServiceError(w, err)
			return
		}
	}

	ctx := r.Context()
	entries, err := h.fetch(ctx, req.EntryID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	result := syncResult{Synced: []string{}}
	for _, entry := range entries {
		if err := h.syncOne(ctx, entry); err != nil {
			slog.Error("failed to sync restaurant",
				slog.String("restaurant_id", entry.ID),
				slog.String("error", err.Error()),
			)
			result.Failed = append(result.Failed, entry.ID)
			continue
		}
		result.Synced = append(result.Synced, entry.ID)
	}

	slog.Info("restaurant sync completed",
		slog.Int("synced", len(result.Synced)),
		slog.Int("failed", len(result.Failed)),
	)

	if len(result.Failed) > 0 {
		// 同期は冪等なので、CMS側の再送でまとめてやり直せる
		handleServiceError(w, model.NewDocumentWriteFailedError(
			fmt.Sprintf("%d件のレストランを同期できませんでした (%s)", len(result.Failed), strings.Join(result.Failed, ", ")),
		))
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

func (h *CMSHandler) fetch(ctx context.Context, entryID string) ([]cms.Restaurant, error) {
	if entryID == "" {
		entries, err := h.source.ListRestaurants(ctx)
		if err != nil {
			slog.Error("failed to list cms restaurants", slog.String("error", err.Error()))
			return nil, model.NewUpstreamUnavailableError("cms")
		}
		return entries, nil
	}

	entry, err := h.source.GetRestaurant(ctx, entryID)
	if errors.Is(err, cms.ErrEntryNotFound) {
		return nil, model.NewCMSEntryNotFoundError(entryID)
	}
	if err != nil {
		slog.Error("failed to get cms restaurant", slog.String("entry_id", entryID), slog.String("error", err.Error()))
		return nil, model.NewUpstreamUnavailableError("cms")
	}
	return []cms.Restaurant{*entry}, nil
}

// syncOne は1件を書き込む。公開状態はレストラン側の設定なので既存の値を引き継ぐ。
func (h *CMSHandler) syncOne(ctx context.Context, entry cms.Restaurant) error {
	a := document.NewRestaurantAccessor(h.store, entry.ID, document.WithObserver(h.observer))

	details := model.RestaurantDetails{
		ID:          entry.ID,
		Name:        entry.Name,
		URI:         restaurantURI(entry),
		City:        entry.City,
		Cuisine:     entry.Cuisine,
		Description: entry.Description,
		Location:    entry.Location,
		Website:     entry.Website,
		SyncedAt:    h.clock.now(),
	}
	if err := writeField(ctx, a, document.RestaurantFieldDetails, details); err != nil {
		return err
	}

	existing, err := document.Get(ctx, a, document.RestaurantFieldProfile)
	if err != nil {
		return err
	}
	profile := model.RestaurantProfile{
		Tagline:   entry.Tagline,
		HeroImage: entry.HeroImage,
		Images:    entry.Images,
	}
	if existing != nil {
		profile.Publicized = existing.Publicized
	}
	return writeField(ctx, a, document.RestaurantFieldProfile, profile)
}

// restaurantURI は "city/name" 形式のURIを返す。例: "london/the-ivy"
func restaurantURI(entry cms.Restaurant) string {
	name := format.Slugify(entry.Name)
	if city := format.Slugify(entry.City); city != "" {
		return city + "/" + name
	}
	return name
}
