// Package cms はContentful Delivery APIからレストラン情報を読み出すクライアントを提供する。
package cms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tastiest/functions/internal/model"
)

const (
	// defaultBaseURL はContentful Delivery APIのエンドポイント。
	defaultBaseURL = "https://cdn.contentful.com"
	// restaurantContentType はレストランエントリのコンテンツタイプID。
	restaurantContentType = "restaurant"
	// pageSize は一覧取得時の1ページあたりの件数。
	pageSize = 100
)

// ErrEntryNotFound は指定したエントリが存在しない場合のエラー。
var ErrEntryNotFound = errors.New("cms entry not found")

// Sanitizer はCMS由来のHTMLを無害化する。security.ContentSanitizerServiceが実装する。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// URLValidator は外部URLの安全性を検証する。security.URLGuardServiceが実装する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// Restaurant はCMS上のレストランエントリを正規化したもの。
type Restaurant struct {
	ID          string
	Name        string
	City        string
	Cuisine     string
	Description string
	Website     string
	Tagline     string
	HeroImage   string
	Images      []string
	Location    *model.Location
	UpdatedAt   time.Time
}

// Client はContentful Delivery APIのクライアント。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	sanitizer   Sanitizer
	validator   URLValidator
	baseURL     string
	spaceID     string
	environment string
	token       string
}

// Config はClientの接続設定。
type Config struct {
	SpaceID     string
	Environment string
	AccessToken string
}

// NewClient はClientを生成する。
func NewClient(cfg Config, httpClient *http.Client, sanitizer Sanitizer, validator URLValidator, logger *slog.Logger) *Client {
	env := cfg.Environment
	if env == "" {
		env = "master"
	}
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		sanitizer:   sanitizer,
		validator:   validator,
		baseURL:     defaultBaseURL,
		spaceID:     cfg.SpaceID,
		environment: env,
		token:       cfg.AccessToken,
	}
}

// GetRestaurant は指定IDのレストランエントリを取得する。
// 存在しない場合はErrEntryNotFoundを返す。
func (c *Client) GetRestaurant(ctx context.Context, entryID string) (*Restaurant, error) {
	q := url.Values{}
	q.Set("sys.id", entryID)

	page, err := c.fetchEntries(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(page.Items) == 0 {
		return nil, ErrEntryNotFound
	}

	r := c.toRestaurant(page.Items[0], page.assetURLs())
	return &r, nil
}

// ListRestaurants は全レストランエントリをページングしながら取得する。
func (c *Client) ListRestaurants(ctx context.Context) ([]Restaurant, error) {
	var restaurants []Restaurant
	for skip := 0; ; skip += pageSize {
		q := url.Values{}
		q.Set("skip", strconv.Itoa(skip))
		q.Set("limit", strconv.Itoa(pageSize))
		q.Set("order", "sys.createdAt")

		page, err := c.fetchEntries(ctx, q)
		if err != nil {
			return nil, err
		}

		assets := page.assetURLs()
		for _, item := range page.Items {
			restaurants = append(restaurants, c.toRestaurant(item, assets))
		}

		if len(page.Items) < pageSize || skip+len(page.Items) >= page.Total {
			return restaurants, nil
		}
	}
}

func (c *Client) fetchEntries(ctx context.Context, q url.Values) (*entriesResponse, error) {
	q.Set("content_type", restaurantContentType)
	q.Set("include", "1")

	reqURL := fmt.Sprintf("%s/spaces/%s/environments/%s/entries?%s",
		strings.TrimRight(c.baseURL, "/"),
		url.PathEscape(c.spaceID),
		url.PathEscape(c.environment),
		q.Encode(),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cms request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", "Tastiest-Functions/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("cms request failed", slog.String("error", err.Error()))
		return nil, fmt.Errorf("cms request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read cms response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Error("cms returned error status", slog.Int("http_status", resp.StatusCode))
		return nil, fmt.Errorf("cms returned status %d", resp.StatusCode)
	}

	var page entriesResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return nil, fmt.Errorf("failed to parse cms response: %w", err)
	}
	return &page, nil
}

func (c *Client) toRestaurant(e entry, assets map[string]string) Restaurant {
	r := Restaurant{
		ID:        e.Sys.ID,
		Name:      strings.TrimSpace(e.Fields.Name),
		City:      e.Fields.City,
		Cuisine:   e.Fields.Cuisine,
		Tagline:   e.Fields.Tagline,
		UpdatedAt: e.Sys.UpdatedAt,
	}

	if c.sanitizer != nil {
		r.Description = c.sanitizer.Sanitize(e.Fields.Description)
	}

	if e.Fields.Website != "" {
		if err := c.validateURL(e.Fields.Website); err != nil {
			c.logger.Warn("dropping unsafe restaurant website",
				slog.String("entry_id", e.Sys.ID),
				slog.String("error", err.Error()),
			)
		} else {
			r.Website = e.Fields.Website
		}
	}

	if e.Fields.HeroImage != nil {
		r.HeroImage = assets[e.Fields.HeroImage.Sys.ID]
	}
	for _, link := range e.Fields.Images {
		if u, ok := assets[link.Sys.ID]; ok {
			r.Images = append(r.Images, u)
		}
	}

	if e.Fields.Location != nil {
		r.Location = &model.Location{
			Lat:     e.Fields.Location.Lat,
			Lon:     e.Fields.Location.Lon,
			Address: e.Fields.Address,
		}
	}

	return r
}

func (c *Client) validateURL(raw string) error {
	if c.validator == nil {
		return nil
	}
	return c.validator.ValidateURL(raw)
}

// --- Contentful レスポンス ---

type entriesResponse struct {
	Total    int     `json:"total"`
	Items    []entry `json:"items"`
	Includes struct {
		Asset []asset `json:"Asset"`
	} `json:"includes"`
}

type sys struct {
	ID        string    `json:"id"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type link struct {
	Sys struct {
		ID string `json:"id"`
	} `json:"sys"`
}

type entry struct {
	Sys    sys `json:"sys"`
	Fields struct {
		Name        string `json:"name"`
		City        string `json:"city"`
		Cuisine     string `json:"cuisine"`
		Description string `json:"description"`
		Website     string `json:"website"`
		Tagline     string `json:"tagline"`
		Address     string `json:"address"`
		Location    *struct {
			Lat float64 `json:"lat"`
			Lon float64 `json:"lon"`
		} `json:"location"`
		HeroImage *link  `json:"heroImage"`
		Images    []link `json:"images"`
	} `json:"fields"`
}

type asset struct {
	Sys    sys `json:"sys"`
	Fields struct {
		File struct {
			URL string `json:"url"`
		} `json:"file"`
	} `json:"fields"`
}

// assetURLs はアセットIDから画像URLへの対応を返す。
// Contentfulはスキームなしの"//images.ctfassets.net/..."を返すためhttpsを補う。
func (p *entriesResponse) assetURLs() map[string]string {
	urls := make(map[string]string, len(p.Includes.Asset))
	for _, a := range p.Includes.Asset {
		u := a.Fields.File.URL
		if u == "" {
			continue
		}
		if strings.HasPrefix(u, "//") {
			u = "https:" + u
		}
		urls[a.Sys.ID] = u
	}
	return urls
}
