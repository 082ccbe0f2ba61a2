package handler

import (
	"context"
	"time"

	"github.com/tastiest/functions/internal/analytics"
	"github.com/tastiest/functions/internal/cms"
	"github.com/tastiest/functions/internal/horus"
	"github.com/tastiest/functions/internal/identity"
	"github.com/tastiest/functions/internal/model"
)

// AccountDirectory はアカウントを登録・更新する。repository.AccountRepositoryが実装する。
type AccountDirectory interface {
	Upsert(ctx context.Context, account *model.Account) error
}

// EventTracker はアナリティクスイベントを非同期に送信する。analytics.Trackerが実装する。
type EventTracker interface {
	Track(e analytics.Event) error
}

// RestaurantSource はCMSからレストランを取得する。cms.Clientが実装する。
type RestaurantSource interface {
	GetRestaurant(ctx context.Context, entryID string) (*cms.Restaurant, error)
	ListRestaurants(ctx context.Context) ([]cms.Restaurant, error)
}

// RPCClient はHorusのルートを呼び出す。horus.Clientが実装する。
type RPCClient interface {
	Get(ctx context.Context, route horus.Route, opts horus.GetOptions) (horus.Response, error)
	Post(ctx context.Context, route horus.Route, body any) (horus.Response, error)
	PostTo(ctx context.Context, route horus.Route, segment string, body any) (horus.Response, error)
}

// ResetTokenIssuer はパスワードリセット用の短命トークンを発行する。identity.TokenIssuerが実装する。
type ResetTokenIssuer interface {
	Issue(id identity.Identity, ttl time.Duration) (string, error)
}

// Clock は現在時刻を返す。テストで固定する。
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now().UTC()
	}
	return c()
}
