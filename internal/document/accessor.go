package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tastiest/functions/internal/identity"
)

var (
	// ErrNotInitialized はドキュメントIDが未設定のアクセサを使用した場合のエラー。
	// 呼び出し側の実装誤りを示し、I/Oの前に返される。
	ErrNotInitialized = errors.New("document accessor is not bound to a document id")

	// ErrUnknownField はレジストリに存在しないフィールドを指定した場合のエラー。
	ErrUnknownField = errors.New("unknown document field")
)

// IdentityResolver はアクセサのバインドに使う解決処理のインターフェース。
// identity.Resolverが実装する。
type IdentityResolver interface {
	FromToken(ctx context.Context, token string) identity.Identity
	FromEmail(ctx context.Context, email string) identity.Identity
}

// WriteObserver はドキュメント書き込みの結果を受け取る。
// metrics.Collectorが実装する。
type WriteObserver interface {
	ObserveDocumentWrite(collection string, success bool)
}

// Result は書き込み操作の結果。Errorがnilでない場合Dataは常にnil。
// JSONでは成功時も"error": nullを出力する。
type Result[T any] struct {
	Success bool    `json:"success"`
	Error   *string `json:"error"`
	Data    *T      `json:"data"`
}

// ErrorMessage は失敗時のメッセージを返す。成功時は空文字列。
func (r Result[T]) ErrorMessage() string {
	if r.Error == nil {
		return ""
	}
	return *r.Error
}

// Accessor は1つのドキュメントIDに束縛された型付きアクセサ。
// リクエスト単位で生成し、異なるユーザーのリクエスト間で共有しない。
type Accessor[K Kind] struct {
	id       string
	store    Store
	resolver IdentityResolver
	observer WriteObserver
	logger   *slog.Logger
}

// Option はアクセサの任意設定。
type Option func(*accessorOptions)

type accessorOptions struct {
	resolver IdentityResolver
	observer WriteObserver
	logger   *slog.Logger
}

// WithResolver はBindToken/BindEmailで使うResolverを設定する。
func WithResolver(r IdentityResolver) Option {
	return func(o *accessorOptions) { o.resolver = r }
}

// WithObserver は書き込み結果の通知先を設定する。
func WithObserver(w WriteObserver) Option {
	return func(o *accessorOptions) { o.observer = w }
}

// WithLogger はロガーを設定する。未設定の場合はslog.Default()を使う。
func WithLogger(l *slog.Logger) Option {
	return func(o *accessorOptions) { o.logger = l }
}

// NewUserAccessor はユーザードキュメントのアクセサを生成する。
// idが空の場合はBindToken/BindEmailで束縛するまで使用できない。
func NewUserAccessor(store Store, id string, opts ...Option) *Accessor[User] {
	return newAccessor[User](store, id, opts)
}

// NewRestaurantAccessor はレストランドキュメントのアクセサを生成する。
func NewRestaurantAccessor(store Store, id string, opts ...Option) *Accessor[Restaurant] {
	return newAccessor[Restaurant](store, id, opts)
}

func newAccessor[K Kind](store Store, id string, opts []Option) *Accessor[K] {
	o := accessorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return &Accessor[K]{
		id:       id,
		store:    store,
		resolver: o.resolver,
		observer: o.observer,
		logger:   o.logger,
	}
}

// ID は束縛されたドキュメントIDを返す。未束縛の場合は空文字列。
func (a *Accessor[K]) ID() string {
	return a.id
}

// Bound はドキュメントIDが束縛済みかを返す。
func (a *Accessor[K]) Bound() bool {
	return a.id != ""
}

// BindToken はトークンから解決したアカウントにアクセサを束縛する。
// 解決に失敗した場合は束縛を変更せずidentity.Unauthenticatedを返す。
func (a *Accessor[K]) BindToken(ctx context.Context, token string) identity.Identity {
	if a.resolver == nil {
		a.logger.Error("accessor has no identity resolver")
		return identity.Unauthenticated
	}
	return a.bind(a.resolver.FromToken(ctx, token))
}

// BindEmail はメールアドレスから解決したアカウントにアクセサを束縛する。
func (a *Accessor[K]) BindEmail(ctx context.Context, email string) identity.Identity {
	if a.resolver == nil {
		a.logger.Error("accessor has no identity resolver")
		return identity.Unauthenticated
	}
	return a.bind(a.resolver.FromEmail(ctx, email))
}

func (a *Accessor[K]) bind(id identity.Identity) identity.Identity {
	if id.Resolved() {
		a.id = id.ID
	}
	return id
}

// Get はフィールドの値を読み出す。
// ドキュメントまたはフィールドが存在しない場合はnil, nilを返す。
func Get[K Kind, T any](ctx context.Context, a *Accessor[K], f Field[K, T]) (*T, error) {
	if err := a.check(f.key); err != nil {
		return nil, err
	}

	var kind K
	raw, err := a.store.Get(ctx, kind.Collection(), a.id, f.key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s of %s: %w", f, a.id, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}

	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, fmt.Errorf("failed to decode %s of %s: %w", f, a.id, err)
	}
	return v, nil
}

// Set はフィールドをvalueで置き換える。他のフィールドは変更しない。
// ストアの失敗はResult.Errorで返し、errorは使用方法の誤り（未束縛・未知のフィールド）にのみ使う。
func Set[K Kind, T any](ctx context.Context, a *Accessor[K], f Field[K, T], value T) (Result[T], error) {
	if err := a.check(f.key); err != nil {
		return Result[T]{}, err
	}

	var kind K
	collection := kind.Collection()

	raw, err := json.Marshal(value)
	if err != nil {
		return failed[T](a.logger, a.observer, collection, a.id, f.key, err), nil
	}

	if err := a.store.Merge(ctx, collection, a.id, f.key, raw); err != nil {
		return failed[T](a.logger, a.observer, collection, a.id, f.key, err), nil
	}

	if a.observer != nil {
		a.observer.ObserveDocumentWrite(collection, true)
	}
	return Result[T]{Success: true, Data: &value}, nil
}

func (a *Accessor[K]) check(key string) error {
	if a.id == "" {
		return ErrNotInitialized
	}
	if key == "" {
		return ErrUnknownField
	}
	return nil
}

func failed[T any](logger *slog.Logger, observer WriteObserver, collection, id, key string, err error) Result[T] {
	logger.Error("document write failed",
		slog.String("collection", collection),
		slog.String("document_id", id),
		slog.String("field", key),
		slog.String("error", err.Error()),
	)
	if observer != nil {
		observer.ObserveDocumentWrite(collection, false)
	}
	msg := err.Error()
	return Result[T]{Success: false, Error: &msg}
}
