// Package identity はセッショントークンまたはメールアドレスから
// ドキュメントIDを解決する機能を提供する。
//
// 解決に失敗した場合はエラーではなくUnauthenticatedを返す。
// 呼び出し元は Identity.Resolved() だけを確認すればよい。
package identity

import (
	"context"
	"log/slog"
)

// Identity は解決済みのアカウントを表す。
// IDが空の場合は未認証を意味する。
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Unauthenticated は解決に失敗したことを表す番兵値。
var Unauthenticated = Identity{}

// Resolved は解決に成功しているかを返す。
func (i Identity) Resolved() bool {
	return i.ID != ""
}

// Provider はIdPが提供する操作のインターフェース。
// どちらの操作も失敗時はエラーを返してよい。
type Provider interface {
	// VerifyToken はトークンを検証してアカウントを返す。
	VerifyToken(ctx context.Context, token string) (Identity, error)
	// LookupEmail はメールアドレスからアカウントを返す。
	LookupEmail(ctx context.Context, email string) (Identity, error)
}

// Resolver はProviderのエラーをUnauthenticatedに変換する。
type Resolver struct {
	provider Provider
	logger   *slog.Logger
}

// NewResolver はResolverを生成する。
func NewResolver(provider Provider, logger *slog.Logger) *Resolver {
	return &Resolver{provider: provider, logger: logger}
}

// FromToken はトークンからアカウントを解決する。
// 期限切れ・不正・不明なトークンはすべてUnauthenticatedになる。
func (r *Resolver) FromToken(ctx context.Context, token string) Identity {
	if token == "" {
		return Unauthenticated
	}

	id, err := r.provider.VerifyToken(ctx, token)
	if err != nil {
		r.logger.Warn("token verification failed",
			slog.String("error", err.Error()),
		)
		return Unauthenticated
	}
	if !id.Resolved() {
		return Unauthenticated
	}
	return id
}

// FromEmail はメールアドレスからアカウントを解決する。
func (r *Resolver) FromEmail(ctx context.Context, email string) Identity {
	if email == "" {
		return Unauthenticated
	}

	id, err := r.provider.LookupEmail(ctx, email)
	if err != nil {
		r.logger.Warn("email lookup failed",
			slog.String("error", err.Error()),
		)
		return Unauthenticated
	}
	if !id.Resolved() {
		return Unauthenticated
	}
	return id
}
