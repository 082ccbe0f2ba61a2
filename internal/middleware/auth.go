// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/tastiest/functions/internal/identity"
	"github.com/tastiest/functions/internal/model"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

var identityContextKey = contextKey("identity")

// TokenResolver はBearerトークンから呼び出し元を解決する。identity.Resolverが実装する。
type TokenResolver interface {
	FromToken(ctx context.Context, token string) identity.Identity
}

// BearerToken はAuthorizationヘッダーからBearerトークンを取り出す。無い場合は空文字列。
func BearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// NewBearerAuthMiddleware はBearerトークンを検証し、解決したIDをコンテキストに注入する。
// 解決できない場合は401を返す。
func NewBearerAuthMiddleware(resolver TokenResolver) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := resolver.FromToken(r.Context(), BearerToken(r))
			if !id.Resolved() {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}

			setRequestUser(r.Context(), id.ID)
			next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
		})
	}
}

// NewServiceTokenMiddleware は内部呼び出し（スケジューラ、DBトリガー、CMS Webhook）用の
// 共有トークンを検証する。tokenが空の場合はすべて拒否する。
func NewServiceTokenMiddleware(token string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := BearerToken(r)
			if token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				WriteErrorResponse(w, http.StatusUnauthorized, model.NewUnauthenticatedError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityFromContext はBearer認証を通過したリクエストの呼び出し元を返す。
func IdentityFromContext(ctx context.Context) (identity.Identity, bool) {
	id, ok := ctx.Value(identityContextKey).(identity.Identity)
	if !ok || !id.Resolved() {
		return identity.Unauthenticated, false
	}
	return id, true
}

// ContextWithIdentity はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithIdentity(ctx context.Context, id identity.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, id)
}
