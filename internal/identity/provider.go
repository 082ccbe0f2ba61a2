package identity

import (
	"context"
	"fmt"

	"github.com/tastiest/functions/internal/model"
)

// AccountFinder はアカウントディレクトリの検索インターフェース。
// repository.AccountRepositoryの部分集合として定義する。
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
}

// directoryProvider はトークン検証とアカウントディレクトリを組み合わせたProvider。
type directoryProvider struct {
	verifier *TokenVerifier
	accounts AccountFinder
}

// NewProvider はProviderを生成する。
// トークン検証後にアカウントの存在を確認し、削除済みアカウントのトークンを拒否する。
func NewProvider(verifier *TokenVerifier, accounts AccountFinder) Provider {
	return &directoryProvider{verifier: verifier, accounts: accounts}
}

// VerifyToken はトークンを検証し、ディレクトリ上のアカウントを返す。
func (p *directoryProvider) VerifyToken(ctx context.Context, token string) (Identity, error) {
	id, err := p.verifier.Verify(token)
	if err != nil {
		return Unauthenticated, err
	}

	account, err := p.accounts.FindByID(ctx, id.ID)
	if err != nil {
		return Unauthenticated, fmt.Errorf("failed to find account: %w", err)
	}
	if account == nil {
		return Unauthenticated, fmt.Errorf("account not found: %s", id.ID)
	}

	return Identity{ID: account.ID, Email: account.Email}, nil
}

// LookupEmail はメールアドレスでアカウントを検索する。
func (p *directoryProvider) LookupEmail(ctx context.Context, email string) (Identity, error) {
	account, err := p.accounts.FindByEmail(ctx, email)
	if err != nil {
		return Unauthenticated, fmt.Errorf("failed to find account by email: %w", err)
	}
	if account == nil {
		return Unauthenticated, fmt.Errorf("no account for email")
	}

	return Identity{ID: account.ID, Email: account.Email}, nil
}
