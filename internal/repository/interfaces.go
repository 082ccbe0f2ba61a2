// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/tastiest/functions/internal/model"
)

// AccountRepository はアカウントディレクトリの永続化インターフェース。
// IdPが発行したIDとメールアドレスの対応を保持する。
type AccountRepository interface {
	// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Account, error)

	// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.Account, error)

	// Upsert はアカウントを作成または更新する。
	Upsert(ctx context.Context, account *model.Account) error
}
