package document

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore はPostgreSQLのjsonb列にドキュメントを保存するStore。
// documentsテーブルは (collection, id) を主キーとし、data列にトップレベルのフィールドを持つ。
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore はPostgresStoreを生成する。
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Get はdata列からフィールドを1つ取り出す。
func (s *PostgresStore) Get(ctx context.Context, collection, id, key string) (json.RawMessage, error) {
	var raw []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data -> $3 FROM documents WHERE collection = $1 AND id = $2`,
		collection, id, key,
	).Scan(&raw)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document field: %w", err)
	}
	if raw == nil {
		return nil, nil
	}

	return json.RawMessage(raw), nil
}

// Merge はjsonbの || 演算子でトップレベルのフィールドを置き換える。
// || は右辺のキーだけを上書きするため、兄弟フィールドは保持され、
// key配下のオブジェクトは丸ごと置き換わる。
func (s *PostgresStore) Merge(ctx context.Context, collection, id, key string, value json.RawMessage) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (collection, id, data, created_at, updated_at)
		 VALUES ($1, $2, jsonb_build_object($3::text, $4::jsonb), now(), now())
		 ON CONFLICT (collection, id) DO UPDATE
		 SET data = documents.data || EXCLUDED.data,
		     updated_at = now()`,
		collection, id, key, string(value),
	)
	if err != nil {
		return fmt.Errorf("failed to merge document field: %w", err)
	}
	return nil
}

// compile-time interface check
var _ Store = (*PostgresStore)(nil)

// IDsWithEntries は data -> key -> subkey が空でないjsonbオブジェクトの行を返す。
func (s *PostgresStore) IDsWithEntries(ctx context.Context, collection, key, subkey string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM documents
		 WHERE collection = $1
		   AND jsonb_typeof(data -> $2 -> $3) = 'object'
		   AND data -> $2 -> $3 <> '{}'::jsonb
		 ORDER BY id`,
		collection, key, subkey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
