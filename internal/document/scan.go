package document

import (
	"context"
	"encoding/json"
	"sort"
)

// Scanner はフィールド配下のマップにエントリを持つドキュメントのIDを列挙する。
// 定期ジョブが処理対象を探すために使う。
type Scanner interface {
	// IDsWithEntries は key.subkey が空でないオブジェクトであるドキュメントのIDを昇順で返す。
	IDsWithEntries(ctx context.Context, collection, key, subkey string) ([]string, error)
}

// UsersWithOpenOrders は決済未完了の注文を持つユーザーのIDを返す。
func UsersWithOpenOrders(ctx context.Context, s Scanner) ([]string, error) {
	return s.IDsWithEntries(ctx, User{}.Collection(), UserFieldMetrics.key, "openOrders")
}

// IDsWithEntries はメモリ上のドキュメントを走査する。
func (s *MemoryStore) IDsWithEntries(ctx context.Context, collection, key, subkey string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, doc := range s.docs[collection] {
		var field map[string]json.RawMessage
		if err := json.Unmarshal(doc[key], &field); err != nil {
			continue
		}
		var entries map[string]json.RawMessage
		if err := json.Unmarshal(field[subkey], &entries); err != nil || len(entries) == 0 {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var (
	_ Scanner = (*MemoryStore)(nil)
	_ Scanner = (*PostgresStore)(nil)
	_ Scanner = (*MongoStore)(nil)
)
