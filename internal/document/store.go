package document

import (
	"context"
	"encoding/json"
	"sync"
)

// Store はドキュメントストアに求める操作のインターフェース。
// (collection, id) でドキュメントを特定し、トップレベルのフィールド単位で読み書きする。
type Store interface {
	// Get はフィールドの値を返す。ドキュメントまたはフィールドが無い場合はnil, nilを返す。
	Get(ctx context.Context, collection, id, key string) (json.RawMessage, error)

	// Merge はフィールドkeyをvalueで置き換える。他のトップレベルフィールドは変更しない。
	// ドキュメントが無い場合は作成する。
	Merge(ctx context.Context, collection, id, key string, value json.RawMessage) error
}

// MemoryStore はプロセス内のマップに保存するStore。
// テストとローカル実行で使用する。
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]map[string]json.RawMessage
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs: make(map[string]map[string]map[string]json.RawMessage),
	}
}

// Get はフィールドの値のコピーを返す。
func (s *MemoryStore) Get(ctx context.Context, collection, id, key string) (json.RawMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.docs[collection][id]
	if !ok {
		return nil, nil
	}
	v, ok := doc[key]
	if !ok {
		return nil, nil
	}
	return append(json.RawMessage(nil), v...), nil
}

// Merge はフィールドを置き換える。
func (s *MemoryStore) Merge(ctx context.Context, collection, id, key string, value json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	coll, ok := s.docs[collection]
	if !ok {
		coll = make(map[string]map[string]json.RawMessage)
		s.docs[collection] = coll
	}
	doc, ok := coll[id]
	if !ok {
		doc = make(map[string]json.RawMessage)
		coll[id] = doc
	}
	doc[key] = append(json.RawMessage(nil), value...)
	return nil
}

// compile-time interface check
var _ Store = (*MemoryStore)(nil)
