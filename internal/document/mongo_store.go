package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoStore はMongoDBにドキュメントを保存するStore。
// コレクション名はKind.Collection()、_idはドキュメントIDをそのまま使う。
type MongoStore struct {
	db *mongo.Database
}

// NewMongoStore はMongoStoreを生成する。
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// Get はフィールドだけを射影して読み出し、JSONに変換して返す。
func (s *MongoStore) Get(ctx context.Context, collection, id, key string) (json.RawMessage, error) {
	opts := options.FindOne().SetProjection(bson.D{{Key: key, Value: 1}})

	raw, err := s.db.Collection(collection).FindOne(ctx, bson.D{{Key: "_id", Value: id}}, opts).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document field: %w", err)
	}

	val, err := raw.LookupErr(key)
	if err != nil {
		// フィールドが存在しない
		return nil, nil
	}

	return bsonValueToJSON(val)
}

// Merge は$setでフィールドを置き換える。ドキュメントが無い場合はupsertで作成する。
func (s *MongoStore) Merge(ctx context.Context, collection, id, key string, value json.RawMessage) error {
	v, err := jsonToBSONValue(value)
	if err != nil {
		return err
	}

	_, err = s.db.Collection(collection).UpdateOne(ctx,
		bson.D{{Key: "_id", Value: id}},
		bson.D{{Key: "$set", Value: bson.D{{Key: key, Value: v}}}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to merge document field: %w", err)
	}
	return nil
}

// jsonToBSONValue はJSON値をBSON値に変換する。
// Extended JSONはトップレベルにドキュメントを要求するため、{"v": ...}で包んで変換する。
func jsonToBSONValue(value json.RawMessage) (interface{}, error) {
	wrapped := append(append([]byte(`{"v":`), value...), '}')

	var doc bson.D
	if err := bson.UnmarshalExtJSON(wrapped, false, &doc); err != nil {
		return nil, fmt.Errorf("failed to convert JSON to BSON: %w", err)
	}
	if len(doc) != 1 {
		return nil, fmt.Errorf("unexpected BSON document length: %d", len(doc))
	}
	return doc[0].Value, nil
}

// bsonValueToJSON はBSON値をrelaxed Extended JSONに変換する。
func bsonValueToJSON(val bson.RawValue) (json.RawMessage, error) {
	out, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: val}}, false, false)
	if err != nil {
		return nil, fmt.Errorf("failed to convert BSON to JSON: %w", err)
	}

	var wrapped struct {
		V json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(out, &wrapped); err != nil {
		return nil, fmt.Errorf("failed to unwrap JSON value: %w", err)
	}
	return wrapped.V, nil
}

// compile-time interface check
var _ Store = (*MongoStore)(nil)

// IDsWithEntries は key.subkey が空でないドキュメントの_idだけを射影して返す。
func (s *MongoStore) IDsWithEntries(ctx context.Context, collection, key, subkey string) ([]string, error) {
	path := key + "." + subkey
	filter := bson.D{{Key: path, Value: bson.D{
		{Key: "$type", Value: "object"},
		{Key: "$ne", Value: bson.D{}},
	}}}
	opts := options.Find().
		SetProjection(bson.D{{Key: "_id", Value: 1}}).
		SetSort(bson.D{{Key: "_id", Value: 1}})

	cur, err := s.db.Collection(collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to scan documents: %w", err)
	}

	var docs []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode document ids: %w", err)
	}

	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}
