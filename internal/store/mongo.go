package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore keeps each collection path in its own MongoDB collection, with
// "/" replaced by ".". Documents are stored as {_id, fields, createdAt, updatedAt}.
// Change streams require a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	now    func() time.Time
}

func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, db: client.Database(database), now: time.Now}, nil
}

func (s *MongoStore) collection(path string) *mongo.Collection {
	return s.db.Collection(strings.ReplaceAll(strings.Trim(path, "/"), "/", "."))
}

func (s *MongoStore) List(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := validCollection(collection); err != nil {
		return nil, err
	}
	collection = strings.Trim(collection, "/")

	// Documents without the order field sort last in either direction.
	pipeline := mongo.Pipeline{}
	if q.OrderBy != "" {
		dir := 1
		if q.Descending {
			dir = -1
		}
		field := "$fields." + q.OrderBy
		pipeline = append(pipeline,
			bson.D{{Key: "$addFields", Value: bson.M{
				"_missing": bson.M{"$cond": bson.A{bson.M{"$in": bson.A{bson.M{"$type": field}, bson.A{"missing", "null"}}}, 1, 0}},
			}}},
			bson.D{{Key: "$sort", Value: bson.D{{Key: "_missing", Value: 1}, {Key: "fields." + q.OrderBy, Value: dir}, {Key: "_id", Value: 1}}}},
		)
	} else {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}})
	}
	if q.Limit > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: int64(q.Limit)}})
	}

	cursor, err := s.collection(collection).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	defer cursor.Close(ctx)

	docs := make([]Document, 0)
	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return nil, fmt.Errorf("decode %s: %w", collection, err)
		}
		docs = append(docs, fromMongo(collection, raw))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", collection, err)
	}
	return docs, nil
}

func (s *MongoStore) Get(ctx context.Context, path string) (Document, error) {
	collection, id, err := SplitPath(path)
	if err != nil {
		return Document{}, err
	}
	var raw bson.M
	err = s.collection(collection).FindOne(ctx, bson.M{"_id": id}).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Document{}, fmt.Errorf("get %s: %w", path, ErrNotFound)
	}
	if err != nil {
		return Document{}, fmt.Errorf("get %s: %w", path, err)
	}
	return fromMongo(collection, raw), nil
}

func (s *MongoStore) Create(ctx context.Context, collection string, fields Fields) (string, error) {
	if err := validCollection(collection); err != nil {
		return "", err
	}
	id := uuid.NewString()
	if err := s.Set(ctx, Doc(strings.Trim(collection, "/"), id), fields, false); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MongoStore) Set(ctx context.Context, path string, fields Fields, merge bool) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	now := s.now()
	plain, appends := splitTransforms(fields, now)

	var update bson.M
	if merge {
		update = mongoUpdate(plain, appends, now)
	} else {
		whole := bson.M{}
		for key, value := range plain {
			whole[key] = value
		}
		for key, elems := range appends {
			whole[key] = elems
		}
		update = bson.M{"$set": bson.M{"fields": whole, "updatedAt": now.UTC()}}
	}
	update["$setOnInsert"] = bson.M{"createdAt": now.UTC()}

	_, err = s.collection(collection).UpdateOne(ctx, bson.M{"_id": id}, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

func (s *MongoStore) Update(ctx context.Context, path string, fields Fields) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	now := s.now()
	plain, appends := splitTransforms(fields, now)

	result, err := s.collection(collection).UpdateOne(ctx, bson.M{"_id": id}, mongoUpdate(plain, appends, now))
	if err != nil {
		return fmt.Errorf("update %s: %w", path, err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("update %s: %w", path, ErrNotFound)
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, path, field string, elem any) error {
	return s.Update(ctx, path, Fields{field: ArrayAppend(elem)})
}

func (s *MongoStore) Delete(ctx context.Context, path string) error {
	collection, id, err := SplitPath(path)
	if err != nil {
		return err
	}
	if _, err := s.collection(collection).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// DeleteBatch removes all paths inside one transaction.
func (s *MongoStore) DeleteBatch(ctx context.Context, paths []string) error {
	if len(paths) > MaxBatchSize {
		return fmt.Errorf("delete batch of %d exceeds %d documents", len(paths), MaxBatchSize)
	}
	byCollection := map[string][]string{}
	for _, path := range paths {
		collection, id, err := SplitPath(path)
		if err != nil {
			return err
		}
		byCollection[collection] = append(byCollection[collection], id)
	}
	if len(byCollection) == 0 {
		return nil
	}

	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		for collection, ids := range byCollection {
			if _, err := s.collection(collection).DeleteMany(sc, bson.M{"_id": bson.M{"$in": ids}}); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("delete batch: %w", err)
	}
	return nil
}

// Subscribe opens a change stream on the collection and re-reads it on every
// event. A broken stream is reopened with backoff after reporting to onError.
func (s *MongoStore) Subscribe(collection string, q Query, onChange func([]Document), onError func(error)) Subscription {
	ctx, cancel := context.WithCancel(context.Background())
	d := newDelivery(onChange, onError)
	sub := &cancelSubscription{cancel: cancel, delivery: d}

	if err := validCollection(collection); err != nil {
		go d.fail(err)
		return sub
	}

	go func() {
		backoff := time.Second
		for {
			err := s.watch(ctx, strings.Trim(collection, "/"), q, d.change)
			if ctx.Err() != nil {
				return
			}
			d.fail(err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
		}
	}()
	return sub
}

func (s *MongoStore) watch(ctx context.Context, collection string, q Query, onChange func([]Document)) error {
	stream, err := s.collection(collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return fmt.Errorf("watch %s: %w", collection, err)
	}
	defer stream.Close(context.Background())

	deliver := func() error {
		docs, err := s.List(ctx, collection, q)
		if err != nil {
			return err
		}
		if ctx.Err() == nil && onChange != nil {
			onChange(docs)
		}
		return nil
	}
	if err := deliver(); err != nil {
		return err
	}
	for stream.Next(ctx) {
		if err := deliver(); err != nil {
			return err
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("watch %s: %w", collection, err)
	}
	return fmt.Errorf("watch %s: stream closed", collection)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func mongoUpdate(plain Fields, appends map[string][]any, now time.Time) bson.M {
	set := bson.M{"updatedAt": now.UTC()}
	for key, value := range plain {
		set["fields."+key] = value
	}
	update := bson.M{"$set": set}
	if len(appends) > 0 {
		push := bson.M{}
		for key, elems := range appends {
			push["fields."+key] = bson.M{"$each": elems}
		}
		update["$push"] = push
	}
	return update
}

func fromMongo(collection string, raw bson.M) Document {
	id := fmt.Sprint(raw["_id"])
	doc := Document{ID: id, Path: Doc(collection, id), Fields: Fields{}}
	if fields, ok := fromBSON(raw["fields"]).(map[string]any); ok {
		doc.Fields = fields
	}
	if created, ok := raw["createdAt"].(primitive.DateTime); ok {
		doc.CreatedAt = created.Time()
	}
	if updated, ok := raw["updatedAt"].(primitive.DateTime); ok {
		doc.UpdatedAt = updated.Time()
	}
	return doc
}

// fromBSON converts decoded BSON values into plain maps and slices.
func fromBSON(value any) any {
	switch v := value.(type) {
	case bson.M:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = fromBSON(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = fromBSON(item)
		}
		return out
	case bson.D:
		out := make(map[string]any, len(v))
		for _, elem := range v {
			out[elem.Key] = fromBSON(elem.Value)
		}
		return out
	case bson.A:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromBSON(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = fromBSON(item)
		}
		return out
	case int32:
		return int64(v)
	case primitive.DateTime:
		return v.Time().UTC().Format(TimeLayout)
	default:
		return v
	}
}
