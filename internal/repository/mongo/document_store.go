package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/taskflow/taskflow/internal/domain"
	"github.com/taskflow/taskflow/internal/dualwrite"
	"github.com/taskflow/taskflow/internal/pkg/database"
	"github.com/taskflow/taskflow/internal/pkg/id"
	"github.com/taskflow/taskflow/internal/pkg/metrics"
	"github.com/taskflow/taskflow/internal/pkg/retry"
)

const scanBatchSize = 500

// DocumentStore is the primary store backed by MongoDB
type DocumentStore struct {
	db     *database.MongoDB
	logger *zap.Logger
}

// NewDocumentStore creates a new document store
func NewDocumentStore(db *database.MongoDB, logger *zap.Logger) *DocumentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStore{db: db, logger: logger.Named("mongo")}
}

var _ dualwrite.PrimaryStore = (*DocumentStore)(nil)

// Insert stores doc with _id set to the shared id. A duplicate _id is
// treated as success so retried creates are idempotent.
func (s *DocumentStore) Insert(ctx context.Context, collection, sharedID string, doc domain.Document) (err error) {
	defer observe("insert", time.Now(), &err)

	body := toBSON(doc)
	body[domain.PrimaryIDField] = sharedID

	err = s.db.WithTransaction(ctx, func(ctx context.Context) error {
		_, err := s.db.Collection(collection).InsertOne(ctx, body)
		return err
	})
	if mongo.IsDuplicateKeyError(err) {
		s.logger.Debug("document already exists",
			zap.String("collection", collection),
			zap.String("shared_id", sharedID),
		)
		return nil
	}
	return classify(err)
}

// Update sets the given fields on the document
func (s *DocumentStore) Update(ctx context.Context, collection, sharedID string, doc domain.Document) (err error) {
	defer observe("update", time.Now(), &err)

	set := toBSON(doc)
	delete(set, domain.PrimaryIDField)
	if len(set) == 0 {
		return nil
	}

	var matched int64
	err = s.db.WithTransaction(ctx, func(ctx context.Context) error {
		res, err := s.db.Collection(collection).UpdateOne(ctx, idFilter(sharedID), bson.M{"$set": set})
		if err != nil {
			return err
		}
		matched = res.MatchedCount
		return nil
	})
	if err != nil {
		return classify(err)
	}
	if matched == 0 {
		return dualwrite.ErrNotFound
	}
	return nil
}

// Delete removes the document
func (s *DocumentStore) Delete(ctx context.Context, collection, sharedID string) (err error) {
	defer observe("delete", time.Now(), &err)

	var deleted int64
	err = s.db.WithTransaction(ctx, func(ctx context.Context) error {
		res, err := s.db.Collection(collection).DeleteOne(ctx, idFilter(sharedID))
		if err != nil {
			return err
		}
		deleted = res.DeletedCount
		return nil
	})
	if err != nil {
		return classify(err)
	}
	if deleted == 0 {
		return dualwrite.ErrNotFound
	}
	return nil
}

// SoftDelete sets the flag field to its deleted value and stamps the
// flag's update timestamp key
func (s *DocumentStore) SoftDelete(ctx context.Context, collection, sharedID string, flag dualwrite.Flag) error {
	doc := domain.Document{flag.Name: flag.Value}
	if flag.Touch != "" {
		doc[flag.Touch] = time.Now().UTC()
	}
	return s.Update(ctx, collection, sharedID, doc)
}

// Get returns the document with driver types normalized
func (s *DocumentStore) Get(ctx context.Context, collection, sharedID string) (doc domain.Document, err error) {
	defer observe("get", time.Now(), &err)

	var raw bson.M
	err = s.db.Collection(collection).FindOne(ctx, idFilter(sharedID)).Decode(&raw)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, dualwrite.ErrNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return normalizeDocument(raw), nil
}

// Count counts documents matching the filter
func (s *DocumentStore) Count(ctx context.Context, collection string, filter dualwrite.ScanFilter) (n int64, err error) {
	defer observe("count", time.Now(), &err)

	n, err = s.db.Collection(collection).CountDocuments(ctx, scanFilter(filter))
	if err != nil {
		return 0, classify(err)
	}
	return n, nil
}

// Scan streams matching documents to fn in _id order
func (s *DocumentStore) Scan(ctx context.Context, collection string, filter dualwrite.ScanFilter, fn func(domain.Document) error) (err error) {
	defer observe("scan", time.Now(), &err)

	opts := options.Find().
		SetBatchSize(scanBatchSize).
		SetSort(bson.D{{Key: domain.PrimaryIDField, Value: 1}})

	cursor, err := s.db.Collection(collection).Find(ctx, scanFilter(filter), opts)
	if err != nil {
		return classify(err)
	}
	defer cursor.Close(ctx)

	for cursor.Next(ctx) {
		var raw bson.M
		if err := cursor.Decode(&raw); err != nil {
			return fmt.Errorf("decode %s document: %w", collection, err)
		}
		if err := fn(normalizeDocument(raw)); err != nil {
			return err
		}
	}
	return cursor.Err()
}

// idFilter matches the shared id. Legacy documents keyed by an ObjectID
// are matched by their hex form as well.
func idFilter(sharedID string) bson.M {
	if id.IsObjectIDHex(sharedID) {
		if oid, err := primitive.ObjectIDFromHex(sharedID); err == nil {
			return bson.M{domain.PrimaryIDField: bson.M{"$in": bson.A{oid, sharedID}}}
		}
	}
	return bson.M{domain.PrimaryIDField: sharedID}
}

// scanFilter excludes soft-deleted documents. Documents without the flag
// field are live.
func scanFilter(filter dualwrite.ScanFilter) bson.M {
	if filter.Exclude.IsZero() {
		return bson.M{}
	}
	return bson.M{filter.Exclude.Name: bson.M{"$ne": filter.Exclude.Value}}
}

func toBSON(doc domain.Document) bson.M {
	out := make(bson.M, len(doc)+1)
	for k, v := range doc {
		out[k] = v
	}
	return out
}

// normalizeDocument converts driver types to plain Go values
func normalizeDocument(raw bson.M) domain.Document {
	doc := make(domain.Document, len(raw))
	for k, v := range raw {
		doc[k] = normalizeValue(v)
	}
	return doc
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case primitive.DateTime:
		return val.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(val.T), 0).UTC()
	case primitive.ObjectID:
		return val.Hex()
	case primitive.A:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case bson.M:
		return map[string]any(normalizeDocument(val))
	case bson.D:
		out := make(map[string]any, len(val))
		for _, e := range val {
			out[e.Key] = normalizeValue(e.Value)
		}
		return out
	case primitive.Decimal128:
		return val.String()
	}
	return v
}

// classify marks errors that retrying cannot fix as permanent
func classify(err error) error {
	if err == nil {
		return nil
	}
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			// 121: document failed validation
			if e.Code == 121 {
				return retry.Permanent(err)
			}
		}
	}
	if mongo.IsDuplicateKeyError(err) {
		return retry.Permanent(err)
	}
	return err
}

func observe(op string, start time.Time, errp *error) {
	metrics.RecordDBQuery("mongo", op, time.Since(start))
	if *errp != nil && !errors.Is(*errp, dualwrite.ErrNotFound) {
		metrics.RecordDBError("mongo", op)
	}
}
