package docstore

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const parentField = "_parent"

// MongoStore maps every collection shape onto one Mongo collection
// ("sessions", "sessions.interactions"). Subcollection documents carry the
// path of their parent in _parent. Server timestamps are written with $$NOW.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(client *mongo.Client, database string) *MongoStore {
	return &MongoStore{client: client, db: client.Database(database)}
}

func (s *MongoStore) Add(ctx context.Context, collectionPath string, data Fields) (string, error) {
	segments, err := parseCollection(collectionPath)
	if err != nil {
		return "", err
	}

	parent := parentDoc(segments)
	if parent != "" {
		exists, err := s.exists(ctx, parent)
		if err != nil {
			return "", err
		}
		if !exists {
			return "", ErrParentNotFound
		}
	}

	oid := primitive.NewObjectID()
	_, err = s.db.Collection(shape(segments)).UpdateOne(ctx,
		bson.M{"_id": oid},
		setPipeline(data, parent),
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert document: %w", err)
	}
	return oid.Hex(), nil
}

func (s *MongoStore) Update(ctx context.Context, docPath string, fields Fields) error {
	segments, err := parseDoc(docPath)
	if err != nil {
		return err
	}

	coll, filter, ok := s.locate(segments)
	if !ok {
		return ErrNotFound
	}

	res, err := coll.UpdateOne(ctx, filter, setPipeline(fields, ""))
	if err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, docPath string) (*Document, error) {
	segments, err := parseDoc(docPath)
	if err != nil {
		return nil, err
	}

	coll, filter, ok := s.locate(segments)
	if !ok {
		return nil, ErrNotFound
	}

	raw, err := coll.FindOne(ctx, filter).DecodeBytes()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return bsonDocument(docPath, segments[len(segments)-1], raw), nil
}

func (s *MongoStore) List(ctx context.Context, collectionPath string) ([]*Document, error) {
	segments, err := parseCollection(collectionPath)
	if err != nil {
		return nil, err
	}

	cursor, err := s.db.Collection(shape(segments)).Find(ctx,
		bson.M{parentField: parentDoc(segments)},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []*Document
	for cursor.Next(ctx) {
		raw := make(bson.Raw, len(cursor.Current))
		copy(raw, cursor.Current)

		oid, ok := raw.Lookup("_id").ObjectIDOK()
		if !ok {
			continue
		}
		id := oid.Hex()
		docs = append(docs, bsonDocument(collectionPath+"/"+id, id, raw))
	}
	return docs, cursor.Err()
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) exists(ctx context.Context, docPath string) (bool, error) {
	segments, err := parseDoc(docPath)
	if err != nil {
		return false, err
	}
	coll, filter, ok := s.locate(segments)
	if !ok {
		return false, nil
	}
	n, err := coll.CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// locate resolves a document path into its Mongo collection and filter.
// ok is false when the id cannot be a Mongo ObjectID.
func (s *MongoStore) locate(docSegments []string) (*mongo.Collection, bson.M, bool) {
	collSegments := docSegments[:len(docSegments)-1]
	oid, err := primitive.ObjectIDFromHex(docSegments[len(docSegments)-1])
	if err != nil {
		return nil, nil, false
	}
	filter := bson.M{"_id": oid, parentField: parentDoc(collSegments)}
	return s.db.Collection(shape(collSegments)), filter, true
}

// setPipeline builds an update pipeline so that ServerTimestamp fields take
// the server's $$NOW. Plain values are wrapped in $literal so strings that
// start with "$" are never read as expressions.
func setPipeline(fields Fields, parent string) mongo.Pipeline {
	set := bson.M{}
	for k, v := range fields {
		if IsServerTimestamp(v) {
			set[k] = "$$NOW"
			continue
		}
		set[k] = bson.M{"$literal": v}
	}
	if parent != "" {
		set[parentField] = bson.M{"$literal": parent}
	} else {
		// keep the stored parent; new top-level documents get ""
		set[parentField] = bson.M{"$ifNull": bson.A{"$" + parentField, ""}}
	}
	return mongo.Pipeline{bson.D{{Key: "$set", Value: set}}}
}

func bsonDocument(path, id string, raw bson.Raw) *Document {
	return &Document{
		ID:   id,
		Path: path,
		decode: func(out interface{}) error {
			return bson.Unmarshal(raw, out)
		},
	}
}
