package docstore

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const mongoCreatedAt = "createdAt"

// Mongo maps each collection onto a Mongo collection with _id as the document id.
// BSON dates keep milliseconds, so stamps advance in millisecond steps.
type Mongo struct {
	db *mongo.Database
	clock
}

func NewMongo(database *mongo.Database) *Mongo {
	return &Mongo{db: database, clock: clock{now: time.Now, step: time.Millisecond}}
}

func (s *Mongo) Insert(ctx context.Context, collection string, fields Fields) (Document, error) {
	doc := Document{
		Ref:       Ref{Collection: collection, ID: newID()},
		Fields:    fields,
		CreatedAt: s.stamp(),
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, toBSON(doc)); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Mongo) Put(ctx context.Context, ref Ref, fields Fields) (Document, error) {
	doc := Document{Ref: ref, Fields: fields, CreatedAt: s.stamp()}
	existing, err := s.Get(ctx, ref)
	switch {
	case err == nil:
		doc.CreatedAt = existing.CreatedAt
	case !errors.Is(err, ErrNotFound):
		return Document{}, err
	}
	_, err = s.db.Collection(ref.Collection).ReplaceOne(ctx,
		bson.D{{Key: "_id", Value: ref.ID}},
		toBSON(doc),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Mongo) Get(ctx context.Context, ref Ref) (Document, error) {
	var raw bson.M
	err := s.db.Collection(ref.Collection).FindOne(ctx, bson.D{{Key: "_id", Value: ref.ID}}).Decode(&raw)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	return fromBSON(ref.Collection, raw)
}

func (s *Mongo) Query(ctx context.Context, q Query) iter.Seq2[Document, error] {
	return singleUse(func(yield func(Document, error) bool) {
		opts := options.Find()
		if sort := mongoSort(q.Order); sort != nil {
			opts.SetSort(sort)
		}
		if q.Limit > 0 {
			opts.SetLimit(int64(q.Limit))
		}

		cursor, err := s.db.Collection(q.Collection).Find(ctx, mongoFilter(q.Where), opts)
		if err != nil {
			yield(Document{}, err)
			return
		}
		defer cursor.Close(ctx)

		for cursor.Next(ctx) {
			var raw bson.M
			if err := cursor.Decode(&raw); err != nil {
				yield(Document{}, err)
				return
			}
			doc, err := fromBSON(q.Collection, raw)
			if err != nil {
				yield(Document{}, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := cursor.Err(); err != nil {
			yield(Document{}, err)
		}
	})
}

func (s *Mongo) Count(ctx context.Context, q Query) (int, error) {
	n, err := s.db.Collection(q.Collection).CountDocuments(ctx, mongoFilter(q.Where))
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Mongo) Delete(ctx context.Context, ref Ref) error {
	_, err := s.db.Collection(ref.Collection).DeleteOne(ctx, bson.D{{Key: "_id", Value: ref.ID}})
	return err
}

func mongoFilter(where []Filter) bson.D {
	filter := bson.D{}
	for _, f := range where {
		filter = append(filter, bson.E{Key: f.Field, Value: f.Value})
	}
	return filter
}

func mongoSort(order Order) bson.D {
	switch order {
	case OrderNewest:
		return bson.D{{Key: mongoCreatedAt, Value: -1}, {Key: "_id", Value: 1}}
	case OrderOldest:
		return bson.D{{Key: mongoCreatedAt, Value: 1}, {Key: "_id", Value: 1}}
	default:
		return nil
	}
}

func toBSON(doc Document) bson.M {
	m := bson.M{}
	for k, v := range doc.Fields {
		m[k] = v
	}
	m["_id"] = doc.ID
	m[mongoCreatedAt] = doc.CreatedAt
	return m
}

func fromBSON(collection string, raw bson.M) (Document, error) {
	id, ok := raw["_id"].(string)
	if !ok {
		return Document{}, fmt.Errorf("docstore: %s document has non-string _id %v", collection, raw["_id"])
	}
	doc := Document{Ref: Ref{Collection: collection, ID: id}, Fields: Fields{}}
	switch ts := raw[mongoCreatedAt].(type) {
	case bson.DateTime:
		doc.CreatedAt = ts.Time().UTC()
	case time.Time:
		doc.CreatedAt = ts.UTC()
	}
	for k, v := range raw {
		if k == "_id" || k == mongoCreatedAt {
			continue
		}
		doc.Fields[k] = v
	}
	return doc, nil
}
