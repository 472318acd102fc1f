// Package docstore is a schemaless document store over named collections.
//
// Documents are created once and read back by id or by field equality. Writes are
// atomic per document; nothing spans more than one call.
package docstore

import (
	"context"
	"errors"
	"iter"
	"reflect"
	"sync/atomic"
	"time"
)

var (
	ErrNotFound         = errors.New("docstore: document not found")
	ErrSequenceConsumed = errors.New("docstore: query results already consumed")
)

// Fields holds a document's attributes.
type Fields map[string]any

// String returns the string stored under key, or "".
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

type Ref struct {
	Collection string
	ID         string
}

type Document struct {
	Ref
	Fields    Fields
	CreatedAt time.Time
}

type Filter struct {
	Field string
	Value any
}

type Order int

const (
	OrderNone Order = iota
	OrderNewest
	OrderOldest
)

type Query struct {
	Collection string
	Where      []Filter
	Order      Order
	Limit      int
}

// ByField matches documents whose field equals value.
func ByField(collection, field string, value any) Query {
	return Query{Collection: collection, Where: []Filter{{Field: field, Value: value}}}
}

// ByFields matches documents satisfying every filter.
func ByFields(collection string, filters ...Filter) Query {
	return Query{Collection: collection, Where: filters}
}

func (q Query) Newest() Query {
	q.Order = OrderNewest
	return q
}

func (q Query) Oldest() Query {
	q.Order = OrderOldest
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

// Store is implemented by every backend.
type Store interface {
	// Insert creates a document with a store-assigned id and timestamp.
	Insert(ctx context.Context, collection string, fields Fields) (Document, error)
	// Put writes the document at ref, keeping createdAt if it already exists.
	Put(ctx context.Context, ref Ref, fields Fields) (Document, error)
	Get(ctx context.Context, ref Ref) (Document, error)
	// Query streams matches. The sequence can be ranged over once.
	Query(ctx context.Context, q Query) iter.Seq2[Document, error]
	Count(ctx context.Context, q Query) (int, error)
	Delete(ctx context.Context, ref Ref) error
}

// Collect drains seq into a slice.
func Collect(seq iter.Seq2[Document, error]) ([]Document, error) {
	var docs []Document
	for doc, err := range seq {
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// First returns the first match of q, if any.
func First(ctx context.Context, s Store, q Query) (Document, bool, error) {
	for doc, err := range s.Query(ctx, q.Take(1)) {
		if err != nil {
			return Document{}, false, err
		}
		return doc, true, nil
	}
	return Document{}, false, nil
}

func singleUse(seq iter.Seq2[Document, error]) iter.Seq2[Document, error] {
	var used atomic.Bool
	return func(yield func(Document, error) bool) {
		if used.Swap(true) {
			yield(Document{}, ErrSequenceConsumed)
			return
		}
		seq(yield)
	}
}

func failed(err error) iter.Seq2[Document, error] {
	return func(yield func(Document, error) bool) {
		yield(Document{}, err)
	}
}

// matches reports whether fields satisfies every filter of q.
func matches(fields Fields, where []Filter) bool {
	for _, f := range where {
		v, ok := fields[f.Field]
		if !ok || !reflect.DeepEqual(v, f.Value) {
			return false
		}
	}
	return true
}

func filterMap(where []Filter) map[string]any {
	m := make(map[string]any, len(where))
	for _, f := range where {
		m[f.Field] = f.Value
	}
	return m
}
