package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis stores each document as a JSON string and keeps a per-collection sorted
// set of ids scored by creation time. String values of indexed fields are also
// tracked in per-value sets, which lets Count answer equality filters on those
// fields without loading documents.
type Redis struct {
	rdb     *redis.Client
	indexed map[string]bool
	clock
}

type redisDoc struct {
	Fields    Fields    `json:"fields"`
	CreatedAt time.Time `json:"createdAt"`
}

func NewRedis(rdb *redis.Client, indexed ...string) *Redis {
	s := &Redis{
		rdb:     rdb,
		indexed: make(map[string]bool, len(indexed)),
		clock:   clock{now: time.Now, step: time.Microsecond},
	}
	for _, field := range indexed {
		s.indexed[field] = true
	}
	return s
}

func (s *Redis) Insert(ctx context.Context, collection string, fields Fields) (Document, error) {
	doc := Document{
		Ref:       Ref{Collection: collection, ID: newID()},
		Fields:    fields,
		CreatedAt: s.stamp(),
	}
	if err := s.write(ctx, doc, nil); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Redis) Put(ctx context.Context, ref Ref, fields Fields) (Document, error) {
	doc := Document{Ref: ref, Fields: fields, CreatedAt: s.stamp()}
	var prev *Document
	existing, err := s.Get(ctx, ref)
	switch {
	case err == nil:
		doc.CreatedAt = existing.CreatedAt
		prev = &existing
	case !errors.Is(err, ErrNotFound):
		return Document{}, err
	}
	if err := s.write(ctx, doc, prev); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Redis) Get(ctx context.Context, ref Ref) (Document, error) {
	raw, err := s.rdb.Get(ctx, docKey(ref)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	var stored redisDoc
	if err := json.Unmarshal(raw, &stored); err != nil {
		return Document{}, err
	}
	return Document{Ref: ref, Fields: stored.Fields, CreatedAt: stored.CreatedAt}, nil
}

func (s *Redis) Query(ctx context.Context, q Query) iter.Seq2[Document, error] {
	return singleUse(func(yield func(Document, error) bool) {
		var ids []string
		var err error
		if q.Order == OrderNewest {
			ids, err = s.rdb.ZRevRange(ctx, indexKey(q.Collection), 0, -1).Result()
		} else {
			ids, err = s.rdb.ZRange(ctx, indexKey(q.Collection), 0, -1).Result()
		}
		if err != nil {
			yield(Document{}, err)
			return
		}

		found := 0
		for _, id := range ids {
			doc, err := s.Get(ctx, Ref{Collection: q.Collection, ID: id})
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				yield(Document{}, err)
				return
			}
			if !matches(doc.Fields, q.Where) {
				continue
			}
			if !yield(doc, nil) {
				return
			}
			found++
			if q.Limit > 0 && found >= q.Limit {
				return
			}
		}
	})
}

func (s *Redis) Count(ctx context.Context, q Query) (int, error) {
	keys, ok := s.filterKeys(q)
	if !ok {
		docs, err := Collect(s.Query(ctx, q))
		if err != nil {
			return 0, err
		}
		return len(docs), nil
	}

	var n int64
	var err error
	switch len(keys) {
	case 0:
		n, err = s.rdb.ZCard(ctx, indexKey(q.Collection)).Result()
	case 1:
		n, err = s.rdb.SCard(ctx, keys[0]).Result()
	default:
		var ids []string
		ids, err = s.rdb.SInter(ctx, keys...).Result()
		n = int64(len(ids))
	}
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *Redis) Delete(ctx context.Context, ref Ref) error {
	existing, err := s.Get(ctx, ref)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, docKey(ref))
		pipe.ZRem(ctx, indexKey(ref.Collection), ref.ID)
		for _, key := range s.fieldKeys(ref.Collection, existing.Fields) {
			pipe.SRem(ctx, key, ref.ID)
		}
		return nil
	})
	return err
}

// write stores doc and moves its field index entries off prev, when given.
func (s *Redis) write(ctx context.Context, doc Document, prev *Document) error {
	payload, err := json.Marshal(redisDoc{Fields: doc.Fields, CreatedAt: doc.CreatedAt})
	if err != nil {
		return err
	}
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if prev != nil {
			for _, key := range s.fieldKeys(prev.Collection, prev.Fields) {
				pipe.SRem(ctx, key, prev.ID)
			}
		}
		pipe.Set(ctx, docKey(doc.Ref), payload, 0)
		pipe.ZAdd(ctx, indexKey(doc.Collection), redis.Z{
			Score:  float64(doc.CreatedAt.UnixMicro()),
			Member: doc.ID,
		})
		for _, key := range s.fieldKeys(doc.Collection, doc.Fields) {
			pipe.SAdd(ctx, key, doc.ID)
		}
		return nil
	})
	return err
}

func (s *Redis) fieldKeys(collection string, fields Fields) []string {
	var keys []string
	for field, v := range fields {
		if str, ok := v.(string); ok && s.indexed[field] {
			keys = append(keys, fieldKey(collection, field, str))
		}
	}
	return keys
}

// filterKeys maps q's filters onto field index sets. ok is false when a filter
// names an unindexed field or a non-string value.
func (s *Redis) filterKeys(q Query) (keys []string, ok bool) {
	for _, f := range q.Where {
		str, isString := f.Value.(string)
		if !isString || !s.indexed[f.Field] {
			return nil, false
		}
		keys = append(keys, fieldKey(q.Collection, f.Field, str))
	}
	return keys, true
}

func docKey(ref Ref) string {
	return "doc:" + ref.Collection + ":" + ref.ID
}

func indexKey(collection string) string {
	return "docs:" + collection
}

func fieldKey(collection, field, value string) string {
	return "idx:" + collection + ":" + field + ":" + value
}
