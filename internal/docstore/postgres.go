package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"iter"
	"strconv"
	"strings"

	"backend-snapshare/internal/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var newID = uuid.NewString

// Postgres keeps every collection in the documents table as jsonb.
type Postgres struct {
	db db.Querier
}

func NewPostgres(q db.Querier) *Postgres {
	return &Postgres{db: q}
}

func (s *Postgres) Insert(ctx context.Context, collection string, fields Fields) (Document, error) {
	doc := Document{Ref: Ref{Collection: collection, ID: newID()}, Fields: fields}
	data, err := json.Marshal(fields)
	if err != nil {
		return Document{}, err
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1,$2,$3)
		RETURNING created_at
	`, collection, doc.ID, string(data))
	if err := row.Scan(&doc.CreatedAt); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Postgres) Put(ctx context.Context, ref Ref, fields Fields) (Document, error) {
	doc := Document{Ref: ref, Fields: fields}
	data, err := json.Marshal(fields)
	if err != nil {
		return Document{}, err
	}
	row := s.db.QueryRow(ctx, `
		INSERT INTO documents (collection, id, data)
		VALUES ($1,$2,$3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data
		RETURNING created_at
	`, ref.Collection, ref.ID, string(data))
	if err := row.Scan(&doc.CreatedAt); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Postgres) Get(ctx context.Context, ref Ref) (Document, error) {
	row := s.db.QueryRow(ctx, `
		SELECT data, created_at
		FROM documents WHERE collection=$1 AND id=$2
	`, ref.Collection, ref.ID)

	doc := Document{Ref: ref}
	var data []byte
	if err := row.Scan(&data, &doc.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	if err := json.Unmarshal(data, &doc.Fields); err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (s *Postgres) Query(ctx context.Context, q Query) iter.Seq2[Document, error] {
	where, err := json.Marshal(filterMap(q.Where))
	if err != nil {
		return failed(err)
	}
	sql := selectSQL(q)

	return singleUse(func(yield func(Document, error) bool) {
		rows, err := s.db.Query(ctx, sql, q.Collection, string(where))
		if err != nil {
			yield(Document{}, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			doc := Document{Ref: Ref{Collection: q.Collection}}
			var data []byte
			if err := rows.Scan(&doc.ID, &data, &doc.CreatedAt); err != nil {
				yield(Document{}, err)
				return
			}
			if err := json.Unmarshal(data, &doc.Fields); err != nil {
				yield(Document{}, err)
				return
			}
			if !yield(doc, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Document{}, err)
		}
	})
}

func (s *Postgres) Count(ctx context.Context, q Query) (int, error) {
	where, err := json.Marshal(filterMap(q.Where))
	if err != nil {
		return 0, err
	}
	var n int
	row := s.db.QueryRow(ctx, `
		SELECT count(*)
		FROM documents WHERE collection=$1 AND data @> $2::jsonb
	`, q.Collection, string(where))
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Postgres) Delete(ctx context.Context, ref Ref) error {
	_, err := s.db.Exec(ctx, `DELETE FROM documents WHERE collection=$1 AND id=$2`, ref.Collection, ref.ID)
	return err
}

func selectSQL(q Query) string {
	var b strings.Builder
	b.WriteString(`
		SELECT id, data, created_at
		FROM documents WHERE collection=$1 AND data @> $2::jsonb`)
	switch q.Order {
	case OrderNewest:
		b.WriteString("\n\t\tORDER BY created_at DESC, id")
	case OrderOldest:
		b.WriteString("\n\t\tORDER BY created_at, id")
	}
	if q.Limit > 0 {
		b.WriteString("\n\t\tLIMIT " + strconv.Itoa(q.Limit))
	}
	return b.String()
}
