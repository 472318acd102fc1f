package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"backend-snapshare/internal/config"
	"backend-snapshare/internal/db"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.mongodb.org/mongo-driver/v2/bson"
)

func TestMongoFilter(t *testing.T) {
	filter := mongoFilter([]Filter{{Field: "followerId", Value: "a"}, {Field: "followedId", Value: "b"}})
	if len(filter) != 2 || filter[0].Key != "followerId" || filter[1].Value != "b" {
		t.Fatalf("unexpected filter: %v", filter)
	}
	if len(mongoFilter(nil)) != 0 {
		t.Fatalf("expected empty filter")
	}
}

func TestMongoSort(t *testing.T) {
	if mongoSort(OrderNone) != nil {
		t.Fatalf("expected no sort")
	}
	newest := mongoSort(OrderNewest)
	if newest[0].Key != "createdAt" || newest[0].Value != -1 {
		t.Fatalf("unexpected newest sort: %v", newest)
	}
	oldest := mongoSort(OrderOldest)
	if oldest[0].Value != 1 {
		t.Fatalf("unexpected oldest sort: %v", oldest)
	}
}

func TestMongoDocumentRoundTrip(t *testing.T) {
	createdAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	doc := Document{
		Ref:       Ref{Collection: "posts", ID: "post-1"},
		Fields:    Fields{"caption": "hello"},
		CreatedAt: createdAt,
	}

	raw := toBSON(doc)
	if raw["_id"] != "post-1" || raw["caption"] != "hello" {
		t.Fatalf("unexpected bson: %v", raw)
	}

	raw["createdAt"] = bson.NewDateTimeFromTime(createdAt)
	back, err := fromBSON("posts", raw)
	if err != nil {
		t.Fatalf("from bson: %v", err)
	}
	if back.ID != "post-1" || back.Fields.String("caption") != "hello" || !back.CreatedAt.Equal(createdAt) {
		t.Fatalf("unexpected document: %+v", back)
	}
	if _, ok := back.Fields["_id"]; ok {
		t.Fatalf("_id should not leak into fields")
	}
}

func TestMongoFromBSONRejectsObjectID(t *testing.T) {
	if _, err := fromBSON("posts", bson.M{"_id": bson.NewObjectID()}); err == nil {
		t.Fatalf("expected error for non-string id")
	}
}

func newMongoStore(t *testing.T) *Mongo {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "mongo:7",
			ExposedPorts: []string{"27017/tcp"},
			WaitingFor:   wait.ForListeningPort("27017/tcp").WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start mongo container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "27017/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}

	database, err := db.ConnectMongo(config.Config{
		MongoURI:      fmt.Sprintf("mongodb://%s:%s", host, port.Port()),
		MongoDatabase: "docstore_test",
	})
	if err != nil {
		t.Fatalf("connect mongo: %v", err)
	}
	t.Cleanup(func() { _ = database.Client().Disconnect(context.Background()) })
	return NewMongo(database)
}

func TestMongoStore(t *testing.T) {
	store := newMongoStore(t)
	ctx := context.Background()

	t.Run("insert get delete", func(t *testing.T) {
		doc, err := store.Insert(ctx, "posts", Fields{"userId": "user-1", "caption": "hello"})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}
		got, err := store.Get(ctx, doc.Ref)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if got.Fields.String("caption") != "hello" || !got.CreatedAt.Equal(doc.CreatedAt) {
			t.Fatalf("unexpected document: %+v", got)
		}

		if err := store.Delete(ctx, doc.Ref); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, err := store.Get(ctx, doc.Ref); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected not found after delete, got %v", err)
		}
		if n, err := store.Count(ctx, Query{Collection: "posts"}); err != nil || n != 0 {
			t.Fatalf("expected empty collection, got %d %v", n, err)
		}
	})

	t.Run("put keeps createdAt", func(t *testing.T) {
		ref := Ref{Collection: "likes", ID: "edge-1"}
		first, err := store.Put(ctx, ref, Fields{"userId": "u", "postId": "p"})
		if err != nil {
			t.Fatalf("put: %v", err)
		}
		second, err := store.Put(ctx, ref, Fields{"userId": "u", "postId": "p"})
		if err != nil {
			t.Fatalf("put again: %v", err)
		}
		if !second.CreatedAt.Equal(first.CreatedAt) {
			t.Fatalf("expected createdAt preserved, got %v then %v", first.CreatedAt, second.CreatedAt)
		}
		n, err := store.Count(ctx, ByFields("likes", Filter{Field: "userId", Value: "u"}, Filter{Field: "postId", Value: "p"}))
		if err != nil || n != 1 {
			t.Fatalf("expected single edge, got %d %v", n, err)
		}
	})

	t.Run("query filter order limit", func(t *testing.T) {
		first, _ := store.Insert(ctx, "comments", Fields{"postId": "post-1", "content": "first"})
		_, _ = store.Insert(ctx, "comments", Fields{"postId": "post-2", "content": "other"})
		third, _ := store.Insert(ctx, "comments", Fields{"postId": "post-1", "content": "third"})

		newest, err := Collect(store.Query(ctx, ByField("comments", "postId", "post-1").Newest()))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(newest) != 2 || newest[0].ID != third.ID || newest[1].ID != first.ID {
			t.Fatalf("unexpected newest order: %+v", newest)
		}

		oldest, ok, err := First(ctx, store, ByField("comments", "postId", "post-1").Oldest())
		if err != nil || !ok || oldest.ID != first.ID {
			t.Fatalf("unexpected first: %+v %v %v", oldest, ok, err)
		}

		seq := store.Query(ctx, ByField("comments", "postId", "post-1"))
		if _, err := Collect(seq); err != nil {
			t.Fatalf("first range: %v", err)
		}
		if _, err := Collect(seq); !errors.Is(err, ErrSequenceConsumed) {
			t.Fatalf("expected consumed sequence, got %v", err)
		}
	})

	t.Run("same millisecond keeps insertion order", func(t *testing.T) {
		fixed := time.Now()
		store.mu.Lock()
		store.now = func() time.Time { return fixed }
		store.mu.Unlock()
		defer func() {
			store.mu.Lock()
			store.now = time.Now
			store.mu.Unlock()
		}()

		var ids []string
		for i := 0; i < 5; i++ {
			doc, err := store.Insert(ctx, "feed", Fields{"caption": fmt.Sprint(i)})
			if err != nil {
				t.Fatalf("insert %d: %v", i, err)
			}
			ids = append(ids, doc.ID)
		}

		docs, err := Collect(store.Query(ctx, Query{Collection: "feed"}.Newest()))
		if err != nil {
			t.Fatalf("query: %v", err)
		}
		if len(docs) != len(ids) {
			t.Fatalf("expected %d docs, got %d", len(ids), len(docs))
		}
		for i, doc := range docs {
			if want := ids[len(ids)-1-i]; doc.ID != want {
				t.Fatalf("position %d: expected %s, got %s", i, want, doc.ID)
			}
		}
	})
}
