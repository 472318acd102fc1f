package main

import (
	"context"
	"errors"
	"io"
	"testing"

	"backend-snapshare/internal/config"
	"backend-snapshare/internal/docstore"
	"backend-snapshare/internal/social"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func newStore(t *testing.T) (*docstore.Redis, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return docstore.NewRedis(rdb), mr
}

func TestSeedWritesEveryCollection(t *testing.T) {
	store, _ := newStore(t)
	log := logrus.New()
	log.SetOutput(io.Discard)

	if err := seed(context.Background(), store, log); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ctx := context.Background()
	for _, c := range []string{social.CollUsers, social.CollPosts, social.CollLikes, social.CollComments, social.CollFollows} {
		n, err := store.Count(ctx, docstore.Query{Collection: c})
		if err != nil || n != 1 {
			t.Fatalf("%s: expected one document, got %d (%v)", c, n, err)
		}
	}

	post, ok, err := docstore.First(ctx, store, docstore.Query{Collection: social.CollPosts})
	if err != nil || !ok {
		t.Fatalf("post: %v", err)
	}
	if n, _ := store.Count(ctx, docstore.ByField(social.CollLikes, "postId", post.ID)); n != 1 {
		t.Fatalf("seeded like should reference the seeded post")
	}
}

func testDeps(store docstore.Store, openErr error, code *int) setupDeps {
	return setupDeps{
		loadConfig: func() config.Config { return config.Config{LogLevel: "panic", DocstoreDriver: "redis"} },
		openStore: func(context.Context, config.Config) (docstore.Store, func(), error) {
			return store, func() {}, openErr
		},
		exit: func(c int) { *code = c },
	}
}

func TestRunSeeds(t *testing.T) {
	store, _ := newStore(t)
	code := -1
	run(testDeps(store, nil, &code), []string{"-driver", "redis"})
	if code != -1 {
		t.Fatalf("unexpected exit %d", code)
	}
	if n, _ := store.Count(context.Background(), docstore.Query{Collection: social.CollUsers}); n != 1 {
		t.Fatalf("expected seeded user")
	}
}

func TestRunFailures(t *testing.T) {
	code := -1
	run(testDeps(nil, errors.New("down"), &code), nil)
	if code != 1 {
		t.Fatalf("expected exit 1 on open failure, got %d", code)
	}

	store, mr := newStore(t)
	mr.Close()
	code = -1
	run(testDeps(store, nil, &code), nil)
	if code != 1 {
		t.Fatalf("expected exit 1 on seed failure, got %d", code)
	}

	code = -1
	run(testDeps(store, nil, &code), []string{"-bogus"})
	if code != 2 {
		t.Fatalf("expected exit 2 on bad flags, got %d", code)
	}
}

func TestDriverFlagOverridesConfig(t *testing.T) {
	store, _ := newStore(t)
	var seen string
	deps := setupDeps{
		loadConfig: func() config.Config { return config.Config{LogLevel: "panic", DocstoreDriver: "postgres"} },
		openStore: func(_ context.Context, cfg config.Config) (docstore.Store, func(), error) {
			seen = cfg.DocstoreDriver
			return store, func() {}, nil
		},
		exit: func(int) {},
	}
	run(deps, []string{"-driver", "mongo"})
	if seen != "mongo" {
		t.Fatalf("expected driver override, got %q", seen)
	}
}
