// Command setup seeds one sample document into every collection the API uses.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"backend-snapshare/internal/config"
	"backend-snapshare/internal/db"
	"backend-snapshare/internal/docstore"
	"backend-snapshare/internal/logging"
	"backend-snapshare/internal/server"
	"backend-snapshare/internal/social"

	"github.com/sirupsen/logrus"
)

const seedUserID = "seed-user"

type setupDeps struct {
	loadConfig func() config.Config
	openStore  func(context.Context, config.Config) (docstore.Store, func(), error)
	exit       func(int)
}

var depsProvider = func() setupDeps {
	return setupDeps{loadConfig: config.Load, openStore: openStore, exit: os.Exit}
}

func main() {
	run(depsProvider(), os.Args[1:])
}

func run(deps setupDeps, args []string) {
	cfg := deps.loadConfig()

	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	fs.StringVar(&cfg.DocstoreDriver, "driver", cfg.DocstoreDriver, "document store: postgres, mongo or redis")
	timeout := fs.Duration("timeout", 30*time.Second, "overall deadline")
	if err := fs.Parse(args); err != nil {
		deps.exit(2)
		return
	}

	log := logging.New(cfg.LogLevel, nil)
	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	store, closeStore, err := deps.openStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Error("open document store")
		deps.exit(1)
		return
	}
	defer closeStore()

	if err := seed(ctx, store, log); err != nil {
		log.WithError(err).Error("setup failed")
		deps.exit(1)
		return
	}
	log.Info("setup completed successfully")
}

// seed writes linked sample documents so the feed and profile routes resolve.
func seed(ctx context.Context, store docstore.Store, log logrus.FieldLogger) error {
	if _, err := store.Put(ctx, docstore.Ref{Collection: social.CollUsers, ID: seedUserID}, docstore.Fields{
		"username": "testuser",
		"email":    "testuser@example.com",
	}); err != nil {
		return fmt.Errorf("%s: %w", social.CollUsers, err)
	}
	log.WithField("collection", social.CollUsers).Info("collection seeded")

	post, err := store.Insert(ctx, social.CollPosts, docstore.Fields{
		"userId":   seedUserID,
		"imageUrl": "https://example.com/image.jpg",
		"caption":  "Test post",
	})
	if err != nil {
		return fmt.Errorf("%s: %w", social.CollPosts, err)
	}
	log.WithField("collection", social.CollPosts).Info("collection seeded")

	rest := []struct {
		collection string
		fields     docstore.Fields
	}{
		{social.CollLikes, docstore.Fields{"userId": seedUserID, "postId": post.ID}},
		{social.CollComments, docstore.Fields{"userId": seedUserID, "postId": post.ID, "content": "Test comment"}},
		{social.CollFollows, docstore.Fields{"followerId": seedUserID, "followedId": "seed-followed"}},
	}
	for _, r := range rest {
		if _, err := store.Insert(ctx, r.collection, r.fields); err != nil {
			return fmt.Errorf("%s: %w", r.collection, err)
		}
		log.WithField("collection", r.collection).Info("collection seeded")
	}
	return nil
}

func openStore(ctx context.Context, cfg config.Config) (docstore.Store, func(), error) {
	switch cfg.DocstoreDriver {
	case "mongo":
		mdb, err := db.ConnectMongo(cfg)
		if err != nil {
			return nil, nil, err
		}
		store, err := server.OpenDocstore(cfg, nil, nil, mdb)
		return store, func() { _ = mdb.Client().Disconnect(context.Background()) }, err
	case "redis":
		rdb := db.ConnectRedis(cfg)
		store, err := server.OpenDocstore(cfg, nil, rdb, nil)
		if rdb == nil {
			return store, func() {}, err
		}
		return store, func() { _ = rdb.Close() }, err
	default:
		pg, err := db.ConnectPostgres(cfg)
		if err != nil {
			return nil, nil, err
		}
		if err := db.Migrate(ctx, pg); err != nil {
			pg.Close()
			return nil, nil, err
		}
		store, err := server.OpenDocstore(cfg, pg, nil, nil)
		return store, pg.Close, err
	}
}
