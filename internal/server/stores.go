package server

import (
	"errors"
	"fmt"

	"backend-snapshare/internal/config"
	"backend-snapshare/internal/db"
	"backend-snapshare/internal/docstore"
	"backend-snapshare/internal/social"
	"backend-snapshare/internal/storage"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/mongo"
)

var errNoConnection = errors.New("no connection")

// OpenDocstore picks the document store named by DOCSTORE_DRIVER. The handle
// for the chosen driver must be non-nil.
func OpenDocstore(cfg config.Config, pg db.Querier, rdb *redis.Client, mdb *mongo.Database) (docstore.Store, error) {
	switch cfg.DocstoreDriver {
	case "", "postgres":
		if pg == nil {
			return nil, fmt.Errorf("docstore postgres: %w", errNoConnection)
		}
		return docstore.NewPostgres(pg), nil
	case "mongo":
		if mdb == nil {
			return nil, fmt.Errorf("docstore mongo: %w", errNoConnection)
		}
		return docstore.NewMongo(mdb), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("docstore redis: %w", errNoConnection)
		}
		return docstore.NewRedis(rdb, social.IndexedFields...), nil
	default:
		return nil, fmt.Errorf("unknown DOCSTORE_DRIVER %q", cfg.DocstoreDriver)
	}
}

// OpenMedia picks the object store backend named by STORAGE_DRIVER.
func OpenMedia(cfg config.Config) (storage.Backend, error) {
	switch cfg.StorageDriver {
	case "", "local":
		return storage.NewLocalBackend(cfg.StorageDir, cfg.PublicBaseURL)
	case "cloudinary":
		return storage.NewCloudinaryBackend(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey,
			cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
	default:
		return nil, fmt.Errorf("unknown STORAGE_DRIVER %q", cfg.StorageDriver)
	}
}
