// Package storage persists uploaded media and hands back a public URL for it.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"backend-snapshare/internal/apperr"
	"backend-snapshare/internal/docstore"

	"github.com/google/uuid"
)

const UploadsCollection = "uploads"

var ErrEmptyObject = errors.New("storage: empty payload")

// Backend writes bytes under key and returns the URL they are served from.
type Backend interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
}

type Object struct {
	ID          string `json:"id"`
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType"`
	Size        int    `json:"size"`
}

type Service struct {
	backend Backend
	records docstore.Store
	now     func() time.Time
	newID   func() string
}

func NewService(backend Backend, records docstore.Store) *Service {
	return &Service{
		backend: backend,
		records: records,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Store uploads data and records the upload against ownerID.
func (s *Service) Store(ctx context.Context, ownerID string, data []byte, contentType, name string) (Object, error) {
	const op = "storage.store"
	if len(data) == 0 {
		return Object{}, apperr.Upstream(op, ErrEmptyObject)
	}

	key := s.objectKey(name)
	url, err := s.backend.Put(ctx, key, contentType, data)
	if err != nil {
		return Object{}, apperr.Upstream(op, fmt.Errorf("put %s: %w", key, err))
	}

	obj := Object{Key: key, URL: url, ContentType: contentType, Size: len(data)}
	doc, err := s.records.Insert(ctx, UploadsCollection, docstore.Fields{
		"ownerId":     ownerID,
		"key":         key,
		"url":         url,
		"contentType": contentType,
		"size":        len(data),
	})
	if err != nil {
		return Object{}, apperr.Upstream(op, fmt.Errorf("record %s: %w", key, err))
	}
	obj.ID = doc.ID
	return obj, nil
}

// objectKey yields "<unix-millis>-<8 hex>_<name>" so concurrent uploads of the
// same file name never collide.
func (s *Service) objectKey(name string) string {
	suffix := strings.ReplaceAll(s.newID(), "-", "")[:8]
	return fmt.Sprintf("%d-%s_%s", s.now().UnixMilli(), suffix, sanitizeName(name))
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func sanitizeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "upload"
	}
	return base
}
