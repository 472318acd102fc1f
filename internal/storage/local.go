package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend keeps objects on disk under Dir and serves them from BaseURL + "/media".
type LocalBackend struct {
	Dir     string
	BaseURL string
}

func NewLocalBackend(dir, baseURL string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &LocalBackend{Dir: dir, BaseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *LocalBackend) Put(ctx context.Context, key, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	// Written under a temp name first so a reader never sees a partial file.
	tmp, err := os.CreateTemp(b.Dir, ".upload-*")
	if err != nil {
		return "", err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(tmp.Name(), filepath.Join(b.Dir, key)); err != nil {
		return "", err
	}
	return b.BaseURL + "/media/" + key, nil
}
