package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

const uploadTimeout = 30 * time.Second

type uploadAPI interface {
	Upload(ctx context.Context, file interface{}, params uploader.UploadParams) (*uploader.UploadResult, error)
}

// CloudinaryBackend uploads objects to a Cloudinary folder.
type CloudinaryBackend struct {
	upload uploadAPI
	folder string
}

func NewCloudinaryBackend(cloudName, apiKey, apiSecret, folder string) (*CloudinaryBackend, error) {
	if cloudName == "" || apiKey == "" || apiSecret == "" {
		return nil, errors.New("cloudinary credentials not configured")
	}
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, fmt.Errorf("init cloudinary: %w", err)
	}
	return &CloudinaryBackend{upload: &cld.Upload, folder: folder}, nil
}

func (b *CloudinaryBackend) Put(ctx context.Context, key, _ string, data []byte) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	overwrite := false
	res, err := b.upload.Upload(ctx, bytes.NewReader(data), uploader.UploadParams{
		Folder:       b.folder,
		PublicID:     strings.TrimSuffix(key, path.Ext(key)),
		Overwrite:    &overwrite,
		ResourceType: "auto",
	})
	if err != nil {
		return "", err
	}
	if res.Error.Message != "" {
		return "", errors.New(res.Error.Message)
	}
	if res.SecureURL == "" {
		return "", fmt.Errorf("cloudinary returned no url for %s", key)
	}
	return res.SecureURL, nil
}
