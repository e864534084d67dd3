package services

import (
	"context"
	"fmt"

	"github.com/ticrm/tire-storage-api/config"
)

// Storage backend tags recorded on each photo.
const (
	BackendS3    = "s3"
	BackendLocal = "local"
)

// UploadResult is where an uploaded object can be fetched from.
type UploadResult struct {
	URL     string
	Backend string
}

// PhotoStore is the object storage capability used for tire photos.
type PhotoStore interface {
	Upload(ctx context.Context, data []byte, path, contentType string) (*UploadResult, error)
	Delete(ctx context.Context, url string) error
	Backend() string
}

// NewPhotoStore selects the backend named by STORAGE_MODE.
func NewPhotoStore(ctx context.Context, cfg *config.Config) (PhotoStore, error) {
	switch cfg.StorageMode {
	case config.StorageModeS3:
		store, err := NewS3PhotoStore(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return store, nil
	case config.StorageModeLocal, "":
		return NewLocalPhotoStore(cfg.UploadDir), nil
	default:
		return nil, fmt.Errorf("unknown storage mode %q", cfg.StorageMode)
	}
}
