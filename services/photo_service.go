package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ticrm/tire-storage-api/utils"
)

// PhotoService validates tire photos and stores them in a PhotoStore
type PhotoService struct {
	store PhotoStore
}

func NewPhotoService(store PhotoStore) *PhotoService {
	return &PhotoService{store: store}
}

// Photo is a decoded, validated image ready for upload and analysis.
type Photo struct {
	Data        []byte
	ContentType string
	Ext         string
}

// DecodePhoto turns base64 or data-URL input into a validated Photo.
func DecodePhoto(encoded string) (*Photo, error) {
	data, err := utils.DecodeImage(encoded)
	if err != nil {
		return nil, err
	}
	contentType, ext, err := utils.ValidateImage(data)
	if err != nil {
		return nil, err
	}
	return &Photo{Data: data, ContentType: contentType, Ext: ext}, nil
}

// UploadTirePhoto stores a photo under tires/<clientID>/<random><ext>.
func (s *PhotoService) UploadTirePhoto(ctx context.Context, clientID uuid.UUID, photo *Photo) (*UploadResult, error) {
	path := fmt.Sprintf("tires/%s/%s%s", clientID, uuid.NewString(), photo.Ext)
	res, err := s.store.Upload(ctx, photo.Data, path, photo.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to upload photo: %w", err)
	}
	return res, nil
}

// DeletePhoto removes a stored photo
func (s *PhotoService) DeletePhoto(ctx context.Context, url string) error {
	if url == "" {
		return nil
	}
	return s.store.Delete(ctx, url)
}
