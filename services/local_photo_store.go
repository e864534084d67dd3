package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ticrm/tire-storage-api/utils"
)

// LocalPhotoStore keeps photos on the local filesystem and serves them
// through /api/v1/uploads/:filename.
type LocalPhotoStore struct {
	dir string
}

func NewLocalPhotoStore(dir string) *LocalPhotoStore {
	if dir == "" {
		dir = "./uploads"
	}
	return &LocalPhotoStore{dir: dir}
}

func (s *LocalPhotoStore) Dir() string {
	return s.dir
}

func (s *LocalPhotoStore) Backend() string {
	return BackendLocal
}

// Upload flattens path into a single filename inside the upload directory.
func (s *LocalPhotoStore) Upload(ctx context.Context, data []byte, path, contentType string) (*UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filename := strings.ReplaceAll(strings.Trim(path, "/"), "/", "_")
	if err := utils.SaveFile(data, s.dir, filename); err != nil {
		return nil, err
	}
	return &UploadResult{URL: utils.GetImageURL(filename), Backend: BackendLocal}, nil
}

func (s *LocalPhotoStore) Delete(ctx context.Context, url string) error {
	filename := filepath.Base(url)
	if !utils.IsSafeFilename(filename) {
		return fmt.Errorf("invalid photo url %q", url)
	}
	err := os.Remove(filepath.Join(s.dir, filename))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete local photo: %w", err)
	}
	return nil
}
