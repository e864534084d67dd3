package services

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MockPhotoStore is an in-memory PhotoStore for testing
type MockPhotoStore struct {
	files      map[string][]byte // URL to content
	failUpload bool
	deleted    []string
	mu         sync.RWMutex
}

func NewMockPhotoStore() *MockPhotoStore {
	return &MockPhotoStore{
		files: make(map[string][]byte),
	}
}

func (m *MockPhotoStore) Backend() string {
	return "mock"
}

// FailUploads makes every subsequent Upload return an error.
func (m *MockPhotoStore) FailUploads(fail bool) {
	m.mu.Lock()
	m.failUpload = fail
	m.mu.Unlock()
}

func (m *MockPhotoStore) Upload(ctx context.Context, data []byte, path, contentType string) (*UploadResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failUpload {
		return nil, fmt.Errorf("mock upload failure for %s", path)
	}
	url := "https://mock-storage.test/" + strings.TrimLeft(path, "/")
	m.files[url] = append([]byte(nil), data...)
	return &UploadResult{URL: url, Backend: "mock"}, nil
}

func (m *MockPhotoStore) Delete(ctx context.Context, url string) error {
	m.mu.Lock()
	delete(m.files, url)
	m.deleted = append(m.deleted, url)
	m.mu.Unlock()
	return nil
}

// GetUploadedFiles returns a copy of the stored files
func (m *MockPhotoStore) GetUploadedFiles() map[string][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	files := make(map[string][]byte, len(m.files))
	for k, v := range m.files {
		files[k] = v
	}
	return files
}

func (m *MockPhotoStore) Deleted() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.deleted...)
}

func (m *MockPhotoStore) FileExists(url string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, exists := m.files[url]
	return exists
}
