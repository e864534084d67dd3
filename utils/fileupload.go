package utils

import (
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const (
	// MaxFileSize is 10MB in bytes
	MaxFileSize = 10 * 1024 * 1024
)

// allowedImageTypes maps accepted content types to their file extension.
var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
}

// extensionContentTypes is the reverse lookup used when serving files.
var extensionContentTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
}

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// DecodeImage accepts raw base64 or a data URL ("data:image/png;base64,...")
// and returns the decoded bytes.
func DecodeImage(encoded string) ([]byte, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, &FileUploadError{Code: "EMPTY_FILE", Message: "Image data is empty"}
	}

	if strings.HasPrefix(encoded, "data:") {
		comma := strings.IndexByte(encoded, ',')
		if comma < 0 || !strings.HasSuffix(encoded[:comma], ";base64") {
			return nil, &FileUploadError{Code: "INVALID_ENCODING", Message: "Only base64 data URLs are supported"}
		}
		encoded = encoded[comma+1:]
	}

	if base64.StdEncoding.DecodedLen(len(encoded)) > MaxFileSize+3 {
		return nil, fileTooLarge()
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, &FileUploadError{Code: "INVALID_ENCODING", Message: "Image data is not valid base64"}
		}
	}
	return data, nil
}

// ValidateImage checks size and sniffs the content type. It returns the
// detected content type and the matching file extension.
func ValidateImage(data []byte) (contentType, ext string, err error) {
	if len(data) == 0 {
		return "", "", &FileUploadError{Code: "EMPTY_FILE", Message: "Image data is empty"}
	}
	if len(data) > MaxFileSize {
		return "", "", fileTooLarge()
	}

	contentType = http.DetectContentType(data)
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", "", &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: "Only JPEG, PNG and WebP images are allowed",
		}
	}
	return contentType, ext, nil
}

func fileTooLarge() error {
	return &FileUploadError{
		Code:    "FILE_TOO_LARGE",
		Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
	}
}

// IsSafeFilename rejects names that could escape the upload directory.
func IsSafeFilename(filename string) bool {
	if filename == "" || filename == "." {
		return false
	}
	return !strings.Contains(filename, "..") && !strings.ContainsAny(filename, `/\`)
}

// ImageContentType returns the content type for a stored image filename, or
// "" when the extension is not an allowed image type.
func ImageContentType(filename string) string {
	return extensionContentTypes[strings.ToLower(filepath.Ext(filename))]
}

// SaveFile writes data to uploadDir/filename, creating the directory if needed.
func SaveFile(data []byte, uploadDir, filename string) (err error) {
	if !IsSafeFilename(filename) {
		return &FileUploadError{Code: "INVALID_FILENAME", Message: "Invalid filename"}
	}
	if err := os.MkdirAll(uploadDir, 0755); err != nil {
		return fmt.Errorf("failed to create upload directory: %w", err)
	}

	dst, err := os.Create(filepath.Join(uploadDir, filename))
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dst.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := dst.Write(data); err != nil {
		return fmt.Errorf("failed to save file: %w", err)
	}
	return nil
}

// GetImageURL returns the URL path for accessing the uploaded image
func GetImageURL(filename string) string {
	if filename == "" {
		return ""
	}
	return fmt.Sprintf("/api/v1/uploads/%s", filename)
}
