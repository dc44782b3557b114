package services

import (
	"encoding/base64"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ImageStorageService stores card photos attached to collection items
type ImageStorageService struct {
	storageDir string
}

// NewImageStorageService creates the storage directory if needed
func NewImageStorageService(storageDir string) *ImageStorageService {
	if storageDir == "" {
		storageDir = "./data/card_images"
	}

	// Log error but don't fail - will fail on actual writes
	if err := os.MkdirAll(storageDir, 0755); err != nil {
		log.Printf("Warning: could not create card images directory: %v", err)
	}

	return &ImageStorageService{
		storageDir: storageDir,
	}
}

// DecodeImageData accepts raw base64 or a data URL ("data:image/png;base64,...").
func DecodeImageData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	if i := strings.Index(data, ";base64,"); strings.HasPrefix(data, "data:") && i > 0 {
		data = data[i+len(";base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64", ErrInvalidRequest)
	}
	if len(decoded) > maxImageBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", ErrInvalidRequest, maxImageBytes)
	}
	return decoded, nil
}

func imageExtension(data []byte) string {
	switch detectMimeType(data) {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	}
	return ".jpg"
}

// SaveImage saves image data to disk and returns the filename
func (s *ImageStorageService) SaveImage(imageData []byte) (string, error) {
	if len(imageData) == 0 {
		return "", fmt.Errorf("empty image data")
	}

	filename := uuid.New().String() + imageExtension(imageData)
	if err := os.WriteFile(filepath.Join(s.storageDir, filename), imageData, 0644); err != nil {
		return "", fmt.Errorf("failed to save image: %w", err)
	}
	return filename, nil
}

// DeleteImage removes a stored image. Missing files are not an error.
func (s *ImageStorageService) DeleteImage(filename string) error {
	if filename == "" || filename != filepath.Base(filename) {
		return fmt.Errorf("invalid image filename %q", filename)
	}
	err := os.Remove(filepath.Join(s.storageDir, filename))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// GetStorageDir returns the storage directory path
func (s *ImageStorageService) GetStorageDir() string {
	return s.storageDir
}
