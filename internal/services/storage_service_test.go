// internal/services/storage_service_test.go
package services

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pricematch/pricematch/internal/config"
	"github.com/pricematch/pricematch/internal/models"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n00000000")

func TestStorageServiceLocalArchive(t *testing.T) {
	dir := t.TempDir()
	storage, err := NewStorageService(&config.Config{Storage: config.StorageConfig{LocalDir: dir}})
	require.NoError(t, err)

	ctx := context.Background()
	result, err := storage.ArchiveImage(ctx, 42, models.PlatformCoupang, &models.Image{Data: pngBytes, MIMEType: "image/png"})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.Key, "coupang/42/"))
	assert.Equal(t, ".png", filepath.Ext(result.Key))
	assert.Equal(t, int64(len(pngBytes)), result.Size)

	saved, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(result.Key)))
	require.NoError(t, err)
	assert.Equal(t, pngBytes, saved)

	require.NoError(t, storage.DeleteFile(ctx, result.Key))
	_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(result.Key)))
	assert.True(t, os.IsNotExist(err))

	// deleting twice is fine
	assert.NoError(t, storage.DeleteFile(ctx, result.Key))
}

func TestStorageServiceRejectsNonImages(t *testing.T) {
	storage, err := NewStorageService(&config.Config{Storage: config.StorageConfig{LocalDir: t.TempDir()}})
	require.NoError(t, err)

	_, err = storage.ArchiveImage(context.Background(), 1, models.PlatformIHerb, &models.Image{Data: []byte("<html>"), MIMEType: "text/html"})
	assert.ErrorIs(t, err, ErrInvalidImage)

	_, err = storage.ArchiveImage(context.Background(), 1, models.PlatformIHerb, nil)
	assert.ErrorIs(t, err, ErrInvalidImage)
}

func TestStorageServiceS3URL(t *testing.T) {
	s := &StorageService{aws: config.AWSConfig{S3Bucket: "images", Region: "ap-northeast-2"}}
	assert.Equal(t, "https://images.s3.ap-northeast-2.amazonaws.com/a/b.jpg", s.getS3URL("a/b.jpg"))

	s.aws.CloudFrontURL = "https://cdn.example.com/"
	assert.Equal(t, "https://cdn.example.com/a/b.jpg", s.getS3URL("a/b.jpg"))
}
