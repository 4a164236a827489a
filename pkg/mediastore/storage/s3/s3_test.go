package s3_test

import (
	"context"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediastore"
	s3storage "github.com/tendant/simple-media/pkg/mediastore/storage/s3"
)

var _ mediastore.BlobStore = (*s3storage.Backend)(nil)

// newFakeBackend starts an in-process S3 server and returns a backend
// pointed at it.
func newFakeBackend(t *testing.T, prefix string) *s3storage.Backend {
	t.Helper()
	faker := gofakes3.New(s3mem.New())
	ts := httptest.NewServer(faker.Server())
	t.Cleanup(ts.Close)

	backend, err := s3storage.New(context.Background(), s3storage.Config{
		Region:                 "us-east-1",
		Bucket:                 "media-images",
		KeyPrefix:              prefix,
		AccessKeyID:            "test-key",
		SecretAccessKey:        "test-secret",
		Endpoint:               ts.URL,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)
	return backend
}

func TestS3Backend(t *testing.T) {
	backend := newFakeBackend(t, "")
	ctx := context.Background()
	testKey := "1718000000000-ab12cd34ef56ab78.png"
	testData := []byte("\x89PNG\r\n\x1a\n fake png")

	t.Run("Put", func(t *testing.T) {
		assert.NoError(t, backend.Put(ctx, testKey, testData, "image/png"))
	})

	t.Run("Get", func(t *testing.T) {
		reader, err := backend.Get(ctx, testKey)
		require.NoError(t, err)
		defer reader.Close()

		data, err := io.ReadAll(reader)
		require.NoError(t, err)
		assert.Equal(t, testData, data)
	})

	t.Run("Get missing", func(t *testing.T) {
		_, err := backend.Get(ctx, "missing.png")
		assert.ErrorIs(t, err, mediastore.ErrBlobNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, backend.Delete(ctx, testKey))
		_, err := backend.Get(ctx, testKey)
		assert.ErrorIs(t, err, mediastore.ErrBlobNotFound)
		assert.NoError(t, backend.Delete(ctx, testKey))
	})
}

func TestS3Backend_KeyPrefix(t *testing.T) {
	backend := newFakeBackend(t, "/images/")
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "a.jpg", []byte("jpeg"), "image/jpeg"))
	reader, err := backend.Get(ctx, "a.jpg")
	require.NoError(t, err)
	defer reader.Close()
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", string(data))
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := s3storage.New(context.Background(), s3storage.Config{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}
