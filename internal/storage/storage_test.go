package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanKey(t *testing.T) {
	tests := []struct {
		key     string
		want    string
		wantErr bool
	}{
		{key: "12/a.jpg", want: "12/a.jpg"},
		{key: "/12//a.jpg", want: "12/a.jpg"},
		{key: "12/../13/a.jpg", want: "13/a.jpg"},
		{key: "../etc/passwd", want: "etc/passwd"},
		{key: "", wantErr: true},
		{key: "   ", wantErr: true},
		{key: `12\a.jpg`, wantErr: true},
		{key: "/", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := cleanKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLocalStore_PutURLDelete(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "/static/gallery")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "7/photo.jpg", strings.NewReader("jpeg-bytes"), 10, "image/jpeg"))

	data, err := os.ReadFile(filepath.Join(root, "7", "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	u, err := store.URL(ctx, "7/photo.jpg")
	require.NoError(t, err)
	assert.Equal(t, "/static/gallery/7/photo.jpg", u)

	err = store.Put(ctx, "7/photo.jpg", strings.NewReader("again"), 5, "image/jpeg")
	assert.Error(t, err, "existing objects are never overwritten")

	require.NoError(t, store.Delete(ctx, "7/photo.jpg"))
	_, err = os.Stat(filepath.Join(root, "7", "photo.jpg"))
	assert.True(t, errors.Is(err, os.ErrNotExist))

	assert.NoError(t, store.Delete(ctx, "7/photo.jpg"), "deleting a missing object is a no-op")
	assert.Equal(t, "local", store.Backend())
}

func TestLocalStore_CancelledContext(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "/static/gallery")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = store.Put(ctx, "1/a.png", strings.NewReader("x"), 1, "image/png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDeleteAll_ContinuesAfterFailure(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocalStore(root, "/static/gallery")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "1/a.png", strings.NewReader("a"), 1, "image/png"))
	require.NoError(t, store.Put(ctx, "1/b.png", strings.NewReader("b"), 1, "image/png"))

	err = DeleteAll(ctx, store, []string{"1/a.png", "", "1/b.png"})
	assert.ErrorIs(t, err, ErrInvalidKey)

	entries, readErr := os.ReadDir(filepath.Join(root, "1"))
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestNewMinIOStore_RequiresEndpointAndBucket(t *testing.T) {
	_, err := NewMinIOStore(context.Background(), MinIOConfig{Bucket: "b"})
	assert.Error(t, err)
	_, err = NewMinIOStore(context.Background(), MinIOConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err)
}

func TestMinIOStore_ObjectNameAndPublicURL(t *testing.T) {
	s := &MinIOStore{bucket: "clubhub-gallery", prefix: "gallery", publicURL: "https://cdn.example.com"}

	name, err := s.objectName("/3/x.webp")
	require.NoError(t, err)
	assert.Equal(t, "gallery/3/x.webp", name)

	u, err := s.URL(context.Background(), "3/x.webp")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/clubhub-gallery/gallery/3/x.webp", u)

	_, err = s.objectName("")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestIsNoSuchKey(t *testing.T) {
	assert.False(t, IsNoSuchKey(nil))
	assert.True(t, IsNoSuchKey(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.False(t, IsNoSuchKey(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.True(t, IsNoSuchKey(errors.New("NoSuchKey: gone")))
}
