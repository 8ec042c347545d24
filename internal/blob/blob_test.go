package blob

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ragdocs/internal/config"
	"ragdocs/internal/util"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/require"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	id, original, err := s.Save(ctx, []byte("hello"), "Notes.MD")
	require.NoError(t, err)
	require.Equal(t, "Notes.MD", original)
	require.True(t, strings.HasSuffix(id, ".md"))

	data, err := s.Read(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))

	removed, err := s.Delete(ctx, id)
	require.NoError(t, err)
	require.True(t, removed)

	removed, err = s.Delete(ctx, id)
	require.NoError(t, err)
	require.False(t, removed)

	_, err = s.Read(ctx, id)
	require.ErrorIs(t, err, util.ErrBlobNotFound)
	require.ErrorIs(t, err, util.ErrNotFound)
}

func TestLocalStoreConfinesPaths(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := NewLocalStore(filepath.Join(root, "blobs"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(root, "secret.txt"), []byte("x"), 0o600))

	_, err = s.Read(ctx, "../secret.txt")
	require.ErrorIs(t, err, util.ErrBlobNotFound)
}

func TestNewSelectsLocal(t *testing.T) {
	cfg := config.Load()
	cfg.BlobBackend = "local"
	cfg.LocalBlobPath = t.TempDir()
	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.IsType(t, &LocalStore{}, s)

	cfg.BlobBackend = "ftp"
	_, err = New(context.Background(), cfg)
	require.Error(t, err)
}

func TestObjectKey(t *testing.T) {
	require.Equal(t, "uploads/abc.pdf", objectKey("abc.pdf"))
	require.Equal(t, "uploads/abc.pdf", objectKey("../../abc.pdf"))
}

func TestIsCode(t *testing.T) {
	err := minio.ErrorResponse{Code: "NoSuchKey", Message: "gone"}
	require.True(t, isCode(err, "NoSuchKey"))
	require.False(t, isCode(errors.New("boom"), "NoSuchKey"))
}
