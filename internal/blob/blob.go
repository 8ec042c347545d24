package blob

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"ragdocs/internal/config"

	"github.com/google/uuid"
)

// Store keeps raw uploaded bytes until indexing consumes them.
type Store interface {
	// Save returns the generated identifier and the original filename.
	Save(ctx context.Context, data []byte, filename string) (string, string, error)
	// Read fails with util.ErrBlobNotFound for unknown identifiers.
	Read(ctx context.Context, id string) ([]byte, error)
	// Delete reports whether anything was removed; absence is not an error.
	Delete(ctx context.Context, id string) (bool, error)
}

// New selects the backend named by cfg.BlobBackend.
func New(ctx context.Context, cfg config.Config) (Store, error) {
	switch cfg.BlobBackend {
	case "s3":
		s, err := NewS3Store(ctx, S3Config{
			Endpoint:  cfg.S3Endpoint,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Secure:    cfg.S3Secure,
		})
		if err != nil {
			return nil, err
		}
		log.Printf("blob: backend=s3 endpoint=%s bucket=%s", cfg.S3Endpoint, cfg.S3Bucket)
		return s, nil
	case "local", "":
		s, err := NewLocalStore(cfg.LocalBlobPath)
		if err != nil {
			return nil, err
		}
		log.Printf("blob: backend=local path=%s", cfg.LocalBlobPath)
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.BlobBackend)
	}
}

// newIdentifier keeps the original extension so chunking can dispatch on it.
func newIdentifier(filename string) string {
	return uuid.NewString() + strings.ToLower(filepath.Ext(filename))
}
