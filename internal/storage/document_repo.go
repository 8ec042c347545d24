package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"ragdocs/internal/models"
	"ragdocs/internal/util"

	"github.com/jackc/pgx/v5"
)

// DocumentRepo is the Postgres-backed Registry.
type DocumentRepo struct {
	db *DB
}

func NewDocumentRepo(db *DB) *DocumentRepo {
	return &DocumentRepo{db: db}
}

func (r *DocumentRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS documents (
  id text PRIMARY KEY,
  filename text NOT NULL,
  upload_time timestamptz NOT NULL DEFAULT NOW(),
  metadata jsonb NOT NULL DEFAULT '{}'::jsonb,
  indexed boolean NOT NULL DEFAULT false,
  updated_at timestamptz NOT NULL DEFAULT NOW()
)`)
	if err != nil {
		return fmt.Errorf("ensure documents table: %w", err)
	}
	return nil
}

func (r *DocumentRepo) Save(ctx context.Context, doc models.Document) (string, error) {
	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return "", err
	}
	_, err = r.db.Pool.Exec(ctx, `
INSERT INTO documents (id, filename, upload_time, metadata, indexed)
VALUES ($1, $2, $3, $4::jsonb, $5)
ON CONFLICT (id)
DO UPDATE SET
  filename = EXCLUDED.filename,
  metadata = EXCLUDED.metadata,
  indexed = documents.indexed OR EXCLUDED.indexed,
  updated_at = NOW()`,
		doc.ID, doc.Filename, doc.UploadTime, meta, doc.Indexed,
	)
	if err != nil {
		return "", fmt.Errorf("save document: %w", err)
	}
	return doc.ID, nil
}

func (r *DocumentRepo) FindByID(ctx context.Context, id string) (models.Document, error) {
	var (
		doc  models.Document
		meta []byte
	)
	err := r.db.Pool.QueryRow(ctx, `
SELECT id, filename, upload_time, metadata, indexed
FROM documents
WHERE id=$1`, id).Scan(&doc.ID, &doc.Filename, &doc.UploadTime, &meta, &doc.Indexed)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Document{}, util.ErrDocumentNotFound
	}
	if err != nil {
		return models.Document{}, fmt.Errorf("get document by id: %w", err)
	}
	if doc.Metadata, err = unmarshalMetadata(meta); err != nil {
		return models.Document{}, err
	}
	return doc, nil
}

// Update never clears the indexed flag.
func (r *DocumentRepo) Update(ctx context.Context, doc models.Document) error {
	meta, err := marshalMetadata(doc.Metadata)
	if err != nil {
		return err
	}
	tag, err := r.db.Pool.Exec(ctx, `
UPDATE documents
SET filename=$2, metadata=$3::jsonb, indexed = indexed OR $4, updated_at=NOW()
WHERE id=$1`, doc.ID, doc.Filename, meta, doc.Indexed)
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return util.ErrDocumentNotFound
	}
	return nil
}

func (r *DocumentRepo) FindAll(ctx context.Context) ([]models.Document, error) {
	rows, err := r.db.Pool.Query(ctx, `
SELECT id, filename, upload_time, metadata, indexed
FROM documents
ORDER BY upload_time DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	out := make([]models.Document, 0)
	for rows.Next() {
		var (
			doc  models.Document
			meta []byte
		)
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.UploadTime, &meta, &doc.Indexed); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		if doc.Metadata, err = unmarshalMetadata(meta); err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func marshalMetadata(md map[string]any) (string, error) {
	if md == nil {
		return "{}", nil
	}
	b, err := json.Marshal(md)
	if err != nil {
		return "", fmt.Errorf("marshal document metadata: %w", err)
	}
	return string(b), nil
}

func unmarshalMetadata(raw []byte) (map[string]any, error) {
	md := map[string]any{}
	if len(raw) == 0 {
		return md, nil
	}
	if err := json.Unmarshal(raw, &md); err != nil {
		return nil, fmt.Errorf("decode document metadata: %w", err)
	}
	return md, nil
}
