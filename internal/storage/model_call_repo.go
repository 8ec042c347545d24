package storage

import (
	"context"
	"fmt"

	"ragdocs/internal/models"
)

// ModelCallRepo keeps an append-only audit of embedding and generation
// provider attempts.
type ModelCallRepo struct {
	db *DB
}

func NewModelCallRepo(db *DB) *ModelCallRepo {
	return &ModelCallRepo{db: db}
}

func (r *ModelCallRepo) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS model_calls (
  call_id uuid PRIMARY KEY DEFAULT gen_random_uuid(),
  operation text NOT NULL,
  provider_name text NOT NULL,
  model text,
  status text NOT NULL,
  error_type text,
  inputs int NOT NULL DEFAULT 0,
  created_at timestamptz NOT NULL DEFAULT now()
)`)
	if err != nil {
		return fmt.Errorf("ensure model_calls table: %w", err)
	}
	return nil
}

func (r *ModelCallRepo) Insert(ctx context.Context, call models.ModelCall) error {
	_, err := r.db.Pool.Exec(ctx, `
INSERT INTO model_calls(operation, provider_name, model, status, error_type, inputs)
VALUES ($1, $2, NULLIF($3,''), $4, NULLIF($5,''), $6)`,
		call.Operation, call.Provider, call.Model, call.Status, call.ErrorType, call.Inputs)
	if err != nil {
		return fmt.Errorf("insert model call: %w", err)
	}
	return nil
}
