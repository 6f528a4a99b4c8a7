package db

import (
	"context"

	"emailer/internal/types"
)

// Schema creates the objects table. It is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS objects (
	parent_id     TEXT NOT NULL,
	resource_name TEXT NOT NULL,
	id            TEXT NOT NULL,
	data          JSONB NOT NULL,
	last_modified BIGINT NOT NULL,
	PRIMARY KEY (parent_id, resource_name, id)
);
CREATE INDEX IF NOT EXISTS idx_objects_parent ON objects (parent_id text_pattern_ops);
`

// Migrate applies Schema.
func Migrate(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to apply schema", err)
	}
	return nil
}
