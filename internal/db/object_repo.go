package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"emailer/internal/types"
)

// ObjectRepository provides data access for the objects table.
// It implements types.StorageReader.
type ObjectRepository struct {
	db DBTX
}

var _ types.StorageReader = (*ObjectRepository)(nil)

// NewObjectRepository creates an ObjectRepository backed by the given
// database connection (pool or transaction).
func NewObjectRepository(db DBTX) *ObjectRepository {
	return &ObjectRepository{db: db}
}

// Get retrieves one object. Returns ErrCodeNotFoundObject when it does not exist.
func (r *ObjectRepository) Get(ctx context.Context, parentID string, resource types.ResourceName, objectID string) (types.Object, error) {
	var obj types.Object
	err := r.db.QueryRow(ctx,
		`SELECT data
		 FROM objects
		 WHERE parent_id = $1 AND resource_name = $2 AND id = $3`,
		parentID,
		string(resource),
		objectID,
	).Scan(&obj)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(resource, objectID)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to retrieve object", err)
	}
	return obj, nil
}

// List returns the children of parentID of the given resource, most recently
// modified first.
func (r *ObjectRepository) List(ctx context.Context, parentID string, resource types.ResourceName) ([]types.Object, error) {
	rows, err := r.db.Query(ctx,
		`SELECT data
		 FROM objects
		 WHERE parent_id = $1 AND resource_name = $2
		 ORDER BY last_modified DESC, id`,
		parentID,
		string(resource),
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list objects", err)
	}
	defer rows.Close()

	out := []types.Object{}
	for rows.Next() {
		var obj types.Object
		if err := rows.Scan(&obj); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan object", err)
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to iterate objects", err)
	}
	return out, nil
}

// Insert stores a new object. Returns ErrCodeConflictExists when an object
// with the same id already exists under parentID.
func (r *ObjectRepository) Insert(ctx context.Context, parentID string, resource types.ResourceName, obj types.Object) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO objects (parent_id, resource_name, id, data, last_modified)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (parent_id, resource_name, id) DO NOTHING`,
		parentID,
		string(resource),
		obj.ID(),
		obj,
		lastModified(obj),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to insert object", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppErrorWithDetails(types.ErrCodeConflictExists,
			fmt.Sprintf("%s %q already exists", resource, obj.ID()), nil,
			map[string]any{"id": obj.ID(), "resource_name": string(resource)})
	}
	return nil
}

// Upsert creates or replaces an object.
func (r *ObjectRepository) Upsert(ctx context.Context, parentID string, resource types.ResourceName, obj types.Object) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO objects (parent_id, resource_name, id, data, last_modified)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (parent_id, resource_name, id)
		 DO UPDATE SET data = EXCLUDED.data, last_modified = EXCLUDED.last_modified`,
		parentID,
		string(resource),
		obj.ID(),
		obj,
		lastModified(obj),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store object", err)
	}
	return nil
}

// Delete removes an object and everything stored beneath it, returning the
// removed object.
func (r *ObjectRepository) Delete(ctx context.Context, parentID string, resource types.ResourceName, objectID string) (types.Object, error) {
	var obj types.Object
	err := r.db.QueryRow(ctx,
		`DELETE FROM objects
		 WHERE parent_id = $1 AND resource_name = $2 AND id = $3
		 RETURNING data`,
		parentID,
		string(resource),
		objectID,
	).Scan(&obj)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notFound(resource, objectID)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to delete object", err)
	}

	uri := ObjectURI(parentID, resource, objectID)
	_, err = r.db.Exec(ctx,
		`DELETE FROM objects
		 WHERE parent_id = $1 OR parent_id LIKE $2`,
		uri,
		escapeLike(uri)+"/%",
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to delete children", err)
	}
	return obj, nil
}

// ObjectURI returns the canonical URI of an object, e.g.
// "/buckets/b/collections/c/records/r".
func ObjectURI(parentID string, resource types.ResourceName, objectID string) string {
	return parentID + "/" + string(resource) + "s/" + objectID
}

// SplitParent extracts the bucket and collection ids from a parent URI.
func SplitParent(parentID string) (bucketID, collectionID string) {
	parts := strings.Split(strings.TrimPrefix(parentID, "/"), "/")
	if len(parts) >= 2 && parts[0] == "buckets" {
		bucketID = parts[1]
	}
	if len(parts) >= 4 && parts[2] == "collections" {
		collectionID = parts[3]
	}
	return bucketID, collectionID
}

func notFound(resource types.ResourceName, objectID string) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeNotFoundObject,
		fmt.Sprintf("%s %q not found", resource, objectID), nil,
		map[string]any{"id": objectID, "resource_name": string(resource)})
}

func lastModified(obj types.Object) int64 {
	switch v := obj[FieldLastModified].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	}
	return 0
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
