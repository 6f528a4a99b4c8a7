package hooks

import (
	"context"

	"emailer/internal/types"
)

// ResolveHooks returns the hooks that apply to hctx.
//
// For collection events the hooks come from the impacted collection itself
// (old snapshot on delete, new otherwise) since storage may not reflect the
// write yet. For any other resource the parent collection is read from
// storage. When the collection metadata has no hook declaration at all, the
// bucket's declaration is used instead. An empty declaration on the
// collection does not fall back. Missing objects yield no hooks.
func ResolveHooks(ctx context.Context, storage types.StorageReader, hctx Context) ([]Hook, error) {
	bucketID, _ := hctx.String(types.PayloadBucketID)
	collectionID, _ := hctx.String(KeyCollectionID)
	resource, _ := hctx.String(types.PayloadResourceName)
	action, _ := hctx.String(types.PayloadAction)

	var metadata types.Object
	if types.ResourceName(resource) == types.ResourceCollection {
		if obj, ok := hctx.Current(); ok {
			if types.Action(action) == types.ActionDelete {
				metadata = obj.Old
			} else {
				metadata = obj.New
			}
		}
	} else {
		obj, err := storage.Get(ctx, types.BucketURI(bucketID), types.ResourceCollection, collectionID)
		if err != nil && !types.IsNotFound(err) {
			return nil, err
		}
		metadata = obj
	}

	if _, declared := metadata[MetadataKey]; !declared {
		obj, err := storage.Get(ctx, "", types.ResourceBucket, bucketID)
		if err != nil {
			if types.IsNotFound(err) {
				return nil, nil
			}
			return nil, err
		}
		metadata = obj
	}

	return hooksFrom(metadata)
}

// hooksFrom extracts the parsed hook list from an object's metadata.
func hooksFrom(metadata types.Object) ([]Hook, error) {
	raw, ok := metadata[MetadataKey]
	if !ok || raw == nil {
		return nil, nil
	}
	decl, ok := raw.(map[string]any)
	if !ok {
		return nil, hookConfigError("%q must be an object, got %T", MetadataKey, raw)
	}
	return ParseHooks(decl["hooks"])
}
