package backup

import (
	"context"
	"encoding/json"

	"github.com/dsrplatform/fleetcore/infrastructure/errors"
	"github.com/dsrplatform/fleetcore/infrastructure/state"
)

const metadataKeyPrefix = "backup:metadata:"

// MetadataRegistry persists backup metadata through a PersistenceBackend so
// it survives process restarts.
type MetadataRegistry struct {
	backend state.PersistenceBackend
}

func NewMetadataRegistry(backend state.PersistenceBackend) *MetadataRegistry {
	return &MetadataRegistry{backend: backend}
}

func (r *MetadataRegistry) Save(ctx context.Context, meta Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return err
	}
	return r.backend.Save(ctx, metadataKeyPrefix+meta.BackupID, data)
}

func (r *MetadataRegistry) Get(ctx context.Context, backupID string) (Metadata, error) {
	data, err := r.backend.Load(ctx, metadataKeyPrefix+backupID)
	if err != nil {
		return Metadata{}, errors.NotFound("backup", backupID)
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return Metadata{}, errors.IntegrityFailure("corrupt backup metadata", err)
	}
	return meta, nil
}

func (r *MetadataRegistry) List(ctx context.Context) ([]Metadata, error) {
	keys, err := r.backend.List(ctx, metadataKeyPrefix)
	if err != nil {
		return nil, err
	}
	out := make([]Metadata, 0, len(keys))
	for _, key := range keys {
		data, err := r.backend.Load(ctx, key)
		if err != nil {
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(data, &meta); err != nil {
			continue
		}
		out = append(out, meta)
	}
	return out, nil
}

func (r *MetadataRegistry) Delete(ctx context.Context, backupID string) error {
	return r.backend.Delete(ctx, metadataKeyPrefix+backupID)
}
