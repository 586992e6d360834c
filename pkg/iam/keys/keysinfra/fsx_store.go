package keysinfra

import (
	"context"
	"encoding/json"

	"github.com/Abraxas-365/tenantry/pkg/fsx"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys"
)

// FSXKeyStore keeps the key set as a single JSON document on any fsx backend.
type FSXKeyStore struct {
	fs   fsx.FileSystem
	path string
}

func NewFSXKeyStore(fs fsx.FileSystem, path string) *FSXKeyStore {
	return &FSXKeyStore{fs: fs, path: path}
}

func (s *FSXKeyStore) Load(ctx context.Context) (*keys.KeySet, error) {
	data, err := s.fs.ReadFile(ctx, s.path)
	if err != nil {
		if fsx.IsNotFound(err) {
			return nil, nil
		}
		return nil, keys.ErrStoreUnavailable(err).WithDetail("path", s.path)
	}

	var set keys.KeySet
	if err := json.Unmarshal(data, &set); err != nil {
		return nil, keys.ErrStoreCorrupt("key set is not valid JSON").
			WithCause(err).
			WithDetail("path", s.path)
	}
	return &set, nil
}

func (s *FSXKeyStore) Save(ctx context.Context, set *keys.KeySet) error {
	data, err := json.MarshalIndent(set, "", "  ")
	if err != nil {
		return keys.ErrStoreUnavailable(err)
	}
	if err := s.fs.WriteFile(ctx, s.path, data); err != nil {
		return keys.ErrStoreUnavailable(err).WithDetail("path", s.path)
	}
	return nil
}
