package keys

import (
	"context"
	"time"
)

// KeyStore persists the key set document. Load returns (nil, nil) when no
// document exists yet.
type KeyStore interface {
	Load(ctx context.Context) (*KeySet, error)
	Save(ctx context.Context, set *KeySet) error
}

// Locker serializes key creation and rotation across processes.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (release func(context.Context) error, err error)
}
