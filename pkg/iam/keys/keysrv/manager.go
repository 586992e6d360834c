package keysrv

import (
	"context"
	"crypto/rsa"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwk"
	"golang.org/x/sync/singleflight"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys"
	"github.com/Abraxas-365/tenantry/pkg/logx"
	"github.com/Abraxas-365/tenantry/pkg/metrics"
)

const lockName = "signing-keys"

// missReloadInterval bounds how often an unknown kid may force a store read.
const missReloadInterval = 5 * time.Second

// snapshot is an immutable decoded view of the key set.
type snapshot struct {
	active  *keys.SigningKey
	ordered []*keys.SigningKey
	jwks    jwk.Set
}

// Manager owns the signing keys. Reads go through an in-memory snapshot;
// creation and rotation are serialized locally and, when a Locker is
// configured, across processes.
type Manager struct {
	store   keys.KeyStore
	locker  keys.Locker
	bits    int
	lockTTL time.Duration

	mu      sync.RWMutex
	current *snapshot

	writeMu sync.Mutex
	loads   singleflight.Group
	now     func() time.Time

	missMu     sync.Mutex
	lastMissAt time.Time
}

// NewManager builds a manager. locker may be nil for single-process setups.
func NewManager(store keys.KeyStore, locker keys.Locker, cfg config.KeysConfig) *Manager {
	bits := cfg.RSABits
	if bits == 0 {
		bits = 2048
	}
	lockTTL := cfg.LockTTL
	if lockTTL == 0 {
		lockTTL = 30 * time.Second
	}
	return &Manager{
		store:   store,
		locker:  locker,
		bits:    bits,
		lockTTL: lockTTL,
		now:     time.Now,
	}
}

// ActiveSigningKey returns the key used for new signatures, creating the
// first one when the store is empty.
func (m *Manager) ActiveSigningKey(ctx context.Context) (*rsa.PrivateKey, string, error) {
	snap, err := m.load(ctx)
	if err != nil {
		return nil, "", err
	}
	if snap == nil {
		if snap, err = m.createFirst(ctx); err != nil {
			return nil, "", err
		}
	}
	return snap.active.Private, snap.active.KID, nil
}

// PublicKey resolves a kid through the JWKS, reloading on a miss so keys
// rotated by another process are found. Misses reload at most once per
// missReloadInterval; inside the window an unknown kid fails fast.
func (m *Manager) PublicKey(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	snap, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if snap != nil {
		if pub, ok := lookup(snap.jwks, kid); ok {
			return pub, nil
		}
	}

	if !m.allowMissReload() {
		return nil, keys.ErrUnknownKey(kid)
	}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	if snap = m.cached(); snap != nil {
		if pub, ok := lookup(snap.jwks, kid); ok {
			return pub, nil
		}
	}
	return nil, keys.ErrUnknownKey(kid)
}

// RotateKey generates a new key and makes it active. Prior keys stay in the
// set so tokens they signed keep validating.
func (m *Manager) RotateKey(ctx context.Context) (string, error) {
	var kid string
	err := m.withLock(ctx, func(ctx context.Context) error {
		set, err := m.store.Load(ctx)
		if err != nil {
			return err
		}
		if set == nil {
			set = &keys.KeySet{}
		} else if _, _, err := set.Decode(); err != nil {
			return err
		}

		k, err := keys.GenerateSigningKey(m.bits, m.now())
		if err != nil {
			return err
		}
		if err := set.Add(k); err != nil {
			return err
		}
		if err := m.store.Save(ctx, set); err != nil {
			return err
		}
		if _, err := m.install(set); err != nil {
			return err
		}
		kid = k.KID
		return nil
	})
	if err != nil {
		return "", err
	}

	metrics.KeyRotationsTotal.Inc()
	logx.WithField("kid", kid).Info("🔑 Signing key rotated")
	return kid, nil
}

// JWKS returns the public half of every retained key in creation order.
func (m *Manager) JWKS(ctx context.Context) (jwk.Set, error) {
	snap, err := m.load(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return jwk.NewSet(), nil
	}
	return snap.jwks, nil
}

// Keys lists retained keys for operators.
func (m *Manager) Keys(ctx context.Context) ([]keys.KeyInfo, error) {
	snap, err := m.load(ctx)
	if err != nil || snap == nil {
		return nil, err
	}
	out := make([]keys.KeyInfo, 0, len(snap.ordered))
	for _, k := range snap.ordered {
		out = append(out, keys.KeyInfo{
			KID:       k.KID,
			CreatedAt: k.CreatedAt,
			Active:    k.KID == snap.active.KID,
		})
	}
	return out, nil
}

// Reload re-reads the store. Concurrent callers share one read.
func (m *Manager) Reload(ctx context.Context) error {
	_, err, _ := m.loads.Do("reload", func() (interface{}, error) {
		set, err := m.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		if set == nil {
			return nil, nil
		}
		return m.install(set)
	})
	return err
}

// StartRefresh reloads the key set every interval until ctx is done.
func (m *Manager) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.Reload(ctx); err != nil {
				logx.WithError(err).Warn("Signing key refresh failed")
			}
		}
	}
}

// ============================================================================
// internals
// ============================================================================

func (m *Manager) allowMissReload() bool {
	m.missMu.Lock()
	defer m.missMu.Unlock()

	now := m.now()
	if !m.lastMissAt.IsZero() && now.Sub(m.lastMissAt) < missReloadInterval {
		return false
	}
	m.lastMissAt = now
	return true
}

func (m *Manager) cached() *snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// load returns the cached view, loading it on first use. A nil snapshot
// with a nil error means the store holds no key set yet.
func (m *Manager) load(ctx context.Context) (*snapshot, error) {
	if snap := m.cached(); snap != nil {
		return snap, nil
	}
	if err := m.Reload(ctx); err != nil {
		return nil, err
	}
	return m.cached(), nil
}

func (m *Manager) createFirst(ctx context.Context) (*snapshot, error) {
	err := m.withLock(ctx, func(ctx context.Context) error {
		// Another process may have created the set while we waited.
		set, err := m.store.Load(ctx)
		if err != nil {
			return err
		}
		if set != nil {
			_, err := m.install(set)
			return err
		}

		k, err := keys.GenerateSigningKey(m.bits, m.now())
		if err != nil {
			return err
		}
		set = &keys.KeySet{}
		if err := set.Add(k); err != nil {
			return err
		}
		if err := m.store.Save(ctx, set); err != nil {
			return err
		}
		if _, err := m.install(set); err != nil {
			return err
		}
		logx.WithField("kid", k.KID).Info("🔑 Initial signing key created")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m.cached(), nil
}

func (m *Manager) withLock(ctx context.Context, fn func(context.Context) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	if m.locker == nil {
		return fn(ctx)
	}

	release, err := m.locker.Acquire(ctx, lockName, m.lockTTL)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			logx.WithError(err).Warn("Failed to release signing key lock")
		}
	}()
	return fn(ctx)
}

func (m *Manager) install(set *keys.KeySet) (*snapshot, error) {
	ordered, active, err := set.Decode()
	if err != nil {
		logx.WithError(err).Error("Signing key store is corrupt, refusing to sign")
		return nil, err
	}

	jwks := jwk.NewSet()
	for _, k := range ordered {
		pub, err := publicJWK(k)
		if err != nil {
			return nil, err
		}
		if err := jwks.AddKey(pub); err != nil {
			return nil, errx.Wrap(err, "failed to build JWKS", errx.TypeInternal)
		}
	}

	snap := &snapshot{active: active, ordered: ordered, jwks: jwks}
	m.mu.Lock()
	m.current = snap
	m.mu.Unlock()
	return snap, nil
}

func publicJWK(k *keys.SigningKey) (jwk.Key, error) {
	pub, err := jwk.FromRaw(&k.Private.PublicKey)
	if err != nil {
		return nil, errx.Wrap(err, "failed to convert public key", errx.TypeInternal).WithDetail("kid", k.KID)
	}
	for name, value := range map[string]interface{}{
		jwk.KeyIDKey:     k.KID,
		jwk.AlgorithmKey: jwa.RS256,
		jwk.KeyUsageKey:  jwk.ForSignature,
	} {
		if err := pub.Set(name, value); err != nil {
			return nil, errx.Wrap(err, "failed to set JWK field", errx.TypeInternal).WithDetail("field", name)
		}
	}
	return pub, nil
}

func lookup(set jwk.Set, kid string) (*rsa.PublicKey, bool) {
	key, ok := set.LookupKeyID(kid)
	if !ok {
		return nil, false
	}
	var pub rsa.PublicKey
	if err := key.Raw(&pub); err != nil {
		return nil, false
	}
	return &pub, true
}
