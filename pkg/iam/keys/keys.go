package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"net/http"
	"sort"
	"time"

	"github.com/Abraxas-365/tenantry/pkg/errx"
)

// ============================================================================
// Entities
// ============================================================================

// KeyRecord is the persisted form of one signing key.
type KeyRecord struct {
	PrivateKey string    `json:"private_key"`
	CreatedAt  time.Time `json:"created_at"`
}

// KeySet is the document stored on disk or in the bucket. Keys are never
// removed; ActiveKID selects the one used for signing.
type KeySet struct {
	ActiveKID string               `json:"active_kid"`
	Keys      map[string]KeyRecord `json:"keys"`
}

// SigningKey is a decoded RSA key with its identifier.
type SigningKey struct {
	KID       string
	Private   *rsa.PrivateKey
	CreatedAt time.Time
}

// KeyInfo is the listing view of a retained key.
type KeyInfo struct {
	KID       string    `json:"kid"`
	CreatedAt time.Time `json:"created_at"`
	Active    bool      `json:"active"`
}

// DeriveKID returns base64url(sha256(modulus)) without padding.
func DeriveKID(pub *rsa.PublicKey) string {
	sum := sha256.Sum256(pub.N.Bytes())
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateSigningKey creates a fresh RSA key of the given size.
func GenerateSigningKey(bits int, now time.Time) (*SigningKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(CodeGenerationFailed, err).WithDetail("bits", bits)
	}
	return &SigningKey{
		KID:       DeriveKID(&priv.PublicKey),
		Private:   priv,
		CreatedAt: now.UTC(),
	}, nil
}

// EncodePrivateKey renders the key as a PKCS#8 PEM block.
func EncodePrivateKey(priv *rsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeGenerationFailed, err)
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// DecodePrivateKey parses a PKCS#8 PEM RSA private key.
func DecodePrivateKey(data string) (*rsa.PrivateKey, error) {
	block, _ := pem.Decode([]byte(data))
	if block == nil {
		return nil, ErrStoreCorrupt("private key is not PEM encoded")
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, ErrStoreCorrupt("private key is not PKCS#8").WithCause(err)
	}
	priv, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, ErrStoreCorrupt("private key is not RSA")
	}
	return priv, nil
}

// Add stores k in the set and makes it active.
func (s *KeySet) Add(k *SigningKey) error {
	encoded, err := EncodePrivateKey(k.Private)
	if err != nil {
		return err
	}
	if s.Keys == nil {
		s.Keys = make(map[string]KeyRecord)
	}
	s.Keys[k.KID] = KeyRecord{PrivateKey: encoded, CreatedAt: k.CreatedAt}
	s.ActiveKID = k.KID
	return nil
}

// Decode validates the whole document and returns the keys ordered by
// creation time together with the active one. Any inconsistency is reported
// as a corrupt store.
func (s *KeySet) Decode() ([]*SigningKey, *SigningKey, error) {
	if len(s.Keys) == 0 {
		return nil, nil, ErrStoreCorrupt("key set contains no keys")
	}

	decoded := make([]*SigningKey, 0, len(s.Keys))
	var active *SigningKey
	for kid, rec := range s.Keys {
		priv, err := DecodePrivateKey(rec.PrivateKey)
		if err != nil {
			return nil, nil, errx.Wrap(err, "undecodable key", errx.TypeIntegrity).WithDetail("kid", kid)
		}
		if DeriveKID(&priv.PublicKey) != kid {
			return nil, nil, ErrStoreCorrupt("kid does not match key modulus").WithDetail("kid", kid)
		}
		k := &SigningKey{KID: kid, Private: priv, CreatedAt: rec.CreatedAt}
		if kid == s.ActiveKID {
			active = k
		}
		decoded = append(decoded, k)
	}
	if active == nil {
		return nil, nil, ErrStoreCorrupt("active key is missing").WithDetail("active_kid", s.ActiveKID)
	}

	sort.Slice(decoded, func(i, j int) bool {
		if decoded[i].CreatedAt.Equal(decoded[j].CreatedAt) {
			return decoded[i].KID < decoded[j].KID
		}
		return decoded[i].CreatedAt.Before(decoded[j].CreatedAt)
	})
	return decoded, active, nil
}

// ============================================================================
// Error Registry
// ============================================================================

var ErrRegistry = errx.NewRegistry("KEYS")

var (
	CodeStoreCorrupt     = ErrRegistry.Register("STORE_CORRUPT", errx.TypeIntegrity, http.StatusInternalServerError, "Key store is corrupt")
	CodeStoreUnavailable = ErrRegistry.Register("STORE_UNAVAILABLE", errx.TypeExternal, http.StatusServiceUnavailable, "Key store unavailable")
	CodeUnknownKey       = ErrRegistry.Register("UNKNOWN_KEY", errx.TypeIntegrity, http.StatusUnauthorized, "Unknown signing key")
	CodeGenerationFailed = ErrRegistry.Register("GENERATION_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Key generation failed")
	CodeLockFailed       = ErrRegistry.Register("LOCK_FAILED", errx.TypeInternal, http.StatusServiceUnavailable, "Could not acquire key lock")
)

func ErrStoreCorrupt(reason string) *errx.Error {
	return ErrRegistry.New(CodeStoreCorrupt).WithDetail("reason", reason)
}

func ErrStoreUnavailable(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeStoreUnavailable, cause)
}

func ErrUnknownKey(kid string) *errx.Error {
	return ErrRegistry.New(CodeUnknownKey).WithDetail("kid", kid)
}

func ErrLockFailed(cause error) *errx.Error {
	return ErrRegistry.NewWithCause(CodeLockFailed, cause)
}
