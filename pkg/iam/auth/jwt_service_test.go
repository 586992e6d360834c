package auth

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/fsx/fsxlocal"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys/keysinfra"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys/keysrv"
)

var testTokens = config.TokensConfig{
	Issuer:     "https://id.example.test",
	AccessTTL:  time.Hour,
	RefreshTTL: 15 * 24 * time.Hour,
	IDTokenTTL: time.Hour,
}

func newTestService(t *testing.T) (*JWTService, *keysrv.Manager) {
	t.Helper()
	fs, err := fsxlocal.NewLocalFileSystem(t.TempDir())
	require.NoError(t, err)
	m := keysrv.NewManager(keysinfra.NewFSXKeyStore(fs, "keys.json"), nil, config.KeysConfig{RSABits: 1024})
	return NewJWTService(m, testTokens), m
}

func userClaims() map[string]interface{} {
	return map[string]interface{}{
		"sub":         "user-1",
		"tenant_id":   "tenant-1",
		"tenant_name": "acme",
		"client_id":   "client-1",
		"scope":       "openid profile",
	}
}

func TestIssueTokensProducesIndependentTriple(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	set, err := svc.IssueTokens(ctx, userClaims(), true, true)
	require.NoError(t, err)
	require.NotNil(t, set.RefreshExp)
	require.NotNil(t, set.IDTokenExp)

	cases := map[string]TokenType{
		set.AccessToken:  TokenTypeAccess,
		set.RefreshToken: TokenTypeRefresh,
		set.IDToken:      TokenTypeID,
	}
	jtis := map[string]bool{}
	for raw, want := range cases {
		issued, err := svc.ValidateToken(ctx, raw)
		require.NoError(t, err)
		assert.Equal(t, want, issued.TokenType)
		assert.Equal(t, "user-1", issued.Subject)
		assert.Equal(t, "tenant-1", issued.TenantID)
		assert.Equal(t, "acme", issued.TenantName)
		assert.NotEmpty(t, issued.KeyID)
		jtis[issued.ClaimString("jti")] = true
	}
	assert.Len(t, jtis, 3)

	refreshTTL := set.RefreshExp.Sub(set.AccessExp)
	assert.InDelta(t, (15*24*time.Hour - time.Hour).Seconds(), refreshTTL.Seconds(), 1)
}

func TestReservedClaimsCannotBeOverridden(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	claims := userClaims()
	claims["exp"] = time.Now().Add(100 * 365 * 24 * time.Hour).Unix()
	claims["token_type"] = "refresh_token"
	claims["iss"] = "evil"

	set, err := svc.IssueTokens(ctx, claims, false, false)
	require.NoError(t, err)
	assert.Empty(t, set.RefreshToken)

	issued, err := svc.ValidateToken(ctx, set.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, TokenTypeAccess, issued.TokenType)
	assert.Equal(t, testTokens.Issuer, issued.ClaimString("iss"))
	assert.WithinDuration(t, time.Now().Add(time.Hour), issued.ExpiresAt, 5*time.Second)
}

func TestExpiredTokenIsDistinct(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	svc.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	set, err := svc.IssueTokens(ctx, userClaims(), false, false)
	require.NoError(t, err)
	svc.now = time.Now

	_, err = svc.ValidateToken(ctx, set.AccessToken)
	require.Error(t, err)
	assert.True(t, errx.IsCode(err, CodeTokenExpired))
	assert.Equal(t, errx.TypeExpired, errx.TypeOf(err))
}

func TestForgedSignatureFailsEvenWhenExpired(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	_, kid, err := m.ActiveSigningKey(ctx)
	require.NoError(t, err)

	attacker, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)

	for name, exp := range map[string]time.Time{
		"fresh":   time.Now().Add(time.Hour),
		"expired": time.Now().Add(-time.Hour),
	} {
		t.Run(name, func(t *testing.T) {
			forged := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
				"sub":        "user-1",
				"iss":        testTokens.Issuer,
				"exp":        exp.Unix(),
				"token_type": "access_token",
			})
			forged.Header["kid"] = kid
			raw, err := forged.SignedString(attacker)
			require.NoError(t, err)

			_, err = svc.ValidateToken(ctx, raw)
			require.Error(t, err)
			assert.True(t, errx.IsCode(err, CodeInvalidSignature))
		})
	}
}

func TestUnknownKidAndMalformedTokens(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, err := svc.IssueTokens(ctx, userClaims(), false, false)
	require.NoError(t, err)

	other, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"iss": testTokens.Issuer, "exp": time.Now().Add(time.Hour).Unix()})
	tok.Header["kid"] = "not-a-known-kid"
	raw, err := tok.SignedString(other)
	require.NoError(t, err)

	_, err = svc.ValidateToken(ctx, raw)
	assert.True(t, errx.IsCode(err, CodeUnknownKey))

	noKid := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{"iss": testTokens.Issuer, "exp": time.Now().Add(time.Hour).Unix()})
	raw, err = noKid.SignedString(other)
	require.NoError(t, err)
	_, err = svc.ValidateToken(ctx, raw)
	assert.True(t, errx.IsCode(err, CodeMalformedToken))

	_, err = svc.ValidateToken(ctx, "not.a.jwt")
	assert.True(t, errx.IsCode(err, CodeMalformedToken))
}

func TestRotationKeepsOldTokensValid(t *testing.T) {
	svc, m := newTestService(t)
	ctx := context.Background()

	before, err := svc.IssueTokens(ctx, userClaims(), false, false)
	require.NoError(t, err)

	newKid, err := m.RotateKey(ctx)
	require.NoError(t, err)

	after, err := svc.IssueTokens(ctx, userClaims(), false, false)
	require.NoError(t, err)

	old, err := svc.ValidateToken(ctx, before.AccessToken)
	require.NoError(t, err)
	fresh, err := svc.ValidateToken(ctx, after.AccessToken)
	require.NoError(t, err)

	assert.NotEqual(t, old.KeyID, fresh.KeyID)
	assert.Equal(t, newKid, fresh.KeyID)
}
