package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Abraxas-365/tenantry/pkg/config"
	"github.com/Abraxas-365/tenantry/pkg/errx"
	"github.com/Abraxas-365/tenantry/pkg/iam"
	"github.com/Abraxas-365/tenantry/pkg/iam/keys"
)

// JWTService signs tokens with the active RS256 key and validates them
// against every retained key.
type JWTService struct {
	keys       KeyProvider
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	idTTL      time.Duration
	now        func() time.Time
}

func NewJWTService(keys KeyProvider, cfg config.TokensConfig) *JWTService {
	s := &JWTService{
		keys:       keys,
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		idTTL:      cfg.IDTokenTTL,
		now:        time.Now,
	}
	if s.accessTTL == 0 {
		s.accessTTL = time.Hour
	}
	if s.refreshTTL == 0 {
		s.refreshTTL = 15 * 24 * time.Hour
	}
	if s.idTTL == 0 {
		s.idTTL = time.Hour
	}
	if s.issuer == "" {
		s.issuer = "tenantry"
	}
	return s
}

// IssueTokens signs an access token and, on request, a refresh and an ID
// token. Each gets its own claim set.
func (s *JWTService) IssueTokens(ctx context.Context, claims map[string]interface{}, includeRefresh, includeID bool) (*TokenSet, error) {
	priv, kid, err := s.keys.ActiveSigningKey(ctx)
	if err != nil {
		return nil, err
	}
	now := s.now()

	set := &TokenSet{AccessExp: now.Add(s.accessTTL)}
	if set.AccessToken, err = s.sign(priv, kid, claims, TokenTypeAccess, now, set.AccessExp); err != nil {
		return nil, err
	}

	if includeRefresh {
		exp := now.Add(s.refreshTTL)
		if set.RefreshToken, err = s.sign(priv, kid, claims, TokenTypeRefresh, now, exp); err != nil {
			return nil, err
		}
		set.RefreshExp = &exp
	}

	if includeID {
		exp := now.Add(s.idTTL)
		if set.IDToken, err = s.sign(priv, kid, claims, TokenTypeID, now, exp); err != nil {
			return nil, err
		}
		set.IDTokenExp = &exp
	}
	return set, nil
}

// IssueAccessToken signs a single access token, used by the refresh grant.
func (s *JWTService) IssueAccessToken(ctx context.Context, claims map[string]interface{}) (string, time.Time, error) {
	priv, kid, err := s.keys.ActiveSigningKey(ctx)
	if err != nil {
		return "", time.Time{}, err
	}
	now := s.now()
	exp := now.Add(s.accessTTL)
	token, err := s.sign(priv, kid, claims, TokenTypeAccess, now, exp)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

// ValidateToken checks the signature first and expiry second, so a forged
// token is reported as such even when it is also expired.
func (s *JWTService) ValidateToken(ctx context.Context, tokenString string) (*IssuedToken, error) {
	var keyErr error
	keyFunc := func(t *jwt.Token) (interface{}, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			keyErr = ErrMalformedToken("missing kid header")
			return nil, keyErr
		}
		pub, err := s.keys.PublicKey(ctx, kid)
		if err != nil {
			if errx.IsCode(err, keys.CodeUnknownKey) {
				keyErr = ErrUnknownKey(kid)
			} else {
				keyErr = err
			}
			return nil, keyErr
		}
		return pub, nil
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(s.issuer),
		jwt.WithTimeFunc(s.now),
	)

	claims := jwt.MapClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, keyFunc)
	if err != nil {
		switch {
		case keyErr != nil:
			return nil, keyErr
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrInvalidSignature()
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired()
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, ErrMalformedToken(err.Error())
		default:
			return nil, ErrMalformedToken(err.Error()).WithCause(err)
		}
	}

	issued := &IssuedToken{Claims: claims}
	issued.KeyID, _ = token.Header["kid"].(string)
	issued.Subject, _ = claims[iam.ClaimSubject].(string)
	issued.TenantID, _ = claims[iam.ClaimTenantID].(string)
	issued.TenantName, _ = claims[iam.ClaimTenantName].(string)
	issued.ClientID, _ = claims[iam.ClaimClientID].(string)
	if tt, ok := claims[iam.ClaimTokenType].(string); ok {
		issued.TokenType = TokenType(tt)
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issued.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		issued.ExpiresAt = exp.Time
	}
	return issued, nil
}

func (s *JWTService) sign(priv interface{}, kid string, claims map[string]interface{}, tokenType TokenType, now, exp time.Time) (string, error) {
	mc := jwt.MapClaims{}
	for k, v := range claims {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		mc[k] = v
	}
	mc["iat"] = now.Unix()
	mc["exp"] = exp.Unix()
	mc["iss"] = s.issuer
	mc["jti"] = uuid.NewString()
	mc[iam.ClaimTokenType] = string(tokenType)

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, mc)
	token.Header["kid"] = kid

	signed, err := token.SignedString(priv)
	if err != nil {
		return "", ErrTokenGenerationFailed(err).WithDetail("token_type", string(tokenType))
	}
	return signed, nil
}
