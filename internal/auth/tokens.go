package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims are the signed token payload. Both tokens of a pair carry the full
// identity; the permission set is a snapshot taken at issuance and is not
// re-derived when the catalog changes mid-lifetime.
type Claims struct {
	Email       string   `json:"email"`
	Kind        Kind     `json:"kind"`
	SubRole     SubRole  `json:"sub_role,omitempty"`
	TenantID    string   `json:"tenant_id,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
	TokenType   string   `json:"token_type"`
	jwt.RegisteredClaims
}

// TokenService issues, verifies, rotates, and revokes token pairs. Access
// tokens are stateless; refresh validity is anchored in the principal store's
// current-refresh-token pointer, making refresh tokens single-use.
type TokenService struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      Store
	now        Clock
}

// TokenOption configures TokenService behavior.
type TokenOption func(*TokenService)

// WithIssuer overrides the iss claim on issued tokens.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) {
		if issuer = strings.TrimSpace(issuer); issuer != "" {
			s.issuer = issuer
		}
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithTokenClock overrides the time source (useful for tests).
func WithTokenClock(now Clock) TokenOption {
	return func(s *TokenService) {
		if now != nil {
			s.now = now
		}
	}
}

// NewTokenService constructs a TokenService signing with HS256.
func NewTokenService(secret []byte, store Store, opts ...TokenOption) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if store == nil {
		return nil, errors.New("principal store is required")
	}
	s := &TokenService{
		secret:     secret,
		issuer:     "sptm",
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		store:      store,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Issue signs a fresh token pair for the record and overwrites the stored
// refresh token pointer.
func (s *TokenService) Issue(ctx context.Context, rec *PrincipalRecord) (TokenPair, error) {
	pair, refreshHash, err := s.mint(rec)
	if err != nil {
		return TokenPair{}, ErrAuthenticationFailed()
	}
	if err := s.store.UpdateLastLoginAndRefreshToken(ctx, rec.Kind, rec.ID, refreshHash, s.now().UTC()); err != nil {
		return TokenPair{}, remapStoreError(err)
	}
	return pair, nil
}

// Verify checks the access token's signature and expiry. It never reaches
// into the principal store.
func (s *TokenService) Verify(accessToken string) (*Claims, error) {
	claims, err := s.parse(accessToken)
	if err != nil {
		return nil, err
	}
	if claims.TokenType != tokenTypeAccess {
		return nil, ErrTokenInvalid()
	}
	return claims, nil
}

// Refresh rotates a refresh token: it must carry a valid signature, be
// unexpired, and match the principal's currently recorded refresh token.
// Rotation is a compare-and-swap, so of any number of concurrent calls with
// the same token exactly one succeeds.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (TokenPair, *PrincipalRecord, error) {
	claims, err := s.parse(refreshToken)
	if err != nil {
		return TokenPair{}, nil, ErrTokenInvalid()
	}
	if claims.TokenType != tokenTypeRefresh {
		return TokenPair{}, nil, ErrTokenInvalid()
	}

	rec, err := s.store.FindByID(ctx, claims.Kind, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrTokenInvalid()
		}
		return TokenPair{}, nil, remapStoreError(err)
	}
	if !rec.Active {
		return TokenPair{}, nil, ErrAccountInactive()
	}

	presentedHash := hashToken(refreshToken)
	if !constantTimeEqual(rec.RefreshTokenHash, presentedHash) {
		return TokenPair{}, nil, ErrTokenInvalid()
	}

	pair, newHash, err := s.mint(rec)
	if err != nil {
		return TokenPair{}, nil, ErrAuthenticationFailed()
	}
	swapped, err := s.store.SwapRefreshToken(ctx, rec.Kind, rec.ID, presentedHash, newHash)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrTokenInvalid()
		}
		return TokenPair{}, nil, remapStoreError(err)
	}
	if !swapped {
		// Another rotation with the same token won the race.
		return TokenPair{}, nil, ErrTokenInvalid()
	}
	return pair, rec, nil
}

// Revoke clears the recorded refresh token, invalidating every outstanding
// refresh token for the principal. Already-issued access tokens stay valid
// until natural expiry.
func (s *TokenService) Revoke(ctx context.Context, kind Kind, id string) error {
	if err := s.store.ClearRefreshToken(ctx, kind, id); err != nil && !errors.Is(err, ErrNotFound) {
		return remapStoreError(err)
	}
	return nil
}

func (s *TokenService) mint(rec *PrincipalRecord) (TokenPair, string, error) {
	now := s.now().UTC()
	accessExp := now.Add(s.accessTTL)
	refreshExp := now.Add(s.refreshTTL)

	perms := Permissions(rec.Kind)

	access, err := s.sign(rec, perms, tokenTypeAccess, now, accessExp)
	if err != nil {
		return TokenPair{}, "", err
	}
	refresh, err := s.sign(rec, perms, tokenTypeRefresh, now, refreshExp)
	if err != nil {
		return TokenPair{}, "", err
	}
	return TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, hashToken(refresh), nil
}

func (s *TokenService) sign(rec *PrincipalRecord, perms []string, tokenType string, now, exp time.Time) (string, error) {
	claims := Claims{
		Email:       rec.Email,
		Kind:        rec.Kind,
		SubRole:     rec.SubRole,
		TenantID:    rec.TenantID,
		Permissions: perms,
		TokenType:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   rec.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

func (s *TokenService) parse(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid()
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid()
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired()
		}
		return nil, ErrTokenInvalid()
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid()
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrTokenInvalid()
	}
	if strings.TrimSpace(claims.Subject) == "" || !claims.Kind.Known() {
		return nil, ErrTokenInvalid()
	}
	return claims, nil
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// remapStoreError converts store transport failures into the retryable
// backend-unavailable kind so raw I/O errors never leak to callers.
func remapStoreError(err error) *Error {
	var typed *Error
	if errors.As(err, &typed) {
		return typed
	}
	return ErrBackendUnavailable()
}
