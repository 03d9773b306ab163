/*
Package auth issues and verifies access credentials.

PURPOSE:
  HMAC-signed JWT access tokens carry the actor identity (user, company,
  employee, role). Refresh tokens are opaque UUIDs held in redis with a
  TTL; logout revokes them and blacklists the access token's jti until
  it would have expired anyway.

TOKEN CLAIMS:
  sub   user id
  cid   company id
  eid   employee id (0 for staff-only users)
  role  role name
  jti   token id, used by the blacklist
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/kyuyo/payroll-engine/model"
)

// ErrInvalidToken covers every verification failure: bad signature,
// expiry, malformed claims, or a blacklisted jti.
var ErrInvalidToken = errors.New("invalid token")

// ErrBadCredentials is returned on username/password mismatch. The API
// must not reveal which half failed.
var ErrBadCredentials = errors.New("bad credentials")

// =============================================================================
// PASSWORDS
// =============================================================================

// HashPassword derives a bcrypt hash at the default cost.
func HashPassword(plain string) (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(h), nil
}

// CheckPassword compares a candidate against the stored hash.
func CheckPassword(hash, plain string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)); err != nil {
		return ErrBadCredentials
	}
	return nil
}

// =============================================================================
// TOKENS
// =============================================================================

// Claims is the JWT payload of an access token.
type Claims struct {
	CompanyID  int64      `json:"cid"`
	EmployeeID int64      `json:"eid"`
	Role       model.Role `json:"role"`
	jwt.RegisteredClaims
}

// TokenPair is what a successful login returns.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// Manager signs, verifies, and revokes tokens.
type Manager struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	cache      *redis.Client
	now        func() time.Time
}

// NewManager builds a Manager. cache may be nil; refresh tokens and
// the blacklist are then disabled (useful in tests).
func NewManager(secret string, accessTTL, refreshTTL time.Duration, cache *redis.Client) *Manager {
	return &Manager{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		cache:      cache,
		now:        time.Now,
	}
}

func refreshKey(token string) string { return "auth:refresh:" + token }
func blacklistKey(jti string) string { return "auth:revoked:" + jti }

// Issue signs an access token for the actor and registers a refresh
// token in the cache.
func (m *Manager) Issue(ctx context.Context, actor model.Actor) (*TokenPair, error) {
	now := m.now()
	claims := Claims{
		CompanyID:  actor.CompanyID,
		EmployeeID: actor.EmployeeID,
		Role:       actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(actor.UserID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
	}
	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}

	pair := &TokenPair{
		AccessToken: access,
		ExpiresIn:   int(m.accessTTL.Seconds()),
	}
	if m.cache != nil {
		refresh := uuid.NewString()
		if err := m.cache.Set(ctx, refreshKey(refresh), claims.Subject, m.refreshTTL).Err(); err != nil {
			return nil, fmt.Errorf("store refresh token: %w", err)
		}
		pair.RefreshToken = refresh
	}
	return pair, nil
}

// Verify parses and validates an access token, including the revocation
// blacklist.
func (m *Manager) Verify(ctx context.Context, token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidToken
	}

	if m.cache != nil && claims.ID != "" {
		n, err := m.cache.Exists(ctx, blacklistKey(claims.ID)).Result()
		if err != nil {
			return nil, fmt.Errorf("check token blacklist: %w", err)
		}
		if n > 0 {
			return nil, ErrInvalidToken
		}
	}
	return claims, nil
}

// RefreshUserID resolves a refresh token to its user id, or
// ErrInvalidToken when unknown or expired.
func (m *Manager) RefreshUserID(ctx context.Context, refresh string) (int64, error) {
	if m.cache == nil {
		return 0, ErrInvalidToken
	}
	sub, err := m.cache.Get(ctx, refreshKey(refresh)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, ErrInvalidToken
	}
	if err != nil {
		return 0, fmt.Errorf("load refresh token: %w", err)
	}
	id, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return 0, ErrInvalidToken
	}
	return id, nil
}

// Revoke drops the refresh token and blacklists the access token's jti
// for its remaining lifetime.
func (m *Manager) Revoke(ctx context.Context, claims *Claims, refresh string) error {
	if m.cache == nil {
		return nil
	}
	if refresh != "" {
		if err := m.cache.Del(ctx, refreshKey(refresh)).Err(); err != nil {
			return fmt.Errorf("drop refresh token: %w", err)
		}
	}
	if claims != nil && claims.ID != "" && claims.ExpiresAt != nil {
		ttl := time.Until(claims.ExpiresAt.Time)
		if ttl > 0 {
			if err := m.cache.Set(ctx, blacklistKey(claims.ID), "1", ttl).Err(); err != nil {
				return fmt.Errorf("blacklist token: %w", err)
			}
		}
	}
	return nil
}

// Actor converts verified claims back into the domain actor.
func (c *Claims) Actor() (model.Actor, error) {
	userID, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil {
		return model.Actor{}, ErrInvalidToken
	}
	return model.Actor{
		UserID:     userID,
		CompanyID:  c.CompanyID,
		EmployeeID: c.EmployeeID,
		Role:       c.Role,
	}, nil
}
