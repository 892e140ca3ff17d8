package utils

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/access-control-api/internal/model"
)

// TokenConfig holds the signing parameters for session tokens.
type TokenConfig struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

// SessionClaims is the payload of a session token. Sub carries the user id
// as a string; UserID and RoleID repeat the numeric ids for clients that do
// not parse the subject.
type SessionClaims struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	UserID int64  `json:"userId"`
	RoleID int64  `json:"roleId"`
	jwt.RegisteredClaims
}

// Principal converts validated claims into the request principal.
func (c *SessionClaims) Principal() model.Principal {
	return model.Principal{
		UserID:   c.UserID,
		RoleID:   c.RoleID,
		RoleName: c.Role,
		Email:    c.Email,
		Name:     c.Name,
		TokenID:  c.ID,
	}
}

// AccessToken is a signed session token and its expiry.
type AccessToken struct {
	Token string
	Exp   time.Time
}

// RefreshToken is an opaque token exchanged for a new session. Only its
// hash is stored server side.
type RefreshToken struct {
	Raw string
	Exp time.Time
}

var ErrInvalidToken = errors.New("invalid token")

// NewAccessToken signs an HS256 session token for u.
func NewAccessToken(cfg TokenConfig, u *model.User, now time.Time) (AccessToken, error) {
	exp := now.Add(cfg.TTL)
	claims := SessionClaims{
		Name:   u.FullName(),
		Email:  u.Email,
		Role:   u.RoleName,
		UserID: u.ID,
		RoleID: u.RoleID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(u.ID, 10),
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return AccessToken{}, fmt.Errorf("sign session token: %w", err)
	}
	return AccessToken{Token: signed, Exp: exp}, nil
}

// ParseAccessToken validates signature, algorithm, expiry, issuer and
// audience and returns the claims.
func ParseAccessToken(cfg TokenConfig, raw string) (*SessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	claims := &SessionClaims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		return []byte(cfg.Secret), nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == 0 {
		id, err := strconv.ParseInt(claims.Subject, 10, 64)
		if err != nil {
			return nil, ErrInvalidToken
		}
		claims.UserID = id
	}
	return claims, nil
}

// NewRefreshToken returns 48 random bytes, hex encoded, valid for ttl.
func NewRefreshToken(ttl time.Duration, now time.Time) (RefreshToken, error) {
	buf := make([]byte, 48)
	if _, err := rand.Read(buf); err != nil {
		return RefreshToken{}, fmt.Errorf("refresh token entropy: %w", err)
	}
	return RefreshToken{Raw: hex.EncodeToString(buf), Exp: now.Add(ttl)}, nil
}

// HashRefreshRaw returns the hex SHA-256 of a raw refresh token.
func HashRefreshRaw(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
