// Package identity signs and verifies bearer tokens and hashes passwords.
package identity

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/learning-layers/Timeliner/internal/platform/errors"
	"github.com/learning-layers/Timeliner/internal/platform/id"
)

// TokenConfig defines how bearer tokens are issued and checked.
type TokenConfig struct {
	Secret   string        `env:"TIMELINER_JWT_SECRET"`
	Issuer   string        `env:"TIMELINER_JWT_ISSUER" envDefault:"timeliner"`
	Audience string        `env:"TIMELINER_JWT_AUDIENCE" envDefault:"timeliner-api"`
	TTL      time.Duration `env:"TIMELINER_JWT_TTL" envDefault:"168h"`
}

// Claims are the validated contents of a bearer token.
type Claims struct {
	UserID    string
	Admin     bool
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	jwt.RegisteredClaims
	Admin bool `json:"admin,omitempty"`
}

// Tokens issues and verifies HS256 bearer tokens.
type Tokens struct {
	cfg TokenConfig
	now func() time.Time
}

// NewTokens validates cfg and builds a token service.
func NewTokens(cfg TokenConfig, now func() time.Time) (*Tokens, error) {
	cfg.Secret = strings.TrimSpace(cfg.Secret)
	if len(cfg.Secret) < 16 {
		return nil, fmt.Errorf("TIMELINER_JWT_SECRET must be at least 16 characters")
	}
	if strings.TrimSpace(cfg.Issuer) == "" || strings.TrimSpace(cfg.Audience) == "" {
		return nil, fmt.Errorf("token issuer and audience are required")
	}
	if cfg.TTL <= 0 {
		return nil, fmt.Errorf("token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &Tokens{cfg: cfg, now: now}, nil
}

// Sign issues a token for userID.
func (t *Tokens) Sign(userID string, admin bool) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	jti, err := id.NewID()
	if err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	issuedAt := t.now().UTC()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Issuer:    t.cfg.Issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{t.cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(issuedAt.Add(t.cfg.TTL)),
		},
		Admin: admin,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(t.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, audience and expiry.
func (t *Tokens) Verify(token string) (Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, apperrors.New(apperrors.CodeAuthorizationHeaderMissing, "token is required")
	}
	var parsed tokenClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return []byte(t.cfg.Secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(t.cfg.Issuer),
		jwt.WithAudience(t.cfg.Audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return Claims{}, mapJWTError(err)
	}
	if strings.TrimSpace(parsed.Subject) == "" {
		return Claims{}, apperrors.New(apperrors.CodeTokenVerificationFailed, "token subject is required")
	}
	claims := Claims{UserID: parsed.Subject, Admin: parsed.Admin}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time.UTC()
	}
	return claims, nil
}

func mapJWTError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return apperrors.Wrap(apperrors.CodeMalformedAuthorization, "token is malformed", err)
	default:
		return apperrors.Wrap(apperrors.CodeTokenVerificationFailed, "token verification failed", err)
	}
}
