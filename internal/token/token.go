// Package token issues signed session tokens for users who completed a
// passkey ceremony. Issuance is optional: without a signing key the issuer is
// disabled and callers fall back to plain ceremony results.
package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"github.com/augchan42/passkey-backend-demo/internal/platform/id"
)

// ErrTokenInvalid is returned when a token fails verification.
var ErrTokenInvalid = errors.New("token is invalid")

// Config defines how session tokens are signed.
type Config struct {
	Issuer     string        `env:"PASSKEY_DEMO_TOKEN_ISSUER"      envDefault:"passkey-demo"`
	Audience   string        `env:"PASSKEY_DEMO_TOKEN_AUDIENCE"    envDefault:"passkey-demo"`
	TTL        time.Duration `env:"PASSKEY_DEMO_TOKEN_TTL"         envDefault:"1h"`
	PrivateKey string        `env:"PASSKEY_DEMO_TOKEN_PRIVATE_KEY"`
}

// LoadConfigFromEnv reads token configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{
			Issuer:   "passkey-demo",
			Audience: "passkey-demo",
			TTL:      time.Hour,
		}
	}
	if cfg.TTL <= 0 {
		cfg.TTL = time.Hour
	}
	return cfg
}

// Claims captures the validated contents of a session token.
type Claims struct {
	UserID       string
	Username     string
	CredentialID string
	ExpiresAt    time.Time
	IssuedAt     time.Time
	JWTID        string
}

// sessionClaims is the internal claims type used for signing and parsing.
type sessionClaims struct {
	jwt.RegisteredClaims
	Username     string `json:"username,omitempty"`
	CredentialID string `json:"credential_id,omitempty"`
}

// Issuer signs and verifies Ed25519 session tokens.
type Issuer struct {
	issuer      string
	audience    string
	ttl         time.Duration
	key         ed25519.PrivateKey
	clock       func() time.Time
	idGenerator func() (string, error)
}

// NewIssuerFromEnv builds an issuer from the environment. It returns a nil
// issuer without error when no signing key is configured.
func NewIssuerFromEnv() (*Issuer, error) {
	cfg := LoadConfigFromEnv()
	if strings.TrimSpace(cfg.PrivateKey) == "" {
		return nil, nil
	}
	return NewIssuer(cfg)
}

// NewIssuer builds an issuer from an explicit configuration. The private key
// is base64 encoded and may be either the 64-byte key or the 32-byte seed.
func NewIssuer(cfg Config) (*Issuer, error) {
	keyBytes, err := decodeBase64(strings.TrimSpace(cfg.PrivateKey))
	if err != nil {
		return nil, fmt.Errorf("decode token private key: %w", err)
	}
	var key ed25519.PrivateKey
	switch len(keyBytes) {
	case ed25519.PrivateKeySize:
		key = ed25519.PrivateKey(keyBytes)
	case ed25519.SeedSize:
		key = ed25519.NewKeyFromSeed(keyBytes)
	default:
		return nil, fmt.Errorf("token private key must be %d or %d bytes", ed25519.PrivateKeySize, ed25519.SeedSize)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Issuer{
		issuer:      cfg.Issuer,
		audience:    cfg.Audience,
		ttl:         ttl,
		key:         key,
		clock:       time.Now,
		idGenerator: id.NewID,
	}, nil
}

// Issue signs a session token for an authenticated user.
func (i *Issuer) Issue(userID, username, credentialID string) (string, error) {
	if i == nil || len(i.key) != ed25519.PrivateKeySize {
		return "", fmt.Errorf("token issuer is not configured")
	}
	if strings.TrimSpace(userID) == "" {
		return "", fmt.Errorf("user id is required")
	}
	jwtID, err := i.idGenerator()
	if err != nil {
		return "", fmt.Errorf("create token id: %w", err)
	}
	now := i.clock().UTC()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.issuer,
			Subject:   userID,
			Audience:  jwt.ClaimStrings{i.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        jwtID,
		},
		Username:     username,
		CredentialID: credentialID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks a session token signature and expiry.
func (i *Issuer) Verify(token string) (Claims, error) {
	if i == nil || len(i.key) != ed25519.PrivateKeySize {
		return Claims{}, fmt.Errorf("token issuer is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return Claims{}, ErrTokenInvalid
	}

	var parsed sessionClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return i.key.Public(), nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithIssuer(i.issuer),
		jwt.WithAudience(i.audience),
		jwt.WithTimeFunc(func() time.Time { return i.clock().UTC() }),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if parsed.Subject == "" || parsed.ExpiresAt == nil {
		return Claims{}, ErrTokenInvalid
	}

	claims := Claims{
		UserID:       parsed.Subject,
		Username:     parsed.Username,
		CredentialID: parsed.CredentialID,
		ExpiresAt:    parsed.ExpiresAt.Time.UTC(),
		JWTID:        parsed.ID,
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time.UTC()
	}
	return claims, nil
}

func decodeBase64(value string) ([]byte, error) {
	if value == "" {
		return nil, errors.New("empty base64 value")
	}
	decoded, err := base64.RawStdEncoding.DecodeString(value)
	if err == nil {
		return decoded, nil
	}
	return base64.StdEncoding.DecodeString(value)
}
