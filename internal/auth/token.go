package auth

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/spec-kit/todo-service/internal/config"
)

// MinSecretBytes is the smallest decoded key accepted for HS256.
const MinSecretBytes = 32

var (
	// ErrConfig reports an unusable signing secret or lifetime. It is fatal at startup.
	ErrConfig = errors.New("invalid token configuration")
	// ErrInvalidSignature reports a token signed with another key or algorithm, or tampered with.
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrMalformed reports a token that is not a structurally valid JWT.
	ErrMalformed = errors.New("malformed token")
	// ErrExpired reports a correctly signed token past its expiry.
	ErrExpired = errors.New("token expired")
)

var reservedClaims = map[string]struct{}{"sub": {}, "iat": {}, "exp": {}}

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// ExpiredAt reports whether the token is no longer valid at now.
func (c *Claims) ExpiredAt(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// TokenCodec issues and verifies HS256 JWTs. It holds no mutable state after
// construction and is safe for concurrent use.
type TokenCodec struct {
	key    []byte
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

// CodecOption customizes a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock overrides the time source used for issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(tc *TokenCodec) {
		if now != nil {
			tc.now = now
		}
	}
}

// NewTokenCodec builds a codec from the configured base64 secret and lifetime.
func NewTokenCodec(cfg config.AuthConfig, opts ...CodecOption) (*TokenCodec, error) {
	key, err := DecodeSecret(cfg.JWTSecret)
	if err != nil {
		return nil, err
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("%w: token lifetime must be positive, got %s", ErrConfig, cfg.TokenTTL)
	}

	tc := &TokenCodec{
		key: key,
		ttl: cfg.TokenTTL,
		now: time.Now,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithStrictDecoding(),
			jwt.WithoutClaimsValidation(),
		),
	}
	for _, opt := range opts {
		opt(tc)
	}
	return tc, nil
}

// DecodeSecret turns the configured base64 secret into key bytes.
func DecodeSecret(secret string) ([]byte, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, fmt.Errorf("%w: secret is empty", ErrConfig)
	}

	key, err := base64.StdEncoding.DecodeString(secret)
	if err != nil {
		key, err = base64.RawStdEncoding.DecodeString(secret)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: secret is not valid base64", ErrConfig)
	}
	if len(key) < MinSecretBytes {
		return nil, fmt.Errorf("%w: secret must decode to at least %d bytes, got %d", ErrConfig, MinSecretBytes, len(key))
	}
	return key, nil
}

// Now returns the codec's current time.
func (tc *TokenCodec) Now() time.Time {
	return tc.now()
}

// Issue signs a token for subject. Extra claims are copied in first, so they
// can never replace sub, iat or exp.
func (tc *TokenCodec) Issue(subject string, extra map[string]any) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("token subject is empty")
	}

	// NumericDate keeps whole seconds; exp is derived from the truncated iat
	// so a token lives exactly ttl from its iat.
	now := tc.now().Truncate(time.Second)
	issuedAt := jwt.NewNumericDate(now)
	expiresAt := jwt.NewNumericDate(now.Add(tc.ttl))

	claims := make(jwt.MapClaims, len(extra)+len(reservedClaims))
	for k, v := range extra {
		claims[k] = v
	}
	claims["sub"] = subject
	claims["iat"] = issuedAt
	claims["exp"] = expiresAt

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(tc.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expiresAt.Time, nil
}

// Verify checks the signature and structure of tokenStr and returns its
// claims. Expiry is not checked here.
func (tc *TokenCodec) Verify(tokenStr string) (*Claims, error) {
	mapClaims := jwt.MapClaims{}
	_, err := tc.parser.ParseWithClaims(tokenStr, mapClaims, func(*jwt.Token) (interface{}, error) {
		return tc.key, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claimsFromMap(mapClaims)
}

// IsValid reports whether tokenStr verifies, belongs to expectedSubject and
// has not expired. It never returns an error.
func (tc *TokenCodec) IsValid(tokenStr, expectedSubject string) bool {
	claims, err := tc.Verify(tokenStr)
	if err != nil {
		return false
	}
	return claims.Subject == expectedSubject && !claims.ExpiredAt(tc.now())
}

func claimsFromMap(m jwt.MapClaims) (*Claims, error) {
	sub, err := m.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrMalformed)
	}
	exp, err := m.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, fmt.Errorf("%w: missing expiry", ErrMalformed)
	}
	iat, err := m.GetIssuedAt()
	if err != nil {
		return nil, fmt.Errorf("%w: bad issued-at", ErrMalformed)
	}

	claims := &Claims{Subject: sub, ExpiresAt: exp.Time, Extra: map[string]any{}}
	if iat != nil {
		claims.IssuedAt = iat.Time
	}
	for k, v := range m {
		if _, reserved := reservedClaims[k]; reserved {
			continue
		}
		claims.Extra[k] = v
	}
	return claims, nil
}
