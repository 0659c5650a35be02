package auth

import (
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/todo-service/internal/config"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestCodec(t *testing.T, ttl time.Duration, opts ...CodecOption) *TokenCodec {
	t.Helper()
	codec, err := NewTokenCodec(config.AuthConfig{JWTSecret: testSecret, TokenTTL: ttl}, opts...)
	require.NoError(t, err)
	return codec
}

func TestNewTokenCodec_ConfigErrors(t *testing.T) {
	short := base64.StdEncoding.EncodeToString([]byte("too-short"))

	tests := []struct {
		name   string
		secret string
		ttl    time.Duration
	}{
		{"empty secret", "", time.Hour},
		{"blank secret", "   ", time.Hour},
		{"not base64", "this is *not* base64!", time.Hour},
		{"short key", short, time.Hour},
		{"zero ttl", testSecret, 0},
		{"negative ttl", testSecret, -time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codec, err := NewTokenCodec(config.AuthConfig{JWTSecret: tt.secret, TokenTTL: tt.ttl})
			assert.Nil(t, codec)
			assert.ErrorIs(t, err, ErrConfig)
		})
	}
}

func TestDecodeSecret_AcceptsUnpadded(t *testing.T) {
	raw := []byte("0123456789abcdef0123456789abcdef-x")
	key, err := DecodeSecret(base64.RawStdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, key)
}

func TestIssueAndVerify(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, time.Hour, WithClock(clock.Now))

	token, expiresAt, err := codec.Issue("alice", nil)
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)
	assert.Equal(t, clock.now.Add(time.Hour), expiresAt)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, clock.now, claims.IssuedAt.UTC())
	assert.Equal(t, expiresAt, claims.ExpiresAt.UTC())
	assert.Empty(t, claims.Extra)
}

func TestIssue_ExtraClaims(t *testing.T) {
	codec := newTestCodec(t, time.Hour)

	token, _, err := codec.Issue("alice", map[string]any{
		"email": "a@x.com",
		"sub":   "mallory",
	})
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, "a@x.com", claims.Extra["email"])
	assert.NotContains(t, claims.Extra, "sub")
}

func TestIssue_EmptySubject(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	_, _, err := codec.Issue("", nil)
	assert.Error(t, err)
}

func TestVerify_AnyByteMutationFails(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	token, _, err := codec.Issue("alice", map[string]any{"email": "a@x.com"})
	require.NoError(t, err)

	for i := 0; i < len(token); i++ {
		mutated := []byte(token)
		if mutated[i] == 'A' {
			mutated[i] = 'B'
		} else {
			mutated[i] = 'A'
		}

		_, err := codec.Verify(string(mutated))
		require.Errorf(t, err, "mutation at byte %d verified", i)
		assert.False(t, codec.IsValid(string(mutated), "alice"))
	}
}

func TestVerify_WrongKey(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	other, err := NewTokenCodec(config.AuthConfig{
		JWTSecret: base64.StdEncoding.EncodeToString([]byte("ffffffffffffffffffffffffffffffff")),
		TokenTTL:  time.Hour,
	})
	require.NoError(t, err)

	token, _, err := other.Issue("alice", nil)
	require.NoError(t, err)

	_, err = codec.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_RejectsOtherAlgorithms(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	claims := jwt.MapClaims{"sub": "alice", "exp": time.Now().Add(time.Hour).Unix()}

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = codec.Verify(none)
	assert.ErrorIs(t, err, ErrInvalidSignature)

	key, err := DecodeSecret(testSecret)
	require.NoError(t, err)
	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(key)
	require.NoError(t, err)
	_, err = codec.Verify(hs512)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerify_Malformed(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	key, err := DecodeSecret(testSecret)
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString(key)
	require.NoError(t, err)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
	}).SignedString(key)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"empty":        "",
		"one segment":  "abc",
		"garbage":      "not.a.token",
		"missing sub":  noSubject,
		"missing exp":  noExpiry,
		"four segment": "a.b.c.d",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := codec.Verify(token)
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestVerify_DoesNotCheckExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	codec := newTestCodec(t, time.Minute, WithClock(clock.Now))

	token, _, err := codec.Issue("alice", nil)
	require.NoError(t, err)

	clock.Set(clock.now.Add(24 * time.Hour))
	claims, err := codec.Verify(token)
	require.NoError(t, err)
	assert.True(t, claims.ExpiredAt(codec.Now()))
}

func TestIsValid_ExpiryBoundary(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ttl := 15 * time.Minute
	clock := &fakeClock{now: issued}
	codec := newTestCodec(t, ttl, WithClock(clock.Now))

	token, _, err := codec.Issue("alice", nil)
	require.NoError(t, err)

	clock.Set(issued.Add(ttl - time.Second))
	assert.True(t, codec.IsValid(token, "alice"))

	clock.Set(issued.Add(ttl))
	assert.False(t, codec.IsValid(token, "alice"))

	clock.Set(issued.Add(ttl + time.Second))
	assert.False(t, codec.IsValid(token, "alice"))
}

func TestIssue_SubSecondClockMeasuresExpiryFromIssuedAt(t *testing.T) {
	issued := time.Date(2026, 3, 1, 12, 0, 0, 900_000_000, time.UTC)
	ttl := time.Hour
	clock := &fakeClock{now: issued}
	codec := newTestCodec(t, ttl, WithClock(clock.Now))

	token, expiresAt, err := codec.Issue("alice", nil)
	require.NoError(t, err)

	claims, err := codec.Verify(token)
	require.NoError(t, err)
	iat := claims.IssuedAt.UTC()
	assert.Equal(t, issued.Truncate(time.Second), iat)
	assert.Equal(t, iat.Add(ttl), claims.ExpiresAt.UTC())
	assert.Equal(t, claims.ExpiresAt.UTC(), expiresAt.UTC())

	clock.Set(iat.Add(ttl - 500*time.Millisecond))
	assert.True(t, codec.IsValid(token, "alice"))

	clock.Set(iat.Add(ttl))
	assert.False(t, codec.IsValid(token, "alice"))
}

func TestIsValid_SubjectMismatch(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	token, _, err := codec.Issue("alice", nil)
	require.NoError(t, err)

	assert.True(t, codec.IsValid(token, "alice"))
	assert.False(t, codec.IsValid(token, "bob"))
	assert.False(t, codec.IsValid("garbage", "alice"))
}

func TestTokenInteroperatesWithPlainJWTLibrary(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	token, _, err := codec.Issue("alice", nil)
	require.NoError(t, err)

	key, err := DecodeSecret(testSecret)
	require.NoError(t, err)

	parsed, err := jwt.Parse(token, func(*jwt.Token) (interface{}, error) { return key, nil })
	require.NoError(t, err)
	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	assert.Equal(t, "alice", sub)
}

func TestVerify_Concurrent(t *testing.T) {
	codec := newTestCodec(t, time.Hour)
	token, _, err := codec.Issue("alice", nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, codec.IsValid(token, "alice"))
		}()
	}
	wg.Wait()
}
