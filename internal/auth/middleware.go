package auth

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	apperrors "github.com/spec-kit/todo-service/pkg/util/errorutil"
)

const subjectKey = "auth_subject"

type subjectCtxKey struct{}

// AccessGuard validates bearer tokens and exposes the verified subject to
// the rest of the request.
type AccessGuard struct {
	tokens *TokenCodec
	logger *zap.Logger
}

// NewAccessGuard constructs the guard.
func NewAccessGuard(tokens *TokenCodec, logger *zap.Logger) *AccessGuard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessGuard{tokens: tokens, logger: logger}
}

// Authenticate returns the subject of a valid, unexpired token.
func (g *AccessGuard) Authenticate(raw string) (string, error) {
	claims, err := g.tokens.Verify(raw)
	if err != nil {
		g.logger.Debug("token rejected", zap.Error(err))
		return "", apperrors.NewUnauthorized("invalid token")
	}
	if claims.ExpiredAt(g.tokens.Now()) {
		g.logger.Debug("token rejected", zap.Error(ErrExpired), zap.String("subject", claims.Subject))
		return "", apperrors.NewUnauthorized("token expired")
	}
	return claims.Subject, nil
}

// Handle enforces authentication for protected routes.
func (g *AccessGuard) Handle(c *fiber.Ctx) error {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if authHeader == "" {
		return challenge(c, "missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) == "" {
		return challenge(c, "invalid authorization header")
	}

	subject, err := g.Authenticate(strings.TrimSpace(parts[1]))
	if err != nil {
		c.Set(fiber.HeaderWWWAuthenticate, `Bearer error="invalid_token"`)
		return err
	}

	c.Locals(subjectKey, subject)
	c.SetUserContext(WithSubject(c.UserContext(), subject))
	return c.Next()
}

// SubjectFromContext retrieves the authenticated subject.
func SubjectFromContext(c *fiber.Ctx) (string, bool) {
	subject, ok := c.Locals(subjectKey).(string)
	return subject, ok && subject != ""
}

// WithSubject returns a copy of ctx carrying subject.
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, subjectCtxKey{}, subject)
}

// SubjectFromUserContext reads the subject stored by WithSubject.
func SubjectFromUserContext(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(subjectCtxKey{}).(string)
	return subject, ok && subject != ""
}

func challenge(c *fiber.Ctx, message string) error {
	c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	return apperrors.NewUnauthorized(message)
}
