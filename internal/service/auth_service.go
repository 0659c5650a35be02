package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/todo-service/internal/domain"
	"github.com/spec-kit/todo-service/internal/events"
	"github.com/spec-kit/todo-service/internal/repository"
	apperrors "github.com/spec-kit/todo-service/pkg/util/errorutil"
)

// PasswordHasher hashes and verifies passwords. Hashes are never reversed.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hashed, plain string) error
}

// TokenIssuer signs tokens for a subject.
type TokenIssuer interface {
	Issue(subject string, extra map[string]any) (string, time.Time, error)
}

// RegisterInput carries a registration request.
type RegisterInput struct {
	Username        string
	Email           string
	Password        string
	ConfirmPassword string
}

// AuthService coordinates registration and login flows.
type AuthService struct {
	users      repository.UserRepository
	hasher     PasswordHasher
	tokens     TokenIssuer
	dispatcher events.Dispatcher
	logger     *zap.Logger
	dummyHash  string
}

// AuthDependencies encapsulates requirements for the auth service.
type AuthDependencies struct {
	UserRepo   repository.UserRepository
	Hasher     PasswordHasher
	Tokens     TokenIssuer
	Dispatcher events.Dispatcher
	Logger     *zap.Logger
}

// NewAuthService builds the service. It hashes a throwaway password once so
// logins for unknown users cost the same as logins with a wrong password.
func NewAuthService(deps AuthDependencies) (*AuthService, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	dummy, err := deps.Hasher.Hash(uuid.NewString())
	if err != nil {
		return nil, err
	}

	return &AuthService{
		users:      deps.UserRepo,
		hasher:     deps.Hasher,
		tokens:     deps.Tokens,
		dispatcher: deps.Dispatcher,
		logger:     logger,
		dummyHash:  dummy,
	}, nil
}

// Register creates a new account and returns a session for it.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.Session, error) {
	if in.Password != in.ConfirmPassword {
		return nil, apperrors.NewCredentialMismatch()
	}

	exists, err := s.users.ExistsByUsernameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	if exists {
		return nil, apperrors.NewDuplicateIdentity()
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// the pre-check above can race; the store's constraint decides
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperrors.NewDuplicateIdentity()
		}
		return nil, apperrors.NewInternalError(err)
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventUserRegistered, user.Username)
	return session, nil
}

// Login verifies credentials and returns a session. Unknown users and wrong
// passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, username, password string) (*domain.Session, error) {
	user, err := s.authenticate(ctx, username, password)
	if err != nil {
		if apperrors.HasCode(err, apperrors.CodeAuthenticationFailed) {
			s.publish(ctx, events.EventUserLoginFailed, username)
		}
		return nil, err
	}

	session, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.EventUserLoggedIn, user.Username)
	return session, nil
}

func (s *AuthService) authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			_ = s.hasher.Compare(s.dummyHash, password)
			return nil, apperrors.NewAuthenticationFailed()
		}
		return nil, apperrors.NewInternalError(err)
	}
	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return nil, apperrors.NewAuthenticationFailed()
	}
	return user, nil
}

func (s *AuthService) issue(user *domain.User) (*domain.Session, error) {
	token, exp, err := s.tokens.Issue(user.Username, nil)
	if err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &domain.Session{
		Token:     token,
		ExpiresAt: exp,
		Username:  user.Username,
		Email:     user.Email,
	}, nil
}

func (s *AuthService) publish(ctx context.Context, eventType events.EventType, subject string) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Publish(ctx, events.Event{Type: eventType, Subject: subject}); err != nil {
		s.logger.Warn("event handler failed", zap.String("event", string(eventType)), zap.Error(err))
	}
}
