package service

import (
	"context"
	"encoding/base64"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/spec-kit/todo-service/internal/auth"
	"github.com/spec-kit/todo-service/internal/config"
	"github.com/spec-kit/todo-service/internal/domain"
	"github.com/spec-kit/todo-service/internal/events"
	"github.com/spec-kit/todo-service/internal/repository"
	apperrors "github.com/spec-kit/todo-service/pkg/util/errorutil"
)

var testSecret = base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef"))

type mockHasher struct {
	mock.Mock
}

func (m *mockHasher) Hash(password string) (string, error) {
	args := m.Called(password)
	return args.String(0), args.Error(1)
}

func (m *mockHasher) Compare(hashed, plain string) error {
	return m.Called(hashed, plain).Error(0)
}

type mockDispatcher struct {
	mock.Mock
}

func (m *mockDispatcher) Publish(ctx context.Context, event events.Event) error {
	return m.Called(ctx, event).Error(0)
}

func (m *mockDispatcher) Subscribe(eventType events.EventType, handler events.EventHandler) {
	m.Called(eventType, handler)
}

// failingUserRepo wraps the memory store and injects errors.
type failingUserRepo struct {
	*repository.MemoryUserRepository
	existsErr error
	createErr error
	getErr    error
}

func (r *failingUserRepo) ExistsByUsernameOrEmail(ctx context.Context, username, email string) (bool, error) {
	if r.existsErr != nil {
		return false, r.existsErr
	}
	return r.MemoryUserRepository.ExistsByUsernameOrEmail(ctx, username, email)
}

func (r *failingUserRepo) Create(ctx context.Context, user *domain.User) error {
	if r.createErr != nil {
		return r.createErr
	}
	return r.MemoryUserRepository.Create(ctx, user)
}

func (r *failingUserRepo) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	return r.MemoryUserRepository.GetByUsername(ctx, username)
}

type authFixture struct {
	svc    *AuthService
	users  *repository.MemoryUserRepository
	codec  *auth.TokenCodec
	guard  *auth.AccessGuard
	events events.Dispatcher
	seen   *[]events.Event
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	codec, err := auth.NewTokenCodec(config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	require.NoError(t, err)

	users := repository.NewMemoryUserRepository()
	dispatcher := events.NewInMemoryDispatcher()
	seen := &[]events.Event{}
	var mu sync.Mutex
	for _, et := range events.AllTypes {
		dispatcher.Subscribe(et, func(_ context.Context, e events.Event) error {
			mu.Lock()
			defer mu.Unlock()
			*seen = append(*seen, e)
			return nil
		})
	}

	svc, err := NewAuthService(AuthDependencies{
		UserRepo:   users,
		Hasher:     auth.NewBcryptHasher(bcrypt.MinCost),
		Tokens:     codec,
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	return &authFixture{
		svc:    svc,
		users:  users,
		codec:  codec,
		guard:  auth.NewAccessGuard(codec, nil),
		events: dispatcher,
		seen:   seen,
	}
}

func aliceInput() RegisterInput {
	return RegisterInput{Username: "alice", Email: "a@x.com", Password: "pw1", ConfirmPassword: "pw1"}
}

func TestRegister_Success(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	session, err := f.svc.Register(ctx, aliceInput())
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, "a@x.com", session.Email)
	assert.True(t, session.ExpiresAt.After(time.Now()))

	subject, err := f.guard.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", subject)
	assert.True(t, f.codec.IsValid(session.Token, "alice"))

	stored, err := f.users.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.NotEqual(t, "pw1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("pw1")))
	assert.NotEmpty(t, stored.ID)

	require.Len(t, *f.seen, 1)
	assert.Equal(t, events.EventUserRegistered, (*f.seen)[0].Type)
}

func TestRegister_CredentialMismatch(t *testing.T) {
	f := newAuthFixture(t)
	in := aliceInput()
	in.ConfirmPassword = "pw2"

	session, err := f.svc.Register(context.Background(), in)
	assert.Nil(t, session)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCredentialMismatch))

	exists, err := f.users.ExistsByUsernameOrEmail(context.Background(), "alice", "a@x.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegister_DuplicateIdentity(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, aliceInput())
	require.NoError(t, err)

	sameName := aliceInput()
	sameName.Email = "other@x.com"
	_, err = f.svc.Register(ctx, sameName)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDuplicateIdentity))

	sameEmail := aliceInput()
	sameEmail.Username = "alice2"
	_, err = f.svc.Register(ctx, sameEmail)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDuplicateIdentity))
}

func TestRegister_ConcurrentSameUsername(t *testing.T) {
	f := newAuthFixture(t)

	const racers = 16
	var wins, dups atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Register(context.Background(), aliceInput())
			switch {
			case err == nil:
				wins.Add(1)
			case apperrors.HasCode(err, apperrors.CodeDuplicateIdentity):
				dups.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.Equal(t, int32(racers-1), dups.Load())
}

func TestRegister_StoreRaceMapsToDuplicate(t *testing.T) {
	repo := &failingUserRepo{MemoryUserRepository: repository.NewMemoryUserRepository(), createErr: repository.ErrDuplicate}
	codec, err := auth.NewTokenCodec(config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	require.NoError(t, err)
	svc, err := NewAuthService(AuthDependencies{UserRepo: repo, Hasher: auth.NewBcryptHasher(bcrypt.MinCost), Tokens: codec})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), aliceInput())
	assert.True(t, apperrors.HasCode(err, apperrors.CodeDuplicateIdentity))
}

func TestRegister_InternalFailures(t *testing.T) {
	codec, err := auth.NewTokenCodec(config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	require.NoError(t, err)
	storeDown := errors.New("connection refused")

	t.Run("exists check fails", func(t *testing.T) {
		repo := &failingUserRepo{MemoryUserRepository: repository.NewMemoryUserRepository(), existsErr: storeDown}
		svc, err := NewAuthService(AuthDependencies{UserRepo: repo, Hasher: auth.NewBcryptHasher(bcrypt.MinCost), Tokens: codec})
		require.NoError(t, err)

		_, err = svc.Register(context.Background(), aliceInput())
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))
		assert.ErrorIs(t, err, storeDown)
	})

	t.Run("hashing fails", func(t *testing.T) {
		hasher := &mockHasher{}
		hasher.On("Hash", mock.AnythingOfType("string")).Return("dummy", nil).Once()
		hasher.On("Hash", "pw1").Return("", errors.New("entropy exhausted")).Once()

		svc, err := NewAuthService(AuthDependencies{UserRepo: repository.NewMemoryUserRepository(), Hasher: hasher, Tokens: codec})
		require.NoError(t, err)

		_, err = svc.Register(context.Background(), aliceInput())
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))
		hasher.AssertExpectations(t)
	})
}

func TestLogin_Success(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, aliceInput())
	require.NoError(t, err)

	session, err := f.svc.Login(ctx, "alice", "pw1")
	require.NoError(t, err)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, "a@x.com", session.Email)

	claims, err := f.codec.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	assert.Equal(t, events.EventUserLoggedIn, (*f.seen)[len(*f.seen)-1].Type)
}

func TestLogin_FailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	_, err := f.svc.Register(ctx, aliceInput())
	require.NoError(t, err)

	wrongPassword, errWrong := f.svc.Login(ctx, "alice", "nope")
	unknownUser, errUnknown := f.svc.Login(ctx, "bob", "pw1")

	assert.Nil(t, wrongPassword)
	assert.Nil(t, unknownUser)
	require.True(t, apperrors.HasCode(errWrong, apperrors.CodeAuthenticationFailed))
	require.True(t, apperrors.HasCode(errUnknown, apperrors.CodeAuthenticationFailed))
	assert.Equal(t, errWrong.Error(), errUnknown.Error())

	failed := 0
	for _, e := range *f.seen {
		if e.Type == events.EventUserLoginFailed {
			failed++
		}
	}
	assert.Equal(t, 2, failed)
}

func TestLogin_UnknownUserStillComparesHash(t *testing.T) {
	hasher := &mockHasher{}
	hasher.On("Hash", mock.AnythingOfType("string")).Return("dummy-hash", nil)
	hasher.On("Compare", "dummy-hash", "pw1").Return(errors.New("mismatch")).Once()

	svc, err := NewAuthService(AuthDependencies{UserRepo: repository.NewMemoryUserRepository(), Hasher: hasher, Tokens: &auth.TokenCodec{}})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "ghost", "pw1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeAuthenticationFailed))
	hasher.AssertExpectations(t)
}

func TestLogin_StoreFailureIsInternal(t *testing.T) {
	repo := &failingUserRepo{MemoryUserRepository: repository.NewMemoryUserRepository(), getErr: errors.New("timeout")}
	codec, err := auth.NewTokenCodec(config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	require.NoError(t, err)
	dispatcher := &mockDispatcher{}

	svc, err := NewAuthService(AuthDependencies{UserRepo: repo, Hasher: auth.NewBcryptHasher(bcrypt.MinCost), Tokens: codec, Dispatcher: dispatcher})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "alice", "pw1")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInternal))
	dispatcher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
}

func TestPublishFailureDoesNotFailRequest(t *testing.T) {
	codec, err := auth.NewTokenCodec(config.AuthConfig{JWTSecret: testSecret, TokenTTL: time.Hour})
	require.NoError(t, err)
	dispatcher := &mockDispatcher{}
	dispatcher.On("Publish", mock.Anything, mock.MatchedBy(func(e events.Event) bool {
		return e.Type == events.EventUserRegistered && e.Subject == "alice"
	})).Return(errors.New("audit sink down")).Once()

	svc, err := NewAuthService(AuthDependencies{
		UserRepo:   repository.NewMemoryUserRepository(),
		Hasher:     auth.NewBcryptHasher(bcrypt.MinCost),
		Tokens:     codec,
		Dispatcher: dispatcher,
	})
	require.NoError(t, err)

	session, err := svc.Register(context.Background(), aliceInput())
	require.NoError(t, err)
	assert.NotEmpty(t, session.Token)
	dispatcher.AssertExpectations(t)
}
