package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"go-auth-service/internal/model"
	"go-auth-service/internal/password"
	"go-auth-service/internal/repository"
	"go-auth-service/internal/token"
)

type recordingPublisher struct {
	mu    sync.Mutex
	users []model.UserView
}

func (p *recordingPublisher) PublishUserCreated(user model.UserView) {
	p.mu.Lock()
	p.users = append(p.users, user)
	p.mu.Unlock()
}

func (p *recordingPublisher) published() []model.UserView {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]model.UserView(nil), p.users...)
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	service     *AuthService
	users       CredentialStore
	revocations RevocationStore
	codec       *token.Codec
	publisher   *recordingPublisher
	clock       *testClock
}

type fixtureOption func(*fixture)

func withUsers(users CredentialStore) fixtureOption {
	return func(f *fixture) { f.users = users }
}

func withRevocations(revocations RevocationStore) fixtureOption {
	return func(f *fixture) { f.revocations = revocations }
}

func newFixture(t *testing.T, opts ...fixtureOption) *fixture {
	t.Helper()

	codec, err := token.NewCodec("service-test-secret", "HS256")
	require.NoError(t, err)

	f := &fixture{
		users:       repository.NewMemoryUserRepository(),
		revocations: repository.NewMemoryRevocationRepository(),
		codec:       codec,
		publisher:   &recordingPublisher{},
		clock:       &testClock{now: time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)},
	}
	for _, opt := range opts {
		opt(f)
	}

	f.service = NewAuthService(
		f.users,
		f.revocations,
		token.NewIssuer(codec, 15*time.Minute, 24*time.Hour),
		token.NewVerifier(codec, f.revocations),
		codec,
		password.NewBcryptHasher(bcrypt.MinCost),
		f.publisher,
		WithClock(f.clock.Now),
	)
	return f
}

func (f *fixture) signupAndLogin(t *testing.T, username string) model.TokenPair {
	t.Helper()

	ctx := context.Background()
	_, err := f.service.Signup(ctx, username, username+"@x.com", "pw123")
	require.NoError(t, err)

	pair, err := f.service.Login(ctx, username, "pw123")
	require.NoError(t, err)
	return pair
}

func TestSignup(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	user, err := f.service.Signup(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)
	require.Equal(t, model.UserView{ID: 1, Username: "alice", Email: "a@x.com", IsActive: true}, user)
	require.Equal(t, []model.UserView{user}, f.publisher.published())

	stored, err := f.users.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	require.NotEqual(t, "pw123", stored.PasswordHash)

	_, err = f.service.Signup(ctx, "alice", "other@x.com", "pw456")
	require.ErrorIs(t, err, model.ErrUsernameTaken)

	_, err = f.service.Signup(ctx, "bob", " A@X.com ", "pw456")
	require.ErrorIs(t, err, model.ErrEmailTaken)

	require.Len(t, f.publisher.published(), 1)
}

func TestSignupRejectsEmptyFields(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	_, err := f.service.Signup(context.Background(), "  ", "a@x.com", "pw")
	require.ErrorIs(t, err, model.ErrInvalidInput)
	_, err = f.service.Signup(context.Background(), "alice", "a@x.com", "")
	require.ErrorIs(t, err, model.ErrInvalidInput)
}

// racingStore reports every lookup as absent, the way a store looks to two
// concurrent signups before either inserts.
type racingStore struct {
	*repository.MemoryUserRepository
	createErr error
}

func (s racingStore) FindByUsername(context.Context, string) (model.User, error) {
	return model.User{}, model.ErrUserNotFound
}

func (s racingStore) FindByEmail(context.Context, string) (model.User, error) {
	return model.User{}, model.ErrUserNotFound
}

func (s racingStore) Create(context.Context, string, string, string) (model.User, error) {
	return model.User{}, s.createErr
}

func TestSignupMapsStoreDuplicateKey(t *testing.T) {
	t.Parallel()

	cases := map[string]error{
		"email":    model.ErrEmailTaken,
		"username": model.ErrUsernameTaken,
	}
	for field, want := range cases {
		t.Run(field, func(t *testing.T) {
			store := racingStore{
				MemoryUserRepository: repository.NewMemoryUserRepository(),
				createErr:            &model.DuplicateKeyError{Field: field},
			}
			f := newFixture(t, withUsers(store))

			_, err := f.service.Signup(context.Background(), "alice", "a@x.com", "pw123")
			require.ErrorIs(t, err, want)
			require.Empty(t, f.publisher.published())
		})
	}
}

func TestConcurrentSignupsCreateOneUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.service.Signup(ctx, "alice", "a@x.com", "pw123")
			if err == nil {
				succeeded.Add(1)
				return
			}
			assert.True(t, errors.Is(err, model.ErrUsernameTaken) || errors.Is(err, model.ErrEmailTaken))
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), succeeded.Load())
}

func TestSignupSurfacesStoreFailure(t *testing.T) {
	t.Parallel()

	down := errors.New("connection refused")
	store := racingStore{MemoryUserRepository: repository.NewMemoryUserRepository(), createErr: down}
	f := newFixture(t, withUsers(store))

	_, err := f.service.Signup(context.Background(), "alice", "a@x.com", "pw123")
	require.ErrorIs(t, err, down)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Signup(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)

	pair, err := f.service.Login(ctx, "alice", "pw123")
	require.NoError(t, err)
	require.Equal(t, "bearer", pair.TokenType)
	require.Equal(t, int64(900), pair.ExpiresIn)

	claims, err := f.service.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)
	require.Equal(t, int64(1), claims.UserID)

	refreshClaims, err := f.codec.Decode(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, model.PurposeRefresh, refreshClaims.Purpose)
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	_, err := f.service.Signup(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)

	wrongPassword, errWrong := f.service.Login(ctx, "alice", "wrongpw")
	unknownUser, errUnknown := f.service.Login(ctx, "nouser", "anypw")

	require.ErrorIs(t, errWrong, model.ErrInvalidCredentials)
	require.ErrorIs(t, errUnknown, model.ErrInvalidCredentials)
	require.Equal(t, errWrong.Error(), errUnknown.Error())
	require.Equal(t, model.TokenPair{}, wrongPassword)
	require.Equal(t, model.TokenPair{}, unknownUser)
}

func TestRefreshIsSingleUse(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	pair := f.signupAndLogin(t, "alice")

	rotated, err := f.service.RefreshAccessToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)
	require.NotEqual(t, pair.AccessToken, rotated.AccessToken)

	claims, err := f.service.Authenticate(ctx, rotated.AccessToken)
	require.NoError(t, err)
	require.Equal(t, "alice", claims.Username)

	_, err = f.service.RefreshAccessToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, model.ErrInvalidRefreshToken)

	_, err = f.service.RefreshAccessToken(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestConcurrentRefreshAcceptsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	pair := f.signupAndLogin(t, "alice")

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.service.RefreshAccessToken(ctx, pair.RefreshToken); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), succeeded.Load())
}

func TestRefreshCollapsesRejections(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	pair := f.signupAndLogin(t, "alice")

	_, err := f.service.RefreshAccessToken(ctx, pair.AccessToken)
	require.ErrorIs(t, err, model.ErrInvalidRefreshToken)

	_, err = f.service.RefreshAccessToken(ctx, "garbage")
	require.ErrorIs(t, err, model.ErrInvalidRefreshToken)

	f.clock.Advance(24 * time.Hour)
	_, err = f.service.RefreshAccessToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestAccessTokenExpires(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	pair := f.signupAndLogin(t, "alice")

	f.clock.Advance(15*time.Minute - time.Second)
	_, err := f.service.Authenticate(ctx, pair.AccessToken)
	require.NoError(t, err)

	f.clock.Advance(time.Second)
	_, err = f.service.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestLogoutRevokesAccessToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	pair := f.signupAndLogin(t, "alice")

	require.NoError(t, f.service.Logout(ctx, pair.AccessToken))

	_, err := f.service.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, model.ErrUnauthorized)

	require.NoError(t, f.service.Logout(ctx, pair.AccessToken), "logout is idempotent")
}

func TestLogoutAcceptsExpiredButDecodableToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	pair := f.signupAndLogin(t, "alice")

	f.clock.Advance(time.Hour)
	require.NoError(t, f.service.Logout(ctx, pair.AccessToken))

	claims, err := f.codec.Decode(pair.AccessToken)
	require.NoError(t, err)
	revoked, err := f.revocations.IsRevoked(ctx, claims.TokenID)
	require.NoError(t, err)
	require.True(t, revoked)
}

func TestLogoutRejectsUndecodableToken(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	require.ErrorIs(t, f.service.Logout(context.Background(), "not.a.token"), model.ErrUnauthorized)
}

type failingRevocations struct {
	*repository.MemoryRevocationRepository
	err error
}

func (r failingRevocations) IsRevoked(context.Context, string) (bool, error) {
	return false, r.err
}

func (r failingRevocations) Revoke(context.Context, string, time.Time) (bool, error) {
	return false, r.err
}

func TestRevocationStoreOutageIsServerError(t *testing.T) {
	t.Parallel()

	down := errors.New("revocation store unreachable")
	f := newFixture(t, withRevocations(failingRevocations{
		MemoryRevocationRepository: repository.NewMemoryRevocationRepository(),
		err:                        down,
	}))
	ctx := context.Background()
	pair := f.signupAndLogin(t, "alice")

	_, err := f.service.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, down)
	require.NotErrorIs(t, err, model.ErrUnauthorized)

	_, err = f.service.RefreshAccessToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, down)

	require.ErrorIs(t, f.service.Logout(ctx, pair.AccessToken), down)
}

func TestCurrentUser(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	created, err := f.service.Signup(ctx, "alice", "a@x.com", "pw123")
	require.NoError(t, err)

	user, err := f.service.CurrentUser(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, user)

	_, err = f.service.CurrentUser(ctx, 404)
	require.ErrorIs(t, err, model.ErrUserNotFound)
}

func TestPurgeExpiredRevocations(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx := context.Background()
	pair := f.signupAndLogin(t, "alice")
	require.NoError(t, f.service.Logout(ctx, pair.AccessToken))

	purged, err := f.service.PurgeExpiredRevocations(ctx)
	require.NoError(t, err)
	require.Zero(t, purged)

	f.clock.Advance(16 * time.Minute)
	purged, err = f.service.PurgeExpiredRevocations(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)

	_, err = f.service.Authenticate(ctx, pair.AccessToken)
	require.ErrorIs(t, err, model.ErrUnauthorized, "purged tokens stay dead because they are expired")
}

func TestStartRevocationPurgeStopsOnCancel(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		f.service.StartRevocationPurge(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("purge loop did not stop")
	}
}
