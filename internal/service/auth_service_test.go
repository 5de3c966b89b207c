package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/MatsTornblom/Vibzprofile/internal/domain"
	"github.com/MatsTornblom/Vibzprofile/pkg/blacklist"
	"github.com/MatsTornblom/Vibzprofile/pkg/hash"
)

var testHashParams = hash.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

type authFixture struct {
	svc      *AuthService
	accounts *memAccountRepo
	sessions *memSessionRepo
	mailer   *recordingMailer
}

func newAuthFixture(t *testing.T, accessExpiry time.Duration) *authFixture {
	t.Helper()
	client, _ := newRedis(t)
	f := &authFixture{
		accounts: newMemAccountRepo(),
		sessions: newMemSessionRepo(),
		mailer:   &recordingMailer{},
	}
	f.svc = NewAuthService(
		f.accounts,
		f.sessions,
		newTokenService(t, accessExpiry),
		blacklist.NewTokenBlacklist(client),
		hash.NewHasher(testHashParams),
		f.mailer,
		testConfig(),
		zaptest.NewLogger(t),
	)
	return f
}

var testClient = domain.ClientInfo{UserAgent: "test", IPAddress: "127.0.0.1"}

func TestAuthService_SignUpThenSignIn(t *testing.T) {
	f := newAuthFixture(t, time.Hour)
	ctx := context.Background()

	signedUp, err := f.svc.SignUp(ctx, " Vibe@Vibz.World ", "secret1", testClient)
	require.NoError(t, err)
	assert.Equal(t, "vibe@vibz.world", signedUp.User.Email)
	assert.NotEmpty(t, signedUp.AccessToken)
	assert.NotEmpty(t, signedUp.RefreshToken)
	assert.Equal(t, "Bearer", signedUp.TokenType)
	assert.Equal(t, []string{"vibe@vibz.world"}, f.mailer.welcome)

	signedIn, err := f.svc.SignIn(ctx, "vibe@vibz.world", "secret1", testClient)
	require.NoError(t, err)
	assert.Equal(t, signedUp.User.ID, signedIn.User.ID)
	assert.Equal(t, 2, f.sessions.count())

	claims, err := f.svc.Verify(ctx, signedIn.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, signedIn.User.ID, claims.UserID)
}

func TestAuthService_SignUpDuplicateEmail(t *testing.T) {
	f := newAuthFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "vibe@vibz.world", "secret1", testClient)
	require.NoError(t, err)

	_, err = f.svc.SignUp(ctx, "VIBE@vibz.world", "secret2", testClient)
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestAuthService_SignInUnknownEmail(t *testing.T) {
	f := newAuthFixture(t, time.Hour)

	_, err := f.svc.SignIn(context.Background(), "ghost@vibz.world", "secret1", testClient)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthService_LocksAfterFailedLogins(t *testing.T) {
	f := newAuthFixture(t, time.Hour)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "vibe@vibz.world", "secret1", testClient)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err = f.svc.SignIn(ctx, "vibe@vibz.world", "wrong-password", testClient)
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}

	_, err = f.svc.SignIn(ctx, "vibe@vibz.world", "secret1", testClient)
	assert.ErrorIs(t, err, ErrAccountLocked)

	// Lock window passed
	f.svc.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = f.svc.SignIn(ctx, "vibe@vibz.world", "secret1", testClient)
	assert.NoError(t, err)
}

func TestAuthService_RefreshRotatesToken(t *testing.T) {
	f := newAuthFixture(t, time.Hour)
	ctx := context.Background()

	first, err := f.svc.SignUp(ctx, "vibe@vibz.world", "secret1", testClient)
	require.NoError(t, err)

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)
	assert.Equal(t, first.User, second.User)
	assert.Equal(t, 1, f.sessions.count())

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSession)

	_, err = f.svc.Refresh(ctx, first.AccessToken)
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAuthService_SignOutRevokes(t *testing.T) {
	f := newAuthFixture(t, time.Hour)
	ctx := context.Background()

	session, err := f.svc.SignUp(ctx, "vibe@vibz.world", "secret1", testClient)
	require.NoError(t, err)

	require.NoError(t, f.svc.SignOut(ctx, session.AccessToken, session.RefreshToken))

	_, err = f.svc.Verify(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)

	_, err = f.svc.Refresh(ctx, session.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidSession)
	assert.Zero(t, f.sessions.count())

	// Signing out twice is harmless
	assert.NoError(t, f.svc.SignOut(ctx, session.AccessToken, session.RefreshToken))
}

func TestAuthService_VerifyExpired(t *testing.T) {
	f := newAuthFixture(t, -time.Minute)
	ctx := context.Background()

	session, err := f.svc.SignUp(ctx, "vibe@vibz.world", "secret1", testClient)
	require.NoError(t, err)

	_, err = f.svc.Verify(ctx, session.AccessToken)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = f.svc.Verify(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidSession)
}

func TestAuthService_CloseSession(t *testing.T) {
	f := newAuthFixture(t, time.Hour)
	ctx := context.Background()

	first, err := f.svc.SignUp(ctx, "vibe@vibz.world", "secret1", testClient)
	require.NoError(t, err)
	second, err := f.svc.SignIn(ctx, "vibe@vibz.world", "secret1", testClient)
	require.NoError(t, err)

	sessions, err := f.svc.ListSessions(ctx, first.User.ID)
	require.NoError(t, err)
	require.Len(t, sessions, 2)

	claims, err := f.svc.Verify(ctx, second.AccessToken)
	require.NoError(t, err)

	// Another identity cannot close it
	assert.ErrorIs(t, f.svc.CloseSession(ctx, uuid.New(), claims.SessionID), ErrSessionNotFound)

	require.NoError(t, f.svc.CloseSession(ctx, first.User.ID, claims.SessionID))

	_, err = f.svc.Verify(ctx, second.AccessToken)
	assert.ErrorIs(t, err, ErrTokenRevoked)
	_, err = f.svc.Verify(ctx, first.AccessToken)
	assert.NoError(t, err)
	assert.Equal(t, 1, f.sessions.count())
}
