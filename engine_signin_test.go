package credflow

import (
	"context"
	"errors"
	"testing"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignInWithoutTwoFactorStartsSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "alice@x.com", "pw12345678", false)

	jar := env.jar()
	out, err := env.engine.SignIn(ctx, jar, SignInInput{Email: "  Alice@X.com ", Password: "pw12345678"})
	require.NoError(t, err)
	assert.Equal(t, RedirectDashboard, out.Redirect)

	sess, err := env.engine.Authenticate(ctx, jar)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	assert.Equal(t, string(account.RoleUser), sess.Role)
	assert.False(t, sess.Elevated(env.clock.Now()))

	_, hasChallenge := jar.Get(cookie.TwoFactorID)
	assert.False(t, hasChallenge)
	assert.Equal(t, uint64(1), env.engine.MetricsSnapshot().Counters[MetricSignInSuccess])
}

func TestSignInReplacesPreviousSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.seedUser(t, "alice@x.com", "pw12345678", false)
	bob := env.seedUser(t, "bob@x.com", "pw12345678", false)

	jar := env.signIn(t, "alice@x.com", "pw12345678")
	previous, ok := jar.Get(cookie.Session)
	require.True(t, ok)

	_, err := env.engine.SignIn(ctx, jar, SignInInput{Email: "bob@x.com", Password: "pw12345678"})
	require.NoError(t, err)

	current, ok := jar.Get(cookie.Session)
	require.True(t, ok)
	assert.NotEqual(t, previous, current)
	assert.False(t, env.redis.Exists("session:"+previous))
	isMember, _ := env.redis.SIsMember("user:"+alice.ID+":sessions", previous)
	assert.False(t, isMember)

	sess, err := env.engine.Authenticate(ctx, jar)
	require.NoError(t, err)
	assert.Equal(t, bob.ID, sess.UserID)
}

func TestSignInWithTwoFactorThenVerify(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "alice@x.com", "pw12345678", true)

	jar := env.jar()
	out, err := env.engine.SignIn(ctx, jar, SignInInput{Email: "alice@x.com", Password: "pw12345678"})
	require.NoError(t, err)
	assert.Equal(t, RedirectTwoFactor, out.Redirect)

	_, hasSession := jar.Get(cookie.Session)
	assert.False(t, hasSession, "no session before the second factor")
	challengeID, ok := jar.Get(cookie.TwoFactorID)
	require.True(t, ok)
	tf, err := env.store.TwoFactorByID(ctx, challengeID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, tf.UserID)

	out, err = env.engine.VerifyTwoFactor(ctx, jar, env.lastCode(t, "alice@x.com"))
	require.NoError(t, err)
	assert.Equal(t, RedirectDashboard, out.Redirect)

	sess, err := env.engine.Authenticate(ctx, jar)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
	assert.True(t, sess.Elevated(env.clock.Now()))

	_, err = env.store.TwoFactorByID(ctx, challengeID)
	assert.ErrorIs(t, err, account.ErrNotFound)
	_, ok = jar.Get(cookie.TwoFactorID)
	assert.False(t, ok)
}

func TestSignInFailures(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice@x.com", "pw12345678", false)
	env.store.PutUser(account.User{Email: "oauth@x.com", Name: "Octo"})

	cases := []struct {
		name string
		in   SignInInput
		want error
	}{
		{"malformed email", SignInInput{Email: "nope", Password: "pw12345678"}, ErrInvalidCredentials},
		{"short password", SignInInput{Email: "alice@x.com", Password: "short"}, ErrInvalidCredentials},
		{"unknown user", SignInInput{Email: "bob@x.com", Password: "pw12345678"}, ErrUserNotFound},
		{"wrong password", SignInInput{Email: "alice@x.com", Password: "pw87654321"}, ErrIncorrectPassword},
		{"no password set", SignInInput{Email: "oauth@x.com", Password: "pw12345678"}, ErrUserNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			jar := env.jar()
			_, err := env.engine.SignIn(context.Background(), jar, tc.in)
			assert.ErrorIs(t, err, tc.want)
			_, hasSession := jar.Get(cookie.Session)
			assert.False(t, hasSession)
		})
	}
}

func TestSignInRateLimitedPerEmail(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@x.com", "pw12345678", false)

	for i := 0; i < 5; i++ {
		_, err := env.engine.SignIn(ctx, env.jar(), SignInInput{Email: "alice@x.com", Password: "wrong-password"})
		require.ErrorIs(t, err, ErrIncorrectPassword)
	}
	_, err := env.engine.SignIn(ctx, env.jar(), SignInInput{Email: "alice@x.com", Password: "pw12345678"})
	require.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, KindRateLimited, KindOf(err))

	_, err = env.engine.SignIn(ctx, env.jar(), SignInInput{Email: "bob@x.com", Password: "pw12345678"})
	assert.ErrorIs(t, err, ErrUserNotFound, "other keys keep their own window")
}

func TestSignOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@x.com", "pw12345678", false)
	jar := env.signIn(t, "alice@x.com", "pw12345678")

	out, err := env.engine.SignOut(ctx, jar)
	require.NoError(t, err)
	assert.Equal(t, RedirectHome, out.Redirect)

	_, err = env.engine.Authenticate(ctx, jar)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	out, err = env.engine.SignOut(ctx, jar)
	require.NoError(t, err)
	assert.Equal(t, RedirectHome, out.Redirect)
}

type failingStore struct {
	account.Store
	err error
}

func (s failingStore) UserByEmail(context.Context, string) (account.User, error) {
	return account.User{}, s.err
}

func TestInfrastructureFailureIsLoggedAndMasked(t *testing.T) {
	logger, hook := test.NewNullLogger()
	dbErr := errors.New("connection refused")

	env := newTestEnv(t, func(b *Builder) {
		b.WithLogger(logger)
		b.WithAccountStore(failingStore{Store: b.accounts, err: dbErr})
	})

	_, err := env.engine.SignIn(context.Background(), env.jar(), SignInInput{Email: "alice@x.com", Password: "pw12345678"})
	require.ErrorIs(t, err, ErrUnexpected)
	assert.NotErrorIs(t, err, dbErr)
	assert.Equal(t, "something went wrong", err.Error())

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.ErrorLevel, entry.Level)
	assert.Equal(t, auditEventSignInFailure, entry.Data["flow"])
	assert.ErrorIs(t, entry.Data[logrus.ErrorKey].(error), dbErr)
	assert.Equal(t, uint64(1), env.engine.MetricsSnapshot().Counters[MetricUnexpectedError])
}

func TestSignInAuditTrail(t *testing.T) {
	env := newTestEnv(t)
	ctx := WithUserAgent(WithClientIP(context.Background(), "10.1.2.3"), "test-agent")
	u := env.seedUser(t, "alice@x.com", "pw12345678", false)

	_, err := env.engine.SignIn(ctx, env.jar(), SignInInput{Email: "alice@x.com", Password: "bad-password"})
	require.Error(t, err)
	_, err = env.engine.SignIn(ctx, env.jar(), SignInInput{Email: "alice@x.com", Password: "pw12345678"})
	require.NoError(t, err)
	env.engine.Close()

	events := env.audit.Events()
	require.Len(t, events, 2)

	assert.Equal(t, auditEventSignInFailure, events[0].EventType)
	assert.False(t, events[0].Success)
	assert.Equal(t, string(auditErrInvalidPassword), events[0].Error)
	assert.Equal(t, "10.1.2.3", events[0].IP)

	assert.Equal(t, auditEventSignInSuccess, events[1].EventType)
	assert.True(t, events[1].Success)
	assert.Equal(t, u.ID, events[1].UserID)
	assert.Equal(t, "test-agent", events[1].Metadata["user_agent"])
}
