package credflow

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTwoFactor signs in a two-factor user and returns the jar holding
// the challenge cookie.
func startTwoFactor(t *testing.T, env *testEnv, email string) *cookie.MemoryJar {
	t.Helper()
	jar := env.jar()
	out, err := env.engine.SignIn(context.Background(), jar, SignInInput{Email: email, Password: "pw12345678"})
	require.NoError(t, err)
	require.Equal(t, RedirectTwoFactor, out.Redirect)
	return jar
}

func wrongCode(code string) string {
	if code == "111111" {
		return "222222"
	}
	return "111111"
}

func TestVerifyTwoFactorIncorrectCodeKeepsChallenge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@x.com", "pw12345678", true)
	jar := startTwoFactor(t, env, "alice@x.com")
	code := env.lastCode(t, "alice@x.com")

	_, err := env.engine.VerifyTwoFactor(ctx, jar, wrongCode(code))
	require.ErrorIs(t, err, ErrIncorrectCode)

	out, err := env.engine.VerifyTwoFactor(ctx, jar, code)
	require.NoError(t, err)
	assert.Equal(t, RedirectDashboard, out.Redirect)
}

func TestVerifyTwoFactorExpiredCodeIsConsumed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@x.com", "pw12345678", true)
	jar := startTwoFactor(t, env, "alice@x.com")
	code := env.lastCode(t, "alice@x.com")
	challengeID, ok := jar.Get(cookie.TwoFactorID)
	require.True(t, ok)

	// Keep the cookie alive past the code so the expiry check is reached.
	jar.Set(env.engine.policy.New(cookie.TwoFactorID, challengeID, time.Hour, env.clock.Now()))
	env.clock.Advance(15 * time.Minute)

	_, err := env.engine.VerifyTwoFactor(ctx, jar, code)
	require.ErrorIs(t, err, ErrCodeExpired)

	_, err = env.store.TwoFactorByID(ctx, challengeID)
	assert.ErrorIs(t, err, account.ErrNotFound)
	_, hasSession := jar.Get(cookie.Session)
	assert.False(t, hasSession)
}

func TestVerifyTwoFactorWithoutChallenge(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.VerifyTwoFactor(context.Background(), env.jar(), "123456")
	assert.ErrorIs(t, err, ErrCodeExpired)

	for _, code := range []string{"12ab56", "+12345", "-12345", "1.2345"} {
		_, err = env.engine.VerifyTwoFactor(context.Background(), env.jar(), code)
		assert.ErrorIs(t, err, ErrInvalidCode, code)
	}
}

func TestVerifyTwoFactorSessionMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@x.com", "pw12345678", false)
	env.seedUser(t, "bob@x.com", "pw12345678", true)

	jar := env.signIn(t, "alice@x.com", "pw12345678")
	out, err := env.engine.SignIn(ctx, jar, SignInInput{Email: "bob@x.com", Password: "pw12345678"})
	require.NoError(t, err)
	require.Equal(t, RedirectTwoFactor, out.Redirect)

	_, err = env.engine.VerifyTwoFactor(ctx, jar, env.lastCode(t, "bob@x.com"))
	require.ErrorIs(t, err, ErrSessionMismatch)

	sess, err := env.engine.Authenticate(ctx, jar)
	require.NoError(t, err)
	assert.False(t, sess.Elevated(env.clock.Now()))
}

func TestDisableTwoFactorRequiresStepUp(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "alice@x.com", "pw12345678", true)
	jar := startTwoFactor(t, env, "alice@x.com")
	_, err := env.engine.VerifyTwoFactor(ctx, jar, env.lastCode(t, "alice@x.com"))
	require.NoError(t, err)

	env.clock.Advance(16 * time.Minute)
	err = env.engine.DisableTwoFactor(ctx, jar)
	require.ErrorIs(t, err, ErrTwoFactorRequired)
	assert.Equal(t, KindStepUpRequired, KindOf(err))

	require.NoError(t, env.engine.SendTwoFactor(ctx, jar))
	out, err := env.engine.VerifyTwoFactor(ctx, jar, env.lastCode(t, "alice@x.com"))
	require.NoError(t, err)
	assert.Equal(t, RedirectNone, out.Redirect, "step-up keeps the caller on its page")

	require.NoError(t, env.engine.DisableTwoFactor(ctx, jar))
	stored, err := env.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, stored.TwoFactorEnabled)

	env.signIn(t, "alice@x.com", "pw12345678")
}

func TestEnableTwoFactor(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	u := env.seedUser(t, "alice@x.com", "pw12345678", false)

	err := env.engine.EnableTwoFactor(ctx, env.jar())
	require.ErrorIs(t, err, ErrUnauthenticated)

	jar := env.signIn(t, "alice@x.com", "pw12345678")
	require.NoError(t, env.engine.EnableTwoFactor(ctx, jar))

	stored, err := env.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, stored.TwoFactorEnabled)

	startTwoFactor(t, env, "alice@x.com")
}

func TestSendTwoFactorDuringSignIn(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.seedUser(t, "alice@x.com", "pw12345678", true)
	jar := startTwoFactor(t, env, "alice@x.com")

	require.NoError(t, env.engine.SendTwoFactor(ctx, jar))
	require.Len(t, env.mail.Sent(), 2)

	out, err := env.engine.VerifyTwoFactor(ctx, jar, env.lastCode(t, "alice@x.com"))
	require.NoError(t, err)
	assert.Equal(t, RedirectDashboard, out.Redirect)

	err = env.engine.SendTwoFactor(ctx, env.jar())
	assert.ErrorIs(t, err, ErrCodeExpired)
}
