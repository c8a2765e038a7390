package credflow

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/account/memstore"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/mailer"
	"github.com/MrEthical07/credflow/password"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
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

type recordingSink struct {
	mu     sync.Mutex
	events []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, ev AuditEvent) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	s.mu.Unlock()
}

func (s *recordingSink) Events() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

type testEnv struct {
	engine *Engine
	store  *memstore.Store
	mail   *mailer.Recorder
	redis  *miniredis.Miniredis
	clock  *testClock
	audit  *recordingSink
}

func newTestEnv(t *testing.T, opts ...func(*Builder)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	env := &testEnv{
		store: memstore.New(),
		mail:  &mailer.Recorder{},
		redis: mr,
		clock: newTestClock(),
		audit: &recordingSink{},
	}

	cfg := DefaultConfig()
	cfg.Cookie.Secure = false
	cfg.Audit.DropIfFull = false

	b := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithAccountStore(env.store).
		WithMailTransport(env.mail).
		WithAuditSink(env.audit).
		WithClock(env.clock.Now)
	for _, opt := range opts {
		opt(b)
	}

	env.engine, err = b.Build()
	require.NoError(t, err)

	t.Cleanup(func() {
		env.engine.Close()
		_ = rdb.Close()
		mr.Close()
	})
	return env
}

func (env *testEnv) jar() *cookie.MemoryJar {
	return cookie.NewMemoryJar().WithClock(env.clock.Now)
}

func (env *testEnv) seedUser(t *testing.T, email, pw string, twoFactor bool) account.User {
	t.Helper()
	salt := password.GenerateSalt()
	hash, err := password.Hash(pw, salt)
	require.NoError(t, err)
	return env.store.PutUser(account.User{
		Email:            email,
		Name:             "Alice",
		PasswordHash:     hash,
		Salt:             salt,
		TwoFactorEnabled: twoFactor,
	})
}

// signIn starts a plain session for a user without two-factor.
func (env *testEnv) signIn(t *testing.T, email, pw string) *cookie.MemoryJar {
	t.Helper()
	jar := env.jar()
	out, err := env.engine.SignIn(context.Background(), jar, SignInInput{Email: email, Password: pw})
	require.NoError(t, err)
	require.Equal(t, RedirectDashboard, out.Redirect)
	return jar
}

var (
	codePattern  = regexp.MustCompile(`\b\d{6}\b`)
	tokenPattern = regexp.MustCompile(`/password-reset/([0-9a-f]{64})`)
)

// lastCode returns the code in the latest email to addr.
func (env *testEnv) lastCode(t *testing.T, addr string) string {
	t.Helper()
	msg, ok := env.mail.Last(addr)
	require.True(t, ok, "no email sent to %s", addr)
	code := codePattern.FindString(msg.HTML)
	require.NotEmpty(t, code, "no code in %q", msg.HTML)
	return code
}

func (env *testEnv) lastResetToken(t *testing.T, addr string) string {
	t.Helper()
	msg, ok := env.mail.Last(addr)
	require.True(t, ok, "no email sent to %s", addr)
	m := tokenPattern.FindStringSubmatch(msg.HTML)
	require.Len(t, m, 2, "no reset link in %q", msg.HTML)
	return m[1]
}
