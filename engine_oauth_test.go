package credflow

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/oauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// newGitHubStub serves token, user and email endpoints for any code other
// than "denied".
func newGitHubStub(t *testing.T, email string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		w.Header().Set("Content-Type", "application/json")
		if r.PostForm.Get("code") == "denied" || r.PostForm.Get("code_verifier") == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"gh-token","token_type":"Bearer"}`))
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"id": 77, "login": "octo", "avatar_url": "https://avatars.example/77"})
	})
	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{{"email": email, "primary": true, "verified": true}})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newOAuthEnv(t *testing.T, email string) *testEnv {
	t.Helper()
	srv := newGitHubStub(t, email)
	clock := newTestClock()

	client := oauth.NewGitHub(oauth.Credentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:3000/api/oauth/github",
	}, cookie.Policy{}).
		WithEndpoints(oauth2.Endpoint{
			AuthURL:   srv.URL + "/authorize",
			TokenURL:  srv.URL + "/token",
			AuthStyle: oauth2.AuthStyleInParams,
		}, srv.URL).
		WithHTTPClient(srv.Client()).
		WithClock(clock.Now)

	env := newTestEnv(t, func(b *Builder) {
		b.WithOAuthClients(client)
		b.WithClock(clock.Now)
	})
	env.clock = clock
	return env
}

// startOAuth returns the state the provider would echo back.
func startOAuth(t *testing.T, env *testEnv, jar cookie.Jar) string {
	t.Helper()
	raw, err := env.engine.StartOAuth(jar, "github")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "S256", u.Query().Get("code_challenge_method"))
	return u.Query().Get("state")
}

func TestCompleteOAuthCreatesVerifiedUser(t *testing.T) {
	env := newOAuthEnv(t, "octo@x.com")
	ctx := context.Background()
	jar := env.jar()

	assert.Equal(t, []account.Provider{account.ProviderGitHub}, env.engine.Providers())

	state := startOAuth(t, env, jar)
	out, err := env.engine.CompleteOAuth(ctx, jar, "github", state, "good-code")
	require.NoError(t, err)
	assert.Equal(t, RedirectDashboard, out.Redirect)

	u, err := env.store.UserByEmail(ctx, "octo@x.com")
	require.NoError(t, err)
	assert.Equal(t, "octo", u.Name)
	assert.True(t, u.Linked(account.ProviderGitHub))
	assert.False(t, u.HasPassword())

	sess, err := env.engine.Authenticate(ctx, jar)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)

	_, ok := jar.Get(cookie.OAuthState)
	assert.False(t, ok)
	_, ok = jar.Get(cookie.OAuthCodeVerifier)
	assert.False(t, ok)
}

func TestCompleteOAuthLinksSignedInUser(t *testing.T) {
	env := newOAuthEnv(t, "different@x.com")
	ctx := context.Background()
	u := env.seedUser(t, "alice@x.com", "pw12345678", false)
	jar := env.signIn(t, "alice@x.com", "pw12345678")
	before, _ := jar.Get(cookie.Session)

	state := startOAuth(t, env, jar)
	_, err := env.engine.CompleteOAuth(ctx, jar, "github", state, "good-code")
	require.NoError(t, err)

	linked, err := env.store.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, linked.Linked(account.ProviderGitHub))
	assert.Equal(t, "https://avatars.example/77", linked.Avatar)

	_, err = env.store.UserByEmail(ctx, "different@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)

	after, _ := jar.Get(cookie.Session)
	assert.NotEqual(t, before, after)
	sess, err := env.engine.Authenticate(ctx, jar)
	require.NoError(t, err)
	assert.Equal(t, u.ID, sess.UserID)
}

func TestCompleteOAuthFailuresAreGeneric(t *testing.T) {
	env := newOAuthEnv(t, "octo@x.com")
	ctx := context.Background()

	jar := env.jar()
	startOAuth(t, env, jar)
	_, err := env.engine.CompleteOAuth(ctx, jar, "github", "forged-state", "good-code")
	require.ErrorIs(t, err, ErrOAuthFailed)
	assert.Equal(t, KindUnexpected, KindOf(err))

	jar = env.jar()
	state := startOAuth(t, env, jar)
	_, err = env.engine.CompleteOAuth(ctx, jar, "github", state, "denied")
	require.ErrorIs(t, err, ErrOAuthFailed)

	_, err = env.engine.CompleteOAuth(ctx, env.jar(), "google", "s", "c")
	require.ErrorIs(t, err, ErrOAuthFailed)

	_, err = env.store.UserByEmail(ctx, "octo@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound, "nothing is linked on failure")
	assert.Equal(t, uint64(3), env.engine.MetricsSnapshot().Counters[MetricOAuthFailure])

	_, err = env.engine.StartOAuth(env.jar(), "google")
	assert.ErrorIs(t, err, ErrInvalidInput)
}
