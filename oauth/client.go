package oauth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/internal"
	"github.com/go-playground/validator/v10"
	"golang.org/x/oauth2"
)

const (
	// CookieTTL bounds how long a started flow may wait for its callback.
	CookieTTL = 10 * time.Minute

	exchangeTimeout = 10 * time.Second
)

var (
	ErrStateMismatch   = errors.New("oauth: state mismatch")
	ErrMissingVerifier = errors.New("oauth: code verifier missing")
	ErrExchange        = errors.New("oauth: code exchange failed")
	ErrUserInfo        = errors.New("oauth: user info unavailable")
)

var validate = validator.New()

// Credentials are the registered application values for one provider.
type Credentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"`
}

// Configured reports whether the provider can be offered.
func (c Credentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

type userFetcher func(ctx context.Context, hc *http.Client, apiBase string) (profile, error)

type profile struct {
	ExternalID string `validate:"required"`
	Email      string `validate:"required,email"`
	Name       string `validate:"required"`
	Avatar     string
}

// Client runs the PKCE flow for a single provider.
type Client struct {
	provider account.Provider
	config   *oauth2.Config
	fetch    userFetcher
	apiBase  string
	policy   cookie.Policy
	now      func() time.Time
	http     *http.Client
}

func newClient(p account.Provider, cfg *oauth2.Config, fetch userFetcher, apiBase string, policy cookie.Policy) *Client {
	return &Client{
		provider: p,
		config:   cfg,
		fetch:    fetch,
		apiBase:  apiBase,
		policy:   policy,
		now:      time.Now,
	}
}

// WithEndpoints points the client at a different authorization server and
// user-info API base URL.
func (c *Client) WithEndpoints(ep oauth2.Endpoint, apiBase string) *Client {
	c.config.Endpoint = ep
	c.apiBase = apiBase
	return c
}

// WithHTTPClient routes token exchange and user-info calls through hc.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// WithClock replaces the clock used for cookie expiry.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Provider returns the provider this client authenticates against.
func (c *Client) Provider() account.Provider { return c.provider }

// AuthURL starts a flow: it stores fresh state and verifier cookies in jar
// and returns the provider consent URL carrying the S256 challenge.
func (c *Client) AuthURL(jar cookie.Jar) string {
	state := internal.GenerateToken(internal.TokenSizeStrong)
	verifier := internal.GenerateToken(internal.TokenSizeStrong)

	now := c.now()
	jar.Set(c.policy.New(cookie.OAuthState, state, CookieTTL, now))
	jar.Set(c.policy.New(cookie.OAuthCodeVerifier, verifier, CookieTTL, now))

	return c.config.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
}

// Callback completes a flow started by AuthURL and returns the provider
// identity. Any failure leaves no flow cookies behind.
func (c *Client) Callback(ctx context.Context, jar cookie.Jar, state, code string) (account.Identity, error) {
	storedState, hasState := jar.Get(cookie.OAuthState)
	verifier, hasVerifier := jar.Get(cookie.OAuthCodeVerifier)
	jar.Set(c.policy.Expired(cookie.OAuthState))
	jar.Set(c.policy.Expired(cookie.OAuthCodeVerifier))

	if !hasState || state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(storedState)) != 1 {
		return account.Identity{}, ErrStateMismatch
	}
	if !hasVerifier {
		return account.Identity{}, ErrMissingVerifier
	}
	if code == "" {
		return account.Identity{}, fmt.Errorf("%w: empty code", ErrExchange)
	}

	if c.http != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, c.http)
	}

	exCtx, cancel := context.WithTimeout(ctx, exchangeTimeout)
	defer cancel()
	token, err := c.config.Exchange(exCtx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return account.Identity{}, fmt.Errorf("%w: %v", ErrExchange, err)
	}

	p, err := c.fetch(ctx, c.config.Client(ctx, token), c.apiBase)
	if err != nil {
		return account.Identity{}, err
	}
	if err := validate.Struct(p); err != nil {
		return account.Identity{}, fmt.Errorf("%w: %v", ErrUserInfo, err)
	}

	return account.Identity{
		Provider:   c.provider,
		ExternalID: p.ExternalID,
		Email:      p.Email,
		Name:       p.Name,
		Avatar:     p.Avatar,
	}, nil
}

// Registry maps provider names to configured clients.
type Registry map[account.Provider]*Client

// Lookup returns the client for a provider name taken from a URL.
func (r Registry) Lookup(name string) (*Client, bool) {
	p := account.Provider(name)
	if !p.Valid() {
		return nil, false
	}
	c, ok := r[p]
	return c, ok
}
