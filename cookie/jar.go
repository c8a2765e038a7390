// Package cookie abstracts the client cookie store the engine reads and
// writes: the session id, the pending verification email, the two-factor
// reference and the OAuth state and PKCE verifier.
package cookie

import (
	"net/http"
	"sync"
	"time"
)

// Cookie names.
const (
	Session           = "session-id"
	VerificationEmail = "verification_email"
	TwoFactorID       = "two_factor_id"
	OAuthState        = "oauth_state"
	OAuthCodeVerifier = "oauth_code_verifier"
)

// Jar reads request cookies and queues response cookies.
type Jar interface {
	Get(name string) (string, bool)
	Set(c *http.Cookie)
}

// Policy holds the attributes shared by every cookie the engine sets.
type Policy struct {
	Secure bool
	Domain string
}

// New builds an httpOnly, SameSite=Lax, Path=/ cookie expiring after ttl.
func (p Policy) New(name, value string, ttl time.Duration, now time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   p.Domain,
		Expires:  now.Add(ttl),
		MaxAge:   int(ttl / time.Second),
		Secure:   p.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// Expired builds a deletion cookie for name.
func (p Policy) Expired(name string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   p.Domain,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		Secure:   p.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// HTTPJar reads from an inbound request and writes Set-Cookie headers.
// Cookies set during the request are visible to later Get calls.
type HTTPJar struct {
	r *http.Request
	w http.ResponseWriter

	mu      sync.Mutex
	pending map[string]*http.Cookie
}

// NewHTTPJar binds a jar to one request/response pair.
func NewHTTPJar(w http.ResponseWriter, r *http.Request) *HTTPJar {
	return &HTTPJar{r: r, w: w, pending: map[string]*http.Cookie{}}
}

func (j *HTTPJar) Get(name string) (string, bool) {
	j.mu.Lock()
	c, ok := j.pending[name]
	j.mu.Unlock()
	if ok {
		if c.MaxAge < 0 {
			return "", false
		}
		return c.Value, true
	}

	rc, err := j.r.Cookie(name)
	if err != nil || rc.Value == "" {
		return "", false
	}
	return rc.Value, true
}

func (j *HTTPJar) Set(c *http.Cookie) {
	j.mu.Lock()
	j.pending[c.Name] = c
	j.mu.Unlock()
	http.SetCookie(j.w, c)
}

// MemoryJar is an in-process Jar for tests and non-HTTP callers.
type MemoryJar struct {
	mu      sync.Mutex
	cookies map[string]*http.Cookie
	now     func() time.Time
}

// NewMemoryJar returns an empty jar using the wall clock for expiry.
func NewMemoryJar() *MemoryJar {
	return &MemoryJar{cookies: map[string]*http.Cookie{}, now: time.Now}
}

// WithClock replaces the clock used to evaluate cookie expiry.
func (j *MemoryJar) WithClock(now func() time.Time) *MemoryJar {
	j.now = now
	return j
}

func (j *MemoryJar) Get(name string) (string, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()

	c, ok := j.cookies[name]
	if !ok {
		return "", false
	}
	if c.MaxAge < 0 || (!c.Expires.IsZero() && !j.now().Before(c.Expires)) {
		delete(j.cookies, name)
		return "", false
	}
	return c.Value, true
}

func (j *MemoryJar) Set(c *http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if c.MaxAge < 0 {
		delete(j.cookies, c.Name)
		return
	}
	cp := *c
	j.cookies[c.Name] = &cp
}

// Cookie returns the stored cookie with its attributes.
func (j *MemoryJar) Cookie(name string) (*http.Cookie, bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	c, ok := j.cookies[name]
	if !ok {
		return nil, false
	}
	cp := *c
	return &cp, true
}
