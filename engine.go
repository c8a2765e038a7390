package credflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/MrEthical07/credflow/cookie"
	internalaudit "github.com/MrEthical07/credflow/internal/audit"
	"github.com/MrEthical07/credflow/internal/rate"
	"github.com/MrEthical07/credflow/mailer"
	"github.com/MrEthical07/credflow/oauth"
	"github.com/MrEthical07/credflow/session"
	"github.com/sirupsen/logrus"
)

// Engine runs the credential flows. Build one with New().
//
// Every flow takes the request context and the cookie jar of the request.
// Flows return typed *Error values; infrastructure failures are logged and
// reported as ErrUnexpected.
type Engine struct {
	config   Config
	accounts account.Store
	sessions *session.Manager
	limiter  *rate.Limiter
	mailer   *mailer.Mailer
	oauth    oauth.Registry
	policy   cookie.Policy
	audit    *internalaudit.Dispatcher
	metrics  *Metrics
	log      logrus.FieldLogger
	now      func() time.Time
}

// Close flushes queued audit events.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot copies the current counters and latency buckets.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Providers lists the OAuth providers with complete credentials.
func (e *Engine) Providers() []account.Provider {
	out := make([]account.Provider, 0, len(e.oauth))
	for _, p := range []account.Provider{account.ProviderGoogle, account.ProviderGitHub} {
		if _, ok := e.oauth[p]; ok {
			out = append(out, p)
		}
	}
	return out
}

// AllowRequest applies the coarse global window to ip. It returns
// ErrRateLimited once ip exhausts the window.
func (e *Engine) AllowRequest(ctx context.Context, ip string) error {
	if ip == "" {
		ip = "unknown"
	}
	ok, err := e.limiter.Allow(ctx, rate.Global, ip)
	if err != nil {
		e.log.WithError(err).Error("global rate limit")
		e.metricInc(MetricUnexpectedError)
		return ErrUnexpected
	}
	if !ok {
		e.metricInc(MetricRateLimitHit)
		return ErrRateLimited
	}
	return nil
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observe(start time.Time) {
	e.metrics.Observe(MetricFlowLatency, e.now().Sub(start))
}

// reject audits a failed flow and returns the error shown to the caller.
// Anything that is not an *Error is logged and replaced by ErrUnexpected.
func (e *Engine) reject(ctx context.Context, event, userID string, err error) error {
	var flowErr *Error
	if !errors.As(err, &flowErr) {
		entry := e.log.WithField("flow", event).WithError(err)
		if userID != "" {
			entry = entry.WithField("user_id", userID)
		}
		entry.Error("credential flow failed")
		e.metricInc(MetricUnexpectedError)
		err = ErrUnexpected
	}
	e.emitAudit(ctx, event, userID, err, nil)
	return err
}

// allow consumes one slot of the category window for key.
func (e *Engine) allow(ctx context.Context, flow string, category rate.Category, key string) error {
	ok, err := e.limiter.Allow(ctx, category, key)
	if err != nil {
		return fmt.Errorf("rate limit %s: %w", category, err)
	}
	if !ok {
		e.emitRateLimit(ctx, flow)
		return ErrRateLimited
	}
	return nil
}

func sessionData(u account.User) session.Data {
	return session.Data{UserID: u.ID, Role: string(u.Role)}
}

// resync copies the user's current identity into data, keeping any
// elevation marker.
func resync(data session.Data, u account.User) session.Data {
	data.UserID = u.ID
	data.Role = string(u.Role)
	return data
}

// startSession replaces whatever session the jar holds with a new one.
func (e *Engine) startSession(ctx context.Context, jar cookie.Jar, data session.Data) (*session.Session, error) {
	if err := e.sessions.Delete(ctx, jar); err != nil {
		return nil, fmt.Errorf("drop previous session: %w", err)
	}
	sess, err := e.sessions.Create(ctx, jar, data)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	e.metricInc(MetricSessionCreated)
	return sess, nil
}

// updateSession rewrites the current session. A session invalidated since it
// was read is reported as ErrUnauthenticated.
func (e *Engine) updateSession(ctx context.Context, jar cookie.Jar, data session.Data) error {
	_, err := e.sessions.Update(ctx, jar, data)
	if errors.Is(err, session.ErrNoSession) {
		return ErrUnauthenticated
	}
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (e *Engine) requireSession(ctx context.Context, jar cookie.Jar) (*session.Session, error) {
	sess, err := e.sessions.Get(ctx, jar)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

// requireUser resolves the session and its user. A session whose user is
// gone is deleted and treated as absent.
func (e *Engine) requireUser(ctx context.Context, jar cookie.Jar) (*session.Session, account.User, error) {
	sess, err := e.requireSession(ctx, jar)
	if err != nil {
		return nil, account.User{}, err
	}

	u, err := e.accounts.UserByID(ctx, sess.UserID)
	if errors.Is(err, account.ErrNotFound) {
		if delErr := e.sessions.Delete(ctx, jar); delErr != nil {
			e.log.WithError(delErr).Warn("delete orphaned session")
		}
		return nil, account.User{}, ErrUnauthenticated
	}
	if err != nil {
		return nil, account.User{}, fmt.Errorf("find user: %w", err)
	}
	return sess, u, nil
}

func (e *Engine) expireCookie(jar cookie.Jar, name string) {
	jar.Set(e.policy.Expired(name))
}

func (e *Engine) setCookie(jar cookie.Jar, name, value string, ttl time.Duration) {
	jar.Set(e.policy.New(name, value, ttl, e.now()))
}
