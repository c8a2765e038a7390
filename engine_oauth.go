package credflow

import (
	"context"
	"fmt"

	"github.com/MrEthical07/credflow/cookie"
)

// StartOAuth begins an authorization-code flow with provider and returns
// the URL to send the browser to.
func (e *Engine) StartOAuth(jar cookie.Jar, provider string) (string, error) {
	client, ok := e.oauth.Lookup(provider)
	if !ok {
		return "", ErrInvalidInput
	}
	return client.AuthURL(jar), nil
}

// CompleteOAuth handles the provider callback. The identity is linked to
// the signed-in user when there is one, otherwise it signs in (or creates)
// the user with the identity's email. Every failure reports ErrOAuthFailed.
func (e *Engine) CompleteOAuth(ctx context.Context, jar cookie.Jar, provider, state, code string) (Outcome, error) {
	defer e.observe(e.now())

	client, ok := e.oauth.Lookup(provider)
	if !ok {
		return Outcome{}, e.oauthFailed(ctx, "", fmt.Errorf("unknown provider %q", provider))
	}

	identity, err := client.Callback(ctx, jar, state, code)
	if err != nil {
		return Outcome{}, e.oauthFailed(ctx, "", err)
	}

	sess, err := e.sessions.Get(ctx, jar)
	if err != nil {
		return Outcome{}, e.oauthFailed(ctx, "", fmt.Errorf("load session: %w", err))
	}
	sessionUserID := ""
	if sess != nil {
		sessionUserID = sess.UserID
	}

	u, err := e.accounts.LinkIdentity(ctx, sessionUserID, identity)
	if err != nil {
		return Outcome{}, e.oauthFailed(ctx, sessionUserID, fmt.Errorf("link identity: %w", err))
	}

	if sess != nil {
		if _, err := e.sessions.Rotate(ctx, jar, resync(sess.Data, u)); err != nil {
			return Outcome{}, e.oauthFailed(ctx, u.ID, fmt.Errorf("rotate session: %w", err))
		}
		e.metricInc(MetricSessionCreated)
	} else if _, err := e.startSession(ctx, jar, sessionData(u)); err != nil {
		return Outcome{}, e.oauthFailed(ctx, u.ID, err)
	}

	e.metricInc(MetricOAuthSignIn)
	e.emitAudit(ctx, auditEventOAuthSignIn, u.ID, nil, func() map[string]string {
		return map[string]string{"provider": string(identity.Provider)}
	})
	return Outcome{Redirect: RedirectDashboard}, nil
}

func (e *Engine) oauthFailed(ctx context.Context, userID string, err error) error {
	entry := e.log.WithField("flow", auditEventOAuthSignIn).WithError(err)
	if userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	entry.Warn("oauth callback failed")

	e.metricInc(MetricOAuthFailure)
	e.emitAudit(ctx, auditEventOAuthSignIn, userID, ErrOAuthFailed, nil)
	return ErrOAuthFailed
}
