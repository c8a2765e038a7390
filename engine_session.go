package credflow

import (
	"context"

	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/session"
)

// Authenticate returns the session of the request or ErrUnauthenticated.
func (e *Engine) Authenticate(ctx context.Context, jar cookie.Jar) (*session.Session, error) {
	sess, err := e.sessions.Get(ctx, jar)
	if err != nil {
		e.log.WithError(err).Error("load session")
		e.metricInc(MetricUnexpectedError)
		return nil, ErrUnexpected
	}
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}

// RefreshSession authenticates like Authenticate and slides the session's
// lifetime.
func (e *Engine) RefreshSession(ctx context.Context, jar cookie.Jar) (*session.Session, error) {
	sess, err := e.sessions.Refresh(ctx, jar)
	if err != nil {
		e.log.WithError(err).Error("refresh session")
		e.metricInc(MetricUnexpectedError)
		return nil, ErrUnexpected
	}
	if sess == nil {
		return nil, ErrUnauthenticated
	}
	return sess, nil
}
