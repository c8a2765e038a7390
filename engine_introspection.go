package credflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credflow/cookie"
)

// SessionInfo describes one live session of the current user. Session ids
// are bearer secrets and are never exposed.
type SessionInfo struct {
	Current            bool       `json:"current"`
	Role               string     `json:"role"`
	TwoFactorVerified  bool       `json:"isTwoFactorVerified"`
	TwoFactorExpiresAt *time.Time `json:"twoFactorExpiresAt,omitempty"`
}

// HealthStatus is an on-demand check of the session store.
type HealthStatus struct {
	RedisAvailable bool          `json:"redisAvailable"`
	RedisLatency   time.Duration `json:"redisLatency"`
}

// ActiveSessions lists the live sessions of the signed-in user, marking the
// one attached to jar.
func (e *Engine) ActiveSessions(ctx context.Context, jar cookie.Jar) ([]SessionInfo, error) {
	sess, err := e.requireSession(ctx, jar)
	if err != nil {
		return nil, e.unexpected(err, "")
	}

	list, err := e.sessions.List(ctx, sess.UserID)
	if err != nil {
		return nil, e.unexpected(fmt.Errorf("list sessions: %w", err), sess.UserID)
	}

	now := e.now()
	out := make([]SessionInfo, 0, len(list))
	for _, s := range list {
		info := SessionInfo{Current: s.ID == sess.ID, Role: s.Role}
		if s.Elevated(now) {
			info.TwoFactorVerified = true
			info.TwoFactorExpiresAt = s.TwoFactorExpiresAt
		}
		out = append(out, info)
	}
	return out, nil
}

// Health pings the session store.
func (e *Engine) Health(ctx context.Context) HealthStatus {
	if e == nil || e.sessions == nil {
		return HealthStatus{}
	}
	start := time.Now()
	err := e.sessions.Ping(ctx)
	return HealthStatus{
		RedisAvailable: err == nil,
		RedisLatency:   time.Since(start),
	}
}

// unexpected passes engine errors through and logs anything else before
// replacing it with ErrUnexpected.
func (e *Engine) unexpected(err error, userID string) error {
	var typed *Error
	if errors.As(err, &typed) {
		return err
	}
	entry := e.log.WithError(err)
	if userID != "" {
		entry = entry.WithField("user_id", userID)
	}
	entry.Error("introspection failed")
	e.metricInc(MetricUnexpectedError)
	return ErrUnexpected
}
