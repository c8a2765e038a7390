package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MrEthical07/credflow/cookie"
	"github.com/MrEthical07/credflow/internal"
	"github.com/MrEthical07/credflow/kv"
	"github.com/go-playground/validator/v10"
)

// DefaultTTL is the sliding session lifetime.
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrNoSession is returned by operations that need a current session.
	ErrNoSession = errors.New("session: no active session")
	// ErrInvalidPayload is returned when session data fails validation before a write.
	ErrInvalidPayload = errors.New("session: invalid payload")
)

var validate = validator.New()

// Manager creates, reads, slides and invalidates sessions.
type Manager struct {
	store  kv.Store
	policy cookie.Policy
	ttl    time.Duration
	now    func() time.Time
}

// NewManager returns a Manager writing to store. A non-positive ttl selects DefaultTTL.
func NewManager(store kv.Store, policy cookie.Policy, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{
		store:  store,
		policy: policy,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for cookie expiry.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// TTL returns the sliding lifetime applied on every write.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func sessionKey(id string) string {
	return "session:" + id
}

func indexKey(userID string) string {
	return "user:" + userID + ":sessions"
}

// Create stores data under a fresh id, indexes it for the user and sets the
// cookie. The cookie is only written after the batch succeeded.
func (m *Manager) Create(ctx context.Context, jar cookie.Jar, data Data) (*Session, error) {
	payload, err := encode(data)
	if err != nil {
		return nil, err
	}

	id := internal.NewSessionID()
	if err := m.write(ctx, id, data.UserID, payload); err != nil {
		return nil, err
	}

	jar.Set(m.policy.New(cookie.Session, id, m.ttl, m.now()))
	return &Session{ID: id, Data: data}, nil
}

// Get resolves the session named by the cookie. A missing cookie or session
// yields (nil, nil). An unparseable payload is treated as absent and the
// cookie is cleared.
func (m *Manager) Get(ctx context.Context, jar cookie.Jar) (*Session, error) {
	id, ok := jar.Get(cookie.Session)
	if !ok {
		return nil, nil
	}

	raw, err := m.store.Get(ctx, sessionKey(id))
	if err != nil {
		if errors.Is(err, kv.ErrNotFound) {
			jar.Set(m.policy.Expired(cookie.Session))
			return nil, nil
		}
		return nil, err
	}

	data, err := decode(raw)
	if err != nil {
		jar.Set(m.policy.Expired(cookie.Session))
		return nil, nil
	}

	return &Session{ID: id, Data: data}, nil
}

// Update replaces the payload of the current session, slides the TTL of the
// entry and the user index, and reissues the cookie. A session deleted since
// it was read stays deleted: the cookie is cleared and ErrNoSession returned.
func (m *Manager) Update(ctx context.Context, jar cookie.Jar, data Data) (*Session, error) {
	id, ok := jar.Get(cookie.Session)
	if !ok {
		return nil, ErrNoSession
	}

	payload, err := encode(data)
	if err != nil {
		return nil, err
	}
	ok, err = m.store.ReplaceIndexed(ctx, sessionKey(id), payload, indexKey(data.UserID), id, m.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		jar.Set(m.policy.Expired(cookie.Session))
		return nil, ErrNoSession
	}

	jar.Set(m.policy.New(cookie.Session, id, m.ttl, m.now()))
	return &Session{ID: id, Data: data}, nil
}

// Refresh slides the current session's lifetime without changing its payload.
func (m *Manager) Refresh(ctx context.Context, jar cookie.Jar) (*Session, error) {
	sess, err := m.Get(ctx, jar)
	if err != nil || sess == nil {
		return sess, err
	}
	sess, err = m.Update(ctx, jar, sess.Data)
	if errors.Is(err, ErrNoSession) {
		return nil, nil
	}
	return sess, err
}

// Rotate moves the current session to a fresh id carrying data.
func (m *Manager) Rotate(ctx context.Context, jar cookie.Jar, data Data) (*Session, error) {
	if err := m.Delete(ctx, jar); err != nil {
		return nil, err
	}
	return m.Create(ctx, jar, data)
}

// Delete removes the current session and its index entry and clears the
// cookie. It is a no-op without a session cookie.
func (m *Manager) Delete(ctx context.Context, jar cookie.Jar) error {
	id, ok := jar.Get(cookie.Session)
	if !ok {
		return nil
	}

	var userID string
	raw, err := m.store.Get(ctx, sessionKey(id))
	switch {
	case err == nil:
		if data, decodeErr := decode(raw); decodeErr == nil {
			userID = data.UserID
		}
	case errors.Is(err, kv.ErrNotFound):
	default:
		return err
	}

	if err := m.store.Multi(ctx, func(b kv.Batch) {
		b.Del(sessionKey(id))
		if userID != "" {
			b.SRem(indexKey(userID), id)
		}
	}); err != nil {
		return err
	}

	jar.Set(m.policy.Expired(cookie.Session))
	return nil
}

// InvalidateOthers deletes every session of userID except exceptID. An
// empty exceptID deletes all of them. An empty index is a successful no-op.
func (m *Manager) InvalidateOthers(ctx context.Context, userID, exceptID string) error {
	ids, err := m.store.SMembers(ctx, indexKey(userID))
	if err != nil {
		return err
	}

	stale := make([]string, 0, len(ids))
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == exceptID {
			continue
		}
		stale = append(stale, id)
		keys = append(keys, sessionKey(id))
	}
	if len(stale) == 0 {
		return nil
	}

	return m.store.Multi(ctx, func(b kv.Batch) {
		b.Del(keys...)
		b.SRem(indexKey(userID), stale...)
	})
}

// InvalidateAll deletes every session of userID.
func (m *Manager) InvalidateAll(ctx context.Context, userID string) error {
	return m.InvalidateOthers(ctx, userID, "")
}

// List returns the live sessions of userID. Index entries whose session
// has already expired are skipped.
func (m *Manager) List(ctx context.Context, userID string) ([]Session, error) {
	ids, err := m.store.SMembers(ctx, indexKey(userID))
	if err != nil {
		return nil, err
	}

	out := make([]Session, 0, len(ids))
	for _, id := range ids {
		raw, err := m.store.Get(ctx, sessionKey(id))
		if errors.Is(err, kv.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		data, err := decode(raw)
		if err != nil {
			continue
		}
		out = append(out, Session{ID: id, Data: data})
	}
	return out, nil
}

// Ping checks that the backing store answers.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) write(ctx context.Context, id, userID, payload string) error {
	return m.store.Multi(ctx, func(b kv.Batch) {
		b.Set(sessionKey(id), payload, m.ttl)
		b.SAdd(indexKey(userID), id)
		b.Expire(indexKey(userID), m.ttl)
	})
}

func encode(data Data) (string, error) {
	if err := validate.Struct(data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return string(b), nil
}

func decode(raw string) (Data, error) {
	var data Data
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return Data{}, err
	}
	if err := validate.Struct(data); err != nil {
		return Data{}, err
	}
	return data, nil
}
