// Package memstore is an in-memory account.Store. Every method holds one
// lock for its whole body, which gives the multi-record operations the same
// all-or-nothing behaviour a database transaction would.
package memstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/google/uuid"
)

// Store implements account.Store in memory.
type Store struct {
	mu sync.Mutex

	users       map[string]account.User
	pending     map[string]account.PendingUser
	resets      map[string]account.PasswordReset
	twoFactors  map[string]account.TwoFactor
	deleteCodes map[string]account.DeleteAccount
	now         func() time.Time
}

var _ account.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{
		users:       map[string]account.User{},
		pending:     map[string]account.PendingUser{},
		resets:      map[string]account.PasswordReset{},
		twoFactors:  map[string]account.TwoFactor{},
		deleteCodes: map[string]account.DeleteAccount{},
		now:         time.Now,
	}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func copyUser(u account.User) account.User {
	u.Providers = append([]account.ProviderLink(nil), u.Providers...)
	return u
}

// PutUser inserts or replaces a user directly. Intended for seeding.
func (s *Store) PutUser(u account.User) account.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.Role == "" {
		u.Role = account.RoleUser
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now()
	}
	u.Email = normalize(u.Email)
	s.users[u.ID] = copyUser(u)
	return copyUser(u)
}

func (s *Store) userByEmailLocked(email string) (account.User, bool) {
	email = normalize(email)
	for _, u := range s.users {
		if u.Email == email {
			return u, true
		}
	}
	return account.User{}, false
}

func (s *Store) UserByEmail(_ context.Context, email string) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.userByEmailLocked(email)
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) UserByID(_ context.Context, id string) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	return copyUser(u), nil
}

func (s *Store) mutateUser(id string, fn func(*account.User)) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	fn(&u)
	s.users[id] = u
	return copyUser(u), nil
}

func (s *Store) UpdateUserName(_ context.Context, id, name string) (account.User, error) {
	return s.mutateUser(id, func(u *account.User) { u.Name = name })
}

func (s *Store) UpdateUserRole(_ context.Context, id string, role account.Role) (account.User, error) {
	return s.mutateUser(id, func(u *account.User) { u.Role = role })
}

func (s *Store) UpdateUserPassword(_ context.Context, id, hash, salt string) error {
	_, err := s.mutateUser(id, func(u *account.User) {
		u.PasswordHash = hash
		u.Salt = salt
	})
	return err
}

func (s *Store) SetTwoFactorEnabled(_ context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return account.ErrNotFound
	}
	u.TwoFactorEnabled = enabled
	s.users[id] = u
	if !enabled {
		delete(s.twoFactors, id)
	}
	return nil
}

func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return account.ErrNotFound
	}
	delete(s.users, id)
	delete(s.twoFactors, id)
	delete(s.deleteCodes, id)
	return nil
}

func (s *Store) UpsertPendingUser(_ context.Context, p account.PendingUser) (account.PendingUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.Email = normalize(p.Email)
	if existing, ok := s.pending[p.Email]; ok {
		p.ID = existing.ID
	} else {
		p.ID = uuid.NewString()
	}
	s.pending[p.Email] = p
	return p, nil
}

func (s *Store) PendingUserByEmail(_ context.Context, email string) (account.PendingUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pending[normalize(email)]
	if !ok {
		return account.PendingUser{}, account.ErrNotFound
	}
	return p, nil
}

func (s *Store) DeletePendingUser(_ context.Context, email string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, normalize(email))
	return nil
}

func (s *Store) PromotePendingUser(_ context.Context, email string) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	email = normalize(email)
	p, ok := s.pending[email]
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	if _, taken := s.userByEmailLocked(email); taken {
		return account.User{}, account.ErrEmailTaken
	}
	u := account.User{
		ID:           uuid.NewString(),
		Email:        p.Email,
		Name:         p.Name,
		PasswordHash: p.PasswordHash,
		Salt:         p.Salt,
		Role:         account.RoleUser,
		CreatedAt:    s.now(),
	}
	s.users[u.ID] = u
	delete(s.pending, email)
	return copyUser(u), nil
}

func (s *Store) UpsertPasswordReset(_ context.Context, r account.PasswordReset) (account.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.Email = normalize(r.Email)
	if existing, ok := s.resets[r.Email]; ok {
		r.ID = existing.ID
	} else {
		r.ID = uuid.NewString()
	}
	s.resets[r.Email] = r
	return r, nil
}

func (s *Store) PasswordResetByTokenHash(_ context.Context, tokenHash string) (account.PasswordReset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.resets {
		if r.TokenHash == tokenHash {
			return r, nil
		}
	}
	return account.PasswordReset{}, account.ErrNotFound
}

func (s *Store) DeletePasswordReset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for email, r := range s.resets {
		if r.ID == id {
			delete(s.resets, email)
		}
	}
	return nil
}

func (s *Store) ConsumePasswordReset(_ context.Context, resetID, hash, salt string) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var reset account.PasswordReset
	found := false
	for _, r := range s.resets {
		if r.ID == resetID {
			reset, found = r, true
			break
		}
	}
	if !found {
		return account.User{}, account.ErrNotFound
	}
	u, ok := s.userByEmailLocked(reset.Email)
	if !ok {
		return account.User{}, account.ErrNotFound
	}
	u.PasswordHash = hash
	u.Salt = salt
	s.users[u.ID] = u
	delete(s.resets, reset.Email)
	return copyUser(u), nil
}

func (s *Store) UpsertTwoFactor(_ context.Context, t account.TwoFactor) (account.TwoFactor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.twoFactors[t.UserID]; ok {
		t.ID = existing.ID
	} else {
		t.ID = uuid.NewString()
	}
	s.twoFactors[t.UserID] = t
	return t, nil
}

func (s *Store) TwoFactorByID(_ context.Context, id string) (account.TwoFactor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.twoFactors {
		if t.ID == id {
			return t, nil
		}
	}
	return account.TwoFactor{}, account.ErrNotFound
}

func (s *Store) DeleteTwoFactor(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, t := range s.twoFactors {
		if t.ID == id {
			delete(s.twoFactors, userID)
		}
	}
	return nil
}

func (s *Store) UpsertDeleteAccount(_ context.Context, d account.DeleteAccount) (account.DeleteAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.deleteCodes[d.UserID]; ok {
		d.ID = existing.ID
	} else {
		d.ID = uuid.NewString()
	}
	s.deleteCodes[d.UserID] = d
	return d, nil
}

func (s *Store) DeleteAccountByUser(_ context.Context, userID string) (account.DeleteAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.deleteCodes[userID]
	if !ok {
		return account.DeleteAccount{}, account.ErrNotFound
	}
	return d, nil
}

func (s *Store) DeleteDeleteAccount(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.deleteCodes, userID)
	return nil
}

func (s *Store) LinkIdentity(_ context.Context, sessionUserID string, id account.Identity) (account.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		u  account.User
		ok bool
	)
	if sessionUserID != "" {
		u, ok = s.users[sessionUserID]
		if !ok {
			return account.User{}, account.ErrNotFound
		}
	} else {
		u, ok = s.userByEmailLocked(id.Email)
	}

	if !ok {
		u = account.User{
			ID:        uuid.NewString(),
			Email:     normalize(id.Email),
			Name:      id.Name,
			Avatar:    id.Avatar,
			Role:      account.RoleUser,
			CreatedAt: s.now(),
		}
	}

	if !u.Linked(id.Provider) {
		u.Providers = append(u.Providers, account.ProviderLink{
			UserID:     u.ID,
			Provider:   id.Provider,
			ExternalID: id.ExternalID,
		})
		if u.Avatar == "" {
			u.Avatar = id.Avatar
		}
	}

	s.users[u.ID] = u
	return copyUser(u), nil
}

func (s *Store) UnlinkProvider(_ context.Context, userID string, provider account.Provider) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return account.ErrNotFound
	}
	kept := u.Providers[:0:0]
	for _, l := range u.Providers {
		if l.Provider != provider {
			kept = append(kept, l)
		}
	}
	u.Providers = kept
	s.users[userID] = u
	return nil
}
