package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore connects to CREDFLOW_TEST_DATABASE_URL, migrates and
// truncates. The suite is skipped when the variable is unset.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("CREDFLOW_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("CREDFLOW_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	db, err := Open(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(ctx, db))
	_, err = db.ExecContext(ctx, `TRUNCATE users, providers, pending_users, password_resets, two_factors, delete_accounts CASCADE`)
	require.NoError(t, err)

	return New(db)
}

func TestPostgresPendingUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	first, err := s.UpsertPendingUser(ctx, account.PendingUser{Email: "Alice@X.com", Name: "Alice", PasswordHash: "h", Salt: "s", Code: "111111", ExpiresAt: exp})
	require.NoError(t, err)
	second, err := s.UpsertPendingUser(ctx, account.PendingUser{Email: "alice@x.com", Name: "Alice", PasswordHash: "h2", Salt: "s2", Code: "222222", ExpiresAt: exp})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	got, err := s.PendingUserByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", got.Code)

	u, err := s.PromotePendingUser(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "h2", u.PasswordHash)

	_, err = s.PendingUserByEmail(ctx, "alice@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = s.UpsertPendingUser(ctx, account.PendingUser{Email: "alice@x.com", Name: "Alice", PasswordHash: "h", Salt: "s", Code: "333333", ExpiresAt: exp})
	require.NoError(t, err)
	_, err = s.PromotePendingUser(ctx, "alice@x.com")
	assert.ErrorIs(t, err, account.ErrEmailTaken)
}

func TestPostgresResetAndCascade(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	_, err := s.UpsertPendingUser(ctx, account.PendingUser{Email: "b@x.com", Name: "Bob", PasswordHash: "h", Salt: "s", Code: "111111", ExpiresAt: exp})
	require.NoError(t, err)
	u, err := s.PromotePendingUser(ctx, "b@x.com")
	require.NoError(t, err)

	r, err := s.UpsertPasswordReset(ctx, account.PasswordReset{Email: "b@x.com", TokenHash: "th", ExpiresAt: exp})
	require.NoError(t, err)
	updated, err := s.ConsumePasswordReset(ctx, r.ID, "newh", "news")
	require.NoError(t, err)
	assert.Equal(t, u.ID, updated.ID)
	assert.Equal(t, "newh", updated.PasswordHash)

	_, err = s.PasswordResetByTokenHash(ctx, "th")
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = s.UpsertTwoFactor(ctx, account.TwoFactor{UserID: u.ID, Code: "123456", ExpiresAt: exp})
	require.NoError(t, err)
	_, err = s.UpsertDeleteAccount(ctx, account.DeleteAccount{UserID: u.ID, Code: "654321", ExpiresAt: exp})
	require.NoError(t, err)
	_, err = s.LinkIdentity(ctx, u.ID, account.Identity{Provider: account.ProviderGitHub, ExternalID: "1", Email: "b@x.com"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, u.ID))
	_, err = s.UserByID(ctx, u.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
	_, err = s.DeleteAccountByUser(ctx, u.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestPostgresLinkIdentityCreatesVerifiedUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	u, err := s.LinkIdentity(ctx, "", account.Identity{
		Provider: account.ProviderGoogle, ExternalID: "g1", Email: "c@x.com", Name: "C", Avatar: "https://a/c.png",
	})
	require.NoError(t, err)
	assert.False(t, u.HasPassword())
	assert.True(t, u.Linked(account.ProviderGoogle))

	again, err := s.LinkIdentity(ctx, "", account.Identity{Provider: account.ProviderGoogle, ExternalID: "g1", Email: "C@x.com"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, again.ID)
	assert.Len(t, again.Providers, 1)

	require.NoError(t, s.UnlinkProvider(ctx, u.ID, account.ProviderGoogle))
	after, err := s.UserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, after.Providers)
}

func TestPostgresPurgeExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertPasswordReset(ctx, account.PasswordReset{Email: "d@x.com", TokenHash: "old", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)

	n, err := s.PurgeExpired(ctx, time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
