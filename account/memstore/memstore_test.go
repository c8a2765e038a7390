package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingUserUpsertKeepsSingleRow(t *testing.T) {
	s := New()
	ctx := context.Background()

	first, err := s.UpsertPendingUser(ctx, account.PendingUser{Email: "Alice@X.com", Name: "Alice", Code: "111111"})
	require.NoError(t, err)
	second, err := s.UpsertPendingUser(ctx, account.PendingUser{Email: "alice@x.com", Name: "Alice", Code: "222222"})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, s.pending, 1)

	got, err := s.PendingUserByEmail(ctx, "alice@x.com")
	require.NoError(t, err)
	assert.Equal(t, "222222", got.Code)
}

func TestPromotePendingUser(t *testing.T) {
	s := New()
	ctx := context.Background()

	_, err := s.UpsertPendingUser(ctx, account.PendingUser{Email: "a@x.com", Name: "A", PasswordHash: "h", Salt: "s", Code: "123456"})
	require.NoError(t, err)

	u, err := s.PromotePendingUser(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, account.RoleUser, u.Role)
	assert.True(t, u.HasPassword())

	_, err = s.PendingUserByEmail(ctx, "a@x.com")
	assert.ErrorIs(t, err, account.ErrNotFound)

	_, err = s.UpsertPendingUser(ctx, account.PendingUser{Email: "a@x.com", Name: "A"})
	require.NoError(t, err)
	_, err = s.PromotePendingUser(ctx, "a@x.com")
	assert.ErrorIs(t, err, account.ErrEmailTaken)
}

func TestConsumePasswordReset(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := s.PutUser(account.User{Email: "a@x.com", Name: "A", PasswordHash: "old", Salt: "old"})

	r, err := s.UpsertPasswordReset(ctx, account.PasswordReset{Email: "a@x.com", TokenHash: "t1", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	again, err := s.UpsertPasswordReset(ctx, account.PasswordReset{Email: "a@x.com", TokenHash: "t2", ExpiresAt: time.Now().Add(time.Hour)})
	require.NoError(t, err)
	assert.Equal(t, r.ID, again.ID)

	_, err = s.PasswordResetByTokenHash(ctx, "t1")
	assert.ErrorIs(t, err, account.ErrNotFound)

	updated, err := s.ConsumePasswordReset(ctx, again.ID, "new", "salt")
	require.NoError(t, err)
	assert.Equal(t, u.ID, updated.ID)
	assert.Equal(t, "new", updated.PasswordHash)

	_, err = s.PasswordResetByTokenHash(ctx, "t2")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestDeleteUserCascades(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := s.PutUser(account.User{Email: "a@x.com"})

	_, err := s.UpsertTwoFactor(ctx, account.TwoFactor{UserID: u.ID, Code: "123456"})
	require.NoError(t, err)
	_, err = s.UpsertDeleteAccount(ctx, account.DeleteAccount{UserID: u.ID, Code: "654321"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, u.ID))

	_, err = s.UserByID(ctx, u.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
	_, err = s.DeleteAccountByUser(ctx, u.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
	assert.Empty(t, s.twoFactors)
}

func TestLinkIdentity(t *testing.T) {
	s := New()
	ctx := context.Background()

	created, err := s.LinkIdentity(ctx, "", account.Identity{
		Provider: account.ProviderGitHub, ExternalID: "42", Email: "new@x.com", Name: "New", Avatar: "https://a/1.png",
	})
	require.NoError(t, err)
	assert.False(t, created.HasPassword())
	assert.True(t, created.Linked(account.ProviderGitHub))
	assert.Equal(t, "https://a/1.png", created.Avatar)

	existing := s.PutUser(account.User{Email: "old@x.com", Name: "Old", PasswordHash: "h", Salt: "s"})
	linked, err := s.LinkIdentity(ctx, "", account.Identity{
		Provider: account.ProviderGoogle, ExternalID: "g-1", Email: "old@x.com", Name: "Old G", Avatar: "https://g/1.png",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, linked.ID)
	assert.Equal(t, "https://g/1.png", linked.Avatar)
	assert.Equal(t, "Old", linked.Name)

	again, err := s.LinkIdentity(ctx, "", account.Identity{
		Provider: account.ProviderGoogle, ExternalID: "g-1", Email: "old@x.com", Avatar: "https://g/2.png",
	})
	require.NoError(t, err)
	assert.Len(t, again.Providers, 1)
	assert.Equal(t, "https://g/1.png", again.Avatar)

	// With a session the link goes to the session user regardless of email.
	viaSession, err := s.LinkIdentity(ctx, existing.ID, account.Identity{
		Provider: account.ProviderGitHub, ExternalID: "99", Email: "other@x.com",
	})
	require.NoError(t, err)
	assert.Equal(t, existing.ID, viaSession.ID)
	assert.True(t, viaSession.Linked(account.ProviderGitHub))

	_, err = s.LinkIdentity(ctx, "missing", account.Identity{Provider: account.ProviderGitHub})
	assert.ErrorIs(t, err, account.ErrNotFound)

	require.NoError(t, s.UnlinkProvider(ctx, existing.ID, account.ProviderGoogle))
	after, err := s.UserByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.False(t, after.Linked(account.ProviderGoogle))
	assert.True(t, after.Linked(account.ProviderGitHub))
}

func TestDisablingTwoFactorDropsOutstandingCode(t *testing.T) {
	s := New()
	ctx := context.Background()
	u := s.PutUser(account.User{Email: "a@x.com"})

	require.NoError(t, s.SetTwoFactorEnabled(ctx, u.ID, true))
	tf, err := s.UpsertTwoFactor(ctx, account.TwoFactor{UserID: u.ID, Code: "123456"})
	require.NoError(t, err)

	require.NoError(t, s.SetTwoFactorEnabled(ctx, u.ID, false))
	_, err = s.TwoFactorByID(ctx, tf.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)
}
