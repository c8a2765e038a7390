package account

import "context"

// Store is the relational persistence contract. Lookups return ErrNotFound
// for missing records. Upserts replace the existing record for the same
// owner and return the stored value with its id.
type Store interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
	UpdateUserName(ctx context.Context, id, name string) (User, error)
	UpdateUserRole(ctx context.Context, id string, role Role) (User, error)
	UpdateUserPassword(ctx context.Context, id, hash, salt string) error
	// SetTwoFactorEnabled toggles the flag. Disabling also removes any
	// outstanding TwoFactor record of the user.
	SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error
	// DeleteUser removes the user with its provider links, TwoFactor and
	// DeleteAccount records.
	DeleteUser(ctx context.Context, id string) error

	UpsertPendingUser(ctx context.Context, p PendingUser) (PendingUser, error)
	PendingUserByEmail(ctx context.Context, email string) (PendingUser, error)
	DeletePendingUser(ctx context.Context, email string) error
	// PromotePendingUser creates a user from the pending record for email and
	// deletes the pending record. It fails with ErrEmailTaken if a user with
	// that email exists.
	PromotePendingUser(ctx context.Context, email string) (User, error)

	UpsertPasswordReset(ctx context.Context, r PasswordReset) (PasswordReset, error)
	PasswordResetByTokenHash(ctx context.Context, tokenHash string) (PasswordReset, error)
	DeletePasswordReset(ctx context.Context, id string) error
	// ConsumePasswordReset sets the password of the user owning the reset's
	// email and deletes the reset record.
	ConsumePasswordReset(ctx context.Context, resetID, hash, salt string) (User, error)

	UpsertTwoFactor(ctx context.Context, t TwoFactor) (TwoFactor, error)
	TwoFactorByID(ctx context.Context, id string) (TwoFactor, error)
	DeleteTwoFactor(ctx context.Context, id string) error

	UpsertDeleteAccount(ctx context.Context, d DeleteAccount) (DeleteAccount, error)
	DeleteAccountByUser(ctx context.Context, userID string) (DeleteAccount, error)
	DeleteDeleteAccount(ctx context.Context, userID string) error

	// LinkIdentity resolves the user an external identity signs in as. With
	// a non-empty sessionUserID the identity is linked to that user.
	// Otherwise the user is found by email or created verified. A missing
	// link is added and an empty avatar backfilled.
	LinkIdentity(ctx context.Context, sessionUserID string, id Identity) (User, error)
	UnlinkProvider(ctx context.Context, userID string, provider Provider) error
}
