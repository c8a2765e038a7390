// Package postgres implements account.Store on PostgreSQL through the pgx
// database/sql driver. Operations that touch more than one table run in a
// single transaction.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/credflow/account"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

const uniqueViolation = "23505"

// Store is a PostgreSQL account.Store.
type Store struct {
	db *sql.DB
}

var _ account.Store = (*Store)(nil)

// Open connects with the pgx driver and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// New wraps an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func normalize(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func dbErr(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return account.ErrNotFound
	}
	return fmt.Errorf("db error: %w", err)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

const userColumns = `id, email, name, password_hash, salt, avatar, two_factor_enabled, role, created_at`

func scanUser(row interface{ Scan(...any) error }) (account.User, error) {
	var (
		u                  account.User
		hash, salt, avatar sql.NullString
		role               string
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &hash, &salt, &avatar, &u.TwoFactorEnabled, &role, &u.CreatedAt); err != nil {
		return account.User{}, err
	}
	u.PasswordHash = hash.String
	u.Salt = salt.String
	u.Avatar = avatar.String
	u.Role = account.Role(role)
	return u, nil
}

func loadProviders(ctx context.Context, db DBTX, u *account.User) error {
	rows, err := db.QueryContext(ctx,
		`SELECT provider, external_id FROM providers WHERE user_id = $1 ORDER BY provider`, u.ID)
	if err != nil {
		return dbErr(err)
	}
	defer rows.Close()

	u.Providers = u.Providers[:0]
	for rows.Next() {
		link := account.ProviderLink{UserID: u.ID}
		var p string
		if err := rows.Scan(&p, &link.ExternalID); err != nil {
			return dbErr(err)
		}
		link.Provider = account.Provider(p)
		u.Providers = append(u.Providers, link)
	}
	if err := rows.Err(); err != nil {
		return dbErr(err)
	}
	return nil
}

func userBy(ctx context.Context, db DBTX, where string, arg any) (account.User, error) {
	u, err := scanUser(db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if err != nil {
		return account.User{}, dbErr(err)
	}
	if err := loadProviders(ctx, db, &u); err != nil {
		return account.User{}, err
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (account.User, error) {
	return userBy(ctx, s.db, `lower(email) = $1`, normalize(email))
}

func (s *Store) UserByID(ctx context.Context, id string) (account.User, error) {
	return userBy(ctx, s.db, `id = $1`, id)
}

func (s *Store) UpdateUserName(ctx context.Context, id, name string) (account.User, error) {
	if err := s.exec(ctx, `UPDATE users SET name = $2 WHERE id = $1`, id, name); err != nil {
		return account.User{}, err
	}
	return s.UserByID(ctx, id)
}

func (s *Store) UpdateUserRole(ctx context.Context, id string, role account.Role) (account.User, error) {
	if err := s.exec(ctx, `UPDATE users SET role = $2 WHERE id = $1`, id, string(role)); err != nil {
		return account.User{}, err
	}
	return s.UserByID(ctx, id)
}

func (s *Store) UpdateUserPassword(ctx context.Context, id, hash, salt string) error {
	return s.exec(ctx, `UPDATE users SET password_hash = $2, salt = $3 WHERE id = $1`, id, hash, salt)
}

func (s *Store) SetTwoFactorEnabled(ctx context.Context, id string, enabled bool) error {
	return withTx(ctx, s.db, func(tx DBTX) error {
		if err := execAffecting(ctx, tx, `UPDATE users SET two_factor_enabled = $2 WHERE id = $1`, id, enabled); err != nil {
			return err
		}
		if enabled {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM two_factors WHERE user_id = $1`, id); err != nil {
			return dbErr(err)
		}
		return nil
	})
}

func (s *Store) DeleteUser(ctx context.Context, id string) error {
	return withTx(ctx, s.db, func(tx DBTX) error {
		for _, q := range []string{
			`DELETE FROM providers WHERE user_id = $1`,
			`DELETE FROM two_factors WHERE user_id = $1`,
			`DELETE FROM delete_accounts WHERE user_id = $1`,
		} {
			if _, err := tx.ExecContext(ctx, q, id); err != nil {
				return dbErr(err)
			}
		}
		return execAffecting(ctx, tx, `DELETE FROM users WHERE id = $1`, id)
	})
}

func (s *Store) UpsertPendingUser(ctx context.Context, p account.PendingUser) (account.PendingUser, error) {
	p.Email = normalize(p.Email)
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO pending_users (id, email, name, password_hash, salt, code, expires_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (email) DO UPDATE
		 SET name = EXCLUDED.name, password_hash = EXCLUDED.password_hash, salt = EXCLUDED.salt,
		     code = EXCLUDED.code, expires_at = EXCLUDED.expires_at
		 RETURNING id`,
		uuid.NewString(), p.Email, p.Name, p.PasswordHash, p.Salt, p.Code, p.ExpiresAt.UTC(),
	).Scan(&p.ID)
	if err != nil {
		return account.PendingUser{}, dbErr(err)
	}
	return p, nil
}

func (s *Store) PendingUserByEmail(ctx context.Context, email string) (account.PendingUser, error) {
	return pendingByEmail(ctx, s.db, normalize(email), false)
}

func pendingByEmail(ctx context.Context, db DBTX, email string, lock bool) (account.PendingUser, error) {
	q := `SELECT id, email, name, password_hash, salt, code, expires_at FROM pending_users WHERE email = $1`
	if lock {
		q += ` FOR UPDATE`
	}
	var p account.PendingUser
	err := db.QueryRowContext(ctx, q, email).
		Scan(&p.ID, &p.Email, &p.Name, &p.PasswordHash, &p.Salt, &p.Code, &p.ExpiresAt)
	if err != nil {
		return account.PendingUser{}, dbErr(err)
	}
	return p, nil
}

func (s *Store) DeletePendingUser(ctx context.Context, email string) error {
	return s.exec(ctx, `DELETE FROM pending_users WHERE email = $1`, normalize(email))
}

func (s *Store) PromotePendingUser(ctx context.Context, email string) (account.User, error) {
	email = normalize(email)
	var u account.User
	err := withTx(ctx, s.db, func(tx DBTX) error {
		p, err := pendingByEmail(ctx, tx, email, true)
		if err != nil {
			return err
		}

		u = account.User{
			ID:           uuid.NewString(),
			Email:        p.Email,
			Name:         p.Name,
			PasswordHash: p.PasswordHash,
			Salt:         p.Salt,
			Role:         account.RoleUser,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO users (id, email, name, password_hash, salt, role)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 RETURNING created_at`,
			u.ID, u.Email, u.Name, u.PasswordHash, u.Salt, string(u.Role),
		).Scan(&u.CreatedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return account.ErrEmailTaken
			}
			return dbErr(err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM pending_users WHERE id = $1`, p.ID); err != nil {
			return dbErr(err)
		}
		return nil
	})
	if err != nil {
		return account.User{}, err
	}
	return u, nil
}

func (s *Store) UpsertPasswordReset(ctx context.Context, r account.PasswordReset) (account.PasswordReset, error) {
	r.Email = normalize(r.Email)
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO password_resets (id, email, token_hash, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (email) DO UPDATE
		 SET token_hash = EXCLUDED.token_hash, expires_at = EXCLUDED.expires_at
		 RETURNING id`,
		uuid.NewString(), r.Email, r.TokenHash, r.ExpiresAt.UTC(),
	).Scan(&r.ID)
	if err != nil {
		return account.PasswordReset{}, dbErr(err)
	}
	return r, nil
}

func (s *Store) PasswordResetByTokenHash(ctx context.Context, tokenHash string) (account.PasswordReset, error) {
	var r account.PasswordReset
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, token_hash, expires_at FROM password_resets WHERE token_hash = $1`, tokenHash,
	).Scan(&r.ID, &r.Email, &r.TokenHash, &r.ExpiresAt)
	if err != nil {
		return account.PasswordReset{}, dbErr(err)
	}
	return r, nil
}

func (s *Store) DeletePasswordReset(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM password_resets WHERE id = $1`, id)
}

func (s *Store) ConsumePasswordReset(ctx context.Context, resetID, hash, salt string) (account.User, error) {
	var u account.User
	err := withTx(ctx, s.db, func(tx DBTX) error {
		var email string
		err := tx.QueryRowContext(ctx,
			`DELETE FROM password_resets WHERE id = $1 RETURNING email`, resetID,
		).Scan(&email)
		if err != nil {
			return dbErr(err)
		}

		u, err = scanUser(tx.QueryRowContext(ctx,
			`UPDATE users SET password_hash = $2, salt = $3 WHERE lower(email) = $1 RETURNING `+userColumns,
			email, hash, salt))
		if err != nil {
			return dbErr(err)
		}
		return loadProviders(ctx, tx, &u)
	})
	if err != nil {
		return account.User{}, err
	}
	return u, nil
}

func (s *Store) UpsertTwoFactor(ctx context.Context, t account.TwoFactor) (account.TwoFactor, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO two_factors (id, user_id, code, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at
		 RETURNING id`,
		uuid.NewString(), t.UserID, t.Code, t.ExpiresAt.UTC(),
	).Scan(&t.ID)
	if err != nil {
		return account.TwoFactor{}, dbErr(err)
	}
	return t, nil
}

func (s *Store) TwoFactorByID(ctx context.Context, id string) (account.TwoFactor, error) {
	var t account.TwoFactor
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, code, expires_at FROM two_factors WHERE id = $1`, id,
	).Scan(&t.ID, &t.UserID, &t.Code, &t.ExpiresAt)
	if err != nil {
		return account.TwoFactor{}, dbErr(err)
	}
	return t, nil
}

func (s *Store) DeleteTwoFactor(ctx context.Context, id string) error {
	return s.exec(ctx, `DELETE FROM two_factors WHERE id = $1`, id)
}

func (s *Store) UpsertDeleteAccount(ctx context.Context, d account.DeleteAccount) (account.DeleteAccount, error) {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO delete_accounts (id, user_id, code, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET code = EXCLUDED.code, expires_at = EXCLUDED.expires_at
		 RETURNING id`,
		uuid.NewString(), d.UserID, d.Code, d.ExpiresAt.UTC(),
	).Scan(&d.ID)
	if err != nil {
		return account.DeleteAccount{}, dbErr(err)
	}
	return d, nil
}

func (s *Store) DeleteAccountByUser(ctx context.Context, userID string) (account.DeleteAccount, error) {
	var d account.DeleteAccount
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, code, expires_at FROM delete_accounts WHERE user_id = $1`, userID,
	).Scan(&d.ID, &d.UserID, &d.Code, &d.ExpiresAt)
	if err != nil {
		return account.DeleteAccount{}, dbErr(err)
	}
	return d, nil
}

func (s *Store) DeleteDeleteAccount(ctx context.Context, userID string) error {
	return s.exec(ctx, `DELETE FROM delete_accounts WHERE user_id = $1`, userID)
}

func (s *Store) LinkIdentity(ctx context.Context, sessionUserID string, id account.Identity) (account.User, error) {
	var u account.User
	err := withTx(ctx, s.db, func(tx DBTX) error {
		var err error
		if sessionUserID != "" {
			u, err = userBy(ctx, tx, `id = $1 FOR UPDATE`, sessionUserID)
		} else {
			u, err = userBy(ctx, tx, `lower(email) = $1 FOR UPDATE`, normalize(id.Email))
		}

		switch {
		case errors.Is(err, account.ErrNotFound) && sessionUserID == "":
			u = account.User{
				ID:     uuid.NewString(),
				Email:  normalize(id.Email),
				Name:   id.Name,
				Avatar: id.Avatar,
				Role:   account.RoleUser,
			}
			err = tx.QueryRowContext(ctx,
				`INSERT INTO users (id, email, name, avatar, role)
				 VALUES ($1, $2, $3, $4, $5)
				 RETURNING created_at`,
				u.ID, u.Email, u.Name, nullable(u.Avatar), string(u.Role),
			).Scan(&u.CreatedAt)
			if err != nil {
				return dbErr(err)
			}
		case err != nil:
			return err
		}

		if u.Linked(id.Provider) {
			return nil
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO providers (user_id, provider, external_id) VALUES ($1, $2, $3)`,
			u.ID, string(id.Provider), id.ExternalID,
		); err != nil {
			return dbErr(err)
		}
		u.Providers = append(u.Providers, account.ProviderLink{UserID: u.ID, Provider: id.Provider, ExternalID: id.ExternalID})

		if u.Avatar == "" && id.Avatar != "" {
			if _, err := tx.ExecContext(ctx, `UPDATE users SET avatar = $2 WHERE id = $1`, u.ID, id.Avatar); err != nil {
				return dbErr(err)
			}
			u.Avatar = id.Avatar
		}
		return nil
	})
	if err != nil {
		return account.User{}, err
	}
	return u, nil
}

func (s *Store) UnlinkProvider(ctx context.Context, userID string, provider account.Provider) error {
	return s.exec(ctx, `DELETE FROM providers WHERE user_id = $1 AND provider = $2`, userID, string(provider))
}

// PurgeExpired removes pending users, resets and codes past their expiry.
func (s *Store) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	var total int64
	err := withTx(ctx, s.db, func(tx DBTX) error {
		for _, table := range []string{"pending_users", "password_resets", "two_factors", "delete_accounts"} {
			res, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE expires_at <= $1`, now.UTC())
			if err != nil {
				return dbErr(err)
			}
			n, _ := res.RowsAffected()
			total += n
		}
		return nil
	})
	return total, err
}

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return dbErr(err)
	}
	return nil
}

func execAffecting(ctx context.Context, db DBTX, query string, args ...any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return dbErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return dbErr(err)
	}
	if n == 0 {
		return account.ErrNotFound
	}
	return nil
}
