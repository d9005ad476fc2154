package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sakif/forkwatch/internal/apperror"
	"github.com/sakif/forkwatch/internal/model"
	"github.com/sakif/forkwatch/internal/repository"
)

var _ repository.UserRepository = (*DB)(nil)

// Upsert inserts a user on first sign-in and refreshes the profile afterwards.
// CreatedAt is kept from the first insert; LastSignIn is always bumped.
func (db *DB) Upsert(ctx context.Context, user *model.User) error {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	now := time.Now().UTC()
	user.LastSignIn = now

	_, err := db.conn.ExecContext(ctx, db.rebind(
		`INSERT INTO users (email, login, name, image, created_at, last_sign_in)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (email) DO UPDATE SET
		     login = excluded.login,
		     name = excluded.name,
		     image = excluded.image,
		     last_sign_in = excluded.last_sign_in`),
		user.Email,
		user.Login,
		user.Name,
		user.Image,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlstore: upserting user %s: %w", user.Email, err)
	}

	stored, err := db.GetByEmail(ctx, user.Email)
	if err != nil {
		return err
	}
	user.CreatedAt = stored.CreatedAt
	return nil
}

// GetByEmail returns the user with the given email.
func (db *DB) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	ctx, cancel := db.opContext(ctx)
	defer cancel()

	var u model.User
	err := db.conn.QueryRowContext(ctx, db.rebind(
		`SELECT email, login, name, image, created_at, last_sign_in
		 FROM users WHERE email = ?`),
		email,
	).Scan(&u.Email, &u.Login, &u.Name, &u.Image, &u.CreatedAt, &u.LastSignIn)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", email)
		}
		return nil, fmt.Errorf("sqlstore: getting user %s: %w", email, err)
	}
	return &u, nil
}
