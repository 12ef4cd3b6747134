package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/provisioning-gateway/internal/model"
)

type UserRepository interface {
	FindByMXID(ctx context.Context, mxid model.UserID) (*model.User, error)
	// Ensure returns the row for mxid, inserting an empty one if absent.
	Ensure(ctx context.Context, mxid model.UserID) (*model.User, error)
	MarkLoggedIn(ctx context.Context, params model.MarkLoggedInParams) error
	ClearLogin(ctx context.Context, mxid model.UserID) error
	DeleteAbandoned(ctx context.Context, before time.Time) (int64, error)
}

type userRepo struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) UserRepository {
	return &userRepo{db: db}
}

func (r *userRepo) FindByMXID(ctx context.Context, mxid model.UserID) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		SELECT * FROM provisioned_users WHERE mxid = $1
	`, mxid)
	return HandleNotFound(&user, err)
}

func (r *userRepo) Ensure(ctx context.Context, mxid model.UserID) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, `
		INSERT INTO provisioned_users (mxid)
		VALUES ($1)
		ON CONFLICT (mxid) DO UPDATE SET mxid = EXCLUDED.mxid
		RETURNING *
	`, mxid)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepo) MarkLoggedIn(ctx context.Context, params model.MarkLoggedInParams) error {
	now := time.Now()
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO provisioned_users (mxid, telegram_id, telegram_username, is_bot, logged_in_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (mxid) DO UPDATE SET
			telegram_id = EXCLUDED.telegram_id,
			telegram_username = EXCLUDED.telegram_username,
			is_bot = EXCLUDED.is_bot,
			logged_in_at = EXCLUDED.logged_in_at,
			updated_at = EXCLUDED.updated_at
	`, params.MXID, params.TelegramID, nullIfEmpty(params.TelegramUsername), params.IsBot, now)
	return err
}

func (r *userRepo) ClearLogin(ctx context.Context, mxid model.UserID) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE provisioned_users SET
			telegram_id = NULL,
			telegram_username = NULL,
			is_bot = FALSE,
			logged_in_at = NULL,
			updated_at = $2
		WHERE mxid = $1
	`, mxid, time.Now())
	return err
}

func (r *userRepo) DeleteAbandoned(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `
		DELETE FROM provisioned_users
		WHERE telegram_id IS NULL
		AND updated_at < $1
	`, before)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
