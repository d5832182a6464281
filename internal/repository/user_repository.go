package repository

import (
	"context"
	"fmt"

	"github.com/Freeeeeet/mentorbook/internal/model"
	"github.com/Freeeeeet/mentorbook/internal/repository/base"
)

type UserRepository struct {
	db *base.Repository
}

const userColumns = `id, email, full_name, role, timezone, telegram_chat_id, created_at`

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *UserRepository) GetByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE telegram_chat_id = $1`, chatID)
}

// SetTelegramChatID links the chat to the user, detaching it from any previous owner.
func (r *UserRepository) SetTelegramChatID(ctx context.Context, userID, chatID int64) error {
	if _, err := r.db.ExecAffected(ctx,
		`UPDATE users SET telegram_chat_id = NULL WHERE telegram_chat_id = $1 AND id <> $2`, chatID, userID); err != nil {
		return fmt.Errorf("detach telegram chat: %w", err)
	}
	n, err := r.db.ExecAffected(ctx, `UPDATE users SET telegram_chat_id = $2 WHERE id = $1`, userID, chatID)
	if err != nil {
		return fmt.Errorf("link telegram chat: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %d not found", userID)
	}
	return nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var user model.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.Role,
		&user.Timezone,
		&user.TelegramChatID,
		&user.CreatedAt,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

func (r *UserRepository) GetOAuthToken(ctx context.Context, userID int64, provider string) (*model.OAuthToken, error) {
	query := `
		SELECT user_id, provider, access_token, refresh_token, token_type, COALESCE(expiry, 'epoch'::timestamptz)
		FROM oauth_accounts
		WHERE user_id = $1 AND provider = $2
	`

	var t model.OAuthToken
	err := r.db.QueryRow(ctx, query, userID, provider).Scan(
		&t.UserID,
		&t.Provider,
		&t.AccessToken,
		&t.RefreshToken,
		&t.TokenType,
		&t.Expiry,
	)
	if err != nil {
		if base.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get oauth token: %w", err)
	}
	return &t, nil
}

func (r *UserRepository) SaveOAuthToken(ctx context.Context, t *model.OAuthToken) error {
	query := `
		INSERT INTO oauth_accounts (user_id, provider, access_token, refresh_token, token_type, expiry)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (user_id, provider) DO UPDATE
		SET access_token = EXCLUDED.access_token,
		    refresh_token = CASE WHEN EXCLUDED.refresh_token = '' THEN oauth_accounts.refresh_token ELSE EXCLUDED.refresh_token END,
		    token_type = EXCLUDED.token_type,
		    expiry = EXCLUDED.expiry
	`
	_, err := r.db.ExecAffected(ctx, query, t.UserID, t.Provider, t.AccessToken, t.RefreshToken, t.TokenType, t.Expiry)
	if err != nil {
		return fmt.Errorf("save oauth token: %w", err)
	}
	return nil
}
