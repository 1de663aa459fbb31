package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

// UpsertTelegramUser создаёт профиль пользователя Telegram или обновляет существующий
func (s *Store) UpsertTelegramUser(ctx context.Context, identity models.TelegramIdentity) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		telegramUserID uuid.UUID
		profileID      uuid.UUID
	)
	err = tx.QueryRow(ctx, `
		SELECT id, profile_id FROM telegram_users WHERE telegram_id = $1
	`, identity.TelegramID).Scan(&telegramUserID, &profileID)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		err = tx.QueryRow(ctx, `
			INSERT INTO profiles (display_name, avatar_url, username, language_code)
			VALUES ($1, $2, $3, $4)
			RETURNING id
		`, identity.DisplayName(), nullable(identity.PhotoURL), nullable(identity.Username), nullable(identity.LanguageCode),
		).Scan(&profileID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при создании профиля: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO telegram_users (profile_id, telegram_id, username, first_name, last_name, photo_url, is_premium, language_code, raw_data)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, profileID, identity.TelegramID, identity.Username, identity.FirstName, identity.LastName,
			identity.PhotoURL, identity.IsPremium, identity.LanguageCode, rawJSON(identity.RawData))
		if err != nil {
			return nil, fmt.Errorf("ошибка при создании Telegram пользователя: %w", err)
		}

	case err != nil:
		return nil, fmt.Errorf("ошибка при проверке существования пользователя Telegram: %w", err)

	default:
		_, err = tx.Exec(ctx, `
			UPDATE telegram_users
			SET username = $1, first_name = $2, last_name = $3, photo_url = $4,
				is_premium = $5, language_code = $6, raw_data = $7, updated_at = now()
			WHERE id = $8
		`, identity.Username, identity.FirstName, identity.LastName, identity.PhotoURL,
			identity.IsPremium, identity.LanguageCode, rawJSON(identity.RawData), telegramUserID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при обновлении Telegram пользователя: %w", err)
		}

		_, err = tx.Exec(ctx, `
			UPDATE profiles
			SET display_name = $1, avatar_url = $2, username = $3, language_code = $4, last_login_at = now()
			WHERE id = $5
		`, identity.DisplayName(), nullable(identity.PhotoURL), nullable(identity.Username), nullable(identity.LanguageCode), profileID)
		if err != nil {
			return nil, fmt.Errorf("ошибка при обновлении профиля: %w", err)
		}
	}

	if _, err = tx.Exec(ctx, `INSERT INTO user_sessions (profile_id) VALUES ($1)`, profileID); err != nil {
		return nil, fmt.Errorf("ошибка при создании сессии пользователя: %w", err)
	}

	user, err := getUser(ctx, tx, profileID)
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении пользователя: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return user, nil
}

// GetUser возвращает профиль по ID
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	user, err := getUser(ctx, s.pool, id)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getUser(ctx context.Context, q rowQuerier, id uuid.UUID) (*models.User, error) {
	var (
		user                   models.User
		username, languageCode pgtype.Text
		telegramID             pgtype.Int8
	)

	err := q.QueryRow(ctx, `
		SELECT p.id, p.display_name, p.avatar_url, p.username, p.language_code,
		       p.created_at, p.last_login_at, t.telegram_id
		FROM profiles p
		LEFT JOIN telegram_users t ON t.profile_id = p.id
		WHERE p.id = $1
	`, id).Scan(
		&user.ID, &user.DisplayName, &user.AvatarURL, &username, &languageCode,
		&user.CreatedAt, &user.LastLoginAt, &telegramID,
	)
	if err != nil {
		return nil, err
	}

	// Преобразуем nullable поля
	if username.Valid {
		user.Username = username.String
	}
	if languageCode.Valid {
		user.LanguageCode = languageCode.String
	}
	if telegramID.Valid {
		user.TelegramID = telegramID.Int64
	}
	return &user, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func rawJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
