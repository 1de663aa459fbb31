package models

import (
	"time"

	"github.com/google/uuid"
)

// Profile - публичный профиль пользователя
type Profile struct {
	ID          uuid.UUID `json:"id"`
	DisplayName *string   `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
}

// Name возвращает отображаемое имя или fallback, если имя не задано
func (p Profile) Name(fallback string) string {
	if p.DisplayName == nil || *p.DisplayName == "" {
		return fallback
	}
	return *p.DisplayName
}

// User - профиль вместе с данными Telegram, которые видит сам владелец
type User struct {
	Profile
	TelegramID   int64     `json:"telegram_id"`
	Username     string    `json:"username,omitempty"`
	LanguageCode string    `json:"language_code,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	LastLoginAt  time.Time `json:"last_login_at"`
}

// TelegramIdentity - данные пользователя из initData Telegram
type TelegramIdentity struct {
	TelegramID   int64
	Username     string
	FirstName    string
	LastName     string
	PhotoURL     string
	IsPremium    bool
	LanguageCode string
	RawData      []byte
}

// DisplayName собирает имя для профиля
func (t TelegramIdentity) DisplayName() string {
	name := t.FirstName
	if t.LastName != "" {
		if name != "" {
			name += " "
		}
		name += t.LastName
	}
	if name == "" {
		name = t.Username
	}
	return name
}
