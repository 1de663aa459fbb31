package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"github.com/rajivgeraev/flippy-market/internal/config"
	"github.com/rajivgeraev/flippy-market/internal/middleware"
	"github.com/rajivgeraev/flippy-market/internal/models"
	"github.com/rajivgeraev/flippy-market/internal/utils"
)

// initDataTTL - сколько живут данные запуска mini app
const initDataTTL = 24 * time.Hour

// UserStore - хранилище профилей
type UserStore interface {
	UpsertTelegramUser(ctx context.Context, identity models.TelegramIdentity) (*models.User, error)
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

// AuthService – структура для обработки авторизации
type AuthService struct {
	botToken   string
	store      UserStore
	jwtService *utils.JWTService
	logger     *slog.Logger
}

// NewAuthService – конструктор AuthService
func NewAuthService(cfg *config.Config, store UserStore, jwtService *utils.JWTService, logger *slog.Logger) *AuthService {
	return &AuthService{
		botToken:   cfg.TelegramBotToken,
		store:      store,
		jwtService: jwtService,
		logger:     logger,
	}
}

// GetJWTService возвращает сервис токенов
func (s *AuthService) GetJWTService() *utils.JWTService {
	return s.jwtService
}

// TelegramAuthHandler проверяет initData, создаёт или обновляет профиль и выдаёт JWT
func (s *AuthService) TelegramAuthHandler(c fiber.Ctx) error {
	var payload struct {
		InitData string `json:"init_data"`
	}

	if err := c.Bind().Body(&payload); err != nil || payload.InitData == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Invalid request"})
	}

	// Проверяем initData
	if err := initdata.Validate(payload.InitData, s.botToken, initDataTTL); err != nil {
		s.logger.Warn("отклонены данные Telegram", slog.Any("error", err))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Invalid Telegram data"})
	}

	data, err := initdata.Parse(payload.InitData)
	if err != nil || data.User.ID == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Failed to parse initData"})
	}

	user, err := s.store.UpsertTelegramUser(c.Context(), models.TelegramIdentity{
		TelegramID:   data.User.ID,
		Username:     data.User.Username,
		FirstName:    data.User.FirstName,
		LastName:     data.User.LastName,
		PhotoURL:     data.User.PhotoURL,
		IsPremium:    data.User.IsPremium,
		LanguageCode: data.User.LanguageCode,
		RawData:      []byte(payload.InitData),
	})
	if err != nil {
		s.logger.Error("не удалось сохранить пользователя Telegram",
			slog.Int64("telegram_id", data.User.ID),
			slog.Any("error", err),
		)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to save user"})
	}

	jwtToken, err := s.jwtService.GenerateToken(user.ID)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to generate JWT"})
	}

	return c.JSON(fiber.Map{
		"token": jwtToken,
		"user":  user,
	})
}

// ProfileHandler возвращает профиль текущего пользователя
func (s *AuthService) ProfileHandler(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	user, err := s.store.GetUser(c.Context(), userID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Профиль не найден"})
	}
	if err != nil {
		s.logger.Error("не удалось получить профиль", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения профиля"})
	}

	return c.JSON(user)
}
