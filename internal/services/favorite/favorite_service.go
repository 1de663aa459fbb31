package favorite

import (
	"context"
	"errors"
	"log/slog"
	"strconv"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/middleware"
	"github.com/rajivgeraev/flippy-market/internal/models"
	"github.com/rajivgeraev/flippy-market/internal/utils"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Store - хранилище избранного
type Store interface {
	ListingIsActive(ctx context.Context, listingID uuid.UUID) (bool, error)
	AddFavorite(ctx context.Context, userID, listingID uuid.UUID) (models.Favorite, error)
	RemoveFavorite(ctx context.Context, userID, listingID uuid.UUID) error
	FindFavorite(ctx context.Context, userID, listingID uuid.UUID) (models.Favorite, error)
	ListFavorites(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Favorite, int, error)
}

// FavoriteService представляет сервис для работы с избранными объявлениями
type FavoriteService struct {
	store      Store
	jwtService *utils.JWTService
	logger     *slog.Logger
}

// NewFavoriteService создает новый экземпляр FavoriteService
func NewFavoriteService(store Store, jwtService *utils.JWTService, logger *slog.Logger) *FavoriteService {
	return &FavoriteService{
		store:      store,
		jwtService: jwtService,
		logger:     logger,
	}
}

// AddToFavorites добавляет объявление в избранное
func (s *FavoriteService) AddToFavorites(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var req struct {
		ListingID string `json:"listing_id" validate:"required,uuid"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.ValidationMessage(err)})
	}
	listingID := uuid.MustParse(req.ListingID)

	ctx := c.Context()
	active, err := s.store.ListingIsActive(ctx, listingID)
	if err != nil {
		s.logger.Error("не удалось проверить объявление", slog.String("listing_id", listingID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки объявления"})
	}
	if !active {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено или не активно"})
	}

	fav, err := s.store.AddFavorite(ctx, userID, listingID)
	if errors.Is(err, models.ErrAlreadyExists) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "Объявление уже добавлено в избранное"})
	}
	if err != nil {
		s.logger.Error("не удалось добавить в избранное", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка добавления в избранное"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"id":      fav.ID,
		"message": "Объявление успешно добавлено в избранное",
	})
}

// RemoveFromFavorites удаляет объявление из избранного
func (s *FavoriteService) RemoveFromFavorites(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	err = s.store.RemoveFavorite(c.Context(), userID, listingID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено в избранном"})
	}
	if err != nil {
		s.logger.Error("не удалось удалить из избранного", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления из избранного"})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Объявление успешно удалено из избранного",
	})
}

// GetFavorites возвращает список избранных объявлений пользователя
func (s *FavoriteService) GetFavorites(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	favorites, total, err := s.store.ListFavorites(c.Context(), userID, limit, offset)
	if err != nil {
		s.logger.Error("не удалось получить избранное", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения избранных объявлений"})
	}

	return c.JSON(models.NewFavoriteResponse(favorites, total, limit, offset))
}

// CheckFavorite проверяет, добавлено ли объявление в избранное
func (s *FavoriteService) CheckFavorite(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	fav, err := s.store.FindFavorite(c.Context(), userID, listingID)
	if errors.Is(err, models.ErrNotFound) {
		return c.JSON(fiber.Map{"is_favorite": false})
	}
	if err != nil {
		s.logger.Error("не удалось проверить избранное", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки избранного"})
	}

	return c.JSON(fiber.Map{
		"is_favorite": true,
		"favorite_id": fav.ID,
	})
}
