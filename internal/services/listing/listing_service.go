package listing

import (
	"context"
	"encoding/json"
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

// Store - хранилище объявлений
type Store interface {
	CreateListing(ctx context.Context, listing *models.Listing) error
	UpdateListing(ctx context.Context, listing *models.Listing) ([]models.ListingImage, error)
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
	ListActive(ctx context.Context, limit, offset int) ([]models.Listing, int, error)
	ListBySeller(ctx context.Context, sellerID uuid.UUID, status string, limit, offset int) ([]models.Listing, error)
	DeleteListing(ctx context.Context, id uuid.UUID) ([]models.ListingImage, error)
}

// ImageRemover удаляет загруженные изображения из хранилища файлов
type ImageRemover interface {
	DeleteImage(ctx context.Context, publicID string) error
}

// RequestImage представляет структуру изображения в запросе
type RequestImage struct {
	URL                string          `json:"url" validate:"required,url"`
	PublicID           string          `json:"public_id" validate:"required"`
	IsMain             bool            `json:"is_main"`
	CloudinaryResponse json.RawMessage `json:"cloudinary_response,omitempty"`
}

// listingRequest - тело запроса создания и обновления объявления
type listingRequest struct {
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=5000"`
	PriceCents  int64          `json:"price_cents" validate:"gte=0"`
	Status      string         `json:"status" validate:"omitempty,oneof=active draft sold"`
	Images      []RequestImage `json:"images" validate:"omitempty,max=10,dive"`
}

// ListingService представляет сервис для работы с объявлениями
type ListingService struct {
	store      Store
	images     ImageRemover
	jwtService *utils.JWTService
	logger     *slog.Logger
}

// NewListingService создает новый экземпляр ListingService
func NewListingService(store Store, images ImageRemover, jwtService *utils.JWTService, logger *slog.Logger) *ListingService {
	return &ListingService{
		store:      store,
		images:     images,
		jwtService: jwtService,
		logger:     logger,
	}
}

// parseRequest читает и проверяет тело запроса. Возвращает сообщение об ошибке для ответа 400.
func parseRequest(c fiber.Ctx) (listingRequest, string) {
	var req listingRequest
	if err := c.Bind().Body(&req); err != nil {
		return req, "Неверный формат данных"
	}
	if err := utils.ValidateStruct(req); err != nil {
		return req, utils.ValidationMessage(err)
	}

	if req.Status == "" {
		req.Status = models.ListingStatusDraft // По умолчанию - черновик
	}
	return req, ""
}

// checkImages требует хотя бы одно изображение у активного объявления
func checkImages(status string, images int) string {
	if status == models.ListingStatusActive && images == 0 {
		return "Добавьте хотя бы одно изображение"
	}
	return ""
}

// buildImages превращает изображения запроса в записи объявления.
// Основным становится отмеченное изображение, иначе первое.
func (s *ListingService) buildImages(images []RequestImage) []models.ListingImage {
	if images == nil {
		return nil
	}

	mainIndex := 0
	for i, img := range images {
		if img.IsMain {
			mainIndex = i
			break
		}
	}

	out := make([]models.ListingImage, 0, len(images))
	for i, img := range images {
		image := models.ListingImage{
			URL:      img.URL,
			PublicID: img.PublicID,
			IsMain:   i == mainIndex,
			Position: i,
		}

		if len(img.CloudinaryResponse) > 0 {
			resp, err := models.ParseCloudinaryResponse(img.CloudinaryResponse)
			if err != nil {
				s.logger.Warn("не удалось разобрать ответ Cloudinary", slog.String("public_id", img.PublicID), slog.Any("error", err))
			} else {
				image.PreviewURL = models.ExtractPreviewURL(resp)
				image.Metadata = models.ExtractMetadata(resp)
			}
		}
		out = append(out, image)
	}
	return out
}

// removeImages удаляет изображения из Cloudinary. Ошибки только логируются:
// запись в базе уже удалена.
func (s *ListingService) removeImages(ctx context.Context, images []models.ListingImage) {
	for _, img := range images {
		if img.PublicID == "" {
			continue
		}
		if err := s.images.DeleteImage(ctx, img.PublicID); err != nil {
			s.logger.Warn("не удалось удалить изображение", slog.String("public_id", img.PublicID), slog.Any("error", err))
		}
	}
}

// CreateListing обрабатывает создание нового объявления
func (s *ListingService) CreateListing(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	req, msg := parseRequest(c)
	if msg == "" {
		msg = checkImages(req.Status, len(req.Images))
	}
	if msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	listing := &models.Listing{
		SellerID:    userID,
		Title:       req.Title,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Status:      req.Status,
		Images:      s.buildImages(req.Images),
	}

	if err := s.store.CreateListing(c.Context(), listing); err != nil {
		s.logger.Error("не удалось сохранить объявление", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения объявления"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success":    true,
		"listing_id": listing.ID,
		"listing":    listing,
		"message":    "Объявление успешно создано",
	})
}

// GetMyListings возвращает список объявлений текущего пользователя
func (s *ListingService) GetMyListings(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	status := c.Query("status", "all") // all, active, draft, sold
	switch status {
	case "all", models.ListingStatusActive, models.ListingStatusDraft, models.ListingStatusSold:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный статус"})
	}
	limit, offset := pagination(c)

	listings, err := s.store.ListBySeller(c.Context(), userID, status, limit, offset)
	if err != nil {
		s.logger.Error("не удалось получить объявления пользователя", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявлений"})
	}

	return c.JSON(fiber.Map{
		"listings": listings,
		"count":    len(listings),
		"limit":    limit,
		"offset":   offset,
	})
}

// GetListing возвращает объявление по ID. Неактивные объявления видит только владелец.
func (s *ListingService) GetListing(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	listing, err := s.store.GetListing(c.Context(), listingID)
	if errors.Is(err, models.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
	}
	if err != nil {
		s.logger.Error("не удалось получить объявление", slog.String("listing_id", listingID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявления"})
	}

	if listing.Status != models.ListingStatusActive && listing.SellerID != userID {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
	}

	return c.JSON(fiber.Map{
		"listing":  listing,
		"is_owner": listing.SellerID == userID,
	})
}

// ownedListing загружает объявление и проверяет, что его владелец userID
func (s *ListingService) ownedListing(c fiber.Ctx, userID uuid.UUID, forbidden string) (*models.Listing, error) {
	listingID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return nil, c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID объявления"})
	}

	listing, err := s.store.GetListing(c.Context(), listingID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
	}
	if err != nil {
		s.logger.Error("не удалось получить объявление", slog.String("listing_id", listingID.String()), slog.Any("error", err))
		return nil, c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявления"})
	}

	if listing.SellerID != userID {
		return nil, c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": forbidden})
	}
	return listing, nil
}

// UpdateListing обновляет объявление владельца.
// Если в запросе передан список изображений, он заменяет текущий.
func (s *ListingService) UpdateListing(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	listing, err := s.ownedListing(c, userID, "У вас нет доступа к редактированию этого объявления")
	if listing == nil {
		return err
	}

	req, msg := parseRequest(c)
	if msg == "" {
		// Без поля images остаются текущие изображения
		images := len(listing.Images)
		if req.Images != nil {
			images = len(req.Images)
		}
		msg = checkImages(req.Status, images)
	}
	if msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
	}

	listing.Title = req.Title
	listing.Description = req.Description
	listing.PriceCents = req.PriceCents
	listing.Status = req.Status
	listing.Images = s.buildImages(req.Images)

	removed, err := s.store.UpdateListing(c.Context(), listing)
	if err != nil {
		s.logger.Error("не удалось обновить объявление", slog.String("listing_id", listing.ID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка обновления объявления"})
	}

	s.removeImages(c.Context(), removed)

	updated, err := s.store.GetListing(c.Context(), listing.ID)
	if err != nil {
		updated = listing
	}

	return c.JSON(fiber.Map{
		"success": true,
		"listing": updated,
		"message": "Объявление успешно обновлено",
	})
}

// DeleteListing удаляет объявление владельца вместе с изображениями.
// Беседы по объявлению остаются, но теряют ссылку на него.
func (s *ListingService) DeleteListing(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	listing, err := s.ownedListing(c, userID, "У вас нет доступа к удалению этого объявления")
	if listing == nil {
		return err
	}

	images, err := s.store.DeleteListing(c.Context(), listing.ID)
	if err != nil {
		s.logger.Error("не удалось удалить объявление", slog.String("listing_id", listing.ID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления объявления"})
	}

	s.removeImages(c.Context(), images)

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Объявление успешно удалено",
	})
}

// GetPublicListings возвращает активные объявления всех продавцов
func (s *ListingService) GetPublicListings(c fiber.Ctx) error {
	limit, offset := pagination(c)

	listings, total, err := s.store.ListActive(c.Context(), limit, offset)
	if err != nil {
		s.logger.Error("не удалось получить объявления", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявлений"})
	}

	return c.JSON(fiber.Map{
		"listings": listings,
		"total":    total,
		"limit":    limit,
		"offset":   offset,
	})
}

func pagination(c fiber.Ctx) (int, int) {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	limit = min(limit, maxLimit)

	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return limit, offset
}
