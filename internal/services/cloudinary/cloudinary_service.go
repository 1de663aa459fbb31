package cloudinary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	cld "github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/config"
	"github.com/rajivgeraev/flippy-market/internal/utils"
)

// ErrNotConfigured возвращается, если ключи Cloudinary не заданы
var ErrNotConfigured = errors.New("cloudinary не настроен")

// CloudinaryService подписывает загрузки изображений и удаляет их из Cloudinary
type CloudinaryService struct {
	cfg        config.CloudinaryConfig
	jwtService *utils.JWTService
	client     *cld.Cloudinary
	logger     *slog.Logger
	now        func() time.Time
}

// NewCloudinaryService создает новый экземпляр CloudinaryService
func NewCloudinaryService(cfg config.CloudinaryConfig, jwtService *utils.JWTService, logger *slog.Logger) (*CloudinaryService, error) {
	s := &CloudinaryService{
		cfg:        cfg,
		jwtService: jwtService,
		logger:     logger,
		now:        time.Now,
	}

	if cfg.Enabled() {
		client, err := cld.NewFromParams(cfg.CloudName, cfg.APIKey, cfg.APISecret)
		if err != nil {
			return nil, fmt.Errorf("клиент cloudinary: %w", err)
		}
		s.client = client
	} else {
		logger.Warn("ключи Cloudinary не заданы, удаление изображений отключено")
	}
	return s, nil
}

// GenerateSignature подписывает параметры загрузки секретом API. Пустые значения
// Cloudinary не получает, поэтому они в подпись не попадают.
func (s *CloudinaryService) GenerateSignature(params map[string]string) (string, error) {
	values := url.Values{}
	for k, v := range params {
		if v != "" {
			values.Set(k, v)
		}
	}
	return api.SignParameters(values, s.cfg.APISecret)
}

// GenerateUploadParams создаёт подписанные параметры для загрузки изображений с клиента
func (s *CloudinaryService) GenerateUploadParams(c fiber.Ctx) error {
	// ID будущего объявления нужен клиенту, чтобы сгруппировать загрузки
	listingID := c.Query("listing_id")
	if listingID == "" {
		listingID = uuid.New().String()
	}

	// Подписываем всё, что клиент отправит вместе с файлом
	timestamp := fmt.Sprintf("%d", s.now().Unix())
	signature, err := s.GenerateSignature(map[string]string{
		"timestamp":     timestamp,
		"folder":        s.cfg.UploadFolder,
		"upload_preset": s.cfg.UploadPreset,
	})
	if err != nil {
		s.logger.Error("ошибка подписи параметров загрузки", slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Не удалось подготовить загрузку",
		})
	}

	return c.JSON(fiber.Map{
		"timestamp":     timestamp,
		"folder":        s.cfg.UploadFolder,
		"upload_preset": s.cfg.UploadPreset,
		"signature":     signature,
		"api_key":       s.cfg.APIKey,
		"cloud_name":    s.cfg.CloudName,
		"listing_id":    listingID,
	})
}

// DeleteImage удаляет изображение из Cloudinary по public_id
func (s *CloudinaryService) DeleteImage(ctx context.Context, publicID string) error {
	if s.client == nil {
		return ErrNotConfigured
	}

	res, err := s.client.Upload.Destroy(ctx, uploader.DestroyParams{PublicID: publicID})
	if err != nil {
		return fmt.Errorf("удаление изображения %s: %w", publicID, err)
	}
	if res.Error.Message != "" {
		return fmt.Errorf("удаление изображения %s: %s", publicID, res.Error.Message)
	}

	s.logger.Debug("изображение удалено", slog.String("public_id", publicID), slog.String("result", res.Result))
	return nil
}
