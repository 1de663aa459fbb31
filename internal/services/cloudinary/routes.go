package cloudinary

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/flippy-market/internal/middleware"
)

// SetupRoutes настраивает маршруты загрузки изображений
func (s *CloudinaryService) SetupRoutes(app *fiber.App) {
	protected := app.Group("/api/upload")
	protected.Use(middleware.AuthMiddleware(s.jwtService))

	// Параметры для прямой загрузки в Cloudinary
	protected.Get("/params", s.GenerateUploadParams)
}
