package listing

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/flippy-market/internal/middleware"
)

// SetupRoutes настраивает маршруты для API объявлений
func (s *ListingService) SetupRoutes(app *fiber.App) {
	// Публичный маршрут регистрируется до защищённых
	app.Get("/api/listings", s.GetPublicListings)

	// Группа для API объявлений
	api := app.Group("/api/listings")

	// Защищенные маршруты (требуют авторизации)
	api.Use(middleware.AuthMiddleware(s.jwtService))

	api.Post("/create", s.CreateListing)
	api.Get("/my", s.GetMyListings)
	api.Get("/:id", s.GetListing)
	api.Put("/:id", s.UpdateListing)
	api.Delete("/:id", s.DeleteListing)
}
