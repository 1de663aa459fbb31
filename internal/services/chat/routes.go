package chat

import (
	"github.com/gofiber/fiber/v3"

	"github.com/rajivgeraev/flippy-market/internal/middleware"
)

// SetupRoutes настраивает маршруты для API бесед
func (s *ChatService) SetupRoutes(app *fiber.App) {
	api := app.Group("/api/conversations", middleware.AuthMiddleware(s.jwtService))

	api.Get("/", s.GetConversations)
	api.Post("/", s.CreateConversation)
	api.Get("/:id/messages", s.GetMessages)
	api.Post("/:id/messages", s.SendMessage)
	api.Post("/:id/read", s.MarkRead)
	api.Delete("/:id", s.DeleteConversation)
}
