package auth

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"golang.org/x/time/rate"

	"github.com/rajivgeraev/flippy-market/internal/middleware"
)

// SetupRoutes регистрирует маршруты в Fiber
func (s *AuthService) SetupRoutes(app *fiber.App) {
	// Middleware маршрута передаются после обработчика и выполняются до него.
	// Не больше 10 попыток входа в минуту с одного IP
	limiter := middleware.NewIPRateLimiter(rate.Every(6*time.Second), 10, s.logger)
	app.Post("/api/auth/telegram", s.TelegramAuthHandler, limiter.Handler())

	// Профиль текущего пользователя
	app.Get("/api/profile", s.ProfileHandler, middleware.AuthMiddleware(s.jwtService))
}
