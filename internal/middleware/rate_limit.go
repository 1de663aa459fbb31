package middleware

import (
	"log/slog"
	"sync"

	"github.com/gofiber/fiber/v3"
	"golang.org/x/time/rate"
)

// IPRateLimiter ограничивает частоту запросов с одного IP
type IPRateLimiter struct {
	limiters sync.Map
	rate     rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewIPRateLimiter создаёт ограничитель: r запросов в секунду, всплеск до burst
func NewIPRateLimiter(r rate.Limit, burst int, logger *slog.Logger) *IPRateLimiter {
	return &IPRateLimiter{rate: r, burst: burst, logger: logger}
}

func (i *IPRateLimiter) limiter(ip string) *rate.Limiter {
	if l, ok := i.limiters.Load(ip); ok {
		return l.(*rate.Limiter)
	}
	l, _ := i.limiters.LoadOrStore(ip, rate.NewLimiter(i.rate, i.burst))
	return l.(*rate.Limiter)
}

// Handler возвращает middleware, отвечающий 429 при превышении лимита
func (i *IPRateLimiter) Handler() fiber.Handler {
	return func(c fiber.Ctx) error {
		ip := c.IP()
		if !i.limiter(ip).Allow() {
			if i.logger != nil {
				i.logger.Warn("превышен лимит запросов", slog.String("ip", ip), slog.String("path", c.Path()))
			}
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Слишком много запросов",
			})
		}
		return c.Next()
	}
}
