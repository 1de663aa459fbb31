package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"golang.org/x/sync/errgroup"

	"github.com/rajivgeraev/flippy-market/internal/config"
	"github.com/rajivgeraev/flippy-market/internal/db"
	"github.com/rajivgeraev/flippy-market/internal/obs"
	"github.com/rajivgeraev/flippy-market/internal/services/auth"
	"github.com/rajivgeraev/flippy-market/internal/services/chat"
	"github.com/rajivgeraev/flippy-market/internal/services/cloudinary"
	"github.com/rajivgeraev/flippy-market/internal/services/favorite"
	"github.com/rajivgeraev/flippy-market/internal/services/listing"
	"github.com/rajivgeraev/flippy-market/internal/storage/memory"
	"github.com/rajivgeraev/flippy-market/internal/utils"
	"github.com/rajivgeraev/flippy-market/internal/websocket"
)

const shutdownTimeout = 10 * time.Second

// marketStore - всё, что сервисам нужно от хранилища
type marketStore interface {
	auth.UserStore
	chat.Store
	listing.Store
	favorite.Store
}

func main() {
	// Загружаем конфигурацию
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("ошибка конфигурации", slog.Any("error", err))
		os.Exit(1)
	}

	log := obs.NewLogger(cfg.AppEnv)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("сервер остановлен с ошибкой", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Один сервис токенов на всё приложение
	jwtService := utils.NewJWTService(cfg.JWTSecret, cfg.JWTTTL)

	cloudinaryService, err := cloudinary.NewCloudinaryService(cfg.CloudinaryConfig, jwtService, log)
	if err != nil {
		return err
	}

	wsManager := websocket.NewManager(store, log)
	defer wsManager.Shutdown()

	authService := auth.NewAuthService(cfg, store, jwtService, log)
	chatService := chat.NewChatService(store, wsManager, jwtService, cfg.SnippetLength, log)
	listingService := listing.NewListingService(store, cloudinaryService, jwtService, log)
	favoriteService := favorite.NewFavoriteService(store, jwtService, log)

	wsManager.SetReadHandler(chatService.MarkConversationRead)

	// Создаём экземпляр Fiber
	app := fiber.New(fiber.Config{
		AppName:      "Flippy Market API",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowCredentials: false,
	}))

	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	authService.SetupRoutes(app)
	cloudinaryService.SetupRoutes(app)
	listingService.SetupRoutes(app)
	favoriteService.SetupRoutes(app)
	chatService.SetupRoutes(app)

	mux := http.NewServeMux()
	mux.Handle("/ws", websocket.NewHandler(wsManager, jwtService))
	wsServer := &http.Server{
		Addr:              cfg.WSAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info("Flippy Market API запущен", slog.String("port", cfg.Port), slog.String("storage", cfg.StorageDriver))
		return app.Listen(":" + cfg.Port)
	})

	g.Go(func() error {
		log.Info("WebSocket сервер запущен", slog.String("addr", cfg.WSAddr))
		if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("остановка серверов")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		wsManager.Shutdown()
		return errors.Join(
			app.ShutdownWithContext(shutdownCtx),
			wsServer.Shutdown(shutdownCtx),
		)
	})

	return g.Wait()
}

// openStore открывает хранилище, выбранное в конфигурации
func openStore(ctx context.Context, cfg *config.Config, log *slog.Logger) (marketStore, func(), error) {
	if cfg.StorageDriver == config.StorageMemory {
		log.Warn("используется хранилище в памяти, данные не сохраняются между запусками")
		return memory.NewStore(), func() {}, nil
	}

	pool, err := db.NewPool(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, err
	}

	store := db.NewStore(pool, cfg.RequestTimeout)
	return store, store.Close, nil
}

// errorHandler обрабатывает ошибки Fiber
func errorHandler(c fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
	}

	if code == fiber.StatusInternalServerError {
		slog.Error("необработанная ошибка", slog.String("path", c.Path()), slog.Any("error", err))
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
