package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rajivgeraev/flippy-market/internal/utils"
)

// Handler принимает WebSocket подключения. Токен передаётся в ?token=,
// потому что браузер не даёт задать заголовки при подключении.
type Handler struct {
	manager    *Manager
	jwtService *utils.JWTService
	upgrader   websocket.Upgrader
}

// NewHandler создаёт обработчик подключений
func NewHandler(manager *Manager, jwtService *utils.JWTService) *Handler {
	return &Handler{
		manager:    manager,
		jwtService: jwtService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Mini app открывается с домена Telegram
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP проверяет токен и переводит соединение на WebSocket
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := h.jwtService.ExtractUserID(r.URL.Query().Get("token"))
	if err != nil {
		http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.manager.logger.Warn("не удалось установить websocket соединение", slog.Any("error", err))
		return
	}

	client := NewClient(userID, conn, h.manager)
	client.Start()

	hello, _ := json.Marshal(Event{Type: EventConnected, UserID: userID.String(), Timestamp: time.Now()})
	client.enqueue(hello)
}
