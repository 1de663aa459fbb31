package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Максимальное время ожидания для pong от клиента
	pongWait = 60 * time.Second

	// Отправлять ping-сообщения клиенту с этим интервалом
	pingPeriod = (pongWait * 9) / 10

	writeWait = 10 * time.Second

	// Максимальный размер сообщения от клиента
	maxMessageSize = 64 * 1024

	// Размер буфера для отправляемых сообщений
	writeBufferSize = 256

	handlerTimeout = 5 * time.Second
)

// Client представляет собой отдельное WebSocket соединение
type Client struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	conn      *websocket.Conn
	send      chan []byte
	manager   *Manager
	closeChan chan struct{}
}

// NewClient создает новый экземпляр Client
func NewClient(userID uuid.UUID, conn *websocket.Conn, manager *Manager) *Client {
	return &Client{
		ID:        uuid.New(),
		UserID:    userID,
		conn:      conn,
		send:      make(chan []byte, writeBufferSize),
		manager:   manager,
		closeChan: make(chan struct{}),
	}
}

// Start регистрирует клиента и запускает горутины чтения и записи
func (c *Client) Start() {
	c.manager.AddClient(c)

	go c.readPump()
	go c.writePump()
}

func (c *Client) enqueue(message []byte) bool {
	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

// readPump обрабатывает входящие сообщения от клиента
func (c *Client) readPump() {
	defer func() {
		c.manager.RemoveClient(c.ID)
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.manager.logger.Warn("неожиданное закрытие websocket", slog.Any("error", err))
			}
			return
		}

		c.handleIncomingMessage(message)
	}
}

// writePump отправляет сообщения клиенту
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.manager.logger.Debug("ошибка записи в websocket", slog.Any("error", err))
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closeChan:
			return
		case <-c.manager.ctx.Done():
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// handleIncomingMessage обрабатывает входящие сообщения от клиента
func (c *Client) handleIncomingMessage(message []byte) {
	var event Event
	if err := json.Unmarshal(message, &event); err != nil {
		c.replyError("", "Неверный формат события")
		return
	}

	// Отправитель всегда владелец соединения
	if event.UserID != "" && event.UserID != c.UserID.String() {
		c.manager.logger.Warn("подмена отправителя в событии",
			slog.String("claimed", event.UserID),
			slog.String("user_id", c.UserID.String()),
		)
		return
	}
	event.UserID = c.UserID.String()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	chatID, err := uuid.Parse(event.ChatID)
	if err != nil {
		c.replyError(event.ChatID, "Неверный ID беседы")
		return
	}

	ctx, cancel := context.WithTimeout(c.manager.ctx, handlerTimeout)
	defer cancel()

	switch event.Type {
	case EventTyping, EventStopTyping:
		relay := Event{Type: event.Type, UserID: event.UserID, Timestamp: event.Timestamp}
		if err := c.manager.SendToChat(ctx, chatID, relay, c.UserID); err != nil {
			c.replyError(event.ChatID, "Нет доступа к беседе")
		}
	case EventMessageRead:
		if c.manager.onRead == nil {
			return
		}
		if err := c.manager.onRead(ctx, c.UserID, chatID); err != nil {
			c.manager.logger.Warn("не удалось отметить беседу прочитанной",
				slog.String("conversation_id", chatID.String()),
				slog.String("user_id", c.UserID.String()),
				slog.Any("error", err),
			)
			c.replyError(event.ChatID, "Не удалось отметить беседу прочитанной")
		}
	default:
		c.manager.logger.Debug("необработанный тип события", slog.String("type", string(event.Type)))
	}
}

func (c *Client) replyError(chatID, message string) {
	payload, _ := json.Marshal(map[string]string{"error": message})
	data, err := json.Marshal(Event{Type: EventError, ChatID: chatID, Timestamp: time.Now(), Payload: payload})
	if err != nil {
		return
	}
	c.enqueue(data)
}
