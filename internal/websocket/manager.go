// Package websocket доставляет события бесед подключённым клиентам.
package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

// EventType определяет тип события WebSocket
type EventType string

const (
	EventNewMessage          EventType = "new_message"
	EventMessageRead         EventType = "message_read"
	EventConnected           EventType = "connected"
	EventTyping              EventType = "typing"
	EventStopTyping          EventType = "stop_typing"
	EventUnreadCount         EventType = "unread_count"
	EventConversationDeleted EventType = "conversation_deleted"
	EventError               EventType = "error"
)

// Event представляет структуру сообщения для WebSocket
type Event struct {
	Type      EventType       `json:"type"`
	ChatID    string          `json:"chat_id,omitempty"`
	MessageID string          `json:"message_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// ParticipantLookup находит участников беседы
type ParticipantLookup interface {
	GetParticipants(ctx context.Context, conversationID uuid.UUID) (models.Participants, error)
}

// ReadHandler отмечает беседу прочитанной от имени пользователя
type ReadHandler func(ctx context.Context, userID, conversationID uuid.UUID) error

// Manager представляет центральный менеджер для всех WebSocket соединений
type Manager struct {
	participants ParticipantLookup
	logger       *slog.Logger

	clients      map[uuid.UUID]*Client
	clientsMutex sync.RWMutex
	userClients  map[uuid.UUID]map[uuid.UUID]bool // userID -> map[clientID]bool
	userMutex    sync.RWMutex

	onRead ReadHandler

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager создает новый экземпляр Manager
func NewManager(participants ParticipantLookup, logger *slog.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		participants: participants,
		logger:       logger,
		clients:      make(map[uuid.UUID]*Client),
		userClients:  make(map[uuid.UUID]map[uuid.UUID]bool),
		ctx:          ctx,
		cancel:       cancel,
	}
}

// SetReadHandler задаёт обработчик событий message_read от клиентов
func (m *Manager) SetReadHandler(h ReadHandler) {
	m.onRead = h
}

// AddClient регистрирует нового клиента
func (m *Manager) AddClient(client *Client) {
	m.clientsMutex.Lock()
	m.clients[client.ID] = client
	m.clientsMutex.Unlock()

	m.userMutex.Lock()
	if _, exists := m.userClients[client.UserID]; !exists {
		m.userClients[client.UserID] = make(map[uuid.UUID]bool)
	}
	m.userClients[client.UserID][client.ID] = true
	m.userMutex.Unlock()

	m.logger.Debug("websocket клиент подключён",
		slog.String("client_id", client.ID.String()),
		slog.String("user_id", client.UserID.String()),
	)
}

// RemoveClient удаляет клиента
func (m *Manager) RemoveClient(clientID uuid.UUID) {
	m.clientsMutex.Lock()
	client, exists := m.clients[clientID]
	delete(m.clients, clientID)
	m.clientsMutex.Unlock()

	if !exists {
		return
	}

	m.userMutex.Lock()
	if clients, ok := m.userClients[client.UserID]; ok {
		delete(clients, clientID)
		if len(clients) == 0 {
			delete(m.userClients, client.UserID)
		}
	}
	m.userMutex.Unlock()

	m.logger.Debug("websocket клиент отключён",
		slog.String("client_id", clientID.String()),
		slog.String("user_id", client.UserID.String()),
	)
}

// Online возвращает количество открытых соединений пользователя
func (m *Manager) Online(userID uuid.UUID) int {
	m.userMutex.RLock()
	defer m.userMutex.RUnlock()
	return len(m.userClients[userID])
}

// SendToUser отправляет событие всем соединениям пользователя.
// Медленные клиенты с переполненной очередью отключаются.
func (m *Manager) SendToUser(userID uuid.UUID, event Event) {
	m.userMutex.RLock()
	clientIDs := make([]uuid.UUID, 0, len(m.userClients[userID]))
	for id := range m.userClients[userID] {
		clientIDs = append(clientIDs, id)
	}
	m.userMutex.RUnlock()

	if len(clientIDs) == 0 {
		// Пользователь не онлайн, данные всё равно лежат в хранилище
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	eventJSON, err := json.Marshal(event)
	if err != nil {
		m.logger.Error("не удалось сериализовать событие", slog.Any("error", err))
		return
	}

	for _, clientID := range clientIDs {
		m.clientsMutex.RLock()
		client, exists := m.clients[clientID]
		m.clientsMutex.RUnlock()
		if !exists {
			continue
		}

		if !client.enqueue(eventJSON) {
			m.logger.Warn("очередь клиента переполнена, соединение закрыто", slog.String("client_id", client.ID.String()))
			client.conn.Close()
			m.RemoveClient(client.ID)
		}
	}
}

// SendToChat отправляет событие участникам беседы, кроме excludeUserID.
// excludeUserID, не участвующий в беседе, получает models.ErrNotParticipant.
func (m *Manager) SendToChat(ctx context.Context, chatID uuid.UUID, event Event, excludeUserID uuid.UUID) error {
	p, err := m.participants.GetParticipants(ctx, chatID)
	if err != nil {
		return err
	}
	if excludeUserID != uuid.Nil {
		if _, ok := p.RoleOf(excludeUserID); !ok {
			return models.ErrNotParticipant
		}
	}

	event.ChatID = chatID.String()
	for _, userID := range []uuid.UUID{p.BuyerID, p.SellerID} {
		if userID != excludeUserID {
			m.SendToUser(userID, event)
		}
	}
	return nil
}

// NotifyNewMessage сообщает получателю о новом сообщении
func (m *Manager) NotifyNewMessage(recipientID uuid.UUID, msg models.MessageRecord) {
	payload, err := json.Marshal(models.NewMessage(msg, recipientID))
	if err != nil {
		m.logger.Error("не удалось сериализовать сообщение", slog.Any("error", err))
		return
	}

	m.SendToUser(recipientID, Event{
		Type:      EventNewMessage,
		ChatID:    msg.ConversationID.String(),
		MessageID: msg.ID.String(),
		UserID:    msg.SenderID.String(),
		Timestamp: msg.CreatedAt,
		Payload:   payload,
	})
}

// NotifyRead сообщает собеседнику, что readerID прочитал беседу к моменту at
func (m *Manager) NotifyRead(recipientID, conversationID, readerID uuid.UUID, at time.Time) {
	m.SendToUser(recipientID, Event{
		Type:      EventMessageRead,
		ChatID:    conversationID.String(),
		UserID:    readerID.String(),
		Timestamp: at,
	})
}

// NotifyConversationDeleted сообщает собеседнику об удалении беседы
func (m *Manager) NotifyConversationDeleted(recipientID, conversationID uuid.UUID) {
	m.SendToUser(recipientID, Event{
		Type:   EventConversationDeleted,
		ChatID: conversationID.String(),
	})
}

// BroadcastUnreadCounts отправляет пользователю количество бесед с непрочитанными сообщениями
func (m *Manager) BroadcastUnreadCounts(userID uuid.UUID, unreadCounts int) {
	payload, _ := json.Marshal(map[string]int{"count": unreadCounts})

	m.SendToUser(userID, Event{
		Type:      EventUnreadCount,
		UserID:    userID.String(),
		Timestamp: time.Now(),
		Payload:   payload,
	})
}

// Shutdown корректно завершает работу менеджера WebSocket
func (m *Manager) Shutdown() {
	m.cancel()

	m.clientsMutex.Lock()
	for _, client := range m.clients {
		client.conn.Close()
	}
	m.clients = make(map[uuid.UUID]*Client)
	m.clientsMutex.Unlock()

	m.userMutex.Lock()
	m.userClients = make(map[uuid.UUID]map[uuid.UUID]bool)
	m.userMutex.Unlock()
}
