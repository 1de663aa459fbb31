package websocket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-market/internal/models"
	"github.com/rajivgeraev/flippy-market/internal/obs"
	"github.com/rajivgeraev/flippy-market/internal/storage/memory"
	"github.com/rajivgeraev/flippy-market/internal/utils"
)

type hub struct {
	server     *httptest.Server
	manager    *Manager
	jwtService *utils.JWTService
	store      *memory.Store
}

func newHub(t *testing.T) *hub {
	t.Helper()

	store := memory.NewStore()
	manager := NewManager(store, obs.Discard())
	jwtService := utils.NewJWTService("secret", time.Hour)
	server := httptest.NewServer(NewHandler(manager, jwtService))

	t.Cleanup(func() {
		manager.Shutdown()
		server.Close()
	})
	return &hub{server: server, manager: manager, jwtService: jwtService, store: store}
}

func (h *hub) dial(t *testing.T, userID uuid.UUID) *websocket.Conn {
	t.Helper()

	token, err := h.jwtService.GenerateToken(userID)
	require.NoError(t, err)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	assert.Equal(t, EventConnected, readEvent(t, conn).Type)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) Event {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	return event
}

func TestHandlerRejectsMissingToken(t *testing.T) {
	h := newHub(t)

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestTypingIsRelayedToCounterpart(t *testing.T) {
	h := newHub(t)
	buyer, seller := uuid.New(), uuid.New()
	chatID, _, err := h.store.EnsureConversation(context.Background(), buyer, seller, nil)
	require.NoError(t, err)

	buyerConn := h.dial(t, buyer)
	sellerConn := h.dial(t, seller)

	require.NoError(t, buyerConn.WriteJSON(Event{Type: EventTyping, ChatID: chatID.String()}))

	got := readEvent(t, sellerConn)
	assert.Equal(t, EventTyping, got.Type)
	assert.Equal(t, chatID.String(), got.ChatID)
	assert.Equal(t, buyer.String(), got.UserID)
}

func TestOutsiderCannotTypeIntoConversation(t *testing.T) {
	h := newHub(t)
	chatID, _, err := h.store.EnsureConversation(context.Background(), uuid.New(), uuid.New(), nil)
	require.NoError(t, err)

	outsider := h.dial(t, uuid.New())
	require.NoError(t, outsider.WriteJSON(Event{Type: EventTyping, ChatID: chatID.String()}))

	assert.Equal(t, EventError, readEvent(t, outsider).Type)
}

func TestMessageReadCallsReadHandler(t *testing.T) {
	h := newHub(t)
	userID, chatID := uuid.New(), uuid.New()

	var (
		mu    sync.Mutex
		calls [][2]uuid.UUID
		done  = make(chan struct{})
	)
	h.manager.SetReadHandler(func(ctx context.Context, u, c uuid.UUID) error {
		mu.Lock()
		calls = append(calls, [2]uuid.UUID{u, c})
		mu.Unlock()
		close(done)
		return nil
	})

	conn := h.dial(t, userID)
	require.NoError(t, conn.WriteJSON(Event{Type: EventMessageRead, ChatID: chatID.String()}))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("обработчик прочтения не вызван")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 1)
	assert.Equal(t, [2]uuid.UUID{userID, chatID}, calls[0])
}

func TestNotifyNewMessageAndUnreadCount(t *testing.T) {
	h := newHub(t)
	sender, recipient := uuid.New(), uuid.New()
	conn := h.dial(t, recipient)
	assert.Equal(t, 1, h.manager.Online(recipient))

	msg := models.MessageRecord{
		ID:             uuid.New(),
		ConversationID: uuid.New(),
		SenderID:       sender,
		Content:        "bonjour",
		CreatedAt:      time.Now(),
	}
	h.manager.NotifyNewMessage(recipient, msg)
	h.manager.BroadcastUnreadCounts(recipient, 3)

	got := readEvent(t, conn)
	assert.Equal(t, EventNewMessage, got.Type)
	assert.Equal(t, msg.ID.String(), got.MessageID)
	assert.Contains(t, string(got.Payload), "bonjour")

	count := readEvent(t, conn)
	assert.Equal(t, EventUnreadCount, count.Type)
	assert.JSONEq(t, `{"count":3}`, string(count.Payload))
}

func TestSendToOfflineUserIsNoop(t *testing.T) {
	h := newHub(t)
	assert.NotPanics(t, func() {
		h.manager.BroadcastUnreadCounts(uuid.New(), 1)
	})
}
