package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/inbox"
	"github.com/rajivgeraev/flippy-market/internal/middleware"
	"github.com/rajivgeraev/flippy-market/internal/models"
	"github.com/rajivgeraev/flippy-market/internal/search"
	"github.com/rajivgeraev/flippy-market/internal/utils"
)

// Store - хранилище бесед и сообщений
type Store interface {
	inbox.ConversationRepository

	EnsureConversation(ctx context.Context, buyerID, sellerID uuid.UUID, listingID *uuid.UUID) (uuid.UUID, bool, error)
	ConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]models.MessageRecord, error)
	InsertMessage(ctx context.Context, msg models.MessageRecord) (models.MessageRecord, error)
	DeleteConversation(ctx context.Context, conversationID uuid.UUID) error
	ProfileExists(ctx context.Context, id uuid.UUID) (bool, error)
	GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error)
}

// Notifier доставляет события подключённым клиентам
type Notifier interface {
	NotifyNewMessage(recipientID uuid.UUID, msg models.MessageRecord)
	NotifyRead(recipientID, conversationID, readerID uuid.UUID, at time.Time)
	NotifyConversationDeleted(recipientID, conversationID uuid.UUID)
	BroadcastUnreadCounts(userID uuid.UUID, unreadCounts int)
}

const (
	// Список бесед, к которому не обращались дольше этого, выгружается из памяти
	inboxIdleTTL = 30 * time.Minute
	maxInboxes   = 10000
)

// inboxEntry - загруженный список бесед и время последнего обращения к нему
type inboxEntry struct {
	ib     *inbox.Inbox
	usedAt time.Time
}

// ChatService представляет сервис для работы с беседами
type ChatService struct {
	store         Store
	notifier      Notifier
	jwtService    *utils.JWTService
	logger        *slog.Logger
	snippetLength int
	now           func() time.Time

	mu         sync.Mutex
	inboxes    map[uuid.UUID]*inboxEntry
	inboxTTL   time.Duration
	maxInboxes int
}

// NewChatService создает новый экземпляр ChatService
func NewChatService(store Store, notifier Notifier, jwtService *utils.JWTService, snippetLength int, logger *slog.Logger) *ChatService {
	return &ChatService{
		store:         store,
		notifier:      notifier,
		jwtService:    jwtService,
		logger:        logger,
		snippetLength: snippetLength,
		now:           time.Now,
		inboxes:       make(map[uuid.UUID]*inboxEntry),
		inboxTTL:      inboxIdleTTL,
		maxInboxes:    maxInboxes,
	}
}

// inboxFor возвращает список бесед пользователя, при первом обращении загружая его из хранилища.
// fresh сообщает, что список только что загружен и повторная синхронизация не нужна.
func (s *ChatService) inboxFor(ctx context.Context, userID uuid.UUID) (ib *inbox.Inbox, fresh bool, err error) {
	now := s.now()

	s.mu.Lock()
	entry, ok := s.inboxes[userID]
	if ok {
		entry.usedAt = now
	} else {
		s.evictLocked(now)
		entry = &inboxEntry{
			ib:     inbox.New(s.store, userID, s.logger, inbox.WithClock(s.now)),
			usedAt: now,
		}
		s.inboxes[userID] = entry
	}
	s.mu.Unlock()

	if ok {
		return entry.ib, false, nil
	}

	if err := entry.ib.Sync(ctx); err != nil {
		s.mu.Lock()
		if s.inboxes[userID] == entry {
			delete(s.inboxes, userID)
		}
		s.mu.Unlock()
		return nil, false, err
	}
	return entry.ib, true, nil
}

// evictLocked выгружает простаивающие списки бесед, а при переполнении кэша
// ещё и самый давно использованный. Вызывается под s.mu.
func (s *ChatService) evictLocked(now time.Time) {
	var (
		oldestID uuid.UUID
		oldestAt time.Time
	)
	for id, entry := range s.inboxes {
		if now.Sub(entry.usedAt) > s.inboxTTL {
			delete(s.inboxes, id)
			continue
		}
		if oldestAt.IsZero() || entry.usedAt.Before(oldestAt) {
			oldestID, oldestAt = id, entry.usedAt
		}
	}
	if len(s.inboxes) >= s.maxInboxes && !oldestAt.IsZero() {
		delete(s.inboxes, oldestID)
	}
}

// cachedInbox возвращает уже загруженный список бесед пользователя
func (s *ChatService) cachedInbox(userID uuid.UUID) (*inbox.Inbox, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.inboxes[userID]
	if !ok {
		return nil, false
	}
	return entry.ib, true
}

// participants проверяет, что userID участвует в беседе
func (s *ChatService) participants(ctx context.Context, conversationID, userID uuid.UUID) (models.Participants, error) {
	p, err := s.store.GetParticipants(ctx, conversationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return p, inbox.ErrConversationNotFound
		}
		return p, err
	}
	if _, ok := p.RoleOf(userID); !ok {
		return p, models.ErrNotParticipant
	}
	return p, nil
}

// MarkConversationRead отмечает беседу прочитанной и сообщает об этом собеседнику.
// Используется HTTP-обработчиками и WebSocket событием message_read.
func (s *ChatService) MarkConversationRead(ctx context.Context, userID, conversationID uuid.UUID) error {
	p, err := s.participants(ctx, conversationID, userID)
	if err != nil {
		return err
	}

	ib, _, err := s.inboxFor(ctx, userID)
	if err != nil {
		return err
	}
	if _, ok := ib.Get(conversationID); !ok {
		// Беседа появилась после последней синхронизации
		if err := ib.Sync(ctx); err != nil {
			return err
		}
	}

	readErr := ib.MarkRead(ctx, conversationID)
	if errors.Is(readErr, inbox.ErrConversationNotFound) || errors.Is(readErr, models.ErrNotParticipant) {
		return readErr
	}

	s.notifier.BroadcastUnreadCounts(userID, ib.UnreadConversations())
	if readErr != nil {
		return readErr
	}

	at := s.now()
	if conv, ok := ib.Get(conversationID); ok && conv.LastReadAt != nil {
		at = *conv.LastReadAt
	}
	if counterpart, ok := p.Counterpart(userID); ok {
		s.notifier.NotifyRead(counterpart, conversationID, userID, at)
	}
	return nil
}

// conversationView - строка списка бесед с отрывком текста
type conversationView struct {
	models.ConversationSummary
	Snippet string `json:"snippet"`
}

// GetConversations возвращает список бесед пользователя, при ?q= - результаты поиска
func (s *ChatService) GetConversations(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	ctx := c.Context()
	ib, fresh, err := s.inboxFor(ctx, userID)
	if err == nil && !fresh {
		err = ib.Sync(ctx)
	}
	if err != nil {
		s.logger.Error("не удалось загрузить беседы", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения бесед"})
	}

	query := strings.TrimSpace(c.Query("q"))
	searching := query != ""

	var conversations []models.ConversationSummary
	if searching {
		conversations = ib.Search(query)
	} else {
		conversations = ib.Conversations()
	}

	views := make([]conversationView, 0, len(conversations))
	for _, conv := range conversations {
		views = append(views, conversationView{
			ConversationSummary: conv,
			Snippet:             s.snippet(conv, query),
		})
	}

	return c.JSON(fiber.Map{
		"conversations":        views,
		"count":                len(views),
		"search":               searching,
		"unread_conversations": ib.UnreadConversations(),
	})
}

func (s *ChatService) snippet(conv models.ConversationSummary, query string) string {
	if query != "" && conv.SearchableMessageText != "" {
		return search.BuildSnippet(conv.SearchableMessageText, query, s.snippetLength)
	}
	if conv.LastMessagePreview != nil {
		return search.BuildSnippet(*conv.LastMessagePreview, "", s.snippetLength)
	}
	return ""
}

// CreateConversation открывает беседу с продавцом или создаёт новую
func (s *ChatService) CreateConversation(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	var req struct {
		SellerID  string `json:"seller_id" validate:"required_without=ListingID,omitempty,uuid"`
		ListingID string `json:"listing_id" validate:"omitempty,uuid"`
		Message   string `json:"message" validate:"max=4000"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": utils.ValidationMessage(err)})
	}

	ctx := c.Context()

	var sellerID uuid.UUID
	var listingID *uuid.UUID
	if req.ListingID != "" {
		id := uuid.MustParse(req.ListingID)
		listing, err := s.store.GetListing(ctx, id)
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Объявление не найдено"})
		}
		if err != nil {
			s.logger.Error("не удалось получить объявление", slog.String("listing_id", id.String()), slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения объявления"})
		}
		sellerID = listing.SellerID
		listingID = &id
	} else {
		sellerID = uuid.MustParse(req.SellerID)
	}

	if sellerID == userID {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Нельзя создать беседу с самим собой"})
	}

	exists, err := s.store.ProfileExists(ctx, sellerID)
	if err != nil {
		s.logger.Error("не удалось проверить продавца", slog.String("seller_id", sellerID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки продавца"})
	}
	if !exists {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Продавец не найден"})
	}

	conversationID, created, err := s.store.EnsureConversation(ctx, userID, sellerID, listingID)
	if err != nil {
		s.logger.Error("не удалось создать беседу", slog.String("user_id", userID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка создания беседы"})
	}

	if created {
		s.resync(ctx, userID, sellerID)
	}

	resp := fiber.Map{
		"conversation_id": conversationID,
		"is_new":          created,
		"success":         true,
	}

	if content := strings.TrimSpace(req.Message); content != "" {
		participants := models.Participants{ConversationID: conversationID, BuyerID: userID, SellerID: sellerID}
		msg, err := s.deliver(ctx, participants, userID, content)
		if err != nil {
			s.logger.Error("не удалось отправить первое сообщение", slog.String("conversation_id", conversationID.String()), slog.Any("error", err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения сообщения"})
		}
		resp["message"] = models.NewMessage(msg, userID)
	}

	status := fiber.StatusOK
	if created {
		status = fiber.StatusCreated
	}
	return c.Status(status).JSON(resp)
}

// resync перечитывает уже загруженные списки бесед пользователей
func (s *ChatService) resync(ctx context.Context, userIDs ...uuid.UUID) {
	for _, id := range userIDs {
		ib, ok := s.cachedInbox(id)
		if !ok {
			continue
		}
		if err := ib.Sync(ctx); err != nil {
			s.logger.Warn("не удалось обновить список бесед", slog.String("user_id", id.String()), slog.Any("error", err))
		}
	}
}

// GetMessages возвращает сообщения беседы и отмечает её прочитанной
func (s *ChatService) GetMessages(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID беседы"})
	}

	ctx := c.Context()
	if _, err := s.participants(ctx, conversationID, userID); err != nil {
		return s.accessError(c, err)
	}

	records, err := s.store.ConversationMessages(ctx, conversationID)
	if err != nil {
		s.logger.Error("не удалось получить сообщения", slog.String("conversation_id", conversationID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка получения сообщений"})
	}

	messages := make([]models.Message, 0, len(records))
	for _, rec := range records {
		messages = append(messages, models.NewMessage(rec, userID))
	}

	// Ошибка сохранения отметки не мешает показать сообщения
	readErr := s.MarkConversationRead(ctx, userID, conversationID)

	return c.JSON(fiber.Map{
		"messages":    messages,
		"count":       len(messages),
		"read_synced": readErr == nil,
	})
}

// SendMessage отправляет новое сообщение
func (s *ChatService) SendMessage(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID беседы"})
	}

	var req struct {
		Content string `json:"content" validate:"required,max=4000"`
	}
	if err := c.Bind().Body(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат данных"})
	}
	req.Content = strings.TrimSpace(req.Content)
	if err := utils.ValidateStruct(req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Текст сообщения не может быть пустым"})
	}

	ctx := c.Context()
	p, err := s.participants(ctx, conversationID, userID)
	if err != nil {
		return s.accessError(c, err)
	}

	msg, err := s.deliver(ctx, p, userID, req.Content)
	if err != nil {
		s.logger.Error("не удалось сохранить сообщение", slog.String("conversation_id", conversationID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка сохранения сообщения"})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": models.NewMessage(msg, userID),
		"success": true,
	})
}

// deliver сохраняет сообщение, обновляет загруженные списки бесед и уведомляет собеседника
func (s *ChatService) deliver(ctx context.Context, p models.Participants, senderID uuid.UUID, content string) (models.MessageRecord, error) {
	msg, err := s.store.InsertMessage(ctx, models.MessageRecord{
		ConversationID: p.ConversationID,
		SenderID:       senderID,
		Content:        content,
	})
	if err != nil {
		return msg, fmt.Errorf("сохранение сообщения: %w", err)
	}

	if ib, ok := s.cachedInbox(senderID); ok {
		ib.ApplyMessage(msg)
	}

	recipientID, ok := p.Counterpart(senderID)
	if !ok {
		return msg, nil
	}

	s.notifier.NotifyNewMessage(recipientID, msg)

	if ib, ok := s.cachedInbox(recipientID); ok {
		ib.ApplyMessage(msg)
		s.notifier.BroadcastUnreadCounts(recipientID, ib.UnreadConversations())
	} else if ib, _, err := s.inboxFor(ctx, recipientID); err == nil {
		s.notifier.BroadcastUnreadCounts(recipientID, ib.UnreadConversations())
	} else {
		s.logger.Warn("не удалось посчитать непрочитанные беседы", slog.String("user_id", recipientID.String()), slog.Any("error", err))
	}
	return msg, nil
}

// MarkRead явно отмечает беседу прочитанной
func (s *ChatService) MarkRead(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID беседы"})
	}

	err = s.MarkConversationRead(c.Context(), userID, conversationID)
	if errors.Is(err, inbox.ErrConversationNotFound) || errors.Is(err, models.ErrNotParticipant) {
		return s.accessError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":     true,
		"read_synced": err == nil,
	})
}

// DeleteConversation удаляет беседу вместе с сообщениями
func (s *ChatService) DeleteConversation(c fiber.Ctx) error {
	userID, ok := middleware.UserID(c)
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "Пользователь не авторизован"})
	}

	conversationID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "Неверный формат ID беседы"})
	}

	ctx := c.Context()
	p, err := s.participants(ctx, conversationID, userID)
	if err != nil {
		return s.accessError(c, err)
	}

	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Беседа не найдена"})
		}
		s.logger.Error("не удалось удалить беседу", slog.String("conversation_id", conversationID.String()), slog.Any("error", err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка удаления беседы"})
	}

	for _, id := range []uuid.UUID{p.BuyerID, p.SellerID} {
		ib, ok := s.cachedInbox(id)
		if !ok {
			continue
		}
		ib.Remove(conversationID)
		if id != userID {
			s.notifier.BroadcastUnreadCounts(id, ib.UnreadConversations())
		}
	}
	if counterpart, ok := p.Counterpart(userID); ok {
		s.notifier.NotifyConversationDeleted(counterpart, conversationID)
	}

	return c.JSON(fiber.Map{"success": true})
}

func (s *ChatService) accessError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, inbox.ErrConversationNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "Беседа не найдена"})
	case errors.Is(err, models.ErrNotParticipant):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "У вас нет доступа к этой беседе"})
	}
	s.logger.Error("не удалось проверить доступ к беседе", slog.Any("error", err))
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Ошибка проверки доступа к беседе"})
}
