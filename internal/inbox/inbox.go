package inbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/models"
	"github.com/rajivgeraev/flippy-market/internal/search"
)

// ErrConversationNotFound возвращается, если беседы нет в хранилище
var ErrConversationNotFound = errors.New("беседа не найдена")

// Inbox - список бесед одного пользователя.
// Локальные изменения применяются сразу, хранилище догоняет их при следующей синхронизации.
type Inbox struct {
	repo     ConversationRepository
	viewerID uuid.UUID
	logger   *slog.Logger
	now      func() time.Time

	mu            sync.RWMutex
	conversations []models.ConversationSummary
	trackers      map[uuid.UUID]*search.ReadTracker
}

// Option настраивает Inbox
type Option func(*Inbox)

// WithClock подменяет источник текущего времени
func WithClock(now func() time.Time) Option {
	return func(ib *Inbox) { ib.now = now }
}

// New создаёт пустой Inbox пользователя viewerID
func New(repo ConversationRepository, viewerID uuid.UUID, logger *slog.Logger, opts ...Option) *Inbox {
	ib := &Inbox{
		repo:     repo,
		viewerID: viewerID,
		logger:   logger,
		now:      time.Now,
		trackers: make(map[uuid.UUID]*search.ReadTracker),
	}
	for _, opt := range opts {
		opt(ib)
	}
	return ib
}

// ViewerID возвращает владельца списка
func (ib *Inbox) ViewerID() uuid.UUID {
	return ib.viewerID
}

// Sync целиком пересобирает список из хранилища
func (ib *Inbox) Sync(ctx context.Context) error {
	rows, err := ib.repo.ListConversations(ctx, ib.viewerID)
	if err != nil {
		return fmt.Errorf("загрузка бесед: %w", err)
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var messages []models.MessageRecord
	if len(ids) > 0 {
		messages, err = ib.repo.ListMessages(ctx, ids)
		if err != nil {
			// Без сообщений список всё равно показываем, поиск будет только по именам и названиям
			ib.logger.Error("не удалось загрузить сообщения для поиска",
				slog.String("viewer_id", ib.viewerID.String()),
				slog.Any("error", err),
			)
			messages = nil
		}
	}

	summaries := BuildSummaries(rows, messages, ib.viewerID)

	byConversation := make(map[uuid.UUID][]models.MessageRecord, len(rows))
	for _, m := range messages {
		byConversation[m.ConversationID] = append(byConversation[m.ConversationID], m)
	}
	trackers := make(map[uuid.UUID]*search.ReadTracker, len(summaries))
	for _, s := range summaries {
		trackers[s.ID] = search.NewReadTracker(ib.viewerID, s.LastReadAt, byConversation[s.ID])
	}

	ib.mu.Lock()
	ib.conversations = summaries
	ib.trackers = trackers
	ib.mu.Unlock()

	return nil
}

// Conversations возвращает копию текущего списка
func (ib *Inbox) Conversations() []models.ConversationSummary {
	ib.mu.RLock()
	defer ib.mu.RUnlock()

	out := make([]models.ConversationSummary, len(ib.conversations))
	copy(out, ib.conversations)
	return out
}

// Get возвращает беседу из локального списка
func (ib *Inbox) Get(conversationID uuid.UUID) (models.ConversationSummary, bool) {
	ib.mu.RLock()
	defer ib.mu.RUnlock()

	if i := ib.indexOf(conversationID); i >= 0 {
		return ib.conversations[i], true
	}
	return models.ConversationSummary{}, false
}

// Search ищет по локальному списку
func (ib *Inbox) Search(rawQuery string) []models.ConversationSummary {
	return search.Search(ib.Conversations(), rawQuery)
}

// UnreadConversations возвращает количество бесед с непрочитанными сообщениями
func (ib *Inbox) UnreadConversations() int {
	ib.mu.RLock()
	defer ib.mu.RUnlock()

	count := 0
	for _, c := range ib.conversations {
		if c.UnreadCount > 0 {
			count++
		}
	}
	return count
}

// MarkRead отмечает беседу прочитанной. Счётчик обнуляется сразу, затем отметка
// сохраняется в хранилище. При ошибке сохранения локальное состояние не откатывается.
func (ib *Inbox) MarkRead(ctx context.Context, conversationID uuid.UUID) error {
	at := ib.openLocally(conversationID)

	participants, err := ib.repo.GetParticipants(ctx, conversationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return ErrConversationNotFound
		}
		return fmt.Errorf("получение участников беседы: %w", err)
	}

	role, ok := participants.RoleOf(ib.viewerID)
	if !ok {
		return models.ErrNotParticipant
	}

	if err := ib.repo.AdvanceReadWatermark(ctx, conversationID, role, at); err != nil {
		ib.logger.Error("не удалось сохранить отметку о прочтении",
			slog.String("conversation_id", conversationID.String()),
			slog.String("viewer_id", ib.viewerID.String()),
			slog.Any("error", err),
		)
		return fmt.Errorf("сохранение отметки о прочтении: %w", err)
	}
	return nil
}

func (ib *Inbox) openLocally(conversationID uuid.UUID) time.Time {
	now := ib.now()

	ib.mu.Lock()
	defer ib.mu.Unlock()

	i := ib.indexOf(conversationID)
	if i < 0 {
		return now
	}

	conv := &ib.conversations[i]
	tracker := ib.tracker(*conv)
	at := tracker.Open(now)
	conv.LastReadAt = tracker.LastReadAt()
	conv.UnreadCount = tracker.Unread()
	return at
}

// ApplyMessage учитывает новое сообщение без повторной синхронизации
func (ib *Inbox) ApplyMessage(msg models.MessageRecord) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	i := ib.indexOf(msg.ConversationID)
	if i < 0 {
		return
	}

	conv := &ib.conversations[i]
	preview := msg.Content
	createdAt := msg.CreatedAt
	conv.LastMessagePreview = &preview
	conv.LastMessageAt = &createdAt
	conv.UpdatedAt = models.FormatConversationTimestamp(conv.LastMessageAt)
	conv.SearchableMessageText = conv.SearchableMessageText + " " + msg.Content

	tracker := ib.tracker(*conv)
	tracker.Receive(msg)
	conv.UnreadCount = tracker.Unread()

	SortByRecent(ib.conversations)
}

// Remove убирает беседу из локального списка
func (ib *Inbox) Remove(conversationID uuid.UUID) {
	ib.mu.Lock()
	defer ib.mu.Unlock()

	if i := ib.indexOf(conversationID); i >= 0 {
		ib.conversations = append(ib.conversations[:i], ib.conversations[i+1:]...)
	}
	delete(ib.trackers, conversationID)
}

// tracker вызывается под ib.mu
func (ib *Inbox) tracker(conv models.ConversationSummary) *search.ReadTracker {
	t, ok := ib.trackers[conv.ID]
	if !ok {
		t = search.RestoreReadTracker(ib.viewerID, conv.LastReadAt, conv.UnreadCount)
		ib.trackers[conv.ID] = t
	}
	return t
}

func (ib *Inbox) indexOf(conversationID uuid.UUID) int {
	for i := range ib.conversations {
		if ib.conversations[i].ID == conversationID {
			return i
		}
	}
	return -1
}
