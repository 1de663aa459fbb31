package search

import (
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

// CountUnread считает сообщения собеседника, созданные строго позже lastReadAt.
// Без отметки о прочтении непрочитанными считаются все сообщения собеседника.
// Сообщения без времени создания считаются прочитанными.
func CountUnread(messages []models.MessageRecord, viewerID uuid.UUID, lastReadAt *time.Time) int {
	count := 0
	for _, msg := range messages {
		if isUnread(msg, viewerID, lastReadAt) {
			count++
		}
	}
	return count
}

func isUnread(msg models.MessageRecord, viewerID uuid.UUID, lastReadAt *time.Time) bool {
	if msg.SenderID == viewerID || msg.CreatedAt.IsZero() {
		return false
	}
	return lastReadAt == nil || msg.CreatedAt.After(*lastReadAt)
}

// AdvanceWatermark возвращает новую отметку о прочтении.
// Отметка только растёт: если текущая позже now, она сохраняется.
func AdvanceWatermark(current *time.Time, now time.Time) time.Time {
	if current != nil && current.After(now) {
		return *current
	}
	return now
}

// ReadState - состояние беседы для одного участника
type ReadState string

const (
	StateRead   ReadState = "read"
	StateUnread ReadState = "unread"
)

// ReadTracker ведёт счётчик непрочитанных одного участника в одной беседе.
//
//	UNREAD(n>0) --Open--> READ(0) --Receive(от собеседника)--> UNREAD(1) ...
type ReadTracker struct {
	viewerID   uuid.UUID
	lastReadAt *time.Time
	unread     int
}

// NewReadTracker восстанавливает состояние по сообщениям и сохранённой отметке
func NewReadTracker(viewerID uuid.UUID, lastReadAt *time.Time, messages []models.MessageRecord) *ReadTracker {
	return &ReadTracker{
		viewerID:   viewerID,
		lastReadAt: lastReadAt,
		unread:     CountUnread(messages, viewerID, lastReadAt),
	}
}

// RestoreReadTracker восстанавливает состояние по уже посчитанному счётчику
func RestoreReadTracker(viewerID uuid.UUID, lastReadAt *time.Time, unread int) *ReadTracker {
	return &ReadTracker{viewerID: viewerID, lastReadAt: lastReadAt, unread: max(unread, 0)}
}

// Open отмечает беседу прочитанной на момент now и возвращает новую отметку
func (t *ReadTracker) Open(now time.Time) time.Time {
	at := AdvanceWatermark(t.lastReadAt, now)
	t.lastReadAt = &at
	t.unread = 0
	return at
}

// Receive учитывает новое сообщение
func (t *ReadTracker) Receive(msg models.MessageRecord) {
	if isUnread(msg, t.viewerID, t.lastReadAt) {
		t.unread++
	}
}

// Unread возвращает количество непрочитанных сообщений
func (t *ReadTracker) Unread() int {
	return t.unread
}

// LastReadAt возвращает текущую отметку о прочтении
func (t *ReadTracker) LastReadAt() *time.Time {
	return t.lastReadAt
}

// State возвращает текущее состояние
func (t *ReadTracker) State() ReadState {
	if t.unread > 0 {
		return StateUnread
	}
	return StateRead
}
