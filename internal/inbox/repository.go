// Package inbox собирает список бесед пользователя из данных хранилища
// и держит его локальное состояние между синхронизациями.
package inbox

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

// ConversationRepository - источник данных о беседах
type ConversationRepository interface {
	// ListConversations возвращает беседы, в которых участвует пользователь
	ListConversations(ctx context.Context, viewerID uuid.UUID) ([]models.ConversationRow, error)
	// ListMessages возвращает сообщения указанных бесед
	ListMessages(ctx context.Context, conversationIDs []uuid.UUID) ([]models.MessageRecord, error)
	// GetParticipants возвращает участников беседы или models.ErrNotFound
	GetParticipants(ctx context.Context, conversationID uuid.UUID) (models.Participants, error)
	// AdvanceReadWatermark сдвигает отметку о прочтении роли role вперёд до at
	AdvanceReadWatermark(ctx context.Context, conversationID uuid.UUID, role models.ParticipantRole, at time.Time) error
}
