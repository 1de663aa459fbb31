package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Подписи, которые видит пользователь, когда связанная сущность пропала
const (
	ListingRemovedTitle = "Объявление удалено"
	UnknownBuyerName    = "Неизвестный покупатель"
	UnknownSellerName   = "Неизвестный продавец"
)

var (
	// ErrNotFound возвращается хранилищем, если запись не найдена
	ErrNotFound = errors.New("запись не найдена")
	// ErrNotParticipant возвращается, если пользователь не участвует в беседе
	ErrNotParticipant = errors.New("пользователь не участвует в беседе")
	// ErrAlreadyExists возвращается при попытке создать дубликат
	ErrAlreadyExists = errors.New("запись уже существует")
)

// ParticipantRole определяет, с какой стороны пользователь участвует в беседе
type ParticipantRole string

const (
	RoleBuyer  ParticipantRole = "buyer"
	RoleSeller ParticipantRole = "seller"
)

// Participants содержит идентификаторы обоих участников беседы
type Participants struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	BuyerID        uuid.UUID `json:"buyer_id"`
	SellerID       uuid.UUID `json:"seller_id"`
}

// RoleOf возвращает роль пользователя в беседе
func (p Participants) RoleOf(userID uuid.UUID) (ParticipantRole, bool) {
	switch userID {
	case p.BuyerID:
		return RoleBuyer, true
	case p.SellerID:
		return RoleSeller, true
	}
	return "", false
}

// Counterpart возвращает собеседника пользователя
func (p Participants) Counterpart(userID uuid.UUID) (uuid.UUID, bool) {
	switch userID {
	case p.BuyerID:
		return p.SellerID, true
	case p.SellerID:
		return p.BuyerID, true
	}
	return uuid.Nil, false
}

// ConversationRow - беседа в том виде, в каком её отдаёт хранилище.
// Связанные объявление и профили приходят как JSON и могут быть объектом или массивом.
type ConversationRow struct {
	ID                 uuid.UUID
	BuyerID            uuid.UUID
	SellerID           uuid.UUID
	ListingID          *uuid.UUID
	LastMessageAt      *time.Time
	LastMessagePreview *string
	LastReadAtBuyer    *time.Time
	LastReadAtSeller   *time.Time
	CreatedAt          time.Time

	Listing OneOrMany[ListingRef]
	Buyer   OneOrMany[Profile]
	Seller  OneOrMany[Profile]
}

// Participants возвращает участников беседы
func (r ConversationRow) Participants() Participants {
	return Participants{ConversationID: r.ID, BuyerID: r.BuyerID, SellerID: r.SellerID}
}

// ListingRef - минимальные данные объявления, нужные списку бесед
type ListingRef struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	PriceCents *int64    `json:"price_cents"`
}

// ConversationSummary - строка списка бесед для конкретного пользователя.
// Пересобирается целиком при каждой синхронизации.
type ConversationSummary struct {
	ID                 uuid.UUID  `json:"id"`
	ContactDisplayName string     `json:"contact_name"`
	ContactProfileID   *uuid.UUID `json:"contact_profile_id,omitempty"`
	ContactAvatarURL   string     `json:"contact_avatar_url,omitempty"`
	ListingID          *uuid.UUID `json:"listing_id,omitempty"`
	ListingTitle       string     `json:"listing_title"`
	ListingPriceCents  *int64     `json:"listing_price_cents,omitempty"`
	LastMessagePreview *string    `json:"last_message_preview,omitempty"`
	LastMessageAt      *time.Time `json:"last_message_at,omitempty"`
	UpdatedAt          string     `json:"updated_at"`
	UnreadCount        int        `json:"unread_count"`
	BuyerID            uuid.UUID  `json:"buyer_id"`
	SellerID           uuid.UUID  `json:"seller_id"`

	// Используются только для поиска и подсчёта непрочитанных
	SearchableMessageText string     `json:"-"`
	LastReadAt            *time.Time `json:"-"`
}

// MessageRecord - сообщение беседы. После создания не меняется.
type MessageRecord struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	SenderID       uuid.UUID `json:"sender_id"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
	Seq            int64     `json:"-"`
}

// Message - сообщение в ответе API
type Message struct {
	ID        uuid.UUID `json:"id"`
	FromMe    bool      `json:"from_me"`
	SenderID  uuid.UUID `json:"sender_id"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	Time      string    `json:"time"`
}

// NewMessage готовит сообщение к выдаче пользователю viewerID
func NewMessage(rec MessageRecord, viewerID uuid.UUID) Message {
	return Message{
		ID:        rec.ID,
		FromMe:    rec.SenderID == viewerID,
		SenderID:  rec.SenderID,
		Content:   rec.Content,
		CreatedAt: rec.CreatedAt,
		Time:      rec.CreatedAt.Format("15:04"),
	}
}

// FormatConversationTimestamp форматирует время последнего сообщения для списка бесед
func FormatConversationTimestamp(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format("02/01/2006 15:04")
}
