package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

// Связанные записи собираются в jsonb, чтобы отдать беседу одной строкой
const conversationColumns = `
	c.id, c.buyer_id, c.seller_id, c.listing_id,
	c.last_message_at, c.last_message_preview,
	c.last_read_at_buyer, c.last_read_at_seller, c.created_at,
	(SELECT jsonb_build_object('id', l.id, 'title', l.title, 'price_cents', l.price_cents)
	   FROM listings l WHERE l.id = c.listing_id) AS listing,
	(SELECT jsonb_build_object('id', p.id, 'display_name', p.display_name, 'avatar_url', p.avatar_url)
	   FROM profiles p WHERE p.id = c.buyer_id) AS buyer,
	(SELECT jsonb_build_object('id', p.id, 'display_name', p.display_name, 'avatar_url', p.avatar_url)
	   FROM profiles p WHERE p.id = c.seller_id) AS seller`

// ListConversations возвращает беседы пользователя, свежие первыми
func (s *Store) ListConversations(ctx context.Context, viewerID uuid.UUID) ([]models.ConversationRow, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations c
		WHERE c.buyer_id = $1 OR c.seller_id = $1
		ORDER BY c.last_message_at DESC NULLS LAST, c.created_at DESC
	`, viewerID)
	if err != nil {
		return nil, fmt.Errorf("запрос бесед: %w", err)
	}
	defer rows.Close()

	var result []models.ConversationRow
	for rows.Next() {
		row, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, row)
	}
	return result, rows.Err()
}

func scanConversation(row pgx.Row) (models.ConversationRow, error) {
	var (
		conv                   models.ConversationRow
		listing, buyer, seller []byte
	)

	err := row.Scan(
		&conv.ID, &conv.BuyerID, &conv.SellerID, &conv.ListingID,
		&conv.LastMessageAt, &conv.LastMessagePreview,
		&conv.LastReadAtBuyer, &conv.LastReadAtSeller, &conv.CreatedAt,
		&listing, &buyer, &seller,
	)
	if err != nil {
		return conv, fmt.Errorf("чтение беседы: %w", err)
	}

	if err := decodeRelation(listing, &conv.Listing); err != nil {
		return conv, fmt.Errorf("объявление беседы %s: %w", conv.ID, err)
	}
	if err := decodeRelation(buyer, &conv.Buyer); err != nil {
		return conv, fmt.Errorf("покупатель беседы %s: %w", conv.ID, err)
	}
	if err := decodeRelation(seller, &conv.Seller); err != nil {
		return conv, fmt.Errorf("продавец беседы %s: %w", conv.ID, err)
	}
	return conv, nil
}

// decodeRelation разбирает jsonb связанной записи, NULL оставляет пустым
func decodeRelation[T any](raw []byte, dst *models.OneOrMany[T]) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

// ListMessages возвращает сообщения указанных бесед
func (s *Store) ListMessages(ctx context.Context, conversationIDs []uuid.UUID) ([]models.MessageRecord, error) {
	if len(conversationIDs) == 0 {
		return nil, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids := make([]string, len(conversationIDs))
	for i, id := range conversationIDs {
		ids[i] = id.String()
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at, seq
		FROM messages
		WHERE conversation_id = ANY($1::uuid[])
		ORDER BY created_at, seq
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("запрос сообщений: %w", err)
	}
	return collectMessages(rows)
}

// ConversationMessages возвращает сообщения одной беседы по возрастанию времени
func (s *Store) ConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]models.MessageRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, conversation_id, sender_id, content, created_at, seq
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at, seq
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("запрос сообщений беседы: %w", err)
	}
	return collectMessages(rows)
}

func collectMessages(rows pgx.Rows) ([]models.MessageRecord, error) {
	defer rows.Close()

	var messages []models.MessageRecord
	for rows.Next() {
		var m models.MessageRecord
		var content *string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &content, &m.CreatedAt, &m.Seq); err != nil {
			return nil, fmt.Errorf("чтение сообщения: %w", err)
		}
		if content != nil {
			m.Content = *content
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// GetParticipants возвращает участников беседы
func (s *Store) GetParticipants(ctx context.Context, conversationID uuid.UUID) (models.Participants, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	p := models.Participants{ConversationID: conversationID}
	err := s.pool.QueryRow(ctx,
		"SELECT buyer_id, seller_id FROM conversations WHERE id = $1", conversationID,
	).Scan(&p.BuyerID, &p.SellerID)
	if err != nil {
		return models.Participants{}, notFound(err)
	}
	return p, nil
}

// AdvanceReadWatermark сдвигает отметку о прочтении только вперёд
func (s *Store) AdvanceReadWatermark(ctx context.Context, conversationID uuid.UUID, role models.ParticipantRole, at time.Time) error {
	var query string
	switch role {
	case models.RoleBuyer:
		query = `UPDATE conversations SET last_read_at_buyer = GREATEST(last_read_at_buyer, $2) WHERE id = $1`
	case models.RoleSeller:
		query = `UPDATE conversations SET last_read_at_seller = GREATEST(last_read_at_seller, $2) WHERE id = $1`
	default:
		return models.ErrNotParticipant
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, query, conversationID, at)
	if err != nil {
		return fmt.Errorf("обновление отметки о прочтении: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// EnsureConversation находит беседу покупателя с продавцом по объявлению или создаёт её.
// Второй результат true, если беседа создана.
func (s *Store) EnsureConversation(ctx context.Context, buyerID, sellerID uuid.UUID, listingID *uuid.UUID) (uuid.UUID, bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var id uuid.UUID
	err := s.pool.QueryRow(ctx, `
		INSERT INTO conversations (buyer_id, seller_id, listing_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
		RETURNING id
	`, buyerID, sellerID, listingID).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, false, fmt.Errorf("создание беседы: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT id FROM conversations
		WHERE buyer_id = $1 AND seller_id = $2 AND listing_id IS NOT DISTINCT FROM $3
	`, buyerID, sellerID, listingID).Scan(&id)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("поиск беседы: %w", notFound(err))
	}
	return id, false, nil
}

// InsertMessage сохраняет сообщение и обновляет данные о последнем сообщении беседы
func (s *Store) InsertMessage(ctx context.Context, msg models.MessageRecord) (models.MessageRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	var createdAt *time.Time
	if !msg.CreatedAt.IsZero() {
		createdAt = &msg.CreatedAt
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO messages (conversation_id, sender_id, content, created_at)
		VALUES ($1, $2, $3, COALESCE($4::timestamptz, now()))
		RETURNING id, created_at, seq
	`, msg.ConversationID, msg.SenderID, msg.Content, createdAt).Scan(&msg.ID, &msg.CreatedAt, &msg.Seq)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("сохранение сообщения: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		UPDATE conversations SET last_message_at = $2, last_message_preview = $3
		WHERE id = $1
	`, msg.ConversationID, msg.CreatedAt, msg.Content)
	if err != nil {
		return models.MessageRecord{}, fmt.Errorf("обновление беседы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.MessageRecord{}, models.ErrNotFound
	}

	if err = tx.Commit(ctx); err != nil {
		return models.MessageRecord{}, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return msg, nil
}

// DeleteConversation удаляет сообщения беседы, затем саму беседу
func (s *Store) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err = tx.Exec(ctx, "DELETE FROM messages WHERE conversation_id = $1", conversationID); err != nil {
		return fmt.Errorf("удаление сообщений: %w", err)
	}

	tag, err := tx.Exec(ctx, "DELETE FROM conversations WHERE id = $1", conversationID)
	if err != nil {
		return fmt.Errorf("удаление беседы: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	return tx.Commit(ctx)
}

// ProfileExists проверяет, что профиль существует
func (s *Store) ProfileExists(ctx context.Context, id uuid.UUID) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM profiles WHERE id = $1)", id).Scan(&exists)
	return exists, err
}
