// Package memory хранит данные маркетплейса в памяти процесса.
// Используется для локального запуска без PostgreSQL и в тестах.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

type conversation struct {
	id                 uuid.UUID
	buyerID            uuid.UUID
	sellerID           uuid.UUID
	listingID          *uuid.UUID
	lastMessageAt      *time.Time
	lastMessagePreview *string
	lastReadAtBuyer    *time.Time
	lastReadAtSeller   *time.Time
	createdAt          time.Time
}

// Store - потокобезопасное хранилище в памяти
type Store struct {
	mu  sync.RWMutex
	now func() time.Time
	seq int64

	users         map[uuid.UUID]models.User
	telegramUsers map[int64]uuid.UUID
	listings      map[uuid.UUID]models.Listing
	conversations map[uuid.UUID]*conversation
	messages      []models.MessageRecord
	favorites     []models.Favorite
}

// NewStore создаёт пустое хранилище
func NewStore() *Store {
	return &Store{
		now:           time.Now,
		users:         make(map[uuid.UUID]models.User),
		telegramUsers: make(map[int64]uuid.UUID),
		listings:      make(map[uuid.UUID]models.Listing),
		conversations: make(map[uuid.UUID]*conversation),
	}
}

// SetClock подменяет источник времени
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	s.now = now
	s.mu.Unlock()
}

// ---- профили ----

// AddUser добавляет пользователя напрямую
func (s *Store) AddUser(user models.User) models.User {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = user
	if user.TelegramID != 0 {
		s.telegramUsers[user.TelegramID] = user.ID
	}
	return user
}

// UpsertTelegramUser создаёт или обновляет пользователя по данным Telegram
func (s *Store) UpsertTelegramUser(ctx context.Context, identity models.TelegramIdentity) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	name := identity.DisplayName()
	photo := identity.PhotoURL

	id, exists := s.telegramUsers[identity.TelegramID]
	user := s.users[id]
	if !exists {
		id = uuid.New()
		user = models.User{TelegramID: identity.TelegramID, CreatedAt: now}
		user.ID = id
		s.telegramUsers[identity.TelegramID] = id
	}

	user.DisplayName = &name
	user.AvatarURL = &photo
	user.Username = identity.Username
	user.LanguageCode = identity.LanguageCode
	user.LastLoginAt = now
	s.users[id] = user

	return &user, nil
}

// GetUser возвращает пользователя по ID
func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &user, nil
}

// ProfileExists проверяет, что профиль существует
func (s *Store) ProfileExists(ctx context.Context, id uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.users[id]
	return ok, nil
}

func (s *Store) profile(id uuid.UUID) (models.Profile, bool) {
	user, ok := s.users[id]
	return user.Profile, ok
}

// ---- беседы ----

// ListConversations возвращает беседы пользователя, свежие первыми
func (s *Store) ListConversations(ctx context.Context, viewerID uuid.UUID) ([]models.ConversationRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rows []models.ConversationRow
	for _, c := range s.conversations {
		if c.buyerID != viewerID && c.sellerID != viewerID {
			continue
		}
		rows = append(rows, s.row(c))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i].LastMessageAt, rows[j].LastMessageAt
		switch {
		case a != nil && b != nil && !a.Equal(*b):
			return a.After(*b)
		case a != nil && b == nil:
			return true
		case a == nil && b != nil:
			return false
		}
		return rows[i].CreatedAt.After(rows[j].CreatedAt)
	})
	return rows, nil
}

func (s *Store) row(c *conversation) models.ConversationRow {
	row := models.ConversationRow{
		ID:                 c.id,
		BuyerID:            c.buyerID,
		SellerID:           c.sellerID,
		ListingID:          c.listingID,
		LastMessageAt:      c.lastMessageAt,
		LastMessagePreview: c.lastMessagePreview,
		LastReadAtBuyer:    c.lastReadAtBuyer,
		LastReadAtSeller:   c.lastReadAtSeller,
		CreatedAt:          c.createdAt,
	}
	if c.listingID != nil {
		if listing, ok := s.listings[*c.listingID]; ok {
			row.Listing = models.One(listing.Ref())
		}
	}
	if p, ok := s.profile(c.buyerID); ok {
		row.Buyer = models.One(p)
	}
	if p, ok := s.profile(c.sellerID); ok {
		row.Seller = models.One(p)
	}
	return row
}

// ListMessages возвращает сообщения указанных бесед в порядке вставки
func (s *Store) ListMessages(ctx context.Context, conversationIDs []uuid.UUID) ([]models.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[uuid.UUID]bool, len(conversationIDs))
	for _, id := range conversationIDs {
		wanted[id] = true
	}

	var out []models.MessageRecord
	for _, m := range s.messages {
		if wanted[m.ConversationID] {
			out = append(out, m)
		}
	}
	return out, nil
}

// ConversationMessages возвращает сообщения беседы по времени создания
func (s *Store) ConversationMessages(ctx context.Context, conversationID uuid.UUID) ([]models.MessageRecord, error) {
	out, _ := s.ListMessages(ctx, []uuid.UUID{conversationID})
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Seq < out[j].Seq
	})
	return out, nil
}

// GetParticipants возвращает участников беседы
func (s *Store) GetParticipants(ctx context.Context, conversationID uuid.UUID) (models.Participants, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return models.Participants{}, models.ErrNotFound
	}
	return models.Participants{ConversationID: c.id, BuyerID: c.buyerID, SellerID: c.sellerID}, nil
}

// AdvanceReadWatermark сдвигает отметку о прочтении только вперёд
func (s *Store) AdvanceReadWatermark(ctx context.Context, conversationID uuid.UUID, role models.ParticipantRole, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[conversationID]
	if !ok {
		return models.ErrNotFound
	}

	var target **time.Time
	switch role {
	case models.RoleBuyer:
		target = &c.lastReadAtBuyer
	case models.RoleSeller:
		target = &c.lastReadAtSeller
	default:
		return models.ErrNotParticipant
	}

	if *target == nil || at.After(**target) {
		v := at
		*target = &v
	}
	return nil
}

// EnsureConversation находит беседу покупателя с продавцом по объявлению или создаёт её
func (s *Store) EnsureConversation(ctx context.Context, buyerID, sellerID uuid.UUID, listingID *uuid.UUID) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, c := range s.conversations {
		if c.buyerID == buyerID && c.sellerID == sellerID && sameListing(c.listingID, listingID) {
			return c.id, false, nil
		}
	}

	c := &conversation{
		id:        uuid.New(),
		buyerID:   buyerID,
		sellerID:  sellerID,
		createdAt: s.now(),
	}
	if listingID != nil {
		id := *listingID
		c.listingID = &id
	}
	s.conversations[c.id] = c
	return c.id, true, nil
}

func sameListing(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// InsertMessage сохраняет сообщение и обновляет данные о последнем сообщении беседы
func (s *Store) InsertMessage(ctx context.Context, msg models.MessageRecord) (models.MessageRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conversations[msg.ConversationID]
	if !ok {
		return models.MessageRecord{}, models.ErrNotFound
	}

	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = s.now()
	}
	s.seq++
	msg.Seq = s.seq
	s.messages = append(s.messages, msg)

	createdAt := msg.CreatedAt
	preview := msg.Content
	c.lastMessageAt = &createdAt
	c.lastMessagePreview = &preview

	return msg, nil
}

// DeleteConversation удаляет сообщения беседы, затем саму беседу
func (s *Store) DeleteConversation(ctx context.Context, conversationID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return models.ErrNotFound
	}

	kept := s.messages[:0]
	for _, m := range s.messages {
		if m.ConversationID != conversationID {
			kept = append(kept, m)
		}
	}
	s.messages = kept
	delete(s.conversations, conversationID)
	return nil
}

// ---- объявления ----

// CreateListing сохраняет объявление и проставляет идентификаторы
func (s *Store) CreateListing(ctx context.Context, listing *models.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if listing.ID == uuid.Nil {
		listing.ID = uuid.New()
	}
	listing.CreatedAt = now
	listing.UpdatedAt = now
	for i := range listing.Images {
		if listing.Images[i].ID == uuid.Nil {
			listing.Images[i].ID = uuid.New()
		}
		listing.Images[i].ListingID = listing.ID
		listing.Images[i].CreatedAt = now
	}

	stored := *listing
	stored.Images = append([]models.ListingImage(nil), listing.Images...)
	stored.Seller = nil
	s.listings[listing.ID] = stored
	return nil
}

// UpdateListing обновляет объявление. Если listing.Images не nil, изображения
// заменяются целиком, а вызывающему возвращаются те старые, которых нет в новом списке.
func (s *Store) UpdateListing(ctx context.Context, listing *models.Listing) ([]models.ListingImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.listings[listing.ID]
	if !ok {
		return nil, models.ErrNotFound
	}

	now := s.now()
	stored.Title = listing.Title
	stored.Description = listing.Description
	stored.PriceCents = listing.PriceCents
	stored.Status = listing.Status
	stored.UpdatedAt = now

	var removed []models.ListingImage
	if listing.Images != nil {
		removed = models.DroppedImages(stored.Images, listing.Images)
		for i := range listing.Images {
			listing.Images[i].ID = uuid.New()
			listing.Images[i].ListingID = listing.ID
			listing.Images[i].CreatedAt = now
		}
		stored.Images = append([]models.ListingImage(nil), listing.Images...)
	}
	s.listings[listing.ID] = stored

	listing.CreatedAt = stored.CreatedAt
	listing.UpdatedAt = stored.UpdatedAt
	return removed, nil
}

// GetListing возвращает объявление вместе с профилем продавца
func (s *Store) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	listing, ok := s.listings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return s.withSeller(listing), nil
}

func (s *Store) withSeller(listing models.Listing) *models.Listing {
	listing.Images = append([]models.ListingImage(nil), listing.Images...)
	if p, ok := s.profile(listing.SellerID); ok {
		listing.Seller = &p
	}
	return &listing
}

// ListActive возвращает страницу активных объявлений и их общее количество
func (s *Store) ListActive(ctx context.Context, limit, offset int) ([]models.Listing, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []models.Listing
	for _, l := range s.listings {
		if l.Status == models.ListingStatusActive {
			active = append(active, *s.withSeller(l))
		}
	}
	sortListings(active)
	return page(active, limit, offset), len(active), nil
}

// ListBySeller возвращает объявления продавца, status "all" отключает фильтр
func (s *Store) ListBySeller(ctx context.Context, sellerID uuid.UUID, status string, limit, offset int) ([]models.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var own []models.Listing
	for _, l := range s.listings {
		if l.SellerID == sellerID && (status == "all" || l.Status == status) {
			own = append(own, *s.withSeller(l))
		}
	}
	sortListings(own)
	return page(own, limit, offset), nil
}

// DeleteListing удаляет объявление и возвращает его изображения
func (s *Store) DeleteListing(ctx context.Context, id uuid.UUID) ([]models.ListingImage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, ok := s.listings[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	delete(s.listings, id)

	kept := s.favorites[:0]
	for _, f := range s.favorites {
		if f.ListingID != id {
			kept = append(kept, f)
		}
	}
	s.favorites = kept

	return listing.Images, nil
}

func sortListings(listings []models.Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		return listings[i].CreatedAt.After(listings[j].CreatedAt)
	})
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

// ---- избранное ----

// ListingIsActive проверяет, что объявление существует и активно
func (s *Store) ListingIsActive(ctx context.Context, listingID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[listingID]
	return ok && l.Status == models.ListingStatusActive, nil
}

// AddFavorite добавляет объявление в избранное
func (s *Store) AddFavorite(ctx context.Context, userID, listingID uuid.UUID) (models.Favorite, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.favorites {
		if f.UserID == userID && f.ListingID == listingID {
			return models.Favorite{}, models.ErrAlreadyExists
		}
	}

	fav := models.Favorite{ID: uuid.New(), UserID: userID, ListingID: listingID, CreatedAt: s.now()}
	s.favorites = append(s.favorites, fav)
	return fav, nil
}

// RemoveFavorite убирает объявление из избранного
func (s *Store) RemoveFavorite(ctx context.Context, userID, listingID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, f := range s.favorites {
		if f.UserID == userID && f.ListingID == listingID {
			s.favorites = append(s.favorites[:i], s.favorites[i+1:]...)
			return nil
		}
	}
	return models.ErrNotFound
}

// FindFavorite возвращает запись избранного или models.ErrNotFound
func (s *Store) FindFavorite(ctx context.Context, userID, listingID uuid.UUID) (models.Favorite, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, f := range s.favorites {
		if f.UserID == userID && f.ListingID == listingID {
			return f, nil
		}
	}
	return models.Favorite{}, models.ErrNotFound
}

// ListFavorites возвращает страницу избранных активных объявлений, новые первыми
func (s *Store) ListFavorites(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Favorite, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var own []models.Favorite
	for _, f := range s.favorites {
		if f.UserID != userID {
			continue
		}
		l, ok := s.listings[f.ListingID]
		if !ok || l.Status != models.ListingStatusActive {
			continue
		}
		f.Listing = s.withSeller(l)
		own = append(own, f)
	}
	sort.SliceStable(own, func(i, j int) bool {
		return own[i].CreatedAt.After(own[j].CreatedAt)
	})
	return page(own, limit, offset), len(own), nil
}
