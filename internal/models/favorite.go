package models

import (
	"time"

	"github.com/google/uuid"
)

// Favorite - объявление, сохранённое пользователем.
// Пара (UserID, ListingID) уникальна.
type Favorite struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	ListingID uuid.UUID `json:"listing_id"`
	CreatedAt time.Time `json:"created_at"`

	Listing *Listing `json:"listing,omitempty"`
}

// FavoriteResponse - страница избранного в ответе API
type FavoriteResponse struct {
	Favorites []Favorite `json:"favorites"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

// NewFavoriteResponse собирает страницу избранного. Пустая страница отдаётся как [], а не null.
func NewFavoriteResponse(favorites []Favorite, total, limit, offset int) FavoriteResponse {
	if favorites == nil {
		favorites = []Favorite{}
	}
	return FavoriteResponse{Favorites: favorites, Total: total, Limit: limit, Offset: offset}
}
