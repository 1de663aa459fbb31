package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Статусы объявления
const (
	ListingStatusActive = "active"
	ListingStatusDraft  = "draft"
	ListingStatusSold   = "sold"
)

// Listing представляет объявление в системе
type Listing struct {
	ID          uuid.UUID      `json:"id"`
	SellerID    uuid.UUID      `json:"seller_id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	PriceCents  int64          `json:"price_cents"`
	Status      string         `json:"status"`
	Images      []ListingImage `json:"images"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`

	Seller *Profile `json:"seller,omitempty"`
}

// Ref возвращает краткие данные объявления для списка бесед
func (l Listing) Ref() ListingRef {
	price := l.PriceCents
	return ListingRef{ID: l.ID, Title: l.Title, PriceCents: &price}
}

// ListingImage представляет изображение объявления
type ListingImage struct {
	ID         uuid.UUID     `json:"id"`
	ListingID  uuid.UUID     `json:"listing_id"`
	URL        string        `json:"url"`
	PreviewURL string        `json:"preview_url,omitempty"`
	PublicID   string        `json:"public_id"`
	IsMain     bool          `json:"is_main"`
	Position   int           `json:"position"`
	Metadata   ImageMetadata `json:"metadata,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
}

// DroppedImages возвращает изображения из old, чьих public_id нет в kept
func DroppedImages(old, kept []ListingImage) []ListingImage {
	keep := make(map[string]struct{}, len(kept))
	for _, img := range kept {
		keep[img.PublicID] = struct{}{}
	}

	var dropped []ListingImage
	for _, img := range old {
		if _, ok := keep[img.PublicID]; !ok {
			dropped = append(dropped, img)
		}
	}
	return dropped
}

// ImageMetadata содержит ключевые метаданные изображения из Cloudinary
type ImageMetadata struct {
	AssetID   string    `json:"asset_id"`
	PublicID  string    `json:"public_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	CreatedAt time.Time `json:"created_at"`
	Bytes     int       `json:"bytes"`
}

// CloudinaryResponse - нужная нам часть ответа Cloudinary на загрузку
type CloudinaryResponse struct {
	AssetID   string    `json:"asset_id"`
	PublicID  string    `json:"public_id"`
	Width     int       `json:"width"`
	Height    int       `json:"height"`
	Format    string    `json:"format"`
	CreatedAt time.Time `json:"created_at"`
	Bytes     int       `json:"bytes"`
	SecureURL string    `json:"secure_url"`
	Eager     []Eager   `json:"eager"`
}

// Eager содержит информацию о трансформациях изображения
type Eager struct {
	Status    string `json:"status"`
	BatchID   string `json:"batch_id"`
	URL       string `json:"url"`
	SecureURL string `json:"secure_url"`
}

// ExtractMetadata извлекает основные метаданные из ответа Cloudinary
func ExtractMetadata(cr CloudinaryResponse) ImageMetadata {
	return ImageMetadata{
		AssetID:   cr.AssetID,
		PublicID:  cr.PublicID,
		Width:     cr.Width,
		Height:    cr.Height,
		CreatedAt: cr.CreatedAt,
		Bytes:     cr.Bytes,
	}
}

// ExtractPreviewURL извлекает URL превью из ответа Cloudinary
func ExtractPreviewURL(cr CloudinaryResponse) string {
	for _, eager := range cr.Eager {
		if eager.Status == "processing" || eager.Status == "completed" {
			return eager.SecureURL
		}
	}
	return ""
}

// ParseCloudinaryResponse конвертирует JSON-ответ от Cloudinary в структуру
func ParseCloudinaryResponse(raw json.RawMessage) (CloudinaryResponse, error) {
	var response CloudinaryResponse
	err := json.Unmarshal(raw, &response)
	return response, err
}
