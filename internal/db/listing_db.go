package db

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

const listingColumns = `
	l.id, l.seller_id, l.title, l.description, l.price_cents, l.status, l.created_at, l.updated_at,
	p.id, p.display_name, p.avatar_url`

// CreateListing сохраняет объявление вместе с изображениями
func (s *Store) CreateListing(ctx context.Context, listing *models.Listing) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		INSERT INTO listings (seller_id, title, description, price_cents, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`, listing.SellerID, listing.Title, listing.Description, listing.PriceCents, listing.Status,
	).Scan(&listing.ID, &listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		return fmt.Errorf("ошибка вставки объявления: %w", err)
	}

	if err := insertImages(ctx, tx, listing.ID, listing.Images); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return nil
}

func insertImages(ctx context.Context, tx pgx.Tx, listingID uuid.UUID, images []models.ListingImage) error {
	for i := range images {
		img := &images[i]
		img.ListingID = listingID

		metadata, err := json.Marshal(img.Metadata)
		if err != nil {
			return fmt.Errorf("метаданные изображения: %w", err)
		}

		err = tx.QueryRow(ctx, `
			INSERT INTO listing_images (listing_id, url, preview_url, public_id, is_main, position, metadata)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at
		`, listingID, img.URL, img.PreviewURL, img.PublicID, img.IsMain, img.Position, metadata,
		).Scan(&img.ID, &img.CreatedAt)
		if err != nil {
			return fmt.Errorf("ошибка вставки изображения: %w", err)
		}
	}
	return nil
}

// UpdateListing обновляет объявление. Если listing.Images не nil, изображения
// заменяются целиком, а вызывающему возвращаются те старые, которых нет в новом списке.
func (s *Store) UpdateListing(ctx context.Context, listing *models.Listing) ([]models.ListingImage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `
		UPDATE listings
		SET title = $2, description = $3, price_cents = $4, status = $5, updated_at = now()
		WHERE id = $1
		RETURNING created_at, updated_at
	`, listing.ID, listing.Title, listing.Description, listing.PriceCents, listing.Status,
	).Scan(&listing.CreatedAt, &listing.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}

	var removed []models.ListingImage
	if listing.Images != nil {
		old, err := listImages(ctx, tx, listing.ID)
		if err != nil {
			return nil, err
		}
		removed = models.DroppedImages(old, listing.Images)
		if _, err = tx.Exec(ctx, "DELETE FROM listing_images WHERE listing_id = $1", listing.ID); err != nil {
			return nil, fmt.Errorf("ошибка удаления старых изображений: %w", err)
		}
		if err := insertImages(ctx, tx, listing.ID, listing.Images); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return removed, nil
}

// GetListing возвращает объявление с изображениями и профилем продавца
func (s *Store) GetListing(ctx context.Context, id uuid.UUID) (*models.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	row := s.pool.QueryRow(ctx, `
		SELECT `+listingColumns+`
		FROM listings l LEFT JOIN profiles p ON p.id = l.seller_id
		WHERE l.id = $1
	`, id)

	listing, err := scanListing(row)
	if err != nil {
		return nil, notFound(err)
	}

	listing.Images, err = listImages(ctx, s.pool, id)
	if err != nil {
		return nil, err
	}
	return listing, nil
}

// ListActive возвращает страницу активных объявлений и их общее количество
func (s *Store) ListActive(ctx context.Context, limit, offset int) ([]models.Listing, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM listings WHERE status = $1", models.ListingStatusActive).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("подсчёт объявлений: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+listingColumns+`
		FROM listings l LEFT JOIN profiles p ON p.id = l.seller_id
		WHERE l.status = $1
		ORDER BY l.created_at DESC
		LIMIT $2 OFFSET $3
	`, models.ListingStatusActive, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("запрос объявлений: %w", err)
	}

	listings, err := s.collectListings(ctx, rows)
	return listings, total, err
}

// ListBySeller возвращает объявления продавца, status "all" отключает фильтр
func (s *Store) ListBySeller(ctx context.Context, sellerID uuid.UUID, status string, limit, offset int) ([]models.Listing, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var limitArg *int
	if limit > 0 {
		limitArg = &limit
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+listingColumns+`
		FROM listings l LEFT JOIN profiles p ON p.id = l.seller_id
		WHERE l.seller_id = $1 AND ($2 = 'all' OR l.status = $2)
		ORDER BY l.created_at DESC
		LIMIT $3 OFFSET $4
	`, sellerID, status, limitArg, offset)
	if err != nil {
		return nil, fmt.Errorf("запрос объявлений продавца: %w", err)
	}
	return s.collectListings(ctx, rows)
}

// DeleteListing удаляет объявление и возвращает его изображения.
// Беседы по объявлению остаются, их listing_id обнуляется.
func (s *Store) DeleteListing(ctx context.Context, id uuid.UUID) ([]models.ListingImage, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка при начале транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	images, err := listImages(ctx, tx, id)
	if err != nil {
		return nil, err
	}

	tag, err := tx.Exec(ctx, "DELETE FROM listings WHERE id = $1", id)
	if err != nil {
		return nil, fmt.Errorf("ошибка удаления объявления: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}
	return images, nil
}

func scanListing(row pgx.Row) (*models.Listing, error) {
	var (
		l        models.Listing
		sellerID *uuid.UUID
		seller   models.Profile
	)
	err := row.Scan(
		&l.ID, &l.SellerID, &l.Title, &l.Description, &l.PriceCents, &l.Status, &l.CreatedAt, &l.UpdatedAt,
		&sellerID, &seller.DisplayName, &seller.AvatarURL,
	)
	if err != nil {
		return nil, err
	}
	if sellerID != nil {
		seller.ID = *sellerID
		l.Seller = &seller
	}
	return &l, nil
}

func (s *Store) collectListings(ctx context.Context, rows pgx.Rows) ([]models.Listing, error) {
	listings := []models.Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("чтение объявления: %w", err)
		}
		listings = append(listings, *l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range listings {
		images, err := listImages(ctx, s.pool, listings[i].ID)
		if err != nil {
			return nil, err
		}
		listings[i].Images = images
	}
	return listings, nil
}

// querier - общее у пула и транзакции
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listImages(ctx context.Context, q querier, listingID uuid.UUID) ([]models.ListingImage, error) {
	rows, err := q.Query(ctx, `
		SELECT id, listing_id, url, COALESCE(preview_url, ''), public_id, is_main, position, metadata, created_at
		FROM listing_images
		WHERE listing_id = $1
		ORDER BY position
	`, listingID)
	if err != nil {
		return nil, fmt.Errorf("запрос изображений: %w", err)
	}
	defer rows.Close()

	images := []models.ListingImage{}
	for rows.Next() {
		var img models.ListingImage
		var metadata []byte
		if err := rows.Scan(&img.ID, &img.ListingID, &img.URL, &img.PreviewURL, &img.PublicID,
			&img.IsMain, &img.Position, &metadata, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("чтение изображения: %w", err)
		}
		if len(metadata) > 0 {
			_ = json.Unmarshal(metadata, &img.Metadata)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
