package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

const uniqueViolation = "23505"

// ListingIsActive проверяет, что объявление существует и активно
func (s *Store) ListingIsActive(ctx context.Context, listingID uuid.UUID) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(SELECT 1 FROM listings WHERE id = $1 AND status = $2)
	`, listingID, models.ListingStatusActive).Scan(&exists)
	return exists, err
}

// AddFavorite добавляет объявление в избранное
func (s *Store) AddFavorite(ctx context.Context, userID, listingID uuid.UUID) (models.Favorite, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fav := models.Favorite{UserID: userID, ListingID: listingID}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO favorites (user_id, listing_id)
		VALUES ($1, $2)
		RETURNING id, created_at
	`, userID, listingID).Scan(&fav.ID, &fav.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.Favorite{}, models.ErrAlreadyExists
		}
		return models.Favorite{}, fmt.Errorf("ошибка добавления в избранное: %w", err)
	}
	return fav, nil
}

// RemoveFavorite убирает объявление из избранного
func (s *Store) RemoveFavorite(ctx context.Context, userID, listingID uuid.UUID) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `
		DELETE FROM favorites WHERE user_id = $1 AND listing_id = $2
	`, userID, listingID)
	if err != nil {
		return fmt.Errorf("ошибка удаления из избранного: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// FindFavorite возвращает запись избранного или models.ErrNotFound
func (s *Store) FindFavorite(ctx context.Context, userID, listingID uuid.UUID) (models.Favorite, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	fav := models.Favorite{UserID: userID, ListingID: listingID}
	err := s.pool.QueryRow(ctx, `
		SELECT id, created_at FROM favorites WHERE user_id = $1 AND listing_id = $2
	`, userID, listingID).Scan(&fav.ID, &fav.CreatedAt)
	if err != nil {
		return models.Favorite{}, notFound(err)
	}
	return fav, nil
}

// ListFavorites возвращает страницу избранных активных объявлений и их общее количество
func (s *Store) ListFavorites(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Favorite, int, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var total int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM favorites f
		JOIN listings l ON f.listing_id = l.id
		WHERE f.user_id = $1 AND l.status = $2
	`, userID, models.ListingStatusActive).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("подсчёт избранного: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT f.id, f.created_at, `+listingColumns+`
		FROM favorites f
		JOIN listings l ON f.listing_id = l.id
		LEFT JOIN profiles p ON p.id = l.seller_id
		WHERE f.user_id = $1 AND l.status = $2
		ORDER BY f.created_at DESC
		LIMIT $3 OFFSET $4
	`, userID, models.ListingStatusActive, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("запрос избранного: %w", err)
	}

	favorites := []models.Favorite{}
	for rows.Next() {
		var (
			fav      models.Favorite
			l        models.Listing
			sellerID *uuid.UUID
			seller   models.Profile
		)
		err := rows.Scan(&fav.ID, &fav.CreatedAt,
			&l.ID, &l.SellerID, &l.Title, &l.Description, &l.PriceCents, &l.Status, &l.CreatedAt, &l.UpdatedAt,
			&sellerID, &seller.DisplayName, &seller.AvatarURL,
		)
		if err != nil {
			rows.Close()
			return nil, 0, fmt.Errorf("чтение избранного: %w", err)
		}
		if sellerID != nil {
			seller.ID = *sellerID
			l.Seller = &seller
		}
		fav.UserID = userID
		fav.ListingID = l.ID
		fav.Listing = &l
		favorites = append(favorites, fav)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range favorites {
		images, err := listImages(ctx, s.pool, favorites[i].ListingID)
		if err != nil {
			return nil, 0, err
		}
		favorites[i].Listing.Images = images
	}
	return favorites, total, nil
}
