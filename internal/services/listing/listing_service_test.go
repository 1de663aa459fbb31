package listing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-market/internal/models"
	"github.com/rajivgeraev/flippy-market/internal/obs"
	"github.com/rajivgeraev/flippy-market/internal/storage/memory"
	"github.com/rajivgeraev/flippy-market/internal/utils"
)

type fakeRemover struct {
	mu      sync.Mutex
	removed []string
	err     error
}

func (r *fakeRemover) DeleteImage(ctx context.Context, publicID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removed = append(r.removed, publicID)
	return r.err
}

type fixture struct {
	app     *fiber.App
	store   *memory.Store
	remover *fakeRemover
	jwt     *utils.JWTService
	seller  uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := memory.NewStore()
	tick := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time {
		tick = tick.Add(time.Minute)
		return tick
	})

	remover := &fakeRemover{}
	jwtService := utils.NewJWTService("secret", time.Hour)
	svc := NewListingService(store, remover, jwtService, obs.Discard())

	app := fiber.New()
	svc.SetupRoutes(app)

	return &fixture{
		app:     app,
		store:   store,
		remover: remover,
		jwt:     jwtService,
		seller:  store.AddUser(models.User{}).ID,
	}
}

func (f *fixture) do(t *testing.T, method, path string, userID uuid.UUID, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != uuid.Nil {
		token, err := f.jwt.GenerateToken(userID)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := f.app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func image(publicID string) map[string]any {
	return map[string]any{
		"url":       "https://res.cloudinary.com/demo/image/upload/" + publicID + ".jpg",
		"public_id": publicID,
		"cloudinary_response": map[string]any{
			"asset_id":  "asset-" + publicID,
			"public_id": publicID,
			"width":     800,
			"height":    600,
			"bytes":     1024,
			"eager": []map[string]any{
				{"status": "completed", "secure_url": "https://res.cloudinary.com/demo/image/upload/c_fill/" + publicID + ".jpg"},
			},
		},
	}
}

func (f *fixture) create(t *testing.T, body map[string]any) string {
	t.Helper()

	status, resp := f.do(t, http.MethodPost, "/api/listings/create", f.seller, body)
	require.Equal(t, http.StatusCreated, status, resp)
	return resp["listing_id"].(string)
}

func TestCreateListing(t *testing.T) {
	f := newFixture(t)

	id := f.create(t, map[string]any{
		"title":       "Vélo de course",
		"description": "Cadre alu, 54 cm",
		"price_cents": 12000,
		"status":      "active",
		"images":      []any{image("bike-1"), image("bike-2")},
	})

	listing, err := f.store.GetListing(context.Background(), uuid.MustParse(id))
	require.NoError(t, err)
	assert.Equal(t, int64(12000), listing.PriceCents)
	require.Len(t, listing.Images, 2)
	assert.True(t, listing.Images[0].IsMain)
	assert.False(t, listing.Images[1].IsMain)
	assert.Equal(t, "https://res.cloudinary.com/demo/image/upload/c_fill/bike-1.jpg", listing.Images[0].PreviewURL)
	assert.Equal(t, 800, listing.Images[0].Metadata.Width)
}

func TestCreateListingValidation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"без названия", map[string]any{"price_cents": 100}},
		{"отрицательная цена", map[string]any{"title": "Лампа", "price_cents": -1}},
		{"неизвестный статус", map[string]any{"title": "Лампа", "status": "archived"}},
		{"активное без фото", map[string]any{"title": "Лампа", "status": "active"}},
		{"фото без url", map[string]any{"title": "Лампа", "images": []any{map[string]any{"public_id": "x"}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := f.do(t, http.MethodPost, "/api/listings/create", f.seller, tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestDraftIsDefaultAndHiddenFromOthers(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, map[string]any{"title": "Лампа"})

	status, body := f.do(t, http.MethodGet, "/api/listings/"+id, f.seller, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "draft", body["listing"].(map[string]any)["status"])
	assert.Equal(t, true, body["is_owner"])

	status, _ = f.do(t, http.MethodGet, "/api/listings/"+id, uuid.New(), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPublicListingsShowsActiveOnly(t *testing.T) {
	f := newFixture(t)
	f.create(t, map[string]any{"title": "Черновик"})
	f.create(t, map[string]any{"title": "Стол", "status": "active", "images": []any{image("table")}})
	f.create(t, map[string]any{"title": "Стул", "status": "active", "images": []any{image("chair")}})

	status, body := f.do(t, http.MethodGet, "/api/listings?limit=1", uuid.Nil, nil)
	require.Equal(t, http.StatusOK, status)
	assert.EqualValues(t, 2, body["total"])
	assert.EqualValues(t, 1, body["limit"])

	listings := body["listings"].([]any)
	require.Len(t, listings, 1)
	assert.Equal(t, "Стул", listings[0].(map[string]any)["title"])
}

func TestMyListingsFiltersByStatus(t *testing.T) {
	f := newFixture(t)
	f.create(t, map[string]any{"title": "Черновик"})
	f.create(t, map[string]any{"title": "Стол", "status": "active", "images": []any{image("table")}})

	_, body := f.do(t, http.MethodGet, "/api/listings/my", f.seller, nil)
	assert.EqualValues(t, 2, body["count"])

	_, body = f.do(t, http.MethodGet, "/api/listings/my?status=draft", f.seller, nil)
	assert.EqualValues(t, 1, body["count"])

	status, _ := f.do(t, http.MethodGet, "/api/listings/my?status=unknown", f.seller, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestUpdateListingReplacesImages(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, map[string]any{"title": "Стол", "status": "active", "images": []any{image("old")}})

	status, _ := f.do(t, http.MethodPut, "/api/listings/"+id, uuid.New(), map[string]any{"title": "Чужой"})
	assert.Equal(t, http.StatusForbidden, status)

	status, body := f.do(t, http.MethodPut, "/api/listings/"+id, f.seller, map[string]any{
		"title": "Стол дубовый", "status": "active", "price_cents": 5000, "images": []any{image("new")},
	})
	require.Equal(t, http.StatusOK, status, body)

	listing := body["listing"].(map[string]any)
	assert.Equal(t, "Стол дубовый", listing["title"])
	images := listing["images"].([]any)
	require.Len(t, images, 1)
	assert.Equal(t, "new", images[0].(map[string]any)["public_id"])
	assert.Equal(t, []string{"old"}, f.remover.removed)
}

func TestUpdateListingKeepsRetainedImages(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, map[string]any{"title": "Стол", "status": "active", "images": []any{image("keep"), image("drop")}})

	status, body := f.do(t, http.MethodPut, "/api/listings/"+id, f.seller, map[string]any{
		"title": "Стол", "status": "active", "images": []any{image("keep"), image("added")},
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, []string{"drop"}, f.remover.removed)

	listing, err := f.store.GetListing(context.Background(), uuid.MustParse(id))
	require.NoError(t, err)
	require.Len(t, listing.Images, 2)
	assert.Equal(t, "keep", listing.Images[0].PublicID)
	assert.Equal(t, "added", listing.Images[1].PublicID)
}

func TestUpdateActiveListingWithoutImagesField(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, map[string]any{"title": "Стол", "status": "active", "images": []any{image("table")}})

	status, body := f.do(t, http.MethodPut, "/api/listings/"+id, f.seller, map[string]any{
		"title": "Стол дубовый", "status": "active", "price_cents": 7000,
	})
	require.Equal(t, http.StatusOK, status, body)

	listing := body["listing"].(map[string]any)
	assert.Equal(t, "Стол дубовый", listing["title"])
	images := listing["images"].([]any)
	require.Len(t, images, 1)
	assert.Equal(t, "table", images[0].(map[string]any)["public_id"])
	assert.Empty(t, f.remover.removed)

	// Явно пустой список у активного объявления по-прежнему запрещён
	status, body = f.do(t, http.MethodPut, "/api/listings/"+id, f.seller, map[string]any{
		"title": "Стол", "status": "active", "images": []any{},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body["error"])
}

func TestDeleteListingDestroysImages(t *testing.T) {
	f := newFixture(t)
	f.remover.err = errors.New("cloudinary недоступен")
	id := f.create(t, map[string]any{"title": "Стол", "status": "active", "images": []any{image("a"), image("b")}})

	status, _ := f.do(t, http.MethodDelete, "/api/listings/"+id, uuid.New(), nil)
	assert.Equal(t, http.StatusForbidden, status)

	// Ошибка Cloudinary не мешает удалению
	status, _ = f.do(t, http.MethodDelete, "/api/listings/"+id, f.seller, nil)
	require.Equal(t, http.StatusOK, status)
	assert.ElementsMatch(t, []string{"a", "b"}, f.remover.removed)

	status, _ = f.do(t, http.MethodGet, "/api/listings/"+id, f.seller, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestListingRoutesRequireAuth(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodGet, "/api/listings/my", uuid.Nil, nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}
