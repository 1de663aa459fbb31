package chat

import (
	"context"
	"net/http"
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

// countingStore считает загрузки списка бесед
type countingStore struct {
	*memory.Store

	mu    sync.Mutex
	lists int
}

func (s *countingStore) ListConversations(ctx context.Context, viewerID uuid.UUID) ([]models.ConversationRow, error) {
	s.mu.Lock()
	s.lists++
	s.mu.Unlock()
	return s.Store.ListConversations(ctx, viewerID)
}

func (s *countingStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists
}

func TestConversationListLoadsOncePerRequest(t *testing.T) {
	f := newFixture(t)
	f.openConversation(t, "Bonjour")

	store := &countingStore{Store: f.store}
	svc := NewChatService(store, f.notifier, f.jwt, 24, obs.Discard())
	f.app = fiber.New()
	svc.SetupRoutes(f.app)

	status, body := f.do(t, http.MethodGet, "/api/conversations", f.seller, nil)
	require.Equal(t, http.StatusOK, status, body)
	assert.Len(t, conversations(t, body), 1)
	assert.Equal(t, 1, store.count())

	status, _ = f.do(t, http.MethodGet, "/api/conversations", f.seller, nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, store.count())
}

func TestInboxCacheEviction(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewChatService(memory.NewStore(), &fakeNotifier{}, utils.NewJWTService("secret", time.Hour), 24, obs.Discard())
	svc.now = func() time.Time { return now }
	svc.maxInboxes = 2

	ctx := context.Background()
	a, b, c := uuid.New(), uuid.New(), uuid.New()
	cached := func(id uuid.UUID) bool {
		_, ok := svc.cachedInbox(id)
		return ok
	}

	_, fresh, err := svc.inboxFor(ctx, a)
	require.NoError(t, err)
	assert.True(t, fresh)

	_, fresh, err = svc.inboxFor(ctx, a)
	require.NoError(t, err)
	assert.False(t, fresh)

	now = now.Add(time.Minute)
	_, _, err = svc.inboxFor(ctx, b)
	require.NoError(t, err)

	// Кэш заполнен: c вытесняет давно не использованный a
	now = now.Add(time.Minute)
	_, _, err = svc.inboxFor(ctx, c)
	require.NoError(t, err)
	assert.False(t, cached(a))
	assert.True(t, cached(b))
	assert.True(t, cached(c))

	// Простаивающие списки выгружаются при следующей загрузке
	now = now.Add(inboxIdleTTL + time.Minute)
	_, fresh, err = svc.inboxFor(ctx, a)
	require.NoError(t, err)
	assert.True(t, fresh)
	assert.True(t, cached(a))
	assert.False(t, cached(b))
	assert.False(t, cached(c))
}
