package search

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

func conversation(name, title, messages string, priceCents *int64) models.ConversationSummary {
	return models.ConversationSummary{
		ID:                    uuid.New(),
		ContactDisplayName:    name,
		ListingTitle:          title,
		SearchableMessageText: messages,
		ListingPriceCents:     priceCents,
	}
}

func cents(v int64) *int64 { return &v }

func ids(convs []models.ConversationSummary) []uuid.UUID {
	out := make([]uuid.UUID, len(convs))
	for i, c := range convs {
		out[i] = c.ID
	}
	return out
}

func TestScoreAddsIndependentBonuses(t *testing.T) {
	conv := conversation("Hélène", "Vélo Hélène", " merci hélène", cents(5000))

	q, ok := ParseQuery("helene")
	require.True(t, ok)
	assert.Equal(t, ContactMatchScore+TitleMatchScore+MessageMatchScore, Score(conv, q))

	q, ok = ParseQuery("50 €")
	require.True(t, ok)
	assert.Equal(t, PriceMatchScore, Score(conv, q))
}

func TestScorePriceTolerance(t *testing.T) {
	conv := conversation("a", "b", "", cents(1250))

	q, _ := ParseQuery("12,5€")
	assert.Equal(t, PriceMatchScore, Score(conv, q))

	q, _ = ParseQuery("12,52€")
	assert.Equal(t, 0, Score(conv, q))

	noPrice := conversation("a", "b", "", nil)
	q, _ = ParseQuery("12,5€")
	assert.Equal(t, 0, Score(noPrice, q))
}

func TestSearchRanksAndExcludesZeroScores(t *testing.T) {
	a := conversation("Marie", "Table", "bonjour", cents(1000))
	b := conversation("Paul", "Chaise", " ok pour 20 € marie", cents(2000))
	c := conversation("Jean", "Lampe", "salut", cents(3000))

	results := Search([]models.ConversationSummary{a, b, c}, "20 €")
	require.Len(t, results, 1)
	assert.Equal(t, b.ID, results[0].ID)

	b.SearchableMessageText = " on dit 20 € ?"
	a.ContactDisplayName = "20 € Marie"
	results = Search([]models.ConversationSummary{a, b, c}, "20 €")
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, ids(results))
}

func TestSearchSpecExample(t *testing.T) {
	a := conversation("Camille", "Table", "", cents(100))
	b := conversation("Louis", "Chaise", " camille 15 €", cents(1500))
	c := conversation("Jean", "Lampe", "rien", nil)

	scores := map[uuid.UUID]int{}
	engine := Engine{Scorer: func(conv models.ConversationSummary, q Query) int {
		s := Score(conv, q)
		scores[conv.ID] = s
		return s
	}}

	a.ContactDisplayName = "camille 15 €"
	results := engine.Search([]models.ConversationSummary{a, b, c}, "camille 15 €")

	assert.Equal(t, ContactMatchScore, scores[a.ID])
	assert.Equal(t, PriceMatchScore+MessageMatchScore, scores[b.ID])
	assert.Equal(t, 0, scores[c.ID])
	assert.Equal(t, []uuid.UUID{b.ID, a.ID}, ids(results))
}

func TestSearchIsStableForEqualScores(t *testing.T) {
	first := conversation("Anne", "x", "", nil)
	second := conversation("Annette", "y", "", nil)
	third := conversation("Annabelle", "z", "", nil)

	results := Search([]models.ConversationSummary{first, second, third}, "ann")
	assert.Equal(t, []uuid.UUID{first.ID, second.ID, third.ID}, ids(results))

	results = Search([]models.ConversationSummary{third, first, second}, "ann")
	assert.Equal(t, []uuid.UUID{third.ID, first.ID, second.ID}, ids(results))
}

func TestSearchIgnoresDiacriticsAndCase(t *testing.T) {
	conv := conversation("ÉLODIE", "Commode", "", nil)
	results := Search([]models.ConversationSummary{conv}, "  elodie ")
	require.Len(t, results, 1)
	assert.Equal(t, conv.ID, results[0].ID)
}

func TestSearchEmptyQueryShortCircuits(t *testing.T) {
	convs := []models.ConversationSummary{conversation("Anne", "x", "", nil)}

	calls := 0
	engine := Engine{Scorer: func(conv models.ConversationSummary, q Query) int {
		calls++
		return Score(conv, q)
	}}

	for _, q := range []string{"", "   ", "\t\n"} {
		results := engine.Search(convs, q)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	}
	assert.Zero(t, calls)

	results := engine.Search(convs, "zzz")
	assert.Empty(t, results)
	assert.Equal(t, 1, calls)
}

func TestSearchReturnsFullObjects(t *testing.T) {
	conv := conversation("Anne", "Table", "msg", cents(900))
	conv.UnreadCount = 3

	results := Search([]models.ConversationSummary{conv}, "anne")
	require.Len(t, results, 1)
	assert.Equal(t, conv, results[0])
}
