package search

import (
	"math"
	"sort"
	"strings"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

// Бонусы за совпадение по отдельным полям беседы
const (
	PriceMatchScore   = 400
	ContactMatchScore = 200
	TitleMatchScore   = 100
	MessageMatchScore = 50

	priceTolerance = 0.01
)

// Query - разобранный поисковый запрос
type Query struct {
	Raw        string
	Normalized string
	Price      float64
	HasPrice   bool
}

// ParseQuery обрезает пробелы, нормализует текст и ищет цену в исходной строке.
// Второй результат false, если после обрезки запрос пуст.
func ParseQuery(raw string) (Query, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Query{}, false
	}

	q := Query{Raw: trimmed, Normalized: Normalize(trimmed)}
	q.Price, q.HasPrice = ExtractPrice(trimmed)
	return q, true
}

// ScoreFunc оценивает одну беседу по запросу
type ScoreFunc func(conv models.ConversationSummary, q Query) int

// Score складывает бонусы за все совпавшие поля беседы
func Score(conv models.ConversationSummary, q Query) int {
	score := 0

	if q.HasPrice && conv.ListingPriceCents != nil {
		price := float64(*conv.ListingPriceCents) / 100
		if math.Abs(price-q.Price) < priceTolerance {
			score += PriceMatchScore
		}
	}

	if strings.Contains(Normalize(conv.ContactDisplayName), q.Normalized) {
		score += ContactMatchScore
	}
	if strings.Contains(Normalize(conv.ListingTitle), q.Normalized) {
		score += TitleMatchScore
	}
	if strings.Contains(Normalize(conv.SearchableMessageText), q.Normalized) {
		score += MessageMatchScore
	}

	return score
}

// Engine ранжирует беседы. Нулевое значение использует Score.
type Engine struct {
	Scorer ScoreFunc
}

// Search возвращает беседы с положительной оценкой, от лучшей к худшей.
// Беседы с равной оценкой сохраняют исходный порядок.
// Пустой запрос означает сброс поиска и даёт пустой результат без оценки бесед.
func (e Engine) Search(conversations []models.ConversationSummary, rawQuery string) []models.ConversationSummary {
	q, ok := ParseQuery(rawQuery)
	if !ok {
		return []models.ConversationSummary{}
	}

	scorer := e.Scorer
	if scorer == nil {
		scorer = Score
	}

	type scored struct {
		conv  models.ConversationSummary
		score int
	}

	matched := make([]scored, 0, len(conversations))
	for _, conv := range conversations {
		if s := scorer(conv, q); s > 0 {
			matched = append(matched, scored{conv: conv, score: s})
		}
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].score > matched[j].score
	})

	results := make([]models.ConversationSummary, len(matched))
	for i, m := range matched {
		results[i] = m.conv
	}
	return results
}

// Search ищет беседы со стандартной оценкой
func Search(conversations []models.ConversationSummary, rawQuery string) []models.ConversationSummary {
	return Engine{}.Search(conversations, rawQuery)
}
