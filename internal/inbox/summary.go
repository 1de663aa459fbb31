package inbox

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rajivgeraev/flippy-market/internal/models"
	"github.com/rajivgeraev/flippy-market/internal/search"
)

type messageAggregate struct {
	texts         []string
	lastCreatedAt *time.Time
	messages      []models.MessageRecord
}

// BuildSummaries пересобирает строки списка бесед для пользователя viewerID
func BuildSummaries(rows []models.ConversationRow, messages []models.MessageRecord, viewerID uuid.UUID) []models.ConversationSummary {
	aggregates := make(map[uuid.UUID]*messageAggregate, len(rows))
	for _, m := range messages {
		agg, ok := aggregates[m.ConversationID]
		if !ok {
			agg = &messageAggregate{}
			aggregates[m.ConversationID] = agg
		}

		agg.texts = append(agg.texts, m.Content)
		agg.messages = append(agg.messages, m)
		if !m.CreatedAt.IsZero() && (agg.lastCreatedAt == nil || m.CreatedAt.After(*agg.lastCreatedAt)) {
			createdAt := m.CreatedAt
			agg.lastCreatedAt = &createdAt
		}
	}

	summaries := make([]models.ConversationSummary, 0, len(rows))
	for _, row := range rows {
		agg := aggregates[row.ID]
		if agg == nil {
			agg = &messageAggregate{}
		}
		summaries = append(summaries, buildSummary(row, agg, viewerID))
	}

	SortByRecent(summaries)
	return summaries
}

func buildSummary(row models.ConversationRow, agg *messageAggregate, viewerID uuid.UUID) models.ConversationSummary {
	isSeller := row.SellerID == viewerID

	var (
		contact    models.Profile
		hasContact bool
		fallback   string
		lastReadAt *time.Time
	)
	if isSeller {
		contact, hasContact = row.Buyer.One()
		fallback = models.UnknownBuyerName
		lastReadAt = row.LastReadAtSeller
	} else {
		contact, hasContact = row.Seller.One()
		fallback = models.UnknownSellerName
		lastReadAt = row.LastReadAtBuyer
	}

	summary := models.ConversationSummary{
		ID:                    row.ID,
		ContactDisplayName:    fallback,
		ListingID:             row.ListingID,
		ListingTitle:          models.ListingRemovedTitle,
		LastMessagePreview:    row.LastMessagePreview,
		LastMessageAt:         row.LastMessageAt,
		BuyerID:               row.BuyerID,
		SellerID:              row.SellerID,
		SearchableMessageText: strings.Join(agg.texts, " "),
		LastReadAt:            lastReadAt,
		UnreadCount:           search.CountUnread(agg.messages, viewerID, lastReadAt),
	}

	if hasContact {
		id := contact.ID
		summary.ContactDisplayName = contact.Name(fallback)
		summary.ContactProfileID = &id
		if contact.AvatarURL != nil {
			summary.ContactAvatarURL = *contact.AvatarURL
		}
	}

	if listing, ok := row.Listing.One(); ok {
		summary.ListingTitle = listing.Title
		summary.ListingPriceCents = listing.PriceCents
		if summary.ListingID == nil {
			id := listing.ID
			summary.ListingID = &id
		}
	}

	if summary.LastMessageAt == nil {
		summary.LastMessageAt = agg.lastCreatedAt
	}
	summary.UpdatedAt = models.FormatConversationTimestamp(summary.LastMessageAt)

	return summary
}

// SortByRecent упорядочивает беседы от свежих к старым, беседы без сообщений в конце
func SortByRecent(summaries []models.ConversationSummary) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i].LastMessageAt, summaries[j].LastMessageAt
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
}
