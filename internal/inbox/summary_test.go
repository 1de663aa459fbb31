package inbox

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajivgeraev/flippy-market/internal/models"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func strPtr(s string) *string { return &s }

func timePtr(t time.Time) *time.Time { return &t }

func profile(name string) models.Profile {
	return models.Profile{ID: uuid.New(), DisplayName: strPtr(name)}
}

func TestBuildSummariesUsesCounterpart(t *testing.T) {
	buyer, seller := profile("Marie Dupont"), profile("Jean Martin")
	price := int64(2000)
	listing := models.ListingRef{ID: uuid.New(), Title: "Vélo", PriceCents: &price}

	row := models.ConversationRow{
		ID:       uuid.New(),
		BuyerID:  buyer.ID,
		SellerID: seller.ID,
		Listing:  models.One(listing),
		Buyer:    models.One(buyer),
		Seller:   models.One(seller),
	}

	asBuyer := BuildSummaries([]models.ConversationRow{row}, nil, buyer.ID)
	require.Len(t, asBuyer, 1)
	assert.Equal(t, "Jean Martin", asBuyer[0].ContactDisplayName)
	assert.Equal(t, "Vélo", asBuyer[0].ListingTitle)
	assert.Equal(t, &price, asBuyer[0].ListingPriceCents)
	require.NotNil(t, asBuyer[0].ListingID)
	assert.Equal(t, listing.ID, *asBuyer[0].ListingID)

	asSeller := BuildSummaries([]models.ConversationRow{row}, nil, seller.ID)
	require.Len(t, asSeller, 1)
	assert.Equal(t, "Marie Dupont", asSeller[0].ContactDisplayName)
	assert.Equal(t, buyer.ID, *asSeller[0].ContactProfileID)
}

func TestBuildSummariesFallbacks(t *testing.T) {
	buyerID, sellerID := uuid.New(), uuid.New()
	row := models.ConversationRow{ID: uuid.New(), BuyerID: buyerID, SellerID: sellerID}

	asBuyer := BuildSummaries([]models.ConversationRow{row}, nil, buyerID)
	require.Len(t, asBuyer, 1)

	want := models.ConversationSummary{
		ID:                 row.ID,
		ContactDisplayName: models.UnknownSellerName,
		ListingTitle:       models.ListingRemovedTitle,
		BuyerID:            buyerID,
		SellerID:           sellerID,
	}
	if diff := cmp.Diff(want, asBuyer[0]); diff != "" {
		t.Errorf("BuildSummaries() mismatch (-want +got):\n%s", diff)
	}

	asSeller := BuildSummaries([]models.ConversationRow{row}, nil, sellerID)
	assert.Equal(t, models.UnknownBuyerName, asSeller[0].ContactDisplayName)
}

func TestBuildSummariesAcceptsRelationArrays(t *testing.T) {
	buyer, seller := profile("Marie"), profile("Jean")
	row := models.ConversationRow{
		ID:       uuid.New(),
		BuyerID:  buyer.ID,
		SellerID: seller.ID,
		Seller:   models.Many(seller, profile("Other")),
		Listing:  models.Many[models.ListingRef](),
	}

	got := BuildSummaries([]models.ConversationRow{row}, nil, buyer.ID)
	assert.Equal(t, "Jean", got[0].ContactDisplayName)
	assert.Equal(t, models.ListingRemovedTitle, got[0].ListingTitle)
}

func TestBuildSummariesAggregatesMessages(t *testing.T) {
	viewer, other := uuid.New(), uuid.New()
	convID := uuid.New()
	row := models.ConversationRow{ID: convID, BuyerID: viewer, SellerID: other, LastReadAtBuyer: timePtr(base.Add(time.Minute))}

	messages := []models.MessageRecord{
		{ID: uuid.New(), ConversationID: convID, SenderID: other, Content: "bonjour", CreatedAt: base},
		{ID: uuid.New(), ConversationID: convID, SenderID: viewer, Content: "salut", CreatedAt: base.Add(2 * time.Minute)},
		{ID: uuid.New(), ConversationID: convID, SenderID: other, Content: "toujours dispo ?", CreatedAt: base.Add(3 * time.Minute)},
		{ID: uuid.New(), ConversationID: uuid.New(), SenderID: other, Content: "ailleurs", CreatedAt: base},
	}

	got := BuildSummaries([]models.ConversationRow{row}, messages, viewer)
	require.Len(t, got, 1)
	assert.Equal(t, "bonjour salut toujours dispo ?", got[0].SearchableMessageText)
	assert.Equal(t, 1, got[0].UnreadCount)
	require.NotNil(t, got[0].LastMessageAt)
	assert.Equal(t, base.Add(3*time.Minute), *got[0].LastMessageAt)
	assert.Equal(t, "01/03/2026 12:03", got[0].UpdatedAt)
}

func TestBuildSummariesSortsByRecent(t *testing.T) {
	viewer := uuid.New()
	rows := []models.ConversationRow{
		{ID: uuid.New(), BuyerID: viewer, SellerID: uuid.New()},
		{ID: uuid.New(), BuyerID: viewer, SellerID: uuid.New(), LastMessageAt: timePtr(base)},
		{ID: uuid.New(), BuyerID: viewer, SellerID: uuid.New(), LastMessageAt: timePtr(base.Add(time.Hour))},
	}

	got := BuildSummaries(rows, nil, viewer)
	require.Len(t, got, 3)
	assert.Equal(t, rows[2].ID, got[0].ID)
	assert.Equal(t, rows[1].ID, got[1].ID)
	assert.Equal(t, rows[0].ID, got[2].ID)
}
