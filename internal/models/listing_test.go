package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDroppedImages(t *testing.T) {
	old := []ListingImage{{PublicID: "keep"}, {PublicID: "drop"}}

	assert.Equal(t, []ListingImage{{PublicID: "drop"}}, DroppedImages(old, []ListingImage{{PublicID: "keep"}, {PublicID: "added"}}))
	assert.Equal(t, old, DroppedImages(old, []ListingImage{}))
	assert.Empty(t, DroppedImages(old, old))
}
