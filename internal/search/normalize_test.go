package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"":               "",
		"Élan":           "elan",
		"elan":           "elan",
		"ÇA MARCHE":      "ca marche",
		"Noël à Besançon": "noel a besancon",
		"Ёлка":           "елка",
		"50 €":           "50 €",
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), "Normalize(%q)", in)
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	for _, in := range []string{"Élan", "Crème Brûlée", "ÅNGSTRÖM", "plain text", "Ёж"} {
		once := Normalize(in)
		assert.Equal(t, once, Normalize(once), "input %q", in)
	}
}

func TestNormalizeFoldsCaseAndDiacritics(t *testing.T) {
	assert.Equal(t, Normalize("elan"), Normalize("Élan"))
	assert.Equal(t, Normalize("ELAN"), Normalize("élan"))
}
