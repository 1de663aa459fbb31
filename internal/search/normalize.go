// Package search ищет и ранжирует беседы пользователя и считает непрочитанные сообщения.
// Все функции пакета чистые: работают только с уже загруженными данными.
package search

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize раскладывает символы на базовые и диакритику (NFD),
// выбрасывает диакритические знаки и приводит строку к нижнему регистру.
func Normalize(text string) string {
	if text == "" {
		return ""
	}

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, text)
	if err != nil {
		stripped = text
	}
	return strings.ToLower(stripped)
}
