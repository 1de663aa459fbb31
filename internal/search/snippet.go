package search

import (
	"unicode"
)

// Ellipsis добавляется на месте обрезанного текста
const Ellipsis = "…"

// BuildSnippet вырезает из text отрывок длиной maxLength символов вокруг
// первого вхождения term без учёта регистра. Длины считаются в рунах.
// Если term пуст или не найден, возвращается начало текста.
func BuildSnippet(text, term string, maxLength int) string {
	if maxLength < 0 {
		maxLength = 0
	}

	runes := []rune(text)
	if len(runes) <= maxLength {
		return text
	}

	termRunes := []rune(term)
	if len(termRunes) == 0 {
		return string(runes[:maxLength]) + Ellipsis
	}

	idx := indexFold(runes, termRunes)
	if idx < 0 {
		return string(runes[:maxLength]) + Ellipsis
	}

	// term длиннее maxLength: окно начинается с самого вхождения
	half := max((maxLength-len(termRunes))/2, 0)

	start := max(idx-half, 0)
	end := min(len(runes), start+maxLength)
	if end-start < maxLength && start > 0 {
		start = max(end-maxLength, 0)
	}

	snippet := string(runes[start:end])
	if start > 0 {
		snippet = Ellipsis + snippet
	}
	if end < len(runes) {
		snippet += Ellipsis
	}
	return snippet
}

// indexFold ищет needle в haystack без учёта регистра и возвращает индекс в рунах
func indexFold(haystack, needle []rune) int {
	if len(needle) > len(haystack) {
		return -1
	}

	for i := 0; i+len(needle) <= len(haystack); i++ {
		match := true
		for j, r := range needle {
			if unicode.ToLower(haystack[i+j]) != unicode.ToLower(r) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}
