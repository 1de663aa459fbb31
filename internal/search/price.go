package search

import (
	"regexp"
	"strconv"
	"strings"
)

// Сумма с символом валюты: "50 €", "12.5$", "12,5€".
// Между числом и символом допускаются и неразрывные пробелы.
var priceTokenRe = regexp.MustCompile(`(\d+(?:[.,]\d+)?)[\s\x{00A0}\x{202F}]*[€$£]`)

// ExtractPrice возвращает первую сумму с символом валюты из запроса.
// false означает, что фильтра по цене нет.
func ExtractPrice(query string) (float64, bool) {
	match := priceTokenRe.FindStringSubmatch(query)
	if match == nil {
		return 0, false
	}

	value, err := strconv.ParseFloat(strings.Replace(match[1], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
