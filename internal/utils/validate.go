package utils

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ValidateStruct проверяет структуру запроса по тегам validate
func ValidateStruct(s any) error {
	return validate.Struct(s)
}

// ValidationMessage превращает ошибку валидации в текст для ответа API
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Неверный формат данных"
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.ToLower(fe.Field())
		switch fe.Tag() {
		case "required", "required_without":
			parts = append(parts, fmt.Sprintf("поле %s обязательно", field))
		case "uuid":
			parts = append(parts, fmt.Sprintf("поле %s должно быть UUID", field))
		case "max":
			parts = append(parts, fmt.Sprintf("поле %s длиннее %s", field, fe.Param()))
		case "min", "gte":
			parts = append(parts, fmt.Sprintf("поле %s меньше %s", field, fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("поле %s должно быть одним из: %s", field, fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("поле %s неверно", field))
		}
	}
	return strings.Join(parts, "; ")
}
