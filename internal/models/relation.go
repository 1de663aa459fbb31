package models

import (
	"bytes"
	"encoding/json"
)

// OneOrMany хранит связанную запись, которая в JSON может прийти
// как объект, как массив объектов или как null.
type OneOrMany[T any] struct {
	items []T
}

// One оборачивает одну запись
func One[T any](v T) OneOrMany[T] {
	return OneOrMany[T]{items: []T{v}}
}

// Many оборачивает несколько записей
func Many[T any](vs ...T) OneOrMany[T] {
	return OneOrMany[T]{items: vs}
}

// One возвращает первую запись, если она есть
func (o OneOrMany[T]) One() (T, bool) {
	if len(o.items) == 0 {
		var zero T
		return zero, false
	}
	return o.items[0], true
}

// Len возвращает количество записей
func (o OneOrMany[T]) Len() int {
	return len(o.items)
}

// UnmarshalJSON принимает объект, массив или null
func (o *OneOrMany[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		o.items = nil
		return nil
	}

	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		o.items = items
		return nil
	}

	var item T
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return err
	}
	o.items = []T{item}
	return nil
}

// MarshalJSON отдаёт одну запись объектом, иначе массивом
func (o OneOrMany[T]) MarshalJSON() ([]byte, error) {
	switch len(o.items) {
	case 0:
		return []byte("null"), nil
	case 1:
		return json.Marshal(o.items[0])
	default:
		return json.Marshal(o.items)
	}
}
