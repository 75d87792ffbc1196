package domain

import "encoding/json"

// Keyed items can live in an OrderedSet.
type Keyed interface {
	SetKey() string
}

// OrderedSet keeps items in insertion order and unique by SetKey.
// The zero value is an empty set.
type OrderedSet[T Keyed] struct {
	items []T
}

func NewOrderedSet[T Keyed](items ...T) OrderedSet[T] {
	var s OrderedSet[T]
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add appends item unless an item with the same key is present.
func (s *OrderedSet[T]) Add(item T) bool {
	if s.Contains(item.SetKey()) {
		return false
	}
	s.items = append(s.items, item)
	return true
}

// Remove drops the item with the given key and reports whether it was present.
func (s *OrderedSet[T]) Remove(key string) bool {
	for i, item := range s.items {
		if item.SetKey() == key {
			s.items = append(s.items[:i:i], s.items[i+1:]...)
			return true
		}
	}
	return false
}

func (s OrderedSet[T]) Contains(key string) bool {
	for _, item := range s.items {
		if item.SetKey() == key {
			return true
		}
	}
	return false
}

func (s OrderedSet[T]) Len() int {
	return len(s.items)
}

// Items returns a copy of the members.
func (s OrderedSet[T]) Items() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

func (s OrderedSet[T]) Keys() []string {
	out := make([]string, len(s.items))
	for i, item := range s.items {
		out[i] = item.SetKey()
	}
	return out
}

func (s OrderedSet[T]) MarshalJSON() ([]byte, error) {
	if s.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s.items)
}

// UnmarshalJSON drops duplicates, keeping the first occurrence.
func (s *OrderedSet[T]) UnmarshalJSON(data []byte) error {
	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		return err
	}
	*s = NewOrderedSet(items...)
	return nil
}
