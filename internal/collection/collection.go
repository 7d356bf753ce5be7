// Package collection provides the in-memory indexed structures backing
// list-heavy consumers: a keyed ordered collection, an inverted search
// index, and a selection set. The structures are not synchronized on
// their own; each instance belongs to a single owner (see View for the
// synchronized bundle).
package collection

import (
	"container/list"
)

type element[T any] struct {
	key    string
	record T
}

// Collection is a keyed, insertion-ordered record store with O(1)
// amortized CRUD by key. Keys are extracted from records by the
// configured key function and are unique: adding a record whose key
// already exists replaces the stored record in place, keeping its
// original position.
type Collection[T any] struct {
	keyOf func(T) string
	items map[string]*list.Element
	order *list.List
}

// New builds an empty collection keyed by keyOf.
func New[T any](keyOf func(T) string) *Collection[T] {
	return &Collection[T]{
		keyOf: keyOf,
		items: make(map[string]*list.Element),
		order: list.New(),
	}
}

// KeyOf returns the key the collection extracts from record.
func (c *Collection[T]) KeyOf(record T) string {
	return c.keyOf(record)
}

// Add inserts record, replacing any record with the same key in place.
func (c *Collection[T]) Add(record T) {
	key := c.keyOf(record)
	if existing, ok := c.items[key]; ok {
		existing.Value = element[T]{key: key, record: record}
		return
	}
	c.items[key] = c.order.PushBack(element[T]{key: key, record: record})
}

// Remove drops the record under key. Removing an absent key is a no-op.
func (c *Collection[T]) Remove(key string) {
	if existing, ok := c.items[key]; ok {
		c.order.Remove(existing)
		delete(c.items, key)
	}
}

// Update applies merge to the record under key and stores the result.
// Updating an absent key is a no-op, not an error.
func (c *Collection[T]) Update(key string, merge func(T) T) {
	existing, ok := c.items[key]
	if !ok {
		return
	}
	current := existing.Value.(element[T])
	existing.Value = element[T]{key: key, record: merge(current.record)}
}

// Get returns the record under key.
func (c *Collection[T]) Get(key string) (T, bool) {
	if existing, ok := c.items[key]; ok {
		return existing.Value.(element[T]).record, true
	}
	var zero T
	return zero, false
}

// Has reports whether key is present.
func (c *Collection[T]) Has(key string) bool {
	_, ok := c.items[key]
	return ok
}

// All returns every record in insertion order.
func (c *Collection[T]) All() []T {
	records := make([]T, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		records = append(records, e.Value.(element[T]).record)
	}
	return records
}

// Keys returns every key in insertion order.
func (c *Collection[T]) Keys() []string {
	keys := make([]string, 0, c.order.Len())
	for e := c.order.Front(); e != nil; e = e.Next() {
		keys = append(keys, e.Value.(element[T]).key)
	}
	return keys
}

// BulkAdd inserts records in order.
func (c *Collection[T]) BulkAdd(records []T) {
	for _, record := range records {
		c.Add(record)
	}
}

// BulkRemove drops every listed key.
func (c *Collection[T]) BulkRemove(keys []string) {
	for _, key := range keys {
		c.Remove(key)
	}
}

// Clear drops everything.
func (c *Collection[T]) Clear() {
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Len reports the number of distinct keys held.
func (c *Collection[T]) Len() int {
	return c.order.Len()
}
